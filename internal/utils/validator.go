package utils

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct checks a request body against its validate tags.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// FormatValidationErrors converts validation errors to one readable sentence.
func FormatValidationErrors(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		case "gt", "gte":
			messages = append(messages, fmt.Sprintf("%s must be greater than %s", field, e.Param()))
		case "uuid", "uuid4":
			messages = append(messages, fmt.Sprintf("%s must be a valid id", field))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of %s", field, e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", field))
		}
	}
	sort.Strings(messages)
	return strings.Join(messages, "; ")
}
