package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/services"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:    fiber.StatusBadRequest,
	services.KindNotFound:      fiber.StatusNotFound,
	services.KindUnauthorized:  fiber.StatusUnauthorized,
	services.KindForbidden:     fiber.StatusForbidden,
	services.KindConflict:      fiber.StatusConflict,
	services.KindUpstream:      fiber.StatusBadGateway,
	services.KindConfiguration: fiber.StatusInternalServerError,
}

// ErrorHandler renders domain errors and fiber errors with one envelope. Anything else is
// logged and reported as an internal error.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		var domainErr *services.Error
		if errors.As(err, &domainErr) {
			status, ok := kindStatus[domainErr.Kind]
			if !ok {
				status = fiber.StatusInternalServerError
			}
			if status >= fiber.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
					zap.String("kind", string(domainErr.Kind)),
					zap.Error(err),
				)
			}
			return writeError(c, status, string(domainErr.Kind), domainErr.Message)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return writeError(c, fiberErr.Code, codeForStatus(fiberErr.Code), fiberErr.Message)
		}

		logger.Error("unexpected error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return string(services.KindValidation)
	case fiber.StatusUnauthorized:
		return string(services.KindUnauthorized)
	case fiber.StatusForbidden:
		return string(services.KindForbidden)
	case fiber.StatusNotFound:
		return string(services.KindNotFound)
	case fiber.StatusConflict:
		return string(services.KindConflict)
	default:
		if status >= fiber.StatusInternalServerError {
			return "INTERNAL"
		}
		return "REQUEST"
	}
}
