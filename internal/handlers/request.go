package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/orderledger/internal/middleware"
	"github.com/example/orderledger/internal/services"
	"github.com/example/orderledger/internal/utils"
)

func currentRequester(c *fiber.Ctx) (services.Requester, error) {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return services.Requester{}, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return services.Requester{UserID: userID, IsAdmin: middleware.IsAdmin(c)}, nil
}

func parseIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// parseBody decodes the JSON body and checks its validate tags.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, utils.FormatValidationErrors(err))
	}
	return nil
}

// parseOptionalBody is parseBody for endpoints whose body may be empty.
func parseOptionalBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return parseBody(c, out)
}
