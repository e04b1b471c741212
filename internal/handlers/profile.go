package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/orderledger/internal/services"
)

// ProfileHandler manages user profile endpoints.
type ProfileHandler struct {
	addresses *services.AddressService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(addresses *services.AddressService) *ProfileHandler {
	return &ProfileHandler{addresses: addresses}
}

// ListAddresses returns user addresses.
func (h *ProfileHandler) ListAddresses(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}

	addresses, err := h.addresses.List(c.UserContext(), requester.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": addresses})
}

type createAddressRequest struct {
	Label       string `json:"label" validate:"max=64"`
	AddressLine string `json:"address_line" validate:"required,max=255"`
	Apartment   string `json:"apartment" validate:"max=64"`
	City        string `json:"city" validate:"required,max=128"`
	District    string `json:"district" validate:"max=128"`
	PostalCode  string `json:"postal_code" validate:"max=16"`
	IsDefault   bool   `json:"is_default"`
}

// CreateAddress creates an address for the user.
func (h *ProfileHandler) CreateAddress(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}

	var req createAddressRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	address, err := h.addresses.Create(c.UserContext(), requester.UserID, services.AddressInput{
		Label:       req.Label,
		AddressLine: req.AddressLine,
		Apartment:   req.Apartment,
		City:        req.City,
		District:    req.District,
		PostalCode:  req.PostalCode,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": address})
}

// DeleteAddress removes one of the user's addresses.
func (h *ProfileHandler) DeleteAddress(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.addresses.Delete(c.UserContext(), requester.UserID, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "address deleted"})
}
