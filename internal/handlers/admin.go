package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/services"
)

// AdminHandler manages operator-only endpoints.
type AdminHandler struct {
	orders        *services.OrderService
	refundDetails *services.RefundDetailsService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(orders *services.OrderService, refundDetails *services.RefundDetailsService) *AdminHandler {
	return &AdminHandler{orders: orders, refundDetails: refundDetails}
}

// ConfirmReturn completes a requested return and refunds the customer.
func (h *AdminHandler) ConfirmReturn(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "orderId")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	result, err := h.orders.ConfirmReturn(c.UserContext(), id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order":  result.Order,
			"refund": result.Refund,
		},
	})
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SetOrderStatus overwrites the order status.
func (h *AdminHandler) SetOrderStatus(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "orderId")
	if err != nil {
		return err
	}
	var req setStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		return services.ValidationError("%s", err.Error())
	}

	order, err := h.orders.AdminSetStatus(c.UserContext(), id, status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// ListRefundDetails returns payout instructions still waiting on an operator.
func (h *AdminHandler) ListRefundDetails(c *fiber.Ctx) error {
	details, err := h.refundDetails.ListPending(c.UserContext())
	if err != nil {
		return err
	}
	if details == nil {
		details = []models.RefundDetail{}
	}
	return c.JSON(fiber.Map{"success": true, "data": details})
}

// CompleteRefundDetails marks the manual payout for an order as done.
func (h *AdminHandler) CompleteRefundDetails(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "orderId")
	if err != nil {
		return err
	}
	if err := h.refundDetails.Complete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "refund marked as completed"})
}

// DeleteRefundDetails purges the payout instructions for an order.
func (h *AdminHandler) DeleteRefundDetails(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "orderId")
	if err != nil {
		return err
	}
	if err := h.refundDetails.Purge(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "refund details deleted"})
}

// PendingPayouts lists MANUAL refunds with their payout instructions, if submitted.
func (h *AdminHandler) PendingPayouts(c *fiber.Ctx) error {
	payouts, err := h.refundDetails.PendingPayouts(c.UserContext())
	if err != nil {
		return err
	}

	data := make([]fiber.Map, 0, len(payouts))
	for _, p := range payouts {
		data = append(data, fiber.Map{
			"refund":        p.Refund,
			"refundDetails": p.Detail,
		})
	}
	return c.JSON(fiber.Map{"success": true, "data": data})
}
