package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/orderledger/internal/services"
)

const (
	headerWebhookSignature = "X-Razorpay-Signature"
	headerWebhookEventID   = "X-Razorpay-Event-Id"
)

// PaymentHandler receives checkout confirmations and processor webhooks.
type PaymentHandler struct {
	reconciler *services.Reconciler
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(reconciler *services.Reconciler) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler}
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
	OrderID           string `json:"orderId" validate:"omitempty,uuid"`
}

// Verify confirms a checkout from the client and returns the paid order.
func (h *PaymentHandler) Verify(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}

	var req verifyPaymentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	in := services.VerifyPaymentInput{
		ProcessorOrderID: req.RazorpayOrderID,
		PaymentID:        req.RazorpayPaymentID,
		Signature:        req.RazorpaySignature,
		Requester:        requester,
	}
	if req.OrderID != "" {
		in.OrderID = uuid.MustParse(req.OrderID)
	}

	view, err := h.reconciler.VerifyPayment(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": view})
}

// Webhook applies a processor event. The signature covers the raw body, so it is never re-encoded.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.Body()...)

	outcome, err := h.reconciler.HandleWebhook(
		c.UserContext(),
		raw,
		c.Get(headerWebhookSignature),
		c.Get(headerWebhookEventID),
	)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"outcome": outcome}})
}
