package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"
)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPaymentAPI interface {
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayClients struct {
	orders   razorpayOrderAPI
	payments razorpayPaymentAPI
}

// RazorpayConfig configures the Razorpay gateway.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	Logger    *zap.Logger
	clients   *razorpayClients
}

// Razorpay implements Gateway with the Razorpay REST API.
type Razorpay struct {
	api    razorpayClients
	logger *zap.Logger
}

// NewRazorpay builds the gateway. Missing credentials yield ErrNotConfigured.
func NewRazorpay(cfg RazorpayConfig) (*Razorpay, error) {
	var clients razorpayClients
	if cfg.clients != nil {
		clients = *cfg.clients
	} else {
		keyID := strings.TrimSpace(cfg.KeyID)
		secret := strings.TrimSpace(cfg.KeySecret)
		if keyID == "" || secret == "" {
			return nil, ErrNotConfigured
		}
		client := razorpay.NewClient(keyID, secret)
		clients = razorpayClients{orders: client.Order, payments: client.Payment}
	}
	if clients.orders == nil || clients.payments == nil {
		return nil, errors.New("razorpay: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Razorpay{api: clients, logger: logger}, nil
}

// CreateOrder opens a processor order for amountMinor paise.
func (r *Razorpay) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (ProcessorOrder, error) {
	if err := ctx.Err(); err != nil {
		return ProcessorOrder{}, err
	}

	data := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	resp, err := r.api.orders.Create(data, nil)
	if err != nil {
		r.logger.Warn("razorpay order create failed", zap.String("receipt", receipt), zap.Error(err))
		return ProcessorOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	id := stringField(resp, "id")
	if id == "" {
		return ProcessorOrder{}, errors.New("razorpay: create order: response missing id")
	}

	order := ProcessorOrder{
		ID:          id,
		AmountMinor: amountMinor,
		Currency:    currency,
		Receipt:     receipt,
	}
	if amount, ok := intField(resp, "amount"); ok {
		order.AmountMinor = amount
	}
	if cur := stringField(resp, "currency"); cur != "" {
		order.Currency = cur
	}
	return order, nil
}

// Refund refunds amountMinor paise of a captured payment.
func (r *Razorpay) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return RefundResult{}, err
	}
	if strings.TrimSpace(paymentID) == "" {
		return RefundResult{}, errors.New("razorpay: refund: payment id is required")
	}

	data := map[string]interface{}{"speed": "normal"}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	resp, err := r.api.payments.Refund(paymentID, int(amountMinor), data, nil)
	if err != nil {
		r.logger.Warn("razorpay refund failed",
			zap.String("payment_id", paymentID),
			zap.Int64("amount_minor", amountMinor),
			zap.Error(err),
		)
		return RefundResult{}, fmt.Errorf("razorpay: refund: %w", err)
	}

	result := RefundResult{
		ID:          stringField(resp, "id"),
		AmountMinor: amountMinor,
		Status:      stringField(resp, "status"),
	}
	if amount, ok := intField(resp, "amount"); ok {
		result.AmountMinor = amount
	}
	if result.ID == "" {
		return RefundResult{}, errors.New("razorpay: refund: response missing id")
	}
	return result, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]interface{}, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}
