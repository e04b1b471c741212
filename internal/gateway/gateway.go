package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotConfigured is returned when processor credentials are missing.
var ErrNotConfigured = errors.New("gateway: processor credentials not configured")

// ProcessorOrder is the processor-side order a client pays against.
type ProcessorOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
}

// RefundResult is the processor response to a refund request.
type RefundResult struct {
	ID          string
	AmountMinor int64
	Status      string
}

// Gateway is the outbound side of the payment processor.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (ProcessorOrder, error)
	Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (RefundResult, error)
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a whole-unit amount to paise, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts paise back to a whole-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}
