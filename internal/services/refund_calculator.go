package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/gateway"
	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/store"
)

// RefundPlan is the outcome of a refund policy before anything is paid out.
type RefundPlan struct {
	Scenario     models.RefundScenario
	Amount       decimal.Decimal
	Deduction    decimal.Decimal
	Reason       string
	ViaProcessor bool

	// TransactionID is the captured processor payment to refund against.
	TransactionID string
}

// ComputeCancellation refunds the physical subtotal of a paid order. Digital lines are
// never refunded. A nil plan means there is nothing to refund.
func ComputeCancellation(order *models.Order, payment *models.Payment, reason string) (*RefundPlan, error) {
	if payment == nil || payment.Status != models.PaymentStatusPaid {
		return nil, nil
	}

	base := order.PhysicalSubtotal()
	if !base.IsPositive() {
		return nil, nil
	}

	plan := &RefundPlan{
		Scenario:  models.RefundScenarioCancellation,
		Amount:    base,
		Deduction: decimal.Zero,
		Reason:    reason,
	}
	if payment.Method == models.PaymentMethodRazorpay {
		if payment.TransactionID == nil || *payment.TransactionID == "" {
			return nil, ConfigurationError("payment for order %s has no transaction id to refund", order.ID)
		}
		plan.ViaProcessor = true
		plan.TransactionID = *payment.TransactionID
	}
	return plan, nil
}

// ComputeReturn refunds total minus the handling deduction, clamped at zero. Only paid
// processor payments are refunded through the processor; everything else is settled manually.
func ComputeReturn(order *models.Order, payment *models.Payment, deduction decimal.Decimal, reason string) (*RefundPlan, error) {
	amount := order.Total.Sub(deduction)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	plan := &RefundPlan{
		Scenario:  models.RefundScenarioReturn,
		Amount:    amount,
		Deduction: deduction,
		Reason:    reason,
	}
	if payment != nil && payment.Method == models.PaymentMethodRazorpay && payment.Status == models.PaymentStatusPaid {
		if payment.TransactionID == nil || *payment.TransactionID == "" {
			return nil, ConfigurationError("payment for order %s has no transaction id to refund", order.ID)
		}
		plan.ViaProcessor = true
		plan.TransactionID = *payment.TransactionID
	}
	return plan, nil
}

// ComputeLateCapture refunds the whole captured amount of an order that was cancelled
// before its payment completed. Nothing was fulfilled, so digital lines are included.
func ComputeLateCapture(payment *models.Payment, transactionID string, viaProcessor bool) *RefundPlan {
	return &RefundPlan{
		Scenario:      models.RefundScenarioCancellation,
		Amount:        payment.Amount,
		Deduction:     decimal.Zero,
		Reason:        "payment captured after cancellation",
		ViaProcessor:  viaProcessor,
		TransactionID: transactionID,
	}
}

// RefundFailure carries the FAILED record to persist after the surrounding transaction rolls back.
type RefundFailure struct {
	Record models.Refund
	Err    error
}

func (f *RefundFailure) Error() string {
	return "refund failed: " + f.Err.Error()
}

func (f *RefundFailure) Unwrap() error {
	return f.Err
}

// DefaultGatewayTimeout bounds a single processor call made while rows are locked.
const DefaultGatewayTimeout = 15 * time.Second

// RefundCalculator pays out refund plans and records the outcome.
type RefundCalculator struct {
	gateway gateway.Gateway
	logger  *zap.Logger
	timeout time.Duration
}

// NewRefundCalculator builds a RefundCalculator.
func NewRefundCalculator(gw gateway.Gateway, logger *zap.Logger) *RefundCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefundCalculator{gateway: gw, logger: logger, timeout: DefaultGatewayTimeout}
}

// WithTimeout sets the deadline for each processor refund call.
func (c *RefundCalculator) WithTimeout(d time.Duration) *RefundCalculator {
	if d > 0 {
		c.timeout = d
	}
	return c
}

func (c *RefundCalculator) hasGateway() bool {
	return c.gateway != nil
}

// Issue executes plan for order inside tx. The processor call is bounded by the calculator
// timeout so a stalled processor cannot pin the order lock. A processor failure returns a
// *RefundFailure and writes nothing; the caller persists the FAILED record outside the
// rolled back tx.
func (c *RefundCalculator) Issue(ctx context.Context, tx store.Ledger, order *models.Order, plan *RefundPlan) (*models.Refund, error) {
	if plan == nil {
		return nil, nil
	}

	refund := &models.Refund{
		OrderID:   order.ID,
		Scenario:  plan.Scenario,
		Amount:    plan.Amount,
		Deduction: plan.Deduction,
		Reason:    plan.Reason,
	}

	switch {
	case plan.Amount.IsZero():
		refund.Status = models.RefundStatusProcessed
	case !plan.ViaProcessor:
		refund.Status = models.RefundStatusManual
	default:
		if c.gateway == nil {
			return nil, ConfigurationError("payment processor is not configured")
		}
		notes := map[string]string{
			"orderId":  order.ID.String(),
			"scenario": string(plan.Scenario),
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		result, err := c.gateway.Refund(callCtx, plan.TransactionID, gateway.ToMinorUnits(plan.Amount), notes)
		cancel()
		if err != nil {
			c.logger.Error("processor refund failed",
				zap.String("order_id", order.ID.String()),
				zap.String("operation", string(plan.Scenario)),
				zap.String("amount", plan.Amount.StringFixed(2)),
				zap.Error(err),
			)
			failed := *refund
			failed.Status = models.RefundStatusFailed
			return nil, &RefundFailure{Record: failed, Err: err}
		}
		refund.Status = models.RefundStatusProcessed
		refund.RefundTransactionID = &result.ID
	}

	if err := tx.CreateRefund(ctx, refund); err != nil {
		return nil, err
	}
	return refund, nil
}

func asRefundFailure(err error) (*RefundFailure, bool) {
	var failure *RefundFailure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}
