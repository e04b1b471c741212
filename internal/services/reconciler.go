package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/gateway"
	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/store"
)

// EventPaymentCaptured is the only webhook event that changes state.
const EventPaymentCaptured = "payment.captured"

const webhookReservationTTL = 24 * time.Hour

// Deduper reserves webhook event ids ahead of the durable event log.
type Deduper interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// ReconcilerConfig wires the payment reconciler.
type ReconcilerConfig struct {
	Ledger        store.Ledger
	Delivery      *DeliveryAuthorizer
	Refunds       *RefundCalculator
	Notifier      Notifier
	Deduper       Deduper
	Logger        *zap.Logger
	KeySecret     string
	WebhookSecret string
	Clock         func() time.Time
}

// Reconciler merges client confirmations and processor webhooks into one PAID record.
type Reconciler struct {
	ledger        store.Ledger
	delivery      *DeliveryAuthorizer
	refunds       *RefundCalculator
	notifier      Notifier
	deduper       Deduper
	logger        *zap.Logger
	keySecret     string
	webhookSecret string
	now           func() time.Time
}

// NewReconciler builds a Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		ledger:        cfg.Ledger,
		delivery:      cfg.Delivery,
		refunds:       cfg.Refunds,
		notifier:      cfg.Notifier,
		deduper:       cfg.Deduper,
		logger:        cfg.Logger,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		now:           cfg.Clock,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.notifier == nil {
		r.notifier = NopNotifier{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.delivery == nil {
		r.delivery = NewDeliveryAuthorizer(cfg.Ledger, DefaultDownloadWindow, r.now)
	}
	if r.refunds == nil {
		r.refunds = NewRefundCalculator(nil, r.logger)
	}
	return r
}

// VerifyPaymentInput is the checkout callback posted by the client.
type VerifyPaymentInput struct {
	ProcessorOrderID string
	PaymentID        string
	Signature        string
	// OrderID is the client's view of the order; it is only cross-checked.
	OrderID   uuid.UUID
	Requester Requester
}

// VerifyPayment checks the checkout signature and marks the order paid.
func (r *Reconciler) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (*OrderView, error) {
	if r.keySecret == "" {
		return nil, ConfigurationError("payment verification secret is not configured")
	}
	if in.ProcessorOrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return nil, ValidationError("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}
	if !gateway.VerifyPaymentSignature(in.ProcessorOrderID, in.PaymentID, in.Signature, r.keySecret) {
		r.logger.Warn("payment signature mismatch", zap.String("processor_order_id", in.ProcessorOrderID))
		return nil, UnauthorizedError("invalid payment signature")
	}

	payment, err := r.ledger.PaymentByProcessorOrderID(ctx, in.ProcessorOrderID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Error("verified payment for unknown processor order",
			zap.String("processor_order_id", in.ProcessorOrderID),
			zap.String("operation", "verify_payment"),
		)
		return nil, NotFoundError("no payment found for processor order %s", in.ProcessorOrderID)
	}
	if err != nil {
		return nil, err
	}
	if in.OrderID != uuid.Nil && in.OrderID != payment.OrderID {
		return nil, ValidationError("orderId does not match the processor order")
	}

	order, err := r.ledger.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if !in.Requester.CanRead(order) {
		return nil, ForbiddenError("you do not have access to this order")
	}

	result, err := r.markPaid(ctx, payment, in.PaymentID, "verify_payment")
	if err != nil {
		return nil, err
	}
	if result == captureRefunded {
		return nil, ConflictError("order was cancelled before the payment completed; the payment is being refunded")
	}

	order, err = r.ledger.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	return &OrderView{Order: order, DownloadLinks: r.delivery.Links(order)}, nil
}

// WebhookOutcome describes how a verified webhook was handled.
type WebhookOutcome string

const (
	WebhookApplied     WebhookOutcome = "applied"
	WebhookAlreadyPaid WebhookOutcome = "already_paid"
	WebhookIgnored     WebhookOutcome = "ignored"
	WebhookDuplicate   WebhookOutcome = "duplicate"
	// WebhookRefunded means the order had been cancelled and the capture was refunded.
	WebhookRefunded WebhookOutcome = "refunded"
	// WebhookMismatch means the captured amount or currency disagreed with the payment.
	WebhookMismatch WebhookOutcome = "amount_mismatch"
)

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string         `json:"id"`
				OrderID  string         `json:"order_id"`
				Status   string         `json:"status"`
				Amount   int64          `json:"amount"`
				Currency string         `json:"currency"`
				Notes    map[string]any `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook verifies the raw body and applies payment.captured events. Other events
// are logged and acknowledged. eventID may be empty; the body hash is used instead.
func (r *Reconciler) HandleWebhook(ctx context.Context, rawBody []byte, signature, eventID string) (WebhookOutcome, error) {
	if r.webhookSecret == "" {
		return "", ConfigurationError("webhook secret is not configured")
	}
	if !gateway.VerifyWebhookSignature(rawBody, signature, r.webhookSecret) {
		r.logger.Warn("webhook signature mismatch")
		return "", UnauthorizedError("invalid webhook signature")
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return "", ValidationError("webhook body is not valid JSON")
	}

	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = hex.EncodeToString(sum[:])
	}

	reservationKey := "webhook:" + eventID
	if r.deduper != nil {
		reserved, err := r.deduper.Reserve(ctx, reservationKey, webhookReservationTTL)
		if err != nil {
			r.logger.Warn("webhook reservation unavailable", zap.String("event_id", eventID), zap.Error(err))
		} else if !reserved {
			return WebhookDuplicate, nil
		}
	}

	outcome, err := r.applyWebhook(ctx, envelope, eventID, rawBody)
	if err != nil && r.deduper != nil {
		if releaseErr := r.deduper.Release(context.WithoutCancel(ctx), reservationKey); releaseErr != nil {
			r.logger.Warn("webhook reservation release failed", zap.String("event_id", eventID), zap.Error(releaseErr))
		}
	}
	return outcome, err
}

func (r *Reconciler) applyWebhook(ctx context.Context, envelope webhookEnvelope, eventID string, rawBody []byte) (WebhookOutcome, error) {
	entity := envelope.Payload.Payment.Entity
	event := &models.PaymentEvent{
		EventID:       eventID,
		Event:         envelope.Event,
		TransactionID: entity.ID,
		Payload:       rawBody,
	}

	if envelope.Event != EventPaymentCaptured {
		r.logger.Info("webhook acknowledged without action", zap.String("event", envelope.Event), zap.String("event_id", eventID))
		if _, err := r.ledger.RecordPaymentEvent(ctx, event); err != nil {
			return "", err
		}
		return WebhookIgnored, nil
	}

	if entity.ID == "" {
		return "", ValidationError("payment.captured event has no payment id")
	}

	payment, err := r.locatePayment(ctx, entity.OrderID, entity.ID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Error("captured payment for unknown order",
			zap.String("processor_order_id", entity.OrderID),
			zap.String("transaction_id", entity.ID),
			zap.String("operation", "webhook"),
		)
		return "", NotFoundError("no payment found for processor order %q or transaction %q", entity.OrderID, entity.ID)
	}
	if err != nil {
		return "", err
	}

	if noted, ok := entity.Notes["orderId"].(string); ok && noted != "" && noted != payment.OrderID.String() {
		r.logger.Warn("webhook notes order id disagrees with payment",
			zap.String("notes_order_id", noted),
			zap.String("order_id", payment.OrderID.String()),
		)
	}

	if mismatch := captureMismatch(entity.Amount, entity.Currency, payment); mismatch != "" {
		r.logger.Error("captured payment disagrees with order payment",
			zap.String("order_id", payment.OrderID.String()),
			zap.String("transaction_id", entity.ID),
			zap.String("mismatch", mismatch),
			zap.String("operation", "webhook"),
		)
		if _, err := r.ledger.RecordPaymentEvent(ctx, event); err != nil {
			return "", err
		}
		return WebhookMismatch, nil
	}

	result, err := r.markPaid(ctx, payment, entity.ID, "webhook")
	if err != nil {
		return "", err
	}

	event.Applied = result != captureUnchanged
	if _, err := r.ledger.RecordPaymentEvent(ctx, event); err != nil {
		return "", err
	}
	switch result {
	case captureApplied:
		return WebhookApplied, nil
	case captureRefunded:
		return WebhookRefunded, nil
	}
	return WebhookAlreadyPaid, nil
}

// captureMismatch reports how a captured amount or currency differs from the payment.
// Zero and empty values are not compared.
func captureMismatch(amountMinor int64, currency string, payment *models.Payment) string {
	if expected := gateway.ToMinorUnits(payment.Amount); amountMinor != 0 && amountMinor != expected {
		return fmt.Sprintf("amount %d, expected %d", amountMinor, expected)
	}
	if currency != "" && !strings.EqualFold(currency, payment.Currency) {
		return fmt.Sprintf("currency %s, expected %s", currency, payment.Currency)
	}
	return ""
}

func (r *Reconciler) locatePayment(ctx context.Context, processorOrderID, transactionID string) (*models.Payment, error) {
	if processorOrderID != "" {
		payment, err := r.ledger.PaymentByProcessorOrderID(ctx, processorOrderID)
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return payment, err
		}
	}
	return r.ledger.PaymentByTransactionID(ctx, transactionID)
}

type captureResult int

const (
	captureUnchanged captureResult = iota
	captureApplied
	captureRefunded
)

// markPaid locks the order and sets Payment and Order to PAID with conditional updates.
// A capture that lands on an order cancelled in the meantime is refunded in full inside
// the same transaction. A repeat of the same transaction id is captureUnchanged.
func (r *Reconciler) markPaid(ctx context.Context, payment *models.Payment, transactionID, operation string) (captureResult, error) {
	var (
		result  captureResult
		locked  *models.Order
		refund  *models.Refund
		failure *RefundFailure
	)
	err := r.ledger.WithinTx(ctx, func(tx store.Ledger) error {
		order, err := tx.LockOrder(ctx, payment.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("order not found")
		}
		if err != nil {
			return err
		}
		locked = order

		ok, err := tx.MarkPaymentPaid(ctx, payment.ID, transactionID, r.now().UTC())
		if errors.Is(err, store.ErrDuplicate) {
			return ConflictError("transaction %s is already attached to another payment", transactionID)
		}
		if err != nil {
			return err
		}

		if !ok {
			current, err := tx.PaymentByOrder(ctx, payment.OrderID)
			if err != nil {
				return err
			}
			if current.TransactionID != nil && *current.TransactionID != transactionID {
				return ConflictError("order is already paid by another transaction")
			}
			return nil
		}

		switch order.Status {
		case models.OrderStatusPending:
			moved, err := tx.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPaid, models.OrderStatusPending)
			if err != nil {
				return err
			}
			if !moved {
				return ConflictError("order %s changed while being updated", order.ID)
			}
			result = captureApplied
		case models.OrderStatusCancelled:
			plan := ComputeLateCapture(payment, transactionID, r.refunds.hasGateway())
			refund, err = r.refunds.Issue(ctx, tx, order, plan)
			if err != nil {
				if f, ok := asRefundFailure(err); ok {
					failure = f
				}
				return err
			}
			result = captureRefunded
		default:
			r.logger.Warn("payment captured for order that is no longer pending",
				zap.String("order_id", order.ID.String()),
				zap.String("status", string(order.Status)),
				zap.String("transaction_id", transactionID),
				zap.String("operation", operation),
			)
			result = captureApplied
		}
		return nil
	})

	if failure != nil {
		r.recordFailedRefund(ctx, locked, failure, operation)
		return captureUnchanged, UpstreamError(failure.Err, "refund of a payment captured after cancellation failed")
	}
	if err != nil {
		return captureUnchanged, err
	}

	switch result {
	case captureApplied:
		r.logger.Info("payment captured",
			zap.String("order_id", payment.OrderID.String()),
			zap.String("transaction_id", transactionID),
			zap.String("operation", operation),
		)
		if order, err := r.ledger.GetOrder(ctx, payment.OrderID); err == nil && order.Payment != nil {
			r.notifier.NotifyPaymentCaptured(*order, *order.Payment)
		}
	case captureRefunded:
		r.logger.Warn("payment captured after cancellation was refunded",
			zap.String("order_id", payment.OrderID.String()),
			zap.String("transaction_id", transactionID),
			zap.String("refund_status", string(refund.Status)),
			zap.String("operation", operation),
		)
		if order, err := r.ledger.GetOrder(ctx, payment.OrderID); err == nil {
			r.notifier.NotifyRefund(*order, *refund)
		}
	}
	return result, nil
}

func (r *Reconciler) recordFailedRefund(ctx context.Context, order *models.Order, failure *RefundFailure, operation string) {
	record := failure.Record
	if err := r.ledger.CreateRefund(context.WithoutCancel(ctx), &record); err != nil {
		r.logger.Error("failed to record failed refund",
			zap.String("order_id", record.OrderID.String()),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return
	}
	if order != nil {
		r.notifier.NotifyRefund(*order, record)
	}
}
