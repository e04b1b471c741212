package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/gateway"
	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/store"
)

// DefaultReturnDeduction is the handling fee kept on confirmed returns.
var DefaultReturnDeduction = decimal.NewFromInt(100)

// OrderServiceConfig wires the order service.
type OrderServiceConfig struct {
	Ledger          store.Ledger
	Gateway         gateway.Gateway
	Validator       *Validator
	Refunds         *RefundCalculator
	Delivery        *DeliveryAuthorizer
	Notifier        Notifier
	Logger          *zap.Logger
	Currency        string
	ReturnDeduction *decimal.Decimal
	SupportContact  string
	GatewayTimeout  time.Duration
}

// OrderService owns order creation and every status transition.
type OrderService struct {
	ledger    store.Ledger
	gateway   gateway.Gateway
	validator *Validator
	refunds   *RefundCalculator
	delivery  *DeliveryAuthorizer
	notifier  Notifier
	logger    *zap.Logger
	currency  string
	deduction decimal.Decimal
	support   string

	gatewayTimeout time.Duration
}

// NewOrderService builds an OrderService, filling defaults for optional collaborators.
func NewOrderService(cfg OrderServiceConfig) *OrderService {
	s := &OrderService{
		ledger:    cfg.Ledger,
		gateway:   cfg.Gateway,
		validator: cfg.Validator,
		refunds:   cfg.Refunds,
		delivery:  cfg.Delivery,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		currency:  cfg.Currency,
		deduction: DefaultReturnDeduction,
		support:   cfg.SupportContact,

		gatewayTimeout: cfg.GatewayTimeout,
	}
	if cfg.ReturnDeduction != nil {
		s.deduction = *cfg.ReturnDeduction
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.validator == nil {
		s.validator = NewValidator()
	}
	if s.gatewayTimeout <= 0 {
		s.gatewayTimeout = DefaultGatewayTimeout
	}
	if s.refunds == nil {
		s.refunds = NewRefundCalculator(cfg.Gateway, s.logger).WithTimeout(s.gatewayTimeout)
	}
	if s.delivery == nil {
		s.delivery = NewDeliveryAuthorizer(cfg.Ledger, DefaultDownloadWindow, nil)
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	if s.currency == "" {
		s.currency = "INR"
	}
	if s.support == "" {
		s.support = "support"
	}
	return s
}

// OrderView is an order as returned to its reader.
type OrderView struct {
	Order         *models.Order  `json:"order"`
	DownloadLinks []DownloadLink `json:"downloadLinks"`
}

// CreatedOrder is the result of placing an order.
type CreatedOrder struct {
	Order            *models.Order
	Payment          *models.Payment
	ProcessorOrderID string
	AmountMinor      int64
	Currency         string
	DownloadLinks    []DownloadLink
}

// TransitionResult is an order after cancel or return handling with the refund it produced.
type TransitionResult struct {
	Order  *models.Order
	Refund *models.Refund
}

// CreateRazorpay quotes the cart, opens the processor order outside any transaction and then
// places the order against it. The cart is validated again under the stock updates; a total
// that moved in between aborts with a conflict and the unused processor order expires unpaid.
func (s *OrderService) CreateRazorpay(ctx context.Context, in CreateOrderInput) (*CreatedOrder, error) {
	if s.gateway == nil {
		return nil, ConfigurationError("payment processor is not configured")
	}

	quote, err := s.validator.Validate(ctx, s.ledger, in, models.PaymentMethodRazorpay)
	if err != nil {
		return nil, err
	}
	if !quote.Total.IsPositive() {
		return nil, ValidationError("order total must be positive for online payment")
	}

	id := uuid.New()
	number := generateOrderNumber(id)
	processorOrder, err := s.openProcessorOrder(ctx, id, number, quote.Total)
	if err != nil {
		return nil, err
	}

	var created CreatedOrder
	err = s.ledger.WithinTx(ctx, func(tx store.Ledger) error {
		elig, err := s.validator.Validate(ctx, tx, in, models.PaymentMethodRazorpay)
		if err != nil {
			return err
		}
		if !elig.Total.Equal(quote.Total) {
			return ConflictError("order total changed from %s to %s, please retry", quote.Total.StringFixed(2), elig.Total.StringFixed(2))
		}

		order, err := s.placeOrder(ctx, tx, id, number, in, elig)
		if err != nil {
			return err
		}

		payment := &models.Payment{
			OrderID:          order.ID,
			Amount:           order.Total,
			Currency:         order.Currency,
			Method:           models.PaymentMethodRazorpay,
			Status:           models.PaymentStatusPending,
			ProcessorOrderID: &processorOrder.ID,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		order.Payment = payment
		created = CreatedOrder{
			Order:            order,
			Payment:          payment,
			ProcessorOrderID: processorOrder.ID,
			AmountMinor:      processorOrder.AmountMinor,
			Currency:         processorOrder.Currency,
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("processor order left unused",
			zap.String("order_id", id.String()),
			zap.String("processor_order_id", processorOrder.ID),
			zap.Error(err),
		)
		return nil, err
	}

	created.DownloadLinks = s.delivery.Links(created.Order)
	s.logger.Info("order placed",
		zap.String("order_id", created.Order.ID.String()),
		zap.String("method", string(models.PaymentMethodRazorpay)),
		zap.String("total", created.Order.Total.StringFixed(2)),
	)
	s.notifier.NotifyOrderPlaced(*created.Order, models.PaymentMethodRazorpay)
	return &created, nil
}

func (s *OrderService) openProcessorOrder(ctx context.Context, id uuid.UUID, number string, total decimal.Decimal) (gateway.ProcessorOrder, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	processorOrder, err := s.gateway.CreateOrder(callCtx, gateway.ToMinorUnits(total), s.currency, number, map[string]string{
		"orderId": id.String(),
	})
	if err != nil {
		s.logger.Error("processor order create failed",
			zap.String("order_id", id.String()),
			zap.String("operation", "create_razorpay"),
			zap.Error(err),
		)
		return gateway.ProcessorOrder{}, UpstreamError(err, "could not start payment, please retry or contact %s", s.support)
	}
	return processorOrder, nil
}

// CreateCOD places a cash-on-delivery order. Its payment stays UNPAID until settled.
func (s *OrderService) CreateCOD(ctx context.Context, in CreateOrderInput) (*CreatedOrder, error) {
	var created CreatedOrder
	err := s.ledger.WithinTx(ctx, func(tx store.Ledger) error {
		elig, err := s.validator.Validate(ctx, tx, in, models.PaymentMethodCOD)
		if err != nil {
			return err
		}

		id := uuid.New()
		order, err := s.placeOrder(ctx, tx, id, generateOrderNumber(id), in, elig)
		if err != nil {
			return err
		}

		payment := &models.Payment{
			OrderID:  order.ID,
			Amount:   order.Total,
			Currency: order.Currency,
			Method:   models.PaymentMethodCOD,
			Status:   models.PaymentStatusUnpaid,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		order.Payment = payment
		created = CreatedOrder{
			Order:       order,
			Payment:     payment,
			AmountMinor: gateway.ToMinorUnits(order.Total),
			Currency:    order.Currency,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created.DownloadLinks = s.delivery.Links(created.Order)
	s.logger.Info("order placed",
		zap.String("order_id", created.Order.ID.String()),
		zap.String("method", string(models.PaymentMethodCOD)),
		zap.String("total", created.Order.Total.StringFixed(2)),
	)
	s.notifier.NotifyOrderPlaced(*created.Order, models.PaymentMethodCOD)
	return &created, nil
}

func (s *OrderService) placeOrder(ctx context.Context, tx store.Ledger, id uuid.UUID, number string, in CreateOrderInput, elig *Eligibility) (*models.Order, error) {
	for _, productID := range sortedKeys(elig.Reserve) {
		ok, err := tx.DecrementStock(ctx, productID, elig.Reserve[productID])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ConflictError("product %s went out of stock", productID)
		}
	}

	order := &models.Order{
		BaseModel:   models.BaseModel{ID: id},
		UserID:      in.UserID,
		OrderNumber: number,
		AddressID:   in.AddressID,
		Total:       elig.Total,
		Currency:    s.currency,
		Status:      models.OrderStatusPending,
		Items:       elig.Items,
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel cancels an order and refunds its physical subtotal when it was paid.
func (s *OrderService) Cancel(ctx context.Context, requester Requester, orderID uuid.UUID, reason string) (*TransitionResult, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by customer"
	}
	return s.transitionWithRefund(ctx, orderID, "cancel", func(tx store.Ledger, order *models.Order, payment *models.Payment) (*RefundPlan, models.OrderStatus, error) {
		if !requester.CanRead(order) {
			return nil, "", ForbiddenError("you do not have access to this order")
		}
		if err := checkCancellable(order); err != nil {
			return nil, "", err
		}
		plan, err := ComputeCancellation(order, payment, reason)
		return plan, models.OrderStatusCancelled, err
	})
}

// ConfirmReturn completes a requested return and refunds total minus the handling deduction.
func (s *OrderService) ConfirmReturn(ctx context.Context, orderID uuid.UUID, reason string) (*TransitionResult, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "return confirmed"
	}
	return s.transitionWithRefund(ctx, orderID, "confirm_return", func(tx store.Ledger, order *models.Order, payment *models.Payment) (*RefundPlan, models.OrderStatus, error) {
		if err := checkReturnConfirmable(order); err != nil {
			return nil, "", err
		}
		plan, err := ComputeReturn(order, payment, s.deduction, reason)
		return plan, models.OrderStatusReturned, err
	})
}

type refundPolicy func(tx store.Ledger, order *models.Order, payment *models.Payment) (*RefundPlan, models.OrderStatus, error)

// transitionWithRefund locks the order, issues the refund and moves the status in one
// transaction. Physical stock is put back. A processor failure rolls everything back and
// leaves only a FAILED refund record.
func (s *OrderService) transitionWithRefund(ctx context.Context, orderID uuid.UUID, operation string, policy refundPolicy) (*TransitionResult, error) {
	var (
		locked  *models.Order
		refund  *models.Refund
		failure *RefundFailure
	)
	err := s.ledger.WithinTx(ctx, func(tx store.Ledger) error {
		order, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("order not found")
		}
		if err != nil {
			return err
		}
		locked = order

		payment, err := tx.PaymentByOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			payment = nil
		} else if err != nil {
			return err
		}

		plan, next, err := policy(tx, order, payment)
		if err != nil {
			return err
		}

		refund, err = s.refunds.Issue(ctx, tx, order, plan)
		if err != nil {
			if f, ok := asRefundFailure(err); ok {
				failure = f
			}
			return err
		}

		moved, err := tx.UpdateOrderStatus(ctx, orderID, next, order.Status)
		if err != nil {
			return err
		}
		if !moved {
			return ConflictError("order %s changed while being updated", orderID)
		}

		for _, item := range order.Items {
			if item.IsDigital() {
				continue
			}
			if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})

	if failure != nil {
		s.recordFailedRefund(ctx, locked, failure, operation)
		return nil, UpstreamError(failure.Err, "refund could not be processed, the order was not changed; please contact %s", s.support)
	}
	if err != nil {
		return nil, err
	}

	order, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order transitioned",
		zap.String("order_id", orderID.String()),
		zap.String("operation", operation),
		zap.String("status", string(order.Status)),
	)
	if refund != nil {
		s.notifier.NotifyRefund(*order, *refund)
	}
	return &TransitionResult{Order: order, Refund: refund}, nil
}

func (s *OrderService) recordFailedRefund(ctx context.Context, order *models.Order, failure *RefundFailure, operation string) {
	record := failure.Record
	if err := s.ledger.CreateRefund(context.WithoutCancel(ctx), &record); err != nil {
		s.logger.Error("failed to record failed refund",
			zap.String("order_id", record.OrderID.String()),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return
	}
	if order != nil {
		s.notifier.NotifyRefund(*order, record)
	}
}

// RequestReturn moves a delivered physical order to RETURN_REQUESTED.
func (s *OrderService) RequestReturn(ctx context.Context, requester Requester, orderID uuid.UUID, reason string) (*models.Order, error) {
	err := s.ledger.WithinTx(ctx, func(tx store.Ledger) error {
		order, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("order not found")
		}
		if err != nil {
			return err
		}
		if !requester.CanRead(order) {
			return ForbiddenError("you do not have access to this order")
		}
		if err := checkReturnable(order); err != nil {
			return err
		}

		moved, err := tx.UpdateOrderStatus(ctx, orderID, models.OrderStatusReturnRequested, models.OrderStatusDelivered)
		if err != nil {
			return err
		}
		if !moved {
			return ConflictError("order %s changed while being updated", orderID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("return requested", zap.String("order_id", orderID.String()), zap.String("reason", reason))
	return s.ledger.GetOrder(ctx, orderID)
}

// AdminSetStatus overwrites the status without consulting the transition table.
func (s *OrderService) AdminSetStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	if err := s.ledger.SetOrderStatus(ctx, orderID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("order not found")
		}
		return nil, err
	}
	s.logger.Info("order status overwritten",
		zap.String("order_id", orderID.String()),
		zap.String("status", string(status)),
	)
	return s.ledger.GetOrder(ctx, orderID)
}

// Get returns one order with its download metadata.
func (s *OrderService) Get(ctx context.Context, requester Requester, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.ledger.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError("order not found")
	}
	if err != nil {
		return nil, err
	}
	if !requester.CanRead(order) {
		return nil, ForbiddenError("you do not have access to this order")
	}
	return &OrderView{Order: order, DownloadLinks: s.delivery.Links(order)}, nil
}

// List returns a page of the user's orders, newest first.
func (s *OrderService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]OrderView, int64, error) {
	orders, total, err := s.ledger.ListOrdersByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	views := make([]OrderView, 0, len(orders))
	for i := range orders {
		order := &orders[i]
		views = append(views, OrderView{Order: order, DownloadLinks: s.delivery.Links(order)})
	}
	return views, total, nil
}

func generateOrderNumber(id uuid.UUID) string {
	return fmt.Sprintf("#%d%s", time.Now().Year()%100, strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10]))
}
