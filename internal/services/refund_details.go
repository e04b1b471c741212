package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/store"
)

// RefundDetailsInput is the payout instruction a customer submits for a manual refund.
type RefundDetailsInput struct {
	OrderID       uuid.UUID
	UPIID         string
	AccountNumber string
	IFSC          string
	BankName      string
}

// RefundDetailsService collects and clears payout instructions.
type RefundDetailsService struct {
	ledger store.Ledger
	logger *zap.Logger
}

// NewRefundDetailsService builds a RefundDetailsService.
func NewRefundDetailsService(ledger store.Ledger, logger *zap.Logger) *RefundDetailsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefundDetailsService{ledger: ledger, logger: logger}
}

// Submit stores payout instructions once per order. The unique index on order_id decides
// duplicates.
func (s *RefundDetailsService) Submit(ctx context.Context, requester Requester, in RefundDetailsInput) (*models.RefundDetail, error) {
	detail := &models.RefundDetail{
		OrderID:       in.OrderID,
		UPIID:         strings.TrimSpace(in.UPIID),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		IFSC:          strings.ToUpper(strings.TrimSpace(in.IFSC)),
		BankName:      strings.TrimSpace(in.BankName),
	}
	hasBank := detail.AccountNumber != "" && detail.IFSC != "" && detail.BankName != ""
	if detail.UPIID == "" && !hasBank {
		return nil, ValidationError("provide a UPI id or account number, IFSC and bank name")
	}

	order, err := s.ledger.GetOrder(ctx, in.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError("order not found")
	}
	if err != nil {
		return nil, err
	}
	if !requester.CanRead(order) {
		return nil, ForbiddenError("you do not have access to this order")
	}
	detail.UserID = order.UserID

	if err := s.ledger.CreateRefundDetail(ctx, detail); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ConflictError("refund details already submitted for this order")
		}
		return nil, err
	}
	s.logger.Info("refund details submitted", zap.String("order_id", in.OrderID.String()))
	return detail, nil
}

// ListPending returns payout instructions that have not been cleared.
func (s *RefundDetailsService) ListPending(ctx context.Context) ([]models.RefundDetail, error) {
	return s.ledger.ListPendingRefundDetails(ctx)
}

// Complete marks the payout for the order as done.
func (s *RefundDetailsService) Complete(ctx context.Context, orderID uuid.UUID) error {
	ok, err := s.ledger.CompleteRefundDetail(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return NotFoundError("no pending refund details for order %s", orderID)
	}
	s.logger.Info("manual refund completed", zap.String("order_id", orderID.String()))
	return nil
}

// Purge removes the refund details row permanently.
func (s *RefundDetailsService) Purge(ctx context.Context, orderID uuid.UUID) error {
	ok, err := s.ledger.PurgeRefundDetail(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return NotFoundError("refund details for order %s not found", orderID)
	}
	s.logger.Info("refund details purged", zap.String("order_id", orderID.String()))
	return nil
}

// PendingPayouts lists MANUAL refunds still waiting on an operator.
func (s *RefundDetailsService) PendingPayouts(ctx context.Context) ([]store.PendingPayout, error) {
	return s.ledger.PendingPayouts(ctx)
}
