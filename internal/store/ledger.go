package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/orderledger/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("store: duplicate record")
)

// PendingPayout is a MANUAL refund whose payout instructions have not been cleared yet.
type PendingPayout struct {
	Refund models.Refund
	Detail *models.RefundDetail
}

// Ledger is the durable record of orders, payments and refunds.
// Implementations must make every call made through the tx handle of WithinTx atomic.
type Ledger interface {
	WithinTx(ctx context.Context, fn func(tx Ledger) error) error
	Ping(ctx context.Context) error

	ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error

	AddressBelongsTo(ctx context.Context, addressID, userID uuid.UUID) (bool, error)
	ListAddresses(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error)
	CreateAddress(ctx context.Context, address *models.UserAddress) error
	DeleteAddress(ctx context.Context, addressID, userID uuid.UUID) (bool, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	// LockOrder loads the order with its items for update.
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// GetOrder loads the order with items, products, digital files, payment and refunds.
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, int64, error)
	// UpdateOrderStatus moves the order only if it is still in one of the from states.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus, from ...models.OrderStatus) (bool, error)
	SetOrderStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	PaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	PaymentByProcessorOrderID(ctx context.Context, processorOrderID string) (*models.Payment, error)
	PaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	// MarkPaymentPaid sets PAID only if the payment is not PAID yet and carries no other
	// transaction id.
	MarkPaymentPaid(ctx context.Context, paymentID uuid.UUID, transactionID string, paidAt time.Time) (bool, error)

	CreateRefund(ctx context.Context, refund *models.Refund) error
	RefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
	PendingPayouts(ctx context.Context) ([]PendingPayout, error)

	CreateRefundDetail(ctx context.Context, detail *models.RefundDetail) error
	RefundDetailByOrder(ctx context.Context, orderID uuid.UUID) (*models.RefundDetail, error)
	ListPendingRefundDetails(ctx context.Context) ([]models.RefundDetail, error)
	CompleteRefundDetail(ctx context.Context, orderID uuid.UUID) (bool, error)
	PurgeRefundDetail(ctx context.Context, orderID uuid.UUID) (bool, error)

	// RecordPaymentEvent returns false when the event id was already stored.
	RecordPaymentEvent(ctx context.Context, event *models.PaymentEvent) (bool, error)
}
