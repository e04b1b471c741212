package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/orderledger/internal/models"
)

// GormLedger implements Ledger on PostgreSQL through gorm.
// The connection must be opened with TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger wraps an open connection.
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (g *GormLedger) conn(ctx context.Context) *gorm.DB {
	return g.db.WithContext(ctx)
}

// WithinTx runs fn in a database transaction; any error rolls everything back.
func (g *GormLedger) WithinTx(ctx context.Context, fn func(tx Ledger) error) error {
	return g.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormLedger{db: tx})
	})
}

// Ping checks the underlying connection.
func (g *GormLedger) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormLedger) ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	result := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var products []models.Product
	if err := g.conn(ctx).Preload("DigitalFiles").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (g *GormLedger) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := g.conn(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (g *GormLedger) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return g.conn(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", qty)).Error
}

func (g *GormLedger) AddressBelongsTo(ctx context.Context, addressID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := g.conn(ctx).Model(&models.UserAddress{}).
		Where("id = ? AND user_id = ?", addressID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (g *GormLedger) ListAddresses(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	var addresses []models.UserAddress
	if err := g.conn(ctx).Where("user_id = ?", userID).Order("created_at").Find(&addresses).Error; err != nil {
		return nil, err
	}
	return addresses, nil
}

func (g *GormLedger) CreateAddress(ctx context.Context, address *models.UserAddress) error {
	return g.conn(ctx).Create(address).Error
}

func (g *GormLedger) DeleteAddress(ctx context.Context, addressID, userID uuid.UUID) (bool, error) {
	res := g.conn(ctx).Where("id = ? AND user_id = ?", addressID, userID).Delete(&models.UserAddress{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *GormLedger) CreateOrder(ctx context.Context, order *models.Order) error {
	return g.conn(ctx).Create(order).Error
}

func (g *GormLedger) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := g.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	if err := g.conn(ctx).Where("order_id = ?", id).Order("created_at").Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (g *GormLedger) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := g.conn(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Preload("Items.Product.DigitalFiles").
		Preload("Payment").
		Preload("Refunds", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (g *GormLedger) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, int64, error) {
	query := g.conn(ctx).Model(&models.Order{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if err := query.
		Preload("Items").
		Preload("Items.Product.DigitalFiles").
		Preload("Payment").
		Order("created_at desc").
		Limit(limit).Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (g *GormLedger) UpdateOrderStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus, from ...models.OrderStatus) (bool, error) {
	res := g.conn(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (g *GormLedger) SetOrderStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) error {
	res := g.conn(ctx).Model(&models.Order{}).Where("id = ?", id).Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormLedger) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return translate(g.conn(ctx).Create(payment).Error)
}

func (g *GormLedger) PaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return g.findPayment(ctx, "order_id = ?", orderID)
}

func (g *GormLedger) PaymentByProcessorOrderID(ctx context.Context, processorOrderID string) (*models.Payment, error) {
	return g.findPayment(ctx, "processor_order_id = ?", processorOrderID)
}

func (g *GormLedger) PaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return g.findPayment(ctx, "transaction_id = ?", transactionID)
}

func (g *GormLedger) findPayment(ctx context.Context, query string, arg any) (*models.Payment, error) {
	var payment models.Payment
	if err := g.conn(ctx).Where(query, arg).First(&payment).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

func (g *GormLedger) MarkPaymentPaid(ctx context.Context, paymentID uuid.UUID, transactionID string, paidAt time.Time) (bool, error) {
	res := g.conn(ctx).Model(&models.Payment{}).
		Where("id = ? AND status <> ?", paymentID, models.PaymentStatusPaid).
		Where("transaction_id IS NULL OR transaction_id = ?", transactionID).
		Updates(map[string]any{
			"status":         models.PaymentStatusPaid,
			"paid_at":        paidAt,
			"transaction_id": transactionID,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (g *GormLedger) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return g.conn(ctx).Create(refund).Error
}

func (g *GormLedger) RefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	var refunds []models.Refund
	if err := g.conn(ctx).Where("order_id = ?", orderID).Order("created_at").Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}

func (g *GormLedger) PendingPayouts(ctx context.Context) ([]PendingPayout, error) {
	var refunds []models.Refund
	if err := g.conn(ctx).
		Where("status = ?", models.RefundStatusManual).
		Where("NOT EXISTS (SELECT 1 FROM refund_details d WHERE d.order_id = refunds.order_id AND d.deleted_at IS NOT NULL)").
		Order("created_at").
		Find(&refunds).Error; err != nil {
		return nil, err
	}
	if len(refunds) == 0 {
		return nil, nil
	}

	orderIDs := make([]uuid.UUID, 0, len(refunds))
	for _, r := range refunds {
		orderIDs = append(orderIDs, r.OrderID)
	}

	var details []models.RefundDetail
	if err := g.conn(ctx).Where("order_id IN ?", orderIDs).Find(&details).Error; err != nil {
		return nil, err
	}
	byOrder := make(map[uuid.UUID]models.RefundDetail, len(details))
	for _, d := range details {
		byOrder[d.OrderID] = d
	}

	result := make([]PendingPayout, 0, len(refunds))
	for _, r := range refunds {
		payout := PendingPayout{Refund: r}
		if d, ok := byOrder[r.OrderID]; ok {
			detail := d
			payout.Detail = &detail
		}
		result = append(result, payout)
	}
	return result, nil
}

func (g *GormLedger) CreateRefundDetail(ctx context.Context, detail *models.RefundDetail) error {
	return translate(g.conn(ctx).Create(detail).Error)
}

func (g *GormLedger) RefundDetailByOrder(ctx context.Context, orderID uuid.UUID) (*models.RefundDetail, error) {
	var detail models.RefundDetail
	if err := g.conn(ctx).Unscoped().Where("order_id = ?", orderID).First(&detail).Error; err != nil {
		return nil, translate(err)
	}
	return &detail, nil
}

func (g *GormLedger) ListPendingRefundDetails(ctx context.Context) ([]models.RefundDetail, error) {
	var details []models.RefundDetail
	if err := g.conn(ctx).Order("created_at").Find(&details).Error; err != nil {
		return nil, err
	}
	return details, nil
}

func (g *GormLedger) CompleteRefundDetail(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := g.conn(ctx).Where("order_id = ?", orderID).Delete(&models.RefundDetail{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *GormLedger) PurgeRefundDetail(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := g.conn(ctx).Unscoped().Where("order_id = ?", orderID).Delete(&models.RefundDetail{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *GormLedger) RecordPaymentEvent(ctx context.Context, event *models.PaymentEvent) (bool, error) {
	res := g.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
