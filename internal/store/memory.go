package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/orderledger/internal/models"
)

// MemoryLedger is an in-process Ledger for tests and local runs without PostgreSQL.
// A transaction holds the ledger mutex and restores a snapshot when fn fails.
type MemoryLedger struct {
	mu    *sync.Mutex
	state *memoryState
	inTx  bool
}

type memoryState struct {
	data *memoryData
}

type memoryData struct {
	products  map[uuid.UUID]models.Product
	addresses map[uuid.UUID]models.UserAddress
	orders    map[uuid.UUID]models.Order
	items     map[uuid.UUID][]models.OrderItem
	payments  map[uuid.UUID]models.Payment
	refunds   []models.Refund
	details   map[uuid.UUID]models.RefundDetail
	events    map[string]models.PaymentEvent
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		mu: &sync.Mutex{},
		state: &memoryState{data: &memoryData{
			products:  map[uuid.UUID]models.Product{},
			addresses: map[uuid.UUID]models.UserAddress{},
			orders:    map[uuid.UUID]models.Order{},
			items:     map[uuid.UUID][]models.OrderItem{},
			payments:  map[uuid.UUID]models.Payment{},
			details:   map[uuid.UUID]models.RefundDetail{},
			events:    map[string]models.PaymentEvent{},
		}},
	}
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		products:  make(map[uuid.UUID]models.Product, len(d.products)),
		addresses: make(map[uuid.UUID]models.UserAddress, len(d.addresses)),
		orders:    make(map[uuid.UUID]models.Order, len(d.orders)),
		items:     make(map[uuid.UUID][]models.OrderItem, len(d.items)),
		payments:  make(map[uuid.UUID]models.Payment, len(d.payments)),
		refunds:   append([]models.Refund(nil), d.refunds...),
		details:   make(map[uuid.UUID]models.RefundDetail, len(d.details)),
		events:    make(map[string]models.PaymentEvent, len(d.events)),
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.addresses {
		c.addresses[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.items {
		c.items[k] = append([]models.OrderItem(nil), v...)
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.details {
		c.details[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	return c
}

func (m *MemoryLedger) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryLedger) data() *memoryData {
	return m.state.data
}

func stamp(base *models.BaseModel) {
	base.Stamp(time.Now().UTC())
}

// PutProduct seeds or replaces a catalog product.
func (m *MemoryLedger) PutProduct(product models.Product) models.Product {
	defer m.lock()()
	stamp(&product.BaseModel)
	for i := range product.DigitalFiles {
		stamp(&product.DigitalFiles[i].BaseModel)
		product.DigitalFiles[i].ProductID = product.ID
	}
	m.data().products[product.ID] = product
	return product
}

// Product returns the stored product, mainly to assert stock in tests.
func (m *MemoryLedger) Product(id uuid.UUID) (models.Product, bool) {
	defer m.lock()()
	p, ok := m.data().products[id]
	return p, ok
}

func (m *MemoryLedger) WithinTx(ctx context.Context, fn func(tx Ledger) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.data.clone()
	tx := &MemoryLedger{mu: m.mu, state: m.state, inTx: true}
	if err := fn(tx); err != nil {
		m.state.data = snapshot
		return err
	}
	return nil
}

func (m *MemoryLedger) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryLedger) ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	defer m.lock()()
	result := make(map[uuid.UUID]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.data().products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (m *MemoryLedger) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	defer m.lock()()
	p, ok := m.data().products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	m.data().products[productID] = p
	return true, nil
}

func (m *MemoryLedger) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	defer m.lock()()
	if p, ok := m.data().products[productID]; ok {
		p.Stock += qty
		m.data().products[productID] = p
	}
	return nil
}

func (m *MemoryLedger) AddressBelongsTo(ctx context.Context, addressID, userID uuid.UUID) (bool, error) {
	defer m.lock()()
	a, ok := m.data().addresses[addressID]
	return ok && a.UserID == userID, nil
}

func (m *MemoryLedger) ListAddresses(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	defer m.lock()()
	var result []models.UserAddress
	for _, a := range m.data().addresses {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryLedger) CreateAddress(ctx context.Context, address *models.UserAddress) error {
	defer m.lock()()
	stamp(&address.BaseModel)
	m.data().addresses[address.ID] = *address
	return nil
}

func (m *MemoryLedger) DeleteAddress(ctx context.Context, addressID, userID uuid.UUID) (bool, error) {
	defer m.lock()()
	a, ok := m.data().addresses[addressID]
	if !ok || a.UserID != userID {
		return false, nil
	}
	delete(m.data().addresses, addressID)
	return true, nil
}

func (m *MemoryLedger) CreateOrder(ctx context.Context, order *models.Order) error {
	defer m.lock()()
	stamp(&order.BaseModel)
	for _, existing := range m.data().orders {
		if order.OrderNumber != "" && existing.OrderNumber == order.OrderNumber {
			return ErrDuplicate
		}
	}
	for i := range order.Items {
		stamp(&order.Items[i].BaseModel)
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = nil
	stored.Payment = nil
	stored.Refunds = nil
	m.data().orders[order.ID] = stored
	items := make([]models.OrderItem, len(order.Items))
	copy(items, order.Items)
	for i := range items {
		items[i].Product = nil
	}
	m.data().items[order.ID] = items
	return nil
}

func (m *MemoryLedger) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	defer m.lock()()
	o, ok := m.data().orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = append([]models.OrderItem(nil), m.data().items[id]...)
	return &o, nil
}

func (m *MemoryLedger) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	defer m.lock()()
	o, ok := m.data().orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.hydrate(&o, true)
	return &o, nil
}

func (m *MemoryLedger) hydrate(o *models.Order, withRefunds bool) {
	d := m.data()
	o.Items = append([]models.OrderItem(nil), d.items[o.ID]...)
	for i := range o.Items {
		if p, ok := d.products[o.Items[i].ProductID]; ok {
			product := p
			o.Items[i].Product = &product
		}
	}
	for _, p := range d.payments {
		if p.OrderID == o.ID {
			payment := p
			o.Payment = &payment
		}
	}
	if withRefunds {
		for _, r := range d.refunds {
			if r.OrderID == o.ID {
				o.Refunds = append(o.Refunds, r)
			}
		}
	}
}

func (m *MemoryLedger) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, int64, error) {
	defer m.lock()()
	var all []models.Order
	for _, o := range m.data().orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))

	if offset > len(all) {
		offset = len(all)
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page := all[offset:end]
	for i := range page {
		m.hydrate(&page[i], false)
	}
	return page, total, nil
}

func (m *MemoryLedger) UpdateOrderStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus, from ...models.OrderStatus) (bool, error) {
	defer m.lock()()
	o, ok := m.data().orders[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if o.Status == f {
			o.Status = to
			o.UpdatedAt = time.Now().UTC()
			m.data().orders[id] = o
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryLedger) SetOrderStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) error {
	defer m.lock()()
	o, ok := m.data().orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	m.data().orders[id] = o
	return nil
}

func (m *MemoryLedger) CreatePayment(ctx context.Context, payment *models.Payment) error {
	defer m.lock()()
	for _, p := range m.data().payments {
		if p.OrderID == payment.OrderID ||
			sameRef(p.ProcessorOrderID, payment.ProcessorOrderID) ||
			sameRef(p.TransactionID, payment.TransactionID) {
			return ErrDuplicate
		}
	}
	stamp(&payment.BaseModel)
	m.data().payments[payment.ID] = *payment
	return nil
}

func sameRef(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (m *MemoryLedger) findPayment(match func(models.Payment) bool) (*models.Payment, error) {
	for _, p := range m.data().payments {
		if match(p) {
			payment := p
			return &payment, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryLedger) PaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	defer m.lock()()
	return m.findPayment(func(p models.Payment) bool { return p.OrderID == orderID })
}

func (m *MemoryLedger) PaymentByProcessorOrderID(ctx context.Context, processorOrderID string) (*models.Payment, error) {
	defer m.lock()()
	return m.findPayment(func(p models.Payment) bool {
		return p.ProcessorOrderID != nil && *p.ProcessorOrderID == processorOrderID
	})
}

func (m *MemoryLedger) PaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	defer m.lock()()
	return m.findPayment(func(p models.Payment) bool {
		return p.TransactionID != nil && *p.TransactionID == transactionID
	})
}

func (m *MemoryLedger) MarkPaymentPaid(ctx context.Context, paymentID uuid.UUID, transactionID string, paidAt time.Time) (bool, error) {
	defer m.lock()()
	p, ok := m.data().payments[paymentID]
	if !ok || p.Status == models.PaymentStatusPaid {
		return false, nil
	}
	if p.TransactionID != nil && *p.TransactionID != transactionID {
		return false, nil
	}
	if p.TransactionID == nil {
		for id, other := range m.data().payments {
			if id != paymentID && other.TransactionID != nil && *other.TransactionID == transactionID {
				return false, ErrDuplicate
			}
		}
		txn := transactionID
		p.TransactionID = &txn
	}
	p.Status = models.PaymentStatusPaid
	paid := paidAt
	p.PaidAt = &paid
	p.UpdatedAt = time.Now().UTC()
	m.data().payments[paymentID] = p
	return true, nil
}

func (m *MemoryLedger) CreateRefund(ctx context.Context, refund *models.Refund) error {
	defer m.lock()()
	stamp(&refund.BaseModel)
	m.data().refunds = append(m.data().refunds, *refund)
	return nil
}

func (m *MemoryLedger) RefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	defer m.lock()()
	var result []models.Refund
	for _, r := range m.data().refunds {
		if r.OrderID == orderID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MemoryLedger) PendingPayouts(ctx context.Context) ([]PendingPayout, error) {
	defer m.lock()()
	var result []PendingPayout
	for _, r := range m.data().refunds {
		if r.Status != models.RefundStatusManual {
			continue
		}
		payout := PendingPayout{Refund: r}
		if d, ok := m.data().details[r.OrderID]; ok {
			if d.DeletedAt.Valid {
				continue
			}
			detail := d
			payout.Detail = &detail
		}
		result = append(result, payout)
	}
	return result, nil
}

func (m *MemoryLedger) CreateRefundDetail(ctx context.Context, detail *models.RefundDetail) error {
	defer m.lock()()
	if _, exists := m.data().details[detail.OrderID]; exists {
		return ErrDuplicate
	}
	if detail.ID == uuid.Nil {
		detail.ID = uuid.New()
	}
	if detail.CreatedAt.IsZero() {
		detail.CreatedAt = time.Now().UTC()
	}
	m.data().details[detail.OrderID] = *detail
	return nil
}

func (m *MemoryLedger) RefundDetailByOrder(ctx context.Context, orderID uuid.UUID) (*models.RefundDetail, error) {
	defer m.lock()()
	d, ok := m.data().details[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryLedger) ListPendingRefundDetails(ctx context.Context) ([]models.RefundDetail, error) {
	defer m.lock()()
	var result []models.RefundDetail
	for _, d := range m.data().details {
		if !d.DeletedAt.Valid {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryLedger) CompleteRefundDetail(ctx context.Context, orderID uuid.UUID) (bool, error) {
	defer m.lock()()
	d, ok := m.data().details[orderID]
	if !ok || d.DeletedAt.Valid {
		return false, nil
	}
	d.DeletedAt.Time = time.Now().UTC()
	d.DeletedAt.Valid = true
	m.data().details[orderID] = d
	return true, nil
}

func (m *MemoryLedger) PurgeRefundDetail(ctx context.Context, orderID uuid.UUID) (bool, error) {
	defer m.lock()()
	if _, ok := m.data().details[orderID]; !ok {
		return false, nil
	}
	delete(m.data().details, orderID)
	return true, nil
}

func (m *MemoryLedger) RecordPaymentEvent(ctx context.Context, event *models.PaymentEvent) (bool, error) {
	defer m.lock()()
	if _, exists := m.data().events[event.EventID]; exists {
		return false, nil
	}
	stamp(&event.BaseModel)
	m.data().events[event.EventID] = *event
	return true, nil
}
