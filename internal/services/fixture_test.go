package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/example/orderledger/internal/gateway"
	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/store"
)

const (
	testKeySecret     = "key-secret"
	testWebhookSecret = "webhook-secret"
)

type refundCall struct {
	PaymentID   string
	AmountMinor int64
}

type fakeGateway struct {
	mu        sync.Mutex
	next      int
	orders    []gateway.ProcessorOrder
	refunds   []refundCall
	orderErr  error
	refundErr error
	// stall makes every call block until its context is done.
	stall bool
	// onCreate runs before a processor order is opened.
	onCreate func()
}

func (g *fakeGateway) wait(ctx context.Context) error {
	g.mu.Lock()
	stall := g.stall
	g.mu.Unlock()
	if !stall {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, _ map[string]string) (gateway.ProcessorOrder, error) {
	if g.onCreate != nil {
		g.onCreate()
	}
	if err := g.wait(ctx); err != nil {
		return gateway.ProcessorOrder{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orderErr != nil {
		return gateway.ProcessorOrder{}, g.orderErr
	}
	g.next++
	order := gateway.ProcessorOrder{ID: fmt.Sprintf("order_%d", g.next), AmountMinor: amountMinor, Currency: currency, Receipt: receipt}
	g.orders = append(g.orders, order)
	return order, nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, _ map[string]string) (gateway.RefundResult, error) {
	if err := g.wait(ctx); err != nil {
		return gateway.RefundResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return gateway.RefundResult{}, g.refundErr
	}
	g.refunds = append(g.refunds, refundCall{PaymentID: paymentID, AmountMinor: amountMinor})
	return gateway.RefundResult{ID: fmt.Sprintf("rfnd_%d", len(g.refunds)), AmountMinor: amountMinor, Status: "processed"}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	placed   int
	captured int
	refunds  []models.Refund
}

func (n *recordingNotifier) NotifyOrderPlaced(models.Order, models.PaymentMethod) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed++
}

func (n *recordingNotifier) NotifyPaymentCaptured(models.Order, models.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.captured++
}

func (n *recordingNotifier) NotifyRefund(_ models.Order, refund models.Refund) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunds = append(n.refunds, refund)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	ledger     *store.MemoryLedger
	gateway    *fakeGateway
	notifier   *recordingNotifier
	clock      *testClock
	delivery   *DeliveryAuthorizer
	orders     *OrderService
	reconciler *Reconciler
	details    *RefundDetailsService
	user       uuid.UUID
	address    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ledger := store.NewMemoryLedger()
	gw := &fakeGateway{}
	notifier := &recordingNotifier{}
	clock := &testClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	delivery := NewDeliveryAuthorizer(ledger, time.Hour, clock.Now)
	refunds := NewRefundCalculator(gw, nil)

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		ledger:   ledger,
		gateway:  gw,
		notifier: notifier,
		clock:    clock,
		delivery: delivery,
		user:     uuid.New(),
	}
	f.orders = NewOrderService(OrderServiceConfig{
		Ledger:         ledger,
		Gateway:        gw,
		Refunds:        refunds,
		Delivery:       delivery,
		Notifier:       notifier,
		Currency:       "INR",
		SupportContact: "support@example.com",
	})
	f.reconciler = NewReconciler(ReconcilerConfig{
		Ledger:        ledger,
		Delivery:      delivery,
		Refunds:       refunds,
		Notifier:      notifier,
		KeySecret:     testKeySecret,
		WebhookSecret: testWebhookSecret,
		Clock:         clock.Now,
	})
	f.details = NewRefundDetailsService(ledger, nil)

	address := &models.UserAddress{UserID: f.user, AddressLine: "12 MG Road", City: "Bengaluru"}
	require.NoError(t, ledger.CreateAddress(f.ctx, address))
	f.address = address.ID
	return f
}

func (f *fixture) physical(price string, stock int) models.Product {
	return f.ledger.PutProduct(models.Product{
		Name:        "Tee " + price,
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		ProductType: models.ProductTypePhysical,
	})
}

func (f *fixture) digital(price string) models.Product {
	return f.ledger.PutProduct(models.Product{
		Name:        "Ebook " + price,
		Price:       decimal.RequireFromString(price),
		ProductType: models.ProductTypeDigital,
		DigitalFiles: []models.DigitalFile{
			{StoragePublicID: "files/ebook-" + price + ".pdf", FileName: "ebook.pdf"},
		},
	})
}

func (f *fixture) requester() Requester {
	return Requester{UserID: f.user}
}

func (f *fixture) stock(id uuid.UUID) int {
	p, ok := f.ledger.Product(id)
	require.True(f.t, ok)
	return p.Stock
}

// mixedCart is one physical item (qty 2, price 500) and one digital item (price 300).
func (f *fixture) mixedCart() (CreateOrderInput, models.Product, models.Product) {
	tee := f.physical("500", 10)
	book := f.digital("300")
	addr := f.address
	return CreateOrderInput{
		UserID:    f.user,
		AddressID: &addr,
		Items: []OrderLine{
			{ProductID: tee.ID, Quantity: 2, Size: "M"},
			{ProductID: book.ID, Quantity: 1},
		},
	}, tee, book
}

// pay confirms the processor order through the client callback.
func (f *fixture) pay(created *CreatedOrder, paymentID string) *OrderView {
	f.t.Helper()
	view, err := f.reconciler.VerifyPayment(f.ctx, VerifyPaymentInput{
		ProcessorOrderID: created.ProcessorOrderID,
		PaymentID:        paymentID,
		Signature:        gateway.Sign(testKeySecret, []byte(created.ProcessorOrderID+"|"+paymentID)),
		OrderID:          created.Order.ID,
		Requester:        f.requester(),
	})
	require.NoError(f.t, err)
	return view
}

func (f *fixture) paidOrder(in CreateOrderInput) *CreatedOrder {
	f.t.Helper()
	created, err := f.orders.CreateRazorpay(f.ctx, in)
	require.NoError(f.t, err)
	f.pay(created, "pay_"+created.Order.ID.String()[:8])
	return created
}

func (f *fixture) order(id uuid.UUID) *models.Order {
	f.t.Helper()
	order, err := f.ledger.GetOrder(f.ctx, id)
	require.NoError(f.t, err)
	return order
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "unexpected error: %v", err)
}
