package services

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orderledger/internal/gateway"
	"github.com/example/orderledger/internal/models"
)

func TestConcurrentOrdersDoNotOversell(t *testing.T) {
	f := newFixture(t)
	tee := f.physical("250", 1)
	addr := f.address
	in := CreateOrderInput{
		UserID:    f.user,
		AddressID: &addr,
		Items:     []OrderLine{{ProductID: tee.ID, Quantity: 1}},
	}

	const buyers = 20
	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orders.CreateCOD(f.ctx, in)
		}(i)
	}
	wg.Wait()

	placed := 0
	for _, err := range errs {
		if err == nil {
			placed++
			continue
		}
		assert.Contains(t, []ErrorKind{KindValidation, KindConflict}, KindOf(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, placed)
	assert.Equal(t, 0, f.stock(tee.ID))
	_, total, err := f.orders.List(f.ctx, f.user, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestConcurrentCallbackAndWebhookPayOnce(t *testing.T) {
	f := newFixture(t)
	in, _, _ := f.mixedCart()
	created, err := f.orders.CreateRazorpay(f.ctx, in)
	require.NoError(t, err)
	body := capturedBody(created.ProcessorOrderID, "pay_W", "")
	sig := gateway.Sign(testWebhookSecret, body)
	verify := VerifyPaymentInput{
		ProcessorOrderID: created.ProcessorOrderID,
		PaymentID:        "pay_W",
		Signature:        gateway.Sign(testKeySecret, []byte(created.ProcessorOrderID+"|pay_W")),
		OrderID:          created.Order.ID,
		Requester:        f.requester(),
	}

	const rounds = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errs     []error
		outcomes []WebhookOutcome
	)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.reconciler.VerifyPayment(f.ctx, verify)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
		go func(i int) {
			defer wg.Done()
			outcome, err := f.reconciler.HandleWebhook(f.ctx, body, sig, fmt.Sprintf("evt_%d", i))
			mu.Lock()
			errs = append(errs, err)
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	for _, outcome := range outcomes {
		assert.Contains(t, []WebhookOutcome{WebhookApplied, WebhookAlreadyPaid}, outcome)
	}
	order := f.order(created.Order.ID)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.Payment.Status)
	assert.Equal(t, "pay_W", *order.Payment.TransactionID)
	assert.Equal(t, 1, f.notifier.captured)
}

func TestConcurrentCancelAndCaptureRefundOnce(t *testing.T) {
	f := newFixture(t)
	in, _, _ := f.mixedCart()
	created, err := f.orders.CreateRazorpay(f.ctx, in)
	require.NoError(t, err)
	body := capturedBody(created.ProcessorOrderID, "pay_race", "")

	var (
		wg         sync.WaitGroup
		cancelErr  error
		webhookErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = f.orders.Cancel(f.ctx, f.requester(), created.Order.ID, "")
	}()
	go func() {
		defer wg.Done()
		_, webhookErr = f.reconciler.HandleWebhook(f.ctx, body, gateway.Sign(testWebhookSecret, body), "evt_race")
	}()
	wg.Wait()

	require.NoError(t, cancelErr)
	require.NoError(t, webhookErr)
	order := f.order(created.Order.ID)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.Payment.Status)
	require.Len(t, order.Refunds, 1)
	assert.Equal(t, models.RefundStatusProcessed, order.Refunds[0].Status)
	assert.Len(t, f.gateway.refunds, 1)
}
