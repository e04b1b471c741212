package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderAPI struct {
	got  map[string]interface{}
	resp map[string]interface{}
	err  error
}

func (f *fakeOrderAPI) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.got = data
	return f.resp, f.err
}

type fakePaymentAPI struct {
	paymentID string
	amount    int
	resp      map[string]interface{}
	err       error
}

func (f *fakePaymentAPI) Refund(paymentID string, amount int, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.paymentID = paymentID
	f.amount = amount
	return f.resp, f.err
}

func newTestRazorpay(t *testing.T, orders *fakeOrderAPI, payments *fakePaymentAPI) *Razorpay {
	t.Helper()
	gw, err := NewRazorpay(RazorpayConfig{clients: &razorpayClients{orders: orders, payments: payments}})
	require.NoError(t, err)
	return gw
}

func TestNewRazorpayRequiresCredentials(t *testing.T) {
	_, err := NewRazorpay(RazorpayConfig{KeyID: "rzp_test"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestRazorpayCreateOrder(t *testing.T) {
	orders := &fakeOrderAPI{resp: map[string]interface{}{"id": "order_abc", "amount": float64(130000), "currency": "INR"}}
	gw := newTestRazorpay(t, orders, &fakePaymentAPI{})

	got, err := gw.CreateOrder(context.Background(), 130000, "INR", "#000000001", map[string]string{"orderId": "o-1"})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", got.ID)
	assert.Equal(t, int64(130000), got.AmountMinor)
	assert.Equal(t, int64(130000), orders.got["amount"])
	assert.Equal(t, "#000000001", orders.got["receipt"])
}

func TestRazorpayCreateOrderMissingID(t *testing.T) {
	gw := newTestRazorpay(t, &fakeOrderAPI{resp: map[string]interface{}{}}, &fakePaymentAPI{})

	_, err := gw.CreateOrder(context.Background(), 100, "INR", "r", nil)
	require.Error(t, err)
}

func TestRazorpayRefund(t *testing.T) {
	payments := &fakePaymentAPI{resp: map[string]interface{}{"id": "rfnd_1", "amount": float64(100000), "status": "processed"}}
	gw := newTestRazorpay(t, &fakeOrderAPI{}, payments)

	got, err := gw.Refund(context.Background(), "pay_1", 100000, nil)
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", got.ID)
	assert.Equal(t, "pay_1", payments.paymentID)
	assert.Equal(t, 100000, payments.amount)
}

func TestRazorpayRefundError(t *testing.T) {
	gw := newTestRazorpay(t, &fakeOrderAPI{}, &fakePaymentAPI{err: errors.New("BAD_REQUEST_ERROR")})

	_, err := gw.Refund(context.Background(), "pay_1", 100, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAD_REQUEST_ERROR")
}

func TestRazorpayRefundHonoursCancelledContext(t *testing.T) {
	payments := &fakePaymentAPI{}
	gw := newTestRazorpay(t, &fakeOrderAPI{}, payments)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.Refund(ctx, "pay_1", 100, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, payments.paymentID)
}
