package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orderledger/internal/models"
)

func mixedOrder(physical, digital string) *models.Order {
	p := decimal.RequireFromString(physical)
	d := decimal.RequireFromString(digital)
	return &models.Order{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Total:     p.Add(d),
		Items: []models.OrderItem{
			{ProductType: models.ProductTypePhysical, Quantity: 2, UnitPrice: p.Div(decimal.NewFromInt(2))},
			{ProductType: models.ProductTypeDigital, Quantity: 1, UnitPrice: d},
		},
	}
}

func paidPayment(method models.PaymentMethod, txn string) *models.Payment {
	p := &models.Payment{Method: method, Status: models.PaymentStatusPaid}
	if txn != "" {
		p.TransactionID = &txn
	}
	return p
}

func TestComputeCancellationRefundsPhysicalSubtotalOnly(t *testing.T) {
	order := mixedOrder("1000", "300")

	plan, err := ComputeCancellation(order, paidPayment(models.PaymentMethodRazorpay, "pay_1"), "changed mind")

	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, plan.Amount.Equal(decimal.NewFromInt(1000)), "got %s", plan.Amount)
	assert.True(t, plan.Deduction.IsZero())
	assert.True(t, plan.ViaProcessor)
	assert.Equal(t, "pay_1", plan.TransactionID)
	assert.Equal(t, models.RefundScenarioCancellation, plan.Scenario)
}

func TestComputeCancellationNothingToRefund(t *testing.T) {
	order := mixedOrder("1000", "300")

	plan, err := ComputeCancellation(order, &models.Payment{Method: models.PaymentMethodRazorpay, Status: models.PaymentStatusPending}, "")
	require.NoError(t, err)
	assert.Nil(t, plan)

	plan, err = ComputeCancellation(order, nil, "")
	require.NoError(t, err)
	assert.Nil(t, plan)

	digitalOnly := mixedOrder("0", "300")
	digitalOnly.Items = digitalOnly.Items[1:]
	plan, err = ComputeCancellation(digitalOnly, paidPayment(models.PaymentMethodRazorpay, "pay_1"), "")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestComputeCancellationWithoutTransactionID(t *testing.T) {
	_, err := ComputeCancellation(mixedOrder("1000", "0"), paidPayment(models.PaymentMethodRazorpay, ""), "")

	requireKind(t, err, KindConfiguration)
}

func TestComputeCancellationCODIsManual(t *testing.T) {
	plan, err := ComputeCancellation(mixedOrder("1000", "0"), paidPayment(models.PaymentMethodCOD, ""), "")

	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.False(t, plan.ViaProcessor)
	assert.True(t, plan.Amount.Equal(decimal.NewFromInt(1000)))
}

func TestComputeReturnClampsAtZero(t *testing.T) {
	order := &models.Order{Total: decimal.NewFromInt(50)}

	plan, err := ComputeReturn(order, paidPayment(models.PaymentMethodRazorpay, "pay_1"), decimal.NewFromInt(100), "")

	require.NoError(t, err)
	assert.True(t, plan.Amount.IsZero(), "got %s", plan.Amount)
	assert.False(t, plan.Amount.IsNegative())
	assert.True(t, plan.Deduction.Equal(decimal.NewFromInt(100)))
}

func TestComputeReturnSubtractsDeduction(t *testing.T) {
	order := &models.Order{Total: decimal.RequireFromString("1000.50")}

	plan, err := ComputeReturn(order, paidPayment(models.PaymentMethodRazorpay, "pay_1"), decimal.NewFromInt(100), "")
	require.NoError(t, err)
	assert.True(t, plan.Amount.Equal(decimal.RequireFromString("900.50")))
	assert.True(t, plan.ViaProcessor)

	plan, err = ComputeReturn(order, &models.Payment{Method: models.PaymentMethodCOD, Status: models.PaymentStatusUnpaid}, decimal.NewFromInt(100), "")
	require.NoError(t, err)
	assert.False(t, plan.ViaProcessor)
}
