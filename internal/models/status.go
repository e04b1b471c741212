package models

import "fmt"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPaid            OrderStatus = "PAID"
	OrderStatusProcessing      OrderStatus = "PROCESSING"
	OrderStatusShipped         OrderStatus = "SHIPPED"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturned        OrderStatus = "RETURNED"
)

var orderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:         {},
	OrderStatusPaid:            {},
	OrderStatusProcessing:      {},
	OrderStatusShipped:         {},
	OrderStatusDelivered:       {},
	OrderStatusCancelled:       {},
	OrderStatusReturnRequested: {},
	OrderStatusReturned:        {},
}

// ParseOrderStatus rejects any value outside the closed status set.
func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(value)
	if _, ok := orderStatuses[status]; !ok {
		return "", fmt.Errorf("unknown order status %q", value)
	}
	return status, nil
}

// ProductType distinguishes shippable goods from downloadable ones.
type ProductType string

const (
	ProductTypePhysical ProductType = "physical"
	ProductTypeDigital  ProductType = "digital"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	PaymentMethodCOD      PaymentMethod = "COD"
)

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// RefundStatus records how a refund attempt ended.
type RefundStatus string

const (
	RefundStatusProcessed RefundStatus = "PROCESSED"
	RefundStatusManual    RefundStatus = "MANUAL"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// RefundScenario is the policy branch that produced a refund.
type RefundScenario string

const (
	RefundScenarioCancellation RefundScenario = "cancellation"
	RefundScenarioReturn       RefundScenario = "return"
)
