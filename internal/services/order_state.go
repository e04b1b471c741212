package services

import "github.com/example/orderledger/internal/models"

// transitions lists the user-facing status edges. Administrative overwrite bypasses it.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:         {models.OrderStatusPaid, models.OrderStatusCancelled},
	models.OrderStatusPaid:            {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing:      {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:         {models.OrderStatusDelivered},
	models.OrderStatusDelivered:       {models.OrderStatusReturnRequested},
	models.OrderStatusReturnRequested: {models.OrderStatusReturned},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkCancellable(order *models.Order) error {
	if order.Status == models.OrderStatusDelivered && order.HasDigital() {
		return ValidationError("delivered orders with digital items cannot be cancelled")
	}
	if !CanTransition(order.Status, models.OrderStatusCancelled) {
		return ValidationError("order in status %s cannot be cancelled", order.Status)
	}
	return nil
}

func checkReturnable(order *models.Order) error {
	if order.HasDigital() {
		return ValidationError("orders with digital items cannot be returned")
	}
	if order.Status != models.OrderStatusDelivered {
		return ValidationError("only delivered orders can be returned, order is %s", order.Status)
	}
	return nil
}

func checkReturnConfirmable(order *models.Order) error {
	if order.Status != models.OrderStatusReturnRequested {
		return ValidationError("order in status %s has no pending return", order.Status)
	}
	if order.IsDigitalOnly() {
		return ValidationError("digital-only orders cannot be returned")
	}
	return nil
}
