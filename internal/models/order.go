package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	BaseModel
	UserID      uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	OrderNumber string          `gorm:"uniqueIndex" json:"order_number"`
	AddressID   *uuid.UUID      `gorm:"type:uuid" json:"address_id"`
	Total       decimal.Decimal `gorm:"type:numeric(12,2)" json:"total"`
	Currency    string          `json:"currency"`
	Status      OrderStatus     `gorm:"type:varchar(32);index" json:"status"`
	Items       []OrderItem     `gorm:"constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Payment     *Payment        `json:"payment,omitempty"`
	Refunds     []Refund        `json:"refunds,omitempty"`
}

type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID       `gorm:"type:uuid;index" json:"order_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;index" json:"product_id"`
	Product     *Product        `json:"product,omitempty"`
	ProductType ProductType     `gorm:"type:varchar(16)" json:"product_type"`
	ProductName string          `json:"product_name"`
	Size        string          `json:"size,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2)" json:"unit_price"`
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// IsDigital reports whether the line is a downloadable product.
func (i OrderItem) IsDigital() bool {
	return i.ProductType == ProductTypeDigital
}

// HasDigital reports whether any line is digital.
func (o *Order) HasDigital() bool {
	for _, item := range o.Items {
		if item.IsDigital() {
			return true
		}
	}
	return false
}

// HasPhysical reports whether any line must be shipped.
func (o *Order) HasPhysical() bool {
	for _, item := range o.Items {
		if !item.IsDigital() {
			return true
		}
	}
	return false
}

// IsDigitalOnly is true for a non-empty order with no physical lines.
func (o *Order) IsDigitalOnly() bool {
	return len(o.Items) > 0 && !o.HasPhysical()
}

// PhysicalSubtotal sums the line totals of shippable items.
func (o *Order) PhysicalSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		if !item.IsDigital() {
			sum = sum.Add(item.LineTotal())
		}
	}
	return sum
}

// DigitalSubtotal sums the line totals of downloadable items.
func (o *Order) DigitalSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		if item.IsDigital() {
			sum = sum.Add(item.LineTotal())
		}
	}
	return sum
}
