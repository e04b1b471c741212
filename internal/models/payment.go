package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment is the single settlement record of an order.
type Payment struct {
	BaseModel
	OrderID          uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Currency         string          `json:"currency"`
	Method           PaymentMethod   `gorm:"type:varchar(16)" json:"method"`
	Status           PaymentStatus   `gorm:"type:varchar(16);index" json:"status"`
	ProcessorOrderID *string         `gorm:"uniqueIndex" json:"processor_order_id,omitempty"`
	TransactionID    *string         `gorm:"uniqueIndex" json:"transaction_id,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
}

// PaymentEvent is the delivery log of verified processor webhooks.
type PaymentEvent struct {
	BaseModel
	EventID       string         `gorm:"uniqueIndex" json:"event_id"`
	Event         string         `gorm:"index" json:"event"`
	TransactionID string         `gorm:"index" json:"transaction_id"`
	Applied       bool           `json:"applied"`
	Payload       datatypes.JSON `json:"payload"`
}
