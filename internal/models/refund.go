package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Refund is an append-only record of one refund attempt.
type Refund struct {
	BaseModel
	OrderID             uuid.UUID       `gorm:"type:uuid;index" json:"order_id"`
	Scenario            RefundScenario  `gorm:"type:varchar(16)" json:"scenario"`
	Amount              decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Deduction           decimal.Decimal `gorm:"type:numeric(12,2)" json:"deduction"`
	Reason              string          `json:"reason"`
	Status              RefundStatus    `gorm:"type:varchar(16);index" json:"status"`
	RefundTransactionID *string         `json:"refund_transaction_id,omitempty"`
}

// RefundDetail holds payout instructions for refunds settled by an operator.
// A non-null DeletedAt means the payout was completed.
type RefundDetail struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID       uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	UserID        uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	UPIID         string         `json:"upi_id,omitempty"`
	AccountNumber string         `json:"account_number,omitempty"`
	IFSC          string         `json:"ifsc,omitempty"`
	BankName      string         `json:"bank_name,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate assigns the primary key.
func (d *RefundDetail) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
