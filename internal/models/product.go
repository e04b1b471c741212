package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog entry as seen by the order engine. The catalog owns writes.
type Product struct {
	BaseModel
	Name         string          `json:"name"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2)" json:"price"`
	Stock        int             `json:"stock"`
	ProductType  ProductType     `gorm:"type:varchar(16);default:physical" json:"product_type"`
	DigitalFiles []DigitalFile   `json:"digital_files,omitempty"`
}

// IsDigital reports whether the product is delivered as files.
func (p Product) IsDigital() bool {
	return p.ProductType == ProductTypeDigital
}

// DigitalFile points at an object held by the file storage service.
type DigitalFile struct {
	BaseModel
	ProductID       uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	StoragePublicID string    `json:"storage_public_id"`
	FileName        string    `json:"file_name"`
}
