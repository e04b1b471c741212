package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/store"
)

// OrderLine is one requested product with quantity.
type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int
	Size      string
}

// CreateOrderInput is the caller's order request.
type CreateOrderInput struct {
	UserID    uuid.UUID
	AddressID *uuid.UUID
	Items     []OrderLine
	// ClaimedTotal is the client's total; it must match the priced lines when present.
	ClaimedTotal *decimal.Decimal
}

// Eligibility is a validated, priced order ready to persist.
type Eligibility struct {
	Items []models.OrderItem
	Total decimal.Decimal
	// Reserve holds the physical quantity per product that must be taken from stock.
	Reserve map[uuid.UUID]int
}

// Validator checks product availability, digital/physical mix and address rules.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate prices the request against the catalog. Stock is only read here; the
// conditional decrement happens when the order is written.
func (v *Validator) Validate(ctx context.Context, ledger store.Ledger, in CreateOrderInput, method models.PaymentMethod) (*Eligibility, error) {
	if len(in.Items) == 0 {
		return nil, ValidationError("order must contain at least one item")
	}

	ids := make([]uuid.UUID, 0, len(in.Items))
	seen := make(map[uuid.UUID]bool, len(in.Items))
	for _, line := range in.Items {
		if line.ProductID == uuid.Nil {
			return nil, ValidationError("product id is required")
		}
		if line.Quantity <= 0 {
			return nil, ValidationError("quantity must be positive")
		}
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}

	products, err := ledger.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &Eligibility{Total: decimal.Zero, Reserve: map[uuid.UUID]int{}}
	hasDigital, hasPhysical := false, false
	for _, line := range in.Items {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, NotFoundError("product %s not found", line.ProductID)
		}
		if product.IsDigital() {
			hasDigital = true
		} else {
			hasPhysical = true
			result.Reserve[product.ID] += line.Quantity
		}

		item := models.OrderItem{
			ProductID:   product.ID,
			ProductType: productTypeOf(product),
			ProductName: product.Name,
			Size:        line.Size,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
		}
		result.Total = result.Total.Add(item.LineTotal())
		result.Items = append(result.Items, item)
	}

	if method == models.PaymentMethodCOD && hasDigital {
		return nil, ValidationError("cash on delivery is not available for orders with digital items")
	}

	switch {
	case hasPhysical && in.AddressID == nil:
		return nil, ValidationError("address is required for physical items")
	case !hasPhysical && in.AddressID != nil:
		return nil, ValidationError("address not required for digital-only orders")
	case in.AddressID != nil:
		owned, err := ledger.AddressBelongsTo(ctx, *in.AddressID, in.UserID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, NotFoundError("address not found")
		}
	}

	for _, productID := range sortedKeys(result.Reserve) {
		if products[productID].Stock < result.Reserve[productID] {
			return nil, ValidationError("insufficient stock for %s", products[productID].Name)
		}
	}

	if in.ClaimedTotal != nil && !in.ClaimedTotal.Equal(result.Total) {
		return nil, ValidationError("order total %s does not match item prices %s", in.ClaimedTotal.StringFixed(2), result.Total.StringFixed(2))
	}

	return result, nil
}

func productTypeOf(p models.Product) models.ProductType {
	if p.IsDigital() {
		return models.ProductTypeDigital
	}
	return models.ProductTypePhysical
}

// sortedKeys gives a stable lock order for stock rows.
func sortedKeys(m map[uuid.UUID]int) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
