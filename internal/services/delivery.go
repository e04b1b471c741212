package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/store"
)

// DefaultDownloadWindow is how long a paid digital file stays downloadable.
const DefaultDownloadWindow = time.Hour

// DownloadLink is listing metadata for one digital file. It never carries a URL.
type DownloadLink struct {
	OrderItemID           uuid.UUID `json:"orderItemId"`
	ProductID             uuid.UUID `json:"productId"`
	FileID                uuid.UUID `json:"fileId"`
	FileName              string    `json:"fileName"`
	DownloadAvailableAt   time.Time `json:"downloadAvailableAt"`
	DownloadExpirySeconds int64     `json:"downloadExpirySeconds"`
	Active                bool      `json:"active"`
}

// Requester identifies the caller of an order read.
type Requester struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// CanRead reports whether the requester owns the order or is an administrator.
func (r Requester) CanRead(order *models.Order) bool {
	return r.IsAdmin || order.UserID == r.UserID
}

// DownloadGrant is an authorized file download.
type DownloadGrant struct {
	OrderID   uuid.UUID
	File      models.DigitalFile
	ExpiresAt time.Time
}

// DeliveryAuthorizer decides when digital files may be downloaded.
type DeliveryAuthorizer struct {
	ledger store.Ledger
	window time.Duration
	now    func() time.Time
}

// NewDeliveryAuthorizer builds an authorizer. Zero window means DefaultDownloadWindow.
func NewDeliveryAuthorizer(ledger store.Ledger, window time.Duration, now func() time.Time) *DeliveryAuthorizer {
	if window <= 0 {
		window = DefaultDownloadWindow
	}
	if now == nil {
		now = time.Now
	}
	return &DeliveryAuthorizer{ledger: ledger, window: window, now: now}
}

func downloadableStatus(status models.OrderStatus) bool {
	return status == models.OrderStatusPaid || status == models.OrderStatusDelivered
}

// AvailableAt is the payment confirmation time, or order creation when there is none.
func AvailableAt(order *models.Order) time.Time {
	if order.Payment != nil && order.Payment.PaidAt != nil {
		return *order.Payment.PaidAt
	}
	return order.CreatedAt
}

// InWindow reports availableAt <= now < availableAt+window.
func InWindow(availableAt, now time.Time, window time.Duration) bool {
	return !now.Before(availableAt) && now.Before(availableAt.Add(window))
}

// Links lists download metadata for every digital file of a paid or delivered order.
func (a *DeliveryAuthorizer) Links(order *models.Order) []DownloadLink {
	links := []DownloadLink{}
	if order == nil || !downloadableStatus(order.Status) {
		return links
	}

	availableAt := AvailableAt(order)
	active := InWindow(availableAt, a.now(), a.window)
	for _, item := range order.Items {
		if !item.IsDigital() || item.Product == nil {
			continue
		}
		for _, file := range item.Product.DigitalFiles {
			links = append(links, DownloadLink{
				OrderItemID:           item.ID,
				ProductID:             item.ProductID,
				FileID:                file.ID,
				FileName:              file.FileName,
				DownloadAvailableAt:   availableAt,
				DownloadExpirySeconds: int64(a.window / time.Second),
				Active:                active,
			})
		}
	}
	return links
}

// Authorize re-checks ownership, status, file membership and the time window at call time.
func (a *DeliveryAuthorizer) Authorize(ctx context.Context, requester Requester, orderID, fileID uuid.UUID) (*DownloadGrant, error) {
	order, err := a.ledger.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError("order not found")
	}
	if err != nil {
		return nil, err
	}

	if !requester.CanRead(order) {
		return nil, ForbiddenError("you do not have access to this order")
	}

	file, ok := findDigitalFile(order, fileID)
	if !ok {
		return nil, NotFoundError("file not found in this order")
	}

	if !downloadableStatus(order.Status) {
		return nil, NotFoundError("download is not available for order in status %s", order.Status)
	}

	availableAt := AvailableAt(order)
	now := a.now()
	if now.Before(availableAt) {
		return nil, NotFoundError("download is not available yet")
	}
	if !InWindow(availableAt, now, a.window) {
		return nil, NotFoundError("download window has expired")
	}

	return &DownloadGrant{
		OrderID:   order.ID,
		File:      file,
		ExpiresAt: availableAt.Add(a.window),
	}, nil
}

func findDigitalFile(order *models.Order, fileID uuid.UUID) (models.DigitalFile, bool) {
	for _, item := range order.Items {
		if !item.IsDigital() || item.Product == nil {
			continue
		}
		for _, file := range item.Product.DigitalFiles {
			if file.ID == fileID {
				return file, true
			}
		}
	}
	return models.DigitalFile{}, false
}
