package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/services"
	"github.com/example/orderledger/internal/storage"
	"github.com/example/orderledger/internal/utils"
)

// OrderHandler manages customer order endpoints.
type OrderHandler struct {
	orders        *services.OrderService
	refundDetails *services.RefundDetailsService
	delivery      *services.DeliveryAuthorizer
	files         storage.FileStore
	logger        *zap.Logger
}

// NewOrderHandler constructs OrderHandler. files may be nil when no bucket is configured.
func NewOrderHandler(orders *services.OrderService, refundDetails *services.RefundDetailsService, delivery *services.DeliveryAuthorizer, files storage.FileStore, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{
		orders:        orders,
		refundDetails: refundDetails,
		delivery:      delivery,
		files:         files,
		logger:        logger,
	}
}

type orderLineRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Size      string `json:"size"`
}

type createOrderRequest struct {
	AddressID *string            `json:"addressId" validate:"omitempty,uuid"`
	Items     []orderLineRequest `json:"items" validate:"required,min=1,dive"`
	Total     *decimal.Decimal   `json:"total"`
}

func (r createOrderRequest) toInput(userID uuid.UUID) services.CreateOrderInput {
	in := services.CreateOrderInput{UserID: userID, ClaimedTotal: r.Total}
	if r.AddressID != nil && *r.AddressID != "" {
		id := uuid.MustParse(*r.AddressID)
		in.AddressID = &id
	}
	for _, line := range r.Items {
		in.Items = append(in.Items, services.OrderLine{
			ProductID: uuid.MustParse(line.ProductID),
			Quantity:  line.Quantity,
			Size:      line.Size,
		})
	}
	return in
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CreateRazorpayOrder places an order paid through the processor checkout.
func (h *OrderHandler) CreateRazorpayOrder(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}

	var req createOrderRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	created, err := h.orders.CreateRazorpay(c.UserContext(), req.toInput(requester.UserID))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"orderId":         created.Order.ID,
			"orderNumber":     created.Order.OrderNumber,
			"razorpayOrderId": created.ProcessorOrderID,
			"amount":          created.AmountMinor,
			"currency":        created.Currency,
			"downloadLinks":   created.DownloadLinks,
		},
	})
}

// CreateCODOrder places a cash on delivery order.
func (h *OrderHandler) CreateCODOrder(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}

	var req createOrderRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	created, err := h.orders.CreateCOD(c.UserContext(), req.toInput(requester.UserID))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"orderId":       created.Order.ID,
			"orderNumber":   created.Order.OrderNumber,
			"status":        created.Order.Status,
			"total":         created.Order.Total,
			"currency":      created.Currency,
			"downloadLinks": created.DownloadLinks,
		},
	})
}

// ListOrders returns orders for the authenticated user.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}

	page := utils.ParsePage(c)
	views, total, err := h.orders.List(c.UserContext(), requester.UserID, page.Size, page.Offset())
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       views,
		"pagination": page.Meta(total),
	})
}

// GetOrder returns a single order readable by the caller.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	view, err := h.orders.Get(c.UserContext(), requester, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": view})
}

// CancelOrder cancels the order and refunds whatever policy allows.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	result, err := h.orders.Cancel(c.UserContext(), requester, id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order":  result.Order,
			"refund": result.Refund,
		},
	})
}

// RequestReturn asks for a return of a delivered order.
func (h *OrderHandler) RequestReturn(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	order, err := h.orders.RequestReturn(c.UserContext(), requester, id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

type refundDetailsRequest struct {
	OrderID       string `json:"orderId" validate:"required,uuid"`
	UPIID         string `json:"upiId" validate:"max=100"`
	AccountNumber string `json:"accountNumber" validate:"max=34"`
	IFSC          string `json:"ifsc" validate:"max=11"`
	BankName      string `json:"bankName" validate:"max=100"`
}

// SubmitRefundDetails stores payout instructions for a manual refund.
func (h *OrderHandler) SubmitRefundDetails(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}

	var req refundDetailsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	detail, err := h.refundDetails.Submit(c.UserContext(), requester, services.RefundDetailsInput{
		OrderID:       uuid.MustParse(req.OrderID),
		UPIID:         req.UPIID,
		AccountNumber: req.AccountNumber,
		IFSC:          req.IFSC,
		BankName:      req.BankName,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": detail})
}

// Download streams a purchased digital file while its window is open.
func (h *OrderHandler) Download(c *fiber.Ctx) error {
	requester, err := currentRequester(c)
	if err != nil {
		return err
	}
	orderID, err := parseIDParam(c, "orderId")
	if err != nil {
		return err
	}
	fileID, err := parseIDParam(c, "fileId")
	if err != nil {
		return err
	}

	grant, err := h.delivery.Authorize(c.UserContext(), requester, orderID, fileID)
	if err != nil {
		return err
	}
	if h.files == nil {
		return services.ConfigurationError("file storage is not configured")
	}

	object, err := h.files.Open(c.UserContext(), grant.File.StoragePublicID)
	if errors.Is(err, storage.ErrObjectNotFound) {
		h.logger.Error("digital file missing from storage",
			zap.String("order_id", orderID.String()),
			zap.String("file_id", fileID.String()),
			zap.String("operation", "download"),
		)
		return services.NotFoundError("file not found")
	}
	if err != nil {
		return err
	}

	c.Attachment(grant.File.FileName)
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set("X-Download-Expires-At", strconv.FormatInt(grant.ExpiresAt.Unix(), 10))
	size := int(object.ContentLength)
	if size <= 0 {
		size = -1
	}
	return c.SendStream(object.Body, size)
}
