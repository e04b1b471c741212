package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orderledger/internal/config"
	"github.com/example/orderledger/internal/gateway"
	"github.com/example/orderledger/internal/handlers"
	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/services"
	"github.com/example/orderledger/internal/storage"
	"github.com/example/orderledger/internal/store"
	"github.com/example/orderledger/internal/utils"
)

const (
	jwtSecret     = "jwt-secret"
	keySecret     = "key-secret"
	webhookSecret = "webhook-secret"
)

type stubGateway struct {
	mu   sync.Mutex
	next int
}

func (g *stubGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string, _ map[string]string) (gateway.ProcessorOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return gateway.ProcessorOrder{ID: fmt.Sprintf("order_%d", g.next), AmountMinor: amountMinor, Currency: currency, Receipt: receipt}, nil
}

func (g *stubGateway) Refund(_ context.Context, _ string, amountMinor int64, _ map[string]string) (gateway.RefundResult, error) {
	return gateway.RefundResult{ID: "rfnd_1", AmountMinor: amountMinor, Status: "processed"}, nil
}

type memoryFiles map[string][]byte

func (m memoryFiles) Open(_ context.Context, key string) (*storage.Object, error) {
	data, ok := m[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.Object{Body: io.NopCloser(bytes.NewReader(data)), ContentLength: int64(len(data))}, nil
}

type server struct {
	t      *testing.T
	app    *fiber.App
	ledger *store.MemoryLedger
	user   uuid.UUID
	book   models.Product
	tee    models.Product
	addr   uuid.UUID
}

func newServer(t *testing.T) *server {
	t.Helper()

	ledger := store.NewMemoryLedger()
	gw := &stubGateway{}
	delivery := services.NewDeliveryAuthorizer(ledger, time.Hour, time.Now)
	orders := services.NewOrderService(services.OrderServiceConfig{
		Ledger:   ledger,
		Gateway:  gw,
		Delivery: delivery,
		Currency: "INR",
	})
	reconciler := services.NewReconciler(services.ReconcilerConfig{
		Ledger:        ledger,
		Delivery:      delivery,
		KeySecret:     keySecret,
		WebhookSecret: webhookSecret,
	})

	book := ledger.PutProduct(models.Product{
		Name:        "Field Guide",
		Price:       decimal.NewFromInt(300),
		ProductType: models.ProductTypeDigital,
		DigitalFiles: []models.DigitalFile{
			{StoragePublicID: "guides/field.pdf", FileName: "field-guide.pdf"},
		},
	})
	tee := ledger.PutProduct(models.Product{
		Name:        "Tee",
		Price:       decimal.NewFromInt(500),
		Stock:       5,
		ProductType: models.ProductTypePhysical,
	})

	user := uuid.New()
	address := &models.UserAddress{UserID: user, AddressLine: "12 MG Road", City: "Bengaluru"}
	require.NoError(t, ledger.CreateAddress(context.Background(), address))

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(nil)})
	Register(app, &config.Config{JWTSecret: jwtSecret}, Services{
		Orders:        orders,
		Reconciler:    reconciler,
		RefundDetails: services.NewRefundDetailsService(ledger, nil),
		Addresses:     services.NewAddressService(ledger),
		Delivery:      delivery,
		Files:         memoryFiles{"guides/field.pdf": []byte("%PDF-1.7 field guide")},
		Health:        ledger,
	})

	return &server{t: t, app: app, ledger: ledger, user: user, book: book, tee: tee, addr: address.ID}
}

func (s *server) token(userID uuid.UUID, role string) string {
	token, err := utils.GenerateToken(jwtSecret, userID, role, time.Hour)
	require.NoError(s.t, err)
	return token
}

func (s *server) do(method, path, token string, body any, headers ...string) (*http.Response, map[string]any) {
	s.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		require.NoError(s.t, json.Unmarshal(raw, &decoded))
	} else {
		decoded = map[string]any{"raw": string(raw)}
	}
	return resp, decoded
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

// buyBook places a razorpay order for the digital product and captures it by webhook.
func (s *server) buyBook() string {
	s.t.Helper()
	userToken := s.token(s.user, "")

	resp, body := s.do(http.MethodPost, "/order/razorpay", userToken, map[string]any{
		"items": []map[string]any{{"productId": s.book.ID.String(), "quantity": 1}},
		"total": "300",
	})
	require.Equal(s.t, fiber.StatusCreated, resp.StatusCode, body)
	created := data(body)
	orderID := created["orderId"].(string)
	assert.Equal(s.t, float64(30000), created["amount"])
	assert.Equal(s.t, "INR", created["currency"])
	assert.Empty(s.t, created["downloadLinks"])

	webhook := []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":%q,"notes":{"orderId":%q}}}}}`,
		created["razorpayOrderId"], orderID))
	resp, body = s.do(http.MethodPost, "/payment/webhook", "", webhook,
		"X-Razorpay-Signature", gateway.Sign(webhookSecret, webhook),
		"X-Razorpay-Event-Id", "evt_1",
	)
	require.Equal(s.t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(s.t, string(services.WebhookApplied), data(body)["outcome"])
	return orderID
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	resp, _ := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newServer(t)
	resp, body := s.do(http.MethodGet, "/order", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/nope", "/payment/unknown", "/catalog/items"} {
		resp, body := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "NOT_FOUND", errorCode(body), path)
	}

	resp, _ := s.do(http.MethodGet, "/profile/addresses", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/admin/refunds/pending", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestDigitalPurchaseAndDownload(t *testing.T) {
	s := newServer(t)
	orderID := s.buyBook()
	userToken := s.token(s.user, "")

	resp, body := s.do(http.MethodGet, "/order/"+orderID, userToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	view := data(body)
	order := view["order"].(map[string]any)
	assert.Equal(t, "PAID", order["status"])
	links := view["downloadLinks"].([]any)
	require.Len(t, links, 1)
	link := links[0].(map[string]any)
	assert.Equal(t, true, link["active"])
	assert.Equal(t, float64(3600), link["downloadExpirySeconds"])

	fileID := s.book.DigitalFiles[0].ID.String()
	resp, body = s.do(http.MethodGet, "/order/download/"+orderID+"/"+fileID, userToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, fiber.MIMEOctetStream, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `attachment; filename="field-guide.pdf"`)
	assert.Equal(t, "%PDF-1.7 field guide", body["raw"])

	stranger := s.token(uuid.New(), "")
	resp, body = s.do(http.MethodGet, "/order/download/"+orderID+"/"+fileID, stranger, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	admin := s.token(uuid.New(), utils.RoleAdmin)
	resp, _ = s.do(http.MethodGet, "/order/download/"+orderID+"/"+fileID, admin, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = s.do(http.MethodGet, "/order/download/"+orderID+"/"+uuid.NewString(), userToken, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestDownloadBeforePaymentIsNotFound(t *testing.T) {
	s := newServer(t)
	userToken := s.token(s.user, "")

	resp, body := s.do(http.MethodPost, "/order/razorpay", userToken, map[string]any{
		"items": []map[string]any{{"productId": s.book.ID.String(), "quantity": 1}},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	orderID := data(body)["orderId"].(string)

	resp, _ = s.do(http.MethodGet, "/order/download/"+orderID+"/"+s.book.DigitalFiles[0].ID.String(), userToken, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestWebhookRejectsBadSignatureAndAbsorbsDuplicates(t *testing.T) {
	s := newServer(t)
	body := []byte(`{"event":"payment.captured"}`)

	resp, decoded := s.do(http.MethodPost, "/payment/webhook", "", body, "X-Razorpay-Signature", "deadbeef")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(decoded))

	other := []byte(`{"event":"refund.processed"}`)
	sig := gateway.Sign(webhookSecret, other)
	resp, decoded = s.do(http.MethodPost, "/payment/webhook", "", other, "X-Razorpay-Signature", sig, "X-Razorpay-Event-Id", "evt_9")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, string(services.WebhookIgnored), data(decoded)["outcome"])
}

func TestCODRejectsDigitalItems(t *testing.T) {
	s := newServer(t)
	resp, body := s.do(http.MethodPost, "/order/cod", s.token(s.user, ""), map[string]any{
		"items": []map[string]any{{"productId": s.book.ID.String(), "quantity": 1}},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", errorCode(body))
}

func TestCreateOrderValidatesBody(t *testing.T) {
	s := newServer(t)
	resp, body := s.do(http.MethodPost, "/order/cod", s.token(s.user, ""), map[string]any{
		"items": []map[string]any{{"productId": "nope", "quantity": 0}},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", errorCode(body))
}

func TestCODCancelAndRefundDetails(t *testing.T) {
	s := newServer(t)
	userToken := s.token(s.user, "")

	resp, body := s.do(http.MethodPost, "/order/cod", userToken, map[string]any{
		"addressId": s.addr.String(),
		"items":     []map[string]any{{"productId": s.tee.ID.String(), "quantity": 2, "size": "L"}},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	orderID := data(body)["orderId"].(string)
	assert.Equal(t, "PENDING", data(body)["status"])

	product, _ := s.ledger.Product(s.tee.ID)
	assert.Equal(t, 3, product.Stock)

	resp, body = s.do(http.MethodPost, "/order/cancel/"+orderID, userToken, map[string]any{"reason": "changed my mind"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	result := data(body)
	assert.Equal(t, "CANCELLED", result["order"].(map[string]any)["status"])
	assert.Nil(t, result["refund"])

	product, _ = s.ledger.Product(s.tee.ID)
	assert.Equal(t, 5, product.Stock)

	resp, body = s.do(http.MethodPost, "/order/cancel/"+orderID, userToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	details := map[string]any{"orderId": orderID, "upiId": "buyer@upi"}
	resp, _ = s.do(http.MethodPost, "/order/refund-details", userToken, details)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, body = s.do(http.MethodPost, "/order/refund-details", userToken, details)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", errorCode(body))
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t)
	orderID := s.buyBook()
	userToken := s.token(s.user, "")
	admin := s.token(uuid.New(), utils.RoleAdmin)

	resp, _ := s.do(http.MethodPatch, "/admin/orders/"+orderID, userToken, map[string]any{"status": "DELIVERED"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := s.do(http.MethodPatch, "/admin/orders/"+orderID, admin, map[string]any{"status": "LOST"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", errorCode(body))

	resp, body = s.do(http.MethodPatch, "/admin/orders/"+orderID, admin, map[string]any{"status": "DELIVERED"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "DELIVERED", data(body)["status"])

	resp, body = s.do(http.MethodPost, "/order/return/"+orderID, userToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", errorCode(body))

	resp, body = s.do(http.MethodGet, "/admin/refund-details", admin, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])

	resp, _ = s.do(http.MethodPost, "/admin/refund-details/"+orderID+"/complete", admin, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAddresses(t *testing.T) {
	s := newServer(t)
	userToken := s.token(s.user, "")

	resp, body := s.do(http.MethodPost, "/profile/addresses", userToken, map[string]any{
		"address_line": "4 Park Street",
		"city":         "Kolkata",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	id := data(body)["id"].(string)

	resp, body = s.do(http.MethodGet, "/profile/addresses", userToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 2)

	resp, _ = s.do(http.MethodDelete, "/profile/addresses/"+id, s.token(uuid.New(), ""), nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(http.MethodDelete, "/profile/addresses/"+id, userToken, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
