package routes

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/config"
	"github.com/example/orderledger/internal/handlers"
	"github.com/example/orderledger/internal/middleware"
	"github.com/example/orderledger/internal/services"
	"github.com/example/orderledger/internal/storage"
)

// Services are the collaborators the HTTP layer dispatches to.
type Services struct {
	Orders        *services.OrderService
	Reconciler    *services.Reconciler
	RefundDetails *services.RefundDetailsService
	Addresses     *services.AddressService
	Delivery      *services.DeliveryAuthorizer
	Files         storage.FileStore
	Health        handlers.Pinger
	Logger        *zap.Logger
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, svc Services) {
	orderHandler := handlers.NewOrderHandler(svc.Orders, svc.RefundDetails, svc.Delivery, svc.Files, svc.Logger)
	paymentHandler := handlers.NewPaymentHandler(svc.Reconciler)
	adminHandler := handlers.NewAdminHandler(svc.Orders, svc.RefundDetails)
	profileHandler := handlers.NewProfileHandler(svc.Addresses)
	healthHandler := handlers.NewHealthHandler(svc.Health)

	app.Get("/healthz", healthHandler.Health)

	// Processor callbacks are authenticated by signature, not by token.
	app.Post("/payment/webhook", paymentHandler.Webhook)

	// Auth is attached per prefix so unknown paths fall through to 404.
	auth := middleware.AuthMiddleware(cfg.JWTSecret)

	order := app.Group("/order", auth)
	order.Post("/razorpay", orderHandler.CreateRazorpayOrder)
	order.Post("/cod", orderHandler.CreateCODOrder)
	order.Get("/", orderHandler.ListOrders)
	order.Post("/cancel/:id", orderHandler.CancelOrder)
	order.Post("/return/:id", orderHandler.RequestReturn)
	order.Post("/refund-details", orderHandler.SubmitRefundDetails)
	order.Get("/download/:orderId/:fileId", orderHandler.Download)
	order.Get("/:id", orderHandler.GetOrder)

	app.Post("/payment/verify", auth, paymentHandler.Verify)

	profile := app.Group("/profile", auth)
	profile.Get("/addresses", profileHandler.ListAddresses)
	profile.Post("/addresses", profileHandler.CreateAddress)
	profile.Delete("/addresses/:id", profileHandler.DeleteAddress)

	admin := app.Group("/admin", auth, middleware.RequireAdmin())
	admin.Post("/return/confirm/:orderId", adminHandler.ConfirmReturn)
	admin.Patch("/orders/:orderId", adminHandler.SetOrderStatus)
	admin.Get("/refund-details", adminHandler.ListRefundDetails)
	admin.Post("/refund-details/:orderId/complete", adminHandler.CompleteRefundDetails)
	admin.Delete("/refund-details/:orderId", adminHandler.DeleteRefundDetails)
	admin.Get("/refunds/pending", adminHandler.PendingPayouts)
}
