package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/cache"
	"github.com/example/orderledger/internal/config"
	"github.com/example/orderledger/internal/database"
	"github.com/example/orderledger/internal/gateway"
	"github.com/example/orderledger/internal/handlers"
	"github.com/example/orderledger/internal/jobs"
	"github.com/example/orderledger/internal/logger"
	"github.com/example/orderledger/internal/routes"
	"github.com/example/orderledger/internal/services"
	"github.com/example/orderledger/internal/storage"
	"github.com/example/orderledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	db, err := database.Open(cfg.DatabaseURL, zapLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			zapLogger.Warn("database close failed", zap.Error(err))
		}
	}()

	ledger := store.NewGormLedger(db)
	clock := time.Now

	var gw gateway.Gateway
	razorpay, err := gateway.NewRazorpay(gateway.RazorpayConfig{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		Logger:    zapLogger.Named("razorpay"),
	})
	switch {
	case errors.Is(err, gateway.ErrNotConfigured):
		zapLogger.Warn("razorpay credentials missing; online payments and processor refunds are disabled")
	case err != nil:
		return err
	default:
		gw = razorpay
	}

	var deduper services.Deduper
	if cfg.RedisURL != "" {
		redisDeduper, err := cache.NewRedisDeduper(cfg.RedisURL, "orderledger")
		if err != nil {
			zapLogger.Warn("redis unavailable; webhook dedup falls back to the event log", zap.Error(err))
		} else {
			defer redisDeduper.Close()
			deduper = redisDeduper
		}
	}

	var files storage.FileStore
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(storage.S3Config{
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		if err != nil {
			return err
		}
		files = s3Store
	} else {
		zapLogger.Warn("S3_BUCKET not set; digital downloads are disabled")
	}

	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, zapLogger.Named("telegram"))
	delivery := services.NewDeliveryAuthorizer(ledger, cfg.DownloadWindow, clock)
	deduction := cfg.ReturnDeduction
	refunds := services.NewRefundCalculator(gw, zapLogger.Named("refunds")).WithTimeout(cfg.GatewayTimeout)

	orders := services.NewOrderService(services.OrderServiceConfig{
		Ledger:          ledger,
		Gateway:         gw,
		Refunds:         refunds,
		Delivery:        delivery,
		Notifier:        telegram,
		Logger:          zapLogger.Named("orders"),
		Currency:        cfg.Currency,
		ReturnDeduction: &deduction,
		SupportContact:  cfg.SupportContact,
		GatewayTimeout:  cfg.GatewayTimeout,
	})
	reconciler := services.NewReconciler(services.ReconcilerConfig{
		Ledger:        ledger,
		Delivery:      delivery,
		Refunds:       refunds,
		Notifier:      telegram,
		Deduper:       deduper,
		Logger:        zapLogger.Named("reconciler"),
		KeySecret:     cfg.RazorpayKeySecret,
		WebhookSecret: cfg.RazorpayWebhookSecret,
		Clock:         clock,
	})
	refundDetails := services.NewRefundDetailsService(ledger, zapLogger.Named("refund_details"))

	if cfg.CronEnabled {
		manager := jobs.NewManager(refundDetails, telegram, zapLogger.Named("jobs"), cfg.ManualRefundSchedule)
		if err := manager.Start(); err != nil {
			return err
		}
		defer manager.Stop()
	}

	app := fiber.New(fiber.Config{
		AppName:      "Order Ledger",
		ErrorHandler: handlers.ErrorHandler(zapLogger.Named("http")),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, cfg, routes.Services{
		Orders:        orders,
		Reconciler:    reconciler,
		RefundDetails: refundDetails,
		Addresses:     services.NewAddressService(ledger),
		Delivery:      delivery,
		Files:         files,
		Health:        ledger,
		Logger:        zapLogger.Named("http"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("starting server", zap.String("port", cfg.AppPort))
		errCh <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zapLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
