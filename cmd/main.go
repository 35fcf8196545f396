package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"abaisprings/internal/bootstrap"
	"abaisprings/internal/cache"
	"abaisprings/internal/config"
	cronpkg "abaisprings/internal/cron"
	"abaisprings/internal/gateway"
	"abaisprings/internal/orchestrator"
	"abaisprings/internal/repository"
	"abaisprings/internal/router"
	"abaisprings/internal/verify"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Transient state store (Redis with in-memory fallback) ---
	store, storeErr := cache.NewStore(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB)
	if storeErr != nil {
		logger.Warn("Redis unavailable for transient state, using in-memory fallback", zap.Error(storeErr))
	}

	// --- Gateway adapters ---
	adapters := map[string]gateway.Adapter{
		gateway.NameMpesa: gateway.NewMpesaGateway(gateway.MpesaConfig{
			ConsumerKey:        cfg.Payment.Mpesa.ConsumerKey,
			ConsumerSecret:     cfg.Payment.Mpesa.ConsumerSecret,
			Shortcode:          cfg.Payment.Mpesa.Shortcode,
			Passkey:            cfg.Payment.Mpesa.Passkey,
			InitiatorName:      cfg.Payment.Mpesa.InitiatorName,
			SecurityCredential: cfg.Payment.Mpesa.SecurityCredential,
			CallbackURL:        cfg.Payment.Mpesa.CallbackURL,
			Sandbox:            cfg.Payment.Mpesa.Sandbox,
		}),
		gateway.NamePayPal: gateway.NewPayPalGateway(gateway.PayPalConfig{
			ClientID:     cfg.Payment.PayPal.ClientID,
			ClientSecret: cfg.Payment.PayPal.ClientSecret,
			ReturnURL:    cfg.Payment.PayPal.ReturnURL,
			CancelURL:    cfg.Payment.PayPal.CancelURL,
			Sandbox:      cfg.Payment.PayPal.Sandbox,
		}),
		gateway.NameCard: gateway.NewCardGateway(gateway.CardConfig{
			SecretKey:     cfg.Payment.Card.SecretKey,
			WebhookSecret: cfg.Payment.Card.WebhookSecret,
		}),
	}

	// --- Webhook verifiers ---
	verifiers := map[string]verify.Verifier{
		gateway.NameMpesa:  verify.NewMpesaVerifier(cfg.Payment.Mpesa.WebhookSecret, cfg.Payment.WebhookTolerance),
		gateway.NamePayPal: verify.NewPayPalVerifier(cfg.Payment.PayPal.WebhookID, cfg.Payment.PayPal.WebhookSecret, cfg.Payment.WebhookTolerance),
		gateway.NameCard:   verify.NewCardVerifier(cfg.Payment.Card.WebhookSecret, cfg.Payment.WebhookTolerance),
	}

	// --- Gateway health ---
	health := orchestrator.NewHealthRegistry(adapters, logger)
	func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		health.Refresh(ctx)
	}()

	// --- Orchestrator ---
	orch := orchestrator.New(
		adapters,
		verifiers,
		store,
		repository.NewPaymentIntentRepository(db),
		repository.NewRefundRepository(db),
		health,
		logger,
		orchestrator.Config{
			PendingTTL:  cfg.Payment.PendingTTL,
			CallTimeout: cfg.Payment.CallTimeout,
		},
	)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, db, orch, logger)

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(health, logger)
	scheduler.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting Abai Springs payment server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
