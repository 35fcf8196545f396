package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"abaisprings/internal/handler"
	"abaisprings/internal/middleware"
	"abaisprings/internal/orchestrator"
	"abaisprings/internal/repository"
)

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, db *gorm.DB, orch *orchestrator.Orchestrator, logger *zap.Logger) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger(logger))

	// Handlers
	paymentHandler := handler.NewPaymentHandler(orch, logger)
	webhookHandler := handler.NewWebhookHandler(orch, logger)
	catalogHandler := handler.NewCatalogHandler(
		repository.NewProductRepository(db),
		repository.NewOutletRepository(db),
		repository.NewOrderRepository(db),
		logger,
	)

	// Payment orchestration
	api := e.Group("/api")
	api.POST("/payments", paymentHandler.ProcessPayment)
	api.GET("/payments/:orderId/status", paymentHandler.Status)
	api.POST("/payments/:orderId/refund", paymentHandler.Refund)

	// Storefront reads
	api.GET("/health", catalogHandler.Health)
	api.GET("/products", catalogHandler.Products)
	api.GET("/outlets", catalogHandler.Outlets)
	api.GET("/orders", catalogHandler.Orders)

	// Provider confirmations. The raw body must reach the verifier untouched.
	e.POST("/webhooks/:gateway", webhookHandler.Handle)
}
