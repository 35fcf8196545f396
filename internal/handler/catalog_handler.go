package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"abaisprings/internal/repository"
)

// CatalogHandler serves the thin CRUD reads backing the storefront:
// products, outlets and recent orders.
type CatalogHandler struct {
	products *repository.ProductRepository
	outlets  *repository.OutletRepository
	orders   *repository.OrderRepository
	logger   *zap.Logger
}

func NewCatalogHandler(
	products *repository.ProductRepository,
	outlets *repository.OutletRepository,
	orders *repository.OrderRepository,
	logger *zap.Logger,
) *CatalogHandler {
	return &CatalogHandler{products: products, outlets: outlets, orders: orders, logger: logger}
}

// Health reports service liveness.
// GET /api/health
func (h *CatalogHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Products lists the product catalog.
// GET /api/products
func (h *CatalogHandler) Products(c echo.Context) error {
	products, err := h.products.FindAll(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list products", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to retrieve products"})
	}
	return c.JSON(http.StatusOK, products)
}

// Outlets lists delivery outlets.
// GET /api/outlets
func (h *CatalogHandler) Outlets(c echo.Context) error {
	outlets, err := h.outlets.FindAll(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list outlets", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to retrieve outlets"})
	}
	return c.JSON(http.StatusOK, outlets)
}

// Orders lists recent orders.
// GET /api/orders
func (h *CatalogHandler) Orders(c echo.Context) error {
	orders, err := h.orders.FindAll(c.Request().Context(), 50)
	if err != nil {
		h.logger.Error("failed to list orders", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to retrieve orders"})
	}
	return c.JSON(http.StatusOK, orders)
}
