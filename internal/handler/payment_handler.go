package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"abaisprings/internal/gateway"
	"abaisprings/internal/models"
	"abaisprings/internal/orchestrator"
)

// PaymentHandler exposes the payment orchestration entry points.
type PaymentHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func NewPaymentHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{orch: orch, logger: logger}
}

// ProcessPayment starts a payment flow.
// POST /api/payments
func (h *PaymentHandler) ProcessPayment(c echo.Context) error {
	var req models.ProcessPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.orch.ProcessPayment(c.Request().Context(), &req)
	if err != nil {
		return h.paymentError(c, err, req.OrderID)
	}

	return c.JSON(http.StatusAccepted, resp)
}

// Status returns the current payment status for an order.
// GET /api/payments/:orderId/status
func (h *PaymentHandler) Status(c echo.Context) error {
	orderID := c.Param("orderId")

	resp, err := h.orch.CheckPaymentStatus(c.Request().Context(), orderID)
	if err != nil {
		return h.paymentError(c, err, orderID)
	}

	return c.JSON(http.StatusOK, resp)
}

// Refund refunds (part of) a captured payment.
// POST /api/payments/:orderId/refund
func (h *PaymentHandler) Refund(c echo.Context) error {
	orderID := c.Param("orderId")

	var req models.RefundPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	record, err := h.orch.ProcessRefund(c.Request().Context(), orderID, &req)
	if err != nil {
		return h.paymentError(c, err, orderID)
	}

	return c.JSON(http.StatusOK, record)
}

func (h *PaymentHandler) paymentError(c echo.Context, err error, orderID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "payment not found"})
	}

	kind := gateway.KindOf(err)
	switch kind {
	case gateway.KindValidation:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case gateway.KindDuplicate:
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case gateway.KindAuthentication:
		// Credential failures are a configuration alarm, not a user error.
		h.logger.Error("gateway credential failure",
			zap.String("order_id", orderID), zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "payment provider rejected credentials"})
	case gateway.KindUnavailable, gateway.KindTimeout:
		h.logger.Warn("payment providers unavailable",
			zap.String("order_id", orderID), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "payment providers unavailable"})
	default:
		h.logger.Error("payment processing failed",
			zap.String("order_id", orderID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "payment processing failed"})
	}
}
