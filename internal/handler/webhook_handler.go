package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"abaisprings/internal/gateway"
	"abaisprings/internal/orchestrator"
)

// WebhookHandler receives asynchronous provider confirmations. The raw
// body and headers are preserved unmodified for signature verification.
type WebhookHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func NewWebhookHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{orch: orch, logger: logger}
}

// Handle processes one provider webhook delivery.
// POST /webhooks/:gateway
func (h *WebhookHandler) Handle(c echo.Context) error {
	gatewayName := c.Param("gateway")

	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	outcome, err := h.orch.ProcessWebhook(c.Request().Context(), gatewayName, c.Request().Header, rawBody)
	if err != nil {
		switch gateway.KindOf(err) {
		case gateway.KindSignature:
			h.logger.Warn("webhook rejected",
				zap.String("gateway", gatewayName), zap.Error(err))
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		case gateway.KindValidation:
			h.logger.Warn("webhook payload invalid",
				zap.String("gateway", gatewayName), zap.Error(err))
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		default:
			// A 5xx asks the provider to redeliver; the event was left
			// unclaimed so the retry can still land.
			h.logger.Error("webhook processing failed",
				zap.String("gateway", gatewayName), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "processing failed"})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"orderId":   outcome.OrderID,
		"status":    string(outcome.Status),
		"duplicate": outcome.Duplicate,
	})
}
