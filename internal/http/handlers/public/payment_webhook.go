package public

import (
	"io"
	"net/http"
	"strings"

	"github.com/licenseshop/internal/http/response"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

// PaypalWebhook PayPal webhook 回调。
func (h *Handler) PaypalWebhook(c *gin.Context) {
	log := requestLog(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Warnw("paypal_webhook_body_read_failed", "error", err)
		respondError(c, http.StatusBadRequest, "error.bad_request", err)
		return
	}
	log.Infow("paypal_webhook_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"paypal_transmission_id", strings.TrimSpace(c.GetHeader("Paypal-Transmission-Id")),
		"paypal_transmission_time", strings.TrimSpace(c.GetHeader("Paypal-Transmission-Time")),
	)
	result, err := h.InvoiceService.HandleWebhook(c.Request.Context(), c.Request.Header, body)
	if err != nil {
		log.Warnw("paypal_webhook_handle_failed", "error", err)
		respondWithMappedError(c, err, webhookErrorRules, http.StatusInternalServerError, "error.internal_error")
		return
	}
	response.Raw(c, http.StatusOK, result)
}
