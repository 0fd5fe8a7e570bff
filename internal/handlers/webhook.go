package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ljo9000/skupi/internal/models"
)

// GatewayWebhook - POST /api/webhooks/gateway
// The signature covers the raw body, so it is read before any decoding. A
// bad signature is rejected; everything else is acknowledged with 200 so
// the gateway stops retrying; transitions themselves are idempotent.
func (h *Handlers) GatewayWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	signature := c.GetHeader("X-Gateway-Signature")
	if !h.gateway.VerifySignature(body, signature) {
		slog.Warn("Webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed payload"})
		return
	}

	if err := h.services.Settlement.HandleWebhook(c.Request.Context(), &event); err != nil {
		slog.Error("Webhook processing failed", "type", event.Type, "auth_ref", event.AuthRef, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
