package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Ljo9000/skupi/internal/models"
	"github.com/Ljo9000/skupi/internal/service"
)

// Checkout - POST /api/checkout
func (h *Handlers) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Settlement.InitiateCheckout(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEventNotActive):
			c.JSON(http.StatusNotFound, gin.H{"error": "Event is not open for booking"})
		case errors.Is(err, service.ErrEventFull):
			c.JSON(http.StatusConflict, gin.H{"error": "Event is full", "code": "event_full"})
		case errors.Is(err, service.ErrDeadlinePassed):
			c.JSON(http.StatusConflict, gin.H{"error": "Payment deadline has passed", "code": "deadline_passed"})
		case errors.Is(err, service.ErrDuplicateGuest):
			c.JSON(http.StatusConflict, gin.H{"error": "You already have an active payment for this event", "code": "duplicate_guest"})
		default:
			slog.Error("Checkout failed", "event_id", req.EventID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start checkout"})
		}
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ConfirmPayment - POST /api/payments/confirm
// The guest's client reports a finished authorization; the gateway is the
// authority, so a premature call is a 409 the client may retry.
func (h *Handlers) ConfirmPayment(c *gin.Context) {
	var req models.FastPathConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.services.Settlement.FastPathConfirm(c.Request.Context(), req.AuthRef)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownAuthRef):
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown authorization reference"})
		case errors.Is(err, service.ErrAuthNotComplete):
			c.JSON(http.StatusConflict, gin.H{"error": "Authorization is not completed", "code": "not_completed"})
		default:
			slog.Error("Fast path confirmation failed", "auth_ref", req.AuthRef, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to confirm payment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SelfCancel - POST /api/payments/cancel
func (h *Handlers) SelfCancel(c *gin.Context) {
	var req models.SelfCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := uuid.Parse(req.Token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed cancellation token"})
		return
	}

	response, err := h.services.Settlement.SelfCancel(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown cancellation token"})
		case errors.Is(err, service.ErrNotCancellable):
			c.JSON(http.StatusConflict, gin.H{"error": "This payment can no longer be cancelled", "code": "not_cancellable"})
		default:
			slog.Error("Self-cancel failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel payment"})
		}
		return
	}

	c.JSON(http.StatusOK, response)
}
