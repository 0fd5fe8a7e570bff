package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ljo9000/skupi/internal/models"
	"github.com/Ljo9000/skupi/internal/service"
)

// JoinWaitlist - POST /api/waitlist
func (h *Handlers) JoinWaitlist(c *gin.Context) {
	var req models.JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.services.Waitlist.Join(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEventNotActive):
			c.JSON(http.StatusNotFound, gin.H{"error": "Event is not open"})
		case errors.Is(err, service.ErrDeadlinePassed):
			c.JSON(http.StatusConflict, gin.H{"error": "Payment deadline has passed", "code": "deadline_passed"})
		case errors.Is(err, service.ErrEventNotFull):
			c.JSON(http.StatusConflict, gin.H{"error": "Event still has open spots", "code": "not_full"})
		case errors.Is(err, service.ErrDuplicateEntry):
			c.JSON(http.StatusConflict, gin.H{"error": "You are already on the waiting list", "code": "duplicate_entry"})
		default:
			slog.Error("Waitlist join failed", "event_id", req.EventID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join waiting list"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": entry.ID})
}
