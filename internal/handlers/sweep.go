package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Ljo9000/skupi/internal/models"
)

// SweepDeadlines - POST /internal/sweep
// Invoked by the scheduler behind the shared-secret middleware. Also safe
// to trigger by hand; every step is a conditional update.
func (h *Handlers) SweepDeadlines(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	result, err := h.services.Settlement.SweepDeadlines(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Deadline sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sweep failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// SweepEvent - POST /internal/sweep/event
// Settles a single event past its deadline: capture when the minimum was
// reached, release otherwise. Idempotent; repeats are no-ops.
func (h *Handlers) SweepEvent(c *gin.Context) {
	var req models.SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.services.Events.GetByID(c.Request.Context(), req.EventID)
	if err != nil {
		slog.Error("Failed to load event", "event_id", req.EventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}
	if time.Now().Before(event.PayDeadline) {
		c.JSON(http.StatusConflict, gin.H{"error": "Payment deadline has not passed yet", "code": "deadline_not_reached"})
		return
	}

	result, err := h.services.Settlement.SettleDeadline(c.Request.Context(), event)
	if err != nil {
		slog.Error("Deadline settlement failed", "event_id", event.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Settlement failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}
