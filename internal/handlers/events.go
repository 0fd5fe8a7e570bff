package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Ljo9000/skupi/internal/models"
	"github.com/Ljo9000/skupi/internal/search"
	"github.com/Ljo9000/skupi/internal/service"
)

// CreateEvent - POST /api/events
func (h *Handlers) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Events.Create(c.Request.Context(), &req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": verr.Fields})
			return
		}
		slog.Error("Failed to create event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create event"})
		return
	}

	c.JSON(http.StatusCreated, response)
}

// GetEvent - GET /api/events/:slug
// Serves the public booking view, cached until the next payment transition.
func (h *Handlers) GetEvent(c *gin.Context) {
	slug := c.Param("slug")

	if h.cache != nil {
		if raw, err := h.cache.GetEventViewRaw(c.Request.Context(), slug); err == nil && raw != nil {
			c.Data(http.StatusOK, "application/json", raw)
			return
		}
	}

	view, err := h.services.Events.GetView(c.Request.Context(), slug)
	if err != nil {
		slog.Error("Failed to load event view", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
		return
	}
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetEventView(c.Request.Context(), slug, view); err != nil {
			slog.Warn("Failed to cache event view", "slug", slug, "error", err)
		}
	}

	c.JSON(http.StatusOK, view)
}

// SearchEvents - GET /api/events?organizer_id=...&query=...
func (h *Handlers) SearchEvents(c *gin.Context) {
	organizerID := c.Query("organizer_id")
	if organizerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organizer_id is required"})
		return
	}
	query := c.Query("query")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be >= 1"})
		return
	}
	if pageSize < 1 || pageSize > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pageSize must be between 1 and 50"})
		return
	}

	docs, err := h.services.Events.Search(c.Request.Context(), organizerID, query, page, pageSize)
	if err != nil {
		slog.Error("Failed to search events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search events"})
		return
	}
	if docs == nil {
		docs = []search.EventDocument{}
	}

	c.JSON(http.StatusOK, gin.H{"events": docs, "page": page, "pageSize": pageSize})
}

// CancelEvent - POST /api/events/:slug/cancel
// Organizer cancels the whole event; every open payment is released.
func (h *Handlers) CancelEvent(c *gin.Context) {
	slug := c.Param("slug")

	event, err := h.services.Events.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		slog.Error("Failed to load event", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	result, err := h.services.Settlement.CancelEvent(c.Request.Context(), event)
	if err != nil {
		if errors.Is(err, service.ErrNotCancellable) {
			c.JSON(http.StatusConflict, gin.H{"error": "Event is already cancelled"})
			return
		}
		slog.Error("Failed to cancel event", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel event"})
		return
	}

	if h.cache != nil {
		_ = h.cache.InvalidateEventView(c.Request.Context(), slug)
	}

	c.JSON(http.StatusOK, result)
}
