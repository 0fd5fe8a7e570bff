package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ljo9000/skupi/internal/cache"
	"github.com/Ljo9000/skupi/internal/database"
	"github.com/Ljo9000/skupi/internal/external"
	"github.com/Ljo9000/skupi/internal/service"
)

type Handlers struct {
	services *service.Services
	cache    *cache.Client
	db       *database.DB
	gateway  *external.GatewayClient
}

func NewHandlers(services *service.Services, cacheClient *cache.Client, db *database.DB, gateway *external.GatewayClient) *Handlers {
	return &Handlers{
		services: services,
		cache:    cacheClient,
		db:       db,
		gateway:  gateway,
	}
}

// Health - GET /health
func (h *Handlers) Health(c *gin.Context) {
	check := h.db.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if check.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"database": check})
}
