package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ljo9000/skupi/internal/cache"
	"github.com/Ljo9000/skupi/internal/config"
	"github.com/Ljo9000/skupi/internal/database"
	"github.com/Ljo9000/skupi/internal/external"
	"github.com/Ljo9000/skupi/internal/handlers"
	"github.com/Ljo9000/skupi/internal/jobs"
	"github.com/Ljo9000/skupi/internal/logger"
	"github.com/Ljo9000/skupi/internal/messaging"
	"github.com/Ljo9000/skupi/internal/middleware"
	"github.com/Ljo9000/skupi/internal/notify"
	"github.com/Ljo9000/skupi/internal/repository"
	"github.com/Ljo9000/skupi/internal/search"
	"github.com/Ljo9000/skupi/internal/service"
)

// Server is the HTTP API with its backing connections
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	cache    *cache.Client
	services *service.Services
	sweeper  *jobs.DeadlineSweeper
}

// NewServer connects every backing service and wires the routes
func NewServer(cfg *config.Config) *Server {
	gin.SetMode(cfg.GinMode)
	log := logger.Get()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		// Domain events are best-effort; the API serves without them.
		log.Warn("NATS unavailable, domain events disabled", "error", err)
		natsClient = nil
	}

	cacheClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, event view cache disabled", "error", err)
		cacheClient = nil
	}

	esClient, err := search.NewElasticsearchClient(cfg.Elasticsearch)
	if err != nil {
		log.Warn("Elasticsearch unavailable, organizer search disabled", "error", err)
		esClient = nil
	}

	gatewayClient := external.NewGatewayClient(cfg.Gateway)
	dispatcher := notify.NewDispatcher(cfg.Notify)

	repos := repository.NewRepositories(db)

	var publisher service.Publisher
	if natsClient != nil {
		publisher = natsClient
	}
	var viewCache service.ViewCache
	if cacheClient != nil {
		viewCache = cacheClient
	}
	var indexer service.Indexer
	if esClient != nil {
		indexer = esClient
	}

	services := service.NewServices(
		repos.Payments, repos.Events, repos.WaitingList,
		gatewayClient, dispatcher, publisher, viewCache, indexer,
	)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	server := &Server{
		router:   router,
		config:   cfg,
		db:       db,
		nats:     natsClient,
		cache:    cacheClient,
		services: services,
		sweeper:  jobs.NewDeadlineSweeper(services.Settlement, cfg.Sweeper),
	}

	server.setupRoutes(gatewayClient)

	return server
}

func (s *Server) setupRoutes(gatewayClient *external.GatewayClient) {
	h := handlers.NewHandlers(s.services, s.cache, s.db, gatewayClient)

	s.router.GET("/health", h.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		events := api.Group("/events")
		{
			events.POST("", h.CreateEvent)
			events.GET("", h.SearchEvents)
			events.GET("/:slug", h.GetEvent)
			events.POST("/:slug/cancel", h.CancelEvent)
		}

		api.POST("/checkout", h.Checkout)

		payments := api.Group("/payments")
		{
			payments.POST("/confirm", h.ConfirmPayment)
			payments.POST("/cancel", h.SelfCancel)
		}

		api.POST("/waitlist", h.JoinWaitlist)

		api.POST("/webhooks/gateway", h.GatewayWebhook)
	}

	internal := s.router.Group("/internal")
	internal.Use(middleware.SweepAuth(s.config.SweepSecret))
	{
		internal.POST("/sweep", h.SweepDeadlines)
		internal.POST("/sweep/event", h.SweepEvent)
	}
}

// StartJobs launches the embedded deadline sweeper
func (s *Server) StartJobs() {
	s.sweeper.Start()
}

// Cleanup stops the sweeper and closes backing connections
func (s *Server) Cleanup() error {
	s.sweeper.Stop()

	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			logger.Get().Error("Failed to close NATS connection", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			logger.Get().Error("Failed to close Redis connection", "error", err)
		}
	}

	return s.db.Close()
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}
