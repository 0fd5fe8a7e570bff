package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Ljo9000/skupi/internal/config"
	"github.com/Ljo9000/skupi/internal/database"
	"github.com/Ljo9000/skupi/internal/external"
	"github.com/Ljo9000/skupi/internal/jobs"
	"github.com/Ljo9000/skupi/internal/logger"
	"github.com/Ljo9000/skupi/internal/messaging"
	"github.com/Ljo9000/skupi/internal/notify"
	"github.com/Ljo9000/skupi/internal/repository"
	"github.com/Ljo9000/skupi/internal/service"
)

// Standalone deadline sweeper for deployments that keep background work out
// of the API replicas. Runs the same settlement code the API exposes at
// /internal/sweep; running both at once is safe.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		log.Warn("NATS unavailable, domain events disabled", "error", err)
		natsClient = nil
	}

	gatewayClient := external.NewGatewayClient(cfg.Gateway)
	dispatcher := notify.NewDispatcher(cfg.Notify)
	repos := repository.NewRepositories(db)

	var publisher service.Publisher
	if natsClient != nil {
		publisher = natsClient
		defer natsClient.Close()
	}

	services := service.NewServices(
		repos.Payments, repos.Events, repos.WaitingList,
		gatewayClient, dispatcher, publisher, nil, nil,
	)

	sweeper := jobs.NewDeadlineSweeper(services.Settlement, cfg.Sweeper)
	sweeper.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down sweeper...")
	sweeper.Stop()
}
