package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/stan.go"

	"github.com/Ljo9000/skupi/internal/config"
	"github.com/Ljo9000/skupi/internal/logger"
	"github.com/Ljo9000/skupi/internal/messaging"
	"github.com/Ljo9000/skupi/internal/models"
)

const queueGroup = "skupi-audit"

// Audit consumer: drains the settlement event stream into the structured
// log so payment disputes can be replayed without touching the database.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", "error", err)
	}
	defer natsClient.Close()

	paymentSubjects := []string{
		models.SubjectPaymentAuthorized,
		models.SubjectPaymentCaptured,
		models.SubjectPaymentFailed,
		models.SubjectPaymentCancelled,
	}
	for _, subject := range paymentSubjects {
		subject := subject
		if _, err := natsClient.SubscribeQueue(subject, queueGroup, func(msg *stan.Msg) {
			var event models.PaymentEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				log.Error("Malformed payment event", "subject", subject, "error", err)
				return
			}
			log.Info("Payment transition",
				"subject", subject,
				"payment_id", event.PaymentID,
				"event_id", event.EventID,
				"auth_ref", event.AuthRef,
				"status", event.Status,
				"at", event.Timestamp)
		}); err != nil {
			logger.Fatal("Failed to subscribe", "subject", subject, "error", err)
		}
	}

	lifecycleSubjects := []string{
		models.SubjectEventConfirmed,
		models.SubjectEventCancelled,
	}
	for _, subject := range lifecycleSubjects {
		subject := subject
		if _, err := natsClient.SubscribeQueue(subject, queueGroup, func(msg *stan.Msg) {
			var event models.EventLifecycleEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				log.Error("Malformed lifecycle event", "subject", subject, "error", err)
				return
			}
			log.Info("Event settled",
				"subject", subject,
				"event_id", event.EventID,
				"slug", event.Slug,
				"status", event.Status,
				"at", event.Timestamp)
		}); err != nil {
			logger.Fatal("Failed to subscribe", "subject", subject, "error", err)
		}
	}

	if _, err := natsClient.SubscribeQueue(models.SubjectWaitlistPromoted, queueGroup, func(msg *stan.Msg) {
		var event models.WaitlistPromotedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Error("Malformed promotion event", "error", err)
			return
		}
		log.Info("Waitlist promotion",
			"entry_id", event.EntryID,
			"event_id", event.EventID,
			"at", event.Timestamp)
	}); err != nil {
		logger.Fatal("Failed to subscribe", "subject", models.SubjectWaitlistPromoted, "error", err)
	}

	log.Info("Audit consumer running", "queue_group", queueGroup)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consumer...")
}
