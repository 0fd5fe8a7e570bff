// Package notify delivers guest and organizer messages: email always,
// WhatsApp/Viber when the guest left a phone number and opted in.
// Dispatch is fire-and-forget from the settlement path: failures are
// logged and counted, never returned to the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ljo9000/skupi/internal/metrics"
	"github.com/Ljo9000/skupi/internal/models"
)

type Config struct {
	EmailBaseURL     string
	EmailAPIKey      string
	EmailFrom        string
	MessengerBaseURL string
	MessengerAPIKey  string
	WhatsAppSender   string
	WhatsAppTemplate string
	ViberSender      string
	BaseURL          string
	Timeout          time.Duration
}

// Dispatcher sends notifications through the email and messenger providers
type Dispatcher struct {
	cfg        Config
	httpClient *http.Client
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Dispatcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// PaymentConfirmed tells the guest their slot is reserved and carries the
// single-use cancellation link.
func (d *Dispatcher) PaymentConfirmed(ctx context.Context, payment *models.Payment, event *models.Event) {
	cancelURL := fmt.Sprintf("%s/t/%s/cancel?token=%s", d.cfg.BaseURL, event.Slug, payment.CancelToken)

	d.sendEmail(ctx, payment.GuestEmail,
		fmt.Sprintf("Reservation confirmed: %s", event.Name),
		fmt.Sprintf("Hi %s, your spot at %q on %s is reserved. Amount: %s. Cancel any time before the deadline: %s",
			payment.GuestName, event.Name, event.StartsAt.Format("Monday, 2 January 2006"),
			formatAmount(payment.AmountCents), cancelURL))
}

// PaymentCancelled tells the guest their hold was released or refunded
func (d *Dispatcher) PaymentCancelled(ctx context.Context, payment *models.Payment, event *models.Event) {
	d.sendEmail(ctx, payment.GuestEmail,
		fmt.Sprintf("Payment cancelled: %s", event.Name),
		fmt.Sprintf("Hi %s, your payment of %s for %q on %s was cancelled. The hold on your card has been released.",
			payment.GuestName, formatAmount(payment.AmountCents), event.Name,
			event.StartsAt.Format("Monday, 2 January 2006")))
}

// SelfCancelConfirmed acknowledges a guest-initiated cancellation
func (d *Dispatcher) SelfCancelConfirmed(ctx context.Context, payment *models.Payment, event *models.Event) {
	d.sendEmail(ctx, payment.GuestEmail,
		fmt.Sprintf("Cancellation confirmed: %s", event.Name),
		fmt.Sprintf("Hi %s, you are no longer attending %q on %s. Any charged amount will be returned.",
			payment.GuestName, event.Name, event.StartsAt.Format("Monday, 2 January 2006")))
}

// EventFull tells the organizer the event reached its maximum
func (d *Dispatcher) EventFull(ctx context.Context, organizerEmail string, event *models.Event) {
	d.sendEmail(ctx, organizerEmail,
		fmt.Sprintf("Event full: %s", event.Name),
		fmt.Sprintf("%q on %s reached %d confirmed participants and is now locked.",
			event.Name, event.StartsAt.Format("Monday, 2 January 2006"), event.MaxGuests))
}

// SpotAvailable offers a freed slot to a promoted waiting list entry.
// Email always; WhatsApp/Viber when a phone and preference are present.
func (d *Dispatcher) SpotAvailable(ctx context.Context, entry *models.WaitingListEntry, event *models.Event) {
	paymentURL := fmt.Sprintf("%s/t/%s", d.cfg.BaseURL, event.Slug)
	eventDate := event.StartsAt.Format("Monday, 2 January 2006")
	amount := formatAmount(event.TotalCents())

	d.sendEmail(ctx, entry.GuestEmail,
		fmt.Sprintf("A spot opened up: %s", event.Name),
		fmt.Sprintf("Hi %s, a spot opened up at %q (%s). Price: %s. Claim it here: %s",
			entry.GuestName, event.Name, eventDate, amount, paymentURL))

	if entry.Phone == nil {
		return
	}

	text := fmt.Sprintf("Hi %s! A spot opened up at %q (%s). Price: %s. Book here: %s",
		entry.GuestName, event.Name, eventDate, amount, paymentURL)

	if entry.NotifyViber {
		d.sendViber(ctx, *entry.Phone, text)
	}
	if entry.NotifyWhatsApp {
		d.sendWhatsApp(ctx, *entry.Phone, []string{entry.GuestName, event.Name, eventDate, paymentURL})
	}
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, text string) {
	if d.cfg.EmailAPIKey == "" {
		slog.Warn("Email provider not configured, dropping message", "to", to, "subject", subject)
		return
	}

	req := emailRequest{From: d.cfg.EmailFrom, To: to, Subject: subject, Text: text}
	if err := d.post(ctx, d.cfg.EmailBaseURL+"/emails", "Bearer "+d.cfg.EmailAPIKey, req); err != nil {
		metrics.NotificationFailures.WithLabelValues("email").Inc()
		slog.Error("Email send failed", "to", to, "subject", subject, "error", err)
		return
	}

	slog.Info("Email sent", "to", to, "subject", subject)
}

func (d *Dispatcher) sendViber(ctx context.Context, phone, text string) {
	if d.cfg.MessengerBaseURL == "" || d.cfg.MessengerAPIKey == "" {
		return
	}

	req := map[string]any{
		"messages": []map[string]any{
			{
				"sender":       d.cfg.ViberSender,
				"destinations": []map[string]string{{"to": NormalizePhone(phone)}},
				"viber": map[string]any{
					"text":           text,
					"validityPeriod": 86400,
				},
			},
		},
	}

	if err := d.post(ctx, d.cfg.MessengerBaseURL+"/viber/2/message", "App "+d.cfg.MessengerAPIKey, req); err != nil {
		metrics.NotificationFailures.WithLabelValues("viber").Inc()
		slog.Error("Viber send failed", "error", err)
	}
}

func (d *Dispatcher) sendWhatsApp(ctx context.Context, phone string, placeholders []string) {
	if d.cfg.MessengerBaseURL == "" || d.cfg.MessengerAPIKey == "" {
		return
	}

	req := map[string]any{
		"messages": []map[string]any{
			{
				"from": d.cfg.WhatsAppSender,
				"to":   NormalizePhone(phone),
				"content": map[string]any{
					"templateName": d.cfg.WhatsAppTemplate,
					"templateData": map[string]any{
						"body": map[string]any{"placeholders": placeholders},
					},
					"language": "hr",
				},
			},
		},
	}

	if err := d.post(ctx, d.cfg.MessengerBaseURL+"/whatsapp/1/message/template", "App "+d.cfg.MessengerAPIKey, req); err != nil {
		metrics.NotificationFailures.WithLabelValues("whatsapp").Inc()
		slog.Error("WhatsApp send failed", "error", err)
	}
}

func (d *Dispatcher) post(ctx context.Context, url, authHeader string, payload any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", authHeader)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	return nil
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d €", cents/100, cents%100)
}
