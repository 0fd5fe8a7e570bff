package external

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Authorization states reported by the gateway
const (
	AuthStatusRequiresCapture = "requires_capture"
	AuthStatusProcessing      = "processing"
	AuthStatusCaptured        = "captured"
	AuthStatusCancelled       = "cancelled"
	AuthStatusFailed          = "failed"
)

// GatewayClient talks to the payment gateway over its HTTP API. All holds,
// captures, releases and refunds are scoped to the connected account.
type GatewayClient struct {
	baseURL    string
	accountID  string
	secret     string
	webhookKey string
	httpClient *http.Client
}

type GatewayConfig struct {
	BaseURL       string
	AccountID     string
	Secret        string
	WebhookSecret string
	Timeout       time.Duration
}

type AuthorizeRequest struct {
	AccountID   string `json:"accountId"`
	Token       string `json:"token"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	Email       string `json:"email,omitempty"`
	Description string `json:"description,omitempty"`
	// Manual capture: the gateway places a hold and waits for an explicit
	// capture instruction instead of settling immediately.
	CaptureMethod string `json:"captureMethod"`
}

type AuthorizeResponse struct {
	Success      bool   `json:"success"`
	AuthRef      string `json:"authRef"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
	CreatedAt    string `json:"createdAt"`
}

type AuthorizationDetails struct {
	AuthRef     string `json:"authRef"`
	Status      string `json:"status"`
	ChargeRef   string `json:"chargeRef,omitempty"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	UpdatedAt   string `json:"updatedAt"`
}

type CaptureResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	ChargeRef string `json:"chargeRef"`
	Error     string `json:"error,omitempty"`
}

func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &GatewayClient{
		baseURL:    cfg.BaseURL,
		accountID:  cfg.AccountID,
		secret:     cfg.Secret,
		webhookKey: cfg.WebhookSecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// generateToken signs a request: parameters are sorted alphabetically,
// concatenated with the account id and secret, and hashed with SHA-256.
func (gc *GatewayClient) generateToken(params map[string]string) string {
	params["AccountId"] = gc.accountID
	params["Secret"] = gc.secret

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tokenString string
	for _, key := range keys {
		tokenString += params[key]
	}

	hash := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(hash[:])
}

// Authorize places a manual-capture hold for the given amount. The returned
// auth ref is the join key for every later signal about this payment.
func (gc *GatewayClient) Authorize(ctx context.Context, amountCents int64, reference, email, description string) (*AuthorizeResponse, error) {
	token := gc.generateToken(map[string]string{
		"Amount":    strconv.FormatInt(amountCents, 10),
		"Currency":  "EUR",
		"Reference": reference,
	})

	req := AuthorizeRequest{
		AccountID:     gc.accountID,
		Token:         token,
		AmountCents:   amountCents,
		Currency:      "EUR",
		Reference:     reference,
		Email:         email,
		Description:   description,
		CaptureMethod: "manual",
	}

	var result AuthorizeResponse
	if err := gc.post(ctx, "/api/v1/authorizations", req, &result); err != nil {
		return nil, err
	}

	if !result.Success {
		return nil, fmt.Errorf("gateway declined authorization for %s", reference)
	}

	return &result, nil
}

// Retrieve fetches the gateway-side state of an authorization
func (gc *GatewayClient) Retrieve(ctx context.Context, authRef string) (*AuthorizationDetails, error) {
	token := gc.generateToken(map[string]string{"AuthRef": authRef})

	req := map[string]any{
		"accountId": gc.accountID,
		"token":     token,
		"authRef":   authRef,
	}

	var result struct {
		Success       bool                 `json:"success"`
		Authorization AuthorizationDetails `json:"authorization"`
	}
	if err := gc.post(ctx, "/api/v1/authorizations/check", req, &result); err != nil {
		return nil, err
	}

	if !result.Success {
		return nil, fmt.Errorf("gateway has no authorization %s", authRef)
	}

	return &result.Authorization, nil
}

// Capture converts a hold into a transfer. An already-captured hold is
// reported as success so retries stay idempotent.
func (gc *GatewayClient) Capture(ctx context.Context, authRef string, amountCents int64) (string, error) {
	token := gc.generateToken(map[string]string{
		"Amount":  strconv.FormatInt(amountCents, 10),
		"AuthRef": authRef,
	})

	req := map[string]any{
		"accountId": gc.accountID,
		"token":     token,
		"authRef":   authRef,
		"amount":    amountCents,
	}

	var result CaptureResponse
	if err := gc.post(ctx, "/api/v1/authorizations/capture", req, &result); err != nil {
		return "", err
	}

	if !result.Success {
		if strings.Contains(result.Error, "already captured") {
			return result.ChargeRef, nil
		}
		return "", fmt.Errorf("capture failed for %s: %s", authRef, result.Error)
	}

	return result.ChargeRef, nil
}

// Cancel releases an uncaptured hold
func (gc *GatewayClient) Cancel(ctx context.Context, authRef, reason string) error {
	token := gc.generateToken(map[string]string{"AuthRef": authRef})

	req := map[string]any{
		"accountId": gc.accountID,
		"token":     token,
		"authRef":   authRef,
		"reason":    reason,
	}

	return gc.post(ctx, "/api/v1/authorizations/cancel", req, nil)
}

// Refund returns captured funds by charge reference
func (gc *GatewayClient) Refund(ctx context.Context, chargeRef, reason string) error {
	token := gc.generateToken(map[string]string{"ChargeRef": chargeRef})

	req := map[string]any{
		"accountId": gc.accountID,
		"token":     token,
		"chargeRef": chargeRef,
		"reason":    reason,
	}

	return gc.post(ctx, "/api/v1/refunds", req, nil)
}

// VerifySignature checks the webhook signature header: hex-encoded
// HMAC-SHA256 of the raw body under the shared webhook secret.
func (gc *GatewayClient) VerifySignature(body []byte, signature string) bool {
	if gc.webhookKey == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(gc.webhookKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func (gc *GatewayClient) post(ctx context.Context, path string, payload any, out any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gc.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := gc.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if out == nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
