// Package webhooks delivers order lifecycle events to an external automation
// endpoint as signed JSON POST requests.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	headerEvent      = "X-Webhook-Event"
	headerDeliveryID = "X-Webhook-Delivery"
	headerSignature  = "X-Webhook-Signature"
)

// NotifierConfig configures the Notifier.
type NotifierConfig struct {
	// Endpoint is the automation webhook URL. Empty disables delivery.
	Endpoint string
	// SigningSecret, when set, enables HMAC-SHA256 payload signatures.
	SigningSecret string
	HTTPClient    *http.Client
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Notifier posts event payloads to a single configured endpoint.
type Notifier struct {
	endpoint string
	secret   []byte
	client   *http.Client
	now      func() time.Time
	logger   *zap.Logger
}

// NewNotifier constructs a webhook notifier. A notifier with an empty endpoint
// is valid and drops every event.
func NewNotifier(cfg NotifierConfig) (*Notifier, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("webhooks: invalid endpoint %q", endpoint)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var secret []byte
	if s := strings.TrimSpace(cfg.SigningSecret); s != "" {
		secret = []byte(s)
	}

	return &Notifier{
		endpoint: endpoint,
		secret:   secret,
		client:   client,
		now:      clock,
		logger:   logger,
	}, nil
}

type envelope struct {
	Event      string         `json:"event"`
	DeliveryID string         `json:"delivery_id"`
	SentAt     time.Time      `json:"sent_at"`
	Data       map[string]any `json:"data"`
}

// Notify posts the event to the configured endpoint. Callers are expected to
// treat failures as non-fatal.
func (n *Notifier) Notify(ctx context.Context, event string, payload map[string]any) error {
	if n == nil {
		return errors.New("webhooks: notifier is nil")
	}
	if n.endpoint == "" {
		n.logger.Debug("webhook endpoint not configured, dropping event", zap.String("event", event))
		return nil
	}
	if strings.TrimSpace(event) == "" {
		return errors.New("webhooks: event name is required")
	}

	deliveryID := ulid.Make().String()
	body, err := json.Marshal(envelope{
		Event:      event,
		DeliveryID: deliveryID,
		SentAt:     n.now().UTC(),
		Data:       payload,
	})
	if err != nil {
		return fmt.Errorf("webhooks: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhooks: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, event)
	req.Header.Set(headerDeliveryID, deliveryID)
	if len(n.secret) > 0 {
		req.Header.Set(headerSignature, n.sign(body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhooks: deliver %s: %w", event, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhooks: deliver %s: endpoint returned %d", event, resp.StatusCode)
	}

	n.logger.Info("webhook delivered",
		zap.String("event", event),
		zap.String("deliveryId", deliveryID))
	return nil
}

func (n *Notifier) sign(body []byte) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
