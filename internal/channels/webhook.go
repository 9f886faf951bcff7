package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/outbound-dispatch/internal/dispatch"
	pkgerrors "github.com/angelmondragon/outbound-dispatch/pkg/errors"
)

const (
	defaultWebhookTimeout = 15 * time.Second
	responseBodyReadLimit = 1024
)

var errWebhookURLRequired = errors.New("webhook url is required")

// Webhook posts the JSON envelope to an HTTP endpoint. Any 2xx response
// counts as accepted.
type Webhook struct {
	httpClient *http.Client
	url        string
	token      string
}

// WebhookOption configures optional webhook behavior.
type WebhookOption func(*Webhook)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *Webhook) {
		if client != nil {
			w.httpClient = client
		}
	}
}

// WithBearerToken sets the Authorization header sent with every call.
func WithBearerToken(token string) WebhookOption {
	return func(w *Webhook) {
		w.token = strings.TrimSpace(token)
	}
}

func NewWebhook(url string, opts ...WebhookOption) (*Webhook, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, errWebhookURLRequired
	}
	w := &Webhook{
		url:        trimmed,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

func (w *Webhook) Name() string     { return "webhook" }
func (w *Webhook) Configured() bool { return w != nil && w.url != "" }

func (w *Webhook) Deliver(ctx context.Context, envelope dispatch.Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal webhook envelope")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", envelope.MessageID)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		body := strings.TrimSpace(string(msg))
		if body == "" {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, body)
	}
	return nil
}
