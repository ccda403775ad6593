package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	webhookTimeout = 5 * time.Second

	// Backoff configuration constants
	defaultBackoffBase = 2 * time.Second
	defaultRetryCount  = 3

	// Attachment colors understood by Slack-compatible webhooks
	colorDanger  = "danger"
	colorWarning = "warning"
)

// Static errors for webhook handling
var (
	ErrServerError       = errors.New("server error")
	ErrClientError       = errors.New("client error")
	ErrInvalidWebhookURL = errors.New("invalid webhook URL")
)

// BackoffConfig defines the retry backoff configuration
type BackoffConfig struct {
	Base       time.Duration // Base interval for exponential backoff
	RetryCount int           // Number of retry attempts
}

// DefaultBackoffConfig is the production backoff configuration
var DefaultBackoffConfig = BackoffConfig{
	Base:       defaultBackoffBase,
	RetryCount: defaultRetryCount,
}

// WebhookHandler is a slog.Handler that forwards WARN-and-above records to a
// Slack-compatible webhook. Operators point it at an incident channel so
// denied escalations and refused commands surface without log scraping.
// Records reach this handler already redacted.
type WebhookHandler struct {
	webhookURL    string
	runID         string
	httpClient    *http.Client
	attrs         []slog.Attr // Accumulated attributes from WithAttrs calls
	backoffConfig BackoffConfig
}

// webhookMessage is the Slack-compatible payload shape
type webhookMessage struct {
	Text        string              `json:"text"`
	Attachments []webhookAttachment `json:"attachments,omitempty"`
}

type webhookAttachment struct {
	Color  string         `json:"color,omitempty"`
	Fields []webhookField `json:"fields,omitempty"`
}

type webhookField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// validateWebhookURL validates that the webhook URL is a valid HTTPS URL
func validateWebhookURL(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidWebhookURL)
	}

	parsedURL, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("%w: failed to parse URL: %v", ErrInvalidWebhookURL, err)
	}

	if parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: URL must use HTTPS scheme, got: %s", ErrInvalidWebhookURL, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%w: URL must have a host", ErrInvalidWebhookURL)
	}

	return nil
}

// NewWebhookHandler creates a new WebhookHandler with URL validation and default backoff
func NewWebhookHandler(webhookURL, runID string) (*WebhookHandler, error) {
	return NewWebhookHandlerWithConfig(webhookURL, runID, DefaultBackoffConfig)
}

// NewWebhookHandlerWithConfig creates a new WebhookHandler with URL validation and custom backoff
func NewWebhookHandlerWithConfig(webhookURL, runID string, config BackoffConfig) (*WebhookHandler, error) {
	if err := validateWebhookURL(webhookURL); err != nil {
		return nil, err
	}

	return &WebhookHandler{
		webhookURL: webhookURL,
		runID:      runID,
		httpClient: &http.Client{
			Timeout: webhookTimeout,
		},
		backoffConfig: config,
	}, nil
}

// Enabled reports whether the handler handles records at the given level
func (w *WebhookHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}

// Handle formats the record as a Slack-compatible message and posts it
func (w *WebhookHandler) Handle(ctx context.Context, r slog.Record) error {
	if !w.Enabled(ctx, r.Level) {
		return nil
	}

	color := colorWarning
	if r.Level >= slog.LevelError {
		color = colorDanger
	}

	fields := []webhookField{
		{Title: "run_id", Value: w.runID, Short: true},
		{Title: "level", Value: r.Level.String(), Short: true},
	}
	for _, attr := range w.attrs {
		fields = append(fields, webhookField{Title: attr.Key, Value: attr.Value.String(), Short: true})
	}
	r.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, webhookField{Title: attr.Key, Value: attr.Value.String(), Short: true})
		return true
	})

	msg := webhookMessage{
		Text: r.Message,
		Attachments: []webhookAttachment{
			{Color: color, Fields: fields},
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	return w.post(ctx, payload)
}

// post sends the payload with exponential backoff on server errors
func (w *WebhookHandler) post(ctx context.Context, payload []byte) error {
	var lastErr error
	for attempt := 0; attempt <= w.backoffConfig.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := w.backoffConfig.Base * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = w.postOnce(ctx, payload)
		if lastErr == nil {
			return nil
		}
		// Client errors will not improve on retry
		if errors.Is(lastErr, ErrClientError) {
			return lastErr
		}
	}
	return lastErr
}

func (w *WebhookHandler) postOnce(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: status %d", ErrClientError, resp.StatusCode)
	default:
		return nil
	}
}

// WithAttrs returns a new WebhookHandler with the given attributes accumulated
func (w *WebhookHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(w.attrs)+len(attrs))
	newAttrs = append(newAttrs, w.attrs...)
	newAttrs = append(newAttrs, attrs...)
	return &WebhookHandler{
		webhookURL:    w.webhookURL,
		runID:         w.runID,
		httpClient:    w.httpClient,
		attrs:         newAttrs,
		backoffConfig: w.backoffConfig,
	}
}

// WithGroup returns the handler unchanged; webhook messages are flat
func (w *WebhookHandler) WithGroup(_ string) slog.Handler {
	return w
}
