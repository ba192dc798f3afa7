package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// Config holds webhook settings. An empty URL disables callbacks.
type Config struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// Webhook POSTs a JSON Callback for each outcome.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg Config) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) Notify(ctx context.Context, batchID string, o domain.Outcome) error {
	body, err := json.Marshal(NewCallback(batchID, o))
	if err != nil {
		return fmt.Errorf("marshal callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
