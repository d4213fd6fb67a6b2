package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"fii-monitor/internal/config"
	"fii-monitor/internal/models"
	"fii-monitor/internal/security"
)

// WebhookChannel posts notifications as JSON.
type WebhookChannel struct {
	url     string
	enabled bool
	client  *resty.Client
}

type webhookPayload struct {
	ID        string `json:"id"`
	Level     string `json:"level"`
	Ticker    string `json:"ticker,omitempty"`
	RuleID    int64  `json:"rule_id,omitempty"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewWebhookChannel creates a WebhookChannel.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "FIIMonitor/1.0"),
	}
}

// Name implements Channel.
func (w *WebhookChannel) Name() string { return "webhook" }

// IsEnabled implements Channel.
func (w *WebhookChannel) IsEnabled() bool { return w.enabled }

// Send implements Channel.
func (w *WebhookChannel) Send(ctx context.Context, n models.Notification) error {
	if !w.enabled {
		return nil
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			ID:        n.ID,
			Level:     string(n.Level),
			Ticker:    n.Ticker,
			RuleID:    n.RuleID,
			Title:     n.Title,
			Message:   n.Message,
			Timestamp: n.Timestamp.Format(time.RFC3339),
		}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", security.RedactError(err))
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
