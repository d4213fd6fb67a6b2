package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"fii-monitor/internal/config"
	"fii-monitor/internal/models"
	"fii-monitor/internal/security"
)

// NATSChannel publishes notifications as JSON to <prefix>.<ticker>, or
// <prefix>.system for notifications without a ticker.
type NATSChannel struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSChannel connects to the configured server.
func NewNATSChannel(cfg config.NATSConfig, logger zerolog.Logger) (*NATSChannel, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("fii-monitor"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", security.RedactURL(nc.ConnectedUrl())).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", security.RedactURL(cfg.URL), err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "fii.alerts"
	}
	return &NATSChannel{conn: nc, prefix: prefix}, nil
}

// Name implements Channel.
func (c *NATSChannel) Name() string { return "nats" }

// IsEnabled implements Channel.
func (c *NATSChannel) IsEnabled() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Subject returns the subject a notification is published on.
func (c *NATSChannel) Subject(n models.Notification) string {
	return Subject(c.prefix, n)
}

// Subject builds the publish subject for n under prefix.
func Subject(prefix string, n models.Notification) string {
	if n.Ticker == "" {
		return prefix + ".system"
	}
	return prefix + "." + n.Ticker
}

// Send implements Channel.
func (c *NATSChannel) Send(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	if err := c.conn.Publish(c.Subject(n), payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", c.Subject(n), err)
	}
	return nil
}

// Close drains and closes the connection.
func (c *NATSChannel) Close() {
	if c.conn != nil {
		_ = c.conn.Drain()
	}
}
