// Package notify fans notifications out to the configured channels and
// implements the user-visible warning surface.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fii-monitor/internal/config"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
)

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Warner surfaces warnings and errors to the user without blocking.
type Warner interface {
	Warning(title, message string)
	Error(title, message string)
}

// Channel is one delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, n models.Notification) error
	IsEnabled() bool
}

// Level filters which notifications are delivered.
type Level string

const (
	LevelAll        Level = "all"
	LevelAlertsOnly Level = "alerts_only"
	LevelErrorsOnly Level = "errors_only"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	level  Level
	logger zerolog.Logger

	mu       sync.RWMutex
	channels []Channel
}

// NewMultiNotifier creates a MultiNotifier with the terminal and webhook
// channels enabled in cfg. Channels that need a connection, such as NATS,
// are added with AddChannel.
func NewMultiNotifier(cfg config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		level:  Level(cfg.Level),
		logger: logging.WithComponent(logger, "notify"),
	}
	if mn.level == "" {
		mn.level = LevelAll
	}

	if cfg.Terminal {
		mn.channels = append(mn.channels, NewTerminalChannel(nil))
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookChannel(cfg.Webhook))
	}
	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the registered channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	names := make([]string, 0, len(mn.channels))
	for _, ch := range mn.channels {
		names = append(names, ch.Name())
	}
	return names
}

func (mn *MultiNotifier) shouldSend(level models.NotificationLevel) bool {
	switch mn.level {
	case LevelAlertsOnly:
		return level == models.LevelAlert
	case LevelErrorsOnly:
		return level == models.LevelError
	default:
		return true
	}
}

// Notify sends n to every enabled channel. A failing channel does not stop
// delivery to the others; their errors are joined.
func (mn *MultiNotifier) Notify(ctx context.Context, n models.Notification) error {
	if !mn.shouldSend(n.Level) {
		return nil
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Warning implements Warner.
func (mn *MultiNotifier) Warning(title, message string) {
	mn.system(models.LevelWarning, title, message)
}

// Error implements Warner.
func (mn *MultiNotifier) Error(title, message string) {
	mn.system(models.LevelError, title, message)
}

// Info sends an informational notification.
func (mn *MultiNotifier) Info(title, message string) {
	mn.system(models.LevelInfo, title, message)
}

func (mn *MultiNotifier) system(level models.NotificationLevel, title, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := mn.Notify(ctx, models.Notification{
		Level:   level,
		Title:   title,
		Message: message,
	})
	if err != nil {
		mn.logger.Warn().Err(err).Str("title", title).Msg("Failed to deliver notification")
	}
}

// Close closes channels that hold connections.
func (mn *MultiNotifier) Close() {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	for _, ch := range mn.channels {
		if c, ok := ch.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// Recorder is a Channel that keeps everything it receives.
type Recorder struct {
	mu   sync.Mutex
	sent []models.Notification
}

// Name implements Channel.
func (r *Recorder) Name() string { return "recorder" }

// IsEnabled implements Channel.
func (r *Recorder) IsEnabled() bool { return true }

// Send implements Channel.
func (r *Recorder) Send(ctx context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the received notifications.
func (r *Recorder) Sent() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
