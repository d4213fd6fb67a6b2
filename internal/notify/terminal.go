package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"fii-monitor/internal/models"
)

// TerminalChannel prints notifications with level colors and rings the bell
// for alerts.
type TerminalChannel struct {
	mu     sync.Mutex
	out    io.Writer
	bell   bool
	colors map[models.NotificationLevel]*color.Color
}

// NewTerminalChannel creates a TerminalChannel writing to out, or stdout
// when out is nil.
func NewTerminalChannel(out io.Writer) *TerminalChannel {
	if out == nil {
		out = os.Stdout
	}
	return &TerminalChannel{
		out:  out,
		bell: true,
		colors: map[models.NotificationLevel]*color.Color{
			models.LevelAlert:   color.New(color.FgMagenta, color.Bold),
			models.LevelInfo:    color.New(color.FgCyan),
			models.LevelWarning: color.New(color.FgYellow),
			models.LevelError:   color.New(color.FgRed, color.Bold),
		},
	}
}

// SetBell enables or disables the terminal bell.
func (t *TerminalChannel) SetBell(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bell = enabled
}

// Name implements Channel.
func (t *TerminalChannel) Name() string { return "terminal" }

// IsEnabled implements Channel.
func (t *TerminalChannel) IsEnabled() bool { return true }

// Send implements Channel.
func (t *TerminalChannel) Send(ctx context.Context, n models.Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.colors[n.Level]
	if !ok {
		c = color.New(color.Reset)
	}

	if t.bell && n.Level == models.LevelAlert {
		fmt.Fprint(t.out, "\a")
	}
	stamp := n.Timestamp.Format("15:04:05")
	if _, err := c.Fprintf(t.out, "[%s] %s\n", stamp, n.Title); err != nil {
		return err
	}
	_, err := fmt.Fprintf(t.out, "  %s\n", n.Message)
	return err
}
