package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fii-monitor/internal/config"
	"fii-monitor/internal/models"
)

type failingChannel struct{}

func (failingChannel) Name() string    { return "broken" }
func (failingChannel) IsEnabled() bool { return true }
func (failingChannel) Send(ctx context.Context, n models.Notification) error {
	return assert.AnError
}

func TestMultiNotifier_FansOutAndFillsDefaults(t *testing.T) {
	mn := NewMultiNotifier(config.NotificationConfig{Level: "all"}, zerolog.Nop())
	rec := &Recorder{}
	mn.AddChannel(failingChannel{})
	mn.AddChannel(rec)

	err := mn.Notify(context.Background(), models.Notification{Level: models.LevelAlert, Title: "Alerta FII: MXRF11"})
	require.Error(t, err, "broken channel error is reported")

	sent := rec.Sent()
	require.Len(t, sent, 1, "remaining channels still receive the notification")
	assert.NotEmpty(t, sent[0].ID)
	assert.False(t, sent[0].Timestamp.IsZero())
}

func TestMultiNotifier_LevelFilter(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"all", 3},
		{"alerts_only", 1},
		{"errors_only", 1},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			mn := NewMultiNotifier(config.NotificationConfig{Level: tt.level}, zerolog.Nop())
			rec := &Recorder{}
			mn.AddChannel(rec)

			_ = mn.Notify(context.Background(), models.Notification{Level: models.LevelAlert})
			mn.Warning("Aviso", "cache antigo")
			mn.Error("Erro", "falha")

			assert.Len(t, rec.Sent(), tt.want)
		})
	}
}

func TestTerminalChannel_Format(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	ch := NewTerminalChannel(&buf)
	ch.SetBell(false)

	require.NoError(t, ch.Send(context.Background(), models.Notification{
		Level:   models.LevelAlert,
		Title:   "Alerta FII: HGLG11",
		Message: "HGLG11 atingiu preço acima de R$15.00 (Atual: R$15.80)",
	}))
	assert.Contains(t, buf.String(), "Alerta FII: HGLG11")
	assert.Contains(t, buf.String(), "  HGLG11 atingiu")
}

func TestWebhookChannel_PostsJSON(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true, URL: srv.URL})
	err := ch.Send(context.Background(), models.Notification{ID: "n1", Level: models.LevelAlert, Ticker: "KNRI11", RuleID: 7, Title: "t", Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, "KNRI11", got.Ticker)
	assert.Equal(t, int64(7), got.RuleID)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	ch = NewWebhookChannel(config.WebhookConfig{Enabled: true, URL: failing.URL})
	assert.Error(t, ch.Send(context.Background(), models.Notification{}))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "fii.alerts.MXRF11", Subject("fii.alerts", models.Notification{Ticker: "MXRF11"}))
	assert.Equal(t, "fii.alerts.system", Subject("fii.alerts", models.Notification{}))
}
