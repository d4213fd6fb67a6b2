package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fii-monitor/internal/clock"
)

var errUpstream = errors.New("upstream down")

func fail(ctx context.Context) (int, error) { return 0, errUpstream }
func ok(ctx context.Context) (int, error)   { return 1, nil }

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker("brapi", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Cooldown:         time.Minute,
	}, clk)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := Execute(ctx, cb, fail)
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := Execute(ctx, cb, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	clk.Advance(time.Minute)
	v, err := Execute(ctx, cb, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, CircuitClosed, cb.State())

	stats := cb.Stats()
	assert.Equal(t, int64(1), stats.TotalRejected)
	assert.Equal(t, int64(2), stats.TotalFailures)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker("brapi", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Second}, clk)
	ctx := context.Background()

	_, _ = Execute(ctx, cb, fail)
	clk.Advance(time.Second)
	_, _ = Execute(ctx, cb, fail)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_CancelledCallsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("brapi", CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Minute}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, cb, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(2, 2, clk)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	clk.Advance(500 * time.Millisecond)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(1, 1, clk)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
}
