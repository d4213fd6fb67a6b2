package datasource

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"fii-monitor/internal/clock"
	"fii-monitor/internal/errors"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
	"fii-monitor/internal/store"
)

// AdapterConfig holds cache and batching settings.
type AdapterConfig struct {
	// TTL is how long a fetched list is served from cache.
	TTL time.Duration
	// BatchSize is the number of tickers quoted concurrently.
	BatchSize int
	// BatchPause is waited between batches.
	BatchPause time.Duration
}

// DefaultAdapterConfig returns the default adapter configuration.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		TTL:       time.Hour,
		BatchSize: 5,
	}
}

// FetchOptions modify a single fetch.
type FetchOptions struct {
	// Force bypasses a valid cache entry.
	Force bool
}

// AdapterStats counts cache outcomes.
type AdapterStats struct {
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Fallbacks int64     `json:"fallbacks"`
	Failures  int64     `json:"failures"`
	Shared    int64     `json:"shared"`
	Funds     int       `json:"funds"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Adapter serves fund snapshots from a Provider behind a time-boxed cache.
type Adapter struct {
	provider Provider
	cfg      AdapterConfig
	clock    clock.Clock
	logger   zerolog.Logger
	state    *store.State

	// flight joins concurrent cache misses onto one provider round.
	flight singleflight.Group

	mu        sync.RWMutex
	funds     []*models.FundSnapshot
	fetchedAt time.Time
	stats     AdapterStats

	historyMu sync.Mutex
	history   map[string]historyEntry
	dividends map[string]dividendEntry
}

// cacheBlob is the persisted form of the snapshot cache.
type cacheBlob struct {
	FetchedAt time.Time              `msgpack:"fetched_at"`
	Funds     []*models.FundSnapshot `msgpack:"funds"`
}

// NewAdapter creates an Adapter. A nil clock uses the system clock.
func NewAdapter(p Provider, cfg AdapterConfig, clk clock.Clock, logger zerolog.Logger) *Adapter {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Adapter{
		provider:  p,
		cfg:       cfg,
		clock:     clk,
		logger:    logging.WithComponent(logger, "datasource"),
		history:   make(map[string]historyEntry),
		dividends: make(map[string]dividendEntry),
	}
}

// WithPersistence stores every successful fetch under store.KeyCache.
func (a *Adapter) WithPersistence(state *store.State) *Adapter {
	a.state = state
	return a
}

// Provider returns the underlying provider.
func (a *Adapter) Provider() Provider {
	return a.provider
}

// Fetch returns the current snapshot list, from cache when it is still valid.
func (a *Adapter) Fetch(ctx context.Context) ([]*models.FundSnapshot, error) {
	return a.FetchWith(ctx, FetchOptions{})
}

// FetchWith is Fetch with options. On provider failure the cached list is
// returned even if it has expired; the error only propagates when nothing is
// cached. Callers that miss the cache while a fetch is running, forced or
// not, share its result. The returned records are shared and must not be
// modified.
func (a *Adapter) FetchWith(ctx context.Context, opts FetchOptions) ([]*models.FundSnapshot, error) {
	if !opts.Force {
		if funds, ok := a.fresh(); ok {
			return funds, nil
		}
	}

	v, err, shared := a.flight.Do("snapshot", func() (interface{}, error) {
		return a.refresh(ctx)
	})
	if shared {
		a.mu.Lock()
		a.stats.Shared++
		a.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	return v.([]*models.FundSnapshot), nil
}

// refresh quotes the provider and replaces the cache, falling back to the
// previous list on failure.
func (a *Adapter) refresh(ctx context.Context) ([]*models.FundSnapshot, error) {
	start := a.clock.Now()
	funds, err := a.fetchAll(ctx)
	if err != nil {
		a.mu.Lock()
		a.stats.Failures++
		cached := a.funds
		if cached != nil {
			a.stats.Fallbacks++
		}
		a.mu.Unlock()

		logging.LogFetch(a.logger, a.provider.Name(), len(cached), cached != nil, a.clock.Now().Sub(start), err)
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	now := a.clock.Now()
	a.mu.Lock()
	a.funds = funds
	a.fetchedAt = now
	a.stats.Misses++
	a.stats.Funds = len(funds)
	a.stats.FetchedAt = now
	a.mu.Unlock()

	logging.LogFetch(a.logger, a.provider.Name(), len(funds), false, now.Sub(start), nil)
	a.persist(ctx, funds, now)
	return funds, nil
}

func (a *Adapter) fresh() ([]*models.FundSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.funds == nil || a.clock.Now().Sub(a.fetchedAt) >= a.cfg.TTL {
		return nil, false
	}
	a.stats.Hits++
	return a.funds, true
}

type quoteResult struct {
	index int
	fund  *models.FundSnapshot
	err   error
}

// fetchAll quotes every ticker in batches. Per-ticker failures are logged
// and skipped; only a fetch where every ticker fails is an error.
func (a *Adapter) fetchAll(ctx context.Context) ([]*models.FundSnapshot, error) {
	tickers := a.provider.Tickers()
	if len(tickers) == 0 {
		return nil, errors.NewFetchError(a.provider.Name(), "", errors.ErrDataNotFound)
	}

	slots := make([]*models.FundSnapshot, len(tickers))
	var lastErr error
	failed := 0

	for start := 0; start < len(tickers); start += a.cfg.BatchSize {
		if start > 0 && a.cfg.BatchPause > 0 {
			if err := a.pause(ctx); err != nil {
				return nil, errors.NewFetchError(a.provider.Name(), "", err)
			}
		}

		end := start + a.cfg.BatchSize
		if end > len(tickers) {
			end = len(tickers)
		}

		p := pool.NewWithResults[quoteResult]().WithMaxGoroutines(end - start)
		for i := start; i < end; i++ {
			i, ticker := i, tickers[i]
			p.Go(func() quoteResult {
				return a.quote(ctx, i, ticker)
			})
		}

		for _, r := range p.Wait() {
			if r.err != nil {
				failed++
				lastErr = r.err
				a.logger.Warn().Err(r.err).Str("ticker", tickers[r.index]).Msg("Skipping ticker")
				continue
			}
			slots[r.index] = r.fund
		}
	}

	funds := make([]*models.FundSnapshot, 0, len(tickers)-failed)
	for _, f := range slots {
		if f != nil {
			funds = append(funds, f)
		}
	}
	if len(funds) == 0 {
		return nil, errors.NewFetchError(a.provider.Name(), "", fmt.Errorf("all %d tickers failed: %w", len(tickers), lastErr))
	}
	return funds, nil
}

// pause waits BatchPause on the adapter clock.
func (a *Adapter) pause(ctx context.Context) error {
	done := make(chan struct{})
	t := a.clock.AfterFunc(a.cfg.BatchPause, func() { close(done) })
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// quote fetches and sanitizes one ticker. A panicking provider is reported
// as that ticker's failure.
func (a *Adapter) quote(ctx context.Context, index int, ticker string) quoteResult {
	var (
		fund *models.FundSnapshot
		err  error
	)
	var pc panics.Catcher
	pc.Try(func() {
		fund, err = a.provider.Quote(ctx, ticker)
	})
	if r := pc.Recovered(); r != nil {
		return quoteResult{index: index, err: errors.NewFetchError(a.provider.Name(), ticker, r.AsError())}
	}
	if err != nil {
		return quoteResult{index: index, err: err}
	}
	if fund == nil {
		return quoteResult{index: index, err: errors.NewFetchError(a.provider.Name(), ticker, errors.ErrDataNotFound)}
	}
	if err := sanitize(fund, a.clock.Now()); err != nil {
		return quoteResult{index: index, err: err}
	}
	return quoteResult{index: index, fund: fund}
}

// sanitize validates a quoted record, rounds its numbers and fills the
// derived fields.
func sanitize(f *models.FundSnapshot, now time.Time) error {
	if f.Ticker == "" {
		return errors.NewValidationError("ticker", f.Ticker, "ticker is required")
	}
	if f.Sector == "" {
		return errors.NewValidationError("sector", f.Sector, "sector is required")
	}

	numbers := []*float64{
		&f.Price, &f.BookValuePerShare, &f.LastDividend, &f.MonthlyYield,
		&f.AnnualYield, &f.PriceToBook, &f.DailyLiquidity, &f.CapRate, &f.FFOYield,
	}
	if f.Vacancy != nil {
		numbers = append(numbers, f.Vacancy)
	}
	for _, n := range numbers {
		if math.IsNaN(*n) || math.IsInf(*n, 0) {
			return errors.NewValidationError("numbers", f.Ticker, "non-finite indicator")
		}
		*n = Round2(*n)
	}
	if f.Price <= 0 {
		return errors.NewValidationError("price", f.Price, "price must be positive")
	}

	derive(f)
	f.UpdatedAt = now
	return nil
}

// Cached returns the cached list and when it was fetched, regardless of age.
func (a *Adapter) Cached() ([]*models.FundSnapshot, time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.funds, a.fetchedAt, a.funds != nil
}

// Invalidate expires the cache. The list is kept as a failure fallback.
func (a *Adapter) Invalidate() {
	a.mu.Lock()
	a.fetchedAt = time.Time{}
	a.mu.Unlock()
}

// Stats returns cache counters.
func (a *Adapter) Stats() AdapterStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

func (a *Adapter) persist(ctx context.Context, funds []*models.FundSnapshot, at time.Time) {
	if a.state == nil {
		return
	}
	raw, err := msgpack.Marshal(cacheBlob{FetchedAt: at, Funds: funds})
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to encode fund cache")
		return
	}
	if err := a.state.SaveRaw(ctx, store.KeyCache, raw); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist fund cache")
	}
}

// Warm loads a previously persisted cache. The original fetch time is kept,
// so an old blob only serves as a fallback. It reports whether a cache was
// loaded.
func (a *Adapter) Warm(ctx context.Context) (bool, error) {
	if a.state == nil {
		return false, nil
	}
	raw, found, err := a.state.LoadRaw(ctx, store.KeyCache)
	if err != nil || !found {
		return false, err
	}

	var blob cacheBlob
	if err := msgpack.Unmarshal(raw, &blob); err != nil {
		return false, errors.NewStoreError("decode", store.KeyCache, fmt.Errorf("%w: %v", errors.ErrDecode, err))
	}
	if len(blob.Funds) == 0 {
		return false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.funds != nil {
		return false, nil
	}
	a.funds = blob.Funds
	a.fetchedAt = blob.FetchedAt
	a.stats.Funds = len(blob.Funds)
	a.stats.FetchedAt = blob.FetchedAt
	a.logger.Info().Int("funds", len(blob.Funds)).Time("fetched_at", blob.FetchedAt).Msg("Fund cache warmed")
	return true, nil
}
