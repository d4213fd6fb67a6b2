// Package datasource supplies fund snapshots to the rest of the system. An
// Adapter sits in front of a Provider and adds a time-boxed cache, batched
// per-ticker fetching, and stale fallback on failure.
package datasource

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
)

// Provider quotes individual funds from an upstream source.
type Provider interface {
	// Name identifies the source in logs and errors.
	Name() string
	// Tickers returns the funds the provider covers.
	Tickers() []string
	// Quote returns a fresh record for ticker. The adapter owns the result.
	Quote(ctx context.Context, ticker string) (*models.FundSnapshot, error)
}

// ProviderFunc adapts a quote function and a ticker list to Provider.
type ProviderFunc struct {
	name    string
	tickers []string
	quoteFn func(ctx context.Context, ticker string) (*models.FundSnapshot, error)
}

// NewProviderFunc creates a ProviderFunc.
func NewProviderFunc(name string, tickers []string, quote func(ctx context.Context, ticker string) (*models.FundSnapshot, error)) *ProviderFunc {
	return &ProviderFunc{name: name, tickers: tickers, quoteFn: quote}
}

// Name implements Provider.
func (p *ProviderFunc) Name() string { return p.name }

// Tickers implements Provider.
func (p *ProviderFunc) Tickers() []string { return p.tickers }

// Quote implements Provider.
func (p *ProviderFunc) Quote(ctx context.Context, ticker string) (*models.FundSnapshot, error) {
	return p.quoteFn(ctx, ticker)
}

// MockConfig controls the synthetic provider.
type MockConfig struct {
	// Jitter is the relative price perturbation, e.g. 0.01 for +/-1%.
	// Zero returns the seed values unchanged.
	Jitter float64
	// YieldJitter is the absolute annual yield perturbation in points.
	YieldJitter float64
	// Latency simulates upstream delay per quote.
	Latency time.Duration
	// Seed fixes the random source; zero seeds from the clock.
	Seed int64
}

// DefaultMockConfig returns the default mock configuration.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		Jitter:      0.01,
		YieldJitter: 0.5,
	}
}

// MockProvider produces randomly perturbed quotes around a fixed fund list.
type MockProvider struct {
	cfg MockConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockProvider creates a MockProvider.
func NewMockProvider(cfg MockConfig) *MockProvider {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockProvider{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Name implements Provider.
func (m *MockProvider) Name() string { return "mock" }

// Tickers implements Provider.
func (m *MockProvider) Tickers() []string { return SeedTickers() }

// Quote implements Provider.
func (m *MockProvider) Quote(ctx context.Context, ticker string) (*models.FundSnapshot, error) {
	if m.cfg.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.cfg.Latency):
		}
	}

	seed, ok := findSeed(ticker)
	if !ok {
		return nil, errors.NewFetchError(m.Name(), ticker, errors.ErrDataNotFound)
	}

	m.mu.Lock()
	priceShift := (m.rng.Float64()*2 - 1) * m.cfg.Jitter
	yieldShift := (m.rng.Float64()*2 - 1) * m.cfg.YieldJitter
	m.mu.Unlock()

	return fromSeed(seed, seed.Price*(1+priceShift), seed.AnnualYield+yieldShift), nil
}

// fromSeed builds a record from reference fundamentals at the given price
// and annual yield.
func fromSeed(s seedFund, price, annualYield float64) *models.FundSnapshot {
	f := &models.FundSnapshot{
		Ticker:            s.Ticker,
		Sector:            s.Sector,
		Price:             price,
		BookValuePerShare: s.BookValue,
		LastDividend:      s.LastDividend,
		AnnualYield:       annualYield,
		DailyLiquidity:    s.DailyLiquidity,
		NumAssets:         s.NumAssets,
		Manager:           s.Manager,
		CapRate:           s.CapRate,
		FFOYield:          s.FFOYield,
	}
	if price > 0 {
		f.MonthlyYield = s.LastDividend / price * 100
	}
	if s.BookValue > 0 {
		f.PriceToBook = price / s.BookValue
	}
	if s.Sector.HasVacancy() {
		v := s.Vacancy
		f.Vacancy = &v
	}
	return f
}

// FailingProvider wraps a Provider and injects failures, for exercising
// fallback and retry paths.
type FailingProvider struct {
	Provider

	mu          sync.Mutex
	failAll     bool
	failNext    int
	failTickers map[string]bool
	calls       int
}

// NewFailingProvider wraps p.
func NewFailingProvider(p Provider) *FailingProvider {
	return &FailingProvider{Provider: p, failTickers: make(map[string]bool)}
}

// FailAll makes every quote fail until cleared.
func (f *FailingProvider) FailAll(fail bool) {
	f.mu.Lock()
	f.failAll = fail
	f.mu.Unlock()
}

// FailNext makes the next n quotes fail, across all tickers.
func (f *FailingProvider) FailNext(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

// FailTicker makes every quote for ticker fail until cleared.
func (f *FailingProvider) FailTicker(ticker string, fail bool) {
	f.mu.Lock()
	f.failTickers[ticker] = fail
	f.mu.Unlock()
}

// Calls returns the number of Quote calls seen.
func (f *FailingProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Quote implements Provider.
func (f *FailingProvider) Quote(ctx context.Context, ticker string) (*models.FundSnapshot, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failAll || f.failTickers[ticker]
	if !fail && f.failNext > 0 {
		f.failNext--
		fail = true
	}
	f.mu.Unlock()

	if fail {
		return nil, errors.NewFetchError(f.Name(), ticker, errors.New("injected failure"))
	}
	return f.Provider.Quote(ctx, ticker)
}
