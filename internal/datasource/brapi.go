package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"fii-monitor/internal/clock"
	"fii-monitor/internal/errors"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
	"fii-monitor/internal/resilience"
	"fii-monitor/internal/security"
	"fii-monitor/pkg/utils"
)

// BrapiConfig configures the brapi quote provider.
type BrapiConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RequestsPerSecond bounds outbound calls; zero disables limiting.
	RequestsPerSecond float64
	Retry             utils.RetryConfig
	Breaker           resilience.CircuitBreakerConfig
}

// DefaultBrapiConfig returns the default brapi configuration.
func DefaultBrapiConfig() BrapiConfig {
	return BrapiConfig{
		BaseURL:           "https://brapi.dev/api",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		Retry:             utils.DefaultRetryConfig(),
		Breaker:           resilience.DefaultCircuitBreakerConfig(),
	}
}

type brapiQuote struct {
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
}

type brapiResponse struct {
	Results []brapiQuote `json:"results"`
	Error   bool         `json:"error"`
	Message string       `json:"message"`
}

// BrapiProvider quotes live prices from brapi.dev and merges them into the
// reference fundamentals of the seed list.
type BrapiProvider struct {
	client  *resty.Client
	cfg     BrapiConfig
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewBrapiProvider creates a BrapiProvider.
func NewBrapiProvider(cfg BrapiConfig, clk clock.Clock, logger zerolog.Logger) *BrapiProvider {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	retry := cfg.Retry
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) && !errors.Is(err, errors.ErrDataNotFound)
	}
	cfg.Retry = retry

	return &BrapiProvider{
		client:  client,
		cfg:     cfg,
		limiter: resilience.NewRateLimiter(cfg.RequestsPerSecond, 5, clk),
		breaker: resilience.NewCircuitBreaker("brapi", cfg.Breaker, clk),
		logger:  logging.WithComponent(logger, "brapi"),
	}
}

// Name implements Provider.
func (b *BrapiProvider) Name() string { return "brapi" }

// Tickers implements Provider.
func (b *BrapiProvider) Tickers() []string { return SeedTickers() }

// Breaker exposes the circuit breaker for status reporting.
func (b *BrapiProvider) Breaker() *resilience.CircuitBreaker { return b.breaker }

// Quote implements Provider.
func (b *BrapiProvider) Quote(ctx context.Context, ticker string) (*models.FundSnapshot, error) {
	seed, ok := findSeed(ticker)
	if !ok {
		return nil, errors.NewFetchError(b.Name(), ticker, errors.ErrDataNotFound)
	}

	price, err := utils.RetryWithResult(ctx, b.cfg.Retry, func() (float64, error) {
		return resilience.Execute(ctx, b.breaker, func(ctx context.Context) (float64, error) {
			return b.price(ctx, ticker)
		})
	})
	if err != nil {
		return nil, errors.NewFetchError(b.Name(), ticker, err)
	}

	// The yield follows the live price: same distribution, new denominator.
	annualYield := seed.AnnualYield * seed.Price / price
	return fromSeed(seed, price, annualYield), nil
}

func (b *BrapiProvider) price(ctx context.Context, ticker string) (float64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req := b.client.R().SetContext(ctx)
	if b.cfg.Token != "" {
		req.SetQueryParam("token", b.cfg.Token)
	}
	resp, err := req.Get("/quote/" + ticker)
	if err != nil {
		return 0, security.RedactError(err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return 0, errors.ErrDataNotFound
	}
	if resp.IsError() {
		return 0, fmt.Errorf("brapi returned status %d", resp.StatusCode())
	}

	var body brapiResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	if body.Error {
		return 0, fmt.Errorf("brapi error: %s", body.Message)
	}
	for _, q := range body.Results {
		if q.Symbol == ticker && q.RegularMarketPrice > 0 {
			return q.RegularMarketPrice, nil
		}
	}
	return 0, errors.ErrDataNotFound
}
