// Package server exposes the dashboard data over HTTP and a WebSocket
// stream.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"fii-monitor/internal/alerts"
	"fii-monitor/internal/clock"
	"fii-monitor/internal/datasource"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
	"fii-monitor/internal/monitor"
	"fii-monitor/internal/portfolio"
	"fii-monitor/internal/preferences"
	"fii-monitor/internal/stream"
)

// FundSource is the read side of the data source adapter.
type FundSource interface {
	FetchWith(ctx context.Context, opts datasource.FetchOptions) ([]*models.FundSnapshot, error)
	Lookup(ctx context.Context, ticker string) (*models.FundSnapshot, error)
	History(ctx context.Context, ticker string, days int) ([]models.Candle, error)
	Dividends(ctx context.Context, ticker string) ([]models.Dividend, error)
	Stats() datasource.AdapterStats
}

// DefaultRefreshLimit is used when Config.RefreshLimit is unset.
const DefaultRefreshLimit = 5 * time.Second

// Config holds server configuration and the services it serves.
type Config struct {
	Addr    string
	DevMode bool
	Log     zerolog.Logger

	// RefreshLimit spaces client-requested refreshes on one connection.
	RefreshLimit time.Duration
	Clock        clock.Clock

	Source      FundSource
	Monitor     *monitor.Monitor
	Hub         *stream.Hub
	Alerts      *alerts.Service
	Portfolio   *portfolio.Service
	Preferences *preferences.Store
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RefreshLimit <= 0 {
		cfg.RefreshLimit = DefaultRefreshLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	s := &Server{
		router: chi.NewRouter(),
		log:    logging.WithComponent(cfg.Log, "server"),
		cfg:    cfg,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json", "text/csv"))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ws", s.handleWS)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/funds", func(r chi.Router) {
			r.Get("/", s.handleFunds)
			r.Get("/{ticker}", s.handleFund)
			r.Get("/{ticker}/history", s.handleHistory)
			r.Get("/{ticker}/dividends", s.handleDividends)
		})
		r.Get("/screener", s.handleScreener)
		r.Get("/sectors", s.handleSectors)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/", s.handleCreateAlert)
			r.Post("/import", s.handleImportAlerts)
			r.Post("/{id}/toggle", s.handleToggleAlert)
			r.Delete("/{id}", s.handleDeleteAlert)
		})
		r.Get("/notifications", s.handleNotifications)
		r.Delete("/notifications", s.handleClearNotifications)

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handlePortfolio)
			r.Get("/transactions", s.handleTransactions)
			r.Post("/transactions", s.handleAddTransaction)
			r.Delete("/transactions/{id}", s.handleRemoveTransaction)
			r.Put("/plans", s.handleSavePlan)
			r.Delete("/plans/{month}", s.handleDeletePlan)
		})

		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)
		r.Delete("/preferences", s.handleResetPreferences)

		r.Get("/export/{file}", s.handleExport)
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
