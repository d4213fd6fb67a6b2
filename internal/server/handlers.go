package server

import (
	"encoding/json"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fii-monitor/internal/alerts"
	"fii-monitor/internal/analysis"
	"fii-monitor/internal/datasource"
	"fii-monitor/internal/errors"
	"fii-monitor/internal/export"
	"fii-monitor/internal/models"
	"fii-monitor/internal/screener"
	"fii-monitor/internal/sector"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrInputValidation):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrRuleNotFound), errors.Is(err, errors.ErrKeyNotFound), errors.Is(err, errors.ErrDataNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrInsufficient):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrFetchFailed):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError("body", nil, err.Error())
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(name, raw, "not an integer")
	}
	return v, nil
}

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.NewValidationError(name, raw, "not a number")
	}
	return v, nil
}

func (s *Server) snapshot(r *http.Request) ([]*models.FundSnapshot, error) {
	force := r.URL.Query().Get("force")
	return s.cfg.Source.FetchWith(r.Context(), datasource.FetchOptions{Force: force == "1" || force == "true"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if s.cfg.Source != nil {
		resp["cache"] = s.cfg.Source.Stats()
	}
	if s.cfg.Monitor != nil {
		resp["monitor"] = s.cfg.Monitor.Status()
	}
	if s.cfg.Hub != nil {
		resp["stream"] = s.cfg.Hub.Metrics()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /api/funds?force=1
func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := s.snapshot(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if spec := r.URL.Query().Get("sort"); spec != "" {
		col, desc, err := screener.ParseSort(spec)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if funds, err = screener.Sort(funds, col, desc); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, funds)
}

// GET /api/funds/{ticker}
func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	f, err := s.cfg.Source.Lookup(r.Context(), strings.ToUpper(chi.URLParam(r, "ticker")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

type historyResponse struct {
	Ticker  string           `json:"ticker"`
	Candles []models.Candle  `json:"candles"`
	Average []analysis.Point `json:"moving_average,omitempty"`
	Bands   *analysis.Bands  `json:"bands,omitempty"`
}

// GET /api/funds/{ticker}/history?days=30&ma=20&bands=20
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	days, err := queryInt(r, "days", 30)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ma, err := queryInt(r, "ma", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bands, err := queryInt(r, "bands", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	candles, err := s.cfg.Source.History(r.Context(), ticker, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := historyResponse{Ticker: ticker, Candles: candles}
	if ma > 0 {
		if resp.Average, err = analysis.MovingAverage(candles, ma); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if bands > 0 {
		if resp.Bands, err = analysis.BollingerBands(candles, bands, 2); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /api/funds/{ticker}/dividends
func (s *Server) handleDividends(w http.ResponseWriter, r *http.Request) {
	divs, err := s.cfg.Source.Dividends(r.Context(), strings.ToUpper(chi.URLParam(r, "ticker")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, divs)
}

// screenFilter starts from the saved default filters and applies query
// overrides.
func (s *Server) screenFilter(r *http.Request) (models.ScreenFilter, error) {
	filter := screener.DefaultFilter()
	if s.cfg.Preferences != nil {
		prefs, err := s.cfg.Preferences.Get(r.Context())
		if err != nil {
			return filter, err
		}
		filter = prefs.DefaultFilters
	}

	q := r.URL.Query()
	if raw := q.Get("sectors"); raw != "" {
		filter.Sectors = nil
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter.Sectors = append(filter.Sectors, models.Sector(name))
			}
		}
	}
	var err error
	if filter.MinYield, err = queryFloat(r, "min_yield", filter.MinYield); err != nil {
		return filter, err
	}
	if filter.MaxPB, err = queryFloat(r, "max_pb", filter.MaxPB); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = queryFloat(r, "max_price", filter.MaxPrice); err != nil {
		return filter, err
	}
	if filter.MinScore, err = queryInt(r, "min_score", filter.MinScore); err != nil {
		return filter, err
	}
	if filter.Limit, err = queryInt(r, "limit", filter.Limit); err != nil {
		return filter, err
	}
	return filter, nil
}

// GET /api/screener
func (s *Server) handleScreener(w http.ResponseWriter, r *http.Request) {
	filter, err := s.screenFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	funds, err := s.snapshot(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"filter": filter,
		"funds":  screener.Apply(funds, filter),
	})
}

// GET /api/sectors
func (s *Server) handleSectors(w http.ResponseWriter, r *http.Request) {
	funds, err := s.snapshot(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sectors":              sector.Analyze(funds),
		"yield_pb_correlation": sector.YieldPBCorrelation(funds),
	})
}

type ruleResponse struct {
	models.AlertRule
	Status string `json:"status"`
}

// GET /api/alerts
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	funds, err := s.snapshot(r)
	if err != nil {
		// Rules stay listable while the source is down; all show as pending.
		s.log.Warn().Err(err).Msg("Listing alerts without a snapshot")
	}
	rules := s.cfg.Alerts.List()
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleResponse{AlertRule: rule, Status: alerts.Status(rule, funds)})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type createAlertRequest struct {
	Ticker    string           `json:"ticker"`
	Kind      models.AlertKind `json:"kind"`
	Threshold float64          `json:"threshold"`
}

// POST /api/alerts
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := s.cfg.Alerts.Create(r.Context(), req.Ticker, req.Kind, req.Threshold)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rule)
}

// POST /api/alerts/import with a YAML body
func (s *Server) handleImportAlerts(w http.ResponseWriter, r *http.Request) {
	rules, err := s.cfg.Alerts.Import(r.Context(), r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rules)
}

func ruleID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.NewValidationError("id", raw, "invalid alert id")
	}
	return id, nil
}

// POST /api/alerts/{id}/toggle
func (s *Server) handleToggleAlert(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := s.cfg.Alerts.Toggle(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rule)
}

// DELETE /api/alerts/{id}
func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cfg.Alerts.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/notifications?limit=N
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history := s.cfg.Alerts.History(limit)
	if history == nil {
		history = []models.Notification{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

// DELETE /api/notifications
func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Alerts.ClearHistory(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/portfolio
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	funds, err := s.snapshot(r)
	if err != nil {
		s.log.Warn().Err(err).Msg("Valuing portfolio at cost")
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": s.cfg.Portfolio.Summary(funds),
		"plans":   s.cfg.Portfolio.Plans(),
	})
}

// GET /api/portfolio/transactions
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs := s.cfg.Portfolio.Transactions()
	if txs == nil {
		txs = []models.Transaction{}
	}
	s.writeJSON(w, http.StatusOK, txs)
}

// POST /api/portfolio/transactions
func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	if err := decode(r, &tx); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.cfg.Portfolio.AddTransaction(r.Context(), tx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, saved)
}

// DELETE /api/portfolio/transactions/{id}
func (s *Server) handleRemoveTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Portfolio.RemoveTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/portfolio/plans
func (s *Server) handleSavePlan(w http.ResponseWriter, r *http.Request) {
	var plan models.PurchasePlan
	if err := decode(r, &plan); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.cfg.Portfolio.SavePlan(r.Context(), plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

// DELETE /api/portfolio/plans/{month}
func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Portfolio.DeletePlan(r.Context(), chi.URLParam(r, "month")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/preferences
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.cfg.Preferences.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prefs)
}

// PUT /api/preferences
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs models.Preferences
	if err := decode(r, &prefs); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.cfg.Preferences.Set(r.Context(), prefs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

// DELETE /api/preferences
func (s *Server) handleResetPreferences(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Preferences.Reset(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/export/{file} where file is funds, portfolio or notifications
// with a .csv or .xlsx extension.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	ext := path.Ext(file)
	name := strings.TrimSuffix(file, ext)
	format, err := export.ParseFormat(strings.TrimPrefix(ext, "."))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var write func(w http.ResponseWriter) error
	switch name {
	case "funds":
		funds, err := s.snapshot(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		write = func(w http.ResponseWriter) error { return export.Funds(w, format, funds) }
	case "portfolio":
		funds, err := s.snapshot(r)
		if err != nil {
			s.log.Warn().Err(err).Msg("Exporting portfolio at cost")
		}
		sum := s.cfg.Portfolio.Summary(funds)
		write = func(w http.ResponseWriter) error { return export.Positions(w, format, sum) }
	case "notifications":
		history := s.cfg.Alerts.History(-1)
		write = func(w http.ResponseWriter) error { return export.Notifications(w, format, history) }
	default:
		s.writeError(w, r, errors.NewValidationError("file", file, "unknown export"))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+file+`"`)
	if err := write(w); err != nil {
		s.log.Error().Err(err).Str("file", file).Msg("Export failed")
	}
}
