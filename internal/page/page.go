// Package page owns the per-page state of the dashboard views. A page is
// created on entry, fed by the realtime monitor while active, redrawn through
// the render scheduler and discarded on leave.
package page

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fii-monitor/internal/alerts"
	"fii-monitor/internal/clock"
	"fii-monitor/internal/errors"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
	"fii-monitor/internal/monitor"
	"fii-monitor/internal/portfolio"
	"fii-monitor/internal/render"
	"fii-monitor/internal/screener"
	"fii-monitor/internal/sector"
)

// Kind identifies a page.
type Kind string

const (
	Dashboard  Kind = "dashboard"
	Monitoring Kind = "monitoramento"
	Portfolio  Kind = "carteira"
	Alerts     Kind = "alertas"
	Sectors    Kind = "analise-setorial"
)

// Kinds lists every page.
var Kinds = []Kind{Dashboard, Monitoring, Portfolio, Alerts, Sectors}

// ParseKind validates a page name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.NewValidationError("page", s, "unknown page")
}

// Fetcher returns the current snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) ([]*models.FundSnapshot, error)
}

// Subscriber registers for live snapshots.
type Subscriber interface {
	Subscribe(id string, cb monitor.Subscriber) func()
}

// Enqueuer schedules redraw jobs.
type Enqueuer interface {
	Enqueue(id string, job render.Job, priority int)
}

// Deps are the collaborators a page reads from. Alerts and Portfolio may be
// nil for pages that do not use them.
type Deps struct {
	Source    Fetcher
	Monitor   Subscriber
	Scheduler Enqueuer
	Alerts    *alerts.Service
	Portfolio *portfolio.Service
	Clock     clock.Clock
	// Debounce coalesces bursts of monitor ticks into one redraw. Zero
	// redraws on every tick.
	Debounce time.Duration
	// Filter returns the monitoring filter; nil uses the default.
	Filter func() models.ScreenFilter
	// OnRender is called with every new view, outside the page lock.
	OnRender func(View)
}

// DashboardSummary is the headline block of the dashboard.
type DashboardSummary struct {
	Funds      int                 `json:"funds"`
	AvgYield   float64             `json:"avg_yield"`
	AvgPB      float64             `json:"avg_pb"`
	TopScore   []models.RankedFund `json:"top_score"`
	TopUpside  []models.RankedFund `json:"top_upside"`
	Undervalue int                 `json:"undervalued"`
}

// RuleView is an alert rule with its current status.
type RuleView struct {
	models.AlertRule
	Status string `json:"status"`
}

// View is the last rendered state of a page. Only the fields of the page's
// kind are set.
type View struct {
	Page      Kind      `json:"page"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`

	Dashboard     *DashboardSummary     `json:"dashboard,omitempty"`
	Ranked        []models.RankedFund   `json:"ranked,omitempty"`
	Portfolio     *portfolio.Summary    `json:"portfolio,omitempty"`
	Plans         []portfolio.PlanView  `json:"plans,omitempty"`
	Rules         []RuleView            `json:"rules,omitempty"`
	Notifications []models.Notification `json:"notifications,omitempty"`
	Sectors       []sector.Summary      `json:"sectors,omitempty"`
}

// Page is one active view.
type Page struct {
	kind   Kind
	deps   Deps
	logger zerolog.Logger

	redraw *render.Debouncer

	mu          sync.Mutex
	active      bool
	view        *View
	version     int
	latest      []*models.FundSnapshot
	unsubscribe func()
}

// New creates an inactive page.
func New(kind Kind, deps Deps, logger zerolog.Logger) (*Page, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Scheduler == nil {
		return nil, errors.New("page needs a source and a scheduler")
	}
	if kind == Portfolio && deps.Portfolio == nil {
		return nil, errors.New("portfolio page needs the portfolio service")
	}
	if kind == Alerts && deps.Alerts == nil {
		return nil, errors.New("alerts page needs the alerts service")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	p := &Page{
		kind:   kind,
		deps:   deps,
		logger: logging.WithComponent(logger, "page").With().Str("page", string(kind)).Logger(),
	}
	if deps.Debounce > 0 {
		p.redraw = render.Debounce(p.scheduleLatest, deps.Debounce, deps.Clock)
	}
	return p, nil
}

// Kind returns the page kind.
func (p *Page) Kind() Kind { return p.kind }

// Enter loads the page: one fetch, the initial render through the
// scheduler, a monitor subscription and an alert check on the same
// snapshot. Entering an active page is a no-op.
func (p *Page) Enter(ctx context.Context) error {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return nil
	}
	p.active = true
	p.mu.Unlock()

	funds, err := p.deps.Source.Fetch(ctx)
	if err != nil {
		p.mu.Lock()
		p.active = false
		p.mu.Unlock()
		return errors.Wrapf(err, "loading %s", p.kind)
	}

	p.schedule(funds)

	if p.deps.Monitor != nil {
		unsub := p.deps.Monitor.Subscribe("page:"+string(p.kind), func(funds []*models.FundSnapshot) error {
			p.tick(funds)
			return nil
		})
		p.mu.Lock()
		if p.active {
			p.unsubscribe = unsub
			unsub = nil
		}
		p.mu.Unlock()
		if unsub != nil {
			unsub()
		}
	}

	if p.deps.Alerts != nil {
		if _, err := p.deps.Alerts.Check(ctx, funds); err != nil {
			p.logger.Warn().Err(err).Msg("Alert check on entry failed")
		}
	}
	p.logger.Debug().Int("funds", len(funds)).Msg("Page entered")
	return nil
}

// Leave unsubscribes from the monitor and discards the page state.
func (p *Page) Leave() {
	p.mu.Lock()
	unsub := p.unsubscribe
	p.unsubscribe = nil
	p.active = false
	p.view = nil
	p.latest = nil
	p.mu.Unlock()

	if p.redraw != nil {
		p.redraw.Cancel()
	}
	if unsub != nil {
		unsub()
	}
	p.logger.Debug().Msg("Page left")
}

// Active reports whether the page is entered.
func (p *Page) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// View returns the last rendered view, if any.
func (p *Page) View() (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.view == nil {
		return View{}, false
	}
	return *p.view, true
}

// priorities order pages' redraws when several are pending in one frame.
var priorities = map[Kind]int{
	Dashboard:  3,
	Alerts:     2,
	Monitoring: 1,
	Portfolio:  1,
	Sectors:    0,
}

// tick handles a monitor snapshot. With a debounce only the last snapshot of
// a burst is drawn.
func (p *Page) tick(funds []*models.FundSnapshot) {
	if p.redraw == nil {
		p.schedule(funds)
		return
	}
	p.mu.Lock()
	p.latest = funds
	p.mu.Unlock()
	p.redraw.Call()
}

func (p *Page) scheduleLatest() {
	p.mu.Lock()
	funds, active := p.latest, p.active
	p.latest = nil
	p.mu.Unlock()
	if active && funds != nil {
		p.schedule(funds)
	}
}

func (p *Page) schedule(funds []*models.FundSnapshot) {
	p.deps.Scheduler.Enqueue(string(p.kind), func() error {
		return p.render(funds)
	}, priorities[p.kind])
}

func (p *Page) render(funds []*models.FundSnapshot) error {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if !active {
		return nil
	}

	v := View{Page: p.kind, UpdatedAt: p.deps.Clock.Now()}
	switch p.kind {
	case Dashboard:
		d := Summarize(funds)
		v.Dashboard = &d
	case Monitoring:
		filter := screener.DefaultFilter()
		if p.deps.Filter != nil {
			filter = p.deps.Filter()
		}
		v.Ranked = screener.Apply(funds, filter)
	case Portfolio:
		sum := p.deps.Portfolio.Summary(funds)
		v.Portfolio = &sum
		v.Plans = p.deps.Portfolio.Plans()
	case Alerts:
		for _, r := range p.deps.Alerts.List() {
			v.Rules = append(v.Rules, RuleView{AlertRule: r, Status: alerts.Status(r, funds)})
		}
		v.Notifications = p.deps.Alerts.History(0)
	case Sectors:
		v.Sectors = sector.Analyze(funds)
	default:
		return fmt.Errorf("no renderer for page %s", p.kind)
	}

	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return nil
	}
	p.version++
	v.Version = p.version
	p.view = &v
	p.mu.Unlock()

	if p.deps.OnRender != nil {
		p.deps.OnRender(v)
	}
	return nil
}

// Summarize builds the dashboard headline from a snapshot.
func Summarize(funds []*models.FundSnapshot) DashboardSummary {
	d := DashboardSummary{Funds: len(funds)}
	if len(funds) == 0 {
		return d
	}
	var yield, pb float64
	for _, f := range funds {
		yield += f.AnnualYield
		pb += f.PriceToBook
		if f.PriceToBook > 0 && f.PriceToBook < 1 {
			d.Undervalue++
		}
	}
	d.AvgYield = round2(yield / float64(len(funds)))
	d.AvgPB = round2(pb / float64(len(funds)))

	byScore, _ := screener.Sort(funds, "score", true)
	d.TopScore = screener.Rank(top(byScore, 5))

	byUpside := append([]*models.FundSnapshot(nil), funds...)
	sort.SliceStable(byUpside, func(i, j int) bool { return byUpside[i].Upside > byUpside[j].Upside })
	d.TopUpside = screener.Rank(top(byUpside, 5))
	return d
}

func top(funds []*models.FundSnapshot, n int) []*models.FundSnapshot {
	if len(funds) > n {
		return funds[:n]
	}
	return funds
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
