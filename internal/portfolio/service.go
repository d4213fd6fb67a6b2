package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fii-monitor/internal/clock"
	"fii-monitor/internal/errors"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
	"fii-monitor/internal/store"
)

// PlanView is a purchase plan with its computed status.
type PlanView struct {
	models.PurchasePlan
	Status models.PlanStatus `json:"status"`
}

// Service owns the transaction log and purchase plans. Holdings are always
// derived from the log and cached under the portfolio key.
type Service struct {
	state  *store.State
	clock  clock.Clock
	logger zerolog.Logger

	mu           sync.Mutex
	transactions []models.Transaction
	plans        []models.PurchasePlan
}

// NewService creates a Service. Call Load before use.
func NewService(state *store.State, clk clock.Clock, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		state:  state,
		clock:  clk,
		logger: logging.WithComponent(logger, "portfolio"),
	}
}

// Load restores transactions and plans from the store.
func (s *Service) Load(ctx context.Context) error {
	var txs []models.Transaction
	if _, err := s.state.Load(ctx, store.KeyTransactions, &txs); err != nil {
		return errors.Wrap(err, "loading transactions")
	}
	var plans []models.PurchasePlan
	if _, err := s.state.Load(ctx, store.KeyPurchasePlans, &plans); err != nil {
		return errors.Wrap(err, "loading purchase plans")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = txs
	s.plans = plans
	return nil
}

// AddTransaction validates and records tx. A sell larger than the position
// held at that point is rejected.
func (s *Service) AddTransaction(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if err := ValidateTransaction(&tx); err != nil {
		return models.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Type == models.TransactionSell {
		var before []models.Transaction
		for _, t := range s.transactions {
			if !t.Date.After(tx.Date) {
				before = append(before, t)
			}
		}
		if held := Held(before, tx.Ticker); tx.Quantity > held {
			return models.Transaction{}, errors.NewValidationError("quantity", tx.Quantity,
				fmt.Sprintf("only %d shares of %s held", held, tx.Ticker))
		}
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	txs := append(append([]models.Transaction(nil), s.transactions...), tx)
	if err := s.saveLocked(ctx, txs); err != nil {
		return models.Transaction{}, err
	}
	s.transactions = txs

	s.logger.Info().
		Str("ticker", tx.Ticker).
		Str("type", string(tx.Type)).
		Int("quantity", tx.Quantity).
		Float64("price", tx.Price).
		Msg("Transaction recorded")
	return tx, nil
}

// RemoveTransaction deletes a transaction by id.
func (s *Service) RemoveTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := make([]models.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if t.ID != id {
			txs = append(txs, t)
		}
	}
	if len(txs) == len(s.transactions) {
		return errors.Wrapf(errors.ErrKeyNotFound, "transaction %s", id)
	}
	if err := s.saveLocked(ctx, txs); err != nil {
		return err
	}
	s.transactions = txs
	return nil
}

func (s *Service) saveLocked(ctx context.Context, txs []models.Transaction) error {
	if err := s.state.Save(ctx, store.KeyTransactions, txs); err != nil {
		return err
	}
	return s.state.Save(ctx, store.KeyPortfolio, Recalculate(txs))
}

// Transactions returns the log, most recent first.
func (s *Service) Transactions() []models.Transaction {
	s.mu.Lock()
	out := append([]models.Transaction(nil), s.transactions...)
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// Holdings returns the current positions.
func (s *Service) Holdings() []models.Holding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Recalculate(s.transactions)
}

// Summary values the current positions against snapshot.
func (s *Service) Summary(snapshot []*models.FundSnapshot) Summary {
	return Valuate(s.Holdings(), snapshot)
}

// SavePlan adds or replaces the plan for plan.Month.
func (s *Service) SavePlan(ctx context.Context, plan models.PurchasePlan) (models.PurchasePlan, error) {
	if _, err := time.Parse("2006-01", plan.Month); err != nil {
		return models.PurchasePlan{}, errors.NewValidationError("month", plan.Month, "expected YYYY-MM")
	}
	if len(plan.Items) == 0 {
		return models.PurchasePlan{}, errors.NewValidationError("items", len(plan.Items), "a plan needs at least one fund")
	}
	for i := range plan.Items {
		plan.Items[i].Ticker = strings.ToUpper(strings.TrimSpace(plan.Items[i].Ticker))
		if !tickerPattern.MatchString(plan.Items[i].Ticker) {
			return models.PurchasePlan{}, errors.NewValidationError("ticker", plan.Items[i].Ticker, "expected four letters followed by 11")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plans := make([]models.PurchasePlan, 0, len(s.plans)+1)
	for _, p := range s.plans {
		if p.Month == plan.Month {
			plan.ID = p.ID
			continue
		}
		plans = append(plans, p)
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	plans = append(plans, plan)
	sort.Slice(plans, func(i, j int) bool { return plans[i].Month < plans[j].Month })

	if err := s.state.Save(ctx, store.KeyPurchasePlans, plans); err != nil {
		return models.PurchasePlan{}, err
	}
	s.plans = plans
	return plan, nil
}

// DeletePlan removes the plan for month.
func (s *Service) DeletePlan(ctx context.Context, month string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans := make([]models.PurchasePlan, 0, len(s.plans))
	for _, p := range s.plans {
		if p.Month != month {
			plans = append(plans, p)
		}
	}
	if len(plans) == len(s.plans) {
		return errors.Wrapf(errors.ErrKeyNotFound, "plan %s", month)
	}
	if err := s.state.Save(ctx, store.KeyPurchasePlans, plans); err != nil {
		return err
	}
	s.plans = plans
	return nil
}

// Plans returns every plan, in month order, with its status as of now.
func (s *Service) Plans() []PlanView {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	out := make([]PlanView, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, PlanView{PurchasePlan: p, Status: PlanStatus(p, s.transactions, now)})
	}
	return out
}
