// Package preferences loads and saves user display settings.
package preferences

import (
	"context"
	"regexp"
	"sync"

	"github.com/rs/zerolog"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
	"fii-monitor/internal/screener"
	"fii-monitor/internal/store"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Defaults returns the stock preferences.
func Defaults() models.Preferences {
	return models.Preferences{
		SegmentColors:  models.DefaultSegmentColors(),
		DefaultFilters: screener.DefaultFilter(),
		TableColumns:   append([]string(nil), screener.Columns...),
		DefaultSort:    "-score",
	}
}

// Validate checks colors and the sort column.
func Validate(p models.Preferences) error {
	for sec, c := range p.SegmentColors {
		if !colorPattern.MatchString(c) {
			return errors.NewValidationError("segment_colors."+string(sec), c, "expected #rrggbb")
		}
	}
	if p.DefaultSort != "" {
		if _, _, err := screener.ParseSort(p.DefaultSort); err != nil {
			return err
		}
	}
	for _, col := range p.TableColumns {
		if _, _, err := screener.ParseSort(col); err != nil {
			return err
		}
	}
	return nil
}

// Store reads and writes preferences through the key/value store, filling
// missing fields from Defaults.
type Store struct {
	state  *store.State
	logger zerolog.Logger

	mu      sync.Mutex
	current *models.Preferences
}

// NewStore creates a preferences Store.
func NewStore(state *store.State, logger zerolog.Logger) *Store {
	return &Store{state: state, logger: logging.WithComponent(logger, "preferences")}
}

// Get returns the saved preferences or the defaults.
func (s *Store) Get(ctx context.Context) (models.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return clone(*s.current), nil
	}
	p := Defaults()
	found, err := s.state.Load(ctx, store.KeyPreferences, &p)
	if err != nil {
		return Defaults(), err
	}
	if found {
		fill(&p)
	}
	s.current = &p
	return clone(p), nil
}

// Set validates and saves p.
func (s *Store) Set(ctx context.Context, p models.Preferences) (models.Preferences, error) {
	fill(&p)
	if err := Validate(p); err != nil {
		return models.Preferences{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Save(ctx, store.KeyPreferences, p); err != nil {
		return models.Preferences{}, err
	}
	s.current = &p
	s.logger.Debug().Bool("dark_mode", p.DarkMode).Str("sort", p.DefaultSort).Msg("Preferences saved")
	return clone(p), nil
}

// Reset restores the defaults.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Delete(ctx, store.KeyPreferences); err != nil && !errors.Is(err, errors.ErrKeyNotFound) {
		return err
	}
	s.current = nil
	return nil
}

func fill(p *models.Preferences) {
	def := Defaults()
	if p.SegmentColors == nil {
		p.SegmentColors = def.SegmentColors
	} else {
		for sec, c := range def.SegmentColors {
			if _, ok := p.SegmentColors[sec]; !ok {
				p.SegmentColors[sec] = c
			}
		}
	}
	if len(p.TableColumns) == 0 {
		p.TableColumns = def.TableColumns
	}
	if p.DefaultSort == "" {
		p.DefaultSort = def.DefaultSort
	}
	if p.DefaultFilters.Limit <= 0 {
		p.DefaultFilters.Limit = def.DefaultFilters.Limit
	}
}

func clone(p models.Preferences) models.Preferences {
	colors := make(map[models.Sector]string, len(p.SegmentColors))
	for k, v := range p.SegmentColors {
		colors[k] = v
	}
	p.SegmentColors = colors
	p.TableColumns = append([]string(nil), p.TableColumns...)
	p.DefaultFilters.Sectors = append([]models.Sector(nil), p.DefaultFilters.Sectors...)
	return p
}
