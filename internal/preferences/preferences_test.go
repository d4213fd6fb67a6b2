package preferences

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
	"fii-monitor/internal/store"
)

func TestStore_DefaultsSaveAndReset(t *testing.T) {
	ctx := context.Background()
	state := store.NewState(store.NewMemoryStore(), nil)
	s := NewStore(state, zerolog.Nop())

	p, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "#36a2eb", p.SegmentColors[models.SectorLogistics])
	assert.Equal(t, 30, p.DefaultFilters.Limit)
	assert.Equal(t, "-score", p.DefaultSort)

	p.DarkMode = true
	p.SegmentColors = map[models.Sector]string{models.SectorShopping: "#000000"}
	p.DefaultSort = "dy"
	saved, err := s.Set(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "#000000", saved.SegmentColors[models.SectorShopping])
	assert.Equal(t, "#36a2eb", saved.SegmentColors[models.SectorLogistics], "missing colors are filled")

	fresh := NewStore(state, zerolog.Nop())
	loaded, err := fresh.Get(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.DarkMode)
	assert.Equal(t, "dy", loaded.DefaultSort)

	require.NoError(t, fresh.Reset(ctx))
	reset, err := fresh.Get(ctx)
	require.NoError(t, err)
	assert.False(t, reset.DarkMode)
}

func TestStore_GetReturnsCopies(t *testing.T) {
	s := NewStore(store.NewState(store.NewMemoryStore(), nil), zerolog.Nop())
	a, err := s.Get(context.Background())
	require.NoError(t, err)
	a.SegmentColors[models.SectorLogistics] = "#ffffff"

	b, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "#36a2eb", b.SegmentColors[models.SectorLogistics])
}

func TestValidate(t *testing.T) {
	p := Defaults()
	require.NoError(t, Validate(p))

	p.SegmentColors[models.SectorHybrid] = "yellow"
	assert.True(t, errors.Is(Validate(p), errors.ErrInputValidation))

	p = Defaults()
	p.DefaultSort = "volume"
	assert.Error(t, Validate(p))

	_, err := NewStore(store.NewState(store.NewMemoryStore(), nil), zerolog.Nop()).Set(context.Background(), p)
	assert.Error(t, err)
}
