package store

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"fii-monitor/internal/errors"
)

// Property: For any key and value, writing to the SQLite store and reading it
// back returns the same bytes, and the last write to a key wins.
func TestProperty_SQLiteRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kv_property.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	keys := []string{KeyPortfolio, KeyTransactions, KeyAlerts, KeyNotifications, KeyPreferences, KeyCache}

	properties.Property("set then get returns the last value written", prop.ForAll(
		func(keyIdx int, first, second []byte) bool {
			ctx := context.Background()
			key := fmt.Sprintf("%s-%d", keys[keyIdx], time.Now().UnixNano())

			if err := store.Set(ctx, key, first); err != nil {
				t.Logf("first set: %v", err)
				return false
			}
			if err := store.Set(ctx, key, second); err != nil {
				t.Logf("second set: %v", err)
				return false
			}

			got, err := store.Get(ctx, key)
			if err != nil {
				t.Logf("get: %v", err)
				return false
			}
			return bytes.Equal(got, second)
		},
		gen.IntRange(0, len(keys)-1),
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestSQLiteStore_DeleteAndMissing(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if _, err := store.Get(ctx, "absent"); !errors.Is(err, errors.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := store.Set(ctx, KeyPreferences, []byte(`{"dark_mode":true}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := store.UpdatedAt(ctx, KeyPreferences); err != nil {
		t.Fatalf("updated_at: %v", err)
	}
	if err := store.Delete(ctx, KeyPreferences); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, KeyPreferences); !errors.Is(err, errors.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
	}
}
