package store

import (
	"context"
	"encoding/json"
	"fmt"

	"fii-monitor/internal/errors"
)

// State reads and writes JSON values through a KV, routing SensitiveKeys
// through the sensitive codec. Access is read-modify-write without locking:
// concurrent writers to one key are last-writer-wins.
type State struct {
	kv        KV
	plain     Codec
	sensitive Codec
}

// NewState wraps kv. A nil sensitive codec defaults to ObfuscatedCodec.
func NewState(kv KV, sensitive Codec) *State {
	if sensitive == nil {
		sensitive = ObfuscatedCodec{}
	}
	return &State{kv: kv, plain: PlainCodec{}, sensitive: sensitive}
}

// KV returns the underlying store.
func (s *State) KV() KV {
	return s.kv
}

func (s *State) codec(key string) Codec {
	if SensitiveKeys[key] {
		return s.sensitive
	}
	return s.plain
}

// Load decodes key into dst. It reports false, with no error, when the key
// does not exist.
func (s *State) Load(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, errors.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	plain, err := s.codec(key).Decode(raw)
	if err != nil {
		return false, errors.NewStoreError("decode", key, err)
	}
	if err := json.Unmarshal(plain, dst); err != nil {
		return false, errors.NewStoreError("decode", key, fmt.Errorf("%w: %v", errors.ErrDecode, err))
	}
	return true, nil
}

// Save encodes v under key.
func (s *State) Save(ctx context.Context, key string, v interface{}) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return errors.NewStoreError("encode", key, err)
	}
	stored, err := s.codec(key).Encode(plain)
	if err != nil {
		return errors.NewStoreError("encode", key, err)
	}
	return s.kv.Set(ctx, key, stored)
}

// Delete removes key.
func (s *State) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

// LoadRaw returns the stored bytes for key without decoding, for values with
// their own encoding such as the fund cache.
func (s *State) LoadRaw(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, errors.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// SaveRaw stores bytes for key without encoding.
func (s *State) SaveRaw(ctx context.Context, key string, raw []byte) error {
	return s.kv.Set(ctx, key, raw)
}

// Open builds the configured backend. backend is "memory" or "sqlite".
func Open(backend, path string) (KV, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", errors.ErrConfigInvalid, backend)
	}
}
