package store

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fii-monitor/internal/errors"
)

type holding struct {
	Ticker   string  `json:"ticker"`
	Quantity int     `json:"quantity"`
	Average  float64 `json:"average"`
}

func TestState_SensitiveKeysAreObfuscated(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	state := NewState(kv, nil)

	in := []holding{{Ticker: "MXRF11", Quantity: 100, Average: 9.8}}
	require.NoError(t, state.Save(ctx, KeyPortfolio, in))

	raw, err := kv.Get(ctx, KeyPortfolio)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "MXRF11", "sensitive value must not be stored verbatim")

	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	require.NoError(t, err, "obfuscation is plain base64 and reversible")
	assert.Contains(t, string(decoded), "MXRF11")

	var out []holding
	found, err := state.Load(ctx, KeyPortfolio, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestState_PlainKeysStoredAsJSON(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	state := NewState(kv, nil)

	require.NoError(t, state.Save(ctx, KeyPreferences, map[string]bool{"dark_mode": true}))

	raw, err := kv.Get(ctx, KeyPreferences)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dark_mode":true}`, string(raw))
}

func TestState_LoadMissingKey(t *testing.T) {
	state := NewState(NewMemoryStore(), nil)

	var out []holding
	found, err := state.Load(context.Background(), KeyTransactions, &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, out)
}

func TestState_CorruptValue(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	state := NewState(kv, nil)

	require.NoError(t, kv.Set(ctx, KeyAlerts, []byte("%%% not base64 %%%")))

	var out []holding
	_, err := state.Load(ctx, KeyAlerts, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDecode))
}

func TestSealedCodec_RoundTripAndWrongPassphrase(t *testing.T) {
	codec, err := newSealedCodec("correct horse", 1000)
	require.NoError(t, err)

	sealed, err := codec.Encode([]byte(`[{"ticker":"HGLG11"}]`))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(sealed), "HGLG11"))

	plain, err := codec.Decode(sealed)
	require.NoError(t, err)
	assert.Equal(t, `[{"ticker":"HGLG11"}]`, string(plain))

	other, err := newSealedCodec("battery staple", 1000)
	require.NoError(t, err)
	_, err = other.Decode(sealed)
	assert.True(t, errors.Is(err, errors.ErrDecode))
}

func TestSealedCodec_DecodesValuesFromEarlierSessions(t *testing.T) {
	first, err := newSealedCodec("pass", 1000)
	require.NoError(t, err)
	sealed, err := first.Encode([]byte("hello"))
	require.NoError(t, err)

	second, err := newSealedCodec("pass", 1000)
	require.NoError(t, err)
	plain, err := second.Decode(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))
}

func TestState_SealedCodecBehindSameInterface(t *testing.T) {
	ctx := context.Background()
	codec, err := newSealedCodec("pass", 1000)
	require.NoError(t, err)
	state := NewState(NewMemoryStore(), codec)

	require.NoError(t, state.Save(ctx, KeyTransactions, []string{"buy MXRF11"}))

	var out []string
	found, err := state.Load(ctx, KeyTransactions, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"buy MXRF11"}, out)
}

func TestMemoryStore_Closed(t *testing.T) {
	kv := NewMemoryStore()
	require.NoError(t, kv.Close())
	assert.True(t, errors.Is(kv.Set(context.Background(), "k", nil), errors.ErrStoreClosed))
}
