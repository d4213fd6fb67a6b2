// Package store provides key/value persistence for dashboard state.
//
// Values are opaque bytes at the KV layer. State layers JSON encoding and a
// per-key Codec on top, so sensitive keys can be obscured or sealed without
// the callers knowing which backend or codec is in use.
package store

import (
	"context"
)

// Persisted keys.
const (
	KeyPortfolio     = "carteira-fiis"
	KeyTransactions  = "transacoes-fiis"
	KeyPurchasePlans = "plano-compras-fiis"
	KeyAlerts        = "alertas-fiis"
	KeyNotifications = "notificacoes-fiis"
	KeyPreferences   = "preferencias-fiis"
	KeyCache         = "cache-fiis"
)

// SensitiveKeys are routed through the sensitive codec.
var SensitiveKeys = map[string]bool{
	KeyPortfolio:    true,
	KeyTransactions: true,
	KeyAlerts:       true,
}

// KV is a flat key/value store. Get returns an error matching
// errors.ErrKeyNotFound when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
