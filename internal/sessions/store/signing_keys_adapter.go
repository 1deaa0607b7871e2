package store

import (
	"context"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
)

// KeyStoreAdapter lets a jwtx.KeyManager persist its keys in a Store.
type KeyStoreAdapter struct {
	keys func() SigningKeys
}

var _ jwtx.KeyStore = (*KeyStoreAdapter)(nil)

func NewKeyStoreAdapter(s Store) *KeyStoreAdapter {
	return &KeyStoreAdapter{keys: s.SigningKeys}
}

func (a *KeyStoreAdapter) ListAllSigningKeys(ctx context.Context, now time.Time) ([]jwtx.SigningKeyRecord, error) {
	return records(a.keys().ListAllSigningKeys(ctx, now))
}

func (a *KeyStoreAdapter) ListActiveSigningKeys(ctx context.Context, signableUntil time.Time) ([]jwtx.SigningKeyRecord, error) {
	return records(a.keys().ListActiveSigningKeys(ctx, signableUntil))
}

func (a *KeyStoreAdapter) CreateSigningKey(ctx context.Context, rec jwtx.SigningKeyRecord) error {
	return a.keys().CreateSigningKey(ctx, domain.SigningKey(rec))
}

func records(keys []domain.SigningKey, err error) ([]jwtx.SigningKeyRecord, error) {
	if err != nil {
		return nil, err
	}
	out := make([]jwtx.SigningKeyRecord, len(keys))
	for i, k := range keys {
		out[i] = jwtx.SigningKeyRecord(k)
	}
	return out, nil
}
