package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
)

// KeyRotationService creates and retires persisted signing keys. Running
// instances notice the change on their next key reload: new keys start
// signing, retired keys stop signing but keep verifying until they expire.
type KeyRotationService struct {
	Store     store.Store
	Sealer    jwtx.Sealer
	Algorithm string
	RSABits   int
	Lifetime  time.Duration

	// Keys, when set, is reloaded after every change so the local process
	// sees it immediately.
	Keys *jwtx.KeyManager

	Now func() time.Time
}

// RotateResult describes one rotation.
type RotateResult struct {
	NewKey  domain.SigningKey
	Retired []string
}

// RotateKey stores a fresh signing key. With retireExisting every other
// active key is retired in the same transaction.
func (s *KeyRotationService) RotateKey(ctx context.Context, retireExisting bool) (RotateResult, error) {
	if s.Store == nil || s.Sealer == nil {
		return RotateResult{}, errors.New("key rotation needs a store and a sealer")
	}
	now := s.now()

	rec, _, err := jwtx.NewSigningKeyRecord(s.Algorithm, s.RSABits, s.Lifetime, s.Sealer, now)
	if err != nil {
		return RotateResult{}, err
	}
	res := RotateResult{NewKey: domain.SigningKey{
		ID:                  rec.ID,
		Kid:                 rec.Kid,
		Algorithm:           rec.Algorithm,
		PrivateKeyEncrypted: rec.PrivateKeyEncrypted,
		CreatedAt:           rec.CreatedAt,
		ExpiresAt:           rec.ExpiresAt,
	}}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.SigningKeys().CreateSigningKey(ctx, res.NewKey); err != nil {
			return fmt.Errorf("create signing key: %w", err)
		}
		if !retireExisting {
			return nil
		}
		active, err := tx.SigningKeys().ListActiveSigningKeys(ctx, now)
		if err != nil {
			return fmt.Errorf("list active keys: %w", err)
		}
		for _, key := range active {
			if key.Kid == res.NewKey.Kid {
				continue
			}
			if err := tx.SigningKeys().RetireSigningKey(ctx, key.Kid, now); err != nil {
				return fmt.Errorf("retire key %s: %w", key.Kid, err)
			}
			res.Retired = append(res.Retired, key.Kid)
		}
		return nil
	})
	if err != nil {
		return RotateResult{}, backendErr(err)
	}
	return res, s.reload(ctx)
}

// RetireKey stops kid from signing without generating a replacement. The
// key manager tops the signing set back up on reload.
func (s *KeyRotationService) RetireKey(ctx context.Context, kid string) error {
	err := s.Store.SigningKeys().RetireSigningKey(ctx, kid, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSigningKeyNotFound, kid)
	}
	if err != nil {
		return backendErr(err)
	}
	return s.reload(ctx)
}

// ListKeys returns every key that can still verify tokens, newest first.
func (s *KeyRotationService) ListKeys(ctx context.Context) ([]domain.SigningKey, error) {
	keys, err := s.Store.SigningKeys().ListAllSigningKeys(ctx, s.now())
	if err != nil {
		return nil, backendErr(err)
	}
	return keys, nil
}

func (s *KeyRotationService) reload(ctx context.Context) error {
	if s.Keys == nil {
		return nil
	}
	return s.Keys.Reload(ctx)
}

func (s *KeyRotationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
