package jwtx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/sessions/pkg/idx"
)

// SigningKeyRecord is a signing key as persisted by a KeyStore.
type SigningKeyRecord struct {
	ID                  string
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           time.Time
}

// KeyStore is the storage needed for persistent key management.
type KeyStore interface {
	// ListAllSigningKeys returns every key not yet expired at now.
	ListAllSigningKeys(ctx context.Context, now time.Time) ([]SigningKeyRecord, error)
	// ListActiveSigningKeys returns unretired keys that stay valid past
	// signableUntil.
	ListActiveSigningKeys(ctx context.Context, signableUntil time.Time) ([]SigningKeyRecord, error)
	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// Sealer encrypts private key material before it reaches the KeyStore.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// DefaultKeyLifetime is how long a generated key verifies tokens unless
// configured otherwise.
const DefaultKeyLifetime = 30 * 24 * time.Hour

// missReloadInterval bounds how often an unknown kid may trigger a reload.
const missReloadInterval = 5 * time.Second

// PersistentKeyManagerOptions configures a KeyManager backed by a KeyStore.
type PersistentKeyManagerOptions struct {
	KeyManagerOptions

	Store  KeyStore
	Sealer Sealer

	// Lifetime bounds how long a generated key may verify tokens. Defaults
	// to DefaultKeyLifetime.
	Lifetime time.Duration

	// MaxTokenTTL is the longest token lifetime signed with these keys. A key
	// stops signing once fewer than MaxTokenTTL remain before it expires.
	// Defaults to DefaultRefreshTokenTTL.
	MaxTokenTTL time.Duration
}

// keySource ties a KeyManager to the store it was loaded from.
type keySource struct {
	opts   PersistentKeyManagerOptions
	group  singleflight.Group
	mu     sync.Mutex
	loaded map[string]Signer
	missAt time.Time
}

// NewPersistentKeyManager loads keys from the store, generating and storing
// new ones until NumKeys are active. Keys survive restarts and are shared by
// every process pointed at the same store.
func NewPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil || opts.Sealer == nil {
		return nil, errors.New("jwtx: persistent key manager needs a Store and a Sealer")
	}
	if err := opts.normalise(); err != nil {
		return nil, err
	}
	if opts.MaxTokenTTL <= 0 {
		opts.MaxTokenTTL = DefaultRefreshTokenTTL
	}
	if opts.Lifetime <= opts.MaxTokenTTL {
		opts.Lifetime = max(DefaultKeyLifetime, 2*opts.MaxTokenTTL)
	}

	km := &KeyManager{
		KeySet:    NewKeySet(),
		algorithm: opts.Algorithm,
		src:       &keySource{opts: opts, loaded: make(map[string]Signer)},
	}
	if err := km.sync(ctx, time.Now().UTC()); err != nil {
		return nil, err
	}
	return km, nil
}

// Reload brings the manager in line with its store. Keys created by other
// processes become verifiable, retired or nearly expired keys stop signing,
// and fresh keys are generated when fewer than NumKeys remain. Ephemeral
// managers have nothing to reload.
func (km *KeyManager) Reload(ctx context.Context) error {
	if km.src == nil {
		return nil
	}
	_, err, _ := km.src.group.Do("reload", func() (any, error) {
		return nil, km.sync(ctx, time.Now().UTC())
	})
	return err
}

// reloadOnMiss reloads after a token named a kid we do not know, at most
// once per missReloadInterval. It reports whether a reload ran.
func (km *KeyManager) reloadOnMiss(ctx context.Context) bool {
	if km.src == nil {
		return false
	}
	km.src.mu.Lock()
	now := time.Now()
	if now.Sub(km.src.missAt) < missReloadInterval {
		km.src.mu.Unlock()
		return false
	}
	km.src.missAt = now
	km.src.mu.Unlock()
	return km.Reload(ctx) == nil
}

func (km *KeyManager) sync(ctx context.Context, now time.Time) error {
	src := km.src
	opts := src.opts

	all, err := opts.Store.ListAllSigningKeys(ctx, now)
	if err != nil {
		return fmt.Errorf("jwtx: load keys: %w", err)
	}
	active, err := opts.Store.ListActiveSigningKeys(ctx, now.Add(opts.MaxTokenTTL))
	if err != nil {
		return fmt.Errorf("jwtx: load active keys: %w", err)
	}

	src.mu.Lock()
	defer src.mu.Unlock()

	live := make(map[string]bool, len(all))
	for _, rec := range all {
		live[rec.Kid] = true
	}
	for kid := range src.loaded {
		if !live[kid] {
			km.KeySet.Remove(kid)
			delete(src.loaded, kid)
		}
	}

	for _, rec := range all {
		if _, ok := src.loaded[rec.Kid]; ok {
			continue
		}
		pemData, err := opts.Sealer.Open(rec.PrivateKeyEncrypted)
		if err != nil {
			return fmt.Errorf("jwtx: decrypt key %s: %w", rec.Kid, err)
		}
		signer, err := NewSigner(rec.Algorithm, rec.Kid, pemData)
		if err != nil {
			return err
		}
		if err := km.KeySet.AddSigner(signer); err != nil {
			return err
		}
		src.loaded[rec.Kid] = signer
	}

	signers := make([]Signer, 0, opts.NumKeys)
	for _, rec := range active {
		if signer, ok := src.loaded[rec.Kid]; ok {
			signers = append(signers, signer)
		}
	}

	for len(signers) < opts.NumKeys {
		rec, signer, err := NewSigningKeyRecord(opts.Algorithm, opts.RSABits, opts.Lifetime, opts.Sealer, now)
		if err != nil {
			return err
		}
		if err := opts.Store.CreateSigningKey(ctx, rec); err != nil {
			return fmt.Errorf("jwtx: store key: %w", err)
		}
		if err := km.KeySet.AddSigner(signer); err != nil {
			return err
		}
		src.loaded[rec.Kid] = signer
		signers = append(signers, signer)
	}

	km.mu.Lock()
	km.signers = signers
	km.mu.Unlock()
	return nil
}

// NewSigningKeyRecord generates a key, seals its private half and returns
// the record ready for a KeyStore together with a signer for it.
func NewSigningKeyRecord(alg string, rsaBits int, lifetime time.Duration, sealer Sealer, now time.Time) (SigningKeyRecord, Signer, error) {
	if lifetime <= 0 {
		lifetime = DefaultKeyLifetime
	}
	kid, err := generateRandomKeyID()
	if err != nil {
		return SigningKeyRecord{}, nil, err
	}
	pemData, signer, err := generateSigner(alg, kid, rsaBits)
	if err != nil {
		return SigningKeyRecord{}, nil, fmt.Errorf("jwtx: generate key: %w", err)
	}
	sealed, err := sealer.Seal(pemData)
	if err != nil {
		return SigningKeyRecord{}, nil, fmt.Errorf("jwtx: encrypt key: %w", err)
	}
	return SigningKeyRecord{
		ID:                  idx.New().String(),
		Kid:                 kid,
		Algorithm:           alg,
		PrivateKeyEncrypted: sealed,
		CreatedAt:           now,
		ExpiresAt:           now.Add(lifetime),
	}, signer, nil
}
