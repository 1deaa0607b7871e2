package jwtx

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/aussiebroadwan/sessions/pkg/cryptox"
)

// KeyManager owns the signing keys of an instance and the KeySet used to
// verify and publish them. Several keys may be active at once; Signer picks
// one at random per token.
type KeyManager struct {
	KeySet    *KeySet
	algorithm string

	mu      sync.RWMutex
	signers []Signer

	// src is set for managers backed by a KeyStore.
	src *keySource
}

// KeyManagerOptions configures key generation.
type KeyManagerOptions struct {
	// Algorithm is one of RS256, ES256 or EdDSA.
	Algorithm string

	// RSABits is the RSA modulus size for RS256. Defaults to 4096.
	RSABits int

	// NumKeys is the number of active signing keys, clamped to [1, 10].
	// Defaults to 3.
	NumKeys int
}

func (o *KeyManagerOptions) normalise() error {
	if _, err := keyTypeFor(o.Algorithm); err != nil {
		return err
	}
	if o.NumKeys <= 0 {
		o.NumKeys = 3
	}
	if o.NumKeys > 10 {
		o.NumKeys = 10
	}
	return nil
}

// NewEphemeralKeyManager generates keys that only live in memory. Every
// token becomes unverifiable when the process restarts.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if err := opts.normalise(); err != nil {
		return nil, err
	}

	km := &KeyManager{KeySet: NewKeySet(), algorithm: opts.Algorithm}
	for i := 0; i < opts.NumKeys; i++ {
		kid, err := generateRandomKeyID()
		if err != nil {
			return nil, err
		}
		_, signer, err := generateSigner(opts.Algorithm, kid, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate signer %d: %w", i+1, err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}
	return km, nil
}

// Algorithm returns the signing algorithm used for new keys.
func (km *KeyManager) Algorithm() string {
	return km.algorithm
}

// IsReady reports whether at least one key can sign and verify.
func (km *KeyManager) IsReady() bool {
	return km.NumSigners() > 0 && km.KeySet.IsReady()
}

// Signer returns a randomly selected active signer, or nil when none exist.
func (km *KeyManager) Signer() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner makes a key available for signing and verification.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return fmt.Errorf("jwtx: signer cannot be nil")
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if err := km.KeySet.AddSigner(signer); err != nil {
		return fmt.Errorf("jwtx: add signer to keyset: %w", err)
	}
	km.signers = append(km.signers, signer)
	return nil
}

// RetireSignerByKid stops a key from signing. It stays in the KeySet so
// tokens it already signed keep verifying.
func (km *KeyManager) RetireSignerByKid(kid string) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if len(km.signers) <= 1 {
		return fmt.Errorf("jwtx: cannot retire the last signing key")
	}
	for i, s := range km.signers {
		if s.KID() == kid {
			km.signers = append(km.signers[:i:i], km.signers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("jwtx: signer with kid %q not found", kid)
}

// Signers returns a copy of the active signing keys.
func (km *KeyManager) Signers() []Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	out := make([]Signer, len(km.signers))
	copy(out, km.signers)
	return out
}

// generateRandomKeyID returns "sess-{128 bit token}".
func generateRandomKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate key id: %w", err)
	}
	return "sess-" + token, nil
}
