package jwtx

import (
	"crypto"
	"errors"
	"slices"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet is the set of public keys tokens are verified against. It also
// renders the JWKS, in the order keys were added.
type KeySet struct {
	mu    sync.RWMutex
	order []string
	keys  map[string]keyEntry
}

type keyEntry struct {
	jwk JWK
	pub crypto.PublicKey
}

func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]keyEntry)}
}

// AddSigner publishes the public half of s.
func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK adds j. Adding a kid that is already present is a no-op.
func (k *KeySet) AddJWK(j JWK) error {
	pub, err := j.PublicKey()
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[j.Kid]; ok {
		return nil
	}
	k.keys[j.Kid] = keyEntry{jwk: j, pub: pub}
	k.order = append(k.order, j.Kid)
	return nil
}

// Remove drops kid. Tokens signed with it stop verifying.
func (k *KeySet) Remove(kid string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[kid]; !ok {
		return
	}
	delete(k.keys, kid)
	k.order = slices.DeleteFunc(k.order, func(s string) bool { return s == kid })
}

// Get returns the public key for kid.
func (k *KeySet) Get(kid string) (crypto.PublicKey, error) {
	pub, _, err := k.lookup(kid)
	return pub, err
}

func (k *KeySet) lookup(kid string) (crypto.PublicKey, string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.keys[kid]
	if !ok {
		return nil, "", ErrNoKey
	}
	return e.pub, e.jwk.Alg, nil
}

// Kids lists the kids in the set.
func (k *KeySet) Kids() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return slices.Clone(k.order)
}

// PublicJWKS returns a copy of the set as a JWKS.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := JWKS{Keys: make([]JWK, 0, len(k.order))}
	for _, kid := range k.order {
		out.Keys = append(out.Keys, k.keys[kid].jwk)
	}
	return out
}

// IsReady reports whether any key is loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) > 0
}

// ResetFromJWKS replaces the whole set, e.g. with a JWKS fetched from
// another instance. On error the set is left unchanged.
func (k *KeySet) ResetFromJWKS(jwks JWKS) error {
	order := make([]string, 0, len(jwks.Keys))
	keys := make(map[string]keyEntry, len(jwks.Keys))
	for _, j := range jwks.Keys {
		pub, err := j.PublicKey()
		if err != nil {
			return err
		}
		if _, ok := keys[j.Kid]; !ok {
			order = append(order, j.Kid)
		}
		keys[j.Kid] = keyEntry{jwk: j, pub: pub}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.order, k.keys = order, keys
	return nil
}
