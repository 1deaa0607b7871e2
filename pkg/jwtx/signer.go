package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/sessions/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Supported JWT signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
}

type keySigner struct {
	kid    string
	alg    string
	method jwt.SigningMethod
	key    any
	pub    crypto.PublicKey
	jwk    JWK
}

// NewSigner loads a PEM private key and checks it matches alg.
func NewSigner(alg, kid string, pemKey []byte) (Signer, error) {
	priv, err := cryptox.ParsePrivateKey(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse key %s: %w", kid, err)
	}

	s := &keySigner{kid: kid, alg: alg, key: priv}
	switch alg {
	case AlgorithmRS256:
		k, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: not an RSA private key")
		}
		s.method = jwt.SigningMethodRS256
		s.pub = &k.PublicKey
	case AlgorithmES256:
		k, ok := priv.(*ecdsa.PrivateKey)
		if !ok || k.Curve.Params().Name != "P-256" {
			return nil, errors.New("jwtx: not an ECDSA P-256 private key")
		}
		s.method = jwt.SigningMethodES256
		s.pub = &k.PublicKey
	case AlgorithmEdDSA:
		k, ok := priv.(ed25519.PrivateKey)
		if !ok || len(k) != ed25519.PrivateKeySize {
			return nil, errors.New("jwtx: not an Ed25519 private key")
		}
		s.method = jwt.SigningMethodEdDSA
		s.pub = k.Public()
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", alg)
	}
	if s.jwk, err = JWKFromPublicKey(kid, alg, s.pub); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *keySigner) Alg() string    { return s.alg }
func (s *keySigner) KID() string    { return s.kid }
func (s *keySigner) PublicJWK() JWK { return s.jwk }

func (s *keySigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// keyTypeFor maps a JWT algorithm to the cryptox key family backing it.
func keyTypeFor(alg string) (cryptox.KeyType, error) {
	switch alg {
	case AlgorithmRS256:
		return cryptox.KeyRSA, nil
	case AlgorithmES256:
		return cryptox.KeyP256, nil
	case AlgorithmEdDSA:
		return cryptox.KeyEd25519, nil
	default:
		return "", fmt.Errorf("jwtx: unsupported algorithm %q (supported: RS256, ES256, EdDSA)", alg)
	}
}

// generateSigner creates a fresh key and returns its PEM alongside a signer.
func generateSigner(alg, kid string, rsaBits int) ([]byte, Signer, error) {
	kt, err := keyTypeFor(alg)
	if err != nil {
		return nil, nil, err
	}
	if kt == cryptox.KeyRSA && rsaBits == 0 {
		rsaBits = 4096
	}
	pemData, err := cryptox.GenerateKey(kt, rsaBits)
	if err != nil {
		return nil, nil, err
	}
	s, err := NewSigner(alg, kid, pemData)
	if err != nil {
		return nil, nil, err
	}
	return pemData, s, nil
}
