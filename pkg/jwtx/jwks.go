package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

// JWK is a public signing key as published in the JWKS (RFC 7517). Only
// the members needed for RS256, ES256 and EdDSA are modelled.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`

	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// JWKS is the document served at /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

var b64 = base64.RawURLEncoding

// p256Size is the byte length of a P-256 coordinate.
const p256Size = 32

// JWKFromPublicKey describes pub as a signing JWK.
func JWKFromPublicKey(kid, alg string, pub crypto.PublicKey) (JWK, error) {
	j := JWK{Use: "sig", Alg: alg, Kid: kid}
	switch k := pub.(type) {
	case *rsa.PublicKey:
		j.Kty = "RSA"
		j.N = b64.EncodeToString(k.N.Bytes())
		j.E = b64.EncodeToString(big.NewInt(int64(k.E)).Bytes())
	case ed25519.PublicKey:
		j.Kty, j.Crv = "OKP", "Ed25519"
		j.X = b64.EncodeToString(k)
	case *ecdsa.PublicKey:
		if k.Curve.Params().Name != "P-256" {
			return JWK{}, fmt.Errorf("jwtx: unsupported EC curve %s", k.Curve.Params().Name)
		}
		j.Kty, j.Crv = "EC", "P-256"
		j.X = b64.EncodeToString(k.X.FillBytes(make([]byte, p256Size)))
		j.Y = b64.EncodeToString(k.Y.FillBytes(make([]byte, p256Size)))
	default:
		return JWK{}, fmt.Errorf("jwtx: unsupported public key %T", pub)
	}
	return j, nil
}

// PublicKey decodes the key material of j.
func (j JWK) PublicKey() (crypto.PublicKey, error) {
	switch {
	case j.Kty == "RSA":
		n, err := b64.DecodeString(j.N)
		if err != nil {
			return nil, fmt.Errorf("jwtx: jwk %s: n: %w", j.Kid, err)
		}
		e, err := b64.DecodeString(j.E)
		if err != nil {
			return nil, fmt.Errorf("jwtx: jwk %s: e: %w", j.Kid, err)
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil

	case j.Kty == "OKP" && j.Crv == "Ed25519":
		x, err := b64.DecodeString(j.X)
		if err != nil {
			return nil, fmt.Errorf("jwtx: jwk %s: x: %w", j.Kid, err)
		}
		if len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("jwtx: jwk %s: bad Ed25519 key length %d", j.Kid, len(x))
		}
		return ed25519.PublicKey(x), nil

	case j.Kty == "EC" && j.Crv == "P-256":
		x, err := b64.DecodeString(j.X)
		if err != nil {
			return nil, fmt.Errorf("jwtx: jwk %s: x: %w", j.Kid, err)
		}
		y, err := b64.DecodeString(j.Y)
		if err != nil {
			return nil, fmt.Errorf("jwtx: jwk %s: y: %w", j.Kid, err)
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil
	}
	return nil, fmt.Errorf("jwtx: jwk %s: unsupported kty %q crv %q", j.Kid, j.Kty, j.Crv)
}
