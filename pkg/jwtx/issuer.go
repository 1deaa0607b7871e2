package jwtx

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Minted is a freshly signed token together with its identifiers.
type Minted struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// Issuer mints and verifies the service's access and refresh tokens. It
// never touches storage.
type Issuer struct {
	keys     *KeyManager
	verifier *Verifier
	issuer   string
	audience []string
	now      func() time.Time
}

// IssuerOptions configures an Issuer.
type IssuerOptions struct {
	Issuer   string
	Audience []string
	Leeway   time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewIssuer wires a KeyManager into an Issuer.
func NewIssuer(km *KeyManager, opts IssuerOptions) (*Issuer, error) {
	if km == nil {
		return nil, errors.New("jwtx: key manager is required")
	}
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: issuer is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		keys:     km,
		verifier: NewVerifier(km.KeySet, opts.Issuer, opts.Audience, WithLeeway(opts.Leeway), WithClock(now)),
		issuer:   opts.Issuer,
		audience: opts.Audience,
		now:      now,
	}, nil
}

// Mint signs a token of the given type for subject with a fresh jti.
func (i *Issuer) Mint(subject string, typ TokenType, ttl time.Duration, custom Custom) (Minted, error) {
	if subject == "" {
		return Minted{}, errors.New("jwtx: subject is required")
	}
	if !typ.Valid() {
		return Minted{}, fmt.Errorf("jwtx: unknown token type %q", typ)
	}
	if ttl <= 0 {
		return Minted{}, fmt.Errorf("jwtx: ttl must be positive, got %s", ttl)
	}
	signer := i.keys.Signer()
	if signer == nil {
		return Minted{}, errors.New("jwtx: no signing key available")
	}

	now := i.now().UTC().Truncate(time.Second)
	claims := NewClaims(i.issuer, i.audience, subject, typ, ttl, custom, now)
	token, err := signer.Sign(claims)
	if err != nil {
		return Minted{}, fmt.Errorf("jwtx: sign: %w", err)
	}
	return Minted{Token: token, JTI: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, issuer, audience and expiry. A kid we have not
// seen may belong to a key another instance just created, so a store-backed
// key manager is reloaded once before the token is rejected.
func (i *Issuer) Verify(token string) (Claims, error) {
	c, err := i.verifier.Verify(token)
	if errors.Is(err, ErrUnknownKID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if i.keys.reloadOnMiss(ctx) {
			return i.verifier.Verify(token)
		}
	}
	return c, err
}

// VerifyType is Verify plus a check that the token has the wanted type.
func (i *Issuer) VerifyType(token string, typ TokenType) (Claims, error) {
	c, err := i.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	if c.Type != typ {
		return Claims{}, ErrWrongType
	}
	return c, nil
}

// Decode reads claims without any verification.
func (i *Issuer) Decode(token string) (Claims, error) {
	return Decode(token)
}

// KeySet exposes the verification keys for JWKS publication.
func (i *Issuer) KeySet() *KeySet {
	return i.keys.KeySet
}

// Verifier returns the verifier used by Verify.
func (i *Issuer) Verifier() *Verifier {
	return i.verifier
}

// IsReady reports whether the issuer can sign.
func (i *Issuer) IsReady() bool {
	return i.keys.IsReady()
}
