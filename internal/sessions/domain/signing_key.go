package domain

import "time"

// SigningKey is a JWT signing key stored with its private half sealed.
// Retired keys stop signing but keep verifying until ExpiresAt.
type SigningKey struct {
	ID                  string     // ULID
	Kid                 string     // Key identifier in JWKS (e.g., "sess-abc123")
	Algorithm           string     // RS256, ES256, or EdDSA
	PrivateKeyEncrypted []byte     // AES-256-GCM sealed private key PEM
	CreatedAt           time.Time  // When the key was created
	RetiredAt           *time.Time // nil = active
	ExpiresAt           time.Time  // No verification after this
}

// IsActive returns true if the key is not retired and not expired.
func (k *SigningKey) IsActive(now time.Time) bool {
	return k.RetiredAt == nil && now.Before(k.ExpiresAt)
}
