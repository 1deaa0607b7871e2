package authsdk

import (
	"time"

	"github.com/aussiebroadwan/sessions/pkg/jwtx"
)

// ============================================================================
// Token Types
// ============================================================================

// LoginRequest is the body of POST /auth/token.
type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email" validate:"required,max=254" example:"alice"`
	Password        string `json:"password" validate:"required,max=1024" example:"correct horse battery staple"`

	// ClientType selects the device slot; defaults to "unknown".
	ClientType string `json:"client_type,omitempty" validate:"omitempty,max=32" example:"web"`
	DeviceName string `json:"device_name,omitempty" validate:"omitempty,max=128" example:"Firefox on Linux"`

	// TelegramUserID gives a telegram_bot session its own slot per
	// Telegram account.
	TelegramUserID   *int64 `json:"telegram_user_id,omitempty" example:"123456789"`
	TelegramUsername string `json:"telegram_username,omitempty" validate:"omitempty,max=64" example:"alice_tg"`
}

// UserInfo identifies the logged-in user.
type UserInfo struct {
	ID       string `json:"id" example:"01HF8ZK3Q8M2N7P4R6T9V1W3X5"`
	Username string `json:"username" example:"alice"`
	Email    string `json:"email,omitempty" example:"alice@example.com"`
	IsStaff  bool   `json:"is_staff"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	Access    string   `json:"access"`
	Refresh   string   `json:"refresh"`
	User      UserInfo `json:"user"`
	SessionID string   `json:"session_id" example:"01HF8ZK3Q8M2N7P4R6T9V1W3X6"`
}

// RefreshRequest is the body of POST /auth/token/refresh.
type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required,max=8192"`
}

// RefreshResponse carries a new access token, and a new refresh token when
// the server rotates them.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// LogoutRequest is the body of POST /auth/logout.
type LogoutRequest struct {
	Refresh string `json:"refresh" validate:"required,max=8192"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message" example:"logged out"`
}

// ============================================================================
// Session Types
// ============================================================================

// LogoutAllRequest is the optional body of POST /auth/logout/all. Only
// staff may name another user.
type LogoutAllRequest struct {
	UserID string `json:"user_id,omitempty" validate:"omitempty,max=64"`
}

type LogoutAllResponse struct {
	Message         string `json:"message" example:"logged out of all sessions"`
	RevokedSessions int    `json:"revoked_sessions" example:"2"`
}

// SessionInfo describes one active session. Token strings are never
// exposed.
type SessionInfo struct {
	ID               string    `json:"id"`
	ClientType       string    `json:"client_type" example:"web"`
	DeviceName       string    `json:"device_name,omitempty"`
	IPAddress        string    `json:"ip_address,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	TelegramUserID   *int64    `json:"telegram_user_id,omitempty"`
	TelegramUsername string    `json:"telegram_username,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
	ExpiresAt        time.Time `json:"expires_at"`
	IsActive         bool      `json:"is_active"`
}

type SessionsResponse struct {
	UserID   string        `json:"user_id"`
	Sessions []SessionInfo `json:"sessions"`
}

// ============================================================================
// Signing Key Types
// ============================================================================

// SigningKeyInfo describes a persisted signing key. Private material is
// never returned.
type SigningKeyInfo struct {
	Kid       string     `json:"kid"`
	Algorithm string     `json:"algorithm"`
	CreatedAt time.Time  `json:"created_at"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// KeysResponse is returned from GET /keys.
type KeysResponse struct {
	Keys []SigningKeyInfo `json:"keys"`
}

// RotateKeyRequest is the body of POST /keys/rotate.
type RotateKeyRequest struct {
	// RetireExisting retires every other active key once the new one is stored.
	RetireExisting bool `json:"retire_existing"`
}

// RotateKeyResponse is returned from POST /keys/rotate.
type RotateKeyResponse struct {
	NewKey      SigningKeyInfo `json:"new_key"`
	RetiredKeys []string       `json:"retired_keys,omitempty"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains the status of each dependency (readyz only)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Signer indicates the JWT signing capability status
	Signer string `json:"signer"`

	// Cache is the shared revocation cache status, when one is configured.
	Cache string `json:"cache,omitempty"`
}

// ============================================================================
// JWKS Types
// ============================================================================

// JWKSResponse contains the JSON Web Key Set.
// This is returned from the GET /.well-known/jwks.json endpoint and contains
// public keys used to verify JWT signatures.
type JWKSResponse jwtx.JWKS
