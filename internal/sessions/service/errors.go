package service

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountDisabled    = errors.New("account_disabled")
	ErrSessionConflict    = errors.New("session_conflict")
	ErrTokenExpired       = errors.New("token_expired")
	ErrTokenInvalid       = errors.New("invalid_token")
	ErrTokenRevoked       = errors.New("token_revoked")
	ErrTokenUndecodable   = errors.New("token_undecodable")
	ErrSessionNotFound    = errors.New("session_not_found")
	ErrForbidden          = errors.New("forbidden")
	ErrBackendUnavailable = errors.New("backend_unavailable")
	ErrSigningKeyNotFound = errors.New("signing_key_not_found")

	// ErrLogoutTokenRejected is Logout's answer to a well-formed token that
	// is not a refresh token signed by us.
	ErrLogoutTokenRejected = errors.New("logout_token_rejected")
)

// ConflictError reports that the session slot for ClientType is held by a
// session whose access token is still usable.
type ConflictError struct {
	ClientType domain.ClientType
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: active session exists for client type %q", ErrSessionConflict, e.ClientType)
}

func (e *ConflictError) Unwrap() error { return ErrSessionConflict }

var flowErrors = []error{
	ErrInvalidCredentials,
	ErrAccountDisabled,
	ErrSessionConflict,
	ErrTokenExpired,
	ErrTokenInvalid,
	ErrTokenRevoked,
	ErrTokenUndecodable,
	ErrLogoutTokenRejected,
	ErrSessionNotFound,
	ErrForbidden,
	ErrBackendUnavailable,
	ErrSigningKeyNotFound,
}

// backendErr passes flow errors through and wraps anything else (driver
// failures, deadlines) as ErrBackendUnavailable.
func backendErr(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range flowErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
