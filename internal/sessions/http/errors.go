package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/authsdk"
	"github.com/aussiebroadwan/sessions/pkg/slogx"
)

// apiError maps a service error onto its HTTP reply. Credential and token
// failures collapse to generic messages.
func apiError(err error) *authsdk.APIError {
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		return authsdk.NewConflictError(string(conflict.ClientType))
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDisabled):
		return authsdk.ErrInvalidCredentials
	case errors.Is(err, service.ErrTokenRevoked):
		return authsdk.ErrTokenRevoked
	case errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenInvalid),
		errors.Is(err, service.ErrSessionNotFound):
		return authsdk.ErrInvalidToken
	case errors.Is(err, service.ErrTokenUndecodable):
		return authsdk.ErrInvalidRequest.With("token could not be decoded")
	case errors.Is(err, service.ErrLogoutTokenRejected):
		return authsdk.ErrInvalidRequest.With("not a refresh token issued by this service")
	case errors.Is(err, service.ErrSigningKeyNotFound):
		return authsdk.ErrKeyNotFound
	case errors.Is(err, service.ErrForbidden):
		return authsdk.ErrForbidden
	case errors.Is(err, service.ErrBackendUnavailable):
		return authsdk.ErrBackendUnavailable
	default:
		return authsdk.ErrServerError
	}
}

// writeError logs err and writes its mapped reply.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	e := apiError(err)
	log := slogx.FromContext(r.Context())
	if e.StatusCode >= http.StatusInternalServerError {
		log.Error(op+" failed", "err", err)
	} else {
		log.Info(op+" rejected", "code", e.Code, "err", err)
	}
	e.WriteError(w)
}
