package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/authsdk"
	"github.com/aussiebroadwan/sessions/pkg/httpx"
	"github.com/aussiebroadwan/sessions/pkg/slogx"
)

// LogoutAllHandler serves POST /auth/logout/all.
type LogoutAllHandler struct {
	Gateway *service.Gateway
}

// ServeHTTP godoc
//
//	@Summary		Log out everywhere
//	@Description	Revokes every active session of the caller. Staff may name another user.
//	@Description	Individual failures do not stop the remaining revocations; the reply counts what was revoked.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		authsdk.LogoutAllRequest	false	"Optional target user"
//	@Success		200		{object}	authsdk.LogoutAllResponse	"message, revoked_sessions"
//	@Failure		401		{object}	authsdk.APIError			"error, error_description"
//	@Failure		403		{object}	authsdk.APIError			"error, error_description"
//	@Failure		503		{object}	authsdk.APIError			"error, error_description"
//	@Router			/auth/logout/all [post]
func (h *LogoutAllHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutAllRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		authsdk.ErrInvalidRequest.With(err.Error()).WriteError(w)
		return
	}

	n, err := h.Gateway.LogoutAll(r.Context(), callerFrom(r), req.UserID)
	if err != nil {
		// Partial success still reports what was revoked.
		if n == 0 || errors.Is(err, service.ErrForbidden) {
			writeError(w, r, "logout_all", err)
			return
		}
		slogx.FromContext(r.Context()).Warn("logout_all partially failed", "revoked_sessions", n, "err", err)
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutAllResponse{
		Message:         fmt.Sprintf("logged out of %d sessions", n),
		RevokedSessions: n,
	})
}

// callerFrom reads the identity AuthnMiddleware placed on the request.
func callerFrom(r *http.Request) service.Caller {
	c, _ := httpx.ClaimsFromContext(r.Context())
	return service.Caller{UserID: c.Subject, IsStaff: c.Staff}
}
