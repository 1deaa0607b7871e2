package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/authsdk"
	"github.com/aussiebroadwan/sessions/pkg/httpx"
)

// LogoutHandler serves POST /auth/logout. It is idempotent: logging out an
// already revoked or expired session still answers 200.
type LogoutHandler struct {
	Gateway *service.Gateway
}

// ServeHTTP godoc
//
//	@Summary		Log out
//	@Description	Ends the session the refresh token belongs to and revokes its tokens.
//	@Description	Expired refresh tokens are accepted so a client can always log out.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.LogoutRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.MessageResponse	"message"
//	@Failure		400		{object}	authsdk.APIError		"error, error_description"
//	@Failure		503		{object}	authsdk.APIError		"error, error_description"
//	@Router			/auth/logout [post]
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		authsdk.ErrInvalidRequest.With(err.Error()).WriteError(w)
		return
	}

	if err := h.Gateway.Logout(r.Context(), req.Refresh); err != nil {
		writeError(w, r, "logout", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "logged out"})
}
