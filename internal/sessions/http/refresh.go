package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/authsdk"
	"github.com/aussiebroadwan/sessions/pkg/httpx"
)

// RefreshHandler serves POST /auth/token/refresh.
type RefreshHandler struct {
	Gateway *service.Gateway
}

// ServeHTTP godoc
//
//	@Summary		Refresh tokens
//	@Description	Exchanges a refresh token for a new access token. The previous access token is revoked.
//	@Description	When rotation is enabled a new refresh token is returned and the old one stops working.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.RefreshResponse	"access, refresh"
//	@Failure		400		{object}	authsdk.APIError		"error, error_description"
//	@Failure		401		{object}	authsdk.APIError		"error, error_description"
//	@Failure		503		{object}	authsdk.APIError		"error, error_description"
//	@Router			/auth/token/refresh [post]
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		authsdk.ErrInvalidRequest.With(err.Error()).WriteError(w)
		return
	}

	res, err := h.Gateway.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeError(w, r, "refresh", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RefreshResponse{
		Access:  res.Access,
		Refresh: res.Refresh,
	})
}
