package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/authsdk"
	"github.com/aussiebroadwan/sessions/pkg/httpx"
)

// TokenHandler serves POST /auth/token.
type TokenHandler struct {
	Gateway *service.Gateway
}

// ServeHTTP godoc
//
//	@Summary		Log in
//	@Description	Verifies credentials and opens a session for the given client type.
//	@Description	Only one session may be active per user and client type (and Telegram account for telegram_bot).
//	@Description	A previous session whose access token is already revoked is replaced; otherwise the login fails with 409.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.LoginRequest	true	"Credentials and device details"
//	@Success		200		{object}	authsdk.TokenResponse	"access, refresh, user, session_id"
//	@Failure		400		{object}	authsdk.APIError		"error, error_description"
//	@Failure		401		{object}	authsdk.APIError		"error, error_description"
//	@Failure		409		{object}	authsdk.APIError		"error, error_description, client_type"
//	@Failure		503		{object}	authsdk.APIError		"error, error_description"
//	@Header			200		{string}	Cache-Control			"no-store"
//	@Router			/auth/token [post]
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		authsdk.ErrInvalidRequest.With(err.Error()).WriteError(w)
		return
	}

	meta := domain.SessionMeta{
		ClientType: domain.NormalizeClientType(req.ClientType),
		DeviceName: req.DeviceName,
		IPAddress:  httpx.ClientIP(r),
		UserAgent:  r.UserAgent(),
	}
	// Telegram fields only mean something on a bot session.
	if req.TelegramUserID != nil && meta.ClientType.CarriesSecondary() {
		meta.Secondary = domain.SecondaryIdentity{
			Present:          true,
			TelegramUserID:   *req.TelegramUserID,
			TelegramUsername: req.TelegramUsername,
		}
	}

	res, err := h.Gateway.Login(r.Context(), service.LoginRequest{
		Identifier: req.UsernameOrEmail,
		Password:   req.Password,
		Meta:       meta,
	})
	if err != nil {
		writeError(w, r, "login", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		Access:    res.Access,
		Refresh:   res.Refresh,
		SessionID: res.SessionID,
		User: authsdk.UserInfo{
			ID:       res.Principal.UserID,
			Username: res.Principal.Username,
			Email:    res.Principal.Email,
			IsStaff:  res.Principal.IsStaff,
		},
	})
}
