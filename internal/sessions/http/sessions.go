package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/authsdk"
	"github.com/aussiebroadwan/sessions/pkg/httpx"
)

// SessionsHandler lists and revokes sessions.
type SessionsHandler struct {
	Gateway *service.Gateway
}

// HandleList godoc
//
//	@Summary		List active sessions
//	@Description	Returns the caller's active sessions. Staff may pass user_id to inspect another user.
//	@Description	Token strings are never included.
//	@Tags			Sessions
//	@Produce		json
//	@Security		BearerAuth
//	@Param			user_id	query		string						false	"Target user (staff only)"
//	@Success		200		{object}	authsdk.SessionsResponse	"user_id, sessions"
//	@Failure		401		{object}	authsdk.APIError			"error, error_description"
//	@Failure		403		{object}	authsdk.APIError			"error, error_description"
//	@Router			/sessions [get]
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	userID := r.URL.Query().Get("user_id")

	sessions, err := h.Gateway.ListSessions(r.Context(), caller, userID)
	if err != nil {
		writeError(w, r, "list_sessions", err)
		return
	}
	if userID == "" {
		userID = caller.UserID
	}

	out := authsdk.SessionsResponse{UserID: userID, Sessions: make([]authsdk.SessionInfo, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, sessionInfo(s))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke godoc
//
//	@Summary		Revoke a session
//	@Description	Ends one session by id and revokes its tokens. Staff may revoke any user's session.
//	@Tags			Sessions
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string					true	"Session id"
//	@Success		200	{object}	authsdk.MessageResponse	"message"
//	@Failure		401	{object}	authsdk.APIError		"error, error_description"
//	@Failure		403	{object}	authsdk.APIError		"error, error_description"
//	@Failure		404	{object}	authsdk.APIError		"error, error_description"
//	@Router			/sessions/{id}/revoke [post]
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	err := h.Gateway.RevokeSession(r.Context(), callerFrom(r), r.PathValue("id"))
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "session revoked"})
	case errors.Is(err, service.ErrSessionNotFound):
		authsdk.ErrSessionNotFound.WriteError(w)
	default:
		writeError(w, r, "revoke_session", err)
	}
}

func sessionInfo(s domain.Session) authsdk.SessionInfo {
	info := authsdk.SessionInfo{
		ID:           s.ID,
		ClientType:   string(s.ClientType),
		DeviceName:   s.DeviceName,
		IPAddress:    s.IPAddress,
		UserAgent:    s.UserAgent,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		IsActive:     s.IsActive,
	}
	if s.Secondary.Present {
		id := s.Secondary.TelegramUserID
		info.TelegramUserID = &id
		info.TelegramUsername = s.Secondary.TelegramUsername
	}
	return info
}
