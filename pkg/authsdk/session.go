package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessions/pkg/jwtx"
)

// refreshBuffer is how long before expiry the access token is replaced.
const refreshBuffer = 30 * time.Second

// Session represents one logged-in device with automatic token refresh.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	sessionID    string
	expiresAt    time.Time
}

// NewSessionFromTokens wraps existing tokens. The access token's exp claim
// is read without verification to schedule refreshes.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken, sessionID string) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		sessionID:    sessionID,
		expiresAt:    refreshAt(accessToken),
	}
}

func refreshAt(accessToken string) time.Time {
	claims, err := jwtx.Decode(accessToken)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Add(-refreshBuffer)
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// SessionID returns the server-side session id.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

// Refresh forces a token refresh.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return errors.New("access token expired and no refresh token available")
	}

	out, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	s.accessToken = out.Access
	if out.Refresh != "" {
		s.refreshToken = out.Refresh
	}
	s.expiresAt = refreshAt(out.Access)
	return nil
}

// Logout ends this session on the server.
func (s *Session) Logout(ctx context.Context) error {
	return s.client.Logout(ctx, s.RefreshToken())
}

// LogoutAll ends every session of userID (the caller's own when empty)
// and returns how many were revoked.
func (s *Session) LogoutAll(ctx context.Context, userID string) (int, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.doRequest(ctx, http.MethodPost, "/auth/logout/all", token, LogoutAllRequest{UserID: userID})
	if err != nil {
		return 0, err
	}

	var out LogoutAllResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.RevokedSessions, nil
}

// ListSessions returns the active sessions of userID (the caller's own
// when empty).
func (s *Session) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}

	path := "/sessions"
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	resp, err := s.client.doRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}

	var out SessionsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// RevokeSession ends one session by id.
func (s *Session) RevokeSession(ctx context.Context, sessionID string) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}

	resp, err := s.client.doRequest(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/revoke", token, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}
