package authsdk

import (
	"context"
	"net/http"
)

// LoginTokens calls POST /auth/token and returns the raw response.
func (c *SDKClient) LoginTokens(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/token", "", req)
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Login authenticates and wraps the tokens in a Session.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	tokens, err := c.LoginTokens(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.NewSessionFromTokens(tokens.Access, tokens.Refresh, tokens.SessionID), nil
}

// Refresh calls POST /auth/token/refresh. The returned Refresh is empty
// when the server does not rotate refresh tokens.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/token/refresh", "", RefreshRequest{Refresh: refreshToken})
	if err != nil {
		return nil, err
	}

	var out RefreshResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout calls POST /auth/logout. It succeeds for already logged out and
// expired refresh tokens.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/logout", "", LogoutRequest{Refresh: refreshToken})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}
