package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// ListKeys returns every persisted signing key that can still verify
// tokens. Requires a staff session.
func (s *Session) ListKeys(ctx context.Context) ([]SigningKeyInfo, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.doRequest(ctx, http.MethodGet, "/keys", token, nil)
	if err != nil {
		return nil, err
	}

	var out KeysResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// RotateKey stores a new signing key, optionally retiring the others.
// Requires a staff session.
func (s *Session) RotateKey(ctx context.Context, retireExisting bool) (*RotateKeyResponse, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.doRequest(ctx, http.MethodPost, "/keys/rotate", token, RotateKeyRequest{RetireExisting: retireExisting})
	if err != nil {
		return nil, err
	}

	var out RotateKeyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetireKey stops kid from signing. Tokens it signed keep verifying until
// the key expires. Requires a staff session.
func (s *Session) RetireKey(ctx context.Context, kid string) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}

	resp, err := s.client.doRequest(ctx, http.MethodPost, "/keys/"+url.PathEscape(kid)+"/retire", token, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusNoContent)
}
