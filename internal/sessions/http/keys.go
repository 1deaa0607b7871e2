package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/authsdk"
	"github.com/aussiebroadwan/sessions/pkg/httpx"
)

// KeysHandler manages persisted signing keys. Every route is staff only.
type KeysHandler struct {
	Rotation *service.KeyRotationService
}

// HandleList godoc
//
//	@Summary		List signing keys
//	@Description	Returns every persisted signing key that can still verify tokens, newest first.
//	@Tags			Keys
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.KeysResponse	"keys"
//	@Failure		401	{object}	authsdk.APIError		"error, error_description"
//	@Failure		403	{object}	authsdk.APIError		"error, error_description"
//	@Router			/keys [get]
func (h *KeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	keys, err := h.Rotation.ListKeys(r.Context())
	if err != nil {
		writeError(w, r, "list_keys", err)
		return
	}

	out := authsdk.KeysResponse{Keys: make([]authsdk.SigningKeyInfo, 0, len(keys))}
	for _, k := range keys {
		out.Keys = append(out.Keys, keyInfo(k))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRotate godoc
//
//	@Summary		Rotate signing keys
//	@Description	Stores a new signing key. With retire_existing every other active key stops signing.
//	@Description	Other instances pick the change up on their next key reload.
//	@Tags			Keys
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		authsdk.RotateKeyRequest	false	"Rotation options"
//	@Success		200		{object}	authsdk.RotateKeyResponse	"new_key, retired_keys"
//	@Failure		401		{object}	authsdk.APIError			"error, error_description"
//	@Failure		403		{object}	authsdk.APIError			"error, error_description"
//	@Failure		503		{object}	authsdk.APIError			"error, error_description"
//	@Router			/keys/rotate [post]
func (h *KeysHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RotateKeyRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		authsdk.ErrInvalidRequest.With(err.Error()).WriteError(w)
		return
	}

	res, err := h.Rotation.RotateKey(r.Context(), req.RetireExisting)
	if err != nil {
		writeError(w, r, "rotate_key", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RotateKeyResponse{
		NewKey:      keyInfo(res.NewKey),
		RetiredKeys: res.Retired,
	})
}

// HandleRetire godoc
//
//	@Summary		Retire a signing key
//	@Description	Stops one key from signing. Tokens it signed keep verifying until the key expires.
//	@Tags			Keys
//	@Produce		json
//	@Security		BearerAuth
//	@Param			kid	path	string	true	"Key id"
//	@Success		204	"key retired"
//	@Failure		401	{object}	authsdk.APIError	"error, error_description"
//	@Failure		403	{object}	authsdk.APIError	"error, error_description"
//	@Failure		404	{object}	authsdk.APIError	"error, error_description"
//	@Router			/keys/{kid}/retire [post]
func (h *KeysHandler) HandleRetire(w http.ResponseWriter, r *http.Request) {
	if err := h.Rotation.RetireKey(r.Context(), r.PathValue("kid")); err != nil {
		writeError(w, r, "retire_key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func keyInfo(k domain.SigningKey) authsdk.SigningKeyInfo {
	return authsdk.SigningKeyInfo{
		Kid:       k.Kid,
		Algorithm: k.Algorithm,
		CreatedAt: k.CreatedAt,
		RetiredAt: k.RetiredAt,
		ExpiresAt: k.ExpiresAt,
	}
}
