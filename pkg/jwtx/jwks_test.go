package jwtx_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessions/pkg/jwtx"
)

func TestJWKSRoundTrip(t *testing.T) {
	for _, alg := range []string{jwtx.AlgorithmEdDSA, jwtx.AlgorithmES256, jwtx.AlgorithmRS256} {
		t.Run(alg, func(t *testing.T) {
			km := newKM(t, alg)
			raw, err := json.Marshal(km.KeySet.PublicJWKS())
			require.NoError(t, err)
			require.NotContains(t, string(raw), `"d"`, "no private material")

			var jwks jwtx.JWKS
			require.NoError(t, json.Unmarshal(raw, &jwks))
			require.Len(t, jwks.Keys, 1)
			require.Equal(t, alg, jwks.Keys[0].Alg)

			remote := jwtx.NewKeySet()
			require.NoError(t, remote.ResetFromJWKS(jwks))

			tok := signClaims(t, km, nil)
			_, err = jwtx.NewVerifier(remote, "sessions", nil).Verify(tok)
			require.NoError(t, err)
		})
	}
}

func TestKeySetRejectsUnsupported(t *testing.T) {
	ks := jwtx.NewKeySet()
	require.False(t, ks.IsReady())
	require.Error(t, ks.AddJWK(jwtx.JWK{Kty: "oct", Kid: "x"}))
	require.Error(t, ks.AddJWK(jwtx.JWK{Kty: "EC", Crv: "P-384", Kid: "x"}))
	require.Error(t, ks.AddJWK(jwtx.JWK{Kty: "OKP", Crv: "Ed25519", X: "!!", Kid: "x"}))

	_, err := ks.Get("x")
	require.ErrorIs(t, err, jwtx.ErrNoKey)
}

func TestKeySetRemove(t *testing.T) {
	a := newKM(t, jwtx.AlgorithmEdDSA).Signer()
	b := newKM(t, jwtx.AlgorithmES256).Signer()

	ks := jwtx.NewKeySet()
	require.NoError(t, ks.AddSigner(a))
	require.NoError(t, ks.AddSigner(b))
	require.NoError(t, ks.AddSigner(a))
	require.Equal(t, []string{a.KID(), b.KID()}, ks.Kids())

	ks.Remove(a.KID())
	ks.Remove("missing")
	require.Equal(t, []string{b.KID()}, ks.Kids())
	_, err := ks.Get(a.KID())
	require.ErrorIs(t, err, jwtx.ErrNoKey)
	require.Equal(t, b.KID(), ks.PublicJWKS().Keys[0].Kid)
}
