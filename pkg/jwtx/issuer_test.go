package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/sessions/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, now func() time.Time) *jwtx.Issuer {
	t.Helper()
	iss, err := jwtx.NewIssuer(newKM(t, jwtx.AlgorithmEdDSA), jwtx.IssuerOptions{Issuer: "sessions", Now: now})
	require.NoError(t, err)
	return iss
}

func TestMintAndVerify(t *testing.T) {
	iss := newIssuer(t, nil)

	m, err := iss.Mint("user-1", jwtx.TypeAccess, time.Hour, jwtx.Custom{SID: "s1", Username: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, m.JTI)
	require.WithinDuration(t, time.Now().Add(time.Hour), m.ExpiresAt, 2*time.Second)

	c, err := iss.Verify(m.Token)
	require.NoError(t, err)
	require.Equal(t, m.JTI, c.ID)
	require.Equal(t, "alice", c.Username)
	require.Equal(t, "s1", c.SID)
}

func TestMintFreshJTIs(t *testing.T) {
	iss := newIssuer(t, nil)
	seen := map[string]bool{}
	for range 100 {
		m, err := iss.Mint("u", jwtx.TypeRefresh, time.Hour, jwtx.Custom{})
		require.NoError(t, err)
		require.False(t, seen[m.JTI])
		seen[m.JTI] = true
	}
}

func TestMintRejectsBadInput(t *testing.T) {
	iss := newIssuer(t, nil)
	_, err := iss.Mint("", jwtx.TypeAccess, time.Hour, jwtx.Custom{})
	require.Error(t, err)
	_, err = iss.Mint("u", "id", time.Hour, jwtx.Custom{})
	require.Error(t, err)
	_, err = iss.Mint("u", jwtx.TypeAccess, 0, jwtx.Custom{})
	require.Error(t, err)
}

func TestVerifyType(t *testing.T) {
	iss := newIssuer(t, nil)
	access, err := iss.Mint("u", jwtx.TypeAccess, time.Hour, jwtx.Custom{})
	require.NoError(t, err)

	_, err = iss.VerifyType(access.Token, jwtx.TypeAccess)
	require.NoError(t, err)
	_, err = iss.VerifyType(access.Token, jwtx.TypeRefresh)
	require.ErrorIs(t, err, jwtx.ErrWrongType)
}

func TestExpiredTokenStillDecodes(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	minter := newIssuer(t, func() time.Time { return past })
	m, err := minter.Mint("u", jwtx.TypeRefresh, time.Hour, jwtx.Custom{SID: "s"})
	require.NoError(t, err)

	_, err = minter.Verify(m.Token)
	require.NoError(t, err, "valid at the minting clock")

	verifier, err := jwtx.NewIssuer(newKM(t, jwtx.AlgorithmEdDSA), jwtx.IssuerOptions{Issuer: "sessions"})
	require.NoError(t, err)
	require.NoError(t, verifier.KeySet().ResetFromJWKS(minter.KeySet().PublicJWKS()))

	_, err = verifier.Verify(m.Token)
	require.ErrorIs(t, err, jwtx.ErrExpired)

	c, err := verifier.Decode(m.Token)
	require.NoError(t, err)
	require.Equal(t, m.JTI, c.ID)
	require.Equal(t, "s", c.SID)
}
