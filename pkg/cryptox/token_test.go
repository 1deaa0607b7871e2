package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/sessions/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	a, err := cryptox.GenerateToken(cryptox.TokenSize128)
	require.NoError(t, err)
	require.Len(t, a, 22)

	b, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)
	require.Len(t, b, 43)
	require.NotContains(t, b, "=")

	_, err = cryptox.GenerateToken(0)
	require.Error(t, err)
}
