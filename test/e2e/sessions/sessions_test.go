package sessions_test

import (
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessions/pkg/authsdk"
)

func TestCluster(t *testing.T) {
	c := setupCluster(t)

	t.Run("health", func(t *testing.T) {
		for _, client := range []*authsdk.SDKClient{c.a, c.b} {
			ready, err := client.GetReadiness(t.Context())
			require.NoError(t, err)
			require.Equal(t, "ok", ready.Status)
			require.Equal(t, "ok", ready.Checks.Cache)
		}

		jwksA, err := c.a.GetJWKS(t.Context())
		require.NoError(t, err)
		jwksB, err := c.b.GetJWKS(t.Context())
		require.NoError(t, err)
		require.ElementsMatch(t, jwksA.Keys, jwksB.Keys, "instances share persistent keys")
	})

	t.Run("single active session across instances", func(t *testing.T) {
		c.user(t, "alice", false)

		_, err := login(t, c.a, "alice", "web")
		require.NoError(t, err)

		_, err = login(t, c.b, "alice", "web")
		var apiErr *authsdk.APIError
		require.True(t, errors.As(err, &apiErr))
		require.True(t, apiErr.IsConflict())
		require.Equal(t, "web", apiErr.ClientType)
	})

	t.Run("refresh and logout on the other instance", func(t *testing.T) {
		c.user(t, "bob", false)

		sessA, err := login(t, c.a, "bob", "mobile")
		require.NoError(t, err)

		// Refresh through B with the token A issued.
		sessB := c.b.NewSessionFromTokens(sessA.AccessToken(), sessA.RefreshToken(), sessA.SessionID())
		require.NoError(t, sessB.Refresh(t.Context()))

		// A turns the replaced access token away straight away.
		_, err = sessA.ListSessions(t.Context(), "")
		requireStatus(t, err, http.StatusUnauthorized)

		list, err := sessB.ListSessions(t.Context(), "")
		require.NoError(t, err)
		require.Len(t, list, 1)

		require.NoError(t, sessB.Logout(t.Context()))
		stale := c.a.NewSessionFromTokens(sessB.AccessToken(), sessB.RefreshToken(), sessB.SessionID())
		_, err = stale.ListSessions(t.Context(), "")
		requireStatus(t, err, http.StatusUnauthorized)

		// The slot is free on both instances.
		_, err = login(t, c.a, "bob", "mobile")
		require.NoError(t, err)
	})

	t.Run("cached verdicts expire", func(t *testing.T) {
		c.user(t, "carol", false)

		sess, err := login(t, c.a, "carol", "web")
		require.NoError(t, err)

		// Warm A's local cache with a "not revoked" verdict.
		_, err = sess.ListSessions(t.Context(), "")
		require.NoError(t, err)

		onB := c.b.NewSessionFromTokens(sess.AccessToken(), sess.RefreshToken(), sess.SessionID())
		n, err := onB.LogoutAll(t.Context(), "")
		require.NoError(t, err)
		require.Equal(t, 1, n)

		require.Eventually(t, func() bool {
			_, err := sess.ListSessions(t.Context(), "")
			var apiErr *authsdk.APIError
			return errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeTokenRevoked
		}, 3*time.Second, 50*time.Millisecond)
	})

	t.Run("concurrent logins elect one session", func(t *testing.T) {
		c.user(t, "dave", false)

		const attempts = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			conflicts int
			others    []error
		)
		for i := range attempts {
			client := c.a
			if i%2 == 1 {
				client = c.b
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := client.Login(t.Context(), authsdk.LoginRequest{
					UsernameOrEmail: "dave",
					Password:        password,
					ClientType:      "web",
				})
				mu.Lock()
				defer mu.Unlock()
				var apiErr *authsdk.APIError
				switch {
				case err == nil:
					ok++
				case errors.As(err, &apiErr) && apiErr.IsConflict():
					conflicts++
				default:
					others = append(others, err)
				}
			}()
		}
		wg.Wait()

		require.Empty(t, others)
		require.Equal(t, 1, ok)
		require.Equal(t, attempts-1, conflicts)
	})

	t.Run("staff manage other users", func(t *testing.T) {
		c.user(t, "erin", false)
		c.user(t, "root", true)

		erin, err := login(t, c.a, "erin", "web")
		require.NoError(t, err)
		tokens, err := c.b.LoginTokens(t.Context(), authsdk.LoginRequest{UsernameOrEmail: "erin", Password: password, ClientType: "mobile"})
		require.NoError(t, err)

		root, err := login(t, c.b, "root", "web")
		require.NoError(t, err)

		list, err := root.ListSessions(t.Context(), tokens.User.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)

		require.NoError(t, root.RevokeSession(t.Context(), erin.SessionID()))
		_, err = erin.ListSessions(t.Context(), "")
		requireStatus(t, err, http.StatusUnauthorized)

		_, err = erin.LogoutAll(t.Context(), tokens.User.ID)
		requireStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("rotated keys reach the other instance", func(t *testing.T) {
		c.user(t, "keymaster", true)
		c.user(t, "frank", false)

		admin, err := login(t, c.a, "keymaster", "web")
		require.NoError(t, err)
		rotated, err := admin.RotateKey(t.Context(), true)
		require.NoError(t, err)
		require.NotEmpty(t, rotated.RetiredKeys)

		// a signs with keys b has never loaded.
		tokens, err := c.a.LoginTokens(t.Context(), authsdk.LoginRequest{UsernameOrEmail: "frank", Password: password, ClientType: "web"})
		require.NoError(t, err)
		frank := c.b.NewSessionFromTokens(tokens.Access, tokens.Refresh, tokens.SessionID)
		list, err := frank.ListSessions(t.Context(), "")
		require.NoError(t, err)
		require.Len(t, list, 1)

		jwks, err := c.b.GetJWKS(t.Context())
		require.NoError(t, err)
		kids := make([]string, 0, len(jwks.Keys))
		for _, k := range jwks.Keys {
			kids = append(kids, k.Kid)
		}
		require.Contains(t, kids, rotated.NewKey.Kid)
	})
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode)
}
