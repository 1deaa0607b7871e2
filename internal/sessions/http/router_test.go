package http_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	sessionshttp "github.com/aussiebroadwan/sessions/internal/sessions/http"
	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/internal/sessions/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessions/pkg/authsdk"
	"github.com/aussiebroadwan/sessions/pkg/cryptox"
	"github.com/aussiebroadwan/sessions/pkg/httpx"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
	"github.com/aussiebroadwan/sessions/pkg/revcache"
	"github.com/aussiebroadwan/sessions/pkg/slogx"
)

type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	client   *authsdk.SDKClient
	identity *service.LocalIdentityStore
}

func newTestServer(t *testing.T, opts ...func(*sessionshttp.Router)) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "sessions.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	sealer, err := cryptox.NewKeySealer([]byte("master"))
	require.NoError(t, err)
	km, err := jwtx.NewPersistentKeyManager(context.Background(), jwtx.PersistentKeyManagerOptions{
		KeyManagerOptions: jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA, NumKeys: 1},
		Store:             store.NewKeyStoreAdapter(st),
		Sealer:            sealer,
	})
	require.NoError(t, err)
	iss, err := jwtx.NewIssuer(km, jwtx.IssuerOptions{Issuer: "sessions-test"})
	require.NoError(t, err)

	identity, err := service.NewLocalIdentityStore(st, cryptox.NewPasswordHasher("pepper"))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	revs := service.NewRevocationStore(st, revcache.NewLocal(0), service.RevocationOptions{Metrics: metrics})
	gw := &service.Gateway{
		Identity:      identity,
		Store:         st,
		Issuer:        iss,
		Revocations:   revs,
		Sessions:      service.NewSessionRegistry(st, revs, service.RegistryOptions{Metrics: metrics}),
		Metrics:       metrics,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		RotateRefresh: true,
	}

	logger := slogx.New(slogx.Config{Service: "sessions-test", Level: "error", Output: io.Discard})
	router := sessionshttp.NewRouter(iss, "test", gw, logger)
	router.Gatherer = reg
	router.Keys = &service.KeyRotationService{
		Store:     st,
		Sealer:    sealer,
		Algorithm: jwtx.AlgorithmEdDSA,
		Keys:      km,
	}
	for _, opt := range opts {
		opt(router)
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{t: t, srv: srv, client: authsdk.NewSDKClient(srv.URL), identity: identity}
}

func (s *testServer) user(username string, staff bool) {
	s.t.Helper()
	_, err := s.identity.CreateUser(context.Background(), service.NewUser{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw-" + username,
		IsStaff:  staff,
	})
	require.NoError(s.t, err)
}

func (s *testServer) login(username, clientType string) (*authsdk.Session, error) {
	return s.client.Login(context.Background(), authsdk.LoginRequest{
		UsernameOrEmail: username,
		Password:        "pw-" + username,
		ClientType:      clientType,
		DeviceName:      "test device",
	})
}

func (s *testServer) mustLogin(username, clientType string) *authsdk.Session {
	s.t.Helper()
	sess, err := s.login(username, clientType)
	require.NoError(s.t, err)
	return sess
}

// bearerGet issues a GET with a fixed bearer token, bypassing the SDK's
// refresh logic.
func (s *testServer) bearerGet(path, token string) *http.Response {
	s.t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
	require.NoError(s.t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func requireAPIError(t *testing.T, err error, status int, code string) *authsdk.APIError {
	t.Helper()
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestLoginAndConflict(t *testing.T) {
	s := newTestServer(t)
	s.user("alice", false)
	ctx := context.Background()

	tokens, err := s.client.LoginTokens(ctx, authsdk.LoginRequest{
		UsernameOrEmail: "Alice@Example.com",
		Password:        "pw-alice",
		ClientType:      "web",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tokens.Access)
	require.NotEmpty(t, tokens.Refresh)
	require.NotEmpty(t, tokens.SessionID)
	require.Equal(t, "alice", tokens.User.Username)

	// Same slot while the first access token is live.
	_, err = s.login("alice", "web")
	apiErr := requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeSessionConflict)
	require.True(t, apiErr.IsConflict())
	require.Equal(t, "web", apiErr.ClientType)

	// Another client type is a separate slot.
	s.mustLogin("alice", "mobile")
}

func TestLoginRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	s.user("bob", false)
	ctx := context.Background()

	_, err := s.client.Login(ctx, authsdk.LoginRequest{UsernameOrEmail: "bob", Password: "wrong"})
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)

	_, err = s.client.Login(ctx, authsdk.LoginRequest{UsernameOrEmail: "nobody", Password: "pw-nobody"})
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)

	_, err = s.client.Login(ctx, authsdk.LoginRequest{UsernameOrEmail: "bob"})
	apiErr := requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	require.Contains(t, apiErr.Description, "password is required")

	resp, err := http.Post(s.srv.URL+"/auth/token", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTelegramAccountsHaveSeparateSlots(t *testing.T) {
	s := newTestServer(t)
	s.user("carol", false)
	ctx := context.Background()

	loginTG := func(id int64) error {
		_, err := s.client.Login(ctx, authsdk.LoginRequest{
			UsernameOrEmail: "carol",
			Password:        "pw-carol",
			ClientType:      "telegram_bot",
			TelegramUserID:  &id,
		})
		return err
	}

	require.NoError(t, loginTG(111))
	require.NoError(t, loginTG(222))
	requireAPIError(t, loginTG(111), http.StatusConflict, authsdk.ErrorCodeSessionConflict)
}

func TestTelegramFieldsDoNotSplitOtherClientTypes(t *testing.T) {
	s := newTestServer(t)
	s.user("carol", false)
	ctx := context.Background()

	loginMobile := func(id int64) error {
		_, err := s.client.Login(ctx, authsdk.LoginRequest{
			UsernameOrEmail: "carol",
			Password:        "pw-carol",
			ClientType:      "mobile",
			TelegramUserID:  &id,
		})
		return err
	}

	require.NoError(t, loginMobile(1))
	requireAPIError(t, loginMobile(2), http.StatusConflict, authsdk.ErrorCodeSessionConflict)
	requireAPIError(t, loginMobile(3), http.StatusConflict, authsdk.ErrorCodeSessionConflict)
}

func TestRefreshRevokesPreviousAccessToken(t *testing.T) {
	s := newTestServer(t)
	s.user("dave", false)
	ctx := context.Background()

	sess := s.mustLogin("dave", "web")
	oldAccess, oldRefresh := sess.AccessToken(), sess.RefreshToken()

	require.NoError(t, sess.Refresh(ctx))
	require.NotEqual(t, oldAccess, sess.AccessToken())
	require.NotEqual(t, oldRefresh, sess.RefreshToken())

	// The guard turns the replaced access token away.
	resp := s.bearerGet("/sessions", oldAccess)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The rotated-out refresh token no longer works.
	_, err := s.client.Refresh(ctx, oldRefresh)
	require.Error(t, err)
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	list, err := sess.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	s.user("erin", false)
	ctx := context.Background()

	sess := s.mustLogin("erin", "web")
	access := sess.AccessToken()

	require.NoError(t, sess.Logout(ctx))
	require.NoError(t, sess.Logout(ctx), "logout is idempotent")

	resp := s.bearerGet("/sessions", access)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The slot is free again.
	s.mustLogin("erin", "web")

	err := s.client.Logout(ctx, "not-a-token")
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)

	// A verifiable token of the wrong type is a bad request, not a 401.
	other := s.mustLogin("erin", "mobile")
	err = s.client.Logout(ctx, other.AccessToken())
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	// A tampered signature too.
	err = s.client.Logout(ctx, other.RefreshToken()+"x")
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
}

func TestLogoutAll(t *testing.T) {
	s := newTestServer(t)
	s.user("frank", false)
	s.user("grace", false)
	s.user("root", true)
	ctx := context.Background()

	web := s.mustLogin("frank", "web")
	s.mustLogin("frank", "mobile")
	grace := s.mustLogin("grace", "web")

	_, err := grace.LogoutAll(ctx, "frank-id-does-not-matter")
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeForbidden)

	n, err := web.LogoutAll(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// The token used for the call is now revoked too.
	_, err = web.ListSessions(ctx, "")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)

	// Staff can log out someone else.
	root := s.mustLogin("root", "web")
	graceSessions, err := grace.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, graceSessions, 1)

	tokens, err := s.client.LoginTokens(ctx, authsdk.LoginRequest{UsernameOrEmail: "grace", Password: "pw-grace", ClientType: "mobile"})
	require.NoError(t, err)
	n, err = root.LogoutAll(ctx, tokens.User.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSessionManagement(t *testing.T) {
	s := newTestServer(t)
	s.user("heidi", false)
	s.user("ivan", false)
	s.user("admin", true)
	ctx := context.Background()

	heidiWeb := s.mustLogin("heidi", "web")
	heidiMobile := s.mustLogin("heidi", "mobile")
	ivan := s.mustLogin("ivan", "web")
	admin := s.mustLogin("admin", "web")

	list, err := heidiWeb.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, info := range list {
		require.NotEmpty(t, info.ID)
		require.Equal(t, "test device", info.DeviceName)
		require.True(t, info.IsActive)
	}

	// Other users may neither see nor revoke heidi's sessions.
	err = ivan.RevokeSession(ctx, heidiMobile.SessionID())
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeForbidden)

	err = ivan.RevokeSession(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	requireAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeSessionNotFound)

	// Staff can list by user id and revoke.
	tokens, err := s.client.LoginTokens(ctx, authsdk.LoginRequest{UsernameOrEmail: "heidi", Password: "pw-heidi", ClientType: "cli"})
	require.NoError(t, err)
	list, err = admin.ListSessions(ctx, tokens.User.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	require.NoError(t, admin.RevokeSession(ctx, heidiMobile.SessionID()))
	_, err = heidiMobile.ListSessions(ctx, "")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)

	// Heidi revokes her own session.
	require.NoError(t, heidiWeb.RevokeSession(ctx, tokens.SessionID))
	list, err = heidiWeb.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSessionsRequireBearer(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.srv.URL + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	s := newTestServer(t)
	s.user("judy", false)

	sess := s.mustLogin("judy", "web")
	resp := s.bearerGet("/sessions", sess.RefreshToken())
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSystemEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.user("ken", false)
	ctx := context.Background()

	live, err := s.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := s.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Empty(t, ready.Checks.Cache)

	jwks, err := s.client.GetJWKS(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, jwks.Keys)

	sess := s.mustLogin("ken", "web")

	// Tokens verify offline against the published keys.
	verifier, err := s.client.Verifier(ctx, "sessions-test", nil)
	require.NoError(t, err)
	claims, err := verifier.Verify(sess.AccessToken())
	require.NoError(t, err)
	require.Equal(t, jwtx.TypeAccess, claims.Type)
	_, err = verifier.Verify(sess.AccessToken() + "x")
	require.Error(t, err)

	resp, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `sessions_logins_total{result="ok"} 1`)
}

func TestKeyManagement(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.user("alice", false)
	s.user("root", true)

	_, err := s.mustLogin("alice", "web").ListKeys(ctx)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeForbidden)

	admin := s.mustLogin("root", "web")
	keys, err := admin.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	original := keys[0].Kid

	rotated, err := admin.RotateKey(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{original}, rotated.RetiredKeys)
	require.Equal(t, jwtx.AlgorithmEdDSA, rotated.NewKey.Algorithm)

	// The admin's token was signed by the retired key and still verifies.
	keys, err = admin.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		if k.Kid == original {
			require.NotNil(t, k.RetiredAt)
		}
	}

	jwks, err := s.client.GetJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 2)

	// New logins are signed by the new key and verify.
	fresh, err := s.client.LoginTokens(ctx, authsdk.LoginRequest{UsernameOrEmail: "root", Password: "pw-root", ClientType: "mobile"})
	require.NoError(t, err)
	require.NotEmpty(t, fresh.Access)
	require.Equal(t, http.StatusOK, s.bearerGet("/sessions", fresh.Access).StatusCode)

	err = admin.RetireKey(ctx, original)
	requireAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeKeyNotFound)
	require.NoError(t, admin.RetireKey(ctx, rotated.NewKey.Kid))
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, func(r *sessionshttp.Router) {
		r.Limits.Strict = httpx.RateProfile{Requests: 2, Window: time.Hour}
	})
	s.user("alice", false)
	s.user("bob", false)

	_, err := s.client.Login(context.Background(), authsdk.LoginRequest{UsernameOrEmail: "alice", Password: "wrong"})
	require.Error(t, err)
	_, err = s.client.Login(context.Background(), authsdk.LoginRequest{UsernameOrEmail: "alice", Password: "wrong"})
	require.Error(t, err)

	// The right password no longer helps once the bucket is empty.
	_, err = s.login("alice", "web")
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeRateLimited, apiErr.Code)
	require.Positive(t, apiErr.RetryAfter)

	// Another account from the same address has its own bucket.
	s.mustLogin("bob", "web")

	resp, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `sessions_rate_limited_total{route="token"} 1`)
}
