package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessions/pkg/authsdk"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.DatabaseFile = filepath.Join(dir, "sessions.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.MasterKeyPath = filepath.Join(dir, "master.key")
	cfg.LogLevel = "error"
	return cfg
}

func TestUserAddThenLogin(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, UserAdd(ctx, cfg, []string{"-username", "alice", "-email", "alice@example.com"}, &out))
	require.Contains(t, out.String(), "created user alice")

	var password string
	for _, line := range strings.Split(out.String(), "\n") {
		if p, ok := strings.CutPrefix(line, "password: "); ok {
			password = p
		}
	}
	require.NotEmpty(t, password)

	app, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	client := authsdk.NewSDKClient(srv.URL)
	sess, err := client.Login(ctx, authsdk.LoginRequest{UsernameOrEmail: "alice", Password: password, ClientType: "web"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.SessionID())

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPersistentKeysSurviveRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := New(ctx, cfg)
	require.NoError(t, err)
	jwks1 := fetchJWKS(t, first)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	jwks2 := fetchJWKS(t, second)

	require.ElementsMatch(t, jwks1.Keys, jwks2.Keys)
}

func TestUserAddRequiresUsername(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	require.Error(t, UserAdd(context.Background(), cfg, nil, &out))
}

func TestKeysRotateReachesRunningInstance(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, UserAdd(ctx, cfg, []string{"-username", "bob", "-password", "correct horse"}, &out))

	running, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = running.Close() })
	before := fetchJWKS(t, running)

	out.Reset()
	require.NoError(t, Keys(ctx, cfg, []string{"rotate", "-retire-existing"}, &out))
	require.Contains(t, out.String(), "created key")
	require.Equal(t, len(before.Keys)+1, strings.Count(out.String(), "key "))

	out.Reset()
	require.NoError(t, Keys(ctx, cfg, []string{"list"}, &out))
	require.Equal(t, len(before.Keys), strings.Count(out.String(), "retired "))

	// A fresh instance signs only with keys the running one has never seen.
	fresh, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fresh.Close() })
	freshSrv := httptest.NewServer(fresh.Handler())
	t.Cleanup(freshSrv.Close)
	runningSrv := httptest.NewServer(running.Handler())
	t.Cleanup(runningSrv.Close)

	tokens, err := authsdk.NewSDKClient(freshSrv.URL).LoginTokens(ctx, authsdk.LoginRequest{
		UsernameOrEmail: "bob", Password: "correct horse", ClientType: "web",
	})
	require.NoError(t, err)

	sess := authsdk.NewSDKClient(runningSrv.URL).NewSessionFromTokens(tokens.Access, tokens.Refresh, tokens.SessionID)
	list, err := sess.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.Error(t, Keys(ctx, cfg, []string{"retire"}, &out))
	require.Error(t, Keys(ctx, cfg, []string{"retire", "-kid", "sess-missing"}, &out))
	require.Error(t, Keys(ctx, cfg, []string{"bogus"}, &out))
}

func fetchJWKS(t *testing.T, app *Application) authsdk.JWKSResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var jwks authsdk.JWKSResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&jwks))
	require.NotEmpty(t, jwks.Keys)
	return jwks
}
