package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/internal/sessions/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessions/pkg/cryptox"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
	"github.com/aussiebroadwan/sessions/pkg/revcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	t        *testing.T
	clock    *clock
	store    store.Store
	identity *service.LocalIdentityStore
	issuer   *jwtx.Issuer
	revs     *service.RevocationStore
	gw       *service.Gateway
}

type envOption func(*service.Gateway, *service.RevocationOptions)

func withRotation(on bool) envOption {
	return func(g *service.Gateway, _ *service.RevocationOptions) { g.RotateRefresh = on }
}

func withPolicy(p service.UnknownJTIPolicy) envOption {
	return func(_ *service.Gateway, o *service.RevocationOptions) { o.Policy = p }
}

func openStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "sessions.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	return newEnvOn(t, openStore(t), newClock(), opts...)
}

// newEnvOn builds a service stack on st. Two envs sharing st behave like
// two processes sharing a database.
func newEnvOn(t *testing.T, st store.Store, clk *clock, opts ...envOption) *env {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA, NumKeys: 1})
	require.NoError(t, err)
	iss, err := jwtx.NewIssuer(km, jwtx.IssuerOptions{Issuer: "sessions-test", Now: clk.Now})
	require.NoError(t, err)

	identity, err := service.NewLocalIdentityStore(st, cryptox.NewPasswordHasher("pepper"))
	require.NoError(t, err)

	metrics := service.NewMetrics(prometheus.NewRegistry())
	gw := &service.Gateway{
		Identity:      identity,
		Store:         st,
		Issuer:        iss,
		Metrics:       metrics,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		RotateRefresh: true,
		Now:           clk.Now,
	}
	revOpts := service.RevocationOptions{
		CacheTTL:     5 * time.Second,
		TombstoneTTL: 24 * time.Hour,
		Metrics:      metrics,
		Now:          clk.Now,
	}
	for _, o := range opts {
		o(gw, &revOpts)
	}

	local := revcache.NewLocal(0)
	local.SetClock(clk.Now)
	revs := service.NewRevocationStore(st, local, revOpts)
	gw.Revocations = revs
	gw.Sessions = service.NewSessionRegistry(st, revs, service.RegistryOptions{
		SessionTTL: 72 * time.Hour,
		Metrics:    metrics,
		Now:        clk.Now,
	})

	return &env{t: t, clock: clk, store: st, identity: identity, issuer: iss, revs: revs, gw: gw}
}

func (e *env) user(username string, staff bool) domain.User {
	e.t.Helper()
	u, err := e.identity.CreateUser(context.Background(), service.NewUser{
		Username: username,
		Email:    username + "@example.com",
		Password: "hunter2-" + username,
		IsStaff:  staff,
	})
	require.NoError(e.t, err)
	return u
}

func (e *env) login(username string, ct domain.ClientType) (service.LoginResult, error) {
	return e.gw.Login(context.Background(), service.LoginRequest{
		Identifier: username,
		Password:   "hunter2-" + username,
		Meta:       domain.SessionMeta{ClientType: ct, DeviceName: "test"},
	})
}

func (e *env) mustLogin(username string, ct domain.ClientType) service.LoginResult {
	e.t.Helper()
	res, err := e.login(username, ct)
	require.NoError(e.t, err)
	return res
}

func (e *env) claims(token string) jwtx.Claims {
	e.t.Helper()
	c, err := e.issuer.Decode(token)
	require.NoError(e.t, err)
	return c
}

func (e *env) blacklisted(token string) bool {
	e.t.Helper()
	revoked, err := e.revs.IsBlacklisted(context.Background(), e.claims(token).ID)
	require.NoError(e.t, err)
	return revoked
}

// activeSessions asserts the one-active-session-per-key rule and returns
// the active sessions of userID.
func (e *env) activeSessions(userID string) []domain.Session {
	e.t.Helper()
	list, err := e.store.Sessions().ListActiveSessionsByUser(context.Background(), userID)
	require.NoError(e.t, err)
	seen := map[domain.SessionKey]bool{}
	for _, s := range list {
		require.False(e.t, seen[s.Key()], "two active sessions for %+v", s.Key())
		seen[s.Key()] = true
	}
	return list
}
