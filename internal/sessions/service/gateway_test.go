package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestLoginIssuesBoundTokens(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", false)

	res := e.mustLogin("alice", domain.ClientWeb)
	require.Equal(t, alice.ID, res.Principal.UserID)
	require.NotEmpty(t, res.SessionID)

	access := e.claims(res.Access)
	refresh := e.claims(res.Refresh)
	require.Equal(t, jwtx.TypeAccess, access.Type)
	require.Equal(t, jwtx.TypeRefresh, refresh.Type)
	require.Equal(t, res.SessionID, access.SID)
	require.Equal(t, res.SessionID, refresh.SID)
	require.Equal(t, "alice", access.Username)

	sess, err := e.gw.Sessions.Get(context.Background(), refresh.ID)
	require.NoError(t, err)
	require.Equal(t, res.SessionID, sess.ID)
	require.Equal(t, access.ID, *sess.AccessJTI)

	usable, err := e.revs.Usable(context.Background(), access.ID)
	require.NoError(t, err)
	require.True(t, usable)

	// Email works as an identifier too.
	_, err = e.gw.Login(context.Background(), service.LoginRequest{
		Identifier: "ALICE@example.com",
		Password:   "hunter2-alice",
		Meta:       domain.SessionMeta{ClientType: domain.ClientMobile},
	})
	require.NoError(t, err)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newEnv(t)
	e.user("alice", false)

	_, err := e.gw.Login(context.Background(), service.LoginRequest{Identifier: "alice", Password: "wrong"})
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = e.gw.Login(context.Background(), service.LoginRequest{Identifier: "nobody", Password: "x"})
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	u, err := e.store.Users().GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, e.store.Users().SetUserActive(context.Background(), u.ID, false, time.Now()))
	_, err = e.login("alice", domain.ClientWeb)
	require.ErrorIs(t, err, service.ErrAccountDisabled)
}

// Alice logs in on the web, a second web login conflicts while the first
// access token is live, a mobile login is independent, and once the web
// access token lapses a new web login replaces the old session.
func TestSingleActiveSessionPerClientType(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", false)

	web1 := e.mustLogin("alice", domain.ClientWeb)

	_, err := e.login("alice", domain.ClientWeb)
	var conflict *service.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.ErrorIs(t, err, service.ErrSessionConflict)
	require.Equal(t, domain.ClientWeb, conflict.ClientType)

	e.mustLogin("alice", domain.ClientMobile)
	require.Len(t, e.activeSessions(alice.ID), 2)

	e.clock.Advance(16 * time.Minute)
	web2 := e.mustLogin("alice", domain.ClientWeb)
	require.NotEqual(t, web1.SessionID, web2.SessionID)
	require.Len(t, e.activeSessions(alice.ID), 2)

	old, err := e.gw.Sessions.GetByID(context.Background(), web1.SessionID)
	require.NoError(t, err)
	require.False(t, old.IsActive)
	require.True(t, e.blacklisted(web1.Refresh))

	_, err = e.gw.Refresh(context.Background(), web1.Refresh)
	require.ErrorIs(t, err, service.ErrTokenRevoked)
}

func TestLoginReplacesAfterLogoutOfAccess(t *testing.T) {
	e := newEnv(t)
	e.user("alice", false)

	first := e.mustLogin("alice", domain.ClientWeb)
	require.NoError(t, e.revs.Blacklist(context.Background(), e.claims(first.Access).ID))

	second := e.mustLogin("alice", domain.ClientWeb)
	require.NotEqual(t, first.SessionID, second.SessionID)
}

func TestSecondaryIdentityPartitionsSlots(t *testing.T) {
	e := newEnv(t)
	bot := e.user("bot", false)

	login := func(tgID int64) error {
		_, err := e.gw.Login(context.Background(), service.LoginRequest{
			Identifier: "bot",
			Password:   "hunter2-bot",
			Meta: domain.SessionMeta{
				ClientType: domain.ClientTelegramBot,
				Secondary:  domain.SecondaryIdentity{Present: true, TelegramUserID: tgID},
			},
		})
		return err
	}
	require.NoError(t, login(1))
	require.NoError(t, login(2))
	require.ErrorIs(t, login(1), service.ErrSessionConflict)
	require.Len(t, e.activeSessions(bot.ID), 2)
}

func TestSecondaryIdentityIgnoredForOtherClientTypes(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", false)

	login := func(tgID int64) error {
		_, err := e.gw.Login(context.Background(), service.LoginRequest{
			Identifier: "alice",
			Password:   "hunter2-alice",
			Meta: domain.SessionMeta{
				ClientType: domain.ClientMobile,
				Secondary:  domain.SecondaryIdentity{Present: true, TelegramUserID: tgID},
			},
		})
		return err
	}
	require.NoError(t, login(1))
	require.ErrorIs(t, login(2), service.ErrSessionConflict)
	require.ErrorIs(t, login(3), service.ErrSessionConflict)

	active := e.activeSessions(alice.ID)
	require.Len(t, active, 1)
	require.False(t, active[0].Secondary.Present)
}

func TestConcurrentLoginsKeepOneActiveSession(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", false)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		ok   int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.login("alice", domain.ClientWeb)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	for _, err := range errs {
		require.ErrorIs(t, err, service.ErrSessionConflict)
	}
	require.Len(t, e.activeSessions(alice.ID), 1)
}

func TestRefreshWithRotation(t *testing.T) {
	e := newEnv(t, withRotation(true))
	e.user("alice", false)
	ctx := context.Background()

	login := e.mustLogin("alice", domain.ClientWeb)
	e.clock.Advance(time.Minute)

	res, err := e.gw.Refresh(ctx, login.Refresh)
	require.NoError(t, err)
	require.NotEmpty(t, res.Access)
	require.NotEmpty(t, res.Refresh)
	require.Equal(t, login.SessionID, e.claims(res.Access).SID)

	require.True(t, e.blacklisted(login.Access))
	require.True(t, e.blacklisted(login.Refresh))

	_, err = e.gw.Refresh(ctx, login.Refresh)
	require.ErrorIs(t, err, service.ErrTokenRevoked)

	sess, err := e.gw.Sessions.Get(ctx, e.claims(res.Refresh).ID)
	require.NoError(t, err)
	require.Equal(t, e.claims(res.Access).ID, *sess.AccessJTI)
	require.True(t, sess.LastActivity.Equal(e.clock.Now()))

	_, err = e.gw.Refresh(ctx, res.Refresh)
	require.NoError(t, err)
}

func TestRefreshWithoutRotation(t *testing.T) {
	e := newEnv(t, withRotation(false))
	e.user("alice", false)
	ctx := context.Background()

	login := e.mustLogin("alice", domain.ClientWeb)

	first, err := e.gw.Refresh(ctx, login.Refresh)
	require.NoError(t, err)
	require.Empty(t, first.Refresh)
	require.True(t, e.blacklisted(login.Access))
	require.False(t, e.blacklisted(login.Refresh))

	second, err := e.gw.Refresh(ctx, login.Refresh)
	require.NoError(t, err)
	require.True(t, e.blacklisted(first.Access))
	require.NotEqual(t, first.Access, second.Access)
}

func TestRefreshRejects(t *testing.T) {
	e := newEnv(t)
	e.user("alice", false)
	ctx := context.Background()
	login := e.mustLogin("alice", domain.ClientWeb)

	_, err := e.gw.Refresh(ctx, login.Access)
	require.ErrorIs(t, err, service.ErrTokenInvalid, "access token is not a refresh token")

	_, err = e.gw.Refresh(ctx, "garbage")
	require.ErrorIs(t, err, service.ErrTokenInvalid)

	e.clock.Advance(25 * time.Hour)
	_, err = e.gw.Refresh(ctx, login.Refresh)
	require.ErrorIs(t, err, service.ErrTokenExpired)
}

func TestRefreshOnExpiredSessionRevokesIt(t *testing.T) {
	e := newEnv(t)
	e.gw.RefreshTTL = 7 * 24 * time.Hour
	alice := e.user("alice", false)
	ctx := context.Background()

	login := e.mustLogin("alice", domain.ClientWeb)
	e.clock.Advance(73 * time.Hour)

	_, err := e.gw.Refresh(ctx, login.Refresh)
	require.ErrorIs(t, err, service.ErrSessionNotFound)
	require.Empty(t, e.activeSessions(alice.ID))
	require.True(t, e.blacklisted(login.Refresh))
}

func TestLogoutIsIdempotent(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", false)
	ctx := context.Background()

	login := e.mustLogin("alice", domain.ClientWeb)
	require.NoError(t, e.gw.Logout(ctx, login.Refresh))
	require.NoError(t, e.gw.Logout(ctx, login.Refresh))

	require.Empty(t, e.activeSessions(alice.ID))
	require.True(t, e.blacklisted(login.Access))
	require.True(t, e.blacklisted(login.Refresh))

	_, err := e.gw.Refresh(ctx, login.Refresh)
	require.ErrorIs(t, err, service.ErrTokenRevoked)

	// The slot is free again.
	e.mustLogin("alice", domain.ClientWeb)
}

func TestLogoutAcceptsExpiredRefresh(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", false)
	login := e.mustLogin("alice", domain.ClientWeb)

	e.clock.Advance(48 * time.Hour)
	require.NoError(t, e.gw.Logout(context.Background(), login.Refresh))
	require.Empty(t, e.activeSessions(alice.ID))
}

func TestLogoutRejectsBadTokens(t *testing.T) {
	e := newEnv(t)
	e.user("alice", false)
	login := e.mustLogin("alice", domain.ClientWeb)

	require.ErrorIs(t, e.gw.Logout(context.Background(), "not.a.jwt"), service.ErrTokenUndecodable)
	require.ErrorIs(t, e.gw.Logout(context.Background(), login.Access), service.ErrLogoutTokenRejected)

	// A token signed by someone else's keys.
	other := newEnv(t)
	other.user("alice", false)
	foreign := other.mustLogin("alice", domain.ClientWeb)
	require.ErrorIs(t, e.gw.Logout(context.Background(), foreign.Refresh), service.ErrLogoutTokenRejected)
}

func TestLogoutAll(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", false)
	bob := e.user("bob", false)
	ctx := context.Background()

	web := e.mustLogin("alice", domain.ClientWeb)
	e.mustLogin("alice", domain.ClientMobile)
	bobs := e.mustLogin("bob", domain.ClientWeb)

	caller := service.Caller{UserID: alice.ID}
	_, err := e.gw.LogoutAll(ctx, caller, bob.ID)
	require.ErrorIs(t, err, service.ErrForbidden)

	n, err := e.gw.LogoutAll(ctx, caller, "")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Empty(t, e.activeSessions(alice.ID))
	require.True(t, e.blacklisted(web.Access))

	n, err = e.gw.LogoutAll(ctx, caller, "")
	require.NoError(t, err)
	require.Zero(t, n)

	require.Len(t, e.activeSessions(bob.ID), 1)
	require.False(t, e.blacklisted(bobs.Access))
}

// failingStore fails every other WithTx call.
type failingStore struct {
	store.Store
	mu    sync.Mutex
	calls int
}

var errInjected = errors.New("injected failure")

func (f *failingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls%2 == 0
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.WithTx(ctx, fn)
}

func TestLogoutAllContinuesPastFailures(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", false)
	for _, ct := range []domain.ClientType{domain.ClientWeb, domain.ClientMobile, domain.ClientTelegramBot, "desktop"} {
		e.mustLogin("alice", ct)
	}

	fs := &failingStore{Store: e.store}
	reg := service.NewSessionRegistry(fs, e.revs, service.RegistryOptions{Now: e.clock.Now})
	gw := *e.gw
	gw.Sessions = reg

	n, err := gw.LogoutAll(context.Background(), service.Caller{UserID: alice.ID}, "")
	require.Equal(t, 2, n)
	require.ErrorIs(t, err, errInjected)
	require.ErrorIs(t, err, service.ErrBackendUnavailable)
	require.Len(t, e.activeSessions(alice.ID), 2)
}

// A staff member lists and revokes another user's session; an ordinary
// user cannot.
func TestPrivilegedSessionManagement(t *testing.T) {
	e := newEnv(t)
	admin := e.user("admin", true)
	alice := e.user("alice", false)
	mallory := e.user("mallory", false)
	ctx := context.Background()

	login := e.mustLogin("alice", domain.ClientWeb)

	_, err := e.gw.ListSessions(ctx, service.Caller{UserID: mallory.ID}, alice.ID)
	require.ErrorIs(t, err, service.ErrForbidden)
	err = e.gw.RevokeSession(ctx, service.Caller{UserID: mallory.ID}, login.SessionID)
	require.ErrorIs(t, err, service.ErrForbidden)

	staff := service.Caller{UserID: admin.ID, IsStaff: true}
	list, err := e.gw.ListSessions(ctx, staff, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, login.SessionID, list[0].ID)

	require.NoError(t, e.gw.RevokeSession(ctx, staff, login.SessionID))
	require.NoError(t, e.gw.RevokeSession(ctx, staff, login.SessionID))
	require.True(t, e.blacklisted(login.Access))

	err = e.gw.RevokeSession(ctx, staff, "missing")
	require.ErrorIs(t, err, service.ErrSessionNotFound)

	n, err := e.gw.LogoutAll(ctx, staff, alice.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBackendFailureIsReported(t *testing.T) {
	e := newEnv(t)
	e.user("alice", false)
	login := e.mustLogin("alice", domain.ClientWeb)

	require.NoError(t, e.store.Close())

	_, err := e.gw.Refresh(context.Background(), login.Refresh)
	require.ErrorIs(t, err, service.ErrBackendUnavailable)

	_, err = e.login("alice", domain.ClientMobile)
	require.ErrorIs(t, err, service.ErrBackendUnavailable)
}
