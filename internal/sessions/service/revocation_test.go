package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/stretchr/testify/require"
)

func TestParseUnknownJTIPolicy(t *testing.T) {
	p, err := service.ParseUnknownJTIPolicy("deny")
	require.NoError(t, err)
	require.Equal(t, service.DenyUnknownJTI, p)

	_, err = service.ParseUnknownJTIPolicy("maybe")
	require.Error(t, err)
}

func TestUnknownJTIPolicy(t *testing.T) {
	ctx := context.Background()

	allow := newEnv(t, withPolicy(service.AllowUnknownJTI))
	revoked, err := allow.revs.IsBlacklisted(ctx, "never-issued")
	require.NoError(t, err)
	require.False(t, revoked)

	deny := newEnv(t, withPolicy(service.DenyUnknownJTI))
	revoked, err = deny.revs.IsBlacklisted(ctx, "never-issued")
	require.NoError(t, err)
	require.True(t, revoked)

	// Issued tokens are recorded, so deny does not lock out real users.
	deny.user("alice", false)
	login := deny.mustLogin("alice", domain.ClientWeb)
	require.False(t, deny.blacklisted(login.Access))

	res, err := deny.gw.Refresh(ctx, login.Refresh)
	require.NoError(t, err)
	require.False(t, deny.blacklisted(res.Access))
}

func TestRecordNeverClearsBlacklist(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	exp := e.clock.Now().Add(time.Hour)

	require.NoError(t, e.revs.Record(ctx, "j1", "u1", exp))
	usable, err := e.revs.Usable(ctx, "j1")
	require.NoError(t, err)
	require.True(t, usable)

	require.NoError(t, e.revs.Blacklist(ctx, "j1"))
	require.NoError(t, e.revs.Record(ctx, "j1", "u1", exp))

	usable, err = e.revs.Usable(ctx, "j1")
	require.NoError(t, err)
	require.False(t, usable)
	revoked, err := e.revs.IsBlacklisted(ctx, "j1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestBlacklistUnknownLeavesTombstone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.revs.Blacklist(ctx, "ghost"))
	entry, err := e.store.Revocations().GetToken(ctx, "ghost")
	require.NoError(t, err)
	require.True(t, entry.Blacklisted)
	require.True(t, entry.ExpiresAt.Equal(e.clock.Now().Add(24*time.Hour)))

	// Visible to a second process with a cold cache.
	other := newEnvOn(t, e.store, e.clock)
	revoked, err := other.revs.IsBlacklisted(ctx, "ghost")
	require.NoError(t, err)
	require.True(t, revoked)
}

// A blacklist written by one process reaches another within the
// negative-cache TTL.
func TestRevocationVisibleAcrossProcessesWithinCacheTTL(t *testing.T) {
	a := newEnv(t)
	b := newEnvOn(t, a.store, a.clock)
	ctx := context.Background()

	require.NoError(t, a.revs.Record(ctx, "j1", "u1", a.clock.Now().Add(time.Hour)))

	revoked, err := b.revs.IsBlacklisted(ctx, "j1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, a.revs.Blacklist(ctx, "j1"))

	revoked, err = a.revs.IsBlacklisted(ctx, "j1")
	require.NoError(t, err)
	require.True(t, revoked, "the writing process sees it immediately")

	revoked, err = b.revs.IsBlacklisted(ctx, "j1")
	require.NoError(t, err)
	require.False(t, revoked, "stale negative entry may be served until it expires")

	b.clock.Advance(5 * time.Second)
	revoked, err = b.revs.IsBlacklisted(ctx, "j1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestGCRemovesExpiredEntries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := e.clock.Now()

	require.NoError(t, e.revs.Record(ctx, "old", "u1", now.Add(time.Minute)))
	require.NoError(t, e.revs.Record(ctx, "new", "u1", now.Add(time.Hour)))

	n, err := e.revs.GC(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	usable, err := e.revs.Usable(ctx, "new")
	require.NoError(t, err)
	require.True(t, usable)
}

func TestIsBlacklistedFailsClosedOnBackendError(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.Close())

	_, err := e.revs.IsBlacklisted(context.Background(), "j1")
	require.ErrorIs(t, err, service.ErrBackendUnavailable)
}
