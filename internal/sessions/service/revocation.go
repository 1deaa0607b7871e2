package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/pkg/revcache"
	"github.com/aussiebroadwan/sessions/pkg/slogx"
	"golang.org/x/sync/singleflight"
)

// UnknownJTIPolicy decides what IsBlacklisted answers for a jti that has
// no revocation entry at all.
type UnknownJTIPolicy string

const (
	AllowUnknownJTI UnknownJTIPolicy = "allow"
	DenyUnknownJTI  UnknownJTIPolicy = "deny"
)

// ParseUnknownJTIPolicy accepts "allow" or "deny".
func ParseUnknownJTIPolicy(s string) (UnknownJTIPolicy, error) {
	switch p := UnknownJTIPolicy(s); p {
	case AllowUnknownJTI, DenyUnknownJTI:
		return p, nil
	default:
		return "", fmt.Errorf("unknown jti policy %q (want allow or deny)", s)
	}
}

const (
	DefaultRevocationCacheTTL = 5 * time.Second
	DefaultBackendTimeout     = 3 * time.Second
)

type RevocationOptions struct {
	// Shared is the optional cross-process cache tier.
	Shared *revcache.Redis

	Policy UnknownJTIPolicy

	// CacheTTL bounds how long a "not blacklisted" verdict is served from
	// the process-local cache.
	CacheTTL time.Duration

	// TombstoneTTL is how long a blacklist entry for an unknown jti lives.
	TombstoneTTL time.Duration

	Timeout time.Duration
	Metrics *Metrics
	Now     func() time.Time
}

// RevocationStore is the durable jti blacklist with its cache tiers.
//
// Positive verdicts are pushed to both tiers the moment they are written.
// Negative verdicts are cached only locally and only for CacheTTL, so a
// blacklist written by any process is honoured everywhere within CacheTTL.
type RevocationStore struct {
	store   store.Store
	local   *revcache.Local
	shared  *revcache.Redis
	policy  UnknownJTIPolicy
	ttl     time.Duration
	tomb    time.Duration
	timeout time.Duration
	metrics *Metrics
	now     func() time.Time
	group   singleflight.Group
}

func NewRevocationStore(st store.Store, local *revcache.Local, opts RevocationOptions) *RevocationStore {
	if local == nil {
		local = revcache.NewLocal(0)
	}
	if opts.Policy == "" {
		opts.Policy = AllowUnknownJTI
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultRevocationCacheTTL
	}
	if opts.TombstoneTTL <= 0 {
		opts.TombstoneTTL = 7 * 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBackendTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RevocationStore{
		store:   st,
		local:   local,
		shared:  opts.Shared,
		policy:  opts.Policy,
		ttl:     opts.CacheTTL,
		tomb:    opts.TombstoneTTL,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Policy reports the configured unknown-jti policy.
func (r *RevocationStore) Policy() UnknownJTIPolicy { return r.policy }

// Record registers an issued jti. It never clears an existing blacklist flag.
func (r *RevocationStore) Record(ctx context.Context, jti, subject string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return backendErr(r.record(ctx, r.store.Revocations(), jti, subject, expiresAt))
}

func (r *RevocationStore) record(ctx context.Context, revs store.Revocations, jti, subject string, expiresAt time.Time) error {
	now := r.now().UTC()
	return revs.RecordToken(ctx, domain.RevocationEntry{
		JTI:       jti,
		Subject:   subject,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Blacklist marks jti revoked. An unknown jti gets a tombstone entry.
func (r *RevocationStore) Blacklist(ctx context.Context, jti string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	entry, err := r.blacklist(ctx, r.store.Revocations(), jti)
	if err != nil {
		return backendErr(err)
	}
	r.publish(ctx, entry)
	return nil
}

func (r *RevocationStore) blacklist(ctx context.Context, revs store.Revocations, jti string) (domain.RevocationEntry, error) {
	now := r.now().UTC()
	return revs.BlacklistToken(ctx, jti, now.Add(r.tomb), now)
}

// publish pushes committed blacklist entries into both cache tiers. Cache
// write failures are logged only: the database already holds the truth.
func (r *RevocationStore) publish(ctx context.Context, entries ...domain.RevocationEntry) {
	now := r.now()
	for _, e := range entries {
		ttl := e.ExpiresAt.Sub(now)
		if ttl <= 0 {
			// Expired tokens are rejected by verification; keep a short
			// local entry anyway so the answer is consistent.
			ttl = r.ttl
		}
		r.local.Set(e.JTI, true, ttl)
		if r.shared == nil {
			continue
		}
		if err := r.shared.MarkRevoked(context.WithoutCancel(ctx), e.JTI, ttl); err != nil {
			slogx.FromContext(ctx).Warn("shared revocation cache write failed",
				slog.String("jti", e.JTI), slog.Any("error", err))
		}
	}
}

// IsBlacklisted answers whether jti must be refused. Unknown jtis follow
// the configured policy. Errors wrap ErrBackendUnavailable; callers must
// treat them as "refuse".
func (r *RevocationStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if revoked, ok := r.local.Get(jti); ok {
		r.metrics.lookup("local", revoked)
		return revoked, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.shared != nil {
		revoked, err := r.shared.IsRevoked(ctx, jti)
		switch {
		case err != nil:
			slogx.FromContext(ctx).Warn("shared revocation cache read failed",
				slog.String("jti", jti), slog.Any("error", err))
		case revoked:
			r.local.Set(jti, true, r.ttl)
			r.metrics.lookup("shared", true)
			return true, nil
		}
	}

	v, err, _ := r.group.Do(jti, func() (any, error) {
		return r.lookup(ctx, jti)
	})
	if err != nil {
		return false, backendErr(err)
	}
	revoked := v.(bool)
	r.metrics.lookup("store", revoked)
	return revoked, nil
}

func (r *RevocationStore) lookup(ctx context.Context, jti string) (bool, error) {
	entry, err := r.store.Revocations().GetToken(ctx, jti)
	if errors.Is(err, store.ErrNotFound) {
		revoked := r.policy == DenyUnknownJTI
		r.local.Set(jti, revoked, r.ttl)
		return revoked, nil
	}
	if err != nil {
		return false, err
	}
	if entry.Blacklisted {
		r.publish(ctx, entry)
		return true, nil
	}
	r.local.Set(jti, false, r.ttl)
	return false, nil
}

// Usable reports whether jti has an entry that is neither blacklisted nor
// expired.
func (r *RevocationStore) Usable(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.usable(ctx, r.store.Revocations(), jti)
}

func (r *RevocationStore) usable(ctx context.Context, revs store.Revocations, jti string) (bool, error) {
	entry, err := revs.GetToken(ctx, jti)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, backendErr(err)
	}
	return entry.Usable(r.now()), nil
}

// GC deletes entries that expired before before and drops expired local
// cache entries.
func (r *RevocationStore) GC(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.store.Revocations().DeleteExpiredTokens(ctx, before)
	r.local.Purge()
	return n, err
}
