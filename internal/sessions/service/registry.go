package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/pkg/idx"
)

const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionRegistry owns the per-device session rows and the
// one-active-session-per-key rule.
//
// The exported methods each run in their own transaction. Gateway flows
// use the unexported variants so session changes commit together with the
// token bookkeeping of the same flow.
type SessionRegistry struct {
	store       store.Store
	revocations *RevocationStore
	ttl         time.Duration
	timeout     time.Duration
	metrics     *Metrics
	now         func() time.Time
}

type RegistryOptions struct {
	SessionTTL time.Duration
	Timeout    time.Duration
	Metrics    *Metrics
	Now        func() time.Time
}

func NewSessionRegistry(st store.Store, revocations *RevocationStore, opts RegistryOptions) *SessionRegistry {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBackendTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SessionRegistry{
		store:       st,
		revocations: revocations,
		ttl:         opts.SessionTTL,
		timeout:     opts.Timeout,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
}

// CreateOrReplace opens a session for userID on the device described by
// meta. A previous session in the same slot is replaced unless its access
// token is still usable, in which case a *ConflictError is returned.
func (r *SessionRegistry) CreateOrReplace(ctx context.Context, userID string, meta domain.SessionMeta) (domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		sess  domain.Session
		stale []domain.RevocationEntry
	)
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		sess, stale, err = r.createOrReplace(ctx, tx, userID, meta)
		return err
	})
	if err != nil {
		return domain.Session{}, backendErr(err)
	}
	r.revocations.publish(ctx, stale...)
	return sess, nil
}

func (r *SessionRegistry) createOrReplace(ctx context.Context, tx store.Tx, userID string, meta domain.SessionMeta) (domain.Session, []domain.RevocationEntry, error) {
	now := r.now().UTC()
	meta.ClientType = domain.NormalizeClientType(string(meta.ClientType))
	if !meta.ClientType.CarriesSecondary() {
		meta.Secondary = domain.SecondaryIdentity{}
	}
	key := domain.NewSessionKey(userID, meta.ClientType, meta.Secondary)

	var stale []domain.RevocationEntry
	existing, err := tx.Sessions().GetActiveSessionByKey(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return domain.Session{}, nil, err
	default:
		if existing.AccessJTI != nil {
			usable, err := r.revocations.usable(ctx, tx.Revocations(), *existing.AccessJTI)
			if err != nil {
				return domain.Session{}, nil, err
			}
			if usable {
				return domain.Session{}, nil, &ConflictError{ClientType: meta.ClientType}
			}
		}
		_, stale, err = r.revoke(ctx, tx, existing)
		if err != nil {
			return domain.Session{}, nil, err
		}
	}

	sess := domain.Session{
		ID:           idx.NewAt(now).String(),
		UserID:       userID,
		ClientType:   meta.ClientType,
		DeviceName:   meta.DeviceName,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Secondary:    meta.Secondary,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(r.ttl),
		IsActive:     true,
	}
	if err := tx.Sessions().CreateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost the race for the slot to a concurrent login.
			return domain.Session{}, nil, &ConflictError{ClientType: meta.ClientType}
		}
		return domain.Session{}, nil, err
	}
	return sess, stale, nil
}

// Get returns the session currently holding refreshJTI.
func (r *SessionRegistry) Get(ctx context.Context, refreshJTI string) (domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sess, err := r.store.Sessions().GetSessionByRefreshJTI(ctx, refreshJTI)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrSessionNotFound
	}
	return sess, backendErr(err)
}

func (r *SessionRegistry) GetByID(ctx context.Context, id string) (domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sess, err := r.store.Sessions().GetSessionByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrSessionNotFound
	}
	return sess, backendErr(err)
}

// AttachTokens stores the jtis minted for a freshly created session.
func (r *SessionRegistry) AttachTokens(ctx context.Context, sessionID, accessJTI, refreshJTI string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.store.Sessions().AttachTokens(ctx, sessionID, accessJTI, refreshJTI)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return backendErr(err)
}

// UpdateOnRefresh swaps the session's jtis if it is still active and still
// holds oldRefreshJTI. An empty newRefreshJTI keeps the current one.
func (r *SessionRegistry) UpdateOnRefresh(ctx context.Context, oldRefreshJTI, newAccessJTI, newRefreshJTI string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return backendErr(r.updateOnRefresh(ctx, r.store, oldRefreshJTI, newAccessJTI, newRefreshJTI))
}

func (r *SessionRegistry) updateOnRefresh(ctx context.Context, st store.Store, oldRefreshJTI, newAccessJTI, newRefreshJTI string) error {
	err := st.Sessions().UpdateOnRefresh(ctx, oldRefreshJTI, newAccessJTI, newRefreshJTI, r.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Revoke deactivates sess and blacklists its jtis. It is idempotent and
// reports whether this call changed the session.
func (r *SessionRegistry) Revoke(ctx context.Context, sess domain.Session) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		changed bool
		stale   []domain.RevocationEntry
	)
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		changed, stale, err = r.revoke(ctx, tx, sess)
		return err
	})
	if err != nil {
		return false, backendErr(err)
	}
	r.revocations.publish(ctx, stale...)
	return changed, nil
}

// revoke re-reads the row under the transaction's lock so the jtis it
// blacklists are the current ones, not those of a stale copy.
func (r *SessionRegistry) revoke(ctx context.Context, tx store.Tx, sess domain.Session) (bool, []domain.RevocationEntry, error) {
	sess, err := tx.Sessions().GetSessionByID(ctx, sess.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil, ErrSessionNotFound
	}
	if err != nil {
		return false, nil, err
	}

	changed, err := tx.Sessions().DeactivateSession(ctx, sess.ID, r.now().UTC())
	if err != nil {
		return false, nil, err
	}

	var jtis []string
	if sess.RefreshJTI != "" {
		jtis = append(jtis, sess.RefreshJTI)
	}
	if sess.AccessJTI != nil {
		jtis = append(jtis, *sess.AccessJTI)
	}

	stale := make([]domain.RevocationEntry, 0, len(jtis))
	for _, jti := range jtis {
		entry, err := r.revocations.blacklist(ctx, tx.Revocations(), jti)
		if err != nil {
			return false, nil, err
		}
		stale = append(stale, entry)
	}
	if changed {
		r.metrics.sessionRevoked()
	}
	return changed, stale, nil
}

// ListActive returns userID's active sessions, newest first.
func (r *SessionRegistry) ListActive(ctx context.Context, userID string) ([]domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sessions, err := r.store.Sessions().ListActiveSessionsByUser(ctx, userID)
	return sessions, backendErr(err)
}
