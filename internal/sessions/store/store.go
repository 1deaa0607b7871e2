package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. Sub-repositories are reached through methods so
// a Tx hands out repos bound to the transaction and nesting is impossible.
type Store interface {
	Users() Users
	Sessions() Sessions
	Revocations() Revocations
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when it returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user; duplicate username or email gives
	// ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// SetUserActive enables or disables an account.
	SetUserActive(ctx context.Context, id string, active bool, now time.Time) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Sessions interface {
	// CreateSession inserts a session. Inserting a second active session
	// for the same SessionKey gives ErrAlreadyExists.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetActiveSessionByKey returns the active session occupying key. Inside
	// a transaction the row is locked until commit.
	GetActiveSessionByKey(ctx context.Context, key domain.SessionKey) (domain.Session, error)

	GetSessionByID(ctx context.Context, id string) (domain.Session, error)

	// GetSessionByRefreshJTI looks a session up by its current refresh jti,
	// active or not.
	GetSessionByRefreshJTI(ctx context.Context, jti string) (domain.Session, error)

	// AttachTokens stores the jtis minted for a freshly created session.
	AttachTokens(ctx context.Context, id, accessJTI, refreshJTI string) error

	// UpdateOnRefresh swaps jtis only if the session is still active and
	// still holds oldRefreshJTI; otherwise ErrNotFound. An empty
	// newRefreshJTI keeps the current one.
	UpdateOnRefresh(ctx context.Context, oldRefreshJTI, newAccessJTI, newRefreshJTI string, now time.Time) error

	// DeactivateSession marks a session inactive and reports whether this
	// call changed it.
	DeactivateSession(ctx context.Context, id string, now time.Time) (bool, error)

	// ListActiveSessionsByUser returns active sessions, newest first.
	ListActiveSessionsByUser(ctx context.Context, userID string) ([]domain.Session, error)

	// DeleteInactiveSessionsBefore prunes inactive or expired sessions whose
	// last activity is older than before.
	DeleteInactiveSessionsBefore(ctx context.Context, before time.Time) (int64, error)
}

type Revocations interface {
	// RecordToken inserts or refreshes an entry. An existing blacklist flag
	// is never cleared.
	RecordToken(ctx context.Context, e domain.RevocationEntry) error

	// BlacklistToken flags jti as revoked. An unknown jti gets a tombstone
	// row expiring at tombstoneExpiry. Returns the resulting entry.
	BlacklistToken(ctx context.Context, jti string, tombstoneExpiry, now time.Time) (domain.RevocationEntry, error)

	GetToken(ctx context.Context, jti string) (domain.RevocationEntry, error)

	// DeleteExpiredTokens removes entries whose expires_at is before before.
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

type SigningKeys interface {
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// ListActiveSigningKeys returns unretired keys expiring after
	// signableUntil, newest first.
	ListActiveSigningKeys(ctx context.Context, signableUntil time.Time) ([]domain.SigningKey, error)

	// ListAllSigningKeys returns every key not expired at now, newest first.
	ListAllSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error)

	// RetireSigningKey stops a key from signing.
	RetireSigningKey(ctx context.Context, kid string, now time.Time) error

	// DeleteExpiredSigningKeys removes keys past expires_at.
	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}
