package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
)

type revocationsRepo struct {
	q querier
}

const revocationColumns = `jti, subject, expires_at, blacklisted, created_at, updated_at`

func scanRevocation(row interface{ Scan(...any) error }) (domain.RevocationEntry, error) {
	var (
		e                         domain.RevocationEntry
		expires, created, updated int64
	)
	if err := row.Scan(&e.JTI, &e.Subject, &expires, &e.Blacklisted, &created, &updated); err != nil {
		return domain.RevocationEntry{}, mapNotFound(err)
	}
	e.ExpiresAt = fromMillis(expires)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return e, nil
}

func (r *revocationsRepo) RecordToken(ctx context.Context, e domain.RevocationEntry) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO token_revocations (`+revocationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (jti) DO UPDATE SET
		     subject = CASE WHEN token_revocations.subject = '' THEN excluded.subject ELSE token_revocations.subject END,
		     expires_at = MAX(token_revocations.expires_at, excluded.expires_at),
		     blacklisted = MAX(token_revocations.blacklisted, excluded.blacklisted),
		     updated_at = excluded.updated_at`,
		e.JTI, e.Subject, toMillis(e.ExpiresAt), e.Blacklisted, toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
	)
	return err
}

func (r *revocationsRepo) BlacklistToken(ctx context.Context, jti string, tombstoneExpiry, now time.Time) (domain.RevocationEntry, error) {
	ms := toMillis(now)
	return scanRevocation(r.q.QueryRowContext(ctx,
		`INSERT INTO token_revocations (`+revocationColumns+`)
		 VALUES (?, '', ?, 1, ?, ?)
		 ON CONFLICT (jti) DO UPDATE SET blacklisted = 1, updated_at = excluded.updated_at
		 RETURNING `+revocationColumns,
		jti, toMillis(tombstoneExpiry), ms, ms,
	))
}

func (r *revocationsRepo) GetToken(ctx context.Context, jti string) (domain.RevocationEntry, error) {
	return scanRevocation(r.q.QueryRowContext(ctx,
		`SELECT `+revocationColumns+` FROM token_revocations WHERE jti = ?`, jti))
}

func (r *revocationsRepo) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM token_revocations WHERE expires_at < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
