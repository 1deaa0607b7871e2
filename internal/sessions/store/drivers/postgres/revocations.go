package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/jackc/pgx/v5"
)

type revocationsRepo struct {
	q querier
}

const revocationColumns = `jti, subject, expires_at, blacklisted, created_at, updated_at`

func scanRevocation(row pgx.Row) (domain.RevocationEntry, error) {
	var e domain.RevocationEntry
	if err := row.Scan(&e.JTI, &e.Subject, &e.ExpiresAt, &e.Blacklisted, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return domain.RevocationEntry{}, mapNotFound(err)
	}
	e.ExpiresAt = e.ExpiresAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func (r *revocationsRepo) RecordToken(ctx context.Context, e domain.RevocationEntry) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO token_revocations (`+revocationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (jti) DO UPDATE SET
		     subject = CASE WHEN token_revocations.subject = '' THEN EXCLUDED.subject ELSE token_revocations.subject END,
		     expires_at = GREATEST(token_revocations.expires_at, EXCLUDED.expires_at),
		     blacklisted = token_revocations.blacklisted OR EXCLUDED.blacklisted,
		     updated_at = EXCLUDED.updated_at`,
		e.JTI, e.Subject, e.ExpiresAt, e.Blacklisted, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (r *revocationsRepo) BlacklistToken(ctx context.Context, jti string, tombstoneExpiry, now time.Time) (domain.RevocationEntry, error) {
	return scanRevocation(r.q.QueryRow(ctx,
		`INSERT INTO token_revocations (`+revocationColumns+`)
		 VALUES ($1, '', $2, TRUE, $3, $3)
		 ON CONFLICT (jti) DO UPDATE SET blacklisted = TRUE, updated_at = EXCLUDED.updated_at
		 RETURNING `+revocationColumns,
		jti, tombstoneExpiry, now,
	))
}

func (r *revocationsRepo) GetToken(ctx context.Context, jti string) (domain.RevocationEntry, error) {
	return scanRevocation(r.q.QueryRow(ctx,
		`SELECT `+revocationColumns+` FROM token_revocations WHERE jti = $1`, jti))
}

func (r *revocationsRepo) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM token_revocations WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
