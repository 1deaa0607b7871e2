package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
)

type signingKeysRepo struct {
	q querier
}

const signingKeyColumns = `id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at`

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO signing_keys (`+signingKeyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Kid, key.Algorithm, key.PrivateKeyEncrypted, key.CreatedAt, key.RetiredAt, key.ExpiresAt,
	)
	return mapConstraint(err)
}

func (r *signingKeysRepo) ListActiveSigningKeys(ctx context.Context, signableUntil time.Time) ([]domain.SigningKey, error) {
	return r.list(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys
		 WHERE retired_at IS NULL AND expires_at > $1
		 ORDER BY created_at DESC`,
		signableUntil,
	)
}

func (r *signingKeysRepo) ListAllSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error) {
	return r.list(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys
		 WHERE expires_at > $1
		 ORDER BY created_at DESC`,
		now,
	)
}

func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, now time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE signing_keys SET retired_at = $2 WHERE kid = $1 AND retired_at IS NULL`,
		kid, now,
	)
	if err != nil {
		return err
	}
	return expectOneRow(tag)
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM signing_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *signingKeysRepo) list(ctx context.Context, query string, args ...any) ([]domain.SigningKey, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.SigningKey
	for rows.Next() {
		var k domain.SigningKey
		if err := rows.Scan(&k.ID, &k.Kid, &k.Algorithm, &k.PrivateKeyEncrypted, &k.CreatedAt, &k.RetiredAt, &k.ExpiresAt); err != nil {
			return nil, err
		}
		k.CreatedAt = k.CreatedAt.UTC()
		k.RetiredAt = utcPtr(k.RetiredAt)
		k.ExpiresAt = k.ExpiresAt.UTC()
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
