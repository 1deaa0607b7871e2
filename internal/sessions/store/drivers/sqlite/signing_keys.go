package sqlite

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
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO signing_keys (`+signingKeyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.Kid, key.Algorithm, key.PrivateKeyEncrypted,
		toMillis(key.CreatedAt), nullMillis(key.RetiredAt), toMillis(key.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *signingKeysRepo) ListActiveSigningKeys(ctx context.Context, signableUntil time.Time) ([]domain.SigningKey, error) {
	return r.list(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys
		 WHERE retired_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC`,
		toMillis(signableUntil),
	)
}

func (r *signingKeysRepo) ListAllSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error) {
	return r.list(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys
		 WHERE expires_at > ?
		 ORDER BY created_at DESC`,
		toMillis(now),
	)
}

func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, now time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE signing_keys SET retired_at = ? WHERE kid = ? AND retired_at IS NULL`,
		toMillis(now), kid,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM signing_keys WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *signingKeysRepo) list(ctx context.Context, query string, args ...any) ([]domain.SigningKey, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.SigningKey
	for rows.Next() {
		var (
			k                domain.SigningKey
			created, expires int64
			retired          = nullMillis(nil)
		)
		if err := rows.Scan(&k.ID, &k.Kid, &k.Algorithm, &k.PrivateKeyEncrypted, &created, &retired, &expires); err != nil {
			return nil, err
		}
		k.CreatedAt = fromMillis(created)
		k.RetiredAt = fromNullMillis(retired)
		k.ExpiresAt = fromMillis(expires)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
