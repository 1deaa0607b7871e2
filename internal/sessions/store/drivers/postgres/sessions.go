package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/jackc/pgx/v5"
)

type sessionsRepo struct {
	q    querier
	lock bool // inside a transaction: SELECT ... FOR UPDATE
}

const sessionColumns = `id, user_id, refresh_jti, access_jti, client_type, secondary_key,
	telegram_user_id, telegram_username, device_name, ip_address, user_agent,
	created_at, last_activity, expires_at, is_active`

func (r *sessionsRepo) forUpdate() string {
	if r.lock {
		return " FOR UPDATE"
	}
	return ""
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		s                        domain.Session
		refresh, tgName          *string
		tgID                     *int64
		clientType, secondaryKey string
	)
	err := row.Scan(&s.ID, &s.UserID, &refresh, &s.AccessJTI, &clientType, &secondaryKey,
		&tgID, &tgName, &s.DeviceName, &s.IPAddress, &s.UserAgent,
		&s.CreatedAt, &s.LastActivity, &s.ExpiresAt, &s.IsActive)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	if refresh != nil {
		s.RefreshJTI = *refresh
	}
	s.ClientType = domain.ClientType(clientType)
	if secondaryKey != "" {
		s.Secondary.Present = true
		if tgID != nil {
			s.Secondary.TelegramUserID = *tgID
		}
		if tgName != nil {
			s.Secondary.TelegramUsername = *tgName
		}
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.LastActivity = s.LastActivity.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	var (
		tgID   *int64
		tgName *string
	)
	if s.Secondary.Present {
		id := s.Secondary.TelegramUserID
		tgID = &id
		tgName = nullIfEmpty(s.Secondary.TelegramUsername)
	}
	_, err := r.q.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		s.ID, s.UserID, nullIfEmpty(s.RefreshJTI), s.AccessJTI,
		string(s.ClientType), s.Key().SecondaryID, tgID, tgName,
		s.DeviceName, s.IPAddress, s.UserAgent,
		s.CreatedAt, s.LastActivity, s.ExpiresAt, s.IsActive,
	)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetActiveSessionByKey(ctx context.Context, key domain.SessionKey) (domain.Session, error) {
	return scanSession(r.q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND client_type = $2 AND secondary_key = $3 AND is_active`+r.forUpdate(),
		key.UserID, string(key.ClientType), key.SecondaryID,
	))
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	return scanSession(r.q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`+r.forUpdate(), id))
}

func (r *sessionsRepo) GetSessionByRefreshJTI(ctx context.Context, jti string) (domain.Session, error) {
	return scanSession(r.q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_jti = $1`+r.forUpdate(), jti))
}

func (r *sessionsRepo) AttachTokens(ctx context.Context, id, accessJTI, refreshJTI string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE sessions SET access_jti = $2, refresh_jti = $3 WHERE id = $1`,
		id, accessJTI, refreshJTI,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return expectOneRow(tag)
}

func (r *sessionsRepo) UpdateOnRefresh(ctx context.Context, oldRefreshJTI, newAccessJTI, newRefreshJTI string, now time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE sessions
		 SET access_jti = $2,
		     refresh_jti = COALESCE(NULLIF($3, ''), refresh_jti),
		     last_activity = $4
		 WHERE refresh_jti = $1 AND is_active`,
		oldRefreshJTI, newAccessJTI, newRefreshJTI, now,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return expectOneRow(tag)
}

func (r *sessionsRepo) DeactivateSession(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE sessions SET is_active = FALSE, last_activity = $2 WHERE id = $1 AND is_active`,
		id, now,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var one int
	err = r.q.QueryRow(ctx, `SELECT 1 FROM sessions WHERE id = $1`, id).Scan(&one)
	return false, mapNotFound(err)
}

func (r *sessionsRepo) ListActiveSessionsByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND is_active
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionsRepo) DeleteInactiveSessionsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM sessions
		 WHERE (NOT is_active AND last_activity < $1) OR expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
