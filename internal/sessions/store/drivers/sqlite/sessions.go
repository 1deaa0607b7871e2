package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
)

type sessionsRepo struct {
	q querier
}

const sessionColumns = `id, user_id, refresh_jti, access_jti, client_type, secondary_key,
	telegram_user_id, telegram_username, device_name, ip_address, user_agent,
	created_at, last_activity, expires_at, is_active`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var (
		s                              domain.Session
		refresh, access, tgName        sql.NullString
		tgID                           sql.NullInt64
		secondaryKey, clientType       string
		created, lastActivity, expires int64
	)
	err := row.Scan(&s.ID, &s.UserID, &refresh, &access, &clientType, &secondaryKey,
		&tgID, &tgName, &s.DeviceName, &s.IPAddress, &s.UserAgent,
		&created, &lastActivity, &expires, &s.IsActive)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.RefreshJTI = refresh.String
	s.AccessJTI = mapNullStringPtr(access)
	s.ClientType = domain.ClientType(clientType)
	if secondaryKey != "" {
		s.Secondary = domain.SecondaryIdentity{
			Present:          true,
			TelegramUserID:   tgID.Int64,
			TelegramUsername: tgName.String,
		}
	}
	s.CreatedAt = fromMillis(created)
	s.LastActivity = fromMillis(lastActivity)
	s.ExpiresAt = fromMillis(expires)
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	var tgID sql.NullInt64
	var tgName sql.NullString
	if s.Secondary.Present {
		tgID = sql.NullInt64{Int64: s.Secondary.TelegramUserID, Valid: true}
		tgName = mapStringNull(s.Secondary.TelegramUsername)
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, mapStringNull(s.RefreshJTI), mapOptionalString(s.AccessJTI),
		string(s.ClientType), s.Key().SecondaryID, tgID, tgName,
		s.DeviceName, s.IPAddress, s.UserAgent,
		toMillis(s.CreatedAt), toMillis(s.LastActivity), toMillis(s.ExpiresAt), s.IsActive,
	)
	return mapConstraint(err)
}

// GetActiveSessionByKey needs no explicit row lock: transactions begin
// IMMEDIATE, so the caller already holds the database write lock.
func (r *sessionsRepo) GetActiveSessionByKey(ctx context.Context, key domain.SessionKey) (domain.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND client_type = ? AND secondary_key = ? AND is_active = 1`,
		key.UserID, string(key.ClientType), key.SecondaryID,
	))
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
}

func (r *sessionsRepo) GetSessionByRefreshJTI(ctx context.Context, jti string) (domain.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_jti = ?`, jti))
}

func (r *sessionsRepo) AttachTokens(ctx context.Context, id, accessJTI, refreshJTI string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET access_jti = ?, refresh_jti = ? WHERE id = ?`,
		accessJTI, refreshJTI, id,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return expectOneRow(res)
}

func (r *sessionsRepo) UpdateOnRefresh(ctx context.Context, oldRefreshJTI, newAccessJTI, newRefreshJTI string, now time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE sessions
		 SET access_jti = ?,
		     refresh_jti = CASE WHEN ? = '' THEN refresh_jti ELSE ? END,
		     last_activity = ?
		 WHERE refresh_jti = ? AND is_active = 1`,
		newAccessJTI, newRefreshJTI, newRefreshJTI, toMillis(now), oldRefreshJTI,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return expectOneRow(res)
}

func (r *sessionsRepo) DeactivateSession(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0, last_activity = ? WHERE id = ? AND is_active = 1`,
		toMillis(now), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var one int
	err = r.q.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	return false, mapNotFound(err)
}

func (r *sessionsRepo) ListActiveSessionsByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND is_active = 1
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
	ms := toMillis(before)
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM sessions
		 WHERE (is_active = 0 AND last_activity < ?) OR expires_at < ?`,
		ms, ms,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
