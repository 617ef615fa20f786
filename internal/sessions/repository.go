package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// RepositoryPort defines persistence for user sessions.
type RepositoryPort interface {
	FindByKey(ctx context.Context, sessionKey string) (*UserSession, error)
	Create(ctx context.Context, s UserSession) (UserSession, error)
	UpdateActivity(ctx context.Context, sessionKey string, at time.Time) error
	Close(ctx context.Context, sessionKey string, at time.Time) error
	MarkSuspicious(ctx context.Context, sessionKey string) error
	ListStale(ctx context.Context, lastActivityBefore time.Time) ([]UserSession, error)
	CloseStale(ctx context.Context, lastActivityBefore, at time.Time) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, user_id, session_key, ip, user_agent, device_info, login_at, last_activity_at, logout_at, is_active, is_suspicious`

// FindByKey fetches a session by its unique key.
func (r *Repository) FindByKey(ctx context.Context, sessionKey string) (*UserSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE session_key = $1`, sessionKey)
	var s UserSession
	if err := row.Scan(&s.ID, &s.UserID, &s.SessionKey, &s.IP, &s.UserAgent, &s.DeviceInfo,
		&s.LoginAt, &s.LastActivityAt, &s.LogoutAt, &s.IsActive, &s.IsSuspicious); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a new active session row.
func (r *Repository) Create(ctx context.Context, s UserSession) (UserSession, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO user_sessions (user_id, session_key, ip, user_agent, device_info, login_at, last_activity_at, is_active, is_suspicious)
		VALUES ($1, $2, $3, $4, $5, $6, $6, TRUE, FALSE)
		RETURNING id`,
		s.UserID, s.SessionKey, s.IP, s.UserAgent, s.DeviceInfo, s.LoginAt)
	if err := row.Scan(&s.ID); err != nil {
		return UserSession{}, err
	}
	s.LastActivityAt = s.LoginAt
	s.IsActive = true
	return s, nil
}

// UpdateActivity bumps the last-activity timestamp.
func (r *Repository) UpdateActivity(ctx context.Context, sessionKey string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_sessions SET last_activity_at = $2 WHERE session_key = $1 AND is_active`, sessionKey, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Close marks the session inactive and stamps the logout time.
func (r *Repository) Close(ctx context.Context, sessionKey string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE user_sessions SET is_active = FALSE, logout_at = $2 WHERE session_key = $1 AND is_active`, sessionKey, at)
	return err
}

// MarkSuspicious flags the session.
func (r *Repository) MarkSuspicious(ctx context.Context, sessionKey string) error {
	_, err := r.pool.Exec(ctx, `UPDATE user_sessions SET is_suspicious = TRUE WHERE session_key = $1`, sessionKey)
	return err
}

// ListStale returns active sessions idle since before the cutoff.
func (r *Repository) ListStale(ctx context.Context, lastActivityBefore time.Time) ([]UserSession, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE is_active AND last_activity_at < $1`, lastActivityBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserSession
	for rows.Next() {
		var s UserSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.SessionKey, &s.IP, &s.UserAgent, &s.DeviceInfo,
			&s.LoginAt, &s.LastActivityAt, &s.LogoutAt, &s.IsActive, &s.IsSuspicious); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CloseStale marks every stale session inactive in one statement and returns
// the number of rows touched.
func (r *Repository) CloseStale(ctx context.Context, lastActivityBefore, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_sessions SET is_active = FALSE, logout_at = $2
		WHERE is_active AND last_activity_at < $1`, lastActivityBefore, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ RepositoryPort = (*Repository)(nil)
