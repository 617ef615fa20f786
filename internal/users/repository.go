package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// Repository provides PostgreSQL backed persistence for user records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches one user together with directly granted permission codes.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, name, kind, department, is_superuser, is_active, created_at, updated_at
		FROM users WHERE id = $1`, id)

	var u User
	var kind string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &kind, &u.Department, &u.IsSuperuser, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	u.Kind = UserKind(kind)

	perms, err := r.directPermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	u.DirectPermissions = perms
	return &u, nil
}

// ListUsers returns all active users ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, name, kind, department, is_superuser, is_active, created_at, updated_at
		FROM users WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var kind string
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &kind, &u.Department, &u.IsSuperuser, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Kind = UserKind(kind)
		out = append(out, u)
	}
	return out, rows.Err()
}

// GrantDirectPermission attaches a permission code straight to a user,
// bypassing roles.
func (r *Repository) GrantDirectPermission(ctx context.Context, userID int64, code string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_permissions (user_id, code)
		VALUES ($1, $2)
		ON CONFLICT (user_id, code) DO NOTHING`, userID, code)
	return err
}

func (r *Repository) directPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT code FROM user_permissions WHERE user_id = $1 ORDER BY code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
