package apikeys

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new key record.
func (r *Repository) Create(ctx context.Context, key APIKey) (APIKey, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (user_id, name, digest, created_at, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id`, key.UserID, key.Name, key.Digest, key.CreatedAt)
	if err := row.Scan(&key.ID); err != nil {
		return APIKey{}, err
	}
	return key, nil
}

// FindActiveByDigest fetches an active key by its digest.
func (r *Repository) FindActiveByDigest(ctx context.Context, digest string) (*APIKey, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, digest, created_at, last_used_at, is_active
		FROM api_keys WHERE digest = $1 AND is_active`, digest)
	var key APIKey
	if err := row.Scan(&key.ID, &key.UserID, &key.Name, &key.Digest, &key.CreatedAt, &key.LastUsedAt, &key.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

// TouchUsage stamps the last-used time.
func (r *Repository) TouchUsage(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// Revoke deactivates a key.
func (r *Repository) Revoke(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
