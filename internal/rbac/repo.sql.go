package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sis/meridian-sis/internal/platform/db"
)

const uniqueViolation = "23505"

// PGRoleRepository implements RoleRepository on PostgreSQL.
type PGRoleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository constructs a role repository.
func NewRoleRepository(pool *pgxpool.Pool) *PGRoleRepository {
	return &PGRoleRepository{pool: pool}
}

const roleColumns = `id, name, role_type, description, permissions, hierarchy_level, department, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (*Role, error) {
	var r Role
	var roleType string
	if err := row.Scan(&r.ID, &r.Name, &roleType, &r.Description, &r.Permissions, &r.HierarchyLevel, &r.Department, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Type = RoleType(roleType)
	return &r, nil
}

// GetByType fetches the active role carrying the given type.
func (r *PGRoleRepository) GetByType(ctx context.Context, t RoleType) (*Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_type = $1 AND is_active ORDER BY id LIMIT 1`, string(t))
	return scanRole(row)
}

// GetByID fetches a role by primary key.
func (r *PGRoleRepository) GetByID(ctx context.Context, id int64) (*Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	return scanRole(row)
}

// ListActive returns active roles ordered by hierarchy, most senior first.
func (r *PGRoleRepository) ListActive(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_active ORDER BY hierarchy_level DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// Upsert inserts the role or, when force is set, overwrites the mutable
// columns of an existing row.
func (r *PGRoleRepository) Upsert(ctx context.Context, role Role, force bool) (Role, error) {
	query := `
		INSERT INTO roles (name, role_type, description, permissions, hierarchy_level, department, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
		ON CONFLICT (name) DO NOTHING
		RETURNING ` + roleColumns
	if force {
		query = `
		INSERT INTO roles (name, role_type, description, permissions, hierarchy_level, department, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description,
		    permissions = EXCLUDED.permissions,
		    hierarchy_level = EXCLUDED.hierarchy_level,
		    department = EXCLUDED.department,
		    updated_at = NOW()
		RETURNING ` + roleColumns
	}

	row := r.pool.QueryRow(ctx, query, role.Name, string(role.Type), role.Description, role.Permissions, role.HierarchyLevel, role.Department)
	stored, err := scanRole(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// ON CONFLICT DO NOTHING returned no row: the role already exists.
			existing := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, role.Name)
			stored, err = scanRole(existing)
			if err != nil {
				return Role{}, err
			}
			return *stored, nil
		}
		return Role{}, err
	}
	return *stored, nil
}

// Disable soft-deletes a role, preserving audit references.
func (r *PGRoleRepository) Disable(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET is_active = FALSE, updated_at = NOW() WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ RoleRepository = (*PGRoleRepository)(nil)

// PGAssignmentRepository implements AssignmentRepository on PostgreSQL.
type PGAssignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository constructs an assignment repository.
func NewAssignmentRepository(pool *pgxpool.Pool) *PGAssignmentRepository {
	return &PGAssignmentRepository{pool: pool}
}

const assignmentInsert = `
	INSERT INTO user_role_assignments (user_id, role_id, department, sections, academic_year, start_at, end_at, assigned_by, is_active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW(), NOW())
	RETURNING id, created_at, updated_at`

// Create inserts a new active assignment. A concurrent duplicate insert is
// surfaced as ErrDuplicateAssignment via the partial unique index on
// (user_id, role_id, department) WHERE is_active.
func (r *PGAssignmentRepository) Create(ctx context.Context, a Assignment) (Assignment, error) {
	row := r.pool.QueryRow(ctx, assignmentInsert,
		a.UserID, a.RoleID, a.Department, a.Sections, a.AcademicYear, a.StartAt, a.EndAt, a.AssignedBy)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Assignment{}, mapAssignmentErr(err)
	}
	a.IsActive = true
	return a, nil
}

// Replace deactivates the prior assignment and creates the replacement
// atomically.
func (r *PGAssignmentRepository) Replace(ctx context.Context, priorID int64, next Assignment) (Assignment, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE user_role_assignments SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, priorID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		row := tx.QueryRow(ctx, assignmentInsert,
			next.UserID, next.RoleID, next.Department, next.Sections, next.AcademicYear, next.StartAt, next.EndAt, next.AssignedBy)
		return row.Scan(&next.ID, &next.CreatedAt, &next.UpdatedAt)
	})
	if err != nil {
		return Assignment{}, mapAssignmentErr(err)
	}
	next.IsActive = true
	return next, nil
}

// FindActive returns the active assignment for the triple, or nil.
func (r *PGAssignmentRepository) FindActive(ctx context.Context, userID, roleID int64, department string) (*Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT a.id, a.user_id, a.role_id, r.role_type, r.name, r.permissions,
		       a.department, a.sections, a.academic_year, a.start_at, a.end_at,
		       a.assigned_by, a.is_active, a.created_at, a.updated_at
		FROM user_role_assignments a
		JOIN roles r ON r.id = a.role_id
		WHERE a.user_id = $1 AND a.role_id = $2 AND a.department = $3 AND a.is_active`,
		userID, roleID, department)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListActiveForUser returns assignments whose validity window contains the
// given instant, hydrated with the role's type and permission codes.
func (r *PGAssignmentRepository) ListActiveForUser(ctx context.Context, userID int64, at time.Time) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.user_id, a.role_id, r.role_type, r.name, r.permissions,
		       a.department, a.sections, a.academic_year, a.start_at, a.end_at,
		       a.assigned_by, a.is_active, a.created_at, a.updated_at
		FROM user_role_assignments a
		JOIN roles r ON r.id = a.role_id
		WHERE a.user_id = $1
		  AND a.is_active
		  AND r.is_active
		  AND a.start_at <= $2
		  AND (a.end_at IS NULL OR a.end_at >= $2)
		ORDER BY a.id`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Deactivate performs the logical delete of an assignment.
func (r *PGAssignmentRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_role_assignments SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	var roleType string
	if err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &roleType, &a.RoleName, &a.Permissions,
		&a.Department, &a.Sections, &a.AcademicYear, &a.StartAt, &a.EndAt,
		&a.AssignedBy, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.RoleType = RoleType(roleType)
	return &a, nil
}

func mapAssignmentErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateAssignment
	}
	return err
}

var _ AssignmentRepository = (*PGAssignmentRepository)(nil)
