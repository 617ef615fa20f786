package rbac

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the rbac module.
var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicateAssignment indicates an active assignment already exists for
	// the same (user, role, department) triple.
	ErrDuplicateAssignment = errors.New("rbac: duplicate active assignment")
	// ErrInvalidWindow indicates a malformed assignment validity window.
	ErrInvalidWindow = errors.New("rbac: end date precedes start date")
)

// RoleRepository defines persistence for role records.
type RoleRepository interface {
	GetByType(ctx context.Context, t RoleType) (*Role, error)
	GetByID(ctx context.Context, id int64) (*Role, error)
	ListActive(ctx context.Context) ([]Role, error)
	// Upsert creates the role when absent. When force is set an existing row
	// has its description, permissions and hierarchy overwritten; otherwise
	// the existing row is returned untouched.
	Upsert(ctx context.Context, role Role, force bool) (Role, error)
	Disable(ctx context.Context, name string) error
}

// AssignmentRepository defines persistence for user role assignments.
type AssignmentRepository interface {
	Create(ctx context.Context, a Assignment) (Assignment, error)
	// Replace deactivates the prior assignment and creates the next one inside
	// a single transaction. Either both happen or neither does.
	Replace(ctx context.Context, priorID int64, next Assignment) (Assignment, error)
	FindActive(ctx context.Context, userID, roleID int64, department string) (*Assignment, error)
	ListActiveForUser(ctx context.Context, userID int64, at time.Time) ([]Assignment, error)
	Deactivate(ctx context.Context, id int64) error
}
