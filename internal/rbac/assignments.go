package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AssignInput captures a role grant request.
type AssignInput struct {
	UserID       int64
	RoleType     RoleType
	Department   string
	Sections     []string
	AcademicYear string
	StartAt      time.Time
	EndAt        *time.Time
	AssignedBy   *int64
	// Force deactivates an existing active assignment for the same
	// (user, role, department) triple before creating the new one.
	Force bool
}

// Store manages user role assignments.
type Store struct {
	roles       RoleRepository
	assignments AssignmentRepository
	logger      *slog.Logger
	clock       func() time.Time
}

// NewStore constructs an assignment store.
func NewStore(roles RoleRepository, assignments AssignmentRepository, logger *slog.Logger) *Store {
	return &Store{
		roles:       roles,
		assignments: assignments,
		logger:      logger,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used by tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Assign grants a role to a user. A duplicate active (user, role, department)
// triple is rejected unless Force is set, in which case the prior assignment
// is deactivated and the new one created inside one transaction.
func (s *Store) Assign(ctx context.Context, input AssignInput) (Assignment, error) {
	role, err := s.roles.GetByType(ctx, input.RoleType)
	if err != nil {
		return Assignment{}, err
	}

	startAt := input.StartAt
	if startAt.IsZero() {
		startAt = s.clock()
	}
	if input.EndAt != nil && input.EndAt.Before(startAt) {
		return Assignment{}, ErrInvalidWindow
	}

	next := Assignment{
		UserID:       input.UserID,
		RoleID:       role.ID,
		RoleType:     role.Type,
		RoleName:     role.Name,
		Permissions:  role.Permissions,
		Department:   input.Department,
		Sections:     input.Sections,
		AcademicYear: input.AcademicYear,
		StartAt:      startAt,
		EndAt:        input.EndAt,
		AssignedBy:   input.AssignedBy,
	}

	prior, err := s.assignments.FindActive(ctx, input.UserID, role.ID, input.Department)
	if err != nil {
		return Assignment{}, err
	}
	if prior != nil {
		if !input.Force {
			return Assignment{}, fmt.Errorf("%w: user %d already holds %s in %q",
				ErrDuplicateAssignment, input.UserID, role.Name, input.Department)
		}
		created, err := s.assignments.Replace(ctx, prior.ID, next)
		if err != nil {
			return Assignment{}, err
		}
		s.logAssign(created, true)
		return created, nil
	}

	created, err := s.assignments.Create(ctx, next)
	if err != nil {
		return Assignment{}, err
	}
	s.logAssign(created, false)
	return created, nil
}

// ListActiveAssignments returns the assignments valid right now.
func (s *Store) ListActiveAssignments(ctx context.Context, userID int64) ([]Assignment, error) {
	return s.ListActiveAssignmentsAt(ctx, userID, s.clock())
}

// ListActiveAssignmentsAt returns the assignments whose validity window
// contains the given instant.
func (s *Store) ListActiveAssignmentsAt(ctx context.Context, userID int64, at time.Time) ([]Assignment, error) {
	return s.assignments.ListActiveForUser(ctx, userID, at)
}

// Deactivate revokes an assignment. The row is kept for the audit trail.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	return s.assignments.Deactivate(ctx, id)
}

func (s *Store) logAssign(a Assignment, replaced bool) {
	if s.logger == nil {
		return
	}
	s.logger.Info("role assigned",
		slog.Int64("user_id", a.UserID),
		slog.String("role", a.RoleName),
		slog.String("department", a.Department),
		slog.Bool("replaced_prior", replaced))
}
