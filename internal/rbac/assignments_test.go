package rbac

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(assignments *fakeAssignmentRepo) *Store {
	roles := &fakeRoleRepo{roles: map[RoleType]Role{
		RoleFaculty: {ID: 3, Name: "faculty", Type: RoleFaculty, Permissions: []string{"students.view"}, IsActive: true},
	}}
	return NewStore(roles, assignments, nil).WithClock(testClock)
}

func TestAssignHydratesRole(t *testing.T) {
	store := newTestStore(&fakeAssignmentRepo{})

	created, err := store.Assign(context.Background(), AssignInput{
		UserID:     42,
		RoleType:   RoleFaculty,
		Department: "CSE",
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if created.RoleName != "faculty" || created.RoleID != 3 {
		t.Fatalf("role not hydrated: %+v", created)
	}
	if len(created.Permissions) != 1 {
		t.Fatalf("permissions not carried: %v", created.Permissions)
	}
	if !created.StartAt.Equal(testClock()) {
		t.Fatalf("expected start defaulted to now, got %v", created.StartAt)
	}
}

func TestAssignUnknownRole(t *testing.T) {
	store := newTestStore(&fakeAssignmentRepo{})

	_, err := store.Assign(context.Background(), AssignInput{UserID: 42, RoleType: RoleHOD})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignRejectsInvertedWindow(t *testing.T) {
	store := newTestStore(&fakeAssignmentRepo{})

	end := testClock().Add(-time.Hour)
	_, err := store.Assign(context.Background(), AssignInput{
		UserID:   42,
		RoleType: RoleFaculty,
		StartAt:  testClock(),
		EndAt:    &end,
	})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestAssignDuplicateRejectedWithoutForce(t *testing.T) {
	assignments := &fakeAssignmentRepo{}
	store := newTestStore(assignments)

	if _, err := store.Assign(context.Background(), AssignInput{UserID: 42, RoleType: RoleFaculty, Department: "CSE"}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, err := store.Assign(context.Background(), AssignInput{UserID: 42, RoleType: RoleFaculty, Department: "CSE"})
	if !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}
}

func TestAssignSameRoleDifferentDepartment(t *testing.T) {
	assignments := &fakeAssignmentRepo{}
	store := newTestStore(assignments)

	if _, err := store.Assign(context.Background(), AssignInput{UserID: 42, RoleType: RoleFaculty, Department: "CSE"}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if _, err := store.Assign(context.Background(), AssignInput{UserID: 42, RoleType: RoleFaculty, Department: "ECE"}); err != nil {
		t.Fatalf("second department should not conflict: %v", err)
	}
}

func TestAssignForceReplacesPrior(t *testing.T) {
	assignments := &fakeAssignmentRepo{}
	store := newTestStore(assignments)

	first, err := store.Assign(context.Background(), AssignInput{UserID: 42, RoleType: RoleFaculty, Department: "CSE"})
	if err != nil {
		t.Fatalf("first assign: %v", err)
	}
	second, err := store.Assign(context.Background(), AssignInput{UserID: 42, RoleType: RoleFaculty, Department: "CSE", Force: true})
	if err != nil {
		t.Fatalf("force assign: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a new assignment row")
	}

	active, err := store.ListActiveAssignments(context.Background(), 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].ID != second.ID {
		t.Fatalf("expected exactly the replacement active, got %+v", active)
	}
}

func TestDeactivateKeepsRow(t *testing.T) {
	assignments := &fakeAssignmentRepo{}
	store := newTestStore(assignments)

	created, err := store.Assign(context.Background(), AssignInput{UserID: 42, RoleType: RoleFaculty, Department: "CSE"})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := store.Deactivate(context.Background(), created.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	active, err := store.ListActiveAssignments(context.Background(), 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active assignments, got %d", len(active))
	}
	// Row survives deactivation for the audit trail.
	if len(assignments.byUser[42]) != 1 {
		t.Fatalf("expected row retained")
	}
}
