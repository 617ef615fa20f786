package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridian-sis/meridian-sis/internal/users"
)

type fakeRoleRepo struct {
	roles map[RoleType]Role
}

func (f *fakeRoleRepo) GetByType(ctx context.Context, t RoleType) (*Role, error) {
	role, ok := f.roles[t]
	if !ok {
		return nil, ErrNotFound
	}
	return &role, nil
}

func (f *fakeRoleRepo) GetByID(ctx context.Context, id int64) (*Role, error) {
	for _, role := range f.roles {
		if role.ID == id {
			return &role, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRoleRepo) ListActive(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(f.roles))
	for _, role := range f.roles {
		out = append(out, role)
	}
	return out, nil
}

func (f *fakeRoleRepo) Upsert(ctx context.Context, role Role, force bool) (Role, error) {
	if f.roles == nil {
		f.roles = make(map[RoleType]Role)
	}
	if existing, ok := f.roles[role.Type]; ok && !force {
		return existing, nil
	}
	f.roles[role.Type] = role
	return role, nil
}

func (f *fakeRoleRepo) Disable(ctx context.Context, name string) error {
	role, ok := f.roles[RoleType(name)]
	if ok {
		role.IsActive = false
		f.roles[RoleType(name)] = role
	}
	return nil
}

type fakeAssignmentRepo struct {
	byUser  map[int64][]Assignment
	nextID  int64
	listErr error
}

func (f *fakeAssignmentRepo) Create(ctx context.Context, a Assignment) (Assignment, error) {
	f.nextID++
	a.ID = f.nextID
	a.IsActive = true
	if f.byUser == nil {
		f.byUser = make(map[int64][]Assignment)
	}
	f.byUser[a.UserID] = append(f.byUser[a.UserID], a)
	return a, nil
}

func (f *fakeAssignmentRepo) Replace(ctx context.Context, priorID int64, next Assignment) (Assignment, error) {
	if err := f.Deactivate(ctx, priorID); err != nil {
		return Assignment{}, err
	}
	return f.Create(ctx, next)
}

func (f *fakeAssignmentRepo) FindActive(ctx context.Context, userID, roleID int64, department string) (*Assignment, error) {
	for _, a := range f.byUser[userID] {
		if a.IsActive && a.RoleID == roleID && a.Department == department {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeAssignmentRepo) ListActiveForUser(ctx context.Context, userID int64, at time.Time) ([]Assignment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Assignment
	for _, a := range f.byUser[userID] {
		if a.ValidAt(at) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAssignmentRepo) Deactivate(ctx context.Context, id int64) error {
	for userID, list := range f.byUser {
		for i, a := range list {
			if a.ID == id {
				list[i].IsActive = false
				f.byUser[userID] = list
				return nil
			}
		}
	}
	return ErrNotFound
}

func testClock() time.Time {
	return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
}

func newTestResolver(assignments *fakeAssignmentRepo) *Resolver {
	roles := &fakeRoleRepo{roles: map[RoleType]Role{
		RoleFaculty: {ID: 3, Name: "faculty", Type: RoleFaculty, Permissions: []string{"students.view", "achievements.view"}, IsActive: true},
		RoleAdmin:   {ID: 6, Name: "admin", Type: RoleAdmin, Permissions: []string{"roles.assign"}, IsActive: true},
	}}
	store := NewStore(roles, assignments, nil).WithClock(testClock)
	return NewResolver(store)
}

func facultyAssignment(userID int64, dept string) Assignment {
	return Assignment{
		ID:          1,
		UserID:      userID,
		RoleID:      3,
		RoleType:    RoleFaculty,
		RoleName:    "faculty",
		Permissions: []string{"students.view", "achievements.view"},
		Department:  dept,
		StartAt:     testClock().Add(-24 * time.Hour),
		IsActive:    true,
	}
}

func TestResolveUnauthenticated(t *testing.T) {
	rs := newTestResolver(&fakeAssignmentRepo{})
	decision, err := rs.Resolve(context.Background(), nil, AnyRole(RoleFaculty))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny for nil user")
	}
	if decision.Reason != "unauthenticated" {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestResolveSuperuserBypassesEverything(t *testing.T) {
	rs := newTestResolver(&fakeAssignmentRepo{})
	user := &users.User{ID: 1, IsSuperuser: true, IsActive: true}

	for _, req := range []Requirement{
		AnyRole(RoleSuperAdmin),
		AllPermissions("reports.export", "audit.view"),
		Department("ECE"),
	} {
		decision, err := rs.Resolve(context.Background(), user, req)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("expected superuser allow, got deny: %s", decision.Reason)
		}
	}
}

func TestResolveAnyRole(t *testing.T) {
	assignments := &fakeAssignmentRepo{byUser: map[int64][]Assignment{
		42: {facultyAssignment(42, "CSE")},
	}}
	rs := newTestResolver(assignments)
	user := &users.User{ID: 42, Kind: users.KindFaculty, IsActive: true}

	decision, err := rs.Resolve(context.Background(), user, AnyRole(RoleCoordinator, RoleFaculty))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow, got: %s", decision.Reason)
	}

	decision, err = rs.Resolve(context.Background(), user, AnyRole(RoleAdmin))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny for role not held")
	}
	if len(decision.Missing) != 1 || decision.Missing[0] != "admin" {
		t.Fatalf("unexpected missing %v", decision.Missing)
	}
}

func TestResolveAllPermissionsReportsMissing(t *testing.T) {
	assignments := &fakeAssignmentRepo{byUser: map[int64][]Assignment{
		42: {facultyAssignment(42, "CSE")},
	}}
	rs := newTestResolver(assignments)
	user := &users.User{ID: 42, Kind: users.KindFaculty, IsActive: true}

	decision, err := rs.Resolve(context.Background(), user, AllPermissions("students.view", "reports.export", "audit.view"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny")
	}
	if len(decision.Missing) != 2 {
		t.Fatalf("expected 2 missing codes, got %v", decision.Missing)
	}
	if decision.Missing[0] != "audit.view" || decision.Missing[1] != "reports.export" {
		t.Fatalf("expected sorted missing codes, got %v", decision.Missing)
	}
}

func TestResolveDirectPermissionsUnionWithRoles(t *testing.T) {
	assignments := &fakeAssignmentRepo{byUser: map[int64][]Assignment{
		42: {facultyAssignment(42, "CSE")},
	}}
	rs := newTestResolver(assignments)
	user := &users.User{
		ID:                42,
		Kind:              users.KindFaculty,
		DirectPermissions: []string{"reports.export"},
		IsActive:          true,
	}

	decision, err := rs.Resolve(context.Background(), user, AllPermissions("students.view", "reports.export"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow via direct grant, got: %s", decision.Reason)
	}
}

func TestResolveDepartment(t *testing.T) {
	assignments := &fakeAssignmentRepo{byUser: map[int64][]Assignment{
		42: {facultyAssignment(42, "CSE")},
	}}
	rs := newTestResolver(assignments)

	user := &users.User{ID: 42, Kind: users.KindFaculty, Department: "ECE", IsActive: true}

	// Empty requirement passes by definition.
	decision, _ := rs.Resolve(context.Background(), user, Department(""))
	if !decision.Allowed {
		t.Fatalf("expected allow for empty department")
	}

	// Home department matches.
	decision, _ = rs.Resolve(context.Background(), user, Department("ECE"))
	if !decision.Allowed {
		t.Fatalf("expected allow for home department")
	}

	// Assignment department matches.
	decision, _ = rs.Resolve(context.Background(), user, Department("CSE"))
	if !decision.Allowed {
		t.Fatalf("expected allow for assigned department")
	}

	decision, _ = rs.Resolve(context.Background(), user, Department("MECH"))
	if decision.Allowed {
		t.Fatalf("expected deny for foreign department")
	}
}

func TestResolveIgnoresExpiredAndFutureAssignments(t *testing.T) {
	now := testClock()
	past := now.Add(-time.Hour)
	expired := facultyAssignment(42, "CSE")
	expired.ID = 1
	expired.EndAt = &past

	future := facultyAssignment(42, "CSE")
	future.ID = 2
	future.StartAt = now.Add(time.Hour)

	assignments := &fakeAssignmentRepo{byUser: map[int64][]Assignment{
		42: {expired, future},
	}}
	rs := newTestResolver(assignments)
	user := &users.User{ID: 42, Kind: users.KindFaculty, IsActive: true}

	decision, err := rs.Resolve(context.Background(), user, AnyRole(RoleFaculty))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny: both assignments are outside their window")
	}
}

func TestResolveFutureAssignmentBecomesActive(t *testing.T) {
	future := facultyAssignment(42, "CSE")
	future.StartAt = testClock().Add(24 * time.Hour)

	assignments := &fakeAssignmentRepo{byUser: map[int64][]Assignment{
		42: {future},
	}}
	roles := &fakeRoleRepo{roles: map[RoleType]Role{
		RoleFaculty: {ID: 3, Name: "faculty", Type: RoleFaculty, Permissions: []string{"students.view"}, IsActive: true},
	}}
	user := &users.User{ID: 42, Kind: users.KindFaculty, IsActive: true}

	before := NewResolver(NewStore(roles, assignments, nil).WithClock(testClock))
	decision, err := before.Resolve(context.Background(), user, AnyRole(RoleFaculty))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("assignment must not grant before its start date")
	}

	later := func() time.Time { return testClock().Add(48 * time.Hour) }
	after := NewResolver(NewStore(roles, assignments, nil).WithClock(later))
	decision, err = after.Resolve(context.Background(), user, AnyRole(RoleFaculty))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("assignment must grant once the start date passes: %s", decision.Reason)
	}
}

func TestResolveStorageFaultIsError(t *testing.T) {
	assignments := &fakeAssignmentRepo{listErr: errors.New("connection refused")}
	rs := newTestResolver(assignments)
	user := &users.User{ID: 42, Kind: users.KindFaculty, IsActive: true}

	decision, err := rs.Resolve(context.Background(), user, AnyRole(RoleFaculty))
	if err == nil {
		t.Fatalf("expected resolver error")
	}
	if decision.Allowed {
		t.Fatalf("a failed resolution must not allow")
	}
}
