package rbac

import "time"

// RoleType enumerates the role categories the platform knows about. Several
// roles may share a type; the role name is the unique handle.
type RoleType string

const (
	RoleGuest       RoleType = "guest"
	RoleStudent     RoleType = "student"
	RoleFaculty     RoleType = "faculty"
	RoleCoordinator RoleType = "coordinator"
	RoleHOD         RoleType = "hod"
	RoleAdmin       RoleType = "admin"
	RoleSuperAdmin  RoleType = "super_admin"
)

// Valid reports whether the role type is part of the fixed enumeration.
func (t RoleType) Valid() bool {
	switch t {
	case RoleGuest, RoleStudent, RoleFaculty, RoleCoordinator, RoleHOD, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Role is a named bundle of permission codes.
//
// HierarchyLevel is informational: higher numbers denote more authority
// (super_admin=100, guest=1). The resolver never consults it; it exists for
// admin listings and future seniority checks.
type Role struct {
	ID             int64
	Name           string
	Type           RoleType
	Description    string
	Permissions    []string
	HierarchyLevel int
	Department     string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPermission reports whether the role grants the given permission code.
func (r Role) HasPermission(code string) bool {
	for _, p := range r.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// Assignment is a time- and department-scoped grant of a role to a user.
// Revocation deactivates the row instead of deleting it so the audit trail
// keeps its references.
type Assignment struct {
	ID           int64
	UserID       int64
	RoleID       int64
	RoleType     RoleType
	RoleName     string
	Permissions  []string
	Department   string
	Sections     []string
	AcademicYear string
	StartAt      time.Time
	EndAt        *time.Time
	AssignedBy   *int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidAt reports whether the assignment is in force at the given instant.
func (a Assignment) ValidAt(t time.Time) bool {
	if !a.IsActive {
		return false
	}
	if t.Before(a.StartAt) {
		return false
	}
	if a.EndAt != nil && t.After(*a.EndAt) {
		return false
	}
	return true
}

// RequirementKind selects how a Requirement is evaluated.
type RequirementKind int

const (
	// RequireAnyRole allows when the user holds at least one of the listed role types.
	RequireAnyRole RequirementKind = iota
	// RequireAllPermissions allows when every listed permission code is resolved.
	RequireAllPermissions
	// RequireDepartment allows when the user belongs to or is assigned into the department.
	RequireDepartment
)

// Requirement describes what an endpoint demands from the current user.
type Requirement struct {
	Kind        RequirementKind
	Roles       []RoleType
	Permissions []string
	Department  string
}

// AnyRole builds a role-set requirement.
func AnyRole(roles ...RoleType) Requirement {
	return Requirement{Kind: RequireAnyRole, Roles: roles}
}

// AllPermissions builds a permission-set requirement.
func AllPermissions(codes ...string) Requirement {
	return Requirement{Kind: RequireAllPermissions, Permissions: codes}
}

// Department builds a department-scope requirement.
func Department(dept string) Requirement {
	return Requirement{Kind: RequireDepartment, Department: dept}
}

// Decision is the outcome of resolving a requirement for a user.
// Reason and Missing are for the audit trail only and must never be echoed
// verbatim to an unauthenticated caller.
type Decision struct {
	Allowed bool
	Reason  string
	Missing []string
}

// Allow is the positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a negative decision with an audit reason.
func Deny(reason string, missing ...string) Decision {
	return Decision{Allowed: false, Reason: reason, Missing: missing}
}
