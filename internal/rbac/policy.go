package rbac

import "strings"

// PathPolicy maps a path prefix to the role types allowed through. The table
// is ordered: the first matching prefix wins.
type PathPolicy struct {
	Prefix string
	Roles  []RoleType
}

// PolicyTable is an ordered list of path policies.
type PolicyTable []PathPolicy

// Match returns the first policy whose prefix matches the path.
func (t PolicyTable) Match(path string) (PathPolicy, bool) {
	for _, p := range t {
		if strings.HasPrefix(path, p.Prefix) {
			return p, true
		}
	}
	return PathPolicy{}, false
}

// DefaultPolicyTable is the stock path -> role mapping. More specific
// prefixes come first.
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		{Prefix: "/api/admin/", Roles: []RoleType{RoleAdmin, RoleSuperAdmin}},
		{Prefix: "/admin/", Roles: []RoleType{RoleAdmin, RoleSuperAdmin}},
		{Prefix: "/audit", Roles: []RoleType{RoleAdmin, RoleSuperAdmin}},
		{Prefix: "/jobs/", Roles: []RoleType{RoleAdmin, RoleSuperAdmin}},
		{Prefix: "/hod/", Roles: []RoleType{RoleHOD, RoleAdmin, RoleSuperAdmin}},
		{Prefix: "/coordinator/", Roles: []RoleType{RoleCoordinator, RoleHOD, RoleAdmin, RoleSuperAdmin}},
		{Prefix: "/faculty/", Roles: []RoleType{RoleFaculty, RoleCoordinator, RoleHOD, RoleAdmin, RoleSuperAdmin}},
		{Prefix: "/students/", Roles: []RoleType{RoleStudent, RoleFaculty, RoleCoordinator, RoleHOD, RoleAdmin, RoleSuperAdmin}},
	}
}
