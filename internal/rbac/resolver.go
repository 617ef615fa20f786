package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/meridian-sis/meridian-sis/internal/users"
)

// Resolver computes Allow/Deny decisions for a user and a requirement.
//
// Every request is resolved fresh against the current assignments; there is no
// cross-request caching, so a revoked role takes effect on the very next
// request.
type Resolver struct {
	store *Store
}

// NewResolver constructs a Resolver over the assignment store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve evaluates the requirement for the user. A returned error means the
// decision could not be computed (storage fault); callers must treat that as
// Deny with a server-error signal, never as Allow.
func (rs *Resolver) Resolve(ctx context.Context, user *users.User, req Requirement) (Decision, error) {
	if user == nil {
		return Deny("unauthenticated"), nil
	}
	if user.IsSuperuser {
		return Allow(), nil
	}

	assignments, err := rs.store.ListActiveAssignments(ctx, user.ID)
	if err != nil {
		return Deny("resolver error"), fmt.Errorf("rbac: list assignments: %w", err)
	}

	switch req.Kind {
	case RequireAnyRole:
		return resolveAnyRole(assignments, req.Roles), nil
	case RequireAllPermissions:
		return resolveAllPermissions(user, assignments, req.Permissions), nil
	case RequireDepartment:
		return resolveDepartment(user, assignments, req.Department), nil
	default:
		return Deny("unknown requirement"), fmt.Errorf("rbac: unknown requirement kind %d", req.Kind)
	}
}

func resolveAnyRole(assignments []Assignment, required []RoleType) Decision {
	held := make(map[RoleType]struct{}, len(assignments))
	for _, a := range assignments {
		held[a.RoleType] = struct{}{}
	}
	for _, want := range required {
		if _, ok := held[want]; ok {
			return Allow()
		}
	}
	names := make([]string, len(required))
	for i, r := range required {
		names[i] = string(r)
	}
	return Deny("requires one of roles: "+strings.Join(names, ", "), names...)
}

// resolveAllPermissions unions role permissions with permissions granted
// directly to the user. Most-permissive wins; absence of a grant is the only
// deny signal.
func resolveAllPermissions(user *users.User, assignments []Assignment, required []string) Decision {
	resolved := make(map[string]struct{})
	for _, a := range assignments {
		for _, code := range a.Permissions {
			resolved[code] = struct{}{}
		}
	}
	for _, code := range user.DirectPermissions {
		resolved[code] = struct{}{}
	}

	var missing []string
	for _, code := range required {
		if _, ok := resolved[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Deny("missing permissions: "+strings.Join(missing, ", "), missing...)
	}
	return Allow()
}

func resolveDepartment(user *users.User, assignments []Assignment, dept string) Decision {
	if dept == "" {
		return Allow()
	}
	if user.Department == dept {
		return Allow()
	}
	for _, a := range assignments {
		if a.Department == dept {
			return Allow()
		}
	}
	return Deny("no access to department "+dept, dept)
}
