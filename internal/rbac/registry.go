package rbac

import (
	"context"
	"fmt"
	"log/slog"
)

// Registry answers role lookups and owns the built-in role catalogue.
type Registry struct {
	repo   RoleRepository
	logger *slog.Logger
}

// NewRegistry constructs a Registry.
func NewRegistry(repo RoleRepository, logger *slog.Logger) *Registry {
	return &Registry{repo: repo, logger: logger}
}

// GetRoleByType fetches the active role for a role type. Unknown types are an
// error, never a silent default.
func (g *Registry) GetRoleByType(ctx context.Context, t RoleType) (*Role, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: role type %q", ErrNotFound, t)
	}
	return g.repo.GetByType(ctx, t)
}

// ListActiveRoles returns all active roles.
func (g *Registry) ListActiveRoles(ctx context.Context) ([]Role, error) {
	return g.repo.ListActive(ctx)
}

// RoleHasPermission reports whether the named role grants the permission code.
func (g *Registry) RoleHasPermission(ctx context.Context, t RoleType, code string) (bool, error) {
	role, err := g.GetRoleByType(ctx, t)
	if err != nil {
		return false, err
	}
	return role.HasPermission(code), nil
}

// SeedDefaultRoles upserts the built-in catalogue. Safe to re-run; with force
// set, descriptions, permissions and hierarchy levels are overwritten.
func (g *Registry) SeedDefaultRoles(ctx context.Context, force bool) error {
	for _, role := range DefaultRoles() {
		stored, err := g.repo.Upsert(ctx, role, force)
		if err != nil {
			return fmt.Errorf("rbac: seed role %s: %w", role.Name, err)
		}
		if g.logger != nil {
			g.logger.Info("role seeded",
				slog.String("role", stored.Name),
				slog.Int("hierarchy", stored.HierarchyLevel),
				slog.Int("permissions", len(stored.Permissions)))
		}
	}
	return nil
}
