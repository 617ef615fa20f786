package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/meridian-sis/meridian-sis/internal/shared"
)

func TestSeedDefaultRolesIdempotent(t *testing.T) {
	repo := &fakeRoleRepo{roles: map[RoleType]Role{}}
	registry := NewRegistry(repo, nil)

	if err := registry.SeedDefaultRoles(context.Background(), false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(repo.roles) != len(DefaultRoles()) {
		t.Fatalf("expected %d roles, got %d", len(DefaultRoles()), len(repo.roles))
	}

	// Mutate a role, reseed without force: the change must survive.
	admin := repo.roles[RoleAdmin]
	admin.Description = "customised"
	repo.roles[RoleAdmin] = admin

	if err := registry.SeedDefaultRoles(context.Background(), false); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if repo.roles[RoleAdmin].Description != "customised" {
		t.Fatalf("reseed without force overwrote a role")
	}

	// With force the catalogue wins again.
	if err := registry.SeedDefaultRoles(context.Background(), true); err != nil {
		t.Fatalf("force reseed: %v", err)
	}
	if repo.roles[RoleAdmin].Description == "customised" {
		t.Fatalf("force reseed kept the customisation")
	}
}

func TestDefaultRolesCatalogue(t *testing.T) {
	byType := make(map[RoleType]Role)
	for _, role := range DefaultRoles() {
		byType[role.Type] = role
	}
	if len(byType) != 7 {
		t.Fatalf("expected 7 role types, got %d", len(byType))
	}
	if byType[RoleSuperAdmin].HierarchyLevel <= byType[RoleAdmin].HierarchyLevel {
		t.Fatalf("super_admin must outrank admin")
	}
	if byType[RoleGuest].HierarchyLevel != 1 {
		t.Fatalf("guest should sit at the bottom")
	}
	for _, code := range shared.AllPermissions() {
		if !byType[RoleAdmin].HasPermission(code) {
			t.Fatalf("admin missing permission %s", code)
		}
	}
}

func TestGetRoleByTypeRejectsUnknownType(t *testing.T) {
	registry := NewRegistry(&fakeRoleRepo{roles: map[RoleType]Role{}}, nil)

	_, err := registry.GetRoleByType(context.Background(), RoleType("dean"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for invalid type, got %v", err)
	}
}

func TestRoleHasPermission(t *testing.T) {
	repo := &fakeRoleRepo{roles: map[RoleType]Role{
		RoleFaculty: {ID: 3, Name: "faculty", Type: RoleFaculty, Permissions: []string{"students.view"}, IsActive: true},
	}}
	registry := NewRegistry(repo, nil)

	ok, err := registry.RoleHasPermission(context.Background(), RoleFaculty, "students.view")
	if err != nil || !ok {
		t.Fatalf("expected grant, got ok=%v err=%v", ok, err)
	}
	ok, err = registry.RoleHasPermission(context.Background(), RoleFaculty, "roles.assign")
	if err != nil || ok {
		t.Fatalf("expected no grant, got ok=%v err=%v", ok, err)
	}
}
