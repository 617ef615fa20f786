package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/meridian-sis/meridian-sis/internal/rbac"
)

// RolesCLI bundles operational helpers for role management: seeding the
// registry and assigning roles from the command line.
type RolesCLI struct {
	registry *rbac.Registry
	store    *rbac.Store
}

// NewRolesCLI constructs the helper on top of the registry and store.
func NewRolesCLI(registry *rbac.Registry, store *rbac.Store) *RolesCLI {
	return &RolesCLI{registry: registry, store: store}
}

// SeedOptions configures the seed command.
type SeedOptions struct {
	Force      bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// SeedSummary is emitted by the seed command in JSON mode.
type SeedSummary struct {
	OK    bool     `json:"ok"`
	Force bool     `json:"force"`
	Roles []string `json:"roles"`
}

// SeedCommand installs the default role catalogue and returns an exit code.
func (c *RolesCLI) SeedCommand(ctx context.Context, opts SeedOptions) int {
	if c == nil || c.registry == nil {
		fmt.Fprintln(opts.Stderr, "roles cli: registry not configured")
		return 1
	}
	if err := c.registry.SeedDefaultRoles(ctx, opts.Force); err != nil {
		fmt.Fprintf(opts.Stderr, "seed roles: %v\n", err)
		return 1
	}
	names := make([]string, 0, len(rbac.DefaultRoles()))
	for _, role := range rbac.DefaultRoles() {
		names = append(names, role.Name)
	}
	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(SeedSummary{OK: true, Force: opts.Force, Roles: names})
		return 0
	}
	fmt.Fprintf(opts.Stdout, "seeded %d roles\n", len(names))
	return 0
}

// AssignOptions configures the assign command.
type AssignOptions struct {
	UserID       int64
	Role         string
	Department   string
	AcademicYear string
	EndAt        time.Time
	AssignedBy   int64
	Force        bool
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
}

// AssignSummary is emitted by the assign command in JSON mode.
type AssignSummary struct {
	OK           bool   `json:"ok"`
	AssignmentID int64  `json:"assignment_id"`
	UserID       int64  `json:"user_id"`
	Role         string `json:"role"`
	Department   string `json:"department,omitempty"`
}

// AssignCommand grants a role to a user and returns an exit code. Exit code
// 10 signals an active duplicate that needs --force to replace.
func (c *RolesCLI) AssignCommand(ctx context.Context, opts AssignOptions) int {
	if c == nil || c.store == nil {
		fmt.Fprintln(opts.Stderr, "roles cli: store not configured")
		return 1
	}
	roleType := rbac.RoleType(opts.Role)
	if !roleType.Valid() {
		fmt.Fprintf(opts.Stderr, "unknown role %q\n", opts.Role)
		return 1
	}
	if opts.UserID <= 0 {
		fmt.Fprintln(opts.Stderr, "user id must be positive")
		return 1
	}

	input := rbac.AssignInput{
		UserID:       opts.UserID,
		RoleType:     roleType,
		Department:   opts.Department,
		AcademicYear: opts.AcademicYear,
		Force:        opts.Force,
	}
	if !opts.EndAt.IsZero() {
		input.EndAt = &opts.EndAt
	}
	if opts.AssignedBy > 0 {
		input.AssignedBy = &opts.AssignedBy
	}

	assignment, err := c.store.Assign(ctx, input)
	if err != nil {
		if errors.Is(err, rbac.ErrDuplicateAssignment) {
			fmt.Fprintln(opts.Stderr, "active assignment exists, rerun with --force to replace it")
			return 10
		}
		fmt.Fprintf(opts.Stderr, "assign role: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(AssignSummary{
			OK:           true,
			AssignmentID: assignment.ID,
			UserID:       assignment.UserID,
			Role:         string(roleType),
			Department:   assignment.Department,
		})
		return 0
	}
	fmt.Fprintf(opts.Stdout, "assigned %s to user %d (assignment %d)\n", roleType, assignment.UserID, assignment.ID)
	return 0
}
