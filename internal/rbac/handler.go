package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/platform/httpx"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// Handler exposes role and assignment administration endpoints.
type Handler struct {
	logger    *slog.Logger
	registry  *Registry
	store     *Store
	auditor   Auditor
	mw        Middleware
	validator *validator.Validate
}

// NewHandler constructs an administration handler.
func NewHandler(logger *slog.Logger, registry *Registry, store *Store, auditor Auditor, mw Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		registry:  registry,
		store:     store,
		auditor:   auditor,
		mw:        mw,
		validator: validator.New(),
	}
}

// MountRoutes registers administration routes. Callers mount this under a
// path already covered by the admin path policy; the per-view requirements
// here are the second enforcement layer.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.mw.RequirePermissions(shared.PermRolesView))
		gr.Get("/roles", h.handleListRoles)
		gr.Get("/permission-groups", h.handleListPermissionGroups)
		gr.Get("/users/{userID}/assignments", h.handleListAssignments)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.mw.RequirePermissions(shared.PermRolesAssign))
		gr.Post("/assignments", h.handleAssign)
		gr.Delete("/assignments/{id}", h.handleRevoke)
	})
}

type roleResponse struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	Permissions    []string `json:"permissions"`
	HierarchyLevel int      `json:"hierarchy_level"`
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.registry.ListActiveRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{
			ID:             role.ID,
			Name:           role.Name,
			Type:           string(role.Type),
			Description:    role.Description,
			Permissions:    role.Permissions,
			HierarchyLevel: role.HierarchyLevel,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type permissionGroupResponse struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Codes    []string `json:"codes"`
}

// handleListPermissionGroups lists the permission catalogue grouped for the
// admin UI. Groups are informational; grants always go through roles or
// direct permissions.
func (h *Handler) handleListPermissionGroups(w http.ResponseWriter, r *http.Request) {
	groups := shared.PermissionGroups()
	out := make([]permissionGroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, permissionGroupResponse{Name: g.Name, Category: g.Category, Codes: g.Codes})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type assignmentResponse struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	Role         string     `json:"role"`
	Department   string     `json:"department,omitempty"`
	Sections     []string   `json:"sections,omitempty"`
	AcademicYear string     `json:"academic_year,omitempty"`
	StartAt      time.Time  `json:"start_at"`
	EndAt        *time.Time `json:"end_at,omitempty"`
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	assignments, err := h.store.ListActiveAssignments(r.Context(), userID)
	if err != nil {
		h.logger.Error("list assignments", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]assignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, toAssignmentResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type assignRequest struct {
	UserID       int64      `json:"user_id" validate:"required,gt=0"`
	Role         string     `json:"role" validate:"required"`
	Department   string     `json:"department"`
	Sections     []string   `json:"sections"`
	AcademicYear string     `json:"academic_year"`
	StartAt      *time.Time `json:"start_at"`
	EndAt        *time.Time `json:"end_at"`
	Force        bool       `json:"force"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	roleType := RoleType(req.Role)
	if !roleType.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("unknown role %q", req.Role))
		return
	}

	input := AssignInput{
		UserID:       req.UserID,
		RoleType:     roleType,
		Department:   req.Department,
		Sections:     req.Sections,
		AcademicYear: req.AcademicYear,
		EndAt:        req.EndAt,
		Force:        req.Force,
	}
	if req.StartAt != nil {
		input.StartAt = *req.StartAt
	}
	if actor, ok, _ := h.mw.CurrentUser(r); ok {
		input.AssignedBy = &actor.ID
	}

	created, err := h.store.Assign(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateAssignment):
			httpx.Problem(w, http.StatusConflict, "Duplicate", "user already holds this role in the department")
		case errors.Is(err, ErrInvalidWindow):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end date precedes start date")
		case errors.Is(err, ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
		default:
			h.logger.Error("assign role", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}

	h.recordAssignment(r, created, audit.ActionRoleAssigned)
	httpx.JSON(w, http.StatusCreated, toAssignmentResponse(created))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid assignment id")
		return
	}
	if err := h.store.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "assignment not found")
			return
		}
		h.logger.Error("revoke assignment", slog.Int64("id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	if h.auditor != nil {
		h.auditor.Record(r.Context(), audit.Entry{
			Actor:   h.currentActor(r),
			Action:  audit.ActionRoleRemoved,
			Request: RequestContext(r),
			Target:  &audit.Target{Type: "assignment", ID: strconv.FormatInt(id, 10)},
			Risk:    audit.RiskMedium,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) recordAssignment(r *http.Request, a Assignment, action audit.ActionType) {
	if h.auditor == nil {
		return
	}
	h.auditor.Record(r.Context(), audit.Entry{
		Actor:       h.currentActor(r),
		Action:      action,
		Description: fmt.Sprintf("role %s for user %d in %q", a.RoleName, a.UserID, a.Department),
		Request:     RequestContext(r),
		Target:      &audit.Target{Type: "assignment", ID: strconv.FormatInt(a.ID, 10), Label: a.RoleName},
		Risk:        audit.RiskMedium,
	})
}

func (h *Handler) currentActor(r *http.Request) audit.Actor {
	if user, ok, _ := h.mw.CurrentUser(r); ok {
		return ActorFor(user)
	}
	return audit.System()
}

func toAssignmentResponse(a Assignment) assignmentResponse {
	return assignmentResponse{
		ID:           a.ID,
		UserID:       a.UserID,
		Role:         a.RoleName,
		Department:   a.Department,
		Sections:     a.Sections,
		AcademicYear: a.AcademicYear,
		StartAt:      a.StartAt,
		EndAt:        a.EndAt,
	}
}
