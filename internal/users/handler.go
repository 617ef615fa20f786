package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-sis/meridian-sis/internal/platform/httpx"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// Handler exposes the user directory over JSON. Permission gates are
// applied by the router, so handlers stay free of authorization wiring.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers user routes. The caller supplies the view and edit
// guards so this package stays decoupled from the access gate.
func (h *Handler) MountRoutes(r chi.Router, view, edit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(view)
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(edit)
		r.Post("/{userID}/permissions", h.grantPermission)
	})
}

type userResponse struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Kind              string    `json:"kind"`
	Department        string    `json:"department,omitempty"`
	IsSuperuser       bool      `json:"is_superuser"`
	DirectPermissions []string  `json:"direct_permissions,omitempty"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not list users")
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toUserResponse(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "user id must be numeric")
		return
	}
	user, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
			return
		}
		h.logger.Error("get user failed", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not load user")
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(*user))
}

type grantRequest struct {
	Code string `json:"code" validate:"required,min=3"`
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "user id must be numeric")
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "permission code is required")
		return
	}
	if err := h.service.GrantDirectPermission(r.Context(), id, req.Code); err != nil {
		h.logger.Error("grant permission failed", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not grant permission")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"granted": req.Code})
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		Kind:              string(u.Kind),
		Department:        u.Department,
		IsSuperuser:       u.IsSuperuser,
		DirectPermissions: u.DirectPermissions,
		IsActive:          u.IsActive,
		CreatedAt:         u.CreatedAt,
	}
}
