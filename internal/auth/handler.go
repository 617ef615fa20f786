package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/platform/httpx"
	"github.com/meridian-sis/meridian-sis/internal/ratelimit"
	"github.com/meridian-sis/meridian-sis/internal/rbac"
	"github.com/meridian-sis/meridian-sis/internal/sessions"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// LoginLimits bounds authentication attempts per client.
type LoginLimits struct {
	MaxAttempts int
	Window      time.Duration
}

// Handler wires HTTP endpoints for authentication flows. Responses follow the
// dual-format convention: JSON for API-style requests, flash + redirect for
// browsers.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrf           *shared.CSRFManager
	userSessions   *sessions.Service
	recorder       Recorder
	limiter        *ratelimit.Limiter
	limits         LoginLimits
	validator      *validator.Validate
}

// Recorder appends login/logout audit entries. Satisfied by *audit.Recorder.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sm *shared.SessionManager, csrf *shared.CSRFManager, userSessions *sessions.Service, recorder Recorder, limiter *ratelimit.Limiter, limits LoginLimits) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.MaxAttempts <= 0 {
		limits.MaxAttempts = 5
	}
	if limits.Window <= 0 {
		limits.Window = 15 * time.Minute
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sm,
		csrf:           csrf,
		userSessions:   userSessions,
		recorder:       recorder,
		limiter:        limiter,
		limits:         limits,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// showLogin is the landing point for denied browser requests. The admin
// surface is JSON-first, so it returns the login endpoint, the CSRF token the
// client must echo back on POST, and any pending flash message instead of
// rendering a form.
func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"login": "/auth/login"}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if h.csrf != nil {
			if token, err := h.csrf.EnsureToken(r.Context(), sess); err == nil {
				payload[shared.CSRFFormField] = token
			}
		}
		if msg := sess.PopFlash(); msg != nil {
			payload["flash"] = msg
		}
	}
	httpx.JSON(w, http.StatusOK, payload)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseLogin(w, r)
	if !ok {
		return
	}
	reqCtx := rbac.RequestContext(r)

	if h.limiter != nil {
		decision, err := h.limiter.Check(r.Context(), reqCtx.IP, "auth:login", h.limits.MaxAttempts, h.limits.Window)
		if err != nil {
			h.logger.Error("login rate check", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if !decision.Allowed {
			ratelimit.Respond(w, decision)
			return
		}
	}

	account, err := h.service.Authenticate(r.Context(), form.Email, form.Password, reqCtx)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.respondInvalidCredentials(w, r)
			return
		}
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	now := time.Now().UTC()
	h.sessionManager.Renew(r.Context(), sess)
	sess.SetUser(strconv.FormatInt(account.ID, 10), now)

	if h.userSessions != nil {
		if err := h.userSessions.Touch(r.Context(), account.ID, sess.ID, reqCtx.IP, reqCtx.UserAgent); err != nil {
			h.logger.Warn("register user session", slog.Any("error", err))
		}
	}
	h.record(r, audit.Entry{
		Actor:   audit.Actor{Kind: audit.ActorKind(account.Kind), ID: account.ID, Label: account.Email},
		Action:  audit.ActionLogin,
		Request: reqCtx,
		Risk:    audit.RiskLow,
	})

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"user_id": account.ID, "email": account.Email})
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.User() != "" {
		if h.userSessions != nil {
			if err := h.userSessions.Logout(r.Context(), sess.ID); err != nil {
				h.logger.Warn("close user session", slog.Any("error", err))
			}
		}
		if id, err := strconv.ParseInt(sess.User(), 10, 64); err == nil {
			h.record(r, audit.Entry{
				Actor:   audit.Actor{Kind: audit.ActorSystem, ID: id},
				Action:  audit.ActionLogout,
				Request: rbac.RequestContext(r),
				Risk:    audit.RiskLow,
			})
		}
		h.sessionManager.Destroy(sess)
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) parseLogin(w http.ResponseWriter, r *http.Request) (loginForm, bool) {
	var form loginForm
	if httpx.WantsJSON(r) {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return form, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed form")
			return form, false
		}
		form.Email = r.PostFormValue("email")
		form.Password = r.PostFormValue("password")
	}
	if err := h.validator.Struct(form); err != nil {
		h.respondInvalidCredentials(w, r)
		return form, false
	}
	return form, true
}

func (h *Handler) respondInvalidCredentials(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.ProblemCode(w, http.StatusBadRequest, "Validation Failed", "invalid email or password", "invalid_credentials")
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Invalid email or password"})
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) record(r *http.Request, e audit.Entry) {
	if h.recorder == nil {
		return
	}
	h.recorder.Record(r.Context(), e)
}
