package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/platform/httpx"
	"github.com/meridian-sis/meridian-sis/internal/shared"
	"github.com/meridian-sis/meridian-sis/internal/users"
)

// UserLoader fetches the user record backing a session.
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

// Auditor receives denial and access events. Satisfied by *audit.Recorder.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Middleware is the request-level enforcement point. Both the path-policy
// check and the per-view requirements drive the same resolver, and every
// denial lands in the audit trail. An error while computing access is a deny
// with a server-error signal, never an allow; an audit write failure never
// changes the decision.
type Middleware struct {
	Resolver *Resolver
	Users    UserLoader
	Auditor  Auditor
	Logger   *slog.Logger
	Policies PolicyTable
	LoginURL string
}

// RequireRoles protects a route subtree with an any-of role requirement.
func (m Middleware) RequireRoles(roles ...RoleType) func(http.Handler) http.Handler {
	return m.require(AnyRole(roles...))
}

// RequirePermissions protects a route subtree with an all-of permission requirement.
func (m Middleware) RequirePermissions(codes ...string) func(http.Handler) http.Handler {
	return m.require(AllPermissions(codes...))
}

// RequireDepartmentParam checks department scope taken from the named chi URL
// parameter (falling back to the query string).
func (m Middleware) RequireDepartmentParam(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dept := chi.URLParam(r, param)
			if dept == "" {
				dept = r.URL.Query().Get(param)
			}
			m.enforce(w, r, next, Department(dept))
		})
	}
}

// EnforcePathPolicy applies the ordered path-prefix table once per request,
// before the view runs. Paths without a policy pass through untouched; the
// per-view requirements still apply to them.
func (m Middleware) EnforcePathPolicy() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := m.Policies.Match(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			m.enforce(w, r, next, AnyRole(policy.Roles...))
		})
	}
}

func (m Middleware) require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.enforce(w, r, next, req)
		})
	}
}

func (m Middleware) enforce(w http.ResponseWriter, r *http.Request, next http.Handler, req Requirement) {
	user, ok, err := m.CurrentUser(r)
	if err != nil {
		// The session references a user the store could not load. Same rule
		// as a resolver fault: no decision means no access.
		if m.Logger != nil {
			m.Logger.Error("load session user", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if !ok {
		m.denyUnauthenticated(w, r)
		return
	}

	decision, err := m.Resolver.Resolve(r.Context(), user, req)
	if err != nil {
		// Fail closed. The decision could not be computed, which must not
		// silently become a grant.
		if m.Logger != nil {
			m.Logger.Error("access resolution failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if !decision.Allowed {
		m.denyForbidden(w, r, user, decision)
		return
	}
	next.ServeHTTP(w, r)
}

// CurrentUser loads the user behind the request session. A missing or
// deactivated user reads as unauthenticated; a store fault is returned as an
// error so callers fail closed instead of treating the request as anonymous.
func (m Middleware) CurrentUser(r *http.Request) (*users.User, bool, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil, false, nil
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return nil, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse session user id", slog.String("value", raw))
		}
		return nil, false, nil
	}
	user, err := m.Users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if user == nil || !user.IsActive {
		return nil, false, nil
	}
	return user, true, nil
}

func (m Middleware) denyUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.ProblemCode(w, http.StatusUnauthorized, "Unauthorized", "authentication required", "unauthenticated")
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: "Please sign in to continue."})
	}
	http.Redirect(w, r, m.loginURL(), http.StatusSeeOther)
}

func (m Middleware) denyForbidden(w http.ResponseWriter, r *http.Request, user *users.User, decision Decision) {
	if m.Auditor != nil {
		m.Auditor.Record(r.Context(), audit.Entry{
			Actor:       ActorFor(user),
			Action:      audit.ActionPermissionDenied,
			Description: decision.Reason,
			Request:     RequestContext(r),
			Risk:        audit.RiskMedium,
		})
	}
	if httpx.WantsJSON(r) {
		httpx.ProblemCode(w, http.StatusForbidden, "Forbidden", "you do not have access to this resource", "access_denied")
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "You do not have access to that page."})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (m Middleware) loginURL() string {
	if m.LoginURL != "" {
		return m.LoginURL
	}
	return "/auth/login"
}

// RequestContext extracts the audit request context from an HTTP request.
func RequestContext(r *http.Request) audit.RequestContext {
	rc := audit.RequestContext{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Method:    r.Method,
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		rc.IP = host
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		rc.SessionKey = sess.ID
	}
	return rc
}

// ActorFor maps a user record onto the audit actor taxonomy.
func ActorFor(user *users.User) audit.Actor {
	if user == nil {
		return audit.System()
	}
	return audit.Actor{
		Kind:  actorKind(user.Kind),
		ID:    user.ID,
		Label: user.Email,
	}
}

func actorKind(kind users.UserKind) audit.ActorKind {
	switch kind {
	case users.KindStudent:
		return audit.ActorStudent
	case users.KindFaculty:
		return audit.ActorFaculty
	case users.KindAdmin:
		return audit.ActorAdmin
	default:
		return audit.ActorSystem
	}
}
