package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/auth"
	"github.com/meridian-sis/meridian-sis/internal/ratelimit"
	"github.com/meridian-sis/meridian-sis/internal/shared"
	_ "github.com/meridian-sis/meridian-sis/testing"
)

type stubAccountRepo struct {
	account *auth.Account
}

func (s *stubAccountRepo) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if s.account == nil || s.account.Email != email {
		return nil, shared.ErrNotFound
	}
	copied := *s.account
	return &copied, nil
}

type captureAudit struct {
	entries []audit.Entry
	events  []audit.SecurityEvent
}

func (c *captureAudit) Record(ctx context.Context, e audit.Entry) {
	c.entries = append(c.entries, e)
}

func (c *captureAudit) RecordSecurity(ctx context.Context, e audit.SecurityEvent) {
	c.events = append(c.events, e)
}

func testAccount(t *testing.T) *auth.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.Account{
		ID:           42,
		Email:        "alice@campus.edu",
		Name:         "Alice",
		Kind:         "faculty",
		PasswordHash: string(hash),
		IsActive:     true,
	}
}

type loginFixture struct {
	router         chi.Router
	sessionManager *shared.SessionManager
	capture        *captureAudit
}

func newLoginFixture(t *testing.T, repo auth.Repository) *loginFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	capture := &captureAudit{}
	sessionManager := shared.NewSessionManager(client, "test_session", time.Hour, false)
	csrfManager := shared.NewCSRFManager("test-secret")
	limiter := ratelimit.NewLimiter(client, capture, nil)
	service := auth.NewService(repo, capture)
	handler := auth.NewHandler(nil, service, sessionManager, csrfManager, nil, capture, limiter, auth.LoginLimits{
		MaxAttempts: 3,
		Window:      time.Minute,
	})

	router := chi.NewRouter()
	router.Route("/auth", handler.MountRoutes)
	return &loginFixture{router: router, sessionManager: sessionManager, capture: capture}
}

func (f *loginFixture) login(t *testing.T, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.RemoteAddr = "203.0.113.7:54021"

	sess, err := f.sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res, sess
}

func TestShowLoginIssuesCSRFToken(t *testing.T) {
	f := newLoginFixture(t, &stubAccountRepo{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.Header.Set("Accept", "application/json")
	sess, err := f.sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	token, _ := payload[shared.CSRFFormField].(string)
	if token == "" {
		t.Fatalf("expected csrf token in login payload, got %s", res.Body.String())
	}
	if stored := sess.Get(shared.CSRFSessionKey); stored != token {
		t.Fatalf("payload token %q must match session token %q", token, stored)
	}
}

func TestLoginSuccessJSON(t *testing.T) {
	f := newLoginFixture(t, &stubAccountRepo{account: testAccount(t)})

	res, sess := f.login(t, `{"email":"alice@campus.edu","password":"correct horse"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if sess.User() != "42" {
		t.Fatalf("expected session bound to user 42, got %q", sess.User())
	}
	if len(f.capture.entries) != 1 || f.capture.entries[0].Action != audit.ActionLogin {
		t.Fatalf("expected one login audit entry, got %+v", f.capture.entries)
	}
	entry := f.capture.entries[0]
	if entry.Actor.Kind != audit.ActorFaculty || entry.Actor.ID != 42 {
		t.Fatalf("unexpected actor %+v", entry.Actor)
	}
	if entry.Request.IP != "203.0.113.7" {
		t.Fatalf("unexpected request ip %q", entry.Request.IP)
	}
}

func TestLoginRotatesSessionID(t *testing.T) {
	f := newLoginFixture(t, &stubAccountRepo{account: testAccount(t)})

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"alice@campus.edu","password":"correct horse"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.RemoteAddr = "203.0.113.7:54021"

	sess, err := f.sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	before := sess.ID
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if sess.ID == before {
		t.Fatalf("session id must rotate at login")
	}
}

func TestLoginWrongPasswordIsUniform(t *testing.T) {
	f := newLoginFixture(t, &stubAccountRepo{account: testAccount(t)})

	res, sess := f.login(t, `{"email":"alice@campus.edu","password":"wrong password"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "invalid_credentials") {
		t.Fatalf("expected invalid_credentials code, got %s", res.Body.String())
	}
	if sess.User() != "" {
		t.Fatalf("failed login must not bind a user")
	}
	if len(f.capture.events) != 1 || f.capture.events[0].Type != audit.EventFailedLogin {
		t.Fatalf("expected failed_login security event, got %+v", f.capture.events)
	}
	if f.capture.events[0].Detail != "password mismatch" {
		t.Fatalf("unexpected detail %q", f.capture.events[0].Detail)
	}
}

func TestLoginUnknownAccountSameResponse(t *testing.T) {
	f := newLoginFixture(t, &stubAccountRepo{})

	res, _ := f.login(t, `{"email":"nobody@campus.edu","password":"whateverpw"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "invalid_credentials") {
		t.Fatalf("unknown account must look like a bad password, got %s", res.Body.String())
	}
}

func TestLoginInactiveAccountDenied(t *testing.T) {
	account := testAccount(t)
	account.IsActive = false
	f := newLoginFixture(t, &stubAccountRepo{account: account})

	res, _ := f.login(t, `{"email":"alice@campus.edu","password":"correct horse"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(f.capture.events) != 1 || f.capture.events[0].Detail != "inactive account" {
		t.Fatalf("expected inactive account event, got %+v", f.capture.events)
	}
}

func TestLoginRateLimited(t *testing.T) {
	f := newLoginFixture(t, &stubAccountRepo{account: testAccount(t)})

	for i := 0; i < 3; i++ {
		res, _ := f.login(t, `{"email":"alice@campus.edu","password":"wrong password"}`)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400, got %d", i, res.Code)
		}
	}

	res, sess := f.login(t, `{"email":"alice@campus.edu","password":"correct horse"}`)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after budget exhausted, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if sess.User() != "" {
		t.Fatalf("throttled request must not authenticate")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	f := newLoginFixture(t, &stubAccountRepo{account: testAccount(t)})

	res, sess := f.login(t, `{"email":"alice@campus.edu","password":"correct horse"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Accept", "application/json")
	req.RemoteAddr = "203.0.113.7:54021"
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	out := httptest.NewRecorder()
	f.router.ServeHTTP(out, req)

	if out.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", out.Code)
	}
	if len(f.capture.entries) != 2 || f.capture.entries[1].Action != audit.ActionLogout {
		t.Fatalf("expected logout audit entry, got %+v", f.capture.entries)
	}
}
