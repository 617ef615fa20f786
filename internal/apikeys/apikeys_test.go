package apikeys

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

type memKeyRepo struct {
	keys    map[int64]APIKey
	nextID  int64
	touched map[int64]time.Time
}

func newMemKeyRepo() *memKeyRepo {
	return &memKeyRepo{keys: make(map[int64]APIKey), nextID: 1, touched: make(map[int64]time.Time)}
}

func (r *memKeyRepo) Create(ctx context.Context, key APIKey) (APIKey, error) {
	key.ID = r.nextID
	r.nextID++
	r.keys[key.ID] = key
	return key, nil
}

func (r *memKeyRepo) FindActiveByDigest(ctx context.Context, digest string) (*APIKey, error) {
	for _, k := range r.keys {
		if k.IsActive && k.Digest == digest {
			copied := k
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memKeyRepo) TouchUsage(ctx context.Context, id int64, at time.Time) error {
	r.touched[id] = at
	return nil
}

func (r *memKeyRepo) Revoke(ctx context.Context, id int64) error {
	k, ok := r.keys[id]
	if !ok {
		return shared.ErrNotFound
	}
	k.IsActive = false
	r.keys[id] = k
	return nil
}

type captureSecurity struct {
	events []audit.SecurityEvent
}

func (c *captureSecurity) RecordSecurity(ctx context.Context, e audit.SecurityEvent) {
	c.events = append(c.events, e)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	repo := newMemKeyRepo()
	capture := &captureSecurity{}
	svc := NewService(repo, capture)

	plaintext, stored, err := svc.Issue(context.Background(), 9, "reporting bot")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasPrefix(plaintext, "msk_") {
		t.Fatalf("plaintext missing prefix: %q", plaintext)
	}
	if stored.Digest == plaintext {
		t.Fatalf("digest must not equal plaintext")
	}

	key, err := svc.Verify(context.Background(), plaintext, audit.RequestContext{})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if key.ID != stored.ID || key.UserID != 9 {
		t.Fatalf("unexpected key %+v", key)
	}
	if _, ok := repo.touched[key.ID]; !ok {
		t.Fatalf("verify must record last usage")
	}
	if len(capture.events) != 0 {
		t.Fatalf("valid key must not raise security events, got %+v", capture.events)
	}
}

func TestIssueRequiresName(t *testing.T) {
	svc := NewService(newMemKeyRepo(), nil)
	if _, _, err := svc.Issue(context.Background(), 9, "   "); err == nil {
		t.Fatalf("expected error for blank name")
	}
}

func TestVerifyUnknownKey(t *testing.T) {
	capture := &captureSecurity{}
	svc := NewService(newMemKeyRepo(), capture)

	reqCtx := audit.RequestContext{IP: "203.0.113.9", Path: "/api/users"}
	_, err := svc.Verify(context.Background(), "msk_deadbeef", reqCtx)
	if err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if len(capture.events) != 1 || capture.events[0].Type != audit.EventInvalidAPIKey {
		t.Fatalf("expected invalid_api_key event, got %+v", capture.events)
	}
	if capture.events[0].Request.IP != "203.0.113.9" {
		t.Fatalf("event must carry request context, got %+v", capture.events[0].Request)
	}
}

func TestVerifyRejectsForeignPrefix(t *testing.T) {
	capture := &captureSecurity{}
	svc := NewService(newMemKeyRepo(), capture)

	if _, err := svc.Verify(context.Background(), "sk-something-else", audit.RequestContext{}); err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if len(capture.events) != 1 {
		t.Fatalf("expected one security event, got %d", len(capture.events))
	}
}

func TestVerifyRevokedKey(t *testing.T) {
	repo := newMemKeyRepo()
	capture := &captureSecurity{}
	svc := NewService(repo, capture)

	plaintext, stored, err := svc.Issue(context.Background(), 9, "reporting bot")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Revoke(context.Background(), stored.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if _, err := svc.Verify(context.Background(), plaintext, audit.RequestContext{}); err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey after revoke, got %v", err)
	}
	if len(capture.events) != 1 {
		t.Fatalf("revoked key use must be recorded, got %d events", len(capture.events))
	}
}
