package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	_ "github.com/meridian-sis/meridian-sis/testing"
)

type captureRecorder struct {
	events []audit.SecurityEvent
}

func (c *captureRecorder) RecordSecurity(ctx context.Context, e audit.SecurityEvent) {
	c.events = append(c.events, e)
}

func newTestLimiter(t *testing.T, recorder SecurityRecorder) (*Limiter, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiter(client, recorder, nil).WithClock(func() time.Time { return now })
	return limiter, &now
}

func TestCheckAllowsWithinBudget(t *testing.T) {
	limiter, now := newTestLimiter(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Check(ctx, "203.0.113.7", "auth:login", 3, time.Minute)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
		if decision.Remaining != 3-i-1 {
			t.Fatalf("attempt %d: expected remaining %d, got %d", i, 3-i-1, decision.Remaining)
		}
		*now = now.Add(time.Second)
	}
}

func TestCheckDeniesOverBudget(t *testing.T) {
	recorder := &captureRecorder{}
	limiter, now := newTestLimiter(t, recorder)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Check(ctx, "203.0.113.7", "auth:login", 3, time.Minute); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		*now = now.Add(time.Second)
	}

	decision, err := limiter.Check(ctx, "203.0.113.7", "auth:login", 3, time.Minute)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("fourth attempt should be denied")
	}
	if decision.RetryAfter != time.Minute {
		t.Fatalf("expected retry-after of one window, got %s", decision.RetryAfter)
	}
	if len(recorder.events) != 1 {
		t.Fatalf("expected one security event, got %d", len(recorder.events))
	}
	if recorder.events[0].Type != audit.EventRapidRequests {
		t.Fatalf("unexpected event type %s", recorder.events[0].Type)
	}
	if recorder.events[0].Severity != audit.RiskMedium {
		t.Fatalf("unexpected severity %s", recorder.events[0].Severity)
	}
	if recorder.events[0].Request.IP != "203.0.113.7" {
		t.Fatalf("event must carry the subject address, got %q", recorder.events[0].Request.IP)
	}
	if recorder.events[0].Actor.Label != "203.0.113.7" {
		t.Fatalf("event must attribute the subject, got %q", recorder.events[0].Actor.Label)
	}
}

func TestCheckWindowSlides(t *testing.T) {
	limiter, now := newTestLimiter(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Check(ctx, "203.0.113.7", "auth:login", 3, time.Minute); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		*now = now.Add(time.Second)
	}
	if decision, _ := limiter.Check(ctx, "203.0.113.7", "auth:login", 3, time.Minute); decision.Allowed {
		t.Fatalf("budget should be spent")
	}

	// Past the window the old attempts fall out and the budget is fresh.
	*now = now.Add(2 * time.Minute)
	decision, err := limiter.Check(ctx, "203.0.113.7", "auth:login", 3, time.Minute)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow after window slid past old attempts")
	}
}

func TestCheckSubjectsAreIndependent(t *testing.T) {
	limiter, now := newTestLimiter(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Check(ctx, "203.0.113.7", "auth:login", 3, time.Minute); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		*now = now.Add(time.Second)
	}

	decision, err := limiter.Check(ctx, "198.51.100.4", "auth:login", 3, time.Minute)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("another subject must not share the budget")
	}
}

func TestCheckRejectsBadArguments(t *testing.T) {
	limiter, _ := newTestLimiter(t, nil)

	if _, err := limiter.Check(context.Background(), "x", "op", 0, time.Minute); err == nil {
		t.Fatalf("expected error for zero max")
	}
	if _, err := limiter.Check(context.Background(), "x", "op", 5, 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}
