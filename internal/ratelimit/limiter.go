// Package ratelimit implements a sliding-window request limiter on Redis
// sorted sets. Counters live in a shared store so the limit holds across
// server processes, unlike a per-session counter.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/platform/httpx"
)

// SecurityRecorder receives rapid-request security events. Satisfied by
// *audit.Recorder.
type SecurityRecorder interface {
	RecordSecurity(ctx context.Context, e audit.SecurityEvent)
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter checks per-(subject, operation) request budgets.
type Limiter struct {
	client   *redis.Client
	recorder SecurityRecorder
	logger   *slog.Logger
	clock    func() time.Time
}

// NewLimiter constructs a Limiter.
func NewLimiter(client *redis.Client, recorder SecurityRecorder, logger *slog.Logger) *Limiter {
	return &Limiter{
		client:   client,
		recorder: recorder,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used by tests.
func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	l.clock = clock
	return l
}

// Check records the attempt unless the subject already spent its budget for
// the window. A denied check emits a rapid-request security event and carries
// a retry-after hint equal to the window length.
func (l *Limiter) Check(ctx context.Context, subject, operation string, max int, window time.Duration) (Decision, error) {
	if max <= 0 || window <= 0 {
		return Decision{}, fmt.Errorf("ratelimit: max and window must be positive")
	}

	now := l.clock()
	key := l.key(subject, operation)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	if err := l.client.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: trim window: %w", err)
	}
	count, err := l.client.ZCard(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: count window: %w", err)
	}

	if int(count) >= max {
		l.reportExceeded(ctx, subject, operation, max, window)
		return Decision{Allowed: false, Remaining: 0, RetryAfter: window}, nil
	}

	member := redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()}
	if err := l.client.ZAdd(ctx, key, member).Err(); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: record attempt: %w", err)
	}
	if err := l.client.Expire(ctx, key, window).Err(); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: set ttl: %w", err)
	}

	return Decision{Allowed: true, Remaining: max - int(count) - 1}, nil
}

func (l *Limiter) reportExceeded(ctx context.Context, subject, operation string, max int, window time.Duration) {
	if l.logger != nil {
		l.logger.Warn("rate limit exceeded",
			slog.String("subject", subject),
			slog.String("operation", operation),
			slog.Int("max", max),
			slog.Duration("window", window))
	}
	if l.recorder != nil {
		// The subject is the throttling key, the client IP on anonymous
		// paths. The anomaly scan groups events by source address, so it
		// rides on the request context.
		l.recorder.RecordSecurity(ctx, audit.SecurityEvent{
			Type:     audit.EventRapidRequests,
			Actor:    audit.Actor{Kind: audit.ActorSystem, Label: subject},
			Severity: audit.RiskMedium,
			Detail:   fmt.Sprintf("operation %s exceeded %d requests per %s", operation, max, window),
			Request:  audit.RequestContext{IP: subject},
		})
	}
}

func (l *Limiter) key(subject, operation string) string {
	return fmt.Sprintf("ratelimit:%s:%s", operation, subject)
}

// Respond writes the structured 429 response with a Retry-After hint.
func Respond(w http.ResponseWriter, d Decision) {
	w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
	httpx.ProblemCode(w, http.StatusTooManyRequests, "Too Many Requests",
		"request budget exhausted, retry later", "rate_limited")
}
