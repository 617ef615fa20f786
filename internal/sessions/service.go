package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// Recorder receives session lifecycle audit entries. Satisfied by *audit.Recorder.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// Service tracks persisted login sessions and enforces the idle timeout.
type Service struct {
	repo        RepositoryPort
	recorder    Recorder
	logger      *slog.Logger
	idleTimeout time.Duration
	clock       func() time.Time
}

// NewService constructs a session service. idleTimeout bounds how long a
// session may sit between requests before it expires.
func NewService(repo RepositoryPort, recorder Recorder, logger *slog.Logger, idleTimeout time.Duration) *Service {
	if idleTimeout <= 0 {
		idleTimeout = time.Hour
	}
	return &Service{
		repo:        repo,
		recorder:    recorder,
		logger:      logger,
		idleTimeout: idleTimeout,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// IdleTimeout returns the configured idle threshold.
func (s *Service) IdleTimeout() time.Duration {
	return s.idleTimeout
}

// Touch records activity for the (user, sessionKey) pair. The first touch of
// a key creates the row. When the session has idled past the timeout it is
// closed, a session_expired entry is recorded, and shared.ErrSessionExpired
// is returned so the caller can force re-authentication.
func (s *Service) Touch(ctx context.Context, userID int64, sessionKey, ip, ua string) error {
	now := s.clock()

	existing, err := s.repo.FindByKey(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_, err := s.repo.Create(ctx, UserSession{
				UserID:     userID,
				SessionKey: sessionKey,
				IP:         ip,
				UserAgent:  ua,
				DeviceInfo: deviceInfo(ua),
				LoginAt:    now,
			})
			return err
		}
		return err
	}

	if !existing.IsActive {
		return shared.ErrSessionExpired
	}
	if existing.IdleFor(now) > s.idleTimeout {
		s.expire(ctx, *existing, now)
		return shared.ErrSessionExpired
	}
	return s.repo.UpdateActivity(ctx, sessionKey, now)
}

// Logout closes the session.
func (s *Service) Logout(ctx context.Context, sessionKey string) error {
	return s.repo.Close(ctx, sessionKey, s.clock())
}

// MarkSuspicious flags the session for review.
func (s *Service) MarkSuspicious(ctx context.Context, sessionKey string) error {
	return s.repo.MarkSuspicious(ctx, sessionKey)
}

// ExpireStale closes every session idle past the threshold and records one
// session_expired entry per session. Entries are written concurrently in a
// bounded group; a failed audit write is already swallowed by the recorder.
func (s *Service) ExpireStale(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = s.idleTimeout
	}
	now := s.clock()
	cutoff := now.Add(-threshold)

	stale, err := s.repo.ListStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sessions: list stale: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if _, err := s.repo.CloseStale(ctx, cutoff, now); err != nil {
		return 0, fmt.Errorf("sessions: close stale: %w", err)
	}

	if s.recorder != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(8)
		for _, sess := range stale {
			g.Go(func() error {
				s.recorder.Record(gctx, expiredEntry(sess, now))
				return nil
			})
		}
		_ = g.Wait()
	}

	if s.logger != nil {
		s.logger.Info("stale sessions expired", slog.Int("count", len(stale)))
	}
	return len(stale), nil
}

func (s *Service) expire(ctx context.Context, sess UserSession, now time.Time) {
	if err := s.repo.Close(ctx, sess.SessionKey, now); err != nil && s.logger != nil {
		s.logger.Warn("close expired session", slog.String("session_key", sess.SessionKey), slog.Any("error", err))
	}
	if s.recorder != nil {
		s.recorder.Record(ctx, expiredEntry(sess, now))
	}
}

func expiredEntry(sess UserSession, now time.Time) audit.Entry {
	return audit.Entry{
		Actor:       audit.System(),
		Action:      audit.ActionSessionExpired,
		Description: fmt.Sprintf("session for user %d idle since %s", sess.UserID, sess.LastActivityAt.Format(time.RFC3339)),
		Request:     audit.RequestContext{IP: sess.IP, UserAgent: sess.UserAgent, SessionKey: sess.SessionKey},
		Risk:        audit.RiskLow,
		At:          now,
	}
}

// deviceInfo reduces a user agent to a short summary for listings.
func deviceInfo(ua string) string {
	if len(ua) > 120 {
		return ua[:120]
	}
	return ua
}
