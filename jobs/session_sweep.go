package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-sis/meridian-sis/internal/sessions"
)

// SessionSweepJob expires tracked sessions that idled past the timeout.
// It backstops the per-request idle check for users who never come back.
type SessionSweepJob struct {
	Sessions *sessions.Service
	Logger   *slog.Logger
}

// NewSessionSweepJob initialises the sweep handler.
func NewSessionSweepJob(svc *sessions.Service, logger *slog.Logger) *SessionSweepJob {
	return &SessionSweepJob{Sessions: svc, Logger: logger}
}

// Handle executes one sweep.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("session sweep: handler not configured")
	}
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	threshold := j.Sessions.IdleTimeout()
	if payload.IdleMinutes > 0 {
		threshold = time.Duration(payload.IdleMinutes) * time.Minute
	}

	start := time.Now()
	closed, err := j.Sessions.ExpireStale(ctx, threshold)
	if err != nil {
		j.Logger.Error("session sweep failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("session sweep complete",
		slog.Int("closed", closed),
		slog.Duration("threshold", threshold),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
