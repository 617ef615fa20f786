package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sis/meridian-sis/internal/audit"
)

// SecurityScanJob looks for source addresses that piled up security events
// inside a short window and flags them as suspicious activity in the audit
// trail. Individual events (failed logins, bad API keys) are recorded inline;
// this job finds the patterns no single request can see.
type SecurityScanJob struct {
	Pool     *pgxpool.Pool
	Recorder *audit.Recorder
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewSecurityScanJob initialises the scan handler.
func NewSecurityScanJob(pool *pgxpool.Pool, recorder *audit.Recorder, logger *slog.Logger) *SecurityScanJob {
	return &SecurityScanJob{
		Pool:     pool,
		Recorder: recorder,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type scanHit struct {
	IP     string
	Events int
	Types  []string
}

// Handle executes the scan logic.
func (j *SecurityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("security scan: handler not configured")
	}
	var payload SecurityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowMinutes <= 0 {
		payload.WindowMinutes = 15
	}
	if payload.Threshold <= 0 {
		payload.Threshold = 10
	}

	start := j.clock()
	hits, err := j.scan(ctx, payload, start)
	if err != nil {
		j.Logger.Error("security scan failed", slog.Any("error", err))
		return err
	}

	for _, hit := range hits {
		j.Logger.Warn("suspicious activity detected",
			slog.String("ip", hit.IP),
			slog.Int("events", hit.Events),
			slog.Any("types", hit.Types),
		)
		j.Recorder.Record(ctx, audit.Entry{
			Actor:       audit.System(),
			Action:      audit.ActionSuspiciousActivity,
			Description: fmt.Sprintf("%d security events from one address within %dm", hit.Events, payload.WindowMinutes),
			Request:     audit.RequestContext{IP: hit.IP},
			Risk:        audit.RiskHigh,
			After: map[string]any{
				"event_count": hit.Events,
				"event_types": hit.Types,
				"window_min":  payload.WindowMinutes,
			},
		})
	}

	j.Logger.Info("security scan complete",
		slog.Int("flagged", len(hits)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *SecurityScanJob) scan(ctx context.Context, payload SecurityScanPayload, now time.Time) ([]scanHit, error) {
	since := now.Add(-time.Duration(payload.WindowMinutes) * time.Minute)
	rows, err := j.Pool.Query(ctx, `
		SELECT ip, COUNT(*) AS events, ARRAY_AGG(DISTINCT event_type) AS types
		FROM security_events
		WHERE occurred_at >= $1 AND ip <> ''
		GROUP BY ip
		HAVING COUNT(*) >= $2
		ORDER BY events DESC`, since, payload.Threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []scanHit
	for rows.Next() {
		var hit scanHit
		if err := rows.Scan(&hit.IP, &hit.Events, &hit.Types); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
