package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DropCounter counts audit writes that could not be persisted. Implemented by
// observability.Metrics.
type DropCounter interface {
	AuditDropped(kind string)
}

// Recorder appends entries to the audit trail. Record and RecordSecurity are
// best effort: a failed write goes to the diagnostic log and is swallowed, so
// an audit outage can never block or alter the request being audited.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	drops  DropCounter
	clock  func() time.Time
}

// NewRecorder returns a Recorder writing through the given pool.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger, drops DropCounter) *Recorder {
	return &Recorder{
		pool:   pool,
		logger: logger,
		drops:  drops,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used by tests.
func (rec *Recorder) WithClock(clock func() time.Time) *Recorder {
	rec.clock = clock
	return rec
}

// Record persists one audit entry. Never returns an error to the caller.
func (rec *Recorder) Record(ctx context.Context, e Entry) {
	if rec == nil || rec.pool == nil {
		return
	}
	if e.At.IsZero() {
		e.At = rec.clock()
	}
	if e.Risk == "" {
		e.Risk = RiskLow
	}
	if e.Actor.Kind == "" {
		e.Actor.Kind = ActorSystem
	}

	before, after := mustMeta(e.Before), mustMeta(e.After)
	var targetType, targetID, targetLabel *string
	if e.Target != nil {
		targetType, targetID, targetLabel = &e.Target.Type, &e.Target.ID, &e.Target.Label
	}
	var actorID *int64
	if e.Actor.Kind != ActorSystem {
		actorID = &e.Actor.ID
	}

	_, err := rec.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_kind, actor_id, actor_label, action, description,
			ip, user_agent, path, method, session_key,
			target_type, target_id, target_label, before, after, risk, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		string(e.Actor.Kind), actorID, e.Actor.Label, string(e.Action), e.Description,
		e.Request.IP, e.Request.UserAgent, e.Request.Path, e.Request.Method, e.Request.SessionKey,
		targetType, targetID, targetLabel, before, after, string(e.Risk), e.At)
	if err != nil {
		rec.drop("audit_log", string(e.Action), err)
	}
}

// RecordSecurity persists one security event. Never returns an error.
func (rec *Recorder) RecordSecurity(ctx context.Context, e SecurityEvent) {
	if rec == nil || rec.pool == nil {
		return
	}
	if e.At.IsZero() {
		e.At = rec.clock()
	}
	if e.Severity == "" {
		e.Severity = RiskMedium
	}
	if e.Actor.Kind == "" {
		e.Actor.Kind = ActorSystem
	}
	var actorID *int64
	if e.Actor.Kind != ActorSystem {
		actorID = &e.Actor.ID
	}

	_, err := rec.pool.Exec(ctx, `
		INSERT INTO security_events (event_type, actor_kind, actor_id, actor_label, severity, detail,
			ip, user_agent, path, method, session_key, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(e.Type), string(e.Actor.Kind), actorID, e.Actor.Label, string(e.Severity), e.Detail,
		e.Request.IP, e.Request.UserAgent, e.Request.Path, e.Request.Method, e.Request.SessionKey, e.At)
	if err != nil {
		rec.drop("security_events", string(e.Type), err)
	}
}

func (rec *Recorder) drop(table, kind string, err error) {
	if rec.logger != nil {
		rec.logger.Warn("audit write dropped",
			slog.String("table", table),
			slog.String("kind", kind),
			slog.Any("error", err))
	}
	if rec.drops != nil {
		rec.drops.AuditDropped(table)
	}
}

func mustMeta(m map[string]any) []byte {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}
