package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL audit repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const entryColumns = `id, actor_kind, actor_id, actor_label, action, description,
	ip, user_agent, path, method, session_key,
	target_type, target_id, target_label, before, after, risk, occurred_at`

const timelineQuery = `
	SELECT ` + entryColumns + `
	FROM audit_log
	WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
	  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
	  AND ($3::text IS NULL OR actor_label = $3)
	  AND ($4::text IS NULL OR action = $4)
	  AND ($5::text IS NULL OR risk = $5)
	ORDER BY occurred_at DESC, id DESC`

// TimelineWindow returns one page of entries, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, f TimelineFilters, limit, offset int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, timelineQuery+` LIMIT $6 OFFSET $7`,
		nullTime(f.From), nullTime(f.To), nullText(f.Actor), nullText(f.Action), nullText(f.Risk), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// TimelineAll returns every matching entry without paging.
func (r *PGRepository) TimelineAll(ctx context.Context, f TimelineFilters) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, timelineQuery,
		nullTime(f.From), nullTime(f.To), nullText(f.Actor), nullText(f.Action), nullText(f.Risk))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// SecurityEvents returns security events inside the window, newest first.
func (r *PGRepository) SecurityEvents(ctx context.Context, from, to time.Time) ([]SecurityEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, actor_kind, actor_id, actor_label, severity, detail,
		       ip, user_agent, path, method, session_key, occurred_at
		FROM security_events
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		ORDER BY occurred_at DESC, id DESC`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var e SecurityEvent
		var eventType, actorKind string
		var actorID *int64
		if err := rows.Scan(&e.ID, &eventType, &actorKind, &actorID, &e.Actor.Label, &e.Severity, &e.Detail,
			&e.Request.IP, &e.Request.UserAgent, &e.Request.Path, &e.Request.Method, &e.Request.SessionKey, &e.At); err != nil {
			return nil, err
		}
		e.Type = SecurityEventType(eventType)
		e.Actor.Kind = ActorKind(actorKind)
		if actorID != nil {
			e.Actor.ID = *actorID
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var actorKind, action, risk string
		var actorID *int64
		var targetType, targetID, targetLabel *string
		var before, after []byte
		if err := rows.Scan(&e.ID, &actorKind, &actorID, &e.Actor.Label, &action, &e.Description,
			&e.Request.IP, &e.Request.UserAgent, &e.Request.Path, &e.Request.Method, &e.Request.SessionKey,
			&targetType, &targetID, &targetLabel, &before, &after, &risk, &e.At); err != nil {
			return nil, err
		}
		e.Actor.Kind = ActorKind(actorKind)
		if actorID != nil {
			e.Actor.ID = *actorID
		}
		e.Action = ActionType(action)
		e.Risk = RiskLevel(risk)
		if targetType != nil {
			e.Target = &Target{Type: *targetType}
			if targetID != nil {
				e.Target.ID = *targetID
			}
			if targetLabel != nil {
				e.Target.Label = *targetLabel
			}
		}
		if len(before) > 0 {
			_ = json.Unmarshal(before, &e.Before)
		}
		if len(after) > 0 {
			_ = json.Unmarshal(after, &e.After)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Repository = (*PGRepository)(nil)
