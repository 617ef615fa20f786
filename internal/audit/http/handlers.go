package audithttp

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/platform/httpx"
	"github.com/meridian-sis/meridian-sis/internal/rbac"
	"github.com/meridian-sis/meridian-sis/internal/users"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) (audit.ExportBundle, error)
}

// Recorder appends audit entries for export events.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// Identity reports the user behind the request session. Satisfied by
// rbac.Middleware.
type Identity interface {
	CurrentUser(r *http.Request) (*users.User, bool, error)
}

// Handler serves the audit timeline review API.
type Handler struct {
	logger   *slog.Logger
	service  TimelineService
	recorder Recorder
	identity Identity
	now      func() time.Time
}

// NewHandler constructs an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, recorder Recorder, identity Identity) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, recorder: recorder, identity: identity, now: time.Now}
}

type timelineRow struct {
	At          time.Time `json:"at"`
	ActorKind   string    `json:"actor_kind"`
	ActorLabel  string    `json:"actor_label,omitempty"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	Path        string    `json:"path,omitempty"`
	Method      string    `json:"method,omitempty"`
	IP          string    `json:"ip,omitempty"`
	Risk        string    `json:"risk"`
}

type timelineResponse struct {
	Rows   []timelineRow    `json:"rows"`
	Paging audit.PagingInfo `json:"paging"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	resp := timelineResponse{Rows: make([]timelineRow, 0, len(result.Rows)), Paging: result.Paging}
	for _, e := range result.Rows {
		resp.Rows = append(resp.Rows, toRow(e))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	bundle, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	if h.recorder != nil {
		entry := audit.Entry{
			Actor:       audit.System(),
			Action:      audit.ActionDataExported,
			Description: fmt.Sprintf("audit trail export, %d entries", len(bundle.Entries)),
			Request:     rbac.RequestContext(r),
			Risk:        audit.RiskLow,
		}
		if h.identity != nil {
			if user, ok, _ := h.identity.CurrentUser(r); ok {
				entry.Actor = rbac.ActorFor(user)
			}
		}
		h.recorder.Record(r.Context(), entry)
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"occurred_at", "actor_kind", "actor_label", "action", "description", "path", "method", "ip", "risk"})
	for _, e := range bundle.Entries {
		_ = cw.Write([]string{
			e.At.Format(time.RFC3339),
			string(e.Actor.Kind),
			e.Actor.Label,
			string(e.Action),
			e.Description,
			e.Request.Path,
			e.Request.Method,
			e.Request.IP,
			string(e.Risk),
		})
	}
	cw.Flush()
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()

	filters := audit.TimelineFilters{
		Actor:  q.Get("actor"),
		Action: q.Get("action"),
		Risk:   q.Get("risk"),
	}

	var err error
	if filters.From, err = parseDate(q.Get("from")); err != nil {
		return filters, fmt.Errorf("invalid from date")
	}
	if filters.To, err = parseDate(q.Get("to")); err != nil {
		return filters, fmt.Errorf("invalid to date")
	}
	if filters.From.IsZero() {
		filters.From = now.Add(-defaultDateRange)
	}
	if filters.To.IsZero() {
		filters.To = now
	}
	if filters.To.Before(filters.From) {
		return filters, fmt.Errorf("to precedes from")
	}
	if filters.To.Sub(filters.From) > maxDateRange {
		return filters, fmt.Errorf("date range exceeds 90 days")
	}

	if raw := q.Get("page"); raw != "" {
		filters.Page, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("page_size"); raw != "" {
		filters.PageSize, _ = strconv.Atoi(raw)
	}
	return filters, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func toRow(e audit.Entry) timelineRow {
	return timelineRow{
		At:          e.At,
		ActorKind:   string(e.Actor.Kind),
		ActorLabel:  e.Actor.Label,
		Action:      string(e.Action),
		Description: e.Description,
		Path:        e.Request.Path,
		Method:      e.Request.Method,
		IP:          e.Request.IP,
		Risk:        string(e.Risk),
	}
}
