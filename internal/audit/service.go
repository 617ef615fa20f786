package audit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Action   string
	Risk     string
	Page     int
	PageSize int
}

// PagingInfo describes the window returned by Timeline.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	NextPage int
	PrevPage int
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// ExportBundle carries a full export of the trail for compliance review.
type ExportBundle struct {
	Entries []Entry
	Events  []SecurityEvent
}

// Repository provides read access to the persisted trail.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error)
	TimelineAll(ctx context.Context, filters TimelineFilters) ([]Entry, error)
	SecurityEvents(ctx context.Context, from, to time.Time) ([]SecurityEvent, error)
}

// Service coordinates audit trail reads.
type Service struct {
	repo Repository
}

// NewService constructs an audit read service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of the audit trail, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}

	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns the full trail and the security events for the window,
// fetched concurrently.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) (ExportBundle, error) {
	if s.repo == nil {
		return ExportBundle{}, fmt.Errorf("audit: repository not configured")
	}

	var bundle ExportBundle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.repo.TimelineAll(gctx, filters)
		if err != nil {
			return err
		}
		bundle.Entries = rows
		return nil
	})
	g.Go(func() error {
		events, err := s.repo.SecurityEvents(gctx, filters.From, filters.To)
		if err != nil {
			return err
		}
		bundle.Events = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return ExportBundle{}, err
	}
	return bundle, nil
}
