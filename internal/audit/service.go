package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/masa-erp/masa/internal/shared"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxExportRows   = 5000
)

// ErrInvalidRange is returned when From is after To.
var ErrInvalidRange = errors.New("audit: invalid date range")

// Repository reads audit_logs.
type Repository interface {
	Timeline(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service exposes the access-control audit trail.
type Service struct {
	repo Repository
}

// NewService constructs the audit service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, errors.New("audit: service not initialised")
	}
	perPage := filters.PageSize
	if perPage <= 0 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	p := shared.NewPagination(filters.Page, perPage, 0)

	q, err := buildQuery(filters)
	if err != nil {
		return Result{}, err
	}
	q.Limit = p.PerPage + 1
	q.Offset = (p.Page - 1) * p.PerPage
	rows, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}

	info := PagingInfo{Page: p.Page, PageSize: p.PerPage}
	if len(rows) > p.PerPage {
		info.HasNext = true
		info.NextPage = p.Page + 1
		rows = rows[:p.PerPage]
	}
	if p.Page > 1 {
		info.PrevPage = p.Page - 1
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: info}, nil
}

// Export returns every matching entry up to the export cap.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("audit: service not initialised")
	}
	q, err := buildQuery(filters)
	if err != nil {
		return nil, err
	}
	q.Limit = maxExportRows
	rows, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return rows, nil
}

func buildQuery(filters TimelineFilters) (Query, error) {
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return Query{}, ErrInvalidRange
	}
	q := Query{
		From:     filters.From,
		ActorID:  filters.ActorID,
		Entity:   strings.TrimSpace(filters.Entity),
		EntityID: strings.TrimSpace(filters.EntityID),
		Action:   strings.TrimSpace(filters.Action),
	}
	if !filters.To.IsZero() {
		q.Until = filters.To.AddDate(0, 0, 1)
	}
	return q, nil
}
