package movement

import (
	"context"
	"fmt"

	"stocktally/internal/core/apperror"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Service provides the movement feed and its rollup.
type Service struct {
	repo Repository
}

// NewService creates a new movement service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func normalize(f *Filter) error {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return apperror.NewValidation("time range is inverted").
			WithDetail("from", f.From).
			WithDetail("to", f.To)
	}
	return nil
}

// List returns a page of the merged feed plus the total row count.
func (s *Service) List(ctx context.Context, f Filter) ([]Record, int64, error) {
	if err := normalize(&f); err != nil {
		return nil, 0, err
	}
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}
	return items, total, nil
}

// Summarize rolls the filter window up per kind and computes the net
// quantity change across all sources.
func (s *Service) Summarize(ctx context.Context, f Filter) (*Summary, error) {
	if err := normalize(&f); err != nil {
		return nil, err
	}
	kinds, err := s.repo.Summarize(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("summarize movements: %w", err)
	}

	summary := &Summary{Kinds: kinds}
	for _, k := range kinds {
		summary.Net += k.UnitsIn - k.UnitsOut
	}
	return summary, nil
}
