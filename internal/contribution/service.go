package contribution

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Common errors
var (
	ErrContributionNotFound = errors.New("contribution not found")
)

// Service handles contribution business logic
type Service struct {
	repo           *Repository
	penaltyPercent float64
	gracePeriod    time.Duration
}

// NewService creates a new contribution service
func NewService(repo *Repository, penaltyPercent float64, gracePeriod time.Duration) *Service {
	return &Service{
		repo:           repo,
		penaltyPercent: penaltyPercent,
		gracePeriod:    gracePeriod,
	}
}

// GetByID retrieves a contribution by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Contribution, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrContributionNotFound
	}
	return c, nil
}

// List retrieves contributions matching the filter with pagination
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) ([]*Contribution, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.List(ctx, filter, perPage, offset)
}

// MarkOverdue runs the overdue sweep. It is invoked by an external scheduler,
// never self-triggered.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (late, missed int64, err error) {
	late, missed, err = s.repo.MarkOverdue(ctx, now, s.penaltyPercent, s.gracePeriod)
	if err != nil {
		return 0, 0, err
	}
	if late > 0 || missed > 0 {
		slog.Info("overdue sweep applied", "late", late, "missed", missed)
	}
	return late, missed, nil
}
