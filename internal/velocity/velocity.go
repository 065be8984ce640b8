// Package velocity provides windowed transaction velocity counting.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Service counts per-user activity inside a sliding time window. The cache
// counter is the primary source (cheap, atomic); the repository is the
// fallback when no cache is configured.
type Service struct {
	cache domain.Cache
	repo  domain.Repository
}

// NewService creates a new velocity service.
func NewService(cache domain.Cache, repo domain.Repository) *Service {
	return &Service{
		cache: cache,
		repo:  repo,
	}
}

// Observe records one transaction for the user and returns the number of
// transactions seen in the window, including this one.
func (s *Service) Observe(ctx context.Context, userID string, window time.Duration) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("userID is required")
	}

	if s.cache != nil {
		return s.cache.IncrementCounter(ctx, "velocity:"+userID, window)
	}

	if s.repo != nil {
		since := time.Now().Add(-window)
		count, err := s.repo.CountRecentByUser(ctx, userID, since)
		if err != nil {
			return 0, fmt.Errorf("failed to count transactions: %w", err)
		}
		// Repository counts only persisted transactions; the one being
		// scored has not been saved yet.
		return count + 1, nil
	}

	return 0, fmt.Errorf("no data source available")
}

// CounterFunc adapts the service to the engine's counter signature.
func (s *Service) CounterFunc() func(ctx context.Context, userID string, window time.Duration) (int64, error) {
	return s.Observe
}
