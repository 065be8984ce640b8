package history

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

// MemoryStore is the in-memory history store used by the Community tier
// and by tests. State lives for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*domain.UserHistory
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*domain.UserHistory),
	}
}

// Seed pre-populates n demo users with a plausible baseline: last seen in
// New York an hour ago, one known device, a randomized average value.
func (s *MemoryStore) Seed(n int, rnd *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := time.Now().Add(-time.Hour).UnixMilli()
	for i := 1; i <= n; i++ {
		userID := fmt.Sprintf("user_%d", i)
		s.users[userID] = &domain.UserHistory{
			UserID:              userID,
			LastLocation:        domain.LastLocation{Lat: 40.7128, Lng: -74.0060, Timestamp: seen},
			LastDeviceIDs:       []string{fmt.Sprintf("dev_%d", i)},
			AvgTransactionValue: rnd.Float64()*200 + 20,
		}
	}
}

// Get returns a copy of the stored history, or nil if never seen.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*domain.UserHistory, error) {
	if userID == "" {
		return nil, errUserIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return copyHistory(h), nil
}

// GetOrDefault returns the stored history or a fresh default without
// inserting it.
func (s *MemoryStore) GetOrDefault(ctx context.Context, userID string) (*domain.UserHistory, error) {
	h, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return domain.DefaultHistory(userID), nil
	}
	return h, nil
}

// Update overwrites the entry for the user derived from the analyzed
// transaction and the prior history.
func (s *MemoryStore) Update(ctx context.Context, userID string, tx *domain.Transaction, prior *domain.UserHistory) error {
	if err := checkUpdateArgs(userID, tx, prior); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = applyUpdate(tx, prior)
	return nil
}

// Len returns the number of tracked users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Ping checks store health.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close cleans up the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*domain.UserHistory)
	return nil
}

func copyHistory(h *domain.UserHistory) *domain.UserHistory {
	out := *h
	out.LastDeviceIDs = make([]string, len(h.LastDeviceIDs))
	copy(out.LastDeviceIDs, h.LastDeviceIDs)
	return &out
}
