package velocity

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/domain"
)

// countingRepo stubs only the counting path of the repository.
type countingRepo struct {
	domain.Repository
	count int64
	err   error
}

func (r *countingRepo) CountRecentByUser(ctx context.Context, userID string, since time.Time) (int64, error) {
	return r.count, r.err
}

func TestObserveRequiresUserID(t *testing.T) {
	svc := NewService(cache.NewLRUCache(10), nil)
	if _, err := svc.Observe(context.Background(), "", time.Minute); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestObservePrefersCacheCounter(t *testing.T) {
	svc := NewService(cache.NewLRUCache(10), &countingRepo{count: 999})
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := svc.Observe(ctx, "user_1", time.Minute)
		if err != nil {
			t.Fatalf("observe failed: %v", err)
		}
		if got != want {
			t.Errorf("expected cache counter %d, got %d", want, got)
		}
	}
}

func TestObserveCountersAreIndependentPerUser(t *testing.T) {
	svc := NewService(cache.NewLRUCache(10), nil)
	ctx := context.Background()

	if _, err := svc.Observe(ctx, "user_a", time.Minute); err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	got, err := svc.Observe(ctx, "user_b", time.Minute)
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if got != 1 {
		t.Errorf("user_b counter should start at 1, got %d", got)
	}
}

func TestObserveFallsBackToRepository(t *testing.T) {
	svc := NewService(nil, &countingRepo{count: 4})

	got, err := svc.Observe(context.Background(), "user_1", time.Minute)
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	// Repository count excludes the in-flight transaction.
	if got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
}

func TestObserveNoDataSource(t *testing.T) {
	svc := NewService(nil, nil)
	if _, err := svc.Observe(context.Background(), "user_1", time.Minute); err == nil {
		t.Error("expected error with no data source")
	}
}

func TestCounterFuncAdapter(t *testing.T) {
	svc := NewService(cache.NewLRUCache(10), nil)

	fn := svc.CounterFunc()
	got, err := fn(context.Background(), "user_1", time.Minute)
	if err != nil {
		t.Fatalf("counter func failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}
