package review

import (
	"errors"
	"fmt"
	"testing"

	"github.com/opensource-finance/merlin/internal/domain"
)

func queuedItem(txID string) (*domain.Transaction, *domain.RiskAnalysis) {
	return &domain.Transaction{ID: txID, UserID: "user_1"},
		&domain.RiskAnalysis{ID: "an-" + txID, TransactionID: txID, Score: 70, Decision: domain.DecisionManualReview}
}

func TestAddAndList(t *testing.T) {
	q := NewQueue(10)

	q.Add(queuedItem("tx-1"))
	q.Add(queuedItem("tx-2"))

	items := q.List()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Transaction.ID != "tx-1" || items[1].Transaction.ID != "tx-2" {
		t.Errorf("arrival order not preserved: %s, %s", items[0].Transaction.ID, items[1].Transaction.ID)
	}
	if items[0].EnqueuedAt.IsZero() {
		t.Error("enqueue time not set")
	}
}

func TestResolveRemovesItem(t *testing.T) {
	q := NewQueue(10)
	q.Add(queuedItem("tx-1"))
	q.Add(queuedItem("tx-2"))

	item, err := q.Resolve("tx-1", VerdictApprove)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if item.Transaction.ID != "tx-1" {
		t.Errorf("resolved wrong item: %s", item.Transaction.ID)
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", q.Len())
	}

	if _, err := q.Resolve("tx-1", VerdictBlock); !errors.Is(err, ErrNotQueued) {
		t.Errorf("expected ErrNotQueued for resolved item, got %v", err)
	}
}

func TestResolveUnknownTransaction(t *testing.T) {
	q := NewQueue(10)
	if _, err := q.Resolve("missing", VerdictApprove); !errors.Is(err, ErrNotQueued) {
		t.Errorf("expected ErrNotQueued, got %v", err)
	}
}

func TestCapacityDropsOldest(t *testing.T) {
	q := NewQueue(3)

	for i := 1; i <= 5; i++ {
		q.Add(queuedItem(fmt.Sprintf("tx-%d", i)))
	}

	items := q.List()
	if len(items) != 3 {
		t.Fatalf("expected 3 items at capacity, got %d", len(items))
	}
	if items[0].Transaction.ID != "tx-3" || items[2].Transaction.ID != "tx-5" {
		t.Errorf("oldest items should be dropped: %s..%s", items[0].Transaction.ID, items[2].Transaction.ID)
	}
}

func TestListReturnsSnapshot(t *testing.T) {
	q := NewQueue(10)
	q.Add(queuedItem("tx-1"))

	items := q.List()
	items[0] = nil

	if q.List()[0] == nil {
		t.Error("list mutation leaked into queue")
	}
}
