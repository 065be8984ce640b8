// Package review implements the human review queue for MANUAL_REVIEW
// decisions.
package review

import (
	"errors"
	"sync"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

// ErrNotQueued is returned when resolving an item that is not pending.
var ErrNotQueued = errors.New("transaction not in review queue")

// Verdict is an analyst's resolution of a queued item.
type Verdict string

const (
	VerdictApprove Verdict = "APPROVE"
	VerdictBlock   Verdict = "BLOCK"
)

// Item is one pending review entry.
type Item struct {
	Transaction *domain.Transaction  `json:"transaction"`
	Analysis    *domain.RiskAnalysis `json:"analysis"`
	EnqueuedAt  time.Time            `json:"enqueuedAt"`
}

// Queue holds transactions awaiting a human decision, in arrival order.
// When full, the oldest pending item is dropped.
type Queue struct {
	mu    sync.Mutex
	items []*Item
	cap   int
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 500
	}
	return &Queue{cap: capacity}
}

// Add enqueues a transaction with its analysis.
func (q *Queue) Add(tx *domain.Transaction, analysis *domain.RiskAnalysis) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, &Item{
		Transaction: tx,
		Analysis:    analysis,
		EnqueuedAt:  time.Now(),
	})
	if len(q.items) > q.cap {
		q.items = q.items[len(q.items)-q.cap:]
	}
}

// List returns pending items in arrival order.
func (q *Queue) List() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Item, len(q.items))
	copy(out, q.items)
	return out
}

// Resolve removes the pending item for the transaction and returns it.
func (q *Queue) Resolve(txID string, verdict Verdict) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.Transaction.ID == txID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return item, nil
		}
	}
	return nil, ErrNotQueued
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
