// Package worker provides async alert processing from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/opensource-finance/merlin/internal/domain"
)

// AlertWorker consumes decision events and emits structured alerts. It is
// the downstream hook for case-management or paging integrations; the
// built-in behavior is structured logging plus counters.
type AlertWorker struct {
	bus domain.EventBus

	subscriptions []domain.Subscription
	cancel        context.CancelFunc

	blockedSeen int64
	reviewSeen  int64
}

// NewAlertWorker creates a worker bound to the bus.
func NewAlertWorker(bus domain.EventBus) *AlertWorker {
	return &AlertWorker{bus: bus}
}

// Start subscribes to the blocked and review topics.
func (w *AlertWorker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	blocked, err := w.bus.Subscribe(ctx, domain.TopicAnalysisBlocked, w.handleBlocked)
	if err != nil {
		cancel()
		return err
	}
	w.subscriptions = append(w.subscriptions, blocked)

	review, err := w.bus.Subscribe(ctx, domain.TopicAnalysisReview, w.handleReview)
	if err != nil {
		cancel()
		return err
	}
	w.subscriptions = append(w.subscriptions, review)

	slog.Info("alert worker started",
		"topics", []string{domain.TopicAnalysisBlocked, domain.TopicAnalysisReview},
	)

	return nil
}

// Stop unsubscribes and halts processing.
func (w *AlertWorker) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.subscriptions = nil
	return nil
}

// BlockedSeen returns the number of blocked-transaction alerts processed.
func (w *AlertWorker) BlockedSeen() int64 {
	return atomic.LoadInt64(&w.blockedSeen)
}

// ReviewSeen returns the number of review alerts processed.
func (w *AlertWorker) ReviewSeen() int64 {
	return atomic.LoadInt64(&w.reviewSeen)
}

func (w *AlertWorker) handleBlocked(ctx context.Context, msg *domain.Message) error {
	analysis, err := decodeAnalysis(msg.Payload)
	if err != nil {
		slog.Error("failed to decode blocked analysis", "error", err)
		return err
	}

	atomic.AddInt64(&w.blockedSeen, 1)
	slog.Warn("transaction blocked",
		"transaction_id", analysis.TransactionID,
		"user_id", analysis.UserID,
		"score", analysis.Score,
		"flags", analysis.Flags,
		"strategy", analysis.StrategyName,
	)
	return nil
}

func (w *AlertWorker) handleReview(ctx context.Context, msg *domain.Message) error {
	analysis, err := decodeAnalysis(msg.Payload)
	if err != nil {
		slog.Error("failed to decode review analysis", "error", err)
		return err
	}

	atomic.AddInt64(&w.reviewSeen, 1)
	slog.Info("transaction queued for review",
		"transaction_id", analysis.TransactionID,
		"user_id", analysis.UserID,
		"score", analysis.Score,
		"signal", analysis.AmbiguitySignal,
	)
	return nil
}

func decodeAnalysis(payload []byte) (*domain.RiskAnalysis, error) {
	var analysis domain.RiskAnalysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}
