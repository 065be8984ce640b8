// Package metrics aggregates system-level scoring statistics.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

// latencyWindow is the number of recent samples kept for latency percentiles.
const latencyWindow = 50

// Snapshot is a point-in-time view of system metrics.
type Snapshot struct {
	TotalProcessed int64   `json:"totalProcessed"`
	Throughput     float64 `json:"throughput"` // tx/sec since start
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	P99LatencyMs   float64 `json:"p99LatencyMs"`
	FraudRate      float64 `json:"fraudRate"` // BLOCK share of total

	Approved     int64 `json:"approved"`
	Blocked      int64 `json:"blocked"`
	ManualReview int64 `json:"manualReview"`
	Fallbacks    int64 `json:"fallbacks"`

	FlagCounts map[domain.RiskFlag]int64 `json:"flagCounts"`
}

// Aggregator accumulates analysis outcomes. Latency percentiles are
// computed over a rolling window of recent samples.
type Aggregator struct {
	mu        sync.Mutex
	start     time.Time
	total     int64
	approved  int64
	blocked   int64
	review    int64
	fallbacks int64
	flags     map[domain.RiskFlag]int64
	latencies []float64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		start: time.Now(),
		flags: make(map[domain.RiskFlag]int64),
	}
}

// Record accumulates one analysis outcome.
func (a *Aggregator) Record(analysis *domain.RiskAnalysis) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	switch analysis.Decision {
	case domain.DecisionApprove:
		a.approved++
	case domain.DecisionBlock:
		a.blocked++
	case domain.DecisionManualReview:
		a.review++
	}
	if analysis.IsFallback {
		a.fallbacks++
	}
	for _, f := range analysis.Flags {
		a.flags[f]++
	}

	a.latencies = append(a.latencies, analysis.ProcessingTimeMs)
	if len(a.latencies) > latencyWindow {
		a.latencies = a.latencies[len(a.latencies)-latencyWindow:]
	}
}

// Snapshot returns the current metrics view.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		TotalProcessed: a.total,
		Approved:       a.approved,
		Blocked:        a.blocked,
		ManualReview:   a.review,
		Fallbacks:      a.fallbacks,
		FlagCounts:     make(map[domain.RiskFlag]int64, len(a.flags)),
	}
	for f, n := range a.flags {
		snap.FlagCounts[f] = n
	}

	elapsed := time.Since(a.start).Seconds()
	if elapsed > 0 {
		snap.Throughput = float64(a.total) / elapsed
	}
	if a.total > 0 {
		snap.FraudRate = float64(a.blocked) / float64(a.total)
	}

	if len(a.latencies) > 0 {
		sum := 0.0
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)
		for _, v := range sorted {
			sum += v
		}
		snap.AvgLatencyMs = sum / float64(len(sorted))
		snap.P99LatencyMs = sorted[(len(sorted)*99)/100]
	}

	return snap
}
