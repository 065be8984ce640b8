package metrics

import (
	"testing"

	"github.com/opensource-finance/merlin/internal/domain"
)

func analysis(decision domain.Decision, latency float64, flags ...domain.RiskFlag) *domain.RiskAnalysis {
	return &domain.RiskAnalysis{
		Decision:         decision,
		ProcessingTimeMs: latency,
		Flags:            flags,
	}
}

func TestEmptySnapshot(t *testing.T) {
	snap := NewAggregator().Snapshot()

	if snap.TotalProcessed != 0 || snap.FraudRate != 0 || snap.AvgLatencyMs != 0 {
		t.Errorf("empty aggregator should produce zero snapshot: %+v", snap)
	}
}

func TestDecisionCounters(t *testing.T) {
	a := NewAggregator()

	a.Record(analysis(domain.DecisionApprove, 1))
	a.Record(analysis(domain.DecisionApprove, 1))
	a.Record(analysis(domain.DecisionBlock, 1))
	a.Record(analysis(domain.DecisionManualReview, 1))

	snap := a.Snapshot()
	if snap.TotalProcessed != 4 {
		t.Errorf("expected 4 processed, got %d", snap.TotalProcessed)
	}
	if snap.Approved != 2 || snap.Blocked != 1 || snap.ManualReview != 1 {
		t.Errorf("wrong decision counts: %+v", snap)
	}
	if snap.FraudRate != 0.25 {
		t.Errorf("expected fraud rate 0.25, got %f", snap.FraudRate)
	}
}

func TestFallbackAndFlagCounts(t *testing.T) {
	a := NewAggregator()

	fb := analysis(domain.DecisionApprove, 1, domain.FlagNewDevice)
	fb.IsFallback = true
	a.Record(fb)
	a.Record(analysis(domain.DecisionBlock, 1, domain.FlagNewDevice, domain.FlagImpossibleTravel))

	snap := a.Snapshot()
	if snap.Fallbacks != 1 {
		t.Errorf("expected 1 fallback, got %d", snap.Fallbacks)
	}
	if snap.FlagCounts[domain.FlagNewDevice] != 2 {
		t.Errorf("expected 2 NEW_DEVICE, got %d", snap.FlagCounts[domain.FlagNewDevice])
	}
	if snap.FlagCounts[domain.FlagImpossibleTravel] != 1 {
		t.Errorf("expected 1 IMPOSSIBLE_TRAVEL, got %d", snap.FlagCounts[domain.FlagImpossibleTravel])
	}
}

func TestLatencyWindowRolls(t *testing.T) {
	a := NewAggregator()

	// Fill beyond the window with slow samples, then flood with fast
	// ones; only the recent window should remain.
	for i := 0; i < latencyWindow; i++ {
		a.Record(analysis(domain.DecisionApprove, 100))
	}
	for i := 0; i < latencyWindow; i++ {
		a.Record(analysis(domain.DecisionApprove, 2))
	}

	snap := a.Snapshot()
	if snap.AvgLatencyMs != 2 {
		t.Errorf("expected average 2ms over rolling window, got %f", snap.AvgLatencyMs)
	}
	if snap.P99LatencyMs != 2 {
		t.Errorf("expected p99 2ms, got %f", snap.P99LatencyMs)
	}
}

func TestP99PicksTail(t *testing.T) {
	a := NewAggregator()

	for i := 0; i < 49; i++ {
		a.Record(analysis(domain.DecisionApprove, 1))
	}
	a.Record(analysis(domain.DecisionApprove, 500))

	snap := a.Snapshot()
	if snap.P99LatencyMs != 500 {
		t.Errorf("expected p99 to surface the outlier, got %f", snap.P99LatencyMs)
	}
	if snap.AvgLatencyMs <= 1 {
		t.Errorf("average should move with the outlier, got %f", snap.AvgLatencyMs)
	}
}

func TestSnapshotCopiesFlagMap(t *testing.T) {
	a := NewAggregator()
	a.Record(analysis(domain.DecisionApprove, 1, domain.FlagHighValue))

	snap := a.Snapshot()
	snap.FlagCounts[domain.FlagHighValue] = 99

	if a.Snapshot().FlagCounts[domain.FlagHighValue] != 1 {
		t.Error("snapshot mutation leaked into aggregator")
	}
}
