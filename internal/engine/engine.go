// Package engine implements the per-transaction risk scoring core.
package engine

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/rules"
	"github.com/opensource-finance/merlin/internal/syncutil"
)

// CounterFunc returns the number of transactions observed for a user
// within the window, including the one currently being scored.
type CounterFunc func(ctx context.Context, userID string, window time.Duration) (int64, error)

// Engine scores transactions against a user's behavioral baseline. It is
// stateless across calls except through the history store, which it is the
// sole owner of: lookup, score, and update happen under a per-user lock so
// concurrent transactions for the same user cannot lose updates.
type Engine struct {
	cfg     domain.EngineConfig
	store   domain.HistoryStore
	infer   Inferencer
	ext     *rules.Engine
	counter CounterFunc

	locks syncutil.ShardedMutex

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithInferencer replaces the default simulated model.
func WithInferencer(inf Inferencer) Option {
	return func(e *Engine) { e.infer = inf }
}

// WithExtensionRules attaches a CEL extension rule set whose fired weights
// add to the rule score.
func WithExtensionRules(ext *rules.Engine) Option {
	return func(e *Engine) { e.ext = ext }
}

// WithVelocityCounter supplies the windowed counter consulted when the
// engine runs in VelocityModeWindow.
func WithVelocityCounter(fn CounterFunc) Option {
	return func(e *Engine) { e.counter = fn }
}

// WithRand injects the random source used for ambiguity signal selection
// and, when no Inferencer is supplied, for the simulated model.
func WithRand(rnd *rand.Rand) Option {
	return func(e *Engine) { e.rnd = rnd }
}

// New creates a scoring engine bound to a history store.
func New(cfg domain.EngineConfig, store domain.HistoryStore, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg,
		store: store,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rnd == nil {
		e.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.infer == nil {
		e.infer = NewSimulatedInferencer(cfg, e.rnd)
	}
	return e
}

// Analyze produces a RiskAnalysis for one transaction under the given
// strategy. Well-formed input never fails scoring; the only returned
// errors are history store I/O failures.
func (e *Engine) Analyze(ctx context.Context, tx *domain.Transaction, strategy domain.Strategy) (*domain.RiskAnalysis, error) {
	unlock := e.locks.Lock(tx.UserID)
	defer unlock()

	start := time.Now()

	history, err := e.store.GetOrDefault(ctx, tx.UserID)
	if err != nil {
		return nil, err
	}

	ruleScore, flags := e.scoreRules(ctx, tx, history)

	mlScore, isFallback := 0.0, false
	if score, err := e.infer.Infer(ctx, tx, history); err != nil {
		// Models timeout; rules substitute for the unavailable score.
		isFallback = true
		mlScore = ruleScore
	} else {
		mlScore = score
	}

	finalScore := ruleScore
	if !isFallback {
		finalScore = ruleScore*strategy.RuleWeight + mlScore*strategy.MLWeight
	}

	decision := domain.DecisionApprove
	signal := ""
	switch {
	case finalScore >= e.cfg.BlockThreshold:
		decision = domain.DecisionBlock
	case finalScore >= e.cfg.ReviewThreshold:
		decision = domain.DecisionManualReview
		signal = e.pickSignal()
	}

	// Always update, regardless of decision.
	if err := e.store.Update(ctx, tx.UserID, tx, history); err != nil {
		return nil, err
	}

	return &domain.RiskAnalysis{
		ID:               uuid.New().String(),
		TransactionID:    tx.ID,
		UserID:           tx.UserID,
		Score:            int(math.Round(math.Min(finalScore, 100))),
		Decision:         decision,
		Flags:            flags,
		RuleOutput:       int(math.Round(ruleScore)),
		MLOutput:         int(math.Round(mlScore)),
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
		IsFallback:       isFallback,
		Timestamp:        time.Now().UnixMilli(),
		StrategyName:     strategy.Name,
		AmbiguitySignal:  signal,
	}, nil
}

// scoreRules runs the deterministic checks. Each check is independent and
// additive; the sum is unbounded before the final clamp.
func (e *Engine) scoreRules(ctx context.Context, tx *domain.Transaction, history *domain.UserHistory) (float64, []domain.RiskFlag) {
	score := 0.0
	flags := make([]domain.RiskFlag, 0, 4)

	distance := Haversine(
		history.LastLocation.Lat, history.LastLocation.Lng,
		tx.Location.Lat, tx.Location.Lng,
	)
	elapsedHours := float64(tx.Timestamp-history.LastLocation.Timestamp) / 3600000
	speed := distance / math.Max(elapsedHours, 0.01)

	if speed > e.cfg.ImpossibleSpeedKmh && distance > e.cfg.MinTravelDistanceKm {
		flags = append(flags, domain.FlagImpossibleTravel)
		score += e.cfg.ImpossibleTravelWeight
	}

	if e.velocityCount(ctx, tx.UserID, history) > e.cfg.VelocityThreshold {
		flags = append(flags, domain.FlagVelocitySpike)
		score += e.cfg.VelocitySpikeWeight
	}

	if !history.KnowsDevice(tx.Device.ID) {
		flags = append(flags, domain.FlagNewDevice)
		score += e.cfg.NewDeviceWeight
	}

	if tx.Amount > history.AvgTransactionValue*e.cfg.HighValueMultiplier {
		flags = append(flags, domain.FlagHighValue)
		score += e.cfg.HighValueWeight
	}

	if e.ext != nil && e.ext.RulesCount() > 0 {
		for _, res := range e.ext.EvaluateAll(ctx, e.ruleInput(tx, history)) {
			if res.Fired {
				score += res.Weight
				flags = append(flags, res.Flag)
			}
		}
	}

	return score, flags
}

// velocityCount resolves the activity counter consulted by the velocity
// spike check. History mode reproduces the reference ever-increasing
// counter; window mode counts within the configured sliding window,
// excluding the transaction being scored.
func (e *Engine) velocityCount(ctx context.Context, userID string, history *domain.UserHistory) int {
	if e.cfg.VelocityMode == domain.VelocityModeWindow && e.counter != nil {
		if n, err := e.counter(ctx, userID, e.cfg.VelocityWindow); err == nil {
			return int(n) - 1
		}
	}
	return history.RecentTransactionCount
}

func (e *Engine) ruleInput(tx *domain.Transaction, history *domain.UserHistory) *rules.EvaluateInput {
	return &rules.EvaluateInput{
		TxID:                tx.ID,
		UserID:              tx.UserID,
		Amount:              tx.Amount,
		Currency:            tx.Currency,
		Merchant:            tx.Merchant,
		City:                tx.Location.City,
		Country:             tx.Location.Country,
		DeviceID:            tx.Device.ID,
		DeviceOS:            tx.Device.OS,
		AvgTransactionValue: history.AvgTransactionValue,
		VelocityCount:       int64(history.RecentTransactionCount),
	}
}

func (e *Engine) pickSignal() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ambiguitySignals[e.rnd.Intn(len(ambiguitySignals))]
}
