package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/opensource-finance/merlin/internal/domain"
)

// ErrInferenceUnavailable indicates the model could not produce a score in
// time. The engine recovers by substituting the rule score; it is never
// surfaced to the caller.
var ErrInferenceUnavailable = errors.New("inference unavailable")

// Inferencer produces the secondary pattern-based score for a transaction.
// Implementations must return scores in [0, 100]. A real out-of-process
// model must impose its own deadline and return ErrInferenceUnavailable on
// expiry; the simulated model fails with a fixed small probability instead.
type Inferencer interface {
	Infer(ctx context.Context, tx *domain.Transaction, history *domain.UserHistory) (float64, error)
}

// SimulatedInferencer stands in for a learned model. It derives a score
// from merchant and geography signals plus bounded random jitter, and
// injects failures at the configured probability so the fallback path is
// exercised in normal operation.
type SimulatedInferencer struct {
	cfg    domain.EngineConfig
	cities map[string]struct{}

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulatedInferencer creates a simulated model. The rand source is
// injectable so tests can force both the success and fallback paths.
func NewSimulatedInferencer(cfg domain.EngineConfig, rnd *rand.Rand) *SimulatedInferencer {
	cities := make(map[string]struct{}, len(cfg.HighRiskCities))
	for _, c := range cfg.HighRiskCities {
		cities[c] = struct{}{}
	}
	return &SimulatedInferencer{
		cfg:    cfg,
		cities: cities,
		rnd:    rnd,
	}
}

// Infer computes the simulated ML score, clamped to 100.
func (s *SimulatedInferencer) Infer(ctx context.Context, tx *domain.Transaction, history *domain.UserHistory) (float64, error) {
	s.mu.Lock()
	fail := s.rnd.Float64() < s.cfg.FallbackProbability
	jitter := s.rnd.Float64() * s.cfg.MaxJitter
	s.mu.Unlock()

	if fail {
		return 0, ErrInferenceUnavailable
	}

	score := s.cfg.MLBaseScore
	if strings.Contains(strings.ToLower(tx.Merchant), "crypto") {
		score += s.cfg.CryptoMerchantBonus
	}
	if _, ok := s.cities[tx.Location.City]; ok {
		score += s.cfg.RiskyCityBonus
	}
	if tx.Amount > s.cfg.LargeAmountFloor {
		score += s.cfg.LargeAmountBonus
	}

	return math.Min(score+jitter, 100), nil
}
