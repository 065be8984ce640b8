// Package strategy supplies the active blending strategy.
package strategy

import (
	"fmt"
	"sync"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Provider rotates through a fixed strategy catalog: every rotationEvery
// recorded analyses the next strategy becomes current. Rotation policy is
// orchestration state; the engine only sees the Strategy value at call time.
type Provider struct {
	mu            sync.Mutex
	strategies    []domain.Strategy
	idx           int
	processed     int
	rotationEvery int
}

// NewProvider creates a provider over the given catalog.
func NewProvider(strategies []domain.Strategy, rotationEvery int) (*Provider, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("at least one strategy is required")
	}
	if rotationEvery <= 0 {
		rotationEvery = 100
	}
	return &Provider{
		strategies:    strategies,
		rotationEvery: rotationEvery,
	}, nil
}

// Current returns the active strategy without advancing rotation.
func (p *Provider) Current() domain.Strategy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strategies[p.idx]
}

// Next returns the active strategy and records one analysis against the
// rotation counter.
func (p *Provider) Next() domain.Strategy {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.strategies[p.idx]
	p.processed++
	if p.processed%p.rotationEvery == 0 {
		p.idx = (p.idx + 1) % len(p.strategies)
	}
	return s
}

// List returns the full catalog.
func (p *Provider) List() []domain.Strategy {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Strategy, len(p.strategies))
	copy(out, p.strategies)
	return out
}

// Processed returns the number of analyses recorded.
func (p *Provider) Processed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}
