package usecase

import (
	"context"
	"sync"

	"IgniteX/internal/domain/models"
)

type fakeStrategy struct {
	id string
	fn func(ctx context.Context, w models.TickWindow) (models.StrategyVote, error)
}

func (s *fakeStrategy) ID() string { return s.id }

func (s *fakeStrategy) Evaluate(ctx context.Context, w models.TickWindow) (models.StrategyVote, error) {
	return s.fn(ctx, w)
}

func fixedVote(id string, dir models.Direction, conf float64) *fakeStrategy {
	return &fakeStrategy{id: id, fn: func(context.Context, models.TickWindow) (models.StrategyVote, error) {
		return models.StrategyVote{Direction: dir, Confidence: conf, PatternTag: id + "-tag"}, nil
	}}
}

type recordingMetrics struct {
	nopMetrics
	mu        sync.Mutex
	decisions map[string]int
	outcomes  map[string]int
	delivered map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{decisions: map[string]int{}, outcomes: map[string]int{}, delivered: map[string]int{}}
}

func (m *recordingMetrics) RecordGateDecision(d string) {
	m.mu.Lock()
	m.decisions[d]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordOutcome(r string) {
	m.mu.Lock()
	m.outcomes[r]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordDelivery(tier, mode string) {
	m.mu.Lock()
	m.delivered[tier+"/"+mode]++
	m.mu.Unlock()
}

func (m *recordingMetrics) decision(d string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decisions[d]
}
