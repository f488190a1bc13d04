package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IgniteX/internal/domain/models"
	"IgniteX/pkg/cache"
	"IgniteX/pkg/logger"
)

type fakeRegistry struct {
	mu      sync.Mutex
	signals []models.ApprovedSignal
	err     error
}

func (r *fakeRegistry) HasOpen(symbol string, dir models.Direction, since time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.signals {
		if s.Symbol == symbol && s.Direction == dir && s.Status.Open() && !s.CreatedAt.Before(since) {
			return true
		}
	}
	return false
}

func (r *fakeRegistry) Register(_ context.Context, s models.ApprovedSignal) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.signals = append(r.signals, s)
	r.mu.Unlock()
	return nil
}

func (r *fakeRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

type tierFunc func(float64) models.Tier

func (f tierFunc) AssignTier(q float64) models.Tier { return f(q) }

func testGateConfig() GateConfig {
	return GateConfig{
		MinConfidence:  50,
		MinAgreeing:    2,
		MinRiskReward:  1.5,
		MinVolume:      10,
		SymbolVolume:   map[string]float64{"ETHUSDT": 5000},
		MinDataQuality: 60,
		MinSources:     1,
		Cooldown:       30 * time.Minute,
		SignalTTL:      time.Hour,
		Weights:        CheckWeights{1, 1, 1, 1, 1, 1},
	}
}

func goodCandidate(at time.Time) models.CandidateSignal {
	return models.CandidateSignal{
		Symbol:     "BTCUSDT",
		Direction:  models.Long,
		EntryPrice: 100,
		EntryRange: models.PriceRange{Min: 99.75, Max: 100.25},
		StopLoss:   99,
		Targets:    []float64{102, 103},
		Votes: []models.StrategyVote{
			{StrategyID: "a", Direction: models.Long, Confidence: 75},
			{StrategyID: "b", Direction: models.Long, Confidence: 65},
			{StrategyID: "c", Direction: models.Short, Confidence: 90},
		},
		Consensus:     models.Consensus{LongVotes: 2, ShortVotes: 1},
		RawConfidence: 70,
		DataQuality:   80,
		SourcesUsed:   2,
		RecentVolume:  1000,
		PatternTag:    "breakout",
		CreatedAt:     at,
	}
}

func TestQualityGateApproves(t *testing.T) {
	clk := newFakeClock()
	reg := &fakeRegistry{}
	m := newRecordingMetrics()
	tiers := tierFunc(func(q float64) models.Tier {
		if q >= 75 {
			return models.TierFree
		}
		return models.TierPro
	})
	g := NewQualityGate(testGateConfig(), reg, tiers, logger.Nop(), m, WithGateClock(clk.Now))

	res, err := g.Evaluate(context.Background(), goodCandidate(clk.Now()))
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.NotNil(t, res.Approved)

	s := res.Approved
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, models.StatusPendingDelivery, s.Status)
	assert.Equal(t, models.TierFree, s.Tier)
	assert.InDelta(t, 80.56, s.QualityScore, 1e-9)
	assert.InDelta(t, 2.0, s.RiskRewardRatio, 1e-9)
	assert.InDelta(t, 2.0, s.ExpectedProfitPct, 1e-9)
	assert.Equal(t, "a", s.WinningStrategyID)
	assert.Equal(t, clk.Now().Add(time.Hour), s.ExpiresAt)
	assert.Equal(t, 100.0, res.Scores.Uniqueness)
	assert.Equal(t, 1, m.decision("approved"))
	assert.Equal(t, 1, reg.count())
}

func TestQualityGateRejectsAtFirstFailedCheck(t *testing.T) {
	clk := newFakeClock()
	cases := []struct {
		name   string
		mutate func(*models.CandidateSignal)
		stage  int
		reason models.RejectionReason
	}{
		{"weak pattern", func(c *models.CandidateSignal) { c.RawConfidence = 50; c.DataQuality = 0 }, 1, models.RejectPatternWeak},
		{"lone strategy", func(c *models.CandidateSignal) { c.Votes = c.Votes[:1] }, 2, models.RejectLowConsensus},
		{"poor risk reward", func(c *models.CandidateSignal) { c.Targets = []float64{100.5, 110} }, 3, models.RejectRiskReward},
		{"symbol volume floor", func(c *models.CandidateSignal) { c.Symbol = "ETHUSDT" }, 4, models.RejectLiquidity},
		{"default volume floor", func(c *models.CandidateSignal) { c.RecentVolume = 10 }, 4, models.RejectLiquidity},
		{"low data quality", func(c *models.CandidateSignal) { c.DataQuality = 59 }, 5, models.RejectDataQuality},
		{"no sources", func(c *models.CandidateSignal) { c.SourcesUsed = 0 }, 5, models.RejectDataQuality},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := &fakeRegistry{}
			g := NewQualityGate(testGateConfig(), reg, nil, logger.Nop(), nil, WithGateClock(clk.Now))
			c := goodCandidate(clk.Now())
			tc.mutate(&c)

			res, err := g.Evaluate(context.Background(), c)
			require.NoError(t, err)
			require.Nil(t, res.Approved)
			require.NotNil(t, res.Rejection)
			assert.Equal(t, tc.stage, res.Rejection.Stage)
			assert.Equal(t, tc.reason, res.Rejection.Reason)
			assert.NotEmpty(t, res.Rejection.Detail)
			assert.Zero(t, reg.count())
		})
	}
}

func TestQualityGateRejectsDuplicateWithinCooldown(t *testing.T) {
	clk := newFakeClock()
	reg := &fakeRegistry{}
	g := NewQualityGate(testGateConfig(), reg, nil, logger.Nop(), nil, WithGateClock(clk.Now))
	ctx := context.Background()

	first, err := g.Evaluate(ctx, goodCandidate(clk.Now()))
	require.NoError(t, err)
	require.NotNil(t, first.Approved)

	clk.Advance(10 * time.Minute)
	dup, err := g.Evaluate(ctx, goodCandidate(clk.Now()))
	require.NoError(t, err)
	require.NotNil(t, dup.Rejection)
	assert.Equal(t, 6, dup.Rejection.Stage)
	assert.Equal(t, models.RejectDuplicate, dup.Rejection.Reason)

	short := goodCandidate(clk.Now())
	short.Direction = models.Short
	short.StopLoss, short.Targets = 101, []float64{98}
	short.Votes = []models.StrategyVote{
		{StrategyID: "a", Direction: models.Short, Confidence: 70},
		{StrategyID: "b", Direction: models.Short, Confidence: 70},
	}
	other, err := g.Evaluate(ctx, short)
	require.NoError(t, err)
	assert.NotNil(t, other.Approved, "the opposite direction is a different idea")

	clk.Advance(25 * time.Minute)
	later, err := g.Evaluate(ctx, goodCandidate(clk.Now()))
	require.NoError(t, err)
	assert.NotNil(t, later.Approved, "cooldown elapsed")
}

func TestQualityGatePromotesOnceUnderContention(t *testing.T) {
	clk := newFakeClock()
	reg := &fakeRegistry{}
	locker := cache.NewMemoryCache()
	defer locker.Close()
	g := NewQualityGate(testGateConfig(), reg, nil, logger.Nop(), nil,
		WithGateClock(clk.Now), WithDistributedLock(locker))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Evaluate(context.Background(), goodCandidate(clk.Now()))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, reg.count())
}

func TestQualityGateSurfacesRegistryErrors(t *testing.T) {
	clk := newFakeClock()
	reg := &fakeRegistry{err: errors.New("store down")}
	g := NewQualityGate(testGateConfig(), reg, nil, logger.Nop(), nil, WithGateClock(clk.Now))

	res, err := g.Evaluate(context.Background(), goodCandidate(clk.Now()))
	require.Error(t, err)
	assert.Nil(t, res.Approved)
	assert.Nil(t, res.Rejection)
}
