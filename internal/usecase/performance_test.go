package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IgniteX/internal/domain/models"
	"IgniteX/pkg/logger"
)

func resolvedSignal(id string) models.ApprovedSignal {
	return models.ApprovedSignal{
		ID:        id,
		Direction: models.Long,
		Votes: []models.StrategyVote{
			{StrategyID: "a", Direction: models.Long},
			{StrategyID: "b", Direction: models.Long},
			{StrategyID: "c", Direction: models.Short},
		},
	}
}

func outcome(id string, r models.Result, pct float64, at time.Time) models.Outcome {
	return models.Outcome{SignalID: id, Result: r, RealizedPct: pct, ResolvedAt: at}
}

func TestPerformanceSnapshot(t *testing.T) {
	p := NewPerformanceAggregator(PerformanceConfig{}, nil)
	ctx := context.Background()
	apr := time.Date(2024, 4, 28, 0, 0, 0, 0, time.UTC)
	may := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	p.OnOutcome(ctx, resolvedSignal("1"), outcome("1", models.ResultWin, 4, apr))
	p.OnOutcome(ctx, resolvedSignal("2"), outcome("2", models.ResultLoss, -2, may))
	p.OnOutcome(ctx, resolvedSignal("3"), outcome("3", models.ResultExpired, 0.5, may))
	p.OnOutcome(ctx, resolvedSignal("4"), outcome("4", models.ResultWin, 3, may))
	p.RecordApproval()
	p.RecordRejection(models.RejectLiquidity)
	p.RecordRejection(models.RejectLiquidity)

	s := p.Snapshot()
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.Expired)
	assert.Equal(t, 4, s.Completed)
	assert.InDelta(t, 5.5, s.TotalReturn, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.WinRate, 1e-9)
	assert.InDelta(t, 1.375, s.AvgReturnPerTrade, 1e-9)
	assert.InDelta(t, 4.0, s.BestTrade, 1e-9)
	assert.InDelta(t, -2.0, s.WorstTrade, 1e-9)
	assert.InDelta(t, 2.0/3.0*3.5-2.0/3.0, s.Expectancy, 1e-9)
	assert.InDelta(t, 2.0, s.MaxDrawdown, 1e-9)
	assert.Greater(t, s.SharpeLike, 0.0)
	assert.Equal(t, 1, s.Approved)
	assert.Equal(t, map[string]int{string(models.RejectLiquidity): 2}, s.Rejections)

	require.Len(t, s.Monthly, 2)
	assert.Equal(t, "2024-04", s.Monthly[0].Month)
	assert.Equal(t, 1, s.Monthly[0].Wins)
	assert.Equal(t, "2024-05", s.Monthly[1].Month)
	assert.Equal(t, 1, s.Monthly[1].Expired)
	assert.InDelta(t, 1.5, s.Monthly[1].TotalReturn, 1e-9)
	assert.InDelta(t, 0.5, s.Monthly[1].WinRate, 1e-9)
}

func TestPerformanceEmptySnapshot(t *testing.T) {
	s := NewPerformanceAggregator(PerformanceConfig{}, nil).Snapshot()
	assert.Zero(t, s.Completed)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.SharpeLike)
	assert.Empty(t, s.Monthly)
}

func TestPerformanceFeedsStrategyWeights(t *testing.T) {
	health := NewHealthRegistry([]string{"a", "b", "c"}, 3, nil, logger.Nop(), nil)
	p := NewPerformanceAggregator(PerformanceConfig{
		RollingWindow: 3,
		MinSamples:    2,
		MinWeight:     0.25,
		WinRateFloor:  0.35,
		WinRateCeil:   0.65,
	}, health)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	p.OnOutcome(ctx, resolvedSignal("1"), outcome("1", models.ResultWin, 2, at))
	assert.Equal(t, 1.0, health.Weight("a"), "below min samples keeps the default")

	p.OnOutcome(ctx, resolvedSignal("2"), outcome("2", models.ResultWin, 2, at))
	h, _ := health.Get("a")
	assert.Equal(t, 1.0, h.RollingWinRate)
	assert.Equal(t, 1.0, h.Weight)

	p.OnOutcome(ctx, resolvedSignal("3"), outcome("3", models.ResultExpired, 0, at))
	p.OnOutcome(ctx, resolvedSignal("4"), outcome("4", models.ResultLoss, -1, at))
	p.OnOutcome(ctx, resolvedSignal("5"), outcome("5", models.ResultLoss, -1, at))
	h, _ = health.Get("a")
	assert.InDelta(t, 1.0/3.0, h.RollingWinRate, 1e-9)
	assert.InDelta(t, 0.25, h.Weight, 1e-9)

	c, _ := health.Get("c")
	assert.Zero(t, c.RollingWinRate, "opposing votes are not credited")
	assert.Equal(t, 1.0, c.Weight)
}
