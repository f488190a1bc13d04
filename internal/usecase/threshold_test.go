package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IgniteX/internal/domain/models"
)

func newTestThreshold(clk *fakeClock) *AdaptiveThreshold {
	return NewAdaptiveThreshold(ThresholdConfig{
		Initial:        1,
		Min:            0.25,
		Max:            4,
		Step:           2,
		TargetInterval: time.Minute,
		Tolerance:      0.5,
		MaxSilence:     10 * time.Minute,
	}, nil, clk.Now)
}

func TestThresholdAllow(t *testing.T) {
	clk := newFakeClock()
	th := newTestThreshold(clk)

	assert.True(t, th.Allow("BTCUSDT", 1))
	assert.False(t, th.Allow("BTCUSDT", 0.5))
	assert.Equal(t, 1.0, th.Value("ETHUSDT"), "unknown symbols report the initial value")
}

func TestThresholdSilentSymbolEventuallyPasses(t *testing.T) {
	clk := newFakeClock()
	th := newTestThreshold(clk)

	assert.False(t, th.Allow("BTCUSDT", 0.1))
	clk.Advance(9 * time.Minute)
	assert.False(t, th.Allow("BTCUSDT", 0.1))
	clk.Advance(time.Minute)
	assert.True(t, th.Allow("BTCUSDT", 0.1))
	assert.False(t, th.Allow("BTCUSDT", 0.1), "a forced pass resets the silence clock")
}

func TestThresholdRecalibrateTracksTargetRate(t *testing.T) {
	clk := newFakeClock()
	th := newTestThreshold(clk)

	for i := 0; i < 10; i++ {
		require.True(t, th.Allow("BTCUSDT", 3))
	}
	clk.Advance(time.Minute)
	th.Recalibrate()
	assert.Equal(t, 2.0, th.Value("BTCUSDT"), "too many passes tighten")

	clk.Advance(2 * time.Minute)
	th.Recalibrate()
	assert.Equal(t, 1.0, th.Value("BTCUSDT"), "no passes loosen")

	require.True(t, th.Allow("BTCUSDT", 1))
	clk.Advance(time.Minute)
	th.Recalibrate()
	assert.Equal(t, 1.0, th.Value("BTCUSDT"), "on target stays put")
}

func TestThresholdStaysWithinBounds(t *testing.T) {
	clk := newFakeClock()
	th := newTestThreshold(clk)
	th.Allow("BTCUSDT", 0)

	for i := 0; i < 5; i++ {
		clk.Advance(5 * time.Minute)
		th.Recalibrate()
	}
	assert.Equal(t, 0.25, th.Value("BTCUSDT"))

	for i := 0; i < 5; i++ {
		for j := 0; j < 20; j++ {
			th.Allow("BTCUSDT", 100)
		}
		clk.Advance(time.Minute)
		th.Recalibrate()
	}
	assert.Equal(t, 4.0, th.Value("BTCUSDT"))
}

func TestLevelPlannerLong(t *testing.T) {
	p := LevelPlanner{StopMultiplier: 2, MinRiskPct: 0.1, MaxRiskPct: 10, TargetMultiples: []float64{1, 2}}
	lv, err := p.Plan(models.Long, []float64{100, 101, 100, 101})
	require.NoError(t, err)

	assert.Equal(t, 101.0, lv.Entry)
	assert.InDelta(t, 99.0, lv.StopLoss, 1e-9)
	assert.InDeltaSlice(t, []float64{103, 105}, lv.Targets, 1e-9)
	assert.InDelta(t, 100.5, lv.EntryRange.Min, 1e-9)
	assert.InDelta(t, 101.5, lv.EntryRange.Max, 1e-9)
}

func TestLevelPlannerShortClampsRisk(t *testing.T) {
	p := LevelPlanner{StopMultiplier: 3, MinRiskPct: 1, MaxRiskPct: 5, TargetMultiples: []float64{2}}
	lv, err := p.Plan(models.Short, []float64{100, 100, 100})
	require.NoError(t, err)

	assert.InDelta(t, 101.0, lv.StopLoss, 1e-9, "flat prices use the minimum risk")
	assert.InDelta(t, 98.0, lv.Targets[0], 1e-9)
}

func TestLevelPlannerRejectsBadInput(t *testing.T) {
	p := LevelPlanner{StopMultiplier: 3, MinRiskPct: 1, MaxRiskPct: 5}
	_, err := p.Plan(models.Neutral, []float64{100})
	assert.Error(t, err)
	_, err = p.Plan(models.Long, nil)
	assert.Error(t, err)
}

func TestRiskReward(t *testing.T) {
	assert.InDelta(t, 2.0, RiskReward(models.Long, 100, 99, 102), 1e-9)
	assert.InDelta(t, 3.0, RiskReward(models.Short, 100, 101, 97), 1e-9)
	assert.Zero(t, RiskReward(models.Long, 100, 101, 102), "stop on the wrong side has no risk")
	assert.Zero(t, RiskReward(models.Neutral, 100, 99, 102))
}
