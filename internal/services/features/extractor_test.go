package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogReturns(t *testing.T) {
	assert.Nil(t, LogReturns([]float64{100}))

	rets := LogReturns([]float64{100, 110, 0, 121})
	assert.Len(t, rets, 3)
	assert.InDelta(t, math.Log(1.1), rets[0], 1e-12)
	assert.Zero(t, rets[1], "non-positive price")
	assert.Zero(t, rets[2])
}

func TestMoments(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(xs), 1e-12)
	assert.InDelta(t, 2.13808993529939, StdDev(xs), 1e-9)
	assert.Zero(t, Mean(nil))
	assert.Zero(t, StdDev([]float64{3}))
}

func TestTailAndSMA(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, []float64{4, 5}, Tail(xs, 2))
	assert.Equal(t, xs, Tail(xs, 10))
	assert.Equal(t, xs, Tail(xs, 0))
	assert.InDelta(t, 4.0, SMA(xs, 3), 1e-12)
}

func TestMeanAbsMove(t *testing.T) {
	assert.InDelta(t, 1.5, MeanAbsMove([]float64{100, 101, 99}), 1e-12)
	assert.Zero(t, MeanAbsMove([]float64{100}))
}

func TestTrendStrength(t *testing.T) {
	assert.Zero(t, TrendStrength([]float64{100, 100, 100}))
	assert.Zero(t, TrendStrength([]float64{100}))
	assert.True(t, math.IsInf(TrendStrength([]float64{100, 101}), 1), "one return has no dispersion")

	trending := []float64{100, 100.5, 100.4, 101, 100.9, 101.6, 101.5, 102.2}
	choppy := []float64{100, 100.5, 100.4, 100.1, 100.6, 100.2, 99.9, 100.3}
	assert.Greater(t, TrendStrength(trending), TrendStrength(choppy))
}

func TestVector(t *testing.T) {
	v := Vector([]float64{100, 101}, []float64{3, 7})
	assert.Zero(t, v["trend"], "infinite trend is not sent")
	assert.Equal(t, 7.0, v["vol_last"])
	assert.Equal(t, 5.0, v["vol_mean"])
	assert.Equal(t, 2.0, v["n_samples"])

	empty := Vector(nil, nil)
	assert.Zero(t, empty["vol_last"])
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(140, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}
