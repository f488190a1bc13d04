package strategies

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IgniteX/internal/domain/models"
	"IgniteX/pkg/config"
)

func window(prices []float64, volumes []float64) models.TickWindow {
	w := models.TickWindow{Symbol: "BTCUSDT"}
	for i, p := range prices {
		v := 1.0
		if volumes != nil {
			v = volumes[i]
		}
		w.Ticks = append(w.Ticks, models.Tick{Symbol: "BTCUSDT", Price: p, Volume: v, TimestampMs: int64(1714564800000 + i*1000), SourceID: "a"})
	}
	return w
}

func repeat(v float64, n int, tail ...float64) []float64 {
	out := make([]float64, 0, n+len(tail))
	for i := 0; i < n; i++ {
		out = append(out, v)
	}
	return append(out, tail...)
}

func alternating(a, b float64, n int, tail ...float64) []float64 {
	out := make([]float64, 0, n+len(tail))
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out = append(out, a)
		} else {
			out = append(out, b)
		}
	}
	return append(out, tail...)
}

func TestMomentum(t *testing.T) {
	s := &Momentum{Lookback: 10, MinMovePct: 0.5}
	ctx := context.Background()

	v, err := s.Evaluate(ctx, window(repeat(100, 9, 101), nil))
	require.NoError(t, err)
	assert.Equal(t, models.Long, v.Direction)
	assert.InDelta(t, 75, v.Confidence, 1e-9)
	assert.Equal(t, "momentum", v.PatternTag)
	assert.Equal(t, "BTCUSDT", v.Symbol)

	v, _ = s.Evaluate(ctx, window(repeat(100, 9, 99), nil))
	assert.Equal(t, models.Short, v.Direction)

	v, _ = s.Evaluate(ctx, window(repeat(100, 9, 100.2), nil))
	assert.Equal(t, models.Neutral, v.Direction)
	assert.Zero(t, v.Confidence)
	assert.Empty(t, v.PatternTag)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Evaluate(cancelled, window(repeat(100, 9, 101), nil))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMeanReversion(t *testing.T) {
	s := &MeanReversion{Lookback: 20, ZEntry: 2}
	ctx := context.Background()

	v, err := s.Evaluate(ctx, window(alternating(100, 101, 19, 103), nil))
	require.NoError(t, err)
	assert.Equal(t, models.Short, v.Direction, "fades a stretch up")
	assert.InDelta(t, 100, v.Confidence, 1e-9)

	v, _ = s.Evaluate(ctx, window(alternating(100, 101, 19, 98), nil))
	assert.Equal(t, models.Long, v.Direction)

	v, _ = s.Evaluate(ctx, window(alternating(100, 101, 19, 101), nil))
	assert.Equal(t, models.Neutral, v.Direction)

	v, _ = s.Evaluate(ctx, window(repeat(100, 19, 103), nil))
	assert.Equal(t, models.Neutral, v.Direction, "no dispersion")
}

func TestVolumeBreakout(t *testing.T) {
	s := &VolumeBreakout{Lookback: 10, Multiplier: 3}
	ctx := context.Background()

	v, err := s.Evaluate(ctx, window(repeat(100, 9, 100.5), repeat(1, 9, 10)))
	require.NoError(t, err)
	assert.Equal(t, models.Long, v.Direction)
	assert.InDelta(t, 100, v.Confidence, 1e-9)

	v, _ = s.Evaluate(ctx, window(repeat(100, 9, 100.5), repeat(1, 9, 2)))
	assert.Equal(t, models.Neutral, v.Direction, "no spike")

	v, _ = s.Evaluate(ctx, window(repeat(100, 10), repeat(1, 9, 10)))
	assert.Equal(t, models.Neutral, v.Direction, "spike without a move")
}

func TestMACrossover(t *testing.T) {
	s := &MACrossover{Fast: 3, Slow: 10}
	ctx := context.Background()
	rising := make([]float64, 10)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}

	v, err := s.Evaluate(ctx, window(rising, nil))
	require.NoError(t, err)
	assert.Equal(t, models.Long, v.Direction)
	assert.InDelta(t, 100, v.Confidence, 1e-9)

	v, _ = s.Evaluate(ctx, window(rising[:5], nil))
	assert.Equal(t, models.Neutral, v.Direction, "shorter than the slow average")
}

func TestVolatilityBreakout(t *testing.T) {
	s := &VolatilityBreakout{Lookback: 10, K: 2}
	ctx := context.Background()

	v, err := s.Evaluate(ctx, window(alternating(100, 100.1, 9, 99), nil))
	require.NoError(t, err)
	assert.Equal(t, models.Short, v.Direction)
	assert.InDelta(t, 100, v.Confidence, 1e-6)

	v, _ = s.Evaluate(ctx, window(alternating(100, 100.1, 9, 100.1), nil))
	assert.Equal(t, models.Neutral, v.Direction)
}

type fakeScorer struct {
	score models.EdgeScore
	err   error
	seen  map[string]float64
}

func (f *fakeScorer) Score(_ context.Context, _ string, features map[string]float64) (models.EdgeScore, error) {
	f.seen = features
	return f.score, f.err
}

func TestRemote(t *testing.T) {
	ctx := context.Background()
	w := window(repeat(100, 9, 101), nil)

	sc := &fakeScorer{score: models.EdgeScore{ProbaUp: 0.8}}
	v, err := NewRemote(sc).Evaluate(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, models.Long, v.Direction)
	assert.InDelta(t, 60, v.Confidence, 1e-9)
	assert.Equal(t, "remote", v.PatternTag)
	assert.Contains(t, sc.seen, "trend")

	sc.score = models.EdgeScore{ProbaUp: 0.2, Confidence: 0.9, Regime: "trend"}
	v, _ = NewRemote(sc).Evaluate(ctx, w)
	assert.Equal(t, models.Short, v.Direction)
	assert.InDelta(t, 75, v.Confidence, 1e-9)
	assert.Equal(t, "remote:trend", v.PatternTag)

	sc.score = models.EdgeScore{ProbaUp: 0.53}
	v, _ = NewRemote(sc).Evaluate(ctx, w)
	assert.Equal(t, models.Neutral, v.Direction)

	sc.err = errors.New("timeout")
	_, err = NewRemote(sc).Evaluate(ctx, w)
	assert.ErrorContains(t, err, "remote score BTCUSDT")
}

func TestBuild(t *testing.T) {
	cfg, err := config.Parse([]byte("symbols: [BTCUSDT]\n"))
	require.NoError(t, err)

	strats, err := Build(cfg, nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(strats))
	for _, s := range strats {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"momentum", "mean_reversion", "volume_breakout", "ma_crossover", "volatility_breakout"}, ids)

	cfg.Strategies.Enabled = []string{"momentum", "remote"}
	_, err = Build(cfg, nil)
	assert.ErrorContains(t, err, "without a scorer")

	strats, err = Build(cfg, &fakeScorer{})
	require.NoError(t, err)
	assert.Equal(t, "remote", strats[1].ID())

	cfg.Strategies.Enabled = []string{"momentum", "momentum"}
	_, err = Build(cfg, nil)
	assert.ErrorContains(t, err, "listed twice")

	cfg.Strategies.Enabled = []string{"astrology"}
	_, err = Build(cfg, nil)
	assert.ErrorContains(t, err, "unknown strategy")
}
