package strategies

import (
	"context"
	"math"
	"time"

	"IgniteX/internal/domain/models"
	"IgniteX/internal/services/features"
)

func vote(id string, w models.TickWindow, dir models.Direction, conf float64, tag string) models.StrategyVote {
	if dir == models.Neutral {
		conf = 0
		tag = ""
	}
	return models.StrategyVote{
		StrategyID: id,
		Symbol:     w.Symbol,
		Direction:  dir,
		Confidence: features.Clamp(conf, 0, 100),
		PatternTag: tag,
		ComputedAt: time.Now(),
	}
}

func directionOf(x float64) models.Direction {
	switch {
	case x > 0:
		return models.Long
	case x < 0:
		return models.Short
	default:
		return models.Neutral
	}
}

// Momentum votes with the net move over the lookback when it exceeds MinMovePct.
type Momentum struct {
	Lookback   int
	MinMovePct float64
}

func (s *Momentum) ID() string { return "momentum" }

func (s *Momentum) Evaluate(ctx context.Context, w models.TickWindow) (models.StrategyVote, error) {
	if err := ctx.Err(); err != nil {
		return models.StrategyVote{}, err
	}
	prices := features.Tail(w.Prices(), s.Lookback)
	if len(prices) < 2 || prices[0] <= 0 {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	move := (prices[len(prices)-1] - prices[0]) / prices[0] * 100
	if math.Abs(move) < s.MinMovePct {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	conf := 50 + 50*math.Min(math.Abs(move)/(4*s.MinMovePct), 1)
	return vote(s.ID(), w, directionOf(move), conf, "momentum"), nil
}

// MeanReversion fades a stretch of the last price beyond ZEntry standard deviations.
type MeanReversion struct {
	Lookback int
	ZEntry   float64
}

func (s *MeanReversion) ID() string { return "mean_reversion" }

func (s *MeanReversion) Evaluate(ctx context.Context, w models.TickWindow) (models.StrategyVote, error) {
	if err := ctx.Err(); err != nil {
		return models.StrategyVote{}, err
	}
	prices := features.Tail(w.Prices(), s.Lookback)
	if len(prices) < 3 {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	hist := prices[:len(prices)-1]
	sd := features.StdDev(hist)
	if sd == 0 {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	z := (prices[len(prices)-1] - features.Mean(hist)) / sd
	if math.Abs(z) < s.ZEntry {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	conf := 50 + 50*math.Min((math.Abs(z)-s.ZEntry)/s.ZEntry, 1)
	return vote(s.ID(), w, directionOf(-z), conf, "mean_reversion"), nil
}

// VolumeBreakout follows the last move when the latest volume spikes above Multiplier x average.
type VolumeBreakout struct {
	Lookback   int
	Multiplier float64
}

func (s *VolumeBreakout) ID() string { return "volume_breakout" }

func (s *VolumeBreakout) Evaluate(ctx context.Context, w models.TickWindow) (models.StrategyVote, error) {
	if err := ctx.Err(); err != nil {
		return models.StrategyVote{}, err
	}
	vols := features.Tail(w.Volumes(), s.Lookback)
	prices := features.Tail(w.Prices(), s.Lookback)
	if len(vols) < 3 {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	avg := features.Mean(vols[:len(vols)-1])
	last := vols[len(vols)-1]
	if avg <= 0 || last < s.Multiplier*avg {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	move := prices[len(prices)-1] - prices[len(prices)-2]
	if move == 0 {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	conf := 55 + 45*math.Min((last/avg-s.Multiplier)/s.Multiplier, 1)
	return vote(s.ID(), w, directionOf(move), conf, "volume_breakout"), nil
}

// MACrossover votes on the side of the fast average relative to the slow one.
type MACrossover struct {
	Fast int
	Slow int
}

func (s *MACrossover) ID() string { return "ma_crossover" }

func (s *MACrossover) Evaluate(ctx context.Context, w models.TickWindow) (models.StrategyVote, error) {
	if err := ctx.Err(); err != nil {
		return models.StrategyVote{}, err
	}
	prices := w.Prices()
	if len(prices) < s.Slow {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	fast := features.SMA(prices, s.Fast)
	slow := features.SMA(prices, s.Slow)
	if slow <= 0 {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	spread := (fast - slow) / slow * 100
	if math.Abs(spread) < 0.05 {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	conf := 45 + 55*math.Min(math.Abs(spread)/1.0, 1)
	return vote(s.ID(), w, directionOf(spread), conf, "ma_crossover"), nil
}

// VolatilityBreakout follows a last move larger than K times the typical tick move.
type VolatilityBreakout struct {
	Lookback int
	K        float64
}

func (s *VolatilityBreakout) ID() string { return "volatility_breakout" }

func (s *VolatilityBreakout) Evaluate(ctx context.Context, w models.TickWindow) (models.StrategyVote, error) {
	if err := ctx.Err(); err != nil {
		return models.StrategyVote{}, err
	}
	prices := features.Tail(w.Prices(), s.Lookback)
	if len(prices) < 3 {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	typical := features.MeanAbsMove(prices[:len(prices)-1])
	move := prices[len(prices)-1] - prices[len(prices)-2]
	if typical == 0 || math.Abs(move) < s.K*typical {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	conf := 50 + 50*math.Min((math.Abs(move)/typical-s.K)/s.K, 1)
	return vote(s.ID(), w, directionOf(move), conf, "volatility_breakout"), nil
}
