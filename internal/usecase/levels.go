package usecase

import (
	"fmt"

	"IgniteX/internal/domain/models"
	"IgniteX/internal/services/features"
)

// LevelPlanner derives entry, stop and targets from recent tick noise.
type LevelPlanner struct {
	StopMultiplier  float64
	MinRiskPct      float64
	MaxRiskPct      float64
	TargetMultiples []float64
}

// Levels is the trade plan attached to a candidate.
type Levels struct {
	Entry      float64
	EntryRange models.PriceRange
	StopLoss   float64
	Targets    []float64
}

// Plan uses the last price as entry. Risk is StopMultiplier times the mean
// absolute tick move, clamped to [MinRiskPct, MaxRiskPct] of entry.
func (p LevelPlanner) Plan(dir models.Direction, prices []float64) (Levels, error) {
	if dir != models.Long && dir != models.Short {
		return Levels{}, fmt.Errorf("cannot plan levels for direction %q", dir)
	}
	if len(prices) == 0 || prices[len(prices)-1] <= 0 {
		return Levels{}, fmt.Errorf("no price to plan from")
	}
	entry := prices[len(prices)-1]
	risk := features.Clamp(
		p.StopMultiplier*features.MeanAbsMove(prices),
		entry*p.MinRiskPct/100,
		entry*p.MaxRiskPct/100,
	)
	sign := dir.Sign()
	lv := Levels{
		Entry:      entry,
		EntryRange: models.PriceRange{Min: entry - risk/4, Max: entry + risk/4},
		StopLoss:   entry - sign*risk,
		Targets:    make([]float64, 0, len(p.TargetMultiples)),
	}
	for _, m := range p.TargetMultiples {
		lv.Targets = append(lv.Targets, entry+sign*risk*m)
	}
	return lv, nil
}

// RiskReward is the direction-adjusted reward to the nearest target over the
// risk to the stop. A zero or negative risk yields 0.
func RiskReward(dir models.Direction, entry, stop, target float64) float64 {
	sign := dir.Sign()
	risk := sign * (entry - stop)
	reward := sign * (target - entry)
	if risk <= 0 || sign == 0 {
		return 0
	}
	return reward / risk
}
