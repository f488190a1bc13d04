package strategies

import (
	"context"
	"fmt"
	"math"

	"IgniteX/internal/domain/models"
	domsvc "IgniteX/internal/domain/service"
	"IgniteX/internal/services/features"
)

// Remote asks an external model for the probability of an up move.
type Remote struct {
	scorer   domsvc.RemoteScorer
	deadZone float64
}

// NewRemote wraps scorer. Probabilities within 0.05 of a coin flip vote NEUTRAL.
func NewRemote(scorer domsvc.RemoteScorer) *Remote {
	return &Remote{scorer: scorer, deadZone: 0.05}
}

func (s *Remote) ID() string { return "remote" }

func (s *Remote) Evaluate(ctx context.Context, w models.TickWindow) (models.StrategyVote, error) {
	score, err := s.scorer.Score(ctx, w.Symbol, features.Vector(w.Prices(), w.Volumes()))
	if err != nil {
		return models.StrategyVote{}, fmt.Errorf("remote score %s: %w", w.Symbol, err)
	}
	edge := score.ProbaUp - 0.5
	if math.Abs(edge) <= s.deadZone {
		return vote(s.ID(), w, models.Neutral, 0, ""), nil
	}
	conf := 100 * math.Abs(edge) * 2
	if score.Confidence > 0 {
		conf = conf*0.5 + features.Clamp(score.Confidence, 0, 1)*50
	}
	tag := "remote"
	if score.Regime != "" {
		tag = "remote:" + score.Regime
	}
	return vote(s.ID(), w, directionOf(edge), conf, tag), nil
}
