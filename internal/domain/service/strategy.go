package service

import (
	"context"

	"IgniteX/internal/domain/models"
)

// Strategy is an opaque detector. Evaluate must honor ctx and return one vote
// for the window symbol; NEUTRAL means no opinion.
type Strategy interface {
	ID() string
	Evaluate(ctx context.Context, w models.TickWindow) (models.StrategyVote, error)
}

// RemoteScorer predicts a directional edge for a feature vector.
type RemoteScorer interface {
	Score(ctx context.Context, symbol string, features map[string]float64) (models.EdgeScore, error)
}
