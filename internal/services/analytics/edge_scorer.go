package analytics

import (
	"context"
	"fmt"

	"IgniteX/internal/domain/models"
	domsvc "IgniteX/internal/domain/service"
)

type HTTPEdgeScorer struct{ base *HTTPServiceBase }

func NewHTTPEdgeScorer(base *HTTPServiceBase) *HTTPEdgeScorer { return &HTTPEdgeScorer{base: base} }

type edgeReq struct {
	Symbol   string             `json:"symbol"`
	Features map[string]float64 `json:"features"`
}

type edgeResp struct {
	ProbaUp    float64 `json:"proba_up"`
	Regime     string  `json:"regime"`
	Sigma      float64 `json:"sigma"`
	Confidence float64 `json:"confidence"`
}

// Score asks the model service for the probability of an up move. The caller's
// ctx bounds the whole attempt sequence.
func (s *HTTPEdgeScorer) Score(ctx context.Context, symbol string, features map[string]float64) (models.EdgeScore, error) {
	var er edgeResp
	if err := s.base.PostJSONWithRetry(ctx, "/edge/predict", edgeReq{Symbol: symbol, Features: features}, &er, 2); err != nil {
		return models.EdgeScore{}, fmt.Errorf("post edge: %w", err)
	}
	if er.ProbaUp < 0 || er.ProbaUp > 1 {
		return models.EdgeScore{}, fmt.Errorf("edge proba_up out of range: %v", er.ProbaUp)
	}
	return models.EdgeScore{
		Symbol:     symbol,
		ProbaUp:    er.ProbaUp,
		Confidence: er.Confidence,
		Regime:     er.Regime,
		Sigma:      er.Sigma,
	}, nil
}

var _ domsvc.RemoteScorer = (*HTTPEdgeScorer)(nil)
