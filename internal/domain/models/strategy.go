package models

import "time"

// StrategyHealth is owned by the ensemble; everything else reads snapshots.
type StrategyHealth struct {
	StrategyID        string    `json:"strategy_id"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	Disabled          bool      `json:"disabled"`
	RollingWinRate    float64   `json:"rolling_win_rate"`
	Weight            float64   `json:"weight"`
	Healthy           bool      `json:"healthy"`
	LastError         string    `json:"last_error,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// EdgeScore is the answer of a remote scoring model.
type EdgeScore struct {
	Symbol     string  `json:"symbol"`
	ProbaUp    float64 `json:"proba_up"`
	Confidence float64 `json:"confidence"`
	Regime     string  `json:"regime"`
	Sigma      float64 `json:"sigma"`
}
