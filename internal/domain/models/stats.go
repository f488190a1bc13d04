package models

// Stats is the lifecycle summary returned by getStats.
type Stats struct {
	TotalSignalsRegistered int     `json:"total_signals_registered"`
	ActiveSignalsCount     int     `json:"active_signals_count"`
	TotalOutcomes          int     `json:"total_outcomes"`
	WinsDetected           int     `json:"wins_detected"`
	LossesDetected         int     `json:"losses_detected"`
	WinRate                float64 `json:"win_rate"`
}

// MonthlyBucket aggregates outcomes resolved in one calendar month (UTC).
type MonthlyBucket struct {
	Month       string  `json:"month"` // YYYY-MM
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Expired     int     `json:"expired"`
	TotalReturn float64 `json:"total_return"`
	WinRate     float64 `json:"win_rate"`
}

// Performance is a point-in-time snapshot of the performance aggregator.
type Performance struct {
	Wins              int             `json:"wins"`
	Losses            int             `json:"losses"`
	Expired           int             `json:"expired"`
	Completed         int             `json:"completed"`
	TotalReturn       float64         `json:"total_return"`
	WinRate           float64         `json:"win_rate"`
	AvgReturnPerTrade float64         `json:"avg_return_per_trade"`
	BestTrade         float64         `json:"best_trade"`
	WorstTrade        float64         `json:"worst_trade"`
	Expectancy        float64         `json:"expectancy"`
	MaxDrawdown       float64         `json:"max_drawdown"`
	SharpeLike        float64         `json:"sharpe_like"`
	Approved          int             `json:"approved"`
	Rejections        map[string]int  `json:"rejections"`
	Monthly           []MonthlyBucket `json:"monthly"`
}
