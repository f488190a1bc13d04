package models

import "time"

// DeliveryMode says how much of a signal a tier was shown.
type DeliveryMode string

const (
	DeliveryFull   DeliveryMode = "FULL"
	DeliveryLocked DeliveryMode = "LOCKED"
)

// SignalDetail holds the levels hidden from a locked preview.
type SignalDetail struct {
	EntryPrice        float64    `json:"entry_price"`
	EntryRange        PriceRange `json:"entry_range"`
	StopLoss          float64    `json:"stop_loss"`
	Targets           []float64  `json:"targets"`
	RiskRewardRatio   float64    `json:"risk_reward_ratio"`
	ExpectedProfitPct float64    `json:"expected_profit_pct"`
}

// SignalView is what one tier sees of a signal. Detail is nil for a locked preview.
type SignalView struct {
	ID           string        `json:"id"`
	Symbol       string        `json:"symbol"`
	Direction    Direction     `json:"direction"`
	Confidence   float64       `json:"confidence"`
	QualityScore float64       `json:"quality_score"`
	PatternTag   string        `json:"pattern_tag"`
	Status       Status        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	Locked       bool          `json:"locked"`
	Missed       bool          `json:"missed"`
	LockReason   string        `json:"lock_reason,omitempty"`
	Detail       *SignalDetail `json:"detail,omitempty"`
}

// FullView exposes every level of s.
func FullView(s ApprovedSignal) SignalView {
	v := previewOf(s)
	v.Detail = &SignalDetail{
		EntryPrice:        s.EntryPrice,
		EntryRange:        s.EntryRange,
		StopLoss:          s.StopLoss,
		Targets:           append([]float64(nil), s.Targets...),
		RiskRewardRatio:   s.RiskRewardRatio,
		ExpectedProfitPct: s.ExpectedProfitPct,
	}
	return v
}

// LockedView hides entry, stop and targets. missed marks a quota-exhausted tier.
func LockedView(s ApprovedSignal, reason string, missed bool) SignalView {
	v := previewOf(s)
	v.Locked = true
	v.Missed = missed
	v.LockReason = reason
	return v
}

func previewOf(s ApprovedSignal) SignalView {
	return SignalView{
		ID:           s.ID,
		Symbol:       s.Symbol,
		Direction:    s.Direction,
		Confidence:   s.RawConfidence,
		QualityScore: s.QualityScore,
		PatternTag:   s.PatternTag,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

// Delivery records the single release decision of a signal for one tier.
type Delivery struct {
	SignalID    string       `json:"signal_id"`
	Tier        Tier         `json:"tier"`
	Mode        DeliveryMode `json:"mode"`
	Missed      bool         `json:"missed"`
	Reason      string       `json:"reason,omitempty"`
	DeliveredAt time.Time    `json:"delivered_at"`
}

// FeedEntry is one item of a tier feed.
type FeedEntry struct {
	Delivery Delivery   `json:"delivery"`
	View     SignalView `json:"view"`
}
