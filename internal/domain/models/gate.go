package models

// RejectionReason tags the first quality check a candidate failed.
type RejectionReason string

const (
	RejectPatternWeak  RejectionReason = "Pattern too weak"
	RejectLowConsensus RejectionReason = "Insufficient strategy consensus"
	RejectRiskReward   RejectionReason = "Risk/reward too low"
	RejectLiquidity    RejectionReason = "Insufficient liquidity"
	RejectDataQuality  RejectionReason = "Data quality too low"
	RejectDuplicate    RejectionReason = "Duplicate signal"
)

// RejectionReasons lists reasons in check order.
var RejectionReasons = []RejectionReason{
	RejectPatternWeak,
	RejectLowConsensus,
	RejectRiskReward,
	RejectLiquidity,
	RejectDataQuality,
	RejectDuplicate,
}

// Rejection describes why a candidate did not become an approved signal.
type Rejection struct {
	Stage  int             `json:"stage"` // 1-based check index
	Reason RejectionReason `json:"reason"`
	Detail string          `json:"detail"`
}

// CheckScores holds the [0,100] score of each passed check.
type CheckScores struct {
	Pattern     float64 `json:"pattern"`
	Consensus   float64 `json:"consensus"`
	RiskReward  float64 `json:"risk_reward"`
	Liquidity   float64 `json:"liquidity"`
	DataQuality float64 `json:"data_quality"`
	Uniqueness  float64 `json:"uniqueness"`
}
