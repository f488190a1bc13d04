package models

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the side a vote or signal leans toward.
type Direction string

const (
	Long    Direction = "LONG"
	Short   Direction = "SHORT"
	Neutral Direction = "NEUTRAL"
)

// Sign returns +1 for LONG, -1 for SHORT and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// StrategyVote is produced by one strategy for one symbol in one ensemble cycle. Never mutated.
type StrategyVote struct {
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // [0,100]
	PatternTag string    `json:"pattern_tag"`
	ComputedAt time.Time `json:"computed_at"`
}

// PriceRange is an inclusive price band.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Consensus counts votes per direction for one symbol in one cycle.
type Consensus struct {
	LongVotes    int `json:"long_votes"`
	ShortVotes   int `json:"short_votes"`
	NeutralVotes int `json:"neutral_votes"`
}

// Participating returns the number of non-neutral votes.
func (c Consensus) Participating() int { return c.LongVotes + c.ShortVotes }

// CandidateSignal is the transient, unvalidated output of ensemble consensus.
type CandidateSignal struct {
	Symbol        string         `json:"symbol"`
	Direction     Direction      `json:"direction"`
	EntryPrice    float64        `json:"entry_price"`
	EntryRange    PriceRange     `json:"entry_range"`
	StopLoss      float64        `json:"stop_loss"`
	Targets       []float64      `json:"targets"`
	Votes         []StrategyVote `json:"votes"`
	Consensus     Consensus      `json:"consensus"`
	RawConfidence float64        `json:"raw_confidence"`
	DataQuality   float64        `json:"data_quality"`
	SourcesUsed   int            `json:"sources_used"`
	RecentVolume  float64        `json:"recent_volume"`
	PatternTag    string         `json:"pattern_tag"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NearestTarget returns the first target level, or 0 when there is none.
func (c CandidateSignal) NearestTarget() float64 {
	if len(c.Targets) == 0 {
		return 0
	}
	return c.Targets[0]
}

// AgreeingStrategies returns the distinct strategy ids voting with the candidate direction.
func (c CandidateSignal) AgreeingStrategies() []string {
	seen := make(map[string]struct{}, len(c.Votes))
	out := make([]string, 0, len(c.Votes))
	for _, v := range c.Votes {
		if v.Direction != c.Direction {
			continue
		}
		if _, ok := seen[v.StrategyID]; ok {
			continue
		}
		seen[v.StrategyID] = struct{}{}
		out = append(out, v.StrategyID)
	}
	return out
}

// Tier is a subscriber class.
type Tier string

const (
	TierFree Tier = "FREE"
	TierPro  Tier = "PRO"
	TierMax  Tier = "MAX"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierFree, TierPro, TierMax}

// ParseTier parses a case-insensitive tier name.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, nil
	case TierPro:
		return TierPro, nil
	case TierMax:
		return TierMax, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Status is the lifecycle state of an approved signal.
type Status string

const (
	StatusPendingDelivery Status = "PENDING_DELIVERY"
	StatusActive          Status = "ACTIVE"
	StatusWin             Status = "WIN"
	StatusLoss            Status = "LOSS"
	StatusExpired         Status = "EXPIRED"
)

// Terminal reports whether no further transition may happen.
func (s Status) Terminal() bool {
	return s == StatusWin || s == StatusLoss || s == StatusExpired
}

// Open reports whether the signal can still block duplicates.
func (s Status) Open() bool {
	return s == StatusPendingDelivery || s == StatusActive
}

// ApprovedSignal is a candidate that cleared every quality check.
// Everything except Status and the delivery fields is frozen at creation.
type ApprovedSignal struct {
	ID                string         `json:"id"`
	Symbol            string         `json:"symbol"`
	Direction         Direction      `json:"direction"`
	EntryPrice        float64        `json:"entry_price"`
	EntryRange        PriceRange     `json:"entry_range"`
	StopLoss          float64        `json:"stop_loss"`
	Targets           []float64      `json:"targets"`
	Votes             []StrategyVote `json:"votes"`
	Consensus         Consensus      `json:"consensus"`
	RawConfidence     float64        `json:"raw_confidence"`
	DataQuality       float64        `json:"data_quality"`
	SourcesUsed       int            `json:"sources_used"`
	PatternTag        string         `json:"pattern_tag"`
	QualityScore      float64        `json:"quality_score"`
	RiskRewardRatio   float64        `json:"risk_reward_ratio"`
	ExpectedProfitPct float64        `json:"expected_profit_pct"`
	WinningStrategyID string         `json:"winning_strategy_id"`
	Tier              Tier           `json:"tier"`
	Status            Status         `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	ExpiresAt         time.Time      `json:"expires_at"`
	ActivatedAt       *time.Time     `json:"activated_at,omitempty"`
}

// Clone returns a deep copy so callers can never alias the frozen levels.
func (s ApprovedSignal) Clone() ApprovedSignal {
	out := s
	out.Targets = append([]float64(nil), s.Targets...)
	out.Votes = append([]StrategyVote(nil), s.Votes...)
	if s.ActivatedAt != nil {
		t := *s.ActivatedAt
		out.ActivatedAt = &t
	}
	return out
}

// Contributors returns the ids of the strategies that voted with the signal direction.
func (s ApprovedSignal) Contributors() []string {
	c := CandidateSignal{Direction: s.Direction, Votes: s.Votes}
	return c.AgreeingStrategies()
}

// LifecycleEntry tracks a signal while it is ACTIVE.
type LifecycleEntry struct {
	SignalID        string    `json:"signal_id"`
	CurrentPrice    float64   `json:"current_price"`
	UnrealizedPct   float64   `json:"unrealized_pct"`
	TargetsHit      []float64 `json:"targets_hit"`
	LastPriceMs     int64     `json:"last_price_ms"`
	LastEvaluatedAt time.Time `json:"last_evaluated_at"`
}

// Result is the terminal result of a signal.
type Result string

const (
	ResultWin     Result = "WIN"
	ResultLoss    Result = "LOSS"
	ResultExpired Result = "EXPIRED"
)

// Outcome is created exactly once per approved signal and never changes.
type Outcome struct {
	SignalID    string    `json:"signal_id"`
	Result      Result    `json:"result"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPct float64   `json:"realized_pct"`
	ResolvedAt  time.Time `json:"resolved_at"`
	Reason      string    `json:"reason"`
}

// SignalRecord is the persisted row: signal, lifecycle and outcome keyed by id.
type SignalRecord struct {
	Signal    ApprovedSignal  `json:"signal"`
	Lifecycle *LifecycleEntry `json:"lifecycle,omitempty"`
	Outcome   *Outcome        `json:"outcome,omitempty"`
	Version   uint64          `json:"version"`
}

// PctMove returns the direction-adjusted percent move from entry to price.
func PctMove(dir Direction, entry, price float64) float64 {
	if entry == 0 {
		return 0
	}
	return dir.Sign() * (price - entry) / entry * 100
}
