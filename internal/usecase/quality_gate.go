package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
)

// SignalRegistry is where approved signals go. HasOpen and Register are called
// under the promotion lock of the symbol and direction.
type SignalRegistry interface {
	HasOpen(symbol string, dir models.Direction, since time.Time) bool
	Register(ctx context.Context, s models.ApprovedSignal) error
}

// TierAssigner picks the lowest tier a new signal is eligible for.
type TierAssigner interface {
	AssignTier(qualityScore float64) models.Tier
}

// GateObserver is told about every gate decision.
type GateObserver interface {
	RecordRejection(reason models.RejectionReason)
	RecordApproval()
}

// CheckWeights weight the six check scores in the composite quality score.
type CheckWeights struct {
	Pattern     float64
	Consensus   float64
	RiskReward  float64
	Liquidity   float64
	DataQuality float64
	Uniqueness  float64
}

type GateConfig struct {
	MinConfidence  float64
	MinAgreeing    int
	MinRiskReward  float64
	MinVolume      float64
	SymbolVolume   map[string]float64
	MinDataQuality float64
	MinSources     int
	Cooldown       time.Duration
	SignalTTL      time.Duration
	LockTTL        time.Duration
	Weights        CheckWeights
}

// GateResult carries exactly one of Approved or Rejection.
type GateResult struct {
	Approved  *models.ApprovedSignal
	Rejection *models.Rejection
	Scores    models.CheckScores
}

// QualityGate runs six ordered checks on a candidate and stops at the first
// failure. Promotion of a passing candidate is serialized per symbol and
// direction so two cycles can never both register the same idea.
type QualityGate struct {
	cfg      GateConfig
	registry SignalRegistry
	tiers    TierAssigner
	observer GateObserver
	locker   domrepo.Locker
	keys     keyedMutex
	log      *logger.Logger
	metrics  domrepo.Metrics
	now      func() time.Time
}

type GateOption func(*QualityGate)

// WithDistributedLock additionally takes a cross-process lock around promotion.
func WithDistributedLock(l domrepo.Locker) GateOption {
	return func(g *QualityGate) { g.locker = l }
}

func WithGateObserver(o GateObserver) GateOption {
	return func(g *QualityGate) { g.observer = o }
}

func WithGateClock(now func() time.Time) GateOption {
	return func(g *QualityGate) { g.now = now }
}

func NewQualityGate(cfg GateConfig, registry SignalRegistry, tiers TierAssigner, log *logger.Logger, metrics domrepo.Metrics, opts ...GateOption) *QualityGate {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = 4 * time.Hour
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	g := &QualityGate{
		cfg:      cfg,
		registry: registry,
		tiers:    tiers,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type check struct {
	reason models.RejectionReason
	run    func(c models.CandidateSignal) (score float64, detail string, ok bool)
}

func (g *QualityGate) checks() []check {
	return []check{
		{models.RejectPatternWeak, g.checkPattern},
		{models.RejectLowConsensus, g.checkConsensus},
		{models.RejectRiskReward, g.checkRiskReward},
		{models.RejectLiquidity, g.checkLiquidity},
		{models.RejectDataQuality, g.checkDataQuality},
	}
}

// Evaluate gates one candidate. A rejection is a normal result; the error is
// reserved for lock or registry failures.
func (g *QualityGate) Evaluate(ctx context.Context, c models.CandidateSignal) (GateResult, error) {
	var res GateResult
	scores := make([]float64, 0, 6)
	for i, chk := range g.checks() {
		score, detail, ok := chk.run(c)
		if !ok {
			return g.reject(res, c, i+1, chk.reason, detail), nil
		}
		scores = append(scores, score)
	}
	res.Scores = models.CheckScores{
		Pattern:     scores[0],
		Consensus:   scores[1],
		RiskReward:  scores[2],
		Liquidity:   scores[3],
		DataQuality: scores[4],
		Uniqueness:  100,
	}

	key := fmt.Sprintf("promote:%s:%s", c.Symbol, c.Direction)
	unlock, err := g.lock(ctx, key)
	if err != nil {
		return res, err
	}
	defer unlock()

	if g.registry.HasOpen(c.Symbol, c.Direction, c.CreatedAt.Add(-g.cfg.Cooldown)) {
		return g.reject(res, c, 6, models.RejectDuplicate,
			fmt.Sprintf("open %s signal for %s within %s", c.Direction, c.Symbol, g.cfg.Cooldown)), nil
	}

	s := g.approve(c, res.Scores)
	if err := g.registry.Register(ctx, s); err != nil {
		return res, fmt.Errorf("register signal %s: %w", s.ID, err)
	}
	res.Approved = &s
	if g.observer != nil {
		g.observer.RecordApproval()
	}
	g.metrics.RecordGateDecision("approved")
	g.log.Info("signal approved",
		logger.String("id", s.ID),
		logger.String("symbol", s.Symbol),
		logger.String("direction", string(s.Direction)),
		logger.Float64("quality", s.QualityScore),
		logger.String("tier", string(s.Tier)))
	return res, nil
}

func (g *QualityGate) reject(res GateResult, c models.CandidateSignal, stage int, reason models.RejectionReason, detail string) GateResult {
	res.Rejection = &models.Rejection{Stage: stage, Reason: reason, Detail: detail}
	if g.observer != nil {
		g.observer.RecordRejection(reason)
	}
	g.metrics.RecordGateDecision(string(reason))
	g.log.Debug("candidate rejected",
		logger.String("symbol", c.Symbol),
		logger.String("direction", string(c.Direction)),
		logger.Int("stage", stage),
		logger.String("reason", string(reason)),
		logger.String("detail", detail))
	return res
}

func (g *QualityGate) checkPattern(c models.CandidateSignal) (float64, string, bool) {
	if c.RawConfidence <= g.cfg.MinConfidence {
		return 0, fmt.Sprintf("raw confidence %.1f <= %.1f", c.RawConfidence, g.cfg.MinConfidence), false
	}
	return c.RawConfidence, "", true
}

func (g *QualityGate) checkConsensus(c models.CandidateSignal) (float64, string, bool) {
	agreeing := len(c.AgreeingStrategies())
	if agreeing < g.cfg.MinAgreeing {
		return 0, fmt.Sprintf("%d agreeing strategies < %d", agreeing, g.cfg.MinAgreeing), false
	}
	participating := c.Consensus.Participating()
	if participating < agreeing {
		participating = agreeing
	}
	return 100 * float64(agreeing) / float64(participating), "", true
}

func (g *QualityGate) checkRiskReward(c models.CandidateSignal) (float64, string, bool) {
	rr := RiskReward(c.Direction, c.EntryPrice, c.StopLoss, c.NearestTarget())
	if rr <= g.cfg.MinRiskReward {
		return 0, fmt.Sprintf("risk/reward %.2f <= %.2f", rr, g.cfg.MinRiskReward), false
	}
	return math.Min(100, 50*rr/g.cfg.MinRiskReward), "", true
}

func (g *QualityGate) checkLiquidity(c models.CandidateSignal) (float64, string, bool) {
	floor := g.cfg.MinVolume
	if v, ok := g.cfg.SymbolVolume[c.Symbol]; ok {
		floor = v
	}
	if c.RecentVolume <= floor {
		return 0, fmt.Sprintf("recent volume %.2f <= %.2f", c.RecentVolume, floor), false
	}
	if floor <= 0 {
		return 100, "", true
	}
	return math.Min(100, 50*c.RecentVolume/floor), "", true
}

func (g *QualityGate) checkDataQuality(c models.CandidateSignal) (float64, string, bool) {
	if c.DataQuality < g.cfg.MinDataQuality {
		return 0, fmt.Sprintf("data quality %.1f < %.1f", c.DataQuality, g.cfg.MinDataQuality), false
	}
	if c.SourcesUsed < g.cfg.MinSources {
		return 0, fmt.Sprintf("%d sources < %d", c.SourcesUsed, g.cfg.MinSources), false
	}
	return c.DataQuality, "", true
}

func (g *QualityGate) approve(c models.CandidateSignal, sc models.CheckScores) models.ApprovedSignal {
	w := g.cfg.Weights
	wsum := w.Pattern + w.Consensus + w.RiskReward + w.Liquidity + w.DataQuality + w.Uniqueness
	var quality float64
	if wsum > 0 {
		quality = (w.Pattern*sc.Pattern + w.Consensus*sc.Consensus + w.RiskReward*sc.RiskReward +
			w.Liquidity*sc.Liquidity + w.DataQuality*sc.DataQuality + w.Uniqueness*sc.Uniqueness) / wsum
	} else {
		quality = (sc.Pattern + sc.Consensus + sc.RiskReward + sc.Liquidity + sc.DataQuality + sc.Uniqueness) / 6
	}
	quality = math.Round(quality*100) / 100

	tier := models.TierPro
	if g.tiers != nil {
		tier = g.tiers.AssignTier(quality)
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = g.now()
	}
	votes := append([]models.StrategyVote(nil), c.Votes...)
	return models.ApprovedSignal{
		ID:                uuid.NewString(),
		Symbol:            c.Symbol,
		Direction:         c.Direction,
		EntryPrice:        c.EntryPrice,
		EntryRange:        c.EntryRange,
		StopLoss:          c.StopLoss,
		Targets:           append([]float64(nil), c.Targets...),
		Votes:             votes,
		Consensus:         c.Consensus,
		RawConfidence:     c.RawConfidence,
		DataQuality:       c.DataQuality,
		SourcesUsed:       c.SourcesUsed,
		PatternTag:        c.PatternTag,
		QualityScore:      quality,
		RiskRewardRatio:   RiskReward(c.Direction, c.EntryPrice, c.StopLoss, c.NearestTarget()),
		ExpectedProfitPct: models.PctMove(c.Direction, c.EntryPrice, c.NearestTarget()),
		WinningStrategyID: winningStrategy(c),
		Tier:              tier,
		Status:            models.StatusPendingDelivery,
		CreatedAt:         created,
		ExpiresAt:         created.Add(g.cfg.SignalTTL),
	}
}

func winningStrategy(c models.CandidateSignal) string {
	best, id := -1.0, ""
	for _, v := range c.Votes {
		if v.Direction != c.Direction {
			continue
		}
		if v.Confidence > best || (v.Confidence == best && v.StrategyID < id) {
			best, id = v.Confidence, v.StrategyID
		}
	}
	return id
}

// lock takes the in-process key lock and, when configured, the distributed one.
func (g *QualityGate) lock(ctx context.Context, key string) (func(), error) {
	release := g.keys.Lock(key)
	if g.locker == nil {
		return release, nil
	}
	deadline := time.Now().Add(g.cfg.LockTTL)
	for {
		ok, err := g.locker.TryLock(ctx, key, g.cfg.LockTTL)
		if err != nil {
			release()
			return nil, fmt.Errorf("promotion lock %s: %w", key, err)
		}
		if ok {
			return func() {
				uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				if err := g.locker.Unlock(uctx, key); err != nil {
					g.log.Warn("promotion unlock failed", logger.String("key", key), logger.Error(err))
				}
				release()
			}, nil
		}
		if time.Now().After(deadline) {
			release()
			return nil, fmt.Errorf("promotion lock %s: timed out", key)
		}
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// keyedMutex hands out one mutex per key. Keys are symbol and direction pairs,
// a small bounded set, so entries are never evicted.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
