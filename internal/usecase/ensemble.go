package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	domsvc "IgniteX/internal/domain/service"
	"IgniteX/pkg/logger"
)

// EnsembleConfig controls cycle budget and consensus rules.
type EnsembleConfig struct {
	Budget           time.Duration
	Concurrency      int
	MajorityFraction float64
	MinParticipation int
}

// ConsensusDecision is the merged view of one symbol's votes in one cycle.
type ConsensusDecision struct {
	Symbol            string
	Direction         models.Direction
	Consensus         models.Consensus
	Agreeing          []models.StrategyVote
	RawConfidence     float64
	WinningStrategyID string
	PatternTag        string
}

// StrategyEnsemble fans each cycle out to every enabled strategy for every
// symbol, then merges votes into at most one directional decision per symbol.
type StrategyEnsemble struct {
	strategies []domsvc.Strategy
	health     *HealthRegistry
	cfg        EnsembleConfig
	log        *logger.Logger
	metrics    domrepo.Metrics
}

func NewStrategyEnsemble(strategies []domsvc.Strategy, health *HealthRegistry, cfg EnsembleConfig, log *logger.Logger, metrics domrepo.Metrics) *StrategyEnsemble {
	if cfg.Budget <= 0 {
		cfg.Budget = 3 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MajorityFraction < 0.5 || cfg.MajorityFraction >= 1 {
		cfg.MajorityFraction = 0.6
	}
	if cfg.MinParticipation <= 0 {
		cfg.MinParticipation = 1
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &StrategyEnsemble{
		strategies: strategies,
		health:     health,
		cfg:        cfg,
		log:        log,
		metrics:    metrics,
	}
}

// StrategyIDs returns the ids of every registered strategy.
func StrategyIDs(strategies []domsvc.Strategy) []string {
	ids := make([]string, 0, len(strategies))
	for _, s := range strategies {
		ids = append(ids, s.ID())
	}
	return ids
}

// Health exposes the registry for operator controls.
func (e *StrategyEnsemble) Health() *HealthRegistry { return e.health }

func (e *StrategyEnsemble) active() []domsvc.Strategy {
	out := make([]domsvc.Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		if e.health.Enabled(s.ID()) {
			out = append(out, s)
		}
	}
	return out
}

type evalResult struct {
	strategyID string
	symbol     string
	vote       models.StrategyVote
	err        error
	cancelled  bool
}

// Collect runs one cycle over windows and returns votes grouped by symbol.
// Evaluations still running when the budget expires are cancelled and their
// results discarded; that never counts against a strategy. Health moves once per
// strategy per cycle: any hard error on any symbol counts as one error, otherwise
// one completed evaluation resets the run. Health is persisted once the cycle ends.
func (e *StrategyEnsemble) Collect(ctx context.Context, windows []models.TickWindow) map[string][]models.StrategyVote {
	start := time.Now()
	active := e.active()
	out := make(map[string][]models.StrategyVote, len(windows))
	if len(active) == 0 || len(windows) == 0 {
		e.persistHealth(ctx)
		return out
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Budget)
	defer cancel()

	results := make(chan evalResult, len(active)*len(windows))
	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, w := range windows {
		for _, s := range active {
			wg.Add(1)
			go func(s domsvc.Strategy, w models.TickWindow) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
				case <-cctx.Done():
					results <- evalResult{strategyID: s.ID(), symbol: w.Symbol, err: cctx.Err(), cancelled: true}
					return
				}
				defer func() { <-sem }()
				v, err := safeEvaluate(cctx, s, w)
				cancelled := err != nil && cctx.Err() != nil && isBudgetErr(err)
				results <- evalResult{strategyID: s.ID(), symbol: w.Symbol, vote: v, err: err, cancelled: cancelled}
			}(s, w)
		}
	}
	go func() { wg.Wait(); close(results) }()

	tally := newCycleTally()
	take := func(r evalResult) {
		if v, ok := e.accept(r, tally); ok {
			out[r.symbol] = append(out[r.symbol], v)
		}
	}
collect:
	for {
		select {
		case r, ok := <-results:
			if !ok {
				break collect
			}
			take(r)
		case <-cctx.Done():
			drainResults(results, take)
			break collect
		}
	}
	if cctx.Err() != nil {
		e.log.Debug("ensemble budget exhausted",
			logger.Duration("budget", e.cfg.Budget),
			logger.Int("cancelled", tally.late))
	}
	e.applyTally(active, tally)

	for sym := range out {
		sort.Slice(out[sym], func(i, j int) bool { return out[sym][i].StrategyID < out[sym][j].StrategyID })
	}
	e.persistHealth(ctx)
	e.metrics.RecordLatency("ensemble_cycle", time.Since(start).Seconds())
	return out
}

// drainResults hands over every result already buffered without waiting for
// evaluations still in flight.
func drainResults(results <-chan evalResult, take func(evalResult)) {
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return
			}
			take(r)
		default:
			return
		}
	}
}

// cycleTally is one cycle's per-strategy result: the first hard error, or a
// completed evaluation.
type cycleTally struct {
	failed    map[string]error
	completed map[string]bool
	late      int
}

func newCycleTally() *cycleTally {
	return &cycleTally{failed: make(map[string]error), completed: make(map[string]bool)}
}

func (t *cycleTally) fail(id string, err error) {
	if _, ok := t.failed[id]; !ok {
		t.failed[id] = err
	}
}

func (e *StrategyEnsemble) applyTally(active []domsvc.Strategy, t *cycleTally) {
	for _, s := range active {
		id := s.ID()
		if err, ok := t.failed[id]; ok {
			e.health.RecordError(id, err)
		} else if t.completed[id] {
			e.health.RecordSuccess(id)
		}
	}
}

func (e *StrategyEnsemble) accept(r evalResult, t *cycleTally) (models.StrategyVote, bool) {
	if r.cancelled {
		t.late++
		return models.StrategyVote{}, false
	}
	if r.err != nil {
		e.log.Warn("strategy evaluation failed",
			logger.String("strategy", r.strategyID),
			logger.String("symbol", r.symbol),
			logger.Error(r.err))
		t.fail(r.strategyID, r.err)
		return models.StrategyVote{}, false
	}
	v, err := normalizeVote(r.vote, r.strategyID, r.symbol)
	if err != nil {
		e.log.Warn("strategy returned invalid vote",
			logger.String("strategy", r.strategyID),
			logger.String("symbol", r.symbol),
			logger.Error(err))
		t.fail(r.strategyID, err)
		return models.StrategyVote{}, false
	}
	t.completed[r.strategyID] = true
	return v, true
}

func (e *StrategyEnsemble) persistHealth(ctx context.Context) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := e.health.Persist(pctx); err != nil {
		e.log.Warn("persist strategy health failed", logger.Error(err))
	}
}

// Decide merges the votes of one symbol. It yields no decision on a tie, when
// fewer than MinParticipation strategies took a side, or when the winning side
// does not exceed MajorityFraction of the participating votes.
func (e *StrategyEnsemble) Decide(symbol string, votes []models.StrategyVote) (ConsensusDecision, bool) {
	var c models.Consensus
	for _, v := range votes {
		switch v.Direction {
		case models.Long:
			c.LongVotes++
		case models.Short:
			c.ShortVotes++
		default:
			c.NeutralVotes++
		}
	}
	participating := c.Participating()
	if participating < e.cfg.MinParticipation || c.LongVotes == c.ShortVotes {
		return ConsensusDecision{}, false
	}
	dir, winners := models.Long, c.LongVotes
	if c.ShortVotes > c.LongVotes {
		dir, winners = models.Short, c.ShortVotes
	}
	if float64(winners)/float64(participating) <= e.cfg.MajorityFraction {
		return ConsensusDecision{}, false
	}

	d := ConsensusDecision{Symbol: symbol, Direction: dir, Consensus: c}
	var wsum, csum, best float64
	for _, v := range votes {
		if v.Direction != dir {
			continue
		}
		d.Agreeing = append(d.Agreeing, v)
		w := e.health.Weight(v.StrategyID)
		wsum += w
		csum += w * v.Confidence
		if score := w * v.Confidence; d.WinningStrategyID == "" || score > best ||
			(score == best && v.StrategyID < d.WinningStrategyID) {
			best = score
			d.WinningStrategyID = v.StrategyID
			d.PatternTag = v.PatternTag
		}
	}
	if wsum > 0 {
		d.RawConfidence = csum / wsum
	} else {
		var sum float64
		for _, v := range d.Agreeing {
			sum += v.Confidence
		}
		d.RawConfidence = sum / float64(len(d.Agreeing))
	}
	return d, true
}

func safeEvaluate(ctx context.Context, s domsvc.Strategy, w models.TickWindow) (v models.StrategyVote, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.ID(), r)
		}
	}()
	return s.Evaluate(ctx, w)
}

func normalizeVote(v models.StrategyVote, id, symbol string) (models.StrategyVote, error) {
	switch v.Direction {
	case models.Long, models.Short, models.Neutral:
	case "":
		v.Direction = models.Neutral
	default:
		return v, fmt.Errorf("unknown direction %q", v.Direction)
	}
	if v.Confidence < 0 || v.Confidence > 100 {
		return v, fmt.Errorf("confidence %v outside [0,100]", v.Confidence)
	}
	v.StrategyID = id
	v.Symbol = symbol
	if v.ComputedAt.IsZero() {
		v.ComputedAt = time.Now()
	}
	return v, nil
}

func isBudgetErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
