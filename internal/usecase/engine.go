package usecase

import (
	"context"
	"sort"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/internal/services/features"
	"IgniteX/pkg/logger"
	"IgniteX/pkg/scheduler"
)

// EngineConfig holds the periods of the background loops.
type EngineConfig struct {
	Symbols             []string
	MinWindow           int
	CycleInterval       time.Duration
	RecalibrateInterval time.Duration
	LifecycleInterval   time.Duration
	ReleaseInterval     time.Duration
	// HealthPersistInterval of zero disables the periodic health flush.
	HealthPersistInterval time.Duration
}

// CycleReport summarizes one ensemble cycle.
type CycleReport struct {
	StartedAt  time.Time
	Duration   time.Duration
	Symbols    int
	Filtered   int
	Evaluated  int
	Candidates int
	Approved   []string
	Rejected   map[models.RejectionReason]int
	Errors     int
}

// Engine drives the signal pipeline: market windows in, approved signals out
// to the distribution scheduler.
type Engine struct {
	cfg       EngineConfig
	market    *MarketState
	threshold *AdaptiveThreshold
	ensemble  *StrategyEnsemble
	planner   LevelPlanner
	gate      *QualityGate
	lifecycle *LifecycleManager
	dist      *DistributionScheduler
	log       *logger.Logger
	metrics   domrepo.Metrics
	now       func() time.Time
}

type EngineOption func(*Engine)

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(
	cfg EngineConfig,
	market *MarketState,
	threshold *AdaptiveThreshold,
	ensemble *StrategyEnsemble,
	planner LevelPlanner,
	gate *QualityGate,
	lifecycle *LifecycleManager,
	dist *DistributionScheduler,
	log *logger.Logger,
	metrics domrepo.Metrics,
	opts ...EngineOption,
) *Engine {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.MinWindow < 2 {
		cfg.MinWindow = 2
	}
	e := &Engine{
		cfg:       cfg,
		market:    market,
		threshold: threshold,
		ensemble:  ensemble,
		planner:   planner,
		gate:      gate,
		lifecycle: lifecycle,
		dist:      dist,
		log:       log,
		metrics:   metrics,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) symbols() []string {
	if len(e.cfg.Symbols) > 0 {
		return e.cfg.Symbols
	}
	return e.market.Symbols()
}

// RunCycle evaluates every symbol with enough fresh ticks once.
func (e *Engine) RunCycle(ctx context.Context) CycleReport {
	start := e.now()
	rep := CycleReport{StartedAt: start, Rejected: make(map[models.RejectionReason]int)}

	snaps := make(map[string]MarketSnapshot)
	var windows []models.TickWindow
	for _, sym := range e.symbols() {
		rep.Symbols++
		snap, ok := e.market.Snapshot(sym)
		if !ok || snap.Window.Len() < e.cfg.MinWindow {
			continue
		}
		strength := features.TrendStrength(snap.Window.Prices())
		if !e.threshold.Allow(sym, strength) {
			rep.Filtered++
			continue
		}
		snaps[sym] = snap
		windows = append(windows, snap.Window)
	}
	rep.Evaluated = len(windows)
	if len(windows) == 0 {
		rep.Duration = e.now().Sub(start)
		return rep
	}

	votes := e.ensemble.Collect(ctx, windows)
	syms := make([]string, 0, len(votes))
	for sym := range votes {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	for _, sym := range syms {
		dec, ok := e.ensemble.Decide(sym, votes[sym])
		if !ok {
			continue
		}
		snap := snaps[sym]
		lv, err := e.planner.Plan(dec.Direction, snap.Window.Prices())
		if err != nil {
			e.log.Warn("level planning failed", logger.String("symbol", sym), logger.Error(err))
			rep.Errors++
			continue
		}
		cand := models.CandidateSignal{
			Symbol:        sym,
			Direction:     dec.Direction,
			EntryPrice:    lv.Entry,
			EntryRange:    lv.EntryRange,
			StopLoss:      lv.StopLoss,
			Targets:       lv.Targets,
			Votes:         votes[sym],
			Consensus:     dec.Consensus,
			RawConfidence: dec.RawConfidence,
			DataQuality:   snap.DataQuality,
			SourcesUsed:   snap.SourcesUsed,
			RecentVolume:  snap.RecentVolume,
			PatternTag:    dec.PatternTag,
			CreatedAt:     e.now(),
		}
		rep.Candidates++

		res, err := e.gate.Evaluate(ctx, cand)
		if err != nil {
			e.log.Error("quality gate failed", logger.String("symbol", sym), logger.Error(err))
			rep.Errors++
			continue
		}
		if res.Rejection != nil {
			rep.Rejected[res.Rejection.Reason]++
			continue
		}
		if res.Approved != nil {
			rep.Approved = append(rep.Approved, res.Approved.ID)
			e.dist.Enqueue(ctx, *res.Approved)
		}
	}

	rep.Duration = e.now().Sub(start)
	e.metrics.RecordLatency("engine_cycle", rep.Duration.Seconds())
	e.log.Debug("ensemble cycle done",
		logger.Int("evaluated", rep.Evaluated),
		logger.Int("candidates", rep.Candidates),
		logger.Int("approved", len(rep.Approved)),
		logger.Duration("took", rep.Duration))
	return rep
}

// Recover restores strategy health and open signals after a restart and
// queues still-pending signals for delivery again.
func (e *Engine) Recover(ctx context.Context) error {
	if err := e.ensemble.Health().Restore(ctx); err != nil {
		e.log.Warn("strategy health restore failed", logger.Error(err))
	}
	n, err := e.lifecycle.Restore(ctx)
	if err != nil {
		return err
	}
	pending := e.lifecycle.PendingSignals()
	for _, s := range pending {
		e.dist.Enqueue(ctx, s)
	}
	e.log.Info("engine recovered", logger.Int("open_signals", n), logger.Int("requeued", len(pending)))
	return nil
}

// Persist flushes strategy health to its store.
func (e *Engine) Persist(ctx context.Context) error {
	return e.ensemble.Health().Persist(ctx)
}

// Tasks returns the periodic loops the engine needs.
func (e *Engine) Tasks() []scheduler.Task {
	tasks := []scheduler.Task{
		{Name: "ensemble-cycle", Interval: e.cfg.CycleInterval, Run: func(ctx context.Context) { e.RunCycle(ctx) }},
		{Name: "threshold-recalibrate", Interval: e.cfg.RecalibrateInterval, Run: func(context.Context) { e.threshold.Recalibrate() }},
		{Name: "lifecycle-reevaluate", Interval: e.cfg.LifecycleInterval, Run: func(ctx context.Context) { e.lifecycle.Reevaluate(ctx) }},
		{Name: "distribution-release", Interval: e.cfg.ReleaseInterval, Run: e.dist.Release},
		{Name: "quota-rollover", Interval: time.Minute, RunOnStart: true, Run: e.dist.ResetQuota},
	}
	if e.cfg.HealthPersistInterval > 0 {
		tasks = append(tasks, scheduler.Task{
			Name:     "health-persist",
			Interval: e.cfg.HealthPersistInterval,
			Run: func(ctx context.Context) {
				if err := e.Persist(ctx); err != nil {
					e.log.Warn("strategy health persist failed", logger.Error(err))
				}
			},
		})
	}
	return tasks
}
