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
	"IgniteX/pkg/logger"
)

// PriceSource returns the newest known price of a symbol.
type PriceSource interface {
	Latest(symbol string) (models.PricePoint, bool)
}

// OutcomeSink is notified once per terminal outcome.
type OutcomeSink interface {
	OnOutcome(ctx context.Context, s models.ApprovedSignal, o models.Outcome)
}

// EventSink receives notification events. Publish must not block.
type EventSink interface {
	Publish(e models.Event)
}

// TargetPolicy selects which target resolves a signal as a WIN.
type TargetPolicy string

const (
	TargetFinal TargetPolicy = "final"
	TargetFirst TargetPolicy = "first"
)

type tracked struct {
	rec models.SignalRecord
}

// LifecycleManager drives each approved signal through
// PENDING_DELIVERY -> ACTIVE -> {WIN, LOSS, EXPIRED}. It is the only writer of
// lifecycle entries and outcomes. Terminal signals leave memory and are served
// from the store.
type LifecycleManager struct {
	mu   sync.Mutex
	open map[string]*tracked

	store   domrepo.SignalStore
	prices  PriceSource
	sinks   []OutcomeSink
	events  EventSink
	policy  TargetPolicy
	log     *logger.Logger
	metrics domrepo.Metrics
	now     func() time.Time

	registered int
	wins       int
	losses     int
	expired    int
}

type LifecycleOption func(*LifecycleManager)

func WithTargetPolicy(p TargetPolicy) LifecycleOption {
	return func(m *LifecycleManager) {
		if p == TargetFirst || p == TargetFinal {
			m.policy = p
		}
	}
}

func WithOutcomeSinks(sinks ...OutcomeSink) LifecycleOption {
	return func(m *LifecycleManager) { m.sinks = append(m.sinks, sinks...) }
}

func WithEventSink(e EventSink) LifecycleOption {
	return func(m *LifecycleManager) { m.events = e }
}

func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(m *LifecycleManager) { m.now = now }
}

func NewLifecycleManager(store domrepo.SignalStore, prices PriceSource, log *logger.Logger, metrics domrepo.Metrics, opts ...LifecycleOption) *LifecycleManager {
	m := &LifecycleManager{
		open:    make(map[string]*tracked),
		store:   store,
		prices:  prices,
		policy:  TargetFinal,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = nopMetrics{}
	}
	return m
}

// AddOutcomeSink registers a sink after construction. Not safe once evaluation runs.
func (m *LifecycleManager) AddOutcomeSink(s OutcomeSink) { m.sinks = append(m.sinks, s) }

// Register stores a freshly approved signal in PENDING_DELIVERY.
func (m *LifecycleManager) Register(ctx context.Context, s models.ApprovedSignal) error {
	if s.ID == "" {
		return fmt.Errorf("signal id required")
	}
	if s.Status != models.StatusPendingDelivery {
		return fmt.Errorf("%w: register with status %s", domrepo.ErrInvalidTransition, s.Status)
	}
	m.mu.Lock()
	if _, ok := m.open[s.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: signal %s", domrepo.ErrDuplicate, s.ID)
	}
	t := &tracked{rec: models.SignalRecord{Signal: s.Clone(), Version: 1}}
	m.open[s.ID] = t
	m.registered++
	rec := cloneRecord(t.rec)
	m.mu.Unlock()

	m.persist(ctx, rec)
	m.emit(models.Event{Kind: models.EventSignalApproved, SignalID: s.ID, Symbol: s.Symbol, Signal: &rec.Signal, At: m.now()})
	return nil
}

// HasOpen reports whether an ACTIVE or PENDING_DELIVERY signal for symbol and
// dir was created at or after since.
func (m *LifecycleManager) HasOpen(symbol string, dir models.Direction, since time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.open {
		s := t.rec.Signal
		if s.Symbol == symbol && s.Direction == dir && s.Status.Open() && !s.CreatedAt.Before(since) {
			return true
		}
	}
	return false
}

// Activate moves a pending signal to ACTIVE. Activating an ACTIVE signal is a no-op.
func (m *LifecycleManager) Activate(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	t, ok := m.open[id]
	if !ok {
		m.mu.Unlock()
		return m.missing(ctx, id)
	}
	if t.rec.Signal.Status == models.StatusActive {
		m.mu.Unlock()
		return nil
	}
	s := &t.rec.Signal
	s.Status = models.StatusActive
	activated := at
	s.ActivatedAt = &activated
	entry := &models.LifecycleEntry{
		SignalID:        s.ID,
		CurrentPrice:    s.EntryPrice,
		LastEvaluatedAt: at,
	}
	if m.prices != nil {
		if p, ok := m.prices.Latest(s.Symbol); ok {
			entry.CurrentPrice = p.Price
			entry.LastPriceMs = p.TimestampMs
		}
	}
	entry.UnrealizedPct = models.PctMove(s.Direction, s.EntryPrice, entry.CurrentPrice)
	t.rec.Lifecycle = entry
	t.rec.Version++
	rec := cloneRecord(t.rec)
	m.mu.Unlock()

	m.persist(ctx, rec)
	m.log.Info("signal activated", logger.String("id", id), logger.String("symbol", rec.Signal.Symbol))
	return nil
}

func (m *LifecycleManager) missing(ctx context.Context, id string) error {
	if m.store != nil {
		rec, err := m.store.Get(ctx, id)
		if err == nil && rec.Signal.Status.Terminal() {
			return fmt.Errorf("%w: signal %s is %s", domrepo.ErrInvalidTransition, id, rec.Signal.Status)
		}
	}
	return fmt.Errorf("%w: signal %s", domrepo.ErrNotFound, id)
}

type resolution struct {
	rec     models.SignalRecord
	outcome models.Outcome
}

// ApplyPrice evaluates every open signal of symbol against p at now. Stale
// prices are skipped for ACTIVE signals. It returns the outcomes it produced.
func (m *LifecycleManager) ApplyPrice(ctx context.Context, symbol string, p models.PricePoint, now time.Time) []models.Outcome {
	return m.evaluateSymbol(ctx, symbol, &p, now)
}

// Reevaluate runs one lifecycle pass over all open signals using the latest
// known prices. Symbols without a price only get expiry checks.
func (m *LifecycleManager) Reevaluate(ctx context.Context) []models.Outcome {
	start := time.Now()
	now := m.now()
	var out []models.Outcome
	for _, symbol := range m.openSymbols() {
		var pp *models.PricePoint
		if m.prices != nil {
			if p, ok := m.prices.Latest(symbol); ok {
				pp = &p
			}
		}
		out = append(out, m.evaluateSymbol(ctx, symbol, pp, now)...)
	}
	m.metrics.RecordLatency("lifecycle_pass", time.Since(start).Seconds())
	return out
}

func (m *LifecycleManager) openSymbols() []string {
	m.mu.Lock()
	seen := make(map[string]struct{})
	for _, t := range m.open {
		seen[t.rec.Signal.Symbol] = struct{}{}
	}
	m.mu.Unlock()
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (m *LifecycleManager) evaluateSymbol(ctx context.Context, symbol string, p *models.PricePoint, now time.Time) []models.Outcome {
	var (
		resolved []resolution
		updated  []models.SignalRecord
	)
	m.mu.Lock()
	for id, t := range m.open {
		if t.rec.Signal.Symbol != symbol {
			continue
		}
		o, changed, done := m.step(t, p, now)
		if done {
			delete(m.open, id)
			m.count(o.Result)
			resolved = append(resolved, resolution{rec: cloneRecord(t.rec), outcome: o})
		} else if changed {
			updated = append(updated, cloneRecord(t.rec))
		}
	}
	m.mu.Unlock()

	for _, rec := range updated {
		m.persist(ctx, rec)
	}
	out := make([]models.Outcome, 0, len(resolved))
	for _, r := range resolved {
		m.finish(ctx, r)
		out = append(out, r.outcome)
	}
	return out
}

// step applies one evaluation tick to t. Checks run stop, then target, then
// expiry, and the first that fires resolves the signal. Must hold m.mu.
func (m *LifecycleManager) step(t *tracked, p *models.PricePoint, now time.Time) (models.Outcome, bool, bool) {
	s := &t.rec.Signal
	if s.Status.Terminal() {
		return models.Outcome{}, false, false
	}

	if s.Status == models.StatusPendingDelivery {
		if !now.After(s.ExpiresAt) {
			return models.Outcome{}, false, false
		}
		exit := s.EntryPrice
		if p != nil {
			exit = p.Price
		}
		return m.resolve(t, models.ResultExpired, exit, now, "expired before delivery"), true, true
	}

	le := t.rec.Lifecycle
	if le == nil {
		le = &models.LifecycleEntry{SignalID: s.ID, CurrentPrice: s.EntryPrice}
		t.rec.Lifecycle = le
	}
	if p != nil {
		if p.TimestampMs < le.LastPriceMs {
			m.log.Debug("stale price skipped",
				logger.String("id", s.ID),
				logger.String("symbol", s.Symbol),
				logger.Int64("price_ts", p.TimestampMs),
				logger.Int64("last_ts", le.LastPriceMs))
			return models.Outcome{}, false, false
		}
		le.CurrentPrice = p.Price
		le.LastPriceMs = p.TimestampMs
		le.UnrealizedPct = models.PctMove(s.Direction, s.EntryPrice, p.Price)
		le.LastEvaluatedAt = now
		m.markTargets(s, le, p.Price)

		if crossedStop(s.Direction, p.Price, s.StopLoss) {
			return m.resolve(t, models.ResultLoss, s.StopLoss, now, "stop loss hit"), true, true
		}
		if target, ok := m.resolvingTarget(s, p.Price); ok {
			return m.resolve(t, models.ResultWin, target, now, "target hit"), true, true
		}
	}
	if now.After(s.ExpiresAt) {
		le.LastEvaluatedAt = now
		return m.resolve(t, models.ResultExpired, le.CurrentPrice, now, "expired"), true, true
	}
	if p == nil {
		return models.Outcome{}, false, false
	}
	t.rec.Version++
	return models.Outcome{}, true, false
}

func (m *LifecycleManager) markTargets(s *models.ApprovedSignal, le *models.LifecycleEntry, price float64) {
	for i, target := range s.Targets {
		if i < len(le.TargetsHit) {
			continue
		}
		if !crossedTarget(s.Direction, price, target) {
			return
		}
		le.TargetsHit = append(le.TargetsHit, target)
	}
}

func (m *LifecycleManager) resolvingTarget(s *models.ApprovedSignal, price float64) (float64, bool) {
	if len(s.Targets) == 0 {
		return 0, false
	}
	target := s.Targets[len(s.Targets)-1]
	if m.policy == TargetFirst {
		target = s.Targets[0]
	}
	return target, crossedTarget(s.Direction, price, target)
}

func (m *LifecycleManager) resolve(t *tracked, result models.Result, exit float64, now time.Time, reason string) models.Outcome {
	s := &t.rec.Signal
	o := models.Outcome{
		SignalID:    s.ID,
		Result:      result,
		ExitPrice:   exit,
		RealizedPct: models.PctMove(s.Direction, s.EntryPrice, exit),
		ResolvedAt:  now,
		Reason:      reason,
	}
	s.Status = models.Status(result)
	t.rec.Outcome = &o
	t.rec.Version++
	return o
}

func (m *LifecycleManager) count(r models.Result) {
	switch r {
	case models.ResultWin:
		m.wins++
	case models.ResultLoss:
		m.losses++
	case models.ResultExpired:
		m.expired++
	}
}

func (m *LifecycleManager) finish(ctx context.Context, r resolution) {
	m.persist(ctx, r.rec)
	m.metrics.RecordOutcome(string(r.outcome.Result))
	m.log.Info("signal resolved",
		logger.String("id", r.outcome.SignalID),
		logger.String("symbol", r.rec.Signal.Symbol),
		logger.String("result", string(r.outcome.Result)),
		logger.Float64("exit_price", r.outcome.ExitPrice),
		logger.Float64("realized_pct", r.outcome.RealizedPct))
	for _, sink := range m.sinks {
		sink.OnOutcome(ctx, r.rec.Signal, r.outcome)
	}
	o := r.outcome
	m.emit(models.Event{
		Kind:     models.EventSignalResolved,
		SignalID: o.SignalID,
		Symbol:   r.rec.Signal.Symbol,
		Signal:   &r.rec.Signal,
		Outcome:  &o,
		At:       o.ResolvedAt,
	})
}

func (m *LifecycleManager) persist(ctx context.Context, rec models.SignalRecord) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, rec); err != nil {
		m.log.Error("persist signal failed", logger.String("id", rec.Signal.ID), logger.Error(err))
	}
}

func (m *LifecycleManager) emit(e models.Event) {
	if m.events != nil {
		m.events.Publish(e)
	}
}

// Get returns the current record of a signal, open or resolved.
func (m *LifecycleManager) Get(ctx context.Context, id string) (models.SignalRecord, error) {
	m.mu.Lock()
	if t, ok := m.open[id]; ok {
		rec := cloneRecord(t.rec)
		m.mu.Unlock()
		return rec, nil
	}
	m.mu.Unlock()
	if m.store == nil {
		return models.SignalRecord{}, fmt.Errorf("%w: signal %s", domrepo.ErrNotFound, id)
	}
	return m.store.Get(ctx, id)
}

// ActiveSignals returns every ACTIVE signal, oldest first.
func (m *LifecycleManager) ActiveSignals() []models.ApprovedSignal {
	return m.byStatus(models.StatusActive)
}

// PendingSignals returns every signal still waiting for its first delivery.
func (m *LifecycleManager) PendingSignals() []models.ApprovedSignal {
	return m.byStatus(models.StatusPendingDelivery)
}

func (m *LifecycleManager) byStatus(st models.Status) []models.ApprovedSignal {
	m.mu.Lock()
	out := make([]models.ApprovedSignal, 0, len(m.open))
	for _, t := range m.open {
		if t.rec.Signal.Status == st {
			out = append(out, t.rec.Signal.Clone())
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// History returns the newest limit signals with their outcomes.
func (m *LifecycleManager) History(ctx context.Context, limit int) ([]models.SignalRecord, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.History(ctx, limit)
}

// Stats summarizes lifecycle counters since start, including restored signals.
func (m *LifecycleManager) Stats() models.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := 0
	for _, t := range m.open {
		if t.rec.Signal.Status == models.StatusActive {
			active++
		}
	}
	st := models.Stats{
		TotalSignalsRegistered: m.registered,
		ActiveSignalsCount:     active,
		TotalOutcomes:          m.wins + m.losses + m.expired,
		WinsDetected:           m.wins,
		LossesDetected:         m.losses,
	}
	if decided := m.wins + m.losses; decided > 0 {
		st.WinRate = float64(m.wins) / float64(decided)
	}
	return st
}

// Restore reloads non-terminal signals from the store after a restart.
func (m *LifecycleManager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	recs, err := m.store.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore open signals: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range recs {
		if rec.Signal.Status.Terminal() || rec.Outcome != nil {
			continue
		}
		if _, ok := m.open[rec.Signal.ID]; ok {
			continue
		}
		m.open[rec.Signal.ID] = &tracked{rec: cloneRecord(rec)}
		m.registered++
		n++
	}
	m.log.Info("lifecycle restored", logger.Int("open_signals", n))
	return n, nil
}

// IsNotFound reports whether err means the signal does not exist.
func IsNotFound(err error) bool { return errors.Is(err, domrepo.ErrNotFound) }

func crossedStop(dir models.Direction, price, stop float64) bool {
	if dir == models.Short {
		return price >= stop
	}
	return price <= stop
}

func crossedTarget(dir models.Direction, price, target float64) bool {
	if dir == models.Short {
		return price <= target
	}
	return price >= target
}

func cloneRecord(r models.SignalRecord) models.SignalRecord {
	out := r
	out.Signal = r.Signal.Clone()
	if r.Lifecycle != nil {
		le := *r.Lifecycle
		le.TargetsHit = append([]float64(nil), r.Lifecycle.TargetsHit...)
		out.Lifecycle = &le
	}
	if r.Outcome != nil {
		o := *r.Outcome
		out.Outcome = &o
	}
	return out
}
