package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/internal/repository"
	"IgniteX/pkg/logger"
)

type fakePrices map[string]models.PricePoint

func (p fakePrices) Latest(symbol string) (models.PricePoint, bool) {
	pp, ok := p[symbol]
	return pp, ok
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) Publish(e models.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) kinds() []models.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type outcomeRecorder struct {
	outcomes []models.Outcome
}

func (r *outcomeRecorder) OnOutcome(_ context.Context, _ models.ApprovedSignal, o models.Outcome) {
	r.outcomes = append(r.outcomes, o)
}

func pendingSignal(id string, dir models.Direction, at time.Time) models.ApprovedSignal {
	s := models.ApprovedSignal{
		ID:         id,
		Symbol:     "BTCUSDT",
		Direction:  dir,
		EntryPrice: 100,
		StopLoss:   98,
		Targets:    []float64{102, 104},
		Tier:       models.TierPro,
		Status:     models.StatusPendingDelivery,
		CreatedAt:  at,
		ExpiresAt:  at.Add(time.Hour),
	}
	if dir == models.Short {
		s.StopLoss = 102
		s.Targets = []float64{98, 96}
	}
	return s
}

type lifecycleFixture struct {
	clk      *fakeClock
	store    *repository.MemorySignalStore
	prices   fakePrices
	events   *eventRecorder
	outcomes *outcomeRecorder
	lc       *LifecycleManager
}

func newLifecycleFixture(opts ...LifecycleOption) *lifecycleFixture {
	f := &lifecycleFixture{
		clk:      newFakeClock(),
		store:    repository.NewMemorySignalStore(),
		prices:   fakePrices{},
		events:   &eventRecorder{},
		outcomes: &outcomeRecorder{},
	}
	opts = append([]LifecycleOption{
		WithLifecycleClock(f.clk.Now),
		WithEventSink(f.events),
		WithOutcomeSinks(f.outcomes),
	}, opts...)
	f.lc = NewLifecycleManager(f.store, f.prices, logger.Nop(), nil, opts...)
	return f
}

func (f *lifecycleFixture) activeSignal(t *testing.T, id string, dir models.Direction) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.lc.Register(ctx, pendingSignal(id, dir, f.clk.Now())))
	require.NoError(t, f.lc.Activate(ctx, id, f.clk.Now()))
}

func (f *lifecycleFixture) price(v float64, tsOffset time.Duration) models.PricePoint {
	return models.PricePoint{Price: v, TimestampMs: f.clk.Now().Add(tsOffset).UnixMilli()}
}

func TestLifecycleRegister(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	s := pendingSignal("s1", models.Long, f.clk.Now())

	require.NoError(t, f.lc.Register(ctx, s))
	assert.True(t, f.lc.HasOpen("BTCUSDT", models.Long, f.clk.Now().Add(-time.Minute)))
	assert.False(t, f.lc.HasOpen("BTCUSDT", models.Short, f.clk.Now().Add(-time.Minute)))
	assert.False(t, f.lc.HasOpen("BTCUSDT", models.Long, f.clk.Now().Add(time.Minute)))

	err := f.lc.Register(ctx, s)
	assert.True(t, errors.Is(err, domrepo.ErrDuplicate))

	active := pendingSignal("s2", models.Long, f.clk.Now())
	active.Status = models.StatusActive
	assert.True(t, errors.Is(f.lc.Register(ctx, active), domrepo.ErrInvalidTransition))

	rec, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingDelivery, rec.Signal.Status)
	assert.Equal(t, []models.EventKind{models.EventSignalApproved}, f.events.kinds())
	assert.Len(t, f.lc.PendingSignals(), 1)
}

func TestLifecycleActivate(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	f.prices["BTCUSDT"] = models.PricePoint{Price: 101, TimestampMs: f.clk.Now().UnixMilli()}
	require.NoError(t, f.lc.Register(ctx, pendingSignal("s1", models.Long, f.clk.Now())))

	require.NoError(t, f.lc.Activate(ctx, "s1", f.clk.Now()))
	require.NoError(t, f.lc.Activate(ctx, "s1", f.clk.Now().Add(time.Minute)), "second activation is a no-op")

	rec, err := f.lc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, rec.Signal.Status)
	require.NotNil(t, rec.Signal.ActivatedAt)
	assert.Equal(t, f.clk.Now(), *rec.Signal.ActivatedAt)
	require.NotNil(t, rec.Lifecycle)
	assert.Equal(t, 101.0, rec.Lifecycle.CurrentPrice)
	assert.InDelta(t, 1.0, rec.Lifecycle.UnrealizedPct, 1e-9)

	assert.True(t, IsNotFound(f.lc.Activate(ctx, "nope", f.clk.Now())))
	assert.Equal(t, 1, f.lc.Stats().ActiveSignalsCount)
}

func TestLifecycleWinsAtFinalTarget(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	f.activeSignal(t, "s1", models.Long)

	out := f.lc.ApplyPrice(ctx, "BTCUSDT", f.price(102.5, time.Second), f.clk.Now())
	assert.Empty(t, out)
	rec, _ := f.lc.Get(ctx, "s1")
	assert.Equal(t, []float64{102}, rec.Lifecycle.TargetsHit)

	out = f.lc.ApplyPrice(ctx, "BTCUSDT", f.price(104.2, 2*time.Second), f.clk.Now())
	require.Len(t, out, 1)
	assert.Equal(t, models.ResultWin, out[0].Result)
	assert.Equal(t, 104.0, out[0].ExitPrice)
	assert.InDelta(t, 4.0, out[0].RealizedPct, 1e-9)

	rec, err := f.lc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWin, rec.Signal.Status)
	require.NotNil(t, rec.Outcome)
	assert.True(t, errors.Is(f.lc.Activate(ctx, "s1", f.clk.Now()), domrepo.ErrInvalidTransition))
	assert.Empty(t, f.lc.ActiveSignals())
	assert.Len(t, f.outcomes.outcomes, 1)
	assert.Contains(t, f.events.kinds(), models.EventSignalResolved)
}

func TestLifecycleFirstTargetPolicy(t *testing.T) {
	f := newLifecycleFixture(WithTargetPolicy(TargetFirst))
	f.activeSignal(t, "s1", models.Long)

	out := f.lc.ApplyPrice(context.Background(), "BTCUSDT", f.price(102, time.Second), f.clk.Now())
	require.Len(t, out, 1)
	assert.Equal(t, models.ResultWin, out[0].Result)
	assert.Equal(t, 102.0, out[0].ExitPrice)
}

func TestLifecycleStopLoss(t *testing.T) {
	f := newLifecycleFixture()
	f.activeSignal(t, "long", models.Long)
	f.activeSignal(t, "short", models.Short)

	out := f.lc.ApplyPrice(context.Background(), "BTCUSDT", f.price(96, time.Second), f.clk.Now())
	require.Len(t, out, 2)
	byID := map[string]models.Outcome{}
	for _, o := range out {
		byID[o.SignalID] = o
	}
	assert.Equal(t, models.ResultLoss, byID["long"].Result)
	assert.Equal(t, 98.0, byID["long"].ExitPrice)
	assert.InDelta(t, -2.0, byID["long"].RealizedPct, 1e-9)
	assert.Equal(t, models.ResultWin, byID["short"].Result)
	assert.InDelta(t, 4.0, byID["short"].RealizedPct, 1e-9)

	st := f.lc.Stats()
	assert.Equal(t, 2, st.TotalSignalsRegistered)
	assert.Equal(t, 1, st.WinsDetected)
	assert.Equal(t, 1, st.LossesDetected)
	assert.InDelta(t, 0.5, st.WinRate, 1e-9)
}

func TestLifecycleSkipsStalePrices(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	f.activeSignal(t, "s1", models.Long)

	assert.Empty(t, f.lc.ApplyPrice(ctx, "BTCUSDT", f.price(101, 2*time.Second), f.clk.Now()))
	assert.Empty(t, f.lc.ApplyPrice(ctx, "BTCUSDT", f.price(90, time.Second), f.clk.Now()), "older than the last applied price")

	rec, _ := f.lc.Get(ctx, "s1")
	assert.Equal(t, models.StatusActive, rec.Signal.Status)
	assert.Equal(t, 101.0, rec.Lifecycle.CurrentPrice)
}

func TestLifecycleExpiry(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	require.NoError(t, f.lc.Register(ctx, pendingSignal("pending", models.Long, f.clk.Now())))
	f.activeSignal(t, "active", models.Long)
	f.prices["BTCUSDT"] = f.price(101, time.Second)

	assert.Empty(t, f.lc.Reevaluate(ctx))

	f.clk.Advance(time.Hour + time.Second)
	out := f.lc.Reevaluate(ctx)
	require.Len(t, out, 2)
	for _, o := range out {
		assert.Equal(t, models.ResultExpired, o.Result)
		switch o.SignalID {
		case "pending":
			assert.Equal(t, "expired before delivery", o.Reason)
		case "active":
			assert.Equal(t, 101.0, o.ExitPrice)
		}
	}
	assert.Equal(t, 2, f.lc.Stats().TotalOutcomes)
}

func TestLifecycleRestore(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	f.activeSignal(t, "open", models.Long)
	f.activeSignal(t, "closed", models.Short)
	f.lc.ApplyPrice(ctx, "BTCUSDT", f.price(103, time.Second), f.clk.Now())

	fresh := NewLifecycleManager(f.store, f.prices, logger.Nop(), nil, WithLifecycleClock(f.clk.Now))
	n, err := fresh.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	active := fresh.ActiveSignals()
	require.Len(t, active, 1)
	assert.Equal(t, "open", active[0].ID)

	history, err := fresh.History(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestLifecycleTerminalSignalIsUnchangedByReevaluation(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	f.activeSignal(t, "s1", models.Long)

	require.Len(t, f.lc.ApplyPrice(ctx, "BTCUSDT", f.price(97, time.Second), f.clk.Now()), 1)
	before, err := f.lc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.StatusLoss, before.Signal.Status)
	events := len(f.events.kinds())

	assert.Empty(t, f.lc.ApplyPrice(ctx, "BTCUSDT", f.price(105, 2*time.Second), f.clk.Now()))
	f.prices["BTCUSDT"] = f.price(110, 3*time.Second)
	f.clk.Advance(2 * time.Hour)
	assert.Empty(t, f.lc.Reevaluate(ctx))

	after, err := f.lc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusLoss, after.Signal.Status)
	assert.Equal(t, before.Version, after.Version)
	require.NotNil(t, after.Outcome)
	assert.Equal(t, *before.Outcome, *after.Outcome)
	assert.Len(t, f.outcomes.outcomes, 1)
	assert.Len(t, f.events.kinds(), events)
	assert.Equal(t, 1, f.lc.Stats().TotalOutcomes)
}

func TestLifecycleLevelsNeverChange(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	s := pendingSignal("s1", models.Long, f.clk.Now())
	want := []float64{s.EntryPrice, s.StopLoss, s.Targets[0], s.Targets[1]}

	require.NoError(t, f.lc.Register(ctx, s))
	s.Targets[0] = 1
	require.NoError(t, f.lc.Activate(ctx, "s1", f.clk.Now()))

	levels := func(r models.SignalRecord) []float64 {
		return []float64{r.Signal.EntryPrice, r.Signal.StopLoss, r.Signal.Targets[0], r.Signal.Targets[1]}
	}
	for i, p := range []float64{101, 102.5, 99, 104.5} {
		f.lc.ApplyPrice(ctx, "BTCUSDT", f.price(p, time.Duration(i+1)*time.Second), f.clk.Now())
		rec, err := f.lc.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, want, levels(rec), "after price %v", p)
	}

	stored, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWin, stored.Signal.Status)
	assert.Equal(t, want, levels(stored))
}
