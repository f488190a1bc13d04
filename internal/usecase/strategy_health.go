package usecase

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
)

type healthCell struct {
	errors    atomic.Int32
	disabled  atomic.Bool
	winRate   atomic.Uint64 // float64 bits
	weight    atomic.Uint64 // float64 bits
	lastError atomic.Value  // string
	updatedAt atomic.Int64  // unix ms
}

func (c *healthCell) touch(now time.Time) { c.updatedAt.Store(now.UnixMilli()) }

// HealthRegistry owns StrategyHealth. The strategy set is fixed at construction
// so the map is never written after that; every counter is atomic because
// overlapping ensemble cycles and operator calls update it concurrently.
type HealthRegistry struct {
	cells     map[string]*healthCell
	order     []string
	threshold int32
	store     domrepo.HealthStore
	log       *logger.Logger
	metrics   domrepo.Metrics
	now       func() time.Time
}

func NewHealthRegistry(ids []string, errorThreshold int, store domrepo.HealthStore, log *logger.Logger, metrics domrepo.Metrics) *HealthRegistry {
	if errorThreshold <= 0 {
		errorThreshold = 3
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	r := &HealthRegistry{
		cells:     make(map[string]*healthCell, len(ids)),
		threshold: int32(errorThreshold),
		store:     store,
		log:       log,
		metrics:   metrics,
		now:       time.Now,
	}
	for _, id := range ids {
		if _, dup := r.cells[id]; dup {
			continue
		}
		c := &healthCell{}
		c.weight.Store(math.Float64bits(1))
		c.lastError.Store("")
		c.touch(r.now())
		r.cells[id] = c
		r.order = append(r.order, id)
	}
	return r
}

// Threshold returns the consecutive error count that disables a strategy.
func (r *HealthRegistry) Threshold() int { return int(r.threshold) }

// Enabled reports whether id takes part in the next cycle.
func (r *HealthRegistry) Enabled(id string) bool {
	c, ok := r.cells[id]
	return ok && !c.disabled.Load()
}

// RecordSuccess resets the consecutive error run of id.
func (r *HealthRegistry) RecordSuccess(id string) {
	if c, ok := r.cells[id]; ok {
		c.errors.Store(0)
		c.touch(r.now())
	}
}

// RecordError counts one hard failure and returns true if this call disabled id.
func (r *HealthRegistry) RecordError(id string, err error) bool {
	c, ok := r.cells[id]
	if !ok {
		return false
	}
	n := c.errors.Add(1)
	if err != nil {
		c.lastError.Store(err.Error())
	}
	c.touch(r.now())
	r.metrics.RecordStrategyError(id)
	if n >= r.threshold && c.disabled.CompareAndSwap(false, true) {
		r.metrics.RecordStrategyDisabled(id, true)
		r.log.Warn("strategy auto-disabled",
			logger.String("strategy", id),
			logger.Int("consecutive_errors", int(n)))
		return true
	}
	return false
}

// Disable excludes id from future cycles until Enable.
func (r *HealthRegistry) Disable(id string) error {
	c, ok := r.cells[id]
	if !ok {
		return fmt.Errorf("%w: %s", domrepo.ErrUnknownStrategy, id)
	}
	c.disabled.Store(true)
	c.touch(r.now())
	r.metrics.RecordStrategyDisabled(id, true)
	r.log.Info("strategy disabled", logger.String("strategy", id))
	return nil
}

// Enable re-admits id and clears its error run.
func (r *HealthRegistry) Enable(id string) error {
	c, ok := r.cells[id]
	if !ok {
		return fmt.Errorf("%w: %s", domrepo.ErrUnknownStrategy, id)
	}
	c.errors.Store(0)
	c.disabled.Store(false)
	c.lastError.Store("")
	c.touch(r.now())
	r.metrics.RecordStrategyDisabled(id, false)
	r.log.Info("strategy enabled", logger.String("strategy", id))
	return nil
}

// Weight returns the consensus weight of id, 0 for unknown ids.
func (r *HealthRegistry) Weight(id string) float64 {
	c, ok := r.cells[id]
	if !ok {
		return 0
	}
	return math.Float64frombits(c.weight.Load())
}

// SetPerformance stores the rolling win rate and derived weight of id.
func (r *HealthRegistry) SetPerformance(id string, winRate, weight float64) {
	c, ok := r.cells[id]
	if !ok {
		return
	}
	c.winRate.Store(math.Float64bits(winRate))
	c.weight.Store(math.Float64bits(weight))
	c.touch(r.now())
}

// Get returns the health of one strategy.
func (r *HealthRegistry) Get(id string) (models.StrategyHealth, error) {
	c, ok := r.cells[id]
	if !ok {
		return models.StrategyHealth{}, fmt.Errorf("%w: %s", domrepo.ErrUnknownStrategy, id)
	}
	return r.snapshotOf(id, c), nil
}

// Snapshot returns the health of every strategy in registration order.
func (r *HealthRegistry) Snapshot() []models.StrategyHealth {
	out := make([]models.StrategyHealth, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.snapshotOf(id, r.cells[id]))
	}
	return out
}

func (r *HealthRegistry) snapshotOf(id string, c *healthCell) models.StrategyHealth {
	errs := int(c.errors.Load())
	disabled := c.disabled.Load()
	lastErr, _ := c.lastError.Load().(string)
	return models.StrategyHealth{
		StrategyID:        id,
		ConsecutiveErrors: errs,
		Disabled:          disabled,
		RollingWinRate:    math.Float64frombits(c.winRate.Load()),
		Weight:            math.Float64frombits(c.weight.Load()),
		Healthy:           !disabled && errs == 0,
		LastError:         lastErr,
		UpdatedAt:         time.UnixMilli(c.updatedAt.Load()).UTC(),
	}
}

// Persist writes the current snapshot to the health store.
func (r *HealthRegistry) Persist(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveHealth(ctx, r.Snapshot()); err != nil {
		return fmt.Errorf("save strategy health: %w", err)
	}
	return nil
}

// Restore loads persisted health for known strategies. Unknown ids are ignored.
func (r *HealthRegistry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	saved, err := r.store.LoadHealth(ctx)
	if err != nil {
		return fmt.Errorf("load strategy health: %w", err)
	}
	for _, h := range saved {
		c, ok := r.cells[h.StrategyID]
		if !ok {
			continue
		}
		c.errors.Store(int32(h.ConsecutiveErrors))
		c.disabled.Store(h.Disabled)
		c.winRate.Store(math.Float64bits(h.RollingWinRate))
		if h.Weight > 0 {
			c.weight.Store(math.Float64bits(h.Weight))
		}
		c.lastError.Store(h.LastError)
		r.metrics.RecordStrategyDisabled(h.StrategyID, h.Disabled)
	}
	return nil
}
