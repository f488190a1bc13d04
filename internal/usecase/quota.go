package usecase

import (
	"context"
	"fmt"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
)

// QuotaLedger enforces per-tier daily delivery limits. Counters are keyed by
// window start, so the daily reset is a switch to a fresh key: no counter is
// ever decremented and in-flight consumes land entirely in one window.
type QuotaLedger struct {
	store     domrepo.QuotaStore
	limits    map[models.Tier]int
	resetHour int
	log       *logger.Logger
	metrics   domrepo.Metrics
	lastKey   string
}

func NewQuotaLedger(store domrepo.QuotaStore, limits map[models.Tier]int, resetHour int, log *logger.Logger, metrics domrepo.Metrics) *QuotaLedger {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	return &QuotaLedger{store: store, limits: limits, resetHour: resetHour, log: log, metrics: metrics}
}

// Window returns the key, start and reset instant of the quota window holding now (UTC).
func (q *QuotaLedger) Window(now time.Time) (string, time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), q.resetHour, 0, 0, 0, time.UTC)
	if now.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start.Format("2006-01-02T15"), start, start.AddDate(0, 0, 1)
}

func (q *QuotaLedger) limit(tier models.Tier) (int, error) {
	l, ok := q.limits[tier]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domrepo.ErrUnknownTier, tier)
	}
	return l, nil
}

// TryConsume takes one full-detail delivery from tier's quota. It returns false,
// without consuming, once the window is exhausted.
func (q *QuotaLedger) TryConsume(ctx context.Context, tier models.Tier, now time.Time) (bool, models.QuotaStatus, error) {
	limit, err := q.limit(tier)
	if err != nil {
		return false, models.QuotaStatus{}, err
	}
	key, _, resetAt := q.Window(now)
	used, ok, err := q.store.Consume(ctx, tier, key, limit, resetAt.Sub(now)+time.Hour)
	if err != nil {
		return false, models.QuotaStatus{}, fmt.Errorf("consume %s quota: %w", tier, err)
	}
	q.metrics.RecordQuotaUsed(string(tier), used)
	st := models.TierQuota{Tier: tier, DailyLimit: limit, UsedToday: used, WindowResetAt: resetAt}.Status()
	return ok, st, nil
}

// Status reports the quota of tier in the window holding now.
func (q *QuotaLedger) Status(ctx context.Context, tier models.Tier, now time.Time) (models.QuotaStatus, error) {
	limit, err := q.limit(tier)
	if err != nil {
		return models.QuotaStatus{}, err
	}
	key, _, resetAt := q.Window(now)
	used, err := q.store.Used(ctx, tier, key)
	if err != nil {
		return models.QuotaStatus{}, fmt.Errorf("read %s quota: %w", tier, err)
	}
	return models.TierQuota{Tier: tier, DailyLimit: limit, UsedToday: used, WindowResetAt: resetAt}.Status(), nil
}

// Rollover runs on the reset task. When now has crossed into a new window it
// drops the previous window counters and zeroes the gauges.
func (q *QuotaLedger) Rollover(ctx context.Context, now time.Time) {
	key, start, _ := q.Window(now)
	if q.lastKey == key {
		return
	}
	prev := q.lastKey
	q.lastKey = key
	if prev == "" {
		prevKey, _, _ := q.Window(start.Add(-time.Minute))
		prev = prevKey
	}
	for tier := range q.limits {
		if err := q.store.Reset(ctx, tier, prev); err != nil {
			q.log.Warn("quota reset failed", logger.String("tier", string(tier)), logger.String("window", prev), logger.Error(err))
		}
		q.metrics.RecordQuotaUsed(string(tier), 0)
	}
	q.log.Info("quota window opened", logger.String("window", key))
}
