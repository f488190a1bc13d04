package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
)

// Activator moves a signal to ACTIVE on its first full delivery.
type Activator interface {
	Activate(ctx context.Context, id string, at time.Time) error
}

type DistributionConfig struct {
	FreeMinQuality float64
	FreeWindows    []string // HH:MM, UTC
	ProDelay       time.Duration
	MaxDelay       time.Duration
	FeedSize       int
}

const (
	lockAwaitingBatch = "awaiting free batch window"
	lockRequiresPro   = "requires PRO tier"
	lockQuota         = "daily quota exhausted"
	lockNotReleased   = "not yet released"
)

type queued struct {
	signal    models.ApprovedSignal
	freeAt    time.Time
	activated bool
}

// DistributionScheduler decides, per tier, when and how each approved signal is
// shown. MAX and PRO receive signals in real time after their tier delay; FREE
// receives eligible signals in fixed daily batches. Every decision is made once
// per signal and tier: full detail while quota lasts, a locked preview after.
type DistributionScheduler struct {
	mu        sync.Mutex
	releaseMu sync.Mutex

	cfg       DistributionConfig
	windows   []int
	queue     map[string]*queued
	decisions map[string]map[models.Tier]models.Delivery
	feeds     map[models.Tier][]models.FeedEntry

	ledger    *QuotaLedger
	activator Activator
	events    EventSink
	log       *logger.Logger
	metrics   domrepo.Metrics
	now       func() time.Time
}

type DistributionOption func(*DistributionScheduler)

func WithDistributionClock(now func() time.Time) DistributionOption {
	return func(d *DistributionScheduler) { d.now = now }
}

func WithDistributionEvents(e EventSink) DistributionOption {
	return func(d *DistributionScheduler) { d.events = e }
}

func NewDistributionScheduler(cfg DistributionConfig, ledger *QuotaLedger, log *logger.Logger, metrics domrepo.Metrics, opts ...DistributionOption) (*DistributionScheduler, error) {
	windows, err := parseWindows(cfg.FreeWindows)
	if err != nil {
		return nil, err
	}
	if cfg.FeedSize <= 0 {
		cfg.FeedSize = 200
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	d := &DistributionScheduler{
		cfg:       cfg,
		windows:   windows,
		queue:     make(map[string]*queued),
		decisions: make(map[string]map[models.Tier]models.Delivery),
		feeds:     make(map[models.Tier][]models.FeedEntry),
		ledger:    ledger,
		log:       log,
		metrics:   metrics,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// SetActivator wires the lifecycle manager, which is built after the scheduler.
func (d *DistributionScheduler) SetActivator(a Activator) { d.activator = a }

func parseWindows(ws []string) ([]int, error) {
	out := make([]int, 0, len(ws))
	for _, w := range ws {
		t, err := time.Parse("15:04", w)
		if err != nil {
			return nil, fmt.Errorf("free window %q: %w", w, err)
		}
		out = append(out, t.Hour()*60+t.Minute())
	}
	sort.Ints(out)
	return out, nil
}

// AssignTier returns FREE for signals good enough for the free batches, PRO otherwise.
func (d *DistributionScheduler) AssignTier(qualityScore float64) models.Tier {
	if qualityScore >= d.cfg.FreeMinQuality {
		return models.TierFree
	}
	return models.TierPro
}

// NextFreeWindow returns the first batch window strictly after t.
func (d *DistributionScheduler) NextFreeWindow(t time.Time) time.Time {
	if len(d.windows) == 0 {
		return t
	}
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for day := 0; day < 2; day++ {
		base := midnight.AddDate(0, 0, day)
		for _, m := range d.windows {
			if c := base.Add(time.Duration(m) * time.Minute); c.After(t) {
				return c
			}
		}
	}
	return midnight.AddDate(0, 0, 2).Add(time.Duration(d.windows[0]) * time.Minute)
}

// Enqueue schedules a new signal for delivery and immediately releases every
// tier already due.
func (d *DistributionScheduler) Enqueue(ctx context.Context, s models.ApprovedSignal) {
	now := d.now()
	q := &queued{signal: s.Clone()}
	var locked []models.FeedEntry

	d.mu.Lock()
	if _, ok := d.queue[s.ID]; ok {
		d.mu.Unlock()
		return
	}
	d.queue[s.ID] = q
	d.decisions[s.ID] = make(map[models.Tier]models.Delivery, len(models.Tiers))
	if s.Tier == models.TierFree {
		q.freeAt = d.NextFreeWindow(s.CreatedAt)
		d.pushFeedLocked(models.TierFree, models.FeedEntry{
			Delivery: models.Delivery{SignalID: s.ID, Tier: models.TierFree, Mode: models.DeliveryLocked, Reason: lockAwaitingBatch, DeliveredAt: now},
			View:     models.LockedView(s, lockAwaitingBatch, false),
		})
	} else {
		e := d.decideLocked(q, models.TierFree, models.DeliveryLocked, lockRequiresPro, false, now)
		locked = append(locked, e)
	}
	d.mu.Unlock()

	for _, e := range locked {
		d.announce(e)
	}
	d.release(ctx, now, []string{s.ID})
}

// Release delivers every tier that has come due for every queued signal.
func (d *DistributionScheduler) Release(ctx context.Context) {
	now := d.now()
	d.mu.Lock()
	ids := make([]string, 0, len(d.queue))
	for id := range d.queue {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return d.createdBefore(ids[i], ids[j]) })
	d.release(ctx, now, ids)
}

func (d *DistributionScheduler) createdBefore(a, b string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	qa, oka := d.queue[a]
	qb, okb := d.queue[b]
	if !oka || !okb {
		return a < b
	}
	if qa.signal.CreatedAt.Equal(qb.signal.CreatedAt) {
		return a < b
	}
	return qa.signal.CreatedAt.Before(qb.signal.CreatedAt)
}

// release is serialized by releaseMu so quota is consumed at most once per
// signal and tier even when Enqueue and the periodic task overlap.
func (d *DistributionScheduler) release(ctx context.Context, now time.Time, ids []string) {
	d.releaseMu.Lock()
	defer d.releaseMu.Unlock()

	for _, id := range ids {
		for _, tier := range []models.Tier{models.TierMax, models.TierPro, models.TierFree} {
			d.mu.Lock()
			q, ok := d.queue[id]
			if !ok {
				d.mu.Unlock()
				break
			}
			if now.After(q.signal.ExpiresAt) {
				d.dropLocked(id)
				d.mu.Unlock()
				break
			}
			_, done := d.decisions[id][tier]
			due := !done && d.dueLocked(q, tier, now)
			d.mu.Unlock()
			if !due {
				continue
			}

			full, _, err := d.ledger.TryConsume(ctx, tier, now)
			if err != nil {
				d.log.Warn("quota check failed, retrying next pass",
					logger.String("id", id), logger.String("tier", string(tier)), logger.Error(err))
				continue
			}

			d.mu.Lock()
			q, ok = d.queue[id]
			if !ok {
				d.mu.Unlock()
				break
			}
			var e models.FeedEntry
			if full {
				e = d.decideLocked(q, tier, models.DeliveryFull, "", false, now)
			} else {
				e = d.decideLocked(q, tier, models.DeliveryLocked, lockQuota, true, now)
			}
			activate := full && !q.activated
			if activate {
				q.activated = true
			}
			if len(d.decisions[id]) == len(models.Tiers) {
				delete(d.queue, id)
			}
			d.mu.Unlock()

			d.announce(e)
			if activate && d.activator != nil {
				if err := d.activator.Activate(ctx, id, now); err != nil {
					d.log.Debug("activation skipped", logger.String("id", id), logger.Error(err))
				}
			}
		}
	}
}

func (d *DistributionScheduler) dueLocked(q *queued, tier models.Tier, now time.Time) bool {
	created := q.signal.CreatedAt
	switch tier {
	case models.TierMax:
		return !now.Before(created.Add(d.cfg.MaxDelay))
	case models.TierPro:
		return !now.Before(created.Add(d.cfg.ProDelay))
	case models.TierFree:
		return q.signal.Tier == models.TierFree && !now.Before(q.freeAt)
	}
	return false
}

func (d *DistributionScheduler) decideLocked(q *queued, tier models.Tier, mode models.DeliveryMode, reason string, missed bool, now time.Time) models.FeedEntry {
	del := models.Delivery{
		SignalID:    q.signal.ID,
		Tier:        tier,
		Mode:        mode,
		Missed:      missed,
		Reason:      reason,
		DeliveredAt: now,
	}
	d.decisions[q.signal.ID][tier] = del
	view := models.FullView(q.signal)
	if mode == models.DeliveryLocked {
		view = models.LockedView(q.signal, reason, missed)
	}
	e := models.FeedEntry{Delivery: del, View: view}
	d.pushFeedLocked(tier, e)
	d.metrics.RecordDelivery(string(tier), string(mode))
	return e
}

func (d *DistributionScheduler) pushFeedLocked(tier models.Tier, e models.FeedEntry) {
	f := d.feeds[tier]
	for i := range f {
		if f[i].Delivery.SignalID == e.Delivery.SignalID {
			f = append(f[:i], f[i+1:]...)
			break
		}
	}
	f = append(f, e)
	if over := len(f) - d.cfg.FeedSize; over > 0 {
		f = f[over:]
	}
	d.feeds[tier] = f
}

func (d *DistributionScheduler) dropLocked(id string) {
	delete(d.queue, id)
}

func (d *DistributionScheduler) announce(e models.FeedEntry) {
	d.log.Debug("signal delivered",
		logger.String("id", e.Delivery.SignalID),
		logger.String("tier", string(e.Delivery.Tier)),
		logger.String("mode", string(e.Delivery.Mode)),
		logger.Bool("missed", e.Delivery.Missed))
	if d.events == nil {
		return
	}
	v := e.View
	d.events.Publish(models.Event{
		Kind:     models.EventSignalDelivered,
		SignalID: e.Delivery.SignalID,
		Symbol:   v.Symbol,
		Tier:     e.Delivery.Tier,
		View:     &v,
		At:       e.Delivery.DeliveredAt,
	})
}

// OnOutcome forgets a resolved signal. Feeds keep their historical entries.
func (d *DistributionScheduler) OnOutcome(_ context.Context, s models.ApprovedSignal, _ models.Outcome) {
	d.mu.Lock()
	delete(d.queue, s.ID)
	delete(d.decisions, s.ID)
	d.mu.Unlock()
}

// ViewFor returns what tier may see of s: full detail only after a full delivery.
func (d *DistributionScheduler) ViewFor(tier models.Tier, s models.ApprovedSignal) models.SignalView {
	d.mu.Lock()
	del, ok := d.decisions[s.ID][tier]
	d.mu.Unlock()
	if !ok {
		return models.LockedView(s, lockNotReleased, false)
	}
	if del.Mode == models.DeliveryFull {
		return models.FullView(s)
	}
	return models.LockedView(s, del.Reason, del.Missed)
}

// Views maps signals to the views of tier.
func (d *DistributionScheduler) Views(tier models.Tier, signals []models.ApprovedSignal) []models.SignalView {
	out := make([]models.SignalView, 0, len(signals))
	for _, s := range signals {
		out = append(out, d.ViewFor(tier, s))
	}
	return out
}

// Feed returns up to limit of the newest feed entries of tier, newest first.
func (d *DistributionScheduler) Feed(tier models.Tier, limit int) []models.FeedEntry {
	d.mu.Lock()
	f := d.feeds[tier]
	if limit <= 0 || limit > len(f) {
		limit = len(f)
	}
	out := make([]models.FeedEntry, 0, limit)
	for i := len(f) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f[i])
	}
	d.mu.Unlock()
	return out
}

// Deliveries returns the delivery records currently in the feed of tier, newest first.
func (d *DistributionScheduler) Deliveries(tier models.Tier) []models.Delivery {
	feed := d.Feed(tier, 0)
	out := make([]models.Delivery, 0, len(feed))
	for _, e := range feed {
		out = append(out, e.Delivery)
	}
	return out
}

// QueueLen returns the number of signals with at least one tier undecided.
func (d *DistributionScheduler) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Quota exposes the ledger status of tier.
func (d *DistributionScheduler) Quota(ctx context.Context, tier models.Tier) (models.QuotaStatus, error) {
	return d.ledger.Status(ctx, tier, d.now())
}

// ResetQuota runs the daily window rollover.
func (d *DistributionScheduler) ResetQuota(ctx context.Context) {
	d.ledger.Rollover(ctx, d.now())
}
