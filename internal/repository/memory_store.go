package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
)

// MemorySignalStore keeps the latest version of every signal in process.
type MemorySignalStore struct {
	mu      sync.RWMutex
	records map[string]models.SignalRecord
}

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{records: make(map[string]models.SignalRecord)}
}

func (s *MemorySignalStore) Init(context.Context) error { return nil }

// Save ignores versions older than the stored one.
func (s *MemorySignalStore) Save(_ context.Context, rec models.SignalRecord) error {
	if rec.Signal.ID == "" {
		return fmt.Errorf("save signal: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.records[rec.Signal.ID]; ok && cur.Version > rec.Version {
		return nil
	}
	s.records[rec.Signal.ID] = copyRecord(rec)
	return nil
}

func (s *MemorySignalStore) Get(_ context.Context, id string) (models.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return models.SignalRecord{}, fmt.Errorf("signal %s: %w", id, domrepo.ErrNotFound)
	}
	return copyRecord(rec), nil
}

func (s *MemorySignalStore) ListOpen(context.Context) ([]models.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SignalRecord, 0)
	for _, rec := range s.records {
		if rec.Signal.Status.Open() {
			out = append(out, copyRecord(rec))
		}
	}
	sortByCreated(out)
	return out, nil
}

// History returns up to limit records, newest first.
func (s *MemorySignalStore) History(_ context.Context, limit int) ([]models.SignalRecord, error) {
	s.mu.RLock()
	out := make([]models.SignalRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyRecord(rec))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Signal.CreatedAt.Equal(out[j].Signal.CreatedAt) {
			return out[i].Signal.ID > out[j].Signal.ID
		}
		return out[i].Signal.CreatedAt.After(out[j].Signal.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySignalStore) Close() error { return nil }

func sortByCreated(recs []models.SignalRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Signal.CreatedAt.Equal(recs[j].Signal.CreatedAt) {
			return recs[i].Signal.ID < recs[j].Signal.ID
		}
		return recs[i].Signal.CreatedAt.Before(recs[j].Signal.CreatedAt)
	})
}

func copyRecord(r models.SignalRecord) models.SignalRecord {
	out := models.SignalRecord{Signal: r.Signal.Clone(), Version: r.Version}
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

// MemoryHealthStore keeps the last saved strategy health snapshot.
type MemoryHealthStore struct {
	mu     sync.RWMutex
	health map[string]models.StrategyHealth
}

func NewMemoryHealthStore() *MemoryHealthStore {
	return &MemoryHealthStore{health: make(map[string]models.StrategyHealth)}
}

func (s *MemoryHealthStore) SaveHealth(_ context.Context, health []models.StrategyHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range health {
		s.health[h.StrategyID] = h
	}
	return nil
}

func (s *MemoryHealthStore) LoadHealth(context.Context) ([]models.StrategyHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StrategyHealth, 0, len(s.health))
	for _, h := range s.health {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out, nil
}

// MemoryQuotaStore counts deliveries per tier and window in process.
type MemoryQuotaStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{counts: make(map[string]int)}
}

func quotaKey(tier models.Tier, window string) string {
	return "quota:" + string(tier) + ":" + window
}

func (s *MemoryQuotaStore) Consume(_ context.Context, tier models.Tier, window string, limit int, _ time.Duration) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := quotaKey(tier, window)
	used := s.counts[k]
	if used >= limit {
		return used, false, nil
	}
	used++
	s.counts[k] = used
	return used, true, nil
}

func (s *MemoryQuotaStore) Used(_ context.Context, tier models.Tier, window string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[quotaKey(tier, window)], nil
}

func (s *MemoryQuotaStore) Reset(_ context.Context, tier models.Tier, window string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, quotaKey(tier, window))
	return nil
}
