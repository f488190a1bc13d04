package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
)

// MarketSnapshot is everything the ensemble needs for one symbol at one instant.
type MarketSnapshot struct {
	Window       models.TickWindow
	Latest       models.PricePoint
	DataQuality  float64
	SourcesUsed  int
	RecentVolume float64
}

type symbolState struct {
	ticks      []models.Tick
	latest     models.PricePoint
	hasLatest  bool
	sourceSeen map[string]time.Time
}

// MarketState keeps a bounded per-symbol tick window, the latest known price and
// per-source health. The latest price never moves backwards in time.
type MarketState struct {
	mu      sync.RWMutex
	symbols map[string]*symbolState
	sources map[string]models.SourceHealth

	windowSize      int
	maxAge          time.Duration
	staleAfter      time.Duration
	latencyBudget   time.Duration
	expectedSources int
	volumeWindow    time.Duration
	now             func() time.Time

	log     *logger.Logger
	metrics domrepo.Metrics
}

type MarketStateOption func(*MarketState)

// WithWindowSize caps the ticks kept per symbol.
func WithWindowSize(n int) MarketStateOption {
	return func(m *MarketState) {
		if n > 1 {
			m.windowSize = n
		}
	}
}

// WithMaxAge drops ticks older than d from windows.
func WithMaxAge(d time.Duration) MarketStateOption {
	return func(m *MarketState) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// WithSourceQuality sets how source freshness and latency turn into data quality.
func WithSourceQuality(staleAfter, latencyBudget time.Duration, expectedSources int) MarketStateOption {
	return func(m *MarketState) {
		if staleAfter > 0 {
			m.staleAfter = staleAfter
		}
		if latencyBudget > 0 {
			m.latencyBudget = latencyBudget
		}
		if expectedSources > 0 {
			m.expectedSources = expectedSources
		}
	}
}

// WithVolumeWindow sets the lookback for aggregated recent volume.
func WithVolumeWindow(d time.Duration) MarketStateOption {
	return func(m *MarketState) {
		if d > 0 {
			m.volumeWindow = d
		}
	}
}

func WithMarketClock(now func() time.Time) MarketStateOption {
	return func(m *MarketState) { m.now = now }
}

func NewMarketState(log *logger.Logger, metrics domrepo.Metrics, opts ...MarketStateOption) *MarketState {
	m := &MarketState{
		symbols:         make(map[string]*symbolState),
		sources:         make(map[string]models.SourceHealth),
		windowSize:      120,
		maxAge:          15 * time.Minute,
		staleAfter:      30 * time.Second,
		latencyBudget:   2 * time.Second,
		expectedSources: 2,
		volumeWindow:    5 * time.Minute,
		now:             time.Now,
		log:             log,
		metrics:         metrics,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = nopMetrics{}
	}
	return m
}

// IngestTick adds t to its symbol window in timestamp order and marks its source
// as seen. Only a tick at or after the latest known price moves that price; an
// out-of-order tick from a lagging source still counts toward volume and quality.
func (m *MarketState) IngestTick(_ context.Context, t models.Tick) error {
	if err := t.Validate(); err != nil {
		m.metrics.RecordTickDropped("invalid")
		return err
	}
	m.mu.Lock()
	st, ok := m.symbols[t.Symbol]
	if !ok {
		st = &symbolState{sourceSeen: make(map[string]time.Time)}
		m.symbols[t.Symbol] = st
	}
	st.sourceSeen[t.SourceID] = m.now()

	late := st.hasLatest && t.TimestampMs < st.latest.TimestampMs
	if late {
		i := sort.Search(len(st.ticks), func(i int) bool { return st.ticks[i].TimestampMs > t.TimestampMs })
		st.ticks = append(st.ticks, models.Tick{})
		copy(st.ticks[i+1:], st.ticks[i:])
		st.ticks[i] = t
	} else {
		st.latest = models.PricePoint{Price: t.Price, TimestampMs: t.TimestampMs}
		st.hasLatest = true
		st.ticks = append(st.ticks, t)
	}
	if over := len(st.ticks) - m.windowSize; over > 0 {
		st.ticks = append(st.ticks[:0:0], st.ticks[over:]...)
	}
	latest := st.latest
	m.mu.Unlock()

	m.metrics.RecordTick(t.SourceID)
	if late {
		m.log.Debug("out-of-order tick kept off latest price",
			logger.String("symbol", t.Symbol),
			logger.String("source", t.SourceID),
			logger.Int64("ts", t.TimestampMs),
			logger.Int64("latest_ts", latest.TimestampMs))
		return nil
	}
	m.metrics.RecordLastPrice(t.Symbol, t.Price)
	return nil
}

// ReportSourceHealth records the latest health report of one aggregator source.
func (m *MarketState) ReportSourceHealth(_ context.Context, h models.SourceHealth) {
	if h.SourceID == "" {
		return
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = m.now()
	}
	m.mu.Lock()
	m.sources[h.SourceID] = h
	m.mu.Unlock()
	if !h.Connected {
		m.log.Warn("market source disconnected", logger.String("source", h.SourceID))
	}
}

// Latest returns the newest known price of symbol.
func (m *MarketState) Latest(symbol string) (models.PricePoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.symbols[symbol]
	if !ok || !st.hasLatest {
		return models.PricePoint{}, false
	}
	return st.latest, true
}

// Symbols returns every symbol with at least one tick, sorted.
func (m *MarketState) Symbols() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.symbols))
	for s := range m.symbols {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Sources returns a copy of all known source health reports.
func (m *MarketState) Sources() []models.SourceHealth {
	m.mu.RLock()
	out := make([]models.SourceHealth, 0, len(m.sources))
	for _, h := range m.sources {
		out = append(out, h)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Snapshot returns a copy of the symbol window with derived quality and volume.
func (m *MarketState) Snapshot(symbol string) (MarketSnapshot, bool) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.symbols[symbol]
	if !ok || !st.hasLatest {
		return MarketSnapshot{}, false
	}

	cutoff := now.Add(-m.maxAge).UnixMilli()
	volCutoff := now.Add(-m.volumeWindow).UnixMilli()
	ticks := make([]models.Tick, 0, len(st.ticks))
	var vol float64
	for _, t := range st.ticks {
		if t.TimestampMs < cutoff {
			continue
		}
		ticks = append(ticks, t)
		if t.TimestampMs >= volCutoff {
			vol += t.Volume
		}
	}

	quality, used := m.qualityLocked(st, now)
	return MarketSnapshot{
		Window:       models.TickWindow{Symbol: symbol, Ticks: ticks},
		Latest:       st.latest,
		DataQuality:  quality,
		SourcesUsed:  used,
		RecentVolume: vol,
	}, true
}

// qualityLocked scores fresh, connected sources. Each source is worth up to 100,
// minus up to half for latency above the budget; missing expected sources score 0.
func (m *MarketState) qualityLocked(st *symbolState, now time.Time) (float64, int) {
	var total float64
	used := 0
	for src, seen := range st.sourceSeen {
		if now.Sub(seen) > m.staleAfter {
			continue
		}
		score := 100.0
		if h, ok := m.sources[src]; ok {
			if !h.Connected {
				continue
			}
			penalty := float64(h.LatencyMs) / float64(m.latencyBudget.Milliseconds())
			if penalty > 1 {
				penalty = 1
			}
			score -= 50 * penalty
		}
		total += score
		used++
	}
	denom := m.expectedSources
	if used > denom {
		denom = used
	}
	if denom == 0 {
		return 0, 0
	}
	return total / float64(denom), used
}

var _ domrepo.TickSink = (*MarketState)(nil)
