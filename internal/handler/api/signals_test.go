package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/internal/service/ratelimit"
	"IgniteX/pkg/cache"
	"IgniteX/pkg/logger"
)

type fakeSignals struct {
	mu           sync.Mutex
	active       []models.ApprovedSignal
	history      []models.SignalRecord
	err          error
	historyCalls int
	lastLimit    int
}

func (f *fakeSignals) ActiveSignals() []models.ApprovedSignal { return f.active }

func (f *fakeSignals) History(_ context.Context, limit int) ([]models.SignalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	f.lastLimit = limit
	return f.history, f.err
}

func (f *fakeSignals) Stats() models.Stats {
	return models.Stats{TotalSignalsRegistered: 3, ActiveSignalsCount: len(f.active)}
}

type fakeDist struct{}

func (fakeDist) Views(tier models.Tier, signals []models.ApprovedSignal) []models.SignalView {
	out := make([]models.SignalView, 0, len(signals))
	for _, s := range signals {
		out = append(out, models.SignalView{ID: s.ID, Symbol: s.Symbol, Locked: tier == models.TierFree})
	}
	return out
}

func (fakeDist) Feed(tier models.Tier, _ int) []models.FeedEntry {
	return []models.FeedEntry{{Delivery: models.Delivery{SignalID: "s1", Tier: tier, Mode: models.DeliveryFull}}}
}

func (fakeDist) Quota(_ context.Context, tier models.Tier) (models.QuotaStatus, error) {
	if tier == models.TierMax {
		return models.QuotaStatus{}, fmt.Errorf("quota: %w", domrepo.ErrUnknownTier)
	}
	return models.QuotaStatus{Tier: tier, Limit: 10, Used: 4, Remaining: 6}, nil
}

type fakeStrategies struct {
	mu     sync.Mutex
	health map[string]models.StrategyHealth
}

func (f *fakeStrategies) Snapshot() []models.StrategyHealth {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.StrategyHealth, 0, len(f.health))
	for _, h := range f.health {
		out = append(out, h)
	}
	return out
}

func (f *fakeStrategies) set(id string, disabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.health[id]
	if !ok {
		return fmt.Errorf("strategy %s: %w", id, domrepo.ErrUnknownStrategy)
	}
	h.Disabled = disabled
	h.Healthy = !disabled
	f.health[id] = h
	return nil
}

func (f *fakeStrategies) Disable(id string) error { return f.set(id, true) }
func (f *fakeStrategies) Enable(id string) error  { return f.set(id, false) }

type fakePerformance struct{}

func (fakePerformance) Snapshot() models.Performance {
	return models.Performance{Wins: 2, Losses: 1, Completed: 3}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type listData struct {
	Rows  json.RawMessage `json:"rows"`
	Total int64           `json:"total"`
}

type apiFixture struct {
	e          *echo.Echo
	h          *SignalsHandler
	signals    *fakeSignals
	strategies *fakeStrategies
}

func newAPIFixture(t *testing.T, opts ...Option) *apiFixture {
	t.Helper()
	f := &apiFixture{
		e: echo.New(),
		signals: &fakeSignals{active: []models.ApprovedSignal{
			{ID: "s1", Symbol: "BTCUSDT", Status: models.StatusActive},
			{ID: "s2", Symbol: "ETHUSDT", Status: models.StatusActive},
		}},
		strategies: &fakeStrategies{health: map[string]models.StrategyHealth{
			"momentum": {StrategyID: "momentum", Healthy: true, Weight: 1},
		}},
	}
	f.h = NewSignalsHandler(logger.Nop(), f.signals, fakeDist{}, f.strategies, fakePerformance{}, opts...)
	f.h.RegisterRoutes(f.e)
	return f
}

func (f *apiFixture) do(t *testing.T, method, target string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestActiveSignalsPerTier(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/signals/active?tier=free")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, http.StatusOK, env.Status)
	var list listData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)
	var views []models.SignalView
	require.NoError(t, json.Unmarshal(list.Rows, &views))
	assert.True(t, views[0].Locked)

	code, env = f.do(t, http.MethodGet, "/api/signals/active")
	require.Equal(t, http.StatusOK, code, "tier defaults to PRO")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.NoError(t, json.Unmarshal(list.Rows, &views))
	assert.False(t, views[0].Locked)

	code, _ = f.do(t, http.MethodGet, "/api/signals/active?tier=GOLD")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHistoryIsCached(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	f := newAPIFixture(t, WithHistoryCache(mc, time.Minute))
	f.signals.history = []models.SignalRecord{{Signal: models.ApprovedSignal{ID: "s1"}, Version: 2}}

	for i := 0; i < 2; i++ {
		code, env := f.do(t, http.MethodGet, "/api/signals/history")
		require.Equal(t, http.StatusOK, code)
		var list listData
		require.NoError(t, json.Unmarshal(env.Data, &list))
		assert.Equal(t, int64(1), list.Total)
	}
	assert.Equal(t, 1, f.signals.historyCalls)
	assert.Equal(t, 50, f.signals.lastLimit)

	code, _ := f.do(t, http.MethodGet, "/api/signals/history?limit=501")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHistoryFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.signals.err = errors.New("clickhouse timeout")

	code, env := f.do(t, http.MethodGet, "/api/signals/history?limit=5")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, string(env.Data), "clickhouse")
}

func TestHistoryRateLimited(t *testing.T) {
	f := newAPIFixture(t)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f.h.rl = ratelimit.NewWithClock(func() time.Time { return at })

	for i := 0; i < 10; i++ {
		code, _ := f.do(t, http.MethodGet, "/api/signals/history")
		require.Equal(t, http.StatusOK, code, "request %d", i)
	}
	code, _ := f.do(t, http.MethodGet, "/api/signals/history")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestQuota(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/quota?tier=PRO")
	require.Equal(t, http.StatusOK, code)
	var q models.QuotaStatus
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, 6, q.Remaining)

	code, _ = f.do(t, http.MethodGet, "/api/quota?tier=MAX")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStrategyToggle(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/strategies/momentum/disable")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"momentum","state":"disabled"}`, string(env.Data))

	code, env = f.do(t, http.MethodGet, "/api/strategies/health")
	require.Equal(t, http.StatusOK, code)
	var health map[string]strategyHealthView
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.True(t, health["momentum"].Disabled)

	code, _ = f.do(t, http.MethodPost, "/api/strategies/momentum/enable")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, f.strategies.health["momentum"].Disabled)

	code, _ = f.do(t, http.MethodPost, "/api/strategies/astrology/disable")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatsFeedAndPerformance(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, code)
	var st models.Stats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 2, st.ActiveSignalsCount)

	code, env = f.do(t, http.MethodGet, "/api/feed?tier=max")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(string(env.Data), `"tier":"MAX"`))

	code, env = f.do(t, http.MethodGet, "/api/performance")
	require.Equal(t, http.StatusOK, code)
	var perf models.Performance
	require.NoError(t, json.Unmarshal(env.Data, &perf))
	assert.Equal(t, 3, perf.Completed)
}

func TestHealthz(t *testing.T) {
	healthy := newAPIFixture(t, WithHealthCheck("redis", func(context.Context) error { return nil }))
	code, env := healthy.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"redis":"ok"}`, string(env.Data))

	failing := newAPIFixture(t,
		WithHealthCheck("redis", func(context.Context) error { return nil }),
		WithHealthCheck("clickhouse", func(context.Context) error { return errors.New("dial timeout") }))
	code, env = failing.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"redis":"ok","clickhouse":"dial timeout"}`, string(env.Data))
}
