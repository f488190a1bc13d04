package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IgniteX/internal/domain/models"
	"IgniteX/pkg/logger"
)

type dropMetrics struct {
	mu      sync.Mutex
	dropped map[string]int
}

func newDropMetrics() *dropMetrics { return &dropMetrics{dropped: map[string]int{}} }

func (m *dropMetrics) RecordTickDropped(reason string) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *dropMetrics) count(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

func (m *dropMetrics) RecordTick(string)                   {}
func (m *dropMetrics) RecordLastPrice(string, float64)     {}
func (m *dropMetrics) RecordStrategyError(string)          {}
func (m *dropMetrics) RecordStrategyDisabled(string, bool) {}
func (m *dropMetrics) RecordThreshold(bool)                {}
func (m *dropMetrics) RecordGateDecision(string)           {}
func (m *dropMetrics) RecordOutcome(string)                {}
func (m *dropMetrics) RecordDelivery(string, string)       {}
func (m *dropMetrics) RecordQuotaUsed(string, int)         {}
func (m *dropMetrics) RecordEventDropped(string)           {}
func (m *dropMetrics) RecordLatency(string, float64)       {}

type flakySink struct {
	mu     sync.Mutex
	ticks  []models.Tick
	health int
	err    error
}

func (s *flakySink) IngestTick(_ context.Context, t models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ticks = append(s.ticks, t)
	return nil
}

func (s *flakySink) ReportSourceHealth(context.Context, models.SourceHealth) {
	s.mu.Lock()
	s.health++
	s.mu.Unlock()
}

func (s *flakySink) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *flakySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

var pipelineNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func tick(symbol string, price float64) models.Tick {
	return models.Tick{Symbol: symbol, Price: price, Volume: 1, TimestampMs: pipelineNow.UnixMilli(), SourceID: "a"}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	sink := &flakySink{}
	m := newDropMetrics()
	p := NewRealtimePipeline(sink, m, logger.Nop(), WithMaxRPS(2),
		WithPipelineClock(func() time.Time { return pipelineNow }))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.IngestTick(ctx, tick("BTCUSDT", 100)))
	}
	require.NoError(t, p.IngestTick(ctx, tick("ETHUSDT", 3000)))

	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 1, m.count("throttled"))
}

func TestPipelineTransformsAndValidates(t *testing.T) {
	sink := &flakySink{}
	m := newDropMetrics()
	p := NewRealtimePipeline(sink, m, logger.Nop(), WithTransform(func(t models.Tick) models.Tick {
		t.Symbol = strings.ToUpper(t.Symbol)
		return t
	}))
	ctx := context.Background()

	require.NoError(t, p.IngestTick(ctx, tick("btcusdt", 100)))
	assert.Equal(t, "BTCUSDT", sink.ticks[0].Symbol)

	assert.Error(t, p.IngestTick(ctx, tick("BTCUSDT", 0)))
	assert.Equal(t, 1, m.count("invalid"))

	p.ReportSourceHealth(ctx, models.SourceHealth{SourceID: "a"})
	assert.Equal(t, 1, sink.health)
}

func TestPipelineBuffersAndRetries(t *testing.T) {
	sink := &flakySink{err: errors.New("market state busy")}
	m := newDropMetrics()
	p := NewRealtimePipeline(sink, m, logger.Nop(), WithBufferSize(1))
	ctx := context.Background()

	assert.Error(t, p.IngestTick(ctx, tick("BTCUSDT", 100)))
	assert.Equal(t, 1, p.Buffered())
	assert.Error(t, p.IngestTick(ctx, tick("BTCUSDT", 101)))
	assert.Equal(t, 1, m.count("buffer_full"))

	sink.setErr(nil)
	p.Start(ctx)
	defer p.Stop()
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Buffered())
}
