package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) all() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).With(String("component", "gate"))

	l.Info("signal approved",
		String("symbol", "BTCUSDT"),
		Int("agreeing", 3),
		Float64("quality", 81.5),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "signal approved", line["message"])
	assert.Equal(t, "gate", line["component"])
	assert.Equal(t, "BTCUSDT", line["symbol"])
	assert.Equal(t, 3.0, line["agreeing"])
	assert.Equal(t, 1500.0, line["took_ms"])
	assert.Equal(t, "boom", line["error"])
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Debug("hidden", String("k", "v"))
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestCollectorDigestsRepeatedWarnings(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	child := l.With(String("component", "feed"))
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		child.Warn("feed reconnect", String("source", "ws"))
	}
	child.Error("feed reconnect", String("source", "other"))
	child.Info("not digested")
	l.RemoveCollector()

	entries := pub.all()
	require.Len(t, entries, 2)
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Level+"/"+e.Fields["source"].(string)] = e.Count
		assert.Equal(t, "feed reconnect", e.Message)
	}
	assert.Equal(t, map[string]int{"warn/ws": 3, "error/other": 1}, counts)
	assert.Equal(t, "logs", pub.topic)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("warn", "a", nil, "x.go:1")
	c.AddLog("warn", "b", nil, "x.go:2")

	require.Eventually(t, func() bool { return len(pub.all()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestEntryKeyIgnoresFieldOrder(t *testing.T) {
	a := entryKey("warn", "m", map[string]interface{}{"a": 1, "b": "x"}, "c")
	b := entryKey("warn", "m", map[string]interface{}{"b": "x", "a": 1}, "c")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, entryKey("error", "m", map[string]interface{}{"a": 1, "b": "x"}, "c"))
}
