package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	pkgkafka "IgniteX/pkg/kafka"
	"IgniteX/pkg/util"
)

// tickMessage is the aggregator wire format. ts may be seconds or milliseconds.
type tickMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	TS     int64   `json:"ts"`
	Source string  `json:"source"`
}

// KafkaTicksHandler decodes aggregator ticks into a TickSink.
type KafkaTicksHandler struct {
	topic         string
	sink          domrepo.TickSink
	metrics       domrepo.Metrics
	defaultSource string
	now           func() time.Time
}

func NewKafkaTicksHandler(topic string, sink domrepo.TickSink, metrics domrepo.Metrics, defaultSource string) *KafkaTicksHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &KafkaTicksHandler{topic: topic, sink: sink, metrics: metrics, defaultSource: defaultSource, now: time.Now}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m tickMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordTickDropped("decode")
		return fmt.Errorf("decode tick: %w", err)
	}
	m.TS = util.EpochMillis(m.TS)
	if m.Source == "" {
		m.Source = h.defaultSource
	}
	t := models.Tick{Symbol: util.NormalizeSymbol(m.Symbol), Price: m.Price, Volume: m.Volume, TimestampMs: m.TS, SourceID: m.Source}
	if m.TS > 0 {
		h.metrics.RecordLatency("ingest_e2e", h.now().Sub(t.Time()).Seconds())
	}
	return h.sink.IngestTick(ctx, t)
}

// healthMessage is the aggregator source health wire format.
type healthMessage struct {
	Source    string `json:"source"`
	Connected bool   `json:"connected"`
	LatencyMs int64  `json:"latency_ms"`
	TS        int64  `json:"ts"`
}

// KafkaSourceHealthHandler decodes aggregator source health reports.
type KafkaSourceHealthHandler struct {
	topic string
	sink  domrepo.TickSink
	now   func() time.Time
}

func NewKafkaSourceHealthHandler(topic string, sink domrepo.TickSink) *KafkaSourceHealthHandler {
	return &KafkaSourceHealthHandler{topic: topic, sink: sink, now: time.Now}
}

func (h *KafkaSourceHealthHandler) Topic() string { return h.topic }

func (h *KafkaSourceHealthHandler) Handle(ctx context.Context, b []byte) error {
	var m healthMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode source health: %w", err)
	}
	if m.Source == "" {
		return fmt.Errorf("source health: source empty")
	}
	at, ok := util.TimeFromEpoch(m.TS)
	if !ok {
		at = h.now()
	}
	h.sink.ReportSourceHealth(ctx, models.SourceHealth{
		SourceID:  m.Source,
		Connected: m.Connected,
		LatencyMs: m.LatencyMs,
		UpdatedAt: at,
	})
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaSourceHealthHandler)(nil)
)
