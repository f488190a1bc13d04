package kafka

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "ignitex_kafka_"

// register registers c on reg and returns the collector already registered
// under the same descriptor when there is one, so several producers or
// consumers can share a registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

type producerMetrics struct {
	msgs    *prometheus.CounterVec
	errs    *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &producerMetrics{
		msgs: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: metricPrefix + "producer_messages_total", Help: "Total messages published to Kafka"},
			[]string{"topic", "compression", "result"},
		)),
		errs: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: metricPrefix + "producer_errors_total", Help: "Total producer errors"},
			[]string{"topic"},
		)),
		bytes: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: metricPrefix + "producer_bytes_total", Help: "Total payload bytes published"},
			[]string{"topic", "compression"},
		)),
		latency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: metricPrefix + "producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)),
	}
}

type consumerMetrics struct {
	queueDepth *prometheus.GaugeVec
	fullness   *prometheus.GaugeVec
	handle     *prometheus.HistogramVec
	failures   *prometheus.CounterVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &consumerMetrics{
		queueDepth: register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: metricPrefix + "consumer_queue_depth", Help: "Number of messages waiting in consumer queue"},
			[]string{"topic"},
		)),
		fullness: register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: metricPrefix + "consumer_queue_fullness", Help: "Queue utilization ratio (len/cap)"},
			[]string{"topic"},
		)),
		handle: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: metricPrefix + "consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)),
		failures: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: metricPrefix + "consumer_failed_total", Help: "Messages that failed after all retries"},
			[]string{"topic", "dlq"},
		)),
	}
}
