package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/internal/service/ratelimit"
	"IgniteX/pkg/logger"
)

// RealtimePipeline sits between tick sources and the market state. It
// validates, throttles per symbol, optionally transforms, and buffers ticks
// the sink refused so they can be retried with backoff.
type RealtimePipeline struct {
	sink      domrepo.TickSink
	metrics   domrepo.Metrics
	log       *logger.Logger
	limiter   *ratelimit.Limiter
	maxRPS    float64
	bufSize   int
	bufCh     chan models.Tick
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	mu        sync.Mutex
	transform func(models.Tick) models.Tick
	now       func() time.Time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the sustained ticks per second allowed per symbol.
func WithMaxRPS(n float64) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook applied before the sink, e.g. symbol normalization.
func WithTransform(fn func(models.Tick) models.Tick) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

func NewRealtimePipeline(sink domrepo.TickSink, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		sink:    sink,
		metrics: metrics,
		log:     log,
		maxRPS:  50,
		bufSize: 1024,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Tick, p.bufSize)
	p.limiter = ratelimit.NewWithClock(p.now)
	return p
}

// Start launches the retry loop for buffered ticks.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case t := <-p.bufCh:
				if err := p.sink.IngestTick(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordTickDropped("buffer_full")
					}
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

// Stop ends the retry loop. Buffered ticks are discarded.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// IngestTick validates, throttles and forwards t. A throttled tick is dropped
// without error; a sink failure buffers the tick and returns the error.
func (p *RealtimePipeline) IngestTick(ctx context.Context, t models.Tick) error {
	start := p.now()
	if p.transform != nil {
		t = p.transform(t)
	}
	if err := t.Validate(); err != nil {
		p.metrics.RecordTickDropped("invalid")
		return err
	}
	if !p.limiter.Allow(t.Symbol, p.maxRPS, p.maxRPS) {
		p.metrics.RecordTickDropped("throttled")
		return nil
	}
	if err := p.sink.IngestTick(ctx, t); err != nil {
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordTickDropped("buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_ingest", p.now().Sub(start).Seconds())
	return nil
}

// ReportSourceHealth passes straight through.
func (p *RealtimePipeline) ReportSourceHealth(ctx context.Context, h models.SourceHealth) {
	p.sink.ReportSourceHealth(ctx, h)
}

// Buffered returns the number of ticks waiting for retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }
