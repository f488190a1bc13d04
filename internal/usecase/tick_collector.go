package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"IgniteX/internal/domain/models"
	drepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
)

// TickCollector pumps a MarketStream into a TickSink and reports the stream's
// own health as a market source.
type TickCollector struct {
	stream  drepo.MarketStream
	sink    drepo.TickSink
	metrics drepo.Metrics
	log     *logger.Logger
	every   time.Duration
	now     func() time.Time

	latencyMs atomic.Int64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewTickCollector(stream drepo.MarketStream, sink drepo.TickSink, metrics drepo.Metrics, log *logger.Logger, healthEvery time.Duration) *TickCollector {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if healthEvery <= 0 {
		healthEvery = 5 * time.Second
	}
	return &TickCollector{stream: stream, sink: sink, metrics: metrics, log: log, every: healthEvery, now: time.Now}
}

func (c *TickCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start connects and subscribes, then consumes in the background until Stop.
func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go c.consume(ctx)
	go c.reportHealth(ctx)
	return nil
}

func (c *TickCollector) consume(ctx context.Context) {
	defer c.wg.Done()
	for ctx.Err() == nil {
		ticks, errs := c.stream.Read(ctx)
		c.drain(ctx, ticks, errs)
		if ctx.Err() != nil {
			return
		}
		c.report(ctx)
		if err := c.stream.Reconnect(ctx); err != nil {
			c.log.Warn("feed reconnect failed", logger.String("source", c.stream.SourceID()), logger.Error(err))
		}
	}
}

// drain returns when the stream fails or both channels close.
func (c *TickCollector) drain(ctx context.Context, ticks <-chan models.Tick, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				c.log.Warn("feed stream error", logger.String("source", c.stream.SourceID()), logger.Error(err))
				return
			}
			if !ok {
				errs = nil
			}
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if lag := c.now().UnixMilli() - t.TimestampMs; lag >= 0 {
				c.latencyMs.Store(lag)
			}
			if err := c.sink.IngestTick(ctx, t); err != nil {
				c.log.Debug("tick not ingested", logger.String("symbol", t.Symbol), logger.Error(err))
			}
		}
	}
}

func (c *TickCollector) reportHealth(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.report(ctx)
		}
	}
}

func (c *TickCollector) report(ctx context.Context) {
	c.sink.ReportSourceHealth(ctx, models.SourceHealth{
		SourceID:  c.stream.SourceID(),
		Connected: c.stream.IsConnected(),
		LatencyMs: c.latencyMs.Load(),
		UpdatedAt: c.now(),
	})
}

// Shutdown stops consuming and closes the stream.
func (c *TickCollector) Shutdown(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()
	c.wg.Wait()
	return err
}
