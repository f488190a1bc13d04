package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"IgniteX/internal/domain/models"
	drepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
)

// TickProcessor feeds the market state and batches accepted ticks into an
// optional archive.
type TickProcessor struct {
	market  drepo.TickSink
	archive drepo.TickArchive
	metrics drepo.Metrics
	log     *logger.Logger
	batchSz int

	mu      sync.Mutex
	pending []models.Tick
}

func NewTickProcessor(market drepo.TickSink, archive drepo.TickArchive, metrics drepo.Metrics, log *logger.Logger, batchSz int) *TickProcessor {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if batchSz <= 0 {
		batchSz = 500
	}
	return &TickProcessor{market: market, archive: archive, metrics: metrics, log: log, batchSz: batchSz}
}

// IngestTick hands t to the market state. The archive never sees a tick the
// market state rejected; out-of-order ticks are archived since they are real prints.
func (p *TickProcessor) IngestTick(ctx context.Context, t models.Tick) error {
	if err := p.market.IngestTick(ctx, t); err != nil {
		return fmt.Errorf("ingest tick: %w", err)
	}
	if p.archive == nil {
		return nil
	}
	p.mu.Lock()
	p.pending = append(p.pending, t)
	full := len(p.pending) >= p.batchSz
	p.mu.Unlock()
	if full {
		p.Flush(ctx)
	}
	return nil
}

func (p *TickProcessor) ReportSourceHealth(ctx context.Context, h models.SourceHealth) {
	p.market.ReportSourceHealth(ctx, h)
}

// Flush writes pending ticks to the archive. A failed batch is put back in
// front, capped at ten batches so an unreachable archive cannot grow memory unbounded.
func (p *TickProcessor) Flush(ctx context.Context) {
	if p.archive == nil {
		return
	}
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	if err := p.archive.StoreBatch(ctx, batch); err != nil {
		p.log.Warn("tick archive flush failed", logger.Int("ticks", len(batch)), logger.Error(err))
		p.mu.Lock()
		p.pending = append(batch, p.pending...)
		if over := len(p.pending) - 10*p.batchSz; over > 0 {
			p.pending = p.pending[over:]
			p.metrics.RecordTickDropped("archive_overflow")
		}
		p.mu.Unlock()
		return
	}
	p.metrics.RecordLatency("tick_archive_flush", time.Since(start).Seconds())
}

// Pending returns the number of ticks waiting for the archive.
func (p *TickProcessor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
