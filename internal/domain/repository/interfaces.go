package repository

import (
	"context"
	"errors"
	"time"

	"IgniteX/internal/domain/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrUnknownTier       = errors.New("unknown tier")
)

// MarketStream is a live tick source from the market data aggregator.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
	SourceID() string
}

// TickSink accepts aggregator events.
type TickSink interface {
	IngestTick(ctx context.Context, t models.Tick) error
	ReportSourceHealth(ctx context.Context, h models.SourceHealth)
}

// TickArchive stores raw ticks for replay.
type TickArchive interface {
	StoreBatch(ctx context.Context, ticks []models.Tick) error
}

// SignalStore persists approved signals with their lifecycle and outcome.
// Save appends a new version of the record; readers see the latest version per id.
type SignalStore interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, rec models.SignalRecord) error
	Get(ctx context.Context, id string) (models.SignalRecord, error)
	ListOpen(ctx context.Context) ([]models.SignalRecord, error)
	History(ctx context.Context, limit int) ([]models.SignalRecord, error)
	Close() error
}

// HealthStore persists per-strategy health.
type HealthStore interface {
	SaveHealth(ctx context.Context, health []models.StrategyHealth) error
	LoadHealth(ctx context.Context) ([]models.StrategyHealth, error)
}

// QuotaStore holds per-tier counters keyed by window. Consume must be atomic:
// it increments only while used < limit.
type QuotaStore interface {
	Consume(ctx context.Context, tier models.Tier, window string, limit int, ttl time.Duration) (used int, ok bool, err error)
	Used(ctx context.Context, tier models.Tier, window string) (int, error)
	Reset(ctx context.Context, tier models.Tier, window string) error
}

// EventPublisher ships notification events out of process.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e models.Event) error
}

// Locker serializes work on a key across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordTick(source string)
	RecordTickDropped(reason string)
	RecordLastPrice(symbol string, price float64)
	RecordStrategyError(strategyID string)
	RecordStrategyDisabled(strategyID string, disabled bool)
	RecordThreshold(passed bool)
	RecordGateDecision(decision string)
	RecordOutcome(result string)
	RecordDelivery(tier, mode string)
	RecordQuotaUsed(tier string, used int)
	RecordEventDropped(kind string)
	RecordLatency(op string, seconds float64)
}
