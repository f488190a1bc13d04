package di

import (
	"context"
	"fmt"
	"time"

	"IgniteX/internal/domain/models"
	"IgniteX/internal/domain/repository"
	domsvc "IgniteX/internal/domain/service"
	"IgniteX/internal/handler/api"
	mid "IgniteX/internal/middleware"
	internalrepo "IgniteX/internal/repository"
	"IgniteX/internal/service/events"
	"IgniteX/internal/service/feed"
	"IgniteX/internal/services/analytics"
	"IgniteX/internal/services/strategies"
	"IgniteX/internal/usecase"
	"IgniteX/pkg/cache"
	pkgch "IgniteX/pkg/clickhouse"
	"IgniteX/pkg/config"
	xhttp "IgniteX/pkg/http"
	pkgkafka "IgniteX/pkg/kafka"
	"IgniteX/pkg/logger"
	"IgniteX/pkg/metrics"
	"IgniteX/pkg/queue"
	"IgniteX/pkg/scheduler"
	"IgniteX/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideRegistry creates the process metrics registry shared by the recorder,
// Kafka clients and the HTTP server.
func ProvideRegistry() *prometheus.Registry {
	return metrics.NewRegistry()
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. With Kafka and the digest
// enabled, repeated warnings and errors are aggregated and shipped to the
// logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer == nil || !cfg.Log.Digest.Enabled {
		return l, func() {}, nil
	}
	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:   cfg.Log.Digest.Interval,
		CountThreshold: cfg.Log.Digest.Threshold,
		Topic:          cfg.Kafka.LogsTopic,
		Publisher:      internalrepo.NewKafkaLogPublisher(producer),
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates the pipeline metrics recorder on reg.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.NewWithRegistry(reg)
}

// ProvideRedis connects to Redis, or returns nil when it is disabled.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 5*time.Second),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix+"cache"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideClickHouseClient connects to ClickHouse and applies the schema, or
// returns nil when it is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithCreateDatabase(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.SignalSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideSignalStore picks ClickHouse when configured, memory otherwise.
func ProvideSignalStore(cfg *config.Config, ch *pkgch.Client) (repository.SignalStore, error) {
	var store repository.SignalStore = internalrepo.NewMemorySignalStore()
	if ch != nil {
		store = internalrepo.NewClickHouseSignalStore(ch.DB(), cfg.ClickHouse.Database+".signals")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("signal store init: %w", err)
	}
	return store, nil
}

// ProvideTickArchive returns nil without ClickHouse; ticks are then not archived.
func ProvideTickArchive(cfg *config.Config, ch *pkgch.Client) repository.TickArchive {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseTickArchive(ch.DB(), cfg.ClickHouse.Database+".ticks")
}

func ProvideHealthStore(cfg *config.Config, rc *cache.RedisCache) repository.HealthStore {
	if rc == nil {
		return internalrepo.NewMemoryHealthStore()
	}
	return internalrepo.NewRedisHealthStore(rc.Client(), cfg.Redis.KeyPrefix)
}

func ProvideQuotaStore(cfg *config.Config, rc *cache.RedisCache) repository.QuotaStore {
	if rc == nil {
		return internalrepo.NewMemoryQuotaStore()
	}
	return internalrepo.NewRedisQuotaStore(rc.Client(), cfg.Redis.KeyPrefix)
}

// ProvideLocker serializes gate promotion across replicas when Redis is
// available, within the process otherwise.
func ProvideLocker(rc *cache.RedisCache) repository.Locker {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryCleanup(time.Minute))
	}
	return rc
}

// ProvideResponseCache caches API reads in memory, backed by Redis when enabled.
func ProvideResponseCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemorySize))
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MemorySize),
		cache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
	)
}

func ProvideEventBus(l *logger.Logger, m repository.Metrics) *events.Bus {
	return events.NewBus(l, m)
}

// ProvideWebhookQueue returns the retrying webhook delivery queue. It is nil
// without Redis or without a webhook URL.
func ProvideWebhookQueue(cfg *config.Config, rc *cache.RedisCache, l *logger.Logger) *queue.RedisQueue {
	if rc == nil || cfg.Notify.WebhookURL == "" {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Notify.Queue.Workers,
		RetryLimit: cfg.Notify.Queue.RetryLimit,
		RetryDelay: cfg.Notify.Queue.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.KeyPrefix+"queue"))
	q.RegisterJob(events.NewWebhookJob(events.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout)))
	return q
}

// ProvideForwarders subscribes one forwarder per configured sink.
func ProvideForwarders(cfg *config.Config, bus *events.Bus, producer *pkgkafka.Producer, q *queue.RedisQueue, l *logger.Logger) []*events.Forwarder {
	var out []*events.Forwarder
	if producer != nil {
		pub := internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
		out = append(out, events.NewForwarder("kafka", bus.Subscribe(cfg.Notify.Buffer), pub, cfg.Kafka.Producer.WriteTimeout, l))
	}
	if cfg.Notify.WebhookURL != "" {
		var sink repository.EventPublisher = events.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout)
		if q != nil {
			sink = events.NewQueuedNotifier(q)
		}
		out = append(out, events.NewForwarder("webhook", bus.Subscribe(cfg.Notify.Buffer), sink, cfg.Notify.WebhookTimeout, l))
	}
	return out
}

func ProvideMarketState(cfg *config.Config, l *logger.Logger, m repository.Metrics) *usecase.MarketState {
	return usecase.NewMarketState(l, m,
		usecase.WithWindowSize(cfg.Market.WindowSize),
		usecase.WithMaxAge(cfg.Market.MaxAge),
		usecase.WithSourceQuality(cfg.Market.SourceStaleAfter, cfg.Market.LatencyBudget, cfg.Market.ExpectedSources),
		usecase.WithVolumeWindow(cfg.Market.VolumeWindow),
	)
}

func ProvideTickProcessor(cfg *config.Config, market *usecase.MarketState, archive repository.TickArchive, m repository.Metrics, l *logger.Logger) *usecase.TickProcessor {
	return usecase.NewTickProcessor(market, archive, m, l, cfg.Ingest.ArchiveBatch)
}

func ProvideRealtimePipeline(cfg *config.Config, ticks *usecase.TickProcessor, m repository.Metrics, l *logger.Logger) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(ticks, m, l,
		mid.WithMaxRPS(cfg.Ingest.MaxRPS),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
	)
}

// ProvideTickCollector returns the websocket collector, or nil when the feed is disabled.
func ProvideTickCollector(cfg *config.Config, pipeline *mid.RealtimePipeline, m repository.Metrics, l *logger.Logger) *usecase.TickCollector {
	if !cfg.Feed.Enabled {
		return nil
	}
	stream := feed.New(cfg.Feed.URL, cfg.Feed.SourceID, cfg.Symbols, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, l)
	return usecase.NewTickCollector(stream, pipeline, m, l, cfg.Market.SourceStaleAfter/3)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger, reg *prometheus.Registry) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset("latest"),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerHooks(pkgkafka.TraceHook{}, pkgkafka.RejectEmpty{}),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaHandlers routes aggregator topics into the ingest pipeline.
func ProvideKafkaHandlers(cfg *config.Config, pipeline *mid.RealtimePipeline, m repository.Metrics) []pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled {
		return nil
	}
	return []pkgkafka.MessageHandler{
		usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, pipeline, m, "kafka"),
		usecase.NewKafkaSourceHealthHandler(cfg.Kafka.HealthTopic, pipeline),
	}
}

func ProvideThreshold(cfg *config.Config, m repository.Metrics) *usecase.AdaptiveThreshold {
	t := cfg.Threshold
	return usecase.NewAdaptiveThreshold(usecase.ThresholdConfig{
		Initial:        t.Initial,
		Min:            t.Min,
		Max:            t.Max,
		Step:           t.Step,
		TargetInterval: t.TargetInterval,
		Tolerance:      t.Tolerance,
		MaxSilence:     t.MaxSilence,
	}, m, time.Now)
}

// ProvideStrategies builds the enabled strategies. The remote strategy calls
// the model service at strategies.remote.url.
func ProvideStrategies(cfg *config.Config) ([]domsvc.Strategy, error) {
	var scorer domsvc.RemoteScorer
	if cfg.Strategies.Remote.URL != "" {
		scorer = analytics.NewHTTPEdgeScorer(analytics.NewHTTPServiceBase(cfg.Strategies.Remote.URL, cfg.Strategies.Remote.Timeout))
	}
	return strategies.Build(cfg, scorer)
}

func ProvideHealthRegistry(cfg *config.Config, strats []domsvc.Strategy, store repository.HealthStore, l *logger.Logger, m repository.Metrics) *usecase.HealthRegistry {
	ids := make([]string, 0, len(strats))
	for _, s := range strats {
		ids = append(ids, s.ID())
	}
	return usecase.NewHealthRegistry(ids, cfg.Ensemble.ErrorThreshold, store, l, m)
}

func ProvideEnsemble(cfg *config.Config, strats []domsvc.Strategy, health *usecase.HealthRegistry, l *logger.Logger, m repository.Metrics) *usecase.StrategyEnsemble {
	return usecase.NewStrategyEnsemble(strats, health, usecase.EnsembleConfig{
		Budget:           cfg.Ensemble.Budget,
		Concurrency:      cfg.Ensemble.Concurrency,
		MajorityFraction: cfg.Ensemble.MajorityFraction,
		MinParticipation: cfg.Ensemble.MinParticipation,
	}, l, m)
}

func ProvideLevelPlanner(cfg *config.Config) usecase.LevelPlanner {
	return usecase.LevelPlanner{
		StopMultiplier:  cfg.Levels.StopMultiplier,
		MinRiskPct:      cfg.Levels.MinRiskPct,
		MaxRiskPct:      cfg.Levels.MaxRiskPct,
		TargetMultiples: cfg.Levels.TargetMultiples,
	}
}

func ProvideQuotaLedger(cfg *config.Config, store repository.QuotaStore, l *logger.Logger, m repository.Metrics) *usecase.QuotaLedger {
	d := cfg.Distribution
	return usecase.NewQuotaLedger(store, map[models.Tier]int{
		models.TierFree: d.Free.DailyLimit,
		models.TierPro:  d.Pro.DailyLimit,
		models.TierMax:  d.Max.DailyLimit,
	}, d.ResetHour, l, m)
}

func ProvideDistribution(cfg *config.Config, ledger *usecase.QuotaLedger, bus *events.Bus, l *logger.Logger, m repository.Metrics) (*usecase.DistributionScheduler, error) {
	d := cfg.Distribution
	return usecase.NewDistributionScheduler(usecase.DistributionConfig{
		FreeMinQuality: d.FreeMinQuality,
		FreeWindows:    d.Free.Windows,
		ProDelay:       d.Pro.Delay,
		MaxDelay:       d.Max.Delay,
		FeedSize:       d.FeedSize,
	}, ledger, l, m, usecase.WithDistributionEvents(bus))
}

// ProvidePerformance feeds rolling win rates back into strategy weights.
func ProvidePerformance(cfg *config.Config, health *usecase.HealthRegistry) *usecase.PerformanceAggregator {
	p := cfg.Performance
	return usecase.NewPerformanceAggregator(usecase.PerformanceConfig{
		RollingWindow: p.RollingWindow,
		MinSamples:    p.MinSamples,
		MinWeight:     p.MinWeight,
		WinRateFloor:  p.WinRateFloor,
		WinRateCeil:   p.WinRateCeil,
	}, health)
}

// ProvideLifecycle also makes the lifecycle the activator of the distribution
// scheduler, closing the PENDING_DELIVERY -> ACTIVE loop.
func ProvideLifecycle(
	cfg *config.Config,
	store repository.SignalStore,
	market *usecase.MarketState,
	perf *usecase.PerformanceAggregator,
	dist *usecase.DistributionScheduler,
	bus *events.Bus,
	l *logger.Logger,
	m repository.Metrics,
) *usecase.LifecycleManager {
	lc := usecase.NewLifecycleManager(store, market, l, m,
		usecase.WithTargetPolicy(usecase.TargetPolicy(cfg.Lifecycle.TargetPolicy)),
		usecase.WithOutcomeSinks(perf, dist),
		usecase.WithEventSink(bus),
	)
	dist.SetActivator(lc)
	return lc
}

func ProvideQualityGate(
	cfg *config.Config,
	lifecycle *usecase.LifecycleManager,
	dist *usecase.DistributionScheduler,
	perf *usecase.PerformanceAggregator,
	locker repository.Locker,
	l *logger.Logger,
	m repository.Metrics,
) *usecase.QualityGate {
	g := cfg.Gate
	return usecase.NewQualityGate(usecase.GateConfig{
		MinConfidence:  g.MinConfidence,
		MinAgreeing:    g.MinAgreeing,
		MinRiskReward:  g.MinRiskReward,
		MinVolume:      g.MinVolume,
		SymbolVolume:   g.SymbolVolume,
		MinDataQuality: g.MinDataQuality,
		MinSources:     g.MinSources,
		Cooldown:       g.Cooldown,
		SignalTTL:      cfg.Levels.TTL,
		LockTTL:        g.LockTTL,
		Weights: usecase.CheckWeights{
			Pattern:     g.Weights.Pattern,
			Consensus:   g.Weights.Consensus,
			RiskReward:  g.Weights.RiskReward,
			Liquidity:   g.Weights.Liquidity,
			DataQuality: g.Weights.DataQuality,
			Uniqueness:  g.Weights.Uniqueness,
		},
	}, lifecycle, dist, l, m,
		usecase.WithGateObserver(perf),
		usecase.WithDistributedLock(locker),
	)
}

func ProvideEngine(
	cfg *config.Config,
	market *usecase.MarketState,
	threshold *usecase.AdaptiveThreshold,
	ensemble *usecase.StrategyEnsemble,
	planner usecase.LevelPlanner,
	gate *usecase.QualityGate,
	lifecycle *usecase.LifecycleManager,
	dist *usecase.DistributionScheduler,
	l *logger.Logger,
	m repository.Metrics,
) *usecase.Engine {
	return usecase.NewEngine(usecase.EngineConfig{
		Symbols:               cfg.Symbols,
		MinWindow:             cfg.Ensemble.MinWindow,
		CycleInterval:         cfg.Ensemble.Interval,
		RecalibrateInterval:   cfg.Threshold.Recalibrate,
		LifecycleInterval:     cfg.Lifecycle.Interval,
		ReleaseInterval:       cfg.Distribution.Interval,
		HealthPersistInterval: cfg.Ensemble.HealthPersist,
	}, market, threshold, ensemble, planner, gate, lifecycle, dist, l, m)
}

// ProvideRunner schedules the engine loops and the tick archive flush.
func ProvideRunner(cfg *config.Config, engine *usecase.Engine, ticks *usecase.TickProcessor, l *logger.Logger) (*scheduler.Runner, error) {
	r := scheduler.NewRunner(l)
	tasks := append(engine.Tasks(), scheduler.Task{
		Name:     "tick-archive-flush",
		Interval: cfg.Ingest.ArchiveFlush,
		Run:      ticks.Flush,
	})
	for _, t := range tasks {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ProvideAPIHandler registers a readiness check per enabled dependency.
func ProvideAPIHandler(
	cfg *config.Config,
	lifecycle *usecase.LifecycleManager,
	dist *usecase.DistributionScheduler,
	health *usecase.HealthRegistry,
	perf *usecase.PerformanceAggregator,
	responses cache.Service,
	rc *cache.RedisCache,
	ch *pkgch.Client,
	collector *usecase.TickCollector,
	l *logger.Logger,
) *api.SignalsHandler {
	opts := []api.Option{api.WithHistoryCache(responses, cfg.Cache.HistoryTTL)}
	if rc != nil {
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	if ch != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", ch.Health))
	}
	if collector != nil {
		opts = append(opts, api.WithHealthCheck("feed", func(context.Context) error {
			if !collector.IsConnected() {
				return fmt.Errorf("feed disconnected")
			}
			return nil
		}))
	}
	return api.NewSignalsHandler(l, lifecycle, dist, health, perf, opts...)
}

func ProvideHTTPServer(cfg *config.Config, h *api.SignalsHandler, l *logger.Logger, reg *prometheus.Registry) *xhttp.Server {
	return xhttp.NewServer(h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(cfg.Metrics.Path, reg, reg),
		xhttp.WithLogger(l),
	)
}

// ProvideApp assembles the runnable application.
func ProvideApp(c server.Components) *server.App {
	return server.New(c)
}
