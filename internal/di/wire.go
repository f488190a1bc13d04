//go:build wireinject
// +build wireinject

package di

import (
	"IgniteX/internal/domain/repository"
	"IgniteX/pkg/config"
	"IgniteX/pkg/metrics"
	"IgniteX/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideRegistry,
	ProvideMetrics,
	wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideRedis,
	ProvideClickHouseClient,
)

var storeSet = wire.NewSet(
	ProvideSignalStore,
	ProvideTickArchive,
	ProvideHealthStore,
	ProvideQuotaStore,
	ProvideLocker,
	ProvideResponseCache,
)

var ingestSet = wire.NewSet(
	ProvideMarketState,
	ProvideTickProcessor,
	ProvideRealtimePipeline,
	ProvideTickCollector,
	ProvideKafkaConsumer,
	ProvideKafkaHandlers,
)

var pipelineSet = wire.NewSet(
	ProvideThreshold,
	ProvideStrategies,
	ProvideHealthRegistry,
	ProvideEnsemble,
	ProvideLevelPlanner,
	ProvideQuotaLedger,
	ProvideDistribution,
	ProvidePerformance,
	ProvideLifecycle,
	ProvideQualityGate,
	ProvideEngine,
	ProvideRunner,
)

var notifySet = wire.NewSet(
	ProvideEventBus,
	ProvideWebhookQueue,
	ProvideForwarders,
)

// InitializeApp wires up all dependencies and returns the application.
// The cleanup closes infrastructure clients in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		storeSet,
		ingestSet,
		pipelineSet,
		notifySet,
		ProvideAPIHandler,
		ProvideHTTPServer,
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return nil, nil, nil
}
