package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"IgniteX/internal/middleware"
	"IgniteX/internal/service/events"
	"IgniteX/internal/usecase"
	"IgniteX/pkg/config"
	xhttp "IgniteX/pkg/http"
	pkgkafka "IgniteX/pkg/kafka"
	"IgniteX/pkg/logger"
	"IgniteX/pkg/queue"
	"IgniteX/pkg/scheduler"
)

// Components is everything App runs. Optional parts are nil when disabled
// in config.
type Components struct {
	Config     *config.Config
	Logger     *logger.Logger
	Engine     *usecase.Engine
	Runner     *scheduler.Runner
	Pipeline   *middleware.RealtimePipeline
	Ticks      *usecase.TickProcessor
	Collector  *usecase.TickCollector
	Consumer   *pkgkafka.Consumer
	Handlers   []pkgkafka.MessageHandler
	Bus        *events.Bus
	Forwarders []*events.Forwarder
	Queue      *queue.RedisQueue
	HTTP       *xhttp.Server
}

// App encapsulates the entire application lifecycle. Infrastructure
// clients are closed by the injector cleanup after Run returns.
type App struct {
	Components
}

// New creates an App.
func New(c Components) *App {
	return &App{Components: c}
}

// Run recovers state, starts every component and blocks until SIGINT,
// SIGTERM or a fatal HTTP listener error.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Shutdown(context.Background())
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-a.HTTP.Errors():
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	a.Shutdown(shutdownCtx)
	return runErr
}

// Start brings components up in dependency order: state first, then the
// consumers of events, then the producers of ticks, then the API.
func (a *App) Start(ctx context.Context) error {
	if !a.Config.Lifecycle.SkipRestore {
		if err := a.Engine.Recover(ctx); err != nil {
			return fmt.Errorf("recover: %w", err)
		}
	}

	if a.Queue != nil {
		if err := a.Queue.Start(); err != nil {
			return fmt.Errorf("start webhook queue: %w", err)
		}
	}
	for _, f := range a.Forwarders {
		f.Start(ctx)
	}

	a.Pipeline.Start(ctx)
	a.Runner.Start(ctx)

	if a.Collector != nil {
		if err := a.Collector.Start(ctx); err != nil {
			return fmt.Errorf("start feed collector: %w", err)
		}
		a.Logger.Info("feed collector started", logger.Strings("symbols", a.Config.Symbols))
	}

	if a.Consumer != nil {
		for _, h := range a.Handlers {
			a.Consumer.RegisterHandler(h)
		}
		if err := a.Consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	if err := a.HTTP.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	a.Logger.Info("ignitex started",
		logger.String("env", a.Config.Environment),
		logger.Int("port", a.Config.Server.Port),
		logger.Int("forwarders", len(a.Forwarders)),
	)
	return nil
}

// Shutdown stops components in reverse start order. Every step runs even
// when an earlier one fails.
func (a *App) Shutdown(ctx context.Context) {
	start := time.Now()

	if err := a.HTTP.Stop(ctx); err != nil {
		a.Logger.Warn("http shutdown error", logger.Error(err))
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			a.Logger.Warn("kafka consumer stop error", logger.Error(err))
		}
	}
	if a.Collector != nil {
		if err := a.Collector.Shutdown(ctx); err != nil {
			a.Logger.Warn("collector stop error", logger.Error(err))
		}
	}

	a.Runner.Stop()
	a.Pipeline.Stop()
	a.Ticks.Flush(ctx)

	if err := a.Engine.Persist(ctx); err != nil {
		a.Logger.Warn("final health persist failed", logger.Error(err))
	}

	for _, f := range a.Forwarders {
		f.Stop()
	}
	a.Bus.Close()
	if a.Queue != nil {
		if err := a.Queue.Stop(ctx); err != nil {
			a.Logger.Warn("webhook queue stop error", logger.Error(err))
		}
	}

	a.Logger.Info("shutdown complete", logger.Duration("took", time.Since(start)))
}
