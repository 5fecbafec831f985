package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	domrepo "SmartFlow/internal/domain/repository"
	"SmartFlow/internal/usecase"
	"SmartFlow/pkg/config"
	xhttp "SmartFlow/pkg/http"
	pkgkafka "SmartFlow/pkg/kafka"
	applogger "SmartFlow/pkg/logger"
)

// App encapsulates the serve lifecycle: warm-up, bar feed, learning flusher,
// HTTP API and graceful shutdown. Infrastructure clients are closed by the
// cleanup returned from the injector.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	consumer   *pkgkafka.Consumer
	bars       *usecase.BarsHandler
	scanner    *usecase.Scanner
	learning   *usecase.LearningRecorder
	httpServer *xhttp.Server
	journal    domrepo.Journal
}

// New creates a new App. scanner is nil when bar history is unavailable.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	consumer *pkgkafka.Consumer,
	bars *usecase.BarsHandler,
	scanner *usecase.Scanner,
	learning *usecase.LearningRecorder,
	httpServer *xhttp.Server,
	journal domrepo.Journal,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		consumer:   consumer,
		bars:       bars,
		scanner:    scanner,
		learning:   learning,
		httpServer: httpServer,
		journal:    journal,
	}
}

// Run starts the application and blocks until interrupted or the HTTP
// listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, r := range a.cfg.Resets {
		a.log.Warn("strategy value reset to default",
			applogger.String("field", r.Field),
			applogger.String("rule", r.Rule),
			applogger.Any("value", r.Value),
			applogger.Any("default", r.Default))
	}

	flushCtx, stopFlush := context.WithCancel(context.Background())
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		a.learning.Start(flushCtx)
	}()

	a.warmup(ctx)

	a.consumer.RegisterHandler(a.bars)
	if err := a.consumer.Start(); err != nil {
		stopFlush()
		<-flushed
		return fmt.Errorf("start consumer: %w", err)
	}
	a.log.Info("bar feed started",
		applogger.String("topic", a.bars.Topic()),
		applogger.Strings("symbols", a.cfg.Feed.Symbols))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		a.shutdown(stopFlush, flushed)
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
	}
	a.shutdown(stopFlush, flushed)
	return runErr
}

// warmup seeds every configured symbol from bar history before the feed
// starts and journals what the first evaluation produced.
func (a *App) warmup(ctx context.Context) {
	if a.scanner == nil || !a.cfg.Feed.Warmup {
		return
	}
	evs, err := a.scanner.Warmup(ctx, a.cfg.Feed.Symbols)
	if err != nil {
		a.log.Warn("warmup incomplete", applogger.Error(err))
	}
	for _, ev := range evs {
		a.bars.Publish(ctx, ev)
	}
	a.log.Info("warmup done", applogger.Int("symbols", len(evs)))
}

// shutdown stops intake first, then flushes learning stats, then closes the
// journal producer.
func (a *App) shutdown(stopFlush context.CancelFunc, flushed <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if err := a.consumer.Stop(ctx); err != nil {
		a.log.Warn("kafka consumer stop error", applogger.Error(err))
	}

	stopFlush()
	select {
	case <-flushed:
	case <-ctx.Done():
		a.log.Warn("learning flush did not finish before shutdown timeout")
	}

	a.log.RemoveCollector()
	if err := a.journal.Close(); err != nil {
		a.log.Warn("journal close error", applogger.Error(err))
	}
	a.log.Info("shutdown complete")
}
