package server

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"FinReplay/internal/service/progress"
	"FinReplay/pkg/config"
	xhttp "FinReplay/pkg/http"
	applogger "FinReplay/pkg/logger"
	"FinReplay/pkg/queue"
	"FinReplay/pkg/tracing"
)

// Option configures App.
type Option func(*App)

// WithLogPublisher aggregates repeated error logs and ships them to topic.
func WithLogPublisher(p applogger.Publisher, topic string) Option {
	return func(a *App) {
		a.logPub = p
		a.logTopic = topic
	}
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	queue      queue.Runner
	jobs       []queue.Job
	hub        *progress.Hub

	logPub   applogger.Publisher
	logTopic string
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	q queue.Runner,
	jobs []queue.Job,
	hub *progress.Hub,
	opts ...Option,
) *App {
	a := &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		queue:      q,
		jobs:       jobs,
		hub:        hub,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the queue workers and the HTTP server and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tracing.Init(tracing.Config{
		Enabled:     a.cfg.Tracing.Enabled,
		ServiceName: a.cfg.Tracing.ServiceName,
		Output:      a.cfg.Tracing.Output,
		PrettyPrint: a.cfg.Tracing.PrettyPrint,
	}); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	if a.logPub != nil {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval: 30 * time.Second,
			Topic:        a.logTopic,
			Publisher:    a.logPub,
		})
		a.log.Info("log collector attached", applogger.String("topic", a.logTopic))
	}

	a.queue.RegisterJobs(a.jobs)
	if err := a.queue.Start(); err != nil {
		return fmt.Errorf("queue start: %w", err)
	}

	if a.hub != nil {
		go a.hub.Run(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("finreplay started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Int("workers", a.cfg.Queue.Workers))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first, then drains the workers.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if err := a.queue.Stop(ctx); err != nil {
		a.log.Warn("queue stop error", applogger.Error(err))
	}
	if err := tracing.Shutdown(ctx); err != nil {
		a.log.Warn("tracing shutdown error", applogger.Error(err))
	}
	a.log.RemoveCollector()

	a.log.Info("shutdown complete")
	return nil
}
