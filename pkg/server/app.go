package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalRelay/pkg/config"
	xhttp "SignalRelay/pkg/http"
	pkgkafka "SignalRelay/pkg/kafka"
	applogger "SignalRelay/pkg/logger"
	"SignalRelay/pkg/queue"
)

// Closer is one named shutdown step, run after ingress has stopped.
type Closer struct {
	Name  string
	Close func() error
}

// Resources are closed in order during shutdown.
type Resources []Closer

// Drainer waits for background work started by already-finished requests.
type Drainer interface {
	Wait(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	jobs       *queue.RedisQueue
	drain      Drainer
	resources  Resources
}

// New creates a new App. consumer, kh, jobs and drain may be nil when the
// corresponding feature is disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	jobs *queue.RedisQueue,
	drain Drainer,
	resources Resources,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		consumer:   consumer,
		kh:         kh,
		jobs:       jobs,
		drain:      drain,
		resources:  resources,
	}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.start(); err != nil {
		a.log.Error("startup failed", applogger.Error(err))
		_ = a.shutdown()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start() error {
	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			return fmt.Errorf("job queue: %w", err)
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka ingest started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// shutdown stops ingress first, then drains background work, then closes
// infrastructure clients. Every step runs even if an earlier one failed.
func (a *App) shutdown() error {
	timeout := 15 * time.Second
	if a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
		timeout = a.cfg.Server.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.log.Info("shutting down...")
	var errs []error

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.drain != nil {
		if err := a.drain.Wait(ctx); err != nil {
			a.log.Warn("background work did not drain", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.log.Warn("job queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	for _, r := range a.resources {
		if err := r.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", r.Name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
