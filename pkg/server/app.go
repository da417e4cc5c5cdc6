package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"candlestick/pkg/config"
	xhttp "candlestick/pkg/http"
	applogger "candlestick/pkg/logger"
)

// Job is a background task that runs until ctx is cancelled.
type Job func(ctx context.Context)

// App encapsulates the application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	jobs       []Job
}

// New creates the HTTP server for handler.
func New(cfg *config.Config, l *applogger.Logger, handler xhttp.Handler) *App {
	srv := xhttp.NewServer(handler, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(cfg.Metrics.Enabled, cfg.Metrics.Path, cfg.Server.SlowThreshold),
	)
	return &App{cfg: cfg, log: l, httpServer: srv}
}

// AddJob registers a background task started by Run.
func (a *App) AddJob(j Job) { a.jobs = append(a.jobs, j) }

// Server returns the HTTP server.
func (a *App) Server() *xhttp.Server { return a.httpServer }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	jobsCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, j := range a.jobs {
		j := j
		wg.Add(1)
		go func() {
			defer wg.Done()
			j(jobsCtx)
		}()
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("app started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Int("port", a.cfg.Server.Port),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	cancel()
	wg.Wait()
	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}
