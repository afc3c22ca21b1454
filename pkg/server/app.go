package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"PolEn/internal/stream"
	"PolEn/internal/usecase"
	"PolEn/pkg/cache"
	"PolEn/pkg/config"
	xhttp "PolEn/pkg/http"
	applogger "PolEn/pkg/logger"
)

// App encapsulates the application lifecycle: the HTTP surface, the board
// controller and the resources that need orderly teardown.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	controller *usecase.BoardController
	streams    *stream.Manager
	cacheSvc   cache.Service
}

// NewApp creates a new App instance with all dependencies.
func NewApp(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	controller *usecase.BoardController,
	streams *stream.Manager,
	cacheSvc cache.Service,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		controller: controller,
		streams:    streams,
		cacheSvc:   cacheSvc,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start failed", applogger.Error(err))
		return err
	}
	a.log.Info("board service started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("transport", a.cfg.Stream.Transport),
		applogger.String("history_source", a.cfg.History.Source))

	// Preload history so the board is usable right after startup. A failure
	// here is not fatal: the board stays in no-data until a manual refresh.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Engine.Timeout)
		defer cancel()
		if _, err := a.controller.Refresh(ctx); err != nil {
			a.log.Warn("initial history load failed", applogger.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	// Any in-flight session first, so the transport closes cleanly.
	a.streams.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		return err
	}

	if a.cacheSvc != nil {
		if err := a.cacheSvc.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
