package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CryptoCast/internal/usecase"
	xhttp "CryptoCast/pkg/http"
	applogger "CryptoCast/pkg/logger"
)

// Resource is something the app must close on shutdown.
type Resource struct {
	Name   string
	Closer io.Closer
}

// App encapsulates the application lifecycle.
type App struct {
	logger     *applogger.Logger
	httpServer *xhttp.Server
	reloader   *usecase.ModelReloader
	resources  []Resource
}

// New creates an App. Resources are closed in reverse order on shutdown.
func New(logger *applogger.Logger, httpServer *xhttp.Server, reloader *usecase.ModelReloader, resources ...Resource) *App {
	return &App{
		logger:     logger,
		httpServer: httpServer,
		reloader:   reloader,
		resources:  resources,
	}
}

// Run loads the models, starts serving and blocks until ctx is done, SIGINT/SIGTERM
// arrives or the listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loadCtx, cancel := context.WithTimeout(ctx, time.Minute)
	n, err := a.reloader.ReloadNow(loadCtx)
	cancel()
	if err != nil {
		a.logger.Warn("initial model load failed; serving without models", applogger.Error(err))
	} else if n == 0 {
		a.logger.Warn("no models loaded; predictions will fail until a reload succeeds")
	}

	if err := a.reloader.Start(); err != nil {
		a.closeResources()
		return fmt.Errorf("start model reloader: %w", err)
	}
	if err := a.httpServer.Start(); err != nil {
		a.reloader.Stop()
		a.closeResources()
		return fmt.Errorf("start http server: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-a.httpServer.Errors():
		a.logger.Error("http server failed", applogger.Error(runErr))
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	a.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	a.reloader.Stop()
	a.closeResources()
	a.logger.Info("shutdown complete")
}

// closeResources closes in reverse registration order.
func (a *App) closeResources() {
	for i := len(a.resources) - 1; i >= 0; i-- {
		r := a.resources[i]
		if r.Closer == nil {
			continue
		}
		if err := r.Closer.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("resource", r.Name), applogger.Error(err))
		}
	}
}
