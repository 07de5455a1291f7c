// file: internal/app/app.go

package app

import (
	"context"
	"fmt"
	"sync"

	"chained-datasource/config"
	"chained-datasource/internal/server"
)

// App is the long-running data source service.
type App struct {
	base   *BaseApp
	server *server.Server

	closeOnce sync.Once
	closeErr  error
}

// NewApp builds every component and the HTTP server from cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	base, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var publisher server.Publisher
	if base.Watcher != nil {
		publisher = base.Watcher
	}

	srv := server.New(base.DataSource, publisher, &cfg.Server, &cfg.Metrics, base.Logger, base.Metrics)
	return &App{base: base, server: srv}, nil
}

// Base exposes the wired components
func (a *App) Base() *BaseApp {
	return a.base
}

// Run starts the descriptor watcher and the server, then blocks until ctx ends.
func (a *App) Run(ctx context.Context) error {
	log := a.base.Logger

	if a.base.Watcher != nil {
		if err := a.base.Watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start descriptor watcher: %w", err)
		}
	}

	if err := a.server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("data source ready",
		"descriptors", len(a.base.DataSource.Descriptors()),
		"clientIdSource", a.base.Config.Host.ClientIDSource,
		"concurrency", a.base.Config.Downstream.Concurrency,
		"refreshBefore", a.base.Config.Auth.RefreshBefore,
		"metricsEnabled", a.base.Metrics != nil)

	<-ctx.Done()
	return nil
}

// Close stops the server and releases all components. Safe to call repeatedly.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.base.Config.Server.ShutdownGracePeriod)
		defer cancel()

		if err := a.server.Stop(ctx); err != nil {
			a.base.Logger.Error("failed to gracefully shutdown HTTP server", "error", err)
		}
		a.closeErr = a.base.Close()
	})
	return a.closeErr
}
