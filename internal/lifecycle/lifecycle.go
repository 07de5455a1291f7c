// file: internal/lifecycle/lifecycle.go

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chained-datasource/internal/logger"
)

// Factory builds a fresh application, re-reading configuration each time.
type Factory func(ctx context.Context) (Application, error)

// RunWithReload runs the application built by create until SIGINT, SIGTERM or
// cancellation of ctx. SIGHUP closes the running instance and builds a new one;
// armed token refreshes and cached auth state do not survive a reload. If a
// rebuild fails the process should exit.
func RunWithReload(ctx context.Context, create Factory, log *logger.Logger) error {
	reloadCount := 0

	for {
		if reloadCount > 0 {
			log.Info("initiating application reload", "reloadCount", reloadCount)
		}

		shutdownSig := make(chan os.Signal, 1)
		reloadSig := make(chan os.Signal, 1)
		signal.Notify(shutdownSig, os.Interrupt, syscall.SIGTERM)
		signal.Notify(reloadSig, syscall.SIGHUP)

		startTime := time.Now()
		application, err := create(ctx)
		if err != nil {
			signal.Stop(shutdownSig)
			signal.Stop(reloadSig)

			if reloadCount > 0 {
				log.Error("failed to reload application", "reloadCount", reloadCount, "error", err)
			}
			return fmt.Errorf("failed to create application: %w", err)
		}

		if reloadCount > 0 {
			log.Info("application reload completed", "reloadCount", reloadCount, "duration", time.Since(startTime))
		}

		runCtx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- application.Run(runCtx)
		}()

		var shouldReload bool
		var runErr error

		select {
		case sig := <-shutdownSig:
			log.Info("shutdown signal received", "signal", sig)
		case <-ctx.Done():
			log.Info("context cancelled, shutting down")
		case <-reloadSig:
			log.Info("SIGHUP received, reloading")
			shouldReload = true
			reloadCount++
		case runErr = <-errCh:
			log.Error("application stopped with error", "error", runErr, "reloadCount", reloadCount)
		}

		cancel()
		signal.Stop(shutdownSig)
		signal.Stop(reloadSig)

		closeStart := time.Now()
		if closeErr := application.Close(); closeErr != nil {
			log.Error("error during application close", "error", closeErr, "duration", time.Since(closeStart))
		} else {
			log.Info("application closed", "duration", time.Since(closeStart))
		}

		if !shouldReload {
			log.Info("shutdown complete")
			return runErr
		}
	}
}
