// file: internal/lifecycle/application.go

// Package lifecycle runs a service until it is told to stop, rebuilding it
// from fresh configuration on SIGHUP.
package lifecycle

import "context"

// Application is a service that can be run once and closed.
type Application interface {
	// Run blocks until ctx is cancelled or a fatal error occurs. Normal
	// shutdown returns nil.
	Run(ctx context.Context) error

	// Close releases the server, scheduler and connections. It must be
	// safe to call more than once.
	Close() error
}
