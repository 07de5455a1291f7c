package auth

import (
	"fmt"
	"sync"

	"chained-datasource/internal/logger"
	"chained-datasource/internal/metrics"
)

// ClientFactory builds the auth client for a config.
type ClientFactory func(cfg *AuthConfig) (Client, error)

// Registry holds one auth client per client id for the whole process. Every
// data source shares it so a client id never gets a second instance.
type Registry struct {
	factory ClientFactory
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[ClientKey]Client
}

// NewRegistry creates a registry that builds missing clients with factory.
func NewRegistry(factory ClientFactory, log *logger.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		factory: factory,
		logger:  log,
		metrics: m,
		clients: make(map[ClientKey]Client),
	}
}

// Client returns the client for cfg.ClientID, creating it with the factory if
// none exists yet. The existence check and the insert happen under one lock.
func (r *Registry) Client(cfg *AuthConfig) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[cfg.ClientID]; ok {
		return client, nil
	}

	client, err := r.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client for %s: %w", cfg.ClientID, err)
	}

	r.clients[cfg.ClientID] = client
	r.logger.Info("auth client created",
		"clientId", cfg.ClientID,
		"authority", cfg.Authority)

	if r.metrics != nil {
		r.metrics.SetAuthClientsActive(float64(len(r.clients)))
	}

	return client, nil
}

// Register installs an existing client for key unless one is already present.
// It reports whether client was stored.
func (r *Registry) Register(key ClientKey, client Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[key]; ok {
		return false
	}
	r.clients[key] = client
	if r.metrics != nil {
		r.metrics.SetAuthClientsActive(float64(len(r.clients)))
	}
	return true
}

// Len returns the number of clients held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
