// file: internal/app/builder.go

package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"chained-datasource/config"
	"chained-datasource/internal/auth"
	"chained-datasource/internal/chain"
	"chained-datasource/internal/datasource"
	"chained-datasource/internal/logger"
	"chained-datasource/internal/metrics"
	"chained-datasource/internal/refresh"
	"chained-datasource/internal/storage"
)

// BaseApp holds the initialized components shared by every command.
type BaseApp struct {
	Config     *config.Config
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	Collector  *metrics.MetricsCollector
	NATS       *storage.NATSClient
	Store      jetstream.KeyValue
	TokenCache *storage.TokenCache
	HTTPClient *http.Client
	Cache      *auth.Cache
	Registry   *auth.Registry
	Acquirer   *auth.Acquirer
	Scheduler  *refresh.Scheduler
	Executor   *chain.Executor
	DataSource *datasource.DataSource
	Watcher    *storage.DescriptorWatcher
}

// AppBuilder constructs the BaseApp components fluently.
type AppBuilder struct {
	ctx  context.Context
	cfg  *config.Config
	base *BaseApp
	err  error
}

// NewAppBuilder creates a new builder.
func NewAppBuilder(ctx context.Context, cfg *config.Config) *AppBuilder {
	return &AppBuilder{
		ctx:  ctx,
		cfg:  cfg,
		base: &BaseApp{Config: cfg},
	}
}

// WithLogger creates the logger from configuration.
func (b *AppBuilder) WithLogger() *AppBuilder {
	if b.err != nil {
		return b
	}
	b.base.Logger, b.err = logger.NewLogger(&b.cfg.Logging)
	if b.err != nil {
		b.err = fmt.Errorf("failed to initialize logger: %w", b.err)
	}
	return b
}

// WithLoggerInstance uses an existing logger.
func (b *AppBuilder) WithLoggerInstance(log *logger.Logger) *AppBuilder {
	if b.err != nil {
		return b
	}
	b.base.Logger = log
	return b
}

// WithMetrics creates the metrics registry and collectors.
func (b *AppBuilder) WithMetrics() *AppBuilder {
	if b.err != nil {
		return b
	}
	if !b.cfg.Metrics.Enabled {
		b.base.Logger.Info("metrics disabled")
		return b
	}

	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		b.err = fmt.Errorf("failed to create metrics service: %w", err)
		return b
	}
	if err := m.RegisterHTTPMetrics(); err != nil {
		b.err = fmt.Errorf("failed to register HTTP metrics: %w", err)
		return b
	}
	b.base.Metrics = m

	b.base.Logger.Info("metrics initialized",
		"path", b.cfg.Metrics.Path,
		"updateInterval", b.cfg.Metrics.UpdateInterval)
	return b
}

// WithStorage connects to NATS and opens the buckets the configuration needs.
// It does nothing when no collaborator is KV-backed.
func (b *AppBuilder) WithStorage() *AppBuilder {
	if b.err != nil {
		return b
	}
	if !b.cfg.NeedsNATS() {
		return b
	}

	b.base.NATS, b.err = storage.NewNATSClient(&b.cfg.NATS, b.base.Logger)
	if b.err != nil {
		return b
	}

	if b.cfg.Host.ClientIDSource == config.ClientIDSourceNATS || b.cfg.Storage.WatchDescriptors {
		b.base.Store, b.err = b.base.NATS.KeyValue(b.ctx, b.cfg.Storage.Bucket)
		if b.err != nil {
			return b
		}
	}

	if b.cfg.Auth.TokenCache.Enabled {
		kv, err := b.base.NATS.KeyValue(b.ctx, b.cfg.Auth.TokenCache.Bucket)
		if err != nil {
			b.err = err
			return b
		}
		b.base.TokenCache = storage.NewTokenCache(kv, b.base.Logger)
	}
	return b
}

// WithAuth creates the auth context cache, the client registry and the acquirer.
func (b *AppBuilder) WithAuth() *AppBuilder {
	if b.err != nil {
		return b
	}

	b.base.Cache = auth.NewCache(auth.CacheOptions{
		AuthorityHost:   b.cfg.Auth.AuthorityHost,
		TenantID:        b.cfg.Host.TenantID,
		CommonAuthority: b.cfg.Auth.CommonAuthority,
		SilentTimeout:   b.cfg.Auth.SilentTimeout,
	})

	var caches auth.CacheProvider
	if b.base.TokenCache != nil {
		caches = b.base.TokenCache.For
	}
	factory := auth.NewClientFactory(b.cfg.Auth.ClientSecrets, caches)

	b.base.Registry = auth.NewRegistry(factory, b.base.Logger, b.base.Metrics)
	b.base.Acquirer = auth.NewAcquirer(b.base.Registry, b.base.Logger, b.base.Metrics)
	return b
}

// WithRefresh starts the refresh scheduler and, with metrics on, the collector
// sampling it.
func (b *AppBuilder) WithRefresh() *AppBuilder {
	if b.err != nil {
		return b
	}

	b.base.Scheduler, b.err = refresh.NewScheduler(b.base.Acquirer, b.cfg.Auth.RefreshBefore, b.base.Logger, b.base.Metrics)
	if b.err != nil {
		return b
	}

	if b.base.Metrics != nil {
		b.base.Collector = metrics.NewMetricsCollector(b.base.Metrics, b.base.Scheduler.Pending, b.cfg.Metrics.UpdateInterval)
		b.base.Collector.Start()
	}
	return b
}

// WithDataSource creates the executor and the data source, plus the descriptor
// watcher when enabled.
func (b *AppBuilder) WithDataSource() *AppBuilder {
	if b.err != nil {
		return b
	}

	b.base.HTTPClient = chain.NewHTTPClient(&b.cfg.Downstream)

	var refresher chain.RefreshScheduler
	if b.base.Scheduler != nil {
		refresher = b.base.Scheduler
	}
	b.base.Executor = chain.NewExecutor(
		b.base.Cache,
		b.base.Acquirer,
		refresher,
		b.base.HTTPClient,
		b.base.Logger,
		b.base.Metrics,
		b.cfg.Downstream.Concurrency,
	)

	lookup, err := b.lookup()
	if err != nil {
		b.err = err
		return b
	}

	b.base.DataSource, b.err = datasource.New(datasource.Options{
		Lookup:        lookup,
		Executor:      b.base.Executor,
		StorageEntity: b.cfg.Host.StorageEntity,
		LoginHint:     b.cfg.Host.LoginHint,
		Descriptors:   b.cfg.Descriptors,
		Logger:        b.base.Logger,
		Metrics:       b.base.Metrics,
	})
	if b.err != nil {
		return b
	}

	if b.cfg.Storage.WatchDescriptors {
		b.base.Watcher = storage.NewDescriptorWatcher(b.base.Store, b.cfg.Storage.DescriptorsKey, b.base.DataSource, b.base.Logger)
	}
	return b
}

func (b *AppBuilder) lookup() (datasource.ClientIDLookup, error) {
	switch b.cfg.Host.ClientIDSource {
	case config.ClientIDSourceStatic:
		return storage.StaticLookup(b.cfg.Host.ClientID), nil
	case config.ClientIDSourceNATS:
		if b.base.Store == nil {
			return nil, fmt.Errorf("client id source %q needs a KV bucket", config.ClientIDSourceNATS)
		}
		return storage.NewKVLookup(b.base.Store, b.base.Logger), nil
	default:
		return storage.NewHTTPLookup(b.base.HTTPClient, b.cfg.Host.SiteURL, b.cfg.Host.SiteHeaders, b.base.Logger), nil
	}
}

// Build finalizes the construction and returns the BaseApp. Components built
// before a failure are released.
func (b *AppBuilder) Build() (*BaseApp, error) {
	if b.err != nil {
		if b.base.Logger != nil {
			b.base.Close()
		}
		return nil, b.err
	}
	return b.base, nil
}

// Close releases everything the builder created, in reverse order
func (a *BaseApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.Watcher != nil {
		keep(a.Watcher.Stop())
	}
	if a.Collector != nil {
		a.Collector.Stop()
	}
	if a.Scheduler != nil {
		keep(a.Scheduler.Shutdown())
	}
	if a.NATS != nil {
		keep(a.NATS.Close())
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return firstErr
}

// Build assembles every component from cfg with its own logger
func Build(ctx context.Context, cfg *config.Config) (*BaseApp, error) {
	return NewAppBuilder(ctx, cfg).
		WithLogger().
		WithMetrics().
		WithStorage().
		WithAuth().
		WithRefresh().
		WithDataSource().
		Build()
}
