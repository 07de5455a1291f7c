// Package datasource is the surface a host consumes: one data operation and one
// configuration hook over the chained, individually authenticated endpoints.
package datasource

import (
	"context"
	"strings"
	"sync"

	"chained-datasource/internal/auth"
	"chained-datasource/internal/chain"
	"chained-datasource/internal/descriptor"
	"chained-datasource/internal/logger"
	"chained-datasource/internal/metrics"
)

// State is the data source's position in its data lifecycle.
type State int

const (
	Uninitialized State = iota
	ClientIDResolved
	AuthInitialized
	Ready
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ClientIDResolved:
		return "client_id_resolved"
	case AuthInitialized:
		return "auth_initialized"
	case Ready:
		return "ready"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// ClientIDLookup resolves the tenant's registered application id from a
// named storage entity. An empty id with a nil error means the entity is unset.
type ClientIDLookup interface {
	LookupClientID(ctx context.Context, entity string) (string, error)
}

// Executor runs a descriptor chain.
type Executor interface {
	Execute(ctx context.Context, descs []descriptor.Resource, defaultClientID auth.ClientKey, loginHint string) []chain.Result
}

// Data is the result handed to the host.
type Data struct {
	Items []any `json:"items" yaml:"items"`
}

// Options configures a DataSource.
type Options struct {
	Lookup        ClientIDLookup
	Executor      Executor
	StorageEntity string
	LoginHint     string
	Descriptors   []descriptor.Resource
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

// DataSource owns the descriptor set and the resolved default client id.
type DataSource struct {
	lookup        ClientIDLookup
	executor      Executor
	storageEntity string
	loginHint     string
	logger        *logger.Logger
	metrics       *metrics.Metrics

	// idMu is held across the lookup so overlapping calls resolve once
	idMu     sync.Mutex
	clientID auth.ClientKey

	mu          sync.RWMutex
	descriptors []descriptor.Resource
	state       State
}

// New creates a data source. The initial descriptors are validated the same
// way a configuration change is.
func New(opts Options) (*DataSource, error) {
	ds := &DataSource{
		lookup:        opts.Lookup,
		executor:      opts.Executor,
		storageEntity: opts.StorageEntity,
		loginHint:     opts.LoginHint,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		descriptors:   []descriptor.Resource{},
	}
	if ds.logger == nil {
		ds.logger = logger.NewNopLogger()
	}
	if err := ds.OnConfigurationChanged(opts.Descriptors); err != nil {
		return nil, err
	}
	return ds, nil
}

// GetData resolves the default client id if needed, runs the chain and returns
// one item per descriptor: the decoded payload, or an empty list when that
// descriptor had no token or its call failed. Only a missing client id is
// returned as an error.
func (d *DataSource) GetData(ctx context.Context) (*Data, error) {
	clientID, err := d.ResolveClientID(ctx)
	if err != nil {
		d.setState(Uninitialized)
		d.recordGetData(Uninitialized)
		return nil, err
	}
	d.setState(ClientIDResolved)

	descs := d.Descriptors()
	if len(descs) == 0 {
		d.setState(Ready)
		d.recordGetData(Ready)
		return &Data{Items: []any{}}, nil
	}

	results := d.executor.Execute(ctx, descs, clientID, d.loginHint)

	authenticated := 0
	items := make([]any, 0, len(results))
	for _, r := range results {
		if r.Authenticated {
			authenticated++
		}
		items = append(items, r.Payload)
	}

	if authenticated == 0 {
		d.logger.Info("no descriptor could be authenticated", "descriptors", len(descs))
		d.setState(Unauthenticated)
		d.recordGetData(Unauthenticated)
		return &Data{Items: []any{}}, nil
	}

	d.setState(AuthInitialized)
	d.logger.Debug("chain executed",
		"descriptors", len(descs),
		"authenticated", authenticated)
	d.setState(Ready)
	d.recordGetData(Ready)
	return &Data{Items: items}, nil
}

// ResolveClientID returns the default client id, looking it up on first use.
// A failed lookup is not cached, so a later call retries it.
func (d *DataSource) ResolveClientID(ctx context.Context) (auth.ClientKey, error) {
	d.idMu.Lock()
	defer d.idMu.Unlock()

	if d.clientID != "" {
		return d.clientID, nil
	}

	if d.lookup == nil {
		return "", &ConfigurationError{Entity: d.storageEntity}
	}

	id, err := d.lookup.LookupClientID(ctx, d.storageEntity)
	if err != nil {
		d.logger.Error("client id lookup failed", "entity", d.storageEntity, "error", err)
		d.recordLookup(metrics.OutcomeFailure)
		return "", &ConfigurationError{Entity: d.storageEntity, Err: err}
	}

	id = strings.TrimSpace(id)
	if id == "" {
		d.logger.Error("storage entity holds no client id", "entity", d.storageEntity)
		d.recordLookup(metrics.OutcomeNotFound)
		return "", &ConfigurationError{Entity: d.storageEntity}
	}

	d.recordLookup(metrics.OutcomeSuccess)
	d.logger.Info("client id resolved", "entity", d.storageEntity, "clientId", id)
	d.clientID = auth.ClientKey(id)
	return d.clientID, nil
}

// OnConfigurationChanged validates and installs a new descriptor set. An
// invalid set is rejected and the current one kept.
func (d *DataSource) OnConfigurationChanged(descs []descriptor.Resource) error {
	prepared, err := descriptor.Prepare(descs)
	if err != nil {
		d.logger.Warn("descriptor update rejected", "error", err)
		if d.metrics != nil {
			d.metrics.IncConfigChange(metrics.OutcomeFailure)
		}
		return err
	}

	d.mu.Lock()
	d.descriptors = prepared
	d.mu.Unlock()

	d.logger.Info("descriptors updated", "count", len(prepared))
	if d.metrics != nil {
		d.metrics.IncConfigChange(metrics.OutcomeSuccess)
		d.metrics.SetDescriptorsActive(float64(len(prepared)))
	}
	return nil
}

// Descriptors returns a copy of the current descriptor set.
func (d *DataSource) Descriptors() []descriptor.Resource {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]descriptor.Resource, len(d.descriptors))
	copy(out, d.descriptors)
	return out
}

// State returns the state reached by the most recent GetData.
func (d *DataSource) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// ClientID returns the resolved default client id, if any.
func (d *DataSource) ClientID() (auth.ClientKey, bool) {
	d.idMu.Lock()
	defer d.idMu.Unlock()
	return d.clientID, d.clientID != ""
}

// LoginHint returns the user identifier used for silent acquisition.
func (d *DataSource) LoginHint() string {
	return d.loginHint
}

func (d *DataSource) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *DataSource) recordGetData(s State) {
	if d.metrics != nil {
		d.metrics.IncGetData(s.String())
	}
}

func (d *DataSource) recordLookup(outcome string) {
	if d.metrics != nil {
		d.metrics.IncClientIDLookup(outcome)
	}
}
