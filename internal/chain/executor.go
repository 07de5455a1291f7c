// file: internal/chain/executor.go

// Package chain walks a descriptor list, authenticating and calling each
// downstream endpoint in turn.
package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"chained-datasource/internal/auth"
	"chained-datasource/internal/descriptor"
	"chained-datasource/internal/logger"
	"chained-datasource/internal/metrics"
)

// MaxResponseSize caps how much of a downstream body is decoded (10MB)
const MaxResponseSize = 10 * 1024 * 1024

var errNotSuccess = errors.New("downstream returned non-2xx status")

// TokenSource acquires tokens silently.
type TokenSource interface {
	AcquireSilent(ctx context.Context, req *auth.LoginRequest) (*oauth2.Token, bool)
}

// RefreshScheduler arms background renewal for freshly acquired tokens.
type RefreshScheduler interface {
	Schedule(req *auth.LoginRequest, token *oauth2.Token) bool
}

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is one descriptor's contribution to a chain run.
type Result struct {
	Descriptor    descriptor.Resource
	ClientKey     auth.ClientKey
	Scope         string
	Authenticated bool
	Payload       any
	OK            bool
}

// Executor runs descriptor chains.
type Executor struct {
	cache       *auth.Cache
	tokens      TokenSource
	refresher   RefreshScheduler
	http        Doer
	logger      *logger.Logger
	metrics     *metrics.Metrics
	concurrency int
}

// NewExecutor creates an executor. A concurrency of 1 or less runs the chain
// sequentially.
func NewExecutor(cache *auth.Cache, tokens TokenSource, refresher RefreshScheduler, doer Doer, log *logger.Logger, m *metrics.Metrics, concurrency int) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		cache:       cache,
		tokens:      tokens,
		refresher:   refresher,
		http:        doer,
		logger:      log,
		metrics:     m,
		concurrency: concurrency,
	}
}

// Execute runs every descriptor and returns one result per descriptor in
// configuration order. Failures are absorbed per descriptor.
func (e *Executor) Execute(ctx context.Context, descs []descriptor.Resource, defaultClientID auth.ClientKey, loginHint string) []Result {
	results := make([]Result, len(descs))
	requests := make([]*auth.LoginRequest, len(descs))

	// Cache population stays sequential so descriptors sharing a key share one entry
	for i, d := range descs {
		results[i] = Result{Descriptor: d, ClientKey: clientKeyFor(d, defaultClientID), Payload: []any{}}

		scope, err := d.Scope()
		if err != nil {
			e.logger.Warn("cannot resolve scope for descriptor", "url", d.URL, "error", err)
			continue
		}
		results[i].Scope = scope
		requests[i] = e.cache.LoginRequest(results[i].ClientKey, scope, loginHint)
	}

	if e.concurrency <= 1 || len(descs) <= 1 {
		for i := range descs {
			e.run(ctx, &results[i], requests[i])
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range descs {
		g.Go(func() error {
			e.run(gctx, &results[i], requests[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) run(ctx context.Context, res *Result, req *auth.LoginRequest) {
	if req == nil {
		return
	}

	token, ok := e.tokens.AcquireSilent(ctx, req)
	if !ok {
		e.logger.Info("no token for resource, skipping",
			"clientId", res.ClientKey,
			"scope", res.Scope,
			"url", res.Descriptor.URL)
		return
	}
	res.Authenticated = true

	payload, err := e.call(ctx, res.Descriptor, token)
	if err != nil {
		e.logger.Warn("downstream call failed",
			"url", res.Descriptor.URL,
			"method", res.Descriptor.Method,
			"error", err)
	} else {
		res.Payload = payload
		res.OK = true
	}

	if e.refresher != nil {
		e.refresher.Schedule(req, token)
	}
}

func (e *Executor) call(ctx context.Context, d descriptor.Resource, token *oauth2.Token) (any, error) {
	start := time.Now()
	method := string(d.Method)

	req, err := http.NewRequestWithContext(ctx, method, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		if e.metrics != nil {
			e.metrics.IncDownstreamRequest(method, "error")
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))

	if e.metrics != nil {
		e.metrics.IncDownstreamRequest(method, strconv.Itoa(resp.StatusCode))
		e.metrics.ObserveDownstreamDuration(method, time.Since(start).Seconds())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", errNotSuccess, resp.StatusCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	e.logger.Debug("downstream call succeeded",
		"url", d.URL,
		"method", method,
		"statusCode", resp.StatusCode,
		"duration", time.Since(start))
	return payload, nil
}

func clientKeyFor(d descriptor.Resource, fallback auth.ClientKey) auth.ClientKey {
	if d.ClientID != "" {
		return auth.ClientKey(d.ClientID)
	}
	return fallback
}
