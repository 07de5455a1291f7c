package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"chained-datasource/internal/logger"
	"chained-datasource/internal/metrics"
)

// Acquirer performs silent token acquisition. A failed acquisition is an
// expected outcome (the user may have no session for that resource) and is
// reported as an absent token, never as an error.
type Acquirer struct {
	registry *Registry
	logger   *logger.Logger
	metrics  *metrics.Metrics
	group    singleflight.Group
}

// NewAcquirer creates an acquirer resolving clients through registry.
func NewAcquirer(registry *Registry, log *logger.Logger, m *metrics.Metrics) *Acquirer {
	return &Acquirer{
		registry: registry,
		logger:   log,
		metrics:  m,
	}
}

// AcquireSilent returns the token for req, or false when none could be obtained.
// Concurrent calls for the same request share one acquisition. The shared
// acquisition does not inherit any caller's cancellation; a cancelled caller
// stops waiting while the others still receive the result.
func (a *Acquirer) AcquireSilent(ctx context.Context, req *LoginRequest) (*oauth2.Token, bool) {
	start := time.Now()

	detached := context.WithoutCancel(ctx)
	ch := a.group.DoChan(req.Key.String(), func() (interface{}, error) {
		return a.acquire(detached, req)
	})

	var (
		v      interface{}
		err    error
		shared bool
	)
	select {
	case res := <-ch:
		v, err, shared = res.Val, res.Err, res.Shared
	case <-ctx.Done():
		err = ctx.Err()
	}

	if a.metrics != nil {
		a.metrics.ObserveTokenAcquisitionDuration(time.Since(start).Seconds())
	}

	if err != nil {
		a.logger.Warn("silent token acquisition failed",
			"clientId", req.Key.Client,
			"scope", req.Key.Scope,
			"shared", shared,
			"error", err)
		if a.metrics != nil {
			a.metrics.IncTokenAcquisition(metrics.OutcomeAbsent)
		}
		return nil, false
	}

	token := v.(*oauth2.Token)
	a.logger.Debug("silent token acquisition succeeded",
		"clientId", req.Key.Client,
		"scope", req.Key.Scope,
		"expiresOn", token.Expiry,
		"shared", shared)
	if a.metrics != nil {
		a.metrics.IncTokenAcquisition(metrics.OutcomeSuccess)
	}
	return token, true
}

func (a *Acquirer) acquire(ctx context.Context, req *LoginRequest) (*oauth2.Token, error) {
	if req.Config == nil {
		return nil, fmt.Errorf("login request %s has no auth config", req.Key)
	}

	client, err := a.registry.Client(req.Config)
	if err != nil {
		return nil, err
	}

	if req.Config.SilentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Config.SilentTimeout)
		defer cancel()
	}

	token, err := client.AcquireTokenSilent(ctx, req)
	if err != nil {
		return nil, err
	}
	if token == nil || token.AccessToken == "" {
		return nil, ErrEmptyToken
	}
	return token, nil
}

// HasAccount reports whether the client behind req still holds a session for
// the request's login hint. Clients without sessions always report true.
func (a *Acquirer) HasAccount(ctx context.Context, req *LoginRequest) bool {
	client, err := a.registry.Client(req.Config)
	if err != nil {
		a.logger.Warn("auth client unavailable", "clientId", req.Key.Client, "error", err)
		return false
	}

	checker, ok := client.(AccountChecker)
	if !ok {
		return true
	}

	has, err := checker.HasAccount(ctx, req.LoginHint)
	if err != nil {
		a.logger.Warn("account lookup failed", "clientId", req.Key.Client, "error", err)
		return false
	}
	return has
}
