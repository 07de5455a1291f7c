// file: internal/app/login.go

package app

import (
	"context"
	"fmt"

	"chained-datasource/internal/auth"
)

// LoginResult reports whether a token is available for one (client, scope).
type LoginResult struct {
	Key           auth.RequestKey
	Authenticated bool
	Interactive   bool
}

// Login establishes a session for every client id the descriptors use. The
// first scope of each client goes through device code login when silent
// acquisition fails; the remaining scopes are then tried silently.
func (a *BaseApp) Login(ctx context.Context, prompt func(message string)) ([]LoginResult, error) {
	defaultID, err := a.DataSource.ResolveClientID(ctx)
	if err != nil {
		return nil, err
	}

	loginHint := a.DataSource.LoginHint()
	var order []auth.ClientKey
	byClient := make(map[auth.ClientKey][]*auth.LoginRequest)
	seen := make(map[auth.RequestKey]bool)

	for _, d := range a.DataSource.Descriptors() {
		key := defaultID
		if d.ClientID != "" {
			key = auth.ClientKey(d.ClientID)
		}
		scope, err := d.Scope()
		if err != nil {
			return nil, err
		}
		req := a.Cache.LoginRequest(key, scope, loginHint)
		if seen[req.Key] {
			continue
		}
		seen[req.Key] = true
		if _, ok := byClient[key]; !ok {
			order = append(order, key)
		}
		byClient[key] = append(byClient[key], req)
	}

	var results []LoginResult
	for _, key := range order {
		for i, req := range byClient[key] {
			res := LoginResult{Key: req.Key}
			if token, ok := a.Acquirer.AcquireSilent(ctx, req); ok {
				res.Authenticated = true
				if a.Scheduler != nil {
					a.Scheduler.Schedule(req, token)
				}
			} else if i == 0 {
				if err := a.loginInteractive(ctx, req, prompt); err != nil {
					a.Logger.Error("interactive login failed", "clientId", key, "scope", req.Key.Scope, "error", err)
				} else {
					res.Authenticated, res.Interactive = true, true
				}
			}
			results = append(results, res)
		}
	}
	return results, nil
}

func (a *BaseApp) loginInteractive(ctx context.Context, req *auth.LoginRequest, prompt func(string)) error {
	client, err := a.Registry.Client(req.Config)
	if err != nil {
		return err
	}
	interactive, ok := client.(auth.InteractiveClient)
	if !ok {
		return fmt.Errorf("client %s does not support interactive login", req.Key.Client)
	}

	token, err := interactive.LoginWithDeviceCode(ctx, req.Scopes, prompt)
	if err != nil {
		return err
	}
	if a.Scheduler != nil {
		a.Scheduler.Schedule(req, token)
	}
	a.Logger.Info("interactive login completed", "clientId", req.Key.Client, "scope", req.Key.Scope, "expiresOn", token.Expiry)
	return nil
}
