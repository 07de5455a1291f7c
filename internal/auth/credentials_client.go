package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// CredentialsClient implements Client with the OAuth2 client credentials grant,
// for client ids that have a secret configured.
type CredentialsClient struct {
	clientID     ClientKey
	clientSecret string
	tokenURL     string

	mu     sync.Mutex
	tokens map[string]*oauth2.Token // scope -> last token
}

// NewCredentialsClient creates a confidential client against cfg's authority.
func NewCredentialsClient(cfg *AuthConfig, clientSecret string) *CredentialsClient {
	return &CredentialsClient{
		clientID:     cfg.ClientID,
		clientSecret: clientSecret,
		tokenURL:     strings.TrimRight(cfg.Authority, "/") + "/oauth2/v2.0/token",
		tokens:       make(map[string]*oauth2.Token),
	}
}

// AcquireTokenSilent returns the cached token for the request scope while it is
// valid, otherwise requests a new one.
func (c *CredentialsClient) AcquireTokenSilent(ctx context.Context, req *LoginRequest) (*oauth2.Token, error) {
	scopes := appScopes(req.Scopes)
	cacheKey := strings.Join(scopes, " ")

	c.mu.Lock()
	cached := c.tokens[cacheKey]
	c.mu.Unlock()
	if cached.Valid() {
		return cached, nil
	}

	config := &clientcredentials.Config{
		ClientID:     string(c.clientID),
		ClientSecret: c.clientSecret,
		TokenURL:     c.tokenURL,
		Scopes:       scopes,
	}

	token, err := config.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth2 client credentials failed: %w", err)
	}
	if token.AccessToken == "" {
		return nil, ErrEmptyToken
	}

	c.mu.Lock()
	c.tokens[cacheKey] = token
	c.mu.Unlock()

	return token, nil
}

// appScopes rewrites delegated scopes to the app-only "/.default" form the
// client credentials grant accepts.
func appScopes(scopes []string) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		if idx := strings.LastIndex(s, "/"); idx > len("https://") && !strings.HasSuffix(s, "/.default") {
			s = s[:idx] + "/.default"
		}
		out[i] = s
	}
	return out
}
