package auth

import (
	"strings"
	"sync"
	"time"
)

// AuthConfig is the per-client configuration handed to the auth library.
type AuthConfig struct {
	ClientID      ClientKey
	Authority     string
	SilentTimeout time.Duration
}

// LoginRequest is the template used for silent acquisition of one scope.
type LoginRequest struct {
	Key       RequestKey
	Scopes    []string
	LoginHint string
	Config    *AuthConfig
}

// CacheOptions carries the tenant facts used to build auth configs.
// CommonAuthority makes login requests use configs on the shared "common"
// authority even when the tenant id is known.
type CacheOptions struct {
	AuthorityHost   string
	TenantID        string
	CommonAuthority bool
	SilentTimeout   time.Duration
}

// Cache memoizes auth configs per client and login requests per (client, scope).
// Entries are never rebuilt or evicted once created.
type Cache struct {
	opts CacheOptions

	mu       sync.Mutex
	configs  map[ClientKey]*AuthConfig
	requests map[RequestKey]*LoginRequest
}

// NewCache creates an empty cache.
func NewCache(opts CacheOptions) *Cache {
	opts.AuthorityHost = strings.TrimRight(opts.AuthorityHost, "/")
	return &Cache{
		opts:     opts,
		configs:  make(map[ClientKey]*AuthConfig),
		requests: make(map[RequestKey]*LoginRequest),
	}
}

// AuthConfig returns the config for clientID, creating it on first use.
// tenantScoped selects the tenant authority when the tenant id is known;
// otherwise the shared "common" authority is used.
func (c *Cache) AuthConfig(clientID ClientKey, tenantScoped bool) *AuthConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authConfigLocked(clientID, tenantScoped)
}

func (c *Cache) authConfigLocked(clientID ClientKey, tenantScoped bool) *AuthConfig {
	if cfg, ok := c.configs[clientID]; ok {
		return cfg
	}

	tenant := "common"
	if tenantScoped && c.opts.TenantID != "" {
		tenant = c.opts.TenantID
	}

	cfg := &AuthConfig{
		ClientID:      clientID,
		Authority:     c.opts.AuthorityHost + "/" + tenant,
		SilentTimeout: c.opts.SilentTimeout,
	}
	c.configs[clientID] = cfg
	return cfg
}

// LoginRequest returns the request for (clientID, scope), creating it on first
// use. A request created before its client's config gets a tenant-scoped
// config unless CommonAuthority is set. The login hint of an existing request
// is kept as is.
func (c *Cache) LoginRequest(clientID ClientKey, scope, loginHint string) *LoginRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := RequestKey{Client: clientID, Scope: scope}
	if req, ok := c.requests[key]; ok {
		return req
	}

	req := &LoginRequest{
		Key:       key,
		Scopes:    []string{scope},
		LoginHint: loginHint,
		Config:    c.authConfigLocked(clientID, !c.opts.CommonAuthority),
	}
	c.requests[key] = req
	return req
}

// Size returns the number of cached configs and requests.
func (c *Cache) Size() (configs, requests int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.configs), len(c.requests)
}
