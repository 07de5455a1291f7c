// file: internal/storage/token_cache.go

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/nats-io/nats.go/jetstream"

	"chained-datasource/internal/auth"
	"chained-datasource/internal/logger"
)

const tokenCacheKeyPrefix = "msal."

// TokenCache persists the auth library's serialized cache in a KV bucket, one
// key per client id, so sessions established by an interactive login are
// visible to silent acquisition in every process.
type TokenCache struct {
	kv     jetstream.KeyValue
	logger *logger.Logger
}

// NewTokenCache creates a token cache over kv
func NewTokenCache(kv jetstream.KeyValue, log *logger.Logger) *TokenCache {
	return &TokenCache{kv: kv, logger: log}
}

// For returns the cache accessor for one client id
func (t *TokenCache) For(clientID auth.ClientKey) cache.ExportReplace {
	return &clientTokenCache{
		kv:     t.kv,
		key:    tokenCacheKeyPrefix + string(clientID),
		logger: t.logger,
	}
}

type clientTokenCache struct {
	kv     jetstream.KeyValue
	key    string
	logger *logger.Logger
}

// Replace loads the persisted cache. A missing key leaves the cache empty.
func (c *clientTokenCache) Replace(ctx context.Context, u cache.Unmarshaler, _ cache.ReplaceHints) error {
	entry, err := c.kv.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load token cache '%s': %w", c.key, err)
	}
	if err := u.Unmarshal(entry.Value()); err != nil {
		return fmt.Errorf("failed to restore token cache '%s': %w", c.key, err)
	}
	return nil
}

// Export stores the serialized cache after the auth library changed it
func (c *clientTokenCache) Export(ctx context.Context, m cache.Marshaler, _ cache.ExportHints) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize token cache: %w", err)
	}
	if _, err := c.kv.Put(ctx, c.key, data); err != nil {
		return fmt.Errorf("failed to store token cache '%s': %w", c.key, err)
	}
	c.logger.Debug("token cache exported", "key", c.key, "bytes", len(data))
	return nil
}
