package auth

import (
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// CacheProvider returns the persistent token cache for a client id, or nil.
type CacheProvider func(clientID ClientKey) cache.ExportReplace

// NewClientFactory returns the default factory: client ids with a configured
// secret get a CredentialsClient, all others an MSAL PublicClient backed by the
// cache from caches when one is provided.
func NewClientFactory(secrets map[string]string, caches CacheProvider) ClientFactory {
	return func(cfg *AuthConfig) (Client, error) {
		if secret, ok := secrets[string(cfg.ClientID)]; ok && secret != "" {
			return NewCredentialsClient(cfg, secret), nil
		}

		var opts []public.Option
		if caches != nil {
			if c := caches(cfg.ClientID); c != nil {
				opts = append(opts, public.WithCache(c))
			}
		}
		return NewPublicClient(cfg, opts...)
	}
}
