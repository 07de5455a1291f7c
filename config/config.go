// file: config/config.go

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"chained-datasource/internal/descriptor"
)

// Client id sources
const (
	ClientIDSourceHTTP   = "http"
	ClientIDSourceNATS   = "nats"
	ClientIDSourceStatic = "static"
)

// DefaultStorageEntity is the storage entity holding the tenant's registered application id.
const DefaultStorageEntity = "ValoAadClientId"

// Config represents the complete data source configuration
type Config struct {
	Host        HostConfig            `mapstructure:"host"`
	Auth        AuthConfig            `mapstructure:"auth"`
	Descriptors []descriptor.Resource `mapstructure:"descriptors"`
	Downstream  DownstreamConfig      `mapstructure:"downstream"`
	NATS        NATSConfig            `mapstructure:"nats"`
	Storage     StorageConfig         `mapstructure:"storage"`
	Logging     LogConfig             `mapstructure:"logging"`
	Metrics     MetricsConfig         `mapstructure:"metrics"`
	Server      ServerConfig          `mapstructure:"server"`
}

// HostConfig carries what the hosting page knows about its tenant and user.
type HostConfig struct {
	SiteURL        string `mapstructure:"siteUrl"`
	TenantID       string `mapstructure:"tenantId"`
	LoginHint      string `mapstructure:"loginHint"`
	StorageEntity  string `mapstructure:"storageEntity"`
	ClientIDSource string `mapstructure:"clientIdSource"` // "http", "nats" or "static"
	ClientID       string `mapstructure:"clientId"`       // static source only

	// SiteHeaders are sent with storage entity requests, typically the host's credentials
	SiteHeaders map[string]string `mapstructure:"siteHeaders"`
}

// AuthConfig controls authority selection, silent acquisition and refresh.
type AuthConfig struct {
	AuthorityHost   string            `mapstructure:"authorityHost"`
	CommonAuthority bool              `mapstructure:"commonAuthority"` // Use /common instead of the tenant authority
	SilentTimeout   time.Duration     `mapstructure:"silentTimeout"`
	RefreshBefore   time.Duration     `mapstructure:"refreshBefore"`
	ClientSecrets   map[string]string `mapstructure:"clientSecrets"` // clientId -> secret, enables client credentials
	TokenCache      TokenCacheConfig  `mapstructure:"tokenCache"`
}

// TokenCacheConfig persists the auth library token cache in a KV bucket.
type TokenCacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket"`
}

// DownstreamConfig tunes the HTTP client used for chained calls.
type DownstreamConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	Concurrency        int           `mapstructure:"concurrency"`
	MaxIdleConns       int           `mapstructure:"maxIdleConns"`
	IdleConnTimeout    time.Duration `mapstructure:"idleConnTimeout"`
	InsecureSkipVerify bool          `mapstructure:"insecureSkipVerify"`
}

// NATSConfig holds connection settings for the KV-backed collaborators
type NATSConfig struct {
	URLs      []string `mapstructure:"urls"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Token     string   `mapstructure:"token"`
	NKeySeed  string   `mapstructure:"nkeySeed"`
	CredsFile string   `mapstructure:"credsFile"`

	TLS struct {
		Enable   bool   `mapstructure:"enable"`
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
		CAFile   string `mapstructure:"caFile"`
		Insecure bool   `mapstructure:"insecure"`
	} `mapstructure:"tls"`
}

// StorageConfig names the KV bucket and keys used by the data source
type StorageConfig struct {
	Bucket           string `mapstructure:"bucket"`
	DescriptorsKey   string `mapstructure:"descriptorsKey"`
	WatchDescriptors bool   `mapstructure:"watchDescriptors"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`      // debug, info, warn, error
	OutputPath string `mapstructure:"outputPath"` // file path or "stdout"
	Encoding   string `mapstructure:"encoding"`   // json or console
}

type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Path           string        `mapstructure:"path"`
	UpdateInterval time.Duration `mapstructure:"updateInterval"`
}

type ServerConfig struct {
	Address             string        `mapstructure:"address"`
	ReadTimeout         time.Duration `mapstructure:"readTimeout"`
	WriteTimeout        time.Duration `mapstructure:"writeTimeout"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdownGracePeriod"`
}

// Load reads configuration from file using Viper. An empty path loads from the
// environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("CHAINED_DS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults applies defaults for everything left empty
func setDefaults(cfg *Config) {
	if cfg.Host.StorageEntity == "" {
		cfg.Host.StorageEntity = DefaultStorageEntity
	}
	if cfg.Host.ClientIDSource == "" {
		cfg.Host.ClientIDSource = ClientIDSourceHTTP
	}

	if cfg.Auth.AuthorityHost == "" {
		cfg.Auth.AuthorityHost = "https://login.microsoftonline.com"
	}
	if cfg.Auth.SilentTimeout <= 0 {
		cfg.Auth.SilentTimeout = 6 * time.Second
	}
	if cfg.Auth.TokenCache.Bucket == "" {
		cfg.Auth.TokenCache.Bucket = "token-cache"
	}

	if cfg.Downstream.Timeout <= 0 {
		cfg.Downstream.Timeout = 30 * time.Second
	}
	if cfg.Downstream.Concurrency <= 0 {
		cfg.Downstream.Concurrency = 1
	}
	if cfg.Downstream.MaxIdleConns <= 0 {
		cfg.Downstream.MaxIdleConns = 100
	}
	if cfg.Downstream.IdleConnTimeout <= 0 {
		cfg.Downstream.IdleConnTimeout = 90 * time.Second
	}

	if len(cfg.NATS.URLs) == 0 {
		cfg.NATS.URLs = []string{"nats://localhost:4222"}
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "datasource"
	}
	if cfg.Storage.DescriptorsKey == "" {
		cfg.Storage.DescriptorsKey = "descriptors"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Encoding == "" {
		cfg.Logging.Encoding = "json"
	}
	if cfg.Logging.OutputPath == "" {
		cfg.Logging.OutputPath = "stdout"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.UpdateInterval <= 0 {
		cfg.Metrics.UpdateInterval = 15 * time.Second
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownGracePeriod <= 0 {
		cfg.Server.ShutdownGracePeriod = 10 * time.Second
	}
}

// validate ensures configuration is valid
func validate(cfg *Config) error {
	switch cfg.Host.ClientIDSource {
	case ClientIDSourceHTTP:
		if cfg.Host.SiteURL == "" {
			return fmt.Errorf("host.siteUrl required for clientIdSource %q", ClientIDSourceHTTP)
		}
	case ClientIDSourceNATS:
	case ClientIDSourceStatic:
		if cfg.Host.ClientID == "" {
			return fmt.Errorf("host.clientId required for clientIdSource %q", ClientIDSourceStatic)
		}
	default:
		return fmt.Errorf("invalid host.clientIdSource '%s' (must be 'http', 'nats' or 'static')", cfg.Host.ClientIDSource)
	}

	if cfg.Host.LoginHint == "" {
		return fmt.Errorf("host.loginHint is required")
	}

	descriptors, err := descriptor.Prepare(cfg.Descriptors)
	if err != nil {
		return err
	}
	cfg.Descriptors = descriptors

	if cfg.Auth.RefreshBefore < 0 {
		return fmt.Errorf("auth.refreshBefore cannot be negative")
	}

	// NATS auth method validation (only one allowed)
	authCount := 0
	for _, set := range []bool{
		cfg.NATS.Username != "",
		cfg.NATS.Token != "",
		cfg.NATS.NKeySeed != "",
		cfg.NATS.CredsFile != "",
	} {
		if set {
			authCount++
		}
	}
	if authCount > 1 {
		return fmt.Errorf("only one NATS auth method allowed")
	}

	if cfg.NATS.TLS.Enable {
		if cfg.NATS.TLS.CertFile != "" && cfg.NATS.TLS.KeyFile == "" {
			return fmt.Errorf("NATS TLS key file required when cert file provided")
		}
		if cfg.NATS.TLS.KeyFile != "" && cfg.NATS.TLS.CertFile == "" {
			return fmt.Errorf("NATS TLS cert file required when key file provided")
		}
	}

	if cfg.NATS.CredsFile != "" {
		if _, err := os.Stat(cfg.NATS.CredsFile); os.IsNotExist(err) {
			return fmt.Errorf("NATS creds file does not exist: %s", cfg.NATS.CredsFile)
		}
	}

	return nil
}

// NeedsNATS reports whether any configured collaborator is backed by NATS KV.
func (c *Config) NeedsNATS() bool {
	return c.Host.ClientIDSource == ClientIDSourceNATS ||
		c.Storage.WatchDescriptors ||
		c.Auth.TokenCache.Enabled
}
