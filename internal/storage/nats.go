// file: internal/storage/nats.go

// Package storage holds the collaborators backed by external stores: the
// client id lookups, the descriptor watcher and the persistent token cache.
package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"

	"chained-datasource/config"
	"chained-datasource/internal/logger"
)

const (
	// kvOperationTimeout is the maximum time for KV store operations
	kvOperationTimeout = 10 * time.Second

	// natsReconnectWait is the delay between NATS reconnection attempts
	natsReconnectWait = 50 * time.Millisecond
)

// NATSClient owns the NATS connection and the KV buckets opened through it.
type NATSClient struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// NewNATSClient connects to NATS and creates the JetStream context
func NewNATSClient(cfg *config.NATSConfig, log *logger.Logger) (*NATSClient, error) {
	log.Info("connecting to NATS", "urls", cfg.URLs)

	opts, err := buildNATSOptions(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build NATS options: %w", err)
	}

	nc, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("NATS connection established", "connectedURL", nc.ConnectedUrl())

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream: %w", err)
	}

	return &NATSClient{conn: nc, js: js, logger: log}, nil
}

// KeyValue opens a bucket, creating it when it does not exist yet
func (c *NATSClient) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	ctx, cancel := context.WithTimeout(ctx, kvOperationTimeout)
	defer cancel()

	kv, err := c.js.KeyValue(ctx, bucket)
	if err == nil {
		c.logger.Debug("KV bucket opened", "bucket", bucket)
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to open KV bucket '%s': %w", bucket, err)
	}

	c.logger.Info("KV bucket not found, creating", "bucket", bucket)
	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "chained-datasource state",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket '%s': %w", bucket, err)
	}
	return kv, nil
}

// Close drains the connection
func (c *NATSClient) Close() error {
	c.logger.Info("closing NATS connection")
	if err := c.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain connection: %w", err)
	}
	return nil
}

// buildNATSOptions creates NATS connection options with auth and TLS
func buildNATSOptions(cfg *config.NATSConfig, log *logger.Logger) ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name("chained-datasource"),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
	}

	// Authentication (choose one method)
	switch {
	case cfg.CredsFile != "":
		log.Info("using NATS creds file authentication", "credsFile", cfg.CredsFile)
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	case cfg.NKeySeed != "":
		opt, pub, err := nkeyOption(cfg.NKeySeed)
		if err != nil {
			return nil, err
		}
		log.Info("using NATS NKey authentication", "publicKey", pub)
		opts = append(opts, opt)
	case cfg.Token != "":
		log.Info("using NATS token authentication")
		opts = append(opts, nats.Token(cfg.Token))
	case cfg.Username != "":
		log.Info("using NATS username/password authentication", "username", cfg.Username)
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	if cfg.TLS.Enable {
		log.Info("enabling TLS", "insecure", cfg.TLS.Insecure)

		tlsConfig := &tls.Config{
			InsecureSkipVerify: cfg.TLS.Insecure,
		}
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load TLS cert/key: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		if cfg.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(cfg.TLS.CAFile))
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	return opts, nil
}

// nkeyOption signs the server nonce with the user seed
func nkeyOption(seed string) (nats.Option, string, error) {
	kp, err := nkeys.FromSeed([]byte(strings.TrimSpace(seed)))
	if err != nil {
		return nil, "", fmt.Errorf("invalid nkey seed: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive nkey public key: %w", err)
	}
	return nats.Nkey(pub, kp.Sign), pub, nil
}
