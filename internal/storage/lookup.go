// file: internal/storage/lookup.go

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"chained-datasource/internal/logger"
)

// maxEntitySize caps a storage entity response (64KB)
const maxEntitySize = 64 * 1024

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// storageEntity is the body returned by the site storage entity endpoint
type storageEntity struct {
	Value       *string `json:"Value"`
	Description string  `json:"Description,omitempty"`
	Comment     string  `json:"Comment,omitempty"`
}

// HTTPLookup reads the client id from the site's tenant property store.
type HTTPLookup struct {
	client  Doer
	siteURL string
	headers map[string]string
	logger  *logger.Logger
}

// NewHTTPLookup creates a lookup against siteURL. headers are added to every
// request, typically to carry the host's own credentials.
func NewHTTPLookup(client Doer, siteURL string, headers map[string]string, log *logger.Logger) *HTTPLookup {
	return &HTTPLookup{
		client:  client,
		siteURL: strings.TrimRight(siteURL, "/"),
		headers: headers,
		logger:  log,
	}
}

// LookupClientID returns the entity value. A missing entity yields "".
func (l *HTTPLookup) LookupClientID(ctx context.Context, entity string) (string, error) {
	endpoint := fmt.Sprintf("%s/_api/web/GetStorageEntity('%s')", l.siteURL, url.PathEscape(entity))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range l.headers {
		req.Header.Set(k, v)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage entity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		l.logger.Debug("storage entity not found", "entity", entity, "url", endpoint)
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage entity request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEntitySize))
	if err != nil {
		return "", fmt.Errorf("failed to read storage entity: %w", err)
	}

	var se storageEntity
	if err := json.Unmarshal(body, &se); err != nil {
		return "", fmt.Errorf("failed to decode storage entity: %w", err)
	}
	if se.Value == nil {
		return "", nil
	}
	return *se.Value, nil
}

// KVLookup reads the client id from a key named after the storage entity.
type KVLookup struct {
	kv     jetstream.KeyValue
	logger *logger.Logger
}

// NewKVLookup creates a lookup over a KV bucket
func NewKVLookup(kv jetstream.KeyValue, log *logger.Logger) *KVLookup {
	return &KVLookup{kv: kv, logger: log}
}

// LookupClientID returns the value stored under entity. A missing key yields "".
func (l *KVLookup) LookupClientID(ctx context.Context, entity string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, kvOperationTimeout)
	defer cancel()

	entry, err := l.kv.Get(ctx, entity)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			l.logger.Debug("storage entity key not found", "bucket", l.kv.Bucket(), "key", entity)
			return "", nil
		}
		return "", fmt.Errorf("failed to read key '%s': %w", entity, err)
	}
	return strings.TrimSpace(string(entry.Value())), nil
}

// StaticLookup returns a configured client id.
type StaticLookup string

// LookupClientID ignores entity and returns the configured id
func (s StaticLookup) LookupClientID(context.Context, string) (string, error) {
	return string(s), nil
}
