// file: internal/storage/watcher.go

package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"chained-datasource/internal/descriptor"
	"chained-datasource/internal/logger"
)

// ConfigurationTarget receives descriptor set changes.
type ConfigurationTarget interface {
	OnConfigurationChanged(descs []descriptor.Resource) error
}

// DescriptorWatcher applies descriptor documents written to a KV key. A delete
// or purge of the key installs an empty set.
type DescriptorWatcher struct {
	kv     jetstream.KeyValue
	key    string
	target ConfigurationTarget
	logger *logger.Logger

	mu      sync.Mutex
	watcher jetstream.KeyWatcher
	done    chan struct{}
}

// NewDescriptorWatcher creates a watcher for key in kv
func NewDescriptorWatcher(kv jetstream.KeyValue, key string, target ConfigurationTarget, log *logger.Logger) *DescriptorWatcher {
	return &DescriptorWatcher{
		kv:     kv,
		key:    key,
		target: target,
		logger: log,
	}
}

// Start begins watching. The current value, if any, is applied first.
func (w *DescriptorWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return fmt.Errorf("watcher already started")
	}

	kw, err := w.kv.Watch(ctx, w.key)
	if err != nil {
		return fmt.Errorf("failed to watch key '%s': %w", w.key, err)
	}
	w.watcher = kw
	w.done = make(chan struct{})

	go w.loop(kw, w.done)

	w.logger.Info("watching descriptors", "bucket", w.kv.Bucket(), "key", w.key)
	return nil
}

func (w *DescriptorWatcher) loop(kw jetstream.KeyWatcher, done chan struct{}) {
	defer close(done)
	for entry := range kw.Updates() {
		// nil marks the end of the initial values
		if entry == nil {
			continue
		}
		w.apply(entry)
	}
}

func (w *DescriptorWatcher) apply(entry jetstream.KeyValueEntry) {
	var descs []descriptor.Resource
	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		descs = []descriptor.Resource{}
	default:
		decoded, err := descriptor.Decode(entry.Value())
		if err != nil {
			w.logger.Error("ignoring invalid descriptor document",
				"key", entry.Key(),
				"revision", entry.Revision(),
				"error", err)
			return
		}
		descs = decoded
	}

	if err := w.target.OnConfigurationChanged(descs); err != nil {
		w.logger.Error("descriptor update rejected", "key", entry.Key(), "revision", entry.Revision(), "error", err)
		return
	}
	w.logger.Info("descriptors applied from KV", "key", entry.Key(), "revision", entry.Revision(), "count", len(descs))
}

// Publish writes a descriptor set to the watched key. Watchers, including this
// one, apply it when the update arrives.
func (w *DescriptorWatcher) Publish(ctx context.Context, descs []descriptor.Resource) error {
	prepared, err := descriptor.Prepare(descs)
	if err != nil {
		return err
	}
	data, err := descriptor.Encode(prepared)
	if err != nil {
		return fmt.Errorf("failed to encode descriptors: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, kvOperationTimeout)
	defer cancel()
	if _, err := w.kv.Put(ctx, w.key, data); err != nil {
		return fmt.Errorf("failed to store descriptors: %w", err)
	}
	return nil
}

// Stop ends the watch and waits for the update loop to exit
func (w *DescriptorWatcher) Stop() error {
	w.mu.Lock()
	kw, done := w.watcher, w.done
	w.watcher = nil
	w.mu.Unlock()

	if kw == nil {
		return nil
	}
	if err := kw.Stop(); err != nil {
		return fmt.Errorf("failed to stop watcher: %w", err)
	}
	<-done
	return nil
}
