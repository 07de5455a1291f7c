package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chained-datasource/config"
	"chained-datasource/internal/descriptor"
	"chained-datasource/internal/logger"
)

// --- KV fakes ---

type fakeEntry struct {
	jetstream.KeyValueEntry
	key      string
	value    []byte
	revision uint64
	op       jetstream.KeyValueOp
}

func (e *fakeEntry) Key() string                     { return e.key }
func (e *fakeEntry) Value() []byte                   { return e.value }
func (e *fakeEntry) Revision() uint64                { return e.revision }
func (e *fakeEntry) Operation() jetstream.KeyValueOp { return e.op }

type fakeWatcher struct {
	jetstream.KeyWatcher
	updates chan jetstream.KeyValueEntry
	once    sync.Once
}

func (w *fakeWatcher) Updates() <-chan jetstream.KeyValueEntry { return w.updates }
func (w *fakeWatcher) Stop() error {
	w.once.Do(func() { close(w.updates) })
	return nil
}

// fakeKV implements the subset of jetstream.KeyValue the storage package uses
type fakeKV struct {
	jetstream.KeyValue
	mu       sync.Mutex
	store    map[string][]byte
	revision uint64
	fail     bool
	watchers []*fakeWatcher
}

func newFakeKV() *fakeKV {
	return &fakeKV{store: make(map[string][]byte)}
}

func (f *fakeKV) Bucket() string { return "datasource" }

func (f *fakeKV) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("simulated NATS error")
	}
	v, ok := f.store[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return &fakeEntry{key: key, value: v, revision: f.revision, op: jetstream.KeyValuePut}, nil
}

func (f *fakeKV) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	f.mu.Lock()
	f.revision++
	f.store[key] = value
	entry := &fakeEntry{key: key, value: value, revision: f.revision, op: jetstream.KeyValuePut}
	watchers := append([]*fakeWatcher(nil), f.watchers...)
	f.mu.Unlock()

	for _, w := range watchers {
		w.updates <- entry
	}
	return entry.revision, nil
}

func (f *fakeKV) Watch(ctx context.Context, key string, opts ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWatcher{updates: make(chan jetstream.KeyValueEntry, 16)}
	if v, ok := f.store[key]; ok {
		w.updates <- &fakeEntry{key: key, value: v, revision: f.revision, op: jetstream.KeyValuePut}
	}
	w.updates <- nil
	f.watchers = append(f.watchers, w)
	return w, nil
}

func (f *fakeKV) emit(entry *fakeEntry) {
	f.mu.Lock()
	watchers := append([]*fakeWatcher(nil), f.watchers...)
	f.mu.Unlock()
	for _, w := range watchers {
		w.updates <- entry
	}
}

// --- lookups ---

func TestHTTPLookup(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"value present", http.StatusOK, `{"Value":"3f2a-app","Description":"","Comment":""}`, "3f2a-app", false},
		{"null value", http.StatusOK, `{"odata.null":true}`, "", false},
		{"not found", http.StatusNotFound, ``, "", false},
		{"server error", http.StatusInternalServerError, ``, "", true},
		{"malformed", http.StatusOK, `{"Value":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/sites/intranet/_api/web/GetStorageEntity('ValoAadClientId')", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				assert.Equal(t, "Bearer site", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			lookup := NewHTTPLookup(srv.Client(), srv.URL+"/sites/intranet/", map[string]string{"Authorization": "Bearer site"}, logger.NewNopLogger())
			got, err := lookup.LookupClientID(context.Background(), "ValoAadClientId")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKVLookup(t *testing.T) {
	kv := newFakeKV()
	kv.store["ValoAadClientId"] = []byte(" app-id \n")
	lookup := NewKVLookup(kv, logger.NewNopLogger())

	got, err := lookup.LookupClientID(context.Background(), "ValoAadClientId")
	require.NoError(t, err)
	assert.Equal(t, "app-id", got)

	got, err = lookup.LookupClientID(context.Background(), "Missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	kv.fail = true
	_, err = lookup.LookupClientID(context.Background(), "ValoAadClientId")
	assert.Error(t, err)
}

func TestStaticLookup(t *testing.T) {
	got, err := StaticLookup("fixed").LookupClientID(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "fixed", got)
}

// --- watcher ---

type recordingTarget struct {
	mu      sync.Mutex
	applied [][]descriptor.Resource
}

func (r *recordingTarget) OnConfigurationChanged(descs []descriptor.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, descs)
	return nil
}

func (r *recordingTarget) last() ([]descriptor.Resource, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.applied) == 0 {
		return nil, 0
	}
	return r.applied[len(r.applied)-1], len(r.applied)
}

func TestDescriptorWatcher(t *testing.T) {
	kv := newFakeKV()
	kv.store["descriptors"] = []byte("- url: https://api.contoso.com/orders\n")
	target := &recordingTarget{}

	w := NewDescriptorWatcher(kv, "descriptors", target, logger.NewNopLogger())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool { _, n := target.last(); return n == 1 }, time.Second, 10*time.Millisecond)
	got, _ := target.last()
	require.Len(t, got, 1)
	assert.Equal(t, descriptor.MethodGet, got[0].Method)

	// Invalid documents are skipped
	kv.emit(&fakeEntry{key: "descriptors", value: []byte(`[{"url":""}]`), revision: 9, op: jetstream.KeyValuePut})

	require.NoError(t, w.Publish(context.Background(), []descriptor.Resource{
		{URL: "https://api.contoso.com/orders"},
		{URL: "https://crm.contoso.com/accounts", ResourceScope: "https://crm.contoso.com/.default"},
	}))
	require.Eventually(t, func() bool { _, n := target.last(); return n == 2 }, time.Second, 10*time.Millisecond)
	got, _ = target.last()
	assert.Len(t, got, 2)

	kv.emit(&fakeEntry{key: "descriptors", revision: 11, op: jetstream.KeyValueDelete})
	require.Eventually(t, func() bool { _, n := target.last(); return n == 3 }, time.Second, 10*time.Millisecond)
	got, _ = target.last()
	assert.Empty(t, got)
}

func TestDescriptorWatcher_PublishRejectsInvalid(t *testing.T) {
	kv := newFakeKV()
	w := NewDescriptorWatcher(kv, "descriptors", &recordingTarget{}, logger.NewNopLogger())
	err := w.Publish(context.Background(), []descriptor.Resource{{URL: ""}})
	assert.ErrorIs(t, err, descriptor.ErrEmptyURL)
	assert.Empty(t, kv.store)
}

func TestDescriptorWatcher_StopWithoutStart(t *testing.T) {
	w := NewDescriptorWatcher(newFakeKV(), "descriptors", &recordingTarget{}, logger.NewNopLogger())
	assert.NoError(t, w.Stop())
}

// --- token cache ---

type blob struct{ data []byte }

func (b *blob) Marshal() ([]byte, error)   { return b.data, nil }
func (b *blob) Unmarshal(data []byte) error { b.data = data; return nil }

var (
	_ cache.Marshaler   = (*blob)(nil)
	_ cache.Unmarshaler = (*blob)(nil)
)

func TestTokenCache(t *testing.T) {
	kv := newFakeKV()
	tc := NewTokenCache(kv, logger.NewNopLogger())
	ctx := context.Background()

	restored := &blob{}
	require.NoError(t, tc.For("app-a").Replace(ctx, restored, cache.ReplaceHints{}))
	assert.Nil(t, restored.data, "missing key leaves cache empty")

	require.NoError(t, tc.For("app-a").Export(ctx, &blob{data: []byte(`{"AccessToken":{}}`)}, cache.ExportHints{}))
	assert.Contains(t, kv.store, "msal.app-a")

	require.NoError(t, tc.For("app-a").Replace(ctx, restored, cache.ReplaceHints{}))
	assert.Equal(t, `{"AccessToken":{}}`, string(restored.data))

	other := &blob{}
	require.NoError(t, tc.For("app-b").Replace(ctx, other, cache.ReplaceHints{}))
	assert.Nil(t, other.data, "caches are partitioned per client id")

	kv.fail = true
	assert.Error(t, tc.For("app-a").Replace(ctx, restored, cache.ReplaceHints{}))
}

// --- connection options ---

func TestNKeyOption(t *testing.T) {
	kp, err := nkeys.CreateUser()
	require.NoError(t, err)
	seed, err := kp.Seed()
	require.NoError(t, err)
	want, err := kp.PublicKey()
	require.NoError(t, err)

	opt, pub, err := nkeyOption(string(seed))
	require.NoError(t, err)
	assert.NotNil(t, opt)
	assert.Equal(t, want, pub)

	_, _, err = nkeyOption("not-a-seed")
	assert.Error(t, err)
}

func TestBuildNATSOptions(t *testing.T) {
	log := logger.NewNopLogger()

	opts, err := buildNATSOptions(&config.NATSConfig{Token: "secret"}, log)
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	cfg := &config.NATSConfig{}
	cfg.TLS.Enable = true
	cfg.TLS.CertFile = "/does/not/exist.pem"
	cfg.TLS.KeyFile = "/does/not/exist.key"
	_, err = buildNATSOptions(cfg, log)
	assert.Error(t, err)
}
