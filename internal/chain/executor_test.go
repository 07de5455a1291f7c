package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"chained-datasource/internal/auth"
	"chained-datasource/internal/descriptor"
	"chained-datasource/internal/logger"
)

// scopeTokens hands out tokens only for scopes it holds a session for
type scopeTokens struct {
	mu       sync.Mutex
	sessions map[string]string
	calls    []auth.RequestKey
}

func (s *scopeTokens) AcquireSilent(ctx context.Context, req *auth.LoginRequest) (*oauth2.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req.Key)
	access, ok := s.sessions[req.Key.Scope]
	if !ok {
		return nil, false
	}
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, true
}

type recordingScheduler struct {
	mu    sync.Mutex
	armed []*auth.LoginRequest
}

func (r *recordingScheduler) Schedule(req *auth.LoginRequest, token *oauth2.Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = append(r.armed, req)
	return true
}

func newTestExecutor(cache *auth.Cache, tokens TokenSource, sched RefreshScheduler, concurrency int) *Executor {
	return NewExecutor(cache, tokens, sched, http.DefaultClient, logger.NewNopLogger(), nil, concurrency)
}

func newTestCache() *auth.Cache {
	return auth.NewCache(auth.CacheOptions{AuthorityHost: "https://login.example.com", TenantID: "tenant"})
}

func TestExecute_EmptyList(t *testing.T) {
	tokens := &scopeTokens{}
	results := newTestExecutor(newTestCache(), tokens, nil, 1).Execute(context.Background(), nil, "default", "user")
	assert.Empty(t, results)
	assert.Empty(t, tokens.calls)
}

func TestExecute_SendsBearerAndDecodes(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer tok-orders", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"orders":[1,2]}`))
	}))
	defer srv.Close()

	scope, err := descriptor.DefaultScope(srv.URL)
	require.NoError(t, err)

	tokens := &scopeTokens{sessions: map[string]string{scope: "tok-orders"}}
	sched := &recordingScheduler{}
	descs := []descriptor.Resource{{URL: srv.URL + "/orders", Method: descriptor.MethodPost}}

	results := newTestExecutor(newTestCache(), tokens, sched, 1).Execute(context.Background(), descs, "default", "user")

	require.Len(t, results, 1)
	assert.True(t, results[0].Authenticated)
	assert.True(t, results[0].OK)
	assert.Equal(t, map[string]any{"orders": []any{float64(1), float64(2)}}, results[0].Payload)
	assert.Equal(t, auth.ClientKey("default"), results[0].ClientKey)
	assert.Equal(t, int32(1), hits.Load())
	require.Len(t, sched.armed, 1)
	assert.Equal(t, scope, sched.armed[0].Key.Scope)
}

func TestExecute_FailuresIsolatedAndOrdered(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`"a"`)) })
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`<html>`)) })
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`"c"`)) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for _, concurrency := range []int{1, 4} {
		tokens := &scopeTokens{sessions: map[string]string{
			"api://a": "ta", "api://broken": "tb", "api://garbage": "tg", "api://c": "tc",
		}}
		descs := []descriptor.Resource{
			{URL: srv.URL + "/a", Method: descriptor.MethodGet, ResourceScope: "api://a"},
			{URL: srv.URL + "/nosession", Method: descriptor.MethodGet, ResourceScope: "api://none"},
			{URL: srv.URL + "/broken", Method: descriptor.MethodGet, ResourceScope: "api://broken"},
			{URL: srv.URL + "/garbage", Method: descriptor.MethodGet, ResourceScope: "api://garbage"},
			{URL: srv.URL + "/c", Method: descriptor.MethodGet, ResourceScope: "api://c"},
		}

		results := newTestExecutor(newTestCache(), tokens, nil, concurrency).Execute(context.Background(), descs, "default", "user")

		require.Len(t, results, 5)
		assert.Equal(t, "a", results[0].Payload)
		assert.False(t, results[1].Authenticated)
		assert.Equal(t, []any{}, results[1].Payload)
		assert.True(t, results[2].Authenticated)
		assert.False(t, results[2].OK)
		assert.Equal(t, []any{}, results[2].Payload)
		assert.False(t, results[3].OK)
		assert.Equal(t, "c", results[4].Payload)
		for i, r := range results {
			assert.Equal(t, descs[i].URL, r.Descriptor.URL, "result %d out of order", i)
		}
	}
}

func TestExecute_SharedKeyReusesLoginRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	cache := newTestCache()
	tokens := &scopeTokens{sessions: map[string]string{"api://x": "t"}}
	sched := &recordingScheduler{}
	descs := []descriptor.Resource{
		{URL: srv.URL + "/one", Method: descriptor.MethodGet, ResourceScope: "api://x"},
		{URL: srv.URL + "/two", Method: descriptor.MethodGet, ResourceScope: "api://x"},
		{URL: srv.URL + "/three", Method: descriptor.MethodGet, ResourceScope: "api://x", ClientID: "other"},
	}

	newTestExecutor(cache, tokens, sched, 2).Execute(context.Background(), descs, "default", "user")

	configs, requests := cache.Size()
	assert.Equal(t, 2, configs)
	assert.Equal(t, 2, requests)
	require.Len(t, sched.armed, 3)

	byClient := map[auth.ClientKey][]*auth.LoginRequest{}
	for _, req := range sched.armed {
		byClient[req.Key.Client] = append(byClient[req.Key.Client], req)
	}
	require.Len(t, byClient["default"], 2)
	assert.Same(t, byClient["default"][0], byClient["default"][1])
	assert.Len(t, byClient["other"], 1)
}

func TestExecute_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tokens := &scopeTokens{sessions: map[string]string{"api://gone": "t"}}
	sched := &recordingScheduler{}
	descs := []descriptor.Resource{{URL: url, Method: descriptor.MethodGet, ResourceScope: "api://gone"}}

	results := newTestExecutor(newTestCache(), tokens, sched, 1).Execute(context.Background(), descs, "default", "user")

	require.Len(t, results, 1)
	assert.True(t, results[0].Authenticated)
	assert.False(t, results[0].OK)
	// Refresh still tracks the acquired token
	assert.Len(t, sched.armed, 1)
}
