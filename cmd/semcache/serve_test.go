package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Subhagatoadak/SemanticCaching/internal/embedding"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/cache"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/observability"
	"github.com/Subhagatoadak/SemanticCaching/internal/semcache"
	"github.com/Subhagatoadak/SemanticCaching/internal/vectorindex"
)

func newTestServer(t *testing.T, ping func(context.Context) error) *httptest.Server {
	t.Helper()

	store, err := cache.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	embedder, err := embedding.NewHash(768)
	require.NoError(t, err)

	index, err := vectorindex.New(vectorindex.Config{Dimension: 768, Metric: vectorindex.L2})
	require.NoError(t, err)

	c, err := semcache.New(semcache.Config[string]{
		Memory:     cache.NewBoundedCache[string](16, time.Minute),
		Store:      store,
		Codec:      cache.StringCodec{},
		DurableTTL: time.Hour,
		Index:      index,
		Embedder:   embedder,
		Threshold:  semcache.ThresholdFor(vectorindex.L2, 0.5),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	srv := httptest.NewServer(newHandler(c, ping, observability.NewNopMetrics(), observability.NewNopLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, target, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func cacheURL(srv *httptest.Server, query string) string {
	return srv.URL + "/v1/cache?q=" + url.QueryEscape(query)
}

func TestHandler_CacheLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodPut, srv.URL+"/v1/cache",
		`{"query":"What is the weather today?","value":"It's sunny and 25°C."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, cacheURL(srv, "What is the weather today?"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var exact lookupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exact))
	assert.Equal(t, "It's sunny and 25°C.", exact.Value)
	assert.Equal(t, "memory", exact.Tier)
	assert.Equal(t, semcache.Fingerprint("What is the weather today?"), exact.Fingerprint)

	resp = do(t, http.MethodGet, cacheURL(srv, "Tell me today's weather"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var similar lookupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&similar))
	assert.Equal(t, "semantic", similar.Tier)
	assert.Equal(t, exact.Fingerprint, similar.MatchedKey)
	t.Logf("✓ near-duplicate served semantically (score %.3f)", similar.Score)

	resp = do(t, http.MethodDelete, cacheURL(srv, "What is the weather today?"), "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, cacheURL(srv, "What is the weather today?"), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, http.MethodGet, cacheURL(srv, "Tell me today's weather"), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/v1/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.Lookups["memory"])
	assert.Equal(t, int64(1), stats.Lookups["semantic"])
	assert.Equal(t, int64(2), stats.Lookups["miss"])
	assert.Equal(t, 1, stats.Index)
}

func TestHandler_BadRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"get without query", http.MethodGet, srv.URL + "/v1/cache", ""},
		{"delete without query", http.MethodDelete, srv.URL + "/v1/cache", ""},
		{"put with malformed body", http.MethodPut, srv.URL + "/v1/cache", `{"query":`},
		{"put with unknown field", http.MethodPut, srv.URL + "/v1/cache", `{"query":"q","value":"v","ttl":3}`},
		{"put without query", http.MethodPut, srv.URL + "/v1/cache", `{"value":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/v1/cache", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandler_HealthAndReady(t *testing.T) {
	down := errors.New("connection refused")
	var fail atomic.Bool
	srv := newTestServer(t, func(context.Context) error {
		if fail.Load() {
			return down
		}
		return nil
	})

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	fail.Store(true)
	resp = do(t, http.MethodGet, srv.URL+"/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
