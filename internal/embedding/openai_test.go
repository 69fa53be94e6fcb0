package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/resilience"
)

func embeddingsHandler(t *testing.T, vec []float32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vec}},
			"model":  req.Model,
		})
	}
}

func TestOpenAI_Embed(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq openAIRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{3, 4}}},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAI(OpenAIConfig{
		BaseURL:    srv.URL + "/v1/",
		APIKey:     "sk-test",
		Model:      "text-embedding-3-small",
		Dimensions: 2,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "/v1/embeddings", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "hello", gotReq.Input)
	assert.Equal(t, "text-embedding-3-small", gotReq.Model)
	assert.Equal(t, 2, gotReq.Dimensions)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestOpenAI_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.status)
			}))
			defer srv.Close()

			e, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Dimensions: 2})
			require.NoError(t, err)

			_, err = e.Embed(context.Background(), "q")
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestOpenAI_RetriedThroughWrapper(t *testing.T) {
	var calls atomic.Int32
	ok := embeddingsHandler(t, []float32{1, 0})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ok(w, r)
	}))
	defer srv.Close()

	e, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Dimensions: 2})
	require.NoError(t, err)

	vec, err := NewRetrying(e, 3, time.Millisecond, nil, nil).Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAI_WrongDimensions(t *testing.T) {
	srv := httptest.NewServer(embeddingsHandler(t, []float32{1, 2, 3}))
	defer srv.Close()

	e, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Dimensions: 2})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "q")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.False(t, IsTransient(err))
}

func TestOpenAI_BreakerOpensAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		Timeout:          time.Hour,
		IsFailure:        IsTransient,
	})
	e, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Dimensions: 2, Breaker: breaker})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := e.Embed(context.Background(), "q")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, breaker.State())

	_, err = e.Embed(context.Background(), "q")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAI_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, err := NewOpenAI(OpenAIConfig{BaseURL: url, Dimensions: 2, Timeout: time.Second})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "q")
	assert.True(t, IsTransient(err))
}

func TestNewOpenAI_RequiresDimensions(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}
