package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/resilience"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string // defaults to https://api.openai.com/v1
	APIKey     string
	Model      string // defaults to text-embedding-3-small
	Dimensions int
	Timeout    time.Duration

	// RequestsPerMinute limits outgoing calls. Zero means unlimited.
	RequestsPerMinute int

	HTTPClient *http.Client
	Breaker    *resilience.CircuitBreaker
}

// OpenAI calls POST {base}/embeddings.
type OpenAI struct {
	cfg     OpenAIConfig
	client  *http.Client
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
}

type openAIRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAI creates the client. Dimensions is required; it is sent to models
// that support shortening and checked against every answer.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("openai embedder: dimensions must be > 0, got %d", cfg.Dimensions)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "openai-embeddings",
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
			IsFailure:        IsTransient,
		})
	}

	e := &OpenAI{cfg: cfg, client: client, breaker: breaker}
	if cfg.RequestsPerMinute > 0 {
		e.limiter = resilience.NewRateLimiterFromRPM(cfg.RequestsPerMinute, 0)
	}
	return e, nil
}

func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	vec, err := resilience.ExecuteWithResult(e.breaker, ctx, func(ctx context.Context) ([]float32, error) {
		return e.call(ctx, text)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// an open breaker clears on its own
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	if err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

func (e *OpenAI) call(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIRequest{Input: text, Model: e.cfg.Model, Dimensions: e.cfg.Dimensions})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: send request: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("embeddings API returned status %d: %s", resp.StatusCode, truncate(raw, 256))
		if retryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return nil, err
	}

	var out openAIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, errors.New("no embedding data in response")
	}

	vec := out.Data[0].Embedding
	if len(vec) != e.cfg.Dimensions {
		return nil, fmt.Errorf("%w: model %s returned %d, want %d", ErrDimensionMismatch, e.cfg.Model, len(vec), e.cfg.Dimensions)
	}
	return vec, nil
}

func (e *OpenAI) Dimensions() int { return e.cfg.Dimensions }

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
