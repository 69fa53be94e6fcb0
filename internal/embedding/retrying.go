package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/observability"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/resilience"
)

// Retrying retries transient provider failures a bounded number of times
// with a fixed delay and checks the vector length of every answer.
type Retrying struct {
	next    Embedder
	cfg     resilience.RetryConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRetrying wraps next. attempts counts the first call; values below one
// mean a single attempt.
func NewRetrying(next Embedder, attempts int, delay time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Retrying{
		next:    next,
		cfg:     resilience.FixedRetryConfig(attempts, delay),
		logger:  logger.Named("embedding"),
		metrics: metrics,
	}
}

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	attempt := 0

	vec, err := resilience.RetryIfWithResult(ctx, r.cfg, IsTransient, func(ctx context.Context) ([]float32, error) {
		attempt++
		vec, err := r.next.Embed(ctx, text)
		if err != nil && IsTransient(err) && attempt < r.cfg.MaxAttempts {
			r.logger.LogDebug(ctx, "embedding attempt failed, retrying",
				"attempt", attempt,
				"error", err,
			)
		}
		return vec, err
	})
	if err != nil {
		r.metrics.RecordEmbedding(ctx, "failed", time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	if len(vec) != r.next.Dimensions() {
		r.metrics.RecordEmbedding(ctx, "failed", time.Since(start))
		return nil, fmt.Errorf("%w: %w: got %d, want %d",
			ErrEmbeddingUnavailable, ErrDimensionMismatch, len(vec), r.next.Dimensions())
	}

	r.metrics.RecordEmbedding(ctx, "ok", time.Since(start))
	return vec, nil
}

func (r *Retrying) Dimensions() int { return r.next.Dimensions() }
