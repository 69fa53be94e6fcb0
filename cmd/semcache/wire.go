package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Subhagatoadak/SemanticCaching/internal/embedding"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/aws"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/cache"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/config"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/observability"
	"github.com/Subhagatoadak/SemanticCaching/internal/semcache"
	"github.com/Subhagatoadak/SemanticCaching/internal/vectorindex"
)

const serviceName = "semcache"

// app is everything a command needs, built from one Config.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	tracing *observability.TracerProvider
	cache   *semcache.Cache[string]
	// ping checks the durable backend for /ready. Nil when the backend has
	// no cheap probe.
	ping func(ctx context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics(serviceName, cfg.Observability.Metrics.Enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	tracing, err := observability.NewTracerProvider(ctx, serviceName, cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics, tracing: tracing}

	store, err := a.newStore(ctx)
	if err != nil {
		return nil, errors.Join(err, tracing.Shutdown(ctx))
	}

	embedder, err := a.newEmbedder(ctx)
	if err != nil {
		return nil, errors.Join(err, store.Close(), tracing.Shutdown(ctx))
	}

	index, err := a.newIndex()
	if err != nil {
		return nil, errors.Join(err, store.Close(), tracing.Shutdown(ctx))
	}

	threshold, err := thresholdFor(cfg.Vector, index.Metric())
	if err != nil {
		return nil, errors.Join(err, index.Close(), store.Close(), tracing.Shutdown(ctx))
	}

	codec, err := cache.CodecByName[string](cfg.Cache.Codec)
	if err != nil {
		return nil, errors.Join(err, index.Close(), store.Close(), tracing.Shutdown(ctx))
	}

	var memOpts []cache.BoundedOption
	if cfg.Cache.Bounded.RefreshOnHit {
		memOpts = append(memOpts, cache.WithRefreshOnHit())
	}
	if cfg.Cache.Bounded.SweepInterval > 0 {
		memOpts = append(memOpts, cache.WithSweepInterval(cfg.Cache.Bounded.SweepInterval))
	}
	memory := cache.NewBoundedCache[string](cfg.Cache.Bounded.Capacity, cfg.Cache.Bounded.TTL, memOpts...)

	c, err := semcache.New(semcache.Config[string]{
		Memory:          memory,
		Store:           store,
		Codec:           codec,
		DurableTTL:      cfg.Cache.Durable.TTL,
		Index:           index,
		Embedder:        embedder,
		Threshold:       threshold,
		Candidates:      cfg.Vector.Candidates,
		EagerInvalidate: cfg.Vector.EagerInvalidate,
		Logger:          logger,
		Metrics:         metrics,
		Tracer:          tracing.Tracer(),
	})
	if err != nil {
		return nil, errors.Join(err, index.Close(), memory.Close(), store.Close(), tracing.Shutdown(ctx))
	}
	a.cache = c

	logger.Info("semantic cache ready",
		"backend", cfg.Cache.Durable.Backend,
		"embedding_provider", cfg.Embedding.Provider,
		"metric", index.Metric().String(),
		"threshold", threshold.String(),
		"dimension", index.Dimension(),
	)
	return a, nil
}

func (a *app) newStore(ctx context.Context) (cache.Store, error) {
	cfg := a.cfg
	switch cfg.Cache.Durable.Backend {
	case "sqlite":
		return cache.NewSQLiteStore(cfg.SQLite.Path)
	case "dynamodb":
		awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
		if err != nil {
			return nil, err
		}
		return cache.NewDynamoStoreFromConfig(awsCfg, cfg.DynamoDB.Table), nil
	default:
		store, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:      cfg.Redis.Addr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			UseTLS:    cfg.Redis.UseTLS,
			KeyPrefix: cfg.Cache.Durable.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.ping = store.Ping
		return store, nil
	}
}

func (a *app) newEmbedder(ctx context.Context) (embedding.Embedder, error) {
	cfg := a.cfg.Embedding
	dim := a.cfg.Vector.Dimension

	var base embedding.Embedder
	switch cfg.Provider {
	case "openai":
		e, err := embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			Dimensions:        dim,
			Timeout:           cfg.Timeout,
			RequestsPerMinute: cfg.RequestsPerMinute,
		})
		if err != nil {
			return nil, err
		}
		base = e
	case "bedrock":
		awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{Region: a.cfg.AWS.Region, Endpoint: a.cfg.AWS.Endpoint})
		if err != nil {
			return nil, err
		}
		e, err := embedding.NewBedrockFromConfig(awsCfg, cfg.Model, dim)
		if err != nil {
			return nil, err
		}
		base = e
	default:
		// local hashing embedder needs no retries
		return embedding.NewHash(dim)
	}

	return embedding.NewRetrying(base, cfg.RetryCount, cfg.RetryDelay, a.logger, a.metrics), nil
}

func (a *app) newIndex() (*vectorindex.Index, error) {
	cfg := a.cfg.Vector

	metric, err := vectorindex.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}

	exec := vectorindex.Inline()
	if cfg.Isolation == "isolated" {
		exec = vectorindex.Isolated(cfg.IsolationTimeout, cfg.Workers)
	}

	return vectorindex.New(vectorindex.Config{
		Dimension: cfg.Dimension,
		Metric:    metric,
		Executor:  exec,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
}

func thresholdFor(cfg config.VectorConfig, metric vectorindex.Metric) (semcache.Threshold, error) {
	dir := semcache.DirectionOf(metric)
	if cfg.ThresholdDirection != "" {
		parsed, err := semcache.ParseDirection(cfg.ThresholdDirection)
		if err != nil {
			return semcache.Threshold{}, err
		}
		dir = parsed
	}
	return semcache.Threshold{Value: float32(cfg.Threshold), Direction: dir}, nil
}

// Close shuts the cache down and flushes spans.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.cache.Close(), a.tracing.Shutdown(ctx))
}
