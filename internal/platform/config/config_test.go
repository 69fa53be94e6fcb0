package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cache.Bounded.Capacity != 100 {
		t.Errorf("capacity: expected 100, got %d", cfg.Cache.Bounded.Capacity)
	}
	if cfg.Cache.Bounded.TTL != 300*time.Second {
		t.Errorf("bounded ttl: expected 300s, got %s", cfg.Cache.Bounded.TTL)
	}
	if cfg.Cache.Durable.TTL != time.Hour {
		t.Errorf("durable ttl: expected 1h, got %s", cfg.Cache.Durable.TTL)
	}
	if cfg.Vector.Dimension != 768 {
		t.Errorf("dimension: expected 768, got %d", cfg.Vector.Dimension)
	}
	if cfg.Vector.ThresholdDirection != "lower_is_closer" {
		t.Errorf("direction: expected lower_is_closer for l2, got %s", cfg.Vector.ThresholdDirection)
	}
	if cfg.Vector.Isolation != "inline" {
		t.Errorf("isolation: expected inline, got %s", cfg.Vector.Isolation)
	}
	if cfg.Embedding.RetryCount != 3 || cfg.Embedding.RetryDelay != time.Second {
		t.Errorf("retry: expected 3 x 1s, got %d x %s", cfg.Embedding.RetryCount, cfg.Embedding.RetryDelay)
	}
	if got := cfg.Redis.Addr(); got != "localhost:6379" {
		t.Errorf("redis addr: expected localhost:6379, got %s", got)
	}
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("SEMCACHE_VECTOR_METRIC", "inner_product")
	t.Setenv("SEMCACHE_VECTOR_THRESHOLD", "0.8")
	t.Setenv("SEMCACHE_CACHE_DURABLE_BACKEND", "sqlite")
	t.Setenv("SEMCACHE_VECTOR_ISOLATION_TIMEOUT", "250ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Vector.Metric != "inner_product" {
		t.Errorf("metric: expected inner_product, got %s", cfg.Vector.Metric)
	}
	if cfg.Vector.ThresholdDirection != "higher_is_closer" {
		t.Errorf("direction: expected derived higher_is_closer, got %s", cfg.Vector.ThresholdDirection)
	}
	if cfg.Vector.Threshold != 0.8 {
		t.Errorf("threshold: expected 0.8, got %v", cfg.Vector.Threshold)
	}
	if cfg.Cache.Durable.Backend != "sqlite" {
		t.Errorf("backend: expected sqlite, got %s", cfg.Cache.Durable.Backend)
	}
	if cfg.Vector.IsolationTimeout != 250*time.Millisecond {
		t.Errorf("isolation timeout: expected 250ms, got %s", cfg.Vector.IsolationTimeout)
	}
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_TTL", "7200")
	t.Setenv("SESSION_CACHE_MAX_SIZE", "50")
	t.Setenv("SESSION_CACHE_TTL", "60")
	t.Setenv("EMBEDDING_RETRY_DELAY", "0.5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.Redis.Addr(); got != "cache.internal:6380" {
		t.Errorf("redis addr: expected cache.internal:6380, got %s", got)
	}
	if cfg.Cache.Durable.TTL != 2*time.Hour {
		t.Errorf("durable ttl: expected 2h from bare seconds, got %s", cfg.Cache.Durable.TTL)
	}
	if cfg.Cache.Bounded.Capacity != 50 {
		t.Errorf("capacity: expected 50, got %d", cfg.Cache.Bounded.Capacity)
	}
	if cfg.Cache.Bounded.TTL != time.Minute {
		t.Errorf("bounded ttl: expected 1m, got %s", cfg.Cache.Bounded.TTL)
	}
	if cfg.Embedding.RetryDelay != 500*time.Millisecond {
		t.Errorf("retry delay: expected 500ms, got %s", cfg.Embedding.RetryDelay)
	}
	if cfg.Observability.Logging.Level != "debug" {
		t.Errorf("log level: expected debug, got %s", cfg.Observability.Logging.Level)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semcache.yaml")
	yaml := `
cache:
  bounded:
    capacity: 10
    ttl: 30s
  durable:
    backend: dynamodb
dynamodb:
  table: answers
vector:
  dimension: 384
  candidates: 3
embedding:
  provider: bedrock
  model: amazon.titan-embed-text-v2:0
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cache.Bounded.Capacity != 10 || cfg.Cache.Bounded.TTL != 30*time.Second {
		t.Errorf("bounded: expected 10/30s, got %d/%s", cfg.Cache.Bounded.Capacity, cfg.Cache.Bounded.TTL)
	}
	if cfg.DynamoDB.Table != "answers" {
		t.Errorf("table: expected answers, got %s", cfg.DynamoDB.Table)
	}
	if cfg.Vector.Dimension != 384 || cfg.Vector.Candidates != 3 {
		t.Errorf("vector: expected 384/3, got %d/%d", cfg.Vector.Dimension, cfg.Vector.Candidates)
	}
	if cfg.Embedding.Model != "amazon.titan-embed-text-v2:0" {
		t.Errorf("model: got %s", cfg.Embedding.Model)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero capacity", func(c *Config) { c.Cache.Bounded.Capacity = 0 }, "capacity"},
		{"zero bounded ttl", func(c *Config) { c.Cache.Bounded.TTL = 0 }, "cache.bounded.ttl"},
		{"zero durable ttl", func(c *Config) { c.Cache.Durable.TTL = 0 }, "cache.durable.ttl"},
		{"unknown backend", func(c *Config) { c.Cache.Durable.Backend = "memcached" }, "cache.durable.backend"},
		{"zero dimension", func(c *Config) { c.Vector.Dimension = 0 }, "vector.dimension"},
		{"unknown metric", func(c *Config) { c.Vector.Metric = "cosine" }, "vector.metric"},
		{"contradicting direction", func(c *Config) { c.Vector.ThresholdDirection = "higher_is_closer" }, "contradicts"},
		{"isolated without timeout", func(c *Config) {
			c.Vector.Isolation = "isolated"
			c.Vector.IsolationTimeout = 0
		}, "isolation_timeout"},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }, "api_key"},
		{"bad log level", func(c *Config) { c.Observability.Logging.Level = "trace" }, "logging.level"},
		{"ok", func(c *Config) {}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
