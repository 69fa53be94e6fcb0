package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the semantic cache
type Config struct {
	Cache         CacheConfig         `mapstructure:"cache"`
	Redis         RedisConfig         `mapstructure:"redis"`
	SQLite        SQLiteConfig        `mapstructure:"sqlite"`
	DynamoDB      DynamoDBConfig      `mapstructure:"dynamodb"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Vector        VectorConfig        `mapstructure:"vector"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// CacheConfig holds the exact-match tiers
type CacheConfig struct {
	Bounded BoundedConfig `mapstructure:"bounded"`
	Durable DurableConfig `mapstructure:"durable"`
	Codec   string        `mapstructure:"codec"` // json or msgpack
}

// BoundedConfig holds the in-process LRU settings
type BoundedConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	TTL           time.Duration `mapstructure:"ttl"`
	RefreshOnHit  bool          `mapstructure:"refresh_on_hit"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DurableConfig selects and tunes the durable store
type DurableConfig struct {
	Backend   string        `mapstructure:"backend"` // redis, sqlite, dynamodb
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// Addr returns Address, or Host:Port when Address is unset.
func (r RedisConfig) Addr() string {
	if r.Address != "" {
		return r.Address
	}
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// SQLiteConfig holds the SQLite store settings
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// DynamoDBConfig holds the DynamoDB store settings
type DynamoDBConfig struct {
	Table string `mapstructure:"table"`
}

// AWSConfig holds AWS service configuration
type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // LocalStack etc.
}

// VectorConfig holds the semantic tier settings
type VectorConfig struct {
	Dimension          int           `mapstructure:"dimension"`
	Metric             string        `mapstructure:"metric"` // l2 or inner_product
	Threshold          float64       `mapstructure:"threshold"`
	ThresholdDirection string        `mapstructure:"threshold_direction"`
	Candidates         int           `mapstructure:"candidates"`
	EagerInvalidate    bool          `mapstructure:"eager_invalidate"`
	Isolation          string        `mapstructure:"isolation"` // inline or isolated
	IsolationTimeout   time.Duration `mapstructure:"isolation_timeout"`
	Workers            int           `mapstructure:"workers"`
}

// EmbeddingConfig holds the embedding provider settings
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"` // hash, openai, bedrock
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryCount        int           `mapstructure:"retry_count"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Environment names used by earlier deployments, bound alongside the
// SEMCACHE_ prefixed names.
var legacyEnv = map[string]string{
	"redis.host":                   "REDIS_HOST",
	"redis.port":                   "REDIS_PORT",
	"redis.db":                     "REDIS_DB",
	"redis.password":               "REDIS_PASSWORD",
	"redis.use_tls":                "REDIS_USE_SSL",
	"cache.durable.ttl":            "REDIS_TTL",
	"cache.bounded.capacity":       "SESSION_CACHE_MAX_SIZE",
	"cache.bounded.ttl":            "SESSION_CACHE_TTL",
	"vector.dimension":             "VECTOR_DIM",
	"vector.threshold":             "SIMILARITY_THRESHOLD",
	"embedding.retry_count":        "EMBEDDING_RETRY_COUNT",
	"embedding.retry_delay":        "EMBEDDING_RETRY_DELAY",
	"observability.logging.level":  "LOG_LEVEL",
	"observability.logging.format": "LOG_FORMAT",
}

// Duration keys that also accept a bare number of seconds.
var secondsKeys = []string{
	"cache.bounded.ttl",
	"cache.bounded.sweep_interval",
	"cache.durable.ttl",
	"vector.isolation_timeout",
	"embedding.timeout",
	"embedding.retry_delay",
}

// Load loads configuration from defaults, an optional YAML file and the
// environment, in increasing precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("semcache")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SEMCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "SEMCACHE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for _, key := range secondsKeys {
		raw := strings.TrimSpace(v.GetString(key))
		if secs, err := strconv.ParseFloat(raw, 64); err == nil {
			v.Set(key, time.Duration(secs*float64(time.Second)))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.bounded.capacity", 100)
	v.SetDefault("cache.bounded.ttl", "300s")
	v.SetDefault("cache.bounded.refresh_on_hit", false)
	v.SetDefault("cache.bounded.sweep_interval", "0s")
	v.SetDefault("cache.durable.backend", "redis")
	v.SetDefault("cache.durable.ttl", "3600s")
	v.SetDefault("cache.durable.key_prefix", "semcache:")
	v.SetDefault("cache.codec", "json")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.use_tls", false)

	v.SetDefault("sqlite.path", "semcache.db")
	v.SetDefault("dynamodb.table", "semantic-cache")

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint", "")

	v.SetDefault("vector.dimension", 768)
	v.SetDefault("vector.metric", "l2")
	v.SetDefault("vector.threshold", 0.5)
	v.SetDefault("vector.threshold_direction", "")
	v.SetDefault("vector.candidates", 1)
	v.SetDefault("vector.eager_invalidate", false)
	v.SetDefault("vector.isolation", "inline")
	v.SetDefault("vector.isolation_timeout", "5s")
	v.SetDefault("vector.workers", 1)

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.retry_count", 3)
	v.SetDefault("embedding.retry_delay", "1s")
	v.SetDefault("embedding.requests_per_minute", 0)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	v.SetDefault("http.port", 8080)
}

func (c *Config) normalize() {
	c.Cache.Durable.Backend = strings.ToLower(c.Cache.Durable.Backend)
	c.Cache.Codec = strings.ToLower(c.Cache.Codec)
	c.Vector.Metric = strings.ToLower(c.Vector.Metric)
	c.Vector.ThresholdDirection = strings.ToLower(c.Vector.ThresholdDirection)
	c.Vector.Isolation = strings.ToLower(c.Vector.Isolation)
	c.Embedding.Provider = strings.ToLower(c.Embedding.Provider)
	c.Observability.Logging.Level = strings.ToLower(c.Observability.Logging.Level)

	if c.Vector.ThresholdDirection == "" {
		c.Vector.ThresholdDirection = DirectionFor(c.Vector.Metric)
	}
}

// DirectionFor returns the threshold direction implied by a metric name.
func DirectionFor(metric string) string {
	if metric == "inner_product" {
		return "higher_is_closer"
	}
	return "lower_is_closer"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Cache.Bounded.Capacity <= 0 {
		return fmt.Errorf("cache.bounded.capacity must be > 0, got %d", c.Cache.Bounded.Capacity)
	}
	if c.Cache.Bounded.TTL <= 0 {
		return fmt.Errorf("cache.bounded.ttl must be > 0, got %s", c.Cache.Bounded.TTL)
	}
	if c.Cache.Bounded.SweepInterval < 0 {
		return fmt.Errorf("cache.bounded.sweep_interval must be >= 0")
	}
	if c.Cache.Durable.TTL <= 0 {
		return fmt.Errorf("cache.durable.ttl must be > 0, got %s", c.Cache.Durable.TTL)
	}

	if err := oneOf("cache.durable.backend", c.Cache.Durable.Backend, "redis", "sqlite", "dynamodb"); err != nil {
		return err
	}
	if err := oneOf("cache.codec", c.Cache.Codec, "json", "msgpack"); err != nil {
		return err
	}

	switch c.Cache.Durable.Backend {
	case "redis":
		if c.Redis.Addr() == "" || c.Redis.Addr() == ":0" {
			return fmt.Errorf("redis address is required")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case "dynamodb":
		if c.DynamoDB.Table == "" {
			return fmt.Errorf("dynamodb.table is required")
		}
		if c.AWS.Region == "" {
			return fmt.Errorf("AWS region is required")
		}
	}

	if c.Vector.Dimension <= 0 {
		return fmt.Errorf("vector.dimension must be > 0, got %d", c.Vector.Dimension)
	}
	if err := oneOf("vector.metric", c.Vector.Metric, "l2", "inner_product"); err != nil {
		return err
	}
	if err := oneOf("vector.threshold_direction", c.Vector.ThresholdDirection, "lower_is_closer", "higher_is_closer"); err != nil {
		return err
	}
	if c.Vector.ThresholdDirection != DirectionFor(c.Vector.Metric) {
		return fmt.Errorf("vector.threshold_direction %s contradicts metric %s", c.Vector.ThresholdDirection, c.Vector.Metric)
	}
	if c.Vector.Candidates <= 0 {
		return fmt.Errorf("vector.candidates must be > 0, got %d", c.Vector.Candidates)
	}
	if err := oneOf("vector.isolation", c.Vector.Isolation, "inline", "isolated"); err != nil {
		return err
	}
	if c.Vector.Isolation == "isolated" {
		if c.Vector.IsolationTimeout <= 0 {
			return fmt.Errorf("vector.isolation_timeout must be > 0, got %s", c.Vector.IsolationTimeout)
		}
		if c.Vector.Workers <= 0 {
			return fmt.Errorf("vector.workers must be > 0, got %d", c.Vector.Workers)
		}
	}

	if err := oneOf("embedding.provider", c.Embedding.Provider, "hash", "openai", "bedrock"); err != nil {
		return err
	}
	if c.Embedding.RetryCount <= 0 {
		return fmt.Errorf("embedding.retry_count must be > 0, got %d", c.Embedding.RetryCount)
	}
	if c.Embedding.RetryDelay < 0 {
		return fmt.Errorf("embedding.retry_delay must be >= 0")
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required for the openai provider")
	}

	if err := oneOf("observability.logging.level", c.Observability.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := oneOf("observability.logging.format", c.Observability.Logging.Format, "json", "text"); err != nil {
		return err
	}

	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (want one of %s)", key, value, strings.Join(allowed, ", "))
}
