package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Lookup tiers reported by RecordLookup.
const (
	TierMemory   = "memory"
	TierDurable  = "durable"
	TierSemantic = "semantic"
	TierMiss     = "miss"
)

// Components reported by RecordDegraded.
const (
	ComponentEmbedding = "embedding"
	ComponentIndex     = "vector_index"
	ComponentDurable   = "durable_store"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	Lookups        metric.Int64Counter
	LookupDuration metric.Float64Histogram

	Stores       metric.Int64Counter
	Invalidation metric.Int64Counter

	Degraded metric.Int64Counter

	IndexOperations        metric.Int64Counter
	IndexOperationDuration metric.Float64Histogram
	IndexRebuilds          metric.Int64Counter

	EmbeddingDuration metric.Float64Histogram

	exporter *prometheus.Exporter
}

// MemoryStats is the snapshot exported for the in-process cache.
type MemoryStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
}

// NewMetrics creates a new Metrics instance. When disabled every instrument is
// a no-op so callers never need to nil-check.
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		m := &Metrics{meter: noop.NewMeterProvider().Meter(serviceName)}
		if err := m.initMetrics(); err != nil {
			return nil, err
		}
		return m, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// NewNopMetrics returns metrics backed by a no-op meter.
func NewNopMetrics() *Metrics {
	m, _ := NewMetrics("noop", false)
	return m
}

// initMetrics initializes all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	m.Lookups, err = m.meter.Int64Counter(
		"semcache.lookups",
		metric.WithDescription("Cache lookups by resolving tier"),
	)
	if err != nil {
		return err
	}

	m.LookupDuration, err = m.meter.Float64Histogram(
		"semcache.lookup.duration",
		metric.WithDescription("Cache lookup duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.Stores, err = m.meter.Int64Counter(
		"semcache.stores",
		metric.WithDescription("Cache writes by outcome"),
	)
	if err != nil {
		return err
	}

	m.Invalidation, err = m.meter.Int64Counter(
		"semcache.invalidations",
		metric.WithDescription("Cache invalidations by outcome"),
	)
	if err != nil {
		return err
	}

	m.Degraded, err = m.meter.Int64Counter(
		"semcache.degraded",
		metric.WithDescription("Operations that degraded to a miss or no-op, by component"),
	)
	if err != nil {
		return err
	}

	m.IndexOperations, err = m.meter.Int64Counter(
		"semcache.vector_index.operations",
		metric.WithDescription("Vector index operations by op and status"),
	)
	if err != nil {
		return err
	}

	m.IndexOperationDuration, err = m.meter.Float64Histogram(
		"semcache.vector_index.duration",
		metric.WithDescription("Vector index operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.IndexRebuilds, err = m.meter.Int64Counter(
		"semcache.vector_index.rebuilds",
		metric.WithDescription("Engine generations discarded after a failed or timed out operation"),
	)
	if err != nil {
		return err
	}

	m.EmbeddingDuration, err = m.meter.Float64Histogram(
		"semcache.embedding.duration",
		metric.WithDescription("Embedding generation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// ObserveMemoryCache registers callbacks exporting the in-process cache snapshot.
func (m *Metrics) ObserveMemoryCache(snapshot func() MemoryStats) error {
	hits, err := m.meter.Int64ObservableCounter("semcache.memory.hits",
		metric.WithDescription("In-process cache hits"))
	if err != nil {
		return err
	}
	misses, err := m.meter.Int64ObservableCounter("semcache.memory.misses",
		metric.WithDescription("In-process cache misses"))
	if err != nil {
		return err
	}
	evictions, err := m.meter.Int64ObservableCounter("semcache.memory.evictions",
		metric.WithDescription("In-process cache evictions, capacity and expiry"))
	if err != nil {
		return err
	}
	size, err := m.meter.Int64ObservableGauge("semcache.memory.size",
		metric.WithDescription("In-process cache entry count"))
	if err != nil {
		return err
	}

	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := snapshot()
		o.ObserveInt64(hits, s.Hits)
		o.ObserveInt64(misses, s.Misses)
		o.ObserveInt64(evictions, s.Evictions)
		o.ObserveInt64(size, s.Size)
		return nil
	}, hits, misses, evictions, size)
	return err
}

// RecordLookup records which tier resolved a lookup and how long it took.
func (m *Metrics) RecordLookup(ctx context.Context, tier string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("tier", tier))
	m.Lookups.Add(ctx, 1, attrs)
	m.LookupDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordStore records a write outcome ("ok", "failed", "partial").
func (m *Metrics) RecordStore(ctx context.Context, status string) {
	m.Stores.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordInvalidation records an invalidation outcome.
func (m *Metrics) RecordInvalidation(ctx context.Context, status string) {
	m.Invalidation.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDegraded records a tier failure that was absorbed.
func (m *Metrics) RecordDegraded(ctx context.Context, component string) {
	m.Degraded.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
}

// RecordIndexOperation records a vector index operation.
func (m *Metrics) RecordIndexOperation(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	)
	m.IndexOperations.Add(ctx, 1, attrs)
	m.IndexOperationDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordIndexRebuild records a discarded engine generation.
func (m *Metrics) RecordIndexRebuild(ctx context.Context, cause string) {
	m.IndexRebuilds.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// RecordEmbedding records an embedding call.
func (m *Metrics) RecordEmbedding(ctx context.Context, status string, duration time.Duration) {
	m.EmbeddingDuration.Record(ctx, float64(duration.Microseconds())/1000,
		metric.WithAttributes(attribute.String("status", status)))
}

// Handler returns the HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	// The OTel Prometheus exporter registers with the default registry.
	return promhttp.Handler()
}
