// Package semcache answers repeated queries from a three-tier cache: an
// in-process bounded cache, a durable store, and a semantic fallback that
// finds a previously cached query whose embedding is close enough.
//
// Exact lookups are keyed by Fingerprint. A semantic hit re-reads the
// durable store under the neighbor's fingerprint, so entries removed from
// the store are never served even while their vectors linger in the index.
package semcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Subhagatoadak/SemanticCaching/internal/embedding"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/cache"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/observability"
	"github.com/Subhagatoadak/SemanticCaching/internal/vectorindex"
)

// ErrInvalidConfig is returned by New when collaborators disagree or are
// missing.
var ErrInvalidConfig = errors.New("semcache: invalid configuration")

// VectorIndex is the nearest-neighbor index the semantic tier searches.
// *vectorindex.Index implements it.
type VectorIndex interface {
	Add(ctx context.Context, key string, vec []float32) error
	Search(ctx context.Context, vec []float32, topK int) ([]vectorindex.Match, error)
	Delete(ctx context.Context, key string) error
	Reset(ctx context.Context) error
	Len() int
	Dimension() int
	Metric() vectorindex.Metric
	Close() error
}

// Tier names the stage that answered a lookup.
type Tier int

const (
	TierMiss Tier = iota
	TierMemory
	TierDurable
	TierSemantic
)

func (t Tier) String() string {
	switch t {
	case TierMemory:
		return observability.TierMemory
	case TierDurable:
		return observability.TierDurable
	case TierSemantic:
		return observability.TierSemantic
	default:
		return observability.TierMiss
	}
}

// Result describes a lookup. MatchedKey and Score are set for semantic hits
// only.
type Result[V any] struct {
	Value      V
	Found      bool
	Tier       Tier
	MatchedKey string
	Score      float32
}

// Config wires a Cache. Memory, Store, Codec, Index and Embedder are
// required.
type Config[V any] struct {
	Memory     *cache.BoundedCache[V]
	Store      cache.Store
	Codec      cache.Codec[V]
	DurableTTL time.Duration

	Index    VectorIndex
	Embedder embedding.Embedder

	// Threshold must point the same way as the index metric.
	Threshold Threshold
	// Candidates is how many neighbors a semantic lookup examines, best
	// first. Defaults to 1.
	Candidates int
	// EagerInvalidate also removes the query's vector on Invalidate.
	EagerInvalidate bool

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  observability.Tracer
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Memory    cache.BoundedStats
	Lookups   TierCounts
	Degraded  int64
	IndexSize int
}

// TierCounts counts lookups by the tier that answered them.
type TierCounts struct {
	Memory   int64
	Durable  int64
	Semantic int64
	Miss     int64
}

// Cache is the orchestrator. Set, Invalidate and Reset are serialized by one
// writer lock; lookups never take it.
type Cache[V any] struct {
	exact      *cache.Layered[V]
	memory     *cache.BoundedCache[V]
	index      VectorIndex
	embedder   embedding.Embedder
	threshold  Threshold
	candidates int
	eager      bool
	copies     *backfills

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  observability.Tracer

	writeMu sync.Mutex

	memoryHits   atomic.Int64
	durableHits  atomic.Int64
	semanticHits atomic.Int64
	misses       atomic.Int64
	degraded     atomic.Int64
}

// New validates cfg and builds the cache.
func New[V any](cfg Config[V]) (*Cache[V], error) {
	switch {
	case cfg.Memory == nil:
		return nil, fmt.Errorf("%w: memory cache is required", ErrInvalidConfig)
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: durable store is required", ErrInvalidConfig)
	case cfg.Codec == nil:
		return nil, fmt.Errorf("%w: codec is required", ErrInvalidConfig)
	case cfg.Index == nil:
		return nil, fmt.Errorf("%w: vector index is required", ErrInvalidConfig)
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}

	if got, want := cfg.Embedder.Dimensions(), cfg.Index.Dimension(); got != want {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, index expects %d", ErrInvalidConfig, got, want)
	}
	if want := DirectionOf(cfg.Index.Metric()); cfg.Threshold.Direction != want {
		return nil, fmt.Errorf("%w: threshold direction %s contradicts metric %s",
			ErrInvalidConfig, cfg.Threshold.Direction, cfg.Index.Metric())
	}

	if cfg.Candidates <= 0 {
		cfg.Candidates = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	c := &Cache[V]{
		exact:      cache.NewLayered(cfg.Memory, cfg.Store, cfg.Codec, cfg.DurableTTL),
		memory:     cfg.Memory,
		index:      cfg.Index,
		embedder:   cfg.Embedder,
		threshold:  cfg.Threshold,
		candidates: cfg.Candidates,
		eager:      cfg.EagerInvalidate,
		copies:     newBackfills(2 * cfg.Memory.Capacity()),
		logger:     cfg.Logger.Named("semcache"),
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
	}

	err := cfg.Metrics.ObserveMemoryCache(func() observability.MemoryStats {
		s := c.memory.Stats()
		return observability.MemoryStats{
			Hits:      s.Hits,
			Misses:    s.Misses,
			Evictions: s.Evictions,
			Size:      int64(s.Size),
		}
	})
	if err != nil {
		return nil, fmt.Errorf("register memory cache metrics: %w", err)
	}

	return c, nil
}

// Get returns the cached value for query, or false on a miss. Tier failures
// are logged and read as misses.
func (c *Cache[V]) Get(ctx context.Context, query string) (V, bool) {
	r := c.Lookup(ctx, query)
	return r.Value, r.Found
}

// Lookup is Get with the details of which tier answered.
func (c *Cache[V]) Lookup(ctx context.Context, query string) Result[V] {
	start := time.Now()
	key := Fingerprint(query)

	ctx, span := c.tracer.StartSpan(ctx, "semcache.get", attribute.String("fingerprint", key))
	defer span.End()

	r := c.lookup(ctx, query, key)

	span.SetAttributes(attribute.String("tier", r.Tier.String()))
	c.metrics.RecordLookup(ctx, r.Tier.String(), time.Since(start))
	switch r.Tier {
	case TierMemory:
		c.memoryHits.Add(1)
	case TierDurable:
		c.durableHits.Add(1)
	case TierSemantic:
		c.semanticHits.Add(1)
	default:
		c.misses.Add(1)
	}
	return r
}

func (c *Cache[V]) lookup(ctx context.Context, query, key string) Result[V] {
	v, tier, err := c.exact.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.LogDebug(ctx, "exact hit", "fingerprint", key, "tier", tier.String())
		if tier == cache.TierMemory {
			return Result[V]{Value: v, Found: true, Tier: TierMemory}
		}
		return Result[V]{Value: v, Found: true, Tier: TierDurable}
	case errors.Is(err, cache.ErrNotFound):
	default:
		c.degrade(ctx, observability.ComponentDurable, "durable read failed, treating as miss", err, key)
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.degrade(ctx, observability.ComponentEmbedding, "embedding failed, semantic tier skipped", err, key)
		return Result[V]{}
	}

	matches, err := c.index.Search(ctx, vec, c.candidates)
	if err != nil {
		c.degrade(ctx, observability.ComponentIndex, "vector search failed, semantic tier skipped", err, key)
		return Result[V]{}
	}

	guard := c.exact.Guard()
	for _, m := range matches {
		if !c.threshold.Accepts(m.Score) {
			// best first: nothing after this is closer
			break
		}

		snap := guard.Snapshot()
		v, err := c.exact.GetDurable(ctx, m.Key)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				c.logger.LogDebug(ctx, "semantic neighbor no longer cached",
					"fingerprint", key,
					"neighbor", m.Key,
				)
			} else {
				c.degrade(ctx, observability.ComponentDurable, "durable re-query failed", err, key)
			}
			continue
		}

		filled := guard.Fill(snap, func() {
			c.exact.Fill(key, v)
			c.copies.record(m.Key, key, c.memory.Contains)
		})
		c.logger.LogDebug(ctx, "semantic hit",
			"fingerprint", key,
			"neighbor", m.Key,
			"score", m.Score,
			"backfilled", filled,
		)
		return Result[V]{Value: v, Found: true, Tier: TierSemantic, MatchedKey: m.Key, Score: m.Score}
	}

	return Result[V]{}
}

// Set stores value for query in both exact tiers, then indexes the query's
// embedding. It fails only when the exact tiers could not be written; a
// failed embedding or index write leaves the entry reachable by exact match.
func (c *Cache[V]) Set(ctx context.Context, query string, value V) error {
	key := Fingerprint(query)

	ctx, span := c.tracer.StartSpan(ctx, "semcache.set", attribute.String("fingerprint", key))
	defer span.End()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.writeExact(ctx, key, value); err != nil {
		c.metrics.RecordStore(ctx, "failed")
		span.NoticeError(err)
		c.logger.LogError(ctx, "cache write failed", err, "fingerprint", key)
		return fmt.Errorf("semcache: set %s: %w", key, err)
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.degrade(ctx, observability.ComponentEmbedding, "embedding failed, entry not indexed", err, key)
		c.metrics.RecordStore(ctx, "partial")
		return nil
	}

	if err := c.index.Add(ctx, key, vec); err != nil {
		c.degrade(ctx, observability.ComponentIndex, "vector index write failed, entry not indexed", err, key)
		c.metrics.RecordStore(ctx, "partial")
		return nil
	}

	c.metrics.RecordStore(ctx, "ok")
	return nil
}

// Invalidate removes query from both exact tiers, along with in-process
// copies that semantic hits made of its value. Its vector stays in the index
// unless EagerInvalidate is set; semantic lookups that land on it find
// nothing in the store and miss. Invalidating an absent query is a no-op.
func (c *Cache[V]) Invalidate(ctx context.Context, query string) error {
	key := Fingerprint(query)

	ctx, span := c.tracer.StartSpan(ctx, "semcache.invalidate", attribute.String("fingerprint", key))
	defer span.End()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.deleteExact(ctx, key); err != nil {
		c.metrics.RecordInvalidation(ctx, "failed")
		span.NoticeError(err)
		c.logger.LogError(ctx, "cache invalidation failed", err, "fingerprint", key)
		return fmt.Errorf("semcache: invalidate %s: %w", key, err)
	}

	if c.eager {
		if err := c.index.Delete(ctx, key); err != nil {
			c.degrade(ctx, observability.ComponentIndex, "vector delete failed", err, key)
		}
	}

	c.metrics.RecordInvalidation(ctx, "ok")
	return nil
}

// Reset empties the vector index and the in-process cache. The durable
// store is left alone.
func (c *Cache[V]) Reset(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	guard := c.exact.Guard()
	guard.Begin()
	defer guard.End()

	if err := c.index.Reset(ctx); err != nil {
		return fmt.Errorf("semcache: reset index: %w", err)
	}
	c.memory.Purge()
	c.copies.reset()
	c.logger.LogInfo(ctx, "cache reset")
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Memory: c.memory.Stats(),
		Lookups: TierCounts{
			Memory:   c.memoryHits.Load(),
			Durable:  c.durableHits.Load(),
			Semantic: c.semanticHits.Load(),
			Miss:     c.misses.Load(),
		},
		Degraded:  c.degraded.Load(),
		IndexSize: c.index.Len(),
	}
}

// Fingerprint returns the exact-tier key for query.
func (c *Cache[V]) Fingerprint(query string) string {
	return Fingerprint(query)
}

// Close releases the index and both exact tiers.
func (c *Cache[V]) Close() error {
	return errors.Join(c.index.Close(), c.exact.Close())
}

// writeExact replaces key in both exact tiers together with the copies
// semantic hits made of its old value. Lookups that read the old value
// before this returns do not backfill it. Caller holds writeMu.
func (c *Cache[V]) writeExact(ctx context.Context, key string, value V) error {
	guard := c.exact.Guard()
	guard.Begin()
	defer guard.End()

	c.dropCopies(key)
	c.copies.forget(key)
	return c.exact.Set(ctx, key, value)
}

// deleteExact is writeExact for removal. Caller holds writeMu.
func (c *Cache[V]) deleteExact(ctx context.Context, key string) error {
	guard := c.exact.Guard()
	guard.Begin()
	defer guard.End()

	c.dropCopies(key)
	c.copies.forget(key)
	return c.exact.Delete(ctx, key)
}

// dropCopies removes in-process entries that semantic hits copied from key.
func (c *Cache[V]) dropCopies(key string) {
	for _, k := range c.copies.take(key) {
		c.memory.Delete(k)
	}
}

func (c *Cache[V]) degrade(ctx context.Context, component, msg string, err error, key string) {
	c.degraded.Add(1)
	c.metrics.RecordDegraded(ctx, component)
	c.logger.LogWarn(ctx, msg, err, "fingerprint", key, "component", component)
}
