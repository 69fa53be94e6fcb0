// Package vectorindex maps opaque string keys onto the integer ids a
// nearest-neighbor engine works with, and contains engine failures.
//
// The Index keeps an authoritative copy of every record (key, id, vector).
// The engine is treated as a disposable generation: whenever an engine call
// panics, times out, or fails mid-mutation, the generation is dropped and a
// new one is built from the records, so the key mappings and the engine
// never disagree.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/observability"
)

// Match is one search result.
type Match struct {
	Key   string
	Score float32
}

// Config configures an Index.
type Config struct {
	Dimension int
	Metric    Metric
	// Executor defaults to Inline.
	Executor Executor
	// EngineFactory defaults to NewFlatEngine.
	EngineFactory EngineFactory
	Logger        *observability.Logger
	Metrics       *observability.Metrics
}

type record struct {
	key string
	vec []float32
}

// Index is safe for concurrent use. Mutations are serialized; searches run
// concurrently with each other.
type Index struct {
	dim      int
	metric   Metric
	exec     Executor
	factory  EngineFactory
	logger   *observability.Logger
	metrics  *observability.Metrics
	rebuilds atomic.Int64

	mu         sync.RWMutex
	engine     Engine // nil when the last rebuild failed
	generation uint64
	byKey      map[string]int64
	byID       map[int64]record
	nextID     int64
	closed     bool
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vectorindex: dimension must be > 0, got %d", cfg.Dimension)
	}
	if cfg.Executor == nil {
		cfg.Executor = Inline()
	}
	if cfg.EngineFactory == nil {
		cfg.EngineFactory = NewFlatEngine
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNopMetrics()
	}

	ix := &Index{
		dim:     cfg.Dimension,
		metric:  cfg.Metric,
		exec:    cfg.Executor,
		factory: cfg.EngineFactory,
		logger:  cfg.Logger.Named("vectorindex"),
		metrics: cfg.Metrics,
		byKey:   make(map[string]int64),
		byID:    make(map[int64]record),
	}

	engine, err := ix.factory(ix.dim, ix.metric)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create engine: %w", err)
	}
	ix.engine = engine

	return ix, nil
}

// Add stores vec under key with a fresh internal id. Re-adding a key
// replaces its vector.
func (ix *Index) Add(ctx context.Context, key string, vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	vec = slices.Clone(vec)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	engine, err := ix.writableEngine(ctx)
	if err != nil {
		return err
	}

	oldID, replacing := ix.byKey[key]
	id := ix.nextID
	ix.nextID++

	var started, completed atomic.Bool
	err = ix.runTracked(ctx, "add", &started, &completed, func() error {
		if replacing {
			engine.Remove(oldID)
		}
		return engine.Add(id, vec)
	})
	if err != nil {
		if started.Load() {
			ix.rebuildLocked(ctx, "add", err)
		}
		return err
	}

	if replacing {
		delete(ix.byID, oldID)
	}
	ix.byKey[key] = id
	ix.byID[id] = record{key: key, vec: vec}
	return nil
}

// Search returns up to topK keys closest to vec, best first. An empty index
// yields an empty result.
func (ix *Index) Search(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dim)
	}

	ix.mu.RLock()
	if ix.closed {
		ix.mu.RUnlock()
		return nil, ErrClosed
	}
	if topK <= 0 || len(ix.byKey) == 0 {
		ix.mu.RUnlock()
		return nil, nil
	}
	engine, generation := ix.engine, ix.generation
	if engine == nil {
		ix.mu.RUnlock()
		return nil, fmt.Errorf("%w: no engine", ErrIndexOperationFailed)
	}

	query := slices.Clone(vec)
	var neighbors []Neighbor
	var started, completed atomic.Bool
	err := ix.runTracked(ctx, "search", &started, &completed, func() error {
		var err error
		neighbors, err = engine.Search(query, topK)
		return err
	})

	if err != nil {
		ix.mu.RUnlock()
		if started.Load() && !completed.Load() {
			ix.mu.Lock()
			if ix.generation == generation {
				ix.rebuildLocked(ctx, "search", err)
			}
			ix.mu.Unlock()
		}
		return nil, err
	}

	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		rec, ok := ix.byID[n.ID]
		if !ok {
			ix.logger.LogWarn(ctx, "skipping unmapped id from engine", nil, "id", n.ID)
			continue
		}
		matches = append(matches, Match{Key: rec.key, Score: n.Score})
	}
	ix.mu.RUnlock()

	return matches, nil
}

// Delete removes key. Unknown keys are a no-op.
func (ix *Index) Delete(ctx context.Context, key string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return ErrClosed
	}
	id, ok := ix.byKey[key]
	if !ok {
		return nil
	}

	engine, err := ix.writableEngine(ctx)
	if err != nil {
		return err
	}

	var started, completed atomic.Bool
	err = ix.runTracked(ctx, "delete", &started, &completed, func() error {
		engine.Remove(id)
		return nil
	})
	if err != nil {
		if started.Load() {
			ix.rebuildLocked(ctx, "delete", err)
		}
		return err
	}

	delete(ix.byKey, key)
	delete(ix.byID, id)
	return nil
}

// Reset discards every vector and mapping and restarts ids at zero.
func (ix *Index) Reset(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return ErrClosed
	}

	var engine Engine
	err := ix.run(ctx, "reset", func() error {
		var err error
		engine, err = ix.factory(ix.dim, ix.metric)
		return err
	})
	if err != nil {
		return err
	}

	ix.byKey = make(map[string]int64)
	ix.byID = make(map[int64]record)
	ix.nextID = 0
	ix.engine = engine
	ix.generation++
	return nil
}

// Len returns the number of keys.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byKey)
}

// Contains reports whether key has a vector.
func (ix *Index) Contains(key string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.byKey[key]
	return ok
}

// Dimension returns the configured vector length.
func (ix *Index) Dimension() int { return ix.dim }

// Metric returns the configured metric.
func (ix *Index) Metric() Metric { return ix.metric }

// Rebuilds returns how many engine generations were discarded after a failure.
func (ix *Index) Rebuilds() int64 { return ix.rebuilds.Load() }

// Close releases the executor. Further calls return ErrClosed.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.exec.Close()
}

// writableEngine returns the current engine, recreating one if the last
// rebuild left none. Caller holds the write lock.
func (ix *Index) writableEngine(ctx context.Context) (Engine, error) {
	if ix.closed {
		return nil, ErrClosed
	}
	if ix.engine == nil {
		ix.rebuildLocked(ctx, "recover", nil)
		if ix.engine == nil {
			return nil, fmt.Errorf("%w: no engine", ErrIndexOperationFailed)
		}
	}
	return ix.engine, nil
}

func (ix *Index) run(ctx context.Context, op string, fn func() error) error {
	var started, completed atomic.Bool
	return ix.runTracked(ctx, op, &started, &completed, fn)
}

// runTracked runs fn on the executor and normalizes the error. started and
// completed let callers tell an engine that refused input from one that was
// interrupted.
func (ix *Index) runTracked(ctx context.Context, op string, started, completed *atomic.Bool, fn func() error) error {
	start := time.Now()
	err := ix.exec.Run(ctx, op, func(context.Context) error {
		started.Store(true)
		err := fn()
		completed.Store(true)
		return err
	})

	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrIndexOperationTimeout):
		status = "timeout"
	case errors.Is(err, ErrClosed):
		status = "closed"
	default:
		status = "failed"
		if !errors.Is(err, ErrIndexOperationFailed) && !errors.Is(err, ErrDimensionMismatch) {
			err = fmt.Errorf("%w: %s: %w", ErrIndexOperationFailed, op, err)
		}
	}
	ix.metrics.RecordIndexOperation(ctx, op, status, time.Since(start))
	return err
}

// rebuildLocked replaces the engine with a new generation holding every
// record, in id order. If that fails too the index falls back to empty; ids
// keep counting up. Caller holds the write lock.
func (ix *Index) rebuildLocked(ctx context.Context, cause string, opErr error) {
	if ix.closed {
		return
	}

	ix.rebuilds.Add(1)
	ix.generation++
	ix.metrics.RecordIndexRebuild(ctx, cause)
	ix.logger.LogWarn(ctx, "discarding vector engine generation", opErr,
		"cause", cause,
		"records", len(ix.byID),
	)

	// the failed call's context may already be done
	ctx = context.WithoutCancel(ctx)

	ids := make([]int64, 0, len(ix.byID))
	for id := range ix.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	vecs := make([][]float32, len(ids))
	for i, id := range ids {
		vecs[i] = ix.byID[id].vec
	}

	var engine Engine
	err := ix.run(ctx, "rebuild", func() error {
		e, err := ix.factory(ix.dim, ix.metric)
		if err != nil {
			return err
		}
		for i, id := range ids {
			if err := e.Add(id, vecs[i]); err != nil {
				return fmt.Errorf("re-add id %d: %w", id, err)
			}
		}
		engine = e
		return nil
	})
	if err == nil {
		ix.engine = engine
		return
	}

	ix.logger.LogError(ctx, "vector engine rebuild failed, resetting index", err,
		"lost_records", len(ix.byID),
	)
	ix.byKey = make(map[string]int64)
	ix.byID = make(map[int64]record)

	var empty Engine
	err = ix.run(ctx, "rebuild_empty", func() error {
		var err error
		empty, err = ix.factory(ix.dim, ix.metric)
		return err
	})
	if err != nil {
		ix.engine = nil
		return
	}
	ix.engine = empty
}
