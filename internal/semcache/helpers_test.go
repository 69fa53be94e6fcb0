package semcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Subhagatoadak/SemanticCaching/internal/embedding"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/cache"
	"github.com/Subhagatoadak/SemanticCaching/internal/vectorindex"
)

var errBackend = errors.New("backend down")

// memStore is an in-memory cache.Store whose operations can be made to fail.
type memStore struct {
	mu         sync.Mutex
	data       map[string][]byte
	failGet    bool
	failSet    bool
	failDelete bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, fmt.Errorf("%w: %w", cache.ErrStoreUnavailable, errBackend)
	}
	v, ok := s.data[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return fmt.Errorf("%w: %w", cache.ErrStoreUnavailable, errBackend)
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return fmt.Errorf("%w: %w", cache.ErrStoreUnavailable, errBackend)
	}
	delete(s.data, key)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) fail(get, set, del bool) {
	s.mu.Lock()
	s.failGet, s.failSet, s.failDelete = get, set, del
	s.mu.Unlock()
}

// tableEmbedder returns fixed vectors per query; unknown queries fail.
type tableEmbedder struct {
	dim     int
	vectors map[string][]float32

	mu   sync.Mutex
	down bool
}

func (e *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return nil, fmt.Errorf("%w: provider down", embedding.ErrEmbeddingUnavailable)
	}
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("%w: no vector for %q", embedding.ErrEmbeddingUnavailable, text)
	}
	return v, nil
}

func (e *tableEmbedder) Dimensions() int { return e.dim }

func (e *tableEmbedder) setDown(down bool) {
	e.mu.Lock()
	e.down = down
	e.mu.Unlock()
}

// flakyIndex fails Add or Search on demand.
type flakyIndex struct {
	VectorIndex
	mu        sync.Mutex
	addErr    error
	searchErr error
}

func (f *flakyIndex) Add(ctx context.Context, key string, vec []float32) error {
	f.mu.Lock()
	err := f.addErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.VectorIndex.Add(ctx, key, vec)
}

func (f *flakyIndex) Search(ctx context.Context, vec []float32, k int) ([]vectorindex.Match, error) {
	f.mu.Lock()
	err := f.searchErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.VectorIndex.Search(ctx, vec, k)
}

type fixture struct {
	cache  *Cache[string]
	memory *cache.BoundedCache[string]
	store  *memStore
	index  VectorIndex
}

type fixtureOptions struct {
	capacity  int
	ttl       time.Duration
	clock     func() time.Time
	metric    vectorindex.Metric
	threshold float32
	embedder  embedding.Embedder
	store     *memStore
	wrapStore func(cache.Store) cache.Store
	wrapIndex func(VectorIndex) VectorIndex

	candidates int
	eager      bool
}

func newFixture(t *testing.T, o fixtureOptions) *fixture {
	t.Helper()

	if o.capacity == 0 {
		o.capacity = 100
	}
	if o.ttl == 0 {
		o.ttl = 5 * time.Minute
	}
	if o.embedder == nil {
		h, err := embedding.NewHash(768)
		require.NoError(t, err)
		o.embedder = h
	}
	if o.store == nil {
		o.store = newMemStore()
	}

	var store cache.Store = o.store
	if o.wrapStore != nil {
		store = o.wrapStore(o.store)
	}

	var opts []cache.BoundedOption
	if o.clock != nil {
		opts = append(opts, cache.WithClock(o.clock))
	}
	memory := cache.NewBoundedCache[string](o.capacity, o.ttl, opts...)

	ix, err := vectorindex.New(vectorindex.Config{
		Dimension: o.embedder.Dimensions(),
		Metric:    o.metric,
	})
	require.NoError(t, err)

	var index VectorIndex = ix
	if o.wrapIndex != nil {
		index = o.wrapIndex(ix)
	}

	c, err := New(Config[string]{
		Memory:          memory,
		Store:           store,
		Codec:           cache.StringCodec{},
		DurableTTL:      time.Hour,
		Index:           index,
		Embedder:        o.embedder,
		Threshold:       ThresholdFor(o.metric, o.threshold),
		Candidates:      o.candidates,
		EagerInvalidate: o.eager,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return &fixture{cache: c, memory: memory, store: o.store, index: index}
}

// gatedStore parks the first Get of key after it has read the inner store,
// so a test can write while that read is in flight.
type gatedStore struct {
	cache.Store
	key     string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore(inner cache.Store, key string) *gatedStore {
	return &gatedStore{
		Store:   inner,
		key:     key,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := g.Store.Get(ctx, key)
	if key == g.key {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return v, err
}
