package semcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/cache"
	"github.com/Subhagatoadak/SemanticCaching/internal/vectorindex"
)

// gatedFixture builds a cache whose durable reads of query's fingerprint
// can be held open.
func gatedFixture(t *testing.T, o fixtureOptions, query string) (*fixture, *gatedStore) {
	t.Helper()

	var gate *gatedStore
	o.wrapStore = func(s cache.Store) cache.Store {
		gate = newGatedStore(s, Fingerprint(query))
		return gate
	}
	return newFixture(t, o), gate
}

func TestCache_InvalidateDuringDurableReadSticks(t *testing.T) {
	ctx := context.Background()
	f, gate := gatedFixture(t, fixtureOptions{}, weatherQuery)

	require.NoError(t, f.cache.Set(ctx, weatherQuery, "Sunny"))
	f.memory.Purge()

	done := make(chan Result[string], 1)
	go func() { done <- f.cache.Lookup(ctx, weatherQuery) }()

	<-gate.entered
	require.NoError(t, f.cache.Invalidate(ctx, weatherQuery))
	close(gate.release)

	r := <-done
	assert.Equal(t, TierDurable, r.Tier, "the overlapping read still answers")
	assert.False(t, f.memory.Contains(Fingerprint(weatherQuery)), "stale value must not return to memory")

	_, ok := f.cache.Get(ctx, weatherQuery)
	assert.False(t, ok, "invalidated query must stay gone")
}

func TestCache_InvalidateDuringSemanticReadSticks(t *testing.T) {
	ctx := context.Background()
	f, gate := gatedFixture(t, fixtureOptions{metric: vectorindex.InnerProduct, threshold: 0.75}, weatherQuery)

	require.NoError(t, f.cache.Set(ctx, weatherQuery, "Sunny"))

	done := make(chan Result[string], 1)
	go func() { done <- f.cache.Lookup(ctx, weatherRephrased) }()

	<-gate.entered
	require.NoError(t, f.cache.Invalidate(ctx, weatherQuery))
	close(gate.release)

	r := <-done
	assert.Equal(t, TierSemantic, r.Tier)
	assert.Equal(t, "Sunny", r.Value)
	assert.False(t, f.memory.Contains(Fingerprint(weatherRephrased)), "no semantic copy of an invalidated source")

	_, ok := f.cache.Get(ctx, weatherRephrased)
	assert.False(t, ok, "semantic copy must not outlive its source")
}

func TestCache_OverwriteDuringSemanticReadSticks(t *testing.T) {
	ctx := context.Background()
	f, gate := gatedFixture(t, fixtureOptions{metric: vectorindex.InnerProduct, threshold: 0.75}, weatherQuery)

	require.NoError(t, f.cache.Set(ctx, weatherQuery, "Sunny"))

	done := make(chan Result[string], 1)
	go func() { done <- f.cache.Lookup(ctx, weatherRephrased) }()

	<-gate.entered
	require.NoError(t, f.cache.Set(ctx, weatherQuery, "Rain"))
	close(gate.release)

	<-done
	v, ok := f.cache.Get(ctx, weatherRephrased)
	require.True(t, ok)
	assert.Equal(t, "Rain", v, "later reads see the overwrite")
}
