package semcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/cache"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/observability"
	"github.com/Subhagatoadak/SemanticCaching/internal/vectorindex"
)

const seedYAML = `
- query: What is the weather today?
  value: Sunny, 24C
- query: What is the capital of France?
  value: Paris
`

func TestParseSeeds(t *testing.T) {
	seeds, err := ParseSeeds[string]([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "What is the weather today?", seeds[0].Query)
	assert.Equal(t, "Paris", seeds[1].Value)

	_, err = ParseSeeds[string]([]byte("- value: orphan\n"))
	assert.Error(t, err)

	_, err = ParseSeeds[string]([]byte("not: [a list"))
	assert.Error(t, err)
}

func TestSeedProvider_WarmsThroughWarmer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{metric: vectorindex.InnerProduct, threshold: 0.75})

	path := filepath.Join(t.TempDir(), "seeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	warmer := cache.NewWarmer(observability.NewNopLogger(), cache.WarmupConfig{
		Timeout:         time.Second,
		ContinueOnError: true,
	})
	warmer.RegisterProvider(NewSeedProvider(f.cache, path))
	warmer.RegisterProvider(NewStaticSeedProvider(f.cache, "static", []Seed[string]{
		{Query: "Largest ocean", Value: "Pacific"},
	}))

	results := warmer.Warmup(ctx)
	require.False(t, results.HasErrors())
	assert.Len(t, results.Results, 2)
	assert.Equal(t, 3, results.Entries)

	v, ok := f.cache.Get(ctx, "Tell me today's weather")
	assert.True(t, ok)
	assert.Equal(t, "Sunny, 24C", v)

	v, ok = f.cache.Get(ctx, "Largest ocean")
	assert.True(t, ok)
	assert.Equal(t, "Pacific", v)
	assert.Equal(t, 3, f.index.Len())
}

func TestSeedProvider_ReportsFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})

	missing := NewSeedProvider(f.cache, filepath.Join(t.TempDir(), "absent.yaml"))
	n, err := missing.Warmup(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)

	f.store.fail(false, true, false)
	p := NewStaticSeedProvider(f.cache, "static", []Seed[string]{{Query: "a", Value: "1"}, {Query: "b", Value: "2"}})
	n, err = p.Warmup(ctx)
	assert.ErrorIs(t, err, cache.ErrStoreUnavailable)
	assert.Zero(t, n)
	assert.Equal(t, "static", p.Name())
}
