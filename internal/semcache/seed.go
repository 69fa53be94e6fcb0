package semcache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is one query/value pair preloaded into the cache.
type Seed[V any] struct {
	Query string `yaml:"query"`
	Value V      `yaml:"value"`
}

// ParseSeeds decodes a YAML list of seeds.
//
//	- query: What is the capital of France?
//	  value: Paris
func ParseSeeds[V any](data []byte) ([]Seed[V], error) {
	var seeds []Seed[V]
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	for i, s := range seeds {
		if s.Query == "" {
			return nil, fmt.Errorf("parse seeds: entry %d has no query", i)
		}
	}
	return seeds, nil
}

// SeedProvider writes seeds through Cache.Set. It is a cache.WarmupProvider.
type SeedProvider[V any] struct {
	name  string
	cache *Cache[V]
	load  func() ([]Seed[V], error)
}

// NewSeedProvider loads seeds from a YAML file on every Warmup.
func NewSeedProvider[V any](c *Cache[V], path string) *SeedProvider[V] {
	return &SeedProvider[V]{
		name:  "seeds:" + path,
		cache: c,
		load: func() ([]Seed[V], error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return ParseSeeds[V](data)
		},
	}
}

// NewStaticSeedProvider warms from an in-memory list.
func NewStaticSeedProvider[V any](c *Cache[V], name string, seeds []Seed[V]) *SeedProvider[V] {
	return &SeedProvider[V]{
		name:  name,
		cache: c,
		load:  func() ([]Seed[V], error) { return seeds, nil },
	}
}

func (p *SeedProvider[V]) Name() string { return p.name }

// Warmup sets every seed, continuing past failures, and returns how many
// were stored along with the failures joined.
func (p *SeedProvider[V]) Warmup(ctx context.Context) (int, error) {
	seeds, err := p.load()
	if err != nil {
		return 0, err
	}

	var (
		stored int
		errs   []error
	)
	for _, s := range seeds {
		if err := ctx.Err(); err != nil {
			return stored, errors.Join(append(errs, err)...)
		}
		if err := p.cache.Set(ctx, s.Query, s.Value); err != nil {
			errs = append(errs, err)
			continue
		}
		stored++
	}
	return stored, errors.Join(errs...)
}
