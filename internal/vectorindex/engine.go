package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidVector is returned by FlatEngine for NaN or infinite components.
var ErrInvalidVector = errors.New("vectorindex: vector has non-finite components")

// Neighbor is one engine search result.
type Neighbor struct {
	ID    int64
	Score float32
}

// Engine is the nearest-neighbor engine under an Index. It knows nothing of
// keys, and need not be safe for concurrent mutation: Index serializes
// writers and only lets readers run together. Implementations must not keep
// references to caller slices.
type Engine interface {
	Add(id int64, vec []float32) error
	// Remove reports whether id was present.
	Remove(id int64) bool
	// Search returns up to k neighbors, closest first, equal scores ordered
	// by ascending id.
	Search(query []float32, k int) ([]Neighbor, error)
	Len() int
}

// EngineFactory builds an empty engine generation.
type EngineFactory func(dimension int, metric Metric) (Engine, error)

// FlatEngine scans every vector. Vectors live in one contiguous slice and
// removal swaps the last vector into the hole.
type FlatEngine struct {
	dim    int
	metric Metric
	data   []float32
	ids    []int64
	pos    map[int64]int
}

// NewFlatEngine is an EngineFactory.
func NewFlatEngine(dimension int, metric Metric) (Engine, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("vectorindex: dimension must be > 0, got %d", dimension)
	}
	return &FlatEngine{dim: dimension, metric: metric, pos: make(map[int64]int)}, nil
}

func (e *FlatEngine) Add(id int64, vec []float32) error {
	if len(vec) != e.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), e.dim)
	}
	if !finite(vec) {
		return ErrInvalidVector
	}

	if p, ok := e.pos[id]; ok {
		copy(e.data[p*e.dim:(p+1)*e.dim], vec)
		return nil
	}

	e.pos[id] = len(e.ids)
	e.ids = append(e.ids, id)
	e.data = append(e.data, vec...)
	return nil
}

func (e *FlatEngine) Remove(id int64) bool {
	p, ok := e.pos[id]
	if !ok {
		return false
	}

	last := len(e.ids) - 1
	if p != last {
		e.ids[p] = e.ids[last]
		e.pos[e.ids[p]] = p
		copy(e.data[p*e.dim:(p+1)*e.dim], e.data[last*e.dim:])
	}
	e.ids = e.ids[:last]
	e.data = e.data[:last*e.dim]
	delete(e.pos, id)
	return true
}

func (e *FlatEngine) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != e.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), e.dim)
	}
	if !finite(query) {
		return nil, ErrInvalidVector
	}
	if k <= 0 || len(e.ids) == 0 {
		return nil, nil
	}

	all := make([]Neighbor, len(e.ids))
	for i, id := range e.ids {
		all[i] = Neighbor{ID: id, Score: e.metric.Score(query, e.data[i*e.dim:(i+1)*e.dim])}
	}

	slices.SortFunc(all, func(a, b Neighbor) int {
		switch {
		case e.metric.Closer(a.Score, b.Score):
			return -1
		case e.metric.Closer(b.Score, a.Score):
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	if k < len(all) {
		all = all[:k]
	}
	return all, nil
}

func (e *FlatEngine) Len() int {
	return len(e.ids)
}

func finite(vec []float32) bool {
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
