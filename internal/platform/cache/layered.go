package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Tier names the layer that answered a lookup.
type Tier int

const (
	TierNone Tier = iota
	TierMemory
	TierDurable
)

func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierDurable:
		return "durable"
	default:
		return "none"
	}
}

// Layered composes the exact-match tiers: a BoundedCache in front of a
// durable Store. The Store is the system of record; L1 only mirrors it.
type Layered[V any] struct {
	l1    *BoundedCache[V]
	l2    Store
	codec Codec[V]
	ttl   time.Duration
	guard FillGuard
}

// NewLayered creates the exact tier. ttl applies to the durable store; the
// bounded cache keeps its own TTL.
func NewLayered[V any](l1 *BoundedCache[V], l2 Store, codec Codec[V], ttl time.Duration) *Layered[V] {
	return &Layered[V]{l1: l1, l2: l2, codec: codec, ttl: ttl}
}

// Get looks key up in L1, then L2, backfilling L1 on an L2 hit unless a
// write overlapped the read. It returns ErrNotFound on a miss and an
// ErrStoreUnavailable wrap when L2 fails.
func (lc *Layered[V]) Get(ctx context.Context, key string) (V, Tier, error) {
	if v, ok := lc.l1.Get(key); ok {
		return v, TierMemory, nil
	}

	snap := lc.guard.Snapshot()
	v, err := lc.GetDurable(ctx, key)
	if err != nil {
		return v, TierNone, err
	}

	lc.guard.Fill(snap, func() { lc.l1.Set(key, v) })
	return v, TierDurable, nil
}

// GetDurable reads L2 only, without touching L1.
func (lc *Layered[V]) GetDurable(ctx context.Context, key string) (V, error) {
	var zero V

	data, err := lc.l2.Get(ctx, key)
	if err != nil {
		return zero, err
	}

	v, err := lc.codec.Decode(data)
	if err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// Fill writes v to L1 only. Callers that read v from L2 should go through
// Guard so a concurrent write is not undone.
func (lc *Layered[V]) Fill(key string, v V) {
	lc.l1.Set(key, v)
}

// Guard is the fill guard Set and Delete advance. Callers composing larger
// writes on top of Layered bracket them with it too.
func (lc *Layered[V]) Guard() *FillGuard {
	return &lc.guard
}

// Set writes through both tiers. The write fails if L2 fails; L1 is then
// cleared for key so it never serves a value the store does not hold.
func (lc *Layered[V]) Set(ctx context.Context, key string, v V) error {
	data, err := lc.codec.Encode(v)
	if err != nil {
		return err
	}

	lc.guard.Begin()
	defer lc.guard.End()

	if err := lc.l2.Set(ctx, key, data, lc.ttl); err != nil {
		lc.l1.Delete(key)
		return err
	}

	lc.l1.Set(key, v)
	return nil
}

// Delete removes key from both tiers. Missing keys are not an error.
func (lc *Layered[V]) Delete(ctx context.Context, key string) error {
	lc.guard.Begin()
	defer lc.guard.End()

	lc.l1.Delete(key)

	if err := lc.l2.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Memory returns the L1 cache.
func (lc *Layered[V]) Memory() *BoundedCache[V] {
	return lc.l1
}

// Close closes both tiers.
func (lc *Layered[V]) Close() error {
	return errors.Join(lc.l1.Close(), lc.l2.Close())
}
