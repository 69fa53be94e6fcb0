// Package cache holds the exact-match tiers of the semantic cache: the
// bounded in-process LRU, the durable Store contract with its Redis, SQLite
// and DynamoDB adapters, and the Layered composition of the two.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or expired.
	ErrNotFound = errors.New("cache: key not found")

	// ErrStoreUnavailable wraps backend failures of a durable store.
	ErrStoreUnavailable = errors.New("cache: durable store unavailable")

	// ErrInvalidValue is returned when a stored value cannot be decoded.
	ErrInvalidValue = errors.New("cache: invalid value")
)

// Store is the durable tier. Values are opaque bytes; the store must
// round-trip whatever it is given.
type Store interface {
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend connection.
	Close() error
}
