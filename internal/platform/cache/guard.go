package cache

import "sync"

// FillGuard stops read-through fills from putting back a value that a
// concurrent write has replaced or removed.
//
// Writers bracket a mutation with Begin and End. Readers take a Snapshot
// before reading the backing store and fill L1 through Fill, which runs only
// when no write was in flight or started since the snapshot. A rejected fill
// just skips the backfill; the value read is still returned to the caller.
type FillGuard struct {
	mu       sync.Mutex
	gen      uint64
	inflight int
}

// Snapshot returns the current write generation.
func (g *FillGuard) Snapshot() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// Begin marks a write as started. Every Begin needs a matching End.
func (g *FillGuard) Begin() {
	g.mu.Lock()
	g.gen++
	g.inflight++
	g.mu.Unlock()
}

// End marks a write as finished.
func (g *FillGuard) End() {
	g.mu.Lock()
	g.gen++
	g.inflight--
	g.mu.Unlock()
}

// Fill runs fn if nothing was written since snap, and reports whether it
// ran. fn runs under the guard's lock, so writers cannot start until it
// returns; keep it short.
func (g *FillGuard) Fill(snap uint64, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight > 0 || g.gen != snap {
		return false
	}
	fn()
	return true
}
