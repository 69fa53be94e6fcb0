package semcache

import "sync"

// backfills remembers which in-process entries were copied from another
// query's durable value by a semantic hit, so rewriting or invalidating the
// source also drops the copies.
type backfills struct {
	mu       sync.Mutex
	bySource map[string]map[string]struct{}
	source   map[string]string
	limit    int
}

func newBackfills(limit int) *backfills {
	if limit < 16 {
		limit = 16
	}
	return &backfills{
		bySource: make(map[string]map[string]struct{}),
		source:   make(map[string]string),
		limit:    limit,
	}
}

// record notes that key now holds src's value. When the table outgrows its
// limit, copies for which live reports false are forgotten.
func (b *backfills) record(src, key string, live func(string) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.forgetLocked(key)
	set, ok := b.bySource[src]
	if !ok {
		set = make(map[string]struct{})
		b.bySource[src] = set
	}
	set[key] = struct{}{}
	b.source[key] = src

	if len(b.source) > b.limit {
		for k := range b.source {
			if !live(k) {
				b.forgetLocked(k)
			}
		}
	}
}

// take removes and returns the copies of src.
func (b *backfills) take(src string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.bySource[src]
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
		delete(b.source, k)
	}
	delete(b.bySource, src)
	return keys
}

// forget drops key as a copy; it holds its own value from now on.
func (b *backfills) forget(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forgetLocked(key)
}

func (b *backfills) forgetLocked(key string) {
	src, ok := b.source[key]
	if !ok {
		return
	}
	delete(b.source, key)
	if set := b.bySource[src]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(b.bySource, src)
		}
	}
}

func (b *backfills) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bySource = make(map[string]map[string]struct{})
	b.source = make(map[string]string)
}
