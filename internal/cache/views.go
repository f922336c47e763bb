package cache

import (
	"fmt"
	"sync"
	"time"

	"budget/internal/store"
)

// Views caches computed views keyed by "<year>/<name>". Year-scoped table
// changes drop that year's entries; any other change drops everything.
type Views struct {
	lru *LRUCache[any]

	mu  sync.Mutex
	gen uint64
}

func NewViews(maxSize int, ttl time.Duration) *Views {
	return &Views{lru: NewLRUCache[any](maxSize, ttl)}
}

// Cleaner exposes the underlying cache for a Manager.
func (v *Views) Cleaner() Cleaner {
	return v.lru
}

// ViewKey builds the cache key of a yearly view.
func ViewKey(year int, name string) string {
	return fmt.Sprintf("%d/%s", year, name)
}

func (v *Views) generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen
}

// Invalidate drops the entries an event may have changed.
func (v *Views) Invalidate(evt store.ChangeEvent) {
	v.mu.Lock()
	v.gen++
	v.mu.Unlock()

	if year := evt.Year(); year != 0 {
		v.lru.DeletePrefix(fmt.Sprintf("%d/", year))
		return
	}
	v.lru.Purge()
}

// Size returns the number of cached views.
func (v *Views) Size() int {
	return v.lru.Size()
}

// Load returns the cached view under key or computes it with fn. A result
// computed while an invalidation happened is returned but not cached.
func Load[T any](v *Views, key string, fn func() (T, error)) (T, error) {
	if cached, ok := v.lru.Get(key); ok {
		if val, ok := cached.(T); ok {
			return val, nil
		}
	}

	gen := v.generation()
	val, err := fn()
	if err != nil {
		return val, err
	}

	v.mu.Lock()
	fresh := gen == v.gen
	v.mu.Unlock()
	if fresh {
		v.lru.Set(key, val)
	}
	return val, nil
}
