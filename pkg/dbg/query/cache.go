// Package query is a generic memoizing cache in
// front of the rest of the debug-info pipeline, keyed on query name
// plus argument key, so that repeated lookups against the same
// DebugFile (the common case for an interactive session stepping
// through the same few functions) don't re-walk DIE trees or
// re-resolve layouts.
package query

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes arbitrary query results keyed by (name, argsKey). It
// uses sync.Map for lock-free reads of warm entries and a
// singleflight.Group to collapse concurrent misses on the same key
// into a single upstream call, without holding any lock while that
// call runs — the same request-coalescing shape the pack's
// standardbeagle/lci example wires golang.org/x/sync for.
type Cache struct {
	entries sync.Map // key -> cachedEntry
	flight  singleflight.Group
	gen     atomic.Uint64
}

type cachedEntry struct {
	gen   uint64
	value any
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{}
}

// key identifies one memoized slot. argsKey must be comparable (the
// query packages in this module build it from the DIE offset, address,
// or string the query is keyed on).
type key struct {
	name string
	args any
}

// Invalidate bumps the cache's generation counter, lazily discarding
// every entry written under an earlier generation. Called when the
// owning handle is closed or its source-path mapping changes. It
// does not sweep the map eagerly since warm entries are naturally
// replaced on next fetch.
func (c *Cache) Invalidate() {
	c.gen.Add(1)
}

// Fetch returns the memoized result for (name, argsKey), computing it
// via compute if absent or stale. Concurrent Fetch calls for the same
// key collapse into a single compute invocation.
func Fetch[T any](c *Cache, name string, argsKey any, compute func() (T, error)) (T, error) {
	k := key{name: name, args: argsKey}
	gen := c.gen.Load()

	if v, ok := c.entries.Load(k); ok {
		e := v.(cachedEntry)
		if e.gen == gen {
			return e.value.(T), nil
		}
	}

	flightKey := name + ":" + flightKeyString(argsKey)
	v, err, _ := c.flight.Do(flightKey, func() (any, error) {
		// Re-check after winning the singleflight race: another
		// goroutine may have already filled this generation's entry
		// while we were queued behind it.
		if cur, ok := c.entries.Load(k); ok {
			e := cur.(cachedEntry)
			if e.gen == c.gen.Load() {
				return e.value, nil
			}
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.entries.Store(k, cachedEntry{gen: c.gen.Load(), value: result})
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// flightKeyString renders argsKey into a string suitable as a
// singleflight key. Most callers key on strings, offsets, or
// addresses, all of which format deterministically with %v.
func flightKeyString(argsKey any) string {
	if s, ok := argsKey.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", argsKey)
}
