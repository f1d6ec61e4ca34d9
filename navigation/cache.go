package navigation

import (
	"runtime"
	"sync/atomic"
)

// cacheKey is the packed (entry, exit) portal pair
type cacheKey [2]uint64

func makeCacheKey(entry, exit PortalInfo) cacheKey {
	return cacheKey{entry.Pack(), exit.Pack()}
}

type cacheEntry struct {
	items []Item
	via   PortalInfo // Portal across the boundary the exit seeds lead into
}

// ChunkCache memoizes solved non-target chunks by the portal pair they were solved for
// Entries are private clones: Put copies in, Get copies out
type ChunkCache struct {
	lock    spinLock
	entries map[cacheKey]cacheEntry
	alloc   Allocator

	hits   atomic.Int64
	misses atomic.Int64
}

// NewChunkCache creates an empty cache drawing buffers from alloc
func NewChunkCache(alloc Allocator) *ChunkCache {
	if alloc == nil {
		alloc = NewPoolAllocator()
	}
	return &ChunkCache{
		entries: make(map[cacheKey]cacheEntry),
		alloc:   alloc,
	}
}

// Get copies the entry for (entry, exit) into dst and reports a hit
// An entry solved for a different crossing portal via is a miss
// dst must be at least as long as the cached chunk
func (c *ChunkCache) Get(entry, exit, via PortalInfo, dst []Item) bool {
	c.lock.Lock()
	e, ok := c.entries[makeCacheKey(entry, exit)]
	ok = ok && e.via == via
	if ok {
		copy(dst, e.items)
	}
	c.lock.Unlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return ok
}

// Put stores a clone of items; an existing entry wins and the clone is released
func (c *ChunkCache) Put(entry, exit, via PortalInfo, items []Item) bool {
	clone := c.alloc.Items(len(items))
	copy(clone, items)

	key := makeCacheKey(entry, exit)
	c.lock.Lock()
	_, exists := c.entries[key]
	if !exists {
		c.entries[key] = cacheEntry{items: clone, via: via}
	}
	c.lock.Unlock()

	if exists {
		c.alloc.Release(clone)
		return false
	}
	return true
}

// InvalidateChunk drops every entry solved inside ci or leading into it
func (c *ChunkCache) InvalidateChunk(ci ChunkIndex) int {
	var dropped [][]Item
	c.lock.Lock()
	for k, e := range c.entries {
		if UnpackPortalInfo(k[0]).Chunk == ci || UnpackPortalInfo(k[1]).Chunk == ci || e.via.Chunk == ci {
			delete(c.entries, k)
			dropped = append(dropped, e.items)
		}
	}
	c.lock.Unlock()

	for _, items := range dropped {
		c.alloc.Release(items)
	}
	return len(dropped)
}

// Clear drops every entry
func (c *ChunkCache) Clear() {
	c.lock.Lock()
	old := c.entries
	c.entries = make(map[cacheKey]cacheEntry)
	c.lock.Unlock()

	for _, e := range old {
		c.alloc.Release(e.items)
	}
}

// Len returns the entry count
func (c *ChunkCache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}

// Stats returns lifetime hit and miss counts
func (c *ChunkCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// spinLock is a CAS spin lock that yields while contended
// Critical sections are map operations and a chunk-sized copy
type spinLock struct {
	held atomic.Bool
}

func (l *spinLock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	l.held.Store(false)
}
