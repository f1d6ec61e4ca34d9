package navigation

import "sync"

// Allocator supplies flow-field item buffers with graph lifetime
// Released buffers may be handed out again; callers must not retain them
type Allocator interface {
	Items(n int) []Item
	Release(items []Item)
}

// PoolAllocator recycles item buffers through a sync.Pool
type PoolAllocator struct {
	pool sync.Pool
}

// NewPoolAllocator creates an empty pool
func NewPoolAllocator() *PoolAllocator {
	return &PoolAllocator{}
}

// Items returns a buffer of length n; contents are unspecified
func (a *PoolAllocator) Items(n int) []Item {
	if v := a.pool.Get(); v != nil {
		buf := *(v.(*[]Item))
		if cap(buf) >= n {
			return buf[:n]
		}
	}
	return make([]Item, n)
}

// Release returns a buffer to the pool
func (a *PoolAllocator) Release(items []Item) {
	if cap(items) == 0 {
		return
	}
	items = items[:0]
	a.pool.Put(&items)
}
