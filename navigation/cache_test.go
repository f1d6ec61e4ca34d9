package navigation

import (
	"sync"
	"testing"
)

// countingAllocator tracks buffer traffic
type countingAllocator struct {
	mu       sync.Mutex
	allocs   int
	releases int
}

func (a *countingAllocator) Items(n int) []Item {
	a.mu.Lock()
	a.allocs++
	a.mu.Unlock()
	return make([]Item, n)
}

func (a *countingAllocator) Release(items []Item) {
	a.mu.Lock()
	a.releases++
	a.mu.Unlock()
}

var viaPortal = PortalInfo{3, 0}

func makeItems(n int, base float32) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{BestCost: base + float32(i), Direction: uint8(i % DirectionSteps)}
	}
	return items
}

func TestChunkCacheCopiesInAndOut(t *testing.T) {
	c := NewChunkCache(nil)
	entry, exit := PortalInfo{2, 0}, PortalInfo{2, 1}

	src := makeItems(16, 1)
	if !c.Put(entry, exit, viaPortal, src) {
		t.Fatal("first Put rejected")
	}
	src[0].BestCost = 999

	dst := make([]Item, 16)
	if !c.Get(entry, exit, viaPortal, dst) {
		t.Fatal("Get missed")
	}
	if dst[0].BestCost != 1 {
		t.Errorf("cache aliased the source buffer: %v", dst[0].BestCost)
	}
	dst[1].BestCost = 999

	again := make([]Item, 16)
	c.Get(entry, exit, viaPortal, again)
	if again[1].BestCost != 2 {
		t.Errorf("cache aliased a returned buffer: %v", again[1].BestCost)
	}

	if c.Get(exit, entry, viaPortal, dst) {
		t.Error("reversed key should miss")
	}
	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("stats = %d hits %d misses, want 2/1", hits, misses)
	}
}

func TestChunkCacheDuplicatePutReleasesClone(t *testing.T) {
	alloc := &countingAllocator{}
	c := NewChunkCache(alloc)
	entry, exit := PortalInfo{0, 0}, PortalInfo{0, 1}

	c.Put(entry, exit, viaPortal, makeItems(4, 1))
	if c.Put(entry, exit, viaPortal, makeItems(4, 50)) {
		t.Error("duplicate Put accepted")
	}
	if alloc.allocs != 2 || alloc.releases != 1 {
		t.Errorf("allocs/releases = %d/%d, want 2/1", alloc.allocs, alloc.releases)
	}

	dst := make([]Item, 4)
	c.Get(entry, exit, viaPortal, dst)
	if dst[0].BestCost != 1 {
		t.Error("duplicate Put overwrote the existing entry")
	}
}

func TestChunkCacheInvalidateChunk(t *testing.T) {
	alloc := &countingAllocator{}
	c := NewChunkCache(alloc)
	for ci := ChunkIndex(0); ci < 3; ci++ {
		c.Put(PortalInfo{ci, 0}, PortalInfo{ci, 1}, PortalInfo{ci + 10, 0}, makeItems(4, 0))
		c.Put(PortalInfo{ci, 1}, PortalInfo{ci, 0}, PortalInfo{ci + 10, 0}, makeItems(4, 0))
	}

	if n := c.InvalidateChunk(1); n != 2 {
		t.Errorf("dropped %d entries, want 2", n)
	}
	if c.Len() != 4 {
		t.Errorf("Len = %d, want 4", c.Len())
	}
	if c.Get(PortalInfo{1, 0}, PortalInfo{1, 1}, PortalInfo{11, 0}, make([]Item, 4)) {
		t.Error("invalidated entry still served")
	}
	if !c.Get(PortalInfo{2, 0}, PortalInfo{2, 1}, PortalInfo{12, 0}, make([]Item, 4)) {
		t.Error("unrelated entry dropped")
	}

	c.Clear()
	if c.Len() != 0 || alloc.releases != 6 {
		t.Errorf("after Clear: len %d releases %d, want 0/6", c.Len(), alloc.releases)
	}
}

func TestChunkCacheConcurrent(t *testing.T) {
	c := NewChunkCache(nil)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			dst := make([]Item, 8)
			for i := 0; i < 200; i++ {
				key := PortalInfo{ChunkIndex(i % 5), PortalIndex(w % 2)}
				c.Put(key, key, InvalidPortal, makeItems(8, float32(i%5)))
				if c.Get(key, key, InvalidPortal, dst) && dst[0].BestCost != float32(i%5) {
					t.Errorf("entry %v corrupted: %v", key, dst[0].BestCost)
					return
				}
				if i%50 == 0 {
					c.InvalidateChunk(ChunkIndex(i % 5))
				}
			}
		}(w)
	}
	wg.Wait()
	if c.Len() > 10 {
		t.Errorf("Len = %d, more keys than were ever used", c.Len())
	}
}

func TestPoolAllocatorReuse(t *testing.T) {
	a := NewPoolAllocator()
	items := a.Items(64)
	if len(items) != 64 {
		t.Fatalf("len = %d", len(items))
	}
	a.Release(items)
	again := a.Items(32)
	if len(again) != 32 {
		t.Errorf("len = %d, want 32", len(again))
	}
	bigger := a.Items(1024)
	if len(bigger) != 1024 {
		t.Errorf("len = %d, want 1024", len(bigger))
	}
}
