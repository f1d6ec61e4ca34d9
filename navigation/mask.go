package navigation

import "math/bits"

// ChunkMask is a fixed-size bitset over chunk indices
type ChunkMask struct {
	words []uint64
	n     int
}

// NewChunkMask returns an empty mask for n chunks
func NewChunkMask(n int) ChunkMask {
	return ChunkMask{words: make([]uint64, (n+63)/64), n: n}
}

// FullMask returns a mask with all n chunks set
func FullMask(n int) ChunkMask {
	m := NewChunkMask(n)
	for i := 0; i < n; i++ {
		m.Set(ChunkIndex(i))
	}
	return m
}

// Size returns the chunk capacity
func (m ChunkMask) Size() int { return m.n }

// Set marks ci; out-of-range indices are ignored
func (m ChunkMask) Set(ci ChunkIndex) {
	if ci < 0 || int(ci) >= m.n {
		return
	}
	m.words[ci>>6] |= 1 << (uint(ci) & 63)
}

// Clear unmarks ci
func (m ChunkMask) Clear(ci ChunkIndex) {
	if ci < 0 || int(ci) >= m.n {
		return
	}
	m.words[ci>>6] &^= 1 << (uint(ci) & 63)
}

// Has reports whether ci is marked
func (m ChunkMask) Has(ci ChunkIndex) bool {
	if ci < 0 || int(ci) >= m.n {
		return false
	}
	return m.words[ci>>6]&(1<<(uint(ci)&63)) != 0
}

// Len returns the number of marked chunks
func (m ChunkMask) Len() int {
	c := 0
	for _, w := range m.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Intersects reports whether any chunk is marked in both masks
func (m ChunkMask) Intersects(o ChunkMask) bool {
	for i := 0; i < len(m.words) && i < len(o.words); i++ {
		if m.words[i]&o.words[i] != 0 {
			return true
		}
	}
	return false
}

// Union marks every chunk marked in o
func (m ChunkMask) Union(o ChunkMask) {
	for i := 0; i < len(m.words) && i < len(o.words); i++ {
		m.words[i] |= o.words[i]
	}
}

// ForEach calls fn for each marked chunk in ascending order
func (m ChunkMask) ForEach(fn func(ChunkIndex)) {
	for wi, w := range m.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			fn(ChunkIndex(wi*64 + b))
			w &= w - 1
		}
	}
}

// Indices returns the marked chunks in ascending order
func (m ChunkMask) Indices() []ChunkIndex {
	out := make([]ChunkIndex, 0, m.Len())
	m.ForEach(func(ci ChunkIndex) { out = append(out, ci) })
	return out
}

// Clone returns an independent copy
func (m ChunkMask) Clone() ChunkMask {
	c := ChunkMask{words: make([]uint64, len(m.words)), n: m.n}
	copy(c.words, m.words)
	return c
}
