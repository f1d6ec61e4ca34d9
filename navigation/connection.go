package navigation

import (
	"math"

	"github.com/pkg/errors"
)

// ErrUpdateDiverged is returned when the connection drain does not settle within the pass cap
var ErrUpdateDiverged = errors.New("navigation: connection update did not converge")

// Runner executes fn once per chunk, possibly concurrently, and returns after all calls finish
// The first error is returned
type Runner func(chunks []ChunkIndex, fn func(ChunkIndex) error) error

// Sequential is the default Runner
func Sequential(chunks []ChunkIndex, fn func(ChunkIndex) error) error {
	for _, ci := range chunks {
		if err := fn(ci); err != nil {
			return err
		}
	}
	return nil
}

type localLink struct {
	from PortalIndex
	conn Connection
}

type remoteLink struct {
	from PortalIndex
	to   PortalInfo
}

// ConnectionResult is the output of the per-chunk connection pass, applied by AddConnections
type ConnectionResult struct {
	Chunk ChunkIndex
	Local bool // Local links and areas were recomputed

	local  []localLink
	remote []remoteLink
	areas  []int32
}

// CalculateConnections discovers links for chunk ci without mutating the graph
// With local, every portal pair is searched inside the chunk and areas are unified per component
// Remote links are found by range overlap against the facing side of each adjacent chunk
func (g *Graph) CalculateConnections(ci ChunkIndex, local bool) ConnectionResult {
	c := &g.chunks[ci]
	res := ConnectionResult{Chunk: ci, Local: local}

	if local && len(c.Portals) > 0 {
		g.calculateLocal(c, &res)
	}

	for pi := range c.Portals {
		p := &c.Portals[pi]
		adj, ok := g.AdjacentChunk(ci, p.Side)
		if !ok {
			continue
		}
		facing := p.Side.Opposite()
		ac := &g.chunks[adj]
		for qi := range ac.Portals {
			q := &ac.Portals[qi]
			if q.Side != facing || !p.Overlaps(q) {
				continue
			}
			res.remote = append(res.remote, remoteLink{
				from: PortalIndex(pi),
				to:   PortalInfo{Chunk: adj, Portal: PortalIndex(qi)},
			})
		}
	}
	return res
}

func (g *Graph) calculateLocal(c *Chunk, res *ConnectionResult) {
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	n := len(c.Portals)

	comp := make([]int, n)
	for i := range comp {
		comp[i] = -1
	}

	dist := make([]float32, len(c.nodes))
	var q frontier
	for i := 0; i < n; i++ {
		if comp[i] < 0 {
			comp[i] = i
		}
		if i == n-1 {
			break
		}
		g.chunkDijkstra(c, c.Portals[i].Midpoint(cw, ch), dist, &q)
		for j := i + 1; j < n; j++ {
			d := dist[c.Portals[j].Midpoint(cw, ch)]
			if math.IsInf(float64(d), 1) {
				continue
			}
			res.local = append(res.local,
				localLink{from: PortalIndex(i), conn: Connection{Target: PortalInfo{c.Index, PortalIndex(j)}, Length: d}},
				localLink{from: PortalIndex(j), conn: Connection{Target: PortalInfo{c.Index, PortalIndex(i)}, Length: d}},
			)
			if comp[j] < 0 {
				comp[j] = comp[i]
			}
		}
	}

	res.areas = make([]int32, n)
	for i := range res.areas {
		res.areas[i] = c.Portals[comp[i]].Area
	}
}

// chunkDijkstra fills dist with 8-neighbour path costs from src, confined to chunk c
// Diagonal steps require both flanking cardinal cells to be walkable
// Entering a node costs its Cost, scaled by √2 on diagonals
func (g *Graph) chunkDijkstra(c *Chunk, src NodeIndex, dist []float32, q *frontier) {
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	inf := float32(math.Inf(1))
	for i := range dist {
		dist[i] = inf
	}
	q.init(len(dist))

	if !c.nodes[src].Walkable() {
		return
	}
	dist[src] = 0
	q.push(int32(src), 0)

	walk := func(lx, ly int) bool {
		return lx >= 0 && ly >= 0 && lx < cw && ly < ch && c.nodes[ly*cw+lx].Walkable()
	}

	for q.len() > 0 {
		cur, cost := q.pop()
		if cost > dist[cur] {
			continue
		}
		x, y := int(cur)%cw, int(cur)/cw
		for d := int8(0); d < DirCount; d++ {
			dx, dy := DirVectors[d][0], DirVectors[d][1]
			nx, ny := x+dx, y+dy
			if !walk(nx, ny) {
				continue
			}
			step := float32(1)
			if dx != 0 && dy != 0 {
				if !walk(x+dx, y) || !walk(x, y+dy) {
					continue
				}
				step = math.Sqrt2
			}
			ni := ny*cw + nx
			nd := cost + float32(c.nodes[ni].Cost)*step
			if nd < dist[ni] {
				dist[ni] = nd
				q.push(int32(ni), nd)
			}
		}
	}
}

// AddConnections applies connection results; remote links are attached in both directions
// and deduplicated. Mutates shared cross-chunk state: call from a single goroutine
func (g *Graph) AddConnections(results []ConnectionResult) {
	for ri := range results {
		r := &results[ri]
		c := &g.chunks[r.Chunk]

		if r.Local {
			for pi := range c.Portals {
				c.Portals[pi].Local = c.Portals[pi].Local[:0]
			}
			for _, l := range r.local {
				p := &c.Portals[l.from]
				p.Local = append(p.Local, l.conn)
			}
			for pi, a := range r.areas {
				c.Portals[pi].Area = a
			}
		}

		for _, l := range r.remote {
			from := PortalInfo{Chunk: r.Chunk, Portal: l.from}
			g.linkRemote(from, l.to)
			g.linkRemote(l.to, from)
		}

		c.Changed = false
	}
}

func (g *Graph) linkRemote(from, to PortalInfo) {
	p, ok := g.Portal(from)
	if !ok {
		return
	}
	for _, r := range p.Remote {
		if r.Target == to {
			return
		}
	}
	p.Remote = append(p.Remote, Connection{Target: to, Length: 1})
}

// UpdateStats summarizes one Update call
type UpdateStats struct {
	Rebuilt     int // Chunks restamped
	Reconnected int // Chunks whose connections were recomputed
	Portals     int // Total portals after the update
	Passes      int // Connection drain passes
}

// SetMaxUpdatePasses overrides the connection drain cap; n < 1 fails any update with work left
func (g *Graph) SetMaxUpdatePasses(n int) { g.maxPasses = n }

// Update restamps the dirty chunks and repairs the portal graph around them
// Stages: stamp (per chunk), invalidate (serial), extract (per chunk),
// then drain connect (per chunk) and merge (serial) until no chunk is left Changed
//
// Once stamping starts the update runs to completion: if run fails, the chunks it skipped
// are finished sequentially and later stages run sequentially, so nodes and portals never
// disagree. The first Runner error is returned after the graph is consistent again.
// The drain normally settles in one pass; the pass cap guards it, and hitting the cap
// returns ErrUpdateDiverged with connections left partial
func (g *Graph) Update(dirty ChunkMask, src ObstacleSource, run Runner) (UpdateStats, error) {
	var stats UpdateStats
	if run == nil {
		run = Sequential
	}

	var runErr error
	done := make([]bool, g.ChunkCount())
	stage := func(name string, chunks []ChunkIndex, fn func(ChunkIndex)) {
		clear(done)
		err := run(chunks, func(ci ChunkIndex) error {
			fn(ci)
			done[ci] = true
			return nil
		})
		if err == nil {
			return
		}
		if runErr == nil {
			runErr = errors.Wrap(err, name)
		}
		run = Sequential
		for _, ci := range chunks {
			if !done[ci] {
				fn(ci)
			}
		}
	}

	chunks := dirty.Indices()
	stats.Rebuilt = len(chunks)

	stage("stamp chunks", chunks, func(ci ChunkIndex) {
		g.RebuildChunk(ci, src)
	})

	tokens := make(map[ChunkIndex]DirtyChunk, len(chunks))
	for _, ci := range chunks {
		tokens[ci] = g.InvalidatePortals(ci)
	}

	stage("extract portals", chunks, func(ci ChunkIndex) {
		g.RebuildPortals(tokens[ci])
	})

	local := dirty.Clone()
	results := make([]ConnectionResult, g.ChunkCount())
	for pass := 0; ; pass++ {
		var work []ChunkIndex
		for i := range g.chunks {
			ci := ChunkIndex(i)
			if local.Has(ci) || g.chunks[i].Changed {
				work = append(work, ci)
			}
		}
		if len(work) == 0 {
			break
		}
		if pass >= g.maxPasses {
			stats.Portals = g.PortalCount()
			return stats, errors.Wrapf(ErrUpdateDiverged, "%d chunks pending after %d passes", len(work), pass)
		}

		stage("calculate connections", work, func(ci ChunkIndex) {
			results[ci] = g.CalculateConnections(ci, local.Has(ci))
		})

		batch := make([]ConnectionResult, 0, len(work))
		for _, ci := range work {
			batch = append(batch, results[ci])
		}
		g.AddConnections(batch)

		stats.Reconnected += len(work)
		stats.Passes++
		local = NewChunkMask(g.ChunkCount())
	}

	stats.Portals = g.PortalCount()
	return stats, runErr
}
