package navigation

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestRouteTwoChunks(t *testing.T) {
	g := newTestGraph(t, 2, 1, 4, 4, nil)

	r := g.FindRoute(mgl32.Vec2{1.5, 1.5}, mgl32.Vec2{6.5, 2.5}, RouterOptions{})
	if r.State != PathSuccess {
		t.Fatalf("state = %v, want success", r.State)
	}
	if len(r.Portals) != 2 {
		t.Fatalf("route length = %d, want 2", len(r.Portals))
	}
	// Target first
	if r.Portals[0] != (PortalInfo{1, 0}) || r.Portals[1] != (PortalInfo{0, 0}) {
		t.Errorf("route = %v, want [1/0 0/0]", r.Portals)
	}
	if r.Length != 1 {
		t.Errorf("length = %v, want 1", r.Length)
	}
}

func TestRouteFailsWhenPortalBlocked(t *testing.T) {
	g := newTestGraph(t, 2, 1, 4, 4, nil)
	before := g.FindRoute(mgl32.Vec2{1.5, 1.5}, mgl32.Vec2{6.5, 2.5}, RouterOptions{})
	if before.State != PathSuccess {
		t.Fatal("baseline route failed")
	}

	// Cover the only crossing on chunk 0's side
	wall := ObstacleList{{Position: mgl32.Vec2{3.5, 2}, Size: mgl32.Vec2{0.5, 2}, Cost: CostUnwalkable}}
	mask := NewChunkMask(g.ChunkCount())
	mask.Set(0)
	if _, err := g.Update(mask, wall, nil); err != nil {
		t.Fatal(err)
	}

	if len(g.Chunk(0).Portals) != 0 {
		t.Errorf("chunk 0 portals = %d, want 0", len(g.Chunk(0).Portals))
	}
	if len(g.Chunk(1).Portals[0].Remote) != 0 {
		t.Error("stale remote link into erased portal")
	}
	r := g.FindRoute(mgl32.Vec2{1.5, 1.5}, mgl32.Vec2{6.5, 2.5}, RouterOptions{})
	if r.State != PathFailed || len(r.Portals) != 0 {
		t.Errorf("route = %+v, want failed and empty", r)
	}
}

func TestRouteReroutesAroundBlockedPortal(t *testing.T) {
	// 2×2 chunks of 8; block the direct 0→1 seam so the route detours through 2 and 3
	var wall ObstacleList
	for y := 0; y < 8; y++ {
		wall = append(wall, cellObstacle(7, y))
	}
	g := newTestGraph(t, 2, 2, 8, 8, nil)
	from, to := mgl32.Vec2{3.5, 3.5}, mgl32.Vec2{12.5, 3.5}

	direct := g.FindRoute(from, to, RouterOptions{})
	if direct.State != PathSuccess || len(direct.Portals) != 2 {
		t.Fatalf("direct route = %+v, want 2 portals", direct)
	}

	mask := NewChunkMask(g.ChunkCount())
	mask.Set(0)
	if _, err := g.Update(mask, wall, nil); err != nil {
		t.Fatal(err)
	}

	r := g.FindRoute(from, to, RouterOptions{})
	if r.State != PathSuccess {
		t.Fatalf("state = %v, want success via detour", r.State)
	}
	chunks := map[ChunkIndex]bool{}
	for _, p := range r.Portals {
		chunks[p.Chunk] = true
	}
	if !chunks[2] || !chunks[3] {
		t.Errorf("route %v does not pass chunks 2 and 3", r.Portals)
	}
	if r.Portals[0].Chunk != 1 || r.Portals[len(r.Portals)-1].Chunk != 0 {
		t.Errorf("route %v not ordered target to start", r.Portals)
	}
	if r.Length <= direct.Length {
		t.Errorf("detour length %v not longer than direct %v", r.Length, direct.Length)
	}
}

func TestRouteStrictRequiresExactPortal(t *testing.T) {
	// Target chunk 1 has left and top portals in one area; the target sits next to the top one
	g := newTestGraph(t, 2, 2, 8, 8, nil)
	from := mgl32.Vec2{3.5, 3.5}
	to := mgl32.Vec2{12.5, 6.5}

	loose := g.FindRoute(from, to, RouterOptions{})
	strict := g.FindRoute(from, to, RouterOptions{Strict: true})
	if loose.State != PathSuccess || strict.State != PathSuccess {
		t.Fatalf("states = %v/%v", loose.State, strict.State)
	}

	want, _ := g.NearestPortal(1, to)
	last := strict.Portals[0]
	if last != (PortalInfo{1, want}) {
		t.Errorf("strict route ends at %v, want nearest target portal %d", last, want)
	}
	if loose.Portals[0].Chunk != 1 {
		t.Errorf("loose route ends in chunk %d", loose.Portals[0].Chunk)
	}
	if len(loose.Portals) > len(strict.Portals) {
		t.Errorf("shortcut route longer (%d) than strict (%d)", len(loose.Portals), len(strict.Portals))
	}
}

func TestRouteChunkWithoutPortals(t *testing.T) {
	g := newTestGraph(t, 1, 1, 8, 8, nil)
	r := g.FindRoute(mgl32.Vec2{1.5, 1.5}, mgl32.Vec2{6.5, 6.5}, RouterOptions{})
	if r.State != PathFailed {
		t.Errorf("single chunk map has no portals; state = %v", r.State)
	}
}

func TestNearestPortal(t *testing.T) {
	g := newTestGraph(t, 2, 2, 8, 8, nil)
	pi, ok := g.NearestPortal(0, mgl32.Vec2{7, 2})
	if !ok || g.Chunk(0).Portals[pi].Side != SideRight {
		t.Errorf("nearest portal to right edge = %v (%v)", g.Chunk(0).Portals[pi].Side, ok)
	}
	pi, _ = g.NearestPortal(0, mgl32.Vec2{2, 7})
	if g.Chunk(0).Portals[pi].Side != SideTop {
		t.Errorf("nearest portal to top edge = %v", g.Chunk(0).Portals[pi].Side)
	}
	if _, ok := g.NearestPortal(-1, mgl32.Vec2{}); ok {
		t.Error("invalid chunk returned a portal")
	}
}

func TestNearestReachablePortal(t *testing.T) {
	// Chunk 1 of a 3×1 map is split by a full-height wall at x=10
	var wall ObstacleList
	for y := 0; y < 8; y++ {
		wall = append(wall, cellObstacle(10, y))
	}
	g := newTestGraph(t, 3, 1, 8, 8, wall)
	pos := mgl32.Vec2{11.5, 3.5}

	geo, _ := g.NearestPortal(1, pos)
	if g.Chunk(1).Portals[geo].Side != SideLeft {
		t.Fatalf("geometric nearest = %v, want left", g.Chunk(1).Portals[geo].Side)
	}
	p, ok := g.NearestReachablePortal(pos)
	if !ok || p.Chunk != 1 || g.Chunk(1).Portals[p.Portal].Side != SideRight {
		t.Errorf("reachable portal = %v ok=%v, want chunk 1 right side", p, ok)
	}

	p, ok = g.NearestReachablePortal(mgl32.Vec2{9.5, 3.5})
	if !ok || g.Chunk(1).Portals[p.Portal].Side != SideLeft {
		t.Errorf("left of the wall = %v, want left side", p)
	}

	// A blocked cell falls back to the geometric choice
	p, ok = g.NearestReachablePortal(mgl32.Vec2{10.5, 3.5})
	if want, _ := g.NearestPortal(1, mgl32.Vec2{10.5, 3.5}); !ok || p.Portal != want {
		t.Errorf("blocked position = %v, want geometric %d", p, want)
	}
}
