package render

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

func TestQueryPointEdgeDistance(t *testing.T) {
	idx := NewSpatialIndex(0)
	idx.Build([]IndexedNode{
		{ID: 1, X: 0, Y: 0, Radius: 10},
		{ID: 2, X: 10, Y: 0, Radius: 2},
		{ID: 3, X: 100, Y: 100, Radius: 5},
	})

	// (5,0) is inside node 1's circle, so its edge distance is negative and
	// beats node 2 even though node 2's center is equally close.
	id, ok := idx.QueryPoint(Point{X: 5, Y: 0}, 0)
	if !ok || id != 1 {
		t.Errorf("Expected node 1 at (5,0), got %d (found=%v)", id, ok)
	}

	// (13,0) is 3 from node 2's center, 1 past its boundary.
	id, ok = idx.QueryPoint(Point{X: 13, Y: 0}, 2)
	if !ok || id != 2 {
		t.Errorf("Expected node 2 at (13,0) within maxRadius 2, got %d (found=%v)", id, ok)
	}

	// (50,50) is far from every boundary.
	if _, ok := idx.QueryPoint(Point{X: 50, Y: 50}, 5); ok {
		t.Error("Expected no hit at (50,50) with maxRadius 5")
	}

	// A large node should be found by touch even when another center is
	// closer to the query point.
	id, ok = idx.QueryPoint(Point{X: 7, Y: 7}, 1)
	if !ok || id != 1 {
		t.Errorf("Expected large node 1 by boundary touch at (7,7), got %d (found=%v)", id, ok)
	}
}

func TestBuildFiltersNonFinite(t *testing.T) {
	idx := NewSpatialIndex(4)
	stats := idx.Build([]IndexedNode{
		{ID: 1, X: 0, Y: 0},
		{ID: 2, X: math.NaN(), Y: 0},
		{ID: 3, X: 0, Y: math.Inf(1)},
		{ID: 4, X: 5, Y: 5},
	})

	if stats.Indexed != 2 {
		t.Errorf("Expected 2 indexed nodes, got %d", stats.Indexed)
	}
	if stats.Skipped != 2 {
		t.Errorf("Expected 2 skipped nodes, got %d", stats.Skipped)
	}
	if idx.Size() != 2 {
		t.Errorf("Expected size 2, got %d", idx.Size())
	}
	if _, ok := idx.Get(2); ok {
		t.Error("Expected NaN node to be absent from the index")
	}
}

func TestQueryRadiusClosedBoundary(t *testing.T) {
	idx := NewSpatialIndex(0)
	idx.Build([]IndexedNode{
		{ID: 1, X: 3, Y: 4}, // exactly distance 5 from origin
		{ID: 2, X: 10, Y: 10},
	})

	got := idx.QueryRadius(Point{X: 0, Y: 0}, 5)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected boundary node 1 included, got %v", got)
	}

	if got := idx.QueryRadius(Point{X: 0, Y: 0}, 0); got != nil {
		t.Errorf("Expected zero radius to return nothing, got %v", got)
	}
	if got := idx.QueryRadius(Point{X: 0, Y: 0}, -3); got != nil {
		t.Errorf("Expected negative radius to return nothing, got %v", got)
	}
}

func TestQueryRadiusMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	nodes := make([]IndexedNode, 500)
	for i := range nodes {
		nodes[i] = IndexedNode{
			ID: uint32(i + 1),
			X:  r.Float64()*2000 - 1000,
			Y:  r.Float64()*2000 - 1000,
		}
	}

	idx := NewSpatialIndex(8)
	idx.Build(nodes)

	for trial := 0; trial < 20; trial++ {
		center := Point{X: r.Float64()*2000 - 1000, Y: r.Float64()*2000 - 1000}
		radius := r.Float64() * 400

		want := make(map[uint32]bool)
		for _, n := range nodes {
			if math.Hypot(n.X-center.X, n.Y-center.Y) <= radius {
				want[n.ID] = true
			}
		}

		got := idx.QueryRadius(center, radius)
		if len(got) != len(want) {
			t.Fatalf("Trial %d: expected %d results, got %d", trial, len(want), len(got))
		}
		for _, id := range got {
			if !want[id] {
				t.Fatalf("Trial %d: unexpected id %d in results", trial, id)
			}
		}
	}
}

func TestQueryRectMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	nodes := make([]IndexedNode, 400)
	for i := range nodes {
		nodes[i] = IndexedNode{
			ID: uint32(i + 1),
			X:  r.Float64() * 1000,
			Y:  r.Float64() * 1000,
		}
	}

	idx := NewSpatialIndex(0)
	idx.Build(nodes)

	for trial := 0; trial < 20; trial++ {
		x1, x2 := r.Float64()*1000, r.Float64()*1000
		y1, y2 := r.Float64()*1000, r.Float64()*1000
		bounds := Bounds{
			MinX: math.Min(x1, x2), MaxX: math.Max(x1, x2),
			MinY: math.Min(y1, y2), MaxY: math.Max(y1, y2),
		}

		want := make(map[uint32]bool)
		for _, n := range nodes {
			if bounds.Contains(n.X, n.Y) {
				want[n.ID] = true
			}
		}

		got := idx.QueryRect(bounds)
		if len(got) != len(want) {
			t.Fatalf("Trial %d: expected %d results, got %d", trial, len(want), len(got))
		}
		for _, id := range got {
			if !want[id] {
				t.Fatalf("Trial %d: unexpected id %d in results", trial, id)
			}
		}
	}
}

func TestQueryRectDegenerate(t *testing.T) {
	idx := NewSpatialIndex(0)
	idx.Build([]IndexedNode{{ID: 1, X: 5, Y: 5}})

	if got := idx.QueryRect(Bounds{MinX: 5, MinY: 0, MaxX: 5, MaxY: 10}); got != nil {
		t.Errorf("Expected degenerate rect to return nothing, got %v", got)
	}
	if got := idx.QueryRect(Bounds{MinX: 10, MinY: 0, MaxX: 0, MaxY: 10}); got != nil {
		t.Errorf("Expected inverted rect to return nothing, got %v", got)
	}
}

func TestQueryKNearestOrdering(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	nodes := make([]IndexedNode, 300)
	for i := range nodes {
		nodes[i] = IndexedNode{
			ID: uint32(i + 1),
			X:  r.Float64() * 500,
			Y:  r.Float64() * 500,
		}
	}

	idx := NewSpatialIndex(0)
	idx.Build(nodes)

	p := Point{X: 250, Y: 250}
	k := 10
	got := idx.QueryKNearest(p, k, -1)
	if len(got) != k {
		t.Fatalf("Expected %d results, got %d", k, len(got))
	}

	// Compare against a brute-force sort by center distance.
	sorted := make([]IndexedNode, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		di := math.Hypot(sorted[i].X-p.X, sorted[i].Y-p.Y)
		dj := math.Hypot(sorted[j].X-p.X, sorted[j].Y-p.Y)
		return di < dj
	})
	for i := 0; i < k; i++ {
		if got[i] != sorted[i].ID {
			t.Errorf("Rank %d: expected id %d, got %d", i, sorted[i].ID, got[i])
		}
	}

	// k larger than the population returns everything.
	all := idx.QueryKNearest(p, len(nodes)+10, -1)
	if len(all) != len(nodes) {
		t.Errorf("Expected %d results for oversized k, got %d", len(nodes), len(all))
	}

	// maxRadius bounds the search.
	bounded := idx.QueryKNearest(p, len(nodes), 50)
	for _, id := range bounded {
		n, _ := idx.Get(id)
		if d := math.Hypot(n.X-p.X, n.Y-p.Y); d > 50 {
			t.Errorf("Node %d at distance %f exceeds maxRadius 50", id, d)
		}
	}
}

func TestUpdateMovesNode(t *testing.T) {
	idx := NewSpatialIndex(0)
	idx.Build([]IndexedNode{
		{ID: 1, X: 0, Y: 0},
		{ID: 2, X: 100, Y: 100},
	})

	idx.Update(1, 95, 95)

	got := idx.QueryRadius(Point{X: 100, Y: 100}, 10)
	if len(got) != 2 {
		t.Errorf("Expected both nodes near (100,100) after update, got %v", got)
	}
	got = idx.QueryRadius(Point{X: 0, Y: 0}, 10)
	if len(got) != 0 {
		t.Errorf("Expected nothing near origin after update, got %v", got)
	}

	// Updating to a non-finite position removes the node.
	idx.Update(1, math.NaN(), 0)
	if idx.Size() != 1 {
		t.Errorf("Expected size 1 after NaN update, got %d", idx.Size())
	}
}

func TestRemoveAndSize(t *testing.T) {
	idx := NewSpatialIndex(0)
	idx.Build([]IndexedNode{
		{ID: 1, X: 0, Y: 0},
		{ID: 2, X: 10, Y: 10},
		{ID: 3, X: 20, Y: 20},
	})

	idx.Remove(2)
	if idx.Size() != 2 {
		t.Errorf("Expected size 2 after remove, got %d", idx.Size())
	}

	got := idx.QueryRadius(Point{X: 10, Y: 10}, 1)
	if len(got) != 0 {
		t.Errorf("Expected removed node absent from queries, got %v", got)
	}

	// Removing an unknown id is a no-op.
	idx.Remove(999)
	if idx.Size() != 2 {
		t.Errorf("Expected size 2 after removing unknown id, got %d", idx.Size())
	}
}

func TestUpdateBatchSingleRestructure(t *testing.T) {
	idx := NewSpatialIndex(0)
	nodes := make([]IndexedNode, 100)
	for i := range nodes {
		nodes[i] = IndexedNode{ID: uint32(i + 1), X: float64(i), Y: float64(i), Radius: 2}
	}
	idx.Build(nodes)

	updates := make([]NodeUpdate, 100)
	for i := range updates {
		updates[i] = NodeUpdate{ID: uint32(i + 1), X: float64(i) + 1000, Y: float64(i), Radius: -1}
	}
	idx.UpdateBatch(updates)

	// Every node should be queryable at its new position with its old radius.
	got := idx.QueryRadius(Point{X: 1000, Y: 0}, 1)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected node 1 at its new position, got %v", got)
	}
	n, ok := idx.Get(1)
	if !ok || n.Radius != 2 {
		t.Errorf("Expected negative batch radius to keep the old radius 2, got %+v", n)
	}
}

func TestInsertRelocatesExisting(t *testing.T) {
	idx := NewSpatialIndex(0)
	idx.Build([]IndexedNode{{ID: 1, X: 0, Y: 0}})

	idx.Insert(IndexedNode{ID: 1, X: 50, Y: 50, Radius: 3})
	if idx.Size() != 1 {
		t.Errorf("Expected size 1 after re-insert, got %d", idx.Size())
	}
	n, _ := idx.Get(1)
	if n.X != 50 || n.Radius != 3 {
		t.Errorf("Expected relocated node, got %+v", n)
	}

	// Non-finite inserts are dropped silently.
	idx.Insert(IndexedNode{ID: 2, X: math.Inf(-1), Y: 0})
	if idx.Size() != 1 {
		t.Errorf("Expected non-finite insert ignored, size is %d", idx.Size())
	}
}

func TestClearEmptiesIndex(t *testing.T) {
	idx := NewSpatialIndex(0)
	idx.Build([]IndexedNode{{ID: 1, X: 0, Y: 0}, {ID: 2, X: 1, Y: 1}})

	idx.Clear()
	if idx.Size() != 0 {
		t.Errorf("Expected size 0 after clear, got %d", idx.Size())
	}
	if got := idx.QueryRadius(Point{X: 0, Y: 0}, 100); got != nil {
		t.Errorf("Expected no results after clear, got %v", got)
	}

	// The index stays usable after Clear.
	idx.Insert(IndexedNode{ID: 3, X: 2, Y: 2})
	if idx.Size() != 1 {
		t.Errorf("Expected size 1 after re-insert, got %d", idx.Size())
	}
}

func TestQueryAfterManyMutations(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	idx := NewSpatialIndex(8)

	live := make(map[uint32]Point)
	for i := 0; i < 500; i++ {
		id := uint32(i + 1)
		p := Point{X: r.Float64() * 1000, Y: r.Float64() * 1000}
		idx.Insert(IndexedNode{ID: id, X: p.X, Y: p.Y})
		live[id] = p
	}
	for id := uint32(1); id <= 250; id++ {
		idx.Remove(id)
		delete(live, id)
	}
	for id := uint32(300); id <= 350; id++ {
		p := Point{X: r.Float64() * 1000, Y: r.Float64() * 1000}
		idx.Update(id, p.X, p.Y)
		live[id] = p
	}

	if idx.Size() != len(live) {
		t.Fatalf("Expected size %d, got %d", len(live), idx.Size())
	}

	got := idx.QueryRect(Bounds{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000})
	if len(got) != len(live) {
		t.Fatalf("Expected %d results, got %d", len(live), len(got))
	}
	for _, id := range got {
		if _, ok := live[id]; !ok {
			t.Errorf("Unexpected id %d in results", id)
		}
	}
}
