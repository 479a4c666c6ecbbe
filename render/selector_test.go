package render

import (
	"math"
	"testing"
)

// centeredViewport places world origin at the screen center.
func centeredViewport(zoom float64) Viewport {
	return Viewport{Width: 1920, Height: 1080, Zoom: zoom, PanX: 960, PanY: 540}
}

func newTestRenderer(t *testing.T, opts Options) *VirtualRenderer {
	t.Helper()
	r, err := NewVirtualRenderer(opts, nil)
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	return r
}

func TestRenderFrameBasic(t *testing.T) {
	r := newTestRenderer(t, DefaultOptions())

	in := FrameInput{
		Nodes: []GraphNode{
			{ID: 1, X: 0, Y: 0, Radius: 10, Importance: 0.9},
			{ID: 2, X: 50, Y: 0, Radius: 8, Importance: 0.5},
			{ID: 3, X: 100000, Y: 0, Radius: 10, Importance: 1.0}, // far offscreen
		},
		Edges: []GraphEdge{
			{ID: 1, SourceID: 1, TargetID: 2, Weight: 1},
			{ID: 2, SourceID: 2, TargetID: 3, Weight: 1},
		},
		Viewport: centeredViewport(1.5),
	}

	plan := r.RenderFrame(in)

	if plan.Stats.TotalNodes != 3 || plan.Stats.RenderedNodes != 2 {
		t.Errorf("Expected 2 of 3 nodes rendered, got %d of %d",
			plan.Stats.RenderedNodes, plan.Stats.TotalNodes)
	}
	if plan.Stats.CulledOffscreen != 1 {
		t.Errorf("Expected 1 offscreen cull, got %d", plan.Stats.CulledOffscreen)
	}
	// Edge 2 has one onscreen endpoint, so it survives as a candidate.
	if plan.Stats.CandidateEdges != 2 {
		t.Errorf("Expected 2 candidate edges, got %d", plan.Stats.CandidateEdges)
	}
	if len(plan.Edges) != 2 {
		t.Errorf("Expected 2 rendered edges, got %d", len(plan.Edges))
	}
	// Every rendered edge carries routing geometry.
	for _, e := range plan.Edges {
		if _, ok := plan.ControlPoints[e.ID]; !ok {
			t.Errorf("Edge %d missing control points", e.ID)
		}
	}
}

func TestRenderFrameInvalidViewport(t *testing.T) {
	r := newTestRenderer(t, DefaultOptions())

	nodes := []GraphNode{{ID: 1, X: 0, Y: 0, Radius: 5}}
	for _, vp := range []Viewport{
		{},
		{Width: 1920, Height: 1080, Zoom: 0},
		{Width: 1920, Height: 1080, Zoom: -1},
		{Width: 1920, Height: 1080, Zoom: math.NaN()},
		{Width: 0, Height: 1080, Zoom: 1},
	} {
		plan := r.RenderFrame(FrameInput{Nodes: nodes, Viewport: vp})
		if plan == nil {
			t.Fatalf("Expected empty plan for viewport %+v, got nil", vp)
		}
		if len(plan.Nodes) != 0 || len(plan.Edges) != 0 {
			t.Errorf("Expected empty plan for viewport %+v, got %d nodes", vp, len(plan.Nodes))
		}
	}
}

func TestRenderFrameNonFiniteNodes(t *testing.T) {
	r := newTestRenderer(t, DefaultOptions())

	in := FrameInput{
		Nodes: []GraphNode{
			{ID: 1, X: 0, Y: 0, Radius: 10},
			{ID: 2, X: math.NaN(), Y: 0, Radius: 10},
			{ID: 3, X: 10, Y: math.Inf(1), Radius: 10},
		},
		Edges: []GraphEdge{
			{ID: 1, SourceID: 1, TargetID: 2, Weight: 1},
		},
		Viewport: centeredViewport(1.0),
	}

	plan := r.RenderFrame(in)
	if len(plan.Nodes) != 1 || plan.Nodes[0].ID != 1 {
		t.Errorf("Expected only the finite node rendered, got %+v", plan.Nodes)
	}
	// The edge's far endpoint never entered the index, so the edge drops.
	if len(plan.Edges) != 0 {
		t.Errorf("Expected edge to a non-finite node dropped, got %d edges", len(plan.Edges))
	}
}

func TestNodeBudgetEnforced(t *testing.T) {
	opts := DefaultOptions()
	opts.Budgets = []BudgetTier{{MinZoom: 0, Nodes: 10, Edges: 5}}
	r := newTestRenderer(t, opts)

	nodes := make([]GraphNode, 100)
	for i := range nodes {
		nodes[i] = GraphNode{ID: uint32(i + 1), X: float64(i%10) * 20, Y: float64(i/10) * 20, Radius: 10, Importance: float64(i) / 100}
	}
	edges := make([]GraphEdge, 50)
	for i := range edges {
		edges[i] = GraphEdge{ID: uint32(i + 1), SourceID: uint32(i + 1), TargetID: uint32(i + 2), Weight: 1}
	}

	plan := r.RenderFrame(FrameInput{Nodes: nodes, Edges: edges, Viewport: centeredViewport(1.5)})

	if len(plan.Nodes) != 10 {
		t.Errorf("Expected node budget of 10 enforced, got %d", len(plan.Nodes))
	}
	if len(plan.Edges) > 5 {
		t.Errorf("Expected edge budget of 5 enforced, got %d", len(plan.Edges))
	}
	if plan.Stats.CulledBudget == 0 {
		t.Error("Expected budget culls recorded in stats")
	}

	// The survivors are the highest-priority nodes, in descending order.
	for i := 1; i < len(plan.Nodes); i++ {
		if plan.Nodes[i].Priority > plan.Nodes[i-1].Priority {
			t.Errorf("Expected descending priority, got %f before %f",
				plan.Nodes[i-1].Priority, plan.Nodes[i].Priority)
		}
	}
}

func TestSelectedNodeSurvivesAtLowZoom(t *testing.T) {
	r := newTestRenderer(t, DefaultOptions())

	nodes := make([]GraphNode, 50)
	for i := range nodes {
		nodes[i] = GraphNode{ID: uint32(i + 1), X: float64(i) * 30, Y: 0, Radius: 6}
	}

	// At this zoom nodes shrink below the simplified minimum screen size,
	// but selection pins node 5 to full detail where the size floor is 0.5px.
	plan := r.RenderFrame(FrameInput{
		Nodes:    nodes,
		Viewport: centeredViewport(0.2),
		Selected: map[uint32]bool{5: true},
	})

	var found *RenderableNode
	for i := range plan.Nodes {
		if plan.Nodes[i].ID == 5 {
			found = &plan.Nodes[i]
		}
	}
	if found == nil {
		t.Fatal("Expected selected node in the plan")
	}
	if found.LOD != LODFull {
		t.Errorf("Expected selected node at full detail, got %v", found.LOD)
	}
}

func TestMinScreenSizeFilter(t *testing.T) {
	opts := DefaultOptions()
	r := newTestRenderer(t, opts)

	// A radius of 0.1 at zoom 1.5 gives a 0.3px diameter, under even the
	// full-detail floor of 0.5px.
	plan := r.RenderFrame(FrameInput{
		Nodes:    []GraphNode{{ID: 1, X: 0, Y: 0, Radius: 0.1}},
		Viewport: centeredViewport(1.5),
	})

	if len(plan.Nodes) != 0 {
		t.Errorf("Expected sub-pixel node dropped, got %d nodes", len(plan.Nodes))
	}
	if plan.Stats.CulledSize != 1 {
		t.Errorf("Expected 1 size cull, got %d", plan.Stats.CulledSize)
	}
}

func TestEdgeLevelMoreDetailedEndpoint(t *testing.T) {
	kept := map[uint32]LODLevel{1: LODFull, 2: LODSimplified}

	if level, ok := edgeLevel(kept, 1, 2); !ok || level != LODFull {
		t.Errorf("Expected full from (full, simplified), got %v (ok=%v)", level, ok)
	}
	if level, ok := edgeLevel(kept, 2, 3); !ok || level != LODSimplified {
		t.Errorf("Expected simplified from single surviving endpoint, got %v (ok=%v)", level, ok)
	}
	if _, ok := edgeLevel(kept, 3, 4); ok {
		t.Error("Expected no level when both endpoints dropped")
	}
}

func TestSkipBundlingKeepsStraightRoutes(t *testing.T) {
	r := newTestRenderer(t, DefaultOptions())

	nodes := make([]GraphNode, 60)
	edges := make([]GraphEdge, 30)
	for i := range nodes {
		nodes[i] = GraphNode{ID: uint32(i + 1), X: float64(i%10) * 10, Y: 100 + float64(i/10)*5, Radius: 5}
	}
	for i := range edges {
		edges[i] = GraphEdge{ID: uint32(i + 1), SourceID: uint32(i + 1), TargetID: uint32(i + 31), Weight: 1}
	}

	plan := r.RenderFrame(FrameInput{
		Nodes:        nodes,
		Edges:        edges,
		Viewport:     centeredViewport(1.5),
		SkipBundling: true,
	})

	if plan.Stats.Bundled {
		t.Error("Expected bundling skipped")
	}
	for id, cp := range plan.ControlPoints {
		if cp.IsBundled {
			t.Errorf("Edge %d bundled despite SkipBundling", id)
		}
	}
}

func TestUpdatePositionsReflectsInIndex(t *testing.T) {
	r := newTestRenderer(t, DefaultOptions())

	r.Index().Build([]IndexedNode{
		{ID: 1, X: 0, Y: 0, Radius: 5},
		{ID: 2, X: 100, Y: 0, Radius: 5},
	})
	r.UpdatePositions([]NodeUpdate{{ID: 1, X: 200, Y: 0, Radius: -1}})

	got := r.Index().QueryRadius(Point{X: 200, Y: 0}, 1)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected moved node at (200,0), got %v", got)
	}
}

func TestRendererRejectsBadOptions(t *testing.T) {
	bad := DefaultOptions()
	bad.Budgets = []BudgetTier{{MinZoom: 0, Nodes: 0, Edges: 100}}
	if _, err := NewVirtualRenderer(bad, nil); err == nil {
		t.Error("Expected error for zero node budget")
	}

	bad = DefaultOptions()
	bad.Budgets = []BudgetTier{{MinZoom: 0, Nodes: 100, Edges: -5}}
	if _, err := NewVirtualRenderer(bad, nil); err == nil {
		t.Error("Expected error for negative edge budget")
	}
}
