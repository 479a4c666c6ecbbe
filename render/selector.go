package render

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Viewport is the caller-supplied view state for one frame. Screen space is
// world space scaled by Zoom then shifted by the pan offset.
type Viewport struct {
	PanX    float64 `json:"panX"`
	PanY    float64 `json:"panY"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Zoom    float64 `json:"zoom"`
	CenterX float64 `json:"centerX"` // world-space center
	CenterY float64 `json:"centerY"`
}

// ToScreen projects a world coordinate into screen space.
func (v Viewport) ToScreen(x, y float64) Point {
	return Point{X: x*v.Zoom + v.PanX, Y: y*v.Zoom + v.PanY}
}

// worldBounds inverts the screen transform for the viewport inflated by
// buffer px on every side.
func (v Viewport) worldBounds(buffer float64) Bounds {
	return Bounds{
		MinX: (-buffer - v.PanX) / v.Zoom,
		MinY: (-buffer - v.PanY) / v.Zoom,
		MaxX: (v.Width + buffer - v.PanX) / v.Zoom,
		MaxY: (v.Height + buffer - v.PanY) / v.Zoom,
	}
}

// GraphNode is the caller's per-frame node input. Positions come from an
// external layout; importance is any centrality-like score in [0,1].
type GraphNode struct {
	ID         uint32  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Radius     float64 `json:"radius"`
	Importance float64 `json:"importance"`
}

// GraphEdge is the caller's per-frame edge input.
type GraphEdge struct {
	ID       uint32  `json:"id"`
	SourceID uint32  `json:"sourceId"`
	TargetID uint32  `json:"targetId"`
	Weight   float64 `json:"weight"`
}

// FrameInput carries everything the pipeline consumes for one frame.
type FrameInput struct {
	Nodes    []GraphNode
	Edges    []GraphEdge
	Viewport Viewport
	Selected map[uint32]bool
	Hovered  uint32
	// HasHovered distinguishes "hovering node 0" from "no hover".
	HasHovered bool
	// SkipBundling lets the caller shed the bundling pass when the frame
	// budget is tight; edges then keep their nearly-straight routes.
	SkipBundling bool
}

// RenderableNode is one frame's drawing instruction for a node.
type RenderableNode struct {
	ID           uint32   `json:"id"`
	ScreenX      float64  `json:"screenX"`
	ScreenY      float64  `json:"screenY"`
	ScreenRadius float64  `json:"screenRadius"`
	LOD          LODLevel `json:"lod"`
	Priority     float64  `json:"priority"`
	Visible      bool     `json:"visible"`
}

// RenderableEdge is one frame's drawing instruction for an edge, with both
// endpoints resolved to screen space.
type RenderableEdge struct {
	ID       uint32   `json:"id"`
	SourceID uint32   `json:"sourceId"`
	TargetID uint32   `json:"targetId"`
	SourceX  float64  `json:"sourceX"`
	SourceY  float64  `json:"sourceY"`
	TargetX  float64  `json:"targetX"`
	TargetY  float64  `json:"targetY"`
	LOD      LODLevel `json:"lod"`
	Priority float64  `json:"priority"`
}

// FrameStats summarizes one frame for observability: element counts, cull
// reasons, and phase timings.
type FrameStats struct {
	TotalNodes     int `json:"totalNodes"`
	CandidateNodes int `json:"candidateNodes"`
	RenderedNodes  int `json:"renderedNodes"`
	TotalEdges     int `json:"totalEdges"`
	CandidateEdges int `json:"candidateEdges"`
	RenderedEdges  int `json:"renderedEdges"`

	CulledOffscreen int `json:"culledOffscreen"`
	CulledLOD       int `json:"culledLod"`
	CulledSize      int `json:"culledSize"`
	CulledBudget    int `json:"culledBudget"`

	IndexTime  time.Duration `json:"indexTime"`
	CullTime   time.Duration `json:"cullTime"`
	LODTime    time.Duration `json:"lodTime"`
	SelectTime time.Duration `json:"selectTime"`
	BundleTime time.Duration `json:"bundleTime"`
	FrameTime  time.Duration `json:"frameTime"`

	Bundled bool `json:"bundled"`
}

// RenderPlan is the pipeline's output, handed to the drawing collaborator.
type RenderPlan struct {
	Nodes         []RenderableNode             `json:"nodes"`
	Edges         []RenderableEdge             `json:"edges"`
	ControlPoints map[uint32]EdgeControlPoints `json:"controlPoints"`
	Stats         FrameStats                   `json:"stats"`
}

// VirtualRenderer runs the per-frame pipeline: index update, viewport cull,
// LOD classification, priority selection under budget, edge bundling. It
// exclusively owns its spatial index; the whole pipeline is frame-synchronous
// on the caller's thread.
type VirtualRenderer struct {
	opts    Options
	index   *SpatialIndex
	bundler *EdgeBundler
	log     *zap.Logger
	metrics *Metrics
}

// NewVirtualRenderer validates options and builds a renderer. A nil logger
// disables frame diagnostics.
func NewVirtualRenderer(opts Options, logger *zap.Logger) (*VirtualRenderer, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VirtualRenderer{
		opts:    opts,
		index:   NewSpatialIndex(opts.LeafSize),
		bundler: NewEdgeBundler(opts.Bundler),
		log:     logger,
	}, nil
}

// SetMetrics attaches a prometheus sink; frame stats are recorded after each
// RenderFrame.
func (r *VirtualRenderer) SetMetrics(m *Metrics) {
	r.metrics = m
}

// Index exposes the renderer's spatial index for host-side hit testing
// (hover and click resolution between frames).
func (r *VirtualRenderer) Index() *SpatialIndex {
	return r.index
}

// UpdatePositions applies incremental layout movement between frames without
// a full rebuild; RenderFrame with Rebuild=false reuses the index as-is.
func (r *VirtualRenderer) UpdatePositions(updates []NodeUpdate) {
	r.index.UpdateBatch(updates)
}

// RenderFrame runs the whole pipeline for one frame and returns the bounded
// render plan. Nodes with non-finite positions silently drop from candidacy;
// no input can make this fail.
func (r *VirtualRenderer) RenderFrame(in FrameInput) *RenderPlan {
	frameStart := time.Now()
	stats := FrameStats{
		TotalNodes: len(in.Nodes),
		TotalEdges: len(in.Edges),
	}

	vp := in.Viewport
	if vp.Zoom <= 0 || math.IsNaN(vp.Zoom) || vp.Width <= 0 || vp.Height <= 0 {
		stats.FrameTime = time.Since(frameStart)
		return &RenderPlan{ControlPoints: map[uint32]EdgeControlPoints{}, Stats: stats}
	}

	// Index rebuild.
	indexStart := time.Now()
	indexed := make([]IndexedNode, len(in.Nodes))
	byID := make(map[uint32]*GraphNode, len(in.Nodes))
	for i := range in.Nodes {
		n := &in.Nodes[i]
		indexed[i] = IndexedNode{ID: n.ID, X: n.X, Y: n.Y, Radius: n.Radius}
		byID[n.ID] = n
	}
	r.index.Build(indexed)
	stats.IndexTime = time.Since(indexStart)

	// Viewport cull via the index.
	cullStart := time.Now()
	candidateIDs := r.index.QueryRect(vp.worldBounds(r.opts.BufferPx))
	stats.CandidateNodes = len(candidateIDs)
	stats.CulledOffscreen = r.index.Size() - len(candidateIDs)
	stats.CullTime = time.Since(cullStart)

	candidate := make(map[uint32]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		candidate[id] = true
	}

	// LOD classification and size filtering.
	lodStart := time.Now()
	ctx := NewLODContext(vp, len(in.Nodes))
	nodes := make([]RenderableNode, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		n := byID[id]
		screen := vp.ToScreen(n.X, n.Y)
		level := ctx.Classify(screen, in.Selected[id], in.HasHovered && in.Hovered == id)
		if level == LODCulled {
			stats.CulledLOD++
			continue
		}
		screenRadius := n.Radius * vp.Zoom
		if screenRadius*2 < r.opts.MinScreenSize[level] {
			stats.CulledSize++
			continue
		}
		nodes = append(nodes, RenderableNode{
			ID:           id,
			ScreenX:      screen.X,
			ScreenY:      screen.Y,
			ScreenRadius: screenRadius,
			LOD:          level,
			Priority:     r.nodePriority(n, screen, screenRadius, ctx),
			Visible:      true,
		})
	}
	stats.LODTime = time.Since(lodStart)

	// Selection under budget.
	selectStart := time.Now()
	dense := len(in.Nodes) > highNodeCount
	nodeBudget, edgeBudget := r.opts.budgetFor(vp.Zoom, dense)

	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Priority > nodes[j].Priority
	})
	if len(nodes) > nodeBudget {
		stats.CulledBudget += len(nodes) - nodeBudget
		nodes = nodes[:nodeBudget]
	}

	kept := make(map[uint32]LODLevel, len(nodes))
	for _, n := range nodes {
		kept[n.ID] = n.LOD
	}

	edges := r.selectEdges(in, vp, candidate, kept, byID, edgeBudget, &stats)
	stats.SelectTime = time.Since(selectStart)

	// Bundling over the surviving edges.
	bundleStart := time.Now()
	weights := make(map[uint32]float64, len(in.Edges))
	for _, e := range in.Edges {
		weights[e.ID] = e.Weight
	}
	endpoints := make([]EdgeEndpoints, len(edges))
	for i, e := range edges {
		endpoints[i] = EdgeEndpoints{
			ID:     e.ID,
			Source: Point{X: e.SourceX, Y: e.SourceY},
			Target: Point{X: e.TargetX, Y: e.TargetY},
			Weight: weights[e.ID],
		}
	}
	var controls map[uint32]EdgeControlPoints
	if in.SkipBundling {
		controls = make(map[uint32]EdgeControlPoints, len(endpoints))
		for _, e := range endpoints {
			controls[e.ID] = r.bundler.straight(e)
		}
	} else {
		controls = r.bundler.Bundle(endpoints)
		stats.Bundled = len(endpoints) >= r.opts.Bundler.MinEdges
	}
	stats.BundleTime = time.Since(bundleStart)

	stats.RenderedNodes = len(nodes)
	stats.RenderedEdges = len(edges)
	stats.FrameTime = time.Since(frameStart)

	if r.metrics != nil {
		r.metrics.RecordFrame(stats)
	}
	r.log.Debug("frame rendered",
		zap.Int("candidateNodes", stats.CandidateNodes),
		zap.Int("renderedNodes", stats.RenderedNodes),
		zap.Int("renderedEdges", stats.RenderedEdges),
		zap.Duration("frameTime", stats.FrameTime),
	)

	return &RenderPlan{
		Nodes:         nodes,
		Edges:         edges,
		ControlPoints: controls,
		Stats:         stats,
	}
}

func (r *VirtualRenderer) selectEdges(in FrameInput, vp Viewport, candidate map[uint32]bool, kept map[uint32]LODLevel, byID map[uint32]*GraphNode, edgeBudget int, stats *FrameStats) []RenderableEdge {
	edges := make([]RenderableEdge, 0, len(in.Edges)/4)
	for _, e := range in.Edges {
		// An edge is a candidate iff at least one endpoint survived the
		// viewport cull.
		if !candidate[e.SourceID] && !candidate[e.TargetID] {
			continue
		}
		stats.CandidateEdges++

		src, okS := byID[e.SourceID]
		tgt, okT := byID[e.TargetID]
		if !okS || !okT || !finitePos(src.X, src.Y) || !finitePos(tgt.X, tgt.Y) {
			continue
		}

		level, ok := edgeLevel(kept, e.SourceID, e.TargetID)
		if !ok {
			stats.CulledLOD++
			continue
		}

		sp := vp.ToScreen(src.X, src.Y)
		tp := vp.ToScreen(tgt.X, tgt.Y)
		length := math.Hypot(tp.X-sp.X, tp.Y-sp.Y)
		if length < r.opts.MinScreenSize[level] {
			stats.CulledSize++
			continue
		}

		edges = append(edges, RenderableEdge{
			ID:       e.ID,
			SourceID: e.SourceID,
			TargetID: e.TargetID,
			SourceX:  sp.X,
			SourceY:  sp.Y,
			TargetX:  tp.X,
			TargetY:  tp.Y,
			LOD:      level,
			Priority: r.edgePriority(e, length, src, tgt),
		})
	}

	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].Priority > edges[j].Priority
	})
	if len(edges) > edgeBudget {
		stats.CulledBudget += len(edges) - edgeBudget
		edges = edges[:edgeBudget]
	}
	return edges
}

// edgeLevel picks the more detailed level of the surviving endpoints; an
// edge whose endpoints were both dropped renders nothing.
func edgeLevel(kept map[uint32]LODLevel, source, target uint32) (LODLevel, bool) {
	ls, okS := kept[source]
	lt, okT := kept[target]
	switch {
	case okS && okT:
		if lt < ls {
			return lt, true
		}
		return ls, true
	case okS:
		return ls, true
	case okT:
		return lt, true
	}
	return LODCulled, false
}

// nodePriority scores a node: bigger on screen, more important, and closer
// to the viewport center all rank higher. Scores are bounded so no single
// term dominates.
func (r *VirtualRenderer) nodePriority(n *GraphNode, screen Point, screenRadius float64, ctx LODContext) float64 {
	sizeScore := screenRadius / (screenRadius + 8)
	dist := math.Hypot(screen.X-ctx.centerX, screen.Y-ctx.centerY) * ctx.invDiag
	centerScore := 1 / (1 + dist*4)
	return r.opts.SizeWeight*sizeScore +
		r.opts.ImportanceWeight*n.Importance +
		r.opts.CenterWeight*centerScore
}

// edgePriority scores an edge from its weight, inverse screen length, and
// the importance of its endpoints.
func (r *VirtualRenderer) edgePriority(e GraphEdge, screenLength float64, src, tgt *GraphNode) float64 {
	weightScore := e.Weight / (e.Weight + 1)
	lengthScore := 1 / (1 + screenLength/100)
	importance := (src.Importance + tgt.Importance) / 2
	return r.opts.EdgeWeightFactor*weightScore +
		r.opts.EdgeLengthFactor*lengthScore +
		r.opts.EdgeImportanceFactor*importance
}
