package render

import (
	"math"
	"math/rand"
)

// PriorityStats summarizes the priority distribution of a render plan.
type PriorityStats struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
}

// PlanSummary condenses a render plan for overlay/monitoring consumers.
type PlanSummary struct {
	TotalNodes    int            `json:"totalNodes"`
	RenderedNodes int            `json:"renderedNodes"`
	RenderedEdges int            `json:"renderedEdges"`
	NodesByLevel  map[string]int `json:"nodesByLevel"`
	EdgesByLevel  map[string]int `json:"edgesByLevel"`
	NodePriority  PriorityStats  `json:"nodePriority"`
	BundledEdges  int            `json:"bundledEdges"`
	BundledShare  float64        `json:"bundledShare"`
	CullReasons   map[string]int `json:"cullReasons"`
}

// SummarizePlan computes per-level counts, priority spread, and bundling
// share for one frame's plan.
func SummarizePlan(plan *RenderPlan) PlanSummary {
	summary := PlanSummary{
		TotalNodes:    plan.Stats.TotalNodes,
		RenderedNodes: len(plan.Nodes),
		RenderedEdges: len(plan.Edges),
		NodesByLevel:  make(map[string]int),
		EdgesByLevel:  make(map[string]int),
		CullReasons: map[string]int{
			"offscreen": plan.Stats.CulledOffscreen,
			"lod":       plan.Stats.CulledLOD,
			"size":      plan.Stats.CulledSize,
			"budget":    plan.Stats.CulledBudget,
		},
	}

	if len(plan.Nodes) > 0 {
		stats := PriorityStats{Min: math.Inf(1), Max: math.Inf(-1)}
		sum := 0.0
		for _, n := range plan.Nodes {
			summary.NodesByLevel[n.LOD.String()]++
			if n.Priority < stats.Min {
				stats.Min = n.Priority
			}
			if n.Priority > stats.Max {
				stats.Max = n.Priority
			}
			sum += n.Priority
		}
		stats.Average = sum / float64(len(plan.Nodes))
		summary.NodePriority = stats
	}

	for _, e := range plan.Edges {
		summary.EdgesByLevel[e.LOD.String()]++
		if cp, ok := plan.ControlPoints[e.ID]; ok && cp.IsBundled {
			summary.BundledEdges++
		}
	}
	if len(plan.Edges) > 0 {
		summary.BundledShare = float64(summary.BundledEdges) / float64(len(plan.Edges))
	}

	return summary
}

// GenerateTestScene builds a clustered random graph for load testing and
// profiling. Nodes cluster around sqrt(n) centers; edges prefer their own
// cluster, which gives the bundler realistic near-parallel groups.
func GenerateTestScene(numNodes, numEdges int, bounds Bounds, seed int64) *Scene {
	if numNodes <= 0 {
		return &Scene{Options: DefaultOptions()}
	}
	r := rand.New(rand.NewSource(seed))

	numClusters := int(math.Sqrt(float64(numNodes)))
	if numClusters < 1 {
		numClusters = 1
	}
	spanX := bounds.MaxX - bounds.MinX
	spanY := bounds.MaxY - bounds.MinY

	centers := make([]Point, numClusters)
	for i := range centers {
		centers[i] = Point{
			X: bounds.MinX + r.Float64()*spanX,
			Y: bounds.MinY + r.Float64()*spanY,
		}
	}

	spread := math.Min(spanX, spanY) / float64(numClusters)
	clusterOf := make([]int, numNodes)
	nodes := make([]GraphNode, numNodes)
	for i := 0; i < numNodes; i++ {
		c := r.Intn(numClusters)
		clusterOf[i] = c
		nodes[i] = GraphNode{
			ID:         uint32(i + 1),
			X:          centers[c].X + r.NormFloat64()*spread,
			Y:          centers[c].Y + r.NormFloat64()*spread,
			Radius:     2 + r.Float64()*10,
			Importance: r.Float64(),
		}
	}

	edges := make([]GraphEdge, 0, numEdges)
	for i := 0; i < numEdges; i++ {
		a := r.Intn(numNodes)
		var b int
		if r.Float64() < 0.7 {
			// Same-cluster link; retry a few times before falling back to a
			// uniform pick.
			b = a
			for attempt := 0; attempt < 8; attempt++ {
				cand := r.Intn(numNodes)
				if cand != a && clusterOf[cand] == clusterOf[a] {
					b = cand
					break
				}
			}
			if b == a {
				b = (a + 1) % numNodes
			}
		} else {
			b = r.Intn(numNodes)
			if b == a {
				b = (a + 1) % numNodes
			}
		}
		edges = append(edges, GraphEdge{
			ID:       uint32(i + 1),
			SourceID: nodes[a].ID,
			TargetID: nodes[b].ID,
			Weight:   r.Float64() * 5,
		})
	}

	return &Scene{Nodes: nodes, Edges: edges, Options: DefaultOptions()}
}
