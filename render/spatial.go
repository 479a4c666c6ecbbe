package render

import (
	"math"
	"sort"
	"time"
)

// Point is a 2D coordinate, used for both world and screen space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is an axis-aligned rectangle.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Extend expands bounds to include another point.
func (b *Bounds) Extend(x, y float64) {
	b.MinX = math.Min(b.MinX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MaxX = math.Max(b.MaxX, x)
	b.MaxY = math.Max(b.MaxY, y)
}

// Contains reports whether the point lies within the closed rectangle.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// IndexedNode is one entry in the spatial index. Only nodes with finite
// coordinates are ever inserted.
type IndexedNode struct {
	ID     uint32
	X, Y   float64
	Radius float64
}

type kdNode struct {
	PointIdx int32 // median, for internal nodes
	Left     int32 // -1 for leaf
	Right    int32 // -1 for leaf
	Axis     uint8
	Start    int32 // leaf point range, inclusive
	End      int32
}

// BuildStats describes the outcome of a Build call.
type BuildStats struct {
	Indexed  int
	Skipped  int
	Duration time.Duration
}

// SpatialIndex answers positional queries over a dynamic point set using a
// flat-slice KD-tree. Mutations mark the tree dirty; the next query performs
// a single restructure, so a batch of updates costs one rebuild no matter
// its size. The index is owned by the render loop and is not safe for
// concurrent mutation.
type SpatialIndex struct {
	nodes  []kdNode
	points []IndexedNode
	byID   map[uint32]int32

	leafSize  int
	bounds    Bounds
	maxRadius float64 // largest node radius, for edge-distance pruning
	dirty     bool
	dead      int // tombstoned points pending compaction
}

const defaultLeafSize = 16

// NewSpatialIndex creates an empty index. A leafSize <= 0 selects the
// default.
func NewSpatialIndex(leafSize int) *SpatialIndex {
	if leafSize <= 0 {
		leafSize = defaultLeafSize
	}
	return &SpatialIndex{
		byID:     make(map[uint32]int32),
		leafSize: leafSize,
	}
}

// Build discards prior state and indexes every node with finite coordinates.
func (s *SpatialIndex) Build(nodes []IndexedNode) BuildStats {
	start := time.Now()

	s.points = make([]IndexedNode, 0, len(nodes))
	s.byID = make(map[uint32]int32, len(nodes))
	skipped := 0
	for _, n := range nodes {
		if !finitePos(n.X, n.Y) {
			skipped++
			continue
		}
		if n.Radius < 0 || math.IsNaN(n.Radius) {
			n.Radius = 0
		}
		s.byID[n.ID] = int32(len(s.points))
		s.points = append(s.points, n)
	}

	s.dead = 0
	s.dirty = false
	s.restructure()

	return BuildStats{
		Indexed:  len(s.points),
		Skipped:  skipped,
		Duration: time.Since(start),
	}
}

// Insert adds a single node. Nodes without a finite position are ignored; an
// existing id is relocated instead.
func (s *SpatialIndex) Insert(n IndexedNode) {
	if !finitePos(n.X, n.Y) {
		return
	}
	if n.Radius < 0 || math.IsNaN(n.Radius) {
		n.Radius = 0
	}
	if idx, ok := s.byID[n.ID]; ok {
		s.points[idx] = n
		s.dirty = true
		return
	}
	s.byID[n.ID] = int32(len(s.points))
	s.points = append(s.points, n)
	s.dirty = true
}

// Update relocates an existing node. Unknown ids are a no-op; a non-finite
// position tombstones the node, keeping the index restricted to valid
// coordinates.
func (s *SpatialIndex) Update(id uint32, x, y float64) {
	idx, ok := s.byID[id]
	if !ok {
		return
	}
	if !finitePos(x, y) {
		s.Remove(id)
		return
	}
	s.points[idx].X = x
	s.points[idx].Y = y
	s.dirty = true
}

// UpdateRadius changes a node's radius without moving it.
func (s *SpatialIndex) UpdateRadius(id uint32, radius float64) {
	idx, ok := s.byID[id]
	if !ok || math.IsNaN(radius) {
		return
	}
	if radius < 0 {
		radius = 0
	}
	s.points[idx].Radius = radius
	s.dirty = true
}

// NodeUpdate is one entry of an UpdateBatch. A Radius < 0 keeps the node's
// current radius.
type NodeUpdate struct {
	ID     uint32
	X, Y   float64
	Radius float64
}

// UpdateBatch applies every update, then lets the next query restructure the
// tree once for the whole batch.
func (s *SpatialIndex) UpdateBatch(updates []NodeUpdate) {
	for _, u := range updates {
		idx, ok := s.byID[u.ID]
		if !ok {
			continue
		}
		if !finitePos(u.X, u.Y) {
			s.Remove(u.ID)
			continue
		}
		s.points[idx].X = u.X
		s.points[idx].Y = u.Y
		if u.Radius >= 0 && !math.IsNaN(u.Radius) {
			s.points[idx].Radius = u.Radius
		}
	}
	s.dirty = true
}

// Remove tombstones a node. The slot is compacted away on the next
// restructure rather than immediately; unknown ids are a no-op.
func (s *SpatialIndex) Remove(id uint32) {
	idx, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	s.points[idx].ID = 0
	s.points[idx].Radius = -1 // dead marker
	s.dead++
	s.dirty = true
}

// Size returns the number of live indexed nodes.
func (s *SpatialIndex) Size() int {
	return len(s.byID)
}

// Clear drops all points and tree nodes.
func (s *SpatialIndex) Clear() {
	s.nodes = nil
	s.points = nil
	s.byID = make(map[uint32]int32)
	s.bounds = Bounds{}
	s.maxRadius = 0
	s.dead = 0
	s.dirty = false
}

// Get returns the indexed node for an id.
func (s *SpatialIndex) Get(id uint32) (IndexedNode, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return IndexedNode{}, false
	}
	return s.points[idx], true
}

// ensureFresh restructures at most once after any run of mutations, so
// queries never observe stale positions.
func (s *SpatialIndex) ensureFresh() {
	if s.dirty {
		s.restructure()
		s.dirty = false
	}
}

func (s *SpatialIndex) restructure() {
	if s.dead > 0 {
		live := make([]IndexedNode, 0, len(s.points)-s.dead)
		for _, p := range s.points {
			if p.Radius < 0 {
				continue
			}
			live = append(live, p)
		}
		s.points = live
		s.dead = 0
	}

	s.nodes = s.nodes[:0]
	s.bounds = Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	s.maxRadius = 0
	for _, p := range s.points {
		s.bounds.Extend(p.X, p.Y)
		if p.Radius > s.maxRadius {
			s.maxRadius = p.Radius
		}
	}

	if len(s.points) > 0 {
		s.buildNodes(0, len(s.points)-1, 0)
	}

	// Point order changes during the build, so the id map is refreshed last.
	for i, p := range s.points {
		s.byID[p.ID] = int32(i)
	}
}

func (s *SpatialIndex) buildNodes(start, end, depth int) int32 {
	if start > end {
		return -1
	}

	nodeIdx := int32(len(s.nodes))
	s.nodes = append(s.nodes, kdNode{})

	if end-start < s.leafSize {
		s.nodes[nodeIdx] = kdNode{
			PointIdx: int32(start),
			Left:     -1,
			Right:    -1,
			Start:    int32(start),
			End:      int32(end),
		}
		return nodeIdx
	}

	axis := depth % 2
	median := (start + end) / 2
	sortPointsRange(s.points[start:end+1], axis)

	s.nodes[nodeIdx] = kdNode{
		PointIdx: int32(median),
		Axis:     uint8(axis),
		Start:    int32(start),
		End:      int32(end),
	}

	left := s.buildNodes(start, median-1, depth+1)
	right := s.buildNodes(median+1, end, depth+1)
	s.nodes[nodeIdx].Left = left
	s.nodes[nodeIdx].Right = right
	return nodeIdx
}

func sortPointsRange(points []IndexedNode, axis int) {
	if axis == 0 {
		sort.Slice(points, func(i, j int) bool {
			return points[i].X < points[j].X
		})
	} else {
		sort.Slice(points, func(i, j int) bool {
			return points[i].Y < points[j].Y
		})
	}
}

// QueryPoint returns the node whose boundary (center distance minus its own
// radius) is nearest to p and within maxRadius. Large nodes are found by
// touch, not just by center.
func (s *SpatialIndex) QueryPoint(p Point, maxRadius float64) (uint32, bool) {
	s.ensureFresh()
	if len(s.points) == 0 || maxRadius < 0 || math.IsNaN(maxRadius) {
		return 0, false
	}

	bestID := uint32(0)
	bestDist := math.Inf(1)
	found := false

	var walk func(nodeIdx int32)
	walk = func(nodeIdx int32) {
		if nodeIdx < 0 {
			return
		}
		node := s.nodes[nodeIdx]
		if node.Left == -1 && node.Right == -1 {
			for i := node.Start; i <= node.End; i++ {
				s.considerPoint(s.points[i], p, maxRadius, &bestID, &bestDist, &found)
			}
			return
		}

		s.considerPoint(s.points[node.PointIdx], p, maxRadius, &bestID, &bestDist, &found)

		median := s.points[node.PointIdx]
		var delta float64
		if node.Axis == 0 {
			delta = p.X - median.X
		} else {
			delta = p.Y - median.Y
		}

		near, far := node.Left, node.Right
		if delta >= 0 {
			near, far = node.Right, node.Left
		}
		walk(near)

		// The far side can still hold a closer boundary when a large node
		// reaches across the splitting plane.
		limit := math.Min(bestDist, maxRadius)
		if math.Abs(delta)-s.maxRadius <= limit {
			walk(far)
		}
	}
	walk(0)

	return bestID, found
}

func (s *SpatialIndex) considerPoint(n IndexedNode, p Point, maxRadius float64, bestID *uint32, bestDist *float64, found *bool) {
	edge := math.Hypot(n.X-p.X, n.Y-p.Y) - n.Radius
	if edge <= maxRadius && edge < *bestDist {
		*bestDist = edge
		*bestID = n.ID
		*found = true
	}
}

// QueryRadius returns all nodes whose center lies within radius of center,
// boundary included. A non-positive radius yields an empty result.
func (s *SpatialIndex) QueryRadius(center Point, radius float64) []uint32 {
	s.ensureFresh()
	if len(s.points) == 0 || radius <= 0 || math.IsNaN(radius) {
		return nil
	}

	r2 := radius * radius
	var out []uint32

	var walk func(nodeIdx int32)
	walk = func(nodeIdx int32) {
		if nodeIdx < 0 {
			return
		}
		node := s.nodes[nodeIdx]
		if node.Left == -1 && node.Right == -1 {
			for i := node.Start; i <= node.End; i++ {
				p := s.points[i]
				dx, dy := p.X-center.X, p.Y-center.Y
				if dx*dx+dy*dy <= r2 {
					out = append(out, p.ID)
				}
			}
			return
		}

		median := s.points[node.PointIdx]
		dx, dy := median.X-center.X, median.Y-center.Y
		if dx*dx+dy*dy <= r2 {
			out = append(out, median.ID)
		}

		var delta float64
		if node.Axis == 0 {
			delta = center.X - median.X
		} else {
			delta = center.Y - median.Y
		}
		if delta-radius <= 0 {
			walk(node.Left)
		}
		if delta+radius >= 0 {
			walk(node.Right)
		}
	}
	walk(0)

	return out
}

// QueryRect returns all nodes whose center lies within the closed rectangle.
// Degenerate rectangles yield an empty result.
func (s *SpatialIndex) QueryRect(bounds Bounds) []uint32 {
	s.ensureFresh()
	if len(s.points) == 0 || bounds.MaxX <= bounds.MinX || bounds.MaxY <= bounds.MinY {
		return nil
	}

	var out []uint32

	var walk func(nodeIdx int32)
	walk = func(nodeIdx int32) {
		if nodeIdx < 0 {
			return
		}
		node := s.nodes[nodeIdx]
		if node.Left == -1 && node.Right == -1 {
			for i := node.Start; i <= node.End; i++ {
				p := s.points[i]
				if bounds.Contains(p.X, p.Y) {
					out = append(out, p.ID)
				}
			}
			return
		}

		median := s.points[node.PointIdx]
		if bounds.Contains(median.X, median.Y) {
			out = append(out, median.ID)
		}

		var v, lo, hi float64
		if node.Axis == 0 {
			v, lo, hi = median.X, bounds.MinX, bounds.MaxX
		} else {
			v, lo, hi = median.Y, bounds.MinY, bounds.MaxY
		}
		if lo <= v {
			walk(node.Left)
		}
		if hi >= v {
			walk(node.Right)
		}
	}
	walk(0)

	return out
}

type knnCandidate struct {
	id   uint32
	dist float64
}

// QueryKNearest returns up to k nodes closest to p by center distance,
// ascending, skipping nodes farther than maxRadius. Pass a negative
// maxRadius for an unbounded search.
func (s *SpatialIndex) QueryKNearest(p Point, k int, maxRadius float64) []uint32 {
	s.ensureFresh()
	if len(s.points) == 0 || k <= 0 {
		return nil
	}
	limit := maxRadius
	if limit < 0 {
		limit = math.Inf(1)
	}

	// Candidates stay sorted ascending; worst-of-k gives the prune bound.
	best := make([]knnCandidate, 0, k)
	consider := func(n IndexedNode) {
		d := math.Hypot(n.X-p.X, n.Y-p.Y)
		if d > limit {
			return
		}
		if len(best) == k && d >= best[k-1].dist {
			return
		}
		at := sort.Search(len(best), func(i int) bool { return best[i].dist > d })
		best = append(best, knnCandidate{})
		copy(best[at+1:], best[at:])
		best[at] = knnCandidate{id: n.ID, dist: d}
		if len(best) > k {
			best = best[:k]
		}
	}

	var walk func(nodeIdx int32)
	walk = func(nodeIdx int32) {
		if nodeIdx < 0 {
			return
		}
		node := s.nodes[nodeIdx]
		if node.Left == -1 && node.Right == -1 {
			for i := node.Start; i <= node.End; i++ {
				consider(s.points[i])
			}
			return
		}

		median := s.points[node.PointIdx]
		consider(median)

		var delta float64
		if node.Axis == 0 {
			delta = p.X - median.X
		} else {
			delta = p.Y - median.Y
		}

		near, far := node.Left, node.Right
		if delta >= 0 {
			near, far = node.Right, node.Left
		}
		walk(near)

		bound := limit
		if len(best) == k {
			bound = math.Min(bound, best[len(best)-1].dist)
		}
		if math.Abs(delta) <= bound {
			walk(far)
		}
	}
	walk(0)

	out := make([]uint32, len(best))
	for i, c := range best {
		out[i] = c.id
	}
	return out
}

func finitePos(x, y float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0) && !math.IsNaN(y) && !math.IsInf(y, 0)
}
