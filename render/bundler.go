package render

import (
	"math"
	"sort"
)

// EdgeEndpoints is the bundler's view of one edge: resolved screen-space
// endpoints plus the edge's weight.
type EdgeEndpoints struct {
	ID     uint32
	Source Point
	Target Point
	Weight float64
}

// EdgeControlPoints is the routing geometry emitted per edge. Unbundled
// edges carry a single control point; bundled edges carry a source-side and
// a target-side point pulled toward the bundle centroid.
type EdgeControlPoints struct {
	EdgeID         uint32  `json:"edgeId"`
	Source         Point   `json:"source"`
	Target         Point   `json:"target"`
	Controls       []Point `json:"controls"`
	IsBundled      bool    `json:"isBundled"`
	BundleStrength float64 `json:"bundleStrength"`
}

// EdgeBundle is a transient group of directionally and spatially similar
// edges.
type EdgeBundle struct {
	Members  []uint32
	Centroid Point
	AvgAngle float64
	Weight   float64
}

// EdgeBundler groups near-parallel, near-colocated edges and routes them
// through a shared corridor to cut visual clutter on dense graphs.
type EdgeBundler struct {
	opts BundlerOptions
}

// NewEdgeBundler creates a bundler; zero-valued options pick up defaults.
func NewEdgeBundler(opts BundlerOptions) *EdgeBundler {
	full := Options{Bundler: opts}.withDefaults()
	return &EdgeBundler{opts: full.Bundler}
}

type bundleEdge struct {
	EdgeEndpoints
	angle float64
	mid   Point
}

// Bundle computes routing geometry for every input edge. Small edge sets
// skip grouping entirely and keep nearly-straight routes.
func (b *EdgeBundler) Bundle(edges []EdgeEndpoints) map[uint32]EdgeControlPoints {
	out := make(map[uint32]EdgeControlPoints, len(edges))
	if len(edges) < b.opts.MinEdges {
		for _, e := range edges {
			out[e.ID] = b.straight(e)
		}
		return out
	}

	work := make([]bundleEdge, len(edges))
	for i, e := range edges {
		work[i] = bundleEdge{
			EdgeEndpoints: e,
			angle:         edgeAngle(e.Source, e.Target),
			mid:           Point{X: (e.Source.X + e.Target.X) / 2, Y: (e.Source.Y + e.Target.Y) / 2},
		}
	}
	// Angle order (id as tie-break) keeps grouping deterministic for a fixed
	// input. Membership remains a greedy first-match heuristic.
	sort.Slice(work, func(i, j int) bool {
		if work[i].angle != work[j].angle {
			return work[i].angle < work[j].angle
		}
		return work[i].ID < work[j].ID
	})

	grouped := make([]bool, len(work))
	for i := range work {
		if grouped[i] {
			continue
		}

		members := []int{i}
		grouped[i] = true
		centroid := work[i].mid
		sumSin := math.Sin(work[i].angle)
		sumCos := math.Cos(work[i].angle)
		weight := work[i].Weight

		for j := range work {
			if grouped[j] {
				continue
			}
			avgAngle := math.Atan2(sumSin, sumCos)
			if angularDiff(work[j].angle, avgAngle) > b.opts.AngularTolerance {
				continue
			}
			if math.Hypot(work[j].mid.X-centroid.X, work[j].mid.Y-centroid.Y) > b.opts.CentroidDistance {
				continue
			}

			grouped[j] = true
			members = append(members, j)
			n := float64(len(members))
			centroid.X += (work[j].mid.X - centroid.X) / n
			centroid.Y += (work[j].mid.Y - centroid.Y) / n
			sumSin += math.Sin(work[j].angle)
			sumCos += math.Cos(work[j].angle)
			weight += work[j].Weight
		}

		if len(members) < 2 {
			out[work[i].ID] = b.straight(work[i].EdgeEndpoints)
			continue
		}

		strength := math.Min(1, float64(len(members))/10) * b.opts.Strength
		for _, m := range members {
			e := work[m]
			out[e.ID] = EdgeControlPoints{
				EdgeID: e.ID,
				Source: e.Source,
				Target: e.Target,
				Controls: []Point{
					lerp(e.Source, centroid, strength),
					lerp(e.Target, centroid, strength),
				},
				IsBundled:      true,
				BundleStrength: strength,
			}
		}
	}

	return out
}

// straight emits the single-control-point form: a midpoint nudged
// perpendicular to the edge so coincident straight edges stay visually
// separable. Zero-length edges collapse onto their shared point.
func (b *EdgeBundler) straight(e EdgeEndpoints) EdgeControlPoints {
	dx := e.Target.X - e.Source.X
	dy := e.Target.Y - e.Source.Y
	length := math.Hypot(dx, dy)

	control := Point{X: (e.Source.X + e.Target.X) / 2, Y: (e.Source.Y + e.Target.Y) / 2}
	if length > 0 {
		control.X += -dy / length * b.opts.SeparationOffset
		control.Y += dx / length * b.opts.SeparationOffset
	} else {
		control = e.Source
	}

	return EdgeControlPoints{
		EdgeID:    e.ID,
		Source:    e.Source,
		Target:    e.Target,
		Controls:  []Point{control},
		IsBundled: false,
	}
}

func edgeAngle(source, target Point) float64 {
	a := math.Atan2(target.Y-source.Y, target.X-source.X)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// angularDiff returns the wrapped distance between two angles, so 0 and 2π
// compare as adjacent.
func angularDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

func lerp(from, to Point, t float64) Point {
	return Point{
		X: from.X + (to.X-from.X)*t,
		Y: from.Y + (to.Y-from.Y)*t,
	}
}
