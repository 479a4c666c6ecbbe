package render

import "math"

// LODLevel is a discrete visual-detail tier. Lower values carry more detail.
type LODLevel uint8

const (
	LODFull LODLevel = iota
	LODStandard
	LODSimplified
	LODCulled
)

func (l LODLevel) String() string {
	switch l {
	case LODFull:
		return "full"
	case LODStandard:
		return "standard"
	case LODSimplified:
		return "simplified"
	case LODCulled:
		return "culled"
	}
	return "unknown"
}

// DetailProfile describes what a level actually renders.
type DetailProfile struct {
	ShowLabels   bool    `json:"showLabels"`
	ShowMetadata bool    `json:"showMetadata"`
	NodeQuality  float64 `json:"nodeQuality"` // 0..1 render quality hint
	EdgeQuality  float64 `json:"edgeQuality"`
	FontSize     float64 `json:"fontSize"`
	Animate      bool    `json:"animate"`
}

var detailProfiles = [4]DetailProfile{
	LODFull:       {ShowLabels: true, ShowMetadata: true, NodeQuality: 1.0, EdgeQuality: 1.0, FontSize: 12, Animate: true},
	LODStandard:   {ShowLabels: true, ShowMetadata: false, NodeQuality: 0.75, EdgeQuality: 0.6, FontSize: 10, Animate: true},
	LODSimplified: {ShowLabels: false, ShowMetadata: false, NodeQuality: 0.4, EdgeQuality: 0.3, FontSize: 8, Animate: false},
	LODCulled:     {},
}

// Profile returns the fixed detail descriptor for the level.
func (l LODLevel) Profile() DetailProfile {
	return detailProfiles[l]
}

// Classification thresholds. Zoom brackets run high to low; each bracket maps
// normalized center distance (distance / viewport diagonal) to a level.
const (
	zoomBracketClose  = 1.2
	zoomBracketMid    = 0.6
	zoomBracketFar    = 0.25
	zoomBracketLowest = 0.1

	lodViewportBuffer = 200.0 // px beyond the viewport still classified
	highNodeCount     = 2000  // above this, scenes degrade one notch
)

type distanceBand struct {
	limit float64
	level LODLevel
}

// Per-bracket distance bands; a node beyond the last band is culled unless
// the bracket ends with an explicit catch-all.
var (
	bandsClose   = []distanceBand{{0.35, LODFull}, {0.5, LODStandard}, {math.Inf(1), LODSimplified}}
	bandsMid     = []distanceBand{{0.2, LODFull}, {0.4, LODStandard}, {0.55, LODSimplified}}
	bandsFar     = []distanceBand{{0.25, LODStandard}, {0.5, LODSimplified}}
	bandsLowest  = []distanceBand{{0.2, LODStandard}, {0.45, LODSimplified}}
	bandsVeryLow = []distanceBand{{0.2, LODSimplified}}
)

// LODContext carries the per-frame inputs so classifying many nodes reuses
// one viewport and node-count computation.
type LODContext struct {
	minX, minY float64
	maxX, maxY float64
	centerX    float64
	centerY    float64
	invDiag    float64
	zoom       float64
	dense      bool
}

// NewLODContext prepares a classification context for one frame.
func NewLODContext(vp Viewport, totalNodes int) LODContext {
	diag := math.Hypot(vp.Width, vp.Height)
	inv := 0.0
	if diag > 0 {
		inv = 1 / diag
	}
	return LODContext{
		minX:    -lodViewportBuffer,
		minY:    -lodViewportBuffer,
		maxX:    vp.Width + lodViewportBuffer,
		maxY:    vp.Height + lodViewportBuffer,
		centerX: vp.Width / 2,
		centerY: vp.Height / 2,
		invDiag: inv,
		zoom:    vp.Zoom,
		dense:   totalNodes > highNodeCount,
	}
}

// Classify assigns a detail level from a node's screen position. Selected and
// hovered nodes are pinned to full detail regardless of distance or zoom.
// The function is pure: equal inputs always produce equal levels.
func (c *LODContext) Classify(screen Point, selected, hovered bool) LODLevel {
	if selected || hovered {
		return LODFull
	}
	if screen.X < c.minX || screen.X > c.maxX || screen.Y < c.minY || screen.Y > c.maxY {
		return LODCulled
	}

	nd := math.Hypot(screen.X-c.centerX, screen.Y-c.centerY) * c.invDiag

	var bands []distanceBand
	switch {
	case c.zoom >= zoomBracketClose:
		bands = bandsClose
	case c.zoom >= zoomBracketMid:
		bands = bandsMid
	case c.zoom >= zoomBracketFar:
		bands = bandsFar
	case c.zoom >= zoomBracketLowest:
		bands = bandsLowest
	default:
		// Below the lowest bracket only near-center nodes survive, and a
		// dense scene sheds those too.
		bands = bandsVeryLow
	}

	level := LODCulled
	for _, band := range bands {
		if nd <= band.limit {
			level = band.level
			break
		}
	}

	// Dense scenes pre-emptively shed detail; combined with the lowest
	// bracket's bands this culls everything outside the closest band when
	// far out on a large graph.
	if c.dense && level != LODCulled {
		level++
	}

	return level
}
