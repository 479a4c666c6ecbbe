package render

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// BudgetTier caps rendered element counts for one zoom range. Tiers are
// matched top-down by MinZoom, so wider budgets apply when zoomed in.
type BudgetTier struct {
	MinZoom float64 `yaml:"minZoom" json:"minZoom"`
	Nodes   int     `yaml:"nodes" json:"nodes"`
	Edges   int     `yaml:"edges" json:"edges"`
}

// BundlerOptions tunes the edge bundling pass.
type BundlerOptions struct {
	MinEdges         int     `yaml:"minEdges" json:"minEdges"`                 // below this, edges stay straight
	AngularTolerance float64 `yaml:"angularTolerance" json:"angularTolerance"` // radians
	CentroidDistance float64 `yaml:"centroidDistance" json:"centroidDistance"` // px
	Strength         float64 `yaml:"strength" json:"strength"`                 // global bundling strength 0..1
	SeparationOffset float64 `yaml:"separationOffset" json:"separationOffset"` // px, unbundled edge curvature
}

// Options configures the virtual renderer.
type Options struct {
	LeafSize int     `yaml:"leafSize" json:"leafSize"`
	BufferPx float64 `yaml:"bufferPx" json:"bufferPx"` // viewport culling buffer

	Budgets          []BudgetTier `yaml:"budgets" json:"budgets"`
	DenseBudgetScale float64      `yaml:"denseBudgetScale" json:"denseBudgetScale"` // applied above highNodeCount

	// Minimum on-screen size in px per LOD level; smaller elements drop.
	MinScreenSize [4]float64 `yaml:"minScreenSize" json:"minScreenSize"`

	// Node priority weights.
	SizeWeight       float64 `yaml:"sizeWeight" json:"sizeWeight"`
	ImportanceWeight float64 `yaml:"importanceWeight" json:"importanceWeight"`
	CenterWeight     float64 `yaml:"centerWeight" json:"centerWeight"`

	// Edge priority weights.
	EdgeWeightFactor     float64 `yaml:"edgeWeightFactor" json:"edgeWeightFactor"`
	EdgeLengthFactor     float64 `yaml:"edgeLengthFactor" json:"edgeLengthFactor"`
	EdgeImportanceFactor float64 `yaml:"edgeImportanceFactor" json:"edgeImportanceFactor"`

	Bundler BundlerOptions `yaml:"bundler" json:"bundler"`
}

// DefaultOptions returns the renderer defaults.
func DefaultOptions() Options {
	return Options{
		LeafSize: defaultLeafSize,
		BufferPx: lodViewportBuffer,
		Budgets: []BudgetTier{
			{MinZoom: zoomBracketClose, Nodes: 800, Edges: 1200},
			{MinZoom: zoomBracketMid, Nodes: 500, Edges: 800},
			{MinZoom: zoomBracketFar, Nodes: 300, Edges: 500},
			{MinZoom: 0, Nodes: 150, Edges: 250},
		},
		DenseBudgetScale:     0.5,
		MinScreenSize:        [4]float64{0.5, 1, 3, 0},
		SizeWeight:           0.4,
		ImportanceWeight:     0.35,
		CenterWeight:         0.25,
		EdgeWeightFactor:     0.5,
		EdgeLengthFactor:     0.2,
		EdgeImportanceFactor: 0.3,
		Bundler: BundlerOptions{
			MinEdges:         20,
			AngularTolerance: 0.15,
			CentroidDistance: 120,
			Strength:         0.8,
			SeparationOffset: 4,
		},
	}
}

// withDefaults fills zero-valued fields, mirroring how unset options pick up
// defaults at construction.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.LeafSize <= 0 {
		o.LeafSize = def.LeafSize
	}
	if o.BufferPx <= 0 {
		o.BufferPx = def.BufferPx
	}
	if len(o.Budgets) == 0 {
		o.Budgets = def.Budgets
	} else {
		// budgetFor matches top-down, so tiers must run from high zoom to low.
		sort.Slice(o.Budgets, func(i, j int) bool {
			return o.Budgets[i].MinZoom > o.Budgets[j].MinZoom
		})
	}
	if o.DenseBudgetScale <= 0 {
		o.DenseBudgetScale = def.DenseBudgetScale
	}
	if o.SizeWeight == 0 && o.ImportanceWeight == 0 && o.CenterWeight == 0 {
		o.SizeWeight = def.SizeWeight
		o.ImportanceWeight = def.ImportanceWeight
		o.CenterWeight = def.CenterWeight
	}
	if o.EdgeWeightFactor == 0 && o.EdgeLengthFactor == 0 && o.EdgeImportanceFactor == 0 {
		o.EdgeWeightFactor = def.EdgeWeightFactor
		o.EdgeLengthFactor = def.EdgeLengthFactor
		o.EdgeImportanceFactor = def.EdgeImportanceFactor
	}
	if o.Bundler.MinEdges <= 0 {
		o.Bundler.MinEdges = def.Bundler.MinEdges
	}
	if o.Bundler.AngularTolerance <= 0 {
		o.Bundler.AngularTolerance = def.Bundler.AngularTolerance
	}
	if o.Bundler.CentroidDistance <= 0 {
		o.Bundler.CentroidDistance = def.Bundler.CentroidDistance
	}
	if o.Bundler.Strength <= 0 {
		o.Bundler.Strength = def.Bundler.Strength
	}
	if o.Bundler.SeparationOffset <= 0 {
		o.Bundler.SeparationOffset = def.Bundler.SeparationOffset
	}
	return o
}

// Validate rejects configurations that would misbehave deep inside the frame
// loop, so bad budgets fail loudly at construction instead.
func (o Options) Validate() error {
	if len(o.Budgets) == 0 {
		return fmt.Errorf("render: at least one budget tier is required")
	}
	for i, tier := range o.Budgets {
		if tier.Nodes <= 0 {
			return fmt.Errorf("render: budget tier %d: node budget must be positive, got %d", i, tier.Nodes)
		}
		if tier.Edges <= 0 {
			return fmt.Errorf("render: budget tier %d: edge budget must be positive, got %d", i, tier.Edges)
		}
		if tier.MinZoom < 0 {
			return fmt.Errorf("render: budget tier %d: minZoom must not be negative, got %f", i, tier.MinZoom)
		}
	}
	if o.DenseBudgetScale <= 0 || o.DenseBudgetScale > 1 {
		return fmt.Errorf("render: denseBudgetScale must be in (0,1], got %f", o.DenseBudgetScale)
	}
	if o.Bundler.Strength <= 0 || o.Bundler.Strength > 1 {
		return fmt.Errorf("render: bundler strength must be in (0,1], got %f", o.Bundler.Strength)
	}
	return nil
}

// LoadOptions reads renderer options from a YAML file, filling unset fields
// with defaults.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read options file: %w", err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse options file: %w", err)
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// budgetFor picks the matching tier for a zoom level, scaled down for dense
// scenes.
func (o Options) budgetFor(zoom float64, dense bool) (nodeBudget, edgeBudget int) {
	tier := o.Budgets[len(o.Budgets)-1]
	for _, t := range o.Budgets {
		if zoom >= t.MinZoom {
			tier = t
			break
		}
	}
	nodeBudget, edgeBudget = tier.Nodes, tier.Edges
	if dense {
		nodeBudget = int(float64(nodeBudget) * o.DenseBudgetScale)
		edgeBudget = int(float64(edgeBudget) * o.DenseBudgetScale)
		if nodeBudget < 1 {
			nodeBudget = 1
		}
		if edgeBudget < 1 {
			edgeBudget = 1
		}
	}
	return nodeBudget, edgeBudget
}
