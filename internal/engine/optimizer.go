// Package engine implements the nesting engine: the bottom-left-fill
// candidate generator, the constructive placement strategy, the layout
// evaluator and the local-search optimizer that improves on it.
package engine

import (
	"math/rand"
	"sort"

	"github.com/piwi3910/SlabNest/internal/logger"
	"github.com/piwi3910/SlabNest/internal/model"
)

var log = logger.ForComponent("engine")

// Instance is one copy of a part that must appear in the layout.
type Instance struct {
	Part      model.Part
	PartIndex int // Index into the de-duplicated part list
	Copy      int // 0-based copy number
	Area      float64
}

// Expand expands parts by quantity into individual placement instances,
// keeping input order.
func Expand(parts []model.Part) []Instance {
	var expanded []Instance
	for i, p := range parts {
		area := p.Outline.Area()
		for c := 0; c < p.Copies(); c++ {
			expanded = append(expanded, Instance{
				Part:      p,
				PartIndex: i,
				Copy:      c,
				Area:      area,
			})
		}
	}
	return expanded
}

// shape is a part outline pre-rotated to one allowed angle and normalized so
// its bounding box starts at the origin.
type shape struct {
	rotation float64
	outline  model.Outline
	w, h     float64
}

// Optimizer owns the read-only inputs of one nesting run. It is not safe for
// concurrent use; concurrent runs each build their own Optimizer.
type Optimizer struct {
	cfg       model.NestingConfig
	sheet     model.Sheet
	instances []Instance
	rotations []float64
	shapes    [][]shape // [PartIndex][rotation index]
	rng       *rand.Rand
	observer  func(Iteration)
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithSource injects the random source used for neighbor selection.
func WithSource(src rand.Source) Option {
	return func(o *Optimizer) {
		o.rng = rand.New(src)
	}
}

// WithObserver registers a callback invoked after every search iteration.
func WithObserver(fn func(Iteration)) Option {
	return func(o *Optimizer) {
		o.observer = fn
	}
}

// New creates an optimizer for the given instances. Unless WithSource is
// given, neighbor selection is seeded from cfg.Seed (or model.DefaultSeed).
func New(cfg model.NestingConfig, instances []Instance, opts ...Option) *Optimizer {
	o := &Optimizer{
		cfg:       cfg,
		sheet:     cfg.Sheet(),
		instances: instances,
		rotations: cfg.Rotations(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = model.DefaultSeed
		}
		o.rng = rand.New(rand.NewSource(seed))
	}
	o.buildShapes()
	return o
}

func (o *Optimizer) buildShapes() {
	maxPart := -1
	for _, inst := range o.instances {
		if inst.PartIndex > maxPart {
			maxPart = inst.PartIndex
		}
	}
	o.shapes = make([][]shape, maxPart+1)
	for _, inst := range o.instances {
		if o.shapes[inst.PartIndex] != nil {
			continue
		}
		o.shapes[inst.PartIndex] = ShapesFor(inst.Part.Outline, o.rotations)
	}
}

// ShapesFor pre-rotates an outline to every allowed angle.
func ShapesFor(outline model.Outline, rotations []float64) []shape {
	shapes := make([]shape, len(rotations))
	for i, angle := range rotations {
		normalized := outline.Rotate(angle).Normalize()
		w, h := normalized.Size()
		shapes[i] = shape{rotation: angle, outline: normalized, w: w, h: h}
	}
	return shapes
}

// FitsEmptySheet reports whether the outline fits an empty sheet at any of
// the allowed rotations, honouring the spacing margin. A part that fails
// this can never be placed.
func FitsEmptySheet(outline model.Outline, cfg model.NestingConfig) bool {
	usableW := cfg.SheetWidth - cfg.Spacing
	usableH := cfg.SheetHeight - cfg.Spacing
	for _, s := range ShapesFor(outline, cfg.Rotations()) {
		if s.w <= usableW+epsilon && s.h <= usableH+epsilon {
			return true
		}
	}
	return false
}

// InitialSequence orders instances by decreasing outline area, larger parts
// first, with ties kept in input order.
func (o *Optimizer) InitialSequence() []int {
	seq := make([]int, len(o.instances))
	for i := range seq {
		seq[i] = i
	}
	sort.SliceStable(seq, func(i, j int) bool {
		return o.instances[seq[i]].Area > o.instances[seq[j]].Area
	})
	return seq
}

// Sheet returns the sheet the optimizer packs onto.
func (o *Optimizer) Sheet() model.Sheet {
	return o.sheet
}
