package engine

import (
	"math"
	"sort"

	"github.com/piwi3910/SlabNest/internal/geometry"
	"github.com/piwi3910/SlabNest/internal/model"
)

const epsilon = geometry.Epsilon

// sheetState tracks the outlines already placed on one sheet.
type sheetState struct {
	outlines []model.Outline
	boxes    []geometry.Box
}

func (s *sheetState) add(o model.Outline) {
	s.outlines = append(s.outlines, o)
	s.boxes = append(s.boxes, geometry.BoxOf(o))
}

func (s *sheetState) empty() bool {
	return len(s.outlines) == 0
}

// slot is a feasible position for one shape.
type slot struct {
	x, y    float64
	outline model.Outline
}

// candidates returns the bottom-left-fill anchor positions for the next part
// on a sheet: the sheet margin plus, for every placed part, its right edge
// plus spacing and its own left edge (and the same for y). Positions are
// de-duplicated and ordered by y, then x, so lower rows win first.
func (o *Optimizer) candidates(s *sheetState) []model.Point2D {
	margin := o.cfg.Spacing / 2
	xs := []float64{margin}
	ys := []float64{margin}
	for _, b := range s.boxes {
		xs = append(xs, b.Max.X+o.cfg.Spacing, b.Min.X)
		ys = append(ys, b.Max.Y+o.cfg.Spacing, b.Min.Y)
	}
	xs = uniqueSorted(xs)
	ys = uniqueSorted(ys)

	points := make([]model.Point2D, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			points = append(points, model.Point2D{X: x, Y: y})
		}
	}
	return points
}

func uniqueSorted(values []float64) []float64 {
	sort.Float64s(values)
	out := values[:0]
	for _, v := range values {
		if len(out) > 0 && math.Abs(out[len(out)-1]-v) <= epsilon {
			continue
		}
		out = append(out, v)
	}
	return out
}

// findSlot returns the first candidate position at which the shape is inside
// the sheet margins and clear of every placed outline. Positions rejected by
// skip are passed over.
func (o *Optimizer) findSlot(s *sheetState, sh shape, skip func(x, y float64) bool) (slot, bool) {
	margin := o.cfg.Spacing / 2
	maxX := o.sheet.Width - margin - sh.w
	maxY := o.sheet.Height - margin - sh.h
	if maxX < margin-epsilon || maxY < margin-epsilon {
		return slot{}, false
	}

	for _, c := range o.candidates(s) {
		if c.X > maxX+epsilon || c.Y > maxY+epsilon {
			continue
		}
		if skip != nil && skip(c.X, c.Y) {
			continue
		}
		placed := sh.outline.Translate(c.X, c.Y)
		if !geometry.WithinSheet(placed, o.sheet.Width, o.sheet.Height, o.cfg.Spacing) {
			continue
		}
		if o.collides(s, placed) {
			continue
		}
		return slot{x: c.X, y: c.Y, outline: placed}, true
	}
	return slot{}, false
}

// collides reports whether the outline conflicts with anything on the sheet.
func (o *Optimizer) collides(s *sheetState, placed model.Outline) bool {
	box := geometry.BoxOf(placed)
	for i, other := range s.outlines {
		gap := box.Gap(s.boxes[i])
		if o.cfg.Spacing > 0 && gap >= o.cfg.Spacing-epsilon {
			continue
		}
		if o.cfg.Spacing == 0 && gap >= -epsilon {
			continue
		}
		if geometry.Conflict(placed, other, o.cfg.Spacing) {
			return true
		}
	}
	return false
}
