// Package geometry implements the polygon predicates used by the nesting
// engine: boundary distance, strict containment, overlap with a required
// clearance, sheet bounds and simplicity checks.
//
// Coordinates follow model conventions: millimetres, x to the right, y up.
package geometry

import (
	"math"

	"github.com/piwi3910/SlabNest/internal/model"
)

// Epsilon absorbs floating point noise in millimetre-scale comparisons.
const Epsilon = 1e-9

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max model.Point2D
}

// BoxOf returns the bounding box of an outline.
func BoxOf(o model.Outline) Box {
	min, max := o.BoundingBox()
	return Box{Min: min, Max: max}
}

// Width returns the box width.
func (b Box) Width() float64 { return b.Max.X - b.Min.X }

// Height returns the box height.
func (b Box) Height() float64 { return b.Max.Y - b.Min.Y }

// Gap returns the separation between two boxes along the axis where they are
// furthest apart. Overlapping boxes return a negative or zero gap.
func (b Box) Gap(o Box) float64 {
	dx := math.Max(o.Min.X-b.Max.X, b.Min.X-o.Max.X)
	dy := math.Max(o.Min.Y-b.Max.Y, b.Min.Y-o.Max.Y)
	return math.Max(dx, dy)
}

// Conflict reports whether two outlines violate the required spacing: their
// boundaries are closer than spacing, or one is wholly or partly inside the
// other. With spacing == 0, outlines that only share boundary points or edges
// do not conflict; with spacing > 0 exact tangency is a conflict.
func Conflict(a, b model.Outline, spacing float64) bool {
	if len(a) < 3 || len(b) < 3 {
		return false
	}
	if BoxOf(a).Gap(BoxOf(b)) >= spacing-Epsilon && spacing > 0 {
		return false
	}
	if spacing == 0 && BoxOf(a).Gap(BoxOf(b)) >= -Epsilon {
		return false
	}

	if spacing > 0 {
		if Distance(a, b) < spacing-Epsilon {
			return true
		}
		// Boundaries are far enough apart; only nesting one inside the
		// other can still conflict.
		return ContainsPoint(b, a[0]) || ContainsPoint(a, b[0])
	}
	return InteriorsOverlap(a, b)
}

// InteriorsOverlap reports whether the interiors of two simple polygons
// intersect. Shared boundary points and collinear shared edges do not count.
func InteriorsOverlap(a, b model.Outline) bool {
	na, nb := len(a), len(b)
	for i := 0; i < na; i++ {
		a1, a2 := a[i], a[(i+1)%na]
		for j := 0; j < nb; j++ {
			if ProperCross(a1, a2, b[j], b[(j+1)%nb]) {
				return true
			}
		}
	}
	return anyInteriorSampleInside(a, b) || anyInteriorSampleInside(b, a)
}

// anyInteriorSampleInside tests the vertices of a, and points just inside a
// next to each edge midpoint, for strict containment in b. This catches
// identical outlines and outlines whose vertices all sit on b's boundary.
func anyInteriorSampleInside(a, b model.Outline) bool {
	n := len(a)
	orient := 1.0
	if a.SignedArea() < 0 {
		orient = -1
	}
	for i := 0; i < n; i++ {
		if ContainsPoint(b, a[i]) {
			return true
		}
		p, q := a[i], a[(i+1)%n]
		dx, dy := q.X-p.X, q.Y-p.Y
		length := math.Hypot(dx, dy)
		if length < Epsilon {
			continue
		}
		// Inward normal for counter-clockwise winding is the left normal.
		step := math.Min(length, 1) * 1e-4
		nx, ny := -dy/length*orient*step, dx/length*orient*step
		mid := model.Point2D{X: (p.X+q.X)/2 + nx, Y: (p.Y+q.Y)/2 + ny}
		if ContainsPoint(b, mid) {
			return true
		}
	}
	return false
}

// Distance returns the minimum distance between the boundaries of two
// outlines. Crossing or touching boundaries return 0.
func Distance(a, b model.Outline) float64 {
	best := math.Inf(1)
	na, nb := len(a), len(b)
	for i := 0; i < na; i++ {
		a1, a2 := a[i], a[(i+1)%na]
		for j := 0; j < nb; j++ {
			d := SegmentDistance(a1, a2, b[j], b[(j+1)%nb])
			if d < best {
				best = d
				if best == 0 {
					return 0
				}
			}
		}
	}
	return best
}

// ContainsPoint reports whether p lies strictly inside the outline. Points on
// (or within Epsilon of) the boundary are not contained.
func ContainsPoint(o model.Outline, p model.Point2D) bool {
	if onBoundary(o, p) {
		return false
	}
	return windingInside(o, p)
}

func onBoundary(o model.Outline, p model.Point2D) bool {
	n := len(o)
	for i := 0; i < n; i++ {
		if pointSegmentDistance(p, o[i], o[(i+1)%n]) <= Epsilon {
			return true
		}
	}
	return false
}

// windingInside is the even-odd ray casting test.
func windingInside(o model.Outline, p model.Point2D) bool {
	inside := false
	n := len(o)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := o[i], o[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			x := (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// WithinSheet reports whether the outline fits inside a sheet of the given
// size, keeping a margin of spacing/2 from every sheet edge.
func WithinSheet(o model.Outline, width, height, spacing float64) bool {
	margin := spacing / 2
	b := BoxOf(o)
	return b.Min.X >= margin-Epsilon && b.Min.Y >= margin-Epsilon &&
		b.Max.X <= width-margin+Epsilon && b.Max.Y <= height-margin+Epsilon
}

// IsSimple reports whether no two non-adjacent edges of the outline intersect
// and no adjacent edges fold back onto each other.
func IsSimple(o model.Outline) bool {
	n := len(o)
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := o[i], o[(i+1)%n]
		for j := i + 1; j < n; j++ {
			b1, b2 := o[j], o[(j+1)%n]
			adjacent := j == i+1 || (i == 0 && j == n-1)
			if adjacent {
				// Adjacent edges share one vertex; they may only overlap
				// beyond it when the polygon doubles back.
				if collinearOverlap(a1, a2, b1, b2) {
					return false
				}
				continue
			}
			if SegmentsIntersect(a1, a2, b1, b2) {
				return false
			}
		}
	}
	return true
}
