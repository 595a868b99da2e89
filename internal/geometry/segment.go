package geometry

import (
	"math"

	"github.com/piwi3910/SlabNest/internal/model"
)

// cross returns the z component of (b-a) x (c-a).
func cross(a, b, c model.Point2D) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// orientation returns -1, 0 or 1 with a tolerance scaled by segment length.
func orientation(a, b, c model.Point2D) int {
	v := cross(a, b, c)
	scale := math.Max(1, math.Hypot(b.X-a.X, b.Y-a.Y))
	switch {
	case v > Epsilon*scale:
		return 1
	case v < -Epsilon*scale:
		return -1
	}
	return 0
}

// onSegment reports whether c (already collinear with a-b) lies within the
// segment's extent.
func onSegment(a, b, c model.Point2D) bool {
	return c.X <= math.Max(a.X, b.X)+Epsilon && c.X >= math.Min(a.X, b.X)-Epsilon &&
		c.Y <= math.Max(a.Y, b.Y)+Epsilon && c.Y >= math.Min(a.Y, b.Y)-Epsilon
}

// SegmentsIntersect reports whether segments p1-p2 and q1-q2 share any point,
// touching endpoints included.
func SegmentsIntersect(p1, p2, q1, q2 model.Point2D) bool {
	o1 := orientation(p1, p2, q1)
	o2 := orientation(p1, p2, q2)
	o3 := orientation(q1, q2, p1)
	o4 := orientation(q1, q2, p2)

	if o1*o2 < 0 && o3*o4 < 0 {
		return true
	}
	if o1 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if o2 == 0 && onSegment(p1, p2, q2) {
		return true
	}
	if o3 == 0 && onSegment(q1, q2, p1) {
		return true
	}
	return o4 == 0 && onSegment(q1, q2, p2)
}

// ProperCross reports whether two segments cross at a single interior point
// of both. Touching at endpoints and collinear overlaps are not crossings.
func ProperCross(p1, p2, q1, q2 model.Point2D) bool {
	o1 := orientation(p1, p2, q1)
	o2 := orientation(p1, p2, q2)
	o3 := orientation(q1, q2, p1)
	o4 := orientation(q1, q2, p2)
	return o1*o2 < 0 && o3*o4 < 0
}

// collinearOverlap reports whether two collinear segments sharing an endpoint
// overlap along more than that endpoint.
func collinearOverlap(p1, p2, q1, q2 model.Point2D) bool {
	if orientation(p1, p2, q1) != 0 || orientation(p1, p2, q2) != 0 {
		return false
	}
	dx, dy := p2.X-p1.X, p2.Y-p1.Y
	length2 := dx*dx + dy*dy
	if length2 < Epsilon {
		return true
	}
	proj := func(c model.Point2D) float64 {
		return ((c.X-p1.X)*dx + (c.Y-p1.Y)*dy) / length2
	}
	lo, hi := proj(q1), proj(q2)
	if lo > hi {
		lo, hi = hi, lo
	}
	overlap := math.Min(1, hi) - math.Max(0, lo)
	return overlap*math.Sqrt(length2) > Epsilon
}

// pointSegmentDistance returns the distance from c to segment a-b.
func pointSegmentDistance(c, a, b model.Point2D) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	length2 := dx*dx + dy*dy
	if length2 == 0 {
		return math.Hypot(c.X-a.X, c.Y-a.Y)
	}
	t := ((c.X-a.X)*dx + (c.Y-a.Y)*dy) / length2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(c.X-(a.X+t*dx), c.Y-(a.Y+t*dy))
}

// SegmentDistance returns the minimum distance between two segments.
func SegmentDistance(p1, p2, q1, q2 model.Point2D) float64 {
	if SegmentsIntersect(p1, p2, q1, q2) {
		return 0
	}
	return math.Min(
		math.Min(pointSegmentDistance(p1, q1, q2), pointSegmentDistance(p2, q1, q2)),
		math.Min(pointSegmentDistance(q1, p1, p2), pointSegmentDistance(q2, p1, p2)),
	)
}
