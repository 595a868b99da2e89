package model

import "math"

// Point2D represents a 2D coordinate in mm.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Outline represents a closed polygon as a sequence of 2D points.
// The outline is implicitly closed: the last point connects back to the first.
// Outlines are treated as immutable; every transform returns a new slice.
type Outline []Point2D

// BoundingBox returns the min and max corners of the outline.
func (o Outline) BoundingBox() (min, max Point2D) {
	if len(o) == 0 {
		return Point2D{}, Point2D{}
	}
	min = Point2D{X: o[0].X, Y: o[0].Y}
	max = Point2D{X: o[0].X, Y: o[0].Y}
	for _, p := range o[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
	}
	return min, max
}

// Size returns the width and height of the bounding box.
func (o Outline) Size() (w, h float64) {
	min, max := o.BoundingBox()
	return max.X - min.X, max.Y - min.Y
}

// Translate shifts all points by dx, dy.
func (o Outline) Translate(dx, dy float64) Outline {
	result := make(Outline, len(o))
	for i, p := range o {
		result[i] = Point2D{X: p.X + dx, Y: p.Y + dy}
	}
	return result
}

// Rotate rotates the outline counter-clockwise about the origin by the given
// angle in degrees. Quarter turns are computed exactly so axis-aligned parts
// keep integral coordinates.
func (o Outline) Rotate(degrees float64) Outline {
	sin, cos := sinCosDegrees(degrees)
	result := make(Outline, len(o))
	for i, p := range o {
		result[i] = Point2D{
			X: p.X*cos - p.Y*sin,
			Y: p.X*sin + p.Y*cos,
		}
	}
	return result
}

// Normalize translates the outline so its bounding box starts at (0, 0).
func (o Outline) Normalize() Outline {
	if len(o) == 0 {
		return o
	}
	min, _ := o.BoundingBox()
	return o.Translate(-min.X, -min.Y)
}

// Place applies a placement transform: rotate about the origin, move the
// bounding box lower-left corner to the origin, then translate to (x, y).
// The resulting outline's bounding box therefore starts exactly at (x, y).
func (o Outline) Place(rotation, x, y float64) Outline {
	rotated := o.Rotate(rotation)
	min, _ := rotated.BoundingBox()
	return rotated.Translate(x-min.X, y-min.Y)
}

// SignedArea returns the shoelace area; positive for counter-clockwise winding.
func (o Outline) SignedArea() float64 {
	n := len(o)
	if n < 3 {
		return 0
	}
	var area float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += o[i].X * o[j].Y
		area -= o[j].X * o[i].Y
	}
	return area / 2
}

// Area returns the absolute polygon area.
func (o Outline) Area() float64 {
	return math.Abs(o.SignedArea())
}

// Centroid returns the area centroid, falling back to the vertex mean for
// zero-area outlines.
func (o Outline) Centroid() Point2D {
	a := o.SignedArea()
	n := len(o)
	if n == 0 {
		return Point2D{}
	}
	if math.Abs(a) < 1e-12 {
		var c Point2D
		for _, p := range o {
			c.X += p.X
			c.Y += p.Y
		}
		return Point2D{X: c.X / float64(n), Y: c.Y / float64(n)}
	}
	var cx, cy float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := o[i].X*o[j].Y - o[j].X*o[i].Y
		cx += (o[i].X + o[j].X) * cross
		cy += (o[i].Y + o[j].Y) * cross
	}
	return Point2D{X: cx / (6 * a), Y: cy / (6 * a)}
}

// Clean removes consecutive duplicate vertices and an explicit closing vertex
// equal to the first one.
func (o Outline) Clean(tolerance float64) Outline {
	result := make(Outline, 0, len(o))
	for _, p := range o {
		if len(result) > 0 && closeTo(result[len(result)-1], p, tolerance) {
			continue
		}
		result = append(result, p)
	}
	for len(result) > 1 && closeTo(result[0], result[len(result)-1], tolerance) {
		result = result[:len(result)-1]
	}
	return result
}

// IsFinite reports whether every coordinate is a finite number.
func (o Outline) IsFinite() bool {
	for _, p := range o {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

// Rect returns a counter-clockwise rectangular outline with its lower-left
// corner at the origin.
func Rect(w, h float64) Outline {
	return Outline{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
}

func closeTo(a, b Point2D, tolerance float64) bool {
	return math.Abs(a.X-b.X) <= tolerance && math.Abs(a.Y-b.Y) <= tolerance
}

// sinCosDegrees returns exact values for multiples of 90 degrees.
func sinCosDegrees(degrees float64) (sin, cos float64) {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	switch d {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	rad := d * math.Pi / 180
	return math.Sin(rad), math.Cos(rad)
}
