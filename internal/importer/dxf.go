package importer

import (
	"fmt"
	"math"
	"sort"

	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/yofu/dxf"
	"github.com/yofu/dxf/entity"
)

const (
	circleSegments = 64 // Polygon vertices used to approximate a full circle
	arcSegments    = 32 // Vertices per ARC entity or bulged polyline edge
	chainTolerance = 0.01
	minFeature     = 0.01 // Smallest width or height kept, mm
)

// edge is a loose boundary piece read from LINE or ARC entities. Edges are
// chained end to end into closed outlines.
type edge struct {
	from model.Point2D
	to   model.Point2D
}

// ImportDXF reads every closed shape in a DXF file as one part. Closed shapes
// are LWPOLYLINEs (with bulges expanded to arcs), CIRCLEs, and chains of
// LINE and ARC entities whose endpoints meet.
func ImportDXF(path string) ImportResult {
	return importDXF(path, partLabel(path, "DXF"))
}

func importDXF(path, labelPrefix string) ImportResult {
	result := ImportResult{}

	drawing, err := dxf.Open(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open DXF file: %v", err))
		return result
	}

	entities := drawing.Entities()
	if len(entities) == 0 {
		result.Errors = append(result.Errors, "DXF file contains no entities")
		return result
	}

	var outlines []model.Outline
	var loose []edge
	skipped := map[string]int{}

	for _, ent := range entities {
		switch e := ent.(type) {
		case *entity.LwPolyline:
			outline := polylineOutline(e)
			if len(outline) < 3 {
				result.Warnings = append(result.Warnings, "Skipped LWPOLYLINE with fewer than 3 vertices")
				continue
			}
			outlines = append(outlines, outline)
		case *entity.Circle:
			outlines = append(outlines, circleOutline(e.Center[0], e.Center[1], e.Radius, circleSegments))
		case *entity.Arc:
			loose = append(loose, arcEdges(e, arcSegments)...)
		case *entity.Line:
			loose = append(loose, edge{
				from: model.Point2D{X: e.Start[0], Y: e.Start[1]},
				to:   model.Point2D{X: e.End[0], Y: e.End[1]},
			})
		default:
			skipped[fmt.Sprintf("%T", ent)]++
		}
	}

	chained, open := chainEdges(loose, chainTolerance)
	outlines = append(outlines, chained...)
	if open > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Ignored %d open LINE/ARC chain(s)", open))
	}
	if n := len(skipped); n > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Skipped %d unsupported entity type(s)", n))
	}

	if len(outlines) == 0 {
		result.Errors = append(result.Errors, "No closed shapes found in DXF file")
		return result
	}

	result.addOutlines(outlines, labelPrefix)
	return result
}

// addOutlines cleans, normalizes and appends outlines as single-quantity
// parts, skipping degenerate ones.
func (r *ImportResult) addOutlines(outlines []model.Outline, labelPrefix string) {
	n := 0
	for _, raw := range outlines {
		outline := raw.Clean(1e-6).Normalize()
		w, h := outline.Size()
		if len(outline) < 3 || w < minFeature || h < minFeature {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Skipped degenerate shape (%.2f x %.2f mm)", w, h))
			continue
		}
		n++
		r.Parts = append(r.Parts, model.NewPart(fmt.Sprintf("%s %d", labelPrefix, n), outline, 1))
	}
}

// polylineOutline converts an LWPOLYLINE to an outline. A non-zero bulge on a
// vertex turns the edge to the next vertex into an arc.
func polylineOutline(lw *entity.LwPolyline) model.Outline {
	n := len(lw.Vertices)
	outline := make(model.Outline, 0, n)
	for i := 0; i < n; i++ {
		cur := model.Point2D{X: lw.Vertices[i][0], Y: lw.Vertices[i][1]}
		var bulge float64
		if i < len(lw.Bulges) {
			bulge = lw.Bulges[i]
		}
		if math.Abs(bulge) <= 1e-9 {
			outline = append(outline, cur)
			continue
		}
		j := (i + 1) % n
		next := model.Point2D{X: lw.Vertices[j][0], Y: lw.Vertices[j][1]}
		pts := bulgeArc(cur, next, bulge, arcSegments)
		outline = append(outline, pts[:len(pts)-1]...)
	}
	return outline
}

// bulgeArc returns points from p1 to p2 (both included) along the arc given
// by a DXF bulge, the tangent of a quarter of the included angle. Positive
// bulges run counter-clockwise.
func bulgeArc(p1, p2 model.Point2D, bulge float64, segments int) []model.Point2D {
	dx, dy := p2.X-p1.X, p2.Y-p1.Y
	chord := math.Hypot(dx, dy)
	if chord < 1e-9 {
		return []model.Point2D{p1, p2}
	}

	sweep := 4 * math.Atan(bulge)
	radius := chord / (2 * math.Abs(math.Sin(sweep/2)))

	// Center lies on the chord bisector at distance d; its side follows the
	// sign of the bulge and whether the arc is larger than a half circle.
	d := math.Sqrt(math.Max(radius*radius-chord*chord/4, 0))
	if math.Abs(bulge) > 1 {
		d = -d
	}
	if bulge < 0 {
		d = -d
	}
	cx := (p1.X+p2.X)/2 - dy/chord*d
	cy := (p1.Y+p2.Y)/2 + dx/chord*d

	start := math.Atan2(p1.Y-cy, p1.X-cx)
	pts := make([]model.Point2D, segments+1)
	for i := 0; i <= segments; i++ {
		a := start + sweep*float64(i)/float64(segments)
		pts[i] = model.Point2D{X: cx + radius*math.Cos(a), Y: cy + radius*math.Sin(a)}
	}
	pts[segments] = p2
	return pts
}

// circleOutline approximates a circle as a regular counter-clockwise polygon.
func circleOutline(cx, cy, r float64, segments int) model.Outline {
	outline := make(model.Outline, segments)
	for i := range outline {
		a := 2 * math.Pi * float64(i) / float64(segments)
		outline[i] = model.Point2D{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)}
	}
	return outline
}

// arcEdges splits an ARC entity into straight edges. DXF arcs always run
// counter-clockwise from the start to the end angle.
func arcEdges(a *entity.Arc, segments int) []edge {
	cx, cy, r := a.Circle.Center[0], a.Circle.Center[1], a.Circle.Radius
	start := a.Angle[0] * math.Pi / 180
	end := a.Angle[1] * math.Pi / 180
	if end <= start {
		end += 2 * math.Pi
	}

	edges := make([]edge, segments)
	prev := model.Point2D{X: cx + r*math.Cos(start), Y: cy + r*math.Sin(start)}
	for i := 1; i <= segments; i++ {
		t := start + (end-start)*float64(i)/float64(segments)
		p := model.Point2D{X: cx + r*math.Cos(t), Y: cy + r*math.Sin(t)}
		edges[i-1] = edge{from: prev, to: p}
		prev = p
	}
	return edges
}

// chainEdges joins edges whose endpoints lie within tolerance into closed
// outlines, largest first. It also reports how many chains did not close.
func chainEdges(edges []edge, tolerance float64) ([]model.Outline, int) {
	used := make([]bool, len(edges))
	var outlines []model.Outline
	open := 0

	for start := range edges {
		if used[start] {
			continue
		}
		used[start] = true
		chain := []model.Point2D{edges[start].from, edges[start].to}

		for extended := true; extended; {
			extended = false
			tail := chain[len(chain)-1]
			for i, e := range edges {
				if used[i] {
					continue
				}
				switch {
				case near(tail, e.from, tolerance):
					chain = append(chain, e.to)
				case near(tail, e.to, tolerance):
					chain = append(chain, e.from)
				default:
					continue
				}
				used[i] = true
				extended = true
				break
			}
		}

		if len(chain) < 4 || !near(chain[0], chain[len(chain)-1], tolerance) {
			open++
			continue
		}
		outlines = append(outlines, model.Outline(chain[:len(chain)-1]))
	}

	sort.SliceStable(outlines, func(i, j int) bool {
		return outlines[i].Area() > outlines[j].Area()
	})
	return outlines, open
}

func near(a, b model.Point2D, tolerance float64) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) <= tolerance
}
