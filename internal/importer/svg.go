package importer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/piwi3910/SlabNest/internal/model"
	"golang.org/x/text/encoding/htmlindex"
)

const curveSegments = 16 // Straight pieces per flattened Bezier curve

// ImportSVG reads every closed shape in an SVG file as one part. SVG user
// units are taken as millimetres and the y axis is flipped to point up.
func ImportSVG(path string) ImportResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot open SVG file: %v", err)}}
	}
	return ImportSVGData(data, partLabel(path, "SVG"))
}

// ImportSVGData parses SVG markup. Supported elements are polygon, closed
// polylines, rect, circle and path (M, L, H, V, C, Q and Z, absolute and
// relative).
func ImportSVGData(data []byte, labelPrefix string) ImportResult {
	result := ImportResult{}
	if len(bytes.TrimSpace(data)) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader

	var outlines []model.Outline
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Cannot parse SVG: %v", err))
			return result
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		found, warn := svgElementOutlines(el)
		if warn != "" {
			result.Warnings = append(result.Warnings, warn)
		}
		outlines = append(outlines, found...)
	}

	for i := range outlines {
		outlines[i] = flipY(outlines[i])
	}
	if len(outlines) == 0 {
		result.Errors = append(result.Errors, "No closed shapes found in SVG file")
		return result
	}
	result.addOutlines(outlines, labelPrefix)
	return result
}

// charsetReader decodes non-UTF-8 documents using the WHATWG encoding index.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func svgElementOutlines(el xml.StartElement) ([]model.Outline, string) {
	attr := func(name string) string {
		for _, a := range el.Attr {
			if a.Name.Local == name {
				return a.Value
			}
		}
		return ""
	}

	switch el.Name.Local {
	case "polygon":
		pts, err := parsePoints(attr("points"))
		if err != nil {
			return nil, fmt.Sprintf("Skipped polygon: %v", err)
		}
		return []model.Outline{pts}, ""

	case "polyline":
		pts, err := parsePoints(attr("points"))
		if err != nil {
			return nil, fmt.Sprintf("Skipped polyline: %v", err)
		}
		if len(pts) < 4 || !near(pts[0], pts[len(pts)-1], chainTolerance) {
			return nil, "Skipped open polyline"
		}
		return []model.Outline{pts}, ""

	case "rect":
		x, y := parseLength(attr("x")), parseLength(attr("y"))
		w, h := parseLength(attr("width")), parseLength(attr("height"))
		if w <= 0 || h <= 0 {
			return nil, "Skipped rect without a positive size"
		}
		return []model.Outline{model.Rect(w, h).Translate(x, y)}, ""

	case "circle":
		r := parseLength(attr("r"))
		if r <= 0 {
			return nil, "Skipped circle without a positive radius"
		}
		return []model.Outline{circleOutline(parseLength(attr("cx")), parseLength(attr("cy")), r, circleSegments)}, ""

	case "path":
		outlines, open, err := parsePath(attr("d"))
		if err != nil {
			return nil, fmt.Sprintf("Skipped path: %v", err)
		}
		if open > 0 {
			return outlines, fmt.Sprintf("Ignored %d open subpath(s)", open)
		}
		return outlines, ""
	}
	return nil, ""
}

// parsePoints reads an SVG points list: "x1,y1 x2,y2 ..." with commas and
// whitespace interchangeable.
func parsePoints(s string) (model.Outline, error) {
	nums, err := parseNumbers(s)
	if err != nil {
		return nil, err
	}
	if len(nums)%2 != 0 {
		return nil, fmt.Errorf("odd number of coordinates")
	}
	pts := make(model.Outline, 0, len(nums)/2)
	for i := 0; i < len(nums); i += 2 {
		pts = append(pts, model.Point2D{X: nums[i], Y: nums[i+1]})
	}
	if len(pts) < 3 {
		return nil, fmt.Errorf("fewer than 3 points")
	}
	return pts, nil
}

// parseLength reads a coordinate attribute, accepting and ignoring a
// trailing "mm" or "px" unit.
func parseLength(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "mm"), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseNumbers(s string) ([]float64, error) {
	lx := pathLexer{s: s}
	var nums []float64
	for {
		lx.skipSeparators()
		if lx.done() {
			return nums, nil
		}
		v, err := lx.number()
		if err != nil {
			return nil, err
		}
		nums = append(nums, v)
	}
}

// parsePath converts path data into closed outlines, one per closed subpath.
// It returns the number of subpaths that were not closed.
func parsePath(d string) ([]model.Outline, int, error) {
	lx := pathLexer{s: d}
	var (
		outlines []model.Outline
		current  model.Outline
		pos      model.Point2D
		start    model.Point2D
		cmd      byte
		open     int
	)

	finish := func(closed bool) {
		if len(current) == 0 {
			return
		}
		if closed {
			outlines = append(outlines, current)
		} else if len(current) >= 4 && near(current[0], current[len(current)-1], chainTolerance) {
			outlines = append(outlines, current[:len(current)-1])
		} else if len(current) > 1 {
			open++
		}
		current = nil
	}

	for {
		lx.skipSeparators()
		if lx.done() {
			break
		}
		if c := lx.peek(); isPathCommand(c) {
			cmd = c
			lx.pos++
		} else if cmd == 0 {
			return nil, 0, fmt.Errorf("path data must start with a command, got %q", c)
		}

		rel := cmd >= 'a' && cmd <= 'z'
		base := model.Point2D{}
		if rel {
			base = pos
		}
		op := unicode.ToUpper(rune(cmd))
		if op != 'M' && op != 'Z' && len(current) == 0 {
			current = model.Outline{pos}
		}

		switch op {
		case 'M':
			p, err := lx.point()
			if err != nil {
				return nil, 0, err
			}
			finish(false)
			pos = model.Point2D{X: base.X + p.X, Y: base.Y + p.Y}
			start = pos
			current = model.Outline{pos}
			// Further pairs after a moveto are implicit linetos.
			if rel {
				cmd = 'l'
			} else {
				cmd = 'L'
			}
		case 'L':
			p, err := lx.point()
			if err != nil {
				return nil, 0, err
			}
			pos = model.Point2D{X: base.X + p.X, Y: base.Y + p.Y}
			current = append(current, pos)
		case 'H':
			v, err := lx.number()
			if err != nil {
				return nil, 0, err
			}
			pos = model.Point2D{X: base.X + v, Y: pos.Y}
			current = append(current, pos)
		case 'V':
			v, err := lx.number()
			if err != nil {
				return nil, 0, err
			}
			pos = model.Point2D{X: pos.X, Y: base.Y + v}
			current = append(current, pos)
		case 'C':
			var ctrl [3]model.Point2D
			for i := range ctrl {
				p, err := lx.point()
				if err != nil {
					return nil, 0, err
				}
				ctrl[i] = model.Point2D{X: base.X + p.X, Y: base.Y + p.Y}
			}
			current = append(current, cubic(pos, ctrl[0], ctrl[1], ctrl[2], curveSegments)...)
			pos = ctrl[2]
		case 'Q':
			var ctrl [2]model.Point2D
			for i := range ctrl {
				p, err := lx.point()
				if err != nil {
					return nil, 0, err
				}
				ctrl[i] = model.Point2D{X: base.X + p.X, Y: base.Y + p.Y}
			}
			current = append(current, quadratic(pos, ctrl[0], ctrl[1], curveSegments)...)
			pos = ctrl[1]
		case 'Z':
			finish(true)
			pos = start
			cmd = 0
		default:
			return nil, 0, fmt.Errorf("unsupported path command %q", cmd)
		}
	}
	finish(false)
	return outlines, open, nil
}

func isPathCommand(c byte) bool {
	return strings.IndexByte("MmLlHhVvCcSsQqTtAaZz", c) >= 0
}

// cubic returns the points after p0 along a cubic Bezier curve.
func cubic(p0, p1, p2, p3 model.Point2D, segments int) []model.Point2D {
	pts := make([]model.Point2D, segments)
	for i := 1; i <= segments; i++ {
		t := float64(i) / float64(segments)
		u := 1 - t
		a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
		pts[i-1] = model.Point2D{
			X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
			Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
		}
	}
	return pts
}

// quadratic returns the points after p0 along a quadratic Bezier curve.
func quadratic(p0, p1, p2 model.Point2D, segments int) []model.Point2D {
	pts := make([]model.Point2D, segments)
	for i := 1; i <= segments; i++ {
		t := float64(i) / float64(segments)
		u := 1 - t
		a, b, c := u*u, 2*u*t, t*t
		pts[i-1] = model.Point2D{
			X: a*p0.X + b*p1.X + c*p2.X,
			Y: a*p0.Y + b*p1.Y + c*p2.Y,
		}
	}
	return pts
}

func flipY(o model.Outline) model.Outline {
	flipped := make(model.Outline, len(o))
	for i, p := range o {
		flipped[i] = model.Point2D{X: p.X, Y: -p.Y}
	}
	return flipped
}

// pathLexer scans numbers and command letters from SVG path and points data.
type pathLexer struct {
	s   string
	pos int
}

func (l *pathLexer) done() bool { return l.pos >= len(l.s) }

func (l *pathLexer) peek() byte { return l.s[l.pos] }

func (l *pathLexer) skipSeparators() {
	for !l.done() {
		switch l.peek() {
		case ' ', '\t', '\n', '\r', ',':
			l.pos++
		default:
			return
		}
	}
}

func (l *pathLexer) point() (model.Point2D, error) {
	x, err := l.number()
	if err != nil {
		return model.Point2D{}, err
	}
	y, err := l.number()
	if err != nil {
		return model.Point2D{}, err
	}
	return model.Point2D{X: x, Y: y}, nil
}

// number reads one float. Numbers may run together without separators, as
// in "10-5" or ".5.5".
func (l *pathLexer) number() (float64, error) {
	l.skipSeparators()
	begin := l.pos
	if !l.done() && (l.peek() == '+' || l.peek() == '-') {
		l.pos++
	}
	digits, dot := 0, false
scan:
	for !l.done() {
		c := l.peek()
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			break scan
		}
		l.pos++
	}
	if digits > 0 && !l.done() && (l.peek() == 'e' || l.peek() == 'E') {
		mark := l.pos
		l.pos++
		if !l.done() && (l.peek() == '+' || l.peek() == '-') {
			l.pos++
		}
		expDigits := 0
		for !l.done() && l.peek() >= '0' && l.peek() <= '9' {
			l.pos++
			expDigits++
		}
		if expDigits == 0 {
			l.pos = mark
		}
	}
	if digits == 0 {
		if l.done() {
			return 0, fmt.Errorf("unexpected end of data")
		}
		return 0, fmt.Errorf("expected a number at offset %d", begin)
	}
	return strconv.ParseFloat(l.s[begin:l.pos], 64)
}
