package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/piwi3910/SlabNest/internal/model"
)

type svgDoc struct {
	XMLName     xml.Name   `xml:"svg"`
	Xmlns       string     `xml:"xmlns,attr"`
	Width       string     `xml:"width,attr"`
	Height      string     `xml:"height,attr"`
	ViewBox     string     `xml:"viewBox,attr"`
	SheetWidth  float64    `xml:"data-sheet-width,attr"`
	SheetHeight float64    `xml:"data-sheet-height,attr"`
	Sheets      []svgSheet `xml:"g"`
}

type svgSheet struct {
	ID        string    `xml:"id,attr"`
	Index     int       `xml:"data-sheet,attr"`
	Transform string    `xml:"transform,attr"`
	Border    svgBorder `xml:"rect"`
	Parts     []svgPart `xml:"polygon"`
}

type svgBorder struct {
	Width       string `xml:"width,attr"`
	Height      string `xml:"height,attr"`
	Fill        string `xml:"fill,attr"`
	Stroke      string `xml:"stroke,attr"`
	StrokeWidth string `xml:"stroke-width,attr"`
}

type svgPart struct {
	PartID   string  `xml:"data-part-id,attr"`
	Instance int     `xml:"data-instance,attr"`
	Rotation float64 `xml:"data-rotation,attr"`
	Points   string  `xml:"points,attr"`
	Fill     string  `xml:"fill,attr"`
	Stroke   string  `xml:"stroke,attr"`
	Title    string  `xml:"title,omitempty"`
}

// RenderSVG writes the layout as one SVG document with the sheets side by
// side. Each part is a polygon carrying its part id, instance and rotation,
// so ParseSVGPlacements can recover the placements. Output is deterministic.
func RenderSVG(w io.Writer, job Job) error {
	sheets, err := layoutSheets(job)
	if err != nil {
		return err
	}
	sheet := job.Result.Sheet

	totalW := float64(len(sheets))*sheet.Width + float64(len(sheets)-1)*sheetGap
	doc := svgDoc{
		Xmlns:       "http://www.w3.org/2000/svg",
		Width:       num(totalW) + "mm",
		Height:      num(sheet.Height) + "mm",
		ViewBox:     fmt.Sprintf("0 0 %s %s", num(totalW), num(sheet.Height)),
		SheetWidth:  sheet.Width,
		SheetHeight: sheet.Height,
	}

	for _, s := range sheets {
		g := svgSheet{
			ID:        fmt.Sprintf("sheet-%d", s.Index+1),
			Index:     s.Index,
			Transform: fmt.Sprintf("translate(%s,0)", num(float64(s.Index)*(sheet.Width+sheetGap))),
			Border: svgBorder{
				Width:       num(sheet.Width),
				Height:      num(sheet.Height),
				Fill:        "#d2b48c",
				Stroke:      "#646464",
				StrokeWidth: "1",
			},
		}
		for i, p := range s.Parts {
			g.Parts = append(g.Parts, svgPart{
				PartID:   p.PartID,
				Instance: p.Instance,
				Rotation: p.Rotation,
				Points:   svgPoints(p.Outline, sheet.Height),
				Fill:     partColors[i%len(partColors)].hex(),
				Stroke:   "#1e1e1e",
				Title:    p.Label,
			})
		}
		doc.Sheets = append(doc.Sheets, g)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode SVG: %w", err)
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// ExportSVG writes the SVG rendering to path.
func ExportSVG(path string, job Job) error {
	return writeFile(path, func(w io.Writer) error { return RenderSVG(w, job) })
}

// ParseSVGPlacements reads a document produced by RenderSVG back into
// placements and the sheet size. Positions are recovered from the polygon
// geometry; the rotation comes from the data-rotation attribute.
func ParseSVGPlacements(r io.Reader) ([]model.Placement, model.Sheet, error) {
	var doc svgDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, model.Sheet{}, fmt.Errorf("failed to parse SVG: %w", err)
	}
	sheet := model.Sheet{Width: doc.SheetWidth, Height: doc.SheetHeight}
	if sheet.Width <= 0 || sheet.Height <= 0 {
		return nil, model.Sheet{}, fmt.Errorf("SVG carries no sheet size")
	}

	var placements []model.Placement
	for _, g := range doc.Sheets {
		for _, p := range g.Parts {
			outline, err := parseSVGPoints(p.Points, sheet.Height)
			if err != nil {
				return nil, model.Sheet{}, fmt.Errorf("part %q: %w", p.PartID, err)
			}
			min, _ := outline.BoundingBox()
			placements = append(placements, model.Placement{
				PartID:     p.PartID,
				Instance:   p.Instance,
				SheetIndex: g.Index,
				X:          min.X,
				Y:          min.Y,
				Rotation:   p.Rotation,
				Outline:    outline,
			})
		}
	}
	return placements, sheet, nil
}

// svgPoints formats an outline in SVG user space, where y grows downwards.
func svgPoints(o model.Outline, height float64) string {
	parts := make([]string, len(o))
	for i, p := range o {
		parts[i] = num(p.X) + "," + num(height-p.Y)
	}
	return strings.Join(parts, " ")
}

func parseSVGPoints(s string, height float64) (model.Outline, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return nil, fmt.Errorf("polygon needs at least 3 points, got %d", len(fields))
	}
	outline := make(model.Outline, len(fields))
	for i, f := range fields {
		xs, ys, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("malformed point %q", f)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed point %q: %w", f, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed point %q: %w", f, err)
		}
		outline[i] = model.Point2D{X: x, Y: height - y}
	}
	return outline, nil
}

// num formats a coordinate with at most six decimals.
func num(v float64) string {
	r := math.Round(v*1e6) / 1e6
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// writeFile creates path and streams the export into it.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
