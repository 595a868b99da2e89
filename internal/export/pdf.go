package export

import (
	"fmt"
	"io"
	"math"

	"github.com/go-pdf/fpdf"
	"github.com/piwi3910/SlabNest/internal/model"
)

// partColor represents an RGB color for a placed part.
type partColor struct {
	R, G, B int
}

func (c partColor) hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// partColors is the palette shared by the PDF and SVG renderings.
var partColors = []partColor{
	{R: 76, G: 175, B: 80},  // green
	{R: 33, G: 150, B: 243}, // blue
	{R: 255, G: 152, B: 0},  // orange
	{R: 156, G: 39, B: 176}, // purple
	{R: 0, G: 188, B: 212},  // cyan
	{R: 244, G: 67, B: 54},  // red
	{R: 255, G: 235, B: 59}, // yellow
	{R: 121, G: 85, B: 72},  // brown
}

// Page layout constants (A4 landscape in mm).
const (
	pageWidth    = 297.0
	pageHeight   = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 15.0
	headerHeight = 12.0
	legendHeight = 20.0
	drawAreaTop  = marginTop + headerHeight + 5.0
)

// WritePDF renders a layout report: one page per sheet with the placed
// outlines drawn to scale, followed by a summary page.
func WritePDF(w io.Writer, job Job) error {
	pdf, err := buildPDF(job)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

// ExportPDF writes the layout report to path.
func ExportPDF(path string, job Job) error {
	pdf, err := buildPDF(job)
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(path)
}

func buildPDF(job Job) (*fpdf.Fpdf, error) {
	sheets, err := layoutSheets(job)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, marginBottom)
	for _, s := range sheets {
		pdf.AddPage()
		renderSheetPage(pdf, s, job.Result.Sheet)
	}
	pdf.AddPage()
	renderSummaryPage(pdf, sheets, job.Result)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return pdf, nil
}

// renderSheetPage draws one sheet on the current page. Sheet coordinates have
// y pointing up, so the drawing is flipped onto the page.
func renderSheetPage(pdf *fpdf.Fpdf, s sheetView, sheet model.Sheet) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(marginLeft, marginTop)
	title := fmt.Sprintf("Sheet %d (%.0f x %.0f mm)", s.Index+1, sheet.Width, sheet.Height)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, headerHeight, title, "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(marginLeft, marginTop+headerHeight)
	stats := fmt.Sprintf("Parts: %d | Used area: %.0f mm2 | Sheet area: %.0f mm2 | Utilization: %.1f%%",
		len(s.Parts), s.UsedArea(), sheet.Area(), s.Efficiency(sheet))
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 5, stats, "", 0, "L", false, 0, "")

	drawWidth := pageWidth - marginLeft - marginRight
	drawHeight := pageHeight - drawAreaTop - marginBottom - legendHeight
	scale := math.Min(drawWidth/sheet.Width, drawHeight/sheet.Height)
	canvasW := sheet.Width * scale
	canvasH := sheet.Height * scale
	offsetX := marginLeft + (drawWidth-canvasW)/2
	offsetY := drawAreaTop

	toPage := func(p model.Point2D) fpdf.PointType {
		return fpdf.PointType{X: offsetX + p.X*scale, Y: offsetY + canvasH - p.Y*scale}
	}

	pdf.SetFillColor(210, 180, 140)
	pdf.SetDrawColor(100, 100, 100)
	pdf.SetLineWidth(0.5)
	pdf.Rect(offsetX, offsetY, canvasW, canvasH, "FD")

	for i, p := range s.Parts {
		col := partColors[i%len(partColors)]
		points := make([]fpdf.PointType, len(p.Outline))
		for j, v := range p.Outline {
			points[j] = toPage(v)
		}
		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.SetDrawColor(30, 30, 30)
		pdf.SetLineWidth(0.3)
		pdf.Polygon(points, "FD")

		w, h := p.Size()
		pw, ph := w*scale, h*scale
		if pw > 15 && ph > 8 {
			c := toPage(p.Outline.Centroid())
			pdf.SetFont("Helvetica", "", labelFontSize(pw, ph))
			pdf.SetTextColor(0, 0, 0)
			if labelW := pdf.GetStringWidth(p.Label); labelW < pw-2 {
				pdf.SetXY(c.X-labelW/2, c.Y-2)
				pdf.CellFormat(labelW, 4, p.Label, "", 0, "C", false, 0, "")
			}
		}
	}

	drawDimensionAnnotations(pdf, sheet, offsetX, offsetY, canvasW, canvasH)
	drawPartsLegend(pdf, s, offsetY+canvasH+5)
}

// drawDimensionAnnotations adds width and height labels outside the sheet rectangle.
func drawDimensionAnnotations(pdf *fpdf.Fpdf, sheet model.Sheet, offsetX, offsetY, canvasW, canvasH float64) {
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(80, 80, 80)

	widthLabel := fmt.Sprintf("%.0f mm", sheet.Width)
	wLabelW := pdf.GetStringWidth(widthLabel)
	pdf.SetXY(offsetX+(canvasW-wLabelW)/2, offsetY+canvasH+1)
	pdf.CellFormat(wLabelW, 4, widthLabel, "", 0, "C", false, 0, "")

	heightLabel := fmt.Sprintf("%.0f mm", sheet.Height)
	pdf.TransformBegin()
	pdf.TransformRotate(90, offsetX-3, offsetY+canvasH/2)
	hLabelW := pdf.GetStringWidth(heightLabel)
	pdf.SetXY(offsetX-3-hLabelW/2, offsetY+canvasH/2-2)
	pdf.CellFormat(hLabelW, 4, heightLabel, "", 0, "C", false, 0, "")
	pdf.TransformEnd()

	pdf.SetTextColor(0, 0, 0)
}

// drawPartsLegend renders a compact legend of placed parts below the sheet.
func drawPartsLegend(pdf *fpdf.Fpdf, s sheetView, startY float64) {
	if len(s.Parts) == 0 {
		return
	}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(marginLeft, startY)
	pdf.CellFormat(30, 4, "Parts placed:", "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	xPos := marginLeft + 32
	maxX := pageWidth - marginRight

	for i, p := range s.Parts {
		col := partColors[i%len(partColors)]
		w, h := p.Size()
		label := fmt.Sprintf("%s (%.0fx%.0f)", p.Label, w, h)
		if p.Rotation != 0 {
			label += fmt.Sprintf(" R%.0f", p.Rotation)
		}
		labelW := pdf.GetStringWidth(label) + 6

		if xPos+labelW > maxX {
			startY += 5
			xPos = marginLeft
		}

		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.Rect(xPos, startY+0.5, 3, 3, "F")
		pdf.SetXY(xPos+4, startY)
		pdf.CellFormat(labelW-4, 4, label, "", 0, "L", false, 0, "")

		xPos += labelW + 2
	}
}

// renderSummaryPage draws overall statistics and a per-sheet table.
func renderSummaryPage(pdf *fpdf.Fpdf, sheets []sheetView, result model.NestingResult) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetXY(marginLeft, marginTop)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 10, "Nesting Summary", "", 0, "L", false, 0, "")

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.5)
	pdf.Line(marginLeft, marginTop+12, pageWidth-marginRight, marginTop+12)

	y := marginTop + 18
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(100, 7, "Overall Statistics", "", 0, "L", false, 0, "")
	y += 9

	summaryItems := []struct {
		label string
		value string
	}{
		{"Sheet Size", fmt.Sprintf("%.0f x %.0f mm", result.Sheet.Width, result.Sheet.Height)},
		{"Total Sheets Used", fmt.Sprintf("%d", len(sheets))},
		{"Overall Utilization", fmt.Sprintf("%.1f%%", result.Utilization)},
		{"Total Parts Placed", fmt.Sprintf("%d", partCount(sheets))},
		{"Optimizer Iterations", fmt.Sprintf("%d", result.Iterations)},
	}
	if result.JobID != "" {
		summaryItems = append(summaryItems, struct {
			label string
			value string
		}{"Job", result.JobID})
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range summaryItems {
		pdf.SetXY(marginLeft+5, y)
		pdf.CellFormat(60, 6, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(80, 6, item.value, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		y += 7
	}

	y += 5
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(100, 7, "Sheet Breakdown", "", 0, "L", false, 0, "")
	y += 9

	colWidths := []float64{25, 35, 45, 60}
	headers := []string{"Sheet", "Parts", "Utilization", "Used / Sheet Area"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	xPos := marginLeft
	for i, header := range headers {
		pdf.SetXY(xPos, y)
		pdf.CellFormat(colWidths[i], 6, header, "1", 0, "C", true, 0, "")
		xPos += colWidths[i]
	}
	y += 6

	pdf.SetFont("Helvetica", "", 9)
	for i, s := range sheets {
		// Wrap long tables onto continuation pages.
		if y > pageHeight-marginBottom-10 {
			pdf.AddPage()
			y = marginTop
		}
		xPos = marginLeft
		row := []string{
			fmt.Sprintf("%d", s.Index+1),
			fmt.Sprintf("%d", len(s.Parts)),
			fmt.Sprintf("%.1f%%", s.Efficiency(result.Sheet)),
			fmt.Sprintf("%.0f / %.0f mm2", s.UsedArea(), result.Sheet.Area()),
		}
		if i%2 == 0 {
			pdf.SetFillColor(245, 245, 245)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		for j, cell := range row {
			pdf.SetXY(xPos, y)
			pdf.CellFormat(colWidths[j], 6, cell, "1", 0, "C", true, 0, "")
			xPos += colWidths[j]
		}
		y += 6
	}

	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.SetXY(marginLeft, pageHeight-marginBottom)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 4, "Generated by SlabNest", "", 0, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

// labelFontSize returns a font size that fits the part's drawn size.
func labelFontSize(w, h float64) float64 {
	minDim := math.Min(w, h)
	switch {
	case minDim > 40:
		return 8
	case minDim > 20:
		return 7
	default:
		return 6
	}
}
