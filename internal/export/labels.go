package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// LabelInfo holds the data encoded into each part label's QR code.
type LabelInfo struct {
	PartID     string  `json:"id"`
	PartLabel  string  `json:"label"`
	Instance   int     `json:"instance"`
	Width      float64 `json:"width_mm"`  // Placed bounding box
	Height     float64 `json:"height_mm"` // Placed bounding box
	SheetIndex int     `json:"sheet"`     // 1-based
	Rotation   float64 `json:"rotation"`
	X          float64 `json:"x_mm"`
	Y          float64 `json:"y_mm"`
}

// Label layout constants for Avery 5160-compatible labels (3 columns, 10 rows per page).
// Each label cell is approximately 66.7mm x 25.4mm on US Letter paper.
const (
	labelMarginTop  = 12.7 // mm
	labelMarginLeft = 4.8  // mm
	labelWidth      = 66.7 // mm per label
	labelHeight     = 25.4 // mm per label
	labelCols       = 3
	labelRows       = 10
	labelsPerPage   = labelCols * labelRows
	qrSize          = 20.0 // QR code size in mm
	labelPadding    = 2.0  // mm internal padding
)

// CollectLabelInfos lists one label per placement, sheet by sheet.
func CollectLabelInfos(job Job) ([]LabelInfo, error) {
	sheets, err := layoutSheets(job)
	if err != nil {
		return nil, err
	}
	labels := make([]LabelInfo, 0, partCount(sheets))
	for _, s := range sheets {
		for _, p := range s.Parts {
			w, h := p.Size()
			labels = append(labels, LabelInfo{
				PartID:     p.PartID,
				PartLabel:  p.Label,
				Instance:   p.Instance,
				Width:      w,
				Height:     h,
				SheetIndex: s.Index + 1,
				Rotation:   p.Rotation,
				X:          p.X,
				Y:          p.Y,
			})
		}
	}
	return labels, nil
}

// WriteLabels renders a PDF sheet of QR-coded labels, one per placed part,
// on Avery 5160 stock (3 x 10 on US Letter).
func WriteLabels(w io.Writer, job Job) error {
	pdf, err := buildLabels(job)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

// ExportLabels writes the label sheet to path.
func ExportLabels(path string, job Job) error {
	pdf, err := buildLabels(job)
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(path)
}

func buildLabels(job Job) (*fpdf.Fpdf, error) {
	labels, err := CollectLabelInfos(job)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)
	for i, label := range labels {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}
		pos := i % labelsPerPage
		x := labelMarginLeft + float64(pos%labelCols)*labelWidth
		y := labelMarginTop + float64(pos/labelCols)*labelHeight
		if err := renderLabel(pdf, x, y, i, label); err != nil {
			return nil, fmt.Errorf("failed to render label for %q: %w", label.PartID, err)
		}
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render labels: %w", err)
	}
	return pdf, nil
}

// renderLabel draws a single label at the given position.
func renderLabel(pdf *fpdf.Fpdf, x, y float64, seq int, info LabelInfo) error {
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.1)
	pdf.Rect(x, y, labelWidth, labelHeight, "D")

	qrData, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal label info: %w", err)
	}
	qrPNG, err := qrcode.Encode(string(qrData), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to generate QR code: %w", err)
	}

	imgName := fmt.Sprintf("qr_%d", seq)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(imgName, opts, bytes.NewReader(qrPNG))
	qrX := x + labelWidth - qrSize - labelPadding
	qrY := y + (labelHeight-qrSize)/2
	pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, opts, 0, "")

	textX := x + labelPadding
	textW := labelWidth - qrSize - 3*labelPadding

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(textX, y+labelPadding)
	pdf.CellFormat(textW, 4.5, truncate(pdf, info.PartLabel, textW), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	pdf.SetXY(textX, y+labelPadding+5)
	dims := fmt.Sprintf("%.0f x %.0f mm", info.Width, info.Height)
	pdf.CellFormat(textW, 3.5, dims, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.SetTextColor(100, 100, 100)
	pdf.SetXY(textX, y+labelPadding+9)
	where := fmt.Sprintf("Sheet %d @ (%.0f, %.0f)", info.SheetIndex, info.X, info.Y)
	pdf.CellFormat(textW, 3, where, "", 1, "L", false, 0, "")

	if info.Rotation != 0 {
		pdf.SetXY(textX, y+labelPadding+12.5)
		pdf.SetFont("Helvetica", "I", 6)
		pdf.SetTextColor(150, 100, 0)
		pdf.CellFormat(textW, 3, fmt.Sprintf("Rotated %g\xb0", info.Rotation), "", 0, "L", false, 0, "")
	}

	pdf.SetTextColor(0, 0, 0)
	return nil
}

// truncate shortens s with an ellipsis until it fits width at the current font.
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
