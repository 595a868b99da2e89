package export

import (
	"fmt"
	"io"
	"os"

	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/yofu/dxf"
)

// sheetLayerName returns the DXF layer holding the 1-based sheet n.
func sheetLayerName(n int) string {
	return fmt.Sprintf("SHEET_%d", n)
}

// ExportDXF writes the layout as a DXF drawing. Each sheet gets its own
// layer with the sheet border and its placed outlines as closed
// LWPOLYLINEs; sheets are laid side by side along x.
func ExportDXF(path string, job Job) error {
	sheets, err := layoutSheets(job)
	if err != nil {
		return err
	}
	sheet := job.Result.Sheet

	d := dxf.NewDrawing()
	for _, s := range sheets {
		if _, err := d.AddLayer(sheetLayerName(s.Index+1), dxf.DefaultColor, dxf.DefaultLineType, true); err != nil {
			return fmt.Errorf("failed to add layer for sheet %d: %w", s.Index+1, err)
		}
		ox := float64(s.Index) * (sheet.Width + sheetGap)
		if _, err := d.LwPolyline(true, dxfVertices(model.Rect(sheet.Width, sheet.Height), ox)...); err != nil {
			return fmt.Errorf("failed to draw sheet %d: %w", s.Index+1, err)
		}
		for _, p := range s.Parts {
			if _, err := d.LwPolyline(true, dxfVertices(p.Outline, ox)...); err != nil {
				return fmt.Errorf("failed to draw part %q: %w", p.PartID, err)
			}
		}
	}

	if err := d.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write DXF: %w", err)
	}
	return nil
}

// WriteDXF streams the DXF drawing to w.
func WriteDXF(w io.Writer, job Job) error {
	tmp, err := os.CreateTemp("", "slabnest-*.dxf")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := ExportDXF(path, job); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func dxfVertices(o model.Outline, dx float64) [][]float64 {
	vertices := make([][]float64, len(o))
	for i, p := range o {
		vertices[i] = []float64{p.X + dx, p.Y}
	}
	return vertices
}
