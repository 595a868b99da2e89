package export

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"
)

const (
	placementsSheet = "Placements"
	summarySheet    = "Summary"
)

var placementHeaders = []interface{}{
	"Sheet", "Part ID", "Label", "Instance", "X (mm)", "Y (mm)", "Rotation (deg)", "Width (mm)", "Height (mm)", "Area (mm2)",
}

// WriteXLSX writes a workbook with a Placements sheet (one row per placed
// part) and a Summary sheet with per-sheet utilization.
func WriteXLSX(w io.Writer, job Job) error {
	f, err := buildWorkbook(job)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// ExportXLSX writes the workbook to path.
func ExportXLSX(path string, job Job) error {
	f, err := buildWorkbook(job)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func buildWorkbook(job Job) (*excelize.File, error) {
	sheets, err := layoutSheets(job)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), placementsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	rows := [][]interface{}{placementHeaders}
	for _, s := range sheets {
		for _, p := range s.Parts {
			w, h := p.Size()
			rows = append(rows, []interface{}{
				s.Index + 1, p.PartID, p.Label, p.Instance,
				round3(p.X), round3(p.Y), p.Rotation, round3(w), round3(h), round3(p.Outline.Area()),
			})
		}
	}
	if err := writeRows(f, placementsSheet, rows, bold); err != nil {
		f.Close()
		return nil, err
	}

	sheet := job.Result.Sheet
	summary := [][]interface{}{
		{"Sheet", "Parts", "Used Area (mm2)", "Utilization (%)"},
	}
	for _, s := range sheets {
		summary = append(summary, []interface{}{
			s.Index + 1, len(s.Parts), round3(s.UsedArea()), round3(s.Efficiency(sheet)),
		})
	}
	summary = append(summary,
		[]interface{}{},
		[]interface{}{"Sheet Width (mm)", sheet.Width},
		[]interface{}{"Sheet Height (mm)", sheet.Height},
		[]interface{}{"Sheets Used", len(sheets)},
		[]interface{}{"Overall Utilization (%)", round3(job.Result.Utilization)},
		[]interface{}{"Iterations", job.Result.Iterations},
	)
	if err := writeRows(f, summarySheet, summary, bold); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// writeRows fills a sheet from A1 and bolds the first row.
func writeRows(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(rows[0]))
	return f.SetColWidth(sheet, "A", lastCol, 16)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
