// Package export renders nesting results to SVG, DXF, PDF, XLSX and QR label
// sheets. Exporters are pure functions of a result and the parts it places;
// they never re-run the optimizer.
package export

import (
	"errors"
	"fmt"
	"sort"

	"github.com/piwi3910/SlabNest/internal/model"
)

var (
	// ErrEmptyLayout is returned when a result has no placements.
	ErrEmptyLayout = errors.New("layout has no placed parts")
	// ErrUnknownPart is returned when a placement names a part that was not
	// supplied and carries no outline of its own.
	ErrUnknownPart = errors.New("placement references an unknown part")
)

// sheetGap separates sheets laid out side by side, mm.
const sheetGap = 50.0

// Job is the input of every exporter.
type Job struct {
	Result model.NestingResult `json:"layout"`
	Parts  []model.Part        `json:"parts"`
}

// placedPart is one placement with its outline in sheet coordinates.
type placedPart struct {
	model.Placement
	Label   string
	Outline model.Outline
}

// Size returns the placed bounding box size.
func (p placedPart) Size() (w, h float64) {
	return p.Outline.Size()
}

// sheetView groups the placements of one sheet.
type sheetView struct {
	Index int
	Parts []placedPart
}

// UsedArea returns the total outline area on the sheet.
func (s sheetView) UsedArea() float64 {
	var total float64
	for _, p := range s.Parts {
		total += p.Outline.Area()
	}
	return total
}

// Efficiency returns used area as a percentage of the sheet area.
func (s sheetView) Efficiency(sheet model.Sheet) float64 {
	if sheet.Area() <= 0 {
		return 0
	}
	return s.UsedArea() / sheet.Area() * 100
}

// layoutSheets rebuilds placed outlines and groups them by sheet. Sheets
// with no placements between used ones still get an (empty) view.
func layoutSheets(job Job) ([]sheetView, error) {
	if len(job.Result.NestedParts) == 0 {
		return nil, ErrEmptyLayout
	}
	if job.Result.Sheet.Width <= 0 || job.Result.Sheet.Height <= 0 {
		return nil, fmt.Errorf("invalid sheet size %.1f x %.1f mm", job.Result.Sheet.Width, job.Result.Sheet.Height)
	}

	index := model.PartIndex(job.Parts)
	count := 0
	// A valid layout has no empty sheets, so no index reaches the placement count.
	limit := len(job.Result.NestedParts)
	for _, p := range job.Result.NestedParts {
		if p.SheetIndex < 0 {
			return nil, fmt.Errorf("part %q has negative sheet index %d", p.PartID, p.SheetIndex)
		}
		if p.SheetIndex >= limit {
			return nil, fmt.Errorf("part %q has sheet index %d, layout places only %d part(s)", p.PartID, p.SheetIndex, limit)
		}
		if p.SheetIndex+1 > count {
			count = p.SheetIndex + 1
		}
	}

	sheets := make([]sheetView, count)
	for i := range sheets {
		sheets[i].Index = i
	}
	for _, p := range job.Result.NestedParts {
		outline, ok := p.PlacedOutline(index)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPart, p.PartID)
		}
		label := index[p.PartID].Label
		if label == "" {
			label = p.PartID
		}
		sheets[p.SheetIndex].Parts = append(sheets[p.SheetIndex].Parts, placedPart{
			Placement: p,
			Label:     label,
			Outline:   outline,
		})
	}
	for _, s := range sheets {
		sort.SliceStable(s.Parts, func(i, j int) bool {
			a, b := s.Parts[i], s.Parts[j]
			if a.Y != b.Y {
				return a.Y < b.Y
			}
			return a.X < b.X
		})
	}
	return sheets, nil
}

// partCount returns the number of placements over all sheets.
func partCount(sheets []sheetView) int {
	n := 0
	for _, s := range sheets {
		n += len(s.Parts)
	}
	return n
}
