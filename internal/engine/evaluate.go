package engine

import (
	"fmt"
	"math"

	"github.com/piwi3910/SlabNest/internal/geometry"
	"github.com/piwi3910/SlabNest/internal/model"
)

// Score ranks layouts: fewer sheets first, then a lower top edge on the last
// sheet. Lower is better.
type Score struct {
	Sheets int     `json:"sheets"`
	Extent float64 `json:"extent"` // Max bounding box Y on the last sheet, mm
}

// Less reports whether s is strictly better than other.
func (s Score) Less(other Score) bool {
	if s.Sheets != other.Sheets {
		return s.Sheets < other.Sheets
	}
	return s.Extent < other.Extent
}

func (s Score) String() string {
	return fmt.Sprintf("%d sheets, %.3fmm", s.Sheets, s.Extent)
}

// Evaluate scores a layout. The extent is rounded to a micrometre so that
// floating point noise never counts as an improvement.
func Evaluate(l model.Layout) Score {
	sheets := l.SheetCount()
	if sheets == 0 {
		return Score{}
	}
	extent := 0.0
	for _, p := range l.Placements {
		if p.SheetIndex != sheets-1 {
			continue
		}
		if top := geometry.BoxOf(p.Outline).Max.Y; top > extent {
			extent = top
		}
	}
	return Score{Sheets: sheets, Extent: math.Round(extent*1e3) / 1e3}
}

// Utilization returns the used fraction of the total sheet area in percent.
// It is reported, not optimized for.
func Utilization(l model.Layout, sheet model.Sheet) float64 {
	total := float64(l.SheetCount()) * sheet.Area()
	if total <= 0 {
		return 0
	}
	return l.UsedArea() / total * 100.0
}
