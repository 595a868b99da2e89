package model

import (
	"sort"

	"github.com/google/uuid"
)

// Part represents a required outline to be nested.
type Part struct {
	ID       string  `json:"id"`
	Label    string  `json:"label,omitempty"`
	Outline  Outline `json:"outline"`
	Quantity int     `json:"quantity,omitempty"` // 0 is treated as 1
}

// NewPart creates a part with a short random ID, matching the IDs assigned
// by the importers.
func NewPart(label string, outline Outline, qty int) Part {
	return Part{
		ID:       uuid.New().String()[:8],
		Label:    label,
		Outline:  outline,
		Quantity: qty,
	}
}

// Copies returns the number of instances to place.
func (p Part) Copies() int {
	if p.Quantity == 0 {
		return 1
	}
	return p.Quantity
}

// Sheet is the rectangular stock a layout is packed onto.
type Sheet struct {
	Width  float64 `json:"width"`  // mm
	Height float64 `json:"height"` // mm
}

// Area returns the sheet area.
func (s Sheet) Area() float64 {
	return s.Width * s.Height
}

// NestingConfig holds the packing parameters of one request.
type NestingConfig struct {
	Spacing          float64 `json:"spacing"`          // Minimum clearance between outlines, mm
	RotationStep     float64 `json:"rotationStep"`     // Degrees; 0 disables rotation
	SheetWidth       float64 `json:"sheetWidth"`       // mm
	SheetHeight      float64 `json:"sheetHeight"`      // mm
	MaxNoImprovement int     `json:"maxNoImprovement"` // Optimizer patience

	Seed          int64 `json:"seed,omitempty"`          // Neighbor selection seed
	MaxIterations int   `json:"maxIterations,omitempty"` // Hard iteration cap, 0 = none
}

// DefaultSeed is used when a request does not carry a seed.
const DefaultSeed int64 = 42

func DefaultNestingConfig() NestingConfig {
	return NestingConfig{
		Spacing:          0,
		RotationStep:     15,
		SheetWidth:       2440,
		SheetHeight:      1220,
		MaxNoImprovement: 50,
		Seed:             DefaultSeed,
	}
}

// Sheet returns the sheet dimensions of the config.
func (c NestingConfig) Sheet() Sheet {
	return Sheet{Width: c.SheetWidth, Height: c.SheetHeight}
}

// Rotations returns the allowed discrete rotation angles in trial order.
func (c NestingConfig) Rotations() []float64 {
	if c.RotationStep <= 0 {
		return []float64{0}
	}
	n := int(360/c.RotationStep + 0.5)
	angles := make([]float64, n)
	for i := range angles {
		angles[i] = float64(i) * c.RotationStep
	}
	return angles
}

// Placement represents a single part instance placed on a sheet.
// X and Y are the lower-left corner of the rotated outline's bounding box.
type Placement struct {
	PartID     string  `json:"id"`
	Instance   int     `json:"instance,omitempty"` // Copy number for parts with quantity > 1
	SheetIndex int     `json:"sheetIndex"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Rotation   float64 `json:"rotation"` // Degrees

	Outline Outline `json:"-"` // Placed outline in sheet coordinates
}

// Layout is one complete assignment of part instances to sheets. Layouts are
// values: producers build a new Layout instead of editing an accepted one.
type Layout struct {
	Placements []Placement
	Sequence   []int // Instance order used to construct the layout
}

// Clone returns a copy that shares no slices with the original.
// Placed outlines are immutable and stay shared.
func (l Layout) Clone() Layout {
	c := Layout{
		Placements: make([]Placement, len(l.Placements)),
		Sequence:   make([]int, len(l.Sequence)),
	}
	copy(c.Placements, l.Placements)
	copy(c.Sequence, l.Sequence)
	return c
}

// SheetCount returns the number of sheets used.
func (l Layout) SheetCount() int {
	n := 0
	for _, p := range l.Placements {
		if p.SheetIndex+1 > n {
			n = p.SheetIndex + 1
		}
	}
	return n
}

// OnSheet returns the placements on the given sheet index.
func (l Layout) OnSheet(sheet int) []Placement {
	var result []Placement
	for _, p := range l.Placements {
		if p.SheetIndex == sheet {
			result = append(result, p)
		}
	}
	return result
}

// UsedArea returns the total outline area of all placements.
func (l Layout) UsedArea() float64 {
	var total float64
	for _, p := range l.Placements {
		total += p.Outline.Area()
	}
	return total
}

// NestingResult is the externally visible outcome of one nesting run.
type NestingResult struct {
	JobID       string      `json:"jobId,omitempty"`
	NestedParts []Placement `json:"nestedParts"`
	Sheet       Sheet       `json:"sheet"`
	SheetCount  int         `json:"sheetCount"`
	Utilization float64     `json:"utilization"` // Percent of used sheet area
	Iterations  int         `json:"iterations"`
}

// ResultFromLayout shapes a layout for external consumption. Placements are
// ordered by sheet, then by the order they were placed.
func ResultFromLayout(l Layout, sheet Sheet) NestingResult {
	parts := make([]Placement, len(l.Placements))
	copy(parts, l.Placements)
	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].SheetIndex < parts[j].SheetIndex
	})

	result := NestingResult{
		NestedParts: parts,
		Sheet:       sheet,
		SheetCount:  l.SheetCount(),
	}
	if total := float64(result.SheetCount) * sheet.Area(); total > 0 {
		result.Utilization = l.UsedArea() / total * 100.0
	}
	return result
}

// PartIndex maps part IDs to parts.
func PartIndex(parts []Part) map[string]Part {
	idx := make(map[string]Part, len(parts))
	for _, p := range parts {
		idx[p.ID] = p
	}
	return idx
}

// PlacedOutline returns the placement's outline in sheet coordinates,
// rebuilding it from the part outline when the placement came off the wire.
func (p Placement) PlacedOutline(parts map[string]Part) (Outline, bool) {
	if len(p.Outline) > 0 {
		return p.Outline, true
	}
	part, ok := parts[p.PartID]
	if !ok || len(part.Outline) == 0 {
		return nil, false
	}
	return part.Outline.Place(p.Rotation, p.X, p.Y), true
}
