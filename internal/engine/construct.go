package engine

import (
	"errors"
	"fmt"

	"github.com/piwi3910/SlabNest/internal/model"
)

// ErrUnplaceable is returned when a part fits no empty sheet at any allowed
// rotation. Inputs are screened for this before construction, so seeing it
// from Construct indicates a caller skipped validation.
var ErrUnplaceable = errors.New("part cannot be placed on an empty sheet")

// UnplaceableError names the part that could not be placed.
type UnplaceableError struct {
	PartID string
}

func (e *UnplaceableError) Error() string {
	return fmt.Sprintf("part %s cannot be placed on an empty sheet", e.PartID)
}

func (e *UnplaceableError) Unwrap() error {
	return ErrUnplaceable
}

// Construct builds a layout by placing instances in the given order. Only the
// last open sheet is considered; when no rotation fits there, a new sheet is
// opened. Earlier sheets are never revisited.
func (o *Optimizer) Construct(seq []int) (model.Layout, error) {
	layout := model.Layout{
		Placements: make([]model.Placement, 0, len(seq)),
		Sequence:   append([]int(nil), seq...),
	}
	if len(seq) == 0 {
		return layout, nil
	}

	current := &sheetState{}
	sheetIndex := 0

	for _, idx := range seq {
		inst := o.instances[idx]
		shapes := o.shapes[inst.PartIndex]

		sl, sh, ok := o.firstFit(current, shapes)
		if !ok && !current.empty() {
			current = &sheetState{}
			sheetIndex++
			sl, sh, ok = o.firstFit(current, shapes)
		}
		if !ok {
			return model.Layout{}, &UnplaceableError{PartID: inst.Part.ID}
		}

		current.add(sl.outline)
		layout.Placements = append(layout.Placements, model.Placement{
			PartID:     inst.Part.ID,
			Instance:   inst.Copy,
			SheetIndex: sheetIndex,
			X:          sl.x,
			Y:          sl.y,
			Rotation:   sh.rotation,
			Outline:    sl.outline,
		})
	}
	return layout, nil
}

// firstFit tries every rotation in order and returns the first feasible slot.
func (o *Optimizer) firstFit(s *sheetState, shapes []shape) (slot, shape, bool) {
	for _, sh := range shapes {
		if sl, ok := o.findSlot(s, sh, nil); ok {
			return sl, sh, true
		}
	}
	return slot{}, shape{}, false
}
