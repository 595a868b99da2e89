package engine

import (
	"context"
	"math"
	"sort"

	"github.com/piwi3910/SlabNest/internal/model"
)

// State is the optimizer's lifecycle state.
type State int

const (
	Searching State = iota
	Converged
)

func (s State) String() string {
	if s == Converged {
		return "converged"
	}
	return "searching"
}

// Move identifies the neighborhood move that produced a candidate layout.
type Move int

const (
	MoveResequence Move = iota // Swap two sequence positions and rebuild
	MoveRelocate               // Move one placement to another slot
)

func (m Move) String() string {
	if m == MoveRelocate {
		return "relocate"
	}
	return "resequence"
}

// Iteration is reported to the observer after each search step.
type Iteration struct {
	N             int
	Move          Move
	Candidate     Score
	Current       Score
	Best          Score
	Improved      bool
	NoImprovement int
}

// Stats summarizes a finished search.
type Stats struct {
	Iterations   int
	Improvements int
	State        State
	Cancelled    bool
	Initial      Score
	Best         Score
}

// Optimize runs the local search from the given layout and returns the best
// layout found. It stops after MaxNoImprovement consecutive iterations
// without a strict improvement of the best score, after MaxIterations when
// set, or when ctx is done. The returned layout is never worse than initial.
func (o *Optimizer) Optimize(ctx context.Context, initial model.Layout) (model.Layout, Stats) {
	best := initial
	current := initial
	bestScore := Evaluate(best)
	currentScore := bestScore

	stats := Stats{Initial: bestScore, State: Searching}
	if len(o.instances) == 0 || len(initial.Placements) == 0 {
		stats.State = Converged
		stats.Best = bestScore
		return best, stats
	}

	noImprovement := 0
	for stats.State == Searching {
		if ctx.Err() != nil {
			stats.Cancelled = true
			break
		}
		if o.cfg.MaxIterations > 0 && stats.Iterations >= o.cfg.MaxIterations {
			stats.State = Converged
			break
		}

		neighbor, move := o.neighbor(current)
		score := Evaluate(neighbor)
		stats.Iterations++

		improved := false
		switch {
		case score.Less(bestScore):
			best, current = neighbor, neighbor
			bestScore, currentScore = score, score
			noImprovement = 0
			improved = true
			stats.Improvements++
		case !currentScore.Less(score):
			current, currentScore = neighbor, score
			noImprovement++
		default:
			noImprovement++
		}

		if o.observer != nil {
			o.observer(Iteration{
				N:             stats.Iterations,
				Move:          move,
				Candidate:     score,
				Current:       currentScore,
				Best:          bestScore,
				Improved:      improved,
				NoImprovement: noImprovement,
			})
		}

		if noImprovement >= o.cfg.MaxNoImprovement {
			stats.State = Converged
		}
	}

	stats.Best = bestScore
	log.Debug("search finished",
		"iterations", stats.Iterations,
		"improvements", stats.Improvements,
		"initial", stats.Initial.String(),
		"best", bestScore.String(),
		"cancelled", stats.Cancelled,
	)
	return best, stats
}

// neighbor produces a new layout from current with one random move.
func (o *Optimizer) neighbor(current model.Layout) (model.Layout, Move) {
	if o.rng.Intn(2) == 1 {
		if l, ok := o.relocate(current); ok {
			return l, MoveRelocate
		}
	}
	return o.resequence(current), MoveResequence
}

// resequence swaps two random positions of the construction sequence and
// rebuilds the layout from scratch.
func (o *Optimizer) resequence(current model.Layout) model.Layout {
	seq := append([]int(nil), current.Sequence...)
	n := len(seq)
	if n >= 2 {
		i := o.rng.Intn(n)
		j := (i + 1 + o.rng.Intn(n-1)) % n
		seq[i], seq[j] = seq[j], seq[i]
	}

	l, err := o.Construct(seq)
	if err != nil {
		// Cannot happen for screened inputs; a failed rebuild is just a
		// rejected neighbor.
		log.Error("rebuild failed during search", "error", err)
		return current
	}
	return l
}

// relocate moves one random placement to the first feasible slot on the
// lowest sheet, keeping every other placement fixed. Rotations are tried
// cyclically from a random start and the placement's own slot is excluded.
// It reports false when no alternate slot exists.
func (o *Optimizer) relocate(current model.Layout) (model.Layout, bool) {
	n := len(current.Placements)
	if n == 0 {
		return model.Layout{}, false
	}
	k := o.rng.Intn(n)
	moving := current.Placements[k]
	inst := o.instances[current.Sequence[k]]
	shapes := o.shapes[inst.PartIndex]
	start := o.rng.Intn(len(shapes))

	sheetCount := current.SheetCount()
	sheets := make([]*sheetState, sheetCount)
	for i := range sheets {
		sheets[i] = &sheetState{}
	}
	for i, p := range current.Placements {
		if i == k {
			continue
		}
		sheets[p.SheetIndex].add(p.Outline)
	}

	for sheetIndex, s := range sheets {
		for t := range shapes {
			sh := shapes[(start+t)%len(shapes)]
			ownSlot := func(x, y float64) bool {
				return sheetIndex == moving.SheetIndex &&
					sameAngle(sh.rotation, moving.Rotation) &&
					math.Abs(x-moving.X) <= epsilon && math.Abs(y-moving.Y) <= epsilon
			}
			sl, ok := o.findSlot(s, sh, ownSlot)
			if !ok {
				continue
			}

			next := current.Clone()
			next.Placements[k] = model.Placement{
				PartID:     moving.PartID,
				Instance:   moving.Instance,
				SheetIndex: sheetIndex,
				X:          sl.x,
				Y:          sl.y,
				Rotation:   sh.rotation,
				Outline:    sl.outline,
			}
			compactSheets(next.Placements)
			return next, true
		}
	}
	return model.Layout{}, false
}

// compactSheets renumbers sheet indices so no sheet is left empty.
func compactSheets(placements []model.Placement) {
	used := make(map[int]bool)
	for _, p := range placements {
		used[p.SheetIndex] = true
	}
	indices := make([]int, 0, len(used))
	for idx := range used {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	remap := make(map[int]int, len(indices))
	for newIdx, oldIdx := range indices {
		remap[oldIdx] = newIdx
	}
	for i := range placements {
		placements[i].SheetIndex = remap[placements[i].SheetIndex]
	}
}

func sameAngle(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}
