package engine

import (
	"context"
	"fmt"

	"github.com/piwi3910/SlabNest/internal/model"
)

// ComparisonScenario defines a named set of settings to compare.
type ComparisonScenario struct {
	Name   string              `json:"name"`
	Config model.NestingConfig `json:"config"`
}

// ComparisonResult holds the nesting result and computed statistics
// for a single scenario.
type ComparisonResult struct {
	Scenario     ComparisonScenario  `json:"scenario"`
	Result       model.NestingResult `json:"result"`
	SheetsUsed   int                 `json:"sheetsUsed"`
	WastePercent float64             `json:"wastePercent"`
	Score        Score               `json:"score"`
	Error        string              `json:"error,omitempty"`
}

// Run constructs the initial layout for the instances and improves it with
// the local search.
func Run(ctx context.Context, cfg model.NestingConfig, instances []Instance, opts ...Option) (model.Layout, Stats, error) {
	opt := New(cfg, instances, opts...)
	initial, err := opt.Construct(opt.InitialSequence())
	if err != nil {
		return model.Layout{}, Stats{}, err
	}
	best, stats := opt.Optimize(ctx, initial)
	return best, stats, nil
}

// CompareScenarios runs nesting for each scenario and returns the results
// in scenario order. Parts are expected to be validated against every
// scenario's config by the caller.
func CompareScenarios(ctx context.Context, scenarios []ComparisonScenario, parts []model.Part) []ComparisonResult {
	results := make([]ComparisonResult, 0, len(scenarios))
	instances := Expand(parts)

	for _, scenario := range scenarios {
		res := ComparisonResult{Scenario: scenario}
		layout, stats, err := Run(ctx, scenario.Config, instances)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		res.Result = model.ResultFromLayout(layout, scenario.Config.Sheet())
		res.Result.Iterations = stats.Iterations
		res.SheetsUsed = res.Result.SheetCount
		res.WastePercent = 100.0 - res.Result.Utilization
		res.Score = stats.Best
		results = append(results, res)
	}

	return results
}

// BuildDefaultScenarios generates a set of comparison scenarios based on
// the current settings, varying key parameters to show what-if alternatives.
func BuildDefaultScenarios(base model.NestingConfig) []ComparisonScenario {
	scenarios := []ComparisonScenario{
		{
			Name:   "Current Settings",
			Config: base,
		},
	}

	// Scenario: Fixed orientation
	if base.RotationStep != 0 {
		fixed := base
		fixed.RotationStep = 0
		scenarios = append(scenarios, ComparisonScenario{
			Name:   "No Rotation",
			Config: fixed,
		})
	}

	// Scenario: Quarter turns only
	if base.RotationStep != 90 {
		quarter := base
		quarter.RotationStep = 90
		scenarios = append(scenarios, ComparisonScenario{
			Name:   "Quarter Turns",
			Config: quarter,
		})
	}

	// Scenario: Search longer
	patient := base
	patient.MaxNoImprovement = base.MaxNoImprovement * 2
	scenarios = append(scenarios, ComparisonScenario{
		Name:   fmt.Sprintf("Patience %d (double)", patient.MaxNoImprovement),
		Config: patient,
	})

	// Scenario: Different search seed
	reseeded := base
	if reseeded.Seed == 0 {
		reseeded.Seed = model.DefaultSeed
	}
	reseeded.Seed++
	scenarios = append(scenarios, ComparisonScenario{
		Name:   fmt.Sprintf("Seed %d", reseeded.Seed),
		Config: reseeded,
	})

	return scenarios
}
