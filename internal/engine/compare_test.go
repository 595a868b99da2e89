package engine

import (
	"context"
	"testing"

	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaultScenarios(t *testing.T) {
	base := testConfig(100, 100, 1, 15)
	scenarios := BuildDefaultScenarios(base)

	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"Current Settings", "No Rotation", "Quarter Turns", "Patience 40 (double)", "Seed 43"}, names)
	assert.Equal(t, base, scenarios[0].Config)
	assert.Equal(t, 0.0, scenarios[1].Config.RotationStep)
	assert.Equal(t, 90.0, scenarios[2].Config.RotationStep)
}

func TestBuildDefaultScenarios_SkipsRedundant(t *testing.T) {
	scenarios := BuildDefaultScenarios(testConfig(100, 100, 0, 90))
	for _, s := range scenarios {
		assert.NotEqual(t, "Quarter Turns", s.Name)
	}

	scenarios = BuildDefaultScenarios(testConfig(100, 100, 0, 0))
	for _, s := range scenarios {
		assert.NotEqual(t, "No Rotation", s.Name)
	}
}

func TestCompareScenarios(t *testing.T) {
	parts := []model.Part{rectPart("A", 40, 40, 3), rectPart("B", 10, 30, 2)}
	scenarios := BuildDefaultScenarios(testConfig(100, 100, 1, 90))

	results := CompareScenarios(context.Background(), scenarios, parts)
	require.Len(t, results, len(scenarios))
	for i, r := range results {
		assert.Equal(t, scenarios[i].Name, r.Scenario.Name)
		assert.Empty(t, r.Error)
		assert.Len(t, r.Result.NestedParts, 5)
		assert.Equal(t, r.Result.SheetCount, r.SheetsUsed)
		assert.InDelta(t, 100.0-r.Result.Utilization, r.WastePercent, 1e-9)
		assert.Equal(t, r.SheetsUsed, r.Score.Sheets)
	}
}

func TestCompareScenarios_ReportsUnplaceable(t *testing.T) {
	parts := []model.Part{rectPart("A", 150, 20, 1)}
	scenarios := []ComparisonScenario{
		{Name: "fixed", Config: testConfig(100, 100, 0, 0)},
		{Name: "turned", Config: testConfig(100, 200, 0, 90)},
	}

	results := CompareScenarios(context.Background(), scenarios, parts)
	require.Len(t, results, 2)
	assert.NotEmpty(t, results[0].Error)
	assert.Empty(t, results[1].Error)
	assert.Equal(t, 1, results[1].SheetsUsed)
}
