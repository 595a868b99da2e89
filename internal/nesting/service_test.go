package nesting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/piwi3910/SlabNest/internal/engine"
	"github.com/piwi3910/SlabNest/internal/geometry"
	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareRequest() Request {
	return Request{
		Parts: []model.Part{
			{ID: "a", Outline: model.Rect(10, 10)},
			{ID: "b", Outline: model.Rect(10, 10)},
		},
		Config: model.NestingConfig{
			Spacing:          1,
			RotationStep:     0,
			SheetWidth:       100,
			SheetHeight:      100,
			MaxNoImprovement: 5,
		},
	}
}

func TestNest_TwoSquares(t *testing.T) {
	svc := NewService()
	res, err := svc.Nest(context.Background(), squareRequest())
	require.NoError(t, err)

	require.Len(t, res.NestedParts, 2)
	first, second := res.NestedParts[0], res.NestedParts[1]
	assert.Equal(t, 0, first.SheetIndex)
	assert.Equal(t, 0, second.SheetIndex)
	assert.InDelta(t, 0.5, first.X, 1e-9)
	assert.InDelta(t, 0.5, first.Y, 1e-9)
	offset := math.Max(math.Abs(second.X-first.X), math.Abs(second.Y-first.Y))
	assert.GreaterOrEqual(t, offset, 11.0-1e-9)

	assert.False(t, geometry.Conflict(first.Outline, second.Outline, 1))
	assert.Equal(t, model.Sheet{Width: 100, Height: 100}, res.Sheet)
	assert.Equal(t, 1, res.SheetCount)
	assert.InDelta(t, 2.0, res.Utilization, 1e-9)
	assert.Equal(t, 5, res.Iterations)
	assert.Empty(t, res.JobID)
}

func TestNest_SameSeedSameResult(t *testing.T) {
	req := squareRequest()
	req.Parts = append(req.Parts, model.Part{ID: "tri", Outline: model.Outline{{X: 0, Y: 0}, {X: 30, Y: 0}, {X: 0, Y: 20}}, Quantity: 3})
	req.Config.RotationStep = 90
	req.Config.Seed = 11

	first, err := NewService().Nest(context.Background(), req)
	require.NoError(t, err)
	second, err := NewService().Nest(context.Background(), req)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestNest_ClosedOutline(t *testing.T) {
	closed := model.Outline{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0}}
	req := squareRequest()
	req.Parts = []model.Part{{ID: "sq", Outline: closed}}

	res, err := NewService().Nest(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.NestedParts, 1)
	assert.Len(t, res.NestedParts[0].Outline, 4)
	assert.Len(t, req.Parts[0].Outline, 5, "request parts are not modified")

	_, err = NewService().Compare(context.Background(), req.Parts, engine.BuildDefaultScenarios(req.Config))
	assert.NoError(t, err)
}

func TestNest_PartTooLarge(t *testing.T) {
	svc := NewService()
	req := Request{
		Parts: []model.Part{{ID: "slab", Outline: model.Rect(150, 150)}},
		Config: model.NestingConfig{
			SheetWidth: 100, SheetHeight: 100, MaxNoImprovement: 5, RotationStep: 90,
		},
	}
	res, err := svc.Nest(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, res.NestedParts)

	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindPartTooLarge, e.Kind)
	assert.Equal(t, "slab", e.PartID)
}

func TestNest_RotationStep45(t *testing.T) {
	svc := NewService()
	req := Request{
		Parts: []model.Part{
			{ID: "L", Outline: model.Outline{{X: 0, Y: 0}, {X: 40, Y: 0}, {X: 40, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 30}, {X: 0, Y: 30}}, Quantity: 5},
			{ID: "tri", Outline: model.Outline{{X: 0, Y: 0}, {X: 30, Y: 0}, {X: 15, Y: 25}}, Quantity: 4},
		},
		Config: model.NestingConfig{
			Spacing: 2, RotationStep: 45, SheetWidth: 120, SheetHeight: 90, MaxNoImprovement: 15,
		},
	}
	res, err := svc.Nest(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.NestedParts, 9)

	allowed := map[float64]bool{}
	for a := 0.0; a < 360; a += 45 {
		allowed[a] = true
	}
	for _, p := range res.NestedParts {
		assert.True(t, allowed[p.Rotation], "rotation %v", p.Rotation)
	}
}

func TestNest_QuantityExpansion(t *testing.T) {
	svc := NewService()
	req := squareRequest()
	req.Parts = []model.Part{{ID: "sq", Outline: model.Rect(10, 10), Quantity: 3}}

	res, err := svc.Nest(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.NestedParts, 3)

	instances := map[int]bool{}
	for _, p := range res.NestedParts {
		assert.Equal(t, "sq", p.PartID)
		instances[p.Instance] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, instances)
}

func TestNest_MultipleSheets(t *testing.T) {
	svc := NewService()
	req := Request{
		Parts:  []model.Part{{ID: "big", Outline: model.Rect(60, 60), Quantity: 3}},
		Config: model.NestingConfig{SheetWidth: 100, SheetHeight: 100, MaxNoImprovement: 5},
	}
	res, err := svc.Nest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, res.SheetCount)
	for i, p := range res.NestedParts {
		assert.Equal(t, i, p.SheetIndex, "result is ordered by sheet")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := squareRequest().Config
	require.NoError(t, ValidateConfig(valid))

	cases := []struct {
		field  string
		mutate func(*model.NestingConfig)
	}{
		{"spacing", func(c *model.NestingConfig) { c.Spacing = -1 }},
		{"spacing", func(c *model.NestingConfig) { c.Spacing = math.NaN() }},
		{"spacing", func(c *model.NestingConfig) { c.Spacing = 100 }},
		{"rotationStep", func(c *model.NestingConfig) { c.RotationStep = 7 }},
		{"rotationStep", func(c *model.NestingConfig) { c.RotationStep = -90 }},
		{"rotationStep", func(c *model.NestingConfig) { c.RotationStep = 720 }},
		{"rotationStep", func(c *model.NestingConfig) { c.RotationStep = 0.01 }},
		{"rotationStep", func(c *model.NestingConfig) { c.RotationStep = 1e-7 }},
		{"rotationStep", func(c *model.NestingConfig) { c.RotationStep = 5e-8 }},
		{"sheetWidth", func(c *model.NestingConfig) { c.SheetWidth = 0 }},
		{"sheetHeight", func(c *model.NestingConfig) { c.SheetHeight = -5 }},
		{"sheetHeight", func(c *model.NestingConfig) { c.SheetHeight = math.Inf(1) }},
		{"maxNoImprovement", func(c *model.NestingConfig) { c.MaxNoImprovement = 0 }},
		{"maxIterations", func(c *model.NestingConfig) { c.MaxIterations = -1 }},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("%d_%s", i, tc.field), func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			e, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, KindInvalidConfig, e.Kind)
			assert.Equal(t, tc.field, e.Field)
		})
	}

	for _, step := range []float64{0, 0.1, 1, 15, 22.5, 45, 90, 120, 360} {
		cfg := valid
		cfg.RotationStep = step
		assert.NoError(t, ValidateConfig(cfg), "step %v", step)
	}
}

func TestValidateParts(t *testing.T) {
	cfg := squareRequest().Config
	cases := []struct {
		name   string
		parts  []model.Part
		kind   Kind
		partID string
	}{
		{"no parts", nil, KindInvalidPart, ""},
		{"two vertices", []model.Part{{ID: "p", Outline: model.Outline{{X: 0, Y: 0}, {X: 1, Y: 1}}}}, KindInvalidPart, "p"},
		{"zero area", []model.Part{{ID: "flat", Outline: model.Outline{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0}}}}, KindInvalidPart, "flat"},
		{"non finite", []model.Part{{ID: "nan", Outline: model.Outline{{X: 0, Y: 0}, {X: math.NaN(), Y: 0}, {X: 1, Y: 1}}}}, KindInvalidPart, "nan"},
		{"self intersecting", []model.Part{{ID: "bowtie", Outline: model.Outline{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 20}}}}, KindInvalidPart, "bowtie"},
		{"duplicate id", []model.Part{{ID: "x", Outline: model.Rect(1, 1)}, {ID: "x", Outline: model.Rect(2, 2)}}, KindInvalidPart, "x"},
		{"negative quantity", []model.Part{{ID: "neg", Outline: model.Rect(1, 1), Quantity: -1}}, KindInvalidPart, "neg"},
		{"too large", []model.Part{{ID: "ok", Outline: model.Rect(1, 1)}, {ID: "wide", Outline: model.Rect(120, 5)}}, KindPartTooLarge, "wide"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateParts(tc.parts, cfg)
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
			e, _ := AsError(err)
			assert.Equal(t, tc.partID, e.PartID)
		})
	}

	closed := []model.Part{{ID: "sq", Outline: model.Outline{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0}}}}
	assert.NoError(t, ValidateParts(CleanParts(closed), cfg))

	missingID := ValidateParts([]model.Part{{Outline: model.Rect(1, 1)}}, cfg)
	e, ok := AsError(missingID)
	require.True(t, ok)
	assert.Equal(t, "parts[0].id", e.Field)
}

func TestValidateParts_MarginCountsAgainstFit(t *testing.T) {
	cfg := model.NestingConfig{Spacing: 2, SheetWidth: 100, SheetHeight: 100, MaxNoImprovement: 1}
	assert.NoError(t, ValidateParts([]model.Part{{ID: "fits", Outline: model.Rect(98, 98)}}, cfg))
	assert.Equal(t, KindPartTooLarge, KindOf(ValidateParts([]model.Part{{ID: "tight", Outline: model.Rect(99, 10)}}, cfg)))
}

func TestNest_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewService().Nest(ctx, squareRequest())
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, res.NestedParts)
}

func TestNest_CancelledDuringSearch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewService(WithIterationObserver(func(it engine.Iteration) {
		if it.N == 2 {
			cancel()
		}
	}))
	req := squareRequest()
	req.Config.MaxNoImprovement = 1000

	res, err := svc.Nest(ctx, req)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Empty(t, res.NestedParts)
}

func TestNest_InvalidInputReturnsNoResult(t *testing.T) {
	req := squareRequest()
	req.Config.RotationStep = 7
	res, err := NewService().Nest(context.Background(), req)
	assert.Equal(t, KindInvalidConfig, KindOf(err))
	assert.Equal(t, model.NestingResult{}, res)
}

func TestNest_AppliesDefaults(t *testing.T) {
	app := model.DefaultAppConfig()
	app.DefaultSheetWidth = 50
	app.DefaultSheetHeight = 40
	app.DefaultMaxNoImprovement = 3
	svc := NewService(WithDefaults(app))

	req := Request{Parts: []model.Part{{ID: "a", Outline: model.Rect(10, 10)}}}
	res, err := svc.Nest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.Sheet{Width: 50, Height: 40}, res.Sheet)
	assert.Equal(t, 3, res.Iterations)

	assert.Equal(t, 50.0, svc.Defaults().SheetWidth)
	assert.Equal(t, model.DefaultNestingConfig(), NewService().Defaults())
}

func TestCompare(t *testing.T) {
	svc := NewService()
	req := squareRequest()
	scenarios := engine.BuildDefaultScenarios(req.Config)

	results, err := svc.Compare(context.Background(), req.Parts, scenarios)
	require.NoError(t, err)
	require.Len(t, results, len(scenarios))
	for _, r := range results {
		assert.Len(t, r.Result.NestedParts, 2)
	}

	bad := []engine.ComparisonScenario{{Name: "bad", Config: model.NestingConfig{SheetWidth: 5, SheetHeight: 5, MaxNoImprovement: 1}}}
	_, err = svc.Compare(context.Background(), req.Parts, bad)
	assert.Equal(t, KindPartTooLarge, KindOf(err))
}

func TestErrorFormatting(t *testing.T) {
	assert.Equal(t, "InvalidConfig: spacing: must be >= 0", configError("spacing", "must be >= 0").Error())
	assert.Equal(t, "InvalidPart: part p1: zero area", partError("p1", "zero area").Error())

	wrapped := fmt.Errorf("submit: %w", ErrBusy)
	assert.True(t, errors.Is(wrapped, ErrBusy))
	assert.Equal(t, KindBusy, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, errors.Is(partError("p1", "x"), ErrBusy))
}
