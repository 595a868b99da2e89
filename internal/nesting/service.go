// Package nesting is the entry point to the nesting engine. It validates
// requests, expands part quantities, runs construction and local search, and
// shapes the best layout into a NestingResult.
package nesting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/piwi3910/SlabNest/internal/engine"
	"github.com/piwi3910/SlabNest/internal/geometry"
	"github.com/piwi3910/SlabNest/internal/logger"
	"github.com/piwi3910/SlabNest/internal/model"
)

var log = logger.ForComponent("nesting")

// MaxRotationAngles caps the discrete rotations one step may produce, which
// puts the smallest accepted rotationStep at 0.1 degrees.
const MaxRotationAngles = 3600

// outlineTolerance merges consecutive vertices closer than this, including a
// closing vertex that repeats the first.
const outlineTolerance = 1e-9

// Request is one nesting job: the parts to place and the packing parameters.
type Request struct {
	Parts  []model.Part        `json:"parts"`
	Config model.NestingConfig `json:"config"`
}

// Service runs nesting requests. It holds no per-request state and is safe
// for concurrent use.
type Service struct {
	defaults *model.AppConfig
	observer func(engine.Iteration)
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithDefaults fills omitted request fields from the app config.
func WithDefaults(cfg model.AppConfig) ServiceOption {
	return func(s *Service) {
		s.defaults = &cfg
	}
}

// WithIterationObserver receives every optimizer iteration of every run.
func WithIterationObserver(fn func(engine.Iteration)) ServiceOption {
	return func(s *Service) {
		s.observer = fn
	}
}

func NewService(opts ...ServiceOption) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Nest validates the request and returns the best layout found. No result is
// returned alongside an error. The result carries no job id; the pool assigns
// one, so runs with the same seed produce identical results.
func (s *Service) Nest(ctx context.Context, req Request) (model.NestingResult, error) {
	cfg := s.Resolve(req.Config)
	if err := ValidateConfig(cfg); err != nil {
		return model.NestingResult{}, err
	}
	req.Parts = CleanParts(req.Parts)
	if err := ValidateParts(req.Parts, cfg); err != nil {
		return model.NestingResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.NestingResult{}, cancelled(err)
	}

	start := time.Now()
	instances := engine.Expand(req.Parts)

	var opts []engine.Option
	if s.observer != nil {
		opts = append(opts, engine.WithObserver(s.observer))
	}
	layout, stats, err := engine.Run(ctx, cfg, instances, opts...)
	if err != nil {
		var ue *engine.UnplaceableError
		partID := ""
		if errors.As(err, &ue) {
			partID = ue.PartID
		}
		log.Error("constructive placement failed after validation", "part", partID, "error", err)
		return model.NestingResult{}, &Error{
			Kind:    KindUnplaceable,
			PartID:  partID,
			Message: "part could not be placed on an empty sheet",
			Err:     err,
		}
	}
	if stats.Cancelled {
		return model.NestingResult{}, cancelled(ctx.Err())
	}

	result := model.ResultFromLayout(layout, cfg.Sheet())
	result.Iterations = stats.Iterations

	log.Info("nesting complete",
		"instances", len(instances),
		"sheets", result.SheetCount,
		"utilization", math.Round(result.Utilization*100)/100,
		"iterations", stats.Iterations,
		"improvements", stats.Improvements,
		"elapsed", time.Since(start).String(),
	)
	return result, nil
}

// Compare validates the parts against every scenario and runs them in turn.
func (s *Service) Compare(ctx context.Context, parts []model.Part, scenarios []engine.ComparisonScenario) ([]engine.ComparisonResult, error) {
	parts = CleanParts(parts)
	resolved := make([]engine.ComparisonScenario, len(scenarios))
	for i, sc := range scenarios {
		cfg := s.Resolve(sc.Config)
		if err := ValidateConfig(cfg); err != nil {
			return nil, err
		}
		if err := ValidateParts(parts, cfg); err != nil {
			return nil, err
		}
		resolved[i] = engine.ComparisonScenario{Name: sc.Name, Config: cfg}
	}
	results := engine.CompareScenarios(ctx, resolved, parts)
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	return results, nil
}

// Defaults returns the nesting config requests start from.
func (s *Service) Defaults() model.NestingConfig {
	if s.defaults != nil {
		return s.defaults.NestingDefaults()
	}
	return model.DefaultNestingConfig()
}

// Resolve fills omitted request fields from the service defaults.
func (s *Service) Resolve(cfg model.NestingConfig) model.NestingConfig {
	if s.defaults != nil {
		s.defaults.ApplyDefaults(&cfg)
	}
	return cfg
}

func cancelled(err error) error {
	return &Error{Kind: KindCancelled, Message: "nesting run was cancelled", Err: err}
}

// ValidateConfig checks the packing parameters before any geometry work.
func ValidateConfig(cfg model.NestingConfig) error {
	if !finite(cfg.Spacing) || cfg.Spacing < 0 {
		return configError("spacing", "must be a finite number >= 0, got %v", cfg.Spacing)
	}
	if !finite(cfg.RotationStep) || cfg.RotationStep < 0 || cfg.RotationStep > 360 {
		return configError("rotationStep", "must be between 0 and 360 degrees, got %v", cfg.RotationStep)
	}
	if cfg.RotationStep > 0 {
		n := 360 / cfg.RotationStep
		if math.Abs(n-math.Round(n)) > 1e-9 {
			return configError("rotationStep", "%v does not evenly divide 360", cfg.RotationStep)
		}
		if math.Round(n) > MaxRotationAngles {
			return configError("rotationStep", "%v gives %.0f rotations, at most %d are allowed",
				cfg.RotationStep, math.Round(n), MaxRotationAngles)
		}
	}
	if !finite(cfg.SheetWidth) || cfg.SheetWidth <= 0 {
		return configError("sheetWidth", "must be > 0, got %v", cfg.SheetWidth)
	}
	if !finite(cfg.SheetHeight) || cfg.SheetHeight <= 0 {
		return configError("sheetHeight", "must be > 0, got %v", cfg.SheetHeight)
	}
	if cfg.Spacing >= cfg.SheetWidth || cfg.Spacing >= cfg.SheetHeight {
		return configError("spacing", "%v leaves no usable sheet area", cfg.Spacing)
	}
	if cfg.MaxNoImprovement <= 0 {
		return configError("maxNoImprovement", "must be a positive integer, got %d", cfg.MaxNoImprovement)
	}
	if cfg.MaxIterations < 0 {
		return configError("maxIterations", "must be >= 0, got %d", cfg.MaxIterations)
	}
	return nil
}

// CleanParts returns copies of parts with repeated consecutive vertices and a
// closing vertex that repeats the first removed. The input is not modified.
func CleanParts(parts []model.Part) []model.Part {
	if parts == nil {
		return nil
	}
	cleaned := make([]model.Part, len(parts))
	for i, p := range parts {
		p.Outline = p.Outline.Clean(outlineTolerance)
		cleaned[i] = p
	}
	return cleaned
}

// ValidateParts rejects degenerate, self-intersecting, duplicate and
// oversized parts.
func ValidateParts(parts []model.Part, cfg model.NestingConfig) error {
	if len(parts) == 0 {
		return &Error{Kind: KindInvalidPart, Message: "request contains no parts"}
	}
	seen := make(map[string]bool, len(parts))
	for i, p := range parts {
		if p.ID == "" {
			return &Error{Kind: KindInvalidPart, Message: "part has no id", Field: partField(i)}
		}
		if seen[p.ID] {
			return partError(p.ID, "duplicate part id")
		}
		seen[p.ID] = true

		if p.Quantity < 0 {
			return partError(p.ID, "quantity must be >= 0, got %d", p.Quantity)
		}
		if len(p.Outline) < 3 {
			return partError(p.ID, "outline needs at least 3 vertices, got %d", len(p.Outline))
		}
		if !p.Outline.IsFinite() {
			return partError(p.ID, "outline has a non-finite coordinate")
		}
		if p.Outline.Area() <= geometry.Epsilon {
			return partError(p.ID, "outline has zero area")
		}
		if !geometry.IsSimple(p.Outline) {
			return partError(p.ID, "outline is self-intersecting")
		}
		if !engine.FitsEmptySheet(p.Outline, cfg) {
			w, h := p.Outline.Size()
			return &Error{
				Kind:    KindPartTooLarge,
				PartID:  p.ID,
				Message: fmtTooLarge(w, h, cfg),
			}
		}
	}
	return nil
}

func fmtTooLarge(w, h float64, cfg model.NestingConfig) string {
	return fmt.Sprintf("%.1f x %.1f mm outline does not fit the usable %.1f x %.1f mm sheet at any allowed rotation",
		w, h, cfg.SheetWidth-cfg.Spacing, cfg.SheetHeight-cfg.Spacing)
}

func partField(i int) string {
	return fmt.Sprintf("parts[%d].id", i)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
