package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/piwi3910/SlabNest/internal/engine"
	"github.com/piwi3910/SlabNest/internal/export"
	"github.com/piwi3910/SlabNest/internal/importer"
	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
	"github.com/piwi3910/SlabNest/internal/project"
)

// nestFlags are the packing parameters shared by nest and watch.
type nestFlags struct {
	fs       *flag.FlagSet
	preset   string
	spacing  float64
	rotation float64
	width    float64
	height   float64
	patience int
	seed     int64
	maxIter  int
}

func bindNestFlags(fs *flag.FlagSet) *nestFlags {
	f := &nestFlags{fs: fs}
	fs.StringVar(&f.preset, "preset", "", "start from a saved preset")
	fs.Float64Var(&f.spacing, "spacing", 0, "minimum clearance between parts, mm")
	fs.Float64Var(&f.rotation, "rotation", 0, "rotation step in degrees, 0 = no rotation")
	fs.Float64Var(&f.width, "width", 0, "sheet width, mm")
	fs.Float64Var(&f.height, "height", 0, "sheet height, mm")
	fs.IntVar(&f.patience, "patience", 0, "iterations without improvement before stopping")
	fs.Int64Var(&f.seed, "seed", 0, "search seed")
	fs.IntVar(&f.maxIter, "max-iterations", 0, "hard iteration cap, 0 = none")
	return f
}

// config layers the saved defaults, the preset and the flags given on the
// command line, in that order.
func (f *nestFlags) config(e *env) (model.NestingConfig, error) {
	cfg := e.app.NestingDefaults()
	if f.preset != "" {
		presets, err := project.LoadPresets(e.presetPath())
		if err != nil {
			return cfg, fmt.Errorf("loading presets: %w", err)
		}
		p := presets.FindByName(f.preset)
		if p == nil {
			p = presets.FindByID(f.preset)
		}
		if p == nil {
			return cfg, fmt.Errorf("preset %q not found", f.preset)
		}
		cfg = p.Config
		e.app.ApplyDefaults(&cfg)
	}

	set := flagsSet(f.fs)
	if set["spacing"] {
		cfg.Spacing = f.spacing
	}
	if set["rotation"] {
		cfg.RotationStep = f.rotation
	}
	if set["width"] {
		cfg.SheetWidth = f.width
	}
	if set["height"] {
		cfg.SheetHeight = f.height
	}
	if set["patience"] {
		cfg.MaxNoImprovement = f.patience
	}
	if set["seed"] {
		cfg.Seed = f.seed
	}
	if set["max-iterations"] {
		cfg.MaxIterations = f.maxIter
	}
	return cfg, nil
}

func runNest(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "nest")
	parts := fs.String("parts", "", `doublestar glob of part files, e.g. "parts/**/*.dxf"`)
	out := fs.String("out", "", "layout file (.svg, .dxf, .pdf, .xlsx or .json); empty prints a summary")
	labels := fs.String("labels", "", "also write a QR label sheet PDF")
	compare := fs.Bool("compare", false, "compare alternative settings instead of writing a layout")
	nf := bindNestFlags(fs)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: slabnest nest [flags] [file...]")
		fs.PrintDefaults()
	}
	if err := parse(fs, e, args); err != nil {
		return err
	}

	files, err := collectFiles(*parts, fs.Args())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return usageError(fs, "no part files given")
	}
	var format export.Format
	if *out != "" {
		if format, err = export.FormatForPath(*out); err != nil {
			return usageError(fs, "%v", err)
		}
	}

	cfg, err := nf.config(e)
	if err != nil {
		return err
	}
	imported, err := importFiles(e, files)
	if err != nil {
		return err
	}

	if e.app.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.app.RunTimeout)*time.Second)
		defer cancel()
	}
	svc := nesting.NewService(nesting.WithDefaults(e.app))

	if *compare {
		results, err := svc.Compare(ctx, imported, engine.BuildDefaultScenarios(cfg))
		if err != nil {
			return err
		}
		printComparison(e, results)
		return nil
	}

	result, err := svc.Nest(ctx, nesting.Request{Parts: imported, Config: cfg})
	if err != nil {
		return err
	}
	job := export.Job{Result: result, Parts: imported}

	if *out == "" {
		printResult(e, job)
	} else {
		if err := export.WriteFile(*out, format, job); err != nil {
			return fmt.Errorf("writing %s: %w", *out, err)
		}
		fmt.Fprintf(e.stdout, "%d parts on %d sheet(s), %.1f%% utilization -> %s\n",
			len(result.NestedParts), result.SheetCount, result.Utilization, *out)
	}
	if *labels != "" {
		if err := export.ExportLabels(*labels, job); err != nil {
			return fmt.Errorf("writing labels %s: %w", *labels, err)
		}
	}
	return nil
}

// collectFiles expands the glob and appends explicit paths, dropping
// duplicates and files no importer reads.
func collectFiles(pattern string, explicit []string) ([]string, error) {
	var files []string
	if pattern != "" {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad -parts pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if importer.Supported(m) {
				files = append(files, m)
			}
		}
		sort.Strings(files)
	}

	seen := map[string]bool{}
	for _, f := range files {
		seen[f] = true
	}
	for _, f := range explicit {
		if !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	return files, nil
}

func importFiles(e *env, files []string) ([]model.Part, error) {
	var all importer.ImportResult
	for _, f := range files {
		all.Merge(f, importer.ImportFile(f))
	}
	for _, w := range all.Warnings {
		fmt.Fprintln(e.stderr, "warning:", w)
	}
	if all.Failed() {
		return nil, fmt.Errorf("import failed:\n  %s", strings.Join(all.Errors, "\n  "))
	}
	if len(all.Parts) == 0 {
		return nil, fmt.Errorf("no parts found in %d file(s)", len(files))
	}
	return all.Parts, nil
}

func printResult(e *env, job export.Job) {
	r := job.Result
	fmt.Fprintf(e.stdout, "Sheet %gx%g mm, %d sheet(s), %.1f%% utilization, %d iterations\n\n",
		r.Sheet.Width, r.Sheet.Height, r.SheetCount, r.Utilization, r.Iterations)

	labels := map[string]string{}
	for _, p := range job.Parts {
		labels[p.ID] = p.Label
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SHEET\tPART\tLABEL\tCOPY\tX\tY\tROTATION")
	for _, p := range r.NestedParts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.2f\t%.2f\t%g\n",
			p.SheetIndex+1, p.PartID, labels[p.PartID], p.Instance+1, p.X, p.Y, p.Rotation)
	}
	tw.Flush()
}

func printComparison(e *env, results []engine.ComparisonResult) {
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSHEETS\tUTILIZATION\tWASTE\tITERATIONS")
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%s\n", r.Scenario.Name, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%.1f%%\t%d\n",
			r.Scenario.Name, r.SheetsUsed, r.Result.Utilization, r.WastePercent, r.Result.Iterations)
	}
	tw.Flush()
}

// printJSON writes v indented; used by the config and preset commands.
func printJSON(e *env, v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
