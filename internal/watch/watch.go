// Package watch re-nests a folder of outline files whenever one of them
// changes and rewrites the layout output.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/piwi3910/SlabNest/internal/export"
	"github.com/piwi3910/SlabNest/internal/importer"
	"github.com/piwi3910/SlabNest/internal/logger"
	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
)

var log = logger.ForComponent("watch")

// DefaultPattern matches every importable file below the watched folder.
const DefaultPattern = "**/*.{dxf,svg,csv,xlsx}"

// ErrNoParts is reported when the watched files hold no parts.
var ErrNoParts = errors.New("no parts found in watched files")

// Nester runs one nesting request. *nesting.Service and *nesting.Pool both
// satisfy it.
type Nester interface {
	Nest(ctx context.Context, req nesting.Request) (model.NestingResult, error)
}

// Config describes what to watch and where to write the layout.
type Config struct {
	Dir      string              // Folder to watch, recursively
	Pattern  string              // doublestar pattern relative to Dir
	Output   string              // Layout file; its extension selects the format
	Nesting  model.NestingConfig // Packing parameters for every run
	Debounce time.Duration       // Quiet period before a re-nest

	// OnBuild, when set, receives the outcome of every run.
	OnBuild func(Build)
}

// Build is the outcome of one re-nest.
type Build struct {
	Files    []string
	Parts    int
	Result   model.NestingResult
	Warnings []string
	Err      error
}

// Watcher re-nests on file changes.
type Watcher struct {
	cfg    Config
	nester Nester
	format export.Format
	output string

	fs        *fsnotify.Watcher
	debouncer *debouncer
	buildMu   sync.Mutex
}

// New validates the config and creates the file watcher.
func New(cfg Config, nester Nester) (*Watcher, error) {
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("invalid pattern %q", cfg.Pattern)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir %s is not a directory", cfg.Dir)
	}
	format, err := export.FormatForPath(cfg.Output)
	if err != nil {
		return nil, err
	}
	output, err := filepath.Abs(cfg.Output)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &Watcher{cfg: cfg, nester: nester, format: format, output: output, fs: fsw}, nil
}

// Run nests once, then again after every batch of changes, until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	if err := w.addTree(w.cfg.Dir); err != nil {
		return err
	}
	log.Info("watching", "dir", w.cfg.Dir, "pattern", w.cfg.Pattern, "output", w.cfg.Output)

	w.debouncer = newDebouncer(w.cfg.Debounce, func(paths []string) { w.rebuild(ctx, paths) })
	defer w.debouncer.stop()
	w.rebuild(ctx, nil)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch stopped")
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.hidden(event.Name) {
				if err := w.addTree(event.Name); err != nil {
					log.Warn("cannot watch new directory", "path", event.Name, "error", err)
				}
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.relevant(event.Name) {
		return
	}
	log.Debug("file event", "path", event.Name, "op", event.Op.String())
	w.debouncer.add(event.Name)
}

// relevant reports whether a changed path should trigger a re-nest.
func (w *Watcher) relevant(path string) bool {
	if abs, err := filepath.Abs(path); err == nil && abs == w.output {
		return false
	}
	rel, err := filepath.Rel(w.cfg.Dir, path)
	if err != nil || hidden(rel) {
		return false
	}
	ok, _ := doublestar.Match(w.cfg.Pattern, filepath.ToSlash(rel))
	return ok
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.hidden(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) rebuild(ctx context.Context, changed []string) {
	if len(changed) > 0 {
		log.Info("re-nesting", "changed", len(changed))
	}
	b := w.Build(ctx)
	if b.Err != nil {
		log.Error("nesting failed", "files", len(b.Files), "error", b.Err)
	} else {
		log.Info("layout written",
			"output", w.cfg.Output,
			"parts", b.Parts,
			"sheets", b.Result.SheetCount,
			"utilization", fmt.Sprintf("%.1f%%", b.Result.Utilization))
	}
	if w.cfg.OnBuild != nil {
		w.cfg.OnBuild(b)
	}
}

// Build imports every matching file, nests the parts and writes the output.
func (w *Watcher) Build(ctx context.Context) Build {
	w.buildMu.Lock()
	defer w.buildMu.Unlock()

	var b Build
	files, err := Match(w.cfg.Dir, w.cfg.Pattern)
	if err != nil {
		b.Err = err
		return b
	}
	b.Files = files

	var imported importer.ImportResult
	for _, f := range files {
		rel, _ := filepath.Rel(w.cfg.Dir, f)
		imported.Merge(rel, importer.ImportFile(f))
	}
	b.Warnings = imported.Warnings
	b.Parts = len(imported.Parts)
	if imported.Failed() {
		b.Err = fmt.Errorf("import failed: %s", strings.Join(imported.Errors, "; "))
		return b
	}
	if len(imported.Parts) == 0 {
		b.Err = ErrNoParts
		return b
	}

	result, err := w.nester.Nest(ctx, nesting.Request{Parts: imported.Parts, Config: w.cfg.Nesting})
	if err != nil {
		b.Err = err
		return b
	}
	b.Result = result

	if err := export.WriteFile(w.cfg.Output, w.format, export.Job{Result: result, Parts: imported.Parts}); err != nil {
		b.Err = fmt.Errorf("writing %s: %w", w.cfg.Output, err)
	}
	return b
}

// Match returns the importable files below dir that match pattern, sorted.
func Match(dir, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("matching %q: %w", pattern, err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if hidden(m) || !importer.Supported(m) {
			continue
		}
		files = append(files, filepath.Join(dir, filepath.FromSlash(m)))
	}
	sort.Strings(files)
	return files, nil
}

// hidden reports whether path lies in or is a dot-file below the watched dir.
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.cfg.Dir, path)
	return err == nil && hidden(rel)
}

func hidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}
