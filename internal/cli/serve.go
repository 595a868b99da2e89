package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/piwi3910/SlabNest/internal/nesting"
	"github.com/piwi3910/SlabNest/internal/rpc"
	"github.com/piwi3910/SlabNest/internal/server"
	"github.com/piwi3910/SlabNest/internal/store"
	"github.com/piwi3910/SlabNest/internal/watch"
)

func runServe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "serve")
	addr := fs.String("addr", "", "listen address (overrides config)")
	workers := fs.Int("workers", -1, "concurrent nesting runs, 0 = CPUs (overrides config)")
	db := fs.String("db", "", "job history database (overrides config)")
	origins := fs.String("cors", "", "comma-separated allowed origins (overrides config)")
	retain := fs.Duration("retain", 30*24*time.Hour, "drop finished jobs older than this at startup, 0 = keep all")
	if err := parse(fs, e, args); err != nil {
		return err
	}

	app := e.app
	if *addr != "" {
		app.ListenAddr = *addr
	}
	if *workers >= 0 {
		app.Workers = *workers
	}
	if *db != "" {
		app.JobDBPath = *db
	}
	if *origins != "" {
		app.CORSOrigins = splitList(*origins)
	}

	var recorder nesting.Recorder
	var history server.JobHistory
	if app.JobDBPath != "" {
		s, err := store.Open(app.JobDBPath)
		if err != nil {
			return fmt.Errorf("opening job store: %w", err)
		}
		defer s.Close()
		if *retain > 0 {
			if n, err := s.Purge(*retain); err != nil {
				log.Warn("purging old jobs failed", "error", err)
			} else if n > 0 {
				log.Info("purged old jobs", "count", n)
			}
		}
		recorder, history = s, s
	}

	svc := nesting.NewService(nesting.WithDefaults(app))
	pool := nesting.NewPool(svc, poolConfig(app.Workers, app.QueueSize, app.RunTimeout), recorder)
	defer pool.Close()

	srv := server.New(server.ConfigFromApp(app), svc, pool, history)
	log.Info("slabnest starting", "addr", app.ListenAddr, "history", history != nil)
	return srv.Run(ctx)
}

func runRPC(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "rpc")
	if err := parse(fs, e, args); err != nil {
		return err
	}

	svc := nesting.NewService(nesting.WithDefaults(e.app))
	pool := nesting.NewPool(svc, poolConfig(e.app.Workers, e.app.QueueSize, e.app.RunTimeout), nil)
	defer pool.Close()
	return rpc.Serve(ctx, rpc.Stdio(), rpc.NewHandler(pool))
}

func runWatch(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "watch")
	dir := fs.String("dir", ".", "folder to watch")
	pattern := fs.String("pattern", watch.DefaultPattern, "doublestar pattern relative to -dir")
	out := fs.String("out", "nested_layout.svg", "layout file (.svg, .dxf, .pdf, .xlsx or .json)")
	debounce := fs.Duration("debounce", 300*time.Millisecond, "quiet period before re-nesting")
	nf := bindNestFlags(fs)
	if err := parse(fs, e, args); err != nil {
		return err
	}

	cfg, err := nf.config(e)
	if err != nil {
		return err
	}
	svc := nesting.NewService(nesting.WithDefaults(e.app))
	w, err := watch.New(watch.Config{
		Dir:      *dir,
		Pattern:  *pattern,
		Output:   *out,
		Nesting:  cfg,
		Debounce: *debounce,
		OnBuild: func(b watch.Build) {
			if b.Err != nil {
				fmt.Fprintf(e.stderr, "nest failed: %v\n", b.Err)
				return
			}
			fmt.Fprintf(e.stdout, "%d parts from %d file(s) on %d sheet(s), %.1f%% -> %s\n",
				len(b.Result.NestedParts), len(b.Files), b.Result.SheetCount, b.Result.Utilization, *out)
		},
	}, svc)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func poolConfig(workers, queue, timeoutSec int) nesting.PoolConfig {
	return nesting.PoolConfig{
		Workers:    workers,
		QueueSize:  queue,
		RunTimeout: time.Duration(timeoutSec) * time.Second,
	}
}
