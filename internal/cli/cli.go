// Package cli implements the slabnest command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/piwi3910/SlabNest/internal/logger"
	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/project"
)

var log = logger.ForComponent("cli")

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// errUsage marks argument errors; the command's usage has been printed.
var errUsage = errors.New("usage error")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"serve", "run the HTTP API", runServe},
	{"nest", "nest part files and write the layout", runNest},
	{"watch", "re-nest a folder whenever its files change", runWatch},
	{"rpc", "serve JSON-RPC on stdin/stdout", runRPC},
	{"config", "show or initialize the config file", runConfig},
	{"preset", "list, save or remove nesting presets", runPreset},
	{"backup", "export or restore config and presets", runBackup},
}

// env is what every command gets: output streams and the loaded config.
type env struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	app        model.AppConfig
}

func (e *env) presetPath() string {
	return filepath.Join(filepath.Dir(e.configPath), "presets.json")
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		usage(stdout)
		return ExitOK
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == argv[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", argv[0])
		usage(stderr)
		return ExitUsage
	}

	e := &env{stdout: stdout, stderr: stderr}
	err := cmd.run(ctx, e, argv[1:])
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, flag.ErrHelp):
		return ExitOK
	case errors.Is(err, errUsage):
		return ExitUsage
	}
	fmt.Fprintf(stderr, "slabnest %s: %v\n", cmd.name, err)
	return ExitFailure
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: slabnest <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'slabnest <command> -h' for command flags.")
}

// newFlagSet returns a ContinueOnError flag set carrying the -config flag.
func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("slabnest "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.StringVar(&e.configPath, "config", project.DefaultConfigPath(), "config file")
	return fs
}

// parse parses args, loads the config file and initializes logging.
func parse(fs *flag.FlagSet, e *env, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	app, err := project.LoadAppConfig(e.configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", e.configPath, err)
	}
	e.app = app
	initLogging(e)
	return nil
}

func initLogging(e *env) {
	logger.Init(logger.Config{
		Level:  logger.ParseLevel(e.app.LogLevel),
		Format: e.app.LogFormat,
		Output: e.stderr,
	})
}

// flagsSet returns the names of the flags given on the command line.
func flagsSet(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func usageError(fs *flag.FlagSet, format string, args ...any) error {
	fmt.Fprintf(fs.Output(), format+"\n", args...)
	fs.Usage()
	return errUsage
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
