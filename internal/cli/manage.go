package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/project"
)

// action splits "<action> [flags]" and rejects unknown actions.
func action(e *env, cmd string, args []string, known ...string) (string, []string, error) {
	if len(args) > 0 {
		for _, k := range known {
			if args[0] == k {
				return k, args[1:], nil
			}
		}
	}
	fmt.Fprintf(e.stderr, "Usage: slabnest %s <", cmd)
	for i, k := range known {
		if i > 0 {
			fmt.Fprint(e.stderr, "|")
		}
		fmt.Fprint(e.stderr, k)
	}
	fmt.Fprintln(e.stderr, "> [flags]")
	return "", nil, errUsage
}

func runConfig(_ context.Context, e *env, args []string) error {
	act, rest, err := action(e, "config", args, "show", "init", "path")
	if err != nil {
		return err
	}
	fs := newFlagSet(e, "config "+act)
	force := fs.Bool("force", false, "overwrite an existing config file (init)")
	if err := parse(fs, e, rest); err != nil {
		return err
	}

	switch act {
	case "path":
		fmt.Fprintln(e.stdout, e.configPath)
	case "show":
		return printJSON(e, e.app)
	case "init":
		if _, err := os.Stat(e.configPath); err == nil && !*force {
			return fmt.Errorf("%s already exists (use -force to overwrite)", e.configPath)
		}
		if err := project.SaveAppConfig(e.configPath, model.DefaultAppConfig()); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Fprintln(e.stdout, "wrote", e.configPath)
	}
	return nil
}

func runPreset(_ context.Context, e *env, args []string) error {
	act, rest, err := action(e, "preset", args, "list", "save", "remove")
	if err != nil {
		return err
	}
	fs := newFlagSet(e, "preset "+act)
	name := fs.String("name", "", "preset name")
	desc := fs.String("description", "", "preset description (save)")
	var nf *nestFlags
	if act == "save" {
		nf = bindNestFlags(fs)
	}
	if err := parse(fs, e, rest); err != nil {
		return err
	}

	presets, err := project.LoadPresets(e.presetPath())
	if err != nil {
		return fmt.Errorf("loading presets: %w", err)
	}

	switch act {
	case "list":
		tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tID\tSHEET\tSPACING\tROTATION\tDESCRIPTION")
		for _, p := range presets.Presets {
			fmt.Fprintf(tw, "%s\t%s\t%gx%g\t%g\t%g\t%s\n", p.Name, p.ID,
				p.Config.SheetWidth, p.Config.SheetHeight, p.Config.Spacing, p.Config.RotationStep, p.Description)
		}
		return tw.Flush()

	case "save":
		if *name == "" {
			return usageError(fs, "-name is required")
		}
		cfg, err := nf.config(e)
		if err != nil {
			return err
		}
		presets.Upsert(model.NewPreset(*name, *desc, cfg))

	case "remove":
		p := presets.FindByName(*name)
		if p == nil {
			return fmt.Errorf("preset %q not found", *name)
		}
		presets.Remove(p.ID)
	}

	if err := project.SavePresets(e.presetPath(), presets); err != nil {
		return fmt.Errorf("saving presets: %w", err)
	}
	fmt.Fprintf(e.stdout, "%s preset %q\n", map[string]string{"save": "saved", "remove": "removed"}[act], *name)
	return nil
}

func runBackup(_ context.Context, e *env, args []string) error {
	act, rest, err := action(e, "backup", args, "export", "restore")
	if err != nil {
		return err
	}
	fs := newFlagSet(e, "backup "+act)
	file := fs.String("file", "slabnest-backup.json", "backup file")
	if err := parse(fs, e, rest); err != nil {
		return err
	}

	switch act {
	case "export":
		presets, err := project.LoadPresets(e.presetPath())
		if err != nil {
			return fmt.Errorf("loading presets: %w", err)
		}
		if err := project.ExportAllData(*file, e.app, presets); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "exported config and %d preset(s) to %s\n", len(presets.Presets), *file)
	case "restore":
		backup, err := project.ImportAllData(*file)
		if err != nil {
			return err
		}
		if err := project.RestoreAllData(backup, e.configPath, e.presetPath()); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "restored config and %d preset(s) from %s\n", len(backup.Presets.Presets), *file)
	}
	return nil
}
