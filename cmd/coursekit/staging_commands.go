package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"coursekit/internal/project"
	"coursekit/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean import staging directories",
	}
	cmd.AddCommand(newStagingListCommand(ctx), newStagingCleanCommand(ctx))
	return cmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staging directories with their owner, age and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := staging.Scan(cfg.Paths.StagingDir)
			if err != nil {
				return fmt.Errorf("scan staging dir: %w", err)
			}
			var total int64
			for _, d := range dirs {
				total += d.Size
			}

			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.Dir{}
				}
				return writeJSON(cmd, map[string]any{
					"staging_dir": cfg.Paths.StagingDir,
					"directories": dirs,
					"total_bytes": total,
				})
			}

			out := cmd.OutOrStdout()
			list := newListing("Directory", "Project", "Age", "Size").alignRight(2, 3)
			now := time.Now()
			for _, d := range dirs {
				list.add(d.Name, orDash(shortID(d.ProjectID)), compactAge(d.Age(now)), formatBytes(d.Size))
			}
			if list.len() > 0 {
				list.setFooter("", fmt.Sprintf("%d dirs", list.len()), "", formatBytes(total))
			}
			list.render(out, "No staging directories in "+cfg.Paths.StagingDir)
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove staging directories left by interrupted imports",
		Long: `Remove import staging directories left behind by interrupted imports.

Directories of imports still running are kept. A directory whose project is
half-way through installing is kept until it is older than --max-age.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = time.Duration(cfg.Archive.StagingMaxAgeHrs) * time.Hour
			}
			opCtx := operationContext(cmd, "staging_clean")
			return ctx.withProjects(func(projects *project.Manager, _ *slog.Logger) error {
				report, err := projects.CleanStaleStaging(opCtx, maxAge)
				if err != nil {
					return err
				}
				return printCleanReport(cmd, ctx.JSONMode(), report)
			})
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Age after which half-installed imports are removed (default from config)")
	return cmd
}

func printCleanReport(cmd *cobra.Command, asJSON bool, report staging.Report) error {
	if asJSON {
		failed := make([]map[string]string, 0, len(report.Failed))
		for _, f := range report.Failed {
			failed = append(failed, map[string]string{"path": f.Path, "error": f.Err.Error()})
		}
		removed := report.Removed
		if removed == nil {
			removed = []staging.Dir{}
		}
		return writeJSON(cmd, map[string]any{
			"removed":         removed,
			"failed":          failed,
			"reclaimed_bytes": report.Bytes(),
		})
	}
	out := cmd.OutOrStdout()
	if len(report.Removed) == 0 && len(report.Failed) == 0 {
		fmt.Fprintln(out, "Nothing to clean")
		return nil
	}
	for _, d := range report.Removed {
		fmt.Fprintf(out, "Removed %s (%s)\n", d.Name, formatBytes(d.Size))
	}
	for _, f := range report.Failed {
		fmt.Fprintf(out, "Failed  %s: %v\n", f.Path, f.Err)
	}
	fmt.Fprintf(out, "Reclaimed %s\n", formatBytes(report.Bytes()))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d staging directories could not be removed", len(report.Failed))
	}
	return nil
}

// compactAge renders d as whole minutes, hours or days.
func compactAge(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
