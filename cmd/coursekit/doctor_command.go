package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"coursekit/internal/preflight"
	"coursekit/internal/project"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, free space, and the project catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withProjects(func(projects *project.Manager, _ *slog.Logger) error {
				results := preflight.RunAll(cmd.Context(), cfg, projects.Catalog())
				failed := preflight.Failed(results)

				if ctx.JSONMode() {
					out := make([]map[string]any, 0, len(results))
					for _, r := range results {
						out = append(out, map[string]any{"name": r.Name, "passed": r.Passed, "detail": r.Detail})
					}
					if err := writeJSON(cmd, out); err != nil {
						return err
					}
				} else {
					w := cmd.OutOrStdout()
					color := isTerminal(w)
					fmt.Fprintf(w, "coursekit doctor (%s)\n", cfg.Paths.ProjectsDir)
					for _, r := range results {
						state := statePass
						if !r.Passed {
							state = stateFail
						}
						fmt.Fprintln(w, statusLine(r.Name, state, r.Detail, color))
					}
					backups := fmt.Sprintf("enabled: %s, keep %d", yesNo(cfg.Backup.Enabled), cfg.Backup.Keep)
					fmt.Fprintln(w, statusLine("Backups", stateInfo, backups, color))
				}
				if len(failed) > 0 {
					return errors.New("preflight checks failed")
				}
				return nil
			})
		},
	}
}
