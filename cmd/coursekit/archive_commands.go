package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"coursekit/internal/archive"
	"coursekit/internal/config"
	"coursekit/internal/project"
	"coursekit/internal/textutil"
)

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Export and import portable project archives",
	}

	archiveCmd.AddCommand(newArchiveExportCommand(ctx))
	archiveCmd.AddCommand(newArchiveImportCommand(ctx))
	archiveCmd.AddCommand(newArchiveReplaceCommand(ctx))
	archiveCmd.AddCommand(newArchiveInspectCommand(ctx))

	return archiveCmd
}

// withArchiver builds an archiver that reports progress on stderr when it is a terminal.
func (c *commandContext) withArchiver(cmd *cobra.Command, fn func(*archive.Archiver, *project.Manager) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	return c.withProjects(func(projects *project.Manager, logger *slog.Logger) error {
		var opts []archive.Option
		if errOut := cmd.ErrOrStderr(); isTerminal(errOut) && !c.JSONMode() {
			opts = append(opts, archive.WithProgress(func(p archive.Progress) {
				if p.Phase != archive.PhaseMedia {
					return
				}
				fmt.Fprintf(errOut, "\r%s %d/%d %-24s", p.Phase, p.Done, p.Total, p.MediaID)
				if p.Done == p.Total {
					fmt.Fprintln(errOut)
				}
			}))
		}
		return fn(archive.New(projects, cfg, logger, opts...), projects)
	})
}

func printSummary(cmd *cobra.Command, ctx *commandContext, verb string, summary archive.Summary, path string) error {
	if ctx.JSONMode() {
		corrections := make([]map[string]string, 0, len(summary.Corrections))
		for _, c := range summary.Corrections {
			corrections = append(corrections, map[string]string{
				"page":    c.Page.String(),
				"kind":    c.Kind.String(),
				"removed": c.Removed,
				"added":   c.Added,
			})
		}
		skipped := summary.Skipped
		if skipped == nil {
			skipped = []string{}
		}
		return writeJSON(cmd, map[string]any{
			"project_id":  summary.ProjectID,
			"name":        summary.Name,
			"path":        path,
			"media":       summary.MediaCount,
			"remote":      summary.RemoteCount,
			"bytes":       summary.Bytes,
			"skipped":     skipped,
			"corrections": corrections,
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (%s)\n", verb, summary.Name, summary.ProjectID)
	fmt.Fprintf(out, "  Archive: %s\n", path)
	fmt.Fprintf(out, "  Media:   %d payloads (%s), %d remote\n", summary.MediaCount, formatBytes(summary.Bytes), summary.RemoteCount)
	if len(summary.Skipped) > 0 {
		fmt.Fprintf(out, "  Skipped: %s\n", strings.Join(summary.Skipped, ", "))
	}
	for _, c := range summary.Corrections {
		fmt.Fprintf(out, "  Realigned %s on %s: %s -> %s\n", c.Kind, c.Page, orDash(c.Removed), orDash(c.Added))
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newArchiveExportCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export <project>",
		Short: "Write a project and its media to a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx := operationContext(cmd, "archive_export")
			return ctx.withArchiver(cmd, func(a *archive.Archiver, projects *project.Manager) error {
				id, err := resolveProjectID(opCtx, projects, args[0])
				if err != nil {
					return err
				}
				path := strings.TrimSpace(outputPath)
				if path == "" {
					path, err = defaultExportPath(opCtx, projects, id)
					if err != nil {
						return err
					}
				} else if path, err = config.ExpandPath(path); err != nil {
					return err
				}
				summary, err := a.ExportFile(opCtx, id, path)
				if err != nil {
					return err
				}
				return printSummary(cmd, ctx, "Exported", summary, path)
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Archive path (default <project-name>.zip in the working directory)")
	return cmd
}

func defaultExportPath(ctx context.Context, projects *project.Manager, id string) (string, error) {
	entry, err := projects.Catalog().Get(ctx, id)
	if err != nil {
		return "", err
	}
	name := textutil.Slug(entry.Name, "course") + ".zip"
	return filepath.Abs(name)
}

func newArchiveImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive>",
		Short: "Import an archive as a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			opCtx := operationContext(cmd, "archive_import")
			return ctx.withArchiver(cmd, func(a *archive.Archiver, _ *project.Manager) error {
				summary, err := a.ImportFile(opCtx, path)
				if err != nil {
					return err
				}
				return printSummary(cmd, ctx, "Imported", summary, path)
			})
		},
	}
}

func newArchiveReplaceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "replace <project> <archive>",
		Short: "Replace a project with the content of an archive",
		Long: `Replace a project with the content of an archive.

The archive is imported as a new project first. The existing project is
deleted only after the import succeeds, so a broken archive leaves it intact.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}
			opCtx := operationContext(cmd, "archive_replace")
			return ctx.withArchiver(cmd, func(a *archive.Archiver, projects *project.Manager) error {
				id, err := resolveProjectID(opCtx, projects, args[0])
				if err != nil {
					return err
				}
				summary, err := a.ReplaceFile(opCtx, id, path)
				if err != nil {
					return err
				}
				return printSummary(cmd, ctx, "Replaced "+shortID(id)+" with", summary, path)
			})
		},
	}
}

func newArchiveInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Validate an archive without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer file.Close()
			info, err := file.Stat()
			if err != nil {
				return fmt.Errorf("stat archive: %w", err)
			}

			return ctx.withArchiver(cmd, func(a *archive.Archiver, _ *project.Manager) error {
				man, err := a.Inspect(file, info.Size())
				if err != nil {
					return err
				}
				ids := make([]string, 0, len(man.Media))
				for _, e := range man.Media {
					ids = append(ids, e.ID)
				}
				skipped := man.Skipped
				if skipped == nil {
					skipped = []string{}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{
						"format":      man.Record.Format,
						"version":     man.Record.Version,
						"project":     man.Record.Project,
						"topics":      len(man.Record.Graph.Topics),
						"media":       ids,
						"remote":      man.Remote,
						"skipped":     skipped,
						"total_bytes": man.TotalBytes,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Archive: %s (%s v%d)\n", path, man.Record.Format, man.Record.Version)
				fmt.Fprintf(out, "Project: %s\n", man.Record.Project.Name)
				fmt.Fprintf(out, "Topics:  %d\n", len(man.Record.Graph.Topics))
				fmt.Fprintf(out, "Media:   %d payloads (%s), %d remote\n", len(man.Media), formatBytes(man.TotalBytes), man.Remote)
				if len(skipped) > 0 {
					fmt.Fprintf(out, "Skipped: %s\n", strings.Join(skipped, ", "))
				}
				return nil
			})
		},
	}
}
