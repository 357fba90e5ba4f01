package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"coursekit/internal/catalog"
	"coursekit/internal/course"
	"coursekit/internal/media"
	"coursekit/internal/project"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Create, inspect, and remove course projects",
	}

	projectCmd.AddCommand(newProjectCreateCommand(ctx))
	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))
	projectCmd.AddCommand(newProjectAddTopicCommand(ctx))
	projectCmd.AddCommand(newProjectDeleteCommand(ctx))
	projectCmd.AddCommand(newProjectRecoverCommand(ctx))

	return projectCmd
}

type projectJSON struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Version       int       `json:"version"`
	Dir           string    `json:"dir"`
	SourceArchive string    `json:"source_archive,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toProjectJSON(entry *catalog.Entry) projectJSON {
	return projectJSON{
		ID:            entry.ID,
		Name:          entry.Name,
		Version:       entry.Version,
		Dir:           entry.Dir,
		SourceArchive: entry.SourceArchive,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
	}
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var topics []string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty course project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx := operationContext(cmd, "project_create")
			return ctx.withProjects(func(projects *project.Manager, _ *slog.Logger) error {
				rec, err := projects.Create(opCtx, args[0])
				if err != nil {
					return err
				}
				if len(topics) > 0 {
					if err := addTopics(opCtx, projects, rec.ID, topics); err != nil {
						return err
					}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"id": rec.ID, "name": rec.Name, "topics": len(topics)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", rec.Name, rec.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&topics, "topic", "t", nil, "Topic title to append (repeatable)")
	return cmd
}

func newProjectAddTopicCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add-topic <project> <title>...",
		Short: "Append topic pages to a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx := operationContext(cmd, "project_add_topic")
			return ctx.withProjects(func(projects *project.Manager, _ *slog.Logger) error {
				id, err := resolveProjectID(opCtx, projects, args[0])
				if err != nil {
					return err
				}
				if err := addTopics(opCtx, projects, id, args[1:]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %d topics to %s\n", len(args)-1, id)
				return nil
			})
		},
	}
}

// addTopics appends topic pages while holding the project lock.
func addTopics(ctx context.Context, projects *project.Manager, id string, titles []string) error {
	lock, err := projects.Lock(id)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	rec, err := projects.Load(ctx, id)
	if err != nil {
		return err
	}
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			return errors.New("topic title is required")
		}
		rec.Graph.Topics = append(rec.Graph.Topics, course.Page{Title: title})
	}
	return projects.Save(ctx, rec)
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List ready projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProjects(func(projects *project.Manager, _ *slog.Logger) error {
				entries, err := projects.List(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					out := make([]projectJSON, 0, len(entries))
					for _, e := range entries {
						out = append(out, toProjectJSON(e))
					}
					return writeJSON(cmd, out)
				}
				list := newListing("ID", "Name", "Updated", "Created").alignRight(2, 3)
				for _, e := range entries {
					list.add(shortID(e.ID), e.Name, formatAge(e.UpdatedAt), formatAge(e.CreatedAt))
				}
				list.render(cmd.OutOrStdout(), "No projects found")
				return nil
			})
		},
	}
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project>",
		Short: "Show a project's pages and media references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProjects(func(projects *project.Manager, _ *slog.Logger) error {
				id, err := resolveProjectID(cmd.Context(), projects, args[0])
				if err != nil {
					return err
				}
				rec, err := projects.Load(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, rec)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Project: %s\n", rec.Name)
				fmt.Fprintf(out, "ID:      %s\n", rec.ID)
				fmt.Fprintf(out, "Updated: %s\n\n", rec.UpdatedAt.Local().Format(time.DateTime))

				pages := newListing("Page", "Title", "Media")
				_ = rec.Graph.Walk(func(ref media.PageRef, page *course.Page) error {
					ids := make([]string, 0, len(page.Media))
					for _, r := range page.Media {
						ids = append(ids, r.ID)
					}
					pages.add(ref.String(), page.Title, strings.Join(ids, ", "))
					return nil
				})
				pages.render(out, "No pages")
				return nil
			})
		},
	}
}

func newProjectDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <project>",
		Aliases: []string{"rm"},
		Short:   "Delete a project and its stored media",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx := operationContext(cmd, "project_delete")
			return ctx.withProjects(func(projects *project.Manager, _ *slog.Logger) error {
				id, err := resolveProjectID(opCtx, projects, args[0])
				if err != nil {
					return err
				}
				lock, err := projects.Lock(id)
				if err != nil {
					return err
				}
				defer lock.Unlock()
				if err := projects.Delete(opCtx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", id)
				return nil
			})
		},
	}
}

func newProjectRecoverCommand(ctx *commandContext) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "recover <project>",
		Short: "Restore a project record from its newest valid backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx := operationContext(cmd, "project_recover")
			return ctx.withProjects(func(projects *project.Manager, _ *slog.Logger) error {
				id := strings.TrimSpace(args[0])
				if resolved, err := resolveProjectID(opCtx, projects, id); err == nil {
					id = resolved
				}
				recovery, err := projects.CheckRecovery(id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if check || !recovery.Available {
					if ctx.JSONMode() {
						return writeJSON(cmd, recovery)
					}
					if !recovery.Available {
						fmt.Fprintln(out, "No backups available")
						return nil
					}
					fmt.Fprintf(out, "Newest backup: %s (%s)\n", recovery.Path, formatAge(recovery.Timestamp))
					return nil
				}

				lock, err := projects.Lock(id)
				if err != nil {
					return err
				}
				defer lock.Unlock()
				rec, err := projects.Recover(opCtx, id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"id": rec.ID, "name": rec.Name, "updated_at": rec.UpdatedAt})
				}
				fmt.Fprintf(out, "Recovered %s from backup\n", rec.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only report whether a backup is available")
	return cmd
}

// resolveProjectID accepts a full project id or a unique prefix of one.
func resolveProjectID(ctx context.Context, projects *project.Manager, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("project id is required")
	}
	if _, err := projects.Catalog().Get(ctx, arg); err == nil {
		return arg, nil
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return "", err
	}

	entries, err := projects.List(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.ID, arg) {
			matches = append(matches, e.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", project.ErrNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("project prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}
