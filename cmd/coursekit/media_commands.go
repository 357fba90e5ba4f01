package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"coursekit/internal/course"
	"coursekit/internal/fileutil"
	"coursekit/internal/media"
	"coursekit/internal/project"
	"coursekit/internal/reconcile"
	"coursekit/internal/studio"
	"coursekit/internal/textutil"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Store, list, and verify project media",
	}

	mediaCmd.AddCommand(newMediaPutCommand(ctx))
	mediaCmd.AddCommand(newMediaLinkCommand(ctx))
	mediaCmd.AddCommand(newMediaGetCommand(ctx))
	mediaCmd.AddCommand(newMediaRemoveCommand(ctx))
	mediaCmd.AddCommand(newMediaListCommand(ctx))
	mediaCmd.AddCommand(newMediaCheckCommand(ctx))
	mediaCmd.AddCommand(newMediaRepairCommand(ctx))

	return mediaCmd
}

type mediaJSON struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Page      string `json:"page"`
	MIME      string `json:"mime,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Name      string `json:"original_name,omitempty"`
	URL       string `json:"url,omitempty"`
	ClipStart *int   `json:"clip_start,omitempty"`
	ClipEnd   *int   `json:"clip_end,omitempty"`
}

func toMediaJSON(d media.Descriptor) mediaJSON {
	out := mediaJSON{ID: d.ID, Kind: d.Kind.String(), Page: d.Page.String()}
	switch src := d.Source.(type) {
	case media.LocalFile:
		out.MIME = src.MIME
		out.Size = src.Size
		out.Name = src.OriginalName
	case media.RemoteVideo:
		out.URL = src.URL
		out.ClipStart = src.ClipStart
		out.ClipEnd = src.ClipEnd
	}
	return out
}

func mediaRow(d media.Descriptor) []string {
	detail := ""
	switch src := d.Source.(type) {
	case media.LocalFile:
		detail = formatBytes(src.Size)
		if src.OriginalName != "" {
			detail = fmt.Sprintf("%s (%s)", src.OriginalName, detail)
		}
	case media.RemoteVideo:
		detail = src.URL
		if src.ClipStart != nil || src.ClipEnd != nil {
			detail += " " + formatClip(src.ClipStart, src.ClipEnd)
		}
	}
	return []string{d.ID, textutil.Title(d.Kind.String()), d.Page.String(), detail}
}

func formatClip(start, end *int) string {
	bound := func(v *int) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%ds", *v)
	}
	return fmt.Sprintf("[%s..%s]", bound(start), bound(end))
}

func parsePageKind(pageArg, kindArg string) (media.PageRef, media.Kind, error) {
	page, err := media.ParsePageRef(pageArg)
	if err != nil {
		return media.PageRef{}, 0, err
	}
	kind, err := media.ParseKind(kindArg)
	if err != nil {
		return media.PageRef{}, 0, err
	}
	return page, kind, nil
}

// sessionFor resolves the project argument and opens a session on it.
func (c *commandContext) sessionFor(cmd *cobra.Command, op, arg string, fn func(context.Context, *studio.Session, *project.Manager) error) error {
	opCtx := operationContext(cmd, op)
	var id string
	err := c.withProjects(func(projects *project.Manager, _ *slog.Logger) error {
		resolved, err := resolveProjectID(opCtx, projects, arg)
		id = resolved
		return err
	})
	if err != nil {
		return err
	}
	return c.withSession(opCtx, id, func(s *studio.Session, projects *project.Manager) error {
		return fn(opCtx, s, projects)
	})
}

func newMediaPutCommand(ctx *commandContext) *cobra.Command {
	var mimeType string

	cmd := &cobra.Command{
		Use:   "put <project> <page> <kind> <file>",
		Short: "Store a local file on a page",
		Long: `Store a local file on a page.

Pages are "welcome", "objectives", or "topic-N". Kinds are image, video,
audio, and caption. A page holds at most one audio track and one caption
file; storing another replaces it.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, kind, err := parsePageKind(args[1], args[2])
			if err != nil {
				return err
			}
			path := args[3]
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer file.Close()

			upload := studio.Upload{MIME: strings.TrimSpace(mimeType), OriginalName: filepath.Base(path)}
			if upload.MIME == "" {
				upload.MIME = mime.TypeByExtension(filepath.Ext(path))
			}

			return ctx.sessionFor(cmd, "media_put", args[0], func(opCtx context.Context, s *studio.Session, _ *project.Manager) error {
				d, err := s.StoreMedia(opCtx, page, kind, file, upload)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, toMediaJSON(d))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s on %s\n", d.ID, d.Page)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (default from file extension)")
	return cmd
}

func newMediaLinkCommand(ctx *commandContext) *cobra.Command {
	var title string
	var clipStart, clipEnd int

	cmd := &cobra.Command{
		Use:   "link <project> <page> <url>",
		Short: "Reference a remotely hosted video on a page",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := media.ParsePageRef(args[1])
			if err != nil {
				return err
			}
			video := media.RemoteVideo{URL: strings.TrimSpace(args[2]), Title: title}
			if cmd.Flags().Changed("start") {
				video.ClipStart = media.Seconds(clipStart)
			}
			if cmd.Flags().Changed("end") {
				video.ClipEnd = media.Seconds(clipEnd)
			}
			if err := video.Validate(); err != nil {
				return err
			}

			return ctx.sessionFor(cmd, "media_link", args[0], func(opCtx context.Context, s *studio.Session, _ *project.Manager) error {
				d, err := s.DeclareRemoteVideo(opCtx, page, video)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, toMediaJSON(d))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s on %s\n", d.ID, d.Page)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Display title of the video")
	cmd.Flags().IntVar(&clipStart, "start", 0, "Clip start in seconds")
	cmd.Flags().IntVar(&clipEnd, "end", 0, "Clip end in seconds")
	return cmd
}

func newMediaGetCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "get <project> <media-id>",
		Short: "Write a stored payload to a file or stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaID := strings.TrimSpace(args[1])
			return ctx.sessionFor(cmd, "media_get", args[0], func(opCtx context.Context, s *studio.Session, _ *project.Manager) error {
				handle, ok, err := s.Handle(opCtx, mediaID)
				if err != nil {
					return err
				}
				if !ok {
					if _, known, _ := s.Cache().Lookup(mediaID); !known {
						return fmt.Errorf("%w: %s", media.ErrNotFound, mediaID)
					}
					return fmt.Errorf("%w: %s has no stored payload", media.ErrCorrupted, mediaID)
				}
				if handle.Remote {
					fmt.Fprintln(cmd.OutOrStdout(), handle.URL)
					return nil
				}
				payload, err := s.OpenHandle(opCtx, handle.URL)
				if err != nil {
					return err
				}
				defer payload.Close()

				if strings.TrimSpace(outputPath) == "" || outputPath == "-" {
					_, err := io.Copy(cmd.OutOrStdout(), payload)
					return err
				}
				if info, err := os.Stat(outputPath); err == nil && info.IsDir() {
					d, _, _ := s.Cache().Lookup(mediaID)
					outputPath = filepath.Join(outputPath, downloadName(d))
				}
				if err := fileutil.WriteAtomic(outputPath, 0o644, func(w io.Writer) error {
					_, err := io.Copy(w, payload)
					return err
				}); err != nil {
					return fmt.Errorf("write %s: %w", outputPath, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s to %s\n", mediaID, outputPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination file or directory (default stdout)")
	return cmd
}

// downloadName is the file name used when get writes into a directory: the
// uploaded name made safe for the filesystem, or the media id.
func downloadName(d media.Descriptor) string {
	if lf, ok := d.Source.(media.LocalFile); ok {
		if name := textutil.SanitizeFileName(filepath.Base(lf.OriginalName)); name != "" && name != "." {
			return name
		}
	}
	return d.ID
}

func newMediaRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <project> <media-id>...",
		Aliases: []string{"delete"},
		Short:   "Remove media from a project",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.sessionFor(cmd, "media_delete", args[0], func(opCtx context.Context, s *studio.Session, _ *project.Manager) error {
				for _, id := range args[1:] {
					if err := s.DeleteMedia(opCtx, strings.TrimSpace(id)); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
				}
				return nil
			})
		},
	}
}

func newMediaListCommand(ctx *commandContext) *cobra.Command {
	var pageArg string

	cmd := &cobra.Command{
		Use:     "ls <project>",
		Aliases: []string{"list"},
		Short:   "List the media referenced by a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.sessionFor(cmd, "media_list", args[0], func(opCtx context.Context, s *studio.Session, projects *project.Manager) error {
				var descs []media.Descriptor
				if strings.TrimSpace(pageArg) != "" {
					page, err := media.ParsePageRef(pageArg)
					if err != nil {
						return err
					}
					if descs, _, err = s.PageMedia(opCtx, page); err != nil {
						return err
					}
				} else {
					var err error
					if descs, err = s.Cache().QueryAll(); err != nil {
						return err
					}
				}

				store, err := projects.MediaStore(s.ProjectID())
				if err != nil {
					return err
				}
				usage, err := store.Usage(opCtx)
				if err != nil {
					return err
				}

				if ctx.JSONMode() {
					out := make([]mediaJSON, 0, len(descs))
					for _, d := range descs {
						out = append(out, toMediaJSON(d))
					}
					return writeJSON(cmd, map[string]any{"media": out, "usage": usage})
				}
				list := newListing("ID", "Kind", "Page", "Source")
				for _, d := range descs {
					list.add(mediaRow(d)...)
				}
				out := cmd.OutOrStdout()
				list.render(out, "No media")
				fmt.Fprintf(out, "\nStored: %d payloads, %s\n", usage.Count, formatBytes(usage.Bytes))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&pageArg, "page", "p", "", "Only list media on this page")
	return cmd
}

type checkReport struct {
	Mismatches []string         `json:"mismatches"`
	Missing    []reconcile.Drop `json:"missing"`
	Orphans    []string         `json:"orphans"`
}

func (r checkReport) clean() bool {
	return len(r.Mismatches) == 0 && len(r.Missing) == 0 && len(r.Orphans) == 0
}

func newMediaCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <project>",
		Short: "Verify media references against stored payloads",
		Long: `Verify media references against stored payloads.

Reports audio and caption ids that do not match their page position,
references whose payload is missing, and stored payloads no page references.
Nothing is modified; see "media repair".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opCtx := operationContext(cmd, "media_check")
			return ctx.withProjects(func(projects *project.Manager, logger *slog.Logger) error {
				id, err := resolveProjectID(opCtx, projects, args[0])
				if err != nil {
					return err
				}
				session, populated, err := studio.Open(opCtx, projects, cfg, id, logger)
				if err != nil {
					return err
				}
				defer session.Close()

				report := checkReport{Mismatches: []string{}, Missing: []reconcile.Drop{}, Orphans: []string{}}
				for _, m := range populated.Mismatches {
					report.Mismatches = append(report.Mismatches, m.String())
				}
				rec := session.Record()
				err = rec.Graph.Walk(func(ref media.PageRef, _ *course.Page) error {
					_, drops, err := session.PageMedia(opCtx, ref)
					report.Missing = append(report.Missing, drops...)
					return err
				})
				if err != nil {
					return err
				}

				store, err := projects.MediaStore(id)
				if err != nil {
					return err
				}
				stored, err := store.List(opCtx)
				if err != nil {
					return err
				}
				referenced := rec.Graph.IDs()
				for _, sid := range stored {
					if !slices.Contains(referenced, sid) {
						report.Orphans = append(report.Orphans, sid)
					}
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				if report.clean() {
					fmt.Fprintln(out, "All media references are consistent")
					return nil
				}
				for _, m := range report.Mismatches {
					fmt.Fprintf(out, "Misaligned: %s\n", m)
				}
				for _, d := range report.Missing {
					fmt.Fprintf(out, "Missing:    %s on %s (%s)\n", d.ID, d.Page, d.Reason)
				}
				for _, o := range report.Orphans {
					fmt.Fprintf(out, "Orphaned:   %s\n", o)
				}
				return errors.New("media check found problems")
			})
		},
	}
}

func newMediaRepairCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <project>",
		Short: "Rewrite stored page labels of audio and caption payloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx := operationContext(cmd, "media_repair")
			return ctx.withProjects(func(projects *project.Manager, logger *slog.Logger) error {
				id, err := resolveProjectID(opCtx, projects, args[0])
				if err != nil {
					return err
				}
				lock, err := projects.Lock(id)
				if err != nil {
					return err
				}
				defer lock.Unlock()

				store, err := projects.MediaStore(id)
				if err != nil {
					return err
				}
				fixes, err := reconcile.RepairPageRefs(opCtx, store, logger)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					out := make([]map[string]string, 0, len(fixes))
					for _, fix := range fixes {
						out = append(out, map[string]string{"id": fix.ID, "from": fix.From.String(), "to": fix.To.String()})
					}
					return writeJSON(cmd, out)
				}
				out := cmd.OutOrStdout()
				if len(fixes) == 0 {
					fmt.Fprintln(out, "No page labels needed repair")
					return nil
				}
				for _, fix := range fixes {
					from := fix.From.String()
					if from == "" {
						from = "unlabeled"
					}
					fmt.Fprintf(out, "Relabeled %s: %s -> %s\n", fix.ID, from, fix.To)
				}
				return nil
			})
		},
	}
}
