package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursekit/internal/catalog"
	"coursekit/internal/course"
	"coursekit/internal/fileutil"
	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/mediaid"
	"coursekit/internal/mediastore"
	"coursekit/internal/project"
	"coursekit/internal/staging"
)

// ImportFile imports the archive at path as a new project.
func (a *Archiver) ImportFile(ctx context.Context, path string) (Summary, error) {
	f, size, err := openArchive(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	return a.Import(ctx, f, size, path)
}

// Import creates a new project from the archive in ra. The archive is fully
// validated first; the project then becomes visible only after every payload
// and its record are on disk. On any error or cancellation nothing is left
// behind. source is recorded in the catalog for reference.
func (a *Archiver) Import(ctx context.Context, ra io.ReaderAt, size int64, source string) (Summary, error) {
	man, err := a.Inspect(ra, size)
	if err != nil {
		return Summary{}, err
	}
	a.report(PhaseInspect, 1, 1, "")
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	id := uuid.NewString()
	ctx = logging.WithProjectID(logging.WithOperation(ctx, "import"), id)
	lock, err := a.projects.Lock(id)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = lock.Unlock() }()

	stagedDir, err := staging.Create(a.cfg.Paths.StagingDir, id)
	if err != nil {
		return Summary{}, err
	}
	installed := false
	defer func() {
		if !installed {
			if rmErr := os.RemoveAll(stagedDir); rmErr != nil {
				logging.WarnWithContext(logging.WithContext(ctx, a.logger), "failed to remove import staging", "staging_cleanup_failed",
					logging.String("path", stagedDir),
					logging.Error(rmErr),
					logging.String(logging.FieldErrorHint, "run 'coursekit staging clean'"),
				)
			}
		}
	}()

	if err := a.checkFreeSpace(stagedDir, man.TotalBytes); err != nil {
		return Summary{}, err
	}

	store, err := mediastore.New(filepath.Join(stagedDir, "media"), a.logger)
	if err != nil {
		return Summary{}, err
	}

	graph := man.Record.Graph.Clone()
	summary := Summary{ProjectID: id, Name: importName(man.Record.Project.Name), RemoteCount: man.Remote, Skipped: man.Skipped}
	for i, entry := range man.Media {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		n, err := a.importBlob(ctx, store, &graph, entry)
		if err != nil {
			return Summary{}, err
		}
		summary.MediaCount++
		summary.Bytes += n
		a.report(PhaseMedia, i+1, len(man.Media), entry.ID)
	}

	summary.Corrections = a.align(ctx, store, &graph)
	for _, entry := range man.Media {
		if _, used := graph.Find(entry.ID); used {
			continue
		}
		// payload nothing points at once alignment is done
		if _, err := store.Delete(ctx, entry.ID); err != nil {
			return Summary{}, err
		}
		summary.MediaCount--
		summary.Bytes -= int64(entry.Size)
		summary.Skipped = append(summary.Skipped, mediaPrefix+entry.ID+blobExt)
	}

	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	now := time.Now().UTC()
	created := man.Record.Project.CreatedAt
	if created.IsZero() {
		created = now
	}
	rec := &project.Record{
		Version:   project.RecordVersion,
		ID:        id,
		Name:      summary.Name,
		CreatedAt: created,
		UpdatedAt: now,
		Graph:     graph,
	}
	if err := rec.Validate(); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", media.ErrArchiveInvalid, err)
	}
	data, err := rec.Encode()
	if err != nil {
		return Summary{}, err
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(stagedDir, "project.json"), data, 0o644); err != nil {
		return Summary{}, fmt.Errorf("write project record: %w", err)
	}

	if err := a.projects.Install(ctx, stagedDir, rec, source); err != nil {
		return Summary{}, err
	}
	installed = true
	a.report(PhaseFinalize, 1, 1, "")

	a.logger.InfoContext(ctx, "project imported",
		logging.String("name", rec.Name),
		logging.Int("media", summary.MediaCount),
		logging.Int("remote_videos", summary.RemoteCount),
		logging.Int("corrections", len(summary.Corrections)),
		skippedAttr(summary.Skipped),
		logging.String(logging.FieldEventType, "project_imported"),
	)
	for _, name := range summary.Skipped {
		a.logger.DebugContext(ctx, "archive entry skipped", logging.String("entry", name))
	}
	return summary, nil
}

// ReplaceFile replaces existingID with the archive at path.
func (a *Archiver) ReplaceFile(ctx context.Context, existingID, path string) (Summary, error) {
	f, size, err := openArchive(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	return a.Replace(ctx, existingID, f, size, path)
}

// Replace imports the archive as a new project and, only once that import
// has succeeded, deletes existingID. existingID must name a registered
// project. A failed import leaves existingID as it was. A failed delete
// leaves both projects in place and is returned with the successful import
// summary.
func (a *Archiver) Replace(ctx context.Context, existingID string, ra io.ReaderAt, size int64, source string) (Summary, error) {
	if _, err := a.projects.Catalog().Get(ctx, existingID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Summary{}, fmt.Errorf("replace: %w: %s", project.ErrNotFound, existingID)
		}
		return Summary{}, err
	}
	lock, err := a.projects.Lock(existingID)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = lock.Unlock() }()

	summary, err := a.Import(ctx, ra, size, source)
	if err != nil {
		return Summary{}, err
	}
	if err := a.projects.Delete(context.WithoutCancel(ctx), existingID); err != nil {
		return summary, fmt.Errorf("imported %s but could not remove %s: %w", summary.ProjectID, existingID, err)
	}
	a.logger.InfoContext(ctx, "project replaced",
		logging.ProjectID(summary.ProjectID),
		logging.String("replaced", existingID),
		logging.String(logging.FieldEventType, "project_replaced"),
	)
	return summary, nil
}

func (a *Archiver) importBlob(ctx context.Context, store *mediastore.FileStore, graph *course.Graph, entry Entry) (int64, error) {
	pm := mediastore.PutMeta{}
	sidecar, hasSidecar := readSidecar(entry.meta)
	if hasSidecar {
		pm = mediastore.PutMeta{Kind: sidecar.Kind, Page: sidecar.Page, MIME: sidecar.MIME, OriginalName: sidecar.OriginalName}
	}
	if d, ok := graph.Find(entry.ID); ok {
		pm.Kind, pm.Page = d.Kind, d.Page
		if lf, ok := d.Source.(media.LocalFile); ok {
			if lf.MIME != "" {
				pm.MIME = lf.MIME
			}
			if lf.OriginalName != "" {
				pm.OriginalName = lf.OriginalName
			}
		}
	} else if page, kind, ok := mediaid.PageForID(entry.ID); ok {
		pm.Kind, pm.Page = kind, page
	}

	rc, err := entry.blob.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", media.ErrArchiveInvalid, entry.blob.Name, err)
	}
	defer rc.Close()
	meta, err := store.Put(ctx, entry.ID, rc, pm)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", entry.ID, err)
	}
	if uint64(meta.Size) != entry.Size {
		return 0, fmt.Errorf("%w: %s is %d bytes, header says %d", media.ErrArchiveInvalid, entry.ID, meta.Size, entry.Size)
	}
	if hasSidecar && sidecar.SHA256 != "" && !strings.EqualFold(sidecar.SHA256, meta.SHA256) {
		return 0, fmt.Errorf("%w: checksum mismatch for %s", media.ErrArchiveInvalid, entry.ID)
	}
	return meta.Size, nil
}

// align repairs singleton references against the staged payloads and fills
// in the source details of references it restores.
func (a *Archiver) align(ctx context.Context, store *mediastore.FileStore, graph *course.Graph) []course.Correction {
	fixes := graph.Align(func(id string) bool {
		ok, err := store.Has(ctx, id)
		return err == nil && ok
	})
	for _, fix := range fixes {
		attrs := []logging.Attr{
			logging.String("page", fix.Page.String()),
			logging.String("kind", fix.Kind.String()),
		}
		if fix.Removed != "" {
			attrs = append(attrs, logging.String("removed", fix.Removed))
		}
		if fix.Added == "" {
			logging.WarnWithContext(logging.WithContext(ctx, a.logger), "dropped misaligned media reference", "media_id_mismatch",
				append(attrs, logging.String(logging.FieldImpact, "page shows no "+fix.Kind.String()))...)
			continue
		}
		attrs = append(attrs, logging.String("added", fix.Added))
		a.logger.InfoContext(ctx, "restored positional media reference", logging.Args(attrs...)...)
		if err := store.Relabel(ctx, fix.Added, fix.Page); err != nil {
			continue
		}
		meta, err := store.Stat(ctx, fix.Added)
		if err != nil {
			continue
		}
		_ = graph.SetRef(fix.Page, media.Ref{
			ID:     fix.Added,
			Kind:   fix.Kind,
			Source: media.LocalFile{MIME: meta.MIME, Size: meta.Size, OriginalName: meta.OriginalName},
		})
	}
	return fixes
}

func (a *Archiver) checkFreeSpace(dir string, need uint64) error {
	need += a.cfg.MinFreeBytes()
	if need == 0 {
		return nil
	}
	free, err := fileutil.FreeSpace(dir)
	if err != nil {
		return fmt.Errorf("check free space: %w", err)
	}
	if free < need {
		return fmt.Errorf("insufficient free space in %s: need %d bytes, have %d", dir, need, free)
	}
	return nil
}

func importName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Imported project"
	}
	return name
}

func openArchive(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat archive: %w", err)
	}
	return f, info.Size(), nil
}
