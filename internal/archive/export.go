package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"coursekit/internal/fileutil"
	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/mediastore"
)

// Export writes project projectID to w. Every local payload the graph
// references is checked before the first byte is written; a missing one
// fails the export with media.ErrCorrupted.
func (a *Archiver) Export(ctx context.Context, projectID string, w io.Writer) (Summary, error) {
	lock, err := a.projects.Lock(projectID)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = lock.Unlock() }()
	return a.export(ctx, projectID, w)
}

func (a *Archiver) export(ctx context.Context, projectID string, w io.Writer) (Summary, error) {
	ctx = logging.WithProjectID(logging.WithOperation(ctx, "export"), projectID)
	rec, err := a.projects.Load(ctx, projectID)
	if err != nil {
		return Summary{}, err
	}
	store, err := a.projects.MediaStore(projectID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{ProjectID: rec.ID, Name: rec.Name}
	var local []media.Descriptor
	seen := make(map[string]bool)
	for _, d := range rec.Graph.Descriptors() {
		if !d.Kind.Local() {
			summary.RemoteCount++
			continue
		}
		// a caption or audio id repeated on another page is written once
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		has, err := store.Has(ctx, d.ID)
		if err != nil {
			return Summary{}, err
		}
		if !has {
			return Summary{}, fmt.Errorf("export %s: %s on %s: %w", projectID, d.ID, d.Page, media.ErrCorrupted)
		}
		local = append(local, d)
	}

	zw := zip.NewWriter(w)
	level := a.cfg.Archive.CompressionLevel
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	header := Record{
		Format:  FormatName,
		Version: FormatVersion,
		Project: ProjectInfo{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt},
		Graph:   rec.Graph,
	}
	if err := writeJSONEntry(zw, recordEntry, header, rec.UpdatedAt); err != nil {
		return Summary{}, err
	}

	for i, d := range local {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		n, err := a.exportBlob(ctx, zw, store, d)
		if err != nil {
			return Summary{}, err
		}
		summary.MediaCount++
		summary.Bytes += n
		a.report(PhaseMedia, i+1, len(local), d.ID)
	}

	if err := zw.Close(); err != nil {
		return Summary{}, fmt.Errorf("finish archive: %w", err)
	}
	a.report(PhaseFinalize, 1, 1, "")
	a.logger.InfoContext(ctx, "project exported",
		logging.Int("media", summary.MediaCount),
		logging.Int("remote_videos", summary.RemoteCount),
		logging.Int64("bytes", summary.Bytes),
		logging.String(logging.FieldEventType, "project_exported"),
	)
	return summary, nil
}

func (a *Archiver) exportBlob(ctx context.Context, zw *zip.Writer, store *mediastore.FileStore, d media.Descriptor) (int64, error) {
	rc, meta, err := store.Open(ctx, d.ID)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return 0, fmt.Errorf("export %s on %s: %w", d.ID, d.Page, media.ErrCorrupted)
		}
		return 0, err
	}
	defer rc.Close()

	method := zip.Deflate
	if a.cfg.Archive.CompressionLevel == 0 {
		method = zip.Store
	}
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: mediaPrefix + d.ID + blobExt, Method: method, Modified: meta.StoredAt})
	if err != nil {
		return 0, fmt.Errorf("create archive entry: %w", err)
	}
	n, err := io.Copy(fw, rc)
	if err != nil {
		return n, media.NewIOError("export media", d.ID, err)
	}

	if meta.Kind == 0 {
		meta.Kind = d.Kind
	}
	if !meta.Page.Valid() {
		meta.Page = d.Page
	}
	if err := writeJSONEntry(zw, mediaPrefix+d.ID+metaExt, meta, meta.StoredAt); err != nil {
		return n, err
	}
	return n, nil
}

// ExportFile exports projectID to path. The archive is written to a
// temporary file next to path and renamed into place only after it is
// complete, and verified when the configuration asks for it.
func (a *Archiver) ExportFile(ctx context.Context, projectID, path string) (Summary, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return Summary{}, fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	summary, err := a.Export(ctx, projectID, tmp)
	if err != nil {
		return Summary{}, err
	}
	if err := tmp.Sync(); err != nil {
		return Summary{}, fmt.Errorf("sync archive: %w", err)
	}
	if a.cfg.Archive.VerifyAfterExport {
		info, err := tmp.Stat()
		if err != nil {
			return Summary{}, fmt.Errorf("stat archive: %w", err)
		}
		if _, err := a.Inspect(tmp, info.Size()); err != nil {
			return Summary{}, fmt.Errorf("verify archive: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return Summary{}, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Summary{}, fmt.Errorf("rename archive: %w", err)
	}
	keep = true
	if err := fileutil.SyncDir(dir); err != nil {
		a.logger.Warn("directory sync failed after export",
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "export_sync_failed"),
		)
	}
	return summary, nil
}

func writeJSONEntry(zw *zip.Writer, name string, value any, modified time.Time) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("create archive entry: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
