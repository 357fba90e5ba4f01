package mediastore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"coursekit/internal/fileutil"
	"coursekit/internal/logging"
	"coursekit/internal/media"
)

const (
	metaVersion = 1
	blobExt     = ".bin"
	metaExt     = ".json"
)

// Store is durable payload storage for one project, keyed by media id.
type Store interface {
	Put(ctx context.Context, id string, r io.Reader, meta PutMeta) (Meta, error)
	Open(ctx context.Context, id string) (io.ReadCloser, Meta, error)
	Stat(ctx context.Context, id string) (Meta, error)
	Has(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// PutMeta is the caller-supplied classification stored with a payload.
type PutMeta struct {
	Kind         media.Kind
	Page         media.PageRef
	MIME         string
	OriginalName string
}

// Meta is the sidecar record written next to every payload.
type Meta struct {
	Version      int           `json:"version"`
	ID           string        `json:"id"`
	Kind         media.Kind    `json:"kind,omitzero"`
	Page         media.PageRef `json:"page,omitzero"`
	MIME         string        `json:"mime,omitempty"`
	OriginalName string        `json:"original_name,omitempty"`
	Size         int64         `json:"size"`
	SHA256       string        `json:"sha256,omitempty"`
	StoredAt     time.Time     `json:"stored_at"`
}

// Usage summarizes the payloads held by a store.
type Usage struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// FileStore keeps each payload as {id}.bin with a {id}.json sidecar in one directory.
type FileStore struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// New returns a FileStore rooted at dir, creating it when missing.
func New(dir string, logger *slog.Logger) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("mediastore: directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, media.NewIOError("create media directory", "", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "mediastore"),
		now:    time.Now,
	}, nil
}

// Dir returns the directory holding the payloads.
func (s *FileStore) Dir() string { return s.dir }

// BlobPath returns the payload path for id.
func (s *FileStore) BlobPath(id string) string { return filepath.Join(s.dir, id+blobExt) }

func (s *FileStore) metaPath(id string) string { return filepath.Join(s.dir, id+metaExt) }

// Put streams r into the payload for id, replacing any previous payload.
// Nothing is retried: a failed write leaves the previous payload in place.
func (s *FileStore) Put(ctx context.Context, id string, r io.Reader, pm PutMeta) (Meta, error) {
	if err := media.ValidateID(id); err != nil {
		return Meta{}, fmt.Errorf("mediastore: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}

	hasher := sha256.New()
	var size int64
	err := fileutil.WriteAtomic(s.BlobPath(id), 0o644, func(w io.Writer) error {
		n, err := io.Copy(io.MultiWriter(w, hasher), r)
		size = n
		return err
	})
	if err != nil {
		return Meta{}, media.NewIOError("write media", id, err)
	}

	meta := Meta{
		Version:      metaVersion,
		ID:           id,
		Kind:         pm.Kind,
		Page:         pm.Page,
		MIME:         strings.TrimSpace(pm.MIME),
		OriginalName: strings.TrimSpace(pm.OriginalName),
		Size:         size,
		SHA256:       hex.EncodeToString(hasher.Sum(nil)),
		StoredAt:     s.now().UTC(),
	}
	if err := s.writeMeta(meta); err != nil {
		return Meta{}, err
	}
	s.logger.DebugContext(ctx, "stored media",
		logging.MediaID(id),
		logging.Int64("size_bytes", size),
		logging.String("mime", meta.MIME),
	)
	return meta, nil
}

// PutBytes is Put for an in-memory payload.
func (s *FileStore) PutBytes(ctx context.Context, id string, data []byte, pm PutMeta) (Meta, error) {
	return s.Put(ctx, id, bytes.NewReader(data), pm)
}

// Open returns a reader for the payload of id. Missing ids report media.ErrNotFound.
func (s *FileStore) Open(ctx context.Context, id string) (io.ReadCloser, Meta, error) {
	if err := media.ValidateID(id); err != nil {
		return nil, Meta{}, fmt.Errorf("mediastore: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, err
	}
	file, err := os.Open(s.BlobPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Meta{}, fmt.Errorf("mediastore: %s: %w", id, media.ErrNotFound)
		}
		return nil, Meta{}, media.NewIOError("open media", id, err)
	}
	meta, err := s.readMeta(id, file)
	if err != nil {
		file.Close()
		return nil, Meta{}, err
	}
	return file, meta, nil
}

// Get reads the whole payload of id into memory.
func (s *FileStore) Get(ctx context.Context, id string) ([]byte, Meta, error) {
	rc, meta, err := s.Open(ctx, id)
	if err != nil {
		return nil, Meta{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, Meta{}, media.NewIOError("read media", id, err)
	}
	return data, meta, nil
}

// Stat returns the sidecar record for id without opening the payload.
func (s *FileStore) Stat(ctx context.Context, id string) (Meta, error) {
	if err := media.ValidateID(id); err != nil {
		return Meta{}, fmt.Errorf("mediastore: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	if _, err := os.Stat(s.BlobPath(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Meta{}, fmt.Errorf("mediastore: %s: %w", id, media.ErrNotFound)
		}
		return Meta{}, media.NewIOError("stat media", id, err)
	}
	return s.readMeta(id, nil)
}

// Has reports whether a payload exists for id. It only stats the file.
func (s *FileStore) Has(ctx context.Context, id string) (bool, error) {
	if err := media.ValidateID(id); err != nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.BlobPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, media.NewIOError("probe media", id, err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the payload and sidecar for id. Deleting a missing id is not
// an error; the result reports whether anything was removed.
func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := media.ValidateID(id); err != nil {
		return false, fmt.Errorf("mediastore: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	removed := false
	for _, path := range []string{s.BlobPath(id), s.metaPath(id)} {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return removed, media.NewIOError("delete media", id, err)
		}
	}
	if removed {
		s.logger.DebugContext(ctx, "deleted media", logging.MediaID(id))
	}
	return removed, nil
}

// List returns the ids of every stored payload in sorted order.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, media.NewIOError("list media", "", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		id, ok := strings.CutSuffix(name, blobExt)
		if !ok || media.ValidateID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Relabel rewrites the page recorded in the sidecar for id.
func (s *FileStore) Relabel(ctx context.Context, id string, page media.PageRef) error {
	meta, err := s.Stat(ctx, id)
	if err != nil {
		return err
	}
	meta.Page = page
	return s.writeMeta(meta)
}

// Usage totals the payload count and size.
func (s *FileStore) Usage(ctx context.Context) (Usage, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return Usage{}, err
	}
	var usage Usage
	for _, id := range ids {
		info, err := os.Stat(s.BlobPath(id))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Usage{}, media.NewIOError("stat media", id, err)
		}
		usage.Count++
		usage.Bytes += info.Size()
	}
	return usage, nil
}

func (s *FileStore) writeMeta(meta Meta) error {
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("mediastore: encode metadata for %s: %w", meta.ID, err)
	}
	if err := fileutil.WriteFileAtomic(s.metaPath(meta.ID), payload, 0o644); err != nil {
		return media.NewIOError("write media metadata", meta.ID, err)
	}
	return nil
}

// readMeta loads the sidecar for id. Payloads written without a sidecar get a
// record synthesized from the file itself.
func (s *FileStore) readMeta(id string, blob *os.File) (Meta, error) {
	payload, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Meta{}, media.NewIOError("read media metadata", id, err)
		}
		return s.synthesizeMeta(id, blob)
	}
	var meta Meta
	if err := json.Unmarshal(payload, &meta); err != nil {
		s.logger.Warn("media metadata unreadable; using file attributes",
			logging.MediaID(id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "media_metadata_invalid"),
			logging.String(logging.FieldErrorHint, "re-store the asset to rewrite its metadata"),
			logging.String(logging.FieldImpact, "mime type and page label unavailable"),
		)
		return s.synthesizeMeta(id, blob)
	}
	if meta.Version != metaVersion {
		return Meta{}, fmt.Errorf("mediastore: %s: unsupported metadata version %d", id, meta.Version)
	}
	meta.ID = id
	return meta, nil
}

func (s *FileStore) synthesizeMeta(id string, blob *os.File) (Meta, error) {
	var (
		info fs.FileInfo
		err  error
	)
	if blob != nil {
		info, err = blob.Stat()
	} else {
		info, err = os.Stat(s.BlobPath(id))
	}
	if err != nil {
		return Meta{}, media.NewIOError("stat media", id, err)
	}
	return Meta{Version: metaVersion, ID: id, Size: info.Size(), StoredAt: info.ModTime().UTC()}, nil
}
