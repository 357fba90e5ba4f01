package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"coursekit/internal/course"
	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/mediaid"
	"coursekit/internal/mediastore"
)

const (
	// FormatName identifies coursekit project archives.
	FormatName = "coursekit-project"
	// FormatVersion is the archive layout written by this build.
	FormatVersion = 1

	recordEntry = "project.json"
	mediaPrefix = "media/"
	blobExt     = ".bin"
	metaExt     = ".json"

	maxRecordBytes = 64 << 20
)

// Record is the project.json entry of an archive.
type Record struct {
	Format  string       `json:"format"`
	Version int          `json:"version"`
	Project ProjectInfo  `json:"project"`
	Graph   course.Graph `json:"course"`
}

// ProjectInfo is the exported project header.
type ProjectInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is one stored payload inside an archive.
type Entry struct {
	ID         string
	Size       uint64
	Referenced bool

	blob *zip.File
	meta *zip.File
}

// Manifest is the validated content of an archive.
type Manifest struct {
	Record  Record
	Media   []Entry
	Skipped []string
	Remote  int

	// TotalBytes is the uncompressed size of every payload to be imported.
	TotalBytes uint64
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", media.ErrArchiveInvalid, fmt.Sprintf(format, args...))
}

// Inspect validates the archive in ra without writing anything. It checks
// that project.json decodes with a supported format and version, that the
// graph is well formed, that every referenced local payload is present, and
// that no entry exceeds the configured size limit.
func (a *Archiver) Inspect(ra io.ReaderAt, size int64) (*Manifest, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, invalidf("open zip: %v", err)
	}

	maxEntry := uint64(0)
	if a.cfg.MaxEntryBytes() > 0 {
		maxEntry = uint64(a.cfg.MaxEntryBytes())
	}

	var (
		recordFile *zip.File
		blobs      = map[string]*zip.File{}
		metas      = map[string]*zip.File{}
		order      []string
		skipped    []string
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if maxEntry > 0 && f.UncompressedSize64 > maxEntry {
			return nil, invalidf("entry %s is %d bytes, limit is %d", f.Name, f.UncompressedSize64, maxEntry)
		}
		name := path.Clean(f.Name)
		switch {
		case name == recordEntry:
			recordFile = f
		case strings.HasPrefix(name, mediaPrefix):
			base := strings.TrimPrefix(name, mediaPrefix)
			if strings.Contains(base, "/") || mediaid.IsDuplicateName(base) {
				skipped = append(skipped, f.Name)
				continue
			}
			ext := path.Ext(base)
			id := strings.TrimSuffix(base, ext)
			if media.ValidateID(id) != nil {
				skipped = append(skipped, f.Name)
				continue
			}
			switch ext {
			case blobExt:
				if _, seen := blobs[id]; !seen {
					order = append(order, id)
				}
				blobs[id] = f
			case metaExt:
				metas[id] = f
			default:
				skipped = append(skipped, f.Name)
			}
		default:
			skipped = append(skipped, f.Name)
		}
	}

	if recordFile == nil {
		return nil, invalidf("missing %s", recordEntry)
	}
	rec, err := readRecord(recordFile)
	if err != nil {
		return nil, err
	}

	man := &Manifest{Record: *rec}
	referenced := map[string]bool{}
	for _, d := range rec.Graph.Descriptors() {
		if !d.Kind.Local() {
			man.Remote++
			continue
		}
		if _, ok := blobs[d.ID]; !ok {
			return nil, invalidf("%s references %s but the archive has no payload for it", d.Page, d.ID)
		}
		referenced[d.ID] = true
	}

	for _, id := range order {
		f := blobs[id]
		_, _, positional := mediaid.PageForID(id)
		if !referenced[id] && !positional {
			skipped = append(skipped, f.Name)
			continue
		}
		man.Media = append(man.Media, Entry{ID: id, Size: f.UncompressedSize64, Referenced: referenced[id], blob: f, meta: metas[id]})
		man.TotalBytes += f.UncompressedSize64
	}
	man.Skipped = skipped
	return man, nil
}

func readRecord(f *zip.File) (*Record, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, invalidf("open %s: %v", recordEntry, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxRecordBytes+1))
	if err != nil {
		return nil, invalidf("read %s: %v", recordEntry, err)
	}
	if len(data) > maxRecordBytes {
		return nil, invalidf("%s exceeds %d bytes", recordEntry, maxRecordBytes)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, invalidf("decode %s: %v", recordEntry, err)
	}
	if rec.Format != FormatName {
		return nil, invalidf("unknown format %q", rec.Format)
	}
	if rec.Version <= 0 || rec.Version > FormatVersion {
		return nil, invalidf("unsupported version %d", rec.Version)
	}
	if err := rec.Graph.Validate(); err != nil {
		return nil, invalidf("content graph: %v", err)
	}
	return &rec, nil
}

func readSidecar(f *zip.File) (mediastore.Meta, bool) {
	if f == nil {
		return mediastore.Meta{}, false
	}
	rc, err := f.Open()
	if err != nil {
		return mediastore.Meta{}, false
	}
	defer rc.Close()
	var meta mediastore.Meta
	if err := json.NewDecoder(io.LimitReader(rc, 1<<20)).Decode(&meta); err != nil {
		return mediastore.Meta{}, false
	}
	return meta, true
}

func skippedAttr(skipped []string) logging.Attr {
	return logging.Int("skipped_entries", len(skipped))
}
