// Package fileutil holds the crash-safe file primitives coursekit builds its
// project records, backups and media payloads on.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// WriteFileAtomic writes data to path through WriteAtomic.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	return WriteAtomic(path, mode, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic has write fill a hidden temp file next to path, then fsyncs and
// renames it over path and syncs the directory. Readers see the old content
// or the new, never a mix. On any error the temp file is removed and path is
// left untouched.
func WriteAtomic(path string, mode os.FileMode, write func(io.Writer) error) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	steps := []func() error{
		func() error { return write(tmp) },
		func() error { return tmp.Chmod(mode) },
		tmp.Sync,
		tmp.Close,
		func() error { return os.Rename(tmp.Name(), path) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	committed = true
	return SyncDir(dir)
}

// CopyVerified atomically copies src to dst and then re-reads dst to confirm
// it hashes the same as what was read from src. A mismatching dst is removed.
// It returns the number of bytes copied.
func CopyVerified(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	want := sha256.New()
	var n int64
	err = WriteAtomic(dst, 0o644, func(w io.Writer) error {
		var copyErr error
		n, copyErr = io.Copy(w, io.TeeReader(in, want))
		return copyErr
	})
	if err != nil {
		return 0, err
	}

	got, size, err := hashFile(dst)
	if err != nil {
		return 0, err
	}
	if size != n || !bytes.Equal(got, want.Sum(nil)) {
		os.Remove(dst)
		return 0, fmt.Errorf("copy of %s does not match the source (%d of %d bytes)", filepath.Base(src), size, n)
	}
	return n, nil
}

func hashFile(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, 0, err
	}
	return h.Sum(nil), n, nil
}

// SyncDir flushes directory metadata so a completed rename survives a crash.
// Filesystems that cannot sync directories are ignored.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}
	return nil
}

// FreeSpace returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// Writable returns nil when the current user can list, create entries in and
// traverse dir.
func Writable(dir string) error {
	return unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK)
}
