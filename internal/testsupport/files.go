package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes size bytes of a repeating non-uniform pattern to path,
// creating parent directories, and returns the content written. A size <= 0
// writes a single byte.
func WriteFile(t testing.TB, path string, size int) []byte {
	t.Helper()

	size = max(size, 1)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return data
}
