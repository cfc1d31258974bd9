package testsupport

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path with size bytes of a repeating 0..250 ramp, so
// files of different sizes hash differently. A size <= 0 writes one byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	w := bufio.NewWriter(f)
	for i := range size {
		_ = w.WriteByte(byte(i % 251))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		t.Fatalf("write %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

// SourceFile writes a file called name into a fresh temp directory and
// returns its path, ready to be offered to a send queue.
func SourceFile(t testing.TB, name string, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	WriteFile(t, path, size)
	return path
}
