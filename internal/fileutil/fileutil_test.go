package fileutil

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCopyVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	content := bytes.Repeat([]byte("verified copy content "), 500)
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	var reports []int64
	written, err := CopyVerified(context.Background(), src, dst, CopyOptions{
		ChunkSize: 1024,
		Progress:  func(n int64, _ float64) { reports = append(reports, n) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if written != int64(len(content)) {
		t.Fatalf("written = %d, want %d", written, len(content))
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("content mismatch")
	}
	if len(reports) < 2 || reports[len(reports)-1] != int64(len(content)) {
		t.Fatalf("unexpected progress reports: %v", reports)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] <= reports[i-1] {
			t.Fatalf("progress went backwards: %v", reports)
		}
	}
}

func TestCopyVerified_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := CopyVerified(context.Background(), filepath.Join(dir, "nonexistent"), filepath.Join(dir, "dst.bin"), CopyOptions{}); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestCopyVerified_RejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := CopyVerified(context.Background(), dir, filepath.Join(dir, "dst.bin"), CopyOptions{}); err == nil {
		t.Fatal("expected error for directory source")
	}
}

func TestCopyVerified_CancelRemovesDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, make([]byte, 8192), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := CopyVerified(ctx, src, dst, CopyOptions{
		ChunkSize: 1024,
		Progress: func(n int64, _ float64) {
			if n >= 2048 {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Fatalf("expected destination removed, stat err = %v", statErr)
	}
}

func TestCopyVerified_RateLimit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, make([]byte, 10*1024), 0o644); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	var lastSpeed float64
	_, err := CopyVerified(context.Background(), src, filepath.Join(dir, "dst.bin"), CopyOptions{
		ChunkSize:      1024,
		BytesPerSecond: 100 * 1024,
		Progress:       func(_ int64, speed float64) { lastSpeed = speed },
	})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("copy finished in %s, expected pacing to about 100ms", elapsed)
	}
	if lastSpeed <= 0 || lastSpeed > 200*1024 {
		t.Fatalf("smoothed speed %.0f B/s is outside the paced range", lastSpeed)
	}
}

func TestChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Checksum(context.Background(), path, CopyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("Checksum = %s, want %s", got, want)
	}
}
