package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sendit/internal/bridge"
	"sendit/internal/fileutil"
	"sendit/internal/lifecycle"
	"sendit/internal/logging"
	"sendit/internal/reconcile"
	"sendit/internal/throttle"
)

var (
	// ErrDuplicateName is returned when a file with the same base name is already offered.
	ErrDuplicateName = errors.New("a file with that name is already queued")
	// ErrNotQueued is returned when removing a file that is not offered.
	ErrNotQueued = errors.New("file is not queued")
	// ErrNothingToSend is returned by GenerateTicket with an empty outbound queue.
	ErrNothingToSend = errors.New("no files queued for sending")
	// ErrUnknownTicket is returned for tickets this process did not issue.
	ErrUnknownTicket = errors.New("unknown ticket")
	// ErrDownloadActive is returned while a previous ticket is still being received.
	ErrDownloadActive = errors.New("a download is already running")
)

const (
	defaultProgressInterval = 100 * time.Millisecond
	cancelledReason         = "Cancelled"
)

// Options configures a Backend.
type Options struct {
	// DownloadDir receives redeemed files. Required.
	DownloadDir string
	// BytesPerSecond paces downloads. Zero copies at disk speed.
	BytesPerSecond int64
	// ProgressInterval spaces progress events per file.
	ProgressInterval time.Duration
	Logger           *slog.Logger
}

// Backend implements the backend command surface over local files and
// publishes lifecycle events to a bridge hub.
type Backend struct {
	ctx    context.Context
	cancel context.CancelFunc
	hub    *bridge.Hub
	opts   Options
	logger *slog.Logger
	gate   *throttle.Throttle

	mu          sync.Mutex
	offered     []reconcile.FileInfo
	imports     map[string]context.CancelFunc
	tickets     map[string][]reconcile.FileInfo
	downloads   map[string]context.CancelFunc
	downloading bool

	wg sync.WaitGroup
}

// New returns a Backend publishing to hub. Background work stops when ctx
// ends or Close is called.
func New(ctx context.Context, hub *bridge.Hub, opts Options) (*Backend, error) {
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	if strings.TrimSpace(opts.DownloadDir) == "" {
		return nil, errors.New("download directory is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Backend{
		ctx:       ctx,
		cancel:    cancel,
		hub:       hub,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "loopback"),
		gate:      throttle.New(opts.ProgressInterval),
		imports:   make(map[string]context.CancelFunc),
		tickets:   make(map[string][]reconcile.FileInfo),
		downloads: make(map[string]context.CancelFunc),
	}, nil
}

// Close cancels imports and downloads and waits for them to stop.
func (b *Backend) Close() {
	b.cancel()
	b.wg.Wait()
}

func (b *Backend) publish(name string, payload any) {
	if _, err := b.hub.Publish(name, payload); err != nil {
		b.logger.Error("event publish failed", logging.String("event", name), logging.Error(err))
	}
}

func statFile(path string) (reconcile.FileInfo, error) {
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return reconcile.FileInfo{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return reconcile.FileInfo{}, err
	}
	if !info.Mode().IsRegular() {
		return reconcile.FileInfo{}, fmt.Errorf("%s is not a regular file", abs)
	}
	return reconcile.FileInfo{Name: info.Name(), Path: abs, Size: uint64(info.Size())}, nil
}

// ValidatePaths reports the regular files among paths. Anything else is
// skipped.
func (b *Backend) ValidatePaths(_ context.Context, paths []string) ([]reconcile.FileInfo, error) {
	files := make([]reconcile.FileInfo, 0, len(paths))
	for _, path := range paths {
		file, err := statFile(path)
		if err != nil {
			b.logger.Debug("path rejected", logging.String("path", path), logging.Error(err))
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

// AddFile offers a file for sending. The file is announced immediately and
// imported (hashed) in the background.
func (b *Backend) AddFile(_ context.Context, path string) error {
	file, err := statFile(path)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if slices.ContainsFunc(b.offered, func(f reconcile.FileInfo) bool { return f.Name == file.Name }) {
		b.mu.Unlock()
		return fmt.Errorf("%s: %w", file.Name, ErrDuplicateName)
	}
	b.offered = append(b.offered, file)
	ctx, cancel := context.WithCancel(b.ctx)
	b.imports[file.Name] = cancel
	b.mu.Unlock()

	b.publish(lifecycle.EventOutboundAdded, lifecycle.OutboundAddedPayload{Name: file.Name, Path: file.Path, Size: file.Size})
	b.wg.Go(func() { b.importFile(ctx, file) })
	return nil
}

func (b *Backend) importFile(ctx context.Context, file reconcile.FileInfo) {
	defer b.forgetImport(file.Name)
	key := "import:" + file.Name
	defer b.gate.Forget(key)

	_, err := fileutil.Checksum(ctx, file.Path, fileutil.CopyOptions{
		Progress: func(read int64, _ float64) {
			if b.gate.IsFree(key) {
				b.publish(lifecycle.EventOutboundProgress, lifecycle.OutboundProgressPayload{
					Path:     file.Path,
					Progress: percent(read, file.Size),
				})
			}
		},
	})
	switch {
	case ctx.Err() != nil:
		// Removed while importing; the removal event was already published.
	case err != nil:
		b.mu.Lock()
		b.offered = slices.DeleteFunc(b.offered, func(f reconcile.FileInfo) bool { return f.Name == file.Name })
		b.mu.Unlock()
		b.publish(lifecycle.EventOutboundError, lifecycle.ErrorPayload{Name: file.Name, Error: err.Error()})
	default:
		b.publish(lifecycle.EventOutboundCompleted, lifecycle.NamePayload{Name: file.Name})
	}
}

func (b *Backend) forgetImport(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.imports[name]; ok {
		cancel()
		delete(b.imports, name)
	}
}

// RemoveFile withdraws an offered file by path or name.
func (b *Backend) RemoveFile(_ context.Context, path string) error {
	name := filepath.Base(filepath.Clean(strings.TrimSpace(path)))
	b.mu.Lock()
	before := len(b.offered)
	b.offered = slices.DeleteFunc(b.offered, func(f reconcile.FileInfo) bool { return f.Name == name })
	removed := len(b.offered) != before
	if cancel, ok := b.imports[name]; ok {
		cancel()
	}
	b.mu.Unlock()
	if !removed {
		return fmt.Errorf("%s: %w", name, ErrNotQueued)
	}
	b.publish(lifecycle.EventOutboundRemoved, lifecycle.NamePayload{Name: name})
	return nil
}

// RemoveAllFiles withdraws every offered file.
func (b *Backend) RemoveAllFiles(context.Context) error {
	b.mu.Lock()
	offered := b.offered
	b.offered = nil
	for _, cancel := range b.imports {
		cancel()
	}
	b.mu.Unlock()
	for _, file := range offered {
		b.publish(lifecycle.EventOutboundRemoved, lifecycle.NamePayload{Name: file.Name})
	}
	return nil
}

// GenerateTicket snapshots the offered files under a new ticket.
func (b *Backend) GenerateTicket(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.offered) == 0 {
		return "", ErrNothingToSend
	}
	ticket := "blob" + strings.ReplaceAll(uuid.NewString(), "-", "")
	b.tickets[ticket] = slices.Clone(b.offered)
	b.logger.Info("ticket issued", logging.Int("file_count", len(b.offered)))
	return ticket, nil
}

// DownloadByTicket starts copying the ticket's files into the download
// directory and returns once they are announced. Each file reports progress
// and ends in a completed, error, or aborted event; the download ends with
// an all-complete event.
func (b *Backend) DownloadByTicket(_ context.Context, ticket string) error {
	ticket = strings.TrimSpace(ticket)
	b.mu.Lock()
	files, ok := b.tickets[ticket]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownTicket
	}
	if b.downloading {
		b.mu.Unlock()
		return ErrDownloadActive
	}
	b.downloading = true
	ctxs := make([]context.Context, len(files))
	for i, file := range files {
		ctx, cancel := context.WithCancel(b.ctx)
		ctxs[i] = ctx
		b.downloads[file.Name] = cancel
	}
	b.mu.Unlock()

	for _, file := range files {
		b.publish(lifecycle.EventInboundAdded, lifecycle.InboundAddedPayload{Name: file.Name, Size: file.Size})
	}

	b.wg.Go(func() {
		var transfers sync.WaitGroup
		for i, file := range files {
			transfers.Go(func() { b.receive(ctxs[i], file) })
		}
		transfers.Wait()

		b.mu.Lock()
		b.downloading = false
		b.mu.Unlock()
		if b.ctx.Err() == nil {
			b.publish(lifecycle.EventInboundAllComplete, struct{}{})
		}
	})
	return nil
}

func (b *Backend) receive(ctx context.Context, file reconcile.FileInfo) {
	defer func() {
		b.mu.Lock()
		if cancel, ok := b.downloads[file.Name]; ok {
			cancel()
			delete(b.downloads, file.Name)
		}
		b.mu.Unlock()
		b.gate.Forget(file.Name)
	}()

	dst := filepath.Join(b.opts.DownloadDir, file.Name)
	if dst == file.Path {
		b.publish(lifecycle.EventInboundError, lifecycle.ErrorPayload{Name: file.Name, Error: "download directory holds the source file"})
		return
	}
	_, err := fileutil.CopyVerified(ctx, file.Path, dst, fileutil.CopyOptions{
		BytesPerSecond: b.opts.BytesPerSecond,
		Progress: func(written int64, bytesPerSecond float64) {
			if b.gate.IsFree(file.Name) {
				b.publish(lifecycle.EventInboundProgress, lifecycle.InboundProgressPayload{
					Name:     file.Name,
					Progress: percent(written, file.Size),
					// The wire speed unit is bytes per microsecond.
					Speed: bytesPerSecond / 1e6,
				})
			}
		},
	})
	switch {
	case b.ctx.Err() != nil:
		// Shutting down; nobody is listening for the outcome.
	case errors.Is(err, context.Canceled):
		b.logger.Info("download cancelled", logging.ItemKey(file.Name))
		b.publish(lifecycle.EventInboundAborted, lifecycle.AbortedPayload{Name: file.Name, Reason: cancelledReason})
	case err != nil:
		logging.WarnWithContext(b.logger, "download failed", "download_failed",
			logging.ItemKey(file.Name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file not received"),
			logging.String(logging.FieldErrorHint, "check that the source file still exists"))
		b.publish(lifecycle.EventInboundError, lifecycle.ErrorPayload{Name: file.Name, Error: err.Error()})
	default:
		b.publish(lifecycle.EventInboundCompleted, lifecycle.InboundCompletedPayload{Name: file.Name, Path: dst})
	}
}

// CancelDownload stops receiving name. The aborted event follows once the
// copy has stopped. A name that is not downloading, including one whose
// abort is already on its way, is ignored.
func (b *Backend) CancelDownload(_ context.Context, name string) error {
	b.mu.Lock()
	cancel, ok := b.downloads[name]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("cancel for idle name ignored", logging.ItemKey(name))
		return nil
	}
	cancel()
	return nil
}

func percent(done int64, total uint64) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}
