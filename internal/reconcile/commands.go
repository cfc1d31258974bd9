package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"sendit/internal/logging"
	"sendit/internal/queue"
)

// DragEnter validates paths with the backend and stores the result as the
// drag preview, minus files already queued for sending and repeated names.
// A result that arrives after a newer DragEnter, DragLeave, or Drop is
// discarded and nil is returned.
func (c *Controller) DragEnter(ctx context.Context, paths []string) ([]queue.PreviewItem, error) {
	c.previewMu.Lock()
	c.previewGen++
	gen := c.previewGen
	c.previewMu.Unlock()

	files, err := c.cmd.ValidatePaths(ctx, paths)
	c.metrics.RecordCommand(CommandValidatePaths, err)
	if err != nil {
		c.commandFailed(CommandValidatePaths, "", err)
		return nil, fmt.Errorf("validate paths: %w", err)
	}

	c.previewMu.Lock()
	defer c.previewMu.Unlock()
	if gen != c.previewGen {
		c.logger.Debug("stale preview discarded", logging.Int("file_count", len(files)))
		return nil, nil
	}

	preview := make([]queue.PreviewItem, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, file := range files {
		key := queue.DeriveKey(file.Path)
		if key == "" {
			key = queue.DeriveKey(file.Name)
		}
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if c.store.Has(queue.Outbound, key) {
			continue
		}
		name := file.Name
		if name == "" {
			name = key
		}
		preview = append(preview, queue.PreviewItem{Key: key, Name: name, Icon: file.Icon, Path: file.Path, Size: file.Size})
	}
	c.store.SetPreview(preview)
	return preview, nil
}

// DragLeave clears the drag preview.
func (c *Controller) DragLeave() {
	c.previewMu.Lock()
	c.previewGen++
	c.store.ClearPreview()
	c.previewMu.Unlock()
}

// Drop clears the preview and asks the backend to add every previewed file.
// Queue items appear only when the backend reports them. It returns the
// number of add commands issued.
func (c *Controller) Drop(ctx context.Context) (int, error) {
	c.previewMu.Lock()
	c.previewGen++
	items := c.store.Preview()
	c.store.ClearPreview()
	c.previewMu.Unlock()

	paths := make([]string, 0, len(items))
	for _, item := range items {
		paths = append(paths, item.Path)
	}
	return len(paths), c.AddFiles(ctx, paths...)
}

// AddFiles asks the backend to import each path for sending. Adds run in
// parallel; failures are joined.
func (c *Controller) AddFiles(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, path := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			err := c.cmd.AddFile(ctx, path)
			c.metrics.RecordCommand(CommandAddFile, err)
			if err == nil {
				return
			}
			c.commandFailed(CommandAddFile, queue.DeriveKey(path), err)
			mu.Lock()
			errs = append(errs, fmt.Errorf("add %s: %w", path, err))
			mu.Unlock()
		}(path)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// RemoveFile asks the backend to withdraw an outbound file. keyOrPath may be a
// queue key or the file's path.
func (c *Controller) RemoveFile(ctx context.Context, keyOrPath string) error {
	path := keyOrPath
	key := queue.DeriveKey(keyOrPath)
	if item, ok := c.store.Get(queue.Outbound, key); ok && item.Path != "" {
		path = item.Path
	}
	err := c.cmd.RemoveFile(ctx, path)
	c.metrics.RecordCommand(CommandRemoveFile, err)
	if err != nil {
		c.commandFailed(CommandRemoveFile, key, err)
		return fmt.Errorf("remove %s: %w", keyOrPath, err)
	}
	return nil
}

// RemoveAllFiles asks the backend to withdraw every outbound file.
func (c *Controller) RemoveAllFiles(ctx context.Context) error {
	err := c.cmd.RemoveAllFiles(ctx)
	c.metrics.RecordCommand(CommandRemoveAllFiles, err)
	if err != nil {
		c.commandFailed(CommandRemoveAllFiles, "", err)
		return fmt.Errorf("remove all files: %w", err)
	}
	return nil
}

// GenerateTicket asks the backend for a redemption ticket covering the
// outbound queue.
func (c *Controller) GenerateTicket(ctx context.Context) (string, error) {
	ticket, err := c.cmd.GenerateTicket(ctx)
	c.metrics.RecordCommand(CommandGenerateTicket, err)
	if err != nil {
		c.commandFailed(CommandGenerateTicket, "", err)
		return "", fmt.Errorf("generate ticket: %w", err)
	}
	c.emit(Notice{
		Kind:    NoticeTicket,
		Queue:   queue.Outbound,
		Message: ticket,
		Size:    uint64(c.store.Snapshot(queue.Outbound).Len()),
	})
	return ticket, nil
}

// Download clears the inbound queue, marks a download in progress, and asks
// the backend to redeem ticket. The backend may hold the call open until every
// file is received. A failed command resets the in-progress flag.
func (c *Controller) Download(ctx context.Context, ticket string) error {
	ticket = strings.TrimSpace(ticket)
	if ticket == "" {
		return ErrEmptyTicket
	}
	c.downloadMu.Lock()
	if c.store.Downloading() {
		c.downloadMu.Unlock()
		return ErrDownloadInProgress
	}
	c.store.Clear(queue.Inbound)
	c.limiters[queue.Inbound].Reset()
	c.store.SetDownloading(true)
	c.downloadMu.Unlock()

	err := c.cmd.DownloadByTicket(ctx, ticket)
	c.metrics.RecordCommand(CommandDownloadByTicket, err)
	if err != nil {
		c.store.SetDownloading(false)
		c.commandFailed(CommandDownloadByTicket, "", err)
		return fmt.Errorf("download: %w", err)
	}
	return nil
}

// CancelInbound requests cancellation of an in-flight download. The item is
// only marked; it leaves the queue when the backend confirms. Unknown or
// finished items are ignored, and repeating the request is harmless.
func (c *Controller) CancelInbound(ctx context.Context, key string) error {
	item, ok := c.store.Get(queue.Inbound, key)
	if !ok || item.Done {
		c.logger.Debug("cancel ignored", logging.ItemKey(key), logging.Bool("queued", ok))
		return nil
	}
	repeat := item.Cancelling
	c.store.SetCancelling(queue.Inbound, key, true)

	err := c.cmd.CancelDownload(ctx, key)
	c.metrics.RecordCommand(CommandCancelDownload, err)
	if err != nil && repeat {
		// The first request is still outstanding; its abort decides the item.
		c.logger.Debug("repeated cancel rejected", logging.ItemKey(key), logging.Error(err))
		return nil
	}
	if err != nil {
		c.store.SetCancelling(queue.Inbound, key, false)
		c.commandFailed(CommandCancelDownload, key, err)
		return fmt.Errorf("cancel %s: %w", key, err)
	}
	c.logger.Info("cancel requested", logging.ItemKey(key))
	return nil
}

// CancelAllInbound requests cancellation of every unfinished download and
// returns how many were requested.
func (c *Controller) CancelAllInbound(ctx context.Context) (int, error) {
	var (
		errs      []error
		requested int
	)
	for _, item := range c.store.Snapshot(queue.Inbound).Items {
		if item.Done {
			continue
		}
		requested++
		if err := c.CancelInbound(ctx, item.Key); err != nil {
			errs = append(errs, err)
		}
	}
	return requested, errors.Join(errs...)
}

func (c *Controller) commandFailed(command, key string, err error) {
	logging.WarnWithContext(c.logger, "backend command failed", "command_failed",
		logging.Command(command),
		logging.ItemKey(key),
		logging.Error(err),
		logging.String(logging.FieldImpact, "queue unchanged"),
		logging.String(logging.FieldErrorHint, "check that the transfer backend is running"))
	id := queue.ID("")
	if key != "" {
		id = queue.Outbound
		if command == CommandCancelDownload {
			id = queue.Inbound
		}
	}
	c.emit(Notice{Kind: NoticeCommandFailed, Queue: id, Key: key, Command: command, Message: err.Error()})
}
