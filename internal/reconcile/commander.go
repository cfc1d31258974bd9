package reconcile

import (
	"context"
	"errors"
)

var (
	// ErrEmptyTicket is returned by Download for a blank ticket.
	ErrEmptyTicket = errors.New("ticket is empty")
	// ErrDownloadInProgress is returned by Download while a previous ticket is still being received.
	ErrDownloadInProgress = errors.New("a download is already in progress")
)

// FileInfo describes a validated local file.
type FileInfo struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Path string `json:"path"`
	Size uint64 `json:"size"`
}

// Commander is the backend command surface. Implementations must be safe for
// concurrent use; the Controller issues adds in parallel.
type Commander interface {
	AddFile(ctx context.Context, path string) error
	RemoveFile(ctx context.Context, path string) error
	RemoveAllFiles(ctx context.Context) error
	GenerateTicket(ctx context.Context) (string, error)
	DownloadByTicket(ctx context.Context, ticket string) error
	CancelDownload(ctx context.Context, name string) error
	ValidatePaths(ctx context.Context, paths []string) ([]FileInfo, error)
}

// Command names used in logs, notices, and metrics.
const (
	CommandAddFile          = "add_file"
	CommandRemoveFile       = "remove_file"
	CommandRemoveAllFiles   = "remove_all_files"
	CommandGenerateTicket   = "generate_ticket"
	CommandDownloadByTicket = "download_by_ticket"
	CommandCancelDownload   = "cancel_download"
	CommandValidatePaths    = "validate_paths"
)
