package testsupport

import (
	"context"
	"path/filepath"
	"sync"

	"sendit/internal/reconcile"
)

// Call is one recorded command.
type Call struct {
	Command string
	Arg     string
}

// FakeCommander records commands and returns configured results.
type FakeCommander struct {
	mu    sync.Mutex
	calls []Call

	// Errors maps a command name to the error it returns.
	Errors map[string]error
	// Ticket is returned by GenerateTicket.
	Ticket string
	// Validate overrides ValidatePaths. By default each path is echoed back
	// with its base name and size 1.
	Validate func(ctx context.Context, paths []string) ([]reconcile.FileInfo, error)
	// Download runs inside DownloadByTicket when set, after the call is recorded.
	Download func(ctx context.Context, ticket string) error
}

// NewFakeCommander returns a FakeCommander with no configured failures.
func NewFakeCommander() *FakeCommander {
	return &FakeCommander{Errors: make(map[string]error), Ticket: "ticket-1"}
}

func (f *FakeCommander) record(command, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Command: command, Arg: arg})
	return f.Errors[command]
}

// SetError configures command to fail with err (nil clears it).
func (f *FakeCommander) SetError(command string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errors, command)
		return
	}
	f.Errors[command] = err
}

// Calls returns a copy of the recorded commands.
func (f *FakeCommander) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsFor returns the arguments of every recorded call to command.
func (f *FakeCommander) CallsFor(command string) []string {
	var args []string
	for _, call := range f.Calls() {
		if call.Command == command {
			args = append(args, call.Arg)
		}
	}
	return args
}

func (f *FakeCommander) AddFile(_ context.Context, path string) error {
	return f.record(reconcile.CommandAddFile, path)
}

func (f *FakeCommander) RemoveFile(_ context.Context, path string) error {
	return f.record(reconcile.CommandRemoveFile, path)
}

func (f *FakeCommander) RemoveAllFiles(context.Context) error {
	return f.record(reconcile.CommandRemoveAllFiles, "")
}

func (f *FakeCommander) GenerateTicket(context.Context) (string, error) {
	if err := f.record(reconcile.CommandGenerateTicket, ""); err != nil {
		return "", err
	}
	return f.Ticket, nil
}

func (f *FakeCommander) DownloadByTicket(ctx context.Context, ticket string) error {
	if err := f.record(reconcile.CommandDownloadByTicket, ticket); err != nil {
		return err
	}
	if f.Download != nil {
		return f.Download(ctx, ticket)
	}
	return nil
}

func (f *FakeCommander) CancelDownload(_ context.Context, name string) error {
	return f.record(reconcile.CommandCancelDownload, name)
}

func (f *FakeCommander) ValidatePaths(ctx context.Context, paths []string) ([]reconcile.FileInfo, error) {
	for _, path := range paths {
		if err := f.record(reconcile.CommandValidatePaths, path); err != nil {
			return nil, err
		}
	}
	if f.Validate != nil {
		return f.Validate(ctx, paths)
	}
	out := make([]reconcile.FileInfo, 0, len(paths))
	for _, path := range paths {
		out = append(out, reconcile.FileInfo{Name: filepath.Base(path), Path: path, Size: 1})
	}
	return out, nil
}
