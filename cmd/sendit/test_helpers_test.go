package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sendit/internal/bridge"
	"sendit/internal/config"
	"sendit/internal/lifecycle"
	"sendit/internal/logging"
	"sendit/internal/loopback"
	"sendit/internal/testsupport"
)

// echoBackend records commands like FakeCommander and publishes the events a
// real backend would emit in response.
type echoBackend struct {
	*testsupport.FakeCommander
	hub *bridge.Hub

	mu    sync.Mutex
	added map[string]string
}

func (b *echoBackend) AddFile(ctx context.Context, path string) error {
	if err := b.FakeCommander.AddFile(ctx, path); err != nil {
		return err
	}
	var size uint64
	if info, err := os.Stat(path); err == nil {
		size = uint64(info.Size())
	}
	name := filepath.Base(path)
	b.mu.Lock()
	b.added[name] = path
	b.mu.Unlock()
	b.hub.Publish(lifecycle.EventOutboundAdded, lifecycle.OutboundAddedPayload{Name: name, Path: path, Size: size})
	return nil
}

func (b *echoBackend) RemoveFile(ctx context.Context, path string) error {
	if err := b.FakeCommander.RemoveFile(ctx, path); err != nil {
		return err
	}
	name := filepath.Base(path)
	b.mu.Lock()
	delete(b.added, name)
	b.mu.Unlock()
	b.hub.Publish(lifecycle.EventOutboundRemoved, lifecycle.NamePayload{Name: name})
	return nil
}

func (b *echoBackend) RemoveAllFiles(ctx context.Context) error {
	if err := b.FakeCommander.RemoveAllFiles(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for name := range b.added {
		b.hub.Publish(lifecycle.EventOutboundRemoved, lifecycle.NamePayload{Name: name})
		delete(b.added, name)
	}
	return nil
}

func (b *echoBackend) CancelDownload(ctx context.Context, name string) error {
	if err := b.FakeCommander.CancelDownload(ctx, name); err != nil {
		return err
	}
	b.hub.Publish(lifecycle.EventInboundAborted, lifecycle.AbortedPayload{Name: name, Reason: "Cancelled"})
	return nil
}

type cliTestEnv struct {
	cfg        *config.Config
	backend    *echoBackend
	hub        *bridge.Hub
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	env := newCLIConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	env.hub = bridge.NewHub(256)
	env.backend = &echoBackend{
		FakeCommander: testsupport.NewFakeCommander(),
		hub:           env.hub,
		added:         make(map[string]string),
	}
	srv, err := bridge.NewServer(ctx, env.cfg.Paths.SocketPath, env.backend, env.hub, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("bridge.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return env
}

// setupLoopbackEnv serves a loopback backend, which imports and completes
// offered files on its own, instead of the scripted echo backend.
func setupLoopbackEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	env := newCLIConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	env.hub = bridge.NewHub(256)
	backend, err := loopback.New(ctx, env.hub, loopback.Options{
		DownloadDir:      t.TempDir(),
		ProgressInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("loopback.New: %v", err)
	}
	t.Cleanup(backend.Close)
	srv, err := bridge.NewServer(ctx, env.cfg.Paths.SocketPath, backend, env.hub, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("bridge.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return env
}

// newCLIConfig writes a config file without starting a backend.
func newCLIConfig(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SENDIT_SOCKET", "")
	opts = append([]testsupport.ConfigOption{testsupport.WithProgressIntervals(0, 0)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), env, args...)
}

func runCLIContext(t *testing.T, ctx context.Context, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
