package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sendit/internal/bridge"
	"sendit/internal/testsupport"
)

func writeConfig(t *testing.T) (string, string, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SENDIT_SOCKET", "")
	cfg := testsupport.NewConfig(t)
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, cfg.Paths.SocketPath, cfg.Paths.DataDir
}

func TestRunServesBridgeUntilCancelled(t *testing.T) {
	configPath, socket, dataDir := writeConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, runOptions{configPath: configPath, rate: "1MB", retain: 64})
	}()

	var client *bridge.Client
	deadline := time.Now().Add(3 * time.Second)
	for client == nil {
		select {
		case err := <-done:
			if err != nil && strings.Contains(err.Error(), "operation not permitted") {
				t.Skipf("skipping daemon test: %v", err)
			}
			t.Fatalf("run exited early: %v", err)
		default:
		}
		c, err := bridge.Dial(socket, bridge.ClientOptions{})
		if err == nil {
			client = c
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("backend never listened on %s: %v", socket, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer client.Close()

	if _, err := os.Stat(filepath.Join(dataDir, "senditd.pid")); err != nil {
		t.Fatalf("pid file missing: %v", err)
	}

	src := filepath.Join(t.TempDir(), "report.pdf")
	testsupport.WriteFile(t, src, 512)
	files, err := client.ValidatePaths(ctx, []string{src, filepath.Dir(src)})
	if err != nil {
		t.Fatalf("ValidatePaths: %v", err)
	}
	if len(files) != 1 || files[0].Name != "report.pdf" {
		t.Fatalf("ValidatePaths = %+v, want only report.pdf", files)
	}
	if _, err := client.GenerateTicket(ctx); err == nil {
		t.Fatal("expected GenerateTicket to fail with an empty outbound queue")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	if _, err := os.Stat(filepath.Join(dataDir, "senditd.pid")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file should be removed, stat err = %v", err)
	}
}

func TestRunRejectsInvalidRate(t *testing.T) {
	configPath, _, _ := writeConfig(t)
	err := run(context.Background(), runOptions{configPath: configPath, rate: "fast", retain: 64})
	if err == nil || !strings.Contains(err.Error(), "parse --rate") {
		t.Fatalf("run error = %v, want rate parse failure", err)
	}
}
