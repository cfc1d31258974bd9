package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"sendit/internal/bridge"
	"sendit/internal/config"
	"sendit/internal/logging"
	"sendit/internal/loopback"
)

type runOptions struct {
	configPath  string
	downloadDir string
	rate        string
	logLevel    string
	retain      int
}

// run serves the loopback backend until ctx ends.
func run(ctx context.Context, opts runOptions) error {
	cfg, _, _, err := config.Load(strings.TrimSpace(opts.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.logLevel) != "" {
		level = opts.logLevel
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "senditd.log")
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var rate uint64
	if strings.TrimSpace(opts.rate) != "" {
		if rate, err = humanize.ParseBytes(opts.rate); err != nil {
			return fmt.Errorf("parse --rate: %w", err)
		}
	}
	downloadDir := strings.TrimSpace(opts.downloadDir)
	if downloadDir == "" {
		downloadDir = filepath.Join(cfg.Paths.DataDir, "downloads")
	}
	if downloadDir, err = config.ExpandPath(downloadDir); err != nil {
		return fmt.Errorf("resolve download directory: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "senditd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	hub := bridge.NewHub(opts.retain)
	backend, err := loopback.New(ctx, hub, loopback.Options{
		DownloadDir:    downloadDir,
		BytesPerSecond: int64(rate),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	srv, err := bridge.NewServer(ctx, cfg.Paths.SocketPath, backend, hub, logger)
	if err != nil {
		return fmt.Errorf("start bridge server: %w", err)
	}
	defer srv.Close()
	srv.Serve()

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "backend_started"),
		logging.String("socket", srv.Path()),
		logging.String("download_dir", downloadDir),
	}
	if rate > 0 {
		attrs = append(attrs, logging.String("rate", humanize.Bytes(rate)+"/s"))
	}
	logger.Info("senditd listening", logging.Args(attrs...)...)

	<-ctx.Done()
	logger.Info("senditd shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
