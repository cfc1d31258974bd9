package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"sendit/internal/bridge"
	"sendit/internal/config"
	"sendit/internal/logging"
	"sendit/internal/queue"
	"sendit/internal/session"
)

type commandContext struct {
	socketFlag   *string
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		socketFlag:   socketFlag,
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
			socket, err := config.ExpandPath(strings.TrimSpace(*c.socketFlag))
			if err != nil {
				c.configErr = fmt.Errorf("resolve socket path: %w", err)
				return
			}
			cfg.Paths.SocketPath = socket
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger writes to the log file. --log-level also echoes records at that
// level to stderr; stdout belongs to queue rendering.
func (c *commandContext) logger(cfg *config.Config) (*slog.Logger, error) {
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		override := *cfg
		override.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		return logging.NewFromConfig(&override)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "sendit.log")
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
}

// liveSession is a session whose event loop is running.
type liveSession struct {
	*session.Session
	cfg *config.Config
	// ctx ends when the command finishes or the backend goes away.
	ctx      context.Context
	out      io.Writer
	colorize bool
}

// withSession connects to the backend, runs the event loop for the lifetime
// of fn, and tears everything down afterwards. fn receives the command's
// context, which ends on Ctrl-C while the session keeps running so abort
// confirmations can still arrive.
func (c *commandContext) withSession(cmd *cobra.Command, opts session.Options, fn func(ctx context.Context, s *liveSession) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if opts.Logger == nil {
		logger, err := c.logger(cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		opts.Logger = logger
	}
	sess, err := session.Open(cfg, opts)
	if err != nil {
		return wrapDialError(err, cfg.Paths.SocketPath)
	}
	defer sess.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- sess.Run(runCtx)
		cancel()
	}()

	cmdCtx := cmd.Context()
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	select {
	case <-sess.Ready():
	case err := <-runErr:
		if err == nil {
			err = errors.New("session stopped before the queues were loaded")
		}
		return err
	case <-cmdCtx.Done():
		cancel()
		<-runErr
		return cmdCtx.Err()
	}

	fnErr := fn(cmdCtx, &liveSession{
		Session:  sess,
		cfg:      cfg,
		ctx:      runCtx,
		out:      cmd.OutOrStdout(),
		colorize: shouldColorize(cmd.OutOrStdout()),
	})
	cancel()
	if err := <-runErr; err != nil && fnErr == nil {
		return err
	}
	return fnErr
}

func wrapDialError(err error, socket string) error {
	if bridge.IsUnavailable(err) {
		return fmt.Errorf("connect to backend: socket %s is not accepting connections; start the SendIt backend first: %w", socket, err)
	}
	return fmt.Errorf("connect to backend: %w", err)
}

// waitForState blocks until cond holds for the store state, the session
// ends, or timeout elapses (zero waits indefinitely).
func (s *liveSession) waitForState(ctx context.Context, timeout time.Duration, cond func(queue.State) bool) (queue.State, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx, stop := mergeDone(ctx, s.ctx)
	defer stop()

	state := s.Store().State()
	if cond(state) {
		return state, nil
	}
	for state = range s.Store().Watch(ctx) {
		if cond(state) {
			return state, nil
		}
	}
	if s.ctx.Err() != nil {
		return state, errors.New("backend connection lost")
	}
	return state, ctx.Err()
}

// mergeDone returns a context that ends when either parent does.
func mergeDone(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
