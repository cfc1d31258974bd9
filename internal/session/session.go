package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofrs/flock"

	"sendit/internal/bridge"
	"sendit/internal/config"
	"sendit/internal/history"
	"sendit/internal/lifecycle"
	"sendit/internal/logging"
	"sendit/internal/metrics"
	"sendit/internal/notifications"
	"sendit/internal/queue"
	"sendit/internal/reconcile"
	"sendit/internal/subscription"
)

// ErrBackendLost is returned by Run when the backend connection drops.
var ErrBackendLost = errors.New("backend connection lost")

// Options configures Open.
type Options struct {
	Logger *slog.Logger
	// Notifier overrides the ntfy service built from config.
	Notifier notifications.Service
	// ReadOnly skips the history recorder even when this client could take
	// the lock.
	ReadOnly bool
}

// Session is one connected client.
type Session struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *bridge.Client
	store   *queue.Store
	ctrl    *reconcile.Controller
	manager *subscription.Manager
	metrics *metrics.Metrics
	notify  notifications.Service

	lock    *flock.Flock
	history *history.Store

	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
}

// Open checks the data directory, connects to the backend, and builds the
// engine. The caller must Close the session.
func Open(cfg *config.Config, opts Options) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}
	if err := CheckDirectoryAccess(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}

	client, err := bridge.Dial(cfg.Paths.SocketPath, bridge.ClientOptions{
		DialTimeout: cfg.DialTimeout(),
		CallTimeout: cfg.CallTimeout(),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	store := queue.NewStore()
	ctrl := reconcile.New(store, client,
		reconcile.WithLogger(logger),
		reconcile.WithProgressDelays(cfg.InboundProgressInterval(), cfg.OutboundProgressInterval()),
		reconcile.WithRecorder(m))

	s := &Session{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "session"),
		client:  client,
		store:   store,
		ctrl:    ctrl,
		manager: subscription.NewManager(logger),
		metrics: m,
		notify:  opts.Notifier,
		ready:   make(chan struct{}),
	}
	if s.notify == nil {
		s.notify = notifications.NewService(cfg)
	}
	if cfg.History.Enabled && !opts.ReadOnly {
		if err := s.openHistory(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// openHistory takes the recorder lock and opens the database. Losing the
// lock race is not an error; this client just does not record.
func (s *Session) openHistory() error {
	lock := flock.New(s.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire recorder lock: %w", err)
	}
	if !ok {
		s.logger.Info("history recorded by another client", logging.String("lock", s.cfg.LockPath()))
		return nil
	}
	store, err := history.Open(s.cfg.History.Path)
	if err != nil {
		_ = lock.Unlock()
		return fmt.Errorf("open history: %w", err)
	}
	s.lock = lock
	s.history = store
	return nil
}

// Controller returns the reconciliation controller; CLI commands go through it.
func (s *Session) Controller() *reconcile.Controller { return s.ctrl }

// Store returns the queue store.
func (s *Session) Store() *queue.Store { return s.store }

// Metrics returns the session's collectors.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// Subscriptions returns the subscription manager so callers can add handlers.
func (s *Session) Subscriptions() *subscription.Manager { return s.manager }

// Recording reports whether this session holds the history recorder lock.
func (s *Session) Recording() bool { return s.history != nil }

// Ready is closed once the events retained by the backend have been applied
// to the store.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Run dispatches backend events into the engine until ctx ends (nil error)
// or the backend goes away (ErrBackendLost).
//
// Retained events are replayed first. Notices raised during replay describe
// transfers that ended before this session started, so notification and
// history consumers subscribe only after it.
func (s *Session) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.manager.Subscribe(ctx, s.ctrl)
	// Unknown records only reach explicit subscribers; the controller counts them.
	s.manager.Subscribe(ctx, s.ctrl, lifecycle.KindUnknown)

	cursor, replayed, err := s.client.Replay(ctx, s.cfg.Bridge.EventBatch, s.manager.Dispatch)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if bridge.IsUnavailable(err) {
			return fmt.Errorf("%w: %w", ErrBackendLost, err)
		}
		return fmt.Errorf("replay events: %w", err)
	}
	s.logger.Debug("retained events replayed",
		logging.Int("event_count", replayed),
		logging.Uint64("cursor", cursor))
	s.readyOnce.Do(func() { close(s.ready) })

	wg.Go(func() {
		notifications.Forward(ctx, s.notify, s.ctrl.Notices(ctx), s.logger)
	})
	if s.history != nil {
		notices := s.ctrl.Notices(ctx)
		wg.Go(func() { recordHistory(ctx, s.history, notices, s.logger) })
	}
	wg.Go(func() { s.metrics.Watch(ctx, s.store) })

	srv, err := metrics.NewServer(s.cfg.Metrics.Bind, s.metrics, s.store, s.logger)
	if err != nil {
		logging.WarnWithContext(s.logger, "metrics server unavailable", "metrics_listen_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "metrics not exported"),
			logging.String(logging.FieldErrorHint, "check metrics.bind"))
	}
	srv.Start(ctx)

	pump := s.client.Events(ctx, bridge.PumpOptions{
		Since: cursor,
		Batch: s.cfg.Bridge.EventBatch,
		Wait:  s.cfg.EventWait(),
	})
	s.logger.Info("session started",
		logging.String("socket", s.cfg.Paths.SocketPath),
		logging.Bool("recording_history", s.Recording()))
	if err := s.manager.Run(ctx, pump.C); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if perr := pump.Err(); perr != nil {
		return fmt.Errorf("%w: %w", ErrBackendLost, perr)
	}
	return nil
}

// Close disconnects from the backend and releases the recorder lock.
func (s *Session) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.client != nil {
			errs = append(errs, s.client.Close())
		}
		if s.history != nil {
			errs = append(errs, s.history.Close())
		}
		if s.lock != nil {
			errs = append(errs, s.lock.Unlock())
		}
	})
	return errors.Join(errs...)
}
