package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"sendit/internal/bridge"
	"sendit/internal/lifecycle"
	"sendit/internal/logging"
)

// Handler consumes lifecycle records.
type Handler interface {
	HandleRecord(lifecycle.Record)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(lifecycle.Record)

// HandleRecord calls f(rec).
func (f HandlerFunc) HandleRecord(rec lifecycle.Record) { f(rec) }

type registration struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	handler Handler
	kinds   []lifecycle.Kind
}

// wants reports whether the registration takes kind. Unknown records only go
// to handlers that ask for them by name.
func (r *registration) wants(kind lifecycle.Kind) bool {
	if kind == lifecycle.KindUnknown || len(r.kinds) > 0 {
		return slices.Contains(r.kinds, kind)
	}
	return true
}

// Manager owns handler registrations and dispatches records to them.
type Manager struct {
	logger *slog.Logger

	mu   sync.Mutex
	regs []*registration

	// dispatchMu keeps Dispatch calls from interleaving when tests or replay
	// call it alongside Run.
	dispatchMu sync.Mutex
}

// NewManager constructs a Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logging.NewComponentLogger(logger, "subscription")}
}

// Subscribe registers handler for the given record kinds (every kind except
// lifecycle.KindUnknown when none are given) until ctx ends or cancel is
// called. It returns the subscription identifier and its cancel function.
func (m *Manager) Subscribe(ctx context.Context, handler Handler, kinds ...lifecycle.Kind) (string, context.CancelFunc) {
	subCtx, cancel := context.WithCancel(ctx)
	reg := &registration{
		id:      uuid.NewString(),
		ctx:     subCtx,
		cancel:  cancel,
		handler: handler,
		kinds:   slices.Clone(kinds),
	}
	m.mu.Lock()
	m.regs = append(m.regs, reg)
	m.mu.Unlock()
	m.logger.Debug("handler subscribed", logging.String("subscription_id", reg.id), logging.Int("kind_count", len(kinds)))
	return reg.id, cancel
}

// Len returns the number of live registrations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, reg := range m.regs {
		if reg.ctx.Err() == nil {
			n++
		}
	}
	return n
}

// Run dispatches events until ctx ends or events is closed.
func (m *Manager) Run(ctx context.Context, events <-chan bridge.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			m.Dispatch(evt)
		}
	}
}

// Dispatch normalizes one event and delivers it to every matching live
// handler in registration order. Unknown records are logged and reach only
// handlers subscribed to lifecycle.KindUnknown.
func (m *Manager) Dispatch(evt bridge.Event) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	rec := lifecycle.Normalize(evt.Name, evt.Payload)
	if u, ok := rec.(lifecycle.Unknown); ok {
		m.logger.Debug("event dropped",
			logging.Event(evt.Name),
			logging.Uint64("seq", evt.Seq),
			logging.String("reason", u.Reason),
			logging.String(logging.FieldEventType, "event_unknown"))
	}
	for _, reg := range m.live() {
		if !reg.wants(rec.Kind()) {
			continue
		}
		if reg.ctx.Err() != nil {
			continue
		}
		m.deliver(reg, rec, evt)
	}
}

// live prunes revoked registrations and returns a copy of the rest.
func (m *Manager) live() []*registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs = slices.DeleteFunc(m.regs, func(reg *registration) bool {
		return reg.ctx.Err() != nil
	})
	return slices.Clone(m.regs)
}

func (m *Manager) deliver(reg *registration, rec lifecycle.Record, evt bridge.Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(m.logger, "handler panicked", "handler_panic",
				logging.String("subscription_id", reg.id),
				logging.Event(evt.Name),
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldImpact, "record skipped for this handler"),
				logging.String(logging.FieldErrorHint, "report the event payload with the log"))
		}
	}()
	reg.handler.HandleRecord(rec)
}
