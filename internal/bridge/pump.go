package bridge

import (
	"context"
	"sync"
	"time"

	"sendit/internal/logging"
)

const defaultBatch = 256

// PumpOptions tunes an event pump.
type PumpOptions struct {
	// Since is the first cursor; 0 replays every retained event.
	Since uint64
	// Batch caps events per poll.
	Batch int
	// Wait is how long each poll may block on the backend.
	Wait time.Duration
	// Retry is the pause after a failed poll.
	Retry time.Duration
}

// Pump delivers backend events in sequence order on C.
type Pump struct {
	C <-chan Event

	done chan struct{}
	mu   sync.Mutex
	err  error
	next uint64
}

// Done is closed once the pump stops and C is closed.
func (p *Pump) Done() <-chan struct{} { return p.done }

// Err reports why the pump stopped: nil after ctx ended, or an
// ErrBackendUnavailable error when the connection was lost.
func (p *Pump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Cursor returns the sequence number of the last delivered event.
func (p *Pump) Cursor() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

// Replay hands every event the backend currently retains to fn, in order,
// without waiting for new ones. It returns the cursor live delivery should
// resume from and how many events were replayed.
func (c *Client) Replay(ctx context.Context, batch int, fn func(Event)) (uint64, int, error) {
	if batch <= 0 {
		batch = defaultBatch
	}
	var (
		since uint64
		count int
	)
	for {
		resp, err := c.FetchEvents(ctx, EventsRequest{Since: since, Limit: batch})
		if err != nil {
			return since, count, err
		}
		for _, evt := range resp.Events {
			fn(evt)
		}
		count += len(resp.Events)
		if len(resp.Events) == 0 || resp.Next <= since {
			return resp.Next, count, nil
		}
		since = resp.Next
	}
}

// Events starts a goroutine that long-polls the backend and forwards events
// until ctx ends or the connection is lost. Other poll failures are logged and
// retried.
func (c *Client) Events(ctx context.Context, opts PumpOptions) *Pump {
	if opts.Batch <= 0 {
		opts.Batch = defaultBatch
	}
	if opts.Wait <= 0 {
		opts.Wait = time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = time.Second
	}
	out := make(chan Event)
	p := &Pump{C: out, done: make(chan struct{}), next: opts.Since}

	go func() {
		defer close(p.done)
		defer close(out)
		since := opts.Since
		for {
			resp, err := c.FetchEvents(ctx, EventsRequest{
				Since:      since,
				Limit:      opts.Batch,
				WaitMillis: int(opts.Wait / time.Millisecond),
			})
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if IsUnavailable(err) {
					p.mu.Lock()
					p.err = err
					p.mu.Unlock()
					return
				}
				logging.WarnWithContext(c.logger, "event poll failed", "event_poll_failed",
					logging.Error(err),
					logging.Uint64("since", since),
					logging.String(logging.FieldImpact, "queue updates delayed"),
					logging.String(logging.FieldErrorHint, "check the backend log"))
				select {
				case <-ctx.Done():
					return
				case <-time.After(opts.Retry):
				}
				continue
			}
			for _, evt := range resp.Events {
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
			since = resp.Next
			p.mu.Lock()
			p.next = since
			p.mu.Unlock()
		}
	}()
	return p
}
