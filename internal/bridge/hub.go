package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultHubCapacity bounds the number of retained events.
const DefaultHubCapacity = 1024

// Hub stores recent lifecycle events and wakes long-poll waiters when new
// events arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
	now      func() time.Time
}

// NewHub constructs a bounded in-memory event buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultHubCapacity
	}
	h := &Hub{capacity: capacity, now: time.Now}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish encodes payload as JSON and appends the event. A nil payload is
// sent without one.
func (h *Hub) Publish(name string, payload any) (uint64, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encode %s payload: %w", name, err)
		}
		raw = data
	}
	return h.PublishRaw(name, raw), nil
}

// PublishRaw appends an event with an already-encoded payload and returns its
// sequence number.
func (h *Hub) PublishRaw(name string, payload json.RawMessage) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSeq++
	evt := Event{Seq: h.nextSeq, Name: name, Payload: payload, At: h.now().UTC()}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	h.cond.Broadcast()
	return evt.Seq
}

// Fetch returns events with sequence greater than since, up to limit. When
// wait is true it blocks until at least one event is available or ctx ends.
// A cursor ahead of the hub means the backend restarted; it is rewound to 0.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	stop := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		h.cond.Broadcast()
		h.mu.Unlock()
	})
	defer stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if since > h.nextSeq {
		since = 0
	}
	for {
		events, next := h.snapshotLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
	}
}

// Last reports the most recently assigned sequence number.
func (h *Hub) Last() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	start := len(h.buffer)
	for i, evt := range h.buffer {
		if evt.Seq > since {
			start = i
			break
		}
	}
	if start == len(h.buffer) {
		return nil, h.nextSeq
	}
	end := min(start+limit, len(h.buffer))
	out := make([]Event, end-start)
	copy(out, h.buffer[start:end])
	return out, out[len(out)-1].Seq
}
