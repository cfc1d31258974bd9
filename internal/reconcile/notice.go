package reconcile

import (
	"context"
	"time"

	"sendit/internal/queue"
)

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	NoticeCompleted     NoticeKind = "completed"
	NoticeError         NoticeKind = "error"
	NoticeAborted       NoticeKind = "aborted"
	NoticeRemoved       NoticeKind = "removed"
	NoticeAllComplete   NoticeKind = "all_complete"
	NoticeTicket        NoticeKind = "ticket"
	NoticeCommandFailed NoticeKind = "command_failed"
)

// Notice is a user-facing outcome: a transfer ended, or a command failed.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Queue   queue.ID   `json:"queue,omitempty"`
	Key     string     `json:"key,omitempty"`
	Message string     `json:"message,omitempty"`
	Command string     `json:"command,omitempty"`
	Path    string     `json:"path,omitempty"`
	Size    uint64     `json:"size,omitempty"`
	At      time.Time  `json:"at"`
}

const noticeBuffer = 64

type noticeSub struct {
	ch chan Notice
}

// Notices returns a channel of notices emitted after the call. Notices are
// dropped for a reader whose buffer is full. The channel closes when ctx ends.
func (c *Controller) Notices(ctx context.Context) <-chan Notice {
	sub := &noticeSub{ch: make(chan Notice, noticeBuffer)}
	c.noticeMu.Lock()
	c.noticeSubs[sub] = struct{}{}
	c.noticeMu.Unlock()

	context.AfterFunc(ctx, func() {
		c.noticeMu.Lock()
		delete(c.noticeSubs, sub)
		close(sub.ch)
		c.noticeMu.Unlock()
	})
	return sub.ch
}

func (c *Controller) emit(n Notice) {
	if n.At.IsZero() {
		n.At = c.now()
	}
	c.noticeMu.Lock()
	defer c.noticeMu.Unlock()
	for sub := range c.noticeSubs {
		select {
		case sub.ch <- n:
		default:
			c.metrics.RecordNoticeDropped(n.Kind)
		}
	}
}
