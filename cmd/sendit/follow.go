package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sendit/internal/queue"
	"sendit/internal/reconcile"
	"sendit/internal/throttle"
)

const (
	redrawInterval = 200 * time.Millisecond
	recentNotices  = 5
)

// queueView renders one queue while it changes. On a terminal it redraws in
// place, at most once per redrawInterval; otherwise it prints notices as
// they arrive and the table once at the end.
type queueView struct {
	out      io.Writer
	colorize bool
	live     bool
	id       queue.ID
	gate     *throttle.Throttle

	state   queue.State
	dirty   bool
	notices []string
}

func newQueueView(out io.Writer, id queue.ID, colorize bool) *queueView {
	return &queueView{
		out:      out,
		colorize: colorize,
		live:     colorize,
		id:       id,
		gate:     throttle.New(redrawInterval),
	}
}

func (v *queueView) update(state queue.State) {
	v.state = state
	v.dirty = true
	if v.live && v.gate.IsFreeGlobal() {
		v.redraw()
	}
}

func (v *queueView) notice(n reconcile.Notice) {
	line := renderNotice(n, v.colorize)
	if line == "" {
		return
	}
	if !v.live {
		fmt.Fprintln(v.out, line)
		return
	}
	v.notices = append(v.notices, line)
	if len(v.notices) > recentNotices {
		v.notices = v.notices[len(v.notices)-recentNotices:]
	}
	v.dirty = true
}

// tick redraws a live view if something changed since the last draw.
func (v *queueView) tick() {
	if v.live && v.dirty {
		v.redraw()
	}
}

func (v *queueView) redraw() {
	v.dirty = false
	var b strings.Builder
	b.WriteString(ansiClear)
	b.WriteString(renderQueue(v.state.Queue(v.id), v.colorize))
	for _, line := range v.notices {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprint(v.out, b.String())
}

// finish draws the final table.
func (v *queueView) finish() {
	if v.live {
		v.redraw()
		return
	}
	fmt.Fprint(v.out, "\n"+renderQueue(v.state.Queue(v.id), v.colorize))
}

type followOptions struct {
	queue    queue.ID
	finished func(queue.State) bool
	// pending, when set, must deliver nil before finished is consulted.
	pending <-chan error
	notices <-chan reconcile.Notice
	// interrupt runs when the command context ends first.
	interrupt func(view *queueView) error
}

// follow renders opts.queue until finished reports true, the command is
// interrupted, or the backend goes away.
func (s *liveSession) follow(ctx context.Context, opts followOptions) error {
	notices := opts.notices
	if notices == nil {
		notices = s.Controller().Notices(s.ctx)
	}
	watch := s.Store().Watch(s.ctx)
	view := newQueueView(s.out, opts.queue, s.colorize)
	ticker := time.NewTicker(redrawInterval)
	defer ticker.Stop()

	pending := opts.pending
	settled := pending == nil
	done := func(st queue.State) bool {
		return settled && opts.finished(st)
	}

	view.update(s.Store().State())
	if done(view.state) {
		view.finish()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			if opts.interrupt != nil {
				return opts.interrupt(view)
			}
			view.finish()
			return ctx.Err()
		case <-s.ctx.Done():
			view.finish()
			return nil
		case err := <-pending:
			if err != nil {
				view.finish()
				return err
			}
			pending = nil
			settled = true
			view.update(s.Store().State())
			if done(view.state) {
				view.finish()
				return nil
			}
		case st, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
			view.update(st)
			if done(st) {
				view.finish()
				return nil
			}
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			view.notice(n)
		case <-ticker.C:
			view.tick()
		}
	}
}
