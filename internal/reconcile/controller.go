package reconcile

import (
	"log/slog"
	"sync"
	"time"

	"sendit/internal/lifecycle"
	"sendit/internal/logging"
	"sendit/internal/queue"
	"sendit/internal/throttle"
)

// Reasons a record is dropped without mutating the store.
const (
	DropStaleKey        = "stale_key"
	DropThrottled       = "throttled"
	DropAfterCompletion = "after_completion"
	DropUnknown         = "unknown"
)

// DefaultInboundDelay is the default spacing between applied inbound progress updates per item.
const DefaultInboundDelay = time.Second

// Recorder receives engine counters. The metrics package implements it.
type Recorder interface {
	RecordApplied(kind lifecycle.Kind, id queue.ID)
	RecordDropped(kind lifecycle.Kind, id queue.ID, reason string)
	RecordCommand(command string, err error)
	RecordNoticeDropped(kind NoticeKind)
}

type nopRecorder struct{}

func (nopRecorder) RecordApplied(lifecycle.Kind, queue.ID)         {}
func (nopRecorder) RecordDropped(lifecycle.Kind, queue.ID, string) {}
func (nopRecorder) RecordCommand(string, error)                    {}
func (nopRecorder) RecordNoticeDropped(NoticeKind)                 {}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logging.NewComponentLogger(logger, "reconcile")
	}
}

// WithProgressDelays sets the per-item progress spacing for each queue.
func WithProgressDelays(inbound, outbound time.Duration) Option {
	return func(c *Controller) {
		c.inboundDelay = inbound
		c.outboundDelay = outbound
	}
}

// WithClock overrides the time source for rate limiting and notices.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.metrics = r
		}
	}
}

// Controller reconciles lifecycle records into a queue.Store.
type Controller struct {
	store  *queue.Store
	cmd    Commander
	logger *slog.Logger

	inboundDelay  time.Duration
	outboundDelay time.Duration
	limiters      map[queue.ID]*throttle.Throttle
	sampler       *logging.ProgressSampler
	metrics       Recorder
	now           func() time.Time

	// previewMu serializes drag-preview updates; previewGen invalidates
	// validation results that finish after a newer drag gesture.
	previewMu  sync.Mutex
	previewGen uint64

	downloadMu sync.Mutex

	noticeMu   sync.Mutex
	noticeSubs map[*noticeSub]struct{}
}

// New constructs a Controller over store that sends commands through cmd.
func New(store *queue.Store, cmd Commander, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		cmd:           cmd,
		logger:        logging.NewComponentLogger(nil, "reconcile"),
		inboundDelay:  DefaultInboundDelay,
		outboundDelay: DefaultInboundDelay,
		sampler:       logging.NewProgressSampler(25),
		metrics:       nopRecorder{},
		now:           time.Now,
		noticeSubs:    make(map[*noticeSub]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	clock := throttle.WithClock(c.now)
	c.limiters = map[queue.ID]*throttle.Throttle{
		queue.Inbound:  throttle.New(c.inboundDelay, clock),
		queue.Outbound: throttle.New(c.outboundDelay, clock),
	}
	return c
}

// Store returns the store the Controller writes to.
func (c *Controller) Store() *queue.Store {
	return c.store
}

// HandleRecord applies one lifecycle record. Records for keys that are not
// queued are dropped, progress is rate-limited per item, and terminal records
// are always applied.
func (c *Controller) HandleRecord(rec lifecycle.Record) {
	switch r := rec.(type) {
	case lifecycle.Added:
		c.applyAdded(r)
	case lifecycle.Progress:
		c.applyProgress(r)
	case lifecycle.Completed:
		c.applyCompleted(r)
	case lifecycle.Error:
		c.applyTerminalRemoval(r.Target, lifecycle.KindError, r.Reason)
	case lifecycle.Aborted:
		c.applyTerminalRemoval(r.Target, lifecycle.KindAborted, r.Reason)
	case lifecycle.Removed:
		c.applyRemoved(r)
	case lifecycle.AllComplete:
		c.applyAllComplete()
	case lifecycle.Unknown:
		c.drop(rec, DropUnknown)
	}
}

func (c *Controller) applyAdded(r lifecycle.Added) {
	created := c.store.Insert(r.Queue, queue.Item{Key: r.Key, Size: r.Size, Icon: r.Icon, Path: r.Path})
	if created {
		c.limiters[r.Queue].Forget(r.Key)
		c.sampler.Forget(string(r.Queue) + "/" + r.Key)
		c.logger.Debug("transfer added",
			logging.Queue(string(r.Queue)),
			logging.ItemKey(r.Key),
			logging.Uint64("size_bytes", r.Size))
	}
	c.metrics.RecordApplied(lifecycle.KindAdded, r.Queue)
}

func (c *Controller) applyProgress(r lifecycle.Progress) {
	if !c.store.Has(r.Queue, r.Key) {
		c.drop(r, DropStaleKey)
		return
	}
	if !c.limiters[r.Queue].IsFree(r.Key) {
		c.metrics.RecordDropped(lifecycle.KindProgress, r.Queue, DropThrottled)
		return
	}
	if !c.store.PatchProgress(r.Queue, r.Key, r.Progress, r.Speed) {
		c.drop(r, DropStaleKey)
		return
	}
	if c.sampler.ShouldLog(string(r.Queue)+"/"+r.Key, r.Progress) {
		c.logger.Debug("transfer progress",
			logging.Queue(string(r.Queue)),
			logging.ItemKey(r.Key),
			logging.Float64("progress", r.Progress))
	}
	c.metrics.RecordApplied(lifecycle.KindProgress, r.Queue)
}

func (c *Controller) applyCompleted(r lifecycle.Completed) {
	before, ok := c.store.Get(r.Queue, r.Key)
	if !ok {
		c.drop(r, DropStaleKey)
		return
	}
	if r.Queue == queue.Inbound && r.Path != "" {
		c.store.SetPath(r.Queue, r.Key, r.Path)
	}
	c.store.PatchProgress(r.Queue, r.Key, 100, 0)
	c.forget(r.Target)
	c.metrics.RecordApplied(lifecycle.KindCompleted, r.Queue)
	if before.Done {
		return
	}
	path := before.Path
	if r.Path != "" {
		path = r.Path
	}
	c.logger.Info("transfer completed",
		logging.Queue(string(r.Queue)),
		logging.ItemKey(r.Key),
		logging.String("path", path))
	c.emit(Notice{Kind: NoticeCompleted, Queue: r.Queue, Key: r.Key, Path: path, Size: before.Size})
}

// applyTerminalRemoval handles error and aborted records. The first terminal
// record wins: an item that already completed is left alone.
func (c *Controller) applyTerminalRemoval(target lifecycle.Target, kind lifecycle.Kind, reason string) {
	item, ok := c.store.Get(target.Queue, target.Key)
	if !ok {
		c.drop(recordFor(target, kind), DropStaleKey)
		return
	}
	if item.Done {
		c.drop(recordFor(target, kind), DropAfterCompletion)
		return
	}
	c.store.Remove(target.Queue, target.Key)
	c.forget(target)
	c.metrics.RecordApplied(kind, target.Queue)

	notice := Notice{Queue: target.Queue, Key: target.Key, Message: reason, Path: item.Path, Size: item.Size}
	if kind == lifecycle.KindAborted {
		notice.Kind = NoticeAborted
		if notice.Message == "" {
			notice.Message = "Cancelled"
		}
		c.logger.Info("transfer aborted",
			logging.Queue(string(target.Queue)),
			logging.ItemKey(target.Key),
			logging.String("reason", notice.Message))
	} else {
		notice.Kind = NoticeError
		if notice.Message == "" {
			notice.Message = "transfer failed"
		}
		logging.WarnWithContext(c.logger, "transfer failed", "transfer_failed",
			logging.Queue(string(target.Queue)),
			logging.ItemKey(target.Key),
			logging.String("reason", notice.Message),
			logging.String(logging.FieldImpact, "item removed from queue"),
			logging.String(logging.FieldErrorHint, "retry the transfer; check the backend log for the cause"))
	}
	c.emit(notice)
}

func (c *Controller) applyRemoved(r lifecycle.Removed) {
	item, ok := c.store.Get(r.Queue, r.Key)
	if !ok || !c.store.Remove(r.Queue, r.Key) {
		c.drop(r, DropStaleKey)
		return
	}
	c.forget(r.Target)
	c.metrics.RecordApplied(lifecycle.KindRemoved, r.Queue)
	c.logger.Debug("transfer removed", logging.Queue(string(r.Queue)), logging.ItemKey(r.Key))
	c.emit(Notice{Kind: NoticeRemoved, Queue: r.Queue, Key: r.Key, Path: item.Path, Size: item.Size})
}

func (c *Controller) applyAllComplete() {
	wasDownloading := c.store.Downloading()
	c.store.SetDownloading(false)
	c.metrics.RecordApplied(lifecycle.KindAllComplete, queue.Inbound)
	if !wasDownloading {
		return
	}
	snap := c.store.Snapshot(queue.Inbound)
	c.logger.Info("all downloads finished", logging.Int("item_count", snap.Len()))
	c.emit(Notice{Kind: NoticeAllComplete, Queue: queue.Inbound, Size: uint64(snap.Len())})
}

func (c *Controller) forget(target lifecycle.Target) {
	c.limiters[target.Queue].Forget(target.Key)
	c.sampler.Forget(string(target.Queue) + "/" + target.Key)
}

func (c *Controller) drop(rec lifecycle.Record, reason string) {
	subject := rec.Subject()
	c.metrics.RecordDropped(rec.Kind(), subject.Queue, reason)
	attrs := []logging.Attr{
		logging.String("kind", string(rec.Kind())),
		logging.String("reason", reason),
	}
	if subject.Key != "" {
		attrs = append(attrs, logging.Queue(string(subject.Queue)), logging.ItemKey(subject.Key))
	}
	if u, ok := rec.(lifecycle.Unknown); ok {
		attrs = append(attrs, logging.Event(u.Name), logging.String("detail", u.Reason))
	}
	c.logger.Debug("record dropped", logging.Args(attrs...)...)
}

func recordFor(target lifecycle.Target, kind lifecycle.Kind) lifecycle.Record {
	if kind == lifecycle.KindAborted {
		return lifecycle.Aborted{Target: target}
	}
	return lifecycle.Error{Target: target}
}
