package queue

import (
	"context"
	"sync"
)

type itemQueue struct {
	order []string
	items map[string]*Item
}

func newItemQueue() *itemQueue {
	return &itemQueue{items: make(map[string]*Item)}
}

func (q *itemQueue) snapshot(id ID, version uint64) Snapshot {
	items := make([]Item, 0, len(q.order))
	for _, key := range q.order {
		items = append(items, *q.items[key])
	}
	return Snapshot{Queue: id, Version: version, Items: items}
}

func (q *itemQueue) remove(key string) bool {
	if _, ok := q.items[key]; !ok {
		return false
	}
	delete(q.items, key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Store is the authoritative state of both transfer queues. It is safe for
// concurrent use.
type Store struct {
	mu          sync.Mutex
	version     uint64
	queues      map[ID]*itemQueue
	preview     []PreviewItem
	downloading bool
	watchers    map[*watcher]struct{}
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		queues: map[ID]*itemQueue{
			Outbound: newItemQueue(),
			Inbound:  newItemQueue(),
		},
		watchers: make(map[*watcher]struct{}),
	}
}

func (s *Store) queue(id ID) *itemQueue {
	if q, ok := s.queues[id]; ok {
		return q
	}
	return nil
}

// Insert adds item to queue id, or refreshes its metadata when the key
// already exists. Progress, speed, and position of an existing item are kept.
// Inserting into the outbound queue drops the matching preview entry. It
// reports whether a new item was created.
func (s *Store) Insert(id ID, item Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(id)
	if q == nil || item.Key == "" {
		return false
	}
	changed := false
	if id == Outbound {
		changed = s.dropPreviewLocked(item.Key)
	}
	if existing, ok := q.items[item.Key]; ok {
		if existing.Size != item.Size || existing.Icon != item.Icon || (item.Path != "" && existing.Path != item.Path) {
			existing.Size = item.Size
			existing.Icon = item.Icon
			if item.Path != "" {
				existing.Path = item.Path
			}
			changed = true
		}
		if changed {
			s.commitLocked()
		}
		return false
	}
	fresh := Item{
		Key:  item.Key,
		Size: item.Size,
		Icon: item.Icon,
		Path: item.Path,
	}
	q.items[item.Key] = &fresh
	q.order = append(q.order, item.Key)
	s.commitLocked()
	return true
}

// PatchProgress raises the progress of key and records speed. Progress never
// decreases; reaching 100 marks the item done and zeroes its speed. It
// reports false when the key is absent.
func (s *Store) PatchProgress(id ID, key string, progress, speed float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(id)
	if q == nil {
		return false
	}
	item, ok := q.items[key]
	if !ok {
		return false
	}
	next := ClampProgress(progress)
	if next < item.Progress {
		next = item.Progress
	}
	nextSpeed := clampSpeed(speed)
	done := next == 100
	if done {
		nextSpeed = 0
	}
	if next == item.Progress && nextSpeed == item.Speed && done == item.Done {
		return true
	}
	item.Progress = next
	item.Speed = nextSpeed
	item.Done = done
	if done {
		item.Cancelling = false
	}
	s.commitLocked()
	return true
}

// SetPath records the final location of key.
func (s *Store) SetPath(id ID, key, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(id)
	if q == nil {
		return false
	}
	item, ok := q.items[key]
	if !ok {
		return false
	}
	if item.Path != path {
		item.Path = path
		s.commitLocked()
	}
	return true
}

// SetCancelling marks or unmarks key as awaiting cancel confirmation.
func (s *Store) SetCancelling(id ID, key string, cancelling bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(id)
	if q == nil {
		return false
	}
	item, ok := q.items[key]
	if !ok {
		return false
	}
	if item.Cancelling != cancelling {
		item.Cancelling = cancelling
		s.commitLocked()
	}
	return true
}

// Remove deletes key from queue id. Removing an absent key is a no-op.
func (s *Store) Remove(id ID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(id)
	if q == nil || !q.remove(key) {
		return false
	}
	s.commitLocked()
	return true
}

// Clear empties queue id.
func (s *Store) Clear(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(id)
	if q == nil || len(q.order) == 0 {
		return
	}
	s.queues[id] = newItemQueue()
	s.commitLocked()
}

// Get returns a copy of key's item.
func (s *Store) Get(id ID, key string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(id)
	if q == nil {
		return Item{}, false
	}
	item, ok := q.items[key]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Has reports whether key is present in queue id.
func (s *Store) Has(id ID, key string) bool {
	_, ok := s.Get(id, key)
	return ok
}

// SetPreview replaces the drag-preview set.
func (s *Store) SetPreview(items []PreviewItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(items) == 0 && len(s.preview) == 0 {
		return
	}
	s.preview = append([]PreviewItem(nil), items...)
	s.commitLocked()
}

// ClearPreview empties the drag-preview set.
func (s *Store) ClearPreview() {
	s.SetPreview(nil)
}

// Preview returns a copy of the drag-preview set.
func (s *Store) Preview() []PreviewItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PreviewItem(nil), s.preview...)
}

func (s *Store) dropPreviewLocked(key string) bool {
	for i, p := range s.preview {
		if p.Key == key {
			next := make([]PreviewItem, 0, len(s.preview)-1)
			next = append(next, s.preview[:i]...)
			s.preview = append(next, s.preview[i+1:]...)
			return true
		}
	}
	return false
}

// SetDownloading sets the "is downloading" flag.
func (s *Store) SetDownloading(downloading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloading == downloading {
		return
	}
	s.downloading = downloading
	s.commitLocked()
}

// Downloading reports the "is downloading" flag.
func (s *Store) Downloading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloading
}

// Snapshot returns an immutable copy of queue id.
func (s *Store) Snapshot(id ID) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(id)
	if q == nil {
		return Snapshot{Queue: id, Version: s.version}
	}
	return q.snapshot(id, s.version)
}

// State returns an immutable copy of everything the Store holds.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{
		Version:     s.version,
		Outbound:    s.queues[Outbound].snapshot(Outbound, s.version),
		Inbound:     s.queues[Inbound].snapshot(Inbound, s.version),
		Preview:     append([]PreviewItem(nil), s.preview...),
		Downloading: s.downloading,
	}
}

func (s *Store) commitLocked() {
	s.version++
	if len(s.watchers) == 0 {
		return
	}
	state := s.stateLocked()
	for w := range s.watchers {
		w.offer(state)
	}
}

// Watch delivers the latest State after every mutation, starting with the
// current one. A slow reader only ever sees the newest pending State. The
// channel closes when ctx ends.
func (s *Store) Watch(ctx context.Context) <-chan State {
	w := &watcher{ch: make(chan State, 1)}
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	w.offer(s.stateLocked())
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		delete(s.watchers, w)
		close(w.ch)
		s.mu.Unlock()
	})
	return w.ch
}

type watcher struct {
	ch chan State
}

// offer replaces any undelivered State with state. Callers hold Store.mu.
func (w *watcher) offer(state State) {
	for {
		select {
		case w.ch <- state:
			return
		default:
		}
		select {
		case <-w.ch:
		default:
		}
	}
}
