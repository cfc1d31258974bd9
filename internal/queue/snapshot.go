package queue

// Snapshot is an immutable copy of one queue.
type Snapshot struct {
	Queue   ID     `json:"queue"`
	Version uint64 `json:"version"`
	Items   []Item `json:"items"`
}

// Len returns the number of items.
func (s Snapshot) Len() int {
	return len(s.Items)
}

// Get returns the item with key.
func (s Snapshot) Get(key string) (Item, bool) {
	for _, item := range s.Items {
		if item.Key == key {
			return item, true
		}
	}
	return Item{}, false
}

// Keys returns item keys in queue order.
func (s Snapshot) Keys() []string {
	keys := make([]string, len(s.Items))
	for i, item := range s.Items {
		keys[i] = item.Key
	}
	return keys
}

// Active counts items that have not completed.
func (s Snapshot) Active() int {
	count := 0
	for _, item := range s.Items {
		if !item.Done {
			count++
		}
	}
	return count
}

// AllDone reports whether the queue is non-empty and every item completed.
func (s Snapshot) AllDone() bool {
	return len(s.Items) > 0 && s.Active() == 0
}

// State is an immutable view of everything the Store holds.
type State struct {
	Version     uint64        `json:"version"`
	Outbound    Snapshot      `json:"outbound"`
	Inbound     Snapshot      `json:"inbound"`
	Preview     []PreviewItem `json:"preview"`
	Downloading bool          `json:"downloading"`
}

// Queue returns the snapshot for id.
func (s State) Queue(id ID) Snapshot {
	if id == Inbound {
		return s.Inbound
	}
	return s.Outbound
}
