package queue

import (
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ID identifies one of the two transfer queues.
type ID string

const (
	// Outbound holds local files offered to a peer.
	Outbound ID = "outbound"
	// Inbound holds files being received from a peer.
	Inbound ID = "inbound"
)

// Valid reports whether id names a known queue.
func (id ID) Valid() bool {
	return id == Outbound || id == Inbound
}

// Item is one transfer in a queue.
type Item struct {
	Key        string  `json:"key"`
	Size       uint64  `json:"size"`
	Icon       string  `json:"icon,omitempty"`
	Progress   float64 `json:"progress"`
	Speed      float64 `json:"speed"`
	Done       bool    `json:"done"`
	Path       string  `json:"path,omitempty"`
	Cancelling bool    `json:"cancelling,omitempty"`
}

// BytesPerSecond converts the backend speed estimate (bytes per microsecond).
func (i Item) BytesPerSecond() float64 {
	return i.Speed * 1e6
}

// TransferredBytes estimates how much of the item has moved so far.
func (i Item) TransferredBytes() uint64 {
	if i.Done {
		return i.Size
	}
	return uint64(float64(i.Size) * i.Progress / 100)
}

// PreviewItem is a provisional outbound candidate shown while files are
// dragged over the drop zone. It never carries progress.
type PreviewItem struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Path string `json:"path"`
	Size uint64 `json:"size"`
}

// DeriveKey returns the queue key for a filesystem path: the NFC-normalized
// base name. The backend identifies transfers by file name and rejects
// duplicate names, so the base name is unique within a queue.
func DeriveKey(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	base := filepath.Base(filepath.Clean(trimmed))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return norm.NFC.String(base)
}

// ClampProgress limits a percentage to [0,100]. NaN becomes 0.
func ClampProgress(value float64) float64 {
	switch {
	case math.IsNaN(value), value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}

func clampSpeed(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}
