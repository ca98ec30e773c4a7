package logging

import (
	"sync"
	"time"
)

const defaultHistorySize = 500

// Entry is one log record kept in the history.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EntryHook receives every entry written to the history.
type EntryHook func(Entry)

// History keeps the most recent log entries in a fixed-size ring.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
	hook    EntryHook
}

// NewHistory creates a history holding up to size entries.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{entries: make([]Entry, size)}
}

var history = NewHistory(defaultHistorySize)

// GetHistory returns the process-wide log history.
func GetHistory() *History {
	return history
}

// SetHook registers fn for new entries; nil removes it.
func (h *History) SetHook(fn EntryHook) {
	h.mu.Lock()
	h.hook = fn
	h.mu.Unlock()
}

// Write stores e, overwriting the oldest entry when full.
func (h *History) Write(e Entry) {
	h.mu.Lock()
	h.entries[h.head] = e
	h.head = (h.head + 1) % len(h.entries)
	if h.count < len(h.entries) {
		h.count++
	}
	hook := h.hook
	h.mu.Unlock()

	if hook != nil {
		hook(e)
	}
}

// Entries returns stored entries oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Entry, 0, h.count)
	start := (h.head - h.count + len(h.entries)) % len(h.entries)
	for i := 0; i < h.count; i++ {
		out = append(out, h.entries[(start+i)%len(h.entries)])
	}
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
