// Package sink holds frame consumers for the capture loop.
package sink

import (
	"sync"
	"time"
)

// Consumer receives frames. Consume must not keep the slice.
type Consumer interface {
	Consume(frame []byte)
}

// Fanout forwards each frame to every consumer in order.
type Fanout []Consumer

// Consume implements Consumer.
func (f Fanout) Consume(frame []byte) {
	for _, c := range f {
		c.Consume(frame)
	}
}

// Latest keeps a copy of the most recent frame.
type Latest struct {
	mu    sync.RWMutex
	frame []byte
	at    time.Time
	count uint64
}

// NewLatest creates an empty Latest.
func NewLatest() *Latest {
	return &Latest{}
}

// Consume implements Consumer.
func (l *Latest) Consume(frame []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = append(l.frame[:0], frame...)
	l.at = time.Now()
	l.count++
}

// Snapshot returns a copy of the last frame, when it arrived and its sequence number.
// ok is false until the first frame.
func (l *Latest) Snapshot() (frame []byte, at time.Time, seq uint64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.count == 0 {
		return nil, time.Time{}, 0, false
	}
	return append([]byte(nil), l.frame...), l.at, l.count, true
}
