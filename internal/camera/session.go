package camera

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSessionClosed is returned when reading from a released session.
var ErrSessionClosed = errors.New("camera session closed")

// Handle is an open, streaming device.
type Handle interface {
	// ReadFrame waits up to timeout for the next frame.
	ReadFrame(timeout time.Duration) ([]byte, error)
	Close() error
}

// Driver opens device handles. The Linux implementation talks V4L2.
type Driver interface {
	Open(path string, cfg Config) (Handle, error)
}

// Session owns exactly one device handle.
type Session struct {
	ID       string
	Device   string
	Config   Config
	OpenedAt time.Time

	handle Handle
}

func newSession(device string, cfg Config, h Handle) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Device:   device,
		Config:   cfg,
		OpenedAt: time.Now(),
		handle:   h,
	}
}

// Open reports whether the session still holds its handle.
func (s *Session) Open() bool {
	return s != nil && s.handle != nil
}

// ReadFrame reads one frame. An empty frame counts as a failed read.
func (s *Session) ReadFrame(timeout time.Duration) ([]byte, error) {
	if !s.Open() {
		return nil, ErrSessionClosed
	}
	frame, err := s.handle.ReadFrame(timeout)
	if err != nil {
		return nil, err
	}
	if len(frame) == 0 {
		return nil, errEmptyFrame
	}
	return frame, nil
}

// Release closes the handle. Safe to call on a nil or already released session.
func (s *Session) Release() error {
	if !s.Open() {
		return nil
	}
	h := s.handle
	s.handle = nil
	return h.Close()
}

var errEmptyFrame = errors.New("empty frame")
