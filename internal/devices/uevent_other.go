//go:build !linux

package devices

import (
	"context"
	"errors"
	"log/slog"
)

// UEventWatcher is unavailable outside Linux.
type UEventWatcher struct{}

// NewUEventWatcher always fails on this platform.
func NewUEventWatcher(_ *slog.Logger) (*UEventWatcher, error) {
	return nil, errors.New("uevent monitoring requires linux")
}

// Wake returns nil, which never fires.
func (w *UEventWatcher) Wake() <-chan struct{} { return nil }

// Run blocks until ctx is done.
func (w *UEventWatcher) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
