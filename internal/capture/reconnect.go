package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/camkeep/internal/camera"
)

// SessionOpener makes a single open attempt.
type SessionOpener interface {
	OpenOnce(ctx context.Context, cfg camera.Config) (*camera.Session, error)
}

// Reconnector swaps a broken session for a fresh one.
type Reconnector struct {
	opener SessionOpener
	settle time.Duration
	sleep  camera.SleepFunc
	logger *slog.Logger
}

// NewReconnector creates a reconnector that waits settle between release and reopen.
// A nil sleep uses camera.Sleep.
func NewReconnector(opener SessionOpener, settle time.Duration, sleep camera.SleepFunc, logger *slog.Logger) *Reconnector {
	if sleep == nil {
		sleep = camera.Sleep
	}
	return &Reconnector{
		opener: opener,
		settle: settle,
		sleep:  sleep,
		logger: logger,
	}
}

// Reconnect releases old, waits for the device to settle and makes exactly one
// open attempt. old may be nil or already released. Retrying is the caller's job.
func (r *Reconnector) Reconnect(ctx context.Context, old *camera.Session, cfg camera.Config) (*camera.Session, error) {
	if err := old.Release(); err != nil {
		r.logger.Warn("Error releasing camera session", "error", err)
	}

	r.logger.Info("Waiting for device to settle", "delay", r.settle)
	if err := r.sleep(ctx, r.settle); err != nil {
		return nil, err
	}

	s, err := r.opener.OpenOnce(ctx, cfg)
	if err != nil {
		r.logger.Error("Reconnect failed", "device", cfg.DevicePath(), "code", camera.CodeOf(err), "error", err)
		return nil, err
	}
	r.logger.Info("Reconnected", "device", s.Device, "session", s.ID)
	return s, nil
}
