package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/camkeep/internal/devices"
)

// Prober reports device presence.
type Prober interface {
	Probe() devices.State
}

// Attempt describes one finished open attempt.
type Attempt struct {
	Number      int // one based
	MaxAttempts int
	Delay       time.Duration // wait that preceded the attempt
	Probed      bool
	Present     bool
	Device      string
	Err         error
}

// Opener acquires camera sessions.
type Opener struct {
	driver    Driver
	probe     Prober
	sleep     SleepFunc
	resolve   func(string) (string, error)
	onAttempt func(Attempt)
	warmup    time.Duration
	logger    *slog.Logger
}

// OpenerOption configures an Opener.
type OpenerOption func(*Opener)

// WithProbe sets the probe consulted before retries.
func WithProbe(p Prober) OpenerOption {
	return func(o *Opener) {
		o.probe = p
	}
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep SleepFunc) OpenerOption {
	return func(o *Opener) {
		o.sleep = sleep
	}
}

// WithResolver replaces stable id resolution.
func WithResolver(resolve func(string) (string, error)) OpenerOption {
	return func(o *Opener) {
		o.resolve = resolve
	}
}

// WithAttemptHook registers a callback invoked after every retry attempt.
func WithAttemptHook(fn func(Attempt)) OpenerOption {
	return func(o *Opener) {
		o.onAttempt = fn
	}
}

// WithWarmup makes every open read one frame within timeout before it counts
// as a success. A device that opens but stays silent fails the attempt with
// ErrDriverRejected.
func WithWarmup(timeout time.Duration) OpenerOption {
	return func(o *Opener) {
		o.warmup = timeout
	}
}

// NewOpener creates an opener over driver.
func NewOpener(driver Driver, logger *slog.Logger, opts ...OpenerOption) *Opener {
	o := &Opener{
		driver:  driver,
		sleep:   Sleep,
		resolve: devices.ResolveDevicePath,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OpenOnce makes a single open attempt. Failures are *OpenError.
func (o *Opener) OpenOnce(ctx context.Context, cfg Config) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	device := cfg.DevicePath()
	path, err := o.resolve(device)
	if err != nil {
		return nil, classifyOpenError(device, err)
	}

	h, err := o.driver.Open(path, cfg)
	if err != nil {
		oe := classifyOpenError(path, err)
		o.logger.Debug("Open failed", "device", path, "code", oe.Code, "error", err)
		return nil, oe
	}

	if o.warmup > 0 {
		if err := warmUp(h, o.warmup); err != nil {
			if closeErr := h.Close(); closeErr != nil {
				o.logger.Warn("Error closing silent device", "device", path, "error", closeErr)
			}
			o.logger.Debug("Device opened but delivered no frame", "device", path, "timeout", o.warmup, "error", err)
			return nil, NewOpenError(ErrDriverRejected, path, "no frame from", err)
		}
	}

	s := newSession(path, cfg, h)
	o.logger.Info("Camera opened",
		"device", path,
		"session", s.ID,
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.FPS,
		"format", cfg.PixelFormat)
	return s, nil
}

// OpenWithRetry calls OpenOnce up to policy.MaxAttempts times, sleeping
// policy.Delay(i) before attempt i. It returns the first session opened or the
// last open error. Cancellation returns the context error.
func (o *Opener) OpenWithRetry(ctx context.Context, cfg Config, policy RetryPolicy) (*Session, error) {
	attempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for i := 0; i < attempts; i++ {
		delay := policy.Delay(i)
		o.logger.Info("Waiting before open attempt", "attempt", i+1, "max_attempts", attempts, "delay", delay)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}

		attempt := Attempt{
			Number:      i + 1,
			MaxAttempts: attempts,
			Delay:       delay,
			Device:      cfg.DevicePath(),
		}

		if i > 0 && o.probe != nil {
			attempt.Probed = true
			attempt.Present = o.probe.Probe() == devices.StatePresent
			if attempt.Present {
				o.logger.Info("Video device present before retry", "attempt", attempt.Number)
			} else {
				o.logger.Warn("No video device present before retry", "attempt", attempt.Number)
			}
		}

		s, err := o.OpenOnce(ctx, cfg)
		if ctx.Err() != nil {
			s.Release()
			return nil, ctx.Err()
		}
		attempt.Err = err
		o.report(attempt)
		if err == nil {
			return s, nil
		}

		o.logger.Warn("Open attempt failed",
			"attempt", attempt.Number,
			"max_attempts", attempts,
			"code", CodeOf(err),
			"error", err)
		lastErr = err
	}

	return nil, &RetryError{Attempts: attempts, Err: lastErr}
}

// RetryError is returned by OpenWithRetry once every attempt has failed.
type RetryError struct {
	Attempts int
	Err      error // last attempt's error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("camera not opened after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// AttemptsOf returns the number of open attempts recorded in err, or 0.
func AttemptsOf(err error) int {
	var re *RetryError
	if errors.As(err, &re) {
		return re.Attempts
	}
	return 0
}

func warmUp(h Handle, timeout time.Duration) error {
	frame, err := h.ReadFrame(timeout)
	if err != nil {
		return err
	}
	if len(frame) == 0 {
		return errEmptyFrame
	}
	return nil
}

func (o *Opener) report(a Attempt) {
	if o.onAttempt != nil {
		o.onAttempt(a)
	}
}
