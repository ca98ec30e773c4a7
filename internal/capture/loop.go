// Package capture runs the camera session state machine.
//
// A Loop waits for a device, opens it with retries, streams frames into a sink
// and reopens the device once whenever the health monitor trips. All waiting
// happens on the goroutine that called Run.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camkeep/internal/camera"
	"github.com/smazurov/camkeep/internal/events"
	"github.com/smazurov/camkeep/internal/health"
)

// Loop defaults.
const (
	DefaultAwaitTimeout  = 30 * time.Second
	DefaultAwaitInterval = 2 * time.Second
	DefaultFailureDelay  = 500 * time.Millisecond
	DefaultReadTimeout   = 2 * time.Second
)

// DeviceWaiter blocks until a device is present or the timeout elapses.
type DeviceWaiter interface {
	AwaitPresent(ctx context.Context, timeout, interval time.Duration) bool
}

// Opener opens camera sessions.
type Opener interface {
	SessionOpener
	OpenWithRetry(ctx context.Context, cfg camera.Config, policy camera.RetryPolicy) (*camera.Session, error)
}

// FrameSink receives frames in capture order. Consume is called synchronously
// and must not keep the slice after returning.
type FrameSink interface {
	Consume(frame []byte)
}

// Options wires a Loop.
type Options struct {
	Probe       DeviceWaiter
	Opener      Opener
	Reconnector *Reconnector // built from Opener and Policy.SettleDelay when nil
	Monitor     *health.Monitor
	Sink        FrameSink

	Camera camera.Config
	Policy camera.RetryPolicy

	AwaitTimeout  time.Duration
	AwaitInterval time.Duration
	FailureDelay  time.Duration
	ReadTimeout   time.Duration
	MaxFrames     uint64 // 0 streams until cancelled or fatal

	Sleep  camera.SleepFunc
	Bus    *events.Bus
	Logger *slog.Logger
}

// Loop is the capture state machine. Run may be called once.
type Loop struct {
	opts Options

	session *camera.Session
	signal  health.Signal

	mu     sync.RWMutex
	status Status
}

// New creates a loop, filling unset options with defaults.
func New(opts Options) *Loop {
	if opts.AwaitTimeout <= 0 {
		opts.AwaitTimeout = DefaultAwaitTimeout
	}
	if opts.AwaitInterval <= 0 {
		opts.AwaitInterval = DefaultAwaitInterval
	}
	if opts.FailureDelay <= 0 {
		opts.FailureDelay = DefaultFailureDelay
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.Sleep == nil {
		opts.Sleep = camera.Sleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Monitor == nil {
		opts.Monitor = health.NewMonitor(health.DefaultThreshold)
	}
	if opts.Reconnector == nil {
		opts.Reconnector = NewReconnector(opts.Opener, opts.Policy.SettleDelay, opts.Sleep, opts.Logger)
	}

	return &Loop{
		opts:   opts,
		status: Status{State: StateInitializing, Since: time.Now()},
	}
}

// Status returns a snapshot of the loop. Safe for concurrent use.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := l.status
	st.Failures = l.opts.Monitor.Failures()
	return st
}

// Run drives the state machine until it terminates.
func (l *Loop) Run(ctx context.Context) Outcome {
	next := StateAwaitingDevice
	for {
		if err := ctx.Err(); err != nil {
			return l.terminate(Outcome{Kind: Cancelled, Err: err})
		}

		l.enter(next, "")

		var out *Outcome
		switch next {
		case StateAwaitingDevice:
			next = l.awaitDevice(ctx)
		case StateOpening:
			next, out = l.open(ctx)
		case StateStreaming:
			next, out = l.stream(ctx)
		case StateReconnecting:
			next, out = l.reconnect(ctx)
		default:
			out = &Outcome{Kind: Fatal, Err: fmt.Errorf("unexpected state %s", next)}
		}

		if out != nil {
			return l.terminate(*out)
		}
	}
}

func (l *Loop) awaitDevice(ctx context.Context) State {
	if !l.opts.Probe.AwaitPresent(ctx, l.opts.AwaitTimeout, l.opts.AwaitInterval) && ctx.Err() == nil {
		// Some drivers enumerate late; opening is still worth trying.
		l.opts.Logger.Warn("No video device appeared, trying to open anyway", "timeout", l.opts.AwaitTimeout)
	}
	return StateOpening
}

func (l *Loop) open(ctx context.Context) (State, *Outcome) {
	s, err := l.opts.Opener.OpenWithRetry(ctx, l.opts.Camera, l.opts.Policy)
	if ctx.Err() != nil {
		s.Release()
		return StateTerminated, &Outcome{Kind: Cancelled, Err: ctx.Err()}
	}
	if err != nil {
		l.opts.Logger.Error("Camera could not be opened",
			"device", l.opts.Camera.DevicePath(),
			"code", camera.CodeOf(err),
			"attempts", camera.AttemptsOf(err),
			"error", err)
		return StateTerminated, &Outcome{Kind: Fatal, Err: err}
	}
	l.setSession(s)
	return StateStreaming, nil
}

func (l *Loop) stream(ctx context.Context) (State, *Outcome) {
	for {
		if err := ctx.Err(); err != nil {
			return StateTerminated, &Outcome{Kind: Cancelled, Err: err}
		}

		frame, err := l.session.ReadFrame(l.opts.ReadTimeout)
		ok := err == nil
		if ok {
			l.forward(frame)
		} else {
			l.opts.Logger.Debug("Frame read failed", "session", l.session.ID, "error", err)
		}

		sig := l.opts.Monitor.Observe(ok)
		l.reportHealth(sig, err)

		if sig == health.Tripped {
			l.opts.Logger.Warn("Consecutive read failures reached threshold",
				"threshold", l.opts.Monitor.Threshold(),
				"session", l.session.ID)
			return StateReconnecting, nil
		}

		if !ok {
			if err := l.opts.Sleep(ctx, l.opts.FailureDelay); err != nil {
				return StateTerminated, &Outcome{Kind: Cancelled, Err: err}
			}
			continue
		}

		if l.opts.MaxFrames > 0 && l.Status().Frames >= l.opts.MaxFrames {
			l.opts.Logger.Info("Frame limit reached", "frames", l.opts.MaxFrames)
			return StateTerminated, &Outcome{Kind: Success}
		}
	}
}

func (l *Loop) reconnect(ctx context.Context) (State, *Outcome) {
	old := l.session
	l.setSession(nil)

	s, err := l.opts.Reconnector.Reconnect(ctx, old, l.opts.Camera)
	if ctx.Err() != nil {
		s.Release()
		return StateTerminated, &Outcome{Kind: Cancelled, Err: ctx.Err()}
	}

	ev := events.ReconnectEvent{
		DevicePath: l.opts.Camera.DevicePath(),
		Success:    err == nil,
		Timestamp:  time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	l.opts.Bus.Publish(ev)

	if err != nil {
		l.opts.Logger.Error("Giving up after failed reconnect",
			"device", l.opts.Camera.DevicePath(),
			"code", camera.CodeOf(err),
			"attempts", 1,
			"error", err)
		return StateTerminated, &Outcome{Kind: Fatal, Err: fmt.Errorf("%w: %w", ErrReconnectFailure, err)}
	}

	l.mu.Lock()
	l.status.Reconnects++
	l.mu.Unlock()
	l.setSession(s)
	return StateStreaming, nil
}

func (l *Loop) forward(frame []byte) {
	l.opts.Sink.Consume(frame)

	l.mu.Lock()
	l.status.Frames++
	seq := l.status.Frames
	l.mu.Unlock()

	l.opts.Bus.Publish(events.FrameCapturedEvent{
		SessionID: l.session.ID,
		Sequence:  seq,
		Bytes:     len(frame),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// reportHealth publishes every non-healthy observation and the return to
// healthy. Only signal changes are logged at info.
func (l *Loop) reportHealth(sig health.Signal, readErr error) {
	changed := sig != l.signal || sig == health.Tripped
	if !changed && sig == health.Healthy {
		return
	}
	l.signal = sig

	failures := l.opts.Monitor.Failures()
	if sig == health.Tripped {
		failures = l.opts.Monitor.Threshold()
	}

	if changed {
		l.opts.Logger.Info("Health signal changed", "signal", sig, "failures", failures)
	} else {
		l.opts.Logger.Debug("Read failure", "signal", sig, "failures", failures)
	}
	if readErr != nil {
		l.mu.Lock()
		l.status.LastError = readErr.Error()
		l.mu.Unlock()
	}

	l.opts.Bus.Publish(events.HealthSignalEvent{
		Signal:    sig.String(),
		Failures:  failures,
		Threshold: l.opts.Monitor.Threshold(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (l *Loop) setSession(s *camera.Session) {
	l.session = s

	l.mu.Lock()
	defer l.mu.Unlock()
	if s == nil {
		l.status.SessionID = ""
		l.status.Device = ""
		return
	}
	l.status.SessionID = s.ID
	l.status.Device = s.Device
}

func (l *Loop) enter(to State, reason string) {
	l.mu.Lock()
	from := l.status.State
	l.status.State = to
	l.status.Since = time.Now()
	sessionID := l.status.SessionID
	if reason != "" {
		l.status.LastError = reason
	}
	l.mu.Unlock()

	if from == to {
		return
	}

	l.opts.Logger.Info("State changed", "from", from, "to", to)
	l.opts.Bus.Publish(events.StateChangedEvent{
		From:      from.String(),
		To:        to.String(),
		SessionID: sessionID,
		Reason:    reason,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// terminate releases the session and enters the terminal state.
func (l *Loop) terminate(out Outcome) Outcome {
	if err := l.session.Release(); err != nil {
		l.opts.Logger.Warn("Error releasing camera session", "error", err)
	}
	l.setSession(nil)

	reason := ""
	if out.Err != nil && !errors.Is(out.Err, context.Canceled) {
		reason = out.Err.Error()
	}
	l.enter(StateTerminated, reason)

	l.opts.Logger.Info("Capture loop finished", "outcome", out.Kind, "frames", l.Status().Frames)
	return out
}

// AttemptPublisher converts open attempts into bus events. Pass it to camera.WithAttemptHook.
func AttemptPublisher(bus *events.Bus) func(camera.Attempt) {
	return func(a camera.Attempt) {
		ev := events.OpenAttemptEvent{
			DevicePath:  a.Device,
			Attempt:     a.Number,
			MaxAttempts: a.MaxAttempts,
			DelaySec:    a.Delay.Seconds(),
			Timestamp:   time.Now().Format(time.RFC3339),
		}
		if a.Probed {
			present := a.Present
			ev.Present = &present
		}
		if a.Err != nil {
			ev.Code = string(camera.CodeOf(a.Err))
			ev.Error = a.Err.Error()
		}
		bus.Publish(ev)
	}
}
