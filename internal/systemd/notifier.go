// Package systemd reports service readiness and liveness to systemd via sd_notify.
//
// Outside a systemd unit NOTIFY_SOCKET is unset and every notification is a no-op.
package systemd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/camkeep/internal/events"
)

// NotifyFunc sends one sd_notify message. It matches daemon.SdNotify.
type NotifyFunc func(unsetEnvironment bool, state string) (bool, error)

// WatchdogFunc reports the watchdog interval. It matches daemon.SdWatchdogEnabled.
type WatchdogFunc func(unsetEnvironment bool) (time.Duration, error)

// Notifier follows capture state changes and forwards them to systemd.
// READY=1 is sent the first time streaming starts.
type Notifier struct {
	bus      *events.Bus
	notify   NotifyFunc
	watchdog WatchdogFunc
	logger   *slog.Logger

	mu       sync.Mutex
	ready    bool
	progress time.Time
	unsubs   []func()
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithNotify replaces daemon.SdNotify.
func WithNotify(fn NotifyFunc) Option {
	return func(n *Notifier) { n.notify = fn }
}

// WithWatchdog replaces daemon.SdWatchdogEnabled.
func WithWatchdog(fn WatchdogFunc) Option {
	return func(n *Notifier) { n.watchdog = fn }
}

// NewNotifier creates a notifier; call Start to subscribe.
func NewNotifier(bus *events.Bus, logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		bus:      bus,
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start subscribes to state changes. Frames and health signals count as loop progress.
func (n *Notifier) Start() {
	n.unsubs = []func(){
		n.bus.Subscribe(func(e events.StateChangedEvent) { n.handle(e) }),
		n.bus.Subscribe(func(events.FrameCapturedEvent) { n.markProgress() }),
		n.bus.Subscribe(func(events.HealthSignalEvent) { n.markProgress() }),
	}
}

// Stop unsubscribes and reports STOPPING=1.
func (n *Notifier) Stop() {
	for _, unsub := range n.unsubs {
		unsub()
	}
	n.unsubs = nil
	n.send(daemon.SdNotifyStopping)
}

// Ready reports whether READY=1 has been sent.
func (n *Notifier) Ready() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ready
}

func (n *Notifier) handle(e events.StateChangedEvent) {
	n.mu.Lock()
	n.progress = time.Now()
	first := e.To == "streaming" && !n.ready
	if first {
		n.ready = true
	}
	n.mu.Unlock()

	status := "STATUS=" + e.To
	if e.Reason != "" {
		status += ": " + e.Reason
	}

	switch {
	case first:
		n.send(daemon.SdNotifyReady + "\n" + status)
	case e.To == "terminated":
		n.send(daemon.SdNotifyStopping + "\n" + status)
	default:
		n.send(status)
	}
}

func (n *Notifier) markProgress() {
	n.mu.Lock()
	n.progress = time.Now()
	n.mu.Unlock()
}

// alive reports whether the loop is ready and made progress within window.
func (n *Notifier) alive(window time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ready && time.Since(n.progress) < window
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// RunWatchdog pings the systemd watchdog at half its interval once READY=1 was
// sent, as long as the loop published a state change, frame or health signal
// within the last interval. A stalled loop stops the pings and systemd restarts
// the unit. Returns immediately when WatchdogSec is unset.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := n.watchdog(false)
	if err != nil {
		n.logger.Warn("Watchdog configuration invalid", "error", err)
		return
	}
	if interval == 0 {
		return
	}

	period := interval / 2
	n.logger.Info("Watchdog enabled", "interval", interval, "ping_every", period)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n.alive(interval) {
				n.send(daemon.SdNotifyWatchdog)
			} else if n.Ready() {
				n.logger.Warn("Capture loop stalled, withholding watchdog ping", "interval", interval)
			}
		}
	}
}
