package led

import (
	"log/slog"

	"github.com/smazurov/camkeep/internal/events"
)

// Manager mirrors capture state on the status LED:
// solid while streaming, blinking while recovering, off once terminated.
type Manager struct {
	controller  Controller
	bus         *events.Bus
	unsubscribe func()
	logger      *slog.Logger
}

// NewManager creates a manager; call Start to begin following events.
func NewManager(controller Controller, bus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		bus:        bus,
		logger:     logger,
	}
}

// Start subscribes to state changes and sets the initial blink.
func (m *Manager) Start() {
	m.apply("initializing")
	m.unsubscribe = m.bus.Subscribe(func(e events.StateChangedEvent) {
		m.apply(e.To)
	})
	m.logger.Info("LED manager started")
}

// Stop unsubscribes and turns the LED off.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if err := m.controller.Set(StatusLED, false, PatternSolid); err != nil {
		m.logger.Warn("Failed to turn off status LED", "error", err)
	}
	m.logger.Info("LED manager stopped")
}

func (m *Manager) apply(state string) {
	enabled, pattern := patternFor(state)
	if err := m.controller.Set(StatusLED, enabled, pattern); err != nil {
		m.logger.Warn("Failed to set status LED", "state", state, "error", err)
		return
	}
	m.logger.Debug("Status LED updated", "state", state, "enabled", enabled, "pattern", pattern)
}

func patternFor(state string) (bool, string) {
	switch state {
	case "streaming":
		return true, PatternSolid
	case "terminated":
		return false, PatternSolid
	default:
		return true, PatternBlink
	}
}
