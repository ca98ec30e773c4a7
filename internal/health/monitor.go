// Package health counts consecutive frame read failures.
package health

import "sync"

// DefaultThreshold is the number of consecutive failed reads that trips the monitor.
const DefaultThreshold = 5

// Signal is the monitor's verdict after a read.
type Signal int

// Health signals.
const (
	Healthy Signal = iota
	Degraded
	Tripped
)

func (s Signal) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Tripped:
		return "tripped"
	default:
		return "unknown"
	}
}

// Monitor tracks consecutive read failures against a threshold.
// Tripped is reported once per run of failures; the count restarts from zero after it.
type Monitor struct {
	mu        sync.Mutex
	threshold int
	failures  int
}

// NewMonitor creates a monitor. A threshold below 1 uses DefaultThreshold.
func NewMonitor(threshold int) *Monitor {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Monitor{threshold: threshold}
}

// Observe records one read outcome.
func (m *Monitor) Observe(success bool) Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.failures = 0
		return Healthy
	}

	m.failures++
	if m.failures >= m.threshold {
		m.failures = 0
		return Tripped
	}
	return Degraded
}

// Failures returns the current consecutive failure count.
func (m *Monitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Threshold returns the configured trip threshold.
func (m *Monitor) Threshold() int {
	return m.threshold
}
