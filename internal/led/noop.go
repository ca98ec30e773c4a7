package led

import "log/slog"

// noop is used on boards without a known status LED.
type noop struct {
	logger *slog.Logger
}

func (n noop) Set(name string, enabled bool, pattern string) error {
	n.logger.Debug("LED control not available", "led", name, "enabled", enabled, "pattern", pattern)
	return nil
}

func (n noop) Available() []string {
	return nil
}
