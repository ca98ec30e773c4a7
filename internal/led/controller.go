// Package led shows the capture state on a board LED.
package led

// Patterns understood by every controller.
const (
	PatternSolid = "solid"
	PatternBlink = "blink"
)

// Controller drives board LEDs.
type Controller interface {
	// Set switches an LED on or off. An empty pattern leaves the trigger unchanged.
	Set(name string, enabled bool, pattern string) error

	// Available lists the LED names this board exposes.
	Available() []string
}
