package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// StatusLED is the logical name the manager drives.
const StatusLED = "status"

// boardLEDs maps device tree models to the sysfs LED used for status.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"Raspberry Pi", "ACT"},
	{"NanoPC-T6", "sys_led"},
	{"Orange Pi", "green_led"},
}

// New returns a controller for this board. override names a sysfs LED directly
// and skips detection. Unknown boards get a no-op controller.
func New(override string, logger *slog.Logger) Controller {
	if override != "" {
		logger.Info("Using configured status LED", "led", override)
		return newSysfs(sysfsLEDPath, map[string]string{StatusLED: override})
	}

	model := detectBoard()
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			logger.Info("Detected board with status LED", "board_model", model, "led", b.led)
			return newSysfs(sysfsLEDPath, map[string]string{StatusLED: b.led})
		}
	}

	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return noop{logger: logger}
}

func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
