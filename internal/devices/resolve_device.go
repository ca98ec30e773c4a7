package devices

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ResolveDevicePath converts a device id to an openable path.
// Plain paths pass through; usb-* ids are looked up in /dev/v4l/by-id first,
// then usb-* and platform-* ids in /dev/v4l/by-path. A missing link wraps fs.ErrNotExist.
func ResolveDevicePath(deviceID string) (string, error) {
	return resolveIn(defaultDevDir, deviceID)
}

func resolveIn(devDir, deviceID string) (string, error) {
	if strings.HasPrefix(deviceID, "/") {
		return deviceID, nil
	}

	var candidates []string
	if strings.HasPrefix(deviceID, "usb-") {
		candidates = append(candidates, filepath.Join(devDir, "v4l", "by-id", deviceID))
	}
	if strings.HasPrefix(deviceID, "usb-") || strings.HasPrefix(deviceID, "platform-") {
		candidates = append(candidates, filepath.Join(devDir, "v4l", "by-path", deviceID))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no stable symlink found for device ID %s: %w", deviceID, fs.ErrNotExist)
}
