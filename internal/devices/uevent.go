package devices

import (
	"bytes"
	"strings"
)

// Kernel uevent actions relevant to video nodes.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

const subsystemVideo4Linux = "video4linux"

// UEvent is a parsed kernel device event.
type UEvent struct {
	Action    string
	KObj      string
	Subsystem string
	DevName   string
	Env       map[string]string
}

// IsVideoNode reports whether the event concerns a /dev/videoN node.
func (e UEvent) IsVideoNode() bool {
	return e.Subsystem == subsystemVideo4Linux && strings.HasPrefix(e.DevName, "video")
}

// parseUEvent decodes "ACTION@KOBJ\0KEY=VALUE\0...". Messages rebroadcast by
// udevd carry a binary libudev header that is skipped.
func parseUEvent(data []byte) (UEvent, bool) {
	parts := bytes.Split(data, []byte{0})
	if bytes.HasPrefix(data, []byte("libudev")) {
		for len(parts) > 0 && bytes.IndexByte(parts[0], '@') <= 0 {
			parts = parts[1:]
		}
	}
	if len(parts) == 0 {
		return UEvent{}, false
	}

	action, kobj, ok := strings.Cut(string(parts[0]), "@")
	if !ok || action == "" {
		return UEvent{}, false
	}

	ev := UEvent{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVNAME":
			ev.DevName = value
		}
	}
	return ev, true
}
