// Package devices detects V4L2 capture nodes on the host.
//
// Detection only reads the device namespace (sysfs class directory or /dev nodes);
// it never opens a device, so probing is safe while another process streams.
package devices

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultClassDir = "/sys/class/video4linux"
	defaultDevDir   = "/dev"
)

// State is the presence of camera-capable devices.
type State int

// Device presence states.
const (
	StateAbsent State = iota
	StatePresent
)

func (s State) String() string {
	if s == StatePresent {
		return "present"
	}
	return "absent"
}

// DeviceInfo describes an enumerated video node.
type DeviceInfo struct {
	DevicePath string `json:"device_path"`
	DeviceName string `json:"device_name"`
	DeviceID   string `json:"device_id,omitempty"`
	Index      int    `json:"index"`
}

// Probe inspects the host for video nodes.
type Probe struct {
	classDir string
	devDir   string
	wake     <-chan struct{}
	logger   *slog.Logger
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithRoots overrides the sysfs class directory and the /dev directory.
func WithRoots(classDir, devDir string) ProbeOption {
	return func(p *Probe) {
		p.classDir = classDir
		p.devDir = devDir
	}
}

// WithWake sets a channel whose signals trigger an immediate re-probe in AwaitPresent.
func WithWake(wake <-chan struct{}) ProbeOption {
	return func(p *Probe) {
		p.wake = wake
	}
}

// NewProbe creates a probe over the real device namespace.
func NewProbe(logger *slog.Logger, opts ...ProbeOption) *Probe {
	p := &Probe{
		classDir: defaultClassDir,
		devDir:   defaultDevDir,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns StatePresent if at least one video node exists.
func (p *Probe) Probe() State {
	if len(p.nodeNames()) > 0 {
		return StatePresent
	}
	return StateAbsent
}

// AwaitPresent polls Probe every interval until a device shows up or timeout elapses.
// It returns true iff a present observation happened before the timeout.
func (p *Probe) AwaitPresent(ctx context.Context, timeout, interval time.Duration) bool {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)

	for poll := 1; ; poll++ {
		if p.Probe() == StatePresent {
			p.logger.Info("Video devices detected", "poll", poll, "nodes", p.nodeNames())
			return true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.logger.Warn("Timed out waiting for video devices", "timeout", timeout, "polls", poll)
			return false
		}

		wait := min(interval, remaining)
		p.logger.Info("Waiting for video devices", "poll", poll, "next_poll", wait, "remaining", remaining)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-p.wake:
			timer.Stop()
			p.logger.Debug("Device event received, probing early")
		case <-timer.C:
		}
	}
}

// Devices enumerates video nodes with their sysfs metadata.
func (p *Probe) Devices() []DeviceInfo {
	names := p.nodeNames()
	devices := make([]DeviceInfo, 0, len(names))
	for _, name := range names {
		sysDir := filepath.Join(p.classDir, name)
		index := readSysfsInt(filepath.Join(sysDir, "index"))
		devices = append(devices, DeviceInfo{
			DevicePath: filepath.Join(p.devDir, name),
			DeviceName: readSysfsString(filepath.Join(sysDir, "name")),
			DeviceID:   findStableID(filepath.Join(p.devDir, "v4l", "by-id"), name, index),
			Index:      index,
		})
	}
	return devices
}

// nodeNames lists videoN entries, preferring the sysfs class directory.
func (p *Probe) nodeNames() []string {
	names := listVideoEntries(p.classDir)
	if names == nil {
		names = listVideoEntries(p.devDir)
	}
	sort.Strings(names)
	return names
}

// listVideoEntries returns nil when dir cannot be read.
func listVideoEntries(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(name, "video")); err != nil {
			continue
		}
		names = append(names, name)
	}
	return names
}

// findStableID looks for a by-id symlink pointing at the node.
func findStableID(byIDDir, nodeName string, index int) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}
	suffix := "-video-index" + strconv.Itoa(index)
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == nodeName && strings.HasSuffix(entry.Name(), suffix) {
			return entry.Name()
		}
	}
	return ""
}

func readSysfsInt(path string) int {
	val, _ := strconv.Atoi(readSysfsString(path))
	return val
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
