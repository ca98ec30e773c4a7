package devices

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRoots creates an empty sysfs class dir and /dev dir.
func fakeRoots(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	classDir := filepath.Join(root, "sys", "class", "video4linux")
	devDir := filepath.Join(root, "dev")
	for _, dir := range []string{classDir, devDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return classDir, devDir
}

func addNode(t *testing.T, classDir, name, cardName, index string) {
	t.Helper()
	dir := filepath.Join(classDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "name"), []byte(cardName+"\n"), 0o644); err != nil {
		t.Fatalf("write name: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index"), []byte(index+"\n"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
}

func TestProbe(t *testing.T) {
	classDir, devDir := fakeRoots(t)
	p := NewProbe(testLogger(), WithRoots(classDir, devDir))

	if got := p.Probe(); got != StateAbsent {
		t.Fatalf("Probe() on empty namespace = %v, want absent", got)
	}

	// Non-video entries are ignored
	if err := os.MkdirAll(filepath.Join(classDir, "v4l-subdev0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := p.Probe(); got != StateAbsent {
		t.Fatalf("Probe() with only subdev = %v, want absent", got)
	}

	addNode(t, classDir, "video0", "USB Camera", "0")
	if got := p.Probe(); got != StatePresent {
		t.Fatalf("Probe() = %v, want present", got)
	}
}

func TestProbeFallsBackToDevNodes(t *testing.T) {
	root := t.TempDir()
	devDir := filepath.Join(root, "dev")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// sysfs class directory does not exist at all
	p := NewProbe(testLogger(), WithRoots(filepath.Join(root, "missing"), devDir))
	if got := p.Probe(); got != StateAbsent {
		t.Fatalf("Probe() = %v, want absent", got)
	}

	if err := os.WriteFile(filepath.Join(devDir, "video2"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := p.Probe(); got != StatePresent {
		t.Fatalf("Probe() = %v, want present", got)
	}
}

func TestDevices(t *testing.T) {
	classDir, devDir := fakeRoots(t)
	addNode(t, classDir, "video1", "HD Webcam C270", "1")
	addNode(t, classDir, "video0", "HD Webcam C270", "0")

	byID := filepath.Join(devDir, "v4l", "by-id")
	if err := os.MkdirAll(byID, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("../../video0", filepath.Join(byID, "usb-046d_0825-video-index0")); err != nil {
		t.Fatal(err)
	}

	p := NewProbe(testLogger(), WithRoots(classDir, devDir))
	got := p.Devices()
	if len(got) != 2 {
		t.Fatalf("Devices() returned %d entries, want 2", len(got))
	}
	if got[0].DevicePath != filepath.Join(devDir, "video0") {
		t.Errorf("first device path = %s, want sorted video0", got[0].DevicePath)
	}
	if got[0].DeviceName != "HD Webcam C270" {
		t.Errorf("DeviceName = %q", got[0].DeviceName)
	}
	if got[0].DeviceID != "usb-046d_0825-video-index0" {
		t.Errorf("DeviceID = %q, want by-id link name", got[0].DeviceID)
	}
	if got[1].Index != 1 || got[1].DeviceID != "" {
		t.Errorf("second device = %+v", got[1])
	}
}

func TestAwaitPresentTimeout(t *testing.T) {
	classDir, devDir := fakeRoots(t)
	p := NewProbe(testLogger(), WithRoots(classDir, devDir))

	start := time.Now()
	if p.AwaitPresent(context.Background(), 60*time.Millisecond, 20*time.Millisecond) {
		t.Fatal("AwaitPresent() = true with no devices")
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("AwaitPresent returned after %v, before timeout", elapsed)
	}
}

func TestAwaitPresentDeviceAppears(t *testing.T) {
	classDir, devDir := fakeRoots(t)
	p := NewProbe(testLogger(), WithRoots(classDir, devDir))

	go func() {
		time.Sleep(30 * time.Millisecond)
		addNode(t, classDir, "video0", "cam", "0")
	}()

	if !p.AwaitPresent(context.Background(), 2*time.Second, 10*time.Millisecond) {
		t.Fatal("AwaitPresent() = false, device appeared during the window")
	}
}

func TestAwaitPresentWake(t *testing.T) {
	classDir, devDir := fakeRoots(t)
	wake := make(chan struct{}, 1)
	p := NewProbe(testLogger(), WithRoots(classDir, devDir), WithWake(wake))

	go func() {
		time.Sleep(20 * time.Millisecond)
		addNode(t, classDir, "video0", "cam", "0")
		wake <- struct{}{}
	}()

	start := time.Now()
	// Poll interval is far longer than the test; only the wake can finish early
	if !p.AwaitPresent(context.Background(), 10*time.Second, 5*time.Second) {
		t.Fatal("AwaitPresent() = false")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("wake did not trigger early probe, took %v", elapsed)
	}
}

func TestAwaitPresentCancelled(t *testing.T) {
	classDir, devDir := fakeRoots(t)
	p := NewProbe(testLogger(), WithRoots(classDir, devDir))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if p.AwaitPresent(ctx, 10*time.Second, time.Second) {
		t.Fatal("AwaitPresent() = true after cancel")
	}
}

func TestResolveDevicePath(t *testing.T) {
	devDir := t.TempDir()
	byPath := filepath.Join(devDir, "v4l", "by-path")
	if err := os.MkdirAll(byPath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(byPath, "platform-fe801000.csi-video-index0"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{"/dev/video0", "/dev/video0", false},
		{"platform-fe801000.csi-video-index0", filepath.Join(byPath, "platform-fe801000.csi-video-index0"), false},
		{"usb-missing-video-index0", "", true},
		{"video0", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := resolveIn(devDir, tt.id)
			if tt.wantErr {
				if !errors.Is(err, fs.ErrNotExist) {
					t.Fatalf("resolveIn(%q) error = %v, want fs.ErrNotExist", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveIn(%q) error = %v", tt.id, err)
			}
			if got != tt.want {
				t.Errorf("resolveIn(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
