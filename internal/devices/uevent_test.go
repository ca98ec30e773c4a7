package devices

import "testing"

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name      string
		input     []byte
		wantOK    bool
		action    string
		subsystem string
		devName   string
		video     bool
	}{
		{name: "empty", input: nil},
		{name: "no separator", input: []byte("invalid")},
		{name: "missing action", input: []byte("@/devices/foo")},
		{
			name:      "video add",
			input:     []byte("add@/devices/platform/usb/video4linux/video0\x00ACTION=add\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00"),
			wantOK:    true,
			action:    "add",
			subsystem: "video4linux",
			devName:   "video0",
			video:     true,
		},
		{
			name:      "media controller is not a video node",
			input:     []byte("add@/devices/platform/usb/media0\x00SUBSYSTEM=media\x00DEVNAME=media0\x00"),
			wantOK:    true,
			action:    "add",
			subsystem: "media",
			devName:   "media0",
		},
		{
			name:      "usb remove",
			input:     []byte("remove@/devices/usb/1-1\x00SUBSYSTEM=usb\x00DEVTYPE=usb_device\x00"),
			wantOK:    true,
			action:    "remove",
			subsystem: "usb",
		},
		{
			name:      "libudev header skipped",
			input:     append([]byte("libudev\x00\xfe\xed\xca\xfe\x00"), []byte("remove@/devices/video4linux/video2\x00SUBSYSTEM=video4linux\x00DEVNAME=video2\x00")...),
			wantOK:    true,
			action:    "remove",
			subsystem: "video4linux",
			devName:   "video2",
			video:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := parseUEvent(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("parseUEvent ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ev.Action != tt.action || ev.Subsystem != tt.subsystem || ev.DevName != tt.devName {
				t.Errorf("got action=%q subsystem=%q devname=%q", ev.Action, ev.Subsystem, ev.DevName)
			}
			if ev.IsVideoNode() != tt.video {
				t.Errorf("IsVideoNode() = %v, want %v", ev.IsVideoNode(), tt.video)
			}
		})
	}
}
