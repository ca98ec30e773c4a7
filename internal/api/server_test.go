package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smazurov/camkeep/internal/capture"
	"github.com/smazurov/camkeep/internal/devices"
	"github.com/smazurov/camkeep/internal/logging"
)

type fakeStatus struct {
	status capture.Status
}

func (f fakeStatus) Status() capture.Status { return f.status }

type fakeDevices struct {
	list []devices.DeviceInfo
}

func (f fakeDevices) Probe() devices.State {
	if len(f.list) > 0 {
		return devices.StatePresent
	}
	return devices.StateAbsent
}

func (f fakeDevices) Devices() []devices.DeviceInfo { return f.list }

type fakeSnapshot struct {
	frame []byte
}

func (f fakeSnapshot) Snapshot() ([]byte, time.Time, uint64, bool) {
	if f.frame == nil {
		return nil, time.Time{}, 0, false
	}
	return f.frame, time.Unix(1700000000, 0), 42, true
}

type fakeLogs []logging.Entry

func (f fakeLogs) Entries() []logging.Entry { return f }

func newTestServer(opts *Options) http.Handler {
	return NewServer(opts).Handler()
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReflectsState(t *testing.T) {
	tests := []struct {
		state capture.State
		want  string
	}{
		{capture.StateStreaming, "ok"},
		{capture.StateReconnecting, "degraded"},
		{capture.StateAwaitingDevice, "degraded"},
		{capture.StateTerminated, "down"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := newTestServer(&Options{Status: fakeStatus{capture.Status{State: tt.state}}})
			rec := get(t, h, "/api/health", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body struct {
				Status string `json:"status"`
				State  string `json:"state"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.want || body.State != tt.state.String() {
				t.Errorf("health = %+v, want status %s", body, tt.want)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	st := capture.Status{
		State:      capture.StateStreaming,
		Since:      time.Unix(1700000000, 0).UTC(),
		SessionID:  "abc",
		Device:     "/dev/video0",
		Frames:     12,
		Reconnects: 1,
	}
	h := newTestServer(&Options{Status: fakeStatus{st}})
	rec := get(t, h, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var body struct {
		State      string `json:"state"`
		SessionID  string `json:"session_id"`
		Device     string `json:"device"`
		Frames     uint64 `json:"frames"`
		Reconnects int    `json:"reconnects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.State != "streaming" || body.SessionID != "abc" || body.Frames != 12 || body.Reconnects != 1 || body.Device != "/dev/video0" {
		t.Errorf("status body = %+v", body)
	}
}

func TestDevicesEndpoint(t *testing.T) {
	h := newTestServer(&Options{Devices: fakeDevices{[]devices.DeviceInfo{
		{DevicePath: "/dev/video0", DeviceName: "cam", Index: 0},
	}}})
	rec := get(t, h, "/api/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		State   string `json:"state"`
		Count   int    `json:"count"`
		Devices []struct {
			DevicePath string `json:"device_path"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.State != "present" || body.Count != 1 || body.Devices[0].DevicePath != "/dev/video0" {
		t.Errorf("devices body = %+v", body)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	h := newTestServer(&Options{Snapshot: fakeSnapshot{}})
	if rec := get(t, h, "/api/snapshot", nil); rec.Code != http.StatusNotFound {
		t.Errorf("empty snapshot status = %d, want 404", rec.Code)
	}

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3}
	h = newTestServer(&Options{Snapshot: fakeSnapshot{jpeg}})
	rec := get(t, h, "/api/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if seq := rec.Header().Get("X-Frame-Sequence"); seq != "42" {
		t.Errorf("X-Frame-Sequence = %q", seq)
	}
	if rec.Body.String() != string(jpeg) {
		t.Errorf("body = %v, want raw frame", rec.Body.Bytes())
	}
}

func TestLogsEndpoint(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	logs := fakeLogs{
		{Timestamp: at, Level: "info", Module: "devices", Message: "Waiting for video devices"},
		{Timestamp: at, Level: "warn", Module: "camera", Message: "Open attempt failed", Attributes: map[string]any{"attempt": 1}},
		{Timestamp: at, Level: "debug", Module: "camera", Message: "Open failed"},
		{Timestamp: at, Level: "error", Module: "capture", Message: "Camera could not be opened"},
	}
	h := newTestServer(&Options{Logs: logs})

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Waiting for video devices", "Open attempt failed", "Open failed", "Camera could not be opened"}},
		{"?module=camera", []string{"Open attempt failed", "Open failed"}},
		{"?level=warn", []string{"Open attempt failed", "Camera could not be opened"}},
		{"?limit=1", []string{"Camera could not be opened"}},
		{"?module=led", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := get(t, h, "/api/logs"+tt.query, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body)
			}
			var body struct {
				Entries []struct {
					Module  string `json:"module"`
					Message string `json:"message"`
				} `json:"entries"`
				Count int `json:"count"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Count != len(tt.want) || len(body.Entries) != len(tt.want) {
				t.Fatalf("entries = %+v, want %v", body.Entries, tt.want)
			}
			for i, e := range body.Entries {
				if e.Message != tt.want[i] {
					t.Errorf("entry %d = %q, want %q", i, e.Message, tt.want[i])
				}
			}
		})
	}
}

func TestRoutesOmittedWithoutCollaborators(t *testing.T) {
	h := newTestServer(&Options{})
	for _, path := range []string{"/api/status", "/api/devices", "/api/snapshot", "/api/logs"} {
		if rec := get(t, h, path, nil); rec.Code == http.StatusOK {
			t.Errorf("GET %s = 200, want no route", path)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	h := newTestServer(&Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		Status:       fakeStatus{capture.Status{State: capture.StateStreaming}},
	})
	good := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	bad := base64.StdEncoding.EncodeToString([]byte("admin:wrong"))

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"health is public", "/api/health", nil, http.StatusOK},
		{"version is public", "/api/version", nil, http.StatusOK},
		{"missing credentials", "/api/status", nil, http.StatusUnauthorized},
		{"wrong password", "/api/status", map[string]string{"Authorization": "Basic " + bad}, http.StatusUnauthorized},
		{"bearer rejected", "/api/status", map[string]string{"Authorization": "Bearer x"}, http.StatusUnauthorized},
		{"valid header", "/api/status", map[string]string{"Authorization": "Basic " + good}, http.StatusOK},
		{"valid query", "/api/status?auth=" + good, nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path, tt.header)
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestMetricsHandlerMounted(t *testing.T) {
	called := false
	h := newTestServer(&Options{PrometheusHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})})
	get(t, h, "/metrics", nil)
	if !called {
		t.Error("/metrics did not reach the Prometheus handler")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(&Options{})
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}
