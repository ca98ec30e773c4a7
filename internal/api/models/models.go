package models

// Health check models
type HealthData struct {
	Status string `json:"status" example:"ok" doc:"ok while streaming, degraded while recovering, down once terminated"`
	State  string `json:"state" example:"streaming" doc:"Capture loop state"`
}

type HealthResponse struct {
	Body HealthData
}

// Capture status models
type StatusData struct {
	State      string `json:"state" example:"streaming" doc:"Capture loop state"`
	Since      string `json:"since" example:"2025-01-02T15:04:05Z" doc:"When the current state was entered"`
	SessionID  string `json:"session_id,omitempty" doc:"Current camera session"`
	Device     string `json:"device,omitempty" example:"/dev/video0" doc:"Device held by the session"`
	Frames     uint64 `json:"frames" doc:"Frames forwarded since start"`
	Failures   int    `json:"failures" doc:"Current consecutive read failures"`
	Reconnects int    `json:"reconnects" doc:"Successful reconnects since start"`
	LastError  string `json:"last_error,omitempty" doc:"Most recent read or terminal error"`
}

type StatusResponse struct {
	Body StatusData
}

// Device models
type DeviceInfo struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Device node"`
	DeviceName string `json:"device_name" example:"HD Webcam C270" doc:"Driver card name"`
	DeviceID   string `json:"device_id,omitempty" example:"usb-046d_0825-video-index0" doc:"Stable by-id name"`
	Index      int    `json:"index" doc:"V4L2 node index"`
}

type DeviceData struct {
	State   string       `json:"state" example:"present" doc:"present if any video node exists"`
	Devices []DeviceInfo `json:"devices" doc:"Enumerated video nodes"`
	Count   int          `json:"count" doc:"Number of video nodes"`
}

type DeviceResponse struct {
	Body DeviceData
}

// Snapshot is the latest frame as raw bytes.
type SnapshotResponse struct {
	ContentType string `header:"Content-Type"`
	Sequence    string `header:"X-Frame-Sequence"`
	CapturedAt  string `header:"X-Frame-Time"`
	Body        []byte
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-02T15:04:05Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Logging models
type LoggingData struct {
	Modules map[string]string `json:"modules" doc:"Effective level per logging module"`
}

type LoggingResponse struct {
	Body LoggingData
}

// Log models
type LogsInput struct {
	Module string `query:"module" example:"camera" doc:"Only entries from this module"`
	Level  string `query:"level" enum:"debug,info,warn,error" doc:"Minimum level"`
	Limit  int    `query:"limit" minimum:"0" default:"200" doc:"Newest entries to return, 0 for all"`
}

type LogEntry struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Record timestamp"`
	Level      string         `json:"level" example:"warn" doc:"debug, info, warn or error"`
	Module     string         `json:"module" example:"camera" doc:"Logging module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured fields"`
}

type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Log entries, oldest first"`
	Count   int        `json:"count" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
