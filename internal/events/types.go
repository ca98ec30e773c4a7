package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeOpenAttempt
	TypeHealthSignal
	TypeFrameCaptured
	TypeReconnect
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published on every capture loop state transition.
type StateChangedEvent struct {
	From      string `json:"from" example:"opening" doc:"Previous loop state"`
	To        string `json:"to" example:"streaming" doc:"New loop state"`
	SessionID string `json:"session_id,omitempty" doc:"Camera session identifier"`
	Reason    string `json:"reason,omitempty" doc:"Error that caused the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// OpenAttemptEvent reports the result of one retrying open attempt.
type OpenAttemptEvent struct {
	DevicePath  string  `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Attempt     int     `json:"attempt" example:"2" doc:"Attempt number, one based"`
	MaxAttempts int     `json:"max_attempts" example:"5" doc:"Attempt budget"`
	DelaySec    float64 `json:"delay_sec" example:"7" doc:"Backoff wait before the attempt"`
	Present     *bool   `json:"present,omitempty" doc:"Probe result before the attempt"`
	Code        string  `json:"code,omitempty" example:"DEVICE_ABSENT" doc:"Failure code, empty on success"`
	Error       string  `json:"error,omitempty" doc:"Failure detail"`
	Timestamp   string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Attempt timestamp"`
}

// Type returns the event type identifier for OpenAttemptEvent.
func (e OpenAttemptEvent) Type() uint32 { return TypeOpenAttempt }

// Succeeded reports whether the attempt opened the device.
func (e OpenAttemptEvent) Succeeded() bool { return e.Code == "" && e.Error == "" }

// HealthSignalEvent is published whenever the health signal changes, and on every trip.
type HealthSignalEvent struct {
	Signal    string `json:"signal" example:"degraded" doc:"healthy, degraded or tripped"`
	Failures  int    `json:"failures" example:"3" doc:"Consecutive failed reads"`
	Threshold int    `json:"threshold" example:"5" doc:"Failures that trip a reconnect"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Observation timestamp"`
}

// Type returns the event type identifier for HealthSignalEvent.
func (e HealthSignalEvent) Type() uint32 { return TypeHealthSignal }

// FrameCapturedEvent is published for every frame forwarded to the sink.
type FrameCapturedEvent struct {
	SessionID string `json:"session_id" doc:"Camera session identifier"`
	Sequence  uint64 `json:"sequence" example:"42" doc:"Frame number within the run"`
	Bytes     int    `json:"bytes" example:"14532" doc:"Encoded frame size"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Capture timestamp"`
}

// Type returns the event type identifier for FrameCapturedEvent.
func (e FrameCapturedEvent) Type() uint32 { return TypeFrameCaptured }

// ReconnectEvent reports the single reopen performed after a trip.
type ReconnectEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Success    bool   `json:"success" doc:"Whether the reopen succeeded"`
	Error      string `json:"error,omitempty" doc:"Failure detail"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Reconnect timestamp"`
}

// Type returns the event type identifier for ReconnectEvent.
func (e ReconnectEvent) Type() uint32 { return TypeReconnect }

// LogEntryEvent carries one log record to live log subscribers.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Record timestamp"`
	Level      string         `json:"level" example:"warn" doc:"debug, info, warn or error"`
	Module     string         `json:"module" example:"camera" doc:"Logging module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured fields"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
