package nats

import (
	"encoding/json"
	"strings"
)

// SubjectPrefix is the root of every subject published.
const SubjectPrefix = "camkeep"

// Subject kinds.
const (
	KindState     = "state"
	KindAttempt   = "attempt"
	KindHealth    = "health"
	KindReconnect = "reconnect"
)

// Subject returns the subject for kind events of source.
func Subject(source, kind string) string {
	return SubjectPrefix + "." + SourceToken(source) + "." + kind
}

// SourceToken turns a device name or path into a single subject token.
// "/dev/v4l/by-id/usb-cam" becomes "dev_v4l_by-id_usb-cam".
func SourceToken(source string) string {
	source = strings.Trim(source, "/")
	if source == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '/', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, source)
}

// Envelope wraps every event with its source.
type Envelope struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Event  any    `json:"event"`
}

// Marshal serializes the envelope to JSON.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
