package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// ErrorCode identifies why a device could not be opened.
type ErrorCode string

// Open failure codes.
const (
	ErrDeviceAbsent     ErrorCode = "DEVICE_ABSENT"
	ErrDriverRejected   ErrorCode = "DRIVER_REJECTED"
	ErrPermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// OpenError is returned by every failed open attempt.
type OpenError struct {
	Code    ErrorCode `json:"code"`
	Device  string    `json:"device"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

// NewOpenError creates an open error for a device.
func NewOpenError(code ErrorCode, device, message string, cause error) *OpenError {
	return &OpenError{
		Code:    code,
		Device:  device,
		Message: message,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s %s: %v", e.Code, e.Message, e.Device, e.Cause)
	}
	return fmt.Sprintf("[%s] %s %s", e.Code, e.Message, e.Device)
}

// Unwrap returns the underlying cause.
func (e *OpenError) Unwrap() error {
	return e.Cause
}

// HasCode checks if the error matches a specific code.
func (e *OpenError) HasCode(code ErrorCode) bool {
	return e.Code == code
}

// CodeOf extracts the open error code from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var oe *OpenError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// IsCode reports whether err wraps an OpenError with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// classifyOpenError maps a raw driver error to an OpenError.
func classifyOpenError(device string, err error) *OpenError {
	var oe *OpenError
	if errors.As(err, &oe) {
		return oe
	}
	switch {
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, syscall.ENODEV),
		errors.Is(err, syscall.ENXIO):
		return NewOpenError(ErrDeviceAbsent, device, "no device responds at", err)
	case errors.Is(err, fs.ErrPermission):
		return NewOpenError(ErrPermissionDenied, device, "access refused to", err)
	default:
		return NewOpenError(ErrDriverRejected, device, "driver rejected", err)
	}
}
