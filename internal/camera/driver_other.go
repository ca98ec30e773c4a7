//go:build !linux

package camera

import "errors"

var errUnsupportedPlatform = errors.New("video capture requires linux")

type unsupportedDriver struct{}

// NewDriver returns a driver that rejects every open outside Linux.
func NewDriver() Driver {
	return unsupportedDriver{}
}

func (unsupportedDriver) Open(string, Config) (Handle, error) {
	return nil, errUnsupportedPlatform
}
