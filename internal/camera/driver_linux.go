//go:build linux

package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/blackjack/webcam"
)

// V4L2 fourcc codes.
const (
	fourccMJPEG webcam.PixelFormat = 1196444237 // 'MJPG'
	fourccYUYV  webcam.PixelFormat = 1448695129 // 'YUYV'
)

const v4l2BufferCount = 4

// V4L2Driver opens devices through the kernel V4L2 API.
type V4L2Driver struct{}

// NewDriver returns the platform driver.
func NewDriver() Driver {
	return V4L2Driver{}
}

// Open opens path, negotiates the requested mode and starts streaming.
// Any failure after the device node was opened closes it again.
func (V4L2Driver) Open(path string, cfg Config) (Handle, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, err
	}

	if err := configure(cam, cfg); err != nil {
		cam.Close()
		return nil, err
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("start streaming: %w", err)
	}

	return &v4l2Handle{cam: cam}, nil
}

func configure(cam *webcam.Webcam, cfg Config) error {
	format, err := pixelFormat(cfg.PixelFormat)
	if err != nil {
		return err
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		got, _, _, err := cam.SetImageFormat(format, uint32(cfg.Width), uint32(cfg.Height))
		if err != nil {
			return fmt.Errorf("set format %s %dx%d: %w", cfg.PixelFormat, cfg.Width, cfg.Height, err)
		}
		if got != format {
			return fmt.Errorf("device does not support %s", cfg.PixelFormat)
		}
	}

	if cfg.FPS > 0 {
		// Not every driver implements frame intervals; the device default is acceptable.
		_ = cam.SetFramerate(float32(cfg.FPS))
	}

	return cam.SetBufferCount(v4l2BufferCount)
}

func pixelFormat(name string) (webcam.PixelFormat, error) {
	switch name {
	case FormatMJPEG, "":
		return fourccMJPEG, nil
	case FormatYUYV:
		return fourccYUYV, nil
	default:
		return 0, fmt.Errorf("unsupported pixel format %q", name)
	}
}

type v4l2Handle struct {
	cam *webcam.Webcam
}

func (h *v4l2Handle) ReadFrame(timeout time.Duration) ([]byte, error) {
	secs := uint32(timeout / time.Second)
	if secs == 0 {
		secs = 1
	}

	if err := h.cam.WaitForFrame(secs); err != nil {
		var timeoutErr *webcam.Timeout
		if errors.As(err, &timeoutErr) {
			return nil, fmt.Errorf("no frame within %s: %w", timeout, err)
		}
		return nil, err
	}

	frame, err := h.cam.ReadFrame()
	if err != nil {
		return nil, err
	}

	// The mmap buffer is requeued on return.
	out := make([]byte, len(frame))
	copy(out, frame)
	return out, nil
}

func (h *v4l2Handle) Close() error {
	stopErr := h.cam.StopStreaming()
	closeErr := h.cam.Close()
	return errors.Join(stopErr, closeErr)
}
