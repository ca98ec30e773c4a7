package camera

import (
	"fmt"
	"math"
	"time"
)

// Pixel formats accepted in Config.PixelFormat.
const (
	FormatMJPEG = "mjpeg"
	FormatYUYV  = "yuyv"
)

// Config describes the capture mode requested for every open attempt.
type Config struct {
	Width       int
	Height      int
	FPS         int
	DeviceIndex int
	Device      string // stable id or /dev path, overrides DeviceIndex when set
	PixelFormat string
}

// DefaultConfig returns the lightweight mode used on small boards.
func DefaultConfig() Config {
	return Config{
		Width:       320,
		Height:      240,
		FPS:         15,
		PixelFormat: FormatMJPEG,
	}
}

// DevicePath returns the node the config points at when no stable id is set.
func (c Config) DevicePath() string {
	if c.Device != "" {
		return c.Device
	}
	return fmt.Sprintf("/dev/video%d", c.DeviceIndex)
}

// RetryPolicy controls the initial multi-attempt open.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	GrowthFactor float64
	MaxDelay     time.Duration // 0 = unbounded
	SettleDelay  time.Duration // pause before a reconnect attempt
	Granularity  time.Duration // delays are rounded to this unit, 0 = exact; ignored when BaseDelay is smaller
}

// DefaultRetryPolicy waits 5, 7, 10, 14 and 19 seconds before its five attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		BaseDelay:    5 * time.Second,
		GrowthFactor: 1.4,
		MaxDelay:     60 * time.Second,
		SettleDelay:  time.Second,
		Granularity:  time.Second,
	}
}

// Delay returns the wait preceding attempt i (zero based).
//
// Delay(i) = BaseDelay * GrowthFactor^i, rounded to Granularity and capped at MaxDelay.
// A BaseDelay below Granularity is not rounded at all.
// For GrowthFactor > 1 the sequence keeps increasing until it reaches the cap.
func (p RetryPolicy) Delay(i int) time.Duration {
	if i < 0 {
		i = 0
	}
	var prev time.Duration
	var d time.Duration
	for n := 0; n <= i; n++ {
		d = p.rawDelay(n)
		if n > 0 && p.GrowthFactor > 1 && d <= prev {
			// rounding swallowed the growth
			step := p.granularity()
			if step <= 0 {
				step = 1
			}
			d = prev + step
		}
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
		}
		prev = d
	}
	return d
}

// Delays returns the full sequence for MaxAttempts attempts.
func (p RetryPolicy) Delays() []time.Duration {
	out := make([]time.Duration, 0, p.MaxAttempts)
	for i := 0; i < p.MaxAttempts; i++ {
		out = append(out, p.Delay(i))
	}
	return out
}

func (p RetryPolicy) rawDelay(i int) time.Duration {
	growth := p.GrowthFactor
	if growth <= 0 {
		growth = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(growth, float64(i)))
	if g := p.granularity(); g > 0 {
		d = d.Round(g)
	}
	return d
}

func (p RetryPolicy) granularity() time.Duration {
	if p.BaseDelay < p.Granularity {
		return 0
	}
	return p.Granularity
}
