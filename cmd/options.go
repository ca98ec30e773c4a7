package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/camkeep/internal/camera"
	"github.com/smazurov/camkeep/internal/config"
	"github.com/smazurov/camkeep/internal/logging"
)

// Options for the CLI - flat structure with toml mapping.
// Durations are strings such as "5s" so they can live in TOML, env and flags alike.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"camkeep.toml"`

	// Server settings
	Port         string `help:"HTTP API listen address, empty disables the API" short:"p" default:":8091" toml:"server.port" env:"SERVER_PORT"`
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Device settings
	DeviceIndex         int    `help:"V4L2 device index (/dev/videoN)" default:"0" toml:"device.index" env:"DEVICE_INDEX"`
	DeviceID            string `help:"Stable device id or /dev path, overrides the index" default:"" toml:"device.id" env:"DEVICE_ID"`
	DeviceName          string `help:"Identity string passed to the sink command" default:"" toml:"device.name" env:"DEVICE_NAME"`
	DeviceAwaitTimeout  string `help:"How long to wait for a video device at startup" default:"30s" toml:"device.await_timeout" env:"DEVICE_AWAIT_TIMEOUT"`
	DeviceAwaitInterval string `help:"Device probe interval while waiting" default:"2s" toml:"device.await_interval" env:"DEVICE_AWAIT_INTERVAL"`

	// Camera settings
	CameraWidth       int    `help:"Capture width" default:"320" toml:"camera.width" env:"CAMERA_WIDTH"`
	CameraHeight      int    `help:"Capture height" default:"240" toml:"camera.height" env:"CAMERA_HEIGHT"`
	CameraFramerate   int    `help:"Target frames per second" default:"15" toml:"camera.fps" env:"CAMERA_FPS"`
	CameraFormat      string `help:"Pixel format (mjpeg, yuyv)" default:"mjpeg" toml:"camera.format" env:"CAMERA_FORMAT"`
	CameraReadTimeout string `help:"Wait for one frame before counting a failed read" default:"2s" toml:"camera.read_timeout" env:"CAMERA_READ_TIMEOUT"`

	// Retry settings
	RetryMaxAttempts  int    `help:"Open attempts before giving up" default:"5" toml:"retry.max_attempts" env:"RETRY_MAX_ATTEMPTS"`
	RetryBaseDelay    string `help:"Wait before the first open attempt" default:"5s" toml:"retry.base_delay" env:"RETRY_BASE_DELAY"`
	RetryGrowthFactor string `help:"Backoff multiplier per attempt" default:"1.4" toml:"retry.growth_factor" env:"RETRY_GROWTH_FACTOR"`
	RetryMaxDelay     string `help:"Backoff cap" default:"60s" toml:"retry.max_delay" env:"RETRY_MAX_DELAY"`
	RetrySettleDelay  string `help:"Pause between release and reopen on reconnect" default:"1s" toml:"retry.settle_delay" env:"RETRY_SETTLE_DELAY"`

	// Health settings
	HealthFailureThreshold int    `help:"Consecutive failed reads that trigger a reconnect" default:"5" toml:"health.failure_threshold" env:"HEALTH_FAILURE_THRESHOLD"`
	HealthFailureDelay     string `help:"Pause after a failed read" default:"500ms" toml:"health.failure_delay" env:"HEALTH_FAILURE_DELAY"`

	// Sink settings
	SinkCommand string `help:"Command that receives frames on stdin" default:"" toml:"sink.command" env:"SINK_COMMAND"`
	SinkQueue   int    `help:"Frames buffered for the sink command before dropping" default:"4" toml:"sink.queue" env:"SINK_QUEUE"`
	UploadURL   string `help:"Upload endpoint passed to the sink command" default:"" toml:"upload.url" env:"UPLOAD_URL"`
	UploadToken string `help:"Upload credential passed to the sink command" default:"" toml:"upload.token" env:"UPLOAD_TOKEN"`

	// NATS settings
	NatsURL string `help:"NATS server to mirror capture events to, empty disables" default:"" toml:"nats.url" env:"NATS_URL"`

	// Features settings
	FeaturesLedControl bool   `help:"Mirror capture state on the board status LED" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	FeaturesLedName    string `help:"Override the status LED sysfs name" default:"" toml:"features.led_name" env:"FEATURES_LED_NAME"`
	FeaturesMetrics    bool   `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"features.metrics_enabled" env:"FEATURES_METRICS"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture string `help:"Capture loop logging level" default:"" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingCamera  string `help:"Camera open logging level" default:"" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingDevices string `help:"Device probe logging level" default:"" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingAPI     string `help:"API logging level" default:"" toml:"logging.api" env:"LOGGING_API"`
}

// Settings are Options parsed into the types the service consumes.
type Settings struct {
	Camera        camera.Config
	Policy        camera.RetryPolicy
	Threshold     int
	AwaitTimeout  time.Duration
	AwaitInterval time.Duration
	ReadTimeout   time.Duration
	FailureDelay  time.Duration
}

// Parse validates the options and converts them to Settings.
func (o *Options) Parse() (Settings, error) {
	var s Settings
	var errs []string
	duration := func(name, value string) time.Duration {
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid duration %q", name, value))
		}
		return d
	}

	growth, err := strconv.ParseFloat(o.RetryGrowthFactor, 64)
	if err != nil || growth < 1 {
		errs = append(errs, fmt.Sprintf("retry.growth_factor: must be a number >= 1, got %q", o.RetryGrowthFactor))
	}

	s.Camera = camera.Config{
		Width:       o.CameraWidth,
		Height:      o.CameraHeight,
		FPS:         o.CameraFramerate,
		DeviceIndex: o.DeviceIndex,
		Device:      o.DeviceID,
		PixelFormat: strings.ToLower(o.CameraFormat),
	}
	s.Policy = camera.RetryPolicy{
		MaxAttempts:  o.RetryMaxAttempts,
		BaseDelay:    duration("retry.base_delay", o.RetryBaseDelay),
		GrowthFactor: growth,
		MaxDelay:     duration("retry.max_delay", o.RetryMaxDelay),
		SettleDelay:  duration("retry.settle_delay", o.RetrySettleDelay),
		Granularity:  time.Second,
	}
	s.Threshold = o.HealthFailureThreshold
	s.AwaitTimeout = duration("device.await_timeout", o.DeviceAwaitTimeout)
	s.AwaitInterval = duration("device.await_interval", o.DeviceAwaitInterval)
	s.ReadTimeout = duration("camera.read_timeout", o.CameraReadTimeout)
	s.FailureDelay = duration("health.failure_delay", o.HealthFailureDelay)

	if o.RetryMaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts: must be at least 1")
	}
	if o.HealthFailureThreshold < 1 {
		errs = append(errs, "health.failure_threshold: must be at least 1")
	}
	if o.CameraWidth <= 0 || o.CameraHeight <= 0 || o.CameraFramerate <= 0 {
		errs = append(errs, "camera: width, height and fps must be positive")
	}
	if s.Camera.PixelFormat != camera.FormatMJPEG && s.Camera.PixelFormat != camera.FormatYUYV {
		errs = append(errs, fmt.Sprintf("camera.format: unsupported %q", o.CameraFormat))
	}

	if len(errs) > 0 {
		return Settings{}, fmt.Errorf("invalid options: %s", strings.Join(errs, "; "))
	}
	return s, nil
}

// LoggingConfig merges the [logging.modules] table with per-module options.
func (o *Options) LoggingConfig() logging.Config {
	cfg := config.LoadLoggingConfig(o.Config)
	cfg.Level = o.LoggingLevel
	cfg.Format = o.LoggingFormat
	return o.withModuleOverrides(cfg)
}

// withModuleOverrides applies module levels set through flags or env on top of cfg.
func (o *Options) withModuleOverrides(cfg logging.Config) logging.Config {
	if cfg.Modules == nil {
		cfg.Modules = make(map[string]string)
	}
	for module, level := range map[string]string{
		"capture": o.LoggingCapture,
		"camera":  o.LoggingCamera,
		"devices": o.LoggingDevices,
		"api":     o.LoggingAPI,
	} {
		if level != "" {
			cfg.Modules[module] = level
		}
	}
	return cfg
}

// SinkEnv returns identity and upload settings for the sink command, unmodified.
func (o *Options) SinkEnv() []string {
	var env []string
	for key, value := range map[string]string{
		"CAMKEEP_DEVICE_NAME":  o.DeviceName,
		"CAMKEEP_UPLOAD_URL":   o.UploadURL,
		"CAMKEEP_UPLOAD_TOKEN": o.UploadToken,
	} {
		if value != "" {
			env = append(env, key+"="+value)
		}
	}
	return env
}
