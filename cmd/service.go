package cmd

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/smazurov/camkeep/internal/api"
	"github.com/smazurov/camkeep/internal/camera"
	"github.com/smazurov/camkeep/internal/capture"
	"github.com/smazurov/camkeep/internal/config"
	"github.com/smazurov/camkeep/internal/devices"
	"github.com/smazurov/camkeep/internal/events"
	"github.com/smazurov/camkeep/internal/health"
	"github.com/smazurov/camkeep/internal/led"
	"github.com/smazurov/camkeep/internal/logging"
	"github.com/smazurov/camkeep/internal/metrics"
	"github.com/smazurov/camkeep/internal/nats"
	"github.com/smazurov/camkeep/internal/sink"
	"github.com/smazurov/camkeep/internal/systemd"
)

// Service is the assembled capture daemon: the capture loop plus the
// collaborators that observe it.
type Service struct {
	opts   *Options
	bus    *events.Bus
	probe  *devices.Probe
	latest *sink.Latest
	exec   *sink.Exec
	loop   *capture.Loop

	uevents  *devices.UEventWatcher
	watcher  *config.Watcher[logging.Config]
	server   *api.Server
	leds     *led.Manager
	notifier *systemd.Notifier
	nats     *nats.Publisher

	logger *slog.Logger
}

// NewService wires a service from options. driver is normally camera.NewDriver().
func NewService(opts *Options, driver camera.Driver) (*Service, error) {
	settings, err := opts.Parse()
	if err != nil {
		return nil, err
	}

	s := &Service{
		opts:   opts,
		bus:    events.New(),
		latest: sink.NewLatest(),
		logger: logging.GetLogger("main"),
	}

	var probeOpts []devices.ProbeOption
	if w, err := devices.NewUEventWatcher(logging.GetLogger("devices")); err != nil {
		s.logger.Warn("Device hotplug events unavailable, polling only", "error", err)
	} else {
		s.uevents = w
		probeOpts = append(probeOpts, devices.WithWake(w.Wake()))
	}
	s.probe = devices.NewProbe(logging.GetLogger("devices"), probeOpts...)

	frameSink := sink.Fanout{s.latest}
	if opts.SinkCommand != "" {
		s.exec, err = sink.NewExec(sink.ExecConfig{
			Command: opts.SinkCommand,
			Queue:   opts.SinkQueue,
			Env:     opts.SinkEnv(),
		}, logging.GetLogger("sink"))
		if err != nil {
			return nil, err
		}
		frameSink = append(frameSink, s.exec)
	}

	s.loop = newLoop(settings, driver, s.probe, frameSink, s.bus, 0)

	if opts.Config != "" {
		s.watcher = config.NewConfigWatcher(opts.Config, config.ReadLoggingConfig, logging.GetLogger("config"))
		s.watcher.OnReload(func(cfg logging.Config) {
			logging.UpdateLevels(opts.withModuleOverrides(cfg))
		})
	}

	if opts.Port != "" {
		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Status:       s.loop,
			Devices:      s.probe,
			Snapshot:     s.latest,
			Logs:         logging.GetHistory(),
			EventBus:     s.bus,
		}
		if opts.FeaturesMetrics {
			apiOpts.PrometheusHandler = metrics.Handler()
		}
		s.server = api.NewServer(apiOpts)
	}

	if opts.FeaturesLedControl {
		ledLogger := logging.GetLogger("led")
		s.leds = led.NewManager(led.New(opts.FeaturesLedName, ledLogger), s.bus, ledLogger)
	}

	if opts.NatsURL != "" {
		source := opts.DeviceName
		if source == "" {
			source = settings.Camera.DevicePath()
		}
		s.nats = nats.NewPublisher(opts.NatsURL, source, logging.GetLogger("nats"))
		if err := s.nats.Connect(); err != nil {
			return nil, err
		}
	}

	s.notifier = systemd.NewNotifier(s.bus, logging.GetLogger("systemd"))
	return s, nil
}

// Run starts the collaborators, runs the capture loop until it terminates and
// shuts everything down again.
func (s *Service) Run(ctx context.Context) capture.Outcome {
	bgCtx, stopBackground := context.WithCancel(ctx)
	var wg sync.WaitGroup
	goBackground := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Background task stopped", "task", name, "error", err)
			}
		}()
	}

	unsubscribeMetrics := metrics.Subscribe(s.bus)
	s.notifier.Start()
	if s.leds != nil {
		s.leds.Start()
	}
	if s.nats != nil {
		s.nats.Start(s.bus)
	}
	if s.uevents != nil {
		goBackground("uevents", s.uevents.Run)
	}
	if s.watcher != nil {
		goBackground("config-watcher", s.watcher.Run)
	}
	goBackground("watchdog", func(ctx context.Context) error {
		s.notifier.RunWatchdog(ctx)
		return nil
	})
	if s.server != nil {
		logging.GetHistory().SetHook(func(e logging.Entry) { s.bus.Publish(api.LogEvent(e)) })
		defer logging.GetHistory().SetHook(nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.server.Start(s.opts.Port); err != nil {
				s.logger.Error("HTTP server failed", "error", err)
			}
		}()
	}

	outcome := s.loop.Run(ctx)

	if s.server != nil {
		if err := s.server.Stop(); err != nil {
			s.logger.Warn("Error stopping HTTP server", "error", err)
		}
	}
	if s.exec != nil {
		s.exec.Close()
	}
	if s.leds != nil {
		s.leds.Stop()
	}
	s.notifier.Stop()
	if s.nats != nil {
		s.nats.Close()
	}
	stopBackground()
	wg.Wait()
	unsubscribeMetrics()

	return outcome
}

func newLoop(settings Settings, driver camera.Driver, probe *devices.Probe, frameSink capture.FrameSink, bus *events.Bus, maxFrames uint64) *capture.Loop {
	opener := camera.NewOpener(driver, logging.GetLogger("camera"),
		camera.WithProbe(probe),
		camera.WithWarmup(settings.ReadTimeout),
		camera.WithAttemptHook(capture.AttemptPublisher(bus)))

	return capture.New(capture.Options{
		Probe:         probe,
		Opener:        opener,
		Monitor:       health.NewMonitor(settings.Threshold),
		Sink:          frameSink,
		Camera:        settings.Camera,
		Policy:        settings.Policy,
		AwaitTimeout:  settings.AwaitTimeout,
		AwaitInterval: settings.AwaitInterval,
		FailureDelay:  settings.FailureDelay,
		ReadTimeout:   settings.ReadTimeout,
		MaxFrames:     maxFrames,
		Bus:           bus,
		Logger:        logging.GetLogger("capture"),
	})
}
