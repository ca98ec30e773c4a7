package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/camkeep/internal/api/models"
	"github.com/smazurov/camkeep/internal/capture"
	"github.com/smazurov/camkeep/internal/devices"
	"github.com/smazurov/camkeep/internal/events"
	"github.com/smazurov/camkeep/internal/logging"
	"github.com/smazurov/camkeep/internal/version"
)

// StatusProvider exposes the capture loop state.
type StatusProvider interface {
	Status() capture.Status
}

// DeviceLister enumerates video nodes.
type DeviceLister interface {
	Probe() devices.State
	Devices() []devices.DeviceInfo
}

// LogSource holds recent log entries.
type LogSource interface {
	Entries() []logging.Entry
}

// SnapshotSource holds the most recent frame.
type SnapshotSource interface {
	Snapshot() (frame []byte, at time.Time, seq uint64, ok bool)
}

// Options wires the API to the rest of the service. Nil collaborators disable their routes.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Status            StatusProvider
	Devices           DeviceLister
	Snapshot          SnapshotSource
	Logs              LogSource
	EventBus          *events.Bus
	PrometheusHandler http.Handler
}

// Server is the HTTP API.
type Server struct {
	api      huma.API
	mux      *http.ServeMux
	options  *Options
	eventBus *events.Bus
	logger   *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

// NewServer creates the API on a Go 1.22+ ServeMux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("camkeep API", version.String())
	config.Info.Description = "Camera connection status, devices and latest frame"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the listener and any open SSE connections.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.mu.Lock()
	s.stopped = true
	srv := s.httpServer
	s.mu.Unlock()

	if srv != nil {
		return srv.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Report whether the camera is streaming",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		state := capture.StateInitializing
		if s.options.Status != nil {
			state = s.options.Status.Status().State
		}
		return &models.HealthResponse{
			Body: models.HealthData{
				Status: healthStatus(state),
				State:  state.String(),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-logging",
		Method:      http.MethodGet,
		Path:        "/api/logging",
		Summary:     "Logging levels",
		Description: "Effective log level per module, reflecting config reloads",
		Tags:        []string{"system"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LoggingResponse, error) {
		return &models.LoggingResponse{Body: models.LoggingData{Modules: logging.ModuleLevels()}}, nil
	})

	s.registerCaptureRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

func healthStatus(state capture.State) string {
	switch state {
	case capture.StateStreaming:
		return "ok"
	case capture.StateTerminated:
		return "down"
	default:
		return "degraded"
	}
}
