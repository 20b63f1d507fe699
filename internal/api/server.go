package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/countcam/countcam-core/internal/auth"
	"github.com/countcam/countcam-core/internal/device"
	"github.com/countcam/countcam-core/internal/infrastructure/config"
	"github.com/countcam/countcam-core/internal/infrastructure/influxdb"
	"github.com/countcam/countcam-core/internal/infrastructure/logging"
	"github.com/countcam/countcam-core/internal/infrastructure/mqtt"
	"github.com/countcam/countcam-core/internal/metric"
	"github.com/countcam/countcam-core/internal/processing"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CountSource queries historical count readings for a camera. Satisfied by
// *influxdb.Client; nil when metrics storage is disabled.
type CountSource interface {
	QueryCounts(ctx context.Context, deviceID int64, start, stop time.Time) ([]influxdb.CountPoint, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Processing  config.ProcessingConfig
	Logger      *logging.Logger
	Devices     device.Repository
	Groups      device.GroupRepository
	Users       auth.UserRepository
	Lifecycle   *processing.Service
	Counts      CountSource       // optional: count history queries return 503 when nil
	Collector   *metric.Collector // optional: live count broadcast over WebSocket
	MQTT        *mqtt.Client      // optional: only used for health/metrics reporting
	ExternalHub *Hub              // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for CountCam Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	procCfg     config.ProcessingConfig
	logger      *logging.Logger
	devices     device.Repository
	groups      device.GroupRepository
	users       auth.UserRepository
	lifecycle   *processing.Service
	counts      CountSource
	collector   *metric.Collector
	mqtt        *mqtt.Client
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	tickets     *ticketStore
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, repositories, lifecycle service)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Lifecycle == nil {
		return nil, fmt.Errorf("processing service is required")
	}
	// Counts, Collector, and MQTT are optional; the affected endpoints degrade gracefully.

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		procCfg:   deps.Processing,
		logger:    deps.Logger,
		devices:   deps.Devices,
		groups:    deps.Groups,
		users:     deps.Users,
		lifecycle: deps.Lifecycle,
		counts:    deps.Counts,
		collector: deps.Collector,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}

	// Use externally-provided hub if available (needed when another component
	// also broadcasts through it).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, wires lifecycle and count
// events into the hub for real-time broadcast, and launches the HTTP listener
// in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.tickets.cleanLoop(srvCtx)

	// Relay processing-state changes and live counts to WebSocket clients
	s.wireBroadcasts()

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// wireBroadcasts connects the lifecycle service and count collector to the
// WebSocket hub so subscribed clients see changes as they happen.
func (s *Server) wireBroadcasts() {
	s.lifecycle.SetNotifier(func(deviceID int64, state device.ProcessingState, pending bool) {
		s.hub.Broadcast(wsChannelState, map[string]any{
			"device_id":        deviceID,
			"processing_state": state,
			"pending_update":   pending,
		})
	})

	if s.collector != nil {
		s.collector.SetBroadcast(func(r metric.Reading) {
			s.hub.Broadcast(wsChannelCounts, r)
		})
	}
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
