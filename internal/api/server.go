package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/graymedia/mediaserver/internal/audit"
	"github.com/graymedia/mediaserver/internal/auth"
	"github.com/graymedia/mediaserver/internal/infrastructure/config"
	"github.com/graymedia/mediaserver/internal/infrastructure/logging"
	"github.com/graymedia/mediaserver/internal/server"
	"github.com/graymedia/mediaserver/internal/telemetry"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests.
const gracefulShutdownTimeout = 10 * time.Second

// MediaServer is the part of *server.Server the API reads and controls.
type MediaServer interface {
	Identity() server.Identity
	State() server.State
	Inspect(fn func(*server.Registry)) bool
	Advertise() error
}

// StatsSource supplies dispatch and advertisement counters.
type StatsSource interface {
	Stats() telemetry.Stats
}

// HealthChecker is implemented by the infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	// Media is the UPnP server. Required.
	Media MediaServer

	// Stats is optional; /api/v1/stats answers 404 without it.
	Stats StatsSource

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Checks are reported by /api/v1/health under their map key.
	Checks map[string]HealthChecker

	// Hub is shared with the telemetry recorder so it can broadcast.
	// When nil the server creates its own.
	Hub *Hub

	// Audit records logins and control actions. Nil disables both the
	// recording and /api/v1/audit.
	Audit audit.Repository

	Version string
}

// Server is the admin HTTP API server.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	media     MediaServer
	stats     StatsSource
	gatherer  prometheus.Gatherer
	checks    map[string]HealthChecker
	hub       *Hub
	audit     audit.Repository
	version   string
	startTime time.Time

	// tokens is nil when no JWT secret is configured.
	tokens  *auth.TokenIssuer
	account auth.Account

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates an API server. It does not listen until Start.
//
// Parameters:
//   - deps: Logger and Media are required
//
// Returns:
//   - *Server: Configured server
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Media == nil {
		return nil, fmt.Errorf("media server is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		media:     deps.Media,
		stats:     deps.Stats,
		gatherer:  deps.Gatherer,
		checks:    deps.Checks,
		hub:       deps.Hub,
		audit:     deps.Audit,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	s.hub.SetSnapshot(s.channelSnapshot)

	if jwt := deps.Security.JWT; jwt.Secret != "" {
		s.tokens = &auth.TokenIssuer{
			Secret: jwt.Secret,
			Issuer: jwt.Issuer,
			TTL:    time.Duration(jwt.AccessTokenTTL) * time.Minute,
		}
		s.account = auth.Account{
			Username:     deps.Security.Admin.Username,
			PasswordHash: deps.Security.Admin.PasswordHash,
			Role:         auth.RoleAdmin,
		}
	}
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler { return s.buildRouter() }

// Start listens on the configured host and port and serves in the
// background. Listen errors are returned synchronously.
//
// Parameters:
//   - ctx: Parent of the hub's lifetime
//
// Returns:
//   - error: If the listener cannot be created
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	tls := s.cfg.TLS
	go func() {
		var err error
		if tls.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", tls.CertFile)
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the hub and shuts the listener down, waiting up to ten
// seconds for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the API server is serving.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
