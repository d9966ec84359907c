package api

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"grimm.is/sentinel/internal/clock"
	"grimm.is/sentinel/internal/config"
	"grimm.is/sentinel/internal/engine"
	"grimm.is/sentinel/internal/logging"
	"grimm.is/sentinel/internal/ratelimit"
)

//go:embed spec/openapi.yaml
var openAPISpec []byte

// ServerConfig holds HTTP server limits and timeouts.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

// DefaultServerConfig returns the default server limits.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
		MaxBodyBytes:      1 << 20, // 1MB
	}
}

// Options holds dependencies for the API server.
type Options struct {
	Engine *engine.Engine
	Config *config.Config // normalized; nil selects config.Default()
	Logger *logging.Logger
	Clock  clock.Clock
	// Limiter throttles rule mutations. Nil builds one from api.rate_limit.
	Limiter *ratelimit.Limiter
}

// Server handles API requests.
type Server struct {
	engine  *engine.Engine
	config  *config.Config
	logger  *logging.Logger
	clock   clock.Clock
	limiter *ratelimit.Limiter
	ws      *WSManager
	server  *ServerConfig

	mux *http.ServeMux
}

// NewServer creates the API server and starts forwarding engine events to
// websocket clients. Call Close to stop forwarding.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("api: engine is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Normalize()

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("api")
	clk := clock.Or(opts.Clock)

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(*cfg.API.RateLimit, time.Minute, clk)
	}

	sc := DefaultServerConfig()
	if d := cfg.ReadTimeout(); d > 0 {
		sc.ReadTimeout = d
	}
	if d := cfg.WriteTimeout(); d > 0 {
		sc.WriteTimeout = d
	}

	s := &Server{
		engine:  opts.Engine,
		config:  cfg,
		logger:  logger,
		clock:   clk,
		limiter: limiter,
		server:  sc,
	}
	s.ws = NewWSManager(opts.Engine.Hub(), cfg.API.CORSOrigins, logger)
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	mux := http.NewServeMux()

	// Rules
	mux.HandleFunc("GET /rules", s.handleListRules)
	mux.Handle("POST /rules", s.rateLimit(s.handleCreateRule))
	mux.HandleFunc("GET /rules/{id}", s.handleGetRule)
	mux.Handle("DELETE /rules/{id}", s.rateLimit(s.handleDeleteRule))

	// Pipeline
	mux.HandleFunc("POST /simulate", s.handleSimulate)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /threats", s.handleThreats)
	mux.HandleFunc("GET /report", s.handleReport)

	// Management
	mux.HandleFunc("GET /audit", s.handleAudit)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.ws.ServeHTTP)

	// Public
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	mux.HandleFunc("GET /openapi.yaml", s.handleOpenAPI)
	if s.config.MetricsEnabled() {
		mux.Handle("GET /metrics", s.engine.Metrics().Handler())
	}

	s.mux = mux
}

// Handler returns the HTTP handler with middleware applied.
// Chain: AccessLog -> CORS -> MaxBody -> Mux
func (s *Server) Handler() http.Handler {
	return s.accessLog(s.cors(maxBody(s.server.MaxBodyBytes, s.mux)))
}

// Limiter returns the mutation rate limiter so callers can run its cleanup.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Listen opens addr, capping concurrent connections at api.max_connections.
func (s *Server) Listen(addr string) (net.Listener, error) {
	if addr == "" {
		addr = s.config.API.Listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if max := *s.config.API.MaxConnections; max > 0 {
		ln = netutil.LimitListener(ln, max)
	}
	return ln, nil
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.server.ReadHeaderTimeout,
		ReadTimeout:       s.server.ReadTimeout,
		WriteTimeout:      s.server.WriteTimeout,
		IdleTimeout:       s.server.IdleTimeout,
		MaxHeaderBytes:    s.server.MaxHeaderBytes,
		ErrorLog:          s.logger.StdLogger(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	s.ws.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close stops event forwarding and disconnects websocket clients.
func (s *Server) Close() {
	s.ws.Close()
}
