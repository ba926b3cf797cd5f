// Package httpapi serves the capability table over plain HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/harun/toolgate/internal/metrics"
	"github.com/harun/toolgate/pkg/capability"
	"github.com/harun/toolgate/pkg/dispatch"
	"github.com/rs/zerolog"
)

// Failure status policies
const (
	// FailureStatusAlways200 reports every envelope with status 200; callers
	// inspect the error key
	FailureStatusAlways200 = "always_200"

	// FailureStatusMapped maps dispatcher failures to 404, 422 and 500
	FailureStatusMapped = "mapped"
)

const defaultMaxBodyBytes = 1 << 20

// Dispatcher runs invocations and lists the capability table
type Dispatcher interface {
	Execute(ctx context.Context, name string, args capability.Args) dispatch.Outcome
	Names() []string
	ListDescriptors() []capability.Descriptor
}

// Options configures the HTTP server
type Options struct {
	Host               string
	Port               int
	FailureStatus      string
	RateLimitPerMinute int
	MaxBodyBytes       int64
	ShutdownTimeout    time.Duration

	Dispatcher Dispatcher
	Metrics    *metrics.Metrics

	// Stream serves GET /mcp when set
	Stream http.Handler

	Logger zerolog.Logger
}

// Server is the HTTP transport
type Server struct {
	options     Options
	dispatcher  Dispatcher
	metrics     *metrics.Metrics
	rateLimiter *RateLimiter
	handler     http.Handler
	logger      zerolog.Logger
	startTime   time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new HTTP server
func NewServer(options Options) (*Server, error) {
	if options.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.Port < 0 || options.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", options.Port)
	}
	switch options.FailureStatus {
	case "":
		options.FailureStatus = FailureStatusAlways200
	case FailureStatusAlways200, FailureStatusMapped:
	default:
		return nil, fmt.Errorf("invalid failure status policy %q", options.FailureStatus)
	}
	if options.MaxBodyBytes <= 0 {
		options.MaxBodyBytes = defaultMaxBodyBytes
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		options:    options,
		dispatcher: options.Dispatcher,
		metrics:    options.Metrics,
		logger:     options.Logger.With().Str("component", "http").Logger(),
		startTime:  time.Now(),
	}
	if options.RateLimitPerMinute > 0 {
		s.rateLimiter = NewRateLimiter(options.RateLimitPerMinute)
	}
	s.handler = s.routes()

	return s, nil
}

// Handler returns the root handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /run/{tool}", s.handleRun)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.options.Stream != nil {
		mux.Handle("GET /mcp", s.options.Stream)
	}

	return s.withRequestID(s.withMetrics(s.withShutdown(mux)))
}

// Addr returns the bound address once the server is listening
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start listens and serves until Stop is called
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.server = server
	s.listener = listener
	s.mu.Unlock()

	// Stop ran before the server was published
	s.shutdownMu.RLock()
	stopped := s.isShuttingDown
	s.shutdownMu.RUnlock()
	if stopped {
		listener.Close()
		return nil
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting HTTP server")

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	ctx, cancel := context.WithTimeout(ctx, s.options.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
