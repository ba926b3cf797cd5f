package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/toolgate/internal/metrics"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/capability"
	"github.com/harun/toolgate/pkg/dispatch"
	"github.com/rs/zerolog"
)

// DefaultServerName is reported in serverInfo when none is configured
const DefaultServerName = "toolgate"

// Dispatcher runs invocations and lists descriptors
type Dispatcher interface {
	Invoke(ctx context.Context, name string, args capability.Args) dispatch.Envelope
	ListDescriptors() []capability.Descriptor
}

// Config holds server configuration
type Config struct {
	Name           string
	Version        string
	Dispatcher     Dispatcher
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server answers MCP requests for any number of sessions
type Server struct {
	info       ServerInfo
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	router     *Router
	sessions   *SessionRegistry
	upgrader   websocket.Upgrader
	logger     zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlight       sync.WaitGroup
}

// NewServer creates a new MCP server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultServerName
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		info:       ServerInfo{Name: cfg.Name, Version: cfg.Version},
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		router:     NewRouter(),
		sessions:   NewSessionRegistry(),
		logger:     cfg.Logger.With().Str("component", "mcp").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
	}

	if err := s.registerBuiltinMethods(); err != nil {
		return nil, err
	}

	return s, nil
}

// Router exposes the method table so callers can register extra methods
func (s *Server) Router() *Router {
	return s.router
}

// Sessions returns information about every open session
func (s *Server) Sessions() []SessionInfo {
	return s.sessions.List()
}

// HandleMessage processes one raw message for a session and returns the
// response to send, or nil when none is due
func (s *Server) HandleMessage(ctx context.Context, sess *Session, data []byte) *Response {
	req, err := ParseRequest(data)
	if err != nil {
		rpcErr := err.(*RPCError)
		s.countMessage("_invalid")
		s.logger.Debug().Str("session_id", sess.ID).Int("code", rpcErr.Code).Msg("Rejected message")
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		return errorResponse(id, rpcErr)
	}

	method := req.Method
	if !s.router.HasMethod(method) {
		method = "_unknown"
	}
	s.countMessage(method)

	ctx = tracing.WithSessionID(ctx, sess.ID)
	ctx = tracing.WithTransport(ctx, sess.Transport)
	ctx = withSession(ctx, sess)

	s.sessions.Touch(sess.ID)

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("method", req.Method).
		Bool("notification", req.IsNotification()).
		Msg("Message received")

	return s.router.Route(ctx, req)
}

func (s *Server) countMessage(method string) {
	if s.metrics != nil {
		s.metrics.MCPMessagesTotal.WithLabelValues(method).Inc()
	}
}

// NotifyToolsChanged tells every initialized session that the tool list
// changed
func (s *Server) NotifyToolsChanged() {
	note := Notification{JSONRPC: JSONRPCVersion, Method: "notifications/tools/list_changed"}
	for _, sess := range s.sessions.All() {
		if !sess.Initialized() {
			continue
		}
		if err := sess.Send(note); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to send list_changed notification")
		}
	}
}

// Shutdown stops accepting sessions, closes open websocket sessions and waits
// for in-flight messages to finish
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	for _, sess := range s.sessions.All() {
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All MCP sessions drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain MCP sessions: %w", ctx.Err())
	}
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

func (s *Server) openSession(transport string, send func(v interface{}) error, closeFn func() error) *Session {
	sess := newSession(tracing.NewSessionID(), transport, send, closeFn)
	s.sessions.Add(sess)
	if s.metrics != nil {
		s.metrics.MCPSessionsActive.Inc()
	}
	s.logger.Info().Str("session_id", sess.ID).Str("transport", transport).Msg("Session opened")
	return sess
}

func (s *Server) closeSession(sess *Session) {
	s.sessions.Remove(sess.ID)
	if s.metrics != nil {
		s.metrics.MCPSessionsActive.Dec()
	}
	s.logger.Info().
		Str("session_id", sess.ID).
		Str("transport", sess.Transport).
		Dur("duration", time.Since(sess.ConnectedAt)).
		Msg("Session closed")
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
