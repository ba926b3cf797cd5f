package mcp

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one client connection. Messages on a session are handled in
// arrival order.
type Session struct {
	ID          string
	Transport   string
	ConnectedAt time.Time

	initialized atomic.Bool

	mu            sync.Mutex
	send          func(v interface{}) error
	closeFn       func() error
	clientName    string
	clientVersion string
	lastActivity  time.Time
}

func newSession(id, transport string, send func(v interface{}) error, closeFn func() error) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Transport:    transport,
		ConnectedAt:  now,
		send:         send,
		closeFn:      closeFn,
		lastActivity: now,
	}
}

// Send writes one message to the client. Writes are serialized.
func (s *Session) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(v)
}

// Close closes the underlying connection, if the transport has one
func (s *Session) Close() {
	if s.closeFn != nil {
		_ = s.closeFn()
	}
}

// Initialized reports whether the client completed the handshake
func (s *Session) Initialized() bool {
	return s.initialized.Load()
}

func (s *Session) markInitialized() {
	s.initialized.Store(true)
}

func (s *Session) setClient(name, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientName = name
	s.clientVersion = version
}

// SessionInfo is a snapshot of a session
type SessionInfo struct {
	ID            string    `json:"id"`
	Transport     string    `json:"transport"`
	ClientName    string    `json:"clientName,omitempty"`
	ClientVersion string    `json:"clientVersion,omitempty"`
	Initialized   bool      `json:"initialized"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
}

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:            s.ID,
		Transport:     s.Transport,
		ClientName:    s.clientName,
		ClientVersion: s.clientVersion,
		Initialized:   s.Initialized(),
		ConnectedAt:   s.ConnectedAt,
		LastActivity:  s.lastActivity,
	}
}

// SessionRegistry tracks open sessions
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty session registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Add adds a session to the registry
func (r *SessionRegistry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
}

// Remove removes a session from the registry
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}

// Get retrieves a session by ID
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[id]
	return s, exists
}

// All returns all sessions
func (r *SessionRegistry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Count returns the number of open sessions
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Touch updates the last activity time of a session
func (r *SessionRegistry) Touch(id string) {
	if s, ok := r.Get(id); ok {
		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()
	}
}

// List returns a snapshot of every session ordered by connection time
func (r *SessionRegistry) List() []SessionInfo {
	sessions := r.All()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

type sessionKey struct{}

func withSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
