package tracing

import (
	"context"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for the caller's request ID
	RequestIDKey ContextKey = "request_id"
	// InvocationIDKey is the context key for the invocation ID
	InvocationIDKey ContextKey = "invocation_id"
	// SessionIDKey is the context key for a message-stream session
	SessionIDKey ContextKey = "session_id"
	// TransportKey is the context key for the adapter that received the call
	TransportKey ContextKey = "transport"
)

// TraceContext holds correlation identifiers for one call
type TraceContext struct {
	RequestID    string
	InvocationID string
	SessionID    string
	Transport    string
}

// NewRequestID generates a new request ID
func NewRequestID() string {
	return uuid.New().String()
}

// NewSessionID generates a new session ID
func NewSessionID() string {
	return uuid.New().String()
}

// NewInvocationID generates a short invocation ID
func NewInvocationID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return uuid.New().String()
	}
	return id
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithInvocationID adds an invocation ID to the context
func WithInvocationID(ctx context.Context, invocationID string) context.Context {
	return context.WithValue(ctx, InvocationIDKey, invocationID)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithTransport records which adapter received the call
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, TransportKey, transport)
}

func getString(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// GetInvocationID retrieves the invocation ID from the context
func GetInvocationID(ctx context.Context) string {
	return getString(ctx, InvocationIDKey)
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	return getString(ctx, SessionIDKey)
}

// GetTransport retrieves the transport name from the context
func GetTransport(ctx context.Context) string {
	return getString(ctx, TransportKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		RequestID:    GetRequestID(ctx),
		InvocationID: GetInvocationID(ctx),
		SessionID:    GetSessionID(ctx),
		Transport:    GetTransport(ctx),
	}
}

// NewRequestContext returns ctx carrying requestID, or a fresh one when empty
func NewRequestContext(ctx context.Context, transport, requestID string) context.Context {
	if requestID == "" {
		requestID = NewRequestID()
	}
	ctx = WithRequestID(ctx, requestID)
	return WithTransport(ctx, transport)
}
