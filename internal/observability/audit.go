package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/harun/toolgate/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type         string                 `json:"event_type"`
	Timestamp    time.Time              `json:"timestamp"`
	Tool         string                 `json:"tool,omitempty"`
	Action       string                 `json:"action"` // e.g. "invoke", "reload"
	Status       string                 `json:"status"` // outcome of the action
	RequestID    string                 `json:"request_id,omitempty"`
	InvocationID string                 `json:"invocation_id,omitempty"`
	Transport    string                 `json:"transport,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	TraceID      string                 `json:"trace_id,omitempty"`
}

// AuditLogger records audit events as JSON lines
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	closer io.Closer
}

var (
	auditMu   sync.RWMutex
	auditInst *AuditLogger
)

// NewAuditLogger creates an audit logger writing to w
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// GetAuditLogger returns the global audit logger. Events are discarded until
// InitAuditLogger is called.
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	inst := auditInst
	auditMu.RUnlock()
	if inst != nil {
		return inst
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = NewAuditLogger(io.Discard)
	}
	return auditInst
}

// InitAuditLogger points the global audit logger at the file at path
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	inst := NewAuditLogger(file)
	inst.closer = file

	auditMu.Lock()
	previous := auditInst
	auditInst = inst
	auditMu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return nil
}

// Record emits an audit event and mirrors it onto the active span
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	tc := tracing.FromContext(ctx)
	if event.RequestID == "" {
		event.RequestID = tc.RequestID
	}
	if event.InvocationID == "" {
		event.InvocationID = tc.InvocationID
	}
	if event.Transport == "" {
		event.Transport = tc.Transport
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.tool", event.Tool),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("event_type", event.Type).
		Time("event_time", event.Timestamp).
		Str("action", event.Action).
		Str("status", event.Status)

	if event.Tool != "" {
		entry.Str("tool", event.Tool)
	}
	if event.RequestID != "" {
		entry.Str("request_id", event.RequestID)
	}
	if event.InvocationID != "" {
		entry.Str("invocation_id", event.InvocationID)
	}
	if event.Transport != "" {
		entry.Str("transport", event.Transport)
	}
	if event.TraceID != "" {
		entry.Str("trace_id", event.TraceID)
	}
	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer != nil {
		err := a.closer.Close()
		a.closer = nil
		return err
	}
	return nil
}

// RecordInvocationAudit records the outcome of one capability invocation
func RecordInvocationAudit(ctx context.Context, tool, outcome string, duration time.Duration) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:   "invocation",
		Tool:   tool,
		Action: "invoke",
		Status: outcome,
		Metadata: map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// RecordReloadAudit records a rescan of the discovery source
func RecordReloadAudit(ctx context.Context, trigger string, total int, err error) {
	status := "success"
	metadata := map[string]interface{}{"trigger": trigger, "total": total}
	if err != nil {
		status = "failure"
		metadata["error"] = err.Error()
	}
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "registry",
		Action:   "reload",
		Status:   status,
		Metadata: metadata,
	})
}
