package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext adds the context's correlation identifiers to logger
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	lc := logger.With()
	if tc.RequestID != "" {
		lc = lc.Str("request_id", tc.RequestID)
	}
	if tc.InvocationID != "" {
		lc = lc.Str("invocation_id", tc.InvocationID)
	}
	if tc.SessionID != "" {
		lc = lc.Str("session_id", tc.SessionID)
	}
	if tc.Transport != "" {
		lc = lc.Str("transport", tc.Transport)
	}
	return lc.Logger()
}

// Detach returns a context that keeps ctx's values but is never cancelled
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
