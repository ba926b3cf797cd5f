package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/capability"
	"github.com/harun/toolgate/pkg/dispatch"
)

// InvocationIDHeader reports the id the dispatcher assigned to an invocation
const InvocationIDHeader = "X-Invocation-ID"

// IndexResponse is the JSON form of GET /
type IndexResponse struct {
	Message        string   `json:"message"`
	AvailableTools []string `json:"available_tools"`
}

// handleIndex lists capability names, or renders the index page for browsers
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		s.renderIndex(w, r)
		return
	}

	writeJSON(w, http.StatusOK, IndexResponse{
		Message:        "MCP Server is running",
		AvailableTools: s.dispatcher.Names(),
	})
}

// handleRun invokes one capability with the JSON body as its arguments
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")
	logger := tracing.LoggerFromContext(r.Context(), s.logger)

	if s.rateLimiter != nil {
		ip := clientIP(r)
		if !s.rateLimiter.CheckLimit(ip) {
			retryAfter := s.rateLimiter.GetRetryAfter(ip)
			logger.Warn().Str("ip", ip).Str("tool", tool).Int("retry_after", retryAfter).Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded"})
			return
		}
	}

	args, err := s.readArgs(w, r)
	if err != nil {
		logger.Debug().Err(err).Str("tool", tool).Msg("Rejected request body")
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	outcome := s.dispatcher.Execute(r.Context(), tool, args)
	w.Header().Set(InvocationIDHeader, outcome.InvocationID)

	data, err := json.Marshal(outcome.Envelope)
	if err != nil {
		logger.Error().Err(err).
			Str("tool", tool).
			Str("invocation_id", outcome.InvocationID).
			Msg("Failed to encode result")

		message := "failed to encode result: " + err.Error()
		outcome.Envelope = dispatch.Envelope{"tool": tool, "error": message}
		outcome.Failure = &dispatch.Failure{Kind: dispatch.InvocationFailure, Message: message, Cause: err}
		data, _ = json.Marshal(outcome.Envelope)
	}
	writeBody(w, s.statusFor(outcome), data)
}

// readArgs parses the body as a JSON object regardless of Content-Type. An
// empty body is an empty argument mapping.
func (s *Server) readArgs(w http.ResponseWriter, r *http.Request) (capability.Args, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return capability.Args{}, nil
	}

	args, err := capability.DecodeArgs(body)
	if errors.Is(err, capability.ErrArgsNotObject) {
		return nil, errors.New("request body must be a JSON object")
	}
	if err != nil {
		return nil, errors.New("invalid JSON body: " + err.Error())
	}
	return args, nil
}

// statusFor applies the failure status policy
func (s *Server) statusFor(outcome dispatch.Outcome) int {
	if s.options.FailureStatus != FailureStatusMapped || outcome.Failure == nil {
		return http.StatusOK
	}

	switch outcome.Failure.Kind {
	case dispatch.NotFound:
		return http.StatusNotFound
	case dispatch.ValidationError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"tools":     len(s.dispatcher.Names()),
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

// writeJSON encodes v before writing the status, so a value that cannot be
// encoded still produces a JSON error body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]string{"error": "failed to encode response: " + err.Error()})
	}
	writeBody(w, status, data)
}

func writeBody(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}
