package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/harun/toolgate/pkg/capability"
)

// Envelope is the JSON object returned to callers for every invocation.
// Success and failure are distinguished only by the presence of "error".
type Envelope map[string]interface{}

// IsFailure reports whether the envelope carries an error
func (e Envelope) IsFailure() bool {
	_, ok := e["error"]
	return ok
}

// FailureKind is the closed set of dispatcher-level failures
type FailureKind string

const (
	// NotFound means the name was absent from the registry
	NotFound FailureKind = "not_found"
	// InvocationFailure means resolving or running the capability failed
	InvocationFailure FailureKind = "invocation_failure"
	// ValidationError means the arguments did not satisfy the input schema
	ValidationError FailureKind = "validation_error"
)

// Failure describes why an invocation did not produce a capability result.
// Cause keeps the original error for logs; only Message reaches the caller.
type Failure struct {
	Kind       FailureKind
	Message    string
	Violations []string
	Cause      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Outcome is the full result of an invocation
type Outcome struct {
	Envelope     Envelope
	Failure      *Failure
	Duration     time.Duration
	InvocationID string
}

// Label classifies the outcome for metrics and audit records. A capability
// that reports its own error inside a successful result is a tool_error.
func (o Outcome) Label() string {
	if o.Failure != nil {
		return string(o.Failure.Kind)
	}
	if o.Envelope.IsFailure() {
		return "tool_error"
	}
	return "success"
}

func notFound(name string, cause error) Outcome {
	return Outcome{
		Envelope: Envelope{"error": fmt.Sprintf("Tool '%s' not found.", name)},
		Failure: &Failure{
			Kind:    NotFound,
			Message: fmt.Sprintf("Tool '%s' not found.", name),
			Cause:   cause,
		},
	}
}

func invocationFailure(cause error) Outcome {
	return Outcome{
		Envelope: Envelope{"error": cause.Error()},
		Failure: &Failure{
			Kind:    InvocationFailure,
			Message: cause.Error(),
			Cause:   cause,
		},
	}
}

func validationFailure(name string, violations []string) Outcome {
	message := "invalid arguments: " + strings.Join(violations, "; ")
	return Outcome{
		Envelope: Envelope{
			"tool":       name,
			"error":      message,
			"violations": violations,
		},
		Failure: &Failure{
			Kind:       ValidationError,
			Message:    message,
			Violations: violations,
		},
	}
}

func success(result capability.Result) Outcome {
	if result == nil {
		result = capability.Result{}
	}
	return Outcome{Envelope: Envelope(result)}
}
