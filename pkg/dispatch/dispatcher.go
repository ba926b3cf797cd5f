package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/toolgate/internal/metrics"
	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/capability"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// unknownToolLabel replaces unregistered names in metric labels
const unknownToolLabel = "_unknown"

// Registry is the subset of the capability registry the dispatcher needs
type Registry interface {
	ListNames() []string
	Resolve(name string) (capability.Capability, error)
	Describe(name string) (capability.Descriptor, error)
}

// Options configures a Dispatcher
type Options struct {
	Registry          Registry
	ValidateArguments bool
	Metrics           *metrics.Metrics
	Logger            zerolog.Logger
}

// Dispatcher executes invocations by name and normalizes every outcome into
// an Envelope. It holds no mutable state and is safe for concurrent use.
type Dispatcher struct {
	registry Registry
	validate bool
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates a dispatcher
func New(opts Options) *Dispatcher {
	return &Dispatcher{
		registry: opts.Registry,
		validate: opts.ValidateArguments,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Invoke runs the capability registered under name and returns its envelope
func (d *Dispatcher) Invoke(ctx context.Context, name string, args capability.Args) Envelope {
	return d.Execute(ctx, name, args).Envelope
}

// Execute runs the capability registered under name. It never panics and
// never returns a nil envelope.
func (d *Dispatcher) Execute(ctx context.Context, name string, args capability.Args) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	startTime := time.Now()

	invocationID := tracing.NewInvocationID()
	ctx = tracing.WithInvocationID(ctx, invocationID)
	ctx, span := tracing.StartSpan(ctx, "dispatch.invoke", attribute.String("toolgate.tool", name))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, d.logger).With().Str("tool", name).Logger()

	if args == nil {
		args = capability.Args{}
	}

	outcome := d.execute(ctx, name, args, logger)
	outcome.Duration = time.Since(startTime)
	outcome.InvocationID = invocationID

	label := name
	if outcome.Failure != nil && outcome.Failure.Kind == NotFound {
		label = unknownToolLabel
	}
	d.metrics.RecordInvocation(label, outcome.Label(), outcome.Duration)
	observability.RecordInvocationAudit(ctx, name, outcome.Label(), outcome.Duration)

	if outcome.Failure != nil {
		span.SetStatus(codes.Error, outcome.Failure.Message)
		event := logger.Warn()
		if outcome.Failure.Kind == InvocationFailure {
			event = logger.Error()
		}
		event.
			Str("kind", string(outcome.Failure.Kind)).
			Dur("duration", outcome.Duration).
			AnErr("cause", outcome.Failure.Cause).
			Msg("Invocation failed")
		return outcome
	}

	logger.Debug().
		Str("outcome", outcome.Label()).
		Dur("duration", outcome.Duration).
		Msg("Invocation completed")

	return outcome
}

func (d *Dispatcher) execute(ctx context.Context, name string, args capability.Args, logger zerolog.Logger) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("Capability panicked")
			cause, ok := rec.(error)
			if !ok {
				cause = fmt.Errorf("panic: %v", rec)
			}
			outcome = invocationFailure(cause)
		}
	}()

	c, err := d.registry.Resolve(name)
	if err != nil {
		if errors.Is(err, capability.ErrNotFound) {
			return notFound(name, err)
		}
		return invocationFailure(err)
	}

	if d.validate {
		if violations := d.validateArgs(name, args, logger); len(violations) > 0 {
			return validationFailure(name, violations)
		}
	}

	// in-flight invocations run to completion even if the caller goes away
	result, err := c.Run(tracing.Detach(ctx), args)
	if err != nil {
		return invocationFailure(err)
	}

	return success(result)
}

// validateArgs checks args against the capability's advertised schema. A
// schema that cannot be obtained or compiled disables validation for the call.
func (d *Dispatcher) validateArgs(name string, args capability.Args, logger zerolog.Logger) []string {
	desc, err := d.registry.Describe(name)
	if err != nil {
		logger.Debug().Err(err).Msg("Skipping argument validation")
		return nil
	}

	schema, err := capability.CompileSchema(desc.InputSchema)
	if err != nil {
		logger.Debug().Err(err).Msg("Skipping argument validation")
		return nil
	}

	violations, err := capability.ValidateArgs(schema, args)
	if err != nil {
		logger.Debug().Err(err).Msg("Skipping argument validation")
		return nil
	}
	return violations
}

// Names returns the names of all registered capabilities
func (d *Dispatcher) Names() []string {
	return d.registry.ListNames()
}

// ListDescriptors returns exactly one Descriptor per listed name, in the
// registry's order. Introspection failures yield the default Descriptor.
func (d *Dispatcher) ListDescriptors() []capability.Descriptor {
	names := d.registry.ListNames()

	descriptors := make([]capability.Descriptor, 0, len(names))
	for _, name := range names {
		descriptors = append(descriptors, d.describe(name))
	}
	return descriptors
}

func (d *Dispatcher) describe(name string) (desc capability.Descriptor) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Debug().Str("tool", name).Interface("panic", rec).Msg("Using default descriptor")
			desc = capability.DefaultDescriptor(name)
		}
	}()

	desc, err := d.registry.Describe(name)
	if err != nil {
		d.logger.Debug().Err(err).Str("tool", name).Msg("Using default descriptor")
		return capability.DefaultDescriptor(name)
	}
	return desc
}
