package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/toolgate/internal/metrics"
	"github.com/harun/toolgate/pkg/capability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

type strictCapability struct{}

func (strictCapability) Run(ctx context.Context, args capability.Args) (capability.Result, error) {
	return capability.Result{"tool": "strict", "city": args["city"]}, nil
}

func (strictCapability) Description() string { return "Requires a city" }

func (strictCapability) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"city"},
		"properties": map[string]interface{}{
			"city": map[string]interface{}{"type": "string"},
		},
	}
}

func newTestDispatcher(t *testing.T, validate bool) (*Dispatcher, *capability.Registry, *metrics.Metrics) {
	t.Helper()

	registry := capability.NewRegistry(capability.Options{
		Dir:    t.TempDir(),
		Logger: testLogger(),
	})
	_, err := registry.Reload()
	require.NoError(t, err)

	m := metrics.NewMetrics()
	d := New(Options{
		Registry:          registry,
		ValidateArguments: validate,
		Metrics:           m,
		Logger:            testLogger(),
	})
	return d, registry, m
}

func echo(name string) capability.Func {
	return func(ctx context.Context, args capability.Args) (capability.Result, error) {
		return capability.Result{"tool": name, "result": map[string]interface{}(args)}, nil
	}
}

func TestDispatcher_EchoScenario(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, true)
	require.NoError(t, registry.Register("echo", echo("echo")))

	outcome := d.Execute(context.Background(), "echo", capability.Args{"x": 1})

	assert.Nil(t, outcome.Failure)
	assert.NotEmpty(t, outcome.InvocationID)
	assert.Equal(t, Envelope{"tool": "echo", "result": map[string]interface{}{"x": 1}}, outcome.Envelope)

	data, err := json.Marshal(outcome.Envelope)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tool":"echo","result":{"x":1}}`, string(data))
}

func TestDispatcher_MissingScenario(t *testing.T) {
	d, _, m := newTestDispatcher(t, true)

	for _, name := range []string{"missing", "", "../etc/passwd"} {
		outcome := d.Execute(context.Background(), name, capability.Args{})

		require.NotNil(t, outcome.Failure)
		assert.Equal(t, NotFound, outcome.Failure.Kind)
		assert.Equal(t, Envelope{"error": fmt.Sprintf("Tool '%s' not found.", name)}, outcome.Envelope)
		assert.NotContains(t, outcome.Envelope, "tool")
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.InvocationsTotal.WithLabelValues(unknownToolLabel, "not_found")))
}

func TestDispatcher_FailingScenario(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, true)
	require.NoError(t, registry.Register("boom", capability.Func(func(ctx context.Context, args capability.Args) (capability.Result, error) {
		return nil, errors.New("bad")
	})))
	require.NoError(t, registry.Register("echo", echo("echo")))

	outcome := d.Execute(context.Background(), "boom", capability.Args{})
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, InvocationFailure, outcome.Failure.Kind)
	assert.Equal(t, Envelope{"error": "bad"}, outcome.Envelope)
	assert.EqualError(t, outcome.Failure.Cause, "bad")

	// the dispatcher keeps serving after a failure
	assert.Equal(t, "echo", d.Invoke(context.Background(), "echo", nil)["tool"])
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d, registry, m := newTestDispatcher(t, true)
	require.NoError(t, registry.Register("panics", capability.Func(func(ctx context.Context, args capability.Args) (capability.Result, error) {
		var counts map[string]int
		counts["boom"]++
		return nil, nil
	})))

	var envelope Envelope
	require.NotPanics(t, func() {
		envelope = d.Invoke(context.Background(), "panics", capability.Args{})
	})
	require.Contains(t, envelope, "error")
	assert.Contains(t, envelope["error"], "assignment to entry in nil map")
	assert.Len(t, envelope, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvocationsTotal.WithLabelValues("panics", "invocation_failure")))
}

func TestDispatcher_PanicMessages(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, false)
	require.NoError(t, registry.Register("panics_error", capability.Func(func(ctx context.Context, args capability.Args) (capability.Result, error) {
		panic(errors.New("bad"))
	})))
	require.NoError(t, registry.Register("panics_value", capability.Func(func(ctx context.Context, args capability.Args) (capability.Result, error) {
		panic(42)
	})))

	assert.Equal(t, Envelope{"error": "bad"}, d.Invoke(context.Background(), "panics_error", nil))
	assert.Equal(t, Envelope{"error": "panic: 42"}, d.Invoke(context.Background(), "panics_value", nil))
}

func TestDispatcher_NilResultIsEmptyObject(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, true)
	require.NoError(t, registry.Register("quiet", capability.Func(func(ctx context.Context, args capability.Args) (capability.Result, error) {
		return nil, nil
	})))

	envelope := d.Invoke(context.Background(), "quiet", nil)
	require.NotNil(t, envelope)
	assert.Empty(t, envelope)

	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestDispatcher_ResultIsReturnedVerbatim(t *testing.T) {
	d, registry, m := newTestDispatcher(t, true)
	require.NoError(t, registry.Register("weather", capability.Func(func(ctx context.Context, args capability.Args) (capability.Result, error) {
		return capability.Result{"tool": "weather", "error": "City not found"}, nil
	})))

	outcome := d.Execute(context.Background(), "weather", nil)

	assert.Nil(t, outcome.Failure)
	assert.Equal(t, Envelope{"tool": "weather", "error": "City not found"}, outcome.Envelope)
	assert.Equal(t, "tool_error", outcome.Label())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvocationsTotal.WithLabelValues("weather", "tool_error")))
}

func TestDispatcher_ArgumentValidation(t *testing.T) {
	t.Run("rejects arguments that violate the schema", func(t *testing.T) {
		d, registry, _ := newTestDispatcher(t, true)
		require.NoError(t, registry.Register("strict", strictCapability{}))

		outcome := d.Execute(context.Background(), "strict", capability.Args{"city": 42})

		require.NotNil(t, outcome.Failure)
		assert.Equal(t, ValidationError, outcome.Failure.Kind)
		assert.Equal(t, "strict", outcome.Envelope["tool"])
		assert.Contains(t, outcome.Envelope["error"], "invalid arguments: ")
		assert.Len(t, outcome.Envelope["violations"], 1)
	})

	t.Run("missing required field", func(t *testing.T) {
		d, registry, _ := newTestDispatcher(t, true)
		require.NoError(t, registry.Register("strict", strictCapability{}))

		outcome := d.Execute(context.Background(), "strict", nil)
		require.NotNil(t, outcome.Failure)
		assert.Equal(t, ValidationError, outcome.Failure.Kind)
	})

	t.Run("accepts valid arguments", func(t *testing.T) {
		d, registry, _ := newTestDispatcher(t, true)
		require.NoError(t, registry.Register("strict", strictCapability{}))

		envelope := d.Invoke(context.Background(), "strict", capability.Args{"city": "Oslo"})
		assert.Equal(t, Envelope{"tool": "strict", "city": "Oslo"}, envelope)
	})

	t.Run("advisory when disabled", func(t *testing.T) {
		d, registry, _ := newTestDispatcher(t, false)
		require.NoError(t, registry.Register("strict", strictCapability{}))

		outcome := d.Execute(context.Background(), "strict", capability.Args{"city": 42})
		assert.Nil(t, outcome.Failure)
		assert.Equal(t, 42, outcome.Envelope["city"])
	})

	t.Run("default schema accepts arbitrary arguments", func(t *testing.T) {
		d, registry, _ := newTestDispatcher(t, true)
		require.NoError(t, registry.Register("echo", echo("echo")))

		outcome := d.Execute(context.Background(), "echo", capability.Args{"anything": []interface{}{1, 2}})
		assert.Nil(t, outcome.Failure)
	})
}

func TestDispatcher_RunIsNotCancelledWithCaller(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, true)
	require.NoError(t, registry.Register("slow", capability.Func(func(ctx context.Context, args capability.Args) (capability.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
			return capability.Result{"tool": "slow", "done": true}, nil
		}
	})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	envelope := d.Invoke(ctx, "slow", nil)
	assert.Equal(t, Envelope{"tool": "slow", "done": true}, envelope)
}

func TestDispatcher_ConcurrentInvocations(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, true)

	const n = 20
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("tool%02d", i)
		if i%2 == 0 {
			require.NoError(t, registry.Register(name, capability.Func(func(ctx context.Context, args capability.Args) (capability.Result, error) {
				time.Sleep(5 * time.Millisecond)
				return nil, fmt.Errorf("%s failed", name)
			})))
			continue
		}
		require.NoError(t, registry.Register(name, echo(name)))
	}

	envelopes := make([]Envelope, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			envelopes[i] = d.Invoke(context.Background(), fmt.Sprintf("tool%02d", i), capability.Args{"i": i})
		}(i)
	}
	wg.Wait()

	for i, envelope := range envelopes {
		name := fmt.Sprintf("tool%02d", i)
		if i%2 == 0 {
			assert.Equal(t, Envelope{"error": name + " failed"}, envelope)
			continue
		}
		assert.Equal(t, Envelope{"tool": name, "result": map[string]interface{}{"i": i}}, envelope)
	}
}

func TestDispatcher_ResolveFailureFromUnit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mystery.yaml"), []byte("kind: mystery\n"), 0644))

	registry := capability.NewRegistry(capability.Options{Dir: dir, Logger: testLogger()})
	_, err := registry.Reload()
	require.NoError(t, err)

	d := New(Options{Registry: registry, ValidateArguments: true, Logger: testLogger()})

	outcome := d.Execute(context.Background(), "mystery", nil)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, InvocationFailure, outcome.Failure.Kind)
	assert.Equal(t, Envelope{"error": "unknown capability kind 'mystery'"}, outcome.Envelope)
}

type brokenDescriber struct{}

func (brokenDescriber) Run(ctx context.Context, args capability.Args) (capability.Result, error) {
	return capability.Result{"tool": "broken"}, nil
}

func (brokenDescriber) Description() string { panic("no metadata") }

func (brokenDescriber) InputSchema() map[string]interface{} { return nil }

func TestDispatcher_ListDescriptors(t *testing.T) {
	d, registry, _ := newTestDispatcher(t, true)
	require.NoError(t, registry.Register("echo", echo("echo")))
	require.NoError(t, registry.Register("strict", strictCapability{}))
	require.NoError(t, registry.Register("broken", brokenDescriber{}))

	descriptors := d.ListDescriptors()
	require.Len(t, descriptors, 3)

	assert.Equal(t, capability.DefaultDescriptor("broken"), descriptors[0])
	assert.Equal(t, capability.DefaultDescriptor("echo"), descriptors[1])
	assert.Equal(t, "strict", descriptors[2].Name)
	assert.Equal(t, "Requires a city", descriptors[2].Description)

	assert.Equal(t, []string{"broken", "echo", "strict"}, d.Names())

	// invocation still works for a capability whose metadata is broken
	assert.Equal(t, Envelope{"tool": "broken"}, d.Invoke(context.Background(), "broken", nil))
}

type panickingRegistry struct{}

func (panickingRegistry) ListNames() []string { return []string{"a"} }

func (panickingRegistry) Resolve(name string) (capability.Capability, error) { panic("registry bug") }

func (panickingRegistry) Describe(name string) (capability.Descriptor, error) { panic("registry bug") }

func TestDispatcher_RegistryPanicsAreContained(t *testing.T) {
	d := New(Options{Registry: panickingRegistry{}, Logger: testLogger()})

	assert.Equal(t, []capability.Descriptor{capability.DefaultDescriptor("a")}, d.ListDescriptors())
	assert.Equal(t, Envelope{"error": "panic: registry bug"}, d.Invoke(context.Background(), "a", nil))
}

func TestFailure_Unwrap(t *testing.T) {
	cause := errors.New("bad")
	outcome := invocationFailure(cause)

	assert.ErrorIs(t, outcome.Failure, cause)
	assert.Equal(t, "invocation_failure: bad", outcome.Failure.Error())
}
