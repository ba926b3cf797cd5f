package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when a name is absent from the registration table
var ErrNotFound = errors.New("capability not found")

// Args is the argument mapping passed from a caller to a capability
type Args map[string]interface{}

// ErrArgsNotObject is returned by DecodeArgs for JSON that is not an object
var ErrArgsNotObject = errors.New("arguments must be a JSON object")

// DecodeArgs parses one JSON object into Args. Numbers stay json.Number so
// integers outside float64 precision reach the capability unchanged.
func DecodeArgs(data []byte) (Args, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var decoded interface{}
	if err := decoder.Decode(&decoded); err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON value")
	}

	args, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, ErrArgsNotObject
	}
	return Args(args), nil
}

// Result is the object a capability returns on success
type Result map[string]interface{}

// Capability is a unit of work identified by name
type Capability interface {
	Run(ctx context.Context, args Args) (Result, error)
}

// Describer is implemented by capabilities that carry their own metadata
type Describer interface {
	Description() string
	InputSchema() map[string]interface{}
}

// Func adapts a plain function to the Capability interface
type Func func(ctx context.Context, args Args) (Result, error)

// Run calls f
func (f Func) Run(ctx context.Context, args Args) (Result, error) {
	return f(ctx, args)
}

// Descriptor is the metadata advertised for a capability
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Unit is a capability unit loaded from the discovery source
type Unit struct {
	Name        string
	Path        string
	Kind        string
	Description string
	Schema      map[string]interface{}
	Version     string
	Command     []string
	Config      map[string]interface{}
}

// Factory builds a Capability for a unit. Factories are called on every
// resolve, so they must be cheap and must not hold resources between calls.
type Factory func(unit Unit) (Capability, error)

// DefaultDescription returns the synthesized description for name
func DefaultDescription(name string) string {
	return fmt.Sprintf("Execute %s tool", name)
}

// DefaultSchema returns the permissive schema used when a capability has none
func DefaultSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"params": map[string]interface{}{
				"type":        "object",
				"description": "Tool parameters",
			},
		},
	}
}

// DefaultDescriptor returns the synthesized Descriptor for name
func DefaultDescriptor(name string) Descriptor {
	return Descriptor{
		Name:        name,
		Description: DefaultDescription(name),
		InputSchema: DefaultSchema(),
	}
}
