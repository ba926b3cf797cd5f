package tools

import (
	"context"

	"github.com/harun/toolgate/pkg/capability"
)

// newEcho returns the arguments under "result". It carries no metadata of
// its own, so it is advertised with the default descriptor.
func newEcho(name string) capability.Func {
	return func(ctx context.Context, args capability.Args) (capability.Result, error) {
		return capability.Result{
			"tool":   name,
			"result": map[string]interface{}(args),
		}, nil
	}
}
