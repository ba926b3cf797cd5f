package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/toolgate/pkg/capability"
	"github.com/harun/toolgate/pkg/sandbox"
)

type shellArgs struct {
	Command    string `json:"command" jsonschema:"description=The shell command to execute"`
	WorkingDir string `json:"working_dir,omitempty" jsonschema:"description=Optional working directory for the command"`
}

var shellSchema = capability.ReflectSchema(&shellArgs{})

type shellCapability struct {
	name    string
	runner  sandbox.Runner
	timeout time.Duration
}

func newShell(unit capability.Unit, runner sandbox.Runner) (*shellCapability, error) {
	if runner == nil {
		return nil, fmt.Errorf("shell kind requires a sandbox")
	}
	timeout, err := unitDuration(unit, "timeout", 0)
	if err != nil {
		return nil, err
	}
	return &shellCapability{name: unit.Name, runner: runner, timeout: timeout}, nil
}

func (c *shellCapability) Description() string {
	return "Execute a shell command and return its output"
}

func (c *shellCapability) InputSchema() map[string]interface{} {
	return shellSchema
}

func (c *shellCapability) Run(ctx context.Context, args capability.Args) (capability.Result, error) {
	command := stringArg(args, "command")
	if strings.TrimSpace(command) == "" {
		return capability.Result{"tool": c.name, "error": "Missing 'command' parameter"}, nil
	}

	if err := c.runner.Guard(command); err != nil {
		return capability.Result{"tool": c.name, "error": err.Error()}, nil
	}

	result, err := c.runner.Execute(ctx, sandbox.ExecuteRequest{
		Command:       "sh",
		Args:          []string{"-c", command},
		WorkingDir:    stringArg(args, "working_dir"),
		Timeout:       c.timeout,
		CombineOutput: true,
	})
	if err != nil {
		var timeoutErr *sandbox.TimeoutError
		if errors.As(err, &timeoutErr) {
			return capability.Result{"tool": c.name, "error": fmt.Sprintf("command timed out after %s", timeoutErr.After)}, nil
		}
		if errors.Is(err, sandbox.ErrFilesystemAccessDenied) {
			return capability.Result{"tool": c.name, "error": err.Error()}, nil
		}
		return nil, err
	}

	output := strings.TrimSpace(string(result.Stdout))
	if result.ExitCode != 0 {
		return capability.Result{
			"tool":      c.name,
			"error":     output,
			"exit_code": result.ExitCode,
		}, nil
	}

	out := capability.Result{"tool": c.name, "result": output}
	if result.Truncated {
		out["truncated"] = true
	}
	return out, nil
}
