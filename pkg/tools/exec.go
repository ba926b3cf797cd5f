package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/toolgate/pkg/capability"
	"github.com/harun/toolgate/pkg/sandbox"
)

// execCapability runs an external program. The arguments are written to its
// stdin as one JSON object and its stdout must be one JSON object.
type execCapability struct {
	name    string
	command []string
	dir     string
	timeout time.Duration
	env     map[string]string
	runner  sandbox.Runner
}

func newExec(unit capability.Unit, runner sandbox.Runner) (*execCapability, error) {
	if runner == nil {
		return nil, fmt.Errorf("exec kind requires a sandbox")
	}
	if len(unit.Command) == 0 {
		return nil, fmt.Errorf("exec unit %s has no command", unit.Name)
	}
	timeout, err := unitDuration(unit, "timeout", 0)
	if err != nil {
		return nil, err
	}

	env := map[string]string{}
	if raw, ok := unit.Config["env"].(map[string]interface{}); ok {
		for k, v := range raw {
			env[k] = fmt.Sprint(v)
		}
	}

	dir := ""
	if unit.Path != "" {
		dir = filepath.Dir(unit.Path)
	}

	return &execCapability{
		name:    unit.Name,
		command: unit.Command,
		dir:     dir,
		timeout: timeout,
		env:     env,
		runner:  runner,
	}, nil
}

func (c *execCapability) Run(ctx context.Context, args capability.Args) (capability.Result, error) {
	input, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}

	result, err := c.runner.Execute(ctx, sandbox.ExecuteRequest{
		Command:    c.command[0],
		Args:       c.command[1:],
		Env:        c.env,
		WorkingDir: c.dir,
		Stdin:      input,
		Timeout:    c.timeout,
	})
	if err != nil {
		return nil, err
	}

	if result.ExitCode != 0 {
		stderr := strings.TrimSpace(string(result.Stderr))
		if stderr == "" {
			stderr = strings.TrimSpace(string(result.Stdout))
		}
		return nil, fmt.Errorf("%s exited with status %d: %s", c.name, result.ExitCode, stderr)
	}

	var out capability.Result
	decoder := json.NewDecoder(bytes.NewReader(result.Stdout))
	decoder.UseNumber()
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("%s produced invalid output: %w", c.name, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s produced invalid output: expected a JSON object", c.name)
	}

	return out, nil
}
