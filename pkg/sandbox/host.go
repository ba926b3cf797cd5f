package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HostSandbox runs commands as host subprocesses with a minimal environment,
// working directory rules and a wall-clock limit
type HostSandbox struct {
	config       Config
	denyPatterns []*regexp.Regexp
	logger       zerolog.Logger
}

// NewHostSandbox creates a new host-based sandbox
func NewHostSandbox(config Config, logger zerolog.Logger) (*HostSandbox, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	patterns, err := compilePatterns(config.DenyPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HostSandbox{
		config:       config,
		denyPatterns: patterns,
		logger:       logger.With().Str("component", "sandbox").Logger(),
	}, nil
}

// Config returns the sandbox configuration
func (h *HostSandbox) Config() Config {
	return h.config
}

// Guard checks a shell command line against the deny patterns
func (h *HostSandbox) Guard(command string) error {
	return guard(command, h.denyPatterns)
}

// Execute runs a command in the sandbox. A non-zero exit status is reported
// through ExitCode, not as an error.
func (h *HostSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if req.Command == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}

	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = h.config.WorkingDir
	}
	if err := h.checkFilesystemAccess(workingDir); err != nil {
		return ExecuteResult{}, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = h.config.Timeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	cmd.Dir = workingDir
	cmd.Env = h.buildEnvironment(req.Env)
	// children that keep the pipes open must not block Wait past the deadline
	cmd.WaitDelay = time.Second

	stdout := newCappedBuffer(h.config.MaxOutputBytes)
	stderr := newCappedBuffer(h.config.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if req.CombineOutput {
		cmd.Stderr = stdout
	}

	if len(req.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := ExecuteResult{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Duration:  duration,
		Truncated: stdout.truncated || stderr.truncated,
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		h.logger.Warn().
			Str("command", req.Command).
			Dur("timeout", timeout).
			Msg("Command timed out")
		return result, &TimeoutError{After: timeout}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("failed to run %s: %w", req.Command, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	h.logger.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("Command executed in sandbox")

	return result, nil
}

// checkFilesystemAccess checks if a working directory is allowed
func (h *HostSandbox) checkFilesystemAccess(path string) error {
	if path == "" {
		return nil
	}

	cleanPath := filepath.Clean(path)
	if abs, err := filepath.Abs(cleanPath); err == nil {
		cleanPath = abs
	}

	for _, denied := range h.config.FilesystemAccess.DeniedPaths {
		if hasPathPrefix(cleanPath, denied) {
			return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
		}
	}

	if len(h.config.FilesystemAccess.AllowedPaths) == 0 {
		return nil
	}

	for _, allowed := range h.config.FilesystemAccess.AllowedPaths {
		if hasPathPrefix(cleanPath, allowed) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
}

func hasPathPrefix(path, prefix string) bool {
	prefix = filepath.Clean(prefix)
	return path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator))
}

// buildEnvironment builds the environment variables for the command
func (h *HostSandbox) buildEnvironment(env map[string]string) []string {
	result := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + os.TempDir(),
	}

	for _, key := range h.config.PassEnv {
		if value, ok := os.LookupEnv(key); ok {
			result = append(result, key+"="+value)
		}
	}

	for key, value := range env {
		result = append(result, fmt.Sprintf("%s=%s", key, value))
	}

	return result
}

// cappedBuffer keeps at most limit bytes and drops the rest
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if c.limit <= 0 {
		return c.buf.Write(p)
	}
	remaining := c.limit - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		c.buf.Write(p[:remaining])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) Bytes() []byte {
	return c.buf.Bytes()
}
