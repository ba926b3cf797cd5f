package sandbox

import (
	"context"
	"time"
)

// Config defines how capability subprocesses run on the host
type Config struct {
	// Timeout is the default wall-clock limit for one execution
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// WorkingDir is the default working directory (empty = current directory)
	WorkingDir string `json:"working_dir" mapstructure:"working_dir"`

	// FilesystemAccess defines working directory rules
	FilesystemAccess FilesystemAccess `json:"filesystem_access" mapstructure:"filesystem_access"`

	// PassEnv lists host environment variables copied into the minimal environment
	PassEnv []string `json:"pass_env" mapstructure:"pass_env"`

	// DenyPatterns are extra regular expressions that block shell commands
	DenyPatterns []string `json:"deny_patterns" mapstructure:"deny_patterns"`

	// MaxOutputBytes caps captured stdout and stderr (0 = unlimited)
	MaxOutputBytes int `json:"max_output_bytes" mapstructure:"max_output_bytes"`
}

// FilesystemAccess defines which working directories may be used
type FilesystemAccess struct {
	// AllowedPaths lists path prefixes that can be used (empty = all)
	AllowedPaths []string `json:"allowed_paths" mapstructure:"allowed_paths"`

	// DeniedPaths lists path prefixes that cannot be used
	DeniedPaths []string `json:"denied_paths" mapstructure:"denied_paths"`
}

// ExecuteRequest represents a sandbox execution request
type ExecuteRequest struct {
	// Command is the program to execute
	Command string

	// Args are the command arguments
	Args []string

	// Env are additional environment variables
	Env map[string]string

	// WorkingDir overrides the configured working directory
	WorkingDir string

	// Stdin is the standard input
	Stdin []byte

	// Timeout overrides the configured timeout
	Timeout time.Duration

	// CombineOutput interleaves stderr into Stdout
	CombineOutput bool
}

// ExecuteResult represents a sandbox execution result
type ExecuteResult struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Runner executes commands on behalf of capabilities
type Runner interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
	Guard(command string) error
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		FilesystemAccess: FilesystemAccess{
			AllowedPaths: []string{},
			DeniedPaths:  []string{"/etc", "/sys", "/proc", "/dev"},
		},
		PassEnv:        []string{"LANG", "TZ"},
		DenyPatterns:   []string{},
		MaxOutputBytes: 1 << 20,
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	if cfg.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if cfg.MaxOutputBytes < 0 {
		return ErrInvalidOutputLimit
	}

	if _, err := compilePatterns(cfg.DenyPatterns); err != nil {
		return err
	}

	return nil
}
