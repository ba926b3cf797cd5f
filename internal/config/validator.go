package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/harun/toolgate/pkg/capability"
	"github.com/harun/toolgate/pkg/sandbox"
)

// Validator validates configuration values
type Validator struct {
	structs *validator.Validate
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json field names so messages match the config file
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{structs: v}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateFailureStatus validates the HTTP failure status policy
func (v *Validator) ValidateFailureStatus(policy string) error {
	switch policy {
	case FailureStatusAlways200, FailureStatusMapped:
		return nil
	}
	return fmt.Errorf("invalid failure status policy: %s (must be one of: %s, %s)", policy, FailureStatusAlways200, FailureStatusMapped)
}

// ValidateRescanSchedule validates the periodic rescan schedule; empty disables it
func (v *Validator) ValidateRescanSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := capability.ParseSchedule(expr)
	return err
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.structs.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []error{fmt.Errorf("failed to validate config: %w", err)}
		}
		for _, fe := range fieldErrs {
			errs = append(errs, fieldError(fe))
		}
	}

	if err := v.ValidateRescanSchedule(cfg.Discovery.RescanSchedule); err != nil {
		errs = append(errs, fmt.Errorf("discovery.rescan_schedule: %w", err))
	}

	if err := sandbox.ValidateConfig(cfg.Sandbox); err != nil {
		errs = append(errs, fmt.Errorf("sandbox: %w", err))
	}

	for i, origin := range cfg.MCP.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, fmt.Errorf("mcp.allowed_origins[%d]: origin cannot be empty", i))
		}
	}

	if strings.ContainsAny(cfg.Discovery.Suffix, `/\`) {
		errs = append(errs, fmt.Errorf("discovery.suffix: %q cannot contain path separators", cfg.Discovery.Suffix))
	}

	return errs
}

// fieldError renders a validator failure with the config key path
func fieldError(fe validator.FieldError) error {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", key)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %v", key, fe.Param(), fe.Value())
	case "min":
		return fmt.Errorf("%s must be >= %s, got %v", key, fe.Param(), fe.Value())
	case "max":
		return fmt.Errorf("%s must be <= %s, got %v", key, fe.Param(), fe.Value())
	case "url":
		return fmt.Errorf("%s must be a valid URL, got %v", key, fe.Value())
	default:
		return fmt.Errorf("%s failed '%s' check", key, fe.Tag())
	}
}
