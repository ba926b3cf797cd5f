package config

import (
	"encoding/json"
	"time"

	"github.com/harun/toolgate/pkg/sandbox"
)

// Failure status policies for the HTTP adapter
const (
	FailureStatusAlways200 = "always_200"
	FailureStatusMapped    = "mapped"
)

// Config represents the main toolgate configuration
type Config struct {
	// HTTP adapter
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Message stream adapter
	MCP MCPConfig `json:"mcp" mapstructure:"mcp"`

	// Discovery source
	Discovery DiscoveryConfig `json:"discovery" mapstructure:"discovery"`

	// Dispatcher
	Dispatch DispatchConfig `json:"dispatch" mapstructure:"dispatch"`

	// Sandbox used by the shell and exec kinds
	Sandbox sandbox.Config `json:"sandbox" mapstructure:"sandbox"`

	// Record store used by the db kind
	Records RecordsConfig `json:"records" mapstructure:"records"`

	// Built-in kind settings
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Audit trail
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP adapter configuration
type ServerConfig struct {
	Host               string        `json:"host" mapstructure:"host" validate:"required"`
	Port               int           `json:"port" mapstructure:"port" validate:"min=0,max=65535"`
	FailureStatus      string        `json:"failure_status" mapstructure:"failure_status" validate:"oneof=always_200 mapped"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute" validate:"min=0"`
	MaxBodyBytes       int64         `json:"max_body_bytes" mapstructure:"max_body_bytes" validate:"min=0"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"min=0"`
}

// MCPConfig holds message stream configuration
type MCPConfig struct {
	// WebSocket exposes the stream at GET /mcp on the HTTP adapter
	WebSocket      bool     `json:"websocket" mapstructure:"websocket"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// DiscoveryConfig holds discovery source configuration
type DiscoveryConfig struct {
	Dir            string   `json:"dir" mapstructure:"dir" validate:"required"`
	Suffix         string   `json:"suffix" mapstructure:"suffix" validate:"required,startswith=."`
	Exclude        []string `json:"exclude" mapstructure:"exclude"`
	Watch          bool     `json:"watch" mapstructure:"watch"`
	RescanSchedule string   `json:"rescan_schedule" mapstructure:"rescan_schedule"`
}

// DispatchConfig holds dispatcher configuration
type DispatchConfig struct {
	ValidateArguments bool `json:"validate_arguments" mapstructure:"validate_arguments"`
}

// RecordsConfig holds record store configuration
type RecordsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	DBPath  string `json:"db_path" mapstructure:"db_path"`
}

// ToolsConfig holds built-in kind configuration
type ToolsConfig struct {
	Weather  WeatherConfig  `json:"weather" mapstructure:"weather"`
	Generate GenerateConfig `json:"generate" mapstructure:"generate"`
	WebFetch WebFetchConfig `json:"web_fetch" mapstructure:"web_fetch"`
}

// WeatherConfig holds weather kind configuration
type WeatherConfig struct {
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
}

// GenerateConfig holds generate kind configuration
type GenerateConfig struct {
	Provider  string `json:"provider" mapstructure:"provider" validate:"omitempty,oneof=anthropic openai"`
	Model     string `json:"model" mapstructure:"model"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	BaseURL   string `json:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens" validate:"min=0,max=200000"`
}

// WebFetchConfig holds web_fetch kind configuration
type WebFetchConfig struct {
	MaxChars int           `json:"max_chars" mapstructure:"max_chars" validate:"min=0"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout" validate:"min=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size" validate:"min=0"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age" validate:"min=0"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	File    string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               8000,
			FailureStatus:      FailureStatusAlways200,
			RateLimitPerMinute: 0,
			MaxBodyBytes:       1 << 20,
			ShutdownTimeout:    30 * time.Second,
		},
		MCP: MCPConfig{
			WebSocket:      true,
			AllowedOrigins: []string{},
		},
		Discovery: DiscoveryConfig{
			Dir:            "tools",
			Suffix:         ".yaml",
			Exclude:        []string{"__*"},
			Watch:          true,
			RescanSchedule: "",
		},
		Dispatch: DispatchConfig{
			ValidateArguments: true,
		},
		Sandbox: sandbox.DefaultConfig(),
		Records: RecordsConfig{
			Enabled: true,
		},
		Tools: ToolsConfig{
			Generate: GenerateConfig{
				Provider:  "anthropic",
				MaxTokens: 1024,
			},
			WebFetch: WebFetchConfig{
				MaxChars: 20000,
				Timeout:  30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Audit: AuditConfig{
			Enabled: false,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks struct constraints and semantic rules, returning the first
// problem found
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
