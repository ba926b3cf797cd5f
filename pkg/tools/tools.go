// Package tools implements the built-in capability kinds a unit can name.
package tools

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/harun/toolgate/pkg/capability"
	"github.com/harun/toolgate/pkg/sandbox"
	"github.com/rs/zerolog"
)

// Kind names
const (
	KindEcho       = "echo"
	KindDB         = "db"
	KindShell      = "shell"
	KindSimpleText = "simple_text"
	KindWeather    = "weather"
	KindGenerate   = "generate"
	KindWebFetch   = "web_fetch"
	KindExec       = "exec"
)

// Config holds settings shared by every unit of a kind. Units may override
// some of them through their manifest config block.
type Config struct {
	Weather  WeatherConfig
	Generate GenerateConfig
	WebFetch WebFetchConfig
}

// WeatherConfig configures the weather kind
type WeatherConfig struct {
	APIKey  string
	BaseURL string
}

// GenerateConfig configures the generate kind
type GenerateConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// WebFetchConfig configures the web_fetch kind
type WebFetchConfig struct {
	MaxChars int
	Timeout  time.Duration
}

// Deps are the collaborators built-in kinds are constructed with
type Deps struct {
	Records    RecordStore
	Sandbox    sandbox.Runner
	HTTPClient *http.Client
	Config     Config
	Logger     zerolog.Logger

	// Intn picks template variants for simple_text; defaults to math/rand
	Intn func(n int) int
}

// Builtins returns the factory table for every built-in kind
func Builtins(deps Deps) map[string]capability.Factory {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.Intn == nil {
		deps.Intn = rand.Intn
	}
	logger := deps.Logger.With().Str("component", "tools").Logger()

	return map[string]capability.Factory{
		KindEcho: func(unit capability.Unit) (capability.Capability, error) {
			return newEcho(unit.Name), nil
		},
		KindDB: func(unit capability.Unit) (capability.Capability, error) {
			return &dbCapability{name: unit.Name, store: deps.Records}, nil
		},
		KindShell: func(unit capability.Unit) (capability.Capability, error) {
			return newShell(unit, deps.Sandbox)
		},
		KindSimpleText: func(unit capability.Unit) (capability.Capability, error) {
			return &simpleTextCapability{name: unit.Name, intn: deps.Intn}, nil
		},
		KindWeather: func(unit capability.Unit) (capability.Capability, error) {
			return newWeather(unit, deps.Config.Weather, deps.HTTPClient), nil
		},
		KindGenerate: func(unit capability.Unit) (capability.Capability, error) {
			return newGenerate(unit, deps.Config.Generate, logger)
		},
		KindWebFetch: func(unit capability.Unit) (capability.Capability, error) {
			return newWebFetch(unit, deps.Config.WebFetch, deps.HTTPClient), nil
		},
		KindExec: func(unit capability.Unit) (capability.Capability, error) {
			return newExec(unit, deps.Sandbox)
		},
	}
}
