// Package app wires toolgate services using go.uber.org/dig.
package app

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"go.uber.org/dig"

	"github.com/harun/toolgate/internal/config"
	"github.com/harun/toolgate/internal/metrics"
	"github.com/harun/toolgate/pkg/capability"
	"github.com/harun/toolgate/pkg/dispatch"
	"github.com/harun/toolgate/pkg/httpapi"
	"github.com/harun/toolgate/pkg/mcp"
	"github.com/harun/toolgate/pkg/records"
	"github.com/harun/toolgate/pkg/sandbox"
	"github.com/harun/toolgate/pkg/tools"
)

// Version is reported by the MCP initialize handshake
var Version = "dev"

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	config     *config.Config
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	records    *records.Store
	registry   *capability.Registry
	dispatcher *dispatch.Dispatcher
	mcpServer  *mcp.Server
	httpServer *httpapi.Server
}

func (c *Container) Config() *config.Config           { return c.config }
func (c *Container) Logger() zerolog.Logger           { return c.logger }
func (c *Container) Metrics() *metrics.Metrics        { return c.metrics }
func (c *Container) Registry() *capability.Registry   { return c.registry }
func (c *Container) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }
func (c *Container) MCPServer() *mcp.Server           { return c.mcpServer }
func (c *Container) HTTPServer() *httpapi.Server      { return c.httpServer }
func (c *Container) RecordStore() *records.Store      { return c.records }

// New builds and wires all services from cfg. The registry table is empty
// until the caller reloads it.
func New(cfg *config.Config, logger zerolog.Logger) (*Container, error) {
	d := dig.New()

	providers := []interface{}{
		func() *config.Config { return cfg },
		func() zerolog.Logger { return logger },
		metrics.NewMetrics,
		newRecordStore,
		newSandbox,
		newHTTPClient,
		newRegistry,
		newDispatcher,
		newMCPServer,
		newHTTPServer,
	}
	for _, provider := range providers {
		if err := d.Provide(provider); err != nil {
			return nil, fmt.Errorf("failed to provide service: %w", err)
		}
	}

	var result *Container
	err := d.Invoke(func(
		m *metrics.Metrics,
		store *records.Store,
		registry *capability.Registry,
		dispatcher *dispatch.Dispatcher,
		mcpServer *mcp.Server,
		httpServer *httpapi.Server,
	) {
		result = &Container{
			config:     cfg,
			logger:     logger,
			metrics:    m,
			records:    store,
			registry:   registry,
			dispatcher: dispatcher,
			mcpServer:  mcpServer,
			httpServer: httpServer,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build services: %w", dig.RootCause(err))
	}

	return result, nil
}

// Close releases resources owned by the container
func (c *Container) Close() error {
	if c.records != nil {
		return c.records.Close()
	}
	return nil
}

// newRecordStore opens the db kind's store; nil when disabled
func newRecordStore(cfg *config.Config, logger zerolog.Logger) (*records.Store, error) {
	if !cfg.Records.Enabled {
		return nil, nil
	}
	return records.Open(records.Config{
		DBPath: cfg.Records.DBPath,
		Logger: logger,
	})
}

func newSandbox(cfg *config.Config, logger zerolog.Logger) (sandbox.Runner, error) {
	return sandbox.NewHostSandbox(cfg.Sandbox, logger)
}

func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Tools.WebFetch.Timeout}
}

func newRegistry(
	cfg *config.Config,
	logger zerolog.Logger,
	store *records.Store,
	runner sandbox.Runner,
	client *http.Client,
) *capability.Registry {
	deps := tools.Deps{
		Sandbox:    runner,
		HTTPClient: client,
		Config: tools.Config{
			Weather: tools.WeatherConfig{
				APIKey:  cfg.Tools.Weather.APIKey,
				BaseURL: cfg.Tools.Weather.BaseURL,
			},
			Generate: tools.GenerateConfig{
				Provider:  cfg.Tools.Generate.Provider,
				Model:     cfg.Tools.Generate.Model,
				APIKey:    cfg.Tools.Generate.APIKey,
				BaseURL:   cfg.Tools.Generate.BaseURL,
				MaxTokens: cfg.Tools.Generate.MaxTokens,
			},
			WebFetch: tools.WebFetchConfig{
				MaxChars: cfg.Tools.WebFetch.MaxChars,
				Timeout:  cfg.Tools.WebFetch.Timeout,
			},
		},
		Logger: logger,
	}
	if store != nil {
		deps.Records = store
	}

	return capability.NewRegistry(capability.Options{
		Dir:     cfg.Discovery.Dir,
		Suffix:  cfg.Discovery.Suffix,
		Exclude: cfg.Discovery.Exclude,
		Kinds:   tools.Builtins(deps),
		Logger:  logger,
	})
}

func newDispatcher(cfg *config.Config, logger zerolog.Logger, registry *capability.Registry, m *metrics.Metrics) *dispatch.Dispatcher {
	return dispatch.New(dispatch.Options{
		Registry:          registry,
		ValidateArguments: cfg.Dispatch.ValidateArguments,
		Metrics:           m,
		Logger:            logger,
	})
}

func newMCPServer(cfg *config.Config, logger zerolog.Logger, dispatcher *dispatch.Dispatcher, m *metrics.Metrics) (*mcp.Server, error) {
	return mcp.NewServer(mcp.Config{
		Name:           "toolgate",
		Version:        Version,
		Dispatcher:     dispatcher,
		Metrics:        m,
		AllowedOrigins: cfg.MCP.AllowedOrigins,
		Logger:         logger,
	})
}

func newHTTPServer(cfg *config.Config, logger zerolog.Logger, dispatcher *dispatch.Dispatcher, mcpServer *mcp.Server, m *metrics.Metrics) (*httpapi.Server, error) {
	opts := httpapi.Options{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		FailureStatus:      cfg.Server.FailureStatus,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
		Dispatcher:         dispatcher,
		Metrics:            m,
		Logger:             logger,
	}
	if cfg.MCP.WebSocket {
		opts.Stream = mcpServer
	}
	return httpapi.NewServer(opts)
}
