// Package daemon runs the toolgate adapters and keeps the capability table
// fresh while they serve.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harun/toolgate/internal/app"
	"github.com/harun/toolgate/internal/config"
	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/capability"
)

// Reload triggers
const (
	TriggerStartup  = "startup"
	TriggerWatch    = "watch"
	TriggerSchedule = "schedule"
)

// Daemon owns the service container and the background reload loops
type Daemon struct {
	config    *config.Config
	logger    zerolog.Logger
	container *app.Container
	lifecycle *LifecycleManager
	auditOn   bool

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status is a snapshot of the daemon state
type Status struct {
	Running   bool          `json:"running"`
	Uptime    time.Duration `json:"uptime"`
	StartTime time.Time     `json:"start_time"`
	Tools     int           `json:"tools"`
}

// New builds the service container for cfg
func New(cfg *config.Config, logger zerolog.Logger) (*Daemon, error) {
	d := &Daemon{
		config:    cfg,
		logger:    logger.With().Str("component", "daemon").Logger(),
		lifecycle: NewLifecycleManager(cfg.DataDir, logger),
	}

	if cfg.Audit.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		if err := observability.InitAuditLogger(cfg.Audit.File); err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		d.auditOn = true
	}

	if cfg.Records.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Records.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create records directory: %w", err)
		}
	}

	container, err := app.New(cfg, logger)
	if err != nil {
		d.closeAudit()
		return nil, err
	}
	d.container = container

	return d, nil
}

// Container returns the wired services
func (d *Daemon) Container() *app.Container {
	return d.container
}

// Lifecycle returns the PID file manager
func (d *Daemon) Lifecycle() *LifecycleManager {
	return d.lifecycle
}

// Serve runs the HTTP adapter, with the message stream mounted at /mcp when
// enabled, until ctx is done or the server fails
func (d *Daemon) Serve(ctx context.Context) error {
	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}
	defer func() {
		if err := d.lifecycle.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
		}
	}()

	httpServer := d.container.HTTPServer()
	mcpServer := d.container.MCPServer()

	return d.run(ctx,
		func(context.Context) error {
			return httpServer.Start()
		},
		func(ctx context.Context) error {
			// websocket sessions first so the HTTP drain is not held open by them
			if err := mcpServer.Shutdown(ctx); err != nil {
				d.logger.Warn().Err(err).Msg("MCP sessions did not drain")
			}
			return httpServer.Stop(ctx)
		},
	)
}

// ServeStdio runs one message stream session over r and w until the stream
// ends or ctx is done
func (d *Daemon) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	mcpServer := d.container.MCPServer()

	return d.run(ctx,
		func(ctx context.Context) error {
			return mcpServer.ServeStream(ctx, r, w)
		},
		mcpServer.Shutdown,
	)
}

// run loads the table, starts the reload loops next to serve and calls stop
// once serve returns or ctx is done
func (d *Daemon) run(ctx context.Context, serve func(context.Context) error, stop func(context.Context) error) error {
	if err := d.markRunning(); err != nil {
		return err
	}
	defer d.markStopped()

	if err := d.Reload(ctx, TriggerStartup); err != nil {
		return fmt.Errorf("failed to load capabilities: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	registry := d.container.Registry()

	if d.config.Discovery.Watch {
		watcher, err := capability.NewWatcher(registry, d.logger, d.reloadHook(TriggerWatch))
		if err != nil {
			d.logger.Warn().Err(err).Str("dir", registry.Dir()).Msg("Discovery watcher disabled")
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	if expr := d.config.Discovery.RescanSchedule; expr != "" {
		rescanner, err := capability.NewRescanner(registry, expr, d.logger, d.reloadHook(TriggerSchedule))
		if err != nil {
			return err
		}
		g.Go(func() error { return rescanner.Run(gctx) })
	}

	g.Go(func() error {
		defer cancel()
		return serve(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), d.config.Server.ShutdownTimeout)
		defer stopCancel()
		return stop(stopCtx)
	})

	return g.Wait()
}

// Reload rescans the discovery source and records the outcome
func (d *Daemon) Reload(ctx context.Context, trigger string) error {
	stats, err := d.container.Registry().Reload()
	d.recordReload(ctx, trigger, stats, err)
	return err
}

func (d *Daemon) reloadHook(trigger string) capability.ReloadFunc {
	return func(stats capability.ReloadStats, err error) {
		ctx := tracing.WithTransport(context.Background(), trigger)
		d.recordReload(ctx, trigger, stats, err)

		if err != nil {
			return
		}
		// watch events can change a unit in place, so they always notify
		if trigger == TriggerWatch || len(stats.Added) > 0 || len(stats.Removed) > 0 {
			d.container.MCPServer().NotifyToolsChanged()
		}
	}
}

func (d *Daemon) recordReload(ctx context.Context, trigger string, stats capability.ReloadStats, err error) {
	d.container.Metrics().RecordReload(stats.Total, err)
	observability.RecordReloadAudit(ctx, trigger, stats.Total, err)

	if err != nil {
		d.logger.Error().Err(err).Str("trigger", trigger).Msg("Capability reload failed")
	}
}

func (d *Daemon) markRunning() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.logger.Info().Msg("Starting toolgate")
	return nil
}

func (d *Daemon) markStopped() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.running = false
	d.logger.Info().Msg("toolgate stopped")
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Tools:   d.container.Registry().Len(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Close releases the container and the audit log
func (d *Daemon) Close() error {
	err := d.container.Close()
	d.closeAudit()
	return err
}

func (d *Daemon) closeAudit() {
	if !d.auditOn {
		return
	}
	if err := observability.GetAuditLogger().Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close audit logger")
	}
	d.auditOn = false
}
