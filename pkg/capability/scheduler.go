package capability

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ParseSchedule validates a rescan schedule. Standard five-field expressions
// and descriptors such as "@every 5m" are accepted.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid rescan schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Rescanner reloads a registry on a fixed schedule
type Rescanner struct {
	registry *Registry
	schedule cron.Schedule
	expr     string
	logger   zerolog.Logger
	onReload ReloadFunc
}

// NewRescanner creates a rescanner for expr
func NewRescanner(registry *Registry, expr string, logger zerolog.Logger, onReload ReloadFunc) (*Rescanner, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	return &Rescanner{
		registry: registry,
		schedule: sched,
		expr:     expr,
		logger:   logger.With().Str("component", "registry-rescanner").Logger(),
		onReload: onReload,
	}, nil
}

// Run reloads on schedule until ctx is done
func (s *Rescanner) Run(ctx context.Context) error {
	c := cron.New()
	c.Schedule(s.schedule, cron.FuncJob(s.rescan))
	c.Start()

	s.logger.Info().Str("schedule", s.expr).Msg("Periodic rescan started")

	<-ctx.Done()
	<-c.Stop().Done()

	s.logger.Info().Msg("Periodic rescan stopped")
	return nil
}

func (s *Rescanner) rescan() {
	stats, err := s.registry.Reload()
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled rescan failed")
	}
	if s.onReload != nil {
		s.onReload(stats, err)
	}
}
