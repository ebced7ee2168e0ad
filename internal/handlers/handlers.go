package handlers

import (
	"log/slog"
	"time"

	"github.com/rcss-tournament/team-builder/internal/builder"
	"github.com/rcss-tournament/team-builder/internal/dispatch"
	"github.com/rcss-tournament/team-builder/internal/state"
)

// Config holds all dependencies needed by the command handlers
type Config struct {
	Logger            *slog.Logger
	State             *state.Manager
	Pipeline          builder.Config
	Deps              builder.Deps
	SubscribeInterval time.Duration
	SubscribeWindow   time.Duration
}

// Service implements the build, kill_build, ping and status commands
type Service struct {
	logger            *slog.Logger
	state             *state.Manager
	pipelineCfg       builder.Config
	deps              builder.Deps
	subscribeInterval time.Duration
	subscribeWindow   time.Duration
}

// NewService creates the command handler service
func NewService(cfg *Config) *Service {
	interval := cfg.SubscribeInterval
	if interval <= 0 {
		interval = time.Second
	}
	window := cfg.SubscribeWindow
	if window <= 0 {
		window = 10 * time.Second
	}

	return &Service{
		logger:            cfg.Logger,
		state:             cfg.State,
		pipelineCfg:       cfg.Pipeline,
		deps:              cfg.Deps,
		subscribeInterval: interval,
		subscribeWindow:   window,
	}
}

// Register binds every command to the dispatcher, each behind its
// required-field guard.
func (s *Service) Register(d *dispatch.Dispatcher) {
	d.Register("build", dispatch.RequireFields(buildRequiredFields, s.Build))
	d.Register("kill_build", dispatch.RequireFields(killRequiredFields, s.KillBuild))
	d.Register("ping", s.Ping)
	d.Register("status", s.Status)
}
