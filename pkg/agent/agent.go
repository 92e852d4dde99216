// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbeema/framectl/pkg/config"
	"github.com/mbeema/framectl/pkg/export"
	"github.com/mbeema/framectl/pkg/health"
	"github.com/mbeema/framectl/pkg/host"
	"github.com/mbeema/framectl/pkg/interop"
	"github.com/mbeema/framectl/pkg/playback"
	"github.com/mbeema/framectl/pkg/signals"
	"go.uber.org/zap"
)

const serviceName = "framectl"

// Agent wires the host, the interop module, the playback source, the health
// server and the exporters together and drives the host at a fixed rate.
// The host and the module are only touched from the tick goroutine.
type Agent struct {
	cfg     atomic.Pointer[config.Config]
	logger  *zap.Logger
	version string

	store        *config.Store
	stats        *health.Stats
	engine       *host.Engine
	bridge       *signals.Bridge
	player       *playback.Engine
	control      *signals.ControlFile
	module       *interop.Module
	healthServer *health.Server
	exporter     *export.Manager

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
}

// Option configures an Agent.
type Option func(*Agent)

// WithVersion sets the version reported by the health server and exporters.
func WithVersion(v string) Option {
	return func(a *Agent) {
		a.version = v
	}
}

// WithEngine drives e instead of a default host engine.
func WithEngine(e *host.Engine) Option {
	return func(a *Agent) {
		a.engine = e
	}
}

// New creates an agent. The playback source is opened here so a bad input
// file fails before anything starts.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Agent, error) {
	a := &Agent{
		logger:  logger,
		version: "dev",
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cfg.Store(cfg)

	a.store = config.NewStore(cfg)
	a.stats = health.NewStats()
	if a.engine == nil {
		a.engine = host.NewEngine(logger.Named("host"))
	}
	a.bridge = signals.NewBridge(nil)

	if cfg.Playback.Enabled {
		if err := a.openPlayback(&cfg.Playback); err != nil {
			return nil, err
		}
	}

	a.module = interop.New(a.store, a.bridge, a.stats, logger.Named("interop"))

	if cfg.Health.Enabled {
		a.healthServer = health.NewServer(cfg.Health.Port, a.version, a.stats, logger.Named("health"))
	}

	a.exporter = export.NewManager(&cfg.Exporters, a.stats, serviceName, a.version, logger.Named("export"))

	return a, nil
}

func (a *Agent) openPlayback(cfg *config.PlaybackConfig) error {
	switch {
	case cfg.File != "":
		script, err := playback.ParseFile(cfg.File)
		if err != nil {
			return fmt.Errorf("load playback: %w", err)
		}
		a.player = playback.NewEngine(a.engine.Input, a.logger.Named("playback"))
		a.player.Load(script)
		a.bridge.Attach(a.player)
		a.logger.Info("playback file loaded",
			zap.String("file", cfg.File),
			zap.Int("frames", script.Total),
			zap.Int("markers", len(script.Markers)),
		)
	case cfg.ControlDir != "":
		cf, err := signals.CreateControlFile(cfg.ControlDir)
		if err != nil {
			return fmt.Errorf("create control file: %w", err)
		}
		a.control = cf
		a.bridge.Attach(cf)
		a.logger.Info("control file created", zap.String("path", cf.Path()))
	}
	return nil
}

// Start loads the module into the host and begins ticking.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("agent already started")
	}

	if err := a.module.Load(a.engine); err != nil {
		return fmt.Errorf("load module: %w", err)
	}
	if a.player != nil {
		a.player.Start()
	}

	if a.healthServer != nil {
		a.healthServer.SetStateFunc(func() any {
			return struct {
				Controller any                     `json:"controller"`
				Features   []interop.FeatureStatus `json:"features"`
			}{a.module.State(), a.module.Features()}
		})
		if err := a.healthServer.Start(ctx); err != nil {
			a.module.Unload()
			return fmt.Errorf("start health server: %w", err)
		}
	}

	if err := a.exporter.Start(ctx); err != nil {
		a.logger.Warn("export manager failed to start", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.started = true

	hostCfg := a.cfg.Load().Host
	a.wg.Add(1)
	go a.run(ctx, hostCfg)

	if a.healthServer != nil {
		a.healthServer.SetReady(true)
	}

	a.logger.Info("agent started",
		zap.Int("tick_rate", hostCfg.TickRate),
		zap.Int("frames", hostCfg.Frames),
		zap.Bool("playback", a.bridge.Available()),
	)
	return nil
}

// run ticks the host until ctx is cancelled or the frame limit is reached.
func (a *Agent) run(ctx context.Context, cfg config.HostConfig) {
	defer a.wg.Done()
	defer close(a.done)

	rate := cfg.TickRate
	if rate <= 0 {
		rate = 60
	}
	interval := time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.engine.Tick(interval)
			if cfg.Frames > 0 && a.engine.Frame() >= uint64(cfg.Frames) {
				a.logger.Info("frame limit reached", zap.Uint64("frames", a.engine.Frame()))
				return
			}
		}
	}
}

// Done is closed when the tick loop exits.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Stats returns the controller counters.
func (a *Agent) Stats() *health.Stats {
	return a.stats
}

// Module returns the interop module.
func (a *Agent) Module() *interop.Module {
	return a.module
}

// Stop halts the tick loop, unloads the module and shuts down the servers.
func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.started = false

	if a.healthServer != nil {
		a.healthServer.SetReady(false)
	}

	a.cancel()
	a.wg.Wait()

	if err := a.module.Unload(); err != nil {
		a.logger.Error("module unload failed", zap.Error(err))
	}
	a.engine.WaitThreads()

	if a.player != nil {
		a.player.Stop()
	}
	if a.control != nil {
		if err := a.control.Close(); err != nil {
			a.logger.Warn("control file close failed", zap.Error(err))
		}
		a.control.Remove()
	}

	if a.healthServer != nil {
		if err := a.healthServer.Stop(); err != nil {
			a.logger.Warn("health server stop failed", zap.Error(err))
		}
	}

	if err := a.exporter.Stop(); err != nil {
		a.logger.Warn("export manager stop failed", zap.Error(err))
	}

	snap := a.stats.Snapshot()
	a.logger.Info("agent stopped",
		zap.Int64("real_frames", snap.RealFrames),
		zap.Int64("burst_iterations", snap.BurstIterations),
		zap.Int64("frame_steps", snap.FrameSteps),
		zap.Int64("exports", a.exporter.Exported()),
	)
	return nil
}

// Reload publishes new settings. The controller picks them up at the start
// of the next real frame. Visual toggles flipped by hotkeys survive unless
// the file changes that toggle. Host, playback and server settings need a
// restart.
func (a *Agent) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	old := a.cfg.Load()
	a.cfg.Store(cfg)
	a.store.Replace(withLiveToggles(old, cfg, a.store.Control()))

	if old.Host != cfg.Host || old.Playback != cfg.Playback || old.Health != cfg.Health {
		a.logger.Warn("host, playback and health settings apply on restart")
	}

	c := cfg.Control
	a.logger.Info("configuration reloaded",
		zap.Bool("enabled", c.Enabled),
		zap.Int("burst_cap", c.BurstCap),
		zap.String("final_iteration", c.FinalIteration),
		zap.Bool("hide_gameplay", c.HideGameplay),
		zap.Bool("disable_achievements", c.DisableAchievements),
	)
	return nil
}

// withLiveToggles returns a copy of next whose hotkey toggles keep their live
// value when the file left them unchanged since prev.
func withLiveToggles(prev, next *config.Config, live *config.ControlConfig) *config.Config {
	out := *next
	keep := func(was, now, cur bool) bool {
		if was != now {
			return now
		}
		return cur
	}
	out.Control.ShowHitboxes = keep(prev.Control.ShowHitboxes, next.Control.ShowHitboxes, live.ShowHitboxes)
	out.Control.ShowPathfinding = keep(prev.Control.ShowPathfinding, next.Control.ShowPathfinding, live.ShowPathfinding)
	out.Control.HideGameplay = keep(prev.Control.HideGameplay, next.Control.HideGameplay, live.HideGameplay)
	return &out
}
