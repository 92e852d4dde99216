// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package interop activates the frame controller inside a host. Load
// installs every feature; a feature whose hook conflicts or whose render
// anchor no longer matches is disabled on its own and the rest keep working.
package interop

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mbeema/framectl/pkg/cadence"
	"github.com/mbeema/framectl/pkg/config"
	"github.com/mbeema/framectl/pkg/health"
	"github.com/mbeema/framectl/pkg/hook"
	"github.com/mbeema/framectl/pkg/host"
	"github.com/mbeema/framectl/pkg/input"
	"github.com/mbeema/framectl/pkg/loop"
	"github.com/mbeema/framectl/pkg/render"
	"github.com/mbeema/framectl/pkg/signals"
	"go.uber.org/zap"
)

// Feature names.
const (
	FeatureFrameCadence   = "frame-cadence"
	FeatureInputGate      = "input-gate"
	FeatureEntityRender   = "entity-render"
	FeatureGameplayRender = "gameplay-render"
	FeatureLevelRender    = "level-render"
	FeatureDebugRender    = "debug-render"
	FeatureWorkerThreads  = "worker-threads"
	FeatureAchievements   = "achievements"
	FeatureBurstAlpha     = "burst-alpha"
	FeatureConsoleCoords  = "console-coords"
)

// FeatureStatus reports whether a feature is active after Load.
type FeatureStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Error   string `json:"error,omitempty"`
}

// Module is the controller's presence inside one host.
type Module struct {
	store  *config.Store
	bridge *signals.Bridge
	stats  *health.Stats
	logger *zap.Logger

	hooks    *hook.Manager
	engine   *host.Engine
	composer *render.Composer
	ctrl     *cadence.Controller
	override *loop.Override
	gate     *input.Gate
	skipper  *render.Skipper

	// frame is the control settings snapshot for the current real frame.
	frame atomic.Pointer[config.ControlConfig]

	mu       sync.Mutex
	loaded   bool
	features []FeatureStatus
}

// Option configures a Module.
type Option func(*Module)

// WithHookManager makes the module install through hm instead of its own
// manager.
func WithHookManager(hm *hook.Manager) Option {
	return func(m *Module) {
		m.hooks = hm
	}
}

// New creates a module. store supplies the live settings and bridge the
// playback signals.
func New(store *config.Store, bridge *signals.Bridge, stats *health.Stats, logger *zap.Logger, opts ...Option) *Module {
	m := &Module{
		store:  store,
		bridge: bridge,
		stats:  stats,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hooks == nil {
		m.hooks = hook.NewManager("framectl", logger)
	}
	m.ctrl = cadence.New(m, bridge, stats, logger.Named("cadence"))
	return m
}

// Control returns the settings in effect for the current frame. It
// implements cadence.Settings.
func (m *Module) Control() *config.ControlConfig {
	if c := m.frame.Load(); c != nil {
		return c
	}
	return m.store.Control()
}

// Controller returns the frame cadence controller.
func (m *Module) Controller() *cadence.Controller {
	return m.ctrl
}

// State returns the controller's last published state.
func (m *Module) State() cadence.State {
	return m.ctrl.State()
}

// Features returns per-feature status from the last Load.
func (m *Module) Features() []FeatureStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FeatureStatus(nil), m.features...)
}

type feature struct {
	name    string
	install func(*installer) error
}

// installer tracks what one feature installed so a failure can roll the
// feature back without touching the others.
type installer struct {
	m       *Module
	targets []string
	groups  []string
	undo    []func()
}

func install[F any](in *installer, p *hook.Point[F], replacement F) (F, error) {
	orig, err := hook.Install(in.m.hooks, p, replacement)
	if err != nil {
		return orig, err
	}
	in.targets = append(in.targets, p.Name())
	return orig, nil
}

func (in *installer) group(name string, patches ...render.Patch) error {
	if err := in.m.composer.InstallGroup(name, patches...); err != nil {
		return err
	}
	in.groups = append(in.groups, name)
	return nil
}

func (in *installer) onRollback(fn func()) {
	in.undo = append(in.undo, fn)
}

func (in *installer) rollback() {
	for i := len(in.undo) - 1; i >= 0; i-- {
		in.undo[i]()
	}
	for i := len(in.groups) - 1; i >= 0; i-- {
		in.m.composer.Uninstall(in.groups[i])
	}
	for i := len(in.targets) - 1; i >= 0; i-- {
		if err := in.m.hooks.Uninstall(in.targets[i]); err != nil {
			in.m.logger.Warn("rollback failed", zap.String("target", in.targets[i]), zap.Error(err))
		}
	}
}

// Load installs every feature into e. It fails only when the module is
// already loaded; individual feature failures are reported by Features.
func (m *Module) Load(e *host.Engine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("interop: module already loaded")
	}
	m.engine = e
	m.composer = render.NewComposer(e, m.logger.Named("render"))
	m.override = loop.New(e, m.stats, m.logger.Named("loop"))
	m.gate = input.NewGate(m.enabled, m.bridge, m.override, m.stats, m.logger.Named("input"))
	m.skipper = render.NewSkipper(m.ctrl, m.hideGameplay, m.stats)

	m.features = m.features[:0]
	for _, f := range m.featureTable() {
		in := &installer{m: m}
		status := FeatureStatus{Name: f.name, Enabled: true}
		if err := f.install(in); err != nil {
			in.rollback()
			status.Enabled = false
			status.Error = err.Error()
			m.recordFailure(f.name, err)
		}
		m.features = append(m.features, status)
	}
	m.loaded = true

	enabled := 0
	for _, f := range m.features {
		if f.Enabled {
			enabled++
		}
	}
	m.logger.Info("module loaded",
		zap.Int("features", len(m.features)),
		zap.Int("enabled", enabled),
		zap.Strings("hooks", m.hooks.Targets()),
	)
	return nil
}

func (m *Module) recordFailure(name string, err error) {
	switch {
	case errors.Is(err, hook.ErrHookConflict):
		m.stats.HookConflicts.Add(1)
	case errors.Is(err, render.ErrAnchorNotFound):
		m.stats.AnchorFailures.Add(1)
	}
	m.logger.Error("feature disabled", zap.String("feature", name), zap.Error(err))
}

// Unload removes everything Load installed, most recent first. The playback
// engine keeps its own state.
func (m *Module) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return nil
	}
	m.override.Disarm()
	m.ctrl.SetAfterSuppressed(nil)
	m.composer.UninstallAll()
	err := m.hooks.UninstallAll()
	m.frame.Store(nil)
	m.loaded = false
	m.features = nil
	m.logger.Info("module unloaded")
	return err
}

func (m *Module) enabled() bool {
	return m.Control().Enabled
}

func (m *Module) hideGameplay() bool {
	return m.Control().HideGameplay
}
