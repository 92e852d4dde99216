// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package cadence decides, once per real host frame, how many logical update
// iterations run and whether the host's own base update runs inside them or
// once afterwards.
package cadence

import (
	"sync/atomic"

	"github.com/mbeema/framectl/pkg/config"
	"github.com/mbeema/framectl/pkg/health"
	"github.com/mbeema/framectl/pkg/signals"
	"go.uber.org/zap"
)

// Settings supplies the control settings snapshot for a frame.
type Settings interface {
	Control() *config.ControlConfig
}

// State is a point-in-time view of the frame control state.
type State struct {
	Enabled        bool   `json:"enabled"`
	FrameLoops     int    `json:"frame_loops"`
	Running        bool   `json:"running"`
	Recording      bool   `json:"recording"`
	Mode           string `json:"mode"`
	SkipBaseUpdate bool   `json:"skip_base_update"`
	BaseDeferred   bool   `json:"base_deferred"` // the last frame ran its base update after the burst
	InUpdateBurst  bool   `json:"in_update_burst"`
	Suppressing    bool   `json:"suppressing"`
	Iteration      int    `json:"iteration"`
	Total          int    `json:"total"`
}

// Controller drives the redirected update entry point.
//
// Its per-frame flags are only touched from the host's update thread. They
// are reset on entry to every Update and cleared again on every exit path,
// including a panic from the original update.
type Controller struct {
	settings Settings
	signals  *signals.Bridge
	stats    *health.Stats
	logger   *zap.Logger

	afterSuppressed func()

	skipBaseUpdate bool
	baseDeferred   bool
	inUpdateBurst  bool
	suppressing    bool
	iteration      int
	total          int

	published atomic.Pointer[State]
}

// Option configures a Controller.
type Option func(*Controller)

// WithAfterSuppressed registers fn to run after every iteration whose
// rendering was suppressed.
func WithAfterSuppressed(fn func()) Option {
	return func(c *Controller) {
		c.afterSuppressed = fn
	}
}

// New creates a controller.
func New(settings Settings, bridge *signals.Bridge, stats *health.Stats, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		settings: settings,
		signals:  bridge,
		stats:    stats,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publish(false)
	return c
}

// SetAfterSuppressed replaces the suppressed-iteration callback.
func (c *Controller) SetAfterSuppressed(fn func()) {
	c.afterSuppressed = fn
}

// SkipBaseUpdate reports whether the base update must be swallowed inside
// the current burst.
func (c *Controller) SkipBaseUpdate() bool {
	return c.skipBaseUpdate
}

// InUpdateBurst reports whether a burst is executing.
func (c *Controller) InUpdateBurst() bool {
	return c.inUpdateBurst
}

// InSuppressionWindow reports whether the current iteration's rendering is
// suppressed. Always false outside a burst.
func (c *Controller) InSuppressionWindow() bool {
	return c.inUpdateBurst && c.suppressing
}

// State returns the last published state. Safe from any goroutine.
func (c *Controller) State() State {
	return *c.published.Load()
}

// Update runs one real frame. iterate invokes the original update once;
// deferredBase invokes the host's base update once, bypassing any skip.
func (c *Controller) Update(iterate, deferredBase func()) {
	c.reset()
	c.stats.RealFrames.Add(1)

	s := *c.settings.Control()
	if !s.Enabled {
		c.stats.PassThroughFrames.Add(1)
		c.publish(false)
		iterate()
		return
	}

	n := c.signals.FrameLoops()
	c.skipBaseUpdate = !s.FastForwardCallBase && n >= s.FastForwardThreshold

	total := n
	if s.BurstCap > 0 && total > s.BurstCap {
		total = s.BurstCap
		c.stats.ClampedBursts.Add(1)
		c.logger.Debug("burst clamped", zap.Int("frame_loops", n), zap.Int("cap", s.BurstCap))
	}

	c.runBurst(&s, total, iterate)

	// The skip only covers base updates made inside the burst.
	deferBase := c.skipBaseUpdate
	c.skipBaseUpdate = false
	if deferBase {
		c.stats.BaseUpdatesDeferred.Add(1)
		c.baseDeferred = true
		deferredBase()
	}
	c.publish(true)
}

// runBurst invokes iterate total times in sequence. The burst flags are
// cleared by defer so a panicking original leaves them false.
func (c *Controller) runBurst(s *config.ControlConfig, total int, iterate func()) {
	completed := false
	c.inUpdateBurst = true
	c.total = total
	defer func() {
		c.inUpdateBurst = false
		c.suppressing = false
		if !completed {
			c.skipBaseUpdate = false
			c.stats.UpdateFailures.Add(1)
			c.publish(true)
		}
	}()

	suppressFinal := s.SuppressFinalIteration(total)
	for i := 0; i < total; i++ {
		c.iteration = i + 1
		c.suppressing = i < total-1 || suppressFinal
		iterate()
		c.stats.BurstIterations.Add(1)
		if c.suppressing && c.afterSuppressed != nil {
			c.afterSuppressed()
		}
	}
	completed = true
}

func (c *Controller) reset() {
	c.skipBaseUpdate = false
	c.baseDeferred = false
	c.inUpdateBurst = false
	c.suppressing = false
	c.iteration = 0
	c.total = 0
}

func (c *Controller) publish(enabled bool) {
	c.published.Store(&State{
		Enabled:        enabled,
		FrameLoops:     c.signals.FrameLoops(),
		Running:        c.signals.Running(),
		Recording:      c.signals.Recording(),
		Mode:           c.signals.Mode().String(),
		SkipBaseUpdate: c.skipBaseUpdate,
		BaseDeferred:   c.baseDeferred,
		InUpdateBurst:  c.inUpdateBurst,
		Suppressing:    c.suppressing,
		Iteration:      c.iteration,
		Total:          c.total,
	})
}
