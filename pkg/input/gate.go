// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package input gates the host's input poll so the playback engine can be
// the sole input source while it drives the host.
package input

import (
	"errors"

	"github.com/mbeema/framectl/pkg/health"
	"github.com/mbeema/framectl/pkg/loop"
	"github.com/mbeema/framectl/pkg/signals"
	"go.uber.org/zap"
)

// Enabler reports whether the controller is enabled for this frame.
type Enabler func() bool

// Stepper arms a one-shot frame step.
type Stepper interface {
	Arm() error
}

// Gate is the replacement for the host's input poll.
type Gate struct {
	enabled Enabler
	signals *signals.Bridge
	stepper Stepper
	stats   *health.Stats
	logger  *zap.Logger
}

// NewGate creates a gate. stepper may be nil when frame stepping is not
// wired.
func NewGate(enabled Enabler, bridge *signals.Bridge, stepper Stepper, stats *health.Stats, logger *zap.Logger) *Gate {
	return &Gate{
		enabled: enabled,
		signals: bridge,
		stepper: stepper,
		stats:   stats,
		logger:  logger,
	}
}

// Poll runs in place of the host's input poll. orig reads the physical
// devices. The real read happens only when playback is not running or is
// recording; the playback engine's UpdateInputs always runs afterwards,
// before the host consumes input state.
func (g *Gate) Poll(orig func()) {
	if !g.enabled() {
		orig()
		return
	}

	if !g.signals.Running() || g.signals.Recording() {
		g.stats.InputPollsRead.Add(1)
		orig()
	} else {
		g.stats.InputPollsBlocked.Add(1)
	}

	g.signals.UpdateInputs()
	g.stats.InputInjections.Add(1)

	if g.stepper != nil && g.signals.Mode().Has(signals.ModeFrameStepping) {
		if err := g.stepper.Arm(); err != nil {
			if !errors.Is(err, loop.ErrAlreadyArmed) {
				g.logger.Warn("frame step arm failed", zap.Error(err))
				return
			}
			g.logger.Debug("frame step already pending")
		}
	}
}
