// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package loop substitutes the host's per-frame executor for exactly one
// real frame. The substituted frame skips the scene update while the host's
// base update still runs, which holds the game on the current frame until
// the playback engine releases the next one.
package loop

import (
	"errors"
	"sync"

	"github.com/mbeema/framectl/pkg/health"
	"go.uber.org/zap"
)

// ErrAlreadyArmed is returned by Arm when a substitution is still pending.
var ErrAlreadyArmed = errors.New("loop override already armed")

// Slot is the host's per-frame executor slot. A nil executor means the host
// runs its normal frame logic.
type Slot interface {
	Executor() func()
	SetExecutor(fn func())
}

// Override owns at most one pending executor substitution.
type Override struct {
	slot   Slot
	stats  *health.Stats
	logger *zap.Logger

	mu       sync.Mutex
	armed    bool
	previous func()
}

// New creates an override for slot.
func New(slot Slot, stats *health.Stats, logger *zap.Logger) *Override {
	return &Override{
		slot:   slot,
		stats:  stats,
		logger: logger,
	}
}

// Arm saves the current executor and installs the settle executor. Arming
// again before the settle executor has run returns ErrAlreadyArmed and
// leaves the pending restoration untouched.
func (o *Override) Arm() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.armed {
		return ErrAlreadyArmed
	}
	o.previous = o.slot.Executor()
	o.armed = true
	o.slot.SetExecutor(o.settle)
	return nil
}

// Armed reports whether a substitution is pending.
func (o *Override) Armed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.armed
}

// Disarm restores the saved executor without running a frame. It is a
// no-op when nothing is pending.
func (o *Override) Disarm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.armed {
		return
	}
	o.restoreLocked()
}

func (o *Override) restoreLocked() func() {
	prev := o.previous
	o.slot.SetExecutor(prev)
	o.previous = nil
	o.armed = false
	return prev
}

// settle restores the previous executor before anything else. A custom
// executor saved by Arm still runs this frame; the host's own scene update
// does not.
func (o *Override) settle() {
	o.mu.Lock()
	if !o.armed {
		o.mu.Unlock()
		return
	}
	prev := o.restoreLocked()
	o.mu.Unlock()

	o.stats.FrameSteps.Add(1)
	o.logger.Debug("frame step settled")

	if prev != nil {
		prev()
	}
}
