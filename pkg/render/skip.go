// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package render suppresses entity rendering during fast-forward bursts and
// composes declarative patches onto the host's render routines.
package render

import (
	"github.com/mbeema/framectl/pkg/health"
)

// Window reports whether the current burst iteration is suppressed.
type Window interface {
	InSuppressionWindow() bool
}

// Skipper wraps a per-entity render call. Only the pixel output is dropped;
// the entity's update already ran inside the burst iteration.
type Skipper struct {
	window       Window
	hideGameplay func() bool
	stats        *health.Stats
}

// NewSkipper creates a skipper. hideGameplay reports the global hide
// toggle.
func NewSkipper(window Window, hideGameplay func() bool, stats *health.Stats) *Skipper {
	return &Skipper{window: window, hideGameplay: hideGameplay, stats: stats}
}

// Suppressed reports whether a render call made now should be dropped.
func (s *Skipper) Suppressed() bool {
	return s.window.InSuppressionWindow() || s.hideGameplay()
}

// Render calls render unless rendering is suppressed.
func (s *Skipper) Render(render func()) {
	if s.Suppressed() {
		s.stats.RendersSuppressed.Add(1)
		return
	}
	render()
}
