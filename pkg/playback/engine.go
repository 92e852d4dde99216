// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package playback is an in-process input playback engine. It replays an
// input script into the host's input state one update at a time, records
// live input, and publishes the frame loops, running, recording and mode
// signals the controller reads.
package playback

import (
	"io"
	"sync"

	"github.com/mbeema/framectl/pkg/host"
	"github.com/mbeema/framectl/pkg/signals"
	"go.uber.org/zap"
)

// Engine replays or records input. It implements signals.Playback.
type Engine struct {
	input  *host.Input
	logger *zap.Logger

	mu        sync.Mutex
	script    *Script
	pos       int
	running   bool
	recording bool
	mode      signals.Mode
	speed     int // frame loops when no breakpoint is ahead
	loops     int
	recorded  []host.Buttons
}

// NewEngine creates an engine feeding input.
func NewEngine(input *host.Input, logger *zap.Logger) *Engine {
	return &Engine{
		input:  input,
		logger: logger,
		speed:  signals.DefaultFrameLoops,
		loops:  signals.DefaultFrameLoops,
	}
}

// Load replaces the script. Playback restarts from the first frame on the
// next Start.
func (e *Engine) Load(s *Script) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.script = s
	e.pos = 0
}

// Start begins playback.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = 0
	e.running = e.script != nil
	e.recording = false
	e.mode = signals.ModeNone
	if e.running {
		e.mode = signals.ModeEnabled
	}
	e.updateLoopsLocked()
	e.logger.Info("playback started", zap.Int("frames", e.totalLocked()))
}

// Stop ends playback or recording.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.running = false
	e.recording = false
	e.mode = signals.ModeNone
	e.loops = signals.DefaultFrameLoops
}

// StartRecording records live input from the next update on.
func (e *Engine) StartRecording() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorded = e.recorded[:0]
	e.running = true
	e.recording = true
	e.mode = signals.ModeEnabled | signals.ModeRecording
	e.loops = signals.DefaultFrameLoops
}

// Recorded writes the recorded input in script format.
func (e *Engine) Recorded(w io.Writer) error {
	e.mu.Lock()
	frames := append([]host.Buttons(nil), e.recorded...)
	e.mu.Unlock()
	return Write(w, frames)
}

// Position returns the next frame to be played and the script length.
func (e *Engine) Position() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos, e.totalLocked()
}

func (e *Engine) totalLocked() int {
	if e.script == nil {
		return 0
	}
	return e.script.Total
}

// FrameLoops implements signals.Playback.
func (e *Engine) FrameLoops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loops
}

// SetFrameLoops sets the playback speed used when no breakpoint is ahead.
func (e *Engine) SetFrameLoops(n int) {
	if n < 1 {
		n = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = n
	e.updateLoopsLocked()
}

// Running implements signals.Playback.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Recording implements signals.Playback.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}

// Mode implements signals.Playback.
func (e *Engine) Mode() signals.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode implements signals.Playback.
func (e *Engine) SetMode(m signals.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
}

// UpdateInputs implements signals.Playback. While recording it captures the
// input the host just read; while playing it feeds the next scripted frame
// and stops at the end of the script.
func (e *Engine) UpdateInputs() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.recording:
		e.recorded = append(e.recorded, e.input.Current)
	case e.running:
		b, ok := e.script.Buttons(e.pos)
		if !ok {
			e.logger.Info("playback finished", zap.Int("frames", e.pos))
			e.stopLocked()
			e.input.Feed(0)
			return
		}
		e.input.Feed(b)
		e.pos++
		e.updateLoopsLocked()
	}
}

func (e *Engine) updateLoopsLocked() {
	if !e.running || e.recording {
		e.loops = signals.DefaultFrameLoops
		return
	}
	if e.script != nil {
		if n := e.script.SpeedAt(e.pos); n > 0 {
			e.loops = n
			return
		}
	}
	e.loops = e.speed
}
