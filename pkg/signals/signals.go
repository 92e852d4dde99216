// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package signals exposes the state owned by the input playback engine
// (frame loops, running, recording, mode) and its UpdateInputs contract.
//
// The playback engine is optional. When it is absent every signal reads as
// its default and UpdateInputs does nothing, so dependent features reduce
// to pass-through.
package signals

import (
	"strings"
	"sync"
)

// Mode holds the playback engine's mode bits.
type Mode int

const (
	ModeNone          Mode = 0
	ModeEnabled       Mode = 1
	ModeRecording     Mode = 2
	ModeFrameStepping Mode = 4
)

// Has reports whether all bits of f are set.
func (m Mode) Has(f Mode) bool {
	return m&f == f
}

func (m Mode) String() string {
	if m == ModeNone {
		return "None"
	}
	var parts []string
	if m.Has(ModeEnabled) {
		parts = append(parts, "Enabled")
	}
	if m.Has(ModeRecording) {
		parts = append(parts, "Recording")
	}
	if m.Has(ModeFrameStepping) {
		parts = append(parts, "FrameStepping")
	}
	return strings.Join(parts, "|")
}

// Defaults used whenever the playback engine is unavailable.
const (
	DefaultFrameLoops = 1
	DefaultMode       = ModeNone
)

// Playback is the capability offered by an input playback engine.
type Playback interface {
	FrameLoops() int
	SetFrameLoops(n int)
	Running() bool
	Recording() bool
	Mode() Mode
	SetMode(m Mode)

	// UpdateInputs reads or replays the input for one update iteration and
	// advances the playback position.
	UpdateInputs()
}

// Bridge gives the controller a Playback that is always safe to call.
// Attach and Detach may happen at any time; reads see either the engine or
// the defaults, never a partially attached state.
type Bridge struct {
	mu sync.RWMutex
	pb Playback
}

// NewBridge creates a bridge, optionally already attached to pb.
func NewBridge(pb Playback) *Bridge {
	return &Bridge{pb: pb}
}

// Attach connects the playback engine.
func (b *Bridge) Attach(pb Playback) {
	b.mu.Lock()
	b.pb = pb
	b.mu.Unlock()
}

// Detach disconnects the playback engine. The engine keeps its own state.
func (b *Bridge) Detach() {
	b.mu.Lock()
	b.pb = nil
	b.mu.Unlock()
}

func (b *Bridge) playback() Playback {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pb
}

// Available reports whether a playback engine is attached.
func (b *Bridge) Available() bool {
	return b.playback() != nil
}

// FrameLoops returns the requested number of update iterations per real
// frame, never less than one.
func (b *Bridge) FrameLoops() int {
	pb := b.playback()
	if pb == nil {
		return DefaultFrameLoops
	}
	if n := pb.FrameLoops(); n >= 1 {
		return n
	}
	return DefaultFrameLoops
}

// SetFrameLoops forwards to the engine when present.
func (b *Bridge) SetFrameLoops(n int) {
	if pb := b.playback(); pb != nil {
		pb.SetFrameLoops(n)
	}
}

// Running reports whether the engine is driving playback.
func (b *Bridge) Running() bool {
	pb := b.playback()
	return pb != nil && pb.Running()
}

// Recording reports whether the engine is recording live input.
func (b *Bridge) Recording() bool {
	pb := b.playback()
	return pb != nil && pb.Recording()
}

// Mode returns the engine's mode bits.
func (b *Bridge) Mode() Mode {
	pb := b.playback()
	if pb == nil {
		return DefaultMode
	}
	return pb.Mode()
}

// SetMode forwards to the engine when present.
func (b *Bridge) SetMode(m Mode) {
	if pb := b.playback(); pb != nil {
		pb.SetMode(m)
	}
}

// UpdateInputs invokes the engine's input contract when present.
func (b *Bridge) UpdateInputs() {
	if pb := b.playback(); pb != nil {
		pb.UpdateInputs()
	}
}
