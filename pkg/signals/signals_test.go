// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package signals

import "testing"

type fakePlayback struct {
	loops     int
	running   bool
	recording bool
	mode      Mode
	updates   int
}

func (f *fakePlayback) FrameLoops() int     { return f.loops }
func (f *fakePlayback) SetFrameLoops(n int) { f.loops = n }
func (f *fakePlayback) Running() bool       { return f.running }
func (f *fakePlayback) Recording() bool     { return f.recording }
func (f *fakePlayback) Mode() Mode          { return f.mode }
func (f *fakePlayback) SetMode(m Mode)      { f.mode = m }
func (f *fakePlayback) UpdateInputs()       { f.updates++ }

func TestBridgeDefaultsWhenAbsent(t *testing.T) {
	b := NewBridge(nil)
	if b.Available() {
		t.Error("Available = true, want false")
	}
	if got := b.FrameLoops(); got != 1 {
		t.Errorf("FrameLoops = %d, want 1", got)
	}
	if b.Running() || b.Recording() {
		t.Error("Running/Recording should default to false")
	}
	if b.Mode() != ModeNone {
		t.Errorf("Mode = %v, want None", b.Mode())
	}
	// Must not panic.
	b.UpdateInputs()
	b.SetFrameLoops(5)
	b.SetMode(ModeFrameStepping)
}

func TestNilBridgeIsSafe(t *testing.T) {
	var b *Bridge
	if b.FrameLoops() != 1 || b.Running() || b.Available() {
		t.Error("nil bridge should read defaults")
	}
}

func TestBridgeForwards(t *testing.T) {
	pb := &fakePlayback{loops: 4, running: true, mode: ModeEnabled | ModeFrameStepping}
	b := NewBridge(pb)

	if got := b.FrameLoops(); got != 4 {
		t.Errorf("FrameLoops = %d, want 4", got)
	}
	if !b.Running() {
		t.Error("Running = false, want true")
	}
	if !b.Mode().Has(ModeFrameStepping) {
		t.Errorf("Mode = %v, want FrameStepping set", b.Mode())
	}
	b.UpdateInputs()
	if pb.updates != 1 {
		t.Errorf("updates = %d, want 1", pb.updates)
	}

	b.Detach()
	if b.FrameLoops() != 1 {
		t.Error("detached bridge should fall back to defaults")
	}
	b.UpdateInputs()
	if pb.updates != 1 {
		t.Errorf("updates after Detach = %d, want 1", pb.updates)
	}
}

func TestBridgeClampsFrameLoops(t *testing.T) {
	b := NewBridge(&fakePlayback{loops: 0})
	if got := b.FrameLoops(); got != 1 {
		t.Errorf("FrameLoops = %d, want 1", got)
	}
}

func TestModeString(t *testing.T) {
	tests := []struct {
		m    Mode
		want string
	}{
		{ModeNone, "None"},
		{ModeEnabled, "Enabled"},
		{ModeEnabled | ModeFrameStepping, "Enabled|FrameStepping"},
		{ModeEnabled | ModeRecording | ModeFrameStepping, "Enabled|Recording|FrameStepping"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.m, got, tt.want)
		}
	}
}

func TestControlFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctl, err := CreateControlFile(dir)
	if err != nil {
		t.Fatalf("CreateControlFile: %v", err)
	}
	defer ctl.Close()

	if got := ctl.FrameLoops(); got != 1 {
		t.Errorf("initial FrameLoops = %d, want 1", got)
	}

	engine, err := OpenControlFile(dir)
	if err != nil {
		t.Fatalf("OpenControlFile: %v", err)
	}
	defer engine.Close()

	engine.SetRunning(true)
	engine.SetFrameLoops(60)
	engine.SetMode(ModeEnabled | ModeFrameStepping)

	b := NewBridge(ctl)
	if !b.Running() || b.Recording() {
		t.Errorf("Running/Recording = %v/%v, want true/false", b.Running(), b.Recording())
	}
	if got := b.FrameLoops(); got != 60 {
		t.Errorf("FrameLoops = %d, want 60", got)
	}
	if !b.Mode().Has(ModeFrameStepping) {
		t.Errorf("Mode = %v", b.Mode())
	}

	b.UpdateInputs()
	b.UpdateInputs()
	if got := engine.Requests(); got != 2 {
		t.Errorf("Requests = %d, want 2", got)
	}
}
