// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package cadence

import (
	"reflect"
	"testing"

	"github.com/mbeema/framectl/pkg/config"
	"github.com/mbeema/framectl/pkg/health"
	"github.com/mbeema/framectl/pkg/signals"
	"go.uber.org/zap"
)

type fixedSettings struct {
	c config.ControlConfig
}

func (f *fixedSettings) Control() *config.ControlConfig { return &f.c }

type fakePlayback struct {
	loops int
	mode  signals.Mode
}

func (f *fakePlayback) FrameLoops() int        { return f.loops }
func (f *fakePlayback) SetFrameLoops(n int)    { f.loops = n }
func (f *fakePlayback) Running() bool          { return true }
func (f *fakePlayback) Recording() bool        { return false }
func (f *fakePlayback) Mode() signals.Mode     { return f.mode }
func (f *fakePlayback) SetMode(m signals.Mode) { f.mode = m }
func (f *fakePlayback) UpdateInputs()          {}

func newController(t *testing.T, c config.ControlConfig, loops int) (*Controller, *health.Stats) {
	t.Helper()
	stats := health.NewStats()
	bridge := signals.NewBridge(&fakePlayback{loops: loops})
	return New(&fixedSettings{c: c}, bridge, stats, zap.NewNop()), stats
}

func enabled() config.ControlConfig {
	c := config.DefaultConfig().Control
	c.Enabled = true
	return c
}

func TestIterationCount(t *testing.T) {
	tests := []struct {
		name  string
		cap   int
		loops int
		want  int
	}{
		{"single", 0, 1, 1},
		{"unbounded", 0, 25, 25},
		{"at cap", 10, 10, 10},
		{"cap plus one", 10, 11, 10},
		{"below cap", 10, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := enabled()
			c.BurstCap = tt.cap
			ctrl, stats := newController(t, c, tt.loops)

			calls := 0
			ctrl.Update(func() { calls++ }, func() {})
			if calls != tt.want {
				t.Fatalf("original invoked %d times, want %d", calls, tt.want)
			}
			if got := stats.BurstIterations.Load(); got != int64(tt.want) {
				t.Errorf("burst iterations = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClampStillCountsAsFast(t *testing.T) {
	c := enabled()
	c.BurstCap = 10
	c.FastForwardThreshold = 11
	ctrl, stats := newController(t, c, 11)

	deferred := 0
	ctrl.Update(func() {}, func() { deferred++ })
	if deferred != 1 {
		t.Fatalf("deferred base fired %d times, want 1", deferred)
	}
	if stats.ClampedBursts.Load() != 1 {
		t.Errorf("clamped bursts = %d, want 1", stats.ClampedBursts.Load())
	}
}

func TestSkipBaseUpdate(t *testing.T) {
	tests := []struct {
		name      string
		callBase  bool
		threshold int
		loops     int
		wantSkip  bool
	}{
		{"normal speed", false, 10, 1, false},
		{"below threshold", false, 10, 9, false},
		{"at threshold", false, 10, 10, true},
		{"call base allowed", true, 10, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := enabled()
			c.FastForwardCallBase = tt.callBase
			c.FastForwardThreshold = tt.threshold
			ctrl, _ := newController(t, c, tt.loops)

			var skipDuring []bool
			deferred := 0
			ctrl.Update(func() {
				skipDuring = append(skipDuring, ctrl.SkipBaseUpdate())
			}, func() { deferred++ })

			for i, s := range skipDuring {
				if s != tt.wantSkip {
					t.Fatalf("iteration %d: skip = %v, want %v", i, s, tt.wantSkip)
				}
			}
			wantDeferred := 0
			if tt.wantSkip {
				wantDeferred = 1
			}
			if deferred != wantDeferred {
				t.Errorf("deferred base fired %d times, want %d", deferred, wantDeferred)
			}
			if ctrl.SkipBaseUpdate() {
				t.Error("skip still set after Update returned")
			}
			st := ctrl.State()
			if st.SkipBaseUpdate || st.BaseDeferred != tt.wantSkip {
				t.Errorf("published skip=%v deferred=%v, want false and %v", st.SkipBaseUpdate, st.BaseDeferred, tt.wantSkip)
			}
		})
	}
}

func TestSkipClearedBeforeDeferredBase(t *testing.T) {
	ctrl, _ := newController(t, enabled(), 10)

	var skipInDeferred bool
	ctrl.Update(func() {}, func() { skipInDeferred = ctrl.SkipBaseUpdate() })
	if skipInDeferred {
		t.Error("skip still set while the deferred base update ran")
	}
	if ctrl.SkipBaseUpdate() {
		t.Error("skip still set after Update returned")
	}
}

func TestInUpdateBurstScoped(t *testing.T) {
	ctrl, _ := newController(t, enabled(), 3)

	var during []bool
	ctrl.Update(func() { during = append(during, ctrl.InUpdateBurst()) }, func() {})
	if !reflect.DeepEqual(during, []bool{true, true, true}) {
		t.Fatalf("in burst during iterations = %v", during)
	}
	if ctrl.InUpdateBurst() || ctrl.InSuppressionWindow() {
		t.Fatal("burst flags still set after return")
	}
}

func TestPanicResetsFlags(t *testing.T) {
	c := enabled()
	c.FastForwardThreshold = 2
	ctrl, stats := newController(t, c, 3)

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Fatalf("recovered %v, want boom", r)
			}
		}()
		calls := 0
		ctrl.Update(func() {
			calls++
			if calls == 2 {
				panic("boom")
			}
		}, func() { t.Error("deferred base ran after a failed burst") })
	}()

	if ctrl.InUpdateBurst() || ctrl.InSuppressionWindow() || ctrl.SkipBaseUpdate() {
		t.Fatal("flags left set after panic")
	}
	if stats.UpdateFailures.Load() != 1 {
		t.Errorf("update failures = %d, want 1", stats.UpdateFailures.Load())
	}

	// The next frame starts clean.
	calls := 0
	ctrl.Update(func() { calls++ }, func() {})
	if calls != 3 {
		t.Errorf("next frame ran %d iterations, want 3", calls)
	}
}

func TestSuppressionWindow(t *testing.T) {
	tests := []struct {
		name   string
		hide   bool
		policy string
		loops  int
		want   []bool
	}{
		{"visible", false, config.FinalFollowsHideGameplay, 3, []bool{true, true, false}},
		{"hidden", true, config.FinalFollowsHideGameplay, 3, []bool{true, true, true}},
		{"always", false, config.FinalAlways, 3, []bool{true, true, true}},
		{"always single frame", false, config.FinalAlways, 1, []bool{false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := enabled()
			c.HideGameplay = tt.hide
			c.FinalIteration = tt.policy
			ctrl, _ := newController(t, c, tt.loops)

			var got []bool
			ctrl.Update(func() { got = append(got, ctrl.InSuppressionWindow()) }, func() {})
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("suppression = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAfterSuppressedCallback(t *testing.T) {
	stats := health.NewStats()
	after := 0
	ctrl := New(&fixedSettings{c: enabled()}, signals.NewBridge(&fakePlayback{loops: 4}), stats, zap.NewNop(),
		WithAfterSuppressed(func() { after++ }))

	ctrl.Update(func() {}, func() {})
	if after != 3 {
		t.Fatalf("after-suppressed ran %d times, want 3", after)
	}
}

func TestPassThroughWhenDisabled(t *testing.T) {
	c := enabled()
	c.Enabled = false
	ctrl, stats := newController(t, c, 5)

	calls := 0
	ctrl.Update(func() {
		calls++
		if ctrl.InUpdateBurst() {
			t.Error("burst flag set during pass-through")
		}
	}, func() { t.Error("deferred base ran during pass-through") })
	if calls != 1 {
		t.Fatalf("pass-through ran original %d times, want 1", calls)
	}
	if stats.PassThroughFrames.Load() != 1 {
		t.Errorf("pass-through frames = %d", stats.PassThroughFrames.Load())
	}
	if ctrl.State().Enabled {
		t.Error("published state claims enabled")
	}
}

func TestPlaybackAbsentDefaults(t *testing.T) {
	stats := health.NewStats()
	ctrl := New(&fixedSettings{c: enabled()}, signals.NewBridge(nil), stats, zap.NewNop())

	calls := 0
	ctrl.Update(func() { calls++ }, func() {})
	if calls != 1 {
		t.Fatalf("ran %d iterations without playback, want 1", calls)
	}
	st := ctrl.State()
	if st.FrameLoops != 1 || st.Running || st.Mode != "None" {
		t.Errorf("state = %+v", st)
	}
}
