// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package interop

import (
	"fmt"

	"github.com/mbeema/framectl/pkg/config"
	"github.com/mbeema/framectl/pkg/host"
	"github.com/mbeema/framectl/pkg/render"
	"go.uber.org/zap"
)

func (m *Module) featureTable() []feature {
	return []feature{
		{FeatureFrameCadence, m.installFrameCadence},
		{FeatureInputGate, m.installInputGate},
		{FeatureEntityRender, m.installEntityRender},
		{FeatureGameplayRender, m.installGameplayRender},
		{FeatureLevelRender, m.installLevelRender},
		{FeatureDebugRender, m.installDebugRender},
		{FeatureWorkerThreads, m.installWorkerThreads},
		{FeatureAchievements, m.installAchievements},
		{FeatureBurstAlpha, m.installBurstAlpha},
		{FeatureConsoleCoords, m.installConsoleCoords},
	}
}

// installFrameCadence redirects the base update and the per-frame update.
// The base update is swallowed inside a burst that skips it, and the
// controller then runs it once through the trampoline after the burst.
func (m *Module) installFrameCadence(in *installer) error {
	var baseOrig func(host.GameTime)
	baseOrig, err := install(in, m.engine.BaseUpdate, func(gt host.GameTime) {
		if m.enabled() && m.ctrl.SkipBaseUpdate() {
			m.stats.BaseUpdatesSkipped.Add(1)
			return
		}
		baseOrig(gt)
		m.checkHotkeys()
	})
	if err != nil {
		return err
	}

	var updateOrig func(host.GameTime)
	updateOrig, err = install(in, m.engine.Update, func(gt host.GameTime) {
		m.frame.Store(m.store.Control())
		m.ctrl.Update(
			func() { updateOrig(gt) },
			func() {
				baseOrig(gt)
				m.checkHotkeys()
			},
		)
	})
	if err != nil {
		return err
	}
	in.onRollback(func() { m.frame.Store(nil) })
	return nil
}

// checkHotkeys toggles the visual settings from the devices. The change is
// published to the store and applies from the next frame.
func (m *Module) checkHotkeys() {
	pressed := m.engine.Input.PollHotkeys()
	if pressed == 0 {
		return
	}
	m.store.UpdateControl(func(c *config.ControlConfig) {
		if pressed&host.ButtonHitboxes != 0 {
			c.ShowHitboxes = !c.ShowHitboxes
		}
		if pressed&host.ButtonPathfinding != 0 {
			c.ShowPathfinding = !c.ShowPathfinding
		}
		if pressed&host.ButtonGameplay != 0 {
			c.HideGameplay = !c.HideGameplay
		}
	})
	c := m.store.Control()
	m.logger.Info("hotkey toggled",
		zap.Bool("show_hitboxes", c.ShowHitboxes),
		zap.Bool("show_pathfinding", c.ShowPathfinding),
		zap.Bool("hide_gameplay", c.HideGameplay),
	)
}

func (m *Module) installInputGate(in *installer) error {
	var pollOrig func()
	pollOrig, err := install(in, m.engine.PollInput, func() {
		m.gate.Poll(pollOrig)
	})
	return err
}

// installEntityRender wraps per-entity rendering with the skipper. Entities
// whose render has side effects are still rendered after each suppressed
// iteration, through the trampoline so the skipper does not see them.
func (m *Module) installEntityRender(in *installer) error {
	var renderOrig func(*host.Entity)
	renderOrig, err := install(in, m.engine.RenderEntity, func(ent *host.Entity) {
		m.skipper.Render(func() { renderOrig(ent) })
	})
	if err != nil {
		return err
	}
	m.ctrl.SetAfterSuppressed(func() {
		for _, ent := range m.engine.Entities {
			if ent.SideEffectRender {
				renderOrig(ent)
			}
		}
	})
	in.onRollback(func() { m.ctrl.SetAfterSuppressed(nil) })
	return nil
}

func (m *Module) installGameplayRender(in *installer) error {
	return in.group(FeatureGameplayRender, render.Patch{
		Name: "hide-entities",
		At:   render.At(host.RoutineGameplay, host.OpBegin, 1),
		Pos:  host.After,
		Kind: render.Branch,
		When: m.hideGameplay,
		To:   render.At(host.RoutineGameplay, host.OpEnd, 1),
	})
}

// installLevelRender substitutes the distortion pass for the level layers
// while gameplay is hidden.
func (m *Module) installLevelRender(in *installer) error {
	return in.group(FeatureLevelRender, render.Patch{
		Name: "distortion-only",
		At:   render.At(host.RoutineLevel, host.OpClear, 1),
		Pos:  host.After,
		Kind: render.Branch,
		When: m.hideGameplay,
		Run:  m.engine.Distort,
		To:   render.At(host.RoutineLevel, host.OpSetRenderTarget, 2),
	})
}

func (m *Module) installDebugRender(in *installer) error {
	return in.group(FeatureDebugRender,
		render.Patch{
			Name: "pathfinding",
			At:   render.At(host.RoutineLevel, host.OpPathfindingDebug, 1),
			Kind: render.Widen,
			When: func() bool { return m.Control().ShowPathfinding },
		},
		render.Patch{
			Name: "hitboxes",
			At:   render.At(host.RoutineLevel, host.OpLighting, 1),
			Pos:  host.After,
			Kind: render.Call,
			When: func() bool { return m.Control().ShowHitboxes },
			Run:  func() { m.engine.DrawOverlay("hitboxes") },
		},
	)
}

// installWorkerThreads runs worker threads inline while playback drives the
// host, so loading finishes on a deterministic frame.
func (m *Module) installWorkerThreads(in *installer) error {
	var startOrig func(host.Work)
	startOrig, err := install(in, m.engine.StartThread, func(w host.Work) {
		if m.enabled() && m.bridge.Running() {
			m.logger.Debug("running worker inline", zap.String("work", w.Name))
			w.Fn()
			return
		}
		startOrig(w)
	})
	return err
}

func (m *Module) installAchievements(in *installer) error {
	var registerOrig func(string)
	registerOrig, err := install(in, m.engine.RegisterAchievement, func(name string) {
		if m.Control().DisableAchievements {
			return
		}
		registerOrig(name)
	})
	if err != nil {
		return err
	}

	var statOrig func(host.Stat)
	statOrig, err = install(in, m.engine.IncrementStat, func(s host.Stat) {
		if m.Control().DisableAchievements {
			return
		}
		statOrig(s)
	})
	return err
}

// installBurstAlpha hides displacement bursts centred on the player while
// hitboxes are shown.
func (m *Module) installBurstAlpha(in *installer) error {
	var addOrig func(host.Burst) host.Burst
	addOrig, err := install(in, m.engine.AddBurst, func(b host.Burst) host.Burst {
		if m.Control().ShowHitboxes {
			if p := m.engine.Player(); p != nil {
				if x, y := p.Center(); b.X == x && b.Y == y {
					b.Alpha = 0
				}
			}
		}
		return addOrig(b)
	})
	return err
}

// installConsoleCoords prints world coordinates after the level-relative
// position line of the debug console.
func (m *Module) installConsoleCoords(in *installer) error {
	return in.group(FeatureConsoleCoords, render.Patch{
		Name: "world-position",
		At:   render.At(host.RoutineConsole, host.OpLevelPosition, 1),
		Pos:  host.After,
		Kind: render.Call,
		Run: func() {
			if x, y, ok := m.engine.WorldPosition(); ok {
				m.engine.DrawOverlay(fmt.Sprintf("world:%g,%g", x, y))
			}
		},
	})
}
