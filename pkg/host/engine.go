// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package host is a small frame-driven game engine whose entry points are
// all redirectable. It stands in for the application a frame controller
// attaches to: it owns the real frame clock, polls input, runs its scene
// update and per-frame bookkeeping, and draws through render routines made
// of named operations.
package host

import (
	"fmt"
	"sync"
	"time"

	"github.com/mbeema/framectl/pkg/hook"
	"go.uber.org/zap"
)

// Entry point names.
const (
	PointUpdate              = "Engine.Update"
	PointPollInput           = "MInput.Update"
	PointBaseUpdate          = "Game.Update"
	PointRenderEntity        = "Entity.Render"
	PointStartThread         = "RunThread.Start"
	PointRegisterAchievement = "Achievements.Register"
	PointIncrementStat       = "Stats.Increment"
	PointAddBurst            = "DisplacementRenderer.AddBurst"
)

// Render routine names and their operations.
const (
	RoutineGameplay = "GameplayRenderer.Render"
	RoutineLevel    = "Level.Render"
	RoutineConsole  = "Commands.Render"

	OpBegin            = "Begin"
	OpRenderExcept     = "RenderExcept"
	OpEnd              = "End"
	OpSetRenderTarget  = "SetRenderTarget"
	OpClear            = "Clear"
	OpDistort          = "Distort"
	OpBackground       = "Background"
	OpForeground       = "Foreground"
	OpLighting         = "Lighting"
	OpPathfindingDebug = "PathfindingDebug"
	OpPresent          = "Present"
	OpHistory          = "History"
	OpLevelPosition    = "LevelPosition"
)

// GameTime is passed to the update entry points.
type GameTime struct {
	Frame   uint64
	Elapsed time.Duration
	Total   time.Duration
}

// Work is a unit handed to the worker-thread launcher.
type Work struct {
	Name string
	Fn   func()
}

// Stat is a stat increment request.
type Stat struct {
	Name string
	By   int
}

// Burst is a displacement effect.
type Burst struct {
	X, Y  float64
	Alpha float64
}

// Engine is the reference host.
type Engine struct {
	logger *zap.Logger

	Input    *Input
	Entities []*Entity

	Update              *hook.Point[func(GameTime)]
	PollInput           *hook.Point[func()]
	BaseUpdate          *hook.Point[func(GameTime)]
	RenderEntity        *hook.Point[func(*Entity)]
	StartThread         *hook.Point[func(Work)]
	RegisterAchievement *hook.Point[func(string)]
	IncrementStat       *hook.Point[func(Stat)]
	AddBurst            *hook.Point[func(Burst) Burst]

	// PathfindingDebug gates the pathfinder overlay in the level routine.
	PathfindingDebug bool

	// ConsoleOpen draws the debug console after the level.
	ConsoleOpen bool
	// LevelX and LevelY are the world position of the current level's origin.
	LevelX, LevelY float64

	routines map[string]*Routine
	executor func()

	frame        uint64
	total        time.Duration
	SceneUpdates int
	BaseUpdates  int
	Achievements []string
	StatCounts   map[string]int
	Bursts       []Burst
	drawn        []string

	threads sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithEntities replaces the default scene.
func WithEntities(entities ...*Entity) Option {
	return func(e *Engine) {
		e.Entities = entities
	}
}

// WithRoutine replaces the routine of the same name.
func WithRoutine(r *Routine) Option {
	return func(e *Engine) {
		e.routines[r.Name()] = r
	}
}

// NewEngine creates an engine with a player and the default routines.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:     logger,
		Input:      &Input{},
		Entities:   []*Entity{NewPlayer(0, 0)},
		StatCounts: make(map[string]int),
		routines:   make(map[string]*Routine),
	}

	e.Update = hook.NewPoint1(PointUpdate, e.update)
	e.PollInput = hook.NewPoint0(PointPollInput, e.Input.Poll)
	e.BaseUpdate = hook.NewPoint1(PointBaseUpdate, e.baseUpdate)
	e.RenderEntity = hook.NewPoint1(PointRenderEntity, e.renderEntity)
	e.StartThread = hook.NewPoint1(PointStartThread, e.startThread)
	e.RegisterAchievement = hook.NewPoint1(PointRegisterAchievement, e.registerAchievement)
	e.IncrementStat = hook.NewPoint1(PointIncrementStat, e.incrementStat)
	e.AddBurst = hook.NewPoint1R(PointAddBurst, e.addBurst)

	e.routines[RoutineGameplay] = e.gameplayRoutine()
	e.routines[RoutineLevel] = e.levelRoutine()
	e.routines[RoutineConsole] = e.consoleRoutine()

	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) gameplayRoutine() *Routine {
	return NewRoutine(RoutineGameplay,
		Op{Name: OpBegin, Do: func() { e.draw(OpBegin) }},
		Op{Name: OpRenderExcept, Do: e.RenderEntities},
		Op{Name: OpEnd, Do: func() { e.draw(OpEnd) }},
	)
}

func (e *Engine) levelRoutine() *Routine {
	return NewRoutine(RoutineLevel,
		Op{Name: OpSetRenderTarget, Do: func() { e.draw(OpSetRenderTarget + ":level") }},
		Op{Name: OpClear, Do: func() { e.draw(OpClear) }},
		Op{Name: OpDistort, Do: e.Distort},
		Op{Name: OpBackground, Do: func() { e.draw(OpBackground) }},
		Op{Name: OpForeground, Do: func() { e.draw(OpForeground) }},
		Op{Name: OpLighting, Do: func() { e.draw(OpLighting) }},
		Op{Name: OpSetRenderTarget, Do: func() { e.draw(OpSetRenderTarget + ":screen") }},
		Op{Name: OpPathfindingDebug, Do: func() { e.draw(OpPathfindingDebug) }, Cond: func() bool { return e.PathfindingDebug }},
		Op{Name: OpPresent, Do: func() { e.draw(OpPresent) }},
	)
}

// consoleRoutine draws the debug console. The position line shows the
// player relative to the level origin.
func (e *Engine) consoleRoutine() *Routine {
	return NewRoutine(RoutineConsole,
		Op{Name: OpBackground, Do: func() { e.draw("console:" + OpBackground) }},
		Op{Name: OpHistory, Do: func() { e.draw("console:" + OpHistory) }},
		Op{Name: OpLevelPosition, Do: func() {
			if p := e.Player(); p != nil {
				e.draw(fmt.Sprintf("level:%g,%g", p.X, p.Y))
			}
		}},
		Op{Name: OpEnd, Do: func() { e.draw("console:" + OpEnd) }},
	)
}

// WorldPosition returns the player's position in world coordinates.
func (e *Engine) WorldPosition() (x, y float64, ok bool) {
	p := e.Player()
	if p == nil {
		return 0, 0, false
	}
	return e.LevelX + p.X, e.LevelY + p.Y, true
}

// Routine returns the named render routine.
func (e *Engine) Routine(name string) (*Routine, bool) {
	r, ok := e.routines[name]
	return r, ok
}

// RoutineNames returns the names of all render routines.
func (e *Engine) RoutineNames() []string {
	names := make([]string, 0, len(e.routines))
	for name := range e.routines {
		names = append(names, name)
	}
	return names
}

// Executor returns the per-frame executor override, or nil.
func (e *Engine) Executor() func() {
	return e.executor
}

// SetExecutor installs a per-frame executor override. While set, a frame
// runs the override instead of the scene update; base update still runs.
func (e *Engine) SetExecutor(fn func()) {
	e.executor = fn
}

// Frame returns the number of real frames ticked.
func (e *Engine) Frame() uint64 {
	return e.frame
}

// Player returns the first player entity, if any.
func (e *Engine) Player() *Entity {
	for _, ent := range e.Entities {
		if ent.Player {
			return ent
		}
	}
	return nil
}

// Tick runs one real frame: update through the redirectable entry point,
// then draw.
func (e *Engine) Tick(elapsed time.Duration) {
	e.frame++
	e.total += elapsed
	e.Update.Entry()(GameTime{Frame: e.frame, Elapsed: elapsed, Total: e.total})
	e.Draw()
}

func (e *Engine) update(gt GameTime) {
	e.PollInput.Entry()()

	if exec := e.executor; exec != nil {
		exec()
		e.BaseUpdate.Entry()(gt)
		return
	}

	e.UpdateScene()
	e.BaseUpdate.Entry()(gt)
}

// UpdateScene runs the host's normal per-frame scene logic.
func (e *Engine) UpdateScene() {
	e.SceneUpdates++
	for _, ent := range e.Entities {
		ent.update(e.Input)
		if ent.RenderInUpdate {
			e.RenderEntity.Entry()(ent)
		}
	}
}

func (e *Engine) baseUpdate(gt GameTime) {
	e.BaseUpdates++
}

// Draw renders the frame through the gameplay and level routines and
// returns the operations that emitted output.
func (e *Engine) Draw() []string {
	e.drawn = e.drawn[:0]
	e.routines[RoutineGameplay].Run()
	e.routines[RoutineLevel].Run()
	if e.ConsoleOpen {
		e.routines[RoutineConsole].Run()
	}
	return e.Drawn()
}

// Drawn returns the output of the last Draw.
func (e *Engine) Drawn() []string {
	return append([]string(nil), e.drawn...)
}

// DrawOverlay emits debug overlay output into the current frame.
func (e *Engine) DrawOverlay(what string) {
	e.draw("overlay:" + what)
}

func (e *Engine) draw(what string) {
	e.drawn = append(e.drawn, what)
}

// RenderEntities renders every entity through the redirectable entry point.
func (e *Engine) RenderEntities() {
	for _, ent := range e.Entities {
		e.RenderEntity.Entry()(ent)
	}
}

// Distort composes the gameplay buffer into the level buffer.
func (e *Engine) Distort() {
	e.draw(OpDistort)
}

func (e *Engine) renderEntity(ent *Entity) {
	ent.Renders++
	if ent.OnRender != nil {
		ent.OnRender(ent)
	}
	e.draw("entity:" + ent.Name)
}

func (e *Engine) startThread(w Work) {
	e.threads.Add(1)
	go func() {
		defer e.threads.Done()
		w.Fn()
	}()
}

// WaitThreads waits for worker threads started through StartThread.
func (e *Engine) WaitThreads() {
	e.threads.Wait()
}

func (e *Engine) registerAchievement(name string) {
	e.Achievements = append(e.Achievements, name)
}

func (e *Engine) incrementStat(s Stat) {
	e.StatCounts[s.Name] += s.By
}

func (e *Engine) addBurst(b Burst) Burst {
	e.Bursts = append(e.Bursts, b)
	return b
}
