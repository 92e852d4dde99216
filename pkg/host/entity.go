// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package host

// Entity is a scene object.
type Entity struct {
	Name   string
	X, Y   float64
	Player bool

	// RenderInUpdate entities draw into an offscreen buffer from their
	// update, through the redirectable render entry point.
	RenderInUpdate bool

	// SideEffectRender marks entities whose render mutates game state, so
	// it must still run when their pixel output is suppressed.
	SideEffectRender bool

	// OnUpdate and OnRender are optional per-entity behaviour.
	OnUpdate func(*Entity)
	OnRender func(*Entity)

	Updates int
	Renders int
}

// NewPlayer creates a player entity at x, y.
func NewPlayer(x, y float64) *Entity {
	return &Entity{Name: "player", X: x, Y: y, Player: true}
}

// Center returns the entity's hitbox centre.
func (e *Entity) Center() (float64, float64) {
	return e.X + 4, e.Y - 5.5
}

func (e *Entity) update(in *Input) {
	e.Updates++
	if e.Player {
		if in.Check(ButtonLeft) {
			e.X--
		}
		if in.Check(ButtonRight) {
			e.X++
		}
		if in.Pressed(ButtonJump) {
			e.Y -= 3
		}
	}
	if e.OnUpdate != nil {
		e.OnUpdate(e)
	}
}
