// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package hook

import (
	"fmt"
	"sync"
)

// Point is a redirectable host entry point. The host always calls through
// Entry(), which resolves to the topmost installed layer or, when nothing is
// installed, to the host's own implementation.
//
// Layers form a chain. Each layer's original resolves the layer beneath it
// at call time, so layers can be added and removed in any order without
// invalidating the originals held by the others.
type Point[F any] struct {
	name    string
	base    F
	forward func(resolve func() F) F

	mu     sync.RWMutex
	top    *layer[F]
	nextID uint64
}

type layer[F any] struct {
	id    uint64
	fn    F
	below *layer[F]
	above *layer[F]
}

// NewPoint creates an entry point. forward must build a function of type F
// that calls whatever resolve returns at the moment it is invoked; the
// NewPoint0/1/2 helpers cover the common signatures.
func NewPoint[F any](name string, base F, forward func(resolve func() F) F) *Point[F] {
	return &Point[F]{
		name:    name,
		base:    base,
		forward: forward,
	}
}

// NewPoint0 creates an entry point for func().
func NewPoint0(name string, base func()) *Point[func()] {
	return NewPoint(name, base, func(resolve func() func()) func() {
		return func() { resolve()() }
	})
}

// NewPoint1 creates an entry point for func(A).
func NewPoint1[A any](name string, base func(A)) *Point[func(A)] {
	return NewPoint(name, base, func(resolve func() func(A)) func(A) {
		return func(a A) { resolve()(a) }
	})
}

// NewPoint2 creates an entry point for func(A, B).
func NewPoint2[A, B any](name string, base func(A, B)) *Point[func(A, B)] {
	return NewPoint(name, base, func(resolve func() func(A, B)) func(A, B) {
		return func(a A, b B) { resolve()(a, b) }
	})
}

// NewPoint1R creates an entry point for func(A) R.
func NewPoint1R[A, R any](name string, base func(A) R) *Point[func(A) R] {
	return NewPoint(name, base, func(resolve func() func(A) R) func(A) R {
		return func(a A) R { return resolve()(a) }
	})
}

// Name returns the entry point identity.
func (p *Point[F]) Name() string {
	return p.name
}

// Entry returns the function the host should dispatch to right now.
func (p *Point[F]) Entry() F {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.top == nil {
		return p.base
	}
	return p.top.fn
}

// Depth returns the number of installed layers.
func (p *Point[F]) Depth() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for l := p.top; l != nil; l = l.below {
		n++
	}
	return n
}

// Detour layers fn on top of the chain. It returns the trampoline that
// reaches whatever was beneath fn, plus an id for Undo. Collaborators that
// do not go through a Manager use this directly.
func (p *Point[F]) Detour(fn F) (F, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	l := &layer[F]{id: p.nextID, fn: fn, below: p.top}
	if p.top != nil {
		p.top.above = l
	}
	p.top = l

	orig := p.forward(func() F {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if l.below == nil {
			return p.base
		}
		return l.below.fn
	})
	return orig, l.id
}

// Undo unlinks the layer with the given id, wherever it sits in the chain.
func (p *Point[F]) Undo(id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for l := p.top; l != nil; l = l.below {
		if l.id != id {
			continue
		}
		if l.above != nil {
			l.above.below = l.below
		} else {
			p.top = l.below
		}
		if l.below != nil {
			l.below.above = l.above
		}
		l.above = nil
		return nil
	}
	return fmt.Errorf("undo %s layer %d: %w", p.name, id, ErrHookNotFound)
}
