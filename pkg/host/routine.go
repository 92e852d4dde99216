// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package host

import (
	"fmt"
	"sync"
)

// Position places an insertion relative to an operation.
type Position int

const (
	Before Position = iota
	After
)

func (p Position) String() string {
	if p == After {
		return "after"
	}
	return "before"
}

// Op is one named step of a render routine. Cond, when set, gates Do.
type Op struct {
	Name string
	Do   func()
	Cond func() bool
}

// Insertion runs at a fixed position around an operation. Returning
// branch=true continues the routine at op index target instead of the next
// step. Only forward branches are honoured; target may equal the routine
// length to end it early.
type Insertion func() (target int, branch bool)

type insertion struct {
	id int
	fn Insertion
}

type widening struct {
	id   int
	pred func() bool
}

type slot struct {
	before []insertion
	after  []insertion
	widen  []widening
}

// Routine is a host render routine expressed as a fixed sequence of named
// operations. Its extension points are the positions before and after
// each operation.
type Routine struct {
	name string
	ops  []Op

	mu     sync.RWMutex
	nextID int
	slots  map[int]*slot
}

// NewRoutine creates a routine.
func NewRoutine(name string, ops ...Op) *Routine {
	return &Routine{
		name:  name,
		ops:   ops,
		slots: make(map[int]*slot),
	}
}

// Name returns the routine name.
func (r *Routine) Name() string {
	return r.name
}

// Ops returns the operation names in order.
func (r *Routine) Ops() []string {
	names := make([]string, len(r.ops))
	for i, op := range r.ops {
		names[i] = op.Name
	}
	return names
}

// Len returns the number of operations.
func (r *Routine) Len() int {
	return len(r.ops)
}

func (r *Routine) slotLocked(index int) *slot {
	s, ok := r.slots[index]
	if !ok {
		s = &slot{}
		r.slots[index] = s
	}
	return s
}

// Insert adds fn before or after the operation at index and returns an id
// for Remove.
func (r *Routine) Insert(index int, pos Position, fn Insertion) (int, error) {
	if index < 0 || index >= len(r.ops) {
		return 0, fmt.Errorf("%s: op index %d out of range [0,%d)", r.name, index, len(r.ops))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	s := r.slotLocked(index)
	ins := insertion{id: r.nextID, fn: fn}
	if pos == After {
		s.after = append(s.after, ins)
	} else {
		s.before = append(s.before, ins)
	}
	return r.nextID, nil
}

// Widen ors pred into the gate of the operation at index, so the operation
// also runs whenever pred is true.
func (r *Routine) Widen(index int, pred func() bool) (int, error) {
	if index < 0 || index >= len(r.ops) {
		return 0, fmt.Errorf("%s: op index %d out of range [0,%d)", r.name, index, len(r.ops))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	s := r.slotLocked(index)
	s.widen = append(s.widen, widening{id: r.nextID, pred: pred})
	return r.nextID, nil
}

// Remove deletes an insertion or widening by id.
func (r *Routine) Remove(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.slots {
		for i, ins := range s.before {
			if ins.id == id {
				s.before = append(s.before[:i], s.before[i+1:]...)
				return true
			}
		}
		for i, ins := range s.after {
			if ins.id == id {
				s.after = append(s.after[:i], s.after[i+1:]...)
				return true
			}
		}
		for i, w := range s.widen {
			if w.id == id {
				s.widen = append(s.widen[:i], s.widen[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Instrumented returns the number of live insertions and widenings.
func (r *Routine) Instrumented() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.slots {
		n += len(s.before) + len(s.after) + len(s.widen)
	}
	return n
}

func (r *Routine) snapshot(index int) slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[index]
	if !ok {
		return slot{}
	}
	return slot{
		before: append([]insertion(nil), s.before...),
		after:  append([]insertion(nil), s.after...),
		widen:  append([]widening(nil), s.widen...),
	}
}

func runInsertions(list []insertion, pc int) (int, bool) {
	for _, ins := range list {
		if target, branch := ins.fn(); branch && target > pc {
			return target, true
		}
	}
	return 0, false
}

// Run executes the routine.
func (r *Routine) Run() {
	pc := 0
	for pc < len(r.ops) {
		op := r.ops[pc]
		s := r.snapshot(pc)

		if target, ok := runInsertions(s.before, pc); ok {
			pc = target
			continue
		}

		run := op.Cond == nil || op.Cond()
		for _, w := range s.widen {
			if run {
				break
			}
			run = w.pred()
		}
		if run && op.Do != nil {
			op.Do()
		}

		if target, ok := runInsertions(s.after, pc); ok {
			pc = target
			continue
		}
		pc++
	}
}
