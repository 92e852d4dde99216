// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package render

import (
	"fmt"
	"sync"

	"github.com/mbeema/framectl/pkg/host"
	"go.uber.org/zap"
)

// Kind selects what a patch does at its anchor.
type Kind int

const (
	// Call runs Run, gated by When if set.
	Call Kind = iota
	// Branch runs Run and continues at To when When reports true.
	Branch
	// Widen makes the anchored operation also run when When reports true.
	Widen
)

func (k Kind) String() string {
	switch k {
	case Call:
		return "call"
	case Branch:
		return "branch"
	case Widen:
		return "widen"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Patch is one declarative insertion into a host render routine.
type Patch struct {
	Name string
	At   Anchor
	Pos  host.Position
	Kind Kind
	Run  func()
	When func() bool
	// To is the branch target. It must be in the same routine as At and
	// come after it.
	To Anchor
}

type installed struct {
	routine *host.Routine
	id      int
}

type resolved struct {
	p      Patch
	r      *host.Routine
	index  int
	target int
}

// Composer installs groups of patches. A group installs all or nothing.
type Composer struct {
	matcher *Matcher
	logger  *zap.Logger

	mu     sync.Mutex
	groups map[string][]installed
	order  []string
}

// NewComposer creates a composer for the given host routines.
func NewComposer(routines Routines, logger *zap.Logger) *Composer {
	return &Composer{
		matcher: NewMatcher(routines),
		logger:  logger,
		groups:  make(map[string][]installed),
	}
}

// InstallGroup resolves every patch, then installs them together. Nothing is
// installed if any anchor fails to match.
func (c *Composer) InstallGroup(group string, patches ...Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.groups[group]; ok {
		return fmt.Errorf("render group %q already installed", group)
	}

	plan := make([]resolved, 0, len(patches))
	for _, p := range patches {
		rp, err := c.resolve(p)
		if err != nil {
			return fmt.Errorf("group %s patch %s: %w", group, p.Name, err)
		}
		plan = append(plan, rp)
	}

	var done []installed
	for _, rp := range plan {
		id, err := apply(rp)
		if err != nil {
			for _, in := range done {
				in.routine.Remove(in.id)
			}
			return fmt.Errorf("group %s patch %s: %w", group, rp.p.Name, err)
		}
		done = append(done, installed{routine: rp.r, id: id})
	}

	c.groups[group] = done
	c.order = append(c.order, group)
	c.logger.Debug("render patches installed", zap.String("group", group), zap.Int("patches", len(done)))
	return nil
}

func (c *Composer) resolve(p Patch) (resolved, error) {
	r, index, err := c.matcher.Resolve(p.At)
	if err != nil {
		return resolved{}, err
	}
	rp := resolved{p: p, r: r, index: index}

	switch p.Kind {
	case Call:
		if p.Run == nil {
			return resolved{}, fmt.Errorf("call patch without Run")
		}
	case Branch:
		if p.When == nil {
			return resolved{}, fmt.Errorf("branch patch without When")
		}
		if p.To.Routine != p.At.Routine {
			return resolved{}, fmt.Errorf("branch from %s to %s crosses routines", p.At, p.To)
		}
		_, target, err := c.matcher.Resolve(p.To)
		if err != nil {
			return resolved{}, err
		}
		if target <= index {
			return resolved{}, fmt.Errorf("%s -> %s: %w", p.At, p.To, ErrBackwardBranch)
		}
		rp.target = target
	case Widen:
		if p.When == nil {
			return resolved{}, fmt.Errorf("widen patch without When")
		}
	default:
		return resolved{}, fmt.Errorf("unknown patch kind %v", p.Kind)
	}
	return rp, nil
}

func apply(rp resolved) (int, error) {
	p := rp.p
	switch p.Kind {
	case Widen:
		return rp.r.Widen(rp.index, p.When)
	case Branch:
		target := rp.target
		return rp.r.Insert(rp.index, p.Pos, func() (int, bool) {
			if !p.When() {
				return 0, false
			}
			if p.Run != nil {
				p.Run()
			}
			return target, true
		})
	default:
		return rp.r.Insert(rp.index, p.Pos, func() (int, bool) {
			if p.When == nil || p.When() {
				p.Run()
			}
			return 0, false
		})
	}
}

// Uninstall removes a group's patches.
func (c *Composer) Uninstall(group string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uninstallLocked(group)
}

func (c *Composer) uninstallLocked(group string) bool {
	list, ok := c.groups[group]
	if !ok {
		return false
	}
	for i := len(list) - 1; i >= 0; i-- {
		list[i].routine.Remove(list[i].id)
	}
	delete(c.groups, group)
	for i, g := range c.order {
		if g == group {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// UninstallAll removes every group, most recent first.
func (c *Composer) UninstallAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.order) - 1; i >= 0; i-- {
		c.uninstallLocked(c.order[i])
	}
}

// Groups returns the installed group names in install order.
func (c *Composer) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}
