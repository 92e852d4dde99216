// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package render

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/mbeema/framectl/pkg/host"
)

var (
	// ErrAnchorNotFound means an anchor does not match the host routine.
	ErrAnchorNotFound = errors.New("anchor not found")
	// ErrBackwardBranch means a branch patch targets an earlier operation.
	ErrBackwardBranch = errors.New("branch target is not after the anchor")
)

// Anchor names a location in a host render routine: the Ordinal-th
// occurrence (1-based) of operation Op.
type Anchor struct {
	Routine string
	Op      string
	Ordinal int
}

// At is shorthand for an Anchor.
func At(routine, op string, ordinal int) Anchor {
	return Anchor{Routine: routine, Op: op, Ordinal: ordinal}
}

func (a Anchor) String() string {
	return fmt.Sprintf("%s/%s#%d", a.Routine, a.Op, a.Ordinal)
}

// Routines is the set of render routines a host exposes.
type Routines interface {
	Routine(name string) (*host.Routine, bool)
	RoutineNames() []string
}

// Matcher resolves anchors against a host.
type Matcher struct {
	routines Routines
}

// NewMatcher creates a matcher for routines.
func NewMatcher(routines Routines) *Matcher {
	return &Matcher{routines: routines}
}

// Resolve returns the routine and op index an anchor refers to.
func (m *Matcher) Resolve(a Anchor) (*host.Routine, int, error) {
	r, ok := m.routines.Routine(a.Routine)
	if !ok {
		return nil, 0, fmt.Errorf("%s: routine %q%s: %w",
			a, a.Routine, suggest(a.Routine, m.routines.RoutineNames()), ErrAnchorNotFound)
	}
	if a.Ordinal < 1 {
		return nil, 0, fmt.Errorf("%s: ordinal must be >= 1: %w", a, ErrAnchorNotFound)
	}

	ops := r.Ops()
	seen := 0
	for i, name := range ops {
		if name != a.Op {
			continue
		}
		seen++
		if seen == a.Ordinal {
			return r, i, nil
		}
	}
	if seen > 0 {
		return nil, 0, fmt.Errorf("%s: only %d occurrence(s) of %q: %w", a, seen, a.Op, ErrAnchorNotFound)
	}
	return nil, 0, fmt.Errorf("%s: op %q%s: %w", a, a.Op, suggest(a.Op, ops), ErrAnchorNotFound)
}

// suggest returns a " (did you mean ...)" hint for the closest candidates.
func suggest(name string, candidates []string) string {
	type match struct {
		name string
		dist int
	}
	var matches []match
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(c))
		if d <= distanceLimit(len(c)) {
			matches = append(matches, match{c, d})
		}
	}
	if len(matches) == 0 {
		return ""
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].dist == matches[j].dist {
			return matches[i].name < matches[j].name
		}
		return matches[i].dist < matches[j].dist
	})
	return fmt.Sprintf(" (did you mean %q?)", matches[0].name)
}

func distanceLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}
