// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package host

import (
	"fmt"
	"strings"
)

// Buttons is a set of pressed buttons.
type Buttons uint16

const (
	ButtonLeft Buttons = 1 << iota
	ButtonRight
	ButtonUp
	ButtonDown
	ButtonJump
	ButtonDash
	ButtonGrab
	ButtonHitboxes
	ButtonPathfinding
	ButtonGameplay

	hotkeyMask = ButtonHitboxes | ButtonPathfinding | ButtonGameplay
)

var buttonKeys = []struct {
	key string
	b   Buttons
}{
	{"L", ButtonLeft},
	{"R", ButtonRight},
	{"U", ButtonUp},
	{"D", ButtonDown},
	{"J", ButtonJump},
	{"X", ButtonDash},
	{"G", ButtonGrab},
}

// ParseButtons converts input-file key letters into a button set.
func ParseButtons(keys []string) (Buttons, error) {
	var out Buttons
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		found := false
		for _, bk := range buttonKeys {
			if bk.key == k {
				out |= bk.b
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown key %q", k)
		}
	}
	return out, nil
}

func (b Buttons) String() string {
	var parts []string
	for _, bk := range buttonKeys {
		if b&bk.b != 0 {
			parts = append(parts, bk.key)
		}
	}
	return strings.Join(parts, ",")
}

// Input is the host's shared input state. Everything else in the host reads
// Current and Previous; only the input poll and the playback engine write
// them.
type Input struct {
	device   Buttons
	Current  Buttons
	Previous Buttons
	Polls    int

	hotPrevious Buttons
}

// SetDevice sets what the physical devices report.
func (in *Input) SetDevice(b Buttons) {
	in.device = b
}

// Device returns what the physical devices report.
func (in *Input) Device() Buttons {
	return in.device
}

// Poll reads the physical devices.
func (in *Input) Poll() {
	in.Polls++
	in.Previous = in.Current
	in.Current = in.device
}

// Feed replaces the devices as the source for this frame.
func (in *Input) Feed(b Buttons) {
	in.Previous = in.Current
	in.Current = b
}

// Check reports whether b is held.
func (in *Input) Check(b Buttons) bool {
	return in.Current&b != 0
}

// Pressed reports whether b went down this frame.
func (in *Input) Pressed(b Buttons) bool {
	return in.Current&b != 0 && in.Previous&b == 0
}

// PollHotkeys samples the devices for the hotkey buttons and returns the
// ones that went down since the last call. Hotkeys read the devices
// directly so they keep working while playback feeds the input state.
func (in *Input) PollHotkeys() Buttons {
	held := in.device & hotkeyMask
	pressed := held &^ in.hotPrevious
	in.hotPrevious = held
	return pressed
}
