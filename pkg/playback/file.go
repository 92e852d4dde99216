// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package playback

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mbeema/framectl/pkg/host"
)

const (
	fieldSep       = ","
	commentPrefix  = "#"
	markerPrefix   = "***"
	defaultFFSpeed = 10
)

// Entry holds the buttons for Frames consecutive frames.
type Entry struct {
	Frames  int
	Buttons host.Buttons
	Line    int
}

// Marker is a fast-forward breakpoint. Playback runs at Speed frame loops
// until Frame is reached.
type Marker struct {
	Frame int
	Speed int
	Line  int
}

// Script is a parsed input file.
type Script struct {
	Entries []Entry
	Markers []Marker
	Total   int
}

// ParseFile reads an input file from disk.
func ParseFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an input script. Each line is "<frames>,<key>,<key>...";
// blank lines and lines starting with # are ignored; "***" or "***<n>"
// marks a fast-forward breakpoint.
func Parse(r io.Reader) (*Script, error) {
	s := &Script{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, commentPrefix) {
			continue
		}

		if strings.HasPrefix(text, markerPrefix) {
			speed := defaultFFSpeed
			if rest := strings.TrimSpace(strings.TrimPrefix(text, markerPrefix)); rest != "" {
				n, err := strconv.Atoi(rest)
				if err != nil || n < 1 {
					return nil, fmt.Errorf("playback: line %d: bad fast-forward speed %q", line, rest)
				}
				speed = n
			}
			s.Markers = append(s.Markers, Marker{Frame: s.Total, Speed: speed, Line: line})
			continue
		}

		toks := strings.Split(text, fieldSep)
		frames, err := strconv.Atoi(strings.TrimSpace(toks[0]))
		if err != nil || frames < 1 {
			return nil, fmt.Errorf("playback: line %d: bad frame count %q", line, toks[0])
		}
		buttons, err := host.ParseButtons(toks[1:])
		if err != nil {
			return nil, fmt.Errorf("playback: line %d: %w", line, err)
		}
		s.Entries = append(s.Entries, Entry{Frames: frames, Buttons: buttons, Line: line})
		s.Total += frames
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}
	return s, nil
}

// Buttons returns the buttons for the given 0-based frame.
func (s *Script) Buttons(frame int) (host.Buttons, bool) {
	for _, e := range s.Entries {
		if frame < e.Frames {
			return e.Buttons, true
		}
		frame -= e.Frames
	}
	return 0, false
}

// SpeedAt returns the frame loops that apply at frame: the speed of the
// next breakpoint not yet reached, or 0 when none is ahead.
func (s *Script) SpeedAt(frame int) int {
	for _, m := range s.Markers {
		if frame < m.Frame {
			return m.Speed
		}
	}
	return 0
}

// Write encodes recorded per-frame buttons, merging repeated frames.
func Write(w io.Writer, frames []host.Buttons) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < len(frames); {
		j := i + 1
		for j < len(frames) && frames[j] == frames[i] {
			j++
		}
		line := strconv.Itoa(j - i)
		if keys := frames[i].String(); keys != "" {
			line += fieldSep + keys
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
		i = j
	}
	return bw.Flush()
}
