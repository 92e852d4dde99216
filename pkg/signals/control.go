// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package signals

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	controlFileName = "playback.ctl"
	controlFileSize = 4096
)

// Offsets inside the control block.
const (
	offFlags      = 0 // bit 0 running, bit 1 recording
	offMode       = 1
	offFrameLoops = 4 // uint32
	offRequests   = 8 // uint64, bumped once per UpdateInputs
)

const (
	flagRunning   = 1 << 0
	flagRecording = 1 << 1
)

// ControlFile is a one-page shared memory block through which a playback
// engine running in another process publishes its signals. The controller
// side maps it and implements Playback on top of it; UpdateInputs bumps a
// request counter the engine watches.
//
// On unix the page is mmap'ed so writes from either side are visible
// immediately through the page cache. Elsewhere it falls back to positioned
// reads and writes.
type ControlFile struct {
	path string
	file *os.File
	mem  []byte

	mu sync.Mutex
}

// CreateControlFile creates a zeroed control file in dir. FrameLoops starts
// at 1 and the mode at None.
func CreateControlFile(dir string) (*ControlFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create control dir: %w", err)
	}
	path := filepath.Join(dir, controlFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("create control file: %w", err)
	}
	if err := f.Truncate(controlFileSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate control file: %w", err)
	}

	c := &ControlFile{path: path, file: f}
	if err := c.mapFile(); err != nil {
		f.Close()
		return nil, fmt.Errorf("map control file: %w", err)
	}
	c.SetFrameLoops(DefaultFrameLoops)
	return c, nil
}

// OpenControlFile opens an existing control file, typically from the
// playback engine's side.
func OpenControlFile(dir string) (*ControlFile, error) {
	path := filepath.Join(dir, controlFileName)

	f, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("open control file %s: %w", path, err)
	}

	c := &ControlFile{path: path, file: f}
	if err := c.mapFile(); err != nil {
		f.Close()
		return nil, fmt.Errorf("map control file: %w", err)
	}
	return c, nil
}

func (c *ControlFile) read(off, n int) []byte {
	if c.mem != nil {
		out := make([]byte, n)
		copy(out, c.mem[off:off+n])
		return out
	}
	buf := make([]byte, n)
	if _, err := c.file.ReadAt(buf, int64(off)); err != nil {
		return make([]byte, n)
	}
	return buf
}

func (c *ControlFile) write(off int, b []byte) {
	if c.mem != nil {
		copy(c.mem[off:], b)
		return
	}
	c.file.WriteAt(b, int64(off))
}

// FrameLoops implements Playback.
func (c *ControlFile) FrameLoops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(binary.LittleEndian.Uint32(c.read(offFrameLoops, 4)))
}

// SetFrameLoops implements Playback.
func (c *ControlFile) SetFrameLoops(n int) {
	if n < 0 {
		n = 0
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	c.mu.Lock()
	c.write(offFrameLoops, b[:])
	c.mu.Unlock()
}

func (c *ControlFile) flags() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(offFlags, 1)[0]
}

func (c *ControlFile) setFlag(flag byte, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.read(offFlags, 1)[0]
	if on {
		v |= flag
	} else {
		v &^= flag
	}
	c.write(offFlags, []byte{v})
}

// Running implements Playback.
func (c *ControlFile) Running() bool {
	return c.flags()&flagRunning != 0
}

// SetRunning is used by the playback engine side.
func (c *ControlFile) SetRunning(on bool) {
	c.setFlag(flagRunning, on)
}

// Recording implements Playback.
func (c *ControlFile) Recording() bool {
	return c.flags()&flagRecording != 0
}

// SetRecording is used by the playback engine side.
func (c *ControlFile) SetRecording(on bool) {
	c.setFlag(flagRecording, on)
}

// Mode implements Playback.
func (c *ControlFile) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Mode(c.read(offMode, 1)[0])
}

// SetMode implements Playback.
func (c *ControlFile) SetMode(m Mode) {
	c.mu.Lock()
	c.write(offMode, []byte{byte(m)})
	c.mu.Unlock()
}

// UpdateInputs implements Playback by bumping the request counter.
func (c *ControlFile) UpdateInputs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := binary.LittleEndian.Uint64(c.read(offRequests, 8))
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n+1)
	c.write(offRequests, b[:])
}

// Requests returns how many UpdateInputs calls have been published.
func (c *ControlFile) Requests() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return binary.LittleEndian.Uint64(c.read(offRequests, 8))
}

// Close unmaps and closes the file. Does NOT remove it.
func (c *ControlFile) Close() error {
	if err := c.unmapFile(); err != nil {
		return err
	}
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

// Remove removes the control file from disk.
func (c *ControlFile) Remove() {
	os.Remove(c.path)
}

// Path returns the control file path.
func (c *ControlFile) Path() string {
	return c.path
}
