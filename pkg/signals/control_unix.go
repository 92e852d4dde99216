// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build unix

package signals

import "golang.org/x/sys/unix"

func (c *ControlFile) mapFile() error {
	mem, err := unix.Mmap(int(c.file.Fd()), 0, controlFileSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	c.mem = mem
	return nil
}

func (c *ControlFile) unmapFile() error {
	if c.mem == nil {
		return nil
	}
	mem := c.mem
	c.mem = nil
	return unix.Munmap(mem)
}
