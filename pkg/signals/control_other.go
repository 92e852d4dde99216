// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build !unix

package signals

func (c *ControlFile) mapFile() error { return nil }

func (c *ControlFile) unmapFile() error { return nil }
