// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import "sync/atomic"

// Store holds the live configuration. Readers get an immutable snapshot;
// writers replace it wholesale, so a snapshot taken at the start of a frame
// stays consistent for that whole frame.
type Store struct {
	cfg atomic.Pointer[Config]
}

// NewStore creates a store holding cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.cfg.Store(cfg)
	return s
}

// Get returns the current configuration snapshot. Callers must not modify it.
func (s *Store) Get() *Config {
	return s.cfg.Load()
}

// Control returns the current control settings snapshot.
func (s *Store) Control() *ControlConfig {
	return &s.cfg.Load().Control
}

// Replace swaps in a newly loaded configuration.
func (s *Store) Replace(cfg *Config) {
	s.cfg.Store(cfg)
}

// UpdateControl applies fn to a copy of the control settings and publishes
// the result.
func (s *Store) UpdateControl(fn func(*ControlConfig)) {
	for {
		old := s.cfg.Load()
		next := *old
		fn(&next.Control)
		if s.cfg.CompareAndSwap(old, &next) {
			return
		}
	}
}
