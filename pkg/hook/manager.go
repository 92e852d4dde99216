// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package hook

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrHookConflict means the manager already redirects the target.
	ErrHookConflict = errors.New("hook conflict")
	// ErrHookNotFound means there is no registration for the target.
	ErrHookNotFound = errors.New("hook not found")
)

// registration is one installed redirection owned by a Manager.
type registration struct {
	target string
	undo   func() error
}

// Manager owns the redirections installed by one module. It allows at most
// one registration per target; restoration order is left to the chain in
// each Point, so uninstalling never disturbs layers added by others.
type Manager struct {
	owner  string
	logger *zap.Logger

	mu    sync.Mutex
	regs  map[string]registration
	order []string
}

// NewManager creates a new hook manager.
func NewManager(owner string, logger *zap.Logger) *Manager {
	return &Manager{
		owner:  owner,
		logger: logger,
		regs:   make(map[string]registration),
	}
}

// Install redirects p to replacement and returns the trampoline to the
// implementation that was active beneath it. The trampoline stays valid for
// the lifetime of the registration, even when other hooks are layered on p
// afterwards or removed.
func Install[F any](m *Manager, p *Point[F], replacement F) (F, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, ok := m.regs[name]; ok {
		var zero F
		return zero, fmt.Errorf("install %s: %w", name, ErrHookConflict)
	}

	orig, id := p.Detour(replacement)
	m.regs[name] = registration{
		target: name,
		undo:   func() error { return p.Undo(id) },
	}
	m.order = append(m.order, name)

	m.logger.Debug("hook installed",
		zap.String("owner", m.owner),
		zap.String("target", name),
		zap.Int("depth", p.Depth()),
	)
	return orig, nil
}

// Uninstall removes the redirection of target.
func (m *Manager) Uninstall(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uninstallLocked(target)
}

func (m *Manager) uninstallLocked(target string) error {
	reg, ok := m.regs[target]
	if !ok {
		return fmt.Errorf("uninstall %s: %w", target, ErrHookNotFound)
	}
	// The registration is kept while its layer is still in the chain.
	if err := reg.undo(); err != nil {
		return fmt.Errorf("uninstall %s: %w", target, err)
	}

	delete(m.regs, target)
	for i, name := range m.order {
		if name == target {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.logger.Debug("hook uninstalled", zap.String("owner", m.owner), zap.String("target", target))
	return nil
}

// UninstallAll removes every registration, most recent first. Targets
// whose undo fails stay registered.
func (m *Manager) UninstallAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	targets := append([]string(nil), m.order...)
	var errs []error
	for i := len(targets) - 1; i >= 0; i-- {
		if err := m.uninstallLocked(targets[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Installed reports whether the manager currently redirects target.
func (m *Manager) Installed(target string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.regs[target]
	return ok
}

// Targets returns the installed targets in installation order.
func (m *Manager) Targets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
