// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestFileWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framectl.yaml")
	if err := os.WriteFile(path, []byte("control:\n  hide_gameplay: false\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got := make(chan *Config, 4)
	w := NewFileWatcher(path, func(cfg *Config, file string) {
		select {
		case got <- cfg:
		default:
		}
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Unrelated files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("log_level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("control:\n  hide_gameplay: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if !cfg.Control.HideGameplay {
			t.Error("reloaded config did not pick up hide_gameplay")
		}
		if cfg.LogLevel != "info" {
			t.Errorf("log level = %q, other.yaml leaked in", cfg.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	called := make(chan struct{}, 1)
	w := NewWatcher(dir, func(*Config, string) { called <- struct{}{} }, zap.NewNop())

	if err := os.WriteFile(filepath.Join(dir, "control.yaml"), []byte("control:\n  final_iteration: never\n"), 0644); err != nil {
		t.Fatal(err)
	}
	w.reload("control.yaml")

	select {
	case <-called:
		t.Fatal("onChange called for an invalid config")
	default:
	}
}
