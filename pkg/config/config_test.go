package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate: %v", err)
	}
	if !cfg.Control.Enabled {
		t.Error("control should be enabled by default")
	}
	if cfg.Control.FastForwardThreshold != 10 {
		t.Errorf("FastForwardThreshold = %d, want 10", cfg.Control.FastForwardThreshold)
	}
	if cfg.Control.BurstCap != 0 {
		t.Errorf("BurstCap = %d, want 0 (unbounded)", cfg.Control.BurstCap)
	}
}

func TestSuppressFinalIteration(t *testing.T) {
	c := ControlConfig{FinalIteration: FinalFollowsHideGameplay}
	if c.SuppressFinalIteration(3) {
		t.Error("final iteration should render when gameplay is visible")
	}
	c.HideGameplay = true
	if !c.SuppressFinalIteration(1) {
		t.Error("final iteration should be suppressed when gameplay is hidden")
	}

	c = ControlConfig{FinalIteration: FinalAlways}
	if !c.SuppressFinalIteration(3) {
		t.Error("always policy should suppress the final iteration")
	}
	if c.SuppressFinalIteration(1) {
		t.Error("always policy should not suppress a single-iteration frame")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framectl.yaml")
	data := []byte(`
log_level: debug
control:
  burst_cap: 10
  hide_gameplay: true
host:
  tick_rate: 30
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Control.BurstCap != 10 || !cfg.Control.HideGameplay {
		t.Errorf("control = %+v", cfg.Control)
	}
	if !cfg.Control.Enabled {
		t.Error("unset control.enabled should keep its default")
	}
	if cfg.Host.TickRate != 30 {
		t.Errorf("TickRate = %d, want 30", cfg.Host.TickRate)
	}
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framectl.yaml")
	if err := os.WriteFile(path, []byte("control:\n  final_iteration: sometimes\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for unknown final_iteration")
	}
}

func TestLoadDirMergesControlFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("log_level: warn\n"), 0644)
	os.WriteFile(filepath.Join(dir, "control.yaml"), []byte("control:\n  fast_forward_threshold: 4\n"), 0644)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Control.FastForwardThreshold != 4 {
		t.Errorf("FastForwardThreshold = %d, want 4", cfg.Control.FastForwardThreshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FRAMECTL_BURST_CAP", "10")
	t.Setenv("FRAMECTL_HIDE_GAMEPLAY", "yes")
	t.Setenv("FRAMECTL_HEALTH_PORT", ":9999")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Control.BurstCap != 10 {
		t.Errorf("BurstCap = %d, want 10", cfg.Control.BurstCap)
	}
	if !cfg.Control.HideGameplay {
		t.Error("HideGameplay should be overridden to true")
	}
	if cfg.Health.Port != ":9999" {
		t.Errorf("Health.Port = %q, want :9999", cfg.Health.Port)
	}
}

func TestStoreUpdateControlIsCopyOnWrite(t *testing.T) {
	s := NewStore(DefaultConfig())
	before := s.Control()

	s.UpdateControl(func(c *ControlConfig) { c.HideGameplay = !c.HideGameplay })

	if before.HideGameplay {
		t.Error("snapshot taken before the update must not change")
	}
	if !s.Control().HideGameplay {
		t.Error("update not published")
	}
}
