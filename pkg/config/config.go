// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Final iteration policies for render suppression during a burst.
const (
	// FinalFollowsHideGameplay suppresses the last burst iteration only when
	// gameplay is hidden.
	FinalFollowsHideGameplay = "hide_gameplay"
	// FinalAlways suppresses every burst iteration, including the last.
	FinalAlways = "always"
)

// Config is the top-level configuration for framectl.
type Config struct {
	LogLevel  string          `yaml:"log_level" env:"FRAMECTL_LOG_LEVEL"`
	Control   ControlConfig   `yaml:"control"`
	Host      HostConfig      `yaml:"host"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Health    HealthConfig    `yaml:"health"`
	Exporters ExportersConfig `yaml:"exporters"`
}

// ControlConfig holds the settings the frame controller reads once per
// real frame. A change never applies in the middle of a burst.
type ControlConfig struct {
	Enabled              bool   `yaml:"enabled"`
	FastForwardCallBase  bool   `yaml:"fast_forward_call_base"`
	FastForwardThreshold int    `yaml:"fast_forward_threshold"`
	BurstCap             int    `yaml:"burst_cap"`       // 0 = unbounded
	FinalIteration       string `yaml:"final_iteration"` // "hide_gameplay" or "always"
	HideGameplay         bool   `yaml:"hide_gameplay"`
	ShowPathfinding      bool   `yaml:"show_pathfinding"`
	ShowHitboxes         bool   `yaml:"show_hitboxes"`
	DisableAchievements  bool   `yaml:"disable_achievements"`
}

// SuppressFinalIteration reports whether the last iteration of a burst of
// total iterations should have its entity rendering suppressed. A single
// iteration is not a burst, so the always policy needs total > 1.
func (c *ControlConfig) SuppressFinalIteration(total int) bool {
	if c.HideGameplay {
		return true
	}
	return c.FinalIteration == FinalAlways && total > 1
}

// HostConfig configures the reference host driven by the CLI.
type HostConfig struct {
	TickRate int `yaml:"tick_rate"` // real frames per second
	Frames   int `yaml:"frames"`    // stop after this many real frames (0 = run until signalled)
}

// PlaybackConfig selects the input source.
type PlaybackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	File       string `yaml:"file"`        // input file replayed in-process
	ControlDir string `yaml:"control_dir"` // shared control block for an out-of-process engine
}

// HealthConfig configures the health HTTP server.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port" env:"FRAMECTL_HEALTH_PORT"` // e.g. ":8686"
}

type ExportersConfig struct {
	Interval time.Duration `yaml:"interval"`
	OTLP     OTLPConfig    `yaml:"otlp"`
	Stdout   StdoutConfig  `yaml:"stdout"`
}

type OTLPConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	Compression string `yaml:"compression"` // "gzip" or "none"
}

type StdoutConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // "text" or "json"
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Control: ControlConfig{
			Enabled:              true,
			FastForwardThreshold: 10,
			FinalIteration:       FinalFollowsHideGameplay,
		},
		Host: HostConfig{
			TickRate: 60,
		},
		Health: HealthConfig{
			Enabled: true,
			Port:    ":8686",
		},
		Exporters: ExportersConfig{
			Interval: 15 * time.Second,
			OTLP: OTLPConfig{
				Enabled:     false,
				Endpoint:    "localhost:4317",
				Insecure:    true,
				Compression: "gzip",
			},
			Stdout: StdoutConfig{
				Enabled: false,
				Format:  "text",
			},
		},
	}
}

// LoadDir loads YAML files from a directory and merges them into a single
// Config:
//   - base.yaml    → log_level, host, playback, health, exporters
//   - control.yaml → control
//
// Missing files are silently ignored (defaults apply).
func LoadDir(dir string) (*Config, error) {
	cfg := DefaultConfig()

	for _, f := range []string{"base.yaml", "control.yaml"} {
		if err := loadFileInto(filepath.Join(dir, f), cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// loadFileInto reads a YAML file and unmarshals it into an existing Config,
// overwriting only the fields present in the file.
func loadFileInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ApplyEnvOverrides reads FRAMECTL_* environment variables and applies them
// to the config, overriding YAML values.
func (c *Config) ApplyEnvOverrides() {
	envOverrides := map[string]func(string){
		"FRAMECTL_LOG_LEVEL":               func(v string) { c.LogLevel = v },
		"FRAMECTL_HEALTH_PORT":             func(v string) { c.Health.Port = v },
		"FRAMECTL_EXPORTERS_OTLP_ENDPOINT": func(v string) { c.Exporters.OTLP.Endpoint = v },
		"FRAMECTL_PLAYBACK_FILE":           func(v string) { c.Playback.File = v },
		"FRAMECTL_PLAYBACK_CONTROL_DIR":    func(v string) { c.Playback.ControlDir = v },
		"FRAMECTL_FINAL_ITERATION":         func(v string) { c.Control.FinalIteration = v },
	}

	boolOverrides := map[string]*bool{
		"FRAMECTL_CONTROL_ENABLED":        &c.Control.Enabled,
		"FRAMECTL_HIDE_GAMEPLAY":          &c.Control.HideGameplay,
		"FRAMECTL_FAST_FORWARD_CALL_BASE": &c.Control.FastForwardCallBase,
		"FRAMECTL_PLAYBACK_ENABLED":       &c.Playback.Enabled,
		"FRAMECTL_HEALTH_ENABLED":         &c.Health.Enabled,
		"FRAMECTL_EXPORTERS_OTLP_ENABLED": &c.Exporters.OTLP.Enabled,
	}

	intOverrides := map[string]*int{
		"FRAMECTL_BURST_CAP":              &c.Control.BurstCap,
		"FRAMECTL_FAST_FORWARD_THRESHOLD": &c.Control.FastForwardThreshold,
		"FRAMECTL_HOST_TICK_RATE":         &c.Host.TickRate,
	}

	for envKey, setter := range envOverrides {
		if val := os.Getenv(envKey); val != "" {
			setter(val)
		}
	}

	for envKey, target := range boolOverrides {
		if val := os.Getenv(envKey); val != "" {
			*target = parseBool(val)
		}
	}

	for envKey, target := range intOverrides {
		if val := os.Getenv(envKey); val != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				*target = n
			}
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Control.FastForwardThreshold < 1 {
		return fmt.Errorf("control.fast_forward_threshold must be at least 1")
	}

	if c.Control.BurstCap < 0 {
		return fmt.Errorf("control.burst_cap must not be negative")
	}

	switch c.Control.FinalIteration {
	case FinalFollowsHideGameplay, FinalAlways:
	default:
		return fmt.Errorf("control.final_iteration must be %q or %q", FinalFollowsHideGameplay, FinalAlways)
	}

	if c.Host.TickRate <= 0 {
		return fmt.Errorf("host.tick_rate must be positive")
	}

	if c.Host.Frames < 0 {
		return fmt.Errorf("host.frames must not be negative")
	}

	if c.Playback.Enabled && c.Playback.File == "" && c.Playback.ControlDir == "" {
		return fmt.Errorf("playback.file or playback.control_dir is required when playback is enabled")
	}

	if c.Health.Enabled && c.Health.Port == "" {
		return fmt.Errorf("health.port is required when health is enabled")
	}

	if c.Exporters.OTLP.Enabled && c.Exporters.OTLP.Endpoint == "" {
		return fmt.Errorf("exporters.otlp.endpoint is required when OTLP is enabled")
	}

	if (c.Exporters.OTLP.Enabled || c.Exporters.Stdout.Enabled) && c.Exporters.Interval < time.Second {
		return fmt.Errorf("exporters.interval must be at least 1s")
	}

	return nil
}
