// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbeema/framectl/pkg/agent"
	"github.com/mbeema/framectl/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  string
		configDir   string
		logLevel    string
		playFile    string
		frames      int
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to configuration file (watched for changes)")
	flag.StringVar(&configDir, "config-dir", "", "path to config directory (base.yaml + control.yaml, watched for changes)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&playFile, "play", "", "input file to replay")
	flag.IntVar(&frames, "frames", -1, "stop after this many real frames (0 = run until signalled)")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("framectl %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := load(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if playFile != "" {
		cfg.Playback.Enabled = true
		cfg.Playback.File = playFile
	}
	if frames >= 0 {
		cfg.Host.Frames = frames
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting framectl",
		zap.String("version", version),
		zap.String("commit", commit),
	)

	a, err := agent.New(cfg, logger, agent.WithVersion(version))
	if err != nil {
		logger.Fatal("failed to create agent", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		logger.Fatal("failed to start agent", zap.Error(err))
	}

	onChange := func(newCfg *config.Config, changedFile string) {
		if err := a.Reload(newCfg); err != nil {
			logger.Error("failed to apply reloaded config",
				zap.String("file", changedFile),
				zap.Error(err),
			)
		}
	}

	var watcher *config.Watcher
	switch {
	case configDir != "":
		watcher = config.NewWatcher(configDir, onChange, logger)
	case configPath != "":
		watcher = config.NewFileWatcher(configPath, onChange, logger)
	}
	if watcher != nil {
		if err := watcher.Start(ctx); err != nil {
			logger.Fatal("failed to start config watcher", zap.Error(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	shutdown := func() {
		if watcher != nil {
			watcher.Stop()
		}
		cancel()

		shutdownDone := make(chan struct{})
		go func() {
			if err := a.Stop(); err != nil {
				logger.Error("error during shutdown", zap.Error(err))
			}
			close(shutdownDone)
		}()

		select {
		case <-shutdownDone:
			logger.Info("framectl stopped")
		case <-time.After(30 * time.Second):
			logger.Error("shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			shutdown()
			return

		case <-a.Done():
			shutdown()
			return

		case <-hupCh:
			logger.Info("received SIGHUP, reloading configuration")
			newCfg, err := load(configPath, configDir)
			if err != nil {
				logger.Error("failed to reload config", zap.Error(err))
				continue
			}
			if err := a.Reload(newCfg); err != nil {
				logger.Error("failed to apply new config", zap.Error(err))
			} else {
				logger.Info("configuration reloaded successfully")
			}
		}
	}
}

func load(path, dir string) (*config.Config, error) {
	if dir != "" {
		return config.LoadDir(dir)
	}
	if path != "" {
		return config.Load(path)
	}

	for _, p := range []string{"configs/framectl.yaml", "/etc/framectl/framectl.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.DefaultConfig(), nil
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.Set(level); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return cfg.Build()
}
