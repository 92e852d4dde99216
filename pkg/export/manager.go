// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbeema/framectl/pkg/config"
	"github.com/mbeema/framectl/pkg/health"
	"go.uber.org/zap"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	backoffFactor  = 2.0
	exportTimeout  = 10 * time.Second
)

// Manager snapshots the controller counters every interval and sends them to
// each exporter, retrying with backoff behind a circuit breaker.
type Manager struct {
	logger    *zap.Logger
	exporters []Exporter
	stats     *health.Stats
	interval  time.Duration
	labels    map[string]string
	start     time.Time
	backoff   time.Duration
	breaker   *Breaker

	exported atomic.Int64
	dropped  atomic.Int64

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager from configuration. An OTLP exporter that
// cannot be created is logged and skipped.
func NewManager(cfg *config.ExportersConfig, stats *health.Stats, serviceName, version string, logger *zap.Logger) *Manager {
	var exporters []Exporter
	if cfg.OTLP.Enabled {
		exp, err := NewOTLPExporter(&cfg.OTLP, serviceName, version, logger)
		if err != nil {
			logger.Warn("failed to create OTLP exporter", zap.Error(err))
		} else {
			exporters = append(exporters, exp)
		}
	}
	if cfg.Stdout.Enabled {
		exporters = append(exporters, NewStdoutExporter(cfg.Stdout.Format))
	}
	return newManager(exporters, stats, cfg.Interval, map[string]string{"service": serviceName}, logger)
}

func newManager(exporters []Exporter, stats *health.Stats, interval time.Duration, labels map[string]string, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:    logger,
		exporters: exporters,
		stats:     stats,
		interval:  interval,
		labels:    labels,
		start:     time.Now(),
		backoff:   initialBackoff,
		breaker:   NewBreaker(5, 30*time.Second),
		stopCh:    make(chan struct{}),
	}
	m.breaker.OnChange(func(from, to CircuitState) {
		logger.Warn("export circuit changed", zap.Stringer("from", from), zap.Stringer("to", to))
	})
	return m
}

// Enabled reports whether any exporter is configured.
func (m *Manager) Enabled() bool {
	return len(m.exporters) > 0
}

// Start begins periodic export. It is a no-op without exporters.
func (m *Manager) Start(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info("export manager started",
		zap.Int("exporters", len(m.exporters)),
		zap.Duration("interval", m.interval),
	)
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Flush(ctx)
		case <-m.stopCh:
			m.Flush(context.Background())
			return
		case <-ctx.Done():
			m.Flush(context.Background())
			return
		}
	}
}

// Flush exports one snapshot now.
func (m *Manager) Flush(ctx context.Context) {
	metrics := FromSnapshot(m.stats.Snapshot(), m.start, time.Now(), m.labels)
	for _, exp := range m.exporters {
		exp := exp
		m.retryExport(ctx, func(expCtx context.Context) error {
			return exp.ExportMetrics(expCtx, metrics)
		})
	}
}

// Stop flushes a final snapshot and shuts the exporters down.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	for _, exp := range m.exporters {
		if err := exp.Shutdown(ctx); err != nil {
			m.logger.Error("exporter shutdown error", zap.Error(err))
		}
	}

	m.logger.Info("export manager stopped",
		zap.Int64("exported", m.exported.Load()),
		zap.Int64("dropped", m.dropped.Load()),
	)
	return nil
}

func (m *Manager) retryExport(ctx context.Context, exportFn func(context.Context) error) {
	if !m.breaker.Allow() {
		m.dropped.Add(1)
		m.logger.Debug("circuit breaker open, dropping export")
		return
	}

	backoff := m.backoff
	for attempt := 0; attempt <= maxRetries; attempt++ {
		exportCtx, cancel := context.WithTimeout(ctx, exportTimeout)
		err := exportFn(exportCtx)
		cancel()

		if err == nil {
			m.breaker.Success()
			m.exported.Add(1)
			return
		}

		m.breaker.Failure()

		if attempt == maxRetries {
			m.logger.Error("export failed after retries", zap.Int("attempts", attempt+1), zap.Error(err))
			m.dropped.Add(1)
			return
		}

		m.logger.Warn("export failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			m.dropped.Add(1)
			return
		}

		backoff = time.Duration(math.Min(float64(backoff)*backoffFactor, float64(maxBackoff)))
	}
}

// Exported returns the number of successful exports.
func (m *Manager) Exported() int64 {
	return m.exported.Load()
}

// DropCount returns the number of exports given up on.
func (m *Manager) DropCount() int64 {
	return m.dropped.Load()
}
