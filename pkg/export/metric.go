// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package export ships controller counters to metric backends on a fixed
// interval.
package export

import (
	"context"
	"sort"
	"time"

	"github.com/mbeema/framectl/pkg/health"
)

// MetricType identifies the kind of metric.
type MetricType int

const (
	MetricGauge MetricType = iota
	MetricCounter
)

// Metric is one exported data point.
type Metric struct {
	Name      string
	Unit      string
	Type      MetricType
	Value     float64
	Timestamp time.Time
	StartTime time.Time
	Labels    map[string]string
}

// Exporter sends metrics to one backend.
type Exporter interface {
	ExportMetrics(ctx context.Context, metrics []*Metric) error
	Shutdown(ctx context.Context) error
}

// FromSnapshot converts a stats snapshot into metrics. Counters are
// cumulative since start; process figures are gauges.
func FromSnapshot(snap health.Snapshot, start, now time.Time, labels map[string]string) []*Metric {
	counters := snap.Counters()
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Metric, 0, len(names)+4)
	for _, name := range names {
		out = append(out, &Metric{
			Name:      name,
			Unit:      "1",
			Type:      MetricCounter,
			Value:     float64(counters[name]),
			Timestamp: now,
			StartTime: start,
			Labels:    labels,
		})
	}

	gauge := func(name, unit string, v float64) {
		out = append(out, &Metric{Name: name, Unit: unit, Type: MetricGauge, Value: v, Timestamp: now, Labels: labels})
	}
	gauge("framectl_uptime_seconds", "s", snap.UptimeSeconds)
	gauge("framectl_goroutines", "1", float64(snap.Goroutines))
	gauge("framectl_memory_rss_bytes", "By", float64(snap.MemoryRSSBytes))
	gauge("framectl_cpu_percent", "%", snap.CPUPercent)
	return out
}

func metricTypeName(t MetricType) string {
	switch t {
	case MetricGauge:
		return "gauge"
	case MetricCounter:
		return "counter"
	default:
		return "unknown"
	}
}
