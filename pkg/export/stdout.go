// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// StdoutExporter prints metrics for debugging.
type StdoutExporter struct {
	format string // "text" or "json"
	w      io.Writer
}

// NewStdoutExporter creates a stdout exporter.
func NewStdoutExporter(format string) *StdoutExporter {
	return newWriterExporter(format, os.Stdout)
}

func newWriterExporter(format string, w io.Writer) *StdoutExporter {
	if format == "" {
		format = "text"
	}
	return &StdoutExporter{format: format, w: w}
}

// ExportMetrics prints metrics.
func (e *StdoutExporter) ExportMetrics(ctx context.Context, metrics []*Metric) error {
	for _, m := range metrics {
		if e.format == "json" {
			b, err := json.Marshal(map[string]interface{}{
				"_type":     "metric",
				"name":      m.Name,
				"type":      metricTypeName(m.Type),
				"value":     m.Value,
				"unit":      m.Unit,
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"labels":    m.Labels,
			})
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(e.w, "%s\n", b); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(e.w, "[METRIC] %-40s %-7s %.4f %s %s\n",
			m.Name, metricTypeName(m.Type), m.Value, m.Unit, formatLabels(m.Labels)); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown is a no-op for stdout.
func (e *StdoutExporter) Shutdown(ctx context.Context) error {
	return nil
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
