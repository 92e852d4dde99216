// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mbeema/framectl/pkg/config"
	"github.com/mbeema/framectl/pkg/health"
	"go.uber.org/zap"

	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
)

type fakeExporter struct {
	mu       sync.Mutex
	fail     int
	calls    int
	last     []*Metric
	shutdown bool
}

func (f *fakeExporter) ExportMetrics(ctx context.Context, metrics []*Metric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return errors.New("unavailable")
	}
	f.last = metrics
	return nil
}

func (f *fakeExporter) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	f.shutdown = true
	f.mu.Unlock()
	return nil
}

func findMetric(ms []*Metric, name string) *Metric {
	for _, m := range ms {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func TestFromSnapshot(t *testing.T) {
	stats := health.NewStats()
	stats.BurstIterations.Add(7)
	now := time.Now()

	ms := FromSnapshot(stats.Snapshot(), now.Add(-time.Minute), now, map[string]string{"service": "framectl"})

	m := findMetric(ms, "framectl_burst_iterations_total")
	if m == nil || m.Type != MetricCounter || m.Value != 7 {
		t.Fatalf("burst iterations metric = %+v", m)
	}
	if g := findMetric(ms, "framectl_uptime_seconds"); g == nil || g.Type != MetricGauge {
		t.Errorf("uptime gauge = %+v", g)
	}
}

func TestConvertMetric(t *testing.T) {
	now := time.Now()
	pm := convertMetric(&Metric{
		Name: "framectl_frame_steps_total", Type: MetricCounter, Value: 3,
		Timestamp: now, StartTime: now.Add(-time.Second), Labels: map[string]string{"b": "2", "a": "1"},
	})
	sum, ok := pm.Data.(*metricspb.Metric_Sum)
	if !ok {
		t.Fatalf("counter converted to %T", pm.Data)
	}
	dp := sum.Sum.DataPoints[0]
	if dp.GetAsDouble() != 3 || dp.StartTimeUnixNano == 0 {
		t.Errorf("data point = %+v", dp)
	}
	if dp.Attributes[0].Key != "a" {
		t.Errorf("attributes not sorted: %v", dp.Attributes)
	}

	pm = convertMetric(&Metric{Name: "g", Type: MetricGauge, Value: 1, Timestamp: now})
	if _, ok := pm.Data.(*metricspb.Metric_Gauge); !ok {
		t.Errorf("gauge converted to %T", pm.Data)
	}
}

func TestFlushRetries(t *testing.T) {
	exp := &fakeExporter{fail: 2}
	m := newManager([]Exporter{exp}, health.NewStats(), time.Hour, nil, zap.NewNop())
	m.backoff = time.Millisecond

	m.Flush(context.Background())

	if exp.calls != 3 {
		t.Fatalf("calls = %d, want 3", exp.calls)
	}
	if m.Exported() != 1 || m.DropCount() != 0 {
		t.Errorf("exported=%d dropped=%d", m.Exported(), m.DropCount())
	}
	if len(exp.last) == 0 {
		t.Error("no metrics delivered")
	}
}

func TestFlushGivesUp(t *testing.T) {
	exp := &fakeExporter{fail: 100}
	m := newManager([]Exporter{exp}, health.NewStats(), time.Hour, nil, zap.NewNop())
	m.backoff = time.Millisecond

	m.Flush(context.Background())
	if exp.calls != maxRetries+1 || m.DropCount() != 1 {
		t.Fatalf("calls=%d dropped=%d", exp.calls, m.DropCount())
	}

	// Four failures leave the breaker one short of open; the next flush
	// opens it and the one after is dropped without a call.
	m.Flush(context.Background())
	calls := exp.calls
	m.Flush(context.Background())
	if exp.calls != calls {
		t.Errorf("exported through an open circuit")
	}
}

func TestStartStop(t *testing.T) {
	exp := &fakeExporter{}
	m := newManager([]Exporter{exp}, health.NewStats(), time.Hour, nil, zap.NewNop())
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if exp.calls != 1 || !exp.shutdown {
		t.Errorf("calls=%d shutdown=%v", exp.calls, exp.shutdown)
	}
}

func TestNewManagerWithoutExporters(t *testing.T) {
	cfg := config.DefaultConfig()
	m := NewManager(&cfg.Exporters, health.NewStats(), "framectl", "test", zap.NewNop())
	if m.Enabled() {
		t.Fatal("enabled with no exporters configured")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestStdoutFormats(t *testing.T) {
	ms := []*Metric{{Name: "framectl_real_frames_total", Type: MetricCounter, Value: 5, Unit: "1", Labels: map[string]string{"service": "x"}}}

	var text bytes.Buffer
	if err := newWriterExporter("", &text).ExportMetrics(context.Background(), ms); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "framectl_real_frames_total") || !strings.Contains(text.String(), `service="x"`) {
		t.Errorf("text output = %q", text.String())
	}

	var js bytes.Buffer
	if err := newWriterExporter("json", &js).ExportMetrics(context.Background(), ms); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js.String(), `"type":"counter"`) {
		t.Errorf("json output = %q", js.String())
	}
}
