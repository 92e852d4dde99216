// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestHealthEndpoint(t *testing.T) {
	stats := NewStats()
	srv := NewServer(":0", "1.0.0-test", stats, zap.NewNop())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var hr healthResponse
	if err := json.Unmarshal(body, &hr); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if hr.Status != "healthy" {
		t.Errorf("expected status=healthy, got %q", hr.Status)
	}
	if hr.Version != "1.0.0-test" {
		t.Errorf("expected version=1.0.0-test, got %q", hr.Version)
	}
}

func TestHealthReportsFramesAndFailures(t *testing.T) {
	stats := NewStats()
	stats.RealFrames.Add(7)
	stats.BurstIterations.Add(70)
	srv := NewServer(":0", "test", stats, zap.NewNop())
	srv.SetReady(true)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	get := func() healthResponse {
		t.Helper()
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var hr healthResponse
		if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		return hr
	}

	hr := get()
	if hr.Status != "healthy" || !hr.Attached {
		t.Errorf("status=%q attached=%v, want healthy attached", hr.Status, hr.Attached)
	}
	if hr.RealFrames != 7 || hr.BurstIterations != 70 {
		t.Errorf("frames=%d iterations=%d, want 7 and 70", hr.RealFrames, hr.BurstIterations)
	}

	stats.UpdateFailures.Add(1)
	if hr := get(); hr.Status != "degraded" || hr.UpdateFailures != 1 {
		t.Errorf("status=%q failures=%d, want degraded with 1", hr.Status, hr.UpdateFailures)
	}
}

func TestReadyEndpoint(t *testing.T) {
	srv := NewServer(":0", "test", NewStats(), zap.NewNop())

	w := httptest.NewRecorder()
	srv.handleReady(w, httptest.NewRequest("GET", "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before SetReady, got %d", w.Code)
	}

	srv.SetReady(true)
	w = httptest.NewRecorder()
	srv.handleReady(w, httptest.NewRequest("GET", "/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after SetReady, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"attached"`) {
		t.Errorf("unexpected ready body %q", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	stats := NewStats()
	stats.BurstIterations.Add(42)
	stats.InputPollsBlocked.Add(3)

	srv := NewServer(":0", "test", stats, zap.NewNop())

	w := httptest.NewRecorder()
	srv.handleMetrics(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	if !strings.Contains(body, "framectl_burst_iterations_total 42") {
		t.Errorf("expected burst_iterations_total 42 in metrics output")
	}
	if !strings.Contains(body, "framectl_input_polls_blocked_total 3") {
		t.Errorf("expected input_polls_blocked_total 3 in metrics output")
	}
	if !strings.Contains(body, "# TYPE framectl_uptime_seconds gauge") {
		t.Errorf("expected uptime gauge in metrics output")
	}
}

func TestStateEndpoint(t *testing.T) {
	srv := NewServer(":0", "test", NewStats(), zap.NewNop())

	w := httptest.NewRecorder()
	srv.handleState(w, httptest.NewRequest("GET", "/state", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a state source, got %d", w.Code)
	}

	srv.SetStateFunc(func() any { return map[string]int{"frame_loops": 3} })
	w = httptest.NewRecorder()
	srv.handleState(w, httptest.NewRequest("GET", "/state", nil))
	if !strings.Contains(w.Body.String(), `"frame_loops":3`) {
		t.Errorf("unexpected state body %q", w.Body.String())
	}
}

func TestSnapshotCounters(t *testing.T) {
	stats := NewStats()
	stats.FrameSteps.Add(2)
	counters := stats.Snapshot().Counters()
	if counters["framectl_frame_steps_total"] != 2 {
		t.Errorf("frame_steps_total = %d, want 2", counters["framectl_frame_steps_total"])
	}
}

func TestServerStartStop(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "test", NewStats(), zap.NewNop())

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
