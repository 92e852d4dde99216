// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package health

import (
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats tracks counters for the frame controller and its hooks. All fields
// are written from the host's main thread and read by the HTTP server and
// exporters.
type Stats struct {
	startTime time.Time
	proc      *process.Process

	RealFrames          atomic.Int64 // redirected update calls
	PassThroughFrames   atomic.Int64 // calls while the controller was disabled
	BurstIterations     atomic.Int64 // original update invocations inside bursts
	ClampedBursts       atomic.Int64 // bursts shortened by the burst cap
	BaseUpdatesDeferred atomic.Int64 // deferred base updates fired after a burst
	BaseUpdatesSkipped  atomic.Int64 // base updates swallowed mid-burst
	InputPollsRead      atomic.Int64
	InputPollsBlocked   atomic.Int64
	InputInjections     atomic.Int64
	FrameSteps          atomic.Int64 // settle executor runs
	RendersSuppressed   atomic.Int64
	UpdateFailures      atomic.Int64 // panics propagated out of the original update
	HookConflicts       atomic.Int64
	AnchorFailures      atomic.Int64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	s := &Stats{startTime: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	return s
}

// Uptime returns uptime.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds       float64
	Goroutines          int
	MemoryRSSBytes      uint64
	CPUPercent          float64
	RealFrames          int64
	PassThroughFrames   int64
	BurstIterations     int64
	ClampedBursts       int64
	BaseUpdatesDeferred int64
	BaseUpdatesSkipped  int64
	InputPollsRead      int64
	InputPollsBlocked   int64
	InputInjections     int64
	FrameSteps          int64
	RendersSuppressed   int64
	UpdateFailures      int64
	HookConflicts       int64
	AnchorFailures      int64
}

// Snapshot returns current stats.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		UptimeSeconds:       s.Uptime().Seconds(),
		Goroutines:          runtime.NumGoroutine(),
		RealFrames:          s.RealFrames.Load(),
		PassThroughFrames:   s.PassThroughFrames.Load(),
		BurstIterations:     s.BurstIterations.Load(),
		ClampedBursts:       s.ClampedBursts.Load(),
		BaseUpdatesDeferred: s.BaseUpdatesDeferred.Load(),
		BaseUpdatesSkipped:  s.BaseUpdatesSkipped.Load(),
		InputPollsRead:      s.InputPollsRead.Load(),
		InputPollsBlocked:   s.InputPollsBlocked.Load(),
		InputInjections:     s.InputInjections.Load(),
		FrameSteps:          s.FrameSteps.Load(),
		RendersSuppressed:   s.RendersSuppressed.Load(),
		UpdateFailures:      s.UpdateFailures.Load(),
		HookConflicts:       s.HookConflicts.Load(),
		AnchorFailures:      s.AnchorFailures.Load(),
	}

	if s.proc != nil {
		if mem, err := s.proc.MemoryInfo(); err == nil {
			snap.MemoryRSSBytes = mem.RSS
		}
		if cpu, err := s.proc.CPUPercent(); err == nil {
			snap.CPUPercent = cpu
		}
	}
	if snap.MemoryRSSBytes == 0 {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		snap.MemoryRSSBytes = memStats.Sys
	}

	return snap
}

// Counters returns the monotonic counters keyed by their exported name.
func (snap Snapshot) Counters() map[string]int64 {
	return map[string]int64{
		"framectl_real_frames_total":           snap.RealFrames,
		"framectl_passthrough_frames_total":    snap.PassThroughFrames,
		"framectl_burst_iterations_total":      snap.BurstIterations,
		"framectl_clamped_bursts_total":        snap.ClampedBursts,
		"framectl_base_updates_deferred_total": snap.BaseUpdatesDeferred,
		"framectl_base_updates_skipped_total":  snap.BaseUpdatesSkipped,
		"framectl_input_polls_read_total":      snap.InputPollsRead,
		"framectl_input_polls_blocked_total":   snap.InputPollsBlocked,
		"framectl_input_injections_total":      snap.InputInjections,
		"framectl_frame_steps_total":           snap.FrameSteps,
		"framectl_renders_suppressed_total":    snap.RendersSuppressed,
		"framectl_update_failures_total":       snap.UpdateFailures,
		"framectl_hook_conflicts_total":        snap.HookConflicts,
		"framectl_anchor_failures_total":       snap.AnchorFailures,
	}
}

// PrometheusMetrics returns stats in Prometheus text exposition format.
func (s *Stats) PrometheusMetrics() string {
	return prometheusFormat(s.Snapshot())
}

func prometheusFormat(snap Snapshot) string {
	var b []byte
	b = appendMetric(b, "framectl_uptime_seconds", "gauge", "Controller uptime in seconds", snap.UptimeSeconds)
	b = appendMetric(b, "framectl_goroutines", "gauge", "Number of goroutines", float64(snap.Goroutines))
	b = appendMetric(b, "framectl_memory_rss_bytes", "gauge", "Resident memory in bytes", float64(snap.MemoryRSSBytes))
	b = appendMetric(b, "framectl_cpu_percent", "gauge", "Process CPU usage percent", snap.CPUPercent)
	b = appendMetric(b, "framectl_real_frames_total", "counter", "Redirected update calls", float64(snap.RealFrames))
	b = appendMetric(b, "framectl_passthrough_frames_total", "counter", "Update calls passed straight through", float64(snap.PassThroughFrames))
	b = appendMetric(b, "framectl_burst_iterations_total", "counter", "Original update invocations inside bursts", float64(snap.BurstIterations))
	b = appendMetric(b, "framectl_clamped_bursts_total", "counter", "Bursts shortened by the burst cap", float64(snap.ClampedBursts))
	b = appendMetric(b, "framectl_base_updates_deferred_total", "counter", "Deferred base updates fired after a burst", float64(snap.BaseUpdatesDeferred))
	b = appendMetric(b, "framectl_base_updates_skipped_total", "counter", "Base updates skipped inside bursts", float64(snap.BaseUpdatesSkipped))
	b = appendMetric(b, "framectl_input_polls_read_total", "counter", "Host input polls that read real devices", float64(snap.InputPollsRead))
	b = appendMetric(b, "framectl_input_polls_blocked_total", "counter", "Host input polls blocked during playback", float64(snap.InputPollsBlocked))
	b = appendMetric(b, "framectl_input_injections_total", "counter", "Input source invocations", float64(snap.InputInjections))
	b = appendMetric(b, "framectl_frame_steps_total", "counter", "Settle executor runs", float64(snap.FrameSteps))
	b = appendMetric(b, "framectl_renders_suppressed_total", "counter", "Entity renders suppressed", float64(snap.RendersSuppressed))
	b = appendMetric(b, "framectl_update_failures_total", "counter", "Failures propagated from the original update", float64(snap.UpdateFailures))
	b = appendMetric(b, "framectl_hook_conflicts_total", "counter", "Features disabled by hook conflicts", float64(snap.HookConflicts))
	b = appendMetric(b, "framectl_anchor_failures_total", "counter", "Features disabled by unresolved anchors", float64(snap.AnchorFailures))
	return string(b)
}

func appendMetric(b []byte, name, typ, help string, value float64) []byte {
	b = append(b, "# HELP "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, help...)
	b = append(b, '\n')
	b = append(b, "# TYPE "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, typ...)
	b = append(b, '\n')
	b = append(b, name...)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, value, 'f', -1, 64)
	b = append(b, '\n')
	return b
}
