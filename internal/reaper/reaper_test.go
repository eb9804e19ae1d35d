package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/model"
)

func TestRunSkipsWhenDisabled(t *testing.T) {
	eff := effector.NewFake(0xFF)
	r := New(eff)
	state := model.NewRuntimeState()

	cfg := model.SmartTrimConfig{Enabled: false}
	_, ran := r.Run(context.Background(), cfg, model.Snapshot{}, state, time.Now(), 0, 0)
	if ran {
		t.Error("expected no pass when SmartTrim is disabled")
	}
}

func TestRunSkipsBeforeIntervalElapses(t *testing.T) {
	eff := effector.NewFake(0xFF)
	eff.SystemMemoryPercentValue = 90
	r := New(eff)
	state := model.NewRuntimeState()
	now := time.Now()
	state.LastTrimAt = now

	cfg := model.SmartTrimConfig{Enabled: true, ThresholdPct: 50, IntervalSec: 60, Mode: model.SmartTrimBoth}
	_, ran := r.Run(context.Background(), cfg, model.Snapshot{}, state, now.Add(10*time.Second), 0, 0)
	if ran {
		t.Error("expected no pass before the interval elapses")
	}
}

func TestRunSkipsWhenMemoryBelowThreshold(t *testing.T) {
	eff := effector.NewFake(0xFF)
	eff.SystemMemoryPercentValue = 30
	r := New(eff)
	state := model.NewRuntimeState()

	cfg := model.SmartTrimConfig{Enabled: true, ThresholdPct: 80, IntervalSec: 60, Mode: model.SmartTrimBoth}
	_, ran := r.Run(context.Background(), cfg, model.Snapshot{}, state, time.Now(), 0, 0)
	if ran {
		t.Error("expected no pass when memory usage is below threshold")
	}
}

func TestRunTrimsEligibleProcessesAndPurges(t *testing.T) {
	eff := effector.NewFake(0xFF)
	eff.SystemMemoryPercentValue = 95
	eff.TrimResult = 10 * 1024 * 1024
	r := New(eff)
	state := model.NewRuntimeState()

	shot := model.Snapshot{Processes: []model.ProcessInfo{
		{PID: 1, RSSBytes: 100 * 1024 * 1024}, // foreground, skipped
		{PID: 2, RSSBytes: 5 * 1024 * 1024},   // below floor, skipped
		{PID: 3, RSSBytes: 60 * 1024 * 1024},  // self, skipped
		{PID: 4, RSSBytes: 60 * 1024 * 1024},  // eligible
	}}

	cfg := model.SmartTrimConfig{Enabled: true, ThresholdPct: 50, IntervalSec: 60, Mode: model.SmartTrimBoth}
	now := time.Now()
	result, ran := r.Run(context.Background(), cfg, shot, state, now, 1, 3)
	if !ran {
		t.Fatal("expected a pass to run")
	}
	if result.TrimmedCount != 1 {
		t.Errorf("trimmed count = %d, want 1", result.TrimmedCount)
	}
	if result.FreedMiB != 10 {
		t.Errorf("freed MiB = %v, want 10", result.FreedMiB)
	}
	if eff.CallCount("PurgeStandbyList") != 1 {
		t.Error("expected one standby-list purge call")
	}
	if !state.LastTrimAt.Equal(now) {
		t.Error("expected LastTrimAt to advance to now")
	}
}

func TestRunStandbyOnlyModeSkipsWorkingSetTrim(t *testing.T) {
	eff := effector.NewFake(0xFF)
	eff.SystemMemoryPercentValue = 95
	r := New(eff)
	state := model.NewRuntimeState()

	shot := model.Snapshot{Processes: []model.ProcessInfo{{PID: 4, RSSBytes: 60 * 1024 * 1024}}}
	cfg := model.SmartTrimConfig{Enabled: true, ThresholdPct: 50, IntervalSec: 60, Mode: model.SmartTrimStandbyOnly}

	result, ran := r.Run(context.Background(), cfg, shot, state, time.Now(), 0, 0)
	if !ran {
		t.Fatal("expected a pass to run")
	}
	if result.TrimmedCount != 0 {
		t.Errorf("expected no working-set trims in StandbyOnly mode, got %d", result.TrimmedCount)
	}
	if eff.CallCount("TrimWorkingSet") != 0 {
		t.Error("expected no TrimWorkingSet calls in StandbyOnly mode")
	}
	if eff.CallCount("PurgeStandbyList") != 1 {
		t.Error("expected a standby-list purge")
	}
}
