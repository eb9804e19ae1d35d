// Package reaper implements component H: threshold-gated working-set
// trimming and standby-list purge.
package reaper

import (
	"context"
	"time"

	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/model"
)

// minRSSBytesToTrim is the per-process floor below which a working set is
// left alone; small processes are not worth the syscall.
const minRSSBytesToTrim = 50 * 1024 * 1024

// Result reports the outcome of one reaper pass.
type Result struct {
	FreedMiB     float64
	TrimmedCount int
	Message      string
}

// Reaper holds no mutable state of its own; last_trim_at lives in the
// caller's RuntimeState so the tick loop owns it exclusively.
type Reaper struct {
	eff effector.Effector
}

// New returns a Reaper driving eff.
func New(eff effector.Effector) *Reaper {
	return &Reaper{eff: eff}
}

// Run executes one reaper pass against shot if the preconditions
// (SmartTrimConfig.Enabled and the interval having elapsed) hold. A pass
// that fails to read system memory usage reports ran=true but leaves
// state.LastTrimAt unchanged.
func (r *Reaper) Run(ctx context.Context, cfg model.SmartTrimConfig, shot model.Snapshot, state *model.RuntimeState, now time.Time, foregroundPID, selfPID uint32) (Result, bool) {
	if !cfg.Enabled {
		return Result{}, false
	}
	if !state.LastTrimAt.IsZero() && now.Sub(state.LastTrimAt) < time.Duration(cfg.IntervalSec)*time.Second {
		return Result{}, false
	}

	memPct, err := r.eff.SystemMemoryPercent(ctx)
	if err != nil {
		return Result{Message: "failed to read system memory usage"}, true
	}
	if memPct < float32(cfg.ThresholdPct) {
		return Result{Message: "memory usage below threshold"}, false
	}

	var freedBytes uint64
	var trimmed int
	if cfg.Mode == model.SmartTrimWorkingSet || cfg.Mode == model.SmartTrimBoth {
		for _, proc := range shot.Processes {
			if proc.RSSBytes < minRSSBytesToTrim {
				continue
			}
			if proc.PID == foregroundPID || proc.PID == selfPID {
				continue
			}
			freed, err := r.eff.TrimWorkingSet(ctx, proc.PID)
			if err != nil {
				continue
			}
			freedBytes += freed
			trimmed++
		}
	}

	purgeMessage := ""
	if cfg.Mode == model.SmartTrimStandbyOnly || cfg.Mode == model.SmartTrimBoth {
		if err := r.eff.PurgeStandbyList(ctx); err != nil {
			purgeMessage = "standby list purge failed: " + err.Error()
		}
	}

	state.LastTrimAt = now

	result := Result{
		FreedMiB:     float64(freedBytes) / (1024 * 1024),
		TrimmedCount: trimmed,
		Message:      purgeMessage,
	}
	return result, true
}
