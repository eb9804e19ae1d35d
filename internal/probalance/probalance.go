// Package probalance implements component G: reactive demotion of
// background CPU hogs while a game is active and system load is high.
package probalance

import (
	"context"

	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/model"
	"github.com/corebalance/corebalance/internal/profile"
)

// minCPUPctForDemotion is the per-process activity floor a candidate must
// clear before it is considered a background hog worth demoting.
const minCPUPctForDemotion = 1.0

// Supervisor runs one reactive-suppression pass per tick, tracking demoted
// pids in the RuntimeState it is given.
type Supervisor struct {
	eff effector.Effector
}

// New returns a Supervisor driving eff.
func New(eff effector.Effector) *Supervisor {
	return &Supervisor{eff: eff}
}

// Run applies one tick of the supervisor against shot. foregroundPID
// exempts the active window's owning process from demotion.
func (s *Supervisor) Run(ctx context.Context, snap profile.Snapshot, shot model.Snapshot, state *model.RuntimeState, foregroundPID uint32) {
	cfg := snap.ProBalance

	if !cfg.Enabled {
		s.restoreAll(ctx, state)
		return
	}
	if !anyGameActive(snap, shot) {
		s.restoreAll(ctx, state)
		return
	}

	totalPct := shot.TotalCPUPercent()
	if totalPct <= cfg.CPUThresholdPct {
		s.restoreAll(ctx, state)
		return
	}

	for _, proc := range shot.Processes {
		if !eligibleForDemotion(proc, snap, foregroundPID, state) {
			continue
		}
		if err := s.eff.SetPriority(ctx, proc.PID, cfg.RestrainPriority); err == nil {
			state.Restrained[proc.PID] = true
		}
	}
}

func anyGameActive(snap profile.Snapshot, shot model.Snapshot) bool {
	for _, p := range shot.Processes {
		if snap.IsGame(p.Name) {
			return true
		}
	}
	return false
}

func eligibleForDemotion(proc model.ProcessInfo, snap profile.Snapshot, foregroundPID uint32, state *model.RuntimeState) bool {
	switch proc.Priority {
	case model.Normal, model.AboveNormal, model.High:
	default:
		return false
	}
	if proc.PID == foregroundPID {
		return false
	}
	if snap.IsGame(proc.Name) {
		return false
	}
	if snap.IsExcluded(proc.Name) {
		return false
	}
	if proc.CPUPercent < minCPUPctForDemotion {
		return false
	}
	if state.Restrained[proc.PID] {
		return false
	}
	return true
}

// restoreAll resets every currently-restrained pid to Normal and clears the
// set. The pre-demotion priority is never remembered; restoration always
// targets Normal.
func (s *Supervisor) restoreAll(ctx context.Context, state *model.RuntimeState) {
	for pid := range state.Restrained {
		if err := s.eff.SetPriority(ctx, pid, model.Normal); err == nil {
			delete(state.Restrained, pid)
		}
	}
}
