// Package policy implements component F: picking exactly one target
// profile per process per tick (Resolve) and reconciling observed state
// against that target within the per-tick operation budget (Enforcer).
package policy

import (
	"github.com/corebalance/corebalance/internal/model"
	"github.com/corebalance/corebalance/internal/profile"
)

// Target is the resolved, per-process desired state the enforcer
// reconciles observed state against.
type Target struct {
	AffinityMask   *uint64
	AffinityMode   model.AffinityMode
	Priority       *model.PriorityClass
	ThreadBindCore *uint32
	IdealCore      *uint32
}

// minCPUPctForSystemRule is the system-process enforcement gate: the
// system default rule only applies to a process that is doing something
// (cpu_pct >= 0.1) or already diverges from Normal priority, to avoid
// touching quiescent processes.
const minCPUPctForSystemRule = 0.1

// Resolve picks exactly one target profile for proc, in precedence order:
// an explicit enabled profile, then default rules' game/system split
// (skipping the protected-name set and the quiescent-system-process gate),
// then no target at all.
func Resolve(snap profile.Snapshot, proc model.ProcessInfo, selfExeName string) (Target, bool) {
	if p, ok := snap.FindProfile(proc.Name); ok {
		return targetFromProfile(p), true
	}

	if !snap.DefaultRules.Enabled {
		return Target{}, false
	}
	if model.IsProtected(proc.Name, selfExeName) {
		return Target{}, false
	}

	if snap.IsGame(proc.Name) {
		prio := snap.DefaultRules.GamePriority
		return Target{AffinityMask: snap.DefaultRules.GameMask, AffinityMode: model.AffinityHard, Priority: &prio}, true
	}

	observedNotNormal := proc.Priority != model.Normal
	if proc.CPUPercent < minCPUPctForSystemRule && !observedNotNormal {
		return Target{}, false
	}
	prio := snap.DefaultRules.SystemPriority
	return Target{AffinityMask: snap.DefaultRules.SystemMask, AffinityMode: model.AffinityHard, Priority: &prio}, true
}

func targetFromProfile(p model.TargetProfile) Target {
	return Target{
		AffinityMask:   p.AffinityMask,
		AffinityMode:   p.AffinityMode,
		Priority:       p.Priority,
		ThreadBindCore: p.ThreadBindCore,
		IdealCore:      p.IdealCore,
	}
}
