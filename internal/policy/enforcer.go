package policy

import (
	"context"

	"github.com/corebalance/corebalance/internal/binder"
	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/model"
	"github.com/corebalance/corebalance/internal/profile"
)

// operationBudgetPerTick bounds how many processes receive expensive
// mutations in one tick: further eligible processes wait for a subsequent
// tick.
const operationBudgetPerTick = 5

// Enforcer reconciles each process's observed state against its resolved
// Target, applying at most operationBudgetPerTick mutations per tick.
type Enforcer struct {
	eff    effector.Effector
	binder *binder.Binder
}

// NewEnforcer returns an Enforcer driving eff, using b for thread-bind and
// ideal-core target fields.
func NewEnforcer(eff effector.Effector, b *binder.Binder) *Enforcer {
	return &Enforcer{eff: eff, binder: b}
}

// Enforce walks shot in order and mutates at most operationBudgetPerTick
// processes toward their resolved target.
func (e *Enforcer) Enforce(ctx context.Context, snap profile.Snapshot, shot *model.Snapshot, state *model.RuntimeState, selfExeName string) {
	budget := operationBudgetPerTick
	for i := range shot.Processes {
		if budget <= 0 {
			return
		}
		proc := &shot.Processes[i]
		target, ok := Resolve(snap, *proc, selfExeName)
		if !ok {
			continue
		}
		if e.enforceOne(ctx, proc, target, state) {
			budget--
		}
	}
}

func (e *Enforcer) enforceOne(ctx context.Context, proc *model.ProcessInfo, target Target, state *model.RuntimeState) bool {
	mutated := false
	var priorityOverride *model.PriorityClass

	if target.AffinityMask != nil {
		if target.AffinityMode == model.AffinitySoft {
			if !proc.SoftAffinityApplied {
				if err := e.eff.SetSoftAffinity(ctx, proc.PID, maskToCoreIDs(*target.AffinityMask)); err == nil {
					proc.SoftAffinityApplied = true
					mutated = true
				}
			}
		} else {
			result := effector.ApplyMode(target.AffinityMode, *target.AffinityMask)
			observed := observedMaskValue(*proc, e.eff.SystemMask())
			applied, hasApplied := state.LastApplied[proc.PID]
			alreadyApplied := hasApplied && applied.Mask == result.Mask
			if observed != result.Mask && !alreadyApplied {
				if err := e.eff.SetHardAffinity(ctx, proc.PID, result.Mask); err == nil {
					mutated = true
					applied.Mask = result.Mask
					state.LastApplied[proc.PID] = applied
				}
			}
			if result.HasForcedPriority {
				priorityOverride = &result.ForcedPriority
			}
		}
	}

	effectivePriority := target.Priority
	switch {
	case priorityOverride != nil:
		effectivePriority = priorityOverride
	case target.AffinityMode == model.AffinityDynamic:
		// Dynamic is equivalent to Hard with the mask but never also
		// modifies priority.
		effectivePriority = nil
	}

	if effectivePriority != nil {
		applied, hasApplied := state.LastApplied[proc.PID]
		alreadyApplied := hasApplied && applied.Priority == *effectivePriority
		if *effectivePriority != proc.Priority && !alreadyApplied {
			if err := e.eff.SetPriority(ctx, proc.PID, *effectivePriority); err == nil {
				mutated = true
				applied.Priority = *effectivePriority
				state.LastApplied[proc.PID] = applied
			}
		}
	}

	if target.ThreadBindCore != nil {
		if last, ok := state.ThreadBindApplied[proc.PID]; !ok || last != *target.ThreadBindCore {
			if _, err := e.binder.BindHeaviest(ctx, proc.PID, *target.ThreadBindCore); err == nil {
				state.ThreadBindApplied[proc.PID] = *target.ThreadBindCore
				mutated = true
			}
		}
	}
	if target.IdealCore != nil {
		if last, ok := state.IdealCoreApplied[proc.PID]; !ok || last != *target.IdealCore {
			if _, err := e.binder.BindIdealHeaviest(ctx, proc.PID, *target.IdealCore); err == nil {
				state.IdealCoreApplied[proc.PID] = *target.IdealCore
				mutated = true
			}
		}
	}

	return mutated
}

func observedMaskValue(proc model.ProcessInfo, systemMask uint64) uint64 {
	if proc.Affinity.All {
		return systemMask
	}
	return proc.Affinity.Mask
}

func maskToCoreIDs(mask uint64) []uint32 {
	var ids []uint32
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			ids = append(ids, uint32(i))
		}
	}
	return ids
}
