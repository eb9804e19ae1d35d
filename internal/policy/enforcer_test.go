package policy

import (
	"context"
	"testing"

	"github.com/corebalance/corebalance/internal/binder"
	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/model"
	"github.com/corebalance/corebalance/internal/profile"
)

func newEnforcer(eff effector.Effector) *Enforcer {
	return NewEnforcer(eff, binder.New(eff))
}

func TestEnforceAppliesPriorityOnFirstDivergence(t *testing.T) {
	eff := effector.NewFake(0xFF)
	e := newEnforcer(eff)
	state := model.NewRuntimeState()

	high := model.High
	store := profile.New()
	store.SetProfiles([]model.TargetProfile{{Name: "game.exe", Enabled: true, Priority: &high}})
	snap := store.Snapshot()

	shot := &model.Snapshot{Processes: []model.ProcessInfo{{PID: 1, Name: "game.exe", Priority: model.Normal}}}
	e.Enforce(context.Background(), snap, shot, state, "corebalance.exe")

	if got := eff.Priorities[1]; got != model.High {
		t.Fatalf("priority = %v, want High", got)
	}
	if applied := state.LastApplied[1]; applied.Priority != model.High {
		t.Errorf("LastApplied[1].Priority = %v, want High", applied.Priority)
	}
}

func TestEnforceSkipsRedundantCallWhenLastAppliedMatchesStaleObservation(t *testing.T) {
	eff := effector.NewFake(0xFF)
	e := newEnforcer(eff)
	state := model.NewRuntimeState()
	// Simulate a pid whose priority was already pushed to High last tick, but
	// whose cached observed field has not been refreshed yet and still reads
	// Normal (the sampler only refreshes this field every third tick).
	state.LastApplied[1] = model.AppliedTarget{Priority: model.High}

	high := model.High
	store := profile.New()
	store.SetProfiles([]model.TargetProfile{{Name: "game.exe", Enabled: true, Priority: &high}})
	snap := store.Snapshot()

	shot := &model.Snapshot{Processes: []model.ProcessInfo{{PID: 1, Name: "game.exe", Priority: model.Normal}}}
	e.Enforce(context.Background(), snap, shot, state, "corebalance.exe")

	if eff.CallCount("SetPriority") != 0 {
		t.Errorf("expected no SetPriority call when LastApplied already matches the target, got %d", eff.CallCount("SetPriority"))
	}
}

func TestEnforceSkipsRedundantAffinityCallWhenLastAppliedMatches(t *testing.T) {
	eff := effector.NewFake(0xFF)
	e := newEnforcer(eff)
	state := model.NewRuntimeState()
	mask := uint64(0x0F)
	state.LastApplied[1] = model.AppliedTarget{Mask: mask}

	m := mask
	store := profile.New()
	store.SetProfiles([]model.TargetProfile{{Name: "game.exe", Enabled: true, AffinityMask: &m, AffinityMode: model.AffinityHard}})
	snap := store.Snapshot()

	shot := &model.Snapshot{Processes: []model.ProcessInfo{{PID: 1, Name: "game.exe", Affinity: model.AffinityView{Mask: 0xFF0}}}}
	e.Enforce(context.Background(), snap, shot, state, "corebalance.exe")

	if eff.CallCount("SetHardAffinity") != 0 {
		t.Errorf("expected no SetHardAffinity call when LastApplied already matches the target, got %d", eff.CallCount("SetHardAffinity"))
	}
}
