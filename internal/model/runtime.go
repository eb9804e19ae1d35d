package model

import "time"

// AppliedTarget is the cached result of the last successful mutation for a
// pid, used by the enforcer to skip redundant Win32 calls.
type AppliedTarget struct {
	Mask     uint64
	Priority PriorityClass
}

// DetailsTuple is the sampler's cache of expensive per-process fields,
// refreshed only every third tick.
type DetailsTuple struct {
	Priority PriorityClass
	Affinity AffinityView
}

// ThreadSample is one cumulative CPU-time observation, in nanoseconds; the
// sampler keeps one per pid in ProcessCPUCache to compute cpu_pct deltas.
type ThreadSample struct {
	CPUTimeNS uint64
	SampledAt time.Time
}

// RuntimeState is the single-owner, sampler-loop-confined mutable state
// the restrained set, the enforcement caches, and the
// reaper's debounce timer. No component outside the governor's tick loop
// holds a long-lived reference to this struct; other subsystems receive a
// borrow for the duration of one tick.
type RuntimeState struct {
	Restrained     map[uint32]bool
	LastApplied    map[uint32]AppliedTarget
	DetailsCache   map[uint32]DetailsTuple
	ThreadCPUCache map[uint32]ThreadSample
	// ProcessCPUCache holds each pid's last cumulative CPU time sample, used
	// by the sampler to derive a per-tick CPU% delta.
	ProcessCPUCache map[uint32]ThreadSample
	LastTrimAt      time.Time
	TickCount       uint64

	// ThreadBindApplied / IdealCoreApplied record the last resolved-target
	// thread-bind/ideal-core value applied per pid, so the enforcer can
	// apply the transition once rather than every tick ("not
	// re-checked every tick, no observable state to compare against").
	ThreadBindApplied map[uint32]uint32
	IdealCoreApplied  map[uint32]uint32

	// LastTweaks caches the most recent system-tweak diagnostic run, since
	// it is refreshed far less often than once per tick.
	LastTweaks TweakReport
}

// NewRuntimeState returns an empty RuntimeState ready for the first tick.
func NewRuntimeState() *RuntimeState {
	return &RuntimeState{
		Restrained:        make(map[uint32]bool),
		LastApplied:       make(map[uint32]AppliedTarget),
		DetailsCache:      make(map[uint32]DetailsTuple),
		ThreadCPUCache:    make(map[uint32]ThreadSample),
		ProcessCPUCache:   make(map[uint32]ThreadSample),
		ThreadBindApplied: make(map[uint32]uint32),
		IdealCoreApplied:  make(map[uint32]uint32),
	}
}

// EvictDead removes cache entries for pids no longer present in live,
// satisfying the "garbage-collected at least once per 60s"
// requirement. Callers invoke this every 60 ticks.
func (r *RuntimeState) EvictDead(live map[uint32]bool) {
	for pid := range r.LastApplied {
		if !live[pid] {
			delete(r.LastApplied, pid)
		}
	}
	for pid := range r.DetailsCache {
		if !live[pid] {
			delete(r.DetailsCache, pid)
		}
	}
	for pid := range r.ProcessCPUCache {
		if !live[pid] {
			delete(r.ProcessCPUCache, pid)
		}
	}
	for pid := range r.ThreadBindApplied {
		if !live[pid] {
			delete(r.ThreadBindApplied, pid)
		}
	}
	for pid := range r.IdealCoreApplied {
		if !live[pid] {
			delete(r.IdealCoreApplied, pid)
		}
	}
}
