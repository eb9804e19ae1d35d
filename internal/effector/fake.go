package effector

import (
	"context"
	"sync"

	"github.com/corebalance/corebalance/internal/model"
)

// Call records one invocation of a Fake method, for test assertions.
type Call struct {
	Op   string
	PID  uint32
	TID  uint32
	Mask uint64
	Prio model.PriorityClass
}

// Fake is an in-memory Effector recorder: tests substitute it for the real
// Win32 effector so the enforcer, ProBalance supervisor, binder, and reaper
// can be exercised without a Windows host.
type Fake struct {
	mu sync.Mutex

	SystemMaskValue uint64
	Calls           []Call

	Priorities       map[uint32]model.PriorityClass
	Affinities       map[uint32]uint64
	ThreadAffinities map[uint32]uint64

	// ThreadCPUTimesFunc, if set, lets a test script the per-thread CPU
	// time samples returned across successive calls (e.g. the binder's
	// before/after double-sample).
	ThreadCPUTimesFunc func(pid uint32) map[uint32]uint64

	TrimResult        uint64
	TrimErr           error
	FailPriority      map[uint32]error
	FailAffinity      map[uint32]error
	DebugPrivilegeErr error

	// ForegroundPIDValue is returned verbatim by ForegroundPID.
	ForegroundPIDValue uint32
	// SystemMemoryPercentValue is returned verbatim by SystemMemoryPercent.
	SystemMemoryPercentValue float32
}

// NewFake returns an empty Fake with the given system mask.
func NewFake(systemMask uint64) *Fake {
	return &Fake{
		SystemMaskValue:  systemMask,
		Priorities:       make(map[uint32]model.PriorityClass),
		Affinities:       make(map[uint32]uint64),
		ThreadAffinities: make(map[uint32]uint64),
	}
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, c)
}

func (f *Fake) SystemMask() uint64 { return f.SystemMaskValue }

func (f *Fake) SetPriority(ctx context.Context, pid uint32, level model.PriorityClass) error {
	if err := f.FailPriority[pid]; err != nil {
		return err
	}
	f.record(Call{Op: "SetPriority", PID: pid, Prio: level})
	f.mu.Lock()
	f.Priorities[pid] = level
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetHardAffinity(ctx context.Context, pid uint32, mask uint64) error {
	if err := ValidateHardAffinity(mask, f.SystemMaskValue); err != nil {
		return err
	}
	if err := f.FailAffinity[pid]; err != nil {
		return err
	}
	f.record(Call{Op: "SetHardAffinity", PID: pid, Mask: mask})
	f.mu.Lock()
	f.Affinities[pid] = mask
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetSoftAffinity(ctx context.Context, pid uint32, coreIDs []uint32) error {
	var mask uint64
	for _, c := range coreIDs {
		mask |= 1 << c
	}
	f.record(Call{Op: "SetSoftAffinity", PID: pid, Mask: mask})
	return nil
}

func (f *Fake) SetThreadAffinity(ctx context.Context, tid uint32, mask uint64) error {
	if mask == 0 {
		return model.NewSystemError(0, "resulting thread affinity would be zero", nil)
	}
	f.record(Call{Op: "SetThreadAffinity", TID: tid, Mask: mask})
	f.mu.Lock()
	f.ThreadAffinities[tid] = mask
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetIdealProcessor(ctx context.Context, tid uint32, core uint32) (uint32, error) {
	f.record(Call{Op: "SetIdealProcessor", TID: tid, Mask: uint64(core)})
	return 0, nil
}

func (f *Fake) TrimWorkingSet(ctx context.Context, pid uint32) (uint64, error) {
	f.record(Call{Op: "TrimWorkingSet", PID: pid})
	return f.TrimResult, f.TrimErr
}

func (f *Fake) Terminate(ctx context.Context, pid uint32) error {
	f.record(Call{Op: "Terminate", PID: pid})
	return nil
}

func (f *Fake) ThreadCPUTimes(ctx context.Context, pid uint32) (map[uint32]uint64, error) {
	if f.ThreadCPUTimesFunc != nil {
		return f.ThreadCPUTimesFunc(pid), nil
	}
	return map[uint32]uint64{}, nil
}

func (f *Fake) PurgeStandbyList(ctx context.Context) error {
	f.record(Call{Op: "PurgeStandbyList"})
	return nil
}

func (f *Fake) EnableDebugPrivilege() error { return f.DebugPrivilegeErr }

func (f *Fake) ForegroundPID(ctx context.Context) (uint32, error) {
	return f.ForegroundPIDValue, nil
}

func (f *Fake) SystemMemoryPercent(ctx context.Context) (float32, error) {
	return f.SystemMemoryPercentValue, nil
}

// CallCount returns how many times op was invoked, for per-tick operation
// budget assertions.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
