// Package effector applies resolved targets to live processes and threads
// through Win32 mutation primitives (component C). Every method is
// idempotent and returns a typed error rather than panicking; callers that
// need to bound blocking syscalls use Submit to run a call on Pool.
package effector

import (
	"context"
	"math/bits"

	"github.com/corebalance/corebalance/internal/model"
)

// Effector is the capability set consumed by the enforcer, binder, and
// reaper. Callers are polymorphic over this interface so tests can
// substitute Fake, an in-memory recorder, without touching Win32.
type Effector interface {
	SetPriority(ctx context.Context, pid uint32, level model.PriorityClass) error
	SetHardAffinity(ctx context.Context, pid uint32, mask uint64) error
	SetSoftAffinity(ctx context.Context, pid uint32, coreIDs []uint32) error
	SetThreadAffinity(ctx context.Context, tid uint32, mask uint64) error
	SetIdealProcessor(ctx context.Context, tid uint32, core uint32) (previous uint32, err error)
	TrimWorkingSet(ctx context.Context, pid uint32) (freedBytes uint64, err error)
	Terminate(ctx context.Context, pid uint32) error
	ThreadCPUTimes(ctx context.Context, pid uint32) (map[uint32]uint64, error)
	PurgeStandbyList(ctx context.Context) error
	EnableDebugPrivilege() error
	ForegroundPID(ctx context.Context) (uint32, error)
	SystemMemoryPercent(ctx context.Context) (float32, error)
	SystemMask() uint64
}

// ModeResult is the mask/priority override implied by an affinity mode,
// computed independently of any Win32 call so it can be unit tested without
// a platform-specific effector.
type ModeResult struct {
	Mask              uint64
	ForcedPriority    model.PriorityClass
	HasForcedPriority bool
}

// evenLaneMask keeps bit positions 0,2,4,... and clears 1,3,5,... —
// "drop every other bit, keep even lanes" from the D2 burst mode.
const evenLaneMask = 0x5555555555555555

// ApplyMode computes the effective mask and any forced priority for an
// affinity mode:
//   - Hard/Soft/Dynamic: mask unchanged, no forced priority.
//   - D2 ("burst"): if more than 4 bits are set, keep only even lanes
//     (disables SMT pairs); force priority High.
//   - D3 ("extreme"): clear bit 0 iff other bits remain set; force priority
//     RealTime.
func ApplyMode(mode model.AffinityMode, mask uint64) ModeResult {
	switch mode {
	case model.AffinityD2:
		if bits.OnesCount64(mask) > 4 {
			mask &= evenLaneMask
		}
		return ModeResult{Mask: mask, ForcedPriority: model.High, HasForcedPriority: true}
	case model.AffinityD3:
		if mask&^uint64(1) != 0 {
			mask &^= 1
		}
		return ModeResult{Mask: mask, ForcedPriority: model.RealTime, HasForcedPriority: true}
	default:
		return ModeResult{Mask: mask}
	}
}

// ValidateHardAffinity enforces the hard-affinity boundary: mask must be
// non-zero and a subset of systemMask.
func ValidateHardAffinity(mask, systemMask uint64) error {
	if mask == 0 {
		return model.NewInvalidAffinityMask("mask must be non-zero")
	}
	if mask&^systemMask != 0 {
		return model.NewInvalidAffinityMask("mask is not a subset of the system affinity mask")
	}
	return nil
}
