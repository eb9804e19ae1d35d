//go:build !windows

package effector

import (
	"context"

	"github.com/corebalance/corebalance/internal/model"
)

// noopEffector satisfies Effector on non-Windows targets: every mutating
// call succeeds without touching anything, matching the non-goal of
// cross-platform parity ("non-Windows targets expose the same interface
// but the effector is a no-op").
type noopEffector struct {
	systemMask uint64
}

// New returns the no-op effector for non-Windows builds.
func New(systemMask uint64, maxConcurrent int) Effector {
	return &noopEffector{systemMask: systemMask}
}

func (e *noopEffector) SystemMask() uint64 { return e.systemMask }

func (e *noopEffector) SetPriority(ctx context.Context, pid uint32, level model.PriorityClass) error {
	return nil
}

func (e *noopEffector) SetHardAffinity(ctx context.Context, pid uint32, mask uint64) error {
	return ValidateHardAffinity(mask, e.systemMask)
}

func (e *noopEffector) SetSoftAffinity(ctx context.Context, pid uint32, coreIDs []uint32) error {
	return nil
}

func (e *noopEffector) SetThreadAffinity(ctx context.Context, tid uint32, mask uint64) error {
	if mask == 0 {
		return model.NewSystemError(0, "resulting thread affinity would be zero", nil)
	}
	return nil
}

func (e *noopEffector) SetIdealProcessor(ctx context.Context, tid uint32, core uint32) (uint32, error) {
	return 0, nil
}

func (e *noopEffector) TrimWorkingSet(ctx context.Context, pid uint32) (uint64, error) {
	return 0, nil
}

func (e *noopEffector) Terminate(ctx context.Context, pid uint32) error {
	return nil
}

func (e *noopEffector) ThreadCPUTimes(ctx context.Context, pid uint32) (map[uint32]uint64, error) {
	return map[uint32]uint64{}, nil
}

func (e *noopEffector) PurgeStandbyList(ctx context.Context) error {
	return nil
}

func (e *noopEffector) EnableDebugPrivilege() error {
	return nil
}

func (e *noopEffector) ForegroundPID(ctx context.Context) (uint32, error) {
	return 0, nil
}

func (e *noopEffector) SystemMemoryPercent(ctx context.Context) (float32, error) {
	return 0, nil
}
