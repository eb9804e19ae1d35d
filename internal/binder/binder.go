// Package binder implements component D: identifying a process's busiest
// thread by double-sampling CPU time and pinning it to a chosen core.
package binder

import (
	"context"
	"time"

	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/model"
)

// sampleWindow is the sleep between the two CPU-time samples.
const sampleWindow = 100 * time.Millisecond

// Clock abstracts time.Sleep so tests can run the double-sample algorithm
// without actually waiting 100ms.
type Clock interface {
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Binder runs the heavy-thread double-sample algorithm against an Effector.
type Binder struct {
	eff   effector.Effector
	clock Clock
}

// New returns a Binder backed by eff, sleeping for real between samples.
func New(eff effector.Effector) *Binder {
	return &Binder{eff: eff, clock: realClock{}}
}

// NewWithClock is the test seam: it lets a fake Clock skip the real sleep.
func NewWithClock(eff effector.Effector, clock Clock) *Binder {
	return &Binder{eff: eff, clock: clock}
}

// heaviestThread samples every thread of pid, sleeps sampleWindow, samples
// again, and returns the tid with the largest positive delta. It fails with
// SystemError if every delta is zero.
func (b *Binder) heaviestThread(ctx context.Context, pid uint32) (uint32, error) {
	before, err := b.eff.ThreadCPUTimes(ctx, pid)
	if err != nil {
		return 0, err
	}

	b.clock.Sleep(sampleWindow)

	after, err := b.eff.ThreadCPUTimes(ctx, pid)
	if err != nil {
		return 0, err
	}

	var bestTID uint32
	var bestDelta uint64
	found := false
	for tid, afterNS := range after {
		beforeNS := before[tid]
		if afterNS <= beforeNS {
			continue
		}
		delta := afterNS - beforeNS
		if !found || delta > bestDelta {
			bestTID, bestDelta = tid, delta
			found = true
		}
	}
	if !found {
		return 0, model.NewSystemError(pid, "no heaviest thread", nil)
	}
	return bestTID, nil
}

// BindHeaviest identifies pid's busiest thread and pins it to target_core,
// per the bind_heaviest external operation.
func (b *Binder) BindHeaviest(ctx context.Context, pid uint32, targetCore uint32) (tid uint32, err error) {
	tid, err = b.heaviestThread(ctx, pid)
	if err != nil {
		return 0, err
	}
	if err := b.eff.SetThreadAffinity(ctx, tid, 1<<targetCore); err != nil {
		return 0, err
	}
	return tid, nil
}

// BindIdealHeaviest is the set_ideal_heaviest variant: identical discovery,
// but ends with SetIdealProcessor instead of a hard thread-affinity set.
func (b *Binder) BindIdealHeaviest(ctx context.Context, pid uint32, idealCore uint32) (tid uint32, err error) {
	tid, err = b.heaviestThread(ctx, pid)
	if err != nil {
		return 0, err
	}
	if _, err := b.eff.SetIdealProcessor(ctx, tid, idealCore); err != nil {
		return 0, err
	}
	return tid, nil
}
