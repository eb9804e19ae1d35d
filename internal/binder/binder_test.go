package binder

import (
	"context"
	"testing"
	"time"

	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/model"
)

type fakeClock struct{ slept time.Duration }

func (c *fakeClock) Sleep(d time.Duration) { c.slept += d }

// TestBindHeaviestPicksLargestPositiveDelta reproduces the concrete
// scenario: three threads sampled before/after the 100ms sleep as
// (100, 200, 1_000_000) ns deltas; bind_heaviest(pid, 5) must return the
// third thread's tid and set its affinity to 0x20.
func TestBindHeaviestPicksLargestPositiveDelta(t *testing.T) {
	fake := effector.NewFake(0xFF)
	calls := 0
	fake.ThreadCPUTimesFunc = func(pid uint32) map[uint32]uint64 {
		calls++
		if calls == 1 {
			return map[uint32]uint64{1: 0, 2: 0, 3: 0}
		}
		return map[uint32]uint64{1: 100, 2: 200, 3: 1_000_000}
	}

	b := NewWithClock(fake, &fakeClock{})
	tid, err := b.BindHeaviest(context.Background(), 42, 5)
	if err != nil {
		t.Fatalf("BindHeaviest: %v", err)
	}
	if tid != 3 {
		t.Errorf("tid = %d, want 3", tid)
	}
	if got, want := fake.ThreadAffinities[3], uint64(0x20); got != want {
		t.Errorf("affinity = %#x, want %#x", got, want)
	}
}

func TestBindHeaviestFailsWhenEveryDeltaZero(t *testing.T) {
	fake := effector.NewFake(0xFF)
	fake.ThreadCPUTimesFunc = func(pid uint32) map[uint32]uint64 {
		return map[uint32]uint64{1: 500, 2: 500}
	}
	b := NewWithClock(fake, &fakeClock{})
	_, err := b.BindHeaviest(context.Background(), 1, 0)
	if !model.IsKind(err, model.ErrSystemError) {
		t.Errorf("expected SystemError when every delta is zero, got %v", err)
	}
}

func TestBindIdealHeaviestUsesIdealProcessor(t *testing.T) {
	fake := effector.NewFake(0xFF)
	calls := 0
	fake.ThreadCPUTimesFunc = func(pid uint32) map[uint32]uint64 {
		calls++
		if calls == 1 {
			return map[uint32]uint64{7: 0}
		}
		return map[uint32]uint64{7: 50}
	}
	b := NewWithClock(fake, &fakeClock{})
	tid, err := b.BindIdealHeaviest(context.Background(), 9, 2)
	if err != nil {
		t.Fatalf("BindIdealHeaviest: %v", err)
	}
	if tid != 7 {
		t.Errorf("tid = %d, want 7", tid)
	}
	if got := fake.CallCount("SetIdealProcessor"); got != 1 {
		t.Errorf("SetIdealProcessor calls = %d, want 1", got)
	}
}

func TestBindHeaviestSleepsSampleWindow(t *testing.T) {
	fake := effector.NewFake(0xFF)
	fake.ThreadCPUTimesFunc = func(pid uint32) map[uint32]uint64 { return map[uint32]uint64{1: 10} }
	clock := &fakeClock{}
	b := NewWithClock(fake, clock)
	_, _ = b.BindHeaviest(context.Background(), 1, 0)
	if clock.slept != sampleWindow {
		t.Errorf("slept %v, want %v", clock.slept, sampleWindow)
	}
}
