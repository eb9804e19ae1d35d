package effector

import (
	"context"
	"testing"

	"github.com/corebalance/corebalance/internal/model"
)

func TestApplyModeD2DropsOddLanesAboveFourBits(t *testing.T) {
	result := ApplyMode(model.AffinityD2, 0xFF) // 8 bits set
	if result.Mask != evenLaneMask&0xFF {
		t.Errorf("mask = %#x, want %#x", result.Mask, evenLaneMask&0xFF)
	}
	if !result.HasForcedPriority || result.ForcedPriority != model.High {
		t.Errorf("expected forced priority High, got %v (has=%v)", result.ForcedPriority, result.HasForcedPriority)
	}
}

func TestApplyModeD2LeavesSmallMasksAlone(t *testing.T) {
	result := ApplyMode(model.AffinityD2, 0x0F) // 4 bits set, not > 4
	if result.Mask != 0x0F {
		t.Errorf("mask = %#x, want unchanged 0xf", result.Mask)
	}
}

func TestApplyModeD3ClearsBitZeroWhenOthersSet(t *testing.T) {
	result := ApplyMode(model.AffinityD3, 0b1011)
	if result.Mask != 0b1010 {
		t.Errorf("mask = %#b, want 0b1010", result.Mask)
	}
	if result.ForcedPriority != model.RealTime {
		t.Errorf("forced priority = %v, want RealTime", result.ForcedPriority)
	}
}

func TestApplyModeD3KeepsBitZeroWhenOnlyBitSet(t *testing.T) {
	result := ApplyMode(model.AffinityD3, 0b1)
	if result.Mask != 0b1 {
		t.Errorf("mask = %#b, want unchanged 0b1", result.Mask)
	}
}

func TestValidateHardAffinityBoundaries(t *testing.T) {
	systemMask := uint64(0xFF)
	if err := ValidateHardAffinity(0, systemMask); err == nil {
		t.Error("zero mask should be rejected")
	}
	if err := ValidateHardAffinity(1<<7, systemMask); err != nil {
		t.Errorf("single valid bit should be accepted, got %v", err)
	}
	if err := ValidateHardAffinity(1<<8, systemMask); err == nil {
		t.Error("mask outside system mask should be rejected")
	}
}

func TestValidateHardAffinityBit63(t *testing.T) {
	// A mask with only bit 63 set is accepted when it's within the
	// system mask.
	systemMask := uint64(1) << 63
	if err := ValidateHardAffinity(1<<63, systemMask); err != nil {
		t.Errorf("bit 63 alone should be accepted, got %v", err)
	}
}

func TestFakeRecordsCalls(t *testing.T) {
	f := NewFake(0xFF)
	ctx := context.Background()
	if err := f.SetPriority(ctx, 100, model.High); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	if err := f.SetHardAffinity(ctx, 100, 0x0F); err != nil {
		t.Fatalf("SetHardAffinity: %v", err)
	}
	if got, want := f.CallCount("SetPriority"), 1; got != want {
		t.Errorf("CallCount(SetPriority) = %d, want %d", got, want)
	}
	if got := f.Priorities[100]; got != model.High {
		t.Errorf("Priorities[100] = %v, want High", got)
	}
}

func TestFakeRejectsInvalidAffinity(t *testing.T) {
	f := NewFake(0xFF)
	err := f.SetHardAffinity(context.Background(), 1, 0)
	if !model.IsKind(err, model.ErrInvalidAffinityMask) {
		t.Errorf("expected InvalidAffinityMask, got %v", err)
	}
}

func TestPoolSubmitReturnsResult(t *testing.T) {
	p := NewPool(2)
	v, err := Submit(context.Background(), p, func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Errorf("Submit = (%d, %v), want (42, nil)", v, err)
	}
}

func TestPoolSubmitRecoversPanic(t *testing.T) {
	p := NewPool(1)
	_, err := Submit(context.Background(), p, func() (int, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected an error from a panicking worker")
	}
}

func TestPoolSubmitRespectsCancellation(t *testing.T) {
	p := NewPool(1)
	p.sem <- struct{}{} // occupy the only slot so Submit must block on it
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Submit(ctx, p, func() (int, error) { return 1, nil })
	if err == nil {
		t.Error("expected cancellation error while waiting for a full pool")
	}
}
