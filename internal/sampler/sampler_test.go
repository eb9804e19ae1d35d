package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/corebalance/corebalance/internal/model"
)

type fakeLister struct {
	mask         uint64
	processes    []rawProcess
	details      map[uint32]processDetails
	detailsErr   map[uint32]error
	usernames    map[string]string
	detailsCalls int
}

func (f *fakeLister) SystemMask() uint64 { return f.mask }

func (f *fakeLister) ListCheap(ctx context.Context) ([]rawProcess, error) {
	return f.processes, nil
}

func (f *fakeLister) Details(ctx context.Context, pid uint32) (processDetails, error) {
	f.detailsCalls++
	if err, ok := f.detailsErr[pid]; ok {
		return processDetails{}, err
	}
	return f.details[pid], nil
}

func (f *fakeLister) Username(ctx context.Context, sid string) string {
	return f.usernames[sid]
}

func newTestSampler(f *fakeLister) *Sampler {
	return &Sampler{lister: f, logicalCores: 4, usersCache: make(map[string]string)}
}

func TestTickNormalizesCPUPercentAcrossTicks(t *testing.T) {
	f := &fakeLister{
		mask: 0xF,
		processes: []rawProcess{
			{PID: 1, Name: "a.exe", SID: "S-1-1", CPUTimeNS: 0},
		},
		details:   map[uint32]processDetails{1: {Priority: model.Normal, AffinityMask: 0xF}},
		usernames: map[string]string{"S-1-1": "alice"},
	}
	s := newTestSampler(f)
	state := model.NewRuntimeState()

	start := time.Now()
	snap, err := s.Tick(context.Background(), state, start)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if snap.Processes[0].CPUPercent != 0 {
		t.Errorf("first-ever sample should report 0%% cpu, got %v", snap.Processes[0].CPUPercent)
	}

	// Simulate 1s of 50% single-core usage: 0.5s of CPU time across 4
	// logical cores -> 12.5% normalized.
	f.processes[0].CPUTimeNS = uint64(500 * time.Millisecond)
	snap, err = s.Tick(context.Background(), state, start.Add(time.Second))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	got := snap.Processes[0].CPUPercent
	if got < 12 || got > 13 {
		t.Errorf("cpu_pct = %v, want ~12.5", got)
	}
}

func TestTickRendersAllCoresAffinityWhenMaskEqualsSystemMask(t *testing.T) {
	f := &fakeLister{
		mask:      0xFF,
		processes: []rawProcess{{PID: 1, Name: "a.exe"}},
		details:   map[uint32]processDetails{1: {Priority: model.Normal, AffinityMask: 0xFF}},
	}
	s := newTestSampler(f)
	state := model.NewRuntimeState()

	snap, err := s.Tick(context.Background(), state, time.Now())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !snap.Processes[0].Affinity.All {
		t.Error("expected affinity mask equal to system mask to render as All")
	}
}

func TestTickDefaultsOnDetailsFailureWithNoCache(t *testing.T) {
	f := &fakeLister{
		mask:       0xFF,
		processes:  []rawProcess{{PID: 1, Name: "protected.exe"}},
		detailsErr: map[uint32]error{1: context.Canceled},
	}
	s := newTestSampler(f)
	state := model.NewRuntimeState()

	snap, err := s.Tick(context.Background(), state, time.Now())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	p := snap.Processes[0]
	if p.Priority != model.Normal {
		t.Errorf("priority default = %v, want Normal", p.Priority)
	}
	if !p.Affinity.All {
		t.Error("affinity default should render as All")
	}
}

func TestTickOnlyRefreshesDetailsEveryThirdTick(t *testing.T) {
	f := &fakeLister{
		mask:      0xFF,
		processes: []rawProcess{{PID: 1, Name: "a.exe"}},
		details:   map[uint32]processDetails{1: {Priority: model.High, AffinityMask: 0xFF}},
	}
	s := newTestSampler(f)
	state := model.NewRuntimeState()

	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := s.Tick(context.Background(), state, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	// Tick 1: no cache, fetched. Tick 2: cached, skipped. Tick 3: 3%3==0, fetched.
	if f.detailsCalls != 2 {
		t.Errorf("details calls = %d, want 2 (ticks 1 and 3)", f.detailsCalls)
	}
}

func TestTickEvictsDeadPidsEvery60Ticks(t *testing.T) {
	f := &fakeLister{
		mask:      0xFF,
		processes: []rawProcess{{PID: 1, Name: "a.exe"}},
		details:   map[uint32]processDetails{1: {Priority: model.Normal, AffinityMask: 0xFF}},
	}
	s := newTestSampler(f)
	state := model.NewRuntimeState()

	now := time.Now()
	for i := 0; i < 59; i++ {
		if _, err := s.Tick(context.Background(), state, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if _, ok := state.DetailsCache[1]; !ok {
		t.Fatal("expected pid 1 cached before the process disappears")
	}

	f.processes = nil
	if _, err := s.Tick(context.Background(), state, now.Add(60*time.Second)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if _, ok := state.DetailsCache[1]; ok {
		t.Error("expected pid 1 evicted from DetailsCache at the 60th tick")
	}
}

func TestTickSortsDescendingByCPUPercent(t *testing.T) {
	f := &fakeLister{
		mask: 0xFF,
		processes: []rawProcess{
			{PID: 1, Name: "low.exe", CPUTimeNS: 0},
			{PID: 2, Name: "high.exe", CPUTimeNS: 0},
		},
		details: map[uint32]processDetails{
			1: {Priority: model.Normal, AffinityMask: 0xFF},
			2: {Priority: model.Normal, AffinityMask: 0xFF},
		},
	}
	s := newTestSampler(f)
	state := model.NewRuntimeState()
	now := time.Now()
	s.Tick(context.Background(), state, now)

	f.processes[0].CPUTimeNS = uint64(100 * time.Millisecond)
	f.processes[1].CPUTimeNS = uint64(900 * time.Millisecond)
	snap, err := s.Tick(context.Background(), state, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if snap.Processes[0].PID != 2 {
		t.Errorf("expected higher-cpu process first, got pid %d", snap.Processes[0].PID)
	}
}
