package model

import "testing"

func TestBuildCCDGroups(t *testing.T) {
	cores := []LogicalProcessor{
		{ID: 3, L3GroupID: 1},
		{ID: 0, L3GroupID: 0},
		{ID: 2, L3GroupID: 1},
		{ID: 1, L3GroupID: 0},
	}
	groups := BuildCCDGroups(cores)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if got, want := groups[0], []uint32{0, 1}; !equalSlice(got, want) {
		t.Errorf("group 0 = %v, want %v", got, want)
	}
	if got, want := groups[1], []uint32{2, 3}; !equalSlice(got, want) {
		t.Errorf("group 1 = %v, want %v", got, want)
	}
}

func equalSlice(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestClassifyVCache(t *testing.T) {
	cores := []LogicalProcessor{
		{ID: 0, L3GroupID: 0},
		{ID: 1, L3GroupID: 0},
		{ID: 2, L3GroupID: 1},
	}
	sizes := map[uint32]uint64{
		0: 96 * 1024 * 1024,
		1: 32 * 1024 * 1024,
	}
	out, has := ClassifyVCache(cores, sizes)
	if !has {
		t.Fatal("expected hasVCache true")
	}
	if out[0].Class != ClassVCache || out[1].Class != ClassVCache {
		t.Errorf("group 0 cores should be VCache, got %v %v", out[0].Class, out[1].Class)
	}
	if out[2].Class != ClassPerformance {
		t.Errorf("group 1 core should be Performance, got %v", out[2].Class)
	}
}

func TestClassifyIntelHybrid(t *testing.T) {
	cores := []LogicalProcessor{{ID: 0}, {ID: 1}, {ID: 2}}
	ec := map[uint32]uint32{0: 1, 1: 1, 2: 0}
	out, hybrid := ClassifyIntelHybrid(cores, ec)
	if !hybrid {
		t.Fatal("expected hybrid true when both cohorts present")
	}
	if out[0].Class != ClassPerformance || out[1].Class != ClassPerformance {
		t.Errorf("non-zero cohort should be Performance")
	}
	if out[2].Class != ClassEfficiency {
		t.Errorf("zero cohort should be Efficiency, got %v", out[2].Class)
	}

	single := []LogicalProcessor{{ID: 0}, {ID: 1}}
	ecSingle := map[uint32]uint32{0: 0, 1: 0}
	out2, hybrid2 := ClassifyIntelHybrid(single, ecSingle)
	if hybrid2 {
		t.Fatal("single cohort should not be hybrid")
	}
	for _, c := range out2 {
		if c.Class != ClassPerformance {
			t.Errorf("all cores should be Performance when only one cohort, got %v", c.Class)
		}
	}
}

func TestGroupedCores(t *testing.T) {
	cores := []LogicalProcessor{
		{ID: 0, PhysicalCoreID: 0},
		{ID: 1, PhysicalCoreID: 0},
		{ID: 2, PhysicalCoreID: 1},
		{ID: 3, PhysicalCoreID: 1},
	}
	reps, sibs := GroupedCores(cores)
	if len(reps) != 2 || len(sibs) != 2 {
		t.Fatalf("got %d reps, %d sibs, want 2/2", len(reps), len(sibs))
	}
	if reps[0].ID != 0 || reps[1].ID != 2 {
		t.Errorf("unexpected representatives: %+v", reps)
	}
	if sibs[0].ID != 1 || sibs[1].ID != 3 {
		t.Errorf("unexpected siblings: %+v", sibs)
	}
}

func TestSystemMask(t *testing.T) {
	top := Topology{Cores: []LogicalProcessor{{ID: 0}, {ID: 1}, {ID: 3}}}
	if got, want := top.SystemMask(), uint64(0b1011); got != want {
		t.Errorf("SystemMask() = %#x, want %#x", got, want)
	}
}
