package diff

import (
	"testing"

	"github.com/corebalance/corebalance/internal/model"
)

func TestCompareDetectsNewAndDepartedPids(t *testing.T) {
	baseline := &model.Snapshot{
		TakenAtUnixNano: 1,
		Processes: []model.ProcessInfo{
			{PID: 1, Name: "a.exe"},
			{PID: 2, Name: "b.exe"},
		},
	}
	current := &model.Snapshot{
		TakenAtUnixNano: 2,
		Processes: []model.ProcessInfo{
			{PID: 2, Name: "b.exe"},
			{PID: 3, Name: "c.exe"},
		},
	}

	d := Compare(baseline, current)
	if len(d.New) != 1 || d.New[0] != 3 {
		t.Errorf("New = %v, want [3]", d.New)
	}
	if len(d.Departed) != 1 || d.Departed[0] != 1 {
		t.Errorf("Departed = %v, want [1]", d.Departed)
	}
}

func TestCompareDetectsPriorityAndAffinityDrift(t *testing.T) {
	baseline := &model.Snapshot{Processes: []model.ProcessInfo{
		{PID: 1, Name: "game.exe", Priority: model.Normal, Affinity: model.MaskView(0xF)},
	}}
	current := &model.Snapshot{Processes: []model.ProcessInfo{
		{PID: 1, Name: "game.exe", Priority: model.High, Affinity: model.MaskView(0x3)},
	}}

	d := Compare(baseline, current)

	var sawPriority, sawAffinity bool
	for _, c := range d.Changes {
		switch c.Field {
		case "priority":
			sawPriority = true
			if c.OldValue != "Normal" || c.NewValue != "High" {
				t.Errorf("priority change = %+v", c)
			}
		case "affinity":
			sawAffinity = true
		}
	}
	if !sawPriority {
		t.Error("expected a priority change")
	}
	if !sawAffinity {
		t.Error("expected an affinity change")
	}
}

func TestCompareFlagsSignificantCPUMovement(t *testing.T) {
	baseline := &model.Snapshot{Processes: []model.ProcessInfo{
		{PID: 1, Name: "hog.exe", CPUPercent: 10},
	}}
	current := &model.Snapshot{Processes: []model.ProcessInfo{
		{PID: 1, Name: "hog.exe", CPUPercent: 40},
	}}

	d := Compare(baseline, current)
	found := false
	for _, c := range d.Changes {
		if c.Field == "cpu_pct" {
			found = true
			if c.Significance == "" {
				t.Error("expected a non-empty significance tier for a 300% cpu move")
			}
		}
	}
	if !found {
		t.Error("expected a cpu_pct change")
	}
}

func TestCompareIgnoresNegligibleMovement(t *testing.T) {
	baseline := &model.Snapshot{Processes: []model.ProcessInfo{
		{PID: 1, Name: "steady.exe", CPUPercent: 10.0, RSSBytes: 1000},
	}}
	current := &model.Snapshot{Processes: []model.ProcessInfo{
		{PID: 1, Name: "steady.exe", CPUPercent: 10.05, RSSBytes: 1001},
	}}

	d := Compare(baseline, current)
	if len(d.Changes) != 0 {
		t.Errorf("expected no changes for negligible movement, got %+v", d.Changes)
	}
}

func TestFormatDiff(t *testing.T) {
	d := &SnapshotDiff{
		New:      []uint32{10},
		Departed: []uint32{20},
		Changes: []ProcessChange{
			{PID: 1, Name: "a.exe", Field: "cpu_pct", OldValue: "10.0", NewValue: "40.0", DeltaPct: 300, Significance: "high"},
		},
	}

	out := FormatDiff(d)
	if out == "" {
		t.Fatal("empty diff output")
	}
	if len(out) < 20 {
		t.Error("diff output too short")
	}
}
