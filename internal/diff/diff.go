// Package diff compares two process-sampler snapshots and highlights what
// changed: processes that appeared or departed, priority or affinity drift,
// and significant CPU/RSS movement for processes present in both.
package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/corebalance/corebalance/internal/model"
)

// ProcessChange is one process-level difference between two snapshots.
type ProcessChange struct {
	PID          uint32  `json:"pid"`
	Name         string  `json:"name"`
	Field        string  `json:"field"` // "cpu_pct", "rss_bytes", "priority", "affinity"
	OldValue     string  `json:"old_value"`
	NewValue     string  `json:"new_value"`
	DeltaPct     float64 `json:"delta_pct,omitempty"`
	Significance string  `json:"significance,omitempty"` // "high", "medium", "low"
}

// SnapshotDiff is the comparison between a baseline and a current snapshot.
type SnapshotDiff struct {
	BaselineTakenAtUnixNano int64           `json:"baseline_taken_at_unix_nano"`
	CurrentTakenAtUnixNano  int64           `json:"current_taken_at_unix_nano"`
	New                     []uint32        `json:"new_pids"`
	Departed                []uint32        `json:"departed_pids"`
	Changes                 []ProcessChange `json:"changes"`
}

// LoadSnapshot reads and parses a JSON snapshot dump, as written by the
// `snapshot` CLI command.
func LoadSnapshot(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &snap, nil
}

// cpuSignificanceThresholdPct and rssSignificanceThresholdPct gate which
// per-process movements are worth reporting; small jitter between two ticks
// is expected and not a finding.
const (
	cpuSignificanceThresholdPct = 5.0
	rssSignificanceThresholdPct = 10.0
)

// Compare computes the differences between two snapshots.
func Compare(baseline, current *model.Snapshot) *SnapshotDiff {
	d := &SnapshotDiff{
		BaselineTakenAtUnixNano: baseline.TakenAtUnixNano,
		CurrentTakenAtUnixNano:  current.TakenAtUnixNano,
	}

	baselineByPID := make(map[uint32]model.ProcessInfo, len(baseline.Processes))
	for _, p := range baseline.Processes {
		baselineByPID[p.PID] = p
	}
	currentByPID := make(map[uint32]model.ProcessInfo, len(current.Processes))
	for _, p := range current.Processes {
		currentByPID[p.PID] = p
	}

	for pid := range currentByPID {
		if _, ok := baselineByPID[pid]; !ok {
			d.New = append(d.New, pid)
		}
	}
	for pid := range baselineByPID {
		if _, ok := currentByPID[pid]; !ok {
			d.Departed = append(d.Departed, pid)
		}
	}

	for pid, newP := range currentByPID {
		oldP, ok := baselineByPID[pid]
		if !ok {
			continue
		}
		addCPUChange(d, oldP, newP)
		addRSSChange(d, oldP, newP)
		if oldP.Priority != newP.Priority {
			d.Changes = append(d.Changes, ProcessChange{
				PID: pid, Name: newP.Name, Field: "priority",
				OldValue: oldP.Priority.String(), NewValue: newP.Priority.String(),
			})
		}
		if oldP.AffinityString() != newP.AffinityString() {
			d.Changes = append(d.Changes, ProcessChange{
				PID: pid, Name: newP.Name, Field: "affinity",
				OldValue: oldP.AffinityString(), NewValue: newP.AffinityString(),
			})
		}
	}

	return d
}

func addCPUChange(d *SnapshotDiff, oldP, newP model.ProcessInfo) {
	delta := float64(newP.CPUPercent) - float64(oldP.CPUPercent)
	if math.Abs(delta) < 0.1 {
		return
	}
	deltaPct, sig := significance(float64(oldP.CPUPercent), delta, cpuSignificanceThresholdPct)
	if sig == "" {
		return
	}
	d.Changes = append(d.Changes, ProcessChange{
		PID: newP.PID, Name: newP.Name, Field: "cpu_pct",
		OldValue: fmt.Sprintf("%.1f", oldP.CPUPercent), NewValue: fmt.Sprintf("%.1f", newP.CPUPercent),
		DeltaPct: deltaPct, Significance: sig,
	})
}

func addRSSChange(d *SnapshotDiff, oldP, newP model.ProcessInfo) {
	delta := float64(newP.RSSBytes) - float64(oldP.RSSBytes)
	deltaPct, sig := significance(float64(oldP.RSSBytes), delta, rssSignificanceThresholdPct)
	if sig == "" {
		return
	}
	d.Changes = append(d.Changes, ProcessChange{
		PID: newP.PID, Name: newP.Name, Field: "rss_bytes",
		OldValue: fmt.Sprintf("%d", oldP.RSSBytes), NewValue: fmt.Sprintf("%d", newP.RSSBytes),
		DeltaPct: deltaPct, Significance: sig,
	})
}

// significance reports the percentage move and a tier, or "" when the move
// doesn't clear the threshold.
func significance(oldVal, delta, thresholdPct float64) (float64, string) {
	if oldVal == 0 {
		if delta == 0 {
			return 0, ""
		}
		return 100, "medium"
	}
	deltaPct := (delta / math.Abs(oldVal)) * 100
	if math.Abs(deltaPct) < thresholdPct {
		return deltaPct, ""
	}
	abs := math.Abs(deltaPct)
	switch {
	case abs >= 100:
		return deltaPct, "high"
	case abs >= 30:
		return deltaPct, "medium"
	default:
		return deltaPct, "low"
	}
}

// FormatDiff returns a human-readable diff summary.
func FormatDiff(d *SnapshotDiff) string {
	var sb strings.Builder

	sb.WriteString("=== Snapshot Diff ===\n")
	sb.WriteString(fmt.Sprintf("New processes: %d, Departed: %d, Changes: %d\n\n", len(d.New), len(d.Departed), len(d.Changes)))

	if len(d.New) > 0 {
		sb.WriteString("+ New pids:\n")
		for _, pid := range d.New {
			sb.WriteString(fmt.Sprintf("  %d\n", pid))
		}
		sb.WriteString("\n")
	}

	if len(d.Departed) > 0 {
		sb.WriteString("- Departed pids:\n")
		for _, pid := range d.Departed {
			sb.WriteString(fmt.Sprintf("  %d\n", pid))
		}
		sb.WriteString("\n")
	}

	for _, c := range d.Changes {
		label := strings.ToUpper(c.Significance)
		if label == "" {
			sb.WriteString(fmt.Sprintf("  [pid %d] %s: %s %s -> %s\n", c.PID, c.Name, c.Field, c.OldValue, c.NewValue))
			continue
		}
		sb.WriteString(fmt.Sprintf("  [%s] [pid %d] %s: %s %s -> %s (%+.1f%%)\n", label, c.PID, c.Name, c.Field, c.OldValue, c.NewValue, c.DeltaPct))
	}

	return sb.String()
}
