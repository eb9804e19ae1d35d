package model

import "sort"

// PriorityClass mirrors the Win32 process priority classes, totally ordered
// low to high.
type PriorityClass int

const (
	Idle PriorityClass = iota
	BelowNormal
	Normal
	AboveNormal
	High
	RealTime
)

var priorityNames = [...]string{"Idle", "BelowNormal", "Normal", "AboveNormal", "High", "RealTime"}

// String returns the canonical, case-sensitive name used in wire formats.
func (p PriorityClass) String() string {
	if int(p) < 0 || int(p) >= len(priorityNames) {
		return "Unknown"
	}
	return priorityNames[p]
}

// ParsePriority parses a case-insensitive priority name as used by the
// profile wire format and CLI flags.
func ParsePriority(s string) (PriorityClass, bool) {
	for i, name := range priorityNames {
		if equalFold(name, s) {
			return PriorityClass(i), true
		}
	}
	return Normal, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// AffinityView renders a process or thread's current affinity: either the
// sentinel "runs anywhere" state or an explicit mask.
type AffinityView struct {
	All  bool
	Mask uint64
}

// AllCores is the rendered view for a process whose affinity mask equals
// the system-wide mask.
func AllCores() AffinityView { return AffinityView{All: true} }

// MaskView renders an explicit affinity mask.
func MaskView(mask uint64) AffinityView { return AffinityView{Mask: mask} }

// String renders the affinity the way the sampler and CLI display it: "All"
// or a hex string. It never adds the "Sets:" prefix; ProcessInfo.AffinityString
// does that when SoftAffinityApplied is set.
func (a AffinityView) String() string {
	if a.All {
		return "All"
	}
	return hexString(a.Mask)
}

func hexString(mask uint64) string {
	const hex = "0123456789abcdef"
	if mask == 0 {
		return "0x0"
	}
	buf := make([]byte, 0, 18)
	buf = append(buf, '0', 'x')
	started := false
	for shift := 60; shift >= 0; shift -= 4 {
		nibble := (mask >> uint(shift)) & 0xf
		if nibble == 0 && !started && shift != 0 {
			continue
		}
		started = true
		buf = append(buf, hex[nibble])
	}
	return string(buf)
}

// ProcessInfo is one row of a process-sampler snapshot.
type ProcessInfo struct {
	PID        uint32        `json:"pid"`
	ParentPID  uint32        `json:"parent_pid,omitempty"`
	HasParent  bool          `json:"-"`
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	User       string        `json:"user"`
	CPUPercent float32       `json:"cpu_pct"`
	RSSBytes   uint64        `json:"rss_bytes"`
	Priority   PriorityClass `json:"priority"`
	Affinity   AffinityView  `json:"hard_affinity"`
	// SoftAffinityApplied records whether the enforcer issued a successful
	// CPU-sets call for this row, since Windows exposes no query for current
	// CPU-set state. The sampler builds fresh rows with it false on every
	// tick, so it only reflects calls made against the current snapshot; it
	// backs the rendered-string "Sets" prefix.
	SoftAffinityApplied bool   `json:"soft_affinity_applied,omitempty"`
	ThreadCount         uint32 `json:"thread_count"`
}

// AffinityString renders the process's affinity for display, including the
// advisory "Sets" prefix when a soft-affinity call has been applied.
func (p ProcessInfo) AffinityString() string {
	if p.SoftAffinityApplied {
		return "Sets:" + p.Affinity.String()
	}
	return p.Affinity.String()
}

// Snapshot is an ordered process table, sorted descending by CPUPercent.
type Snapshot struct {
	TakenAtUnixNano int64         `json:"taken_at_unix_nano"`
	Processes       []ProcessInfo `json:"processes"`
	// Tweaks carries the low-frequency system-tweak diagnostics (Game Mode,
	// power plan, HAGS); empty until the governor's tweaks cadence runs.
	Tweaks TweakReport `json:"tweaks,omitempty"`
}

// SortDescendingCPU orders Processes by CPUPercent, highest first, matching
// the sampler's required snapshot ordering.
func (s *Snapshot) SortDescendingCPU() {
	sort.SliceStable(s.Processes, func(i, j int) bool {
		return s.Processes[i].CPUPercent > s.Processes[j].CPUPercent
	})
}

// TotalCPUPercent sums cpu_pct across every process, used by ProBalance and
// the governor's CPU-load reporting to judge system-wide load.
func (s Snapshot) TotalCPUPercent() float32 {
	var total float32
	for _, p := range s.Processes {
		total += p.CPUPercent
	}
	return total
}

// Find returns the process with the given pid, if present.
func (s Snapshot) Find(pid uint32) (ProcessInfo, bool) {
	for _, p := range s.Processes {
		if p.PID == pid {
			return p, true
		}
	}
	return ProcessInfo{}, false
}
