package model

// AffinityMode selects how a TargetProfile's affinity_mask is applied.
type AffinityMode string

const (
	AffinityHard    AffinityMode = "Hard"
	AffinitySoft    AffinityMode = "Soft"
	AffinityDynamic AffinityMode = "Dynamic"
	AffinityD2      AffinityMode = "D2"
	AffinityD3      AffinityMode = "D3"
)

// TargetProfile is an external, never-core-mutated configuration describing
// the desired priority/affinity/thread-binding for processes matching a
// name. The zero value (every optional field unset) is the "empty" profile.
type TargetProfile struct {
	Name           string         `json:"name"`
	Enabled        bool           `json:"enabled"`
	AffinityMask   *uint64        `json:"affinity_mask,omitempty"`
	AffinityMode   AffinityMode   `json:"affinity_mode,omitempty"`
	Priority       *PriorityClass `json:"priority,omitempty"`
	ThreadBindCore *uint32        `json:"thread_bind_core,omitempty"`
	IdealCore      *uint32        `json:"ideal_core,omitempty"`
}

// Empty reports whether every optional field of the profile is unset.
func (t TargetProfile) Empty() bool {
	return t.AffinityMask == nil && t.Priority == nil && t.ThreadBindCore == nil && t.IdealCore == nil
}

// DefaultRules governs the fallback classification applied when no explicit
// profile matches a process name.
type DefaultRules struct {
	Enabled        bool          `json:"enabled"`
	GameMask       *uint64       `json:"game_mask,omitempty"`
	SystemMask     *uint64       `json:"system_mask,omitempty"`
	GamePriority   PriorityClass `json:"game_priority"`
	SystemPriority PriorityClass `json:"system_priority"`
}

// ProBalanceConfig configures the reactive background-process suppressor.
type ProBalanceConfig struct {
	Enabled          bool          `json:"enabled"`
	CPUThresholdPct  float32       `json:"cpu_threshold_pct"`
	RestrainPriority PriorityClass `json:"restrain_priority"`
	ExcludedNames    []string      `json:"excluded_names"`
}

// SmartTrimMode selects which half of the memory reaper's work runs on a
// tick: per-process working-set trimming, a standby-list purge, or both.
type SmartTrimMode string

const (
	SmartTrimStandbyOnly SmartTrimMode = "StandbyOnly"
	SmartTrimWorkingSet  SmartTrimMode = "WorkingSet"
	SmartTrimBoth        SmartTrimMode = "Both"
)

// SmartTrimConfig configures the memory reaper.
type SmartTrimConfig struct {
	Enabled      bool          `json:"enabled"`
	ThresholdPct uint32        `json:"threshold_pct"`
	IntervalSec  uint32        `json:"interval_sec"`
	Mode         SmartTrimMode `json:"mode"`
}

// ProtectedNames are never suppressed or rebinded by default rules,
// regardless of profile-store configuration.
var ProtectedNames = []string{
	"system", "idle", "smss.exe", "csrss.exe", "wininit.exe",
	"services.exe", "lsass.exe", "svchost.exe", "dwm.exe", "explorer.exe",
}

// IsProtected reports whether name (case-insensitive) is a protected name or
// equals selfExeName, the governor's own executable.
func IsProtected(name, selfExeName string) bool {
	if selfExeName != "" && equalFold(name, selfExeName) {
		return true
	}
	for _, p := range ProtectedNames {
		if equalFold(name, p) {
			return true
		}
	}
	return false
}
