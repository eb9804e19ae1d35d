// Package tweaks runs a small table of named, read-only system-state
// checks: whether Game Mode is enabled, whether the active power plan is
// High Performance, whether Hardware-Accelerated GPU Scheduling is on.
// Nothing here is ever mutated — these feed a Snapshot's informational
// fields only.
package tweaks

import (
	"context"

	"github.com/corebalance/corebalance/internal/model"
)

// Check is one named diagnostic. Detect reports whether the setting is
// enabled, an optional human-readable detail, and any error encountered
// reading it (a read failure never aborts the rest of the table).
type Check struct {
	Name   string
	Detect func(ctx context.Context) (enabled bool, detail string, err error)
}

// Runner holds the platform's check table.
type Runner struct {
	checks []Check
}

// New builds a Runner with the platform's check table.
func New() *Runner {
	return &Runner{checks: buildChecks()}
}

// Run executes every check in order, collecting results even when
// individual checks fail.
func (r *Runner) Run(ctx context.Context) model.TweakReport {
	out := model.TweakReport{Checks: make([]model.TweakCheck, 0, len(r.checks))}
	for _, c := range r.checks {
		enabled, detail, err := c.Detect(ctx)
		check := model.TweakCheck{Name: c.Name, Enabled: enabled, Detail: detail}
		if err != nil {
			check.Error = err.Error()
		}
		out.Checks = append(out.Checks, check)
	}
	return out
}
