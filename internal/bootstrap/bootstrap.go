// Package bootstrap performs the startup checks the governor needs before
// its first tick: confirm the process is elevated (affecting other users'
// processes requires it), record the running Windows version, and enable
// SeDebugPrivilege so later OpenProcess calls can reach protected processes.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/corebalance/corebalance/internal/effector"
)

// Result reports what the startup checks found.
type Result struct {
	Elevated              bool
	OSVersion             string
	DebugPrivilegeEnabled bool
}

// Run performs the startup sequence. It returns an error (and an unusable
// Result) when the process is not elevated; every other check is best-
// effort and degrades the Result rather than failing the run.
func Run(ctx context.Context, eff effector.Effector) (Result, error) {
	elevated, osVersion, err := checkEnvironment()
	if err != nil {
		return Result{}, fmt.Errorf("check environment: %w", err)
	}
	if !elevated {
		return Result{OSVersion: osVersion}, fmt.Errorf("corebalance must run elevated (as Administrator) to adjust priority, affinity, and working sets of other users' processes")
	}

	res := Result{Elevated: true, OSVersion: osVersion}
	if err := eff.EnableDebugPrivilege(); err != nil {
		log.Printf("bootstrap: enable SeDebugPrivilege failed, continuing without it: %v", err)
		return res, nil
	}
	res.DebugPrivilegeEnabled = true
	return res, nil
}
