//go:build !windows

package topology

import (
	"fmt"

	"github.com/corebalance/corebalance/internal/model"
)

// detect always fails on non-Windows targets: there is no hardware topology
// source to query, so Detect() falls back to model.Degraded() per the
// non-goal of cross-platform parity — the effector is a no-op here too.
func detect() (model.Topology, error) {
	return model.Topology{}, fmt.Errorf("topology detection is Windows-only")
}
