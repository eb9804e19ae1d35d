//go:build !windows

package tweaks

import (
	"context"
	"fmt"
)

func buildChecks() []Check {
	return []Check{
		{Name: "game_mode", Detect: unsupported},
		{Name: "high_performance_power_plan", Detect: unsupported},
		{Name: "hardware_accelerated_gpu_scheduling", Detect: unsupported},
	}
}

func unsupported(ctx context.Context) (bool, string, error) {
	return false, "", fmt.Errorf("not supported on this platform")
}
