//go:build windows

package tweaks

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// highPerformanceSchemeGUID is the well-known GUID Windows assigns the
// built-in "High performance" power plan.
const highPerformanceSchemeGUID = "8c5e7fda-e8bf-4a96-9a85-a6e23a8c635c"

func buildChecks() []Check {
	return []Check{
		{Name: "game_mode", Detect: detectGameMode},
		{Name: "high_performance_power_plan", Detect: detectHighPerformancePowerPlan},
		{Name: "hardware_accelerated_gpu_scheduling", Detect: detectHAGS},
	}
}

func detectGameMode(ctx context.Context) (bool, string, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, `SOFTWARE\Microsoft\GameBar`, registry.QUERY_VALUE)
	if err != nil {
		return false, "", fmt.Errorf("open GameBar key: %w", err)
	}
	defer k.Close()

	v, _, err := k.GetIntegerValue("AutoGameModeEnabled")
	if err != nil {
		return false, "", fmt.Errorf("read AutoGameModeEnabled: %w", err)
	}
	return v == 1, "", nil
}

func detectHighPerformancePowerPlan(ctx context.Context) (bool, string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SYSTEM\CurrentControlSet\Control\Power\User\PowerSchemes`, registry.QUERY_VALUE)
	if err != nil {
		return false, "", fmt.Errorf("open PowerSchemes key: %w", err)
	}
	defer k.Close()

	active, _, err := k.GetStringValue("ActivePowerScheme")
	if err != nil {
		return false, "", fmt.Errorf("read ActivePowerScheme: %w", err)
	}
	trimmed := trimBraces(active)
	return equalFold(trimmed, highPerformanceSchemeGUID), active, nil
}

func detectHAGS(ctx context.Context) (bool, string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SYSTEM\CurrentControlSet\Control\GraphicsDrivers`, registry.QUERY_VALUE)
	if err != nil {
		return false, "", fmt.Errorf("open GraphicsDrivers key: %w", err)
	}
	defer k.Close()

	v, _, err := k.GetIntegerValue("HwSchMode")
	if err != nil {
		return false, "", fmt.Errorf("read HwSchMode: %w", err)
	}
	return v == 2, "", nil
}

func trimBraces(s string) string {
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		return s[1 : len(s)-1]
	}
	return s
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
