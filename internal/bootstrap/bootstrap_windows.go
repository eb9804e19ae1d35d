//go:build windows

package bootstrap

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func checkEnvironment() (bool, string, error) {
	elevated := windows.GetCurrentProcessToken().IsElevated()
	major, minor, build := windows.RtlGetNtVersionNumbers()
	return elevated, fmt.Sprintf("%d.%d.%d", major, minor, build), nil
}
