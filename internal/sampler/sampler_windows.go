//go:build windows

package sampler

import (
	"context"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/corebalance/corebalance/internal/model"
)

// priorityClassName maps the Win32 priority class value returned by
// GetPriorityClass to this repository's PriorityClass enum. Unrecognized
// values (rare, e.g. a legacy PROCESS_MODE_BACKGROUND_BEGIN flag bit)
// default to Normal.
var priorityClassName = map[uint32]model.PriorityClass{
	0x00000040: model.Idle,
	0x00004000: model.BelowNormal,
	0x00000020: model.Normal,
	0x00008000: model.AboveNormal,
	0x00000080: model.High,
	0x00000100: model.RealTime,
}

func priorityClassFromValue(v uint32) model.PriorityClass {
	if p, ok := priorityClassName[v]; ok {
		return p
	}
	return model.Normal
}

var (
	modKernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modPsapi    = windows.NewLazySystemDLL("psapi.dll")
	modAdvapi32 = windows.NewLazySystemDLL("advapi32.dll")

	procGetProcessAffinityMask = modKernel32.NewProc("GetProcessAffinityMask")
	procGetProcessMemoryInfo   = modPsapi.NewProc("GetProcessMemoryInfo")
	procLookupAccountSidW      = modAdvapi32.NewProc("LookupAccountSidW")
)

type processMemoryCountersEx struct {
	cb                         uint32
	pageFaultCount             uint32
	peakWorkingSetSize         uintptr
	workingSetSize             uintptr
	quotaPeakPagedPoolUsage    uintptr
	quotaPagedPoolUsage        uintptr
	quotaPeakNonPagedPoolUsage uintptr
	quotaNonPagedPoolUsage     uintptr
	pagefileUsage              uintptr
	peakPagefileUsage          uintptr
	privateUsage               uintptr
}

const (
	openProcessAccess = windows.PROCESS_QUERY_LIMITED_INFORMATION | windows.PROCESS_VM_READ
	th32csSnapProcess = windows.TH32CS_SNAPPROCESS
)

type windowsLister struct {
	systemMask uint64
}

func newPlatformLister() lister {
	return &windowsLister{systemMask: querySystemAffinityMask()}
}

func querySystemAffinityMask() uint64 {
	h := windows.CurrentProcess()
	var processMask, systemMask uintptr
	if err := procGetProcessAffinityMaskCall(h, &processMask, &systemMask); err != nil {
		return 0
	}
	return uint64(systemMask)
}

func (l *windowsLister) SystemMask() uint64 { return l.systemMask }

func (l *windowsLister) ListCheap(ctx context.Context) ([]rawProcess, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(uint32(th32csSnapProcess), 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var out []rawProcess
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, err
	}
	for {
		out = append(out, l.describe(entry))
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			break
		}
	}
	return out, nil
}

func (l *windowsLister) describe(entry windows.ProcessEntry32) rawProcess {
	name := windows.UTF16ToString(entry.ExeFile[:])
	raw := rawProcess{
		PID:         entry.ProcessID,
		PPID:        entry.ParentProcessID,
		Name:        name,
		ThreadCount: entry.Threads,
	}

	h, err := windows.OpenProcess(openProcessAccess, false, entry.ProcessID)
	if err != nil {
		return raw
	}
	defer windows.CloseHandle(h)

	if path, err := queryFullImageName(h); err == nil {
		raw.Path = path
	}
	if cpuNS, err := cumulativeProcessCPUTime(h); err == nil {
		raw.CPUTimeNS = cpuNS
	}
	if rss, err := processWorkingSetSize(h); err == nil {
		raw.RSSBytes = rss
	}
	if sid, err := processOwnerSID(h); err == nil {
		raw.SID = sid
	}
	return raw
}

func queryFullImageName(h windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}

func cumulativeProcessCPUTime(h windows.Handle) (uint64, error) {
	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernel, &user); err != nil {
		return 0, err
	}
	kernelUnits := uint64(kernel.HighDateTime)<<32 | uint64(kernel.LowDateTime)
	userUnits := uint64(user.HighDateTime)<<32 | uint64(user.LowDateTime)
	return (kernelUnits + userUnits) * 100, nil
}

func processWorkingSetSize(h windows.Handle) (uint64, error) {
	var info processMemoryCountersEx
	info.cb = uint32(unsafe.Sizeof(info))
	ret, _, err := procGetProcessMemoryInfo.Call(uintptr(h), uintptr(unsafe.Pointer(&info)), uintptr(info.cb))
	if ret == 0 {
		return 0, err
	}
	return uint64(info.workingSetSize), nil
}

func processOwnerSID(h windows.Handle) (string, error) {
	var token windows.Token
	if err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token); err != nil {
		return "", err
	}
	defer token.Close()

	tokenUser, err := token.GetTokenUser()
	if err != nil {
		return "", err
	}
	return tokenUser.User.Sid.String()
}

func (l *windowsLister) Details(ctx context.Context, pid uint32) (processDetails, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return processDetails{}, err
	}
	defer windows.CloseHandle(h)

	priorityValue, err := windows.GetPriorityClass(h)
	if err != nil {
		return processDetails{}, err
	}

	var processMask, systemMask uintptr
	if err := procGetProcessAffinityMaskCall(h, &processMask, &systemMask); err != nil {
		return processDetails{}, err
	}

	return processDetails{
		Priority:     priorityClassFromValue(priorityValue),
		AffinityMask: uint64(processMask),
	}, nil
}

func procGetProcessAffinityMaskCall(h windows.Handle, processMask, systemMask *uintptr) error {
	ret, _, err := procGetProcessAffinityMask.Call(uintptr(h), uintptr(unsafe.Pointer(processMask)), uintptr(unsafe.Pointer(systemMask)))
	if ret == 0 {
		return err
	}
	return nil
}

func (l *windowsLister) Username(ctx context.Context, sid string) string {
	s, err := windows.StringToSid(sid)
	if err != nil {
		return ""
	}

	var accountLen, domainLen, use uint32
	procLookupAccountSidW.Call(0, uintptr(unsafe.Pointer(s)), 0, uintptr(unsafe.Pointer(&accountLen)), 0, uintptr(unsafe.Pointer(&domainLen)), uintptr(unsafe.Pointer(&use)))
	if accountLen == 0 {
		return ""
	}

	account := make([]uint16, accountLen)
	domain := make([]uint16, domainLen)
	ret, _, _ := procLookupAccountSidW.Call(
		0,
		uintptr(unsafe.Pointer(s)),
		uintptr(unsafe.Pointer(&account[0])),
		uintptr(unsafe.Pointer(&accountLen)),
		uintptr(unsafe.Pointer(&domain[0])),
		uintptr(unsafe.Pointer(&domainLen)),
		uintptr(unsafe.Pointer(&use)),
	)
	if ret == 0 {
		return ""
	}
	if domainLen > 0 {
		return windows.UTF16ToString(domain) + "\\" + windows.UTF16ToString(account)
	}
	return windows.UTF16ToString(account)
}
