//go:build windows

package effector

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/corebalance/corebalance/internal/model"
)

// Win32 priority class values.
// https://learn.microsoft.com/en-us/windows/win32/procthread/scheduling-priorities
const (
	idlePriorityClass        = 0x00000040
	belowNormalPriorityClass = 0x00004000
	normalPriorityClass      = 0x00000020
	aboveNormalPriorityClass = 0x00008000
	highPriorityClass        = 0x00000080
	realtimePriorityClass    = 0x00000100
)

var priorityClassValue = map[model.PriorityClass]uint32{
	model.Idle:        idlePriorityClass,
	model.BelowNormal: belowNormalPriorityClass,
	model.Normal:      normalPriorityClass,
	model.AboveNormal: aboveNormalPriorityClass,
	model.High:        highPriorityClass,
	model.RealTime:    realtimePriorityClass,
}

var priorityClassName = map[uint32]model.PriorityClass{
	idlePriorityClass:        model.Idle,
	belowNormalPriorityClass: model.BelowNormal,
	normalPriorityClass:      model.Normal,
	aboveNormalPriorityClass: model.AboveNormal,
	highPriorityClass:        model.High,
	realtimePriorityClass:    model.RealTime,
}

var (
	modKernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modPsapi    = windows.NewLazySystemDLL("psapi.dll")
	modNtdll    = windows.NewLazySystemDLL("ntdll.dll")
	modUser32   = windows.NewLazySystemDLL("user32.dll")

	procSetThreadAffinityMask      = modKernel32.NewProc("SetThreadAffinityMask")
	procSetThreadIdealProcessor    = modKernel32.NewProc("SetThreadIdealProcessor")
	procGetThreadTimes             = modKernel32.NewProc("GetThreadTimes")
	procSetProcessDefaultCpuSets   = modKernel32.NewProc("SetProcessDefaultCpuSets")
	procGetSystemCpuSetInformation = modKernel32.NewProc("GetSystemCpuSetInformation")
	procEmptyWorkingSet            = modPsapi.NewProc("EmptyWorkingSet")
	procGetProcessMemoryInfo       = modPsapi.NewProc("GetProcessMemoryInfo")
	procNtSetSystemInformation     = modNtdll.NewProc("NtSetSystemInformation")
	procGetForegroundWindow        = modUser32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessId   = modUser32.NewProc("GetWindowThreadProcessId")
	procGlobalMemoryStatusEx       = modKernel32.NewProc("GlobalMemoryStatusEx")
)

const (
	processQueryInformation = windows.PROCESS_QUERY_INFORMATION
	processSetInformation   = windows.PROCESS_SET_INFORMATION
	processSetQuota         = windows.PROCESS_SET_QUOTA
	processTerminateRight   = windows.PROCESS_TERMINATE
	processVMRead           = windows.PROCESS_VM_READ
	threadQueryInformation  = windows.THREAD_QUERY_INFORMATION
	threadSetInformation    = windows.THREAD_SET_INFORMATION
	threadSetLimited        = 0x0400 // THREAD_SET_LIMITED_INFORMATION
	th32csSnapThread        = 0x00000004
)

// memoryStatusEx mirrors MEMORYSTATUSEX.
type memoryStatusEx struct {
	length               uint32
	memoryLoad           uint32
	totalPhys            uint64
	availPhys            uint64
	totalPageFile        uint64
	availPageFile        uint64
	totalVirtual         uint64
	availVirtual         uint64
	availExtendedVirtual uint64
}

// systemInfoMemoryCounters mirrors PROCESS_MEMORY_COUNTERS_EX.
type systemInfoMemoryCounters struct {
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

// windowsEffector implements Effector on Win32. cpuSetIDs is the one-shot
// lookup table translating logical-core index to CPU-set id, computed on
// first use and cached (grounded on the original tauri prototype's
// cpu_sets.rs one-shot cache).
type windowsEffector struct {
	pool       *Pool
	systemMask uint64

	cpuSetOnce sync.Once
	cpuSetIDs  []uint32 // index: logical core id -> CPU set id
	cpuSetErr  error
}

// New returns the Windows effector, bounding concurrent Win32 calls to
// maxConcurrent via Pool.
func New(systemMask uint64, maxConcurrent int) Effector {
	return &windowsEffector{pool: NewPool(maxConcurrent), systemMask: systemMask}
}

func (e *windowsEffector) SystemMask() uint64 { return e.systemMask }

func (e *windowsEffector) openProcess(pid uint32, access uint32) (windows.Handle, error) {
	h, err := windows.OpenProcess(access, false, pid)
	if err != nil {
		return 0, model.NewProcessNotFound(pid, err)
	}
	return h, nil
}

func (e *windowsEffector) SetPriority(ctx context.Context, pid uint32, level model.PriorityClass) error {
	_, err := Submit(ctx, e.pool, func() (struct{}, error) {
		class, ok := priorityClassValue[level]
		if !ok {
			return struct{}{}, model.NewInvalidPriority(fmt.Sprintf("unrecognized priority class %v", level))
		}
		h, err := e.openProcess(pid, processQueryInformation|processSetInformation)
		if err != nil {
			return struct{}{}, err
		}
		defer windows.CloseHandle(h)

		if err := windows.SetPriorityClass(h, class); err != nil {
			return struct{}{}, model.NewSystemError(pid, "SetPriorityClass failed", err)
		}
		return struct{}{}, nil
	})
	return err
}

func (e *windowsEffector) SetHardAffinity(ctx context.Context, pid uint32, mask uint64) error {
	if err := ValidateHardAffinity(mask, e.systemMask); err != nil {
		return err
	}
	_, err := Submit(ctx, e.pool, func() (struct{}, error) {
		h, err := e.openProcess(pid, processQueryInformation|processSetInformation)
		if err != nil {
			return struct{}{}, err
		}
		defer windows.CloseHandle(h)

		if err := windows.SetProcessAffinityMask(h, uintptr(mask)); err != nil {
			return struct{}{}, model.NewSystemError(pid, "SetProcessAffinityMask failed", err)
		}
		return struct{}{}, nil
	})
	return err
}

func (e *windowsEffector) cpuSetTable() ([]uint32, error) {
	e.cpuSetOnce.Do(func() {
		e.cpuSetIDs, e.cpuSetErr = queryCpuSetIDs()
	})
	return e.cpuSetIDs, e.cpuSetErr
}

func (e *windowsEffector) SetSoftAffinity(ctx context.Context, pid uint32, coreIDs []uint32) error {
	_, err := Submit(ctx, e.pool, func() (struct{}, error) {
		table, err := e.cpuSetTable()
		if err != nil {
			return struct{}{}, model.NewSystemError(pid, "mapping unavailable", err)
		}

		var setIDs []uint32
		for _, core := range coreIDs {
			if int(core) < len(table) {
				setIDs = append(setIDs, table[core])
			}
		}
		if len(coreIDs) > 0 && len(setIDs) == 0 {
			return struct{}{}, model.NewSystemError(pid, "mapping unavailable", nil)
		}

		h, err := e.openProcess(pid, processQueryInformation|processSetInformation)
		if err != nil {
			return struct{}{}, err
		}
		defer windows.CloseHandle(h)

		var ptr uintptr
		if len(setIDs) > 0 {
			ptr = uintptr(unsafe.Pointer(&setIDs[0]))
		}
		ret, _, callErr := procSetProcessDefaultCpuSets.Call(uintptr(h), ptr, uintptr(len(setIDs)))
		if ret == 0 {
			return struct{}{}, model.NewSystemError(pid, "SetProcessDefaultCpuSets failed", callErr)
		}
		return struct{}{}, nil
	})
	return err
}

func queryCpuSetIDs() ([]uint32, error) {
	var length uint32
	ret, _, err := procGetSystemCpuSetInformation.Call(0, 0, uintptr(unsafe.Pointer(&length)), 0, 0)
	if ret != 0 || length == 0 {
		return nil, fmt.Errorf("GetSystemCpuSetInformation size probe failed: %w", err)
	}
	buf := make([]byte, length)
	ret, _, err = procGetSystemCpuSetInformation.Call(
		uintptr(unsafe.Pointer(&buf[0])), uintptr(length), uintptr(unsafe.Pointer(&length)), 0, 0)
	if ret == 0 {
		return nil, fmt.Errorf("GetSystemCpuSetInformation failed: %w", err)
	}

	// Each SYSTEM_CPU_SET_INFORMATION record begins with {Size, Type} and a
	// CPU_SET record carries {Id, Group, LogicalProcessorIndex, ...} after
	// that header; offsets below follow the documented layout for
	// CPU_SET_INFORMATION_TYPE == 0 (CpuSetInformation).
	type header struct {
		Size uint32
		Type uint32
	}
	var table []uint32
	offset := 0
	for offset+8 <= len(buf) {
		h := (*header)(unsafe.Pointer(&buf[offset]))
		if h.Size == 0 || offset+int(h.Size) > len(buf) {
			break
		}
		if h.Type == 0 && offset+16 <= len(buf) {
			id := *(*uint32)(unsafe.Pointer(&buf[offset+8]))
			lpIndex := uint32(buf[offset+14])
			for uint32(len(table)) <= lpIndex {
				table = append(table, 0)
			}
			table[lpIndex] = id
		}
		offset += int(h.Size)
	}
	return table, nil
}

func (e *windowsEffector) SetThreadAffinity(ctx context.Context, tid uint32, mask uint64) error {
	if mask == 0 {
		return model.NewSystemError(0, "resulting thread affinity would be zero", nil)
	}
	_, err := Submit(ctx, e.pool, func() (struct{}, error) {
		h, err := windows.OpenThread(threadQueryInformation|threadSetInformation, false, tid)
		if err != nil {
			return struct{}{}, model.NewSystemError(0, "OpenThread failed", err)
		}
		defer windows.CloseHandle(h)

		ret, _, callErr := procSetThreadAffinityMask.Call(uintptr(h), uintptr(mask))
		if ret == 0 {
			return struct{}{}, model.NewSystemError(0, "SetThreadAffinityMask failed", callErr)
		}
		return struct{}{}, nil
	})
	return err
}

func (e *windowsEffector) SetIdealProcessor(ctx context.Context, tid uint32, core uint32) (uint32, error) {
	return Submit(ctx, e.pool, func() (uint32, error) {
		h, err := windows.OpenThread(threadQueryInformation|threadSetInformation, false, tid)
		if err != nil {
			// best-effort; an unopenable thread is skipped silently and
			// does not fail the tick.
			return 0, nil
		}
		defer windows.CloseHandle(h)

		ret, _, _ := procSetThreadIdealProcessor.Call(uintptr(h), uintptr(core))
		const maximumProcessors = 0xFFFFFFFF
		if ret == maximumProcessors {
			return 0, nil
		}
		return uint32(ret), nil
	})
}

func (e *windowsEffector) TrimWorkingSet(ctx context.Context, pid uint32) (uint64, error) {
	return Submit(ctx, e.pool, func() (uint64, error) {
		h, err := e.openProcess(pid, processQueryInformation|processSetQuota|processVMRead)
		if err != nil {
			return 0, err
		}
		defer windows.CloseHandle(h)

		before, err := processMemoryCounters(h)
		if err != nil {
			return 0, model.NewSystemError(pid, "GetProcessMemoryInfo failed", err)
		}

		ret, _, callErr := procEmptyWorkingSet.Call(uintptr(h))
		if ret == 0 {
			return 0, model.NewSystemError(pid, "EmptyWorkingSet failed", callErr)
		}

		after, err := processMemoryCounters(h)
		if err != nil {
			return 0, model.NewSystemError(pid, "GetProcessMemoryInfo failed", err)
		}

		if after >= before {
			return 0, nil
		}
		return before - after, nil
	})
}

func processMemoryCounters(h windows.Handle) (uint64, error) {
	var info systemInfoMemoryCounters
	info.cb = uint32(unsafe.Sizeof(info))
	ret, _, err := procGetProcessMemoryInfo.Call(uintptr(h), uintptr(unsafe.Pointer(&info)), uintptr(info.cb))
	if ret == 0 {
		return 0, err
	}
	return uint64(info.workingSetSize), nil
}

func (e *windowsEffector) Terminate(ctx context.Context, pid uint32) error {
	_, err := Submit(ctx, e.pool, func() (struct{}, error) {
		h, err := e.openProcess(pid, processTerminateRight)
		if err != nil {
			return struct{}{}, err
		}
		defer windows.CloseHandle(h)

		if err := windows.TerminateProcess(h, 1); err != nil {
			return struct{}{}, model.NewSystemError(pid, "TerminateProcess failed", err)
		}
		return struct{}{}, nil
	})
	return err
}

func (e *windowsEffector) ThreadCPUTimes(ctx context.Context, pid uint32) (map[uint32]uint64, error) {
	return Submit(ctx, e.pool, func() (map[uint32]uint64, error) {
		snap, err := windows.CreateToolhelp32Snapshot(th32csSnapThread, 0)
		if err != nil {
			return nil, model.NewSystemError(pid, "CreateToolhelp32Snapshot failed", err)
		}
		defer windows.CloseHandle(snap)

		var entry windows.ThreadEntry32
		entry.Size = uint32(unsafe.Sizeof(entry))
		out := make(map[uint32]uint64)

		err = windows.Thread32First(snap, &entry)
		for err == nil {
			if entry.OwnerProcessID == pid {
				if ns, ok := threadCPUTimeNS(entry.ThreadID); ok {
					out[entry.ThreadID] = ns
				}
			}
			err = windows.Thread32Next(snap, &entry)
		}
		return out, nil
	})
}

func threadCPUTimeNS(tid uint32) (uint64, bool) {
	h, err := windows.OpenThread(threadQueryInformation, false, tid)
	if err != nil {
		return 0, false
	}
	defer windows.CloseHandle(h)

	var creation, exit, kernel, user windows.Filetime
	ret, _, _ := procGetThreadTimes.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(&creation)),
		uintptr(unsafe.Pointer(&exit)),
		uintptr(unsafe.Pointer(&kernel)),
		uintptr(unsafe.Pointer(&user)),
	)
	if ret == 0 {
		return 0, false
	}
	k := uint64(kernel.HighDateTime)<<32 | uint64(kernel.LowDateTime)
	u := uint64(user.HighDateTime)<<32 | uint64(user.LowDateTime)
	return k + u, true
}

func (e *windowsEffector) PurgeStandbyList(ctx context.Context) error {
	_, err := Submit(ctx, e.pool, func() (struct{}, error) {
		// SystemMemoryListInformation == 0x50; MemoryPurgeStandbyList == 4.
		const systemMemoryListInformation = 0x50
		command := uint32(4)
		ret, _, _ := procNtSetSystemInformation.Call(
			uintptr(systemMemoryListInformation),
			uintptr(unsafe.Pointer(&command)),
			unsafe.Sizeof(command),
		)
		if ret != 0 {
			return struct{}{}, model.NewSystemError(0, "NtSetSystemInformation(purge standby list) failed", fmt.Errorf("status %#x", ret))
		}
		return struct{}{}, nil
	})
	return err
}

// ForegroundPID returns the owning process id of the current foreground
// window, or 0 if there is none (e.g. the desktop itself has focus).
func (e *windowsEffector) ForegroundPID(ctx context.Context) (uint32, error) {
	return Submit(ctx, e.pool, func() (uint32, error) {
		hwnd, _, _ := procGetForegroundWindow.Call()
		if hwnd == 0 {
			return 0, nil
		}
		var pid uint32
		procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
		return pid, nil
	})
}

// SystemMemoryPercent returns system-wide physical memory usage, 0-100.
func (e *windowsEffector) SystemMemoryPercent(ctx context.Context) (float32, error) {
	return Submit(ctx, e.pool, func() (float32, error) {
		var status memoryStatusEx
		status.length = uint32(unsafe.Sizeof(status))
		ret, _, callErr := procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&status)))
		if ret == 0 {
			return 0, model.NewSystemError(0, "GlobalMemoryStatusEx failed", callErr)
		}
		return float32(status.memoryLoad), nil
	})
}

func (e *windowsEffector) EnableDebugPrivilege() error {
	var token windows.Token
	proc := windows.CurrentProcess()
	if err := windows.OpenProcessToken(proc, windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token); err != nil {
		return fmt.Errorf("OpenProcessToken: %w", err)
	}
	defer token.Close()

	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, windows.StringToUTF16Ptr("SeDebugPrivilege"), &luid); err != nil {
		return fmt.Errorf("LookupPrivilegeValue: %w", err)
	}

	privileges := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{
			{Luid: luid, Attributes: windows.SE_PRIVILEGE_ENABLED},
		},
	}
	if err := windows.AdjustTokenPrivileges(token, false, &privileges, 0, nil, nil); err != nil {
		return fmt.Errorf("AdjustTokenPrivileges: %w", err)
	}
	return nil
}
