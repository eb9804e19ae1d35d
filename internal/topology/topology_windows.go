//go:build windows

package topology

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/exp/slices"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/corebalance/corebalance/internal/model"
)

var (
	modKernel32                          = windows.NewLazySystemDLL("kernel32.dll")
	procGetLogicalProcessorInformationEx = modKernel32.NewProc("GetLogicalProcessorInformationEx")
)

// Relationship values for GetLogicalProcessorInformationEx.
// https://learn.microsoft.com/en-us/windows/win32/api/sysinfoapi/nf-sysinfoapi-getlogicalprocessorinformationex
const (
	relationProcessorCore    = 0
	relationCache            = 2
	relationProcessorPackage = 3
	relationAll              = 0xffff
)

const cacheLevelL3 = 3

// groupAffinity mirrors GROUP_AFFINITY. This package assumes a single
// processor group (true for any machine with <=64 logical processors,
// which covers every consumer desktop this governor targets).
type groupAffinity struct {
	Mask     uintptr
	Group    uint16
	Reserved [3]uint16
}

// processorRelationship mirrors PROCESSOR_RELATIONSHIP, single-group form.
type processorRelationship struct {
	Flags           byte
	EfficiencyClass byte
	Reserved        [20]byte
	GroupCount      uint16
	GroupMask       groupAffinity
}

// cacheRelationship mirrors CACHE_RELATIONSHIP, single-group form.
type cacheRelationship struct {
	Level         byte
	Associativity byte
	LineSize      uint16
	CacheSize     uint32
	Type          uint32
	Reserved      [18]byte
	GroupCount    uint16
	GroupMask     groupAffinity
}

type recordHeader struct {
	Relationship uint32
	Size         uint32
}

func queryLogicalProcessorInformationEx(relationship uint32) ([]byte, error) {
	var length uint32
	ret, _, err := procGetLogicalProcessorInformationEx.Call(uintptr(relationship), 0, uintptr(unsafe.Pointer(&length)))
	if ret != 0 {
		return nil, fmt.Errorf("GetLogicalProcessorInformationEx size probe unexpectedly succeeded")
	}
	if err != windows.ERROR_INSUFFICIENT_BUFFER {
		return nil, fmt.Errorf("GetLogicalProcessorInformationEx size probe: %w", err)
	}

	buf := make([]byte, length)
	ret, _, err = procGetLogicalProcessorInformationEx.Call(uintptr(relationship), uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&length)))
	if ret == 0 {
		return nil, fmt.Errorf("GetLogicalProcessorInformationEx: %w", err)
	}
	return buf, nil
}

// walkRecords invokes fn once per variable-length record in buf.
func walkRecords(buf []byte, fn func(relationship uint32, record []byte)) {
	offset := 0
	for offset+8 <= len(buf) {
		hdr := (*recordHeader)(unsafe.Pointer(&buf[offset]))
		size := int(hdr.Size)
		if size <= 0 || offset+size > len(buf) {
			break
		}
		fn(hdr.Relationship, buf[offset:offset+size])
		offset += size
	}
}

func detect() (model.Topology, error) {
	coreBuf, err := queryLogicalProcessorInformationEx(relationProcessorCore)
	if err != nil {
		return model.Topology{}, fmt.Errorf("query processor cores: %w", err)
	}

	var cores []model.LogicalProcessor
	efficiencyClass := make(map[uint32]uint32)
	physicalID := uint32(0)

	walkRecords(coreBuf, func(rel uint32, record []byte) {
		if rel != relationProcessorCore {
			return
		}
		pr := (*processorRelationship)(unsafe.Pointer(&record[8]))
		forEachSetBit(uint64(pr.GroupMask.Mask), func(bit int) {
			id := uint32(bit)
			cores = append(cores, model.LogicalProcessor{ID: id, PhysicalCoreID: physicalID})
			efficiencyClass[id] = uint32(pr.EfficiencyClass)
		})
		physicalID++
	})

	if len(cores) == 0 {
		return model.Topology{}, fmt.Errorf("no processor-core records returned")
	}
	slices.SortFunc(cores, func(a, b model.LogicalProcessor) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	cacheBuf, err := queryLogicalProcessorInformationEx(relationCache)
	if err != nil {
		// Cache topology is an enrichment, not a requirement; continue with
		// every core in the synthetic L3 group (group 0).
		cacheBuf = nil
	}

	groupIDByMask := make(map[uintptr]uint32)
	l3SizeByGroup := make(map[uint32]uint64)
	l3GroupByCore := make(map[uint32]uint32)
	nextGroupID := uint32(1)
	walkRecords(cacheBuf, func(rel uint32, record []byte) {
		if rel != relationCache {
			return
		}
		cr := (*cacheRelationship)(unsafe.Pointer(&record[8]))
		if cr.Level != cacheLevelL3 {
			return
		}
		groupID, ok := groupIDByMask[cr.GroupMask.Mask]
		if !ok {
			groupID = nextGroupID
			nextGroupID++
			groupIDByMask[cr.GroupMask.Mask] = groupID
			l3SizeByGroup[groupID] = uint64(cr.CacheSize)
		}
		forEachSetBit(uint64(cr.GroupMask.Mask), func(bit int) {
			l3GroupByCore[uint32(bit)] = groupID
		})
	})

	for i, c := range cores {
		if g, ok := l3GroupByCore[c.ID]; ok {
			cores[i].L3GroupID = g
		}
	}

	vendor, modelName := detectVendor()

	var isHybrid, hasVCache bool
	switch vendor {
	case model.VendorIntel:
		cores, isHybrid = model.ClassifyIntelHybrid(cores, efficiencyClass)
	case model.VendorAMD:
		cores, hasVCache = model.ClassifyVCache(cores, l3SizeByGroup)
	default:
		for i := range cores {
			cores[i].Class = model.ClassPerformance
		}
	}

	packageBuf, err := queryLogicalProcessorInformationEx(relationProcessorPackage)
	physical := uint32(0)
	if err == nil {
		walkRecords(packageBuf, func(rel uint32, record []byte) {
			if rel == relationProcessorPackage {
				physical++
			}
		})
	}
	if physical == 0 {
		physical = 1
	}

	return model.Topology{
		Vendor:    vendor,
		Model:     modelName,
		Physical:  physical,
		Logical:   uint32(len(cores)),
		Cores:     cores,
		CCDGroups: model.BuildCCDGroups(cores),
		IsHybrid:  isHybrid,
		HasVCache: hasVCache,
	}, nil
}

func forEachSetBit(mask uint64, fn func(bit int)) {
	m := mask
	for m != 0 {
		bit := trailingZeros64(m)
		fn(bit)
		m &= m - 1
	}
}

func trailingZeros64(x uint64) int {
	if x == 0 {
		return 64
	}
	n := 0
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

// detectVendor reads the processor name string from the registry and
// classifies vendor by substring match; this mirrors how userspace
// detectors identify Intel vs AMD without shelling out to CPUID.
func detectVendor() (model.Vendor, string) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DESCRIPTION\System\CentralProcessor\0`, registry.QUERY_VALUE)
	if err != nil {
		return model.VendorUnknown, "unknown"
	}
	defer k.Close()

	name, _, err := k.GetStringValue("ProcessorNameString")
	if err != nil || name == "" {
		return model.VendorUnknown, "unknown"
	}

	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "intel"):
		return model.VendorIntel, name
	case strings.Contains(lower, "amd"):
		return model.VendorAMD, name
	default:
		return model.VendorUnknown, name
	}
}
