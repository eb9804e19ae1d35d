// Package sampler implements component B: a periodic snapshot of every
// running process, with cheap fields refreshed every tick and expensive
// fields refreshed every third tick.
package sampler

import (
	"context"
	"time"

	"github.com/corebalance/corebalance/internal/model"
)

// detailsRefreshEveryNTicks and usersRefreshEveryNTicks implement the
// sampler's cheap/expensive split.
const (
	detailsRefreshEveryNTicks = 3
	usersRefreshEveryNTicks   = 60
)

// rawProcess is the per-process data a platform lister can produce cheaply,
// without an expensive priority/affinity query.
type rawProcess struct {
	PID         uint32
	PPID        uint32
	Name        string
	Path        string
	SID         string
	CPUTimeNS   uint64
	RSSBytes    uint64
	ThreadCount uint32
}

// processDetails is the expensive, every-third-tick data for one process.
type processDetails struct {
	Priority     model.PriorityClass
	AffinityMask uint64
}

// lister abstracts the platform-specific process enumeration so Sampler
// itself has no Win32 dependency and can be unit tested with a fake.
type lister interface {
	ListCheap(ctx context.Context) ([]rawProcess, error)
	Details(ctx context.Context, pid uint32) (processDetails, error)
	Username(ctx context.Context, sid string) string
	SystemMask() uint64
}

// Sampler produces one Snapshot per tick from a lister, folding in the
// sampler-owned caches held in the caller's RuntimeState.
type Sampler struct {
	lister       lister
	logicalCores int
	usersCache   map[string]string
}

// New returns a Sampler backed by the platform's process lister.
// logicalCores normalizes summed per-core CPU time into a [0,100] percent.
func New(logicalCores int) *Sampler {
	if logicalCores <= 0 {
		logicalCores = 1
	}
	return &Sampler{lister: newPlatformLister(), logicalCores: logicalCores, usersCache: make(map[string]string)}
}

// Tick advances state.TickCount and returns the snapshot for this tick.
// now is the wall-clock time used for the CPU% delta and debounce math, and
// for Snapshot.TakenAtUnixNano.
func (s *Sampler) Tick(ctx context.Context, state *model.RuntimeState, now time.Time) (model.Snapshot, error) {
	state.TickCount++

	raws, err := s.lister.ListCheap(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}

	refreshDetails := state.TickCount%detailsRefreshEveryNTicks == 0
	refreshUsers := state.TickCount%usersRefreshEveryNTicks == 0
	evictDead := state.TickCount%usersRefreshEveryNTicks == 0

	systemMask := s.lister.SystemMask()
	live := make(map[uint32]bool, len(raws))
	processes := make([]model.ProcessInfo, 0, len(raws))

	for _, raw := range raws {
		live[raw.PID] = true

		cpuPct := s.computeCPUPercent(raw, state, now)
		details := s.resolveDetails(ctx, raw.PID, systemMask, refreshDetails, state)
		user := s.resolveUser(ctx, raw.SID, refreshUsers)

		processes = append(processes, model.ProcessInfo{
			PID:         raw.PID,
			ParentPID:   raw.PPID,
			HasParent:   raw.PPID != 0,
			Name:        raw.Name,
			Path:        raw.Path,
			User:        user,
			CPUPercent:  cpuPct,
			RSSBytes:    raw.RSSBytes,
			Priority:    details.Priority,
			Affinity:    details.Affinity,
			ThreadCount: raw.ThreadCount,
		})
	}

	if evictDead {
		state.EvictDead(live)
	}

	snap := model.Snapshot{TakenAtUnixNano: now.UnixNano(), Processes: processes}
	snap.SortDescendingCPU()
	return snap, nil
}

// computeCPUPercent derives a [0,100] per-process CPU percentage from the
// delta against the previous tick's cumulative CPU time sample.
func (s *Sampler) computeCPUPercent(raw rawProcess, state *model.RuntimeState, now time.Time) float32 {
	prev, ok := state.ProcessCPUCache[raw.PID]
	state.ProcessCPUCache[raw.PID] = model.ThreadSample{CPUTimeNS: raw.CPUTimeNS, SampledAt: now}
	if !ok {
		return 0
	}

	elapsed := now.Sub(prev.SampledAt).Seconds()
	if elapsed <= 0 || raw.CPUTimeNS < prev.CPUTimeNS {
		return 0
	}

	deltaNS := raw.CPUTimeNS - prev.CPUTimeNS
	pct := float32(float64(deltaNS) / 1e9 / elapsed / float64(s.logicalCores) * 100)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// resolveDetails returns the cached or freshly-queried priority/affinity
// for pid, tolerating per-process query failures by falling back to Normal
// priority and an "All cores" affinity view when nothing is cached yet.
func (s *Sampler) resolveDetails(ctx context.Context, pid uint32, systemMask uint64, refresh bool, state *model.RuntimeState) model.DetailsTuple {
	cached, ok := state.DetailsCache[pid]
	if !refresh && ok {
		return cached
	}

	d, err := s.lister.Details(ctx, pid)
	if err != nil {
		if ok {
			return cached
		}
		return model.DetailsTuple{Priority: model.Normal, Affinity: model.AllCores()}
	}

	tuple := model.DetailsTuple{Priority: d.Priority, Affinity: renderAffinity(d.AffinityMask, systemMask)}
	state.DetailsCache[pid] = tuple
	return tuple
}

func renderAffinity(mask, systemMask uint64) model.AffinityView {
	if mask == systemMask {
		return model.AllCores()
	}
	return model.MaskView(mask)
}

// resolveUser applies the 60-tick users-table refresh rule: a SID already
// seen is reused between refreshes; an unseen SID is resolved immediately
// regardless of the refresh cadence so a brand-new process is never shown
// with a blank owner.
func (s *Sampler) resolveUser(ctx context.Context, sid string, refresh bool) string {
	if sid == "" {
		return ""
	}
	if name, ok := s.usersCache[sid]; ok && !refresh {
		return name
	}
	name := s.lister.Username(ctx, sid)
	s.usersCache[sid] = name
	return name
}
