// Package governor ties together the sampler, policy resolver/enforcer,
// ProBalance supervisor, memory reaper, and event bus into the single
// cooperative tick loop described by the concurrency model: one dedicated
// worker samples, reconciles, and emits once per second, yielding every
// blocking Win32 call to a bounded thread pool.
package governor

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/corebalance/corebalance/internal/binder"
	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/eventbus"
	"github.com/corebalance/corebalance/internal/model"
	"github.com/corebalance/corebalance/internal/policy"
	"github.com/corebalance/corebalance/internal/probalance"
	"github.com/corebalance/corebalance/internal/profile"
	"github.com/corebalance/corebalance/internal/reaper"
	"github.com/corebalance/corebalance/internal/sampler"
	"github.com/corebalance/corebalance/internal/tweaks"
)

const tickPeriod = time.Second

// tweaksRefreshEveryNTicks bounds how often the read-only system-tweak
// diagnostics (Game Mode, power plan, HAGS) are re-read: none of them
// change faster than a user can open a settings panel, so reading them
// every tick would be pure overhead.
const tweaksRefreshEveryNTicks = 60

// Governor runs the tick loop: sample, enforce profiles and default rules,
// run ProBalance, run the reaper, then emit — all against the same
// snapshot, in that fixed order.
type Governor struct {
	sampler    *sampler.Sampler
	enforcer   *policy.Enforcer
	proBalance *probalance.Supervisor
	reaper     *reaper.Reaper
	tweaks     *tweaks.Runner
	bus        *eventbus.Bus
	eff        effector.Effector
	profiles   *profile.Store
	state      *model.RuntimeState

	logicalCores int
	selfPID      uint32
	selfExeName  string

	running atomic.Bool
}

// New constructs a Governor. logicalCores normalizes CPU percentages;
// selfPID/selfExeName identify the governor's own process so the reaper and
// default rules never act on it.
func New(eff effector.Effector, profiles *profile.Store, bus *eventbus.Bus, logicalCores int, selfPID uint32, selfExeName string) *Governor {
	if logicalCores <= 0 {
		logicalCores = 1
	}
	return &Governor{
		sampler:      sampler.New(logicalCores),
		enforcer:     policy.NewEnforcer(eff, binder.New(eff)),
		proBalance:   probalance.New(eff),
		reaper:       reaper.New(eff),
		tweaks:       tweaks.New(),
		bus:          bus,
		eff:          eff,
		profiles:     profiles,
		state:        model.NewRuntimeState(),
		logicalCores: logicalCores,
		selfPID:      selfPID,
		selfExeName:  selfExeName,
	}
}

// Run blocks, executing one tick roughly every tickPeriod, until ctx is
// canceled or Stop is called. Clearing the running flag (or ctx
// cancellation) takes effect at the next suspension point between ticks.
func (g *Governor) Run(ctx context.Context) {
	g.running.Store(true)
	for g.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		g.runTickWithWatchdog(ctx, start)

		elapsed := time.Since(start)
		sleep := tickPeriod - elapsed
		if sleep <= 0 {
			continue
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return
		}
	}
}

// Stop clears the running flag; Run exits at the next suspension point.
func (g *Governor) Stop() { g.running.Store(false) }

// runTickWithWatchdog runs one tick on a separate goroutine and logs a
// warning — without aborting anything — if it is still in flight after
// twice the nominal tick period. In-flight Win32 calls are never force-
// killed, so the loop waits for the tick to finish before proceeding.
func (g *Governor) runTickWithWatchdog(ctx context.Context, now time.Time) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.tick(ctx, now)
	}()

	select {
	case <-done:
		return
	case <-time.After(2 * tickPeriod):
		log.Printf("governor: tick started at %v has not completed after %v, still waiting", now, 2*tickPeriod)
	}
	<-done
}

func (g *Governor) tick(ctx context.Context, now time.Time) {
	snap, err := g.sampler.Tick(ctx, g.state, now)
	if err != nil {
		log.Printf("governor: sample failed: %v", err)
		return
	}

	snapCfg := g.profiles.Snapshot()
	g.enforcer.Enforce(ctx, snapCfg, &snap, g.state, g.selfExeName)

	foregroundPID, err := g.eff.ForegroundPID(ctx)
	if err != nil {
		log.Printf("governor: foreground window lookup failed: %v", err)
	}

	g.proBalance.Run(ctx, snapCfg, snap, g.state, foregroundPID)

	if result, ran := g.reaper.Run(ctx, snapCfg.SmartTrim, snap, g.state, now, foregroundPID, g.selfPID); ran {
		log.Printf("governor: reaper pass freed=%.1fMiB trimmed=%d %s", result.FreedMiB, result.TrimmedCount, result.Message)
	}

	if g.state.TickCount%tweaksRefreshEveryNTicks == 0 {
		g.state.LastTweaks = g.tweaks.Run(ctx)
	}
	snap.Tweaks = g.state.LastTweaks

	g.emit(ctx, snap)
}

func (g *Governor) emit(ctx context.Context, snap model.Snapshot) {
	g.bus.PublishProcessUpdate(snap)

	if memPct, err := g.eff.SystemMemoryPercent(ctx); err == nil {
		g.bus.PublishMemoryLoad(eventbus.LoadUpdate{Percent: memPct})
	}

	g.bus.PublishCPULoad(eventbus.LoadUpdate{Percent: snap.TotalCPUPercent()})
}
