// corebalance — Windows process governor: hardware-aware priority/affinity
// enforcement, a reactive background-process suppressor, and a memory
// reaper, fanned out over an event bus and exposed to AI agents over MCP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corebalance/corebalance/internal/binder"
	"github.com/corebalance/corebalance/internal/bootstrap"
	"github.com/corebalance/corebalance/internal/diff"
	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/eventbus"
	"github.com/corebalance/corebalance/internal/governor"
	"github.com/corebalance/corebalance/internal/mcpserver"
	"github.com/corebalance/corebalance/internal/model"
	"github.com/corebalance/corebalance/internal/output"
	"github.com/corebalance/corebalance/internal/profile"
	"github.com/corebalance/corebalance/internal/sampler"
	"github.com/corebalance/corebalance/internal/topology"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "corebalance",
		Short:   "Windows process governor: priority, affinity, and memory enforcement",
		Version: version,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newSnapshotCmd(),
		newTopologyCmd(),
		newSetPriorityCmd(),
		newSetAffinityCmd(),
		newSetSoftAffinityCmd(),
		newBindHeaviestCmd(),
		newTrimCmd(),
		newTrimSystemCmd(),
		newTerminateCmd(),
		newDiffCmd(),
		newMCPCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// systemMaskFromLogical builds the "all cores" mask for a machine with n
// logical processors (all ones for 0 or 64+); every command builds its
// effector's system mask from the detected logical-core count this way.
func systemMaskFromLogical(n uint32) uint64 {
	if n == 0 || n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

func newEffector(systemMask uint64) effector.Effector {
	return effector.New(systemMask, 0)
}

func selfIdentity() (uint32, string) {
	pid := uint32(os.Getpid())
	exe, err := os.Executable()
	if err != nil {
		return pid, "corebalance.exe"
	}
	return pid, filepath.Base(exe)
}

func newRunCmd() *cobra.Command {
	var quiet bool
	var profilePath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the governor loop in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			progress := output.NewProgress(!quiet)

			topo := topology.Detect()
			eff := newEffector(systemMaskFromLogical(topo.Logical))

			selfPID, selfExeName := selfIdentity()
			if res, err := bootstrap.Run(context.Background(), eff); err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			} else {
				progress.Log("bootstrap: elevated=%v os=%s debug_privilege=%v", res.Elevated, res.OSVersion, res.DebugPrivilegeEnabled)
			}

			profiles := profile.New()
			if profilePath != "" {
				if err := profiles.LoadFile(profilePath); err != nil {
					return fmt.Errorf("load profile store: %w", err)
				}
			}

			bus := eventbus.New()
			ch := bus.SubscribeProcessUpdates()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g := governor.New(eff, profiles, bus, int(topo.Logical), selfPID, selfExeName)
			done := make(chan struct{})
			go func() {
				defer close(done)
				g.Run(ctx)
			}()

			progress.Log("governor running (pid=%d logical_cores=%d); Ctrl+C to stop", selfPID, topo.Logical)
			for {
				select {
				case snap, ok := <-ch:
					if !ok {
						<-done
						return nil
					}
					progress.Log("tick: %d processes, total_cpu=%.1f%%", len(snap.Processes), snap.TotalCPUPercent())
				case <-ctx.Done():
					progress.Log("shutting down...")
					<-done
					return nil
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	cmd.Flags().StringVar(&profilePath, "profile-store", "", "Path to a TargetProfile JSON document to load at startup")
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Run exactly one sampler tick and print the resulting process table as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo := topology.Detect()
			s := sampler.New(int(topo.Logical))
			state := model.NewRuntimeState()
			snap, err := s.Tick(context.Background(), state, time.Now())
			if err != nil {
				return fmt.Errorf("sample: %w", err)
			}
			return output.WriteJSON(&snap, outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func newTopologyCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Print the detected hardware topology as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo := topology.Detect()
			return output.WriteJSON(&topo, outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func newSetPriorityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-priority <pid> <class>",
		Short: "Set a process's Win32 priority class",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			level, ok := model.ParsePriority(args[1])
			if !ok {
				return fmt.Errorf("unrecognized priority class %q", args[1])
			}
			topo := topology.Detect()
			eff := newEffector(systemMaskFromLogical(topo.Logical))
			if err := eff.SetPriority(context.Background(), pid, level); err != nil {
				return err
			}
			fmt.Printf("pid %d priority set to %s\n", pid, level)
			return nil
		},
	}
}

func newSetAffinityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-affinity <pid> <mask>",
		Short: "Set a process's hard affinity mask (hex, optional 0x prefix)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			mask, err := parseMask(args[1])
			if err != nil {
				return err
			}
			topo := topology.Detect()
			eff := newEffector(systemMaskFromLogical(topo.Logical))
			if err := eff.SetHardAffinity(context.Background(), pid, mask); err != nil {
				return err
			}
			fmt.Printf("pid %d affinity set to 0x%x\n", pid, mask)
			return nil
		},
	}
}

func newSetSoftAffinityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-soft-affinity <pid> <core,core,...>",
		Short: "Apply a CPU-set advisory affinity hint for a process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			cores, err := parseCoreList(args[1])
			if err != nil {
				return err
			}
			topo := topology.Detect()
			eff := newEffector(systemMaskFromLogical(topo.Logical))
			if err := eff.SetSoftAffinity(context.Background(), pid, cores); err != nil {
				return err
			}
			fmt.Printf("pid %d soft affinity applied to cores %v\n", pid, cores)
			return nil
		},
	}
}

func newBindHeaviestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind-heaviest <pid> <core>",
		Short: "Pin a process's heaviest thread to a target core",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			core, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid core: %w", err)
			}
			topo := topology.Detect()
			eff := newEffector(systemMaskFromLogical(topo.Logical))
			b := binder.New(eff)
			tid, err := b.BindHeaviest(context.Background(), pid, uint32(core))
			if err != nil {
				return err
			}
			fmt.Printf("pid %d thread %d bound to core %d\n", pid, tid, core)
			return nil
		},
	}
}

func newTrimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trim <pid>",
		Short: "Trim a process's working set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			topo := topology.Detect()
			eff := newEffector(systemMaskFromLogical(topo.Logical))
			freed, err := eff.TrimWorkingSet(context.Background(), pid)
			if err != nil {
				return err
			}
			fmt.Printf("pid %d freed %d bytes\n", pid, freed)
			return nil
		},
	}
}

func newTrimSystemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trim-system",
		Short: "Purge the system standby list",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo := topology.Detect()
			eff := newEffector(systemMaskFromLogical(topo.Logical))
			if err := eff.PurgeStandbyList(context.Background()); err != nil {
				return err
			}
			fmt.Println("standby list purged")
			return nil
		},
	}
}

func newTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <pid>",
		Short: "Terminate a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			topo := topology.Detect()
			eff := newEffector(systemMaskFromLogical(topo.Logical))
			if err := eff.Terminate(context.Background(), pid); err != nil {
				return err
			}
			fmt.Printf("pid %d terminated\n", pid)
			return nil
		},
	}
}

func newDiffCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "diff <baseline.json> <current.json>",
		Short: "Compare two snapshot JSON dumps",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseline, err := diff.LoadSnapshot(args[0])
			if err != nil {
				return fmt.Errorf("load baseline: %w", err)
			}
			current, err := diff.LoadSnapshot(args[1])
			if err != nil {
				return fmt.Errorf("load current: %w", err)
			}
			result := diff.Compare(baseline, current)

			if outPath == "" || outPath == "-" {
				fmt.Print(diff.FormatDiff(result))
				return nil
			}
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			return os.WriteFile(outPath, data, 0644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "-", "Output diff file path (- for human-readable stdout)")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP stdio server exposing the effector command surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			topo := topology.Detect()
			eff := newEffector(systemMaskFromLogical(topo.Logical))

			profiles := profile.New()
			bus := eventbus.New()
			ch := bus.SubscribeProcessUpdates()

			selfPID, selfExeName := selfIdentity()
			g := governor.New(eff, profiles, bus, int(topo.Logical), selfPID, selfExeName)
			go g.Run(ctx)

			var latest model.Snapshot
			go func() {
				for snap := range ch {
					latest = snap
				}
			}()

			srv := mcpserver.NewServer(version, eff, topo, func() model.Snapshot { return latest })
			return srv.Start(ctx)
		},
	}
}

func parsePID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid pid %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseMask(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid mask %q: %w", s, err)
	}
	return v, nil
}

func parseCoreList(s string) ([]uint32, error) {
	var cores []uint32
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				v, err := strconv.ParseUint(s[start:i], 10, 32)
				if err != nil {
					return nil, fmt.Errorf("invalid core list %q: %w", s, err)
				}
				cores = append(cores, uint32(v))
			}
			start = i + 1
		}
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("invalid core list %q", s)
	}
	return cores, nil
}
