// Package mcpserver exposes the effector command surface over MCP stdio so
// an AI agent can inspect and steer the governor directly, adapted from the
// teacher's internal/mcp package.
package mcpserver

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/corebalance/corebalance/internal/binder"
	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/model"
)

// SnapshotSource returns the most recently emitted snapshot. The governor's
// event bus is the usual backing store: a subscriber goroutine keeps the
// latest frame and this closure returns it without blocking.
type SnapshotSource func() model.Snapshot

// Server wraps the MCP server instance and the core handles its tools call
// into: the effector, a heavy-thread binder, the detected topology, and the
// latest process snapshot.
type Server struct {
	mcpServer *server.MCPServer
	eff       effector.Effector
	binder    *binder.Binder
	topology  model.Topology
	latest    SnapshotSource
}

// NewServer creates an MCP server with every tool from the effector command
// surface registered.
func NewServer(version string, eff effector.Effector, topology model.Topology, latest SnapshotSource) *Server {
	s := server.NewMCPServer("corebalance", version, server.WithLogging())

	srv := &Server{
		mcpServer: s,
		eff:       eff,
		binder:    binder.New(eff),
		topology:  topology,
		latest:    latest,
	}
	srv.registerTools()
	return srv
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_topology",
		mcp.WithDescription("Returns the detected hardware topology (vendor, core layout, hybrid/CCD grouping) as JSON."),
	), s.handleGetTopology)

	s.mcpServer.AddTool(mcp.NewTool("list_processes",
		mcp.WithDescription("Returns the latest process snapshot sorted by cpu_pct descending."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of processes to return; omit for all."),
		),
	), s.handleListProcesses)

	s.mcpServer.AddTool(mcp.NewTool("set_priority",
		mcp.WithDescription("Sets a process's Win32 priority class."),
		mcp.WithNumber("pid", mcp.Required(), mcp.Description("Target process id.")),
		mcp.WithString("class", mcp.Required(), mcp.Description("Idle, BelowNormal, Normal, AboveNormal, High, or RealTime.")),
	), s.handleSetPriority)

	s.mcpServer.AddTool(mcp.NewTool("set_affinity",
		mcp.WithDescription("Sets a process's hard affinity mask."),
		mcp.WithNumber("pid", mcp.Required(), mcp.Description("Target process id.")),
		mcp.WithNumber("mask", mcp.Required(), mcp.Description("Affinity bitmask.")),
	), s.handleSetAffinity)

	s.mcpServer.AddTool(mcp.NewTool("bind_heaviest",
		mcp.WithDescription("Pins the process's heaviest thread (by CPU time delta) to a target core."),
		mcp.WithNumber("pid", mcp.Required(), mcp.Description("Target process id.")),
		mcp.WithNumber("core", mcp.Required(), mcp.Description("Logical core index to pin to.")),
	), s.handleBindHeaviest)

	s.mcpServer.AddTool(mcp.NewTool("trim_memory",
		mcp.WithDescription("Trims a process's working set, returning bytes freed."),
		mcp.WithNumber("pid", mcp.Required(), mcp.Description("Target process id.")),
	), s.handleTrimMemory)

	s.mcpServer.AddTool(mcp.NewTool("clear_system_memory",
		mcp.WithDescription("Purges the system standby list."),
	), s.handleClearSystemMemory)

	s.mcpServer.AddTool(mcp.NewTool("terminate",
		mcp.WithDescription("Terminates a process."),
		mcp.WithNumber("pid", mcp.Required(), mcp.Description("Target process id.")),
	), s.handleTerminate)
}
