package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/corebalance/corebalance/internal/model"
)

func (s *Server) handleGetTopology(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.topology)
}

func (s *Server) handleListProcesses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	snap := s.latest()

	limit := intArg(args, "limit", 0)
	if limit > 0 && limit < len(snap.Processes) {
		snap.Processes = snap.Processes[:limit]
	}
	return jsonResult(snap)
}

func (s *Server) handleSetPriority(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	pid, ok := pidArg(args)
	if !ok {
		return errResult("pid is required"), nil
	}
	className := stringArg(args, "class", "")
	level, ok := model.ParsePriority(className)
	if !ok {
		return errResult(fmt.Sprintf("unrecognized priority class %q", className)), nil
	}
	if err := s.eff.SetPriority(ctx, pid, level); err != nil {
		return errResult(err.Error()), nil
	}
	return newTextResult(fmt.Sprintf("pid %d priority set to %s", pid, level)), nil
}

func (s *Server) handleSetAffinity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	pid, ok := pidArg(args)
	if !ok {
		return errResult("pid is required"), nil
	}
	maskVal, ok := args["mask"]
	if !ok {
		return errResult("mask is required"), nil
	}
	mask, ok := toUint64(maskVal)
	if !ok {
		return errResult("mask must be numeric"), nil
	}
	if err := s.eff.SetHardAffinity(ctx, pid, mask); err != nil {
		return errResult(err.Error()), nil
	}
	return newTextResult(fmt.Sprintf("pid %d affinity set to 0x%x", pid, mask)), nil
}

func (s *Server) handleBindHeaviest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	pid, ok := pidArg(args)
	if !ok {
		return errResult("pid is required"), nil
	}
	core := intArg(args, "core", -1)
	if core < 0 {
		return errResult("core is required"), nil
	}

	tid, err := s.binder.BindHeaviest(ctx, pid, uint32(core))
	if err != nil {
		return errResult(err.Error()), nil
	}
	return newTextResult(fmt.Sprintf("pid %d thread %d bound to core %d", pid, tid, core)), nil
}

func (s *Server) handleTrimMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	pid, ok := pidArg(args)
	if !ok {
		return errResult("pid is required"), nil
	}
	freed, err := s.eff.TrimWorkingSet(ctx, pid)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return newTextResult(fmt.Sprintf("pid %d freed %d bytes", pid, freed)), nil
}

func (s *Server) handleClearSystemMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.eff.PurgeStandbyList(ctx); err != nil {
		return errResult(err.Error()), nil
	}
	return newTextResult("standby list purged"), nil
}

func (s *Server) handleTerminate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	pid, ok := pidArg(args)
	if !ok {
		return errResult("pid is required"), nil
	}
	if err := s.eff.Terminate(ctx, pid); err != nil {
		return errResult(err.Error()), nil
	}
	return newTextResult(fmt.Sprintf("pid %d terminated", pid)), nil
}

// getArgs safely extracts the arguments map from a CallToolRequest. Returns
// an empty map if Arguments is nil or not a map.
func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

func intArg(args map[string]interface{}, key string, defaultVal int) int {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	f, ok := val.(float64)
	if !ok {
		return defaultVal
	}
	return int(f)
}

func pidArg(args map[string]interface{}) (uint32, bool) {
	val, ok := args["pid"]
	if !ok {
		return 0, false
	}
	u, ok := toUint64(val)
	return uint32(u), ok
}

func toUint64(v interface{}) (uint64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	if f < 0 {
		return 0, false
	}
	return uint64(f), true
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(string(data)), nil
}

func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
	}
}
