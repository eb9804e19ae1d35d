package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/corebalance/corebalance/internal/effector"
	"github.com/corebalance/corebalance/internal/model"
)

func newTestServer(eff *effector.Fake) *Server {
	return NewServer("test", eff, model.Topology{Vendor: model.VendorAMD, Logical: 8}, func() model.Snapshot {
		return model.Snapshot{Processes: []model.ProcessInfo{
			{PID: 1, Name: "a.exe", CPUPercent: 10},
			{PID: 2, Name: "b.exe", CPUPercent: 5},
		}}
	})
}

func reqWithArgs(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func TestHandleGetTopologyReturnsDetectedTopology(t *testing.T) {
	s := newTestServer(effector.NewFake(0xFF))
	res, err := s.handleGetTopology(context.Background(), reqWithArgs(nil))
	if err != nil {
		t.Fatalf("handleGetTopology: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
}

func TestHandleListProcessesRespectsLimit(t *testing.T) {
	s := newTestServer(effector.NewFake(0xFF))
	res, err := s.handleListProcesses(context.Background(), reqWithArgs(map[string]interface{}{"limit": float64(1)}))
	if err != nil {
		t.Fatalf("handleListProcesses: %v", err)
	}
	text := res.Content[0].(mcp.TextContent).Text
	if strings.Count(text, `"pid"`) != 1 {
		t.Errorf("expected exactly one process in limited output, got %s", text)
	}
}

func TestHandleSetPriorityRejectsUnknownClass(t *testing.T) {
	s := newTestServer(effector.NewFake(0xFF))
	res, err := s.handleSetPriority(context.Background(), reqWithArgs(map[string]interface{}{
		"pid": float64(1), "class": "Ludicrous",
	}))
	if err != nil {
		t.Fatalf("handleSetPriority: %v", err)
	}
	if !res.IsError {
		t.Error("expected an error result for an unrecognized priority class")
	}
}

func TestHandleSetPriorityAppliesViaEffector(t *testing.T) {
	eff := effector.NewFake(0xFF)
	s := newTestServer(eff)
	res, err := s.handleSetPriority(context.Background(), reqWithArgs(map[string]interface{}{
		"pid": float64(42), "class": "High",
	}))
	if err != nil {
		t.Fatalf("handleSetPriority: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if got := eff.Priorities[42]; got != model.High {
		t.Errorf("priority recorded = %v, want High", got)
	}
}

func TestHandleSetAffinityRequiresNumericMask(t *testing.T) {
	s := newTestServer(effector.NewFake(0xFF))
	res, err := s.handleSetAffinity(context.Background(), reqWithArgs(map[string]interface{}{
		"pid": float64(1), "mask": "not-a-number",
	}))
	if err != nil {
		t.Fatalf("handleSetAffinity: %v", err)
	}
	if !res.IsError {
		t.Error("expected an error result for a non-numeric mask")
	}
}

func TestHandleTerminateCallsEffector(t *testing.T) {
	eff := effector.NewFake(0xFF)
	s := newTestServer(eff)
	res, err := s.handleTerminate(context.Background(), reqWithArgs(map[string]interface{}{"pid": float64(7)}))
	if err != nil {
		t.Fatalf("handleTerminate: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	found := false
	for _, c := range eff.Calls {
		if c.Op == "Terminate" && c.PID == 7 {
			found = true
		}
	}
	if !found {
		t.Error("expected pid 7 to be recorded as terminated")
	}
}
