package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/corebalance/corebalance/internal/model"
)

func TestWriteJSONToFile(t *testing.T) {
	snap := &model.Snapshot{
		TakenAtUnixNano: 123,
		Processes: []model.ProcessInfo{
			{PID: 1, Name: "a.exe", CPUPercent: 12.5},
		},
	}

	tmpDir := t.TempDir()
	outPath := filepath.Join(tmpDir, "snapshot.json")

	if err := WriteJSON(snap, outPath); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) < 10 {
		t.Error("output file too small")
	}

	content := string(data)
	if !containsStr(content, `"cpu_pct": 12.5`) {
		t.Errorf("output missing cpu_pct, got %s", content)
	}
	if !containsStr(content, `"name": "a.exe"`) {
		t.Error("output missing process name")
	}
}

func TestWriteJSONStdout(t *testing.T) {
	topo := &model.Topology{Vendor: model.VendorAMD, Model: "test", Logical: 8}

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := WriteJSON(topo, "-")

	w.Close()
	os.Stdout = oldStdout

	if err != nil {
		t.Fatalf("WriteJSON to stdout: %v", err)
	}

	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	if n == 0 {
		t.Error("no output to stdout")
	}
}

func containsStr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
