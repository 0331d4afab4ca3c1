package syncengine

import (
	"sort"
	"testing"

	"github.com/jakekausler/stagework/internal/workitem"
)

func dep(from, to string) workitem.Dependency {
	return workitem.Dependency{FromID: from, ToID: to, FromType: workitem.KindStage, ToType: workitem.KindStage}
}

func TestDetectCyclesNoCycle(t *testing.T) {
	deps := []workitem.Dependency{
		dep("STAGE-001", "STAGE-002"),
		dep("STAGE-002", "STAGE-003"),
	}
	if cycles := DetectCycles(deps); len(cycles) != 0 {
		t.Errorf("expected no cycles, got %v", cycles)
	}
}

func TestDetectCyclesSimpleCycle(t *testing.T) {
	deps := []workitem.Dependency{
		dep("STAGE-001", "STAGE-002"),
		dep("STAGE-002", "STAGE-001"),
	}
	cycles := DetectCycles(deps)
	if len(cycles) != 1 {
		t.Fatalf("expected exactly 1 cycle, got %d: %v", len(cycles), cycles)
	}
	got := append([]string(nil), cycles[0]...)
	sort.Strings(got)
	want := []string{"STAGE-001", "STAGE-002"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("cycle = %v, want members %v", cycles[0], want)
	}
}

func TestDetectCyclesDedupesRotations(t *testing.T) {
	// A->B->C->A discovered whether the DFS starts at A, B, or C.
	deps := []workitem.Dependency{
		dep("STAGE-A", "STAGE-B"),
		dep("STAGE-B", "STAGE-C"),
		dep("STAGE-C", "STAGE-A"),
		dep("STAGE-X", "STAGE-B"), // extra entrypoint into the same cycle
	}
	cycles := DetectCycles(deps)
	if len(cycles) != 1 {
		t.Fatalf("expected exactly 1 deduped cycle, got %d: %v", len(cycles), cycles)
	}
}

func TestDetectCyclesSelfLoop(t *testing.T) {
	deps := []workitem.Dependency{dep("STAGE-001", "STAGE-001")}
	cycles := DetectCycles(deps)
	if len(cycles) != 1 || len(cycles[0]) != 1 || cycles[0][0] != "STAGE-001" {
		t.Errorf("expected a single-node self-loop cycle, got %v", cycles)
	}
}
