package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"tilenav.ai/internal/protocol"
	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/nav/planner"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, 42)

	snap := SnapshotV1{
		Header:   Header{Version: Version, RunID: "run-1", Tick: 42},
		TickRate: 5,
		Areas: []AreaV1{
			{ID: "TOWN", Width: 2, Height: 1, Solid: []bool{false, true}, Weight: []float64{1, 1}},
		},
		Groups: []GroupV1{{
			ID: "guild",
			Transitions: []knowledge.TransitionPoint{
				{ID: "gate", Area: "TOWN", Link: &knowledge.Endpoint{Area: "FOREST", Cell: grid.Cell{X: 1}}},
			},
		}},
		Agents: []AgentV1{{
			ID: "a1", Area: "TOWN", X: 0, Y: 0, PerceptionRadius: 4,
			Goal: protocol.GoalSpec{Kind: protocol.GoalPosition, Area: "FOREST", X: 3, Y: 1},
			Nav: planner.Snapshot{
				State: planner.StateTransitionPending,
				Path:  []grid.Cell{{X: 1, Y: 0}},
				Pending: &knowledge.TransitionPoint{
					ID: "gate", Area: "TOWN", Link: &knowledge.Endpoint{Area: "FOREST"},
				},
			},
			Transitions: []knowledge.RememberedTransition{{Point: knowledge.TransitionPoint{ID: "gate", Area: "TOWN"}, Seen: 40}},
		}},
	}
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshots")); err != nil {
		t.Fatalf("snapshot dir not created: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil || h.Tick != 42 || h.RunID != "run-1" {
		t.Fatalf("header=%+v err=%v", h, err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Areas) != 1 || !got.Areas[0].Solid[1] {
		t.Fatalf("areas=%+v", got.Areas)
	}
	if got.Groups[0].Transitions[0].Link.Area != "FOREST" {
		t.Fatalf("groups=%+v", got.Groups)
	}
	a := got.Agents[0]
	if a.Goal.Kind != "position" || a.Nav.State != planner.StateTransitionPending || a.Nav.Pending == nil {
		t.Fatalf("agent=%+v", a)
	}
	if a.Transitions[0].Seen != 40 {
		t.Fatalf("memory=%+v", a.Transitions)
	}
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	path := Path(t.TempDir(), 1)
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99, Tick: 1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
