package log

import (
	"path/filepath"
	"testing"

	"tilenav.ai/internal/protocol"
	"tilenav.ai/internal/sim/world"
)

func readAll(t *testing.T, dir string, stopAfter int) []world.TickLogEntry {
	t.Helper()
	files, err := ListTraceFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no trace files in %s", dir)
	}
	var got []world.TickLogEntry
	for _, f := range files {
		err := ReadTrace(f, func(e world.TickLogEntry) error {
			got = append(got, e)
			if stopAfter > 0 && len(got) >= stopAfter {
				return ErrStop
			}
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if stopAfter > 0 && len(got) >= stopAfter {
			break
		}
	}
	return got
}

func TestTraceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTraceLogger(dir)
	want := []world.TickLogEntry{
		{Tick: 0, Goals: []world.GoalRequest{{AgentID: "baker", Goal: protocol.GoalSpec{Kind: protocol.GoalPosition, Area: "FOREST", X: 5, Y: 3}}}, Digest: "a"},
		{Tick: 1, Transitions: []protocol.TransitionInfo{{AgentID: "baker", PointID: "gate", FromArea: "TOWN", ToArea: "FOREST"}}, Digest: "b"},
		{Tick: 2, Edits: []world.EditRequest{{Area: "TOWN", X: 1, Y: 2, Solid: true}}, Digest: "c"},
	}
	for _, e := range want {
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := readAll(t, filepath.Join(dir, "trace"), 0)
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	if got[0].Goals[0].Goal.Area != "FOREST" || got[1].Transitions[0].PointID != "gate" || !got[2].Edits[0].Solid {
		t.Fatalf("entries: %+v", got)
	}
	for i := range want {
		if got[i].Tick != want[i].Tick || got[i].Digest != want[i].Digest {
			t.Fatalf("entry %d: %+v", i, got[i])
		}
	}

	if early := readAll(t, filepath.Join(dir, "trace"), 2); len(early) != 2 {
		t.Fatalf("ErrStop: got %d entries", len(early))
	}
}

func TestNavEventLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewNavEventLogger(dir)
	l.RecordNavEvent(world.NavEvent{Tick: 4, AgentID: "baker", Kind: world.EventReached, Area: "TOWN"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Failed() != 0 {
		t.Fatalf("failed = %d", l.Failed())
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "navlog", "nav-*.jsonl.zst"))
	if len(matches) == 0 {
		t.Fatalf("no nav log written")
	}
}
