package grid

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestParseAndRows(t *testing.T) {
	rows := []string{
		"..#",
		"~^.",
		"#.5",
	}
	g, err := Parse(rows)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.Width() != 3 || g.Height() != 3 {
		t.Fatalf("size=%dx%d", g.Width(), g.Height())
	}
	if !g.Solid(Cell{X: 2, Y: 0}) || g.Solid(Cell{X: 0, Y: 0}) {
		t.Fatalf("solid flags mismatch")
	}
	if g.Weight(Cell{X: 0, Y: 1}) != 2 || g.Weight(Cell{X: 1, Y: 1}) != 3 || g.Weight(Cell{X: 2, Y: 2}) != 5 {
		t.Fatalf("weights mismatch")
	}
	got := strings.Join(g.Rows(), "|")
	if got != "..#|~^.|#.5" {
		t.Fatalf("rows=%q", got)
	}
}

func TestParseRejectsUnknownTile(t *testing.T) {
	if _, err := Parse([]string{"..x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParsePadsShortRowsSolid(t *testing.T) {
	g, err := Parse([]string{"...", "."})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !g.Solid(Cell{X: 2, Y: 1}) {
		t.Fatalf("padding should be solid")
	}
}

func TestOutOfBoundsIsSolid(t *testing.T) {
	g := New(2, 2)
	if !g.Solid(Cell{X: -1, Y: 0}) || !g.Solid(Cell{X: 2, Y: 0}) {
		t.Fatalf("out of bounds must be solid")
	}
	if g.Weight(Cell{X: 5, Y: 5}) != 0 {
		t.Fatalf("out of bounds weight must be 0")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := New(3, 3)
	c := g.Clone()
	c.MarkSolid(Cell{X: 1, Y: 1}, true)
	if g.Solid(Cell{X: 1, Y: 1}) {
		t.Fatalf("clone write leaked into source")
	}
	if !c.Solid(Cell{X: 1, Y: 1}) {
		t.Fatalf("clone write lost")
	}
}

func TestWriterRejectsBackgroundMutation(t *testing.T) {
	var buf bytes.Buffer
	g := New(4, 4)
	background := true
	w := NewWriter(g, func() bool { return background }, log.New(&buf, "", 0))

	err := w.SetSolid(Cell{X: 1, Y: 1}, true)
	if !errors.Is(err, ErrBackgroundMutation) {
		t.Fatalf("expected ErrBackgroundMutation, got %v", err)
	}
	if g.Solid(Cell{X: 1, Y: 1}) {
		t.Fatalf("mutation must be a no-op in background")
	}
	if err := w.SetWeight(Cell{X: 1, Y: 1}, 7); !errors.Is(err, ErrBackgroundMutation) {
		t.Fatalf("expected ErrBackgroundMutation for weight, got %v", err)
	}
	if !strings.Contains(buf.String(), "CONTRACT VIOLATION") {
		t.Fatalf("violation should be logged, got %q", buf.String())
	}

	background = false
	if err := w.SetSolid(Cell{X: 1, Y: 1}, true); err != nil {
		t.Fatalf("foreground set_solid: %v", err)
	}
	if err := w.SetWeight(Cell{X: 2, Y: 2}, -3); err != nil {
		t.Fatalf("foreground set_weight: %v", err)
	}
	if !g.Solid(Cell{X: 1, Y: 1}) || g.Weight(Cell{X: 2, Y: 2}) != 0 {
		t.Fatalf("foreground mutation not applied")
	}
}

func TestCellsRoundTrip(t *testing.T) {
	g, err := Parse([]string{"#.~", "^5."})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	solid, weight := g.Cells()
	back, err := FromCells(g.Width(), g.Height(), solid, weight)
	if err != nil {
		t.Fatalf("from cells: %v", err)
	}
	if got, want := back.Rows(), g.Rows(); got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("rows=%v want %v", got, want)
	}
	solid[1] = true
	if back.Solid(Cell{X: 1, Y: 0}) {
		t.Fatalf("FromCells must copy its input")
	}
	if _, err := FromCells(2, 2, solid, weight); err == nil {
		t.Fatalf("size mismatch should fail")
	}
}

func TestSharedGridNotWritableThroughReader(t *testing.T) {
	var r Reader = New(3, 3)
	if _, ok := r.(interface{ MarkSolid(Cell, bool) }); ok {
		t.Fatalf("a Reader over a shared grid exposes MarkSolid")
	}
	var scratch Reader = r.Clone()
	if _, ok := scratch.(interface{ MarkSolid(Cell, bool) }); !ok {
		t.Fatalf("a clone should be writable by its owner")
	}
}
