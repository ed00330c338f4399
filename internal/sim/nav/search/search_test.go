package search

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"tilenav.ai/internal/sim/grid"
)

func mustGrid(t *testing.T, rows ...string) *grid.Grid {
	t.Helper()
	g, err := grid.Parse(rows)
	if err != nil {
		t.Fatalf("parse grid: %v", err)
	}
	return g
}

func contains(path []grid.Cell, c grid.Cell) bool {
	for _, p := range path {
		if p == c {
			return true
		}
	}
	return false
}

func TestFind_OpenGridDiagonal(t *testing.T) {
	g := grid.New(10, 10)
	res := Find(g, grid.Cell{}, grid.Cell{X: 9, Y: 9}, Options{})
	if !res.Reached {
		t.Fatalf("expected goal reached")
	}
	if len(res.Path) != 9 {
		t.Fatalf("path length=%d want 9: %v", len(res.Path), res.Path)
	}
	if math.Abs(res.Cost-9*math.Sqrt2) > 1e-9 {
		t.Fatalf("cost=%f want %f", res.Cost, 9*math.Sqrt2)
	}
	if res.Path[len(res.Path)-1] != (grid.Cell{X: 9, Y: 9}) {
		t.Fatalf("path should end at goal: %v", res.Path)
	}
}

func TestFind_WallWithSingleGap(t *testing.T) {
	rows := make([]string, 10)
	for y := 0; y < 10; y++ {
		if y == 9 {
			rows[y] = ".........."
		} else {
			rows[y] = ".....#...."
		}
	}
	g := mustGrid(t, rows...)
	res := Find(g, grid.Cell{}, grid.Cell{X: 9, Y: 9}, Options{})
	if !res.Reached {
		t.Fatalf("expected goal reached")
	}
	if !contains(res.Path, grid.Cell{X: 5, Y: 9}) {
		t.Fatalf("path must route through the gap (5,9): %v", res.Path)
	}
	for _, c := range res.Path {
		if g.Solid(c) {
			t.Fatalf("path crosses solid cell %v", c)
		}
	}
}

func TestFind_StartEqualsGoal(t *testing.T) {
	g := grid.New(4, 4)
	p := grid.Cell{X: 2, Y: 1}
	res := Find(g, p, p, Options{})
	if !reflect.DeepEqual(res.Path, []grid.Cell{p}) {
		t.Fatalf("path=%v want [%v]", res.Path, p)
	}
}

func TestFind_InvalidInputsReturnEmpty(t *testing.T) {
	g := mustGrid(t,
		"#...",
		"....",
	)
	cases := []struct {
		name        string
		start, goal grid.Cell
	}{
		{"solid start", grid.Cell{X: 0, Y: 0}, grid.Cell{X: 3, Y: 1}},
		{"start out of bounds", grid.Cell{X: -1, Y: 0}, grid.Cell{X: 3, Y: 1}},
		{"goal out of bounds", grid.Cell{X: 1, Y: 0}, grid.Cell{X: 9, Y: 9}},
	}
	for _, tc := range cases {
		res := Find(g, tc.start, tc.goal, Options{AllowPartial: true})
		if len(res.Path) != 0 || res.Reached {
			t.Fatalf("%s: expected empty result, got %+v", tc.name, res)
		}
	}
}

func TestFind_SolidGoalPartial(t *testing.T) {
	g := grid.New(8, 8).Clone()
	goal := grid.Cell{X: 6, Y: 4}
	g.MarkSolid(goal, true)

	res := Find(g, grid.Cell{X: 0, Y: 4}, goal, Options{AllowPartial: true})
	if res.Reached {
		t.Fatalf("solid goal cannot be reached")
	}
	if len(res.Path) == 0 {
		t.Fatalf("expected partial path")
	}
	end := res.Path[len(res.Path)-1]
	if end == goal {
		t.Fatalf("partial path must not end on the solid goal")
	}
	if abs(end.X-goal.X) > 1 || abs(end.Y-goal.Y) > 1 {
		t.Fatalf("partial path should end adjacent to goal, ended at %v", end)
	}

	res = Find(g, grid.Cell{X: 0, Y: 4}, goal, Options{})
	if len(res.Path) != 0 {
		t.Fatalf("without partial paths a solid goal yields nothing, got %v", res.Path)
	}
}

func TestFind_PartialEndsAtMinimalHeuristic(t *testing.T) {
	// Goal sealed in a box; the closest expanded cell is left of the box wall.
	g := mustGrid(t,
		"..........",
		"......###.",
		"......#.#.",
		"......###.",
		"..........",
	)
	goal := grid.Cell{X: 7, Y: 2}
	res := Find(g, grid.Cell{X: 0, Y: 2}, goal, Options{AllowPartial: true})
	if res.Reached || len(res.Path) == 0 {
		t.Fatalf("expected partial, got %+v", res)
	}
	end := res.Path[len(res.Path)-1]
	endH := Octile(end, goal)
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			c := grid.Cell{X: x, Y: y}
			if g.Solid(c) {
				continue
			}
			if c == goal {
				continue
			}
			// Every reachable open cell was expanded (frontier exhausted).
			if Octile(c, goal) < endH-1e-9 {
				t.Fatalf("cell %v is closer (%f) than partial end %v (%f)", c, Octile(c, goal), end, endH)
			}
		}
	}
}

func TestFind_ExpansionCeiling(t *testing.T) {
	g := grid.New(64, 64)
	start, goal := grid.Cell{}, grid.Cell{X: 63, Y: 63}

	res := Find(g, start, goal, Options{MaxExpansions: 10})
	if len(res.Path) != 0 || res.Reached {
		t.Fatalf("ceiling without partial must return empty, got %d cells", len(res.Path))
	}
	if res.Expansions != 10 {
		t.Fatalf("expansions=%d want 10", res.Expansions)
	}

	res = Find(g, start, goal, Options{MaxExpansions: 10, AllowPartial: true})
	if res.Reached || len(res.Path) == 0 {
		t.Fatalf("ceiling with partial should return progress, got %+v", res)
	}
	if Octile(res.Path[len(res.Path)-1], goal) >= Octile(start, goal) {
		t.Fatalf("partial path should make progress toward goal")
	}
}

func TestFind_SoftBlockDetoursButNeverBlocks(t *testing.T) {
	g := grid.New(5, 3)
	start, goal := grid.Cell{X: 0, Y: 1}, grid.Cell{X: 4, Y: 1}
	soft := map[grid.Cell]struct{}{{X: 2, Y: 1}: {}}

	res := Find(g, start, goal, Options{SoftBlocked: soft, SoftBlockPenalty: 4})
	if !res.Reached {
		t.Fatalf("expected goal reached")
	}
	if contains(res.Path, grid.Cell{X: 2, Y: 1}) {
		t.Fatalf("path should detour around the soft block when an alternative exists: %v", res.Path)
	}

	// Corridor: the soft-blocked cell is the only way through.
	corridor := mustGrid(t,
		"#####",
		".....",
		"#####",
	)
	res = Find(corridor, start, goal, Options{SoftBlocked: soft, SoftBlockPenalty: 4})
	if !res.Reached {
		t.Fatalf("soft block must never make the goal unreachable")
	}
	if !contains(res.Path, grid.Cell{X: 2, Y: 1}) {
		t.Fatalf("path must cross the soft-blocked corridor cell: %v", res.Path)
	}
	if math.Abs(res.Cost-(4+4)) > 1e-9 {
		t.Fatalf("cost=%f want 8 (4 steps + penalty 4)", res.Cost)
	}
}

func TestFind_DiagonalRules(t *testing.T) {
	// A single wall at (1,0) sits between (0,0) and (1,1).
	g := mustGrid(t,
		".#.",
		"...",
		"...",
	)
	start, goal := grid.Cell{X: 0, Y: 0}, grid.Cell{X: 1, Y: 1}

	cases := []struct {
		rule    DiagonalRule
		wantLen int
	}{
		{DiagonalAlways, 1},
		{DiagonalOneClear, 1},
		{DiagonalBothClear, 2},
		{DiagonalNever, 2},
	}
	for _, tc := range cases {
		res := Find(g, start, goal, Options{Diagonal: tc.rule})
		if len(res.Path) != tc.wantLen {
			t.Fatalf("%s: path=%v want len %d", tc.rule, res.Path, tc.wantLen)
		}
	}

	open := grid.New(3, 3)
	res := Find(open, grid.Cell{}, grid.Cell{X: 2, Y: 2}, Options{Diagonal: DiagonalNever})
	for i, c := range res.Path {
		prev := grid.Cell{}
		if i > 0 {
			prev = res.Path[i-1]
		}
		if c.X != prev.X && c.Y != prev.Y {
			t.Fatalf("never rule took a diagonal step %v -> %v", prev, c)
		}
	}
}

func TestParseDiagonalRule(t *testing.T) {
	for _, r := range []DiagonalRule{DiagonalBothClear, DiagonalNever, DiagonalAlways, DiagonalOneClear} {
		got, err := ParseDiagonalRule(r.String())
		if err != nil || got != r {
			t.Fatalf("round trip %s: got %v err %v", r, got, err)
		}
	}
	if _, err := ParseDiagonalRule("sideways"); err == nil {
		t.Fatalf("expected error for unknown rule")
	}
}

func randomGrid(r *rand.Rand, w, h int, density float64) *grid.Grid {
	g := grid.New(w, h)
	wr := grid.NewWriter(g, nil, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := grid.Cell{X: x, Y: y}
			if r.Float64() < density {
				_ = wr.SetSolid(c, true)
				continue
			}
			if r.Float64() < 0.2 {
				_ = wr.SetWeight(c, 1+float64(r.Intn(4)))
			}
		}
	}
	return g
}

// dijkstra is a brute-force reference with the same move model as Find.
func dijkstra(g grid.Reader, start grid.Cell, opts Options) map[grid.Cell]float64 {
	dist := map[grid.Cell]float64{start: 0}
	done := map[grid.Cell]bool{}
	for {
		var cur grid.Cell
		best := math.Inf(1)
		for c, d := range dist {
			if !done[c] && (d < best || (d == best && (c.Y < cur.Y || (c.Y == cur.Y && c.X < cur.X)))) {
				cur, best = c, d
			}
		}
		if math.IsInf(best, 1) {
			return dist
		}
		done[cur] = true
		for _, d := range dirVectors {
			next := cur.Add(d[0], d[1])
			if g.Solid(next) {
				continue
			}
			c := PathCost(g, cur, []grid.Cell{next}, opts)
			if math.IsInf(c, 1) {
				continue
			}
			if old, ok := dist[next]; !ok || best+c < old {
				dist[next] = best + c
			}
		}
	}
}

func TestFind_OptimalAgainstDijkstra(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		g := randomGrid(r, 12, 12, 0.25)
		start := grid.Cell{X: r.Intn(12), Y: r.Intn(12)}
		goal := grid.Cell{X: r.Intn(12), Y: r.Intn(12)}
		wr := grid.NewWriter(g, nil, nil)
		_ = wr.SetSolid(start, false)
		_ = wr.SetSolid(goal, false)
		soft := map[grid.Cell]struct{}{{X: r.Intn(12), Y: r.Intn(12)}: {}}
		opts := Options{SoftBlocked: soft, SoftBlockPenalty: 4, MaxExpansions: 10000}

		res := Find(g, start, goal, opts)
		ref := dijkstra(g, start, opts)
		want, reachable := ref[goal]
		if res.Reached != reachable {
			t.Fatalf("trial %d: reached=%v dijkstra reachable=%v", trial, res.Reached, reachable)
		}
		if !reachable {
			continue
		}
		if math.Abs(res.Cost-want) > 1e-6 {
			t.Fatalf("trial %d: cost=%f optimal=%f", trial, res.Cost, want)
		}
		if got := PathCost(g, start, res.Path, opts); math.Abs(got-res.Cost) > 1e-6 {
			t.Fatalf("trial %d: recomputed cost=%f reported=%f", trial, got, res.Cost)
		}
	}
}

func TestFind_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	g := randomGrid(r, 20, 20, 0.2)
	start, goal := grid.Cell{X: 0, Y: 0}, grid.Cell{X: 19, Y: 19}
	wr := grid.NewWriter(g, nil, nil)
	_ = wr.SetSolid(start, false)
	_ = wr.SetSolid(goal, false)
	opts := Options{AllowPartial: true, SoftBlocked: map[grid.Cell]struct{}{{X: 5, Y: 5}: {}}, SoftBlockPenalty: 4}

	first := Find(g, start, goal, opts)
	for i := 0; i < 20; i++ {
		again := Find(g, start, goal, opts)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestFind_DoesNotMutateGrid(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	g := randomGrid(r, 16, 16, 0.3)
	before := g.Rows()
	_ = Find(g, grid.Cell{}, grid.Cell{X: 15, Y: 15}, Options{AllowPartial: true})
	if !reflect.DeepEqual(before, g.Rows()) {
		t.Fatalf("search mutated the grid")
	}
}

func TestFind_ConcurrentReaders(t *testing.T) {
	g := grid.New(32, 32)
	want := Find(g, grid.Cell{}, grid.Cell{X: 31, Y: 20}, Options{})
	done := make(chan Result, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- Find(g, grid.Cell{}, grid.Cell{X: 31, Y: 20}, Options{}) }()
	}
	for i := 0; i < 8; i++ {
		if got := <-done; !reflect.DeepEqual(got, want) {
			t.Fatalf("concurrent search diverged")
		}
	}
}
