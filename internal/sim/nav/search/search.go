// Package search implements single-source A* over a walkability grid.
//
// Find is a pure function of its inputs: every call allocates its own node table and
// frontier and only reads the grid, so any number of searches may run concurrently
// against the same grid as long as nobody writes to it.
package search

import (
	"fmt"
	"math"
	"strings"

	"tilenav.ai/internal/sim/grid"
)

const DefaultMaxExpansions = 4096

// DiagonalRule decides whether a diagonal step may be taken, based on the two
// cardinal cells it passes between.
type DiagonalRule uint8

const (
	DiagonalBothClear DiagonalRule = iota // no corner cutting
	DiagonalNever
	DiagonalAlways
	DiagonalOneClear
)

func (r DiagonalRule) String() string {
	switch r {
	case DiagonalBothClear:
		return "both_clear"
	case DiagonalNever:
		return "never"
	case DiagonalAlways:
		return "always"
	case DiagonalOneClear:
		return "one_clear"
	default:
		return fmt.Sprintf("DiagonalRule(%d)", uint8(r))
	}
}

func ParseDiagonalRule(s string) (DiagonalRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both_clear":
		return DiagonalBothClear, nil
	case "never":
		return DiagonalNever, nil
	case "always":
		return DiagonalAlways, nil
	case "one_clear":
		return DiagonalOneClear, nil
	}
	return DiagonalBothClear, fmt.Errorf("unknown diagonal rule %q", s)
}

type Options struct {
	AllowPartial bool
	// SoftBlocked cells stay passable; entering one costs SoftBlockPenalty extra weight.
	SoftBlocked      map[grid.Cell]struct{}
	SoftBlockPenalty float64
	Diagonal         DiagonalRule
	// MaxExpansions <= 0 means DefaultMaxExpansions.
	MaxExpansions int
}

type Result struct {
	Path       []grid.Cell // excludes start unless start == goal; ends at the goal or the best partial cell
	Cost       float64
	Expansions int
	Reached    bool
}

// Direction vectors, N, NE, E, SE, S, SW, W, NW.
var dirVectors = [8][2]int{
	{0, -1}, {1, -1}, {1, 0}, {1, 1},
	{0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
}

// Octile is the admissible distance for 8-way movement with cardinal cost 1 and
// diagonal cost sqrt(2).
func Octile(a, b grid.Cell) float64 {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx < dy {
		dx, dy = dy, dx
	}
	return float64(dx-dy) + math.Sqrt2*float64(dy)
}

type node struct {
	g      float64
	f      float64
	parent int32
	closed bool
}

// Find searches from start to goal. An empty Result is a normal outcome (bad bounds,
// solid start, unreachable goal without AllowPartial) and not an error.
func Find(g grid.Reader, start, goal grid.Cell, opts Options) Result {
	if !g.InBounds(start) || !g.InBounds(goal) || g.Solid(start) {
		return Result{}
	}
	if start == goal {
		return Result{Path: []grid.Cell{start}, Reached: true}
	}
	if g.Solid(goal) && !opts.AllowPartial {
		return Result{}
	}

	maxExp := opts.MaxExpansions
	if maxExp <= 0 {
		maxExp = DefaultMaxExpansions
	}
	penalty := opts.SoftBlockPenalty
	if penalty < 0 {
		penalty = 0
	}

	w := g.Width()
	nodes := make([]node, w*g.Height())
	for i := range nodes {
		nodes[i].g = math.Inf(1)
		nodes[i].f = math.Inf(1)
		nodes[i].parent = -1
	}
	cellAt := func(i int32) grid.Cell { return grid.Cell{X: int(i) % w, Y: int(i) / w} }
	index := func(c grid.Cell) int32 { return int32(c.Y*w + c.X) }

	startIdx := index(start)
	startH := Octile(start, goal)
	nodes[startIdx].g = 0
	nodes[startIdx].f = startH

	var seq uint32
	open := make(frontier, 0, 64)
	open.push(heapEntry{idx: startIdx, f: startH, seq: seq})

	best, bestH, bestG := startIdx, startH, 0.0
	var res Result

	for len(open) > 0 {
		e := open.pop()
		n := &nodes[e.idx]
		if n.closed || e.f > n.f {
			continue // stale
		}
		n.closed = true
		res.Expansions++

		cur := cellAt(e.idx)
		if cur == goal {
			res.Path = reconstruct(nodes, e.idx, startIdx, cellAt)
			res.Cost = n.g
			res.Reached = true
			return res
		}
		if h := Octile(cur, goal); h < bestH || (h == bestH && n.g < bestG) {
			best, bestH, bestG = e.idx, h, n.g
		}
		if res.Expansions >= maxExp {
			break
		}

		for _, d := range dirVectors {
			next := cur.Add(d[0], d[1])
			if !g.InBounds(next) || g.Solid(next) {
				continue
			}
			diagonal := d[0] != 0 && d[1] != 0
			if diagonal && !diagonalAllowed(g, cur, d[0], d[1], opts.Diagonal) {
				continue
			}
			ni := index(next)
			if nodes[ni].closed {
				continue
			}
			step := 1.0
			if diagonal {
				step = math.Sqrt2
			}
			ng := n.g + step*effectiveWeight(g, next, opts.SoftBlocked, penalty)
			if ng < nodes[ni].g {
				nodes[ni].g = ng
				nodes[ni].f = ng + Octile(next, goal)
				nodes[ni].parent = e.idx
				seq++
				open.push(heapEntry{idx: ni, f: nodes[ni].f, seq: seq})
			}
		}
	}

	if !opts.AllowPartial || best == startIdx {
		return Result{Expansions: res.Expansions}
	}
	res.Path = reconstruct(nodes, best, startIdx, cellAt)
	res.Cost = nodes[best].g
	return res
}

// PathCost prices a path exactly the way Find does. It returns +Inf when a step is
// not a legal single move.
func PathCost(g grid.Reader, start grid.Cell, path []grid.Cell, opts Options) float64 {
	if len(path) == 1 && path[0] == start {
		return 0
	}
	penalty := opts.SoftBlockPenalty
	if penalty < 0 {
		penalty = 0
	}
	total := 0.0
	prev := start
	for _, c := range path {
		dx, dy := c.X-prev.X, c.Y-prev.Y
		if abs(dx) > 1 || abs(dy) > 1 || (dx == 0 && dy == 0) || g.Solid(c) {
			return math.Inf(1)
		}
		step := 1.0
		if dx != 0 && dy != 0 {
			if !diagonalAllowed(g, prev, dx, dy, opts.Diagonal) {
				return math.Inf(1)
			}
			step = math.Sqrt2
		}
		total += step * effectiveWeight(g, c, opts.SoftBlocked, penalty)
		prev = c
	}
	return total
}

func reconstruct(nodes []node, end, start int32, cellAt func(int32) grid.Cell) []grid.Cell {
	var out []grid.Cell
	for i := end; i != start && i >= 0; i = nodes[i].parent {
		out = append(out, cellAt(i))
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

func diagonalAllowed(g grid.Reader, from grid.Cell, dx, dy int, rule DiagonalRule) bool {
	switch rule {
	case DiagonalNever:
		return false
	case DiagonalAlways:
		return true
	}
	horiz := !g.Solid(from.Add(dx, 0))
	vert := !g.Solid(from.Add(0, dy))
	if rule == DiagonalOneClear {
		return horiz || vert
	}
	return horiz && vert
}

// effectiveWeight floors the cell weight at 1 so Octile stays admissible.
func effectiveWeight(g grid.Reader, c grid.Cell, soft map[grid.Cell]struct{}, penalty float64) float64 {
	w := g.Weight(c)
	if w < 1 {
		w = 1
	}
	if _, ok := soft[c]; ok {
		w += penalty
	}
	return w
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
