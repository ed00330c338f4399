package planner

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/structures"
	"tilenav.ai/internal/sim/tuning"
)

type entityPos struct {
	area string
	cell grid.Cell
}

type stubEnv struct {
	areas     map[string]AreaView
	entities  map[string]entityPos
	buildings map[string]structures.Building
	areaCalls int
}

func (e *stubEnv) Area(id string) (AreaView, bool) {
	e.areaCalls++
	v, ok := e.areas[id]
	return v, ok
}

func (e *stubEnv) EntityPosition(id string) (string, grid.Cell, bool) {
	p, ok := e.entities[id]
	return p.area, p.cell, ok
}

func (e *stubEnv) Building(id string) (structures.Building, bool) {
	b, ok := e.buildings[id]
	return b, ok
}

type stubAgent struct {
	id      string
	area    string
	cell    grid.Cell
	radius  int
	sources []knowledge.Source
}

func (a *stubAgent) ID() string                            { return a.id }
func (a *stubAgent) Area() string                          { return a.area }
func (a *stubAgent) Cell() grid.Cell                       { return a.cell }
func (a *stubAgent) PerceptionRadius() int                 { return a.radius }
func (a *stubAgent) KnowledgeSources() []knowledge.Source { return a.sources }

type stubMover struct {
	agent   *stubAgent
	blocked map[grid.Cell]bool
	moves   int
}

func (m *stubMover) Move(agentID string, to grid.Cell) bool {
	if m.blocked[to] || chebyshev(m.agent.cell, to) != 1 {
		return false
	}
	m.agent.cell = to
	m.moves++
	return true
}

func mustGrid(t *testing.T, rows ...string) *grid.Grid {
	t.Helper()
	g, err := grid.Parse(rows)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return g
}

func openGrid(w, h int) *grid.Grid { return grid.New(w, h) }

func newEnv() *stubEnv {
	return &stubEnv{
		areas:     map[string]AreaView{},
		entities:  map[string]entityPos{},
		buildings: map[string]structures.Building{},
	}
}

func (e *stubEnv) addArea(id string, g grid.Reader, residents ...string) {
	res := map[string]bool{}
	for _, r := range residents {
		res[r] = true
	}
	e.areas[id] = AreaView{ID: id, Grid: g, Residents: res}
}

func testLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.New(&buf, "", 0), &buf
}

// drive runs compute+advance ticks until the goal is reached, the planner fails, or
// the tick budget runs out. Transitions are completed the way the world does it.
func drive(t *testing.T, p *Planner, a *stubAgent, m Mover, ticks int) StepResult {
	t.Helper()
	for i := 0; i < ticks; i++ {
		p.ComputeIfNeeded(a, Perception{Tick: uint64(i)})
		switch r := p.Advance(a, m); r {
		case StepReached:
			return r
		case StepTransition:
			tp, ok := p.PendingTransition()
			if !ok || tp.Link == nil {
				t.Fatalf("transition without pending point")
			}
			a.area, a.cell = tp.Link.Area, tp.Link.Cell
			p.CompleteTransition()
		}
		if p.Failed() {
			return StepIdle
		}
	}
	return StepIdle
}

func TestPositionGoalReached(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", openGrid(10, 10), "a1")
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 0, Y: 0}, radius: 5}
	logger, _ := testLogger()
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	p.SetGoal(PositionGoal{Area: "TOWN", Cell: grid.Cell{X: 9, Y: 9}})

	if !p.ComputeIfNeeded(a, Perception{}) {
		t.Fatalf("expected a path")
	}
	if len(p.Path()) != 9 || p.State() != StateHasPath {
		t.Fatalf("path=%v state=%s", p.Path(), p.State())
	}
	m := &stubMover{agent: a}
	if r := drive(t, p, a, m, 50); r != StepReached {
		t.Fatalf("result=%s state=%s", r, p.State())
	}
	if a.cell != (grid.Cell{X: 9, Y: 9}) {
		t.Fatalf("agent at %v", a.cell)
	}
	if p.State() != StateNoGoal || p.Goal() != nil {
		t.Fatalf("goal should be dropped after reaching, state=%s", p.State())
	}
	if m.moves != 9 {
		t.Fatalf("moves=%d", m.moves)
	}
}

func TestRecalculationIsBounded(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", mustGrid(t,
		".......",
		"...###.",
		"...#.#.",
		"...###.",
	), "a1")
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 0, Y: 0}, radius: 5}
	cfg := tuning.DefaultNav()
	noPartial := false
	cfg.AllowPartial = &noPartial
	logger, buf := testLogger()
	p := New("a1", cfg, env, nil, logger)
	p.SetGoal(PositionGoal{Area: "TOWN", Cell: grid.Cell{X: 4, Y: 2}})

	for i := 0; i < 100; i++ {
		if p.ComputeIfNeeded(a, Perception{}) {
			t.Fatalf("tick %d: enclosed goal must never yield a path", i)
		}
	}
	if !p.Failed() {
		t.Fatalf("state=%s", p.State())
	}
	if env.areaCalls != cfg.MaxRecalcAttempts {
		t.Fatalf("searches=%d want %d", env.areaCalls, cfg.MaxRecalcAttempts)
	}
	if !strings.Contains(buf.String(), "failed after 3 attempts") {
		t.Fatalf("log=%q", buf.String())
	}
	if r := p.Advance(a, &stubMover{agent: a}); r != StepIdle {
		t.Fatalf("failed planner advanced: %s", r)
	}

	p.SetGoal(PositionGoal{Area: "TOWN", Cell: grid.Cell{X: 6, Y: 3}})
	if p.Failed() || !p.ComputeIfNeeded(a, Perception{}) {
		t.Fatalf("new goal should clear failure")
	}
}

func TestFogContainsNonResidentPaths(t *testing.T) {
	env := newEnv()
	env.addArea("WILDS", openGrid(30, 30))
	a := &stubAgent{id: "a1", area: "WILDS", cell: grid.Cell{X: 2, Y: 2}, radius: 4}
	logger, _ := testLogger()
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	p.SetGoal(PositionGoal{Area: "WILDS", Cell: grid.Cell{X: 25, Y: 25}})

	if !p.ComputeIfNeeded(a, Perception{}) {
		t.Fatalf("expected a partial path")
	}
	path := p.Path()
	if len(path) == 0 {
		t.Fatalf("empty path")
	}
	for _, c := range path {
		dx, dy := c.X-2, c.Y-2
		if dx*dx+dy*dy > 16 {
			t.Fatalf("path left perception radius at %v: %v", c, path)
		}
	}

	env.addArea("WILDS", openGrid(30, 30), "a1")
	p.SetGoal(PositionGoal{Area: "WILDS", Cell: grid.Cell{X: 25, Y: 25}})
	if !p.ComputeIfNeeded(a, Perception{}) {
		t.Fatalf("resident should get a full path")
	}
	if got := p.Path(); got[len(got)-1] != (grid.Cell{X: 25, Y: 25}) {
		t.Fatalf("resident path ends at %v", got[len(got)-1])
	}
}

func TestCrossAreaTransition(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", openGrid(10, 5), "a1")
	env.addArea("FOREST", openGrid(10, 5), "a1")
	mem := knowledge.NewMemory()
	mem.ObserveTransition(knowledge.TransitionPoint{
		ID: "gate", Area: "TOWN", Cell: grid.Cell{X: 9, Y: 2},
		Link: &knowledge.Endpoint{Area: "FOREST", Cell: grid.Cell{X: 0, Y: 2}},
	}, 1)
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 1, Y: 2}, radius: 5, sources: []knowledge.Source{mem}}
	logger, _ := testLogger()
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	goal := PositionGoal{Area: "FOREST", Cell: grid.Cell{X: 5, Y: 2}}
	p.SetGoal(goal)

	if !p.ComputeIfNeeded(a, Perception{}) {
		t.Fatalf("expected path to the gate")
	}
	route := p.Route()
	if route == nil || len(route.Transitions) != 1 || route.Final != Goal(goal) {
		t.Fatalf("route=%+v", route)
	}
	if got := p.Path(); got[len(got)-1] != (grid.Cell{X: 9, Y: 2}) {
		t.Fatalf("first leg should end at the gate, got %v", got)
	}

	m := &stubMover{agent: a}
	var sawTransition bool
	for i := 0; i < 40 && !sawTransition; i++ {
		p.ComputeIfNeeded(a, Perception{})
		if p.Advance(a, m) == StepTransition {
			sawTransition = true
		}
	}
	if !sawTransition || !p.NeedsAreaTransition() {
		t.Fatalf("transition never flagged, state=%s", p.State())
	}
	if a.cell != (grid.Cell{X: 8, Y: 2}) {
		t.Fatalf("agent should stop next to the gate, at %v", a.cell)
	}
	tp, ok := p.PendingTransition()
	if !ok || tp.ID != "gate" {
		t.Fatalf("pending=%+v", tp)
	}
	// Waiting for the world: both calls keep reporting the transition.
	if !p.ComputeIfNeeded(a, Perception{}) || p.Advance(a, m) != StepTransition {
		t.Fatalf("pending transition should be sticky")
	}

	a.area, a.cell = "FOREST", tp.Link.Cell
	p.CompleteTransition()
	if p.Route() != nil || p.NeedsAreaTransition() {
		t.Fatalf("route should be complete")
	}
	if r := drive(t, p, a, m, 40); r != StepReached {
		t.Fatalf("result=%s state=%s", r, p.State())
	}
	if a.area != "FOREST" || a.cell != goal.Cell {
		t.Fatalf("agent at %s %v", a.area, a.cell)
	}
}

func TestCrossAreaWithoutKnowledgeFails(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", openGrid(10, 5), "a1")
	env.addArea("FOREST", openGrid(10, 5), "a1")
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 1, Y: 2}, radius: 5}
	logger, buf := testLogger()
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	p.SetGoal(PositionGoal{Area: "FOREST", Cell: grid.Cell{X: 5, Y: 2}})

	if p.ComputeIfNeeded(a, Perception{}) || !p.Failed() {
		t.Fatalf("unknown route must fail, state=%s", p.State())
	}
	if !strings.Contains(buf.String(), "no known route TOWN -> FOREST") {
		t.Fatalf("log=%q", buf.String())
	}
}

func TestEntityGoalFollowsMovement(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", openGrid(10, 10), "a1")
	env.entities["cat"] = entityPos{area: "TOWN", cell: grid.Cell{X: 8, Y: 2}}
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 0, Y: 2}, radius: 5}
	logger, _ := testLogger()
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	p.SetGoal(EntityGoal{Entity: "cat", Range: 1})

	snap := Perception{Visible: []Sighting{{ID: "cat", Cell: grid.Cell{X: 8, Y: 2}}, {ID: "a1", Cell: a.cell}}}
	if !p.ComputeIfNeeded(a, snap) {
		t.Fatalf("expected path")
	}
	last := func() grid.Cell { path := p.Path(); return path[len(path)-1] }
	if last() != (grid.Cell{X: 8, Y: 2}) {
		t.Fatalf("goal entity must not be treated as an obstacle, path=%v", p.Path())
	}

	env.entities["cat"] = entityPos{area: "TOWN", cell: grid.Cell{X: 8, Y: 8}}
	p.ComputeIfNeeded(a, Perception{})
	if last() != (grid.Cell{X: 8, Y: 8}) {
		t.Fatalf("moved entity should trigger a recompute, path=%v", p.Path())
	}

	env.entities["cat"] = entityPos{area: "TOWN", cell: grid.Cell{X: 8, Y: 9}}
	p.ComputeIfNeeded(a, Perception{})
	if last() != (grid.Cell{X: 8, Y: 8}) {
		t.Fatalf("move within tolerance should not recompute, path=%v", p.Path())
	}

	m := &stubMover{agent: a, blocked: map[grid.Cell]bool{{X: 8, Y: 9}: true}}
	if r := drive(t, p, a, m, 40); r != StepReached {
		t.Fatalf("result=%s state=%s", r, p.State())
	}
	if chebyshev(a.cell, grid.Cell{X: 8, Y: 9}) > 1 {
		t.Fatalf("agent at %v not within range", a.cell)
	}
}

func TestSoftBlockedNeighbourIsAvoided(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", openGrid(7, 3), "a1")
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 1, Y: 1}, radius: 5}
	logger, _ := testLogger()
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	p.SetGoal(PositionGoal{Cell: grid.Cell{X: 5, Y: 1}})

	snap := Perception{Visible: []Sighting{{ID: "a2", Cell: grid.Cell{X: 3, Y: 1}}}}
	if !p.ComputeIfNeeded(a, snap) {
		t.Fatalf("expected path")
	}
	for _, c := range p.Path() {
		if c == (grid.Cell{X: 3, Y: 1}) {
			t.Fatalf("path walks through a visible agent: %v", p.Path())
		}
	}
}

func TestBlockedMoveIsReported(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", openGrid(5, 1), "a1")
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 0, Y: 0}, radius: 5}
	logger, _ := testLogger()
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	p.SetGoal(PositionGoal{Cell: grid.Cell{X: 4, Y: 0}})
	p.ComputeIfNeeded(a, Perception{})

	m := &stubMover{agent: a, blocked: map[grid.Cell]bool{{X: 1, Y: 0}: true}}
	if r := p.Advance(a, m); r != StepBlocked || p.State() != StateBlocked {
		t.Fatalf("result=%s state=%s", r, p.State())
	}
	delete(m.blocked, grid.Cell{X: 1, Y: 0})
	if r := p.Advance(a, m); r != StepMoved || a.cell != (grid.Cell{X: 1, Y: 0}) {
		t.Fatalf("retry result=%s at %v", r, a.cell)
	}
}

func TestSetGoalResetsState(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", openGrid(10, 10), "a1")
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 0, Y: 0}, radius: 5}
	logger, _ := testLogger()
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	p.SetGoal(PositionGoal{Cell: grid.Cell{X: 9, Y: 0}})
	p.ComputeIfNeeded(a, Perception{})
	p.Advance(a, &stubMover{agent: a})

	p.SetGoal(PositionGoal{Cell: grid.Cell{X: 0, Y: 9}})
	if p.HasPath() || p.Route() != nil || p.State() != StatePlanning || len(p.Remaining()) != 0 {
		t.Fatalf("stale state survived SetGoal: state=%s path=%v", p.State(), p.Path())
	}
	p.ClearGoal()
	if p.State() != StateNoGoal || p.ComputeIfNeeded(a, Perception{}) {
		t.Fatalf("cleared planner should idle")
	}
}

func houseEnv(t *testing.T) *stubEnv {
	env := newEnv()
	env.addArea("TOWN", mustGrid(t,
		"........",
		".####...",
		".#..#...",
		".#......",
		".####...",
		"........",
	), "a1")
	env.buildings["house"] = structures.Building{
		ID: "house", Area: "TOWN",
		Min: grid.Cell{X: 1, Y: 1}, Max: grid.Cell{X: 4, Y: 4},
		Facilities: map[string]structures.Spot{
			"bed": {ID: "bed", Kind: "rest", Cell: grid.Cell{X: 2, Y: 2}},
		},
	}
	return env
}

func TestBuildingAndFacilityGoals(t *testing.T) {
	cases := []struct {
		name  string
		goal  Goal
		check func(c grid.Cell) bool
	}{
		{"interior", BuildingGoal{Building: "house", RequireInterior: true}, func(c grid.Cell) bool { return c == grid.Cell{X: 4, Y: 3} }},
		{"perimeter", BuildingGoal{Building: "house"}, func(c grid.Cell) bool { return c == grid.Cell{X: 5, Y: 3} }},
		{"facility", FacilityGoal{Building: "house", Facility: "bed"}, func(c grid.Cell) bool { return chebyshev(c, grid.Cell{X: 2, Y: 2}) == 1 }},
		{"area", AreaGoal{Center: grid.Cell{X: 6, Y: 0}, Radius: 1}, func(c grid.Cell) bool { return chebyshev(c, grid.Cell{X: 6, Y: 0}) <= 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := houseEnv(t)
			a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 7, Y: 3}, radius: 5}
			logger, _ := testLogger()
			p := New("a1", tuning.DefaultNav(), env, nil, logger)
			p.SetGoal(tc.goal)
			if r := drive(t, p, a, &stubMover{agent: a}, 40); r != StepReached {
				t.Fatalf("result=%s state=%s at %v", r, p.State(), a.cell)
			}
			if !tc.check(a.cell) {
				t.Fatalf("ended at %v", a.cell)
			}
		})
	}
}

func TestUnknownBuildingFails(t *testing.T) {
	env := houseEnv(t)
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 7, Y: 3}, radius: 5}
	logger, _ := testLogger()
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	p.SetGoal(FacilityGoal{Building: "house", Facility: "oven"})
	if drive(t, p, a, &stubMover{agent: a}, 100) == StepReached || !p.Failed() {
		t.Fatalf("unknown facility should fail, state=%s", p.State())
	}
}

func TestSnapshotRestoreContinuesRoute(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", openGrid(10, 5), "a1")
	env.addArea("FOREST", openGrid(10, 5), "a1")
	shared := knowledge.NewShared()
	shared.AddTransition(knowledge.TransitionPoint{
		ID: "gate", Area: "TOWN", Cell: grid.Cell{X: 9, Y: 2},
		Link: &knowledge.Endpoint{Area: "FOREST", Cell: grid.Cell{X: 0, Y: 2}},
	})
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 1, Y: 2}, radius: 5, sources: []knowledge.Source{shared}}
	logger, _ := testLogger()
	goal := PositionGoal{Area: "FOREST", Cell: grid.Cell{X: 5, Y: 2}}
	p := New("a1", tuning.DefaultNav(), env, nil, logger)
	p.SetGoal(goal)
	p.ComputeIfNeeded(a, Perception{})
	p.Advance(a, &stubMover{agent: a})

	snap := p.Snapshot()
	q := New("a1", tuning.DefaultNav(), env, nil, logger)
	q.Restore(goal, snap)
	if q.State() != p.State() || len(q.Remaining()) != len(p.Remaining()) || q.Route() == nil {
		t.Fatalf("restored state=%s remaining=%d route=%v", q.State(), len(q.Remaining()), q.Route())
	}
	if q.Searches() != p.Searches() {
		t.Fatalf("searches=%d want %d", q.Searches(), p.Searches())
	}
	// Mutating the snapshot must not reach the restored planner.
	snap.Path[0] = grid.Cell{X: 99, Y: 99}
	if q.Path()[0] == (grid.Cell{X: 99, Y: 99}) {
		t.Fatalf("restore shares the snapshot path")
	}
}

func TestPathLengthCapFails(t *testing.T) {
	env := newEnv()
	env.addArea("ROAD", openGrid(40, 3), "a1")
	a := &stubAgent{id: "a1", area: "ROAD", cell: grid.Cell{X: 0, Y: 1}, radius: 5}
	cfg := tuning.DefaultNav()
	cfg.MaxPathLength = 10
	logger, buf := testLogger()
	p := New("a1", cfg, env, nil, logger)
	p.SetGoal(PositionGoal{Area: "ROAD", Cell: grid.Cell{X: 39, Y: 1}})

	if p.ComputeIfNeeded(a, Perception{}) {
		t.Fatalf("a 39-cell path must exceed the cap")
	}
	if p.State() != StatePlanning || p.HasPath() {
		t.Fatalf("state=%s path=%v", p.State(), p.Path())
	}
	for i := 0; i < 100 && !p.Failed(); i++ {
		if p.ComputeIfNeeded(a, Perception{}) {
			t.Fatalf("tick %d: capped goal yielded a path", i)
		}
	}
	if !p.Failed() || !strings.Contains(buf.String(), "path too long") {
		t.Fatalf("state=%s log=%q", p.State(), buf.String())
	}

	p.SetGoal(PositionGoal{Area: "ROAD", Cell: grid.Cell{X: 10, Y: 1}})
	if !p.ComputeIfNeeded(a, Perception{}) || len(p.Path()) != 10 {
		t.Fatalf("a path at the cap is allowed, path=%v", p.Path())
	}
}

func TestPerceptionRefreshForcesRecompute(t *testing.T) {
	env := newEnv()
	env.addArea("TOWN", openGrid(10, 3), "a1")
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 0, Y: 1}, radius: 5}
	cfg := tuning.DefaultNav()
	cfg.RecalcCooldownTicks = 1000
	logger, _ := testLogger()
	p := New("a1", cfg, env, nil, logger)
	goal := grid.Cell{X: 9, Y: 1}
	p.SetGoal(PositionGoal{Area: "TOWN", Cell: goal})

	if !p.ComputeIfNeeded(a, Perception{}) || p.Searches() != 1 {
		t.Fatalf("initial compute: searches=%d", p.Searches())
	}
	m := &stubMover{agent: a}
	for i := 0; i < cfg.PerceptionRefreshSteps; i++ {
		p.ComputeIfNeeded(a, Perception{})
		if r := p.Advance(a, m); r != StepMoved {
			t.Fatalf("step %d: %s", i, r)
		}
	}
	if p.Searches() != 1 {
		t.Fatalf("cooldown should have suppressed searches, got %d", p.Searches())
	}

	cart := grid.Cell{X: 7, Y: 1}
	if !p.ComputeIfNeeded(a, Perception{Visible: []Sighting{{ID: "cart", Cell: cart}}}) {
		t.Fatalf("refresh compute lost the path")
	}
	if p.Searches() != 2 {
		t.Fatalf("refresh did not search: searches=%d", p.Searches())
	}
	rem := p.Remaining()
	if len(rem) == 0 || rem[len(rem)-1] != goal {
		t.Fatalf("remaining=%v", rem)
	}
	for _, c := range rem {
		if c == cart {
			t.Fatalf("remaining path %v runs through the sighted cart", rem)
		}
	}
}

func TestWalledPathReplansBeforeCooldown(t *testing.T) {
	env := newEnv()
	g := openGrid(10, 3)
	env.addArea("TOWN", g, "a1")
	a := &stubAgent{id: "a1", area: "TOWN", cell: grid.Cell{X: 0, Y: 1}, radius: 5}
	cfg := tuning.DefaultNav()
	cfg.RecalcCooldownTicks = 1000
	logger, _ := testLogger()
	p := New("a1", cfg, env, nil, logger)
	p.SetGoal(PositionGoal{Area: "TOWN", Cell: grid.Cell{X: 9, Y: 1}})

	if !p.ComputeIfNeeded(a, Perception{}) {
		t.Fatalf("expected a path")
	}
	if p.ComputeIfNeeded(a, Perception{}); p.Searches() != 1 {
		t.Fatalf("intact path was recomputed: searches=%d", p.Searches())
	}

	wall := grid.Cell{X: 5, Y: 1}
	if err := grid.NewWriter(g, nil, nil).SetSolid(wall, true); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !p.ComputeIfNeeded(a, Perception{}) || p.Searches() != 2 {
		t.Fatalf("walled path kept: searches=%d path=%v", p.Searches(), p.Path())
	}
	for _, c := range p.Remaining() {
		if c == wall {
			t.Fatalf("new path %v crosses the wall", p.Remaining())
		}
	}
}
