package world

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"tilenav.ai/internal/protocol"
	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/nav/arearoute"
	"tilenav.ai/internal/sim/nav/planner"
)

// step runs one tick:
//  1. goal requests
//  2. perception snapshots
//  3. background compute (planners in parallel, grids read-only)
//  4. follow (moves, transitions, discovery) in agent id order
//  5. grid edits
//  6. memory decay, digest, trace, observers
func (w *World) step(goals []GoalRequest, edits []EditRequest) string {
	nowTick := w.tick.Load()
	rec := TickLogEntry{Tick: nowTick}

	for _, req := range goals {
		if w.applyGoal(req) {
			rec.Goals = append(rec.Goals, req)
		}
	}

	w.perceiveAll(nowTick)

	before := make(map[string]computeMark, len(w.agentIDs))
	for _, id := range w.agentIDs {
		p := w.agents[id].planner
		before[id] = computeMark{searches: p.Searches(), failed: p.Failed()}
	}
	w.computePhase()
	w.reportCompute(nowTick, before)

	for _, id := range w.agentIDs {
		w.follow(w.agents[id], nowTick, &rec)
	}

	for _, e := range edits {
		if w.applyEdit(e) {
			rec.Edits = append(rec.Edits, e)
		}
	}

	if ttl := w.tune.MemoryTTLTicks; ttl > 0 {
		for _, id := range w.agentIDs {
			w.agents[id].memory.Decay(nowTick, uint64(ttl))
		}
	}

	digest := w.stateDigest(nowTick)
	rec.Digest = digest
	w.tick.Add(1)

	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(rec); err != nil {
			w.log.Printf("tick log: %v", err)
		}
	}
	w.broadcastObservers(nowTick, rec)

	if w.snapshotSink != nil && w.tune.SnapshotEveryTicks > 0 && nowTick != 0 && nowTick%uint64(w.tune.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot(nowTick):
		default:
			w.log.Printf("snapshot: sink busy, skipped tick %d", nowTick)
		}
	}
	return digest
}

func (w *World) applyGoal(req GoalRequest) bool {
	a := w.agents[req.AgentID]
	if a == nil {
		w.log.Printf("nav: goal for unknown agent %q ignored", req.AgentID)
		return false
	}
	if req.Goal.IsZero() {
		a.planner.ClearGoal()
		a.goal = protocol.GoalSpec{}
		return true
	}
	spec := req.Goal
	if spec.Kind == protocol.GoalNearestFacility {
		if err := spec.Validate(); err != nil {
			w.log.Printf("nav: agent %s bad goal: %v", a.id, err)
			return false
		}
		var ok bool
		if spec, ok = w.nearestFacilityGoal(a, spec.FacilityKind); !ok {
			w.log.Printf("nav: agent %s knows no %q facility", a.id, req.Goal.FacilityKind)
			return false
		}
	}
	g, err := goalFromSpec(spec)
	if err != nil {
		w.log.Printf("nav: agent %s bad goal: %v", a.id, err)
		return false
	}
	a.planner.SetGoal(g)
	a.goal = spec
	return true
}

// nearestFacilityGoal picks the closest facility of kind the agent knows about and
// returns a concrete goal for it. Facilities inside a building become facility
// goals; free-standing ones become a radius-1 area goal around the spot.
func (w *World) nearestFacilityGoal(a *Agent, kind string) (protocol.GoalSpec, bool) {
	f, ok := w.router.NearestFacility(a, arearoute.Location{Area: a.area, Cell: a.cell}, kind)
	if !ok {
		return protocol.GoalSpec{}, false
	}
	if b, ok := w.buildings[f.Building]; ok {
		if _, ok := b.Facilities[f.ID]; ok {
			return protocol.GoalSpec{Kind: protocol.GoalFacility, Building: f.Building, Facility: f.ID}, true
		}
	}
	area := f.Area
	if area == "" {
		area = a.area
	}
	return protocol.GoalSpec{Kind: protocol.GoalArea, Area: area, X: f.Cell.X, Y: f.Cell.Y, Radius: 1}, true
}

// perceiveAll records, per agent, the other agents in the same area within its
// perception radius.
func (w *World) perceiveAll(nowTick uint64) {
	for _, id := range w.agentIDs {
		a := w.agents[id]
		snap := planner.Perception{Tick: nowTick}
		r2 := a.radius * a.radius
		for _, oid := range w.agentIDs {
			o := w.agents[oid]
			if oid == id || o.area != a.area {
				continue
			}
			dx, dy := o.cell.X-a.cell.X, o.cell.Y-a.cell.Y
			if dx*dx+dy*dy <= r2 {
				snap.Visible = append(snap.Visible, planner.Sighting{ID: oid, Cell: o.cell})
			}
		}
		a.snap = snap
	}
}

// computePhase lets every planner search concurrently. Nothing in the world may
// change until it returns.
func (w *World) computePhase() {
	w.background.Store(true)
	defer w.background.Store(false)

	limit := w.tune.Nav.ComputeWorkers
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, id := range w.agentIDs {
		a := w.agents[id]
		g.Go(func() error {
			a.planner.ComputeIfNeeded(a, a.snap)
			return nil
		})
	}
	_ = g.Wait()
}

type computeMark struct {
	searches uint64
	failed   bool
}

func (w *World) reportCompute(nowTick uint64, before map[string]computeMark) {
	for _, id := range w.agentIDs {
		a := w.agents[id]
		mark := before[id]
		switch {
		case a.planner.Failed() && !mark.failed:
			w.emit(nowTick, a, EventGoalFailed, goalString(a.planner.Goal()))
		case a.planner.Searches() == mark.searches:
		case a.planner.HasPath():
			w.emit(nowTick, a, EventPathOK, "")
		default:
			w.emit(nowTick, a, EventPathFail, "")
		}
	}
}

func (w *World) follow(a *Agent, nowTick uint64, rec *TickLogEntry) {
	switch a.planner.Advance(a, w) {
	case planner.StepTransition:
		w.traverse(a, nowTick, rec)
	case planner.StepReached:
		a.goal = protocol.GoalSpec{}
		w.emit(nowTick, a, EventReached, "")
	}
	w.discover(a, nowTick)
}

// traverse moves a across its pending transition using the world's own links.
// A blocked destination leaves the transition pending for the next tick.
func (w *World) traverse(a *Agent, nowTick uint64, rec *TickLogEntry) {
	tp, ok := a.planner.PendingTransition()
	if !ok {
		return
	}
	truth, known := w.transitions[tp.ID]
	if !known || truth.Area != a.area || truth.Link == nil {
		w.log.Printf("nav: agent %s cannot use transition %s from %s; replanning", a.id, tp.ID, a.area)
		a.planner.SetGoal(a.planner.Goal())
		return
	}
	dest := *truth.Link
	if w.occupied(dest.Area, dest.Cell, a.id) {
		return
	}
	from := a.area
	a.area, a.cell = dest.Area, dest.Cell
	a.memory.ObserveTransition(truth, nowTick)
	a.planner.CompleteTransition()

	rec.Transitions = append(rec.Transitions, protocol.TransitionInfo{
		AgentID:  a.id,
		PointID:  tp.ID,
		FromArea: from,
		ToArea:   dest.Area,
	})
	w.emit(nowTick, a, EventTransition, tp.ID)
}

// discover refreshes personal memory with transition points and facilities the
// agent can currently see. Sighted points carry no link; a remembered one is kept.
func (w *World) discover(a *Agent, nowTick uint64) {
	r2 := a.radius * a.radius
	within := func(c grid.Cell) bool {
		dx, dy := c.X-a.cell.X, c.Y-a.cell.Y
		return dx*dx+dy*dy <= r2
	}
	for _, tp := range w.transitionsByArea[a.area] {
		if within(tp.Cell) {
			a.memory.ObserveTransition(knowledge.TransitionPoint{ID: tp.ID, Area: tp.Area, Cell: tp.Cell}, nowTick)
		}
	}
	for _, f := range w.facilitiesByArea[a.area] {
		if within(f.Cell) {
			a.memory.ObserveFacility(f, nowTick)
		}
	}
}

// Move implements planner.Mover: one king-move step onto a free, open cell.
func (w *World) Move(agentID string, to grid.Cell) bool {
	a := w.agents[agentID]
	if a == nil {
		return false
	}
	ar := w.areas[a.area]
	if ar == nil || !ar.grid.InBounds(to) || ar.grid.Solid(to) {
		return false
	}
	dx, dy := abs(to.X-a.cell.X), abs(to.Y-a.cell.Y)
	if max(dx, dy) != 1 {
		return false
	}
	if w.occupied(a.area, to, agentID) {
		return false
	}
	a.cell = to
	return true
}

func (w *World) occupied(area string, c grid.Cell, except string) bool {
	for _, id := range w.agentIDs {
		o := w.agents[id]
		if id != except && o.area == area && o.cell == c {
			return true
		}
	}
	return false
}

func (w *World) applyEdit(e EditRequest) bool {
	ar := w.areas[e.Area]
	if ar == nil {
		w.log.Printf("edit: unknown area %q", e.Area)
		return false
	}
	c := grid.Cell{X: e.X, Y: e.Y}
	if !ar.grid.InBounds(c) {
		w.log.Printf("edit: %s %s out of bounds", e.Area, c)
		return false
	}
	if e.Solid && w.occupied(e.Area, c, "") {
		w.log.Printf("edit: %s %s is occupied", e.Area, c)
		return false
	}
	if err := ar.writer.SetSolid(c, e.Solid); err != nil {
		return false
	}
	if e.Weight > 0 {
		if err := ar.writer.SetWeight(c, e.Weight); err != nil {
			return false
		}
	}
	return true
}

func (w *World) emit(nowTick uint64, a *Agent, kind, detail string) {
	if w.navSink == nil {
		return
	}
	w.navSink.RecordNavEvent(NavEvent{
		Tick:    nowTick,
		AgentID: a.id,
		Kind:    kind,
		Area:    a.area,
		X:       a.cell.X,
		Y:       a.cell.Y,
		Detail:  detail,
	})
}

func goalString(g planner.Goal) string {
	if g == nil {
		return ""
	}
	return g.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
