package world

import (
	"context"
	"errors"

	"tilenav.ai/internal/protocol"
	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/nav/arearoute"
)

type adminKind uint8

const (
	adminSnapshot adminKind = iota + 1
	adminState
)

type adminReq struct {
	kind adminKind
	resp chan adminResp
}

type adminResp struct {
	tick  uint64
	state AdminState
	err   string
}

// AdminState is the loopback admin view of the run.
type AdminState struct {
	RunID  string             `json:"run_id"`
	Tick   uint64             `json:"tick"`
	Agents []AdminAgentStatus `json:"agents"`
}

type AdminAgentStatus struct {
	ID        string            `json:"id"`
	Area      string            `json:"area"`
	X         int               `json:"x"`
	Y         int               `json:"y"`
	State     string            `json:"state"`
	Goal      protocol.GoalSpec `json:"goal"`
	Remaining int               `json:"remaining"`
	Known     int               `json:"known_transitions"`
	// Plan is the leg-by-leg route to the goal from what the agent knows. Goals
	// without a fixed location have none.
	Plan *arearoute.Plan `json:"plan,omitempty"`
}

// RequestSnapshot asks the world loop to export the last completed tick to the
// snapshot sink.
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	r, err := w.adminCall(ctx, adminSnapshot)
	if err != nil {
		return 0, err
	}
	if r.err != "" {
		return r.tick, errors.New(r.err)
	}
	return r.tick, nil
}

// RequestState returns agent positions and planner states as of the last
// completed tick.
func (w *World) RequestState(ctx context.Context) (AdminState, error) {
	r, err := w.adminCall(ctx, adminState)
	if err != nil {
		return AdminState{}, err
	}
	return r.state, nil
}

func (w *World) adminCall(ctx context.Context, kind adminKind) (adminResp, error) {
	resp := make(chan adminResp, 1)
	select {
	case w.admin <- adminReq{kind: kind, resp: resp}:
	case <-ctx.Done():
		return adminResp{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return adminResp{}, ctx.Err()
	}
}

func (w *World) handleAdmin(req adminReq) {
	var r adminResp
	switch req.kind {
	case adminSnapshot:
		r = w.adminSnapshot()
	case adminState:
		r.state = w.adminState()
		r.tick = r.state.Tick
	default:
		r.err = "unknown admin request"
	}
	req.resp <- r
}

func (w *World) adminSnapshot() adminResp {
	cur := w.tick.Load()
	if cur == 0 {
		return adminResp{err: "no completed tick yet"}
	}
	snapTick := cur - 1
	if w.snapshotSink == nil {
		return adminResp{tick: snapTick, err: "snapshot sink not configured"}
	}
	select {
	case w.snapshotSink <- w.ExportSnapshot(snapTick):
		return adminResp{tick: snapTick}
	default:
		return adminResp{tick: snapTick, err: "snapshot sink backpressure"}
	}
}

func (w *World) adminState() AdminState {
	st := AdminState{RunID: w.runID, Tick: w.tick.Load()}
	for _, id := range w.agentIDs {
		v, _ := w.AgentView(id)
		known, _ := w.agents[id].memory.Export()
		var plan *arearoute.Plan
		if p, ok := w.goalPlan(w.agents[id]); ok {
			plan = &p
		}
		st.Agents = append(st.Agents, AdminAgentStatus{
			ID:        v.ID,
			Area:      v.Area,
			X:         v.Cell.X,
			Y:         v.Cell.Y,
			State:     v.State.String(),
			Goal:      v.Goal,
			Remaining: len(v.Remaining),
			Known:     len(known),
			Plan:      plan,
		})
	}
	return st
}

func (w *World) goalPlan(a *Agent) (arearoute.Plan, bool) {
	to, ok := w.goalLocation(a)
	if !ok {
		return arearoute.Plan{}, false
	}
	return w.router.BuildPlan(a, arearoute.Location{Area: a.area, Cell: a.cell}, to)
}

func (w *World) goalLocation(a *Agent) (arearoute.Location, bool) {
	g := a.goal
	switch g.Kind {
	case protocol.GoalPosition, protocol.GoalArea:
		area := g.Area
		if area == "" {
			area = a.area
		}
		return arearoute.Location{Area: area, Cell: grid.Cell{X: g.X, Y: g.Y}}, true
	case protocol.GoalEntity:
		area, cell, ok := w.EntityPosition(g.Entity)
		return arearoute.Location{Area: area, Cell: cell}, ok
	case protocol.GoalFacility:
		b, ok := w.buildings[g.Building]
		if !ok {
			return arearoute.Location{}, false
		}
		spot, ok := b.Facilities[g.Facility]
		return arearoute.Location{Area: b.Area, Cell: spot.Cell}, ok
	}
	return arearoute.Location{}, false
}
