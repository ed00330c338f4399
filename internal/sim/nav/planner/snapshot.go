package planner

import (
	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
)

// Snapshot is the planner's follow state without the goal, which callers persist
// in their own encoding.
type Snapshot struct {
	State            State
	Path             []grid.Cell
	Index            int
	Attempts         int
	TicksSinceRecalc int
	StepsSinceSight  int
	RefreshSight     bool

	EntityArea string
	EntityCell grid.Cell
	HaveEntity bool

	HasRoute        bool
	Route           []knowledge.TransitionPoint
	RouteNext       int
	RouteTargetArea string
	Pending         *knowledge.TransitionPoint

	Searches uint64
}

func (p *Planner) Snapshot() Snapshot {
	s := Snapshot{
		State:            p.state,
		Path:             append([]grid.Cell(nil), p.path...),
		Index:            p.index,
		Attempts:         p.attempts,
		TicksSinceRecalc: p.ticksSinceRecalc,
		StepsSinceSight:  p.stepsSinceSight,
		RefreshSight:     p.refreshSight,
		EntityArea:       p.entityArea,
		EntityCell:       p.entityCell,
		HaveEntity:       p.haveEntity,
		Searches:         p.searches,
	}
	if p.route != nil {
		s.HasRoute = true
		s.Route = cloneRoute(p.route.Transitions)
		s.RouteNext = p.route.Next
		s.RouteTargetArea = p.route.TargetArea
	}
	if p.pending != nil {
		tp := cloneTP(*p.pending)
		s.Pending = &tp
	}
	return s
}

// Restore reinstates a goal together with the follow state captured by Snapshot.
func (p *Planner) Restore(g Goal, s Snapshot) {
	p.reset()
	p.goal = g
	if g == nil {
		return
	}
	p.state = s.State
	p.path = append([]grid.Cell(nil), s.Path...)
	p.index = s.Index
	p.attempts = s.Attempts
	p.ticksSinceRecalc = s.TicksSinceRecalc
	p.stepsSinceSight = s.StepsSinceSight
	p.refreshSight = s.RefreshSight
	p.entityArea, p.entityCell, p.haveEntity = s.EntityArea, s.EntityCell, s.HaveEntity
	p.searches = s.Searches
	if s.HasRoute {
		p.route = &CrossAreaRoute{
			Transitions: cloneRoute(s.Route),
			Next:        s.RouteNext,
			Final:       g,
			TargetArea:  s.RouteTargetArea,
		}
	}
	if s.Pending != nil {
		tp := cloneTP(*s.Pending)
		p.pending = &tp
	}
}

func cloneRoute(in []knowledge.TransitionPoint) []knowledge.TransitionPoint {
	out := make([]knowledge.TransitionPoint, len(in))
	for i, tp := range in {
		out[i] = cloneTP(tp)
	}
	return out
}

func cloneTP(tp knowledge.TransitionPoint) knowledge.TransitionPoint {
	if tp.Link != nil {
		l := *tp.Link
		tp.Link = &l
	}
	return tp
}
