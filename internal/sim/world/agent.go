package world

import (
	"fmt"

	"tilenav.ai/internal/protocol"
	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/nav/planner"
	"tilenav.ai/internal/sim/structures"
)

type Agent struct {
	id     string
	area   string
	cell   grid.Cell
	radius int

	group  string
	shared *knowledge.Shared
	memory *knowledge.Memory

	planner *planner.Planner
	goal    protocol.GoalSpec

	// Rebuilt at the start of every tick, read by the compute phase.
	snap planner.Perception
}

func (a *Agent) ID() string            { return a.id }
func (a *Agent) Area() string          { return a.area }
func (a *Agent) Cell() grid.Cell       { return a.cell }
func (a *Agent) PerceptionRadius() int { return a.radius }

// KnowledgeSources lists the group's shared knowledge (when the agent has a group)
// and the agent's own memory.
func (a *Agent) KnowledgeSources() []knowledge.Source {
	out := make([]knowledge.Source, 0, 2)
	if a.shared != nil {
		out = append(out, a.shared)
	}
	return append(out, a.memory)
}

// AgentView is a read-only copy of an agent's navigation state.
type AgentView struct {
	ID        string
	Area      string
	Cell      grid.Cell
	State     planner.State
	Goal      protocol.GoalSpec
	Remaining []grid.Cell
}

// AgentView must be called from the world goroutine (or between StepOnce calls).
func (w *World) AgentView(id string) (AgentView, bool) {
	a := w.agents[id]
	if a == nil {
		return AgentView{}, false
	}
	return AgentView{
		ID:        a.id,
		Area:      a.area,
		Cell:      a.cell,
		State:     a.planner.State(),
		Goal:      a.goal,
		Remaining: a.planner.Remaining(),
	}, true
}

// Memory exposes an agent's personal knowledge.
func (w *World) Memory(id string) (*knowledge.Memory, bool) {
	a := w.agents[id]
	if a == nil {
		return nil, false
	}
	return a.memory, true
}

// Area, EntityPosition and Building make the World the planners' environment.
// They only read state that is frozen during the compute phase.

func (w *World) Area(id string) (planner.AreaView, bool) {
	ar := w.areas[id]
	if ar == nil {
		return planner.AreaView{}, false
	}
	return planner.AreaView{ID: ar.id, Grid: ar.grid, Residents: ar.residents}, true
}

func (w *World) EntityPosition(id string) (string, grid.Cell, bool) {
	a := w.agents[id]
	if a == nil {
		return "", grid.Cell{}, false
	}
	return a.area, a.cell, true
}

func (w *World) Building(id string) (structures.Building, bool) {
	b, ok := w.buildings[id]
	return b, ok
}

func goalFromSpec(s protocol.GoalSpec) (planner.Goal, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Kind {
	case "":
		return nil, nil
	case protocol.GoalPosition:
		return planner.PositionGoal{Area: s.Area, Cell: grid.Cell{X: s.X, Y: s.Y}}, nil
	case protocol.GoalEntity:
		return planner.EntityGoal{Entity: s.Entity, Range: s.Range}, nil
	case protocol.GoalArea:
		return planner.AreaGoal{Area: s.Area, Center: grid.Cell{X: s.X, Y: s.Y}, Radius: s.Radius}, nil
	case protocol.GoalBuilding:
		return planner.BuildingGoal{Building: s.Building, RequireInterior: s.Interior}, nil
	case protocol.GoalFacility:
		return planner.FacilityGoal{Building: s.Building, Facility: s.Facility}, nil
	case protocol.GoalNearestFacility:
		return nil, fmt.Errorf("nearest_facility goal must be resolved against agent knowledge first")
	}
	return nil, fmt.Errorf("unknown goal kind %q", s.Kind)
}
