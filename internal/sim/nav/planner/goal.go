package planner

import (
	"fmt"

	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/nav/search"
	"tilenav.ai/internal/sim/structures"
)

// Goal is what an agent is trying to reach. The set of variants is closed: every
// resolution point switches over all of them.
type Goal interface {
	isGoal()
	String() string
}

// PositionGoal reaches an exact cell. An empty Area means the agent's current area.
type PositionGoal struct {
	Area string
	Cell grid.Cell
}

// EntityGoal stays within Range cells (Chebyshev) of a possibly moving entity.
type EntityGoal struct {
	Entity string
	Range  int
}

// AreaGoal reaches any cell within Radius of Center.
type AreaGoal struct {
	Area   string
	Center grid.Cell
	Radius int
}

// BuildingGoal reaches a walkable interior cell, or any walkable cell on the outer
// perimeter when RequireInterior is false.
type BuildingGoal struct {
	Building        string
	RequireInterior bool
}

// FacilityGoal reaches a cell adjacent to a named facility inside a building.
type FacilityGoal struct {
	Building string
	Facility string
}

func (PositionGoal) isGoal() {}
func (EntityGoal) isGoal()   {}
func (AreaGoal) isGoal()     {}
func (BuildingGoal) isGoal() {}
func (FacilityGoal) isGoal() {}

func (g PositionGoal) String() string { return fmt.Sprintf("position(%s %s)", g.Area, g.Cell) }
func (g EntityGoal) String() string   { return fmt.Sprintf("entity(%s r=%d)", g.Entity, g.Range) }
func (g AreaGoal) String() string {
	return fmt.Sprintf("area(%s %s r=%d)", g.Area, g.Center, g.Radius)
}
func (g BuildingGoal) String() string {
	return fmt.Sprintf("building(%s interior=%t)", g.Building, g.RequireInterior)
}
func (g FacilityGoal) String() string {
	return fmt.Sprintf("facility(%s/%s)", g.Building, g.Facility)
}

// target is a goal resolved against the current world view.
type target struct {
	area   string
	cell   grid.Cell
	entity string // excluded from soft blocks
}

// goalArea reports which area g lives in right now.
func goalArea(env Env, g Goal, agentArea string) (string, bool) {
	switch g := g.(type) {
	case PositionGoal:
		if g.Area == "" {
			return agentArea, true
		}
		return g.Area, true
	case EntityGoal:
		area, _, ok := env.EntityPosition(g.Entity)
		return area, ok
	case AreaGoal:
		if g.Area == "" {
			return agentArea, true
		}
		return g.Area, true
	case BuildingGoal:
		b, ok := env.Building(g.Building)
		return b.Area, ok
	case FacilityGoal:
		b, ok := env.Building(g.Building)
		return b.Area, ok
	}
	return "", false
}

// resolve picks the concrete cell to search toward. from is the agent's cell when
// the agent is in the goal's area.
func resolve(env Env, g Goal, view grid.Reader, agentArea string, from grid.Cell) (target, bool) {
	switch g := g.(type) {
	case PositionGoal:
		return resolvePosition(g, agentArea)
	case EntityGoal:
		return resolveEntity(env, g)
	case AreaGoal:
		return resolveArea(g, view, agentArea, from)
	case BuildingGoal:
		return resolveBuilding(env, g, view, from)
	case FacilityGoal:
		return resolveFacility(env, g, view, from)
	}
	return target{}, false
}

func resolvePosition(g PositionGoal, agentArea string) (target, bool) {
	area := g.Area
	if area == "" {
		area = agentArea
	}
	return target{area: area, cell: g.Cell}, true
}

func resolveEntity(env Env, g EntityGoal) (target, bool) {
	area, cell, ok := env.EntityPosition(g.Entity)
	if !ok {
		return target{}, false
	}
	return target{area: area, cell: cell, entity: g.Entity}, true
}

func resolveArea(g AreaGoal, view grid.Reader, agentArea string, from grid.Cell) (target, bool) {
	area := g.Area
	if area == "" {
		area = agentArea
	}
	r2 := g.Radius * g.Radius
	var cands []grid.Cell
	for y := g.Center.Y - g.Radius; y <= g.Center.Y+g.Radius; y++ {
		for x := g.Center.X - g.Radius; x <= g.Center.X+g.Radius; x++ {
			dx, dy := x-g.Center.X, y-g.Center.Y
			if dx*dx+dy*dy > r2 {
				continue
			}
			cands = append(cands, grid.Cell{X: x, Y: y})
		}
	}
	cell, ok := nearestWalkable(view, cands, from)
	if !ok {
		return target{}, false
	}
	return target{area: area, cell: cell}, true
}

func resolveBuilding(env Env, g BuildingGoal, view grid.Reader, from grid.Cell) (target, bool) {
	b, ok := env.Building(g.Building)
	if !ok {
		return target{}, false
	}
	var cands []grid.Cell
	if g.RequireInterior {
		cands = b.Interior(view)
	} else {
		cands = b.Perimeter(view)
	}
	cell, ok := nearestWalkable(view, cands, from)
	if !ok {
		return target{}, false
	}
	return target{area: b.Area, cell: cell}, true
}

func resolveFacility(env Env, g FacilityGoal, view grid.Reader, from grid.Cell) (target, bool) {
	b, ok := env.Building(g.Building)
	if !ok {
		return target{}, false
	}
	cands, ok := b.FacilityApproach(view, g.Facility)
	if !ok {
		return target{}, false
	}
	cell, ok := nearestWalkable(view, cands, from)
	if !ok {
		return target{}, false
	}
	return target{area: b.Area, cell: cell}, true
}

// nearestWalkable returns the walkable candidate closest to from; ties keep the
// earliest candidate.
func nearestWalkable(view grid.Reader, cands []grid.Cell, from grid.Cell) (grid.Cell, bool) {
	var (
		best  grid.Cell
		bestD float64
		found bool
	)
	for _, c := range cands {
		if view == nil || !view.InBounds(c) || view.Solid(c) {
			continue
		}
		d := search.Octile(from, c)
		if !found || d < bestD {
			best, bestD, found = c, d, true
		}
	}
	return best, found
}

// satisfied reports whether an agent standing at cell in area has reached g.
func satisfied(env Env, g Goal, area string, cell grid.Cell) bool {
	switch g := g.(type) {
	case PositionGoal:
		return (g.Area == "" || g.Area == area) && g.Cell == cell
	case EntityGoal:
		ea, ec, ok := env.EntityPosition(g.Entity)
		if !ok || ea != area {
			return false
		}
		rng := g.Range
		if rng < 0 {
			rng = 0
		}
		return chebyshev(ec, cell) <= rng
	case AreaGoal:
		if g.Area != "" && g.Area != area {
			return false
		}
		dx, dy := cell.X-g.Center.X, cell.Y-g.Center.Y
		return dx*dx+dy*dy <= g.Radius*g.Radius
	case BuildingGoal:
		b, ok := env.Building(g.Building)
		if !ok || b.Area != area {
			return false
		}
		if g.RequireInterior {
			return b.Contains(cell)
		}
		return onPerimeter(b, cell)
	case FacilityGoal:
		b, ok := env.Building(g.Building)
		if !ok || b.Area != area {
			return false
		}
		spot, ok := b.Facilities[g.Facility]
		return ok && chebyshev(spot.Cell, cell) == 1
	}
	return false
}

func onPerimeter(b structures.Building, c grid.Cell) bool {
	if b.Contains(c) {
		return false
	}
	return c.X >= b.Min.X-1 && c.X <= b.Max.X+1 && c.Y >= b.Min.Y-1 && c.Y <= b.Max.Y+1
}

func chebyshev(a, b grid.Cell) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}
