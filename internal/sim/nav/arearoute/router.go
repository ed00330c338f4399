// Package arearoute plans travel between areas using only the transition points an
// agent knows about.
package arearoute

import (
	"sort"

	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/nav/search"
	"tilenav.ai/internal/sim/tuning"
)

// Knower is anything that carries knowledge sources, normally an agent.
type Knower interface {
	KnowledgeSources() []knowledge.Source
}

// Sources adapts a plain source list to Knower.
type Sources []knowledge.Source

func (s Sources) KnowledgeSources() []knowledge.Source { return s }

// Location is a cell in a named area.
type Location struct {
	Area string    `json:"area"`
	Cell grid.Cell `json:"cell"`
}

type Router struct {
	crossAreaPenalty float64
}

func New(cfg tuning.Nav) *Router {
	cfg.Normalize()
	return &Router{crossAreaPenalty: cfg.CrossAreaPenalty}
}

// FindRoute returns the transition points to traverse, in order, to get from one
// area to another with the fewest transitions. Same area yields an empty, non-nil
// slice; no known chain yields nil.
func (r *Router) FindRoute(k Knower, from, to string) []knowledge.TransitionPoint {
	if from == to {
		return []knowledge.TransitionPoint{}
	}
	edges := buildGraph(k)

	type visit struct {
		prevArea string
		via      knowledge.TransitionPoint
	}
	seen := map[string]visit{from: {}}
	queue := []string{from}
	for head := 0; head < len(queue); head++ {
		area := queue[head]
		for _, tp := range edges[area] {
			next := tp.Link.Area
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = visit{prevArea: area, via: tp}
			if next == to {
				var route []knowledge.TransitionPoint
				for a := to; a != from; a = seen[a].prevArea {
					route = append(route, seen[a].via)
				}
				for i, j := 0, len(route)-1; i < j; i, j = i+1, j-1 {
					route[i], route[j] = route[j], route[i]
				}
				return route
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// buildGraph merges the agent's sources into area -> outgoing resolved transition
// points. A point known to several sources keeps the first copy seen, so durable
// knowledge wins over personal memory. Edges are ordered by id.
func buildGraph(k Knower) map[string][]knowledge.TransitionPoint {
	byID := map[string]knowledge.TransitionPoint{}
	if k != nil {
		for _, src := range knowledge.Ordered(k.KnowledgeSources()...) {
			for _, tp := range src.TransitionPoints() {
				if !tp.Resolved() {
					continue
				}
				if _, dup := byID[tp.ID]; dup {
					continue
				}
				byID[tp.ID] = tp
			}
		}
	}
	edges := map[string][]knowledge.TransitionPoint{}
	for _, tp := range byID {
		edges[tp.Area] = append(edges[tp.Area], tp)
	}
	for area := range edges {
		list := edges[area]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return edges
}

type StepKind uint8

const (
	StepMove StepKind = iota + 1
	StepTraverse
)

func (k StepKind) String() string {
	switch k {
	case StepMove:
		return "move"
	case StepTraverse:
		return "traverse"
	}
	return "unknown"
}

// Step is one leg of a Plan: either walk to Target inside Target.Area, or take
// Transition.
type Step struct {
	Kind       StepKind                   `json:"kind"`
	Target     Location                   `json:"target"`
	Transition *knowledge.TransitionPoint `json:"transition,omitempty"`
}

type Plan struct {
	Steps []Step `json:"steps"`
}

// Transitions returns the number of traverse steps.
func (p Plan) Transitions() int {
	n := 0
	for _, s := range p.Steps {
		if s.Kind == StepTraverse {
			n++
		}
	}
	return n
}

// BuildPlan interleaves in-area moves and traversals from one location to another.
// ok is false when no known route connects the two areas.
func (r *Router) BuildPlan(k Knower, from, to Location) (Plan, bool) {
	route := r.FindRoute(k, from.Area, to.Area)
	if route == nil {
		return Plan{}, false
	}
	var plan Plan
	for i := range route {
		tp := route[i]
		plan.Steps = append(plan.Steps,
			Step{Kind: StepMove, Target: Location{Area: tp.Area, Cell: tp.Cell}},
			Step{Kind: StepTraverse, Target: Location{Area: tp.Link.Area, Cell: tp.Link.Cell}, Transition: &tp},
		)
	}
	plan.Steps = append(plan.Steps, Step{Kind: StepMove, Target: to})
	return plan, true
}

// NearestFacility finds the closest known facility of kind. Durable sources are
// scanned before personal memory, and a personal candidate only replaces a durable
// one when it is strictly closer. Facilities in other areas carry the cross-area
// penalty on top of the straight-line distance.
func (r *Router) NearestFacility(k Knower, at Location, kind string) (knowledge.Facility, bool) {
	var (
		best      knowledge.Facility
		bestScore float64
		found     bool
	)
	if k == nil {
		return best, false
	}
	for _, src := range knowledge.Ordered(k.KnowledgeSources()...) {
		for _, f := range src.Facilities() {
			if f.Kind != kind {
				continue
			}
			score := search.Octile(at.Cell, f.Cell)
			if f.Area != at.Area {
				score += r.crossAreaPenalty
			}
			if !found || score < bestScore {
				best, bestScore, found = f, score, true
			}
		}
	}
	return best, found
}
