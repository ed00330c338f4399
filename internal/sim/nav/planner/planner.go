// Package planner owns one agent's navigation: goal resolution, path computation
// against the agent's own view of the world, and step-by-step path following.
//
// ComputeIfNeeded only reads shared state and may run concurrently for different
// agents. Advance and CompleteTransition mutate the world through the caller and
// must run on the single foreground goroutine.
package planner

import (
	"io"
	"log"
	"math"

	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/nav/arearoute"
	"tilenav.ai/internal/sim/nav/search"
	"tilenav.ai/internal/sim/structures"
	"tilenav.ai/internal/sim/tuning"
)

// AreaView is the read-only part of an area the planner needs.
type AreaView struct {
	ID        string
	Grid      grid.Reader
	Residents map[string]bool
}

// Resident reports whether agentID has full map knowledge of the area.
func (v AreaView) Resident(agentID string) bool { return v.Residents[agentID] }

type Env interface {
	Area(id string) (AreaView, bool)
	EntityPosition(id string) (area string, cell grid.Cell, ok bool)
	Building(id string) (structures.Building, bool)
}

type Agent interface {
	ID() string
	Area() string
	Cell() grid.Cell
	PerceptionRadius() int
	KnowledgeSources() []knowledge.Source
}

// Mover performs a single-cell move in the world. It reports false when the move
// was refused (occupied, solid).
type Mover interface {
	Move(agentID string, to grid.Cell) bool
}

type Sighting struct {
	ID   string    `json:"id"`
	Cell grid.Cell `json:"cell"`
}

// Perception is what an agent could see at the start of a tick.
type Perception struct {
	Tick    uint64     `json:"tick"`
	Visible []Sighting `json:"visible,omitempty"`
}

type State uint8

const (
	StateNoGoal State = iota
	StatePlanning
	StateHasPath
	StateBlocked
	StateTransitionPending
	StateReached
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNoGoal:
		return "no_goal"
	case StatePlanning:
		return "planning"
	case StateHasPath:
		return "has_path"
	case StateBlocked:
		return "blocked"
	case StateTransitionPending:
		return "transition_pending"
	case StateReached:
		return "reached"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type StepResult uint8

const (
	StepIdle StepResult = iota
	StepMoved
	StepBlocked
	StepTransition
	StepReached
)

func (r StepResult) String() string {
	switch r {
	case StepIdle:
		return "idle"
	case StepMoved:
		return "moved"
	case StepBlocked:
		return "blocked"
	case StepTransition:
		return "transition"
	case StepReached:
		return "reached"
	}
	return "unknown"
}

// CrossAreaRoute tracks progress through a chain of transitions toward Final.
type CrossAreaRoute struct {
	Transitions []knowledge.TransitionPoint
	Next        int
	Final       Goal
	// TargetArea is the area Final resolved to when the route was built.
	TargetArea string
}

// Current is the transition the agent is heading for.
func (r *CrossAreaRoute) Current() (knowledge.TransitionPoint, bool) {
	if r == nil || r.Next >= len(r.Transitions) {
		return knowledge.TransitionPoint{}, false
	}
	return r.Transitions[r.Next], true
}

type Planner struct {
	agentID string
	cfg     tuning.Nav
	opts    search.Options
	env     Env
	router  *arearoute.Router
	log     *log.Logger

	goal  Goal
	route *CrossAreaRoute
	state State

	path  []grid.Cell
	index int

	attempts         int
	ticksSinceRecalc int
	stepsSinceSight  int
	refreshSight     bool

	entityArea string
	entityCell grid.Cell
	haveEntity bool

	pending *knowledge.TransitionPoint

	searches       uint64
	lastExpansions int
	lastCost       float64
}

func New(agentID string, cfg tuning.Nav, env Env, router *arearoute.Router, logger *log.Logger) *Planner {
	cfg.Normalize()
	if router == nil {
		router = arearoute.New(cfg)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Planner{
		agentID: agentID,
		cfg:     cfg,
		opts: search.Options{
			AllowPartial:     cfg.Partial(),
			SoftBlockPenalty: cfg.SoftBlockPenalty,
			Diagonal:         cfg.DiagonalRule(),
			MaxExpansions:    cfg.MaxExpansions,
		},
		env:    env,
		router: router,
		log:    logger,
	}
}

// SetGoal replaces the current goal and discards every piece of path state.
func (p *Planner) SetGoal(g Goal) {
	p.reset()
	p.goal = g
	if g != nil {
		p.state = StatePlanning
	}
}

func (p *Planner) ClearGoal() {
	p.reset()
	p.goal = nil
}

func (p *Planner) reset() {
	p.route = nil
	p.state = StateNoGoal
	p.path = nil
	p.index = 0
	p.attempts = 0
	p.ticksSinceRecalc = 0
	p.stepsSinceSight = 0
	p.refreshSight = false
	p.haveEntity = false
	p.pending = nil
}

func (p *Planner) State() State { return p.state }
func (p *Planner) Goal() Goal   { return p.goal }
func (p *Planner) Failed() bool { return p.state == StateFailed }

// HasPath reports whether unfollowed path cells remain.
func (p *Planner) HasPath() bool { return p.index < len(p.path) }

// Path returns a copy of the full current path.
func (p *Planner) Path() []grid.Cell { return append([]grid.Cell(nil), p.path...) }

// Remaining returns a copy of the cells not yet stepped onto.
func (p *Planner) Remaining() []grid.Cell {
	if !p.HasPath() {
		return nil
	}
	return append([]grid.Cell(nil), p.path[p.index:]...)
}

// Route returns the active cross-area route, or nil.
func (p *Planner) Route() *CrossAreaRoute { return p.route }

func (p *Planner) NeedsAreaTransition() bool { return p.state == StateTransitionPending }

func (p *Planner) PendingTransition() (knowledge.TransitionPoint, bool) {
	if p.pending == nil {
		return knowledge.TransitionPoint{}, false
	}
	return *p.pending, true
}

// Searches counts grid searches run since the planner was created.
func (p *Planner) Searches() uint64 { return p.searches }

// LastSearch reports the expansion count and cost of the most recent search.
func (p *Planner) LastSearch() (expansions int, cost float64) {
	return p.lastExpansions, p.lastCost
}

// ComputeIfNeeded recomputes the path when the current one is missing, stale or
// due for a refresh. It returns false when there is no usable path, in which case
// the caller should not expect movement.
func (p *Planner) ComputeIfNeeded(a Agent, snap Perception) bool {
	p.ticksSinceRecalc++
	switch p.state {
	case StateNoGoal, StateFailed:
		return false
	case StateReached:
		return false
	case StateTransitionPending:
		return true
	}

	if p.route == nil && satisfied(p.env, p.goal, a.Area(), a.Cell()) {
		p.state = StateReached
		p.path, p.index = nil, 0
		return false
	}

	moved := p.entityMoved()
	noPath := !p.HasPath()
	cooldown := p.ticksSinceRecalc >= p.cfg.RecalcCooldownTicks
	need := moved || p.refreshSight || cooldown || (noPath && p.attempts == 0)
	if !need && !noPath && !p.pathStillValid(a) {
		need = true
	}
	if !need {
		return !noPath
	}
	return p.recompute(a, snap)
}

// pathStillValid re-prices the visible part of the remaining path against the
// live grid. An edit that walls off a step makes the price infinite.
func (p *Planner) pathStillValid(a Agent) bool {
	view, ok := p.env.Area(a.Area())
	if !ok || view.Grid == nil {
		return false
	}
	rest := p.path[p.index:]
	for len(rest) > 0 && rest[0] == a.Cell() {
		rest = rest[1:]
	}
	if !view.Resident(p.agentID) {
		r2 := a.PerceptionRadius() * a.PerceptionRadius()
		for i, c := range rest {
			dx, dy := c.X-a.Cell().X, c.Y-a.Cell().Y
			if dx*dx+dy*dy > r2 {
				rest = rest[:i]
				break
			}
		}
	}
	if len(rest) == 0 {
		return true
	}
	opts := p.opts
	opts.SoftBlocked = nil
	return !math.IsInf(search.PathCost(view.Grid, a.Cell(), rest, opts), 1)
}

func (p *Planner) entityMoved() bool {
	eg, ok := p.goal.(EntityGoal)
	if !ok || !p.haveEntity {
		return false
	}
	area, cell, ok := p.env.EntityPosition(eg.Entity)
	if !ok {
		return true
	}
	return area != p.entityArea || chebyshev(cell, p.entityCell) > p.cfg.GoalMoveTolerance
}

func (p *Planner) recompute(a Agent, snap Perception) bool {
	p.ticksSinceRecalc = 0
	p.refreshSight = false

	finalArea, ok := goalArea(p.env, p.goal, a.Area())
	if !ok {
		return p.fail(a, "goal cannot be resolved")
	}
	if eg, ok := p.goal.(EntityGoal); ok {
		p.entityArea, p.entityCell, p.haveEntity = p.env.EntityPosition(eg.Entity)
	}

	if p.route != nil {
		tp, ok := p.route.Current()
		if !ok || p.route.TargetArea != finalArea || tp.Area != a.Area() {
			p.route = nil
		}
	}
	if p.route == nil && finalArea != a.Area() {
		chain := p.router.FindRoute(a, a.Area(), finalArea)
		if chain == nil {
			// No known chain of transitions; retrying cannot help until knowledge changes.
			p.log.Printf("nav: agent %s goal %s unreachable: no known route %s -> %s", p.agentID, p.goal, a.Area(), finalArea)
			p.state = StateFailed
			p.path, p.index = nil, 0
			return false
		}
		p.route = &CrossAreaRoute{Transitions: chain, Final: p.goal, TargetArea: finalArea}
	}

	view, ok := p.env.Area(a.Area())
	if !ok || view.Grid == nil {
		return p.fail(a, "agent area "+a.Area()+" unknown")
	}
	g := view.Grid
	if !view.Resident(p.agentID) {
		g = fogged(view.Grid, a.Cell(), a.PerceptionRadius())
	}

	var tgt target
	if tp, ok := p.route.Current(); ok {
		tgt = target{area: tp.Area, cell: tp.Cell}
	} else {
		tgt, ok = resolve(p.env, p.goal, view.Grid, a.Area(), a.Cell())
		if !ok {
			return p.fail(a, "no reachable cell for goal")
		}
	}

	opts := p.opts
	opts.SoftBlocked = softBlocks(snap, p.agentID, tgt.entity)
	res := search.Find(g, a.Cell(), tgt.cell, opts)
	p.searches++
	p.lastExpansions, p.lastCost = res.Expansions, res.Cost
	if len(res.Path) == 0 {
		return p.fail(a, "no path")
	}
	if len(res.Path) > p.cfg.MaxPathLength {
		return p.fail(a, "path too long")
	}

	p.path = res.Path
	p.index = 0
	p.attempts = 0
	p.stepsSinceSight = 0
	p.state = StateHasPath
	return true
}

func (p *Planner) fail(a Agent, why string) bool {
	p.attempts++
	p.path, p.index = nil, 0
	if p.attempts >= p.cfg.MaxRecalcAttempts {
		p.log.Printf("nav: agent %s goal %s failed after %d attempts at %s %s: %s", p.agentID, p.goal, p.attempts, a.Area(), a.Cell(), why)
		p.state = StateFailed
		return false
	}
	p.state = StatePlanning
	return false
}

// fogged returns a clone of g where every cell outside the circle of radius r
// around center is solid.
func fogged(g grid.Reader, center grid.Cell, r int) grid.Reader {
	if r < 0 {
		r = 0
	}
	c := g.Clone()
	r2 := r * r
	for y := 0; y < c.Height(); y++ {
		for x := 0; x < c.Width(); x++ {
			dx, dy := x-center.X, y-center.Y
			if dx*dx+dy*dy > r2 {
				c.MarkSolid(grid.Cell{X: x, Y: y}, true)
			}
		}
	}
	return c
}

func softBlocks(snap Perception, self, goalEntity string) map[grid.Cell]struct{} {
	if len(snap.Visible) == 0 {
		return nil
	}
	out := make(map[grid.Cell]struct{}, len(snap.Visible))
	for _, s := range snap.Visible {
		if s.ID == self || (goalEntity != "" && s.ID == goalEntity) {
			continue
		}
		out[s.Cell] = struct{}{}
	}
	return out
}

// Advance moves the agent at most one cell along the path.
func (p *Planner) Advance(a Agent, m Mover) StepResult {
	switch p.state {
	case StateNoGoal, StateFailed:
		return StepIdle
	case StateReached:
		p.ClearGoal()
		return StepReached
	case StateTransitionPending:
		return StepTransition
	}

	if p.route == nil && satisfied(p.env, p.goal, a.Area(), a.Cell()) {
		p.ClearGoal()
		return StepReached
	}

	tp, routing := p.route.Current()
	if routing && tp.Area == a.Area() {
		atDoor := p.HasPath() && p.path[p.index] == tp.Cell
		// A solid door tile is never entered; standing next to it is enough.
		if !atDoor && !p.HasPath() && chebyshev(a.Cell(), tp.Cell) <= 1 {
			atDoor = true
		}
		if atDoor {
			p.pending = &tp
			p.state = StateTransitionPending
			return StepTransition
		}
	}

	if !p.HasPath() {
		return StepIdle
	}
	next := p.path[p.index]
	if next == a.Cell() {
		p.index++
		return StepIdle
	}
	if !m.Move(p.agentID, next) {
		p.state = StateBlocked
		return StepBlocked
	}
	p.index++
	p.state = StateHasPath
	p.stepsSinceSight++
	if p.stepsSinceSight >= p.cfg.PerceptionRefreshSteps {
		p.stepsSinceSight = 0
		p.refreshSight = true
	}
	return StepMoved
}

// CompleteTransition is called by the world once it has moved the agent through
// the pending transition. The next compute targets the following transition, or
// the final goal once the chain is done.
func (p *Planner) CompleteTransition() {
	if p.state != StateTransitionPending || p.route == nil {
		return
	}
	p.route.Next++
	p.pending = nil
	if p.route.Next >= len(p.route.Transitions) {
		p.route = nil
	}
	p.path, p.index = nil, 0
	p.attempts = 0
	p.ticksSinceRecalc = 0
	p.state = StatePlanning
}
