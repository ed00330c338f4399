package world

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tilenav.ai/internal/persistence/snapshot"
	"tilenav.ai/internal/protocol"
	"tilenav.ai/internal/sim/areas"
	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/nav/arearoute"
	"tilenav.ai/internal/sim/nav/planner"
	"tilenav.ai/internal/sim/structures"
	"tilenav.ai/internal/sim/tuning"
)

// GoalRequest sets an agent's goal at the start of the next tick. An empty goal
// clears it.
type GoalRequest struct {
	AgentID string            `json:"agent_id"`
	Goal    protocol.GoalSpec `json:"goal"`
}

// EditRequest changes one grid cell after the follow phase of the next tick.
type EditRequest struct {
	Area   string  `json:"area"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Solid  bool    `json:"solid"`
	Weight float64 `json:"weight,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick        uint64                    `json:"tick"`
	Goals       []GoalRequest             `json:"goals,omitempty"`
	Edits       []EditRequest             `json:"edits,omitempty"`
	Transitions []protocol.TransitionInfo `json:"transitions,omitempty"`
	Digest      string                    `json:"digest"`
}

// Navigation milestones reported to a NavEventSink.
const (
	EventPathOK     = "PATH_OK"
	EventPathFail   = "PATH_FAIL"
	EventGoalFailed = "GOAL_FAILED"
	EventTransition = "TRANSITION"
	EventReached    = "REACHED"
)

type NavEvent struct {
	Tick    uint64 `json:"tick"`
	AgentID string `json:"agent_id"`
	Kind    string `json:"kind"`
	Area    string `json:"area"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Detail  string `json:"detail,omitempty"`
}

// NavEventSink must not block the tick loop.
type NavEventSink interface {
	RecordNavEvent(ev NavEvent)
}

type areaState struct {
	id        string
	grid      *grid.Grid
	writer    *grid.Writer
	residents map[string]bool
}

type World struct {
	cfg   areas.Config
	tune  tuning.Tuning
	log   *log.Logger
	runID string

	tick atomic.Uint64
	// stepNanos is the duration of the last tick, for metrics.
	stepNanos atomic.Int64
	// background is set while planners compute; grid writers refuse to mutate.
	background atomic.Bool

	areas             map[string]*areaState
	areaIDs           []string
	transitions       map[string]knowledge.TransitionPoint
	transitionsByArea map[string][]knowledge.TransitionPoint
	facilitiesByArea  map[string][]knowledge.Facility
	buildings         map[string]structures.Building
	groups            map[string]*knowledge.Shared
	groupIDs          []string
	agents            map[string]*Agent
	agentIDs          []string
	router            *arearoute.Router

	// Inbound requests (processed on the world goroutine).
	goals         chan GoalRequest
	edits         chan EditRequest
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	admin         chan adminReq
	stop          chan struct{}

	observers map[string]*observerClient

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	navSink      NavEventSink
	snapshotSink chan<- snapshot.SnapshotV1
}

func New(cfg areas.Config, tune tuning.Tuning, logger *log.Logger) (*World, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("areas: %w", err)
	}
	tune.Normalize()
	if err := tune.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}

	w := &World{
		cfg:               cfg,
		tune:              tune,
		log:               logger,
		runID:             uuid.NewString(),
		areas:             map[string]*areaState{},
		transitions:       map[string]knowledge.TransitionPoint{},
		transitionsByArea: map[string][]knowledge.TransitionPoint{},
		facilitiesByArea:  map[string][]knowledge.Facility{},
		buildings:         cfg.StructureSet(),
		groups:            map[string]*knowledge.Shared{},
		agents:            map[string]*Agent{},
		router:            arearoute.New(tune.Nav),
		goals:             make(chan GoalRequest, 1024),
		edits:             make(chan EditRequest, 1024),
		observerJoin:      make(chan ObserverJoinRequest, 64),
		observerSub:       make(chan ObserverSubscribeRequest, 64),
		observerLeave:     make(chan string, 64),
		admin:             make(chan adminReq, 8),
		stop:              make(chan struct{}),
		observers:         map[string]*observerClient{},
	}

	for _, spec := range cfg.Areas {
		g, err := spec.Grid()
		if err != nil {
			return nil, fmt.Errorf("area %s: %w", spec.ID, err)
		}
		res := map[string]bool{}
		for _, id := range spec.Residents {
			res[id] = true
		}
		w.areas[spec.ID] = &areaState{
			id:        spec.ID,
			grid:      g,
			writer:    grid.NewWriter(g, w.background.Load, logger),
			residents: res,
		}
		w.areaIDs = append(w.areaIDs, spec.ID)
	}
	sort.Strings(w.areaIDs)

	for _, t := range cfg.Transitions {
		tp := t.TransitionPoint()
		w.transitions[tp.ID] = tp
		w.transitionsByArea[tp.Area] = append(w.transitionsByArea[tp.Area], tp)
	}
	for _, f := range cfg.Facilities {
		fac, _ := cfg.Facility(f.ID)
		w.facilitiesByArea[fac.Area] = append(w.facilitiesByArea[fac.Area], fac)
	}

	for _, gs := range cfg.Groups {
		shared := knowledge.NewShared()
		for _, id := range gs.Transitions {
			shared.AddTransition(w.transitions[id])
		}
		for _, id := range gs.Facilities {
			if f, ok := cfg.Facility(id); ok {
				shared.AddFacility(f)
			}
		}
		w.groups[gs.ID] = shared
		w.groupIDs = append(w.groupIDs, gs.ID)
	}
	sort.Strings(w.groupIDs)

	for _, as := range cfg.Agents {
		a := &Agent{
			id:     as.ID,
			area:   as.Area,
			cell:   grid.Cell{X: as.X, Y: as.Y},
			radius: as.PerceptionRadius,
			group:  as.Group,
			shared: w.groups[as.Group],
			memory: knowledge.NewMemory(),
		}
		for _, id := range as.KnowsTransitions {
			a.memory.ObserveTransition(w.transitions[id], 0)
		}
		for _, id := range as.KnowsFacilities {
			if f, ok := cfg.Facility(id); ok {
				a.memory.ObserveFacility(f, 0)
			}
		}
		a.planner = planner.New(as.ID, tune.Nav, w, w.router, logger)
		w.agents[as.ID] = a
		w.agentIDs = append(w.agentIDs, as.ID)
	}
	sort.Strings(w.agentIDs)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetNavEventSink(s NavEventSink)                { w.navSink = s }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Goals() chan<- GoalRequest                          { return w.goals }
func (w *World) Edits() chan<- EditRequest                          { return w.edits }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) CurrentTick() uint64     { return w.tick.Load() }
func (w *World) LastStep() time.Duration { return time.Duration(w.stepNanos.Load()) }
func (w *World) RunID() string           { return w.runID }
func (w *World) Config() areas.Config    { return w.cfg }
func (w *World) Tuning() tuning.Tuning   { return w.tune }

// AgentIDs returns the configured agents in sorted order.
func (w *World) AgentIDs() []string { return append([]string(nil), w.agentIDs...) }

// GroupIDs returns the shared-knowledge groups in sorted order.
func (w *World) GroupIDs() []string { return append([]string(nil), w.groupIDs...) }

// SharedKnowledge returns a group's durable knowledge store.
func (w *World) SharedKnowledge(group string) (*knowledge.Shared, bool) {
	s, ok := w.groups[group]
	return s, ok
}

func (w *World) HasArea(id string) bool {
	_, ok := w.areas[id]
	return ok
}

func (w *World) HasAgent(id string) bool {
	_, ok := w.agents[id]
	return ok
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingGoals []GoalRequest
	var pendingEdits []EditRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.goals:
			pendingGoals = append(pendingGoals, req)
		case req := <-w.edits:
			pendingEdits = append(pendingEdits, req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			w.handleAdmin(req)
		case <-ticker.C:
			start := time.Now()
			w.step(pendingGoals, pendingEdits)
			w.stepNanos.Store(int64(time.Since(start)))
			pendingGoals = pendingGoals[:0]
			pendingEdits = pendingEdits[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as
// Run. It is intended for deterministic replays and tests.
func (w *World) StepOnce(goals []GoalRequest, edits []EditRequest) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.step(goals, edits)
	return tick, digest
}
