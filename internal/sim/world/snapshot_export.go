package world

import (
	"fmt"
	"sort"

	"tilenav.ai/internal/persistence/snapshot"
	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/nav/planner"
)

// ExportSnapshot captures the state after tick nowTick has been stepped. It must
// run on the world goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			RunID:   w.runID,
			Tick:    nowTick,
		},
		TickRate:       w.tune.TickRateHz,
		MemoryTTLTicks: w.tune.MemoryTTLTicks,
	}
	for _, id := range w.areaIDs {
		ar := w.areas[id]
		solid, weight := ar.grid.Cells()
		s.Areas = append(s.Areas, snapshot.AreaV1{
			ID:     id,
			Width:  ar.grid.Width(),
			Height: ar.grid.Height(),
			Solid:  solid,
			Weight: weight,
		})
	}
	for _, id := range w.groupIDs {
		sh := w.groups[id]
		s.Groups = append(s.Groups, snapshot.GroupV1{
			ID:          id,
			Transitions: sh.TransitionPoints(),
			Facilities:  sh.Facilities(),
		})
	}
	for _, id := range w.agentIDs {
		a := w.agents[id]
		ts, fs := a.memory.Export()
		s.Agents = append(s.Agents, snapshot.AgentV1{
			ID:               a.id,
			Area:             a.area,
			X:                a.cell.X,
			Y:                a.cell.Y,
			PerceptionRadius: a.radius,
			Group:            a.group,
			Goal:             a.goal,
			Nav:              a.planner.Snapshot(),
			Transitions:      ts,
			Facilities:       fs,
		})
	}
	return s
}

// ImportSnapshot replaces the world state with s. The world must have been built
// from the same areas configuration; the next tick stepped is s.Header.Tick+1.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	if len(s.Areas) != len(w.areas) {
		return fmt.Errorf("snapshot has %d areas, world has %d", len(s.Areas), len(w.areas))
	}
	grids := make(map[string]*grid.Grid, len(s.Areas))
	for _, av := range s.Areas {
		if w.areas[av.ID] == nil {
			return fmt.Errorf("snapshot area %q not configured", av.ID)
		}
		g, err := grid.FromCells(av.Width, av.Height, av.Solid, av.Weight)
		if err != nil {
			return fmt.Errorf("area %s: %w", av.ID, err)
		}
		grids[av.ID] = g
	}
	for _, av := range s.Agents {
		if w.agents[av.ID] == nil {
			return fmt.Errorf("snapshot agent %q not configured", av.ID)
		}
		if grids[av.Area] == nil {
			return fmt.Errorf("snapshot agent %s in unknown area %q", av.ID, av.Area)
		}
	}

	for id, g := range grids {
		ar := w.areas[id]
		ar.grid = g
		ar.writer = grid.NewWriter(g, w.background.Load, w.log)
	}
	for _, gv := range s.Groups {
		sh := knowledge.NewShared()
		for _, tp := range gv.Transitions {
			sh.AddTransition(tp)
		}
		for _, f := range gv.Facilities {
			sh.AddFacility(f)
		}
		if _, ok := w.groups[gv.ID]; !ok {
			w.groupIDs = append(w.groupIDs, gv.ID)
		}
		w.groups[gv.ID] = sh
	}
	sort.Strings(w.groupIDs)
	for _, av := range s.Agents {
		a := w.agents[av.ID]
		a.area = av.Area
		a.cell = grid.Cell{X: av.X, Y: av.Y}
		a.radius = av.PerceptionRadius
		a.group = av.Group
		a.shared = w.groups[av.Group]
		a.memory.Restore(av.Transitions, av.Facilities)

		var g planner.Goal
		if !av.Goal.IsZero() {
			var err error
			if g, err = goalFromSpec(av.Goal); err != nil {
				return fmt.Errorf("agent %s goal: %w", av.ID, err)
			}
		}
		a.goal = av.Goal
		a.planner.Restore(g, av.Nav)
	}

	w.runID = s.Header.RunID
	w.tick.Store(s.Header.Tick + 1)
	return nil
}
