package world

import (
	"encoding/json"

	"tilenav.ai/internal/protocol"
)

// ObserverJoinRequest registers a read-only observer session that receives one
// NAV_TICK frame per tick on TickOut. All observer state is maintained by the
// world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte

	// Empty means every area.
	Areas        []string
	IncludePaths bool
}

// ObserverSubscribeRequest updates an existing observer session filter.
type ObserverSubscribeRequest struct {
	SessionID    string
	Areas        []string
	IncludePaths bool
}

type observerClient struct {
	id      string
	tickOut chan []byte

	areas        map[string]bool
	includePaths bool
}

func (c *observerClient) wants(area string) bool {
	return len(c.areas) == 0 || c.areas[area]
}

func areaFilter(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:           req.SessionID,
		tickOut:      req.TickOut,
		areas:        areaFilter(req.Areas),
		includePaths: req.IncludePaths,
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.areas = areaFilter(req.Areas)
	c.includePaths = req.IncludePaths
}

func (w *World) handleObserverLeave(sessionID string) {
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
}

func (w *World) broadcastObservers(nowTick uint64, rec TickLogEntry) {
	for _, c := range w.observers {
		b, err := json.Marshal(w.navTickFor(c, nowTick, rec))
		if err != nil {
			w.log.Printf("observer: encode: %v", err)
			return
		}
		sendLatest(c.tickOut, b)
	}
}

func (w *World) navTickFor(c *observerClient, nowTick uint64, rec TickLogEntry) protocol.NavTickMsg {
	msg := protocol.NavTickMsg{
		Type:            protocol.TypeNavTick,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Agents:          []protocol.AgentNav{},
		Digest:          rec.Digest,
	}
	for _, id := range w.agentIDs {
		a := w.agents[id]
		if !c.wants(a.area) {
			continue
		}
		an := protocol.AgentNav{
			ID:    a.id,
			Area:  a.area,
			X:     a.cell.X,
			Y:     a.cell.Y,
			State: a.planner.State().String(),
			Goal:  a.goal,
		}
		if c.includePaths {
			for _, p := range a.planner.Remaining() {
				an.Remaining = append(an.Remaining, [2]int{p.X, p.Y})
			}
		}
		msg.Agents = append(msg.Agents, an)
	}
	for _, t := range rec.Transitions {
		if c.wants(t.FromArea) || c.wants(t.ToArea) {
			msg.Transitions = append(msg.Transitions, t)
		}
	}
	for _, e := range rec.Edits {
		if c.wants(e.Area) {
			msg.Edits = append(msg.Edits, protocol.EditInfo{Area: e.Area, X: e.X, Y: e.Y, Solid: e.Solid, Weight: e.Weight})
		}
	}
	return msg
}

// sendLatest delivers b, dropping the oldest queued frame when the observer lags.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// Welcome describes the world to a new control client. Areas come from the
// configuration; later edits reach clients through observer frames.
func (w *World) Welcome(sessionID string) protocol.WelcomeMsg {
	msg := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Tick:            w.tick.Load(),
		TickRateHz:      w.tune.TickRateHz,
		Agents:          w.AgentIDs(),
	}
	for _, id := range w.areaIDs {
		spec, _ := w.cfg.AreaByID(id)
		width := 0
		for _, r := range spec.Rows {
			width = max(width, len(r))
		}
		msg.Areas = append(msg.Areas, protocol.AreaInfo{
			ID:     id,
			Width:  width,
			Height: len(spec.Rows),
			Rows:   append([]string(nil), spec.Rows...),
		})
	}
	return msg
}
