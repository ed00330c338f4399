package knowledge

import (
	"sort"
	"sync"
)

type memTransition struct {
	tp   TransitionPoint
	seen uint64
}

type memFacility struct {
	f    Facility
	seen uint64
}

// Memory is an agent's personal, decaying knowledge. Entries are refreshed whenever
// they are observed again and dropped by Decay once older than the ttl.
type Memory struct {
	mu          sync.RWMutex
	transitions map[string]memTransition
	facilities  map[string]memFacility
}

func NewMemory() *Memory {
	return &Memory{
		transitions: map[string]memTransition{},
		facilities:  map[string]memFacility{},
	}
}

func (m *Memory) Kind() SourceKind { return Personal }

// ObserveTransition records tp at tick now. A resolved link already remembered is
// kept when the new observation does not carry one.
func (m *Memory) ObserveTransition(tp TransitionPoint, now uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.transitions[tp.ID]; ok && tp.Link == nil {
		tp.Link = old.tp.Link
	}
	m.transitions[tp.ID] = memTransition{tp: cloneTP(tp), seen: now}
}

func (m *Memory) ObserveFacility(f Facility, now uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facilities[f.ID] = memFacility{f: f, seen: now}
}

// KnowsTransition reports whether id is remembered and whether its link is known.
func (m *Memory) KnowsTransition(id string) (known, resolved bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.transitions[id]
	if !ok {
		return false, false
	}
	return true, e.tp.Resolved()
}

// Decay forgets every entry last seen more than ttl ticks before now. ttl == 0
// disables decay. Returns the number of entries dropped.
func (m *Memory) Decay(now, ttl uint64) int {
	if ttl == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for id, e := range m.transitions {
		if now > e.seen && now-e.seen > ttl {
			delete(m.transitions, id)
			dropped++
		}
	}
	for id, e := range m.facilities {
		if now > e.seen && now-e.seen > ttl {
			delete(m.facilities, id)
			dropped++
		}
	}
	return dropped
}

// Clear forgets everything.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = map[string]memTransition{}
	m.facilities = map[string]memFacility{}
}

func (m *Memory) TransitionPoints() []TransitionPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TransitionPoint, 0, len(m.transitions))
	for _, e := range m.transitions {
		out = append(out, cloneTP(e.tp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) Facilities() []Facility {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Facility, 0, len(m.facilities))
	for _, e := range m.facilities {
		out = append(out, e.f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RememberedTransition is a memory entry together with the tick it was last seen.
type RememberedTransition struct {
	Point TransitionPoint `json:"point"`
	Seen  uint64          `json:"seen"`
}

type RememberedFacility struct {
	Facility Facility `json:"facility"`
	Seen     uint64   `json:"seen"`
}

// Export returns every entry with its last-seen tick, ordered by id.
func (m *Memory) Export() ([]RememberedTransition, []RememberedFacility) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts := make([]RememberedTransition, 0, len(m.transitions))
	for _, e := range m.transitions {
		ts = append(ts, RememberedTransition{Point: cloneTP(e.tp), Seen: e.seen})
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Point.ID < ts[j].Point.ID })
	fs := make([]RememberedFacility, 0, len(m.facilities))
	for _, e := range m.facilities {
		fs = append(fs, RememberedFacility{Facility: e.f, Seen: e.seen})
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i].Facility.ID < fs[j].Facility.ID })
	return ts, fs
}

// Restore replaces the memory contents with previously exported entries.
func (m *Memory) Restore(ts []RememberedTransition, fs []RememberedFacility) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = make(map[string]memTransition, len(ts))
	for _, e := range ts {
		m.transitions[e.Point.ID] = memTransition{tp: cloneTP(e.Point), seen: e.Seen}
	}
	m.facilities = make(map[string]memFacility, len(fs))
	for _, e := range fs {
		m.facilities[e.Facility.ID] = memFacility{f: e.Facility, seen: e.Seen}
	}
}
