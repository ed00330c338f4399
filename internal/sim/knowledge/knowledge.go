// Package knowledge holds what an agent knows about connectivity and facilities.
// Navigation only ever consults the sources an agent holds; there is no global
// registry here.
package knowledge

import (
	"sort"
	"sync"

	"tilenav.ai/internal/sim/grid"
)

type SourceKind uint8

const (
	// Durable is shared knowledge that does not fade (settlement maps, faction lore).
	Durable SourceKind = iota + 1
	// Personal is the agent's own, decaying memory.
	Personal
)

func (k SourceKind) String() string {
	switch k {
	case Durable:
		return "durable"
	case Personal:
		return "personal"
	}
	return "unknown"
}

// Endpoint is a cell in a named area.
type Endpoint struct {
	Area string    `json:"area"`
	Cell grid.Cell `json:"cell"`
}

// TransitionPoint is a cell in Area linked to a cell in another area. Link is nil
// when the agent knows the point exists but not where it leads.
type TransitionPoint struct {
	ID   string    `json:"id"`
	Area string    `json:"area"`
	Cell grid.Cell `json:"cell"`
	Link *Endpoint `json:"link,omitempty"`
}

// Resolved reports whether the point can be used as a route edge.
func (tp TransitionPoint) Resolved() bool {
	return tp.Link != nil && tp.Link.Area != "" && tp.Link.Area != tp.Area
}

type Facility struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Building string    `json:"building,omitempty"`
	Area     string    `json:"area"`
	Cell     grid.Cell `json:"cell"`
}

// Source is one body of knowledge. Implementations return copies and must be safe
// for concurrent readers; the compute phase reads sources of many agents at once.
type Source interface {
	Kind() SourceKind
	TransitionPoints() []TransitionPoint
	Facilities() []Facility
}

// Ordered returns the non-nil sources with durable ones first, keeping the
// relative order inside each kind.
func Ordered(list ...Source) []Source {
	out := make([]Source, 0, len(list))
	for _, s := range list {
		if s != nil && s.Kind() == Durable {
			out = append(out, s)
		}
	}
	for _, s := range list {
		if s != nil && s.Kind() != Durable {
			out = append(out, s)
		}
	}
	return out
}

// Shared is durable knowledge, typically held by every resident of a settlement.
type Shared struct {
	mu          sync.RWMutex
	transitions map[string]TransitionPoint
	facilities  map[string]Facility
}

func NewShared() *Shared {
	return &Shared{
		transitions: map[string]TransitionPoint{},
		facilities:  map[string]Facility{},
	}
}

func (s *Shared) Kind() SourceKind { return Durable }

func (s *Shared) AddTransition(tp TransitionPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions[tp.ID] = cloneTP(tp)
}

func (s *Shared) ForgetTransition(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transitions, id)
}

func (s *Shared) AddFacility(f Facility) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facilities[f.ID] = f
}

func (s *Shared) ForgetFacility(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.facilities, id)
}

func (s *Shared) TransitionPoints() []TransitionPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TransitionPoint, 0, len(s.transitions))
	for _, tp := range s.transitions {
		out = append(out, cloneTP(tp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Shared) Facilities() []Facility {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneTP(tp TransitionPoint) TransitionPoint {
	if tp.Link != nil {
		l := *tp.Link
		tp.Link = &l
	}
	return tp
}
