// Package structures describes buildings and the functional spots inside them.
package structures

import (
	"sort"

	"tilenav.ai/internal/sim/grid"
)

// Spot is a named functional sub-location (a counter, a bed, a forge).
type Spot struct {
	ID   string    `json:"id"`
	Kind string    `json:"kind"`
	Cell grid.Cell `json:"cell"`
}

// Building occupies the inclusive rectangle [Min, Max] of one area. Its walls are
// whatever the area grid marks solid inside that rectangle.
type Building struct {
	ID         string          `json:"id"`
	Area       string          `json:"area"`
	Min        grid.Cell       `json:"min"`
	Max        grid.Cell       `json:"max"`
	Facilities map[string]Spot `json:"facilities,omitempty"`
}

func (b Building) Contains(c grid.Cell) bool {
	return c.X >= b.Min.X && c.X <= b.Max.X && c.Y >= b.Min.Y && c.Y <= b.Max.Y
}

// Interior lists the walkable cells inside the rectangle, row-major.
func (b Building) Interior(g grid.Reader) []grid.Cell {
	var out []grid.Cell
	for y := b.Min.Y; y <= b.Max.Y; y++ {
		for x := b.Min.X; x <= b.Max.X; x++ {
			c := grid.Cell{X: x, Y: y}
			if g.InBounds(c) && !g.Solid(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

// Perimeter lists the walkable cells on the one-cell ring just outside the
// rectangle, row-major.
func (b Building) Perimeter(g grid.Reader) []grid.Cell {
	var out []grid.Cell
	for y := b.Min.Y - 1; y <= b.Max.Y+1; y++ {
		for x := b.Min.X - 1; x <= b.Max.X+1; x++ {
			c := grid.Cell{X: x, Y: y}
			if b.Contains(c) {
				continue
			}
			if g.InBounds(c) && !g.Solid(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

// FacilityApproach lists the walkable 8-neighbours of a facility spot. ok is false
// for an unknown facility id.
func (b Building) FacilityApproach(g grid.Reader, id string) (cells []grid.Cell, ok bool) {
	spot, ok := b.Facilities[id]
	if !ok {
		return nil, false
	}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			c := spot.Cell.Add(dx, dy)
			if g.InBounds(c) && !g.Solid(c) {
				cells = append(cells, c)
			}
		}
	}
	return cells, true
}

// SortedFacilities returns the spots ordered by id.
func (b Building) SortedFacilities() []Spot {
	out := make([]Spot, 0, len(b.Facilities))
	for _, s := range b.Facilities {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
