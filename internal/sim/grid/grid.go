package grid

import "fmt"

// Cell is a tile coordinate inside one area.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Add returns c offset by (dx, dy).
func (c Cell) Add(dx, dy int) Cell { return Cell{X: c.X + dx, Y: c.Y + dy} }

// Reader is the read-only view of a walkability grid. Background code only ever
// receives a Reader; mutation goes through Writer.
type Reader interface {
	Width() int
	Height() int
	InBounds(c Cell) bool
	Solid(c Cell) bool
	Weight(c Cell) float64
	Clone() *Scratch
}

// Grid is a fixed-size field of cells with a solid flag and a traversal weight scale.
type Grid struct {
	w, h   int
	solid  []bool
	weight []float64
}

// New returns an open grid with every weight set to 1.
func New(width, height int) *Grid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	g := &Grid{
		w:      width,
		h:      height,
		solid:  make([]bool, width*height),
		weight: make([]float64, width*height),
	}
	for i := range g.weight {
		g.weight[i] = 1
	}
	return g
}

// Parse builds a grid from ASCII rows: '#' solid, '.' open, '~' weight 2, '^' weight 3.
// Digits 1-9 set the weight directly. Rows shorter than the widest row are padded solid.
func Parse(rows []string) (*Grid, error) {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	g := New(width, len(rows))
	for y, r := range rows {
		for x := 0; x < width; x++ {
			i := y*width + x
			if x >= len(r) {
				g.solid[i] = true
				continue
			}
			switch ch := r[x]; {
			case ch == '#':
				g.solid[i] = true
			case ch == '.' || ch == ' ':
			case ch == '~':
				g.weight[i] = 2
			case ch == '^':
				g.weight[i] = 3
			case ch >= '1' && ch <= '9':
				g.weight[i] = float64(ch - '0')
			default:
				return nil, fmt.Errorf("row %d col %d: unknown tile %q", y, x, ch)
			}
		}
	}
	return g, nil
}

func (g *Grid) Width() int  { return g.w }
func (g *Grid) Height() int { return g.h }

func (g *Grid) InBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.w && c.Y < g.h
}

// Solid reports whether c blocks movement. Out-of-bounds cells are solid.
func (g *Grid) Solid(c Cell) bool {
	if !g.InBounds(c) {
		return true
	}
	return g.solid[c.Y*g.w+c.X]
}

// Weight returns the traversal weight of c, 0 when out of bounds.
func (g *Grid) Weight(c Cell) float64 {
	if !g.InBounds(c) {
		return 0
	}
	return g.weight[c.Y*g.w+c.X]
}

// Clone returns an independent copy that the caller may edit. O(width*height).
func (g *Grid) Clone() *Scratch {
	out := &Scratch{Grid: Grid{
		w:      g.w,
		h:      g.h,
		solid:  make([]bool, len(g.solid)),
		weight: make([]float64, len(g.weight)),
	}}
	copy(out.solid, g.solid)
	copy(out.weight, g.weight)
	return out
}

func (g *Grid) markSolid(c Cell, solid bool) {
	if g.InBounds(c) {
		g.solid[c.Y*g.w+c.X] = solid
	}
}

// Scratch is a private copy of a grid. Shared area grids are never Scratch, so
// holding a Reader never grants write access; those go through a Writer.
type Scratch struct {
	Grid
}

func (s *Scratch) MarkSolid(c Cell, solid bool) { s.markSolid(c, solid) }

// Rows renders the grid back into the Parse format. Weights that are not one of the
// named tiles are written as the nearest digit.
func (g *Grid) Rows() []string {
	out := make([]string, g.h)
	buf := make([]byte, g.w)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			switch w := g.weight[i]; {
			case g.solid[i]:
				buf[x] = '#'
			case w <= 1:
				buf[x] = '.'
			case w == 2:
				buf[x] = '~'
			case w == 3:
				buf[x] = '^'
			case w >= 9:
				buf[x] = '9'
			default:
				buf[x] = byte('0' + int(w+0.5))
			}
		}
		out[y] = string(buf)
	}
	return out
}

// Cells returns copies of the raw solid flags and weights, row-major.
func (g *Grid) Cells() (solid []bool, weight []float64) {
	return append([]bool(nil), g.solid...), append([]float64(nil), g.weight...)
}

// FromCells rebuilds a grid from the output of Cells.
func FromCells(width, height int, solid []bool, weight []float64) (*Grid, error) {
	if width < 0 || height < 0 || len(solid) != width*height || len(weight) != width*height {
		return nil, fmt.Errorf("grid: %dx%d does not match %d solid / %d weight cells", width, height, len(solid), len(weight))
	}
	return &Grid{
		w:      width,
		h:      height,
		solid:  append([]bool(nil), solid...),
		weight: append([]float64(nil), weight...),
	}, nil
}
