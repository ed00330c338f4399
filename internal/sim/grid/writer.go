package grid

import (
	"errors"
	"io"
	"log"
)

var ErrBackgroundMutation = errors.New("grid mutation attempted from background compute phase")

// Writer is the foreground-only capability to mutate a shared area grid. Only the
// world loop holds one; the planner and search packages never see it.
type Writer struct {
	g          *Grid
	background func() bool
	log        *log.Logger
}

// NewWriter wraps g. background reports whether the background compute phase is
// currently running; it may be nil when no concurrent phase exists (tests, tools).
func NewWriter(g *Grid, background func() bool, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Writer{g: g, background: background, log: logger}
}

// Grid returns the read view of the wrapped grid.
func (w *Writer) Grid() Reader { return w.g }

func (w *Writer) guard(op string, c Cell) error {
	if w.background != nil && w.background() {
		w.log.Printf("nav: CONTRACT VIOLATION %s %s during background compute phase; ignored", op, c)
		return ErrBackgroundMutation
	}
	return nil
}

func (w *Writer) SetSolid(c Cell, solid bool) error {
	if err := w.guard("set_solid", c); err != nil {
		return err
	}
	w.g.markSolid(c, solid)
	return nil
}

// SetWeight clamps negative weights to zero.
func (w *Writer) SetWeight(c Cell, weight float64) error {
	if err := w.guard("set_weight", c); err != nil {
		return err
	}
	if !w.g.InBounds(c) {
		return nil
	}
	if weight < 0 {
		weight = 0
	}
	w.g.weight[c.Y*w.g.w+c.X] = weight
	return nil
}
