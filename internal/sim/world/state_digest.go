package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"tilenav.ai/internal/sim/grid"
)

// stateDigest hashes everything that determines future ticks: grids, agent
// positions and planner state. Two worlds fed the same requests agree on it.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	for _, id := range w.areaIDs {
		ar := w.areas[id]
		h.Write([]byte(id))
		digestWriteU64(h, &tmp, uint64(ar.grid.Width()))
		digestWriteU64(h, &tmp, uint64(ar.grid.Height()))
		for y := 0; y < ar.grid.Height(); y++ {
			for x := 0; x < ar.grid.Width(); x++ {
				c := grid.Cell{X: x, Y: y}
				h.Write([]byte{boolByte(ar.grid.Solid(c))})
				digestWriteU64(h, &tmp, math.Float64bits(ar.grid.Weight(c)))
			}
		}
	}
	for _, id := range w.agentIDs {
		a := w.agents[id]
		h.Write([]byte(a.id))
		h.Write([]byte(a.area))
		digestWriteI64(h, &tmp, int64(a.cell.X))
		digestWriteI64(h, &tmp, int64(a.cell.Y))
		h.Write([]byte{byte(a.planner.State())})
		h.Write([]byte(a.goal.Kind))
		for _, c := range a.planner.Remaining() {
			digestWriteI64(h, &tmp, int64(c.X))
			digestWriteI64(h, &tmp, int64(c.Y))
		}
		ts, fs := a.memory.Export()
		for _, e := range ts {
			h.Write([]byte(e.Point.ID))
			h.Write([]byte{boolByte(e.Point.Resolved())})
			digestWriteU64(h, &tmp, e.Seen)
		}
		for _, e := range fs {
			h.Write([]byte(e.Facility.ID))
			digestWriteU64(h, &tmp, e.Seen)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
