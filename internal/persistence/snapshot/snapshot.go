package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"tilenav.ai/internal/protocol"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/nav/planner"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 captures everything a world needs to resume at Header.Tick+1.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate       int `json:"tick_rate_hz"`
	MemoryTTLTicks int `json:"memory_ttl_ticks"`

	Areas  []AreaV1  `json:"areas"`
	Groups []GroupV1 `json:"groups"`
	Agents []AgentV1 `json:"agents"`
}

// AreaV1 stores the live grid, edits included, row-major.
type AreaV1 struct {
	ID     string    `json:"id"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Solid  []bool    `json:"solid"`
	Weight []float64 `json:"weight"`
}

type GroupV1 struct {
	ID          string                      `json:"id"`
	Transitions []knowledge.TransitionPoint `json:"transitions"`
	Facilities  []knowledge.Facility        `json:"facilities"`
}

type AgentV1 struct {
	ID               string `json:"id"`
	Area             string `json:"area"`
	X                int    `json:"x"`
	Y                int    `json:"y"`
	PerceptionRadius int    `json:"perception_radius"`
	Group            string `json:"group,omitempty"`

	Goal protocol.GoalSpec `json:"goal"`
	Nav  planner.Snapshot  `json:"nav"`

	Transitions []knowledge.RememberedTransition `json:"transitions,omitempty"`
	Facilities  []knowledge.RememberedFacility   `json:"facilities,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header is repeated inside the gob payload.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// Path is the conventional location of the snapshot for tick under dir.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}
