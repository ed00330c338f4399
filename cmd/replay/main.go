package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "tilenav.ai/internal/persistence/log"
	"tilenav.ai/internal/persistence/snapshot"
	"tilenav.ai/internal/sim/areas"
	"tilenav.ai/internal/sim/tuning"
	"tilenav.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; replays from tick 0 when empty)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		traceDir   = flag.String("trace", "", "trace dir containing trace-*.jsonl.zst (default <data>/trace)")
		areasPath  = flag.String("areas", "", "path to areas.yaml (built-in map when empty)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (defaults when empty)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	cfg, err := areas.Load(*areasPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load areas:", err)
		os.Exit(1)
	}
	tune := tuning.Defaults()
	if *tuningPath != "" {
		if tune, err = tuning.Load(*tuningPath); err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d run=%s tick=%d areas=%d groups=%d agents=%d\n",
			s.Header.Version, s.Header.RunID, s.Header.Tick, len(s.Areas), len(s.Groups), len(s.Agents))
		tune.TickRateHz = s.TickRate
		tune.MemoryTTLTicks = s.MemoryTTLTicks
		snap = &s
	}

	w, err := world.New(cfg, tune, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			fmt.Fprintln(os.Stderr, "import snapshot:", err)
			os.Exit(1)
		}
	}

	dir := *traceDir
	if dir == "" {
		dir = filepath.Join(*dataDir, "trace")
	}
	files, err := persistlog.ListTraceFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list trace:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no trace files found in", dir)
		os.Exit(1)
	}

	startTick := w.CurrentTick()
	verifyFrom := *fromTick
	if verifyFrom < startTick {
		verifyFrom = startTick
	}

	r := &replayer{w: w, startTick: startTick, verifyFrom: verifyFrom, toTick: *toTick}
	for _, path := range files {
		if err := persistlog.ReadTrace(path, r.apply); err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
		if r.done {
			break
		}
	}
	fmt.Printf("replay ok: checked=%d ticks (from tick=%d)\n", r.checked, startTick)
}

type replayer struct {
	w          *world.World
	startTick  uint64
	verifyFrom uint64
	toTick     uint64

	checked uint64
	done    bool
}

func (r *replayer) apply(entry world.TickLogEntry) error {
	if entry.Tick < r.startTick {
		return nil
	}
	if r.toTick != 0 && entry.Tick > r.toTick {
		r.done = true
		return persistlog.ErrStop
	}
	if entry.Tick != r.w.CurrentTick() {
		return fmt.Errorf("tick mismatch: want=%d got=%d", r.w.CurrentTick(), entry.Tick)
	}

	tick, gotDigest := r.w.StepOnce(entry.Goals, entry.Edits)
	if tick != entry.Tick {
		return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
	}
	if tick >= r.verifyFrom {
		r.checked++
		if gotDigest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
		}
	}
	return nil
}
