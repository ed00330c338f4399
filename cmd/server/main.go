package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tilenav.ai/internal/persistence/knowledgedb"
	persistlog "tilenav.ai/internal/persistence/log"
	"tilenav.ai/internal/persistence/snapshot"
	"tilenav.ai/internal/sim/areas"
	"tilenav.ai/internal/sim/tuning"
	"tilenav.ai/internal/sim/world"
	"tilenav.ai/internal/transport/observer"
	"tilenav.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		areasPath  = flag.String("areas", "./configs/areas.yaml", "path to areas.yaml (built-in town/forest map when missing)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the knowledge db (shared knowledge + nav event index)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	_ = os.MkdirAll(*dataDir, 0o755)

	cfg, err := loadAreas(*areasPath, logger)
	if err != nil {
		logger.Fatalf("load areas: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(*dataDir)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	w, err := world.New(cfg, tune, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d run=%s", filepath.Base(snapshotToLoad), w.CurrentTick(), w.RunID())
	}

	// Optional: knowledge db (does not affect sim determinism once the run starts).
	var db *knowledgedb.DB
	if !*disableDB {
		db, err = knowledgedb.OpenSQLite(filepath.Join(*dataDir, "index", "nav.sqlite"), w.RunID())
		if err != nil {
			logger.Fatalf("open knowledge db: %v", err)
		}
		defer db.Close()
		if snapshotToLoad == "" {
			loadSharedKnowledge(w, db, logger)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	traceLog := persistlog.NewTraceLogger(*dataDir)
	navLog := persistlog.NewNavEventLogger(*dataDir)
	defer traceLog.Close()
	defer navLog.Close()
	w.SetTickLogger(multiTickLogger{a: traceLog, b: dbTickLogger(db)})
	w.SetNavEventSink(multiNavSink{a: navLog, b: dbNavSink(db)})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.Path(*dataDir, snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if db != nil {
					db.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP tilenav_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE tilenav_world_tick gauge\n")
		fmt.Fprintf(rw, "tilenav_world_tick %d\n", w.CurrentTick())

		fmt.Fprintf(rw, "# HELP tilenav_world_agents Configured agents.\n")
		fmt.Fprintf(rw, "# TYPE tilenav_world_agents gauge\n")
		fmt.Fprintf(rw, "tilenav_world_agents %d\n", len(w.AgentIDs()))

		fmt.Fprintf(rw, "# HELP tilenav_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE tilenav_world_step_ms gauge\n")
		fmt.Fprintf(rw, "tilenav_world_step_ms %.3f\n", float64(w.LastStep().Microseconds())/1000)

		if db != nil {
			st := db.Stats()
			fmt.Fprintf(rw, "# HELP tilenav_db_queue_depth Knowledge db writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE tilenav_db_queue_depth gauge\n")
			fmt.Fprintf(rw, "tilenav_db_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP tilenav_db_dropped_total Records dropped because the writer fell behind.\n")
			fmt.Fprintf(rw, "# TYPE tilenav_db_dropped_total counter\n")
			fmt.Fprintf(rw, "tilenav_db_dropped_total %d\n", st.DroppedTotal)
		}
		fmt.Fprintf(rw, "# HELP tilenav_navlog_failed_total Nav events that could not be written.\n")
		fmt.Fprintf(rw, "# TYPE tilenav_navlog_failed_total counter\n")
		fmt.Fprintf(rw, "tilenav_navlog_failed_total %d\n", navLog.Failed())
	})

	obsSrv := observer.NewServer(w, logger)
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	if envBool("TN_ENABLE_ADMIN_HTTP", true) {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			st, err := w.RequestState(ctx2)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(st)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	} else {
		logger.Printf("admin endpoints disabled (TN_ENABLE_ADMIN_HTTP=false)")
	}

	if envBool("TN_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (TN_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (run=%s tick=%d)", *addr, w.RunID(), w.CurrentTick())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The world goroutine owns the shared stores until Run returns.
	<-worldDone
	if db != nil {
		saveSharedKnowledge(w, db, logger)
	}
}

func loadAreas(path string, logger *log.Logger) (areas.Config, error) {
	cfg, err := areas.Load(path)
	if err != nil && os.IsNotExist(err) {
		logger.Printf("areas not found (%s); using built-in map", path)
		return areas.Load("")
	}
	return cfg, err
}

func loadSharedKnowledge(w *world.World, db *knowledgedb.DB, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, g := range w.GroupIDs() {
		sh, _ := w.SharedKnowledge(g)
		n, err := db.LoadShared(ctx, g, sh)
		if err != nil {
			logger.Printf("knowledge db: load %s: %v", g, err)
			continue
		}
		if n > 0 {
			logger.Printf("knowledge db: group %s restored %d entries", g, n)
		}
	}
}

func saveSharedKnowledge(w *world.World, db *knowledgedb.DB, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, g := range w.GroupIDs() {
		sh, _ := w.SharedKnowledge(g)
		if err := db.SaveShared(ctx, g, sh); err != nil {
			logger.Printf("knowledge db: save %s: %v", g, err)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(dataDir string) string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// dbTickLogger and dbNavSink avoid storing a typed nil *DB in an interface.
func dbTickLogger(db *knowledgedb.DB) world.TickLogger {
	if db == nil {
		return nil
	}
	return db
}

func dbNavSink(db *knowledgedb.DB) world.NavEventSink {
	if db == nil {
		return nil
	}
	return db
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiNavSink struct {
	a world.NavEventSink
	b world.NavEventSink
}

func (m multiNavSink) RecordNavEvent(ev world.NavEvent) {
	if m.a != nil {
		m.a.RecordNavEvent(ev)
	}
	if m.b != nil {
		m.b.RecordNavEvent(ev)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
