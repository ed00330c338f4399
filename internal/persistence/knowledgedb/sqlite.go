package knowledgedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tilenav.ai/internal/persistence/snapshot"
	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/world"
)

// ErrClosed is returned by synchronous calls after Close.
var ErrClosed = errors.New("knowledgedb: closed")

// DB persists group knowledge between runs and indexes navigation events, ticks
// and snapshots for later queries. Event writes are queued and committed in batches
// by a single writer goroutine; the trace log remains the source of truth.
type DB struct {
	db    *sql.DB
	runID string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqNavEvent reqKind = iota + 1
	reqTick
	reqSnapshot
)

type req struct {
	kind reqKind

	event    world.NavEvent
	tick     world.TickLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick   uint64
	Path   string
	Areas  int
	Agents int
}

type Stats struct {
	DroppedTotal  uint64
	QueueDepth    int
	QueueCapacity int
}

func OpenSQLite(path, runID string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &DB{
		db:    db,
		runID: runID,
		ch:    make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS shared_transitions (
			group_id TEXT NOT NULL,
			id TEXT NOT NULL,
			area TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			link_area TEXT,
			link_x INTEGER,
			link_y INTEGER,
			PRIMARY KEY (group_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS shared_facilities (
			group_id TEXT NOT NULL,
			id TEXT NOT NULL,
			kind TEXT NOT NULL,
			building TEXT NOT NULL,
			area TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			PRIMARY KEY (group_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS nav_events (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			area TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			detail TEXT,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_nav_events_agent_tick ON nav_events(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			goals INTEGER NOT NULL,
			edits INTEGER NOT NULL,
			transitions INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			areas INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *DB) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// RecordNavEvent queues ev; it never blocks the tick loop.
func (s *DB) RecordNavEvent(ev world.NavEvent) { s.enqueue(req{kind: reqNavEvent, event: ev}) }

func (s *DB) WriteTick(entry world.TickLogEntry) error {
	s.enqueue(req{kind: reqTick, tick: entry})
	return nil
}

func (s *DB) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:   snap.Header.Tick,
		Path:   path,
		Areas:  len(snap.Areas),
		Agents: len(snap.Agents),
	}})
}

func (s *DB) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DroppedTotal:  s.dropped.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

// SaveShared replaces the stored knowledge of group with the current contents of sh.
func (s *DB) SaveShared(ctx context.Context, group string, sh *knowledge.Shared) error {
	if s.closed.Load() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shared_transitions WHERE group_id=?`, group); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM shared_facilities WHERE group_id=?`, group); err != nil {
		return err
	}
	for _, tp := range sh.TransitionPoints() {
		var linkArea sql.NullString
		var linkX, linkY sql.NullInt64
		if tp.Link != nil {
			linkArea = sql.NullString{String: tp.Link.Area, Valid: true}
			linkX = sql.NullInt64{Int64: int64(tp.Link.Cell.X), Valid: true}
			linkY = sql.NullInt64{Int64: int64(tp.Link.Cell.Y), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shared_transitions(group_id,id,area,x,y,link_area,link_x,link_y) VALUES(?,?,?,?,?,?,?,?)`,
			group, tp.ID, tp.Area, tp.Cell.X, tp.Cell.Y, linkArea, linkX, linkY,
		); err != nil {
			return fmt.Errorf("save transition %s: %w", tp.ID, err)
		}
	}
	for _, f := range sh.Facilities() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shared_facilities(group_id,id,kind,building,area,x,y) VALUES(?,?,?,?,?,?,?)`,
			group, f.ID, f.Kind, f.Building, f.Area, f.Cell.X, f.Cell.Y,
		); err != nil {
			return fmt.Errorf("save facility %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// LoadShared merges the stored knowledge of group into sh and returns how many
// entries were read.
func (s *DB) LoadShared(ctx context.Context, group string, sh *knowledge.Shared) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n := 0
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,area,x,y,link_area,link_x,link_y FROM shared_transitions WHERE group_id=? ORDER BY id`, group)
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var tp knowledge.TransitionPoint
		var linkArea sql.NullString
		var linkX, linkY sql.NullInt64
		if err := rows.Scan(&tp.ID, &tp.Area, &tp.Cell.X, &tp.Cell.Y, &linkArea, &linkX, &linkY); err != nil {
			_ = rows.Close()
			return n, err
		}
		if linkArea.Valid {
			tp.Link = &knowledge.Endpoint{Area: linkArea.String, Cell: grid.Cell{X: int(linkX.Int64), Y: int(linkY.Int64)}}
		}
		sh.AddTransition(tp)
		n++
	}
	if err := rows.Close(); err != nil {
		return n, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id,kind,building,area,x,y FROM shared_facilities WHERE group_id=? ORDER BY id`, group)
	if err != nil {
		return n, err
	}
	defer rows.Close()
	for rows.Next() {
		var f knowledge.Facility
		if err := rows.Scan(&f.ID, &f.Kind, &f.Building, &f.Area, &f.Cell.X, &f.Cell.Y); err != nil {
			return n, err
		}
		sh.AddFacility(f)
		n++
	}
	return n, rows.Err()
}

// NavEvents returns the most recent committed events of agentID in this run,
// oldest first.
func (s *DB) NavEvents(ctx context.Context, agentID string, limit int) ([]world.NavEvent, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick,agent_id,kind,area,x,y,COALESCE(detail,'') FROM nav_events
		 WHERE run_id=? AND agent_id=? ORDER BY tick DESC, seq DESC LIMIT ?`,
		s.runID, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.NavEvent
	for rows.Next() {
		var ev world.NavEvent
		var tick int64
		if err := rows.Scan(&tick, &ev.AgentID, &ev.Kind, &ev.Area, &ev.X, &ev.Y, &ev.Detail); err != nil {
			return nil, err
		}
		ev.Tick = uint64(tick)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *DB) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO nav_events(run_id,tick,seq,agent_id,kind,area,x,y,detail) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,digest,goals,edits,transitions,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,tick,path,areas,agents) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertTick, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastEventTick uint64
		eventSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqNavEvent:
			ev := r.event
			if ev.Tick != lastEventTick {
				lastEventTick = ev.Tick
				eventSeq = 0
			}
			seq := eventSeq
			eventSeq++
			if insertEvent == nil {
				continue
			}
			if _, err := tx.Stmt(insertEvent).Exec(s.runID, int64(ev.Tick), seq, ev.AgentID, ev.Kind, ev.Area, ev.X, ev.Y, ev.Detail); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqTick:
			if insertTick == nil {
				continue
			}
			b, _ := json.Marshal(r.tick)
			if _, err := tx.Stmt(insertTick).Exec(
				s.runID,
				int64(r.tick.Tick),
				r.tick.Digest,
				len(r.tick.Goals),
				len(r.tick.Edits),
				len(r.tick.Transitions),
				string(b),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			if insertSnapshot == nil {
				continue
			}
			sn := r.snapshot
			if _, err := tx.Stmt(insertSnapshot).Exec(s.runID, int64(sn.Tick), sn.Path, sn.Areas, sn.Agents); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
