package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd queries the knowledge db read-only: snapshots, ticks, events or knowledge.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/nav.sqlite)")
	runID := fs.String("run", "", "run_id filter (optional)")
	agentID := fs.String("agent", "", "agent_id filter (events)")
	groupID := fs.String("group", "", "group_id filter (knowledge)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "nav.sqlite")
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var rows *sql.Rows
	switch q {
	case "snapshots":
		rows, err = db.Query(`SELECT run_id,tick,path,areas,agents FROM snapshots
			WHERE (?='' OR run_id=?) ORDER BY tick DESC LIMIT ?`, *runID, *runID, *limit)
		if err == nil {
			scanRows(rows, func() (any, error) {
				var r struct {
					RunID  string `json:"run_id"`
					Tick   int64  `json:"tick"`
					Path   string `json:"path"`
					Areas  int    `json:"areas"`
					Agents int    `json:"agents"`
				}
				return &r, rows.Scan(&r.RunID, &r.Tick, &r.Path, &r.Areas, &r.Agents)
			})
		}

	case "ticks":
		rows, err = db.Query(`SELECT run_id,tick,digest,goals,edits,transitions FROM ticks
			WHERE (?='' OR run_id=?) ORDER BY tick DESC LIMIT ?`, *runID, *runID, *limit)
		if err == nil {
			scanRows(rows, func() (any, error) {
				var r struct {
					RunID       string `json:"run_id"`
					Tick        int64  `json:"tick"`
					Digest      string `json:"digest"`
					Goals       int    `json:"goals"`
					Edits       int    `json:"edits"`
					Transitions int    `json:"transitions"`
				}
				return &r, rows.Scan(&r.RunID, &r.Tick, &r.Digest, &r.Goals, &r.Edits, &r.Transitions)
			})
		}

	case "events":
		rows, err = db.Query(`SELECT run_id,tick,agent_id,kind,area,x,y,COALESCE(detail,'') FROM nav_events
			WHERE (?='' OR run_id=?) AND (?='' OR agent_id=?)
			ORDER BY tick DESC, seq DESC LIMIT ?`, *runID, *runID, *agentID, *agentID, *limit)
		if err == nil {
			scanRows(rows, func() (any, error) {
				var r struct {
					RunID   string `json:"run_id"`
					Tick    int64  `json:"tick"`
					AgentID string `json:"agent_id"`
					Kind    string `json:"kind"`
					Area    string `json:"area"`
					X       int    `json:"x"`
					Y       int    `json:"y"`
					Detail  string `json:"detail,omitempty"`
				}
				return &r, rows.Scan(&r.RunID, &r.Tick, &r.AgentID, &r.Kind, &r.Area, &r.X, &r.Y, &r.Detail)
			})
		}

	case "knowledge":
		rows, err = db.Query(`SELECT group_id,id,area,x,y,COALESCE(link_area,''),link_x,link_y FROM shared_transitions
			WHERE (?='' OR group_id=?) ORDER BY group_id,id LIMIT ?`, *groupID, *groupID, *limit)
		if err == nil {
			scanRows(rows, func() (any, error) {
				var r struct {
					GroupID  string        `json:"group_id"`
					ID       string        `json:"id"`
					Area     string        `json:"area"`
					X        int           `json:"x"`
					Y        int           `json:"y"`
					LinkArea string        `json:"link_area,omitempty"`
					LinkX    sql.NullInt64 `json:"-"`
					LinkY    sql.NullInt64 `json:"-"`
					Link     []int64       `json:"link,omitempty"`
				}
				err := rows.Scan(&r.GroupID, &r.ID, &r.Area, &r.X, &r.Y, &r.LinkArea, &r.LinkX, &r.LinkY)
				if r.LinkX.Valid && r.LinkY.Valid {
					r.Link = []int64{r.LinkX.Int64, r.LinkY.Int64}
				}
				return &r, err
			})
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want snapshots|ticks|events|knowledge)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

func scanRows(rows *sql.Rows, scan func() (any, error)) {
	defer rows.Close()
	for rows.Next() {
		r, err := scan()
		if err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		printJSON(r)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
