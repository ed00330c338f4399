package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"tilenav.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints one header line per snapshot on disk, oldest first.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	paths, err := snapshotPaths(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(p), err)
			continue
		}
		printJSON(struct {
			Path string `json:"path"`
			snapshot.Header
		}{Path: p, Header: h})
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	agentID := fs.String("agent", "", "only this agent (optional)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		paths, err := snapshotPaths(*dataDir)
		if err != nil || len(paths) == 0 {
			fmt.Fprintln(os.Stderr, "no snapshots found under", *dataDir)
			os.Exit(2)
		}
		path = paths[len(paths)-1]
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d run=%s tick=%d areas=%d groups=%d agents=%d\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.Tick, len(snap.Areas), len(snap.Groups), len(snap.Agents))
	for _, a := range snap.Areas {
		solid := 0
		for _, s := range a.Solid {
			if s {
				solid++
			}
		}
		fmt.Printf("area %s %dx%d solid=%d\n", a.ID, a.Width, a.Height, solid)
	}
	for _, g := range snap.Groups {
		fmt.Printf("group %s transitions=%d facilities=%d\n", g.ID, len(g.Transitions), len(g.Facilities))
	}
	for _, a := range snap.Agents {
		if *agentID != "" && a.ID != *agentID {
			continue
		}
		printJSON(struct {
			ID          string `json:"id"`
			Area        string `json:"area"`
			X           int    `json:"x"`
			Y           int    `json:"y"`
			Goal        any    `json:"goal"`
			Remaining   int    `json:"remaining_cells"`
			Transitions int    `json:"known_transitions"`
			Facilities  int    `json:"known_facilities"`
		}{a.ID, a.Area, a.X, a.Y, a.Goal, max(len(a.Nav.Path)-a.Nav.Index, 0), len(a.Transitions), len(a.Facilities)})
	}
}

func snapshotPaths(dataDir string) ([]string, error) {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type tp struct {
		tick uint64
		path string
	}
	var found []tp
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		found = append(found, tp{tick, filepath.Join(dir, name)})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].tick < found[j].tick })
	out := make([]string, 0, len(found))
	for _, f := range found {
		out = append(out, f.path)
	}
	return out, nil
}
