package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"tilenav.ai/internal/sim/world"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("json", false, "print the raw response")
	_ = fs.Parse(args)

	b, ok := adminRequest(http.MethodGet, *baseURL, "/admin/v1/state", 5*time.Second)
	if !ok || *raw {
		fmt.Println(string(b))
		if !ok {
			os.Exit(1)
		}
		return
	}
	var st world.AdminState
	if err := json.Unmarshal(b, &st); err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	fmt.Printf("run=%s tick=%d\n", st.RunID, st.Tick)
	for _, a := range st.Agents {
		goal := a.Goal.Kind
		if goal == "" {
			goal = "-"
		}
		fmt.Printf("%-12s %-8s (%2d,%2d) %-14s goal=%-9s remaining=%d known=%d\n",
			a.ID, a.Area, a.X, a.Y, a.State, goal, a.Remaining, a.Known)
		if a.Plan == nil {
			continue
		}
		for _, s := range a.Plan.Steps {
			fmt.Printf("    %-8s %s %s\n", s.Kind, s.Target.Area, s.Target.Cell)
		}
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	b, ok := adminRequest(http.MethodPost, *baseURL, "/admin/v1/snapshot", 10*time.Second)
	fmt.Println(string(b))
	if !ok {
		os.Exit(1)
	}
}

func adminRequest(method, baseURL, path string, timeout time.Duration) ([]byte, bool) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, _ := http.NewRequest(method, u, nil)
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return b, resp.StatusCode/100 == 2
}
