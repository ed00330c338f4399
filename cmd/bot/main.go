package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"tilenav.ai/internal/protocol"
)

// bot drives one agent around the map: every -every it picks a random open cell
// in a random area and sends it as a position goal.
func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "control ws url")
		name  = flag.String("name", "bot", "client name")
		agent = flag.String("agent", "baker", "agent to drive")
		every = flag.Duration("every", 20*time.Second, "interval between goals")
		seed  = flag.Int64("seed", 0, "rng seed (0 = time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: *name}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		logger.Fatalf("expected WELCOME: %v", err)
	}
	logger.Printf("WELCOME session=%s tick=%d tick_rate=%d areas=%d agents=%v",
		welcome.SessionID, welcome.Tick, welcome.TickRateHz, len(welcome.Areas), welcome.Agents)

	// Acks arrive asynchronously.
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAck {
				continue
			}
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if ack.Code != "" {
				logger.Printf("ACK ref=%s code=%s %s", ack.Ref, ack.Code, ack.Message)
			} else {
				logger.Printf("ACK ref=%s ok", ack.Ref)
			}
		}
	}()

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(s))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	n := 0
	for {
		goal, ok := pickGoal(r, welcome.Areas)
		if ok {
			n++
			msg := protocol.GoalMsg{
				Type:            protocol.TypeGoal,
				ProtocolVersion: protocol.Version,
				Ref:             fmt.Sprintf("G%d", n),
				AgentID:         *agent,
				Goal:            goal,
			}
			if err := conn.WriteJSON(msg); err != nil {
				logger.Printf("send GOAL: %v", err)
				return
			}
			logger.Printf("GOAL ref=%s %s (%d,%d)", msg.Ref, goal.Area, goal.X, goal.Y)
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func pickGoal(r *rand.Rand, areas []protocol.AreaInfo) (protocol.GoalSpec, bool) {
	if len(areas) == 0 {
		return protocol.GoalSpec{}, false
	}
	a := areas[r.Intn(len(areas))]
	var open [][2]int
	for y, row := range a.Rows {
		for x, c := range row {
			if c != '#' {
				open = append(open, [2]int{x, y})
			}
		}
	}
	if len(open) == 0 {
		return protocol.GoalSpec{}, false
	}
	c := open[r.Intn(len(open))]
	return protocol.GoalSpec{Kind: protocol.GoalPosition, Area: a.ID, X: c[0], Y: c[1]}, true
}
