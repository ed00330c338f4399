package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tilenav.ai/internal/protocol"
	"tilenav.ai/internal/sim/world"
)

// Server is the control endpoint: clients set and clear agent goals and edit area
// grids. Every request is answered with an ACK once it has been queued for the
// next tick.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID := s.handshake(conn)
		if sessionID == "" {
			return
		}
		s.log.Printf("control: session %s connected from %s", sessionID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		out := make(chan []byte, 64)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			ack := s.HandleMessage(msg)
			b, _ := json.Marshal(ack)
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		s.log.Printf("control: session %s closed", sessionID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return ""
	}

	sessionID := uuid.NewString()
	if err := writeJSON(conn, s.world.Welcome(sessionID)); err != nil {
		return ""
	}
	return sessionID
}

// HandleMessage validates one control request, queues it for the world and
// returns the ACK to send back.
func (s *Server) HandleMessage(msg []byte) protocol.AckMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.Ack("", protocol.ErrProtoBadRequest, "invalid json")
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.Ack("", protocol.ErrProtoBadRequest, "bad protocol_version")
	}

	switch base.Type {
	case protocol.TypeGoal:
		var m protocol.GoalMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.Ack("", protocol.ErrProtoBadRequest, err.Error())
		}
		if !s.world.HasAgent(m.AgentID) {
			return protocol.Ack(m.Ref, protocol.ErrUnknownAgent, m.AgentID)
		}
		if err := m.Goal.Validate(); err != nil {
			return protocol.Ack(m.Ref, protocol.ErrBadGoal, err.Error())
		}
		if m.Goal.Area != "" && !s.world.HasArea(m.Goal.Area) {
			return protocol.Ack(m.Ref, protocol.ErrUnknownArea, m.Goal.Area)
		}
		return s.queueGoal(m.Ref, world.GoalRequest{AgentID: m.AgentID, Goal: m.Goal})

	case protocol.TypeClearGoal:
		var m protocol.ClearGoalMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.Ack("", protocol.ErrProtoBadRequest, err.Error())
		}
		if !s.world.HasAgent(m.AgentID) {
			return protocol.Ack(m.Ref, protocol.ErrUnknownAgent, m.AgentID)
		}
		return s.queueGoal(m.Ref, world.GoalRequest{AgentID: m.AgentID})

	case protocol.TypeEdit:
		var m protocol.EditMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.Ack("", protocol.ErrProtoBadRequest, err.Error())
		}
		if !s.world.HasArea(m.Area) {
			return protocol.Ack(m.Ref, protocol.ErrUnknownArea, m.Area)
		}
		if m.X < 0 || m.Y < 0 || m.Weight < 0 {
			return protocol.Ack(m.Ref, protocol.ErrBadEdit, "negative coordinate or weight")
		}
		req := world.EditRequest{Area: m.Area, X: m.X, Y: m.Y, Solid: m.Solid, Weight: m.Weight}
		select {
		case s.world.Edits() <- req:
			return protocol.Ack(m.Ref, "", "")
		default:
			return protocol.Ack(m.Ref, protocol.ErrBusy, "edit queue full")
		}
	}
	return protocol.Ack("", protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
}

func (s *Server) queueGoal(ref string, req world.GoalRequest) protocol.AckMsg {
	select {
	case s.world.Goals() <- req:
		return protocol.Ack(ref, "", "")
	default:
		return protocol.Ack(ref, protocol.ErrBusy, "goal queue full")
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
