package protocol

import (
	"fmt"
	"strings"
)

// Goal kinds.
const (
	GoalPosition = "position"
	GoalEntity   = "entity"
	GoalArea     = "area"
	GoalBuilding = "building"
	GoalFacility = "facility"
	// GoalNearestFacility names a facility kind; the server turns it into a
	// concrete facility goal from what the agent knows when the goal arrives.
	GoalNearestFacility = "nearest_facility"
)

// GoalSpec is the wire form of a navigation goal. Which fields matter depends on
// Kind; an empty Kind means no goal.
type GoalSpec struct {
	Kind     string `json:"kind,omitempty"`
	Area     string `json:"area,omitempty"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	Entity   string `json:"entity,omitempty"`
	Range    int    `json:"range,omitempty"`
	Radius   int    `json:"radius,omitempty"`
	Building string `json:"building,omitempty"`
	Facility string `json:"facility,omitempty"`
	Interior bool   `json:"interior,omitempty"`

	FacilityKind string `json:"facility_kind,omitempty"`
}

func (g GoalSpec) IsZero() bool { return g.Kind == "" }

// Validate checks the fields each kind requires. It does not look anything up.
func (g GoalSpec) Validate() error {
	switch g.Kind {
	case "":
		return nil
	case GoalPosition:
		if g.X < 0 || g.Y < 0 {
			return fmt.Errorf("position goal needs non-negative x/y")
		}
	case GoalEntity:
		if strings.TrimSpace(g.Entity) == "" {
			return fmt.Errorf("entity goal needs entity")
		}
		if g.Range < 0 {
			return fmt.Errorf("entity goal range must be >= 0")
		}
	case GoalArea:
		if g.Radius < 0 {
			return fmt.Errorf("area goal radius must be >= 0")
		}
	case GoalBuilding:
		if strings.TrimSpace(g.Building) == "" {
			return fmt.Errorf("building goal needs building")
		}
	case GoalFacility:
		if strings.TrimSpace(g.Building) == "" || strings.TrimSpace(g.Facility) == "" {
			return fmt.Errorf("facility goal needs building and facility")
		}
	case GoalNearestFacility:
		if strings.TrimSpace(g.FacilityKind) == "" {
			return fmt.Errorf("nearest_facility goal needs facility_kind")
		}
	default:
		return fmt.Errorf("unknown goal kind %q", g.Kind)
	}
	return nil
}

// Client -> Server. First message on the control connection.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	Tick            uint64     `json:"tick"`
	TickRateHz      int        `json:"tick_rate_hz"`
	Areas           []AreaInfo `json:"areas"`
	Agents          []string   `json:"agents"`
}

type AreaInfo struct {
	ID     string   `json:"id"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Rows   []string `json:"rows"`
}

// Client -> Server. Sets (or with an empty goal, clears) an agent's goal.
type GoalMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Ref             string   `json:"ref,omitempty"`
	AgentID         string   `json:"agent_id"`
	Goal            GoalSpec `json:"goal"`
}

type ClearGoalMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	AgentID         string `json:"agent_id"`
}

// Client -> Server. Changes one cell of an area grid.
type EditMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Ref             string  `json:"ref,omitempty"`
	Area            string  `json:"area"`
	X               int     `json:"x"`
	Y               int     `json:"y"`
	Solid           bool    `json:"solid"`
	Weight          float64 `json:"weight,omitempty"`
}

// Server -> Client. Acknowledges a GOAL/CLEAR_GOAL/EDIT; Code is empty on success.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

func Ack(ref, code, msg string) AckMsg {
	return AckMsg{Type: TypeAck, ProtocolVersion: Version, Ref: ref, Code: code, Message: msg}
}
