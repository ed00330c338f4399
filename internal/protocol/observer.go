package protocol

// Client -> Server. First message on the observer connection; may be re-sent to
// change the filter.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Areas           []string `json:"areas,omitempty"`
	IncludePaths    bool     `json:"include_paths,omitempty"`
}

// Server -> Client. Sent every tick.
type NavTickMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Tick            uint64           `json:"tick"`
	Agents          []AgentNav       `json:"agents"`
	Transitions     []TransitionInfo `json:"transitions,omitempty"`
	Edits           []EditInfo       `json:"edits,omitempty"`
	Digest          string           `json:"digest"`
}

type AgentNav struct {
	ID        string   `json:"id"`
	Area      string   `json:"area"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	State     string   `json:"state"`
	Goal      GoalSpec `json:"goal,omitempty"`
	Remaining [][2]int `json:"remaining,omitempty"`
}

type TransitionInfo struct {
	AgentID  string `json:"agent_id"`
	PointID  string `json:"point_id"`
	FromArea string `json:"from_area"`
	ToArea   string `json:"to_area"`
}

type EditInfo struct {
	Area   string  `json:"area"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Solid  bool    `json:"solid"`
	Weight float64 `json:"weight,omitempty"`
}
