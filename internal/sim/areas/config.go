package areas

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tilenav.ai/internal/sim/grid"
	"tilenav.ai/internal/sim/knowledge"
	"tilenav.ai/internal/sim/structures"
)

type Config struct {
	DefaultAreaID string           `yaml:"default_area_id"`
	Areas         []AreaSpec       `yaml:"areas"`
	Transitions   []TransitionSpec `yaml:"transitions,omitempty"`
	Buildings     []BuildingSpec   `yaml:"buildings,omitempty"`
	Facilities    []FacilitySpec   `yaml:"facilities,omitempty"`
	Groups        []GroupSpec      `yaml:"groups,omitempty"`
	Agents        []AgentSpec      `yaml:"agents,omitempty"`
}

// AreaSpec is one walkable map. Rows use '#' solid, '.' open, '~' weight 2 and '^'
// weight 3. Residents have full knowledge of the layout.
type AreaSpec struct {
	ID        string   `yaml:"id"`
	Rows      []string `yaml:"rows"`
	Residents []string `yaml:"residents,omitempty"`
}

type TransitionSpec struct {
	ID       string `yaml:"id"`
	FromArea string `yaml:"from_area"`
	X        int    `yaml:"x"`
	Y        int    `yaml:"y"`
	ToArea   string `yaml:"to_area"`
	ToX      int    `yaml:"to_x"`
	ToY      int    `yaml:"to_y"`
}

type BuildingSpec struct {
	ID   string `yaml:"id"`
	Area string `yaml:"area"`
	MinX int    `yaml:"min_x"`
	MinY int    `yaml:"min_y"`
	MaxX int    `yaml:"max_x"`
	MaxY int    `yaml:"max_y"`
}

type FacilitySpec struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind"`
	Building string `yaml:"building"`
	X        int    `yaml:"x"`
	Y        int    `yaml:"y"`
}

// GroupSpec seeds one body of shared knowledge (a guild, a family).
type GroupSpec struct {
	ID          string   `yaml:"id"`
	Transitions []string `yaml:"transitions,omitempty"`
	Facilities  []string `yaml:"facilities,omitempty"`
}

type AgentSpec struct {
	ID               string   `yaml:"id"`
	Area             string   `yaml:"area"`
	X                int      `yaml:"x"`
	Y                int      `yaml:"y"`
	PerceptionRadius int      `yaml:"perception_radius"`
	Group            string   `yaml:"group,omitempty"`
	KnowsTransitions []string `yaml:"knows_transitions,omitempty"`
	KnowsFacilities  []string `yaml:"knows_facilities,omitempty"`
}

const defaultPerceptionRadius = 6

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg, err = Parse(b)
	if err != nil {
		return cfg, fmt.Errorf("areas.yaml: %w", err)
	}
	return cfg, nil
}

// Parse validates raw YAML against the embedded schema, decodes it, then applies
// Normalize and Validate.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := validateSchema(b); err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// defaults is a two-area town with a forest behind the east gate.
func defaults() Config {
	return Config{
		DefaultAreaID: "TOWN",
		Areas: []AreaSpec{
			{
				ID: "TOWN",
				Rows: []string{
					"..........",
					".####.....",
					".#..#.....",
					".#........",
					".####.....",
					"..........",
				},
				Residents: []string{"baker"},
			},
			{
				ID: "FOREST",
				Rows: []string{
					"..~~~.....",
					"..~#~..^^.",
					"...#...^^.",
					"...#......",
					"......~~..",
					"..........",
				},
			},
		},
		Transitions: []TransitionSpec{
			{ID: "town_east_gate", FromArea: "TOWN", X: 9, Y: 3, ToArea: "FOREST", ToX: 0, ToY: 3},
			{ID: "forest_west_gate", FromArea: "FOREST", X: 0, Y: 3, ToArea: "TOWN", ToX: 9, ToY: 3},
		},
		Buildings: []BuildingSpec{
			{ID: "bakery", Area: "TOWN", MinX: 1, MinY: 1, MaxX: 4, MaxY: 4},
		},
		Facilities: []FacilitySpec{
			{ID: "oven", Kind: "kitchen", Building: "bakery", X: 2, Y: 2},
		},
		Groups: []GroupSpec{
			{ID: "townsfolk", Transitions: []string{"town_east_gate", "forest_west_gate"}, Facilities: []string{"oven"}},
		},
		Agents: []AgentSpec{
			{ID: "baker", Area: "TOWN", X: 7, Y: 3, PerceptionRadius: 6, Group: "townsfolk"},
			{ID: "wanderer", Area: "FOREST", X: 8, Y: 5, PerceptionRadius: 4},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if c.DefaultAreaID == "" && len(c.Areas) > 0 {
		c.DefaultAreaID = c.Areas[0].ID
	}
	for i := range c.Agents {
		if c.Agents[i].PerceptionRadius <= 0 {
			c.Agents[i].PerceptionRadius = defaultPerceptionRadius
		}
		if strings.TrimSpace(c.Agents[i].Area) == "" {
			c.Agents[i].Area = c.DefaultAreaID
		}
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Areas) == 0 {
		return fmt.Errorf("areas must not be empty")
	}
	grids := map[string]*grid.Grid{}
	for _, a := range c.Areas {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("area id must not be empty")
		}
		if _, dup := grids[a.ID]; dup {
			return fmt.Errorf("duplicate area id: %s", a.ID)
		}
		g, err := grid.Parse(a.Rows)
		if err != nil {
			return fmt.Errorf("area %s: %w", a.ID, err)
		}
		if g.Width() == 0 || g.Height() == 0 {
			return fmt.Errorf("area %s rows must not be empty", a.ID)
		}
		grids[a.ID] = g
	}
	if _, ok := grids[c.DefaultAreaID]; !ok {
		return fmt.Errorf("default_area_id %q not found in areas", c.DefaultAreaID)
	}

	inBounds := func(area string, x, y int) bool {
		g := grids[area]
		return g != nil && g.InBounds(grid.Cell{X: x, Y: y})
	}

	transitions := map[string]bool{}
	for i, t := range c.Transitions {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("transitions[%d] id must not be empty", i)
		}
		if transitions[t.ID] {
			return fmt.Errorf("duplicate transition id: %s", t.ID)
		}
		transitions[t.ID] = true
		if grids[t.FromArea] == nil {
			return fmt.Errorf("transition %s from_area %q not found", t.ID, t.FromArea)
		}
		if grids[t.ToArea] == nil {
			return fmt.Errorf("transition %s to_area %q not found", t.ID, t.ToArea)
		}
		if t.FromArea == t.ToArea {
			return fmt.Errorf("transition %s must link two different areas", t.ID)
		}
		if !inBounds(t.FromArea, t.X, t.Y) {
			return fmt.Errorf("transition %s (%d,%d) outside %s", t.ID, t.X, t.Y, t.FromArea)
		}
		if !inBounds(t.ToArea, t.ToX, t.ToY) || grids[t.ToArea].Solid(grid.Cell{X: t.ToX, Y: t.ToY}) {
			return fmt.Errorf("transition %s arrival (%d,%d) is not walkable in %s", t.ID, t.ToX, t.ToY, t.ToArea)
		}
	}

	buildings := map[string]BuildingSpec{}
	for i, b := range c.Buildings {
		if strings.TrimSpace(b.ID) == "" {
			return fmt.Errorf("buildings[%d] id must not be empty", i)
		}
		if _, dup := buildings[b.ID]; dup {
			return fmt.Errorf("duplicate building id: %s", b.ID)
		}
		if grids[b.Area] == nil {
			return fmt.Errorf("building %s area %q not found", b.ID, b.Area)
		}
		if b.MinX > b.MaxX || b.MinY > b.MaxY {
			return fmt.Errorf("building %s has an inverted rectangle", b.ID)
		}
		if !inBounds(b.Area, b.MinX, b.MinY) || !inBounds(b.Area, b.MaxX, b.MaxY) {
			return fmt.Errorf("building %s extends outside %s", b.ID, b.Area)
		}
		buildings[b.ID] = b
	}

	facilities := map[string]bool{}
	for i, f := range c.Facilities {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("facilities[%d] id must not be empty", i)
		}
		if facilities[f.ID] {
			return fmt.Errorf("duplicate facility id: %s", f.ID)
		}
		facilities[f.ID] = true
		b, ok := buildings[f.Building]
		if !ok {
			return fmt.Errorf("facility %s building %q not found", f.ID, f.Building)
		}
		if f.X < b.MinX || f.X > b.MaxX || f.Y < b.MinY || f.Y > b.MaxY {
			return fmt.Errorf("facility %s (%d,%d) is outside building %s", f.ID, f.X, f.Y, b.ID)
		}
	}

	groups := map[string]bool{}
	for i, g := range c.Groups {
		if strings.TrimSpace(g.ID) == "" {
			return fmt.Errorf("groups[%d] id must not be empty", i)
		}
		if groups[g.ID] {
			return fmt.Errorf("duplicate group id: %s", g.ID)
		}
		groups[g.ID] = true
		if err := knownIDs("group "+g.ID, g.Transitions, transitions, g.Facilities, facilities); err != nil {
			return err
		}
	}

	agents := map[string]bool{}
	for i, a := range c.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("agents[%d] id must not be empty", i)
		}
		if agents[a.ID] {
			return fmt.Errorf("duplicate agent id: %s", a.ID)
		}
		agents[a.ID] = true
		if grids[a.Area] == nil {
			return fmt.Errorf("agent %s area %q not found", a.ID, a.Area)
		}
		if !inBounds(a.Area, a.X, a.Y) || grids[a.Area].Solid(grid.Cell{X: a.X, Y: a.Y}) {
			return fmt.Errorf("agent %s spawn (%d,%d) is not walkable in %s", a.ID, a.X, a.Y, a.Area)
		}
		if a.Group != "" && !groups[a.Group] {
			return fmt.Errorf("agent %s group %q not found", a.ID, a.Group)
		}
		if err := knownIDs("agent "+a.ID, a.KnowsTransitions, transitions, a.KnowsFacilities, facilities); err != nil {
			return err
		}
	}
	return nil
}

func knownIDs(owner string, tps []string, tpSet map[string]bool, fs []string, fSet map[string]bool) error {
	for _, id := range tps {
		if !tpSet[id] {
			return fmt.Errorf("%s references unknown transition %q", owner, id)
		}
	}
	for _, id := range fs {
		if !fSet[id] {
			return fmt.Errorf("%s references unknown facility %q", owner, id)
		}
	}
	return nil
}

func (c Config) AreaByID(id string) (AreaSpec, bool) {
	for _, a := range c.Areas {
		if a.ID == id {
			return a, true
		}
	}
	return AreaSpec{}, false
}

// Grid parses the area's rows. Validate has already rejected bad tiles.
func (a AreaSpec) Grid() (*grid.Grid, error) {
	return grid.Parse(a.Rows)
}

// TransitionPoint is the fully resolved point as the world knows it.
func (t TransitionSpec) TransitionPoint() knowledge.TransitionPoint {
	return knowledge.TransitionPoint{
		ID:   t.ID,
		Area: t.FromArea,
		Cell: grid.Cell{X: t.X, Y: t.Y},
		Link: &knowledge.Endpoint{Area: t.ToArea, Cell: grid.Cell{X: t.ToX, Y: t.ToY}},
	}
}

func (c Config) Transition(id string) (TransitionSpec, bool) {
	for _, t := range c.Transitions {
		if t.ID == id {
			return t, true
		}
	}
	return TransitionSpec{}, false
}

func (c Config) Facility(id string) (knowledge.Facility, bool) {
	for _, f := range c.Facilities {
		if f.ID != id {
			continue
		}
		area := ""
		for _, b := range c.Buildings {
			if b.ID == f.Building {
				area = b.Area
			}
		}
		return knowledge.Facility{ID: f.ID, Kind: f.Kind, Building: f.Building, Area: area, Cell: grid.Cell{X: f.X, Y: f.Y}}, true
	}
	return knowledge.Facility{}, false
}

// StructureSet builds the buildings with their facility spots attached, keyed by id.
func (c Config) StructureSet() map[string]structures.Building {
	out := make(map[string]structures.Building, len(c.Buildings))
	for _, b := range c.Buildings {
		out[b.ID] = structures.Building{
			ID:   b.ID,
			Area: b.Area,
			Min:  grid.Cell{X: b.MinX, Y: b.MinY},
			Max:  grid.Cell{X: b.MaxX, Y: b.MaxY},
		}
	}
	for _, f := range c.Facilities {
		b, ok := out[f.Building]
		if !ok {
			continue
		}
		if b.Facilities == nil {
			b.Facilities = map[string]structures.Spot{}
		}
		b.Facilities[f.ID] = structures.Spot{ID: f.ID, Kind: f.Kind, Cell: grid.Cell{X: f.X, Y: f.Y}}
		out[f.Building] = b
	}
	return out
}

// AreaIDs returns the configured area ids in sorted order.
func (c Config) AreaIDs() []string {
	out := make([]string, 0, len(c.Areas))
	for _, a := range c.Areas {
		out = append(out, a.ID)
	}
	sort.Strings(out)
	return out
}
