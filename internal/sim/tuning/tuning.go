package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tilenav.ai/internal/sim/nav/search"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	// MemoryTTLTicks is how long personal memories last without being refreshed; 0 keeps them forever.
	MemoryTTLTicks int `yaml:"memory_ttl_ticks"`

	Nav Nav `yaml:"nav"`
}

// Nav holds the navigation constants. Zero values are replaced by defaults in
// Normalize, except GoalMoveTolerance where only negatives are.
type Nav struct {
	RecalcCooldownTicks    int     `yaml:"recalc_cooldown_ticks"`
	MaxRecalcAttempts      int     `yaml:"max_recalc_attempts"`
	MaxPathLength          int     `yaml:"max_path_length"`
	PerceptionRefreshSteps int     `yaml:"perception_refresh_steps"`
	SoftBlockPenalty       float64 `yaml:"soft_block_penalty"`
	MaxExpansions          int     `yaml:"max_expansions"`
	CrossAreaPenalty       float64 `yaml:"cross_area_penalty"`
	GoalMoveTolerance      int     `yaml:"goal_move_tolerance"`
	Diagonal               string  `yaml:"diagonal"`
	AllowPartial           *bool   `yaml:"allow_partial,omitempty"`
	// ComputeWorkers bounds the background compute phase; 0 means GOMAXPROCS.
	ComputeWorkers int `yaml:"compute_workers"`
}

func Defaults() Tuning {
	t := Tuning{
		TickRateHz:         5,
		SnapshotEveryTicks: 3000,
		MemoryTTLTicks:     6000,
		Nav:                DefaultNav(),
	}
	return t
}

func DefaultNav() Nav {
	allow := true
	return Nav{
		RecalcCooldownTicks:    5,
		MaxRecalcAttempts:      3,
		MaxPathLength:          100,
		PerceptionRefreshSteps: 5,
		SoftBlockPenalty:       4,
		MaxExpansions:          search.DefaultMaxExpansions,
		CrossAreaPenalty:       1000,
		GoalMoveTolerance:      2,
		Diagonal:               search.DiagonalBothClear.String(),
		AllowPartial:           &allow,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 5
	}
	t.Nav.Normalize()
}

func (n *Nav) Normalize() {
	d := DefaultNav()
	if n.RecalcCooldownTicks <= 0 {
		n.RecalcCooldownTicks = d.RecalcCooldownTicks
	}
	if n.MaxRecalcAttempts <= 0 {
		n.MaxRecalcAttempts = d.MaxRecalcAttempts
	}
	if n.MaxPathLength <= 0 {
		n.MaxPathLength = d.MaxPathLength
	}
	if n.PerceptionRefreshSteps <= 0 {
		n.PerceptionRefreshSteps = d.PerceptionRefreshSteps
	}
	if n.SoftBlockPenalty == 0 {
		n.SoftBlockPenalty = d.SoftBlockPenalty
	}
	if n.MaxExpansions <= 0 {
		n.MaxExpansions = d.MaxExpansions
	}
	if n.CrossAreaPenalty == 0 {
		n.CrossAreaPenalty = d.CrossAreaPenalty
	}
	// 0 is meaningful: replan on any move of the target.
	if n.GoalMoveTolerance < 0 {
		n.GoalMoveTolerance = d.GoalMoveTolerance
	}
	if n.Diagonal == "" {
		n.Diagonal = d.Diagonal
	}
	if n.AllowPartial == nil {
		n.AllowPartial = d.AllowPartial
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.MemoryTTLTicks < 0 {
		return fmt.Errorf("memory_ttl_ticks must be >= 0")
	}
	return t.Nav.Validate()
}

func (n Nav) Validate() error {
	if n.SoftBlockPenalty < 0 {
		return fmt.Errorf("nav.soft_block_penalty must be >= 0")
	}
	if n.CrossAreaPenalty < 0 {
		return fmt.Errorf("nav.cross_area_penalty must be >= 0")
	}
	if n.ComputeWorkers < 0 {
		return fmt.Errorf("nav.compute_workers must be >= 0")
	}
	if _, err := search.ParseDiagonalRule(n.Diagonal); err != nil {
		return fmt.Errorf("nav.diagonal: %w", err)
	}
	return nil
}

// DiagonalRule returns the parsed rule, falling back to the default on bad input.
func (n Nav) DiagonalRule() search.DiagonalRule {
	r, _ := search.ParseDiagonalRule(n.Diagonal)
	return r
}

func (n Nav) Partial() bool {
	return n.AllowPartial == nil || *n.AllowPartial
}
