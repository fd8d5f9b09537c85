package service

import (
	"fmt"
	"math"
	"strings"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/graph"
)

// Detection scopes
const (
	ScopeIllicit = "illicit"
	ScopeGlobal  = "global"
)

// DetectorConfig holds the pattern detector parameters
type DetectorConfig struct {
	MinFanOut          int     `mapstructure:"min_fanout"`
	MinFanIn           int     `mapstructure:"min_fanin"`
	MaxHops            int     `mapstructure:"max_hops"`
	MaxLayers          int     `mapstructure:"max_layers"`
	MinLayers          int     `mapstructure:"min_layers"`
	MinSplit           int     `mapstructure:"min_split"`
	MinCycleLength     int     `mapstructure:"min_cycle_length"`
	MaxCycleLength     int     `mapstructure:"max_cycle_length"`
	MaxCycles          int     `mapstructure:"max_cycles"`
	MaxCycleCandidates int     `mapstructure:"max_cycle_candidates"`
	PeelThreshold      float64 `mapstructure:"peel_threshold"`
	PeelMaxHops        int     `mapstructure:"peel_max_hops"`
	PeelMinHops        int     `mapstructure:"peel_min_hops"`
	PeelMaxFanOut      int     `mapstructure:"peel_max_fanout"`
	PeelMaxDrop        float64 `mapstructure:"peel_max_drop"`
	FeeTolerance       float64 `mapstructure:"fee_tolerance"`
	DecayTolerance     float64 `mapstructure:"decay_tolerance"`
	Scope              string  `mapstructure:"scope"`
}

// DefaultDetectorConfig returns the detector defaults
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinFanOut:          3,
		MinFanIn:           3,
		MaxHops:            3,
		MaxLayers:          5,
		MinLayers:          2,
		MinSplit:           2,
		MinCycleLength:     3,
		MaxCycleLength:     10,
		MaxCycles:          1000,
		MaxCycleCandidates: 100000,
		PeelThreshold:      0.15,
		PeelMaxHops:        20,
		PeelMinHops:        2,
		PeelMaxFanOut:      3,
		PeelMaxDrop:        0.3,
		FeeTolerance:       0.05,
		DecayTolerance:     0.01,
		Scope:              ScopeIllicit,
	}
}

// Validate rejects inconsistent detector parameters
func (c DetectorConfig) Validate() error {
	var problems []string
	positive := map[string]int{
		"min_fanout":           c.MinFanOut,
		"min_fanin":            c.MinFanIn,
		"max_hops":             c.MaxHops,
		"max_layers":           c.MaxLayers,
		"min_layers":           c.MinLayers,
		"min_split":            c.MinSplit,
		"max_cycles":           c.MaxCycles,
		"max_cycle_candidates": c.MaxCycleCandidates,
		"peel_max_hops":        c.PeelMaxHops,
		"peel_min_hops":        c.PeelMinHops,
		"peel_max_fanout":      c.PeelMaxFanOut,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] < 1 {
			problems = append(problems, fmt.Sprintf("%s must be >= 1, got %d", key, positive[key]))
		}
	}

	problems = append(problems, cycleLengthProblems(c.MinCycleLength, c.MaxCycleLength)...)
	if c.MinLayers > c.MaxLayers {
		problems = append(problems, fmt.Sprintf("min_layers (%d) exceeds max_layers (%d)", c.MinLayers, c.MaxLayers))
	}
	problems = append(problems, peelThresholdProblems(c.PeelThreshold)...)
	if c.PeelMaxDrop < 0 || c.PeelMaxDrop >= 1 {
		problems = append(problems, fmt.Sprintf("peel_max_drop must be in [0,1), got %v", c.PeelMaxDrop))
	}
	if c.FeeTolerance < 0 || c.FeeTolerance >= 1 {
		problems = append(problems, fmt.Sprintf("fee_tolerance must be in [0,1), got %v", c.FeeTolerance))
	}
	if c.DecayTolerance < 0 || c.DecayTolerance >= 1 {
		problems = append(problems, fmt.Sprintf("decay_tolerance must be in [0,1), got %v", c.DecayTolerance))
	}
	switch c.Scope {
	case ScopeIllicit, ScopeGlobal:
	default:
		problems = append(problems, fmt.Sprintf("scope must be %q or %q, got %q", ScopeIllicit, ScopeGlobal, c.Scope))
	}

	return invalidParameters("detection", problems)
}

func positiveProblems(bounds ...positiveBound) []string {
	var problems []string
	for _, bound := range bounds {
		if bound.value < 1 {
			problems = append(problems, fmt.Sprintf("%s must be >= 1, got %d", bound.key, bound.value))
		}
	}
	return problems
}

type positiveBound struct {
	key   string
	value int
}

func cycleLengthProblems(minLen, maxLen int) []string {
	var problems []string
	if minLen < 2 {
		problems = append(problems, fmt.Sprintf("min_cycle_length must be >= 2, got %d", minLen))
	}
	if minLen > maxLen {
		problems = append(problems, fmt.Sprintf("min_cycle_length (%d) exceeds max_cycle_length (%d)", minLen, maxLen))
	}
	return problems
}

func peelThresholdProblems(threshold float64) []string {
	if !(threshold > 0 && threshold < 1) {
		return []string{fmt.Sprintf("peel_threshold must be in (0,1), got %v", threshold)}
	}
	return nil
}

// invalidParameters folds the collected problems into one ErrInvalidConfig
func invalidParameters(section string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", entity.ErrInvalidConfig, section, strings.Join(problems, "; "))
}

// ScoreWeights holds the final score coefficients
type ScoreWeights struct {
	Centrality         float64 `mapstructure:"centrality"`
	Proximity          float64 `mapstructure:"proximity"`
	PatternInvolvement float64 `mapstructure:"pattern_involvement"`
	StructuralAnomaly  float64 `mapstructure:"structural_anomaly"`
}

// Sum returns the total of the four weights
func (w ScoreWeights) Sum() float64 {
	return w.Centrality + w.Proximity + w.PatternInvolvement + w.StructuralAnomaly
}

// ScoringConfig holds the suspicion scorer parameters
type ScoringConfig struct {
	BetweennessSampleK     int          `mapstructure:"betweenness_sample_k"`
	BetweennessSeed        uint64       `mapstructure:"betweenness_seed"`
	PageRankDamping        float64      `mapstructure:"pagerank_damping"`
	PageRankMaxIterations  int          `mapstructure:"pagerank_max_iterations"`
	PageRankTolerance      float64      `mapstructure:"pagerank_tolerance"`
	ProximityDecay         float64      `mapstructure:"proximity_decay"`
	IllicitNeighborBonus   float64      `mapstructure:"illicit_neighbor_bonus"`
	IntermediateRoleWeight float64      `mapstructure:"intermediate_role_weight"`
	EndpointRoleWeight     float64      `mapstructure:"endpoint_role_weight"`
	ProximityDirection     string       `mapstructure:"proximity_direction"`
	Weights                ScoreWeights `mapstructure:"weights"`
}

// DefaultScoringConfig returns the scorer defaults
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BetweennessSampleK:     100,
		BetweennessSeed:        42,
		PageRankDamping:        0.85,
		PageRankMaxIterations:  100,
		PageRankTolerance:      1e-6,
		ProximityDecay:         0.3,
		IllicitNeighborBonus:   10,
		IntermediateRoleWeight: 0.7,
		EndpointRoleWeight:     1.0,
		ProximityDirection:     string(graph.Downstream),
		Weights: ScoreWeights{
			Centrality:         0.20,
			Proximity:          0.35,
			PatternInvolvement: 0.30,
			StructuralAnomaly:  0.15,
		},
	}
}

// Validate rejects inconsistent scoring parameters
func (c ScoringConfig) Validate() error {
	var problems []string

	if c.BetweennessSampleK < 1 {
		problems = append(problems, fmt.Sprintf("betweenness_sample_k must be >= 1, got %d", c.BetweennessSampleK))
	}
	if c.PageRankDamping <= 0 || c.PageRankDamping >= 1 {
		problems = append(problems, fmt.Sprintf("pagerank_damping must be in (0,1), got %v", c.PageRankDamping))
	}
	if c.PageRankMaxIterations < 1 {
		problems = append(problems, fmt.Sprintf("pagerank_max_iterations must be >= 1, got %d", c.PageRankMaxIterations))
	}
	if c.PageRankTolerance <= 0 {
		problems = append(problems, fmt.Sprintf("pagerank_tolerance must be > 0, got %v", c.PageRankTolerance))
	}
	if c.ProximityDecay <= 0 {
		problems = append(problems, fmt.Sprintf("proximity_decay must be > 0, got %v", c.ProximityDecay))
	}
	if c.IllicitNeighborBonus < 0 {
		problems = append(problems, fmt.Sprintf("illicit_neighbor_bonus must be >= 0, got %v", c.IllicitNeighborBonus))
	}
	if c.IntermediateRoleWeight < 0 || c.EndpointRoleWeight < 0 {
		problems = append(problems, "role weights must be >= 0")
	}
	if _, err := graph.ParseDirection(c.ProximityDirection); err != nil {
		problems = append(problems, fmt.Sprintf("proximity_direction %q is not one of downstream, upstream, undirected", c.ProximityDirection))
	}

	w := c.Weights
	if w.Centrality < 0 || w.Proximity < 0 || w.PatternInvolvement < 0 || w.StructuralAnomaly < 0 {
		problems = append(problems, "weights must be non-negative")
	}
	if math.Abs(w.Sum()-1) > 1e-9 {
		problems = append(problems, fmt.Sprintf("weights must sum to 1.0, got %v", w.Sum()))
	}

	return invalidParameters("scoring", problems)
}
