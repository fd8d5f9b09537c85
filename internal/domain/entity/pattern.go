package entity

import (
	"time"
)

// PatternType represents the topology class of a detected pattern
type PatternType string

const (
	PatternFanOutFanIn  PatternType = "fan_out_fan_in"
	PatternCyclic       PatternType = "cyclic"
	PatternLayered      PatternType = "layered"
	PatternPeelingChain PatternType = "peeling_chain"
)

// PatternTypes lists every pattern type in reporting order
var PatternTypes = []PatternType{
	PatternFanOutFanIn,
	PatternCyclic,
	PatternLayered,
	PatternPeelingChain,
}

// Role represents the part a wallet plays inside a pattern
type Role string

const (
	RoleSource       Role = "source"
	RoleIntermediate Role = "intermediate"
	RoleDestination  Role = "destination"
)

// Participant is a wallet together with its role in a pattern
type Participant struct {
	Wallet string `json:"wallet"`
	Role   Role   `json:"role"`
}

// SmurfingPattern represents a detected laundering topology.
// Exactly one of the payload pointers is set, matching Type.
type SmurfingPattern struct {
	ID             string        `json:"id"`
	Type           PatternType   `json:"type"`
	Participants   []Participant `json:"participants"`
	TransactionIDs []int         `json:"transaction_ids"`
	Score          float64       `json:"score"`
	TotalAmount    float64       `json:"total_amount"`
	HopCount       int           `json:"hop_count"`
	FirstActivity  time.Time     `json:"first_activity"`
	LastActivity   time.Time     `json:"last_activity"`

	FanOutFanIn *FanOutFanInDetail `json:"fan_out_fan_in,omitempty"`
	Cycle       *CycleDetail       `json:"cycle,omitempty"`
	Layered     *LayeredDetail     `json:"layered,omitempty"`
	Peeling     *PeelingDetail     `json:"peeling,omitempty"`
}

// FanOutFanInDetail holds the fan-out/fan-in payload
type FanOutFanInDetail struct {
	Source        string     `json:"source"`
	Intermediates []string   `json:"intermediates"`
	Destination   string     `json:"destination"`
	Paths         [][]string `json:"paths"`
	AmountOut     float64    `json:"amount_out"` // left the source on accepted branches
	AmountIn      float64    `json:"amount_in"`  // entered the destination on accepted paths
	Conservation  float64    `json:"conservation"`
}

// CycleDetail holds the cyclic payload; Wallets starts at the earliest hop
type CycleDetail struct {
	Wallets    []string  `json:"wallets"`
	Amounts    []float64 `json:"amounts"`
	Length     int       `json:"length"`
	DecayRatio float64   `json:"decay_ratio"` // mean per-hop retention
}

// LayeredDetail holds the layered payload; Layers[0] is the source
type LayeredDetail struct {
	Source           string             `json:"source"`
	Layers           [][]string         `json:"layers"`
	BranchingFactors []float64          `json:"branching_factors"`
	LayerAmounts     []float64          `json:"layer_amounts"`
	DecayCurve       []float64          `json:"decay_curve"`
	WalletAmounts    map[string]float64 `json:"wallet_amounts"`
}

// PeelHop is one step of a peeling chain
type PeelHop struct {
	From          string   `json:"from"`
	To            string   `json:"to"`
	Amount        float64  `json:"amount"`
	Remaining     float64  `json:"remaining"`
	PeelAmount    float64  `json:"peel_amount"`
	PeelFraction  float64  `json:"peel_fraction"`
	PeelReceivers []string `json:"peel_receivers"`
}

// PeelingDetail holds the peeling chain payload
type PeelingDetail struct {
	Chain []string  `json:"chain"`
	Hops  []PeelHop `json:"hops"`
}

// Wallets returns the participant wallets in pattern order
func (p *SmurfingPattern) Wallets() []string {
	wallets := make([]string, 0, len(p.Participants))
	for _, participant := range p.Participants {
		wallets = append(wallets, participant.Wallet)
	}
	return wallets
}

// RoleOf returns the role of a wallet inside the pattern
func (p *SmurfingPattern) RoleOf(wallet string) (Role, bool) {
	for _, participant := range p.Participants {
		if participant.Wallet == wallet {
			return participant.Role, true
		}
	}
	return "", false
}

// Involves reports whether the wallet participates in the pattern
func (p *SmurfingPattern) Involves(wallet string) bool {
	_, ok := p.RoleOf(wallet)
	return ok
}

// PatternSet maps each pattern type to its patterns in detection order
type PatternSet map[PatternType][]*SmurfingPattern

// All flattens the set in PatternTypes order
func (s PatternSet) All() []*SmurfingPattern {
	var all []*SmurfingPattern
	for _, patternType := range PatternTypes {
		all = append(all, s[patternType]...)
	}
	return all
}

// Count returns the total number of patterns
func (s PatternSet) Count() int {
	total := 0
	for _, patterns := range s {
		total += len(patterns)
	}
	return total
}

// PatternStatistics summarizes a detection pass
type PatternStatistics struct {
	TotalPatterns      int                 `json:"total_patterns"`
	ByType             map[PatternType]int `json:"by_type"`
	AvgSuspicionScore  float64             `json:"avg_suspicion_score"`
	MaxSuspicionScore  float64             `json:"max_suspicion_score"`
	TotalAmountFlagged float64             `json:"total_amount_flagged"`
}

// DetectionStats reports how a detector search ended
type DetectionStats struct {
	Candidates int  `json:"candidates"` // candidate roots or cycles examined
	Truncated  bool `json:"truncated"`  // a cap or ceiling cut the search short
	CapHits    int  `json:"cap_hits"`   // times a bound was reached
}

// Merge folds other into s
func (s *DetectionStats) Merge(other DetectionStats) {
	s.Candidates += other.Candidates
	s.CapHits += other.CapHits
	s.Truncated = s.Truncated || other.Truncated
}
