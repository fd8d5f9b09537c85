package entity

// NodeType represents the laundering role assigned to a wallet after analysis
type NodeType string

const (
	NodeTypeKnownIllicit NodeType = "KNOWN_ILLICIT" // Loaded from the illicit list
	NodeTypeOriginator   NodeType = "ORIGINATOR"    // Source of fan-out or layered dispersal
	NodeTypeMule         NodeType = "MULE"          // Intermediate hop inside a pattern
	NodeTypeConsolidator NodeType = "CONSOLIDATOR"  // Convergence point of a fan-in or final layer
	NodeTypePeeler       NodeType = "PEELER"        // Link of a peeling chain
	NodeTypeCycler       NodeType = "CYCLER"        // Member of a cyclic flow
	NodeTypeExposed      NodeType = "EXPOSED"       // Reachable from illicit funds, no pattern
	NodeTypeUninvolved   NodeType = "UNINVOLVED"    // No exposure detected
)

// RiskLevel represents the discrete risk band of a wallet
type RiskLevel string

const (
	RiskLevelCritical RiskLevel = "CRITICAL"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMinimal  RiskLevel = "MINIMAL"
)

// RiskLevels lists the bands from most to least severe
var RiskLevels = []RiskLevel{
	RiskLevelCritical,
	RiskLevelHigh,
	RiskLevelMedium,
	RiskLevelLow,
	RiskLevelMinimal,
}

// RiskLevelForScore maps a final score to its band; each band includes its lower bound
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskLevelCritical
	case score >= 60:
		return RiskLevelHigh
	case score >= 40:
		return RiskLevelMedium
	case score >= 20:
		return RiskLevelLow
	default:
		return RiskLevelMinimal
	}
}

// Severity orders risk levels, higher is worse
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLevelCritical:
		return 4
	case RiskLevelHigh:
		return 3
	case RiskLevelMedium:
		return 2
	case RiskLevelLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r is as severe as other
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Severity() >= other.Severity()
}

// IsPatternRole reports whether the node type comes from pattern membership
func (nt NodeType) IsPatternRole() bool {
	switch nt {
	case NodeTypeOriginator, NodeTypeMule, NodeTypeConsolidator, NodeTypePeeler, NodeTypeCycler:
		return true
	default:
		return false
	}
}

// NodeClassification represents the role label assigned to a wallet
type NodeClassification struct {
	Address        string     `json:"address"`
	PrimaryType    NodeType   `json:"primary_type"`
	SecondaryTypes []NodeType `json:"secondary_types"`
	RiskLevel      RiskLevel  `json:"risk_level"`
	Tags           []string   `json:"tags"`
}
