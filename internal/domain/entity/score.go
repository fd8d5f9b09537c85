package entity

// WalletScore is the per-wallet output of one scoring pass
type WalletScore struct {
	Wallet             string    `json:"wallet"`
	Centrality         float64   `json:"centrality"`
	Proximity          float64   `json:"proximity"`
	PatternInvolvement float64   `json:"pattern_involvement"`
	StructuralAnomaly  float64   `json:"structural_anomaly"`
	Final              float64   `json:"final"`
	RiskLevel          RiskLevel `json:"risk_level"`
}

// PatternMembership describes one pattern a wallet belongs to
type PatternMembership struct {
	PatternID string      `json:"pattern_id"`
	Type      PatternType `json:"type"`
	Role      Role        `json:"role"`
	Score     float64     `json:"score"`
}

// RiskAssessment is a score record with explanatory detail
type RiskAssessment struct {
	Score                  WalletScore         `json:"score"`
	IsIllicit              bool                `json:"is_illicit"`
	ReachesIllicit         bool                `json:"reaches_illicit"`
	NearestIllicitDistance int                 `json:"nearest_illicit_distance"` // -1 when unreachable
	PathFromIllicit        []string            `json:"path_from_illicit,omitempty"`
	DirectIllicitNeighbors int                 `json:"direct_illicit_neighbors"`
	Patterns               []PatternMembership `json:"patterns"`
	Features               WalletFeatures      `json:"features"`
	Classification         *NodeClassification `json:"classification,omitempty"`
}
