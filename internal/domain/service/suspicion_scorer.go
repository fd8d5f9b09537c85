package service

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/graph"
	"smurfing-hunter/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// SuspicionScorerService turns graph position, pattern involvement and
// structural anomaly into a risk score per wallet. One instance is a scoring
// session over a single graph and pattern set. Scores are computed on first
// query and cached until Invalidate.
type SuspicionScorerService struct {
	graph     *graph.Graph
	patterns  entity.PatternSet
	config    ScoringConfig
	direction graph.Direction
	logger    *logger.Logger

	mu          sync.Mutex
	scores      map[string]entity.WalletScore
	proximity   *graph.Proximity
	memberships map[string][]entity.PatternMembership
}

// NewSuspicionScorerService creates a scoring session
func NewSuspicionScorerService(g *graph.Graph, patterns entity.PatternSet, config ScoringConfig, logger *logger.Logger) (*SuspicionScorerService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	direction, err := graph.ParseDirection(config.ProximityDirection)
	if err != nil {
		return nil, err
	}
	return &SuspicionScorerService{
		graph:     g,
		patterns:  patterns,
		config:    config,
		direction: direction,
		logger:    logger.WithComponent("suspicion-scorer"),
	}, nil
}

// CalculateAllScores scores every wallet of the graph
func (sss *SuspicionScorerService) CalculateAllScores() map[string]entity.WalletScore {
	sss.mu.Lock()
	defer sss.mu.Unlock()
	sss.ensureScores()

	scores := make(map[string]entity.WalletScore, len(sss.scores))
	for wallet, score := range sss.scores {
		scores[wallet] = score
	}
	return scores
}

// Score returns the score record of one wallet
func (sss *SuspicionScorerService) Score(wallet string) (entity.WalletScore, error) {
	sss.mu.Lock()
	defer sss.mu.Unlock()

	if !sss.graph.HasWallet(wallet) {
		return entity.WalletScore{}, fmt.Errorf("%w: %s", entity.ErrWalletNotFound, wallet)
	}
	sss.ensureScores()
	return sss.scores[wallet], nil
}

// TopSuspicious returns the n highest scoring wallets, ties broken by wallet id
func (sss *SuspicionScorerService) TopSuspicious(n int) []entity.WalletScore {
	sss.mu.Lock()
	defer sss.mu.Unlock()
	sss.ensureScores()

	if n <= 0 {
		return []entity.WalletScore{}
	}
	ranked := make([]entity.WalletScore, 0, len(sss.scores))
	for _, score := range sss.scores {
		ranked = append(ranked, score)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Final != ranked[j].Final {
			return ranked[i].Final > ranked[j].Final
		}
		return ranked[i].Wallet < ranked[j].Wallet
	})
	return ranked[:min(n, len(ranked))]
}

// RiskDistribution counts wallets per risk level
func (sss *SuspicionScorerService) RiskDistribution() map[entity.RiskLevel]int {
	sss.mu.Lock()
	defer sss.mu.Unlock()
	sss.ensureScores()

	distribution := make(map[entity.RiskLevel]int, len(entity.RiskLevels))
	for _, level := range entity.RiskLevels {
		distribution[level] = 0
	}
	for _, score := range sss.scores {
		distribution[score.RiskLevel]++
	}
	return distribution
}

// RiskAssessment returns a wallet's score with the evidence behind it
func (sss *SuspicionScorerService) RiskAssessment(wallet string) (*entity.RiskAssessment, error) {
	sss.mu.Lock()
	defer sss.mu.Unlock()

	features, err := sss.graph.Features(wallet)
	if err != nil {
		return nil, err
	}
	sss.ensureScores()

	assessment := &entity.RiskAssessment{
		Score:                  sss.scores[wallet],
		IsIllicit:              sss.graph.IsIllicit(wallet),
		NearestIllicitDistance: -1,
		DirectIllicitNeighbors: sss.illicitNeighbors(wallet),
		Patterns:               append([]entity.PatternMembership{}, sss.memberships[wallet]...),
		Features:               features,
	}
	if distance, ok := sss.proximity.DistanceTo(wallet); ok {
		assessment.ReachesIllicit = true
		assessment.NearestIllicitDistance = distance
		assessment.PathFromIllicit = sss.proximity.PathTo(wallet)
	}
	return assessment, nil
}

// Memberships returns the patterns a wallet takes part in
func (sss *SuspicionScorerService) Memberships(wallet string) []entity.PatternMembership {
	sss.mu.Lock()
	defer sss.mu.Unlock()
	sss.ensureScores()
	return append([]entity.PatternMembership{}, sss.memberships[wallet]...)
}

// Invalidate drops every cached result; call it after the graph or patterns change
func (sss *SuspicionScorerService) Invalidate() {
	sss.mu.Lock()
	defer sss.mu.Unlock()
	sss.scores = nil
	sss.proximity = nil
	sss.memberships = nil
}

// ensureScores must be called with mu held
func (sss *SuspicionScorerService) ensureScores() {
	if sss.scores != nil {
		return
	}
	start := time.Now()

	adj := newAdjacency(sss.graph)
	sss.proximity = sss.graph.IllicitProximity(sss.direction)
	sss.memberships = sss.collectMemberships()

	centrality := sss.centralityScores(adj)
	involvement := sss.involvementScores(adj.nodes)
	anomaly := sss.anomalyScores(adj.nodes)
	weights := sss.config.Weights

	scores := make(map[string]entity.WalletScore, len(adj.nodes))
	for i, wallet := range adj.nodes {
		score := entity.WalletScore{
			Wallet:             wallet,
			Centrality:         centrality[i],
			Proximity:          sss.proximityScore(wallet),
			PatternInvolvement: involvement[i],
			StructuralAnomaly:  anomaly[i],
		}
		score.Final = clamp(weights.Centrality*score.Centrality+
			weights.Proximity*score.Proximity+
			weights.PatternInvolvement*score.PatternInvolvement+
			weights.StructuralAnomaly*score.StructuralAnomaly, 0, 100)
		score.RiskLevel = entity.RiskLevelForScore(score.Final)
		scores[wallet] = score
	}
	sss.scores = scores

	sss.logger.Info("Suspicion scores calculated",
		zap.Int("wallets", len(scores)),
		zap.Int("patterns", sss.patterns.Count()),
		zap.Duration("duration", time.Since(start)))
}

// centralityScores blends PageRank, sampled betweenness and closeness, each
// min-max normalized over the population first
func (sss *SuspicionScorerService) centralityScores(adj *adjacency) []float64 {
	cfg := sss.config
	pr := minMaxNormalize(pageRank(adj, cfg.PageRankDamping, cfg.PageRankMaxIterations, cfg.PageRankTolerance))
	bc := minMaxNormalize(betweenness(adj, cfg.BetweennessSampleK, cfg.BetweennessSeed))
	cc := minMaxNormalize(closeness(adj))

	scores := make([]float64, len(adj.nodes))
	for i := range scores {
		scores[i] = clamp(100*(0.4*pr[i]+0.4*bc[i]+0.2*cc[i]), 0, 100)
	}
	return scores
}

// proximityScore decays exponentially with hop distance to the illicit set.
// The neighbor bonus never lifts a wallet above the base score of the next
// closer distance, which keeps the score non-increasing in distance.
func (sss *SuspicionScorerService) proximityScore(wallet string) float64 {
	if sss.graph.IsIllicit(wallet) {
		return 100
	}
	distance, ok := sss.proximity.DistanceTo(wallet)
	if !ok {
		return 0
	}

	decay := sss.config.ProximityDecay
	base := 100 * math.Exp(-decay*float64(distance-1))
	ceiling := math.Min(100, 100*math.Exp(-decay*float64(distance-2)))
	bonus := sss.config.IllicitNeighborBonus * float64(sss.illicitNeighbors(wallet))
	return clamp(base+bonus, 0, ceiling)
}

func (sss *SuspicionScorerService) illicitNeighbors(wallet string) int {
	count := 0
	for _, neighbor := range sss.graph.Neighbors(wallet) {
		if neighbor != wallet && sss.graph.IsIllicit(neighbor) {
			count++
		}
	}
	return count
}

func (sss *SuspicionScorerService) collectMemberships() map[string][]entity.PatternMembership {
	memberships := make(map[string][]entity.PatternMembership)
	for _, pattern := range sss.patterns.All() {
		for _, participant := range pattern.Participants {
			memberships[participant.Wallet] = append(memberships[participant.Wallet], entity.PatternMembership{
				PatternID: pattern.ID,
				Type:      pattern.Type,
				Role:      participant.Role,
				Score:     pattern.Score,
			})
		}
	}
	return memberships
}

func (sss *SuspicionScorerService) roleWeight(role entity.Role) float64 {
	if role == entity.RoleIntermediate {
		return sss.config.IntermediateRoleWeight
	}
	return sss.config.EndpointRoleWeight
}

// involvementScores sums pattern score times role weight, scaled by the population maximum
func (sss *SuspicionScorerService) involvementScores(nodes []string) []float64 {
	raw := make([]float64, len(nodes))
	highest := 0.0
	for i, wallet := range nodes {
		for _, membership := range sss.memberships[wallet] {
			raw[i] += membership.Score * sss.roleWeight(membership.Role)
		}
		highest = math.Max(highest, raw[i])
	}
	return scaleToMax(raw, highest)
}

// anomalyScores takes the largest absolute z-score over the structural
// features, scaled by the population maximum. Features without variance
// contribute zero.
func (sss *SuspicionScorerService) anomalyScores(nodes []string) []float64 {
	const featureCount = 5
	columns := make([][]float64, featureCount)
	for f := range columns {
		columns[f] = make([]float64, len(nodes))
	}
	for i, wallet := range nodes {
		features, err := sss.graph.Features(wallet)
		if err != nil {
			continue
		}
		columns[0][i] = float64(features.InDegree)
		columns[1][i] = float64(features.OutDegree)
		columns[2][i] = features.FanOutRatio
		columns[3][i] = features.FanInRatio
		columns[4][i] = float64(features.TransactionCount)
	}

	raw := make([]float64, len(nodes))
	for _, column := range columns {
		m := mean(column)
		sd := populationStdDev(column)
		if sd == 0 {
			continue
		}
		for i, v := range column {
			raw[i] = math.Max(raw[i], math.Abs(v-m)/sd)
		}
	}

	highest := 0.0
	for _, v := range raw {
		highest = math.Max(highest, v)
	}
	return scaleToMax(raw, highest)
}

func scaleToMax(raw []float64, highest float64) []float64 {
	scaled := make([]float64, len(raw))
	if highest <= 0 {
		return scaled
	}
	for i, v := range raw {
		scaled[i] = clamp(100*v/highest, 0, 100)
	}
	return scaled
}
