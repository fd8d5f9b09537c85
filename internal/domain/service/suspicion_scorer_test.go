package service

import (
	"math"
	"sort"
	"testing"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScorer(t *testing.T, g *graph.Graph, patterns entity.PatternSet, mutate func(*ScoringConfig)) *SuspicionScorerService {
	t.Helper()
	cfg := DefaultScoringConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	scorer, err := NewSuspicionScorerService(g, patterns, cfg, testLogger(t))
	require.NoError(t, err)
	return scorer
}

func detectAndScore(t *testing.T, g *graph.Graph) (entity.PatternSet, *SuspicionScorerService) {
	t.Helper()
	patterns, _ := newDetector(t, g, nil).DetectAll()
	return patterns, newScorer(t, g, patterns, nil)
}

func mixedGraph(t *testing.T) *graph.Graph {
	return fanOutFanInGraph(t).
		send("Z", "P0", 480, 3).
		send("P0", "P1", 400, 4).
		send("P0", "S1", 40, 4).
		send("P1", "P2", 360, 5).
		send("P1", "S2", 36, 5).
		send("P2", "I1", 300, 6).
		send("W", "V", 10, 1).
		send("V", "U", 9, 2).
		build()
}

func TestScores_AreBounded(t *testing.T) {
	_, scorer := detectAndScore(t, mixedGraph(t))

	scores := scorer.CalculateAllScores()
	require.NotEmpty(t, scores)
	for wallet, score := range scores {
		for name, value := range map[string]float64{
			"centrality":          score.Centrality,
			"proximity":           score.Proximity,
			"pattern_involvement": score.PatternInvolvement,
			"structural_anomaly":  score.StructuralAnomaly,
			"final":               score.Final,
		} {
			assert.GreaterOrEqual(t, value, 0.0, "%s %s", wallet, name)
			assert.LessOrEqual(t, value, 100.0, "%s %s", wallet, name)
		}
		assert.Equal(t, entity.RiskLevelForScore(score.Final), score.RiskLevel)
	}
}

func TestScore_FinalIsWeightedSum(t *testing.T) {
	g := mixedGraph(t)
	_, scorer := detectAndScore(t, g)
	weights := DefaultScoringConfig().Weights

	for _, wallet := range g.Wallets() {
		score, err := scorer.Score(wallet)
		require.NoError(t, err)
		expected := weights.Centrality*score.Centrality +
			weights.Proximity*score.Proximity +
			weights.PatternInvolvement*score.PatternInvolvement +
			weights.StructuralAnomaly*score.StructuralAnomaly
		assert.InDelta(t, expected, score.Final, 1e-9)
	}
}

func TestProximity_IllicitIsExactly100AndUnreachableIsZero(t *testing.T) {
	_, scorer := detectAndScore(t, mixedGraph(t))

	illicit, err := scorer.Score("A")
	require.NoError(t, err)
	assert.Equal(t, 100.0, illicit.Proximity)

	for _, wallet := range []string{"W", "V", "U"} {
		score, err := scorer.Score(wallet)
		require.NoError(t, err)
		assert.Zero(t, score.Proximity, wallet)
		assert.Zero(t, score.PatternInvolvement, wallet)
	}
}

func TestProximity_DecaysWithDistance(t *testing.T) {
	g := newGraphBuilder(t).
		send("X", "A", 10, 1).
		send("A", "B", 10, 2).
		send("B", "C", 10, 3).
		send("C", "D", 10, 4).
		illicit("X").
		build()
	scorer := newScorer(t, g, entity.PatternSet{}, nil)

	expected := map[string]float64{
		"A": 100,
		"B": 100 * math.Exp(-0.3),
		"C": 100 * math.Exp(-0.6),
		"D": 100 * math.Exp(-0.9),
	}
	for wallet, want := range expected {
		score, err := scorer.Score(wallet)
		require.NoError(t, err)
		assert.InDelta(t, want, score.Proximity, 1e-9, wallet)
	}
}

func TestProximity_NeighborBonusKeepsOrderByDistance(t *testing.T) {
	g := newGraphBuilder(t).
		send("X", "A", 10, 1).
		send("A", "B", 10, 2).
		send("B", "C", 10, 3).
		send("B", "Y1", 1, 4).
		send("C", "Y1", 1, 4).
		send("C", "Y2", 1, 4).
		send("C", "Y3", 1, 4).
		send("C", "D", 10, 5).
		illicit("X", "Y1", "Y2", "Y3").
		build()
	scorer := newScorer(t, g, entity.PatternSet{}, nil)

	b, _ := scorer.Score("B")
	assert.InDelta(t, 100*math.Exp(-0.3)+10, b.Proximity, 1e-9, "one illicit neighbor adds the flat bonus")

	c, _ := scorer.Score("C")
	assert.InDelta(t, 100*math.Exp(-0.3), c.Proximity, 1e-9, "bonus is capped at the next closer distance")

	proximity := g.IllicitProximity(graph.Downstream)
	scores := scorer.CalculateAllScores()
	wallets := g.Wallets()
	for _, closer := range wallets {
		for _, farther := range wallets {
			dc, okc := proximity.DistanceTo(closer)
			df, okf := proximity.DistanceTo(farther)
			if okc && okf && dc < df {
				assert.GreaterOrEqual(t, scores[closer].Proximity, scores[farther].Proximity, "%s(d=%d) vs %s(d=%d)", closer, dc, farther, df)
			}
		}
	}
}

func TestPatternInvolvement_RoleWeights(t *testing.T) {
	g := fanOutFanInGraph(t).build()
	patterns, _ := newDetector(t, g, func(cfg *DetectorConfig) {
		cfg.MinFanOut = 5
		cfg.MinFanIn = 5
	}).DetectAll()
	require.Len(t, patterns[entity.PatternFanOutFanIn], 1)
	scorer := newScorer(t, g, patterns, nil)

	source, _ := scorer.Score("A")
	destination, _ := scorer.Score("Z")
	intermediate, _ := scorer.Score("I2")
	assert.InDelta(t, 100.0, source.PatternInvolvement, 1e-9)
	assert.InDelta(t, 100.0, destination.PatternInvolvement, 1e-9)
	assert.InDelta(t, 70.0, intermediate.PatternInvolvement, 1e-9)
}

func TestStructuralAnomaly_ZeroVarianceContributesNothing(t *testing.T) {
	g := newGraphBuilder(t).
		send("A", "B", 1, 1).
		send("B", "A", 1, 2).
		build()
	scorer := newScorer(t, g, entity.PatternSet{}, nil)

	for _, wallet := range []string{"A", "B"} {
		score, err := scorer.Score(wallet)
		require.NoError(t, err)
		assert.Zero(t, score.StructuralAnomaly)
		assert.InDelta(t, 50.0, score.Centrality, 1e-9, "identical wallets sit at the midpoint")
	}
}

func TestStructuralAnomaly_HubStandsOut(t *testing.T) {
	_, scorer := detectAndScore(t, fanOutFanInGraph(t).build())

	hub, _ := scorer.Score("A")
	leaf, _ := scorer.Score("I1")
	assert.InDelta(t, 100.0, math.Max(hub.StructuralAnomaly, mustScore(t, scorer, "Z").StructuralAnomaly), 1e-9)
	assert.Greater(t, hub.StructuralAnomaly, leaf.StructuralAnomaly)
}

func mustScore(t *testing.T, scorer *SuspicionScorerService, wallet string) entity.WalletScore {
	t.Helper()
	score, err := scorer.Score(wallet)
	require.NoError(t, err)
	return score
}

func TestTopSuspicious(t *testing.T) {
	g := mixedGraph(t)
	_, scorer := detectAndScore(t, g)

	top := scorer.TopSuspicious(5)
	require.Len(t, top, 5)
	assert.True(t, sort.SliceIsSorted(top, func(i, j int) bool {
		if top[i].Final != top[j].Final {
			return top[i].Final > top[j].Final
		}
		return top[i].Wallet < top[j].Wallet
	}))

	all := scorer.TopSuspicious(1000)
	assert.Len(t, all, g.WalletCount())
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Final, all[i].Final)
	}

	assert.Empty(t, scorer.TopSuspicious(0))
}

func TestTopSuspicious_TiesBrokenByWallet(t *testing.T) {
	g := newGraphBuilder(t).
		send("B", "A", 1, 1).
		send("A", "B", 1, 2).
		build()
	scorer := newScorer(t, g, entity.PatternSet{}, nil)

	top := scorer.TopSuspicious(2)
	require.Len(t, top, 2)
	assert.Equal(t, top[0].Final, top[1].Final)
	assert.Equal(t, []string{"A", "B"}, []string{top[0].Wallet, top[1].Wallet})
}

func TestScore_UnknownWallet(t *testing.T) {
	_, scorer := detectAndScore(t, mixedGraph(t))

	_, err := scorer.Score("ghost")
	assert.ErrorIs(t, err, entity.ErrWalletNotFound)

	_, err = scorer.RiskAssessment("ghost")
	assert.ErrorIs(t, err, entity.ErrWalletNotFound)
}

func TestRiskAssessment(t *testing.T) {
	g := mixedGraph(t)
	_, scorer := detectAndScore(t, g)

	assessment, err := scorer.RiskAssessment("Z")
	require.NoError(t, err)
	assert.False(t, assessment.IsIllicit)
	assert.True(t, assessment.ReachesIllicit)
	assert.Equal(t, 2, assessment.NearestIllicitDistance)
	assert.Equal(t, []string{"A", "I1", "Z"}, assessment.PathFromIllicit)
	assert.Zero(t, assessment.DirectIllicitNeighbors)
	require.NotEmpty(t, assessment.Patterns)
	assert.Equal(t, entity.RoleDestination, assessment.Patterns[0].Role)
	assert.Equal(t, 5, assessment.Features.InDegree)

	neighbor, err := scorer.RiskAssessment("I3")
	require.NoError(t, err)
	assert.Equal(t, 1, neighbor.DirectIllicitNeighbors)
	assert.Equal(t, 1, neighbor.NearestIllicitDistance)

	isolated, err := scorer.RiskAssessment("W")
	require.NoError(t, err)
	assert.False(t, isolated.ReachesIllicit)
	assert.Equal(t, -1, isolated.NearestIllicitDistance)
	assert.Nil(t, isolated.PathFromIllicit)
	assert.Empty(t, isolated.Patterns)
}

func TestRiskDistribution(t *testing.T) {
	g := mixedGraph(t)
	_, scorer := detectAndScore(t, g)

	distribution := scorer.RiskDistribution()
	total := 0
	for _, level := range entity.RiskLevels {
		count, ok := distribution[level]
		assert.True(t, ok)
		total += count
	}
	assert.Equal(t, g.WalletCount(), total)
}

func TestInvalidate_RecomputesAfterGraphChange(t *testing.T) {
	g := fanOutFanInGraph(t).build()
	scorer := newScorer(t, g, entity.PatternSet{}, nil)

	_, err := scorer.Score("Late")
	require.ErrorIs(t, err, entity.ErrWalletNotFound)
	before := len(scorer.CalculateAllScores())

	_, err = g.AddTransaction(entity.Transaction{From: "Z", To: "Late", Amount: 5, Timestamp: hour(9)})
	require.NoError(t, err)
	assert.Len(t, scorer.CalculateAllScores(), before, "cached until invalidated")

	scorer.Invalidate()
	assert.Len(t, scorer.CalculateAllScores(), before+1)
	late, err := scorer.Score("Late")
	require.NoError(t, err)
	assert.InDelta(t, 100*math.Exp(-0.6), late.Proximity, 1e-9)
}

func TestScoring_Deterministic(t *testing.T) {
	g := mixedGraph(t)
	_, first := detectAndScore(t, g)
	_, second := detectAndScore(t, g)
	assert.Equal(t, first.CalculateAllScores(), second.CalculateAllScores())
	assert.Equal(t, first.TopSuspicious(3), second.TopSuspicious(3))
}

func TestNewSuspicionScorerService_RejectsBadConfig(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.Weights.Proximity = 0.5
	_, err := NewSuspicionScorerService(graph.New(), entity.PatternSet{}, cfg, testLogger(t))
	assert.ErrorIs(t, err, entity.ErrInvalidConfig)
}
