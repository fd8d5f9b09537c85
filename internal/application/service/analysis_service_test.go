package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/service"
	"smurfing-hunter/internal/infrastructure/logger"
	"smurfing-hunter/internal/infrastructure/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTransactionRepo struct {
	transactions []*entity.Transaction
	err          error
}

func (r *fakeTransactionRepo) LoadTransactions(ctx context.Context) ([]*entity.Transaction, error) {
	return r.transactions, r.err
}

type fakeIllicitRepo struct {
	illicit map[string]string
	err     error
}

func (r *fakeIllicitRepo) GetIllicitWallets(ctx context.Context) (map[string]string, error) {
	return r.illicit, r.err
}

type fakeResultRepo struct {
	mu              sync.Mutex
	patterns        []*entity.SmurfingPattern
	scores          []entity.WalletScore
	classifications []*entity.NodeClassification
	err             error
}

func (r *fakeResultRepo) SavePatterns(ctx context.Context, patterns []*entity.SmurfingPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = patterns
	return r.err
}

func (r *fakeResultRepo) SaveScores(ctx context.Context, scores []entity.WalletScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = scores
	return nil
}

func (r *fakeResultRepo) SaveClassifications(ctx context.Context, classifications []*entity.NodeClassification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifications = classifications
	return nil
}

type fakePublisher struct {
	mu             sync.Mutex
	walletAlerts   []*entity.WalletAlert
	patternAlerts  []*entity.PatternAlert
	failPatternsOf entity.PatternType
}

func (p *fakePublisher) PublishWalletAlert(ctx context.Context, alert *entity.WalletAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.walletAlerts = append(p.walletAlerts, alert)
	return nil
}

func (p *fakePublisher) PublishPatternAlert(ctx context.Context, alert *entity.PatternAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if alert.Type == p.failPatternsOf {
		return errors.New("broker unavailable")
	}
	p.patternAlerts = append(p.patternAlerts, alert)
	return nil
}

var epoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func transfer(from, to string, amount float64, hour int) *entity.Transaction {
	return &entity.Transaction{From: from, To: to, Amount: amount, Timestamp: epoch.Add(time.Duration(hour) * time.Hour), Token: "ETH"}
}

// fanOutFanInTransactions: illicit A splits to five mules that converge on Z, plus an unrelated pair
func fanOutFanInTransactions() []*entity.Transaction {
	var transactions []*entity.Transaction
	for _, mule := range []string{"I1", "I2", "I3", "I4", "I5"} {
		transactions = append(transactions, transfer("A", mule, 100, 1), transfer(mule, "Z", 98, 2))
	}
	return append(transactions, transfer("W", "V", 10, 1))
}

type harness struct {
	service   *AnalysisApplicationService
	results   *fakeResultRepo
	publisher *fakePublisher
	metrics   *metrics.AnalysisMetrics
}

func newHarness(t *testing.T, transactions *fakeTransactionRepo, illicit *fakeIllicitRepo, minLevel entity.RiskLevel) *harness {
	t.Helper()
	log := logger.NewFromZap(zaptest.NewLogger(t))
	h := &harness{
		results:   &fakeResultRepo{},
		publisher: &fakePublisher{},
		metrics:   metrics.NewAnalysisMetrics(),
	}
	h.service = NewAnalysisApplicationService(
		transactions,
		illicit,
		h.results,
		h.publisher,
		service.NewWalletClassifierService(log),
		h.metrics,
		AnalysisOptions{
			Detection:         service.DefaultDetectorConfig(),
			Scoring:           service.DefaultScoringConfig(),
			TopN:              3,
			AlertMinRiskLevel: minLevel,
		},
		log,
	)
	return h
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t,
		&fakeTransactionRepo{transactions: fanOutFanInTransactions()},
		&fakeIllicitRepo{illicit: map[string]string{"A": "ransomware", "GHOST": "not in graph"}},
		entity.RiskLevelMinimal)

	report, err := h.service.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 9, report.Wallets)
	assert.Equal(t, 11, report.Transactions)
	assert.Equal(t, 1, report.IllicitWallets)
	assert.Len(t, report.TopSuspicious, 3)
	for _, patternType := range entity.PatternTypes {
		assert.Contains(t, report.DetectionStats, patternType)
	}
	assert.GreaterOrEqual(t, report.Statistics.ByType[entity.PatternFanOutFanIn], 1)

	total := 0
	for _, count := range report.RiskDistribution {
		total += count
	}
	assert.Equal(t, report.Wallets, total)
	assert.Equal(t, 1, report.RoleCounts[entity.NodeTypeKnownIllicit])
	assert.Equal(t, 5, report.RoleCounts[entity.NodeTypeMule])

	// persisted
	assert.Len(t, h.results.patterns, report.Statistics.TotalPatterns)
	assert.Len(t, h.results.scores, report.Wallets)
	assert.Len(t, h.results.classifications, report.Wallets)
	for i := 1; i < len(h.results.scores); i++ {
		assert.GreaterOrEqual(t, h.results.scores[i-1].Final, h.results.scores[i].Final)
	}

	// published: every wallet clears MINIMAL, every pattern is summarized
	assert.Equal(t, report.Wallets, report.WalletAlerts)
	assert.Len(t, h.publisher.walletAlerts, report.Wallets)
	assert.Len(t, h.publisher.patternAlerts, report.Statistics.TotalPatterns)
	assert.Zero(t, report.AlertFailures)
	for _, alert := range h.publisher.walletAlerts {
		assert.Equal(t, report.RunID, alert.RunID)
		if alert.Wallet == "W" {
			assert.Equal(t, -1, alert.NearestIllicit)
			assert.Empty(t, alert.PatternIDs)
		}
		if alert.Wallet == "Z" {
			assert.Equal(t, 2, alert.NearestIllicit)
			assert.NotEmpty(t, alert.PatternIDs)
		}
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 9.0, testutil.ToFloat64(h.metrics.GraphWallets))

	last, ok := h.service.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)
}

func TestRun_AlertThresholdFiltersWallets(t *testing.T) {
	h := newHarness(t,
		&fakeTransactionRepo{transactions: fanOutFanInTransactions()},
		&fakeIllicitRepo{illicit: map[string]string{"A": "ransomware"}},
		entity.RiskLevelCritical)

	report, err := h.service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, report.RiskDistribution[entity.RiskLevelCritical], report.WalletAlerts)
	for _, alert := range h.publisher.walletAlerts {
		assert.Equal(t, entity.RiskLevelCritical, alert.Score.RiskLevel)
	}
}

func TestRun_PublishFailuresAreCounted(t *testing.T) {
	h := newHarness(t,
		&fakeTransactionRepo{transactions: fanOutFanInTransactions()},
		&fakeIllicitRepo{illicit: map[string]string{"A": "ransomware"}},
		entity.RiskLevelCritical)
	h.publisher.failPatternsOf = entity.PatternFanOutFanIn

	report, err := h.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Statistics.ByType[entity.PatternFanOutFanIn], report.AlertFailures)
	assert.Equal(t, float64(report.AlertFailures), testutil.ToFloat64(h.metrics.AlertsPublished.WithLabelValues("pattern", "error")))
}

func TestRun_Failures(t *testing.T) {
	loadErr := errors.New("disk on fire")

	tests := []struct {
		name         string
		transactions *fakeTransactionRepo
		illicit      *fakeIllicitRepo
		saveErr      error
		want         error
	}{
		{
			name:         "transaction source",
			transactions: &fakeTransactionRepo{err: loadErr},
			illicit:      &fakeIllicitRepo{},
			want:         loadErr,
		},
		{
			name:         "illicit source",
			transactions: &fakeTransactionRepo{transactions: fanOutFanInTransactions()},
			illicit:      &fakeIllicitRepo{err: loadErr},
			want:         loadErr,
		},
		{
			name:         "malformed transaction",
			transactions: &fakeTransactionRepo{transactions: []*entity.Transaction{transfer("A", "B", 0, 1)}},
			illicit:      &fakeIllicitRepo{},
			want:         entity.ErrMalformedTransaction,
		},
		{
			name:         "persistence",
			transactions: &fakeTransactionRepo{transactions: fanOutFanInTransactions()},
			illicit:      &fakeIllicitRepo{illicit: map[string]string{"A": "ransomware"}},
			saveErr:      loadErr,
			want:         loadErr,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.transactions, tt.illicit, entity.RiskLevelHigh)
			h.results.err = tt.saveErr

			_, err := h.service.Run(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("error")))

			_, ok := h.service.LastReport()
			assert.False(t, ok)
		})
	}
}

func TestInvestigate(t *testing.T) {
	h := newHarness(t,
		&fakeTransactionRepo{transactions: fanOutFanInTransactions()},
		&fakeIllicitRepo{illicit: map[string]string{"A": "ransomware"}},
		entity.RiskLevelHigh)
	ctx := context.Background()

	_, err := h.service.Investigate(ctx, "I1", 1)
	assert.ErrorIs(t, err, ErrNoAnalysis)
	_, err = h.service.Patterns("")
	assert.ErrorIs(t, err, ErrNoAnalysis)

	_, err = h.service.Run(ctx)
	require.NoError(t, err)

	investigation, err := h.service.Investigate(ctx, "I1", 1)
	require.NoError(t, err)

	assessment := investigation.Assessment
	assert.Equal(t, "I1", assessment.Score.Wallet)
	assert.Equal(t, 1, assessment.NearestIllicitDistance)
	assert.Equal(t, []string{"A", "I1"}, assessment.PathFromIllicit)
	require.NotNil(t, assessment.Classification)
	assert.Equal(t, entity.NodeTypeMule, assessment.Classification.PrimaryType)

	neighborhood := investigation.Neighborhood
	assert.Equal(t, 3, neighborhood.LocalNodes)
	assert.Equal(t, 2, neighborhood.LocalEdges)
	assert.InDelta(t, 2.0/6.0, neighborhood.LocalDensity, 1e-12)
	assert.Equal(t, 0.0, neighborhood.ClusteringCoefficient)
	assert.Equal(t, 1, neighborhood.IllicitNeighbors)
	assert.InDelta(t, 1.0/3.0, neighborhood.IllicitRatio, 1e-12)

	_, err = h.service.Investigate(ctx, "nobody", 2)
	assert.ErrorIs(t, err, entity.ErrWalletNotFound)

	fanOut, err := h.service.Patterns(entity.PatternFanOutFanIn)
	require.NoError(t, err)
	assert.NotEmpty(t, fanOut)
}
