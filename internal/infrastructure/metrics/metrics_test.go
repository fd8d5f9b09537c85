package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smurfing-hunter/internal/domain/entity"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDetection(t *testing.T) {
	m := NewAnalysisMetrics()
	patterns := entity.PatternSet{
		entity.PatternCyclic: {
			{ID: "c1", Type: entity.PatternCyclic, Score: 55},
			{ID: "c2", Type: entity.PatternCyclic, Score: 65},
		},
	}
	stats := map[entity.PatternType]entity.DetectionStats{
		entity.PatternCyclic: {Candidates: 12, CapHits: 1, Truncated: true},
	}

	m.RecordDetection(patterns, stats, 1234.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PatternsDetected.WithLabelValues("cyclic")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PatternsDetected.WithLabelValues("layered")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.CandidatesExamined.WithLabelValues("cyclic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchTruncations.WithLabelValues("cyclic")))
	assert.Equal(t, 1234.5, testutil.ToFloat64(m.FlaggedAmount))
}

func TestRecordDistributionAndRoles(t *testing.T) {
	m := NewAnalysisMetrics()
	m.RecordGraph(10, 25, 2)
	m.RecordRiskDistribution(map[entity.RiskLevel]int{entity.RiskLevelHigh: 3})
	m.RecordRoles([]*entity.NodeClassification{
		{PrimaryType: entity.NodeTypeMule},
		{PrimaryType: entity.NodeTypeMule},
		{PrimaryType: entity.NodeTypeOriginator},
	})

	assert.Equal(t, 25.0, testutil.ToFloat64(m.GraphTransactions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WalletsByRisk.WithLabelValues("HIGH")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WalletsByRisk.WithLabelValues("CRITICAL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WalletsByRole.WithLabelValues("MULE")))
}

func TestRecordRunAndAlerts(t *testing.T) {
	m := NewAnalysisMetrics()
	m.RecordRun(nil)
	m.RecordRun(errors.New("boom"))
	m.RecordAlert("wallet", nil)
	m.RecordAlert("wallet", errors.New("nats down"))
	m.ObservePhase("detect", time.Now().Add(-time.Second))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsPublished.WithLabelValues("wallet", "error")))
	assert.Positive(t, testutil.ToFloat64(m.LastRunTimestamp))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewAnalysisMetrics()
	m.RecordGraph(4, 3, 1)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "smurfing_hunter_graph_wallets 4")
}
