package metrics

import (
	"net/http"
	"time"

	"smurfing-hunter/internal/domain/entity"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smurfing_hunter"

// AnalysisMetrics contains the Prometheus metrics recorded by an analysis run
type AnalysisMetrics struct {
	registry *prometheus.Registry

	// Graph metrics
	GraphWallets      prometheus.Gauge
	GraphTransactions prometheus.Gauge
	IllicitWallets    prometheus.Gauge

	// Detection metrics
	PatternsDetected   *prometheus.CounterVec
	SearchTruncations  *prometheus.CounterVec
	CandidatesExamined *prometheus.CounterVec
	PatternScores      *prometheus.HistogramVec
	FlaggedAmount      prometheus.Gauge

	// Scoring and alerting metrics
	WalletsByRisk   *prometheus.GaugeVec
	WalletsByRole   *prometheus.GaugeVec
	AlertsPublished *prometheus.CounterVec

	// Run metrics
	PhaseDuration    *prometheus.HistogramVec
	RunsTotal        *prometheus.CounterVec
	LastRunTimestamp prometheus.Gauge
}

// NewAnalysisMetrics creates and registers the analysis metrics on a private registry
func NewAnalysisMetrics() *AnalysisMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &AnalysisMetrics{
		registry: registry,

		GraphWallets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "wallets",
			Help:      "Number of wallets in the analysed graph",
		}),
		GraphTransactions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "transactions",
			Help:      "Number of transactions in the analysed graph",
		}),
		IllicitWallets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "illicit_wallets",
			Help:      "Number of known illicit wallets present in the graph",
		}),

		PatternsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "patterns_detected_total",
			Help:      "Total number of smurfing patterns detected",
		}, []string{"pattern_type"}),
		SearchTruncations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "search_truncations_total",
			Help:      "Searches cut short by a cap or hop ceiling",
		}, []string{"pattern_type"}),
		CandidatesExamined: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "candidates_examined_total",
			Help:      "Candidate structures examined by the detectors",
		}, []string{"pattern_type"}),
		PatternScores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "pattern_score",
			Help:      "Distribution of pattern confidence scores",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}, []string{"pattern_type"}),
		FlaggedAmount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "flagged_amount",
			Help:      "Total amount moved inside detected patterns in the last run",
		}),

		WalletsByRisk: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "wallets",
			Help:      "Wallets per risk level in the last run",
		}, []string{"risk_level"}),
		WalletsByRole: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "classification",
			Name:      "wallets",
			Help:      "Wallets per assigned role in the last run",
		}, []string{"node_type"}),
		AlertsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "published_total",
			Help:      "Alerts published, by kind and outcome",
		}, []string{"kind", "status"}),

		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each analysis phase",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Analysis runs by outcome",
		}, []string{"status"}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
}

// ObservePhase records how long a phase took
func (m *AnalysisMetrics) ObservePhase(phase string, started time.Time) {
	m.PhaseDuration.WithLabelValues(phase).Observe(time.Since(started).Seconds())
}

// RecordGraph records graph size
func (m *AnalysisMetrics) RecordGraph(wallets, transactions, illicit int) {
	m.GraphWallets.Set(float64(wallets))
	m.GraphTransactions.Set(float64(transactions))
	m.IllicitWallets.Set(float64(illicit))
}

// RecordDetection records pattern counts, scores and search statistics
func (m *AnalysisMetrics) RecordDetection(patterns entity.PatternSet, stats map[entity.PatternType]entity.DetectionStats, flagged float64) {
	for _, patternType := range entity.PatternTypes {
		label := string(patternType)
		m.PatternsDetected.WithLabelValues(label).Add(float64(len(patterns[patternType])))
		for _, pattern := range patterns[patternType] {
			m.PatternScores.WithLabelValues(label).Observe(pattern.Score)
		}
		if s, ok := stats[patternType]; ok {
			m.CandidatesExamined.WithLabelValues(label).Add(float64(s.Candidates))
			m.SearchTruncations.WithLabelValues(label).Add(float64(s.CapHits))
		}
	}
	m.FlaggedAmount.Set(flagged)
}

// RecordRiskDistribution replaces the per-level wallet gauges
func (m *AnalysisMetrics) RecordRiskDistribution(distribution map[entity.RiskLevel]int) {
	for _, level := range entity.RiskLevels {
		m.WalletsByRisk.WithLabelValues(string(level)).Set(float64(distribution[level]))
	}
}

// RecordRoles replaces the per-role wallet gauges
func (m *AnalysisMetrics) RecordRoles(classifications []*entity.NodeClassification) {
	m.WalletsByRole.Reset()
	for _, classification := range classifications {
		m.WalletsByRole.WithLabelValues(string(classification.PrimaryType)).Inc()
	}
}

// RecordAlert counts one alert publication attempt
func (m *AnalysisMetrics) RecordAlert(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AlertsPublished.WithLabelValues(kind, status).Inc()
}

// RecordRun counts a finished run
func (m *AnalysisMetrics) RecordRun(err error) {
	if err != nil {
		m.RunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RunsTotal.WithLabelValues("success").Inc()
	m.LastRunTimestamp.SetToCurrentTime()
}

// Registry returns the registry backing the metrics
func (m *AnalysisMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *AnalysisMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
