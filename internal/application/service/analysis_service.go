package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/graph"
	"smurfing-hunter/internal/domain/repository"
	"smurfing-hunter/internal/domain/service"
	"smurfing-hunter/internal/infrastructure/logger"
	"smurfing-hunter/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoAnalysis is returned when a query needs a completed run
var ErrNoAnalysis = errors.New("no completed analysis")

// alertNamespace scopes alert IDs derived from run ID and subject
var alertNamespace = uuid.MustParse("9b1c3a52-6f0e-4d8b-a8f4-2f3c1d7e5b60")

const alertPublishConcurrency = 8

// AnalysisOptions holds the run parameters
type AnalysisOptions struct {
	Detection         service.DetectorConfig
	Scoring           service.ScoringConfig
	TopN              int
	AlertMinRiskLevel entity.RiskLevel
}

// AnalysisReport summarizes one analysis run
type AnalysisReport struct {
	RunID            string                                       `json:"run_id"`
	StartedAt        time.Time                                    `json:"started_at"`
	FinishedAt       time.Time                                    `json:"finished_at"`
	Wallets          int                                          `json:"wallets"`
	Transactions     int                                          `json:"transactions"`
	IllicitWallets   int                                          `json:"illicit_wallets"`
	Statistics       entity.PatternStatistics                     `json:"statistics"`
	DetectionStats   map[entity.PatternType]entity.DetectionStats `json:"detection_stats"`
	RiskDistribution map[entity.RiskLevel]int                     `json:"risk_distribution"`
	RoleCounts       map[entity.NodeType]int                      `json:"role_counts"`
	TopSuspicious    []entity.WalletScore                         `json:"top_suspicious"`
	WalletAlerts     int                                          `json:"wallet_alerts"`
	PatternAlerts    int                                          `json:"pattern_alerts"`
	AlertFailures    int                                          `json:"alert_failures"`
}

// NeighborhoodSummary describes the subgraph around a wallet
type NeighborhoodSummary struct {
	Wallet                string  `json:"wallet"`
	Radius                int     `json:"radius"`
	LocalNodes            int     `json:"local_nodes"`
	LocalEdges            int     `json:"local_edges"`
	LocalDensity          float64 `json:"local_density"`
	ClusteringCoefficient float64 `json:"clustering_coefficient"`
	IllicitNeighbors      int     `json:"illicit_neighbors"`
	IllicitRatio          float64 `json:"illicit_ratio"`
}

// Investigation is the drill-down view of a single wallet
type Investigation struct {
	Assessment   *entity.RiskAssessment `json:"assessment"`
	Neighborhood NeighborhoodSummary    `json:"neighborhood"`
}

// analysisSession keeps the state of the last completed run for queries
type analysisSession struct {
	graph    *graph.Graph
	patterns entity.PatternSet
	scorer   *service.SuspicionScorerService
	report   *AnalysisReport
}

// AnalysisApplicationService runs the detection pipeline end to end
type AnalysisApplicationService struct {
	transactionRepo repository.TransactionRepository
	illicitRepo     repository.IllicitWalletRepository
	resultRepo      repository.AnalysisResultRepository
	publisher       service.AlertPublisher
	classifier      *service.WalletClassifierService
	metrics         *metrics.AnalysisMetrics
	options         AnalysisOptions
	logger          *logger.Logger

	mu      sync.RWMutex
	session *analysisSession
}

// NewAnalysisApplicationService creates a new analysis application service
func NewAnalysisApplicationService(
	transactionRepo repository.TransactionRepository,
	illicitRepo repository.IllicitWalletRepository,
	resultRepo repository.AnalysisResultRepository,
	publisher service.AlertPublisher,
	classifier *service.WalletClassifierService,
	metrics *metrics.AnalysisMetrics,
	options AnalysisOptions,
	logger *logger.Logger,
) *AnalysisApplicationService {
	return &AnalysisApplicationService{
		transactionRepo: transactionRepo,
		illicitRepo:     illicitRepo,
		resultRepo:      resultRepo,
		publisher:       publisher,
		classifier:      classifier,
		metrics:         metrics,
		options:         options,
		logger:          logger.WithComponent("analysis-service"),
	}
}

// Run loads the transaction graph, detects patterns, scores and classifies
// every wallet, persists the results and publishes alerts
func (s *AnalysisApplicationService) Run(ctx context.Context) (*AnalysisReport, error) {
	runID := uuid.NewString()
	log := s.logger.WithFields(map[string]interface{}{"run_id": runID})
	log.Info("Starting analysis run")

	report, err := s.run(ctx, runID, log)
	s.metrics.RecordRun(err)
	if err != nil {
		log.Error("Analysis run failed", zap.Error(err))
		return nil, err
	}

	log.Info("Analysis run completed",
		zap.Int("wallets", report.Wallets),
		zap.Int("patterns", report.Statistics.TotalPatterns),
		zap.Int("wallet_alerts", report.WalletAlerts),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (s *AnalysisApplicationService) run(ctx context.Context, runID string, log *logger.Logger) (*AnalysisReport, error) {
	report := &AnalysisReport{RunID: runID, StartedAt: time.Now().UTC()}

	g, err := s.buildGraph(ctx, log)
	if err != nil {
		return nil, err
	}
	report.Wallets = g.WalletCount()
	report.Transactions = g.TransactionCount()
	report.IllicitWallets = len(g.IllicitWallets())
	s.metrics.RecordGraph(report.Wallets, report.Transactions, report.IllicitWallets)

	phase := time.Now()
	detector, err := service.NewPatternDetectorService(g, s.options.Detection, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern detector: %w", err)
	}
	patterns, detectionStats := detector.DetectAll()
	report.Statistics = detector.Statistics(patterns)
	report.DetectionStats = detectionStats
	s.metrics.ObservePhase("detect", phase)
	s.metrics.RecordDetection(patterns, detectionStats, report.Statistics.TotalAmountFlagged)

	phase = time.Now()
	scorer, err := service.NewSuspicionScorerService(g, patterns, s.options.Scoring, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create suspicion scorer: %w", err)
	}
	scorer.CalculateAllScores()
	ranked := scorer.TopSuspicious(g.WalletCount())
	report.RiskDistribution = scorer.RiskDistribution()
	report.TopSuspicious = scorer.TopSuspicious(s.options.TopN)
	s.metrics.ObservePhase("score", phase)
	s.metrics.RecordRiskDistribution(report.RiskDistribution)

	phase = time.Now()
	classifications, err := s.classifier.ClassifyAll(scorer, g.Wallets())
	if err != nil {
		return nil, fmt.Errorf("failed to classify wallets: %w", err)
	}
	report.RoleCounts = make(map[entity.NodeType]int)
	for _, classification := range classifications {
		report.RoleCounts[classification.PrimaryType]++
	}
	s.metrics.ObservePhase("classify", phase)
	s.metrics.RecordRoles(classifications)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	phase = time.Now()
	if err := s.persist(ctx, patterns, ranked, classifications); err != nil {
		return nil, err
	}
	s.metrics.ObservePhase("persist", phase)

	phase = time.Now()
	s.publishAlerts(ctx, runID, report, scorer, patterns, ranked, classifications, log)
	s.metrics.ObservePhase("publish", phase)

	report.FinishedAt = time.Now().UTC()

	s.mu.Lock()
	s.session = &analysisSession{graph: g, patterns: patterns, scorer: scorer, report: report}
	s.mu.Unlock()

	return report, nil
}

// buildGraph loads transactions and the illicit list concurrently, then builds the graph
func (s *AnalysisApplicationService) buildGraph(ctx context.Context, log *logger.Logger) (*graph.Graph, error) {
	phase := time.Now()

	var (
		transactions []*entity.Transaction
		illicit      map[string]string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		loaded, err := s.transactionRepo.LoadTransactions(groupCtx)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}
		transactions = loaded
		return nil
	})
	group.Go(func() error {
		loaded, err := s.illicitRepo.GetIllicitWallets(groupCtx)
		if err != nil {
			return fmt.Errorf("failed to load illicit wallets: %w", err)
		}
		illicit = loaded
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	s.metrics.ObservePhase("load", phase)

	phase = time.Now()
	g := graph.New()
	for _, tx := range transactions {
		if _, err := g.AddTransaction(*tx); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}
	g.MarkIllicit(illicit)

	missing := 0
	for address := range illicit {
		if !g.HasWallet(address) {
			missing++
		}
	}
	if missing > 0 {
		log.Warn("Illicit wallets absent from the transaction graph",
			zap.Int("missing", missing),
			zap.Int("listed", len(illicit)))
	}
	s.metrics.ObservePhase("build", phase)

	log.Info("Transaction graph built",
		zap.Int("wallets", g.WalletCount()),
		zap.Int("transactions", g.TransactionCount()),
		zap.Int("edges", g.EdgeCount()),
		zap.Int("illicit", len(g.IllicitWallets())))
	return g, nil
}

// persist writes patterns, scores and classifications concurrently
func (s *AnalysisApplicationService) persist(
	ctx context.Context,
	patterns entity.PatternSet,
	scores []entity.WalletScore,
	classifications []*entity.NodeClassification,
) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.resultRepo.SavePatterns(groupCtx, patterns.All())
	})
	group.Go(func() error {
		return s.resultRepo.SaveScores(groupCtx, scores)
	})
	group.Go(func() error {
		return s.resultRepo.SaveClassifications(groupCtx, classifications)
	})
	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed to persist analysis results: %w", err)
	}
	return nil
}

// publishAlerts pushes wallet alerts at or above the configured level and a
// summary of every pattern. Publishing failures are counted, not fatal.
func (s *AnalysisApplicationService) publishAlerts(
	ctx context.Context,
	runID string,
	report *AnalysisReport,
	scorer *service.SuspicionScorerService,
	patterns entity.PatternSet,
	ranked []entity.WalletScore,
	classifications []*entity.NodeClassification,
	log *logger.Logger,
) {
	byWallet := make(map[string]*entity.NodeClassification, len(classifications))
	for _, classification := range classifications {
		byWallet[classification.Address] = classification
	}

	raisedAt := time.Now().UTC()
	var walletAlerts []*entity.WalletAlert
	for _, score := range ranked {
		if !score.RiskLevel.AtLeast(s.options.AlertMinRiskLevel) {
			continue
		}
		walletAlerts = append(walletAlerts, s.walletAlert(runID, score, scorer, byWallet[score.Wallet], raisedAt))
	}

	var patternAlerts []*entity.PatternAlert
	for _, pattern := range patterns.All() {
		patternAlerts = append(patternAlerts, &entity.PatternAlert{
			ID:          alertID(runID, "pattern", pattern.ID),
			RunID:       runID,
			PatternID:   pattern.ID,
			Type:        pattern.Type,
			Score:       pattern.Score,
			TotalAmount: pattern.TotalAmount,
			Wallets:     pattern.Wallets(),
			HopCount:    pattern.HopCount,
			RaisedAt:    raisedAt,
		})
	}

	var failures atomic.Int64
	group := new(errgroup.Group)
	group.SetLimit(alertPublishConcurrency)
	for _, alert := range walletAlerts {
		group.Go(func() error {
			err := s.publisher.PublishWalletAlert(ctx, alert)
			s.metrics.RecordAlert("wallet", err)
			if err != nil {
				failures.Add(1)
				log.Warn("Failed to publish wallet alert", zap.String("wallet", alert.Wallet), zap.Error(err))
			}
			return nil
		})
	}
	for _, alert := range patternAlerts {
		group.Go(func() error {
			err := s.publisher.PublishPatternAlert(ctx, alert)
			s.metrics.RecordAlert("pattern", err)
			if err != nil {
				failures.Add(1)
				log.Warn("Failed to publish pattern alert", zap.String("pattern_id", alert.PatternID), zap.Error(err))
			}
			return nil
		})
	}
	_ = group.Wait()

	report.WalletAlerts = len(walletAlerts)
	report.PatternAlerts = len(patternAlerts)
	report.AlertFailures = int(failures.Load())
}

func (s *AnalysisApplicationService) walletAlert(
	runID string,
	score entity.WalletScore,
	scorer *service.SuspicionScorerService,
	classification *entity.NodeClassification,
	raisedAt time.Time,
) *entity.WalletAlert {
	alert := &entity.WalletAlert{
		ID:             alertID(runID, "wallet", score.Wallet),
		RunID:          runID,
		Wallet:         score.Wallet,
		Score:          score,
		PrimaryType:    entity.NodeTypeUninvolved,
		Tags:           []string{},
		PatternIDs:     []string{},
		NearestIllicit: -1,
		RaisedAt:       raisedAt,
	}
	if classification != nil {
		alert.PrimaryType = classification.PrimaryType
		alert.Tags = classification.Tags
	}
	for _, membership := range scorer.Memberships(score.Wallet) {
		alert.PatternIDs = append(alert.PatternIDs, membership.PatternID)
	}
	if assessment, err := scorer.RiskAssessment(score.Wallet); err == nil {
		alert.NearestIllicit = assessment.NearestIllicitDistance
	}
	return alert
}

// Investigate explains the score of one wallet from the last run and
// summarizes its neighborhood within the given radius
func (s *AnalysisApplicationService) Investigate(ctx context.Context, wallet string, hops int) (*Investigation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session == nil {
		return nil, ErrNoAnalysis
	}
	if hops < 0 {
		hops = 0
	}

	assessment, err := session.scorer.RiskAssessment(wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to assess wallet %s: %w", wallet, err)
	}
	assessment.Classification = s.classifier.Classify(assessment)

	sub, err := session.graph.SubgraphAround(wallet, hops)
	if err != nil {
		return nil, fmt.Errorf("failed to extract neighborhood of %s: %w", wallet, err)
	}
	clustering, err := sub.ClusteringCoefficient(wallet)
	if err != nil {
		return nil, err
	}

	neighborhood := NeighborhoodSummary{
		Wallet:                wallet,
		Radius:                hops,
		LocalNodes:            sub.WalletCount(),
		LocalEdges:            sub.EdgeCount(),
		LocalDensity:          sub.Density(),
		ClusteringCoefficient: clustering,
		IllicitNeighbors:      len(sub.IllicitWallets()),
	}
	if neighborhood.LocalNodes > 0 {
		neighborhood.IllicitRatio = float64(neighborhood.IllicitNeighbors) / float64(neighborhood.LocalNodes)
	}

	s.logger.Debug("Wallet investigated",
		zap.String("wallet", wallet),
		zap.Float64("final_score", assessment.Score.Final),
		zap.String("primary_type", string(assessment.Classification.PrimaryType)),
		zap.Int("local_nodes", neighborhood.LocalNodes))

	return &Investigation{Assessment: assessment, Neighborhood: neighborhood}, nil
}

// LastReport returns the report of the last completed run
func (s *AnalysisApplicationService) LastReport() (*AnalysisReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, false
	}
	return s.session.report, true
}

// Patterns returns the patterns of the last completed run, optionally filtered by type
func (s *AnalysisApplicationService) Patterns(patternType entity.PatternType) ([]*entity.SmurfingPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, ErrNoAnalysis
	}
	if patternType == "" {
		return s.session.patterns.All(), nil
	}
	return s.session.patterns[patternType], nil
}

func alertID(runID, kind, subject string) string {
	return uuid.NewSHA1(alertNamespace, []byte(runID+"/"+kind+"/"+subject)).String()
}
