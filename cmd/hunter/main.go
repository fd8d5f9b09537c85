package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	app_service "smurfing-hunter/internal/application/service"
	"smurfing-hunter/internal/domain/repository"
	domain_service "smurfing-hunter/internal/domain/service"
	"smurfing-hunter/internal/infrastructure/config"
	"smurfing-hunter/internal/infrastructure/database"
	"smurfing-hunter/internal/infrastructure/ingest"
	"smurfing-hunter/internal/infrastructure/logger"
	"smurfing-hunter/internal/infrastructure/messaging"
	"smurfing-hunter/internal/infrastructure/metrics"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Create FX application
	app := fx.New(
		// Provide dependencies
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(&cfg.NATS),
		fx.Supply(&cfg.Neo4J),
		fx.Provide(func() *zap.Logger { return log.Logger }),

		// Infrastructure providers
		fx.Provide(
			database.NewNeo4JClient,
			metrics.NewAnalysisMetrics,
			messaging.NewNATSAlertPublisher,
			func(publisher *messaging.NATSAlertPublisher) domain_service.AlertPublisher { return publisher },
			provideRepositories,
		),

		// Domain services
		fx.Provide(
			domain_service.NewWalletClassifierService,
		),

		// Application providers
		fx.Provide(
			provideAnalysisOptions,
			app_service.NewAnalysisApplicationService,
		),

		// Lifecycle hooks
		fx.Invoke(startAnalysis),
		fx.Invoke(startHTTPServers),

		// Configure logging
		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	// Start the application
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		os.Exit(1)
	}

	// Wait for a shutdown signal or the end of a one-shot run
	signal := <-app.Wait()

	log.Info("Shutting down application...", zap.Int("exit_code", signal.ExitCode))

	// Stop the application
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
	os.Exit(signal.ExitCode)
}

// loadConfig reads SMURFING_CONFIG when set, otherwise searches the default paths
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("SMURFING_CONFIG"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// repositories groups the ingestion and result stores selected by source.kind
type repositories struct {
	fx.Out

	Transactions repository.TransactionRepository
	Illicit      repository.IllicitWalletRepository
	Results      repository.AnalysisResultRepository
}

func provideRepositories(cfg *config.Config, client *database.Neo4JClient, log *logger.Logger) repositories {
	if cfg.Source.Kind == config.SourceNeo4J {
		return repositories{
			Transactions: database.NewNeo4JTransactionRepository(client, log),
			Illicit:      database.NewNeo4JIllicitWalletRepository(client, log),
			Results:      database.NewNeo4JAnalysisRepository(client, log),
		}
	}
	return repositories{
		Transactions: ingest.NewCSVTransactionRepository(cfg.Source.TransactionsPath, log),
		Illicit:      ingest.NewCSVIllicitWalletRepository(cfg.Source.IllicitPath, log),
		Results:      ingest.NewDiscardResultRepository(log),
	}
}

func provideAnalysisOptions(cfg *config.Config) app_service.AnalysisOptions {
	return app_service.AnalysisOptions{
		Detection:         cfg.Detection,
		Scoring:           cfg.Scoring,
		TopN:              cfg.App.TopN,
		AlertMinRiskLevel: cfg.App.MinRiskLevel(),
	}
}

// startAnalysis connects the backing services and runs one analysis in the background
func startAnalysis(
	lifecycle fx.Lifecycle,
	shutdowner fx.Shutdowner,
	analysisService *app_service.AnalysisApplicationService,
	publisher *messaging.NATSAlertPublisher,
	neo4jClient *database.Neo4JClient,
	log *zap.Logger,
	cfg *config.Config,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting smurfing hunter...",
				zap.String("env", cfg.App.Env),
				zap.String("source", cfg.Source.Kind))

			if cfg.Source.Kind == config.SourceNeo4J {
				log.Info("Connecting to Neo4J database")
				if err := neo4jClient.Connect(ctx); err != nil {
					return fmt.Errorf("failed to connect to Neo4J: %w", err)
				}
				log.Info("Successfully connected to Neo4J database")
			}

			log.Info("NATS Configuration",
				zap.String("url", cfg.NATS.URL),
				zap.String("stream_name", cfg.NATS.StreamName),
				zap.String("subject_prefix", cfg.NATS.SubjectPrefix),
				zap.Bool("enabled", cfg.NATS.Enabled),
			)
			if err := publisher.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}

			go func() {
				defer close(done)
				exitCode := 0
				if err := runAnalysis(runCtx, analysisService, log, cfg); err != nil {
					exitCode = 1
				}
				if !cfg.App.KeepAlive || exitCode != 0 {
					if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
						log.Error("Failed to request shutdown", zap.Error(err))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping smurfing hunter...")
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				log.Warn("Analysis did not stop before the shutdown deadline")
			}

			if cfg.Source.Kind == config.SourceNeo4J {
				if err := neo4jClient.Close(ctx); err != nil {
					log.Error("Failed to close Neo4J connection", zap.Error(err))
				}
			}
			return publisher.Disconnect()
		},
	})
}

// runAnalysis runs the pipeline once and logs the findings
func runAnalysis(
	ctx context.Context,
	analysisService *app_service.AnalysisApplicationService,
	log *zap.Logger,
	cfg *config.Config,
) error {
	report, err := analysisService.Run(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error("Analysis failed", zap.Error(err))
		}
		return err
	}

	stats := report.Statistics
	log.Info("Pattern statistics",
		zap.Int("total_patterns", stats.TotalPatterns),
		zap.Any("by_type", stats.ByType),
		zap.Float64("avg_suspicion_score", stats.AvgSuspicionScore),
		zap.Float64("max_suspicion_score", stats.MaxSuspicionScore),
		zap.Float64("total_amount_flagged", stats.TotalAmountFlagged))
	log.Info("Risk distribution", zap.Any("risk_levels", report.RiskDistribution), zap.Any("roles", report.RoleCounts))

	for rank, score := range report.TopSuspicious {
		log.Info("Suspicious wallet",
			zap.Int("rank", rank+1),
			zap.String("wallet", score.Wallet),
			zap.Float64("final_score", score.Final),
			zap.String("risk_level", string(score.RiskLevel)),
			zap.Float64("centrality", score.Centrality),
			zap.Float64("proximity", score.Proximity),
			zap.Float64("pattern_involvement", score.PatternInvolvement),
			zap.Float64("structural_anomaly", score.StructuralAnomaly))
	}

	if cfg.App.InvestigateWallet == "" {
		return nil
	}
	investigation, err := analysisService.Investigate(ctx, cfg.App.InvestigateWallet, cfg.App.InvestigateHops)
	if err != nil {
		// a missing wallet is a lookup miss, not a failed run
		log.Warn("Investigation failed", zap.String("wallet", cfg.App.InvestigateWallet), zap.Error(err))
		return nil
	}

	assessment := investigation.Assessment
	log.Info("Wallet investigation",
		zap.String("wallet", cfg.App.InvestigateWallet),
		zap.Float64("final_score", assessment.Score.Final),
		zap.String("risk_level", string(assessment.Score.RiskLevel)),
		zap.String("primary_type", string(assessment.Classification.PrimaryType)),
		zap.Strings("tags", assessment.Classification.Tags),
		zap.Int("nearest_illicit", assessment.NearestIllicitDistance),
		zap.Strings("path_from_illicit", assessment.PathFromIllicit),
		zap.Int("patterns", len(assessment.Patterns)),
		zap.Any("neighborhood", investigation.Neighborhood))
	return nil
}
