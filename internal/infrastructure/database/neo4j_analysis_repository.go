package database

import (
	"context"
	"fmt"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/repository"
	"smurfing-hunter/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4JAnalysisRepository implements AnalysisResultRepository
type Neo4JAnalysisRepository struct {
	client *Neo4JClient
	logger *logger.Logger
}

// NewNeo4JAnalysisRepository creates a new Neo4J analysis result repository
func NewNeo4JAnalysisRepository(client *Neo4JClient, logger *logger.Logger) repository.AnalysisResultRepository {
	return &Neo4JAnalysisRepository{
		client: client,
		logger: logger.WithComponent("neo4j-analysis-repo"),
	}
}

// SavePatterns upserts SmurfingPattern nodes and PARTICIPATES_IN relationships
func (r *Neo4JAnalysisRepository) SavePatterns(ctx context.Context, patterns []*entity.SmurfingPattern) error {
	query := `
		UNWIND $patterns as pattern
		MERGE (p:SmurfingPattern {id: pattern.id})
		SET p.type = pattern.type,
			p.score = pattern.score,
			p.total_amount = pattern.total_amount,
			p.hop_count = pattern.hop_count,
			p.first_activity = datetime(pattern.first_activity),
			p.last_activity = datetime(pattern.last_activity),
			p.detail = pattern.detail,
			p.updated_at = datetime()
		WITH p, pattern
		UNWIND pattern.participants as participant
		MERGE (w:Wallet {address: participant.wallet})
		MERGE (w)-[rel:PARTICIPATES_IN]->(p)
		SET rel.role = participant.role
	`

	rows := make([]map[string]any, 0, len(patterns))
	for _, pattern := range patterns {
		row, err := patternParams(pattern)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	if err := r.writeBatches(ctx, query, "patterns", rows); err != nil {
		return fmt.Errorf("failed to save patterns: %w", err)
	}
	r.logger.Info("Patterns saved", zap.Int("count", len(rows)))
	return nil
}

// SaveScores writes the sub-scores and risk level onto Wallet nodes
func (r *Neo4JAnalysisRepository) SaveScores(ctx context.Context, scores []entity.WalletScore) error {
	query := `
		UNWIND $scores as score
		MERGE (w:Wallet {address: score.wallet})
		SET w.centrality_score = score.centrality,
			w.proximity_score = score.proximity,
			w.pattern_score = score.pattern_involvement,
			w.anomaly_score = score.structural_anomaly,
			w.final_score = score.final,
			w.risk_level = score.risk_level,
			w.scored_at = datetime()
	`

	rows := make([]map[string]any, 0, len(scores))
	for _, score := range scores {
		rows = append(rows, scoreParams(score))
	}

	if err := r.writeBatches(ctx, query, "scores", rows); err != nil {
		return fmt.Errorf("failed to save scores: %w", err)
	}
	r.logger.Info("Scores saved", zap.Int("count", len(rows)))
	return nil
}

// SaveClassifications writes role labels onto Wallet nodes
func (r *Neo4JAnalysisRepository) SaveClassifications(ctx context.Context, classifications []*entity.NodeClassification) error {
	query := `
		UNWIND $classifications as classification
		MERGE (w:Wallet {address: classification.address})
		SET w.node_type = classification.node_type,
			w.secondary_types = classification.secondary_types,
			w.classification_risk = classification.risk_level,
			w.tags = classification.tags,
			w.last_classified = datetime(),
			w.classification_count = COALESCE(w.classification_count, 0) + 1
	`

	rows := make([]map[string]any, 0, len(classifications))
	for _, classification := range classifications {
		rows = append(rows, classificationParams(classification))
	}

	if err := r.writeBatches(ctx, query, "classifications", rows); err != nil {
		return fmt.Errorf("failed to save classifications: %w", err)
	}
	r.logger.Info("Classifications saved", zap.Int("count", len(rows)))
	return nil
}

func (r *Neo4JAnalysisRepository) writeBatches(ctx context.Context, query, param string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	session, err := r.client.NewSession(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	for i, batch := range chunk(rows, r.client.BatchSize()) {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, query, map[string]any{param: batch})
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
		r.logger.Debug("Batch written", zap.String("kind", param), zap.Int("batch", i), zap.Int("rows", len(batch)))
	}
	return nil
}
