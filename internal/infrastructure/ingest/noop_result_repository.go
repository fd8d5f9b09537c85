package ingest

import (
	"context"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// DiscardResultRepository satisfies the result store for file-based runs,
// where the report is the only output
type DiscardResultRepository struct {
	logger *logger.Logger
}

// NewDiscardResultRepository creates a result store that only logs
func NewDiscardResultRepository(logger *logger.Logger) *DiscardResultRepository {
	return &DiscardResultRepository{logger: logger.WithComponent("discard-results")}
}

// SavePatterns logs the pattern count
func (r *DiscardResultRepository) SavePatterns(ctx context.Context, patterns []*entity.SmurfingPattern) error {
	r.logger.Debug("Skipping pattern persistence", zap.Int("patterns", len(patterns)))
	return nil
}

// SaveScores logs the score count
func (r *DiscardResultRepository) SaveScores(ctx context.Context, scores []entity.WalletScore) error {
	r.logger.Debug("Skipping score persistence", zap.Int("scores", len(scores)))
	return nil
}

// SaveClassifications logs the classification count
func (r *DiscardResultRepository) SaveClassifications(ctx context.Context, classifications []*entity.NodeClassification) error {
	r.logger.Debug("Skipping classification persistence", zap.Int("classifications", len(classifications)))
	return nil
}
