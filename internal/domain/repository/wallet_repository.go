package repository

import (
	"context"

	"smurfing-hunter/internal/domain/entity"
)

// IllicitWalletRepository defines the interface for the known illicit wallet list
type IllicitWalletRepository interface {
	// GetIllicitWallets returns address -> reason for every flagged wallet
	GetIllicitWallets(ctx context.Context) (map[string]string, error)
}

// AnalysisResultRepository defines the interface for persisting analysis output
type AnalysisResultRepository interface {
	// SavePatterns stores detected patterns and their participant roles
	SavePatterns(ctx context.Context, patterns []*entity.SmurfingPattern) error

	// SaveScores stores per-wallet scores
	SaveScores(ctx context.Context, scores []entity.WalletScore) error

	// SaveClassifications stores per-wallet role labels
	SaveClassifications(ctx context.Context, classifications []*entity.NodeClassification) error
}
