package service

import (
	"context"

	"smurfing-hunter/internal/domain/entity"
)

// AlertPublisher defines the interface for pushing analysis findings downstream
type AlertPublisher interface {
	// PublishWalletAlert publishes a high-risk wallet alert
	PublishWalletAlert(ctx context.Context, alert *entity.WalletAlert) error

	// PublishPatternAlert publishes a detected pattern summary
	PublishPatternAlert(ctx context.Context, alert *entity.PatternAlert) error
}
