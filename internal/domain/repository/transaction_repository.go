package repository

import (
	"context"

	"smurfing-hunter/internal/domain/entity"
)

// TransactionRepository defines the interface for loading the transfers that make up the graph
type TransactionRepository interface {
	// LoadTransactions returns every transfer of the analysis window.
	// Malformed records are reported as entity.ErrMalformedTransaction.
	LoadTransactions(ctx context.Context) ([]*entity.Transaction, error)
}
