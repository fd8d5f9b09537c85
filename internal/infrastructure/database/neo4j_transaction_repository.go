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

// Neo4JTransactionRepository implements TransactionRepository over indexed SENT_TO edges
type Neo4JTransactionRepository struct {
	client *Neo4JClient
	logger *logger.Logger
}

// NewNeo4JTransactionRepository creates a new Neo4J transaction repository
func NewNeo4JTransactionRepository(client *Neo4JClient, logger *logger.Logger) repository.TransactionRepository {
	return &Neo4JTransactionRepository{
		client: client,
		logger: logger.WithComponent("neo4j-transaction-repo"),
	}
}

// LoadTransactions reads every SENT_TO relationship, oldest first
func (r *Neo4JTransactionRepository) LoadTransactions(ctx context.Context) ([]*entity.Transaction, error) {
	session, err := r.client.NewSession(ctx, neo4j.AccessModeRead)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	query := `
		MATCH (from:Wallet)-[r:SENT_TO]->(to:Wallet)
		RETURN from.address, to.address, r.value, r.timestamp, r.tx_hash, r.token
		ORDER BY r.timestamp, r.tx_hash
	`

	decimals := r.client.ValueDecimals()
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}

		var transactions []*entity.Transaction
		for records.Next(ctx) {
			transaction, err := transactionFromValues(records.Record().Values, decimals)
			if err != nil {
				return nil, err
			}
			transactions = append(transactions, transaction)
		}
		return transactions, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	transactions := result.([]*entity.Transaction)
	r.logger.Info("Transactions loaded from Neo4J", zap.Int("count", len(transactions)))
	return transactions, nil
}
