package database

import (
	"context"
	"fmt"

	"smurfing-hunter/internal/domain/repository"
	"smurfing-hunter/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const defaultBlacklistReason = "blacklisted"

// Neo4JIllicitWalletRepository implements IllicitWalletRepository from blacklist markers
type Neo4JIllicitWalletRepository struct {
	client *Neo4JClient
	logger *logger.Logger
}

// NewNeo4JIllicitWalletRepository creates a new Neo4J illicit wallet repository
func NewNeo4JIllicitWalletRepository(client *Neo4JClient, logger *logger.Logger) repository.IllicitWalletRepository {
	return &Neo4JIllicitWalletRepository{
		client: client,
		logger: logger.WithComponent("neo4j-illicit-repo"),
	}
}

// GetIllicitWallets returns blacklisted wallets and standalone Blacklist entries
func (r *Neo4JIllicitWalletRepository) GetIllicitWallets(ctx context.Context) (map[string]string, error) {
	session, err := r.client.NewSession(ctx, neo4j.AccessModeRead)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	query := `
		MATCH (w:Wallet)
		WHERE w.is_blacklisted = true
		RETURN w.address AS address, w.blacklist_reason AS reason
		UNION
		MATCH (b:Blacklist)
		RETURN b.address AS address, b.reason AS reason
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}

		blacklist := make(map[string]string)
		for records.Next(ctx) {
			record := records.Record()
			address, _ := record.Get("address")
			reason, _ := record.Get("reason")
			addr := asString(address)
			if addr == "" {
				continue
			}
			if _, seen := blacklist[addr]; seen {
				continue
			}
			blacklist[addr] = defaultBlacklistReason
			if text := asString(reason); text != "" {
				blacklist[addr] = text
			}
		}
		return blacklist, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get illicit wallets: %w", err)
	}

	blacklist := result.(map[string]string)
	r.logger.Info("Illicit wallets loaded from Neo4J", zap.Int("count", len(blacklist)))
	return blacklist, nil
}
