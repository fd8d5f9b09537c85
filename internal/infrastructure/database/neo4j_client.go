package database

import (
	"context"
	"fmt"

	"smurfing-hunter/internal/infrastructure/config"
	"smurfing-hunter/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4JClient handles Neo4J database operations
type Neo4JClient struct {
	driver neo4j.DriverWithContext
	config *config.Neo4JConfig
	logger *logger.Logger
}

// NewNeo4JClient creates a new Neo4J client
func NewNeo4JClient(cfg *config.Neo4JConfig, logger *logger.Logger) *Neo4JClient {
	return &Neo4JClient{
		config: cfg,
		logger: logger.WithComponent("neo4j-client"),
	}
}

// Connect opens the driver, verifies connectivity and ensures the analysis schema
func (n *Neo4JClient) Connect(ctx context.Context) error {
	n.logger.Info("Connecting to Neo4J database",
		zap.String("uri", n.config.URI),
		zap.String("database", n.config.Database))

	driver, err := neo4j.NewDriverWithContext(
		n.config.URI,
		neo4j.BasicAuth(n.config.Username, n.config.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = n.config.MaxConnectionPoolSize
			config.ConnectionAcquisitionTimeout = n.config.ConnectionAcquisitionTimeout
			config.SocketConnectTimeout = n.config.ConnectTimeout
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create Neo4J driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("failed to verify Neo4J connectivity: %w", err)
	}
	n.driver = driver

	if err := n.setupSchema(ctx); err != nil {
		return fmt.Errorf("failed to setup schema: %w", err)
	}
	n.logger.Info("Successfully connected to Neo4J database")
	return nil
}

// Close closes the Neo4J connection
func (n *Neo4JClient) Close(ctx context.Context) error {
	if n.driver == nil {
		return nil
	}
	n.logger.Info("Closing Neo4J connection")
	err := n.driver.Close(ctx)
	n.driver = nil
	return err
}

// NewSession opens a session on the configured database
func (n *Neo4JClient) NewSession(ctx context.Context, mode neo4j.AccessMode) (neo4j.SessionWithContext, error) {
	if n.driver == nil {
		return nil, fmt.Errorf("neo4j client is not connected")
	}
	return n.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: n.config.Database,
	}), nil
}

// BatchSize returns the configured write batch size
func (n *Neo4JClient) BatchSize() int {
	if n.config.BatchSize < 1 {
		return 500
	}
	return n.config.BatchSize
}

// ValueDecimals returns the exponent applied to stored SENT_TO values
func (n *Neo4JClient) ValueDecimals() int32 {
	return n.config.ValueDecimals
}

// schemaStatements backs the wallet upserts and the pattern/risk lookups
var schemaStatements = []string{
	"CREATE CONSTRAINT wallet_address IF NOT EXISTS FOR (w:Wallet) REQUIRE w.address IS UNIQUE",
	"CREATE CONSTRAINT smurfing_pattern_id IF NOT EXISTS FOR (p:SmurfingPattern) REQUIRE p.id IS UNIQUE",
	"CREATE INDEX wallet_risk_level IF NOT EXISTS FOR (w:Wallet) ON (w.risk_level)",
	"CREATE INDEX wallet_final_score IF NOT EXISTS FOR (w:Wallet) ON (w.final_score)",
	"CREATE INDEX wallet_node_type IF NOT EXISTS FOR (w:Wallet) ON (w.node_type)",
	"CREATE INDEX smurfing_pattern_type IF NOT EXISTS FOR (p:SmurfingPattern) ON (p.type)",
}

// setupSchema applies schemaStatements. Failures are logged and skipped so a
// read-only user can still run the analysis.
func (n *Neo4JClient) setupSchema(ctx context.Context) error {
	session, err := n.NewSession(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	applied := 0
	for _, statement := range schemaStatements {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, statement, nil)
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			n.logger.Warn("Failed to apply schema statement", zap.String("statement", statement), zap.Error(err))
			continue
		}
		applied++
	}

	n.logger.Info("Schema setup completed", zap.Int("applied", applied), zap.Int("total", len(schemaStatements)))
	return nil
}

// IsConnected checks if connected to Neo4J
func (n *Neo4JClient) IsConnected(ctx context.Context) bool {
	if n.driver == nil {
		return false
	}
	return n.driver.VerifyConnectivity(ctx) == nil
}
