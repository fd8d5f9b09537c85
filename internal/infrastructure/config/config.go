package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/service"

	"github.com/spf13/viper"
)

// Source kinds
const (
	SourceCSV   = "csv"
	SourceNeo4J = "neo4j"
)

// Config represents the application configuration
type Config struct {
	App       AppConfig              `mapstructure:"app"`
	Source    SourceConfig           `mapstructure:"source"`
	NATS      NATSConfig             `mapstructure:"nats"`
	Neo4J     Neo4JConfig            `mapstructure:"neo4j"`
	Health    HealthConfig           `mapstructure:"health"`
	Metrics   MetricsConfig          `mapstructure:"metrics"`
	Detection service.DetectorConfig `mapstructure:"detection"`
	Scoring   service.ScoringConfig  `mapstructure:"scoring"`
}

// AppConfig represents application-specific configuration
type AppConfig struct {
	Env               string `mapstructure:"env"`
	LogLevel          string `mapstructure:"log_level"`
	HTTPPort          int    `mapstructure:"http_port"`
	TopN              int    `mapstructure:"top_n"`
	InvestigateWallet string `mapstructure:"investigate_wallet"`
	InvestigateHops   int    `mapstructure:"investigate_hops"`
	KeepAlive         bool   `mapstructure:"keep_alive"`
	AlertMinRiskLevel string `mapstructure:"alert_min_risk_level"`
}

// SourceConfig selects where transactions and the illicit list come from
type SourceConfig struct {
	Kind             string `mapstructure:"kind"`
	TransactionsPath string `mapstructure:"transactions_path"`
	IllicitPath      string `mapstructure:"illicit_path"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `mapstructure:"url"`
	StreamName        string        `mapstructure:"stream_name"`
	SubjectPrefix     string        `mapstructure:"subject_prefix"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	Enabled           bool          `mapstructure:"enabled"`
}

// Neo4JConfig represents Neo4J configuration
type Neo4JConfig struct {
	URI                          string        `mapstructure:"uri"`
	Username                     string        `mapstructure:"username"`
	Password                     string        `mapstructure:"password"`
	Database                     string        `mapstructure:"database"`
	ConnectTimeout               time.Duration `mapstructure:"connect_timeout"`
	MaxConnectionPoolSize        int           `mapstructure:"max_connection_pool_size"`
	ConnectionAcquisitionTimeout time.Duration `mapstructure:"connection_acquisition_timeout"`
	BatchSize                    int           `mapstructure:"batch_size"`
	ValueDecimals                int32         `mapstructure:"value_decimals"`
}

// HealthConfig represents health check configuration
type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from environment variables and files
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/smurfing-hunter")
	return load(v)
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Environment variables
	v.AutomaticEnv()

	// Map environment variables to nested config keys
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the sections the analysis depends on
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceCSV:
		if c.Source.TransactionsPath == "" {
			return fmt.Errorf("source.transactions_path is required for the csv source")
		}
	case SourceNeo4J:
	default:
		return fmt.Errorf("source.kind must be %q or %q, got %q", SourceCSV, SourceNeo4J, c.Source.Kind)
	}
	if c.App.TopN < 0 {
		return fmt.Errorf("app.top_n must be >= 0, got %d", c.App.TopN)
	}
	if !slices.Contains(entity.RiskLevels, c.App.MinRiskLevel()) {
		return fmt.Errorf("%w: app.alert_min_risk_level %q is not a risk level", entity.ErrInvalidConfig, c.App.AlertMinRiskLevel)
	}
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	return c.Scoring.Validate()
}

// MinRiskLevel returns the alerting threshold as a risk level
func (a AppConfig) MinRiskLevel() entity.RiskLevel {
	return entity.RiskLevel(strings.ToUpper(strings.TrimSpace(a.AlertMinRiskLevel)))
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.http_port", 8080)
	v.SetDefault("app.top_n", 20)
	v.SetDefault("app.investigate_wallet", "")
	v.SetDefault("app.investigate_hops", 2)
	v.SetDefault("app.keep_alive", false)
	v.SetDefault("app.alert_min_risk_level", "HIGH")

	// Source defaults
	v.SetDefault("source.kind", SourceCSV)
	v.SetDefault("source.transactions_path", "data/transactions.csv")
	v.SetDefault("source.illicit_path", "data/illicit_wallets.csv")

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "SMURFING_ALERTS")
	v.SetDefault("nats.subject_prefix", "smurfing")
	v.SetDefault("nats.connect_timeout", "10s")
	v.SetDefault("nats.reconnect_attempts", 5)
	v.SetDefault("nats.reconnect_delay", "2s")
	v.SetDefault("nats.enabled", false)

	// Neo4J defaults
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.connect_timeout", "10s")
	v.SetDefault("neo4j.max_connection_pool_size", 50)
	v.SetDefault("neo4j.connection_acquisition_timeout", "60s")
	v.SetDefault("neo4j.batch_size", 500)
	v.SetDefault("neo4j.value_decimals", 18)

	// Health defaults
	v.SetDefault("health.timeout", "5s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Detection defaults
	detection := service.DefaultDetectorConfig()
	v.SetDefault("detection.min_fanout", detection.MinFanOut)
	v.SetDefault("detection.min_fanin", detection.MinFanIn)
	v.SetDefault("detection.max_hops", detection.MaxHops)
	v.SetDefault("detection.max_layers", detection.MaxLayers)
	v.SetDefault("detection.min_layers", detection.MinLayers)
	v.SetDefault("detection.min_split", detection.MinSplit)
	v.SetDefault("detection.min_cycle_length", detection.MinCycleLength)
	v.SetDefault("detection.max_cycle_length", detection.MaxCycleLength)
	v.SetDefault("detection.max_cycles", detection.MaxCycles)
	v.SetDefault("detection.max_cycle_candidates", detection.MaxCycleCandidates)
	v.SetDefault("detection.peel_threshold", detection.PeelThreshold)
	v.SetDefault("detection.peel_max_hops", detection.PeelMaxHops)
	v.SetDefault("detection.peel_min_hops", detection.PeelMinHops)
	v.SetDefault("detection.peel_max_fanout", detection.PeelMaxFanOut)
	v.SetDefault("detection.peel_max_drop", detection.PeelMaxDrop)
	v.SetDefault("detection.fee_tolerance", detection.FeeTolerance)
	v.SetDefault("detection.decay_tolerance", detection.DecayTolerance)
	v.SetDefault("detection.scope", detection.Scope)

	// Scoring defaults
	scoring := service.DefaultScoringConfig()
	v.SetDefault("scoring.betweenness_sample_k", scoring.BetweennessSampleK)
	v.SetDefault("scoring.betweenness_seed", scoring.BetweennessSeed)
	v.SetDefault("scoring.pagerank_damping", scoring.PageRankDamping)
	v.SetDefault("scoring.pagerank_max_iterations", scoring.PageRankMaxIterations)
	v.SetDefault("scoring.pagerank_tolerance", scoring.PageRankTolerance)
	v.SetDefault("scoring.proximity_decay", scoring.ProximityDecay)
	v.SetDefault("scoring.illicit_neighbor_bonus", scoring.IllicitNeighborBonus)
	v.SetDefault("scoring.intermediate_role_weight", scoring.IntermediateRoleWeight)
	v.SetDefault("scoring.endpoint_role_weight", scoring.EndpointRoleWeight)
	v.SetDefault("scoring.proximity_direction", scoring.ProximityDirection)
	v.SetDefault("scoring.weights.centrality", scoring.Weights.Centrality)
	v.SetDefault("scoring.weights.proximity", scoring.Weights.Proximity)
	v.SetDefault("scoring.weights.pattern_involvement", scoring.Weights.PatternInvolvement)
	v.SetDefault("scoring.weights.structural_anomaly", scoring.Weights.StructuralAnomaly)

	// Bind env for NATS URL
	_ = v.BindEnv("nats.url", "NATS_URL")
}
