package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "app:\n  env: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, 20, cfg.App.TopN)
	assert.Equal(t, SourceCSV, cfg.Source.Kind)
	assert.Equal(t, entity.RiskLevelHigh, cfg.App.MinRiskLevel())
	assert.Equal(t, 10*time.Second, cfg.Neo4J.ConnectTimeout)
	assert.Equal(t, service.DefaultDetectorConfig(), cfg.Detection)
	assert.Equal(t, service.DefaultScoringConfig(), cfg.Scoring)
}

func TestLoadFile_Overrides(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
source:
  kind: neo4j
detection:
  min_fanout: 5
  max_cycle_length: 6
  scope: global
scoring:
  proximity_direction: undirected
  weights:
    centrality: 0.35
    proximity: 0.35
    pattern_involvement: 0.2
    structural_anomaly: 0.1
`))
	require.NoError(t, err)

	assert.Equal(t, SourceNeo4J, cfg.Source.Kind)
	assert.Equal(t, 5, cfg.Detection.MinFanOut)
	assert.Equal(t, 3, cfg.Detection.MinFanIn)
	assert.Equal(t, 6, cfg.Detection.MaxCycleLength)
	assert.Equal(t, service.ScopeGlobal, cfg.Detection.Scope)
	assert.Equal(t, "undirected", cfg.Scoring.ProximityDirection)
	assert.InDelta(t, 0.35, cfg.Scoring.Weights.Centrality, 1e-12)
}

func TestLoadFile_EnvironmentOverride(t *testing.T) {
	t.Setenv("DETECTION_MAX_HOPS", "4")
	cfg, err := LoadFile(writeConfig(t, "app:\n  env: test\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Detection.MaxHops)
}

func TestLoadFile_RejectsInvalidSections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"cycle bounds", "detection:\n  min_cycle_length: 8\n  max_cycle_length: 4\n"},
		{"weights", "scoring:\n  weights:\n    centrality: 0.9\n"},
		{"alert level", "app:\n  alert_min_risk_level: severe\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, entity.ErrInvalidConfig)
		})
	}

	_, err := LoadFile(writeConfig(t, "source:\n  kind: kafka\n"))
	assert.Error(t, err)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
