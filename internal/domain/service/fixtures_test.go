package service

import (
	"testing"
	"time"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/graph"
	"smurfing-hunter/internal/infrastructure/logger"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var epoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func hour(h int) time.Time {
	return epoch.Add(time.Duration(h) * time.Hour)
}

func testLogger(t *testing.T) *logger.Logger {
	return logger.NewFromZap(zaptest.NewLogger(t))
}

type graphBuilder struct {
	t *testing.T
	g *graph.Graph
}

func newGraphBuilder(t *testing.T) *graphBuilder {
	return &graphBuilder{t: t, g: graph.New()}
}

func (b *graphBuilder) send(from, to string, amount float64, h int) *graphBuilder {
	b.t.Helper()
	_, err := b.g.AddTransaction(entity.Transaction{From: from, To: to, Amount: amount, Timestamp: hour(h), Token: "ETH"})
	require.NoError(b.t, err)
	return b
}

func (b *graphBuilder) illicit(wallets ...string) *graphBuilder {
	flags := make(map[string]string, len(wallets))
	for _, wallet := range wallets {
		flags[wallet] = "test"
	}
	b.g.MarkIllicit(flags)
	return b
}

func (b *graphBuilder) build() *graph.Graph {
	return b.g
}

// fanOutFanInGraph: illicit A splits to five intermediates, each forwards 98% to Z
func fanOutFanInGraph(t *testing.T) *graphBuilder {
	b := newGraphBuilder(t)
	for _, mid := range []string{"I1", "I2", "I3", "I4", "I5"} {
		b.send("A", mid, 100, 1)
		b.send(mid, "Z", 98, 2)
	}
	return b.illicit("A")
}

// cycleGraph: A→B→C→D→A with decaying amounts and rising timestamps
func cycleGraph(t *testing.T) *graphBuilder {
	return newGraphBuilder(t).
		send("A", "B", 1000, 1).
		send("B", "C", 980, 2).
		send("C", "D", 960, 3).
		send("D", "A", 941, 4)
}

// peelingGraph: P0→P1→P2→P3 skimming 10% at each hop
func peelingGraph(t *testing.T) *graphBuilder {
	return newGraphBuilder(t).
		send("P0", "P1", 900, 1).
		send("P0", "S1", 100, 1).
		send("P1", "P2", 810, 2).
		send("P1", "S2", 90, 2).
		send("P2", "P3", 729, 3).
		send("P2", "S3", 81, 3)
}

func newDetector(t *testing.T, g *graph.Graph, mutate func(*DetectorConfig)) *PatternDetectorService {
	t.Helper()
	cfg := DefaultDetectorConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	detector, err := NewPatternDetectorService(g, cfg, testLogger(t))
	require.NoError(t, err)
	return detector
}
