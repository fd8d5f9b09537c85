package graph

import (
	"errors"
	"math"
	"testing"
	"time"

	"smurfing-hunter/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(hours int) time.Time {
	return base.Add(time.Duration(hours) * time.Hour)
}

func mustAdd(t *testing.T, g *Graph, from, to string, amount float64, hour int) *entity.Transaction {
	t.Helper()
	tx, err := g.AddTransaction(entity.Transaction{From: from, To: to, Amount: amount, Timestamp: at(hour), Token: "ETH"})
	require.NoError(t, err)
	return tx
}

func TestAddTransaction_MaintainsAggregates(t *testing.T) {
	g := New()
	mustAdd(t, g, "A", "B", 100, 2)
	mustAdd(t, g, "A", "B", 50, 1)
	mustAdd(t, g, "A", "C", 25, 3)
	mustAdd(t, g, "C", "A", 10, 4)

	a, err := g.Wallet("A")
	require.NoError(t, err)
	assert.Equal(t, 175.0, a.TotalSent)
	assert.Equal(t, 10.0, a.TotalReceived)
	assert.Equal(t, int64(3), a.OutgoingCount)
	assert.Equal(t, int64(1), a.IncomingCount)
	assert.Equal(t, int64(2), a.SentTo)
	assert.Equal(t, int64(1), a.ReceivedFrom)
	assert.Equal(t, at(1), a.FirstSeen)
	assert.Equal(t, at(4), a.LastSeen)

	assert.Equal(t, 4, g.TransactionCount())
	assert.Equal(t, 3, g.EdgeCount())
	assert.Equal(t, 2, g.OutDegree("A"))
	assert.Equal(t, []string{"B", "C"}, g.Successors("A"))
	assert.Equal(t, []string{"A"}, g.Predecessors("C"))
}

func TestAddTransaction_KeepsParallelEdgesOrderedByTime(t *testing.T) {
	g := New()
	late := mustAdd(t, g, "A", "B", 100, 5)
	early := mustAdd(t, g, "A", "B", 50, 1)
	tie := mustAdd(t, g, "A", "B", 70, 5)

	out := g.OutTransactions("A")
	require.Len(t, out, 3)
	assert.Equal(t, []int{early.ID, late.ID, tie.ID}, []int{out[0].ID, out[1].ID, out[2].ID})
	assert.Len(t, g.TransactionsBetween("A", "B"), 3)
	assert.Len(t, g.InTransactions("B"), 3)
}

func TestAddTransaction_RejectsMalformedInput(t *testing.T) {
	g := New()

	cases := []entity.Transaction{
		{From: "", To: "B", Amount: 1, Timestamp: at(1)},
		{From: "A", To: " ", Amount: 1, Timestamp: at(1)},
		{From: "A", To: "B", Amount: 0, Timestamp: at(1)},
		{From: "A", To: "B", Amount: -5, Timestamp: at(1)},
		{From: "A", To: "B", Amount: math.NaN(), Timestamp: at(1)},
		{From: "A", To: "B", Amount: math.Inf(1), Timestamp: at(1)},
		{From: "A", To: "B", Amount: 5},
	}
	for _, tx := range cases {
		_, err := g.AddTransaction(tx)
		assert.True(t, errors.Is(err, entity.ErrMalformedTransaction), "expected malformed error for %+v", tx)
	}
	assert.Equal(t, 0, g.WalletCount())
}

func TestMarkIllicit_BeforeAndAfterInsertion(t *testing.T) {
	g := New()
	g.MarkIllicit(map[string]string{"X": "ransomware"})
	mustAdd(t, g, "X", "B", 10, 1)
	g.MarkIllicit(map[string]string{"B": "mixer"})

	x, _ := g.Wallet("X")
	b, _ := g.Wallet("B")
	assert.True(t, x.Illicit)
	assert.Equal(t, "ransomware", x.IllicitReason)
	assert.True(t, b.Illicit)
	assert.True(t, g.IsIllicit("B"))
	assert.Equal(t, []string{"B", "X"}, g.IllicitWallets())
}

func TestWallet_NotFound(t *testing.T) {
	g := New()
	_, err := g.Wallet("nope")
	assert.ErrorIs(t, err, entity.ErrWalletNotFound)

	_, err = g.Features("nope")
	assert.ErrorIs(t, err, entity.ErrWalletNotFound)
}

func TestFeatures(t *testing.T) {
	g := New()
	mustAdd(t, g, "S", "A", 10, 1)
	mustAdd(t, g, "S", "B", 10, 1)
	mustAdd(t, g, "S", "C", 10, 1)
	mustAdd(t, g, "Z", "S", 30, 0)

	features, err := g.Features("S")
	require.NoError(t, err)
	assert.Equal(t, 1, features.InDegree)
	assert.Equal(t, 3, features.OutDegree)
	assert.Equal(t, 3.0, features.FanOutRatio)
	assert.InDelta(t, 1.0/3.0, features.FanInRatio, 1e-12)
	assert.Equal(t, int64(4), features.TransactionCount)
	assert.Equal(t, 0.0, features.Balance)

	leaf, err := g.Features("A")
	require.NoError(t, err)
	assert.Equal(t, 0.0, leaf.FanOutRatio)
	assert.Equal(t, 1.0, leaf.FanInRatio)
}

func TestShortestPath(t *testing.T) {
	g := New()
	mustAdd(t, g, "A", "B", 1, 1)
	mustAdd(t, g, "B", "C", 1, 2)
	mustAdd(t, g, "A", "C", 1, 3)
	mustAdd(t, g, "C", "D", 1, 4)

	length, ok := g.ShortestPathLength("A", "D")
	require.True(t, ok)
	assert.Equal(t, 2, length)
	assert.Equal(t, []string{"A", "C", "D"}, g.ShortestPath("A", "D"))

	_, ok = g.ShortestPathLength("D", "A")
	assert.False(t, ok)

	length, ok = g.ShortestPathLength("B", "B")
	assert.True(t, ok)
	assert.Equal(t, 0, length)
}

func TestIllicitProximity_MultiSource(t *testing.T) {
	g := New()
	mustAdd(t, g, "X", "A", 1, 1)
	mustAdd(t, g, "A", "B", 1, 2)
	mustAdd(t, g, "B", "C", 1, 3)
	mustAdd(t, g, "Y", "C", 1, 3)
	mustAdd(t, g, "W", "V", 1, 3)
	g.MarkIllicit(map[string]string{"X": "", "Y": ""})

	p := g.IllicitProximity(Downstream)

	d, ok := p.DistanceTo("X")
	assert.True(t, ok)
	assert.Equal(t, 0, d)
	d, _ = p.DistanceTo("B")
	assert.Equal(t, 2, d)
	d, _ = p.DistanceTo("C")
	assert.Equal(t, 1, d, "C is one hop from Y")
	assert.Equal(t, []string{"Y", "C"}, p.PathTo("C"))
	assert.Equal(t, []string{"X", "A", "B"}, p.PathTo("B"))

	assert.False(t, p.Reachable("W"))
	assert.Nil(t, p.PathTo("W"))

	up := g.IllicitProximity(Upstream)
	assert.False(t, up.Reachable("A"))

	both := g.IllicitProximity(Undirected)
	d, _ = both.DistanceTo("A")
	assert.Equal(t, 1, d)
}

func TestParseDirection(t *testing.T) {
	dir, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, Downstream, dir)

	dir, err = ParseDirection(" Undirected ")
	require.NoError(t, err)
	assert.Equal(t, Undirected, dir)

	_, err = ParseDirection("sideways")
	assert.ErrorIs(t, err, entity.ErrInvalidConfig)
}

func TestSubgraphAround(t *testing.T) {
	g := New()
	mustAdd(t, g, "A", "B", 1, 1)
	mustAdd(t, g, "B", "C", 1, 2)
	mustAdd(t, g, "C", "D", 1, 3)
	mustAdd(t, g, "E", "B", 1, 4)
	g.MarkIllicit(map[string]string{"E": "scam"})

	sub, err := g.SubgraphAround("B", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "E"}, sub.Wallets())
	assert.Equal(t, 3, sub.TransactionCount())
	assert.True(t, sub.IsIllicit("E"))
	assert.False(t, sub.HasWallet("D"))

	wide, err := g.SubgraphAround("B", 2)
	require.NoError(t, err)
	assert.Equal(t, 5, wide.WalletCount())

	alone, err := g.SubgraphAround("B", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, alone.Wallets())

	_, err = g.SubgraphAround("missing", 2)
	assert.ErrorIs(t, err, entity.ErrWalletNotFound)
}

func TestDensity(t *testing.T) {
	g := New()
	assert.Equal(t, 0.0, g.Density())

	mustAdd(t, g, "A", "B", 1, 1)
	mustAdd(t, g, "B", "A", 3, 2)
	mustAdd(t, g, "A", "C", 10, 3)

	assert.InDelta(t, 3.0/6.0, g.Density(), 1e-12)
}

func TestClusteringCoefficient(t *testing.T) {
	g := New()
	mustAdd(t, g, "H", "A", 1, 1)
	mustAdd(t, g, "H", "B", 1, 2)
	mustAdd(t, g, "C", "H", 1, 3)
	mustAdd(t, g, "B", "A", 1, 4)

	coefficient, err := g.ClusteringCoefficient("H")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, coefficient, 1e-12)

	leaf, err := g.ClusteringCoefficient("C")
	require.NoError(t, err)
	assert.Equal(t, 0.0, leaf)

	_, err = g.ClusteringCoefficient("missing")
	assert.ErrorIs(t, err, entity.ErrWalletNotFound)
}
