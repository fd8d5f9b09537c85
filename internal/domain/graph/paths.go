package graph

import (
	"fmt"
	"strings"

	"smurfing-hunter/internal/domain/entity"
)

// Direction selects which edges a traversal follows
type Direction string

const (
	// Downstream follows funds from sender to receiver
	Downstream Direction = "downstream"
	// Upstream follows funds backwards, receiver to sender
	Upstream Direction = "upstream"
	// Undirected follows edges both ways
	Undirected Direction = "undirected"
)

// ParseDirection validates a direction name
func ParseDirection(value string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case Downstream, "":
		return Downstream, nil
	case Upstream:
		return Upstream, nil
	case Undirected:
		return Undirected, nil
	default:
		return "", fmt.Errorf("%w: unknown traversal direction %q", entity.ErrInvalidConfig, value)
	}
}

func (g *Graph) step(address string, dir Direction) []string {
	switch dir {
	case Upstream:
		return g.Predecessors(address)
	case Undirected:
		return g.Neighbors(address)
	default:
		return g.Successors(address)
	}
}

// ShortestPathLength returns the unweighted directed hop distance between two wallets.
// ok is false when the destination is unreachable.
func (g *Graph) ShortestPathLength(from, to string) (int, bool) {
	path := g.ShortestPath(from, to)
	if path == nil {
		return 0, false
	}
	return len(path) - 1, true
}

// ShortestPath returns one shortest directed path, or nil when unreachable
func (g *Graph) ShortestPath(from, to string) []string {
	if !g.HasWallet(from) || !g.HasWallet(to) {
		return nil
	}
	if from == to {
		return []string{from}
	}

	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.Successors(current) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			if next == to {
				return unwind(parent, from, to)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// Proximity holds multi-source hop distances from a set of seed wallets
type Proximity struct {
	Distance map[string]int
	parent   map[string]string
	nearest  map[string]string
}

// IllicitProximity computes, for every wallet, the minimum hop distance to the
// illicit set. One BFS seeded with every illicit wallet gives the same result
// as taking the minimum over per-source searches.
func (g *Graph) IllicitProximity(dir Direction) *Proximity {
	return g.MultiSourceDistances(g.IllicitWallets(), dir)
}

// MultiSourceDistances runs a breadth-first search seeded with every source at distance zero
func (g *Graph) MultiSourceDistances(sources []string, dir Direction) *Proximity {
	p := &Proximity{
		Distance: make(map[string]int),
		parent:   make(map[string]string),
		nearest:  make(map[string]string),
	}

	var queue []string
	for _, source := range sources {
		if !g.HasWallet(source) {
			continue
		}
		if _, seen := p.Distance[source]; seen {
			continue
		}
		p.Distance[source] = 0
		p.nearest[source] = source
		queue = append(queue, source)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.step(current, dir) {
			if _, seen := p.Distance[next]; seen {
				continue
			}
			p.Distance[next] = p.Distance[current] + 1
			p.parent[next] = current
			p.nearest[next] = p.nearest[current]
			queue = append(queue, next)
		}
	}
	return p
}

// DistanceTo returns the hop distance for a wallet; ok is false when unreachable
func (p *Proximity) DistanceTo(address string) (int, bool) {
	distance, ok := p.Distance[address]
	return distance, ok
}

// PathTo returns the seed-to-wallet path found by the search, or nil
func (p *Proximity) PathTo(address string) []string {
	seed, ok := p.nearest[address]
	if !ok {
		return nil
	}
	return unwind(p.parent, seed, address)
}

// Reachable reports whether the wallet was reached from any seed
func (p *Proximity) Reachable(address string) bool {
	_, ok := p.Distance[address]
	return ok
}

func unwind(parent map[string]string, from, to string) []string {
	path := []string{to}
	for current := to; current != from; {
		current = parent[current]
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// SubgraphAround returns the induced subgraph of every wallet within the hop
// radius of a wallet, following edges in both directions. Illicit flags are kept.
func (g *Graph) SubgraphAround(address string, hops int) (*Graph, error) {
	if !g.HasWallet(address) {
		return nil, fmt.Errorf("%w: %s", entity.ErrWalletNotFound, address)
	}

	members := map[string]struct{}{address: {}}
	frontier := []string{address}
	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		var next []string
		for _, wallet := range frontier {
			for _, neighbor := range g.Neighbors(wallet) {
				if _, seen := members[neighbor]; seen {
					continue
				}
				members[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	sub := New()
	illicit := make(map[string]string)
	for wallet := range members {
		if reason, ok := g.illicit[wallet]; ok {
			illicit[wallet] = reason
		}
	}
	sub.MarkIllicit(illicit)

	for _, tx := range g.transactions {
		_, fromIn := members[tx.From]
		_, toIn := members[tx.To]
		if !fromIn || !toIn {
			continue
		}
		if _, err := sub.AddTransaction(*tx); err != nil {
			return nil, err
		}
	}

	// a wallet with no in-radius transaction still belongs to its own neighborhood
	if !sub.HasWallet(address) {
		wallet := g.wallets[address]
		sub.wallets[address] = &entity.Wallet{
			Address:       address,
			FirstSeen:     wallet.FirstSeen,
			LastSeen:      wallet.LastSeen,
			Illicit:       wallet.Illicit,
			IllicitReason: wallet.IllicitReason,
		}
		sub.order = append(sub.order, address)
		sub.successors[address] = make(map[string]struct{})
		sub.predecessors[address] = make(map[string]struct{})
	}
	return sub, nil
}

// Density returns edges / (n·(n−1)) over distinct ordered pairs
func (g *Graph) Density() float64 {
	n := g.WalletCount()
	if n < 2 {
		return 0
	}
	return float64(g.EdgeCount()) / float64(n*(n-1))
}

// ClusteringCoefficient returns the local clustering of a wallet on the
// undirected view: linked neighbor pairs over all neighbor pairs
func (g *Graph) ClusteringCoefficient(address string) (float64, error) {
	if !g.HasWallet(address) {
		return 0, fmt.Errorf("%w: %s", entity.ErrWalletNotFound, address)
	}

	var neighbors []string
	for _, neighbor := range g.Neighbors(address) {
		if neighbor != address {
			neighbors = append(neighbors, neighbor)
		}
	}
	k := len(neighbors)
	if k < 2 {
		return 0, nil
	}

	links := 0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			if g.HasEdge(neighbors[i], neighbors[j]) || g.HasEdge(neighbors[j], neighbors[i]) {
				links++
			}
		}
	}
	return float64(2*links) / float64(k*(k-1)), nil
}
