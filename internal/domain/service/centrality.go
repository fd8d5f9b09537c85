package service

import (
	"math"
	"math/rand/v2"

	"smurfing-hunter/internal/domain/graph"
)

// adjacency is an index-based view of the distinct wallet-to-wallet edges
type adjacency struct {
	nodes []string
	index map[string]int
	out   [][]int
	in    [][]int
}

func newAdjacency(g *graph.Graph) *adjacency {
	nodes := g.Wallets()
	adj := &adjacency{
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
		out:   make([][]int, len(nodes)),
		in:    make([][]int, len(nodes)),
	}
	for i, node := range nodes {
		adj.index[node] = i
	}
	for i, node := range nodes {
		for _, next := range g.Successors(node) {
			j := adj.index[next]
			adj.out[i] = append(adj.out[i], j)
			adj.in[j] = append(adj.in[j], i)
		}
	}
	return adj
}

// pageRank runs power iteration; dangling mass is spread uniformly
func pageRank(adj *adjacency, damping float64, maxIterations int, tolerance float64) []float64 {
	n := len(adj.nodes)
	if n == 0 {
		return nil
	}

	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / float64(n)
	}

	for iteration := 0; iteration < maxIterations; iteration++ {
		next := make([]float64, n)
		dangling := 0.0
		for i, targets := range adj.out {
			if len(targets) == 0 {
				dangling += rank[i]
				continue
			}
			share := damping * rank[i] / float64(len(targets))
			for _, j := range targets {
				next[j] += share
			}
		}

		base := (1-damping)/float64(n) + damping*dangling/float64(n)
		diff := 0.0
		for i := range next {
			next[i] += base
			diff += math.Abs(next[i] - rank[i])
		}
		rank = next
		if diff < float64(n)*tolerance {
			break
		}
	}
	return rank
}

// betweenness is Brandes' algorithm over a sample of k source wallets, scaled
// by n/k. With k < n it is an approximation of exact betweenness. The sample
// is a seeded shuffle of the sorted wallets, so repeated runs agree.
func betweenness(adj *adjacency, k int, seed uint64) []float64 {
	n := len(adj.nodes)
	centrality := make([]float64, n)
	if n == 0 {
		return centrality
	}

	sources := make([]int, n)
	for i := range sources {
		sources[i] = i
	}
	if k < n {
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		rng.Shuffle(n, func(i, j int) {
			sources[i], sources[j] = sources[j], sources[i]
		})
		sources = sources[:k]
	}

	sigma := make([]float64, n)
	distance := make([]int, n)
	delta := make([]float64, n)
	predecessors := make([][]int, n)

	for _, s := range sources {
		for i := 0; i < n; i++ {
			sigma[i] = 0
			distance[i] = -1
			delta[i] = 0
			predecessors[i] = predecessors[i][:0]
		}
		sigma[s] = 1
		distance[s] = 0

		stack := make([]int, 0, n)
		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range adj.out[v] {
				if distance[w] < 0 {
					distance[w] = distance[v] + 1
					queue = append(queue, w)
				}
				if distance[w] == distance[v]+1 {
					sigma[w] += sigma[v]
					predecessors[w] = append(predecessors[w], v)
				}
			}
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range predecessors[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				centrality[w] += delta[w]
			}
		}
	}

	if len(sources) < n {
		scale := float64(n) / float64(len(sources))
		for i := range centrality {
			centrality[i] *= scale
		}
	}
	return centrality
}

// closeness uses incoming distances with the Wasserman-Faust correction for
// wallets that only part of the graph can reach
func closeness(adj *adjacency) []float64 {
	n := len(adj.nodes)
	centrality := make([]float64, n)
	if n < 2 {
		return centrality
	}

	distance := make([]int, n)
	for u := 0; u < n; u++ {
		for i := range distance {
			distance[i] = -1
		}
		distance[u] = 0
		queue := []int{u}
		total, reached := 0, 0
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, w := range adj.in[v] {
				if distance[w] >= 0 {
					continue
				}
				distance[w] = distance[v] + 1
				total += distance[w]
				reached++
				queue = append(queue, w)
			}
		}
		if total > 0 {
			centrality[u] = (float64(reached) / float64(total)) * (float64(reached) / float64(n-1))
		}
	}
	return centrality
}

// minMaxNormalize maps values onto [0,1]; a constant population maps to 0.5
func minMaxNormalize(values []float64) []float64 {
	normalized := make([]float64, len(values))
	if len(values) == 0 {
		return normalized
	}
	low, high := values[0], values[0]
	for _, v := range values {
		low = math.Min(low, v)
		high = math.Max(high, v)
	}
	for i, v := range values {
		if high == low {
			normalized[i] = 0.5
			continue
		}
		normalized[i] = (v - low) / (high - low)
	}
	return normalized
}
