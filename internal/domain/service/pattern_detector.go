package service

import (
	"math"
	"strconv"
	"strings"
	"time"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/domain/graph"
	"smurfing-hunter/internal/infrastructure/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var patternNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("smurfing-hunter/pattern"))

// PatternDetectorService mines a transaction graph for laundering topologies.
// Detectors only read the graph and return the same patterns for the same input.
type PatternDetectorService struct {
	graph  *graph.Graph
	config DetectorConfig
	logger *logger.Logger
}

// NewPatternDetectorService creates a detector bound to one graph
func NewPatternDetectorService(g *graph.Graph, config DetectorConfig, logger *logger.Logger) (*PatternDetectorService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &PatternDetectorService{
		graph:  g,
		config: config,
		logger: logger.WithComponent("pattern-detector"),
	}, nil
}

// DetectAll runs every detector over the configured scope. The illicit scope
// only looks at wallets downstream of a known illicit wallet.
func (pds *PatternDetectorService) DetectAll() (entity.PatternSet, map[entity.PatternType]entity.DetectionStats) {
	cfg := pds.config
	region := pds.scopeRegion()

	patterns := make(entity.PatternSet, len(entity.PatternTypes))
	stats := make(map[entity.PatternType]entity.DetectionStats, len(entity.PatternTypes))

	fanOut, fanOutStats := pds.detectFanOutFanIn(region, cfg.MinFanOut, cfg.MinFanIn, cfg.MaxHops)
	patterns[entity.PatternFanOutFanIn] = fanOut
	stats[entity.PatternFanOutFanIn] = fanOutStats

	cycles, cycleStats := pds.detectCyclic(region, cfg.MinCycleLength, cfg.MaxCycleLength)
	patterns[entity.PatternCyclic] = cycles
	stats[entity.PatternCyclic] = cycleStats

	var layered []*entity.SmurfingPattern
	var layeredStats entity.DetectionStats
	for _, source := range pds.layeredSources(region) {
		found, s := pds.detectLayered(source, cfg.MaxLayers, cfg.MinSplit)
		layered = append(layered, found...)
		layeredStats.Merge(s)
	}
	patterns[entity.PatternLayered] = layered
	stats[entity.PatternLayered] = layeredStats

	peeling, peelingStats := pds.detectPeelingChains(region, cfg.PeelThreshold)
	patterns[entity.PatternPeelingChain] = peeling
	stats[entity.PatternPeelingChain] = peelingStats

	for _, patternType := range entity.PatternTypes {
		if patterns[patternType] == nil {
			patterns[patternType] = []*entity.SmurfingPattern{}
		}
	}

	pds.logger.Info("Pattern detection completed",
		zap.String("scope", cfg.Scope),
		zap.Int("region_wallets", len(region)),
		zap.Int("fan_out_fan_in", len(fanOut)),
		zap.Int("cyclic", len(cycles)),
		zap.Int("layered", len(layered)),
		zap.Int("peeling_chain", len(peeling)),
		zap.Bool("cycles_truncated", cycleStats.Truncated))

	return patterns, stats
}

func (pds *PatternDetectorService) scopeRegion() []string {
	if pds.config.Scope == ScopeGlobal {
		return pds.graph.Wallets()
	}

	illicit := pds.graph.IllicitWallets()
	if len(illicit) == 0 {
		pds.logger.Warn("No illicit wallets in graph, illicit-scoped detection finds nothing")
		return nil
	}
	reach := pds.graph.MultiSourceDistances(illicit, graph.Downstream)
	return sortedKeys(reach.Distance)
}

func (pds *PatternDetectorService) layeredSources(region []string) []string {
	if pds.config.Scope != ScopeGlobal {
		return pds.graph.IllicitWallets()
	}
	var sources []string
	for _, wallet := range region {
		if pds.graph.OutDegree(wallet) >= pds.config.MinSplit {
			sources = append(sources, wallet)
		}
	}
	return sources
}

// Statistics summarizes a pattern set
func (pds *PatternDetectorService) Statistics(patterns entity.PatternSet) entity.PatternStatistics {
	stats := entity.PatternStatistics{
		ByType: make(map[entity.PatternType]int, len(entity.PatternTypes)),
	}
	flagged := decimal.Zero
	scoreSum := 0.0
	for _, patternType := range entity.PatternTypes {
		stats.ByType[patternType] = len(patterns[patternType])
	}
	for _, pattern := range patterns.All() {
		stats.TotalPatterns++
		scoreSum += pattern.Score
		stats.MaxSuspicionScore = math.Max(stats.MaxSuspicionScore, pattern.Score)
		flagged = flagged.Add(decimal.NewFromFloat(pattern.TotalAmount))
	}
	if stats.TotalPatterns > 0 {
		stats.AvgSuspicionScore = scoreSum / float64(stats.TotalPatterns)
	}
	stats.TotalAmountFlagged = flagged.InexactFloat64()
	return stats
}

// ---- fan-out / fan-in ----

type branchState struct {
	wallet  string
	arrival time.Time
	amount  float64
	path    []string
	txIDs   []int
}

type branchArrival struct {
	opening *entity.Transaction
	state   branchState
}

// DetectFanOutFanIn finds sources that split funds over at least minFanOut
// branches which reconverge on one destination from at least minFanIn
// distinct senders
func (pds *PatternDetectorService) DetectFanOutFanIn(minFanOut, minFanIn, maxHops int) ([]*entity.SmurfingPattern, entity.DetectionStats, error) {
	problems := positiveProblems(
		positiveBound{"min_fanout", minFanOut},
		positiveBound{"min_fanin", minFanIn},
		positiveBound{"max_hops", maxHops},
	)
	if err := invalidParameters("fan-out/fan-in", problems); err != nil {
		return nil, entity.DetectionStats{}, err
	}
	patterns, stats := pds.detectFanOutFanIn(pds.graph.Wallets(), minFanOut, minFanIn, maxHops)
	return patterns, stats, nil
}

func (pds *PatternDetectorService) detectFanOutFanIn(candidates []string, minFanOut, minFanIn, maxHops int) ([]*entity.SmurfingPattern, entity.DetectionStats) {
	var patterns []*entity.SmurfingPattern
	var stats entity.DetectionStats

	for _, source := range candidates {
		if pds.graph.OutDegree(source) < minFanOut {
			continue
		}
		stats.Candidates++

		arrivals := make(map[string][]branchArrival)
		for _, first := range pds.graph.Successors(source) {
			if first == source {
				continue
			}
			reached, truncated := pds.expandOpenings(source, first, maxHops)
			if truncated {
				stats.CapHits++
			}
			for target, arrival := range reached {
				arrivals[target] = append(arrivals[target], arrival)
			}
		}

		for _, target := range sortedKeys(arrivals) {
			group := distinctLastHops(arrivals[target])
			if convergingSenders(group) < minFanIn {
				continue
			}
			if pattern := pds.buildFanOutFanIn(source, target, group); pattern != nil {
				patterns = append(patterns, pattern)
			}
		}
	}

	stats.Truncated = stats.CapHits > 0
	return patterns, stats
}

// expandOpenings expands one branch per parallel funding transaction, in time
// order. A target keeps the arrival of the earliest opening that reaches it.
func (pds *PatternDetectorService) expandOpenings(source, first string, maxHops int) (map[string]branchArrival, bool) {
	reached := make(map[string]branchArrival)
	truncated := false
	for _, opening := range pds.graph.TransactionsBetween(source, first) {
		states, capped := pds.expandBranch(source, opening, maxHops)
		truncated = truncated || capped
		for target, state := range states {
			if _, ok := reached[target]; !ok {
				reached[target] = branchArrival{opening: opening, state: state}
			}
		}
	}
	return reached, truncated
}

// expandBranch walks forward from one funding transaction. Each hop must be
// strictly later than the hop that funded it and must not send more than it
// received, within the fee tolerance. The first path to reach a wallet wins.
func (pds *PatternDetectorService) expandBranch(source string, opening *entity.Transaction, maxHops int) (map[string]branchState, bool) {
	tolerance := 1 + pds.config.FeeTolerance
	visited := map[string]struct{}{source: {}, opening.To: {}}
	reached := make(map[string]branchState)

	frontier := []branchState{{
		wallet:  opening.To,
		arrival: opening.Timestamp,
		amount:  opening.Amount,
		path:    []string{source, opening.To},
		txIDs:   []int{opening.ID},
	}}

	for depth := 1; len(frontier) > 0; depth++ {
		if depth >= maxHops {
			return reached, pds.branchCanAdvance(frontier, visited, tolerance)
		}
		var next []branchState
		for _, state := range frontier {
			for _, tx := range pds.forwards(state, tolerance) {
				if _, seen := visited[tx.To]; seen {
					continue
				}
				visited[tx.To] = struct{}{}
				child := branchState{
					wallet:  tx.To,
					arrival: tx.Timestamp,
					amount:  tx.Amount,
					path:    append(append([]string{}, state.path...), tx.To),
					txIDs:   append(append([]int{}, state.txIDs...), tx.ID),
				}
				reached[tx.To] = child
				next = append(next, child)
			}
		}
		frontier = next
	}
	return reached, false
}

// forwards returns the qualifying transactions out of a branch wallet, keeping
// the largest one per receiver (the earliest on ties)
func (pds *PatternDetectorService) forwards(state branchState, tolerance float64) []*entity.Transaction {
	var picked []*entity.Transaction
	index := make(map[string]int)
	for _, tx := range pds.graph.OutTransactions(state.wallet) {
		if !tx.Timestamp.After(state.arrival) || tx.Amount > state.amount*tolerance {
			continue
		}
		if i, ok := index[tx.To]; ok {
			if tx.Amount > picked[i].Amount {
				picked[i] = tx
			}
			continue
		}
		index[tx.To] = len(picked)
		picked = append(picked, tx)
	}
	return picked
}

func (pds *PatternDetectorService) branchCanAdvance(frontier []branchState, visited map[string]struct{}, tolerance float64) bool {
	for _, state := range frontier {
		for _, tx := range pds.forwards(state, tolerance) {
			if _, seen := visited[tx.To]; !seen {
				return true
			}
		}
	}
	return false
}

// distinctLastHops keeps one arrival per final transaction, so branches that
// merge upstream of the target count once
func distinctLastHops(group []branchArrival) []branchArrival {
	seen := make(map[int]struct{}, len(group))
	kept := make([]branchArrival, 0, len(group))
	for _, arrival := range group {
		last := arrival.state.txIDs[len(arrival.state.txIDs)-1]
		if _, dup := seen[last]; dup {
			continue
		}
		seen[last] = struct{}{}
		kept = append(kept, arrival)
	}
	return kept
}

// convergingSenders counts the distinct wallets paying the target on the last hop
func convergingSenders(group []branchArrival) int {
	senders := make(map[string]struct{}, len(group))
	for _, arrival := range group {
		path := arrival.state.path
		senders[path[len(path)-2]] = struct{}{}
	}
	return len(senders)
}

func (pds *PatternDetectorService) buildFanOutFanIn(source, target string, group []branchArrival) *entity.SmurfingPattern {
	var amountOut, amountIn float64
	intermediates := make(map[string]struct{})
	var txIDs []int
	paths := make([][]string, 0, len(group))
	hops := 0

	for _, arrival := range group {
		path := arrival.state.path
		amountOut += arrival.opening.Amount
		amountIn += arrival.state.amount
		for _, wallet := range path[1 : len(path)-1] {
			intermediates[wallet] = struct{}{}
		}
		txIDs = append(txIDs, arrival.state.txIDs...)
		paths = append(paths, path)
		hops = max(hops, len(path)-1)
	}

	if amountIn > amountOut*(1+pds.config.FeeTolerance) {
		return nil
	}

	middle := sortedKeys(intermediates)
	participants := make([]entity.Participant, 0, len(middle)+2)
	participants = append(participants, entity.Participant{Wallet: source, Role: entity.RoleSource})
	for _, wallet := range middle {
		participants = append(participants, entity.Participant{Wallet: wallet, Role: entity.RoleIntermediate})
	}
	participants = append(participants, entity.Participant{Wallet: target, Role: entity.RoleDestination})

	conservation := amountIn / amountOut
	tightness := clamp01(1 - math.Abs(1-conservation))
	width := math.Min(1, float64(len(group))/10)

	pattern := pds.newPattern(entity.PatternFanOutFanIn, participants, txIDs)
	pattern.Score = clamp(50*width+50*tightness, 0, 100)
	pattern.TotalAmount = amountOut
	pattern.HopCount = hops
	pattern.FanOutFanIn = &entity.FanOutFanInDetail{
		Source:        source,
		Intermediates: middle,
		Destination:   target,
		Paths:         paths,
		AmountOut:     amountOut,
		AmountIn:      amountIn,
		Conservation:  conservation,
	}
	return pattern
}

// ---- cyclic ----

// DetectCyclic enumerates simple cycles with length in [minLen, maxLen] and
// keeps those whose funds move forward in time while shrinking. Enumeration
// stops at the configured cycle cap, keeping the cycles found first.
func (pds *PatternDetectorService) DetectCyclic(minLen, maxLen int) ([]*entity.SmurfingPattern, entity.DetectionStats, error) {
	if err := invalidParameters("cyclic", cycleLengthProblems(minLen, maxLen)); err != nil {
		return nil, entity.DetectionStats{}, err
	}
	patterns, stats := pds.detectCyclic(pds.graph.Wallets(), minLen, maxLen)
	return patterns, stats, nil
}

func (pds *PatternDetectorService) detectCyclic(nodes []string, minLen, maxLen int) ([]*entity.SmurfingPattern, entity.DetectionStats) {
	var patterns []*entity.SmurfingPattern
	var stats entity.DetectionStats

	index := make(map[string]int, len(nodes))
	for i, node := range nodes {
		index[node] = i
	}

	visit := func(cycle []string) bool {
		stats.Candidates++
		if pattern := pds.qualifyCycle(cycle, minLen, maxLen); pattern != nil {
			patterns = append(patterns, pattern)
			if len(patterns) >= pds.config.MaxCycles {
				return false
			}
		}
		return stats.Candidates < pds.config.MaxCycleCandidates
	}

	for i, start := range nodes {
		if !pds.walkCycles(start, i, index, minLen, maxLen, visit) {
			stats.CapHits++
			stats.Truncated = true
			pds.logger.Warn("Cycle enumeration cap reached",
				zap.Int("patterns", len(patterns)),
				zap.Int("candidates", stats.Candidates))
			break
		}
	}
	return patterns, stats
}

// walkCycles reports every simple cycle whose smallest node is start, so each
// cycle is seen exactly once. It returns false when visit asks to stop.
func (pds *PatternDetectorService) walkCycles(start string, startIndex int, index map[string]int, minLen, maxLen int, visit func([]string) bool) bool {
	path := []string{start}
	onPath := map[string]struct{}{start: {}}

	var dfs func(current string) bool
	dfs = func(current string) bool {
		for _, next := range pds.graph.Successors(current) {
			if next == start {
				if len(path) >= minLen && !visit(append([]string{}, path...)) {
					return false
				}
				continue
			}
			position, inScope := index[next]
			if !inScope || position <= startIndex || len(path) >= maxLen {
				continue
			}
			if _, seen := onPath[next]; seen {
				continue
			}
			path = append(path, next)
			onPath[next] = struct{}{}
			if !dfs(next) {
				return false
			}
			path = path[:len(path)-1]
			delete(onPath, next)
		}
		return true
	}
	return dfs(start)
}

// qualifyCycle looks for a rotation and a choice of parallel transactions that
// moves strictly forward in time with non-increasing amounts
func (pds *PatternDetectorService) qualifyCycle(cycle []string, minLen, maxLen int) *entity.SmurfingPattern {
	length := len(cycle)
	for offset := 0; offset < length; offset++ {
		rotated := append(append([]string{}, cycle[offset:]...), cycle[:offset]...)
		chosen := pds.chooseCycleTransactions(rotated)
		if chosen == nil {
			continue
		}
		return pds.buildCycle(rotated, chosen, minLen, maxLen)
	}
	return nil
}

func (pds *PatternDetectorService) chooseCycleTransactions(wallets []string) []*entity.Transaction {
	length := len(wallets)
	edges := make([][]*entity.Transaction, length)
	for i := range wallets {
		edges[i] = pds.graph.TransactionsBetween(wallets[i], wallets[(i+1)%length])
		if len(edges[i]) == 0 {
			return nil
		}
	}

	tolerance := 1 + pds.config.DecayTolerance
	chosen := make([]*entity.Transaction, length)
	// a dead (hop, transaction) pair fails regardless of how it was reached
	dead := make(map[[2]int]struct{})

	var pick func(hop int, prev *entity.Transaction) bool
	pick = func(hop int, prev *entity.Transaction) bool {
		if hop == length {
			return true
		}
		for _, tx := range edges[hop] {
			if prev != nil && (!tx.Timestamp.After(prev.Timestamp) || tx.Amount > prev.Amount*tolerance) {
				continue
			}
			key := [2]int{hop, tx.ID}
			if _, failed := dead[key]; failed {
				continue
			}
			chosen[hop] = tx
			if pick(hop+1, tx) {
				return true
			}
			dead[key] = struct{}{}
		}
		return false
	}

	if !pick(0, nil) {
		return nil
	}
	return chosen
}

func (pds *PatternDetectorService) buildCycle(wallets []string, chosen []*entity.Transaction, minLen, maxLen int) *entity.SmurfingPattern {
	length := len(wallets)
	amounts := make([]float64, length)
	txIDs := make([]int, length)
	for i, tx := range chosen {
		amounts[i] = tx.Amount
		txIDs[i] = tx.ID
	}

	ratios := make([]float64, 0, length-1)
	for i := 1; i < length; i++ {
		ratios = append(ratios, amounts[i]/amounts[i-1])
	}
	steadiness := clamp01(1 - 5*coefficientOfVariation(ratios))
	lengthFactor := 1 - float64(length-minLen)/float64(maxLen-minLen+1)

	participants := make([]entity.Participant, 0, length)
	for i, wallet := range wallets {
		role := entity.RoleIntermediate
		switch i {
		case 0:
			role = entity.RoleSource
		case length - 1:
			role = entity.RoleDestination
		}
		participants = append(participants, entity.Participant{Wallet: wallet, Role: role})
	}

	pattern := pds.newPattern(entity.PatternCyclic, participants, txIDs)
	pattern.Score = clamp(60*steadiness+40*lengthFactor, 0, 100)
	pattern.TotalAmount = amounts[0]
	pattern.HopCount = length
	pattern.Cycle = &entity.CycleDetail{
		Wallets:    wallets,
		Amounts:    amounts,
		Length:     length,
		DecayRatio: mean(ratios),
	}
	return pattern
}

// ---- layered ----

// DetectLayered expands layer by layer from a source. A child joins layer k
// only through a transaction later than the one that reached its parent, and
// a layer is kept while its branching factor stays at or above minSplit.
func (pds *PatternDetectorService) DetectLayered(source string, maxLayers, minSplit int) ([]*entity.SmurfingPattern, entity.DetectionStats, error) {
	problems := positiveProblems(
		positiveBound{"max_layers", maxLayers},
		positiveBound{"min_split", minSplit},
	)
	if err := invalidParameters("layered", problems); err != nil {
		return nil, entity.DetectionStats{}, err
	}
	patterns, stats := pds.detectLayered(source, maxLayers, minSplit)
	return patterns, stats, nil
}

func (pds *PatternDetectorService) detectLayered(source string, maxLayers, minSplit int) ([]*entity.SmurfingPattern, entity.DetectionStats) {
	var stats entity.DetectionStats
	if !pds.graph.HasWallet(source) {
		return nil, stats
	}
	stats.Candidates = 1

	tolerance := 1 + pds.config.FeeTolerance
	visited := map[string]struct{}{source: {}}
	arrival := make(map[string]time.Time)
	inflow := make(map[string]float64)

	layers := [][]string{{source}}
	var factors []float64
	layerAmounts := []float64{0}
	walletAmounts := make(map[string]float64)
	var txIDs []int
	current := []string{source}

	for len(layers)-1 < maxLayers {
		links := make(map[[2]string]struct{})
		childAmount := make(map[string]float64)
		childArrival := make(map[string]time.Time)
		var layerTxs []int

		for _, parent := range current {
			spent := 0.0
			for _, tx := range pds.graph.OutTransactions(parent) {
				if parent != source && !tx.Timestamp.After(arrival[parent]) {
					continue
				}
				if _, seen := visited[tx.To]; seen {
					continue
				}
				if parent != source && spent+tx.Amount > inflow[parent]*tolerance {
					continue
				}
				spent += tx.Amount
				links[[2]string{parent, tx.To}] = struct{}{}
				childAmount[tx.To] += tx.Amount
				if earliest, ok := childArrival[tx.To]; !ok || tx.Timestamp.Before(earliest) {
					childArrival[tx.To] = tx.Timestamp
				}
				layerTxs = append(layerTxs, tx.ID)
			}
		}

		branching := float64(len(links)) / float64(len(current))
		if len(childAmount) == 0 || branching < float64(minSplit) {
			break
		}

		children := sortedKeys(childAmount)
		layerTotal := 0.0
		for _, child := range children {
			visited[child] = struct{}{}
			arrival[child] = childArrival[child]
			inflow[child] = childAmount[child]
			walletAmounts[child] = childAmount[child]
			layerTotal += childAmount[child]
		}
		if len(layers) == 1 {
			layerAmounts[0] = layerTotal
			walletAmounts[source] = layerTotal
		}

		layers = append(layers, children)
		factors = append(factors, branching)
		layerAmounts = append(layerAmounts, layerTotal)
		txIDs = append(txIDs, layerTxs...)
		current = children
	}

	kept := len(layers) - 1
	if kept == maxLayers && pds.layerCanAdvance(current, visited, arrival, inflow, tolerance) {
		stats.CapHits++
		stats.Truncated = true
	}
	if kept < pds.config.MinLayers || kept == 0 {
		return nil, stats
	}

	decay := make([]float64, len(layerAmounts))
	for i, amount := range layerAmounts {
		decay[i] = amount / layerAmounts[0]
	}

	participants := []entity.Participant{{Wallet: source, Role: entity.RoleSource}}
	for k := 1; k <= kept; k++ {
		role := entity.RoleIntermediate
		if k == kept {
			role = entity.RoleDestination
		}
		for _, wallet := range layers[k] {
			participants = append(participants, entity.Participant{Wallet: wallet, Role: role})
		}
	}

	depth := math.Min(1, float64(kept)/float64(maxLayers))
	consistency := clamp01(1 - coefficientOfVariation(factors))

	pattern := pds.newPattern(entity.PatternLayered, participants, txIDs)
	pattern.Score = clamp(60*depth+40*consistency, 0, 100)
	pattern.TotalAmount = layerAmounts[0]
	pattern.HopCount = kept
	pattern.Layered = &entity.LayeredDetail{
		Source:           source,
		Layers:           layers,
		BranchingFactors: factors,
		LayerAmounts:     layerAmounts,
		DecayCurve:       decay,
		WalletAmounts:    walletAmounts,
	}
	return []*entity.SmurfingPattern{pattern}, stats
}

func (pds *PatternDetectorService) layerCanAdvance(current []string, visited map[string]struct{}, arrival map[string]time.Time, inflow map[string]float64, tolerance float64) bool {
	for _, parent := range current {
		for _, tx := range pds.graph.OutTransactions(parent) {
			if _, seen := visited[tx.To]; seen {
				continue
			}
			if tx.Timestamp.After(arrival[parent]) && tx.Amount <= inflow[parent]*tolerance {
				return true
			}
		}
	}
	return false
}

// ---- peeling chain ----

// DetectPeelingChain follows the dominant outgoing transaction from a wallet
// while each hop skims at most threshold of the remaining funds to side
// receivers. ok is false when the first hop is not a peel.
func (pds *PatternDetectorService) DetectPeelingChain(wallet string, threshold float64) (*entity.SmurfingPattern, bool, error) {
	if err := invalidParameters("peeling chain", peelThresholdProblems(threshold)); err != nil {
		return nil, false, err
	}
	pattern, _ := pds.followPeelingChain(wallet, threshold)
	return pattern, pattern != nil, nil
}

func (pds *PatternDetectorService) detectPeelingChains(region []string, threshold float64) ([]*entity.SmurfingPattern, entity.DetectionStats) {
	var patterns []*entity.SmurfingPattern
	var stats entity.DetectionStats
	covered := make(map[string]struct{})

	for _, wallet := range region {
		if _, done := covered[wallet]; done {
			continue
		}
		degree := pds.graph.OutDegree(wallet)
		if degree < 1 || degree > pds.config.PeelMaxFanOut+1 {
			continue
		}
		stats.Candidates++

		pattern, truncated := pds.followPeelingChain(wallet, threshold)
		if truncated {
			stats.CapHits++
		}
		if pattern == nil || pattern.HopCount < pds.config.PeelMinHops {
			continue
		}
		for _, member := range pattern.Peeling.Chain {
			covered[member] = struct{}{}
		}
		patterns = append(patterns, pattern)
	}

	stats.Truncated = stats.CapHits > 0
	return patterns, stats
}

func (pds *PatternDetectorService) followPeelingChain(wallet string, threshold float64) (*entity.SmurfingPattern, bool) {
	if !pds.graph.HasWallet(wallet) {
		return nil, false
	}

	chain := []string{wallet}
	visited := map[string]struct{}{wallet: {}}
	var hops []entity.PeelHop
	var txIDs []int
	var arrival time.Time
	inflow := 0.0
	current := wallet
	truncated := false

	for {
		outgoing := pds.outgoingAfter(current, arrival, len(hops) == 0)
		if len(hops) >= pds.config.PeelMaxHops {
			truncated = len(outgoing) > 0
			break
		}

		hop, main, peels, ok := pds.peelStep(current, outgoing, inflow, threshold, len(hops) == 0)
		if !ok {
			break
		}
		if _, seen := visited[main.To]; seen {
			break
		}

		hops = append(hops, hop)
		txIDs = append(txIDs, main.ID)
		for _, peel := range peels {
			txIDs = append(txIDs, peel.ID)
		}
		visited[main.To] = struct{}{}
		chain = append(chain, main.To)
		arrival = main.Timestamp
		inflow = main.Amount
		current = main.To
	}

	if len(hops) == 0 {
		return nil, truncated
	}

	participants := make([]entity.Participant, 0, len(chain))
	for i, member := range chain {
		role := entity.RoleIntermediate
		switch i {
		case 0:
			role = entity.RoleSource
		case len(chain) - 1:
			role = entity.RoleDestination
		}
		participants = append(participants, entity.Participant{Wallet: member, Role: role})
	}

	var fractions []float64
	for _, hop := range hops {
		if hop.PeelAmount > 0 {
			fractions = append(fractions, hop.PeelFraction)
		}
	}
	length := math.Min(1, float64(len(hops))/10)
	consistency := clamp01(1 - coefficientOfVariation(fractions))
	peelShare := float64(len(fractions)) / float64(len(hops))

	pattern := pds.newPattern(entity.PatternPeelingChain, participants, txIDs)
	pattern.Score = clamp(50*length+30*consistency+20*peelShare, 0, 100)
	pattern.TotalAmount = hops[0].Remaining
	pattern.HopCount = len(hops)
	pattern.Peeling = &entity.PeelingDetail{
		Chain: chain,
		Hops:  hops,
	}
	return pattern, truncated
}

func (pds *PatternDetectorService) outgoingAfter(wallet string, arrival time.Time, first bool) []*entity.Transaction {
	all := pds.graph.OutTransactions(wallet)
	if first {
		return all
	}
	var later []*entity.Transaction
	for _, tx := range all {
		if tx.Timestamp.After(arrival) {
			later = append(later, tx)
		}
	}
	return later
}

// peelStep checks one hop: the largest transaction must carry the majority,
// every other one must stay under the peel threshold, and after the first hop
// the forwarded amount may not drop by more than the configured fraction
func (pds *PatternDetectorService) peelStep(from string, outgoing []*entity.Transaction, inflow, threshold float64, first bool) (entity.PeelHop, *entity.Transaction, []*entity.Transaction, bool) {
	if len(outgoing) == 0 {
		return entity.PeelHop{}, nil, nil, false
	}

	main := outgoing[0]
	remaining := 0.0
	for _, tx := range outgoing {
		remaining += tx.Amount
		if tx.Amount > main.Amount {
			main = tx
		}
	}

	var peels []*entity.Transaction
	peelAmount := 0.0
	receivers := make(map[string]struct{})
	for _, tx := range outgoing {
		if tx == main {
			continue
		}
		if tx.Amount > threshold*remaining {
			return entity.PeelHop{}, nil, nil, false
		}
		peels = append(peels, tx)
		peelAmount += tx.Amount
		receivers[tx.To] = struct{}{}
	}

	switch {
	case len(peels) > pds.config.PeelMaxFanOut:
		return entity.PeelHop{}, nil, nil, false
	case main.Amount <= remaining/2:
		return entity.PeelHop{}, nil, nil, false
	case first && len(peels) == 0:
		return entity.PeelHop{}, nil, nil, false
	case !first && main.Amount < inflow*(1-pds.config.PeelMaxDrop):
		return entity.PeelHop{}, nil, nil, false
	}

	hop := entity.PeelHop{
		From:          from,
		To:            main.To,
		Amount:        main.Amount,
		Remaining:     remaining,
		PeelAmount:    peelAmount,
		PeelFraction:  peelAmount / remaining,
		PeelReceivers: sortedKeys(receivers),
	}
	return hop, main, peels, true
}

// ---- shared ----

func (pds *PatternDetectorService) newPattern(patternType entity.PatternType, participants []entity.Participant, txIDs []int) *entity.SmurfingPattern {
	ids := uniqueSortedInts(txIDs)
	pattern := &entity.SmurfingPattern{
		ID:             patternID(patternType, participants, ids),
		Type:           patternType,
		Participants:   participants,
		TransactionIDs: ids,
	}
	for i, id := range ids {
		tx, ok := pds.graph.Transaction(id)
		if !ok {
			continue
		}
		if i == 0 || tx.Timestamp.Before(pattern.FirstActivity) {
			pattern.FirstActivity = tx.Timestamp
		}
		if i == 0 || tx.Timestamp.After(pattern.LastActivity) {
			pattern.LastActivity = tx.Timestamp
		}
	}
	return pattern
}

// patternID derives a stable identifier from the pattern's type, members and edges
func patternID(patternType entity.PatternType, participants []entity.Participant, txIDs []int) string {
	var key strings.Builder
	key.WriteString(string(patternType))
	for _, participant := range participants {
		key.WriteByte('|')
		key.WriteString(participant.Wallet)
		key.WriteByte(':')
		key.WriteString(string(participant.Role))
	}
	for _, id := range txIDs {
		key.WriteByte('|')
		key.WriteString(strconv.Itoa(id))
	}
	return uuid.NewSHA1(patternNamespace, []byte(key.String())).String()
}
