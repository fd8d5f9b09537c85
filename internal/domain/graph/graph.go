package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"smurfing-hunter/internal/domain/entity"
)

// Graph is a directed, edge-weighted multigraph over wallet identifiers.
// It is built once by the ingestion layer and only read during analysis.
type Graph struct {
	wallets      map[string]*entity.Wallet
	order        []string
	transactions []*entity.Transaction
	out          map[string][]*entity.Transaction
	in           map[string][]*entity.Transaction
	successors   map[string]map[string]struct{}
	predecessors map[string]map[string]struct{}
	illicit      map[string]string
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		wallets:      make(map[string]*entity.Wallet),
		out:          make(map[string][]*entity.Transaction),
		in:           make(map[string][]*entity.Transaction),
		successors:   make(map[string]map[string]struct{}),
		predecessors: make(map[string]map[string]struct{}),
		illicit:      make(map[string]string),
	}
}

// AddTransaction validates a transaction and inserts it as a new edge.
// Endpoints are created on first sight and their aggregates updated in place.
func (g *Graph) AddTransaction(tx entity.Transaction) (*entity.Transaction, error) {
	tx.From = strings.TrimSpace(tx.From)
	tx.To = strings.TrimSpace(tx.To)

	switch {
	case tx.From == "" || tx.To == "":
		return nil, fmt.Errorf("%w: missing wallet endpoint (hash=%q)", entity.ErrMalformedTransaction, tx.Hash)
	case !(tx.Amount > 0) || math.IsInf(tx.Amount, 0):
		return nil, fmt.Errorf("%w: amount must be positive and finite, got %v from %s to %s", entity.ErrMalformedTransaction, tx.Amount, tx.From, tx.To)
	case tx.Timestamp.IsZero():
		return nil, fmt.Errorf("%w: missing timestamp from %s to %s", entity.ErrMalformedTransaction, tx.From, tx.To)
	}

	tx.ID = len(g.transactions)
	edge := &tx

	source := g.ensureWallet(tx.From, tx)
	dest := g.ensureWallet(tx.To, tx)

	source.TotalSent += tx.Amount
	source.OutgoingCount++
	dest.TotalReceived += tx.Amount
	dest.IncomingCount++

	if _, seen := g.successors[tx.From][tx.To]; !seen {
		g.successors[tx.From][tx.To] = struct{}{}
		g.predecessors[tx.To][tx.From] = struct{}{}
		source.SentTo++
		dest.ReceivedFrom++
	}

	g.transactions = append(g.transactions, edge)
	g.out[tx.From] = insertByTime(g.out[tx.From], edge)
	g.in[tx.To] = insertByTime(g.in[tx.To], edge)

	return edge, nil
}

func (g *Graph) ensureWallet(address string, tx entity.Transaction) *entity.Wallet {
	wallet, ok := g.wallets[address]
	if !ok {
		wallet = &entity.Wallet{
			Address:   address,
			FirstSeen: tx.Timestamp,
			LastSeen:  tx.Timestamp,
		}
		if reason, flagged := g.illicit[address]; flagged {
			wallet.Illicit = true
			wallet.IllicitReason = reason
		}
		g.wallets[address] = wallet
		g.order = append(g.order, address)
		g.successors[address] = make(map[string]struct{})
		g.predecessors[address] = make(map[string]struct{})
		return wallet
	}

	if tx.Timestamp.Before(wallet.FirstSeen) {
		wallet.FirstSeen = tx.Timestamp
	}
	if tx.Timestamp.After(wallet.LastSeen) {
		wallet.LastSeen = tx.Timestamp
	}
	return wallet
}

// MarkIllicit flags wallets as known illicit. Addresses not yet in the graph
// are remembered and flagged when they first appear.
func (g *Graph) MarkIllicit(illicit map[string]string) {
	for address, reason := range illicit {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		g.illicit[address] = reason
		if wallet, ok := g.wallets[address]; ok {
			wallet.Illicit = true
			wallet.IllicitReason = reason
		}
	}
}

// insertByTime keeps adjacency lists ordered by timestamp, then insertion
func insertByTime(list []*entity.Transaction, tx *entity.Transaction) []*entity.Transaction {
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].Timestamp.After(tx.Timestamp)
	})
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = tx
	return list
}

// HasWallet reports whether the wallet is a node of the graph
func (g *Graph) HasWallet(address string) bool {
	_, ok := g.wallets[address]
	return ok
}

// Wallet returns the wallet record
func (g *Graph) Wallet(address string) (*entity.Wallet, error) {
	wallet, ok := g.wallets[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrWalletNotFound, address)
	}
	return wallet, nil
}

// Wallets returns every wallet address in lexical order
func (g *Graph) Wallets() []string {
	addresses := make([]string, len(g.order))
	copy(addresses, g.order)
	sort.Strings(addresses)
	return addresses
}

// WalletCount returns the number of wallets
func (g *Graph) WalletCount() int {
	return len(g.wallets)
}

// TransactionCount returns the number of transactions
func (g *Graph) TransactionCount() int {
	return len(g.transactions)
}

// EdgeCount returns the number of distinct ordered wallet pairs
func (g *Graph) EdgeCount() int {
	count := 0
	for _, successors := range g.successors {
		count += len(successors)
	}
	return count
}

// Transaction returns a transaction by ID
func (g *Graph) Transaction(id int) (*entity.Transaction, bool) {
	if id < 0 || id >= len(g.transactions) {
		return nil, false
	}
	return g.transactions[id], true
}

// Transactions returns every transaction in insertion order
func (g *Graph) Transactions() []*entity.Transaction {
	return g.transactions
}

// OutTransactions returns outgoing transactions ordered by timestamp
func (g *Graph) OutTransactions(address string) []*entity.Transaction {
	return g.out[address]
}

// InTransactions returns incoming transactions ordered by timestamp
func (g *Graph) InTransactions(address string) []*entity.Transaction {
	return g.in[address]
}

// TransactionsBetween returns the transactions from one wallet to another ordered by timestamp
func (g *Graph) TransactionsBetween(from, to string) []*entity.Transaction {
	var txs []*entity.Transaction
	for _, tx := range g.OutTransactions(from) {
		if tx.To == to {
			txs = append(txs, tx)
		}
	}
	return txs
}

// Successors returns the distinct receivers of a wallet, sorted
func (g *Graph) Successors(address string) []string {
	return sortedKeys(g.successors[address])
}

// Predecessors returns the distinct senders to a wallet, sorted
func (g *Graph) Predecessors(address string) []string {
	return sortedKeys(g.predecessors[address])
}

// Neighbors returns the distinct counterparties in either direction, sorted
func (g *Graph) Neighbors(address string) []string {
	set := make(map[string]struct{}, len(g.successors[address])+len(g.predecessors[address]))
	for neighbor := range g.successors[address] {
		set[neighbor] = struct{}{}
	}
	for neighbor := range g.predecessors[address] {
		set[neighbor] = struct{}{}
	}
	return sortedKeys(set)
}

// HasEdge reports whether at least one transaction goes from one wallet to the other
func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.successors[from][to]
	return ok
}

// OutDegree returns the number of distinct receivers
func (g *Graph) OutDegree(address string) int {
	return len(g.successors[address])
}

// InDegree returns the number of distinct senders
func (g *Graph) InDegree(address string) int {
	return len(g.predecessors[address])
}

// IsIllicit reports whether the wallet is on the illicit list
func (g *Graph) IsIllicit(address string) bool {
	_, ok := g.illicit[address]
	return ok
}

// IllicitWallets returns the illicit wallets present in the graph, sorted
func (g *Graph) IllicitWallets() []string {
	var wallets []string
	for address := range g.illicit {
		if g.HasWallet(address) {
			wallets = append(wallets, address)
		}
	}
	sort.Strings(wallets)
	return wallets
}

// Features extracts the structural features of a wallet
func (g *Graph) Features(address string) (entity.WalletFeatures, error) {
	wallet, err := g.Wallet(address)
	if err != nil {
		return entity.WalletFeatures{}, err
	}

	in := g.InDegree(address)
	out := g.OutDegree(address)

	return entity.WalletFeatures{
		Address:          address,
		InDegree:         in,
		OutDegree:        out,
		FanOutRatio:      float64(out) / float64(max(in, 1)),
		FanInRatio:       float64(in) / float64(max(out, 1)),
		TransactionCount: wallet.TransactionCount(),
		TotalSent:        wallet.TotalSent,
		TotalReceived:    wallet.TotalReceived,
		Balance:          wallet.Balance(),
		IsIllicit:        g.IsIllicit(address),
	}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
