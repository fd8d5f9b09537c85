package entity

import (
	"time"
)

// Wallet represents a wallet node of the transaction graph
type Wallet struct {
	Address       string    `json:"address"`
	TotalSent     float64   `json:"total_sent"`
	TotalReceived float64   `json:"total_received"`
	OutgoingCount int64     `json:"outgoing_count"`
	IncomingCount int64     `json:"incoming_count"`
	SentTo        int64     `json:"sent_to"`       // distinct receivers
	ReceivedFrom  int64     `json:"received_from"` // distinct senders
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	Illicit       bool      `json:"illicit"`
	IllicitReason string    `json:"illicit_reason,omitempty"`
}

// Balance returns received minus sent
func (w *Wallet) Balance() float64 {
	return w.TotalReceived - w.TotalSent
}

// TransactionCount returns the number of transactions touching the wallet
func (w *Wallet) TransactionCount() int64 {
	return w.OutgoingCount + w.IncomingCount
}

// WalletFeatures represents the structural features used for anomaly scoring
type WalletFeatures struct {
	Address          string  `json:"address"`
	InDegree         int     `json:"in_degree"`
	OutDegree        int     `json:"out_degree"`
	FanOutRatio      float64 `json:"fanout_ratio"`
	FanInRatio       float64 `json:"fanin_ratio"`
	TransactionCount int64   `json:"transaction_count"`
	TotalSent        float64 `json:"total_sent"`
	TotalReceived    float64 `json:"total_received"`
	Balance          float64 `json:"balance"`
	IsIllicit        bool    `json:"is_illicit"`
}
