package entity

import (
	"time"
)

// WalletAlert is published when a wallet reaches the alerting risk level
type WalletAlert struct {
	ID             string      `json:"id"`
	RunID          string      `json:"run_id"`
	Wallet         string      `json:"wallet"`
	Score          WalletScore `json:"score"`
	PrimaryType    NodeType    `json:"primary_type"`
	Tags           []string    `json:"tags"`
	PatternIDs     []string    `json:"pattern_ids"`
	NearestIllicit int         `json:"nearest_illicit"` // -1 when unreachable
	RaisedAt       time.Time   `json:"raised_at"`
}

// PatternAlert summarizes one detected pattern
type PatternAlert struct {
	ID          string      `json:"id"`
	RunID       string      `json:"run_id"`
	PatternID   string      `json:"pattern_id"`
	Type        PatternType `json:"type"`
	Score       float64     `json:"score"`
	TotalAmount float64     `json:"total_amount"`
	Wallets     []string    `json:"wallets"`
	HopCount    int         `json:"hop_count"`
	RaisedAt    time.Time   `json:"raised_at"`
}
