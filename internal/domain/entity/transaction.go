package entity

import (
	"time"
)

// Transaction represents a single directed transfer between two wallets.
// Transactions between the same pair are never merged.
type Transaction struct {
	ID        int       `json:"id"`
	Hash      string    `json:"hash,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Token     string    `json:"token"`
}

// Before reports whether t happened strictly before other
func (t *Transaction) Before(other *Transaction) bool {
	return t.Timestamp.Before(other.Timestamp)
}
