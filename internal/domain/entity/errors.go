package entity

import "errors"

var (
	// ErrWalletNotFound is returned when a query references a wallet absent from the graph
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrMalformedTransaction is returned when a transaction record cannot enter the graph
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrInvalidConfig is returned when detection or scoring parameters are inconsistent
	ErrInvalidConfig = errors.New("invalid configuration")
)
