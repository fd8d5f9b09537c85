package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/infrastructure/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Transaction CSV columns
const (
	ColumnSource    = "Source_Wallet_ID"
	ColumnDest      = "Dest_Wallet_ID"
	ColumnTimestamp = "Timestamp"
	ColumnAmount    = "Amount"
	ColumnToken     = "Token_Type"
)

// Illicit list CSV columns
const (
	ColumnWalletID = "Wallet_ID"
	ColumnReason   = "Reason"
)

const defaultIllicitReason = "listed"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// CSVTransactionRepository reads transfers from a CSV export
type CSVTransactionRepository struct {
	path   string
	logger *logger.Logger
}

// NewCSVTransactionRepository creates a new CSV transaction repository
func NewCSVTransactionRepository(path string, logger *logger.Logger) *CSVTransactionRepository {
	return &CSVTransactionRepository{
		path:   path,
		logger: logger.WithComponent("csv-transactions"),
	}
}

// LoadTransactions parses every row of the transaction file
func (r *CSVTransactionRepository) LoadTransactions(ctx context.Context) ([]*entity.Transaction, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transactions file: %w", err)
	}
	defer file.Close()

	transactions, err := ReadTransactions(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.path, err)
	}

	r.logger.Info("Transactions loaded",
		zap.String("path", r.path),
		zap.Int("count", len(transactions)))
	return transactions, nil
}

// ReadTransactions parses transaction rows from any CSV stream
func ReadTransactions(ctx context.Context, reader io.Reader) ([]*entity.Transaction, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns, err := indexColumns(header, ColumnSource, ColumnDest, ColumnTimestamp, ColumnAmount, ColumnToken)
	if err != nil {
		return nil, err
	}

	var transactions []*entity.Transaction
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		tx, err := parseTransaction(record, columns)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func parseTransaction(record []string, columns map[string]int) (*entity.Transaction, error) {
	from := strings.TrimSpace(record[columns[ColumnSource]])
	to := strings.TrimSpace(record[columns[ColumnDest]])
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: missing wallet endpoint", entity.ErrMalformedTransaction)
	}

	amount, err := ParseAmount(record[columns[ColumnAmount]])
	if err != nil {
		return nil, err
	}

	timestamp, err := ParseTimestamp(record[columns[ColumnTimestamp]])
	if err != nil {
		return nil, err
	}

	return &entity.Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Timestamp: timestamp,
		Token:     strings.TrimSpace(record[columns[ColumnToken]]),
	}, nil
}

// ParseAmount parses a positive decimal amount
func ParseAmount(raw string) (float64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", entity.ErrMalformedTransaction, raw)
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: non-positive amount %s", entity.ErrMalformedTransaction, amount.String())
	}
	return amount.InexactFloat64(), nil
}

// ParseTimestamp accepts RFC 3339, common date-time layouts and unix seconds
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", entity.ErrMalformedTransaction)
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", entity.ErrMalformedTransaction, raw)
}

// CSVIllicitWalletRepository reads the known illicit wallet list
type CSVIllicitWalletRepository struct {
	path   string
	logger *logger.Logger
}

// NewCSVIllicitWalletRepository creates a new CSV illicit wallet repository
func NewCSVIllicitWalletRepository(path string, logger *logger.Logger) *CSVIllicitWalletRepository {
	return &CSVIllicitWalletRepository{
		path:   path,
		logger: logger.WithComponent("csv-illicit"),
	}
}

// GetIllicitWallets returns the listed wallets. An unset path yields an empty list.
func (r *CSVIllicitWalletRepository) GetIllicitWallets(ctx context.Context) (map[string]string, error) {
	if r.path == "" {
		r.logger.Warn("No illicit wallet list configured")
		return map[string]string{}, nil
	}

	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open illicit wallet file: %w", err)
	}
	defer file.Close()

	illicit, err := ReadIllicitWallets(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.path, err)
	}

	r.logger.Info("Illicit wallets loaded",
		zap.String("path", r.path),
		zap.Int("count", len(illicit)))
	return illicit, nil
}

// ReadIllicitWallets parses Wallet_ID[,Reason] rows. The first reason seen for a wallet wins.
func ReadIllicitWallets(ctx context.Context, reader io.Reader) (map[string]string, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns, err := indexColumns(header, ColumnWalletID)
	if err != nil {
		return nil, err
	}
	reasonColumn, hasReason := columnIndex(header, ColumnReason)

	illicit := make(map[string]string)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		walletColumn := columns[ColumnWalletID]
		if walletColumn >= len(record) {
			continue
		}
		wallet := strings.TrimSpace(record[walletColumn])
		if wallet == "" {
			continue
		}
		if _, seen := illicit[wallet]; seen {
			continue
		}

		reason := defaultIllicitReason
		if hasReason && reasonColumn < len(record) && strings.TrimSpace(record[reasonColumn]) != "" {
			reason = strings.TrimSpace(record[reasonColumn])
		}
		illicit[wallet] = reason
	}
	return illicit, nil
}

func indexColumns(header []string, required ...string) (map[string]int, error) {
	columns := make(map[string]int, len(required))
	var missing []string
	for _, name := range required {
		index, ok := columnIndex(header, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		columns[name] = index
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func columnIndex(header []string, name string) (int, bool) {
	for i, column := range header {
		// Excel exports prefix the first column with a byte order mark
		if strings.TrimSpace(strings.TrimPrefix(column, "\ufeff")) == name {
			return i, true
		}
	}
	return 0, false
}
