package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"smurfing-hunter/internal/domain/entity"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/shopspring/decimal"
)

// neo4jTimeLayout is the ISO-8601 form handed to datetime()
const neo4jTimeLayout = "2006-01-02T15:04:05.000Z"

// parseValue converts a stored SENT_TO value into a token amount.
// Values are stored as base-unit strings and scaled down by decimals.
func parseValue(raw any, decimals int32) (decimal.Decimal, error) {
	var value decimal.Decimal
	switch v := raw.(type) {
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: invalid value %q", entity.ErrMalformedTransaction, v)
		}
		value = parsed
	case int64:
		value = decimal.NewFromInt(v)
	case float64:
		value = decimal.NewFromFloat(v)
	case nil:
		return decimal.Zero, fmt.Errorf("%w: missing value", entity.ErrMalformedTransaction)
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported value type %T", entity.ErrMalformedTransaction, raw)
	}
	return value.Shift(-decimals), nil
}

// parseTimestamp accepts driver temporal values, ISO strings and unix seconds
func parseTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case neo4j.LocalDateTime:
		return v.Time().UTC(), nil
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts.UTC(), nil
		}
		if seconds, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(seconds, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", entity.ErrMalformedTransaction, v)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case nil:
		return time.Time{}, fmt.Errorf("%w: missing timestamp", entity.ErrMalformedTransaction)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported timestamp type %T", entity.ErrMalformedTransaction, raw)
	}
}

func asString(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return ""
}

// transactionFromValues builds a transaction from a SENT_TO row:
// from, to, value, timestamp, tx_hash, token
func transactionFromValues(values []any, decimals int32) (*entity.Transaction, error) {
	if len(values) < 6 {
		return nil, fmt.Errorf("%w: expected 6 columns, got %d", entity.ErrMalformedTransaction, len(values))
	}
	hash := asString(values[4])

	amount, err := parseValue(values[2], decimals)
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", hash, err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("tx %s: %w: non-positive amount %s", hash, entity.ErrMalformedTransaction, amount.String())
	}

	timestamp, err := parseTimestamp(values[3])
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", hash, err)
	}

	token := asString(values[5])
	if token == "" {
		token = "ETH"
	}

	return &entity.Transaction{
		Hash:      hash,
		From:      asString(values[0]),
		To:        asString(values[1]),
		Amount:    amount.InexactFloat64(),
		Timestamp: timestamp,
		Token:     token,
	}, nil
}

// patternParams flattens a pattern into the UNWIND row used by SavePatterns
func patternParams(pattern *entity.SmurfingPattern) (map[string]any, error) {
	detail, err := patternDetailJSON(pattern)
	if err != nil {
		return nil, err
	}

	participants := make([]map[string]any, 0, len(pattern.Participants))
	for _, participant := range pattern.Participants {
		participants = append(participants, map[string]any{
			"wallet": participant.Wallet,
			"role":   string(participant.Role),
		})
	}

	return map[string]any{
		"id":             pattern.ID,
		"type":           string(pattern.Type),
		"score":          pattern.Score,
		"total_amount":   decimal.NewFromFloat(pattern.TotalAmount).String(),
		"hop_count":      pattern.HopCount,
		"first_activity": pattern.FirstActivity.UTC().Format(neo4jTimeLayout),
		"last_activity":  pattern.LastActivity.UTC().Format(neo4jTimeLayout),
		"detail":         detail,
		"participants":   participants,
	}, nil
}

func patternDetailJSON(pattern *entity.SmurfingPattern) (string, error) {
	var payload any
	switch {
	case pattern.FanOutFanIn != nil:
		payload = pattern.FanOutFanIn
	case pattern.Cycle != nil:
		payload = pattern.Cycle
	case pattern.Layered != nil:
		payload = pattern.Layered
	case pattern.Peeling != nil:
		payload = pattern.Peeling
	default:
		return "{}", nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode pattern %s detail: %w", pattern.ID, err)
	}
	return string(raw), nil
}

func scoreParams(score entity.WalletScore) map[string]any {
	return map[string]any{
		"wallet":              score.Wallet,
		"centrality":          score.Centrality,
		"proximity":           score.Proximity,
		"pattern_involvement": score.PatternInvolvement,
		"structural_anomaly":  score.StructuralAnomaly,
		"final":               score.Final,
		"risk_level":          string(score.RiskLevel),
	}
}

func classificationParams(classification *entity.NodeClassification) map[string]any {
	secondary := make([]string, 0, len(classification.SecondaryTypes))
	for _, nodeType := range classification.SecondaryTypes {
		secondary = append(secondary, string(nodeType))
	}
	tags := classification.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"address":         classification.Address,
		"node_type":       string(classification.PrimaryType),
		"secondary_types": secondary,
		"risk_level":      string(classification.RiskLevel),
		"tags":            tags,
	}
}

// chunk splits rows into batches of at most size
func chunk[T any](rows []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var batches [][]T
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batches = append(batches, rows[start:end])
	}
	return batches
}
