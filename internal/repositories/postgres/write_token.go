package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

const writeTokenPrefix = "w"

// GenerateWriteToken returns a token naming the transaction tx belongs to.
// Format: "w<txid>"
func GenerateWriteToken(ctx context.Context, tx *sqlx.Tx) (string, error) {
	var txid int64
	if err := tx.QueryRowxContext(ctx, "SELECT txid_current()").Scan(&txid); err != nil {
		return "", fmt.Errorf("failed to get current transaction ID: %w", err)
	}
	return FormatWriteToken(txid), nil
}

// FormatWriteToken encodes a transaction ID as a write token
func FormatWriteToken(txid int64) string {
	return writeTokenPrefix + strconv.FormatInt(txid, 10)
}

// ParseWriteToken decodes a write token back to its transaction ID
func ParseWriteToken(token string) (int64, error) {
	if !strings.HasPrefix(token, writeTokenPrefix) {
		return 0, fmt.Errorf("invalid write token format: %q", token)
	}
	txid, err := strconv.ParseInt(strings.TrimPrefix(token, writeTokenPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid transaction ID in write token: %w", err)
	}
	return txid, nil
}
