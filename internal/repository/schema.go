package repository

import (
	"fmt"

	domrepo "AdaptiveEnsemble/internal/domain/repository"
)

// Schema returns the idempotent DDL for the tables the adapters read and write.
func Schema(database string) []string {
	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)}
	for _, tf := range []domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m, domrepo.TF15m, domrepo.TF1h} {
		table, _ := tableForTF(database, tf)
		stmts = append(stmts, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (symbol String, bucket DateTime, open Float64, high Float64, low Float64, close Float64, volume Float64) ENGINE=ReplacingMergeTree ORDER BY (symbol, bucket)",
			table))
	}
	stmts = append(stmts, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id String, symbol String, features String, target Float64, pnl Float64, closed_at DateTime) ENGINE=ReplacingMergeTree ORDER BY (closed_at, id)",
		tradesTable(database)))
	return stmts
}
