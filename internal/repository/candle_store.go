package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"AdaptiveEnsemble/internal/domain/models"
	domrepo "AdaptiveEnsemble/internal/domain/repository"
	pkgch "AdaptiveEnsemble/pkg/clickhouse"
	applogger "AdaptiveEnsemble/pkg/logger"
)

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func NewCHCandleStore(ch *pkgch.Client, database string) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), database: database, l: applogger.NewNop()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	table, err := tableForTF(s.database, tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
		SELECT bucket, open, high, low, close, volume
		FROM %s
		WHERE symbol = ? AND bucket >= ? AND bucket <= ?
		ORDER BY bucket ASC
	`
	return s.query(ctx, "get_candles", table, symbol, fmt.Sprintf(qtpl, table), symbol, from, to)
}

// GetLatestNCandles returns the newest n candles in ascending time order.
func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	table, err := tableForTF(s.database, tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
		SELECT bucket, open, high, low, close, volume
		FROM %s
		WHERE symbol = ?
		ORDER BY bucket DESC
		LIMIT ?
	`
	out, err := s.query(ctx, "latest_candles", table, symbol, fmt.Sprintf(qtpl, table), symbol, n)
	if err != nil {
		return nil, err
	}
	reverseCandles(out)
	return out, nil
}

func (s *CHCandleStore) query(ctx context.Context, op, table, symbol, q string, args ...any) ([]models.Candle, error) {
	start := time.Now()
	fields := []applogger.Field{applogger.String("table", table), applogger.String("symbol", symbol)}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse "+op+" scan error", append(fields, applogger.Error(err))...)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse "+op+" rows error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse "+op+" ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)...)
	return out, nil
}

func reverseCandles(c []models.Candle) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}

func tableForTF(database string, tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return fmt.Sprintf("%s.candles_%s", database, tf), nil
}
