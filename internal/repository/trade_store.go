package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"AdaptiveEnsemble/internal/domain/models"
	domrepo "AdaptiveEnsemble/internal/domain/repository"
	pkgch "AdaptiveEnsemble/pkg/clickhouse"
	applogger "AdaptiveEnsemble/pkg/logger"
)

// CHTradeStore keeps closed live trades in ClickHouse. Feature maps are stored
// as JSON strings.
type CHTradeStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var (
	_ domrepo.HistoricalTradeStore = (*CHTradeStore)(nil)
	_ domrepo.ClosedTradeWriter    = (*CHTradeStore)(nil)
)

func NewCHTradeStore(ch *pkgch.Client, database string) *CHTradeStore {
	return &CHTradeStore{db: ch.DB(), table: tradesTable(database), l: applogger.NewNop()}
}

// SetLogger injects a structured logger.
func (s *CHTradeStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// LoadClosedTrades returns every stored trade ordered by close time.
func (s *CHTradeStore) LoadClosedTrades(ctx context.Context) ([]models.ClosedTradeRow, error) {
	q := fmt.Sprintf("SELECT id, symbol, features, target, pnl, closed_at FROM %s FINAL ORDER BY closed_at ASC", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Warn("clickhouse closed_trades query error", applogger.String("table", s.table), applogger.Error(err))
		return nil, fmt.Errorf("load closed trades: %w", err)
	}
	defer rows.Close()

	var out []models.ClosedTradeRow
	for rows.Next() {
		var (
			r   models.ClosedTradeRow
			raw string
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &raw, &r.Target, &r.PnL, &r.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan closed trade: %w", err)
		}
		if r.Features, err = decodeFeatures(raw); err != nil {
			s.l.Warn("skipping closed trade with bad features",
				applogger.String("id", r.ID),
				applogger.Error(err),
			)
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveClosedTrades inserts rows in multi-row batches.
func (s *CHTradeStore) SaveClosedTrades(ctx context.Context, trades []models.ClosedTradeRow) error {
	const chunkSize = 2000
	for start := 0; start < len(trades); start += chunkSize {
		end := start + chunkSize
		if end > len(trades) {
			end = len(trades)
		}
		q, args, err := buildTradeInsert(s.table, trades[start:end])
		if err != nil {
			return err
		}
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse closed_trades insert error", applogger.String("table", s.table), applogger.Error(err))
			return fmt.Errorf("save closed trades: %w", err)
		}
	}
	return nil
}

func buildTradeInsert(table string, trades []models.ClosedTradeRow) (string, []any, error) {
	values := make([]string, 0, len(trades))
	args := make([]any, 0, len(trades)*6)
	for _, t := range trades {
		if t.ID == "" || t.Symbol == "" {
			continue
		}
		feats, err := json.Marshal(t.Features)
		if err != nil {
			return "", nil, fmt.Errorf("encode features %s: %w", t.ID, err)
		}
		closedAt := t.ClosedAt
		if closedAt.IsZero() {
			closedAt = time.Now().UTC()
		}
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, t.ID, t.Symbol, string(feats), t.Target, t.PnL, closedAt)
	}
	q := fmt.Sprintf("INSERT INTO %s (id, symbol, features, target, pnl, closed_at) VALUES %s", table, strings.Join(values, ","))
	return q, args, nil
}

func decodeFeatures(raw string) (map[string]float64, error) {
	if raw == "" {
		return map[string]float64{}, nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func tradesTable(database string) string { return database + ".closed_trades" }
