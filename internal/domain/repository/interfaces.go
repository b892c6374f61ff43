package repository

import (
	"context"
	"time"

	"AdaptiveEnsemble/internal/domain/models"
)

// PriceFeed fetches the latest price for a symbol. Implementations return an
// error wrapping models.ErrPriceUnavailable when no price is known.
type PriceFeed interface {
	Fetch(ctx context.Context, symbol string) (float64, error)
}

// CandleStore provides read-only access to OHLCV candles for training and backtests.
// Candles are returned in ascending time order.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

// HistoricalTradeStore reads closed live trades used for augmentation and penalty weights.
type HistoricalTradeStore interface {
	LoadClosedTrades(ctx context.Context) ([]models.ClosedTradeRow, error)
}

// ClosedTradeWriter appends closed live trades for later training runs.
type ClosedTradeWriter interface {
	SaveClosedTrades(ctx context.Context, trades []models.ClosedTradeRow) error
}

// BundleStore persists serialized model bundles.
type BundleStore interface {
	Save(ctx context.Context, id string, blob []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	// LatestID returns the id of the most recently saved bundle.
	LatestID(ctx context.Context) (string, error)
}

// IntentSink publishes emitted trade intents and closed trade records.
type IntentSink interface {
	PublishIntent(ctx context.Context, intent models.TradeIntent) error
	PublishTrade(ctx context.Context, trade models.TradeRecord) error
	Close() error
}

type Metrics interface {
	RecordTraining(seconds float64, samples, models int)
	RecordPrediction(direction string, confidence float64, fallback bool)
	RecordBacktest(trades int, finalCapital, maxDrawdownPct float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
