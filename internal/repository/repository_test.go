package repository

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdaptiveEnsemble/internal/domain/models"
	domrepo "AdaptiveEnsemble/internal/domain/repository"
	"AdaptiveEnsemble/pkg/cache"
	pkgkafka "AdaptiveEnsemble/pkg/kafka"
)

func TestTableForTF(t *testing.T) {
	table, err := tableForTF("aelc", domrepo.TF15m)
	require.NoError(t, err)
	assert.Equal(t, "aelc.candles_15m", table)

	_, err = tableForTF("aelc", domrepo.Timeframe("1s"))
	assert.Error(t, err)
}

func TestReverseCandles(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := []models.Candle{{Timestamp: base.Add(2 * time.Minute)}, {Timestamp: base.Add(time.Minute)}, {Timestamp: base}}
	reverseCandles(c)
	assert.Equal(t, base, c[0].Timestamp)
	assert.Equal(t, base.Add(2*time.Minute), c[2].Timestamp)
}

func TestSchemaCoversEveryTable(t *testing.T) {
	stmts := Schema("aelc")
	require.Len(t, stmts, 6)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS aelc", stmts[0])
	joined := strings.Join(stmts, "\n")
	for _, table := range []string{"aelc.candles_1m", "aelc.candles_5m", "aelc.candles_15m", "aelc.candles_1h", "aelc.closed_trades"} {
		assert.Contains(t, joined, table)
	}
}

func TestBuildTradeInsert(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []models.ClosedTradeRow{
		{ID: "a", Symbol: "BTCUSDT", Features: map[string]float64{"rsi": 55}, Target: 1.2, PnL: 12, ClosedAt: at},
		{ID: "", Symbol: "BTCUSDT"},
		{ID: "b", Symbol: "ETHUSDT", Target: -0.4, PnL: -3, ClosedAt: at},
	}
	q, args, err := buildTradeInsert("aelc.closed_trades", rows)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO aelc.closed_trades (id, symbol, features, target, pnl, closed_at) VALUES (?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?)", q)
	require.Len(t, args, 12)
	assert.Equal(t, `{"rsi":55}`, args[2])
	assert.Equal(t, "null", args[8])

	feats, err := decodeFeatures(args[2].(string))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"rsi": 55}, feats)
}

func TestDecodeFeatures(t *testing.T) {
	m, err := decodeFeatures("")
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = decodeFeatures("null")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = decodeFeatures("{not json")
	assert.Error(t, err)
}

func TestCacheBundleStore(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })
	s := NewCacheBundleStore(mc)

	_, err := s.LatestID(ctx)
	require.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, s.Save(ctx, "b1", []byte("one")))
	require.NoError(t, s.Save(ctx, "b2", []byte("two")))

	id, err := s.LatestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b2", id)

	blob, err := s.Load(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), blob)

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	assert.Error(t, s.Save(ctx, "", nil))
}

func TestCacheBundleStoreRespectsLock(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })
	ok, err := mc.TryLock(ctx, bundleLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Error(t, NewCacheBundleStore(mc).Save(ctx, "b1", []byte("x")))
}

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestKafkaIntentSink(t *testing.T) {
	ctx := context.Background()
	w := &memWriter{}
	sink := NewKafkaIntentSink(pkgkafka.NewProducerWithWriter(w, "none"), "intents", "trades")

	intent := models.TradeIntent{Symbol: "BTCUSDT", Direction: models.Long, Confidence: 72, TPPct: 0.02, SLPct: 0.01}
	require.NoError(t, sink.PublishIntent(ctx, intent))
	trades := []models.TradeRecord{
		{Position: models.Position{ID: "1", Symbol: "BTCUSDT"}, NetPnL: 4},
		{Position: models.Position{ID: "2", Symbol: "ETHUSDT"}, NetPnL: -2},
	}
	require.NoError(t, sink.PublishTrades(ctx, trades))
	require.NoError(t, sink.PublishTrades(ctx, nil))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "intents", w.msgs[0].Topic)
	assert.Equal(t, []byte("BTCUSDT"), w.msgs[0].Key)
	var got models.TradeIntent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, intent.Confidence, got.Confidence)
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, EventHeader, w.msgs[0].Headers[0].Key)
	assert.Equal(t, EventTradeIntent, string(w.msgs[0].Headers[0].Value))
	assert.Equal(t, EventTradeClosed, string(w.msgs[1].Headers[0].Value))

	assert.Equal(t, "trades", w.msgs[2].Topic)
	assert.Equal(t, []byte("ETHUSDT"), w.msgs[2].Key)
	require.NoError(t, sink.Close())
}
