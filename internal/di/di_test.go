package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdaptiveEnsemble/internal/testutil"
	"AdaptiveEnsemble/pkg/config"
)

func TestInitializeAppWithoutBackends(t *testing.T) {
	cfg := config.Default()
	cfg.Logger.Level = "disabled"

	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	require.NotNil(t, app.Core())
	require.NotNil(t, app.Frames())
	assert.Equal(t, cfg.Engine.HorizonMinutes, app.Core().Config().HorizonMinutes)
	assert.Equal(t, cfg.Engine.MinConfidence, app.Core().Config().Backtest.MinConfidence)

	// Memory-backed bundle store is wired even without Redis.
	_, err = app.Core().SaveBundle(context.Background())
	assert.Error(t, err, "nothing trained yet")

	pred, err := app.Core().PredictActive(testutil.Trending("BTCUSDT", 120, 0.01, 0.001))
	require.NoError(t, err)
	assert.True(t, pred.IsFallback)

	assert.NoError(t, app.Run(context.Background()), "nothing to serve returns at once")
}

func TestDisabledBackendsYieldNilInterfaces(t *testing.T) {
	cfg := config.Default()

	assert.Nil(t, ProvideIntentSink(nil, cfg))
	assert.Nil(t, ProvideHistory(nil))
	assert.Nil(t, ProvideClosedTradeWriter(nil))
	assert.Nil(t, ProvideCandleStore(nil, cfg, nil))

	ch, cleanup, err := ProvideClickHouseClient(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, ch)
	cleanup()

	consumer, err := ProvideKafkaConsumer(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, consumer)
}

func TestRegistryFollowsModelSwitches(t *testing.T) {
	cfg := config.Default()
	cfg.Models.EnableCatBoost = false

	r := ProvideRegistry(cfg)
	assert.NotContains(t, r.Candidates(), "catboost")
	assert.True(t, r.Available("random_forest"))
}
