package usecase

import (
	"context"
	"fmt"
	"time"

	dm "AdaptiveEnsemble/internal/domain/models"
	domrepo "AdaptiveEnsemble/internal/domain/repository"
	"AdaptiveEnsemble/pkg/util"
)

const (
	defaultFrameLimit = 10000
	maxFrameLimit     = 50000
)

// FrameLoader builds training and backtest frames from a candle store.
type FrameLoader struct {
	store domrepo.CandleStore
}

func NewFrameLoader(store domrepo.CandleStore) *FrameLoader {
	return &FrameLoader{store: store}
}

type LoadFrameParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

// LoadFrame returns at most Limit bars. A zero range loads the latest Limit
// bars; otherwise the range is aligned to the timeframe and the newest bars
// are kept when it holds more than Limit.
func (uc *FrameLoader) LoadFrame(ctx context.Context, p LoadFrameParams) (dm.Frame, error) {
	if p.Symbol == "" {
		return dm.Frame{}, fmt.Errorf("symbol required")
	}
	if uc.store == nil {
		return dm.Frame{}, dm.Errorf(dm.KindStoreUnavailable, "no candle store configured")
	}
	if p.Limit <= 0 {
		p.Limit = defaultFrameLimit
	}
	if p.Limit > maxFrameLimit {
		p.Limit = maxFrameLimit
	}
	tf := domrepo.NormalizeTimeframe(string(p.Timeframe))

	var (
		candles []dm.Candle
		err     error
	)
	if p.From.IsZero() && p.To.IsZero() {
		candles, err = uc.store.GetLatestNCandles(ctx, p.Symbol, p.Limit, tf)
	} else {
		if p.To.IsZero() {
			p.To = time.Now().UTC()
		}
		if p.From.After(p.To) {
			return dm.Frame{}, fmt.Errorf("from must be <= to")
		}
		from, to := util.AlignFromTo(p.From, p.To, tf.Duration())
		candles, err = uc.store.GetCandles(ctx, p.Symbol, from, to, tf)
	}
	if err != nil {
		return dm.Frame{}, dm.WrapError(dm.KindStoreUnavailable, err, "load candles")
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}
	return dm.NewFrame(p.Symbol, candles), nil
}
