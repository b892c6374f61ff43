package usecase

import (
	"context"
	"fmt"
	"strings"

	dm "AdaptiveEnsemble/internal/domain/models"
	applogger "AdaptiveEnsemble/pkg/logger"
)

// Intent turns a prediction into a trade intent sized against capital.
func (c *Core) Intent(pred dm.Prediction, capital float64) dm.TradeIntent {
	bt := c.cfg.Backtest
	return dm.TradeIntent{
		Symbol:     pred.Symbol,
		Direction:  pred.Direction,
		SizeHint:   capital * bt.PositionFraction,
		TPPct:      bt.DefaultTPPct,
		SLPct:      bt.DefaultSLPct,
		Confidence: pred.Confidence,
		Rationale:  rationale(pred),
		CreatedAt:  c.now(),
	}
}

func rationale(pred dm.Prediction) string {
	var sb strings.Builder
	source := "ensemble"
	if pred.IsFallback {
		source = "technical fallback"
	} else if !pred.Ensemble {
		source = "single model"
	}
	fmt.Fprintf(&sb, "%s %s %+.3f%% over %dm", source, pred.Direction, pred.Value, pred.HorizonMinutes)
	fmt.Fprintf(&sb, ", confidence %.1f, agreement %.0f%%", pred.Confidence, pred.AgreementPct)
	if pred.Regime != "" {
		fmt.Fprintf(&sb, ", regime %s", pred.Regime)
	}
	if pred.PreferredModel != "" {
		fmt.Fprintf(&sb, ", preferred %s", pred.PreferredModel)
	}
	return sb.String()
}

// Emit publishes the intent for pred when it clears the confidence gate. It
// reports whether an intent was published.
func (c *Core) Emit(ctx context.Context, pred dm.Prediction, capital float64) (bool, error) {
	if pred.Confidence < c.cfg.Backtest.MinConfidence {
		return false, nil
	}
	if c.sink == nil {
		return false, fmt.Errorf("emit intent: no intent sink configured")
	}
	intent := c.Intent(pred, capital)
	if err := c.sink.PublishIntent(ctx, intent); err != nil {
		c.fail("publish_intent", err)
		return false, fmt.Errorf("publish intent: %w", err)
	}
	c.logger.Debug("intent published",
		applogger.String("symbol", intent.Symbol),
		applogger.String("direction", string(intent.Direction)),
		applogger.Float64("size", intent.SizeHint),
	)
	return true, nil
}
