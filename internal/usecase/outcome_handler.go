package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	dm "AdaptiveEnsemble/internal/domain/models"
	drepo "AdaptiveEnsemble/internal/domain/repository"
	applogger "AdaptiveEnsemble/pkg/logger"
	pkgkafka "AdaptiveEnsemble/pkg/kafka"
)

// OutcomeMessage is a closed live trade reported by the execution side.
type OutcomeMessage struct {
	ID        string             `json:"id"`
	Symbol    string             `json:"symbol"`
	Features  map[string]float64 `json:"features"`
	TargetPct float64            `json:"target_pct"`
	PnL       float64            `json:"pnl"`
	Regime    dm.Regime          `json:"regime,omitempty"` // regime at entry; empty uses the bundle's
	ClosedAt  time.Time          `json:"closed_at"`
}

// OutcomeHandler consumes closed trade outcomes, stores them for the next
// training run, feeds them to the online learner and scores the active bundle's
// models in the regime performance log.
type OutcomeHandler struct {
	topic  string
	core   *Core
	store  drepo.ClosedTradeWriter
	logger *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*OutcomeHandler)(nil)

// NewOutcomeHandler builds the handler; store may be nil.
func NewOutcomeHandler(topic string, core *Core, store drepo.ClosedTradeWriter) *OutcomeHandler {
	return &OutcomeHandler{topic: topic, core: core, store: store, logger: applogger.NewNop()}
}

// SetLogger injects a structured logger.
func (h *OutcomeHandler) SetLogger(l *applogger.Logger) {
	if l != nil {
		h.logger = l
	}
}

func (h *OutcomeHandler) Topic() string { return h.topic }

// Handle returns an error for malformed messages and store failures so the
// consumer retries and then dead-letters them.
func (h *OutcomeHandler) Handle(ctx context.Context, b []byte) error {
	start := time.Now()
	var m OutcomeMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.core.metrics.RecordError("outcome_unmarshal")
		return fmt.Errorf("decode outcome: %w", err)
	}
	if m.ID == "" || m.Symbol == "" || math.IsNaN(m.TargetPct) || math.IsInf(m.TargetPct, 0) {
		h.core.metrics.RecordError("outcome_invalid")
		return fmt.Errorf("invalid outcome %q: missing id or symbol, or non-finite target", m.ID)
	}

	if h.store != nil {
		row := dm.ClosedTradeRow{
			ID:       m.ID,
			Symbol:   m.Symbol,
			Features: m.Features,
			Target:   m.TargetPct,
			PnL:      m.PnL,
			ClosedAt: m.ClosedAt,
		}
		if err := h.store.SaveClosedTrades(ctx, []dm.ClosedTradeRow{row}); err != nil {
			h.core.metrics.RecordError("outcome_store")
			return err
		}
	}

	if active := h.core.Active(); active != nil {
		if vec, ok := vectorFor(active.Features, m.Features); ok {
			refit := h.core.FeedOutcome(vec, m.TargetPct)
			if err := h.core.ScoreOutcome(active, vec, m.TargetPct, m.Regime); err != nil {
				h.logger.Warn("outcome not scored", applogger.String("id", m.ID), applogger.Error(err))
			}
			h.logger.Debug("outcome fed to online learner",
				applogger.String("id", m.ID),
				applogger.Bool("refit", refit),
			)
		} else {
			h.logger.Debug("outcome lacks bundle features", applogger.String("id", m.ID))
		}
	}
	h.core.metrics.RecordLatency("outcome_handle", time.Since(start).Seconds())
	return nil
}

// vectorFor orders values by names; ok is false when any name is missing.
func vectorFor(names []string, values map[string]float64) ([]float64, bool) {
	if len(names) == 0 {
		return nil, false
	}
	out := make([]float64, len(names))
	for i, n := range names {
		v, ok := values[n]
		if !ok || math.IsNaN(v) {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
